package models

import (
	"time"
)

// Conversation переписка двух пользователей, одна запись на пару
type Conversation struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	User1ID         uint       `json:"user1_id" gorm:"not null;uniqueIndex:idx_conversation_pair"`
	User2ID         uint       `json:"user2_id" gorm:"not null;uniqueIndex:idx_conversation_pair"`
	LastMessage     *string    `json:"last_message"`
	LastMessageTime *time.Time `json:"last_message_time"`
	CreatedAt       time.Time  `json:"created_at"`
}

// HasParticipant проверяет, что пользователь участвует в переписке
func (c *Conversation) HasParticipant(userID uint) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// OtherParticipant возвращает id собеседника
func (c *Conversation) OtherParticipant(userID uint) uint {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// ConversationSummary строка списка переписок
type ConversationSummary struct {
	Conversation
	OtherUser   Profile `json:"other_user"`
	UnreadCount int64   `json:"unread_count"`
}

type Message struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	ConversationID uint      `json:"conversation_id" gorm:"not null;index"`
	SenderID       uint      `json:"sender_id" gorm:"not null"`
	ReceiverID     uint      `json:"receiver_id" gorm:"not null;index"`
	Text           string    `json:"text" gorm:"type:text;not null"`
	Read           bool      `json:"read" gorm:"default:false"`
	Timestamp      time.Time `json:"timestamp" gorm:"index"`
}
