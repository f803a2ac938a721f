package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rideshare-backend/internal/logger"
	"rideshare-backend/internal/models"
	"rideshare-backend/internal/realtime"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	messagesTable      = "messages"
	conversationsTable = "conversations"
)

type MessageRepository struct {
	db        *gorm.DB
	publisher realtime.Publisher
}

func NewMessageRepository(db *gorm.DB, publisher realtime.Publisher) *MessageRepository {
	return &MessageRepository{db: db, publisher: publisher}
}

// GetOrCreateConversation возвращает переписку пары пользователей, создавая ее при первом обращении
func (r *MessageRepository) GetOrCreateConversation(ctx context.Context, userA, userB uint) (*models.Conversation, error) {
	if userA == 0 || userB == 0 || userA == userB {
		return nil, newValidationError("user_id", "переписка возможна только между двумя разными пользователями")
	}

	// Пара неупорядоченная, храним меньший id первым
	user1, user2 := userA, userB
	if user1 > user2 {
		user1, user2 = user2, user1
	}

	conv := models.Conversation{}
	res := r.db.WithContext(ctx).
		Where(models.Conversation{User1ID: user1, User2ID: user2}).
		FirstOrCreate(&conv)
	if res.Error != nil {
		// Параллельный запрос мог создать строку раньше нас
		if err := r.db.WithContext(ctx).
			Where("user1_id = ? AND user2_id = ?", user1, user2).
			First(&conv).Error; err != nil {
			return nil, fmt.Errorf("ошибка при создании переписки: %w", res.Error)
		}
		return &conv, nil
	}

	if res.RowsAffected > 0 {
		logger.Log.WithFields(logrus.Fields{
			"conversation_id": conv.ID,
			"user1_id":        user1,
			"user2_id":        user2,
		}).Info("Создана новая переписка")
		realtime.Notify(ctx, r.publisher, realtime.EventInsert, conversationsTable, conv, nil)
	}

	return &conv, nil
}

// GetConversation переписка, доступная только ее участникам
func (r *MessageRepository) GetConversation(ctx context.Context, conversationID, userID uint) (*models.Conversation, error) {
	var conv models.Conversation
	if err := r.db.WithContext(ctx).First(&conv, conversationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка при получении переписки: %w", err)
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrForbidden
	}
	return &conv, nil
}

// IsParticipant проверяет участие пользователя в переписке
func (r *MessageRepository) IsParticipant(ctx context.Context, conversationID, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ? AND (user1_id = ? OR user2_id = ?)", conversationID, userID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("ошибка при проверке участника переписки: %w", err)
	}
	return count > 0, nil
}

// ListConversations переписки пользователя с числом непрочитанных и профилем собеседника
func (r *MessageRepository) ListConversations(ctx context.Context, userID uint) ([]models.ConversationSummary, error) {
	var convs []models.Conversation
	err := r.db.WithContext(ctx).
		Where("user1_id = ? OR user2_id = ?", userID, userID).
		Order("COALESCE(last_message_time, created_at) DESC, id DESC").
		Find(&convs).Error
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении списка переписок: %w", err)
	}

	summaries := make([]models.ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		otherID := conv.OtherParticipant(userID)

		other := models.Profile{ID: otherID}
		if err := r.db.WithContext(ctx).First(&other, otherID).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("ошибка при получении профиля собеседника: %w", err)
		}

		unread, err := r.UnreadCount(ctx, conv.ID, userID)
		if err != nil {
			return nil, err
		}

		summaries = append(summaries, models.ConversationSummary{
			Conversation: conv,
			OtherUser:    other,
			UnreadCount:  unread,
		})
	}
	return summaries, nil
}

// ListMessages сообщения переписки по возрастанию времени
func (r *MessageRepository) ListMessages(ctx context.Context, conversationID uint) ([]models.Message, error) {
	messages := []models.Message{}
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("timestamp ASC, id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении сообщений: %w", err)
	}
	return messages, nil
}

// Load открывает переписку: проверяет доступ, отмечает входящие прочитанными и возвращает сообщения
func (r *MessageRepository) Load(ctx context.Context, conversationID, userID uint) ([]models.Message, error) {
	if _, err := r.GetConversation(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	if _, err := r.MarkRead(ctx, conversationID, userID); err != nil {
		// Сообщения все равно показываем, статус прочтения обновится при следующем открытии
		logger.Log.WithError(err).WithField("conversation_id", conversationID).Warn("Не удалось отметить сообщения прочитанными")
	}

	return r.ListMessages(ctx, conversationID)
}

// Send сохраняет сообщение и обновляет последнее сообщение переписки в одной транзакции
func (r *MessageRepository) Send(ctx context.Context, conversationID, senderID, receiverID uint, text string) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, newValidationError("text", "обязательное поле")
	}

	var msg models.Message
	var conv models.Conversation

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&conv, conversationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("ошибка при получении переписки: %w", err)
		}

		if senderID == receiverID || !conv.HasParticipant(senderID) || !conv.HasParticipant(receiverID) {
			return ErrForbidden
		}

		msg = models.Message{
			ConversationID: conversationID,
			SenderID:       senderID,
			ReceiverID:     receiverID,
			Text:           text,
			Read:           false,
			Timestamp:      time.Now().UTC(),
		}
		if err := tx.Create(&msg).Error; err != nil {
			return fmt.Errorf("ошибка при сохранении сообщения: %w", err)
		}

		conv.LastMessage = &msg.Text
		conv.LastMessageTime = &msg.Timestamp
		if err := tx.Model(&conv).Updates(map[string]interface{}{
			"last_message":      msg.Text,
			"last_message_time": msg.Timestamp,
		}).Error; err != nil {
			return fmt.Errorf("ошибка при обновлении переписки: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Log.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"message_id":      msg.ID,
		"sender_id":       senderID,
	}).Debug("Сообщение отправлено")

	realtime.Notify(ctx, r.publisher, realtime.EventInsert, messagesTable, msg, nil)
	realtime.Notify(ctx, r.publisher, realtime.EventUpdate, conversationsTable, conv, nil)

	return &msg, nil
}

// MarkRead отмечает прочитанными непрочитанные сообщения, адресованные receiverID
func (r *MessageRepository) MarkRead(ctx context.Context, conversationID, receiverID uint) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ? AND receiver_id = ? AND read = ?", conversationID, receiverID, false).
		Update("read", true)
	if res.Error != nil {
		return 0, fmt.Errorf("ошибка при обновлении статуса сообщений: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// MarkMessageRead отмечает одно сообщение прочитанным
func (r *MessageRepository) MarkMessageRead(ctx context.Context, messageID uint) error {
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND read = ?", messageID, false).
		Update("read", true).Error
	if err != nil {
		return fmt.Errorf("ошибка при обновлении статуса сообщения: %w", err)
	}
	return nil
}

// UnreadCount количество непрочитанных сообщений пользователя в переписке
func (r *MessageRepository) UnreadCount(ctx context.Context, conversationID, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ? AND receiver_id = ? AND read = ?", conversationID, userID, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("ошибка при подсчете непрочитанных сообщений: %w", err)
	}
	return count, nil
}
