package handlers

import (
	"net/http"

	"rideshare-backend/internal/middleware"
	"rideshare-backend/internal/repository"

	"github.com/gin-gonic/gin"
)

type ConversationCreateRequest struct {
	UserID uint `json:"user_id"`
}

type MessageSendRequest struct {
	Text string `json:"text"`
}

func ConversationList(messages *repository.MessageRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := messages.ListConversations(c.Request.Context(), c.GetUint(middleware.ContextUserID))
		if err != nil {
			respondError(c, err, "Ошибка при получении переписок")
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// Начало переписки с пользователем, повторный вызов вернет ту же переписку
func ConversationCreate(messages *repository.MessageRepository, users *repository.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ConversationCreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат запроса"})
			return
		}

		if _, err := users.FindByID(c.Request.Context(), req.UserID); err != nil {
			respondError(c, err, "Ошибка при создании переписки")
			return
		}

		conv, err := messages.GetOrCreateConversation(c.Request.Context(), c.GetUint(middleware.ContextUserID), req.UserID)
		if err != nil {
			respondError(c, err, "Ошибка при создании переписки")
			return
		}
		c.JSON(http.StatusOK, conv)
	}
}

// Сообщения переписки. Входящие отмечаются прочитанными.
func MessageList(messages *repository.MessageRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}

		list, err := messages.Load(c.Request.Context(), id, c.GetUint(middleware.ContextUserID))
		if err != nil {
			respondError(c, err, "Ошибка при получении сообщений")
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

func MessageSend(messages *repository.MessageRepository, users *repository.UserRepository, notifier MessageNotifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}

		var req MessageSendRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат запроса"})
			return
		}

		ctx := c.Request.Context()
		userID := c.GetUint(middleware.ContextUserID)

		conv, err := messages.GetConversation(ctx, id, userID)
		if err != nil {
			respondError(c, err, "Ошибка при отправке сообщения")
			return
		}

		msg, err := messages.Send(ctx, conv.ID, userID, conv.OtherParticipant(userID), req.Text)
		if err != nil {
			respondError(c, err, "Ошибка при отправке сообщения")
			return
		}

		if notifier != nil {
			senderName := c.GetString(middleware.ContextEmail)
			if profile, err := users.GetProfile(ctx, userID); err == nil && profile.Name != "" {
				senderName = profile.Name
			}
			notifier.MessageSent(ctx, msg, senderName)
		}

		c.JSON(http.StatusCreated, msg)
	}
}

func ConversationMarkRead(messages *repository.MessageRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}

		ctx := c.Request.Context()
		userID := c.GetUint(middleware.ContextUserID)

		if _, err := messages.GetConversation(ctx, id, userID); err != nil {
			respondError(c, err, "Ошибка при обновлении сообщений")
			return
		}

		updated, err := messages.MarkRead(ctx, id, userID)
		if err != nil {
			respondError(c, err, "Ошибка при обновлении сообщений")
			return
		}
		c.JSON(http.StatusOK, gin.H{"updated": updated})
	}
}
