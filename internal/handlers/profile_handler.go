package handlers

import (
	"net/http"
	"strings"

	"rideshare-backend/internal/auth"
	"rideshare-backend/internal/middleware"
	"rideshare-backend/internal/models"
	"rideshare-backend/internal/repository"

	"github.com/gin-gonic/gin"
)

type FCMTokenRequest struct {
	Token string `json:"token"`
}

// Текущий пользователь
func UserGetProfile(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := authService.GetUser(c.Request.Context(), c.GetUint(middleware.ContextUserID))
		if err != nil {
			respondError(c, err, "Ошибка при получении профиля")
			return
		}
		c.JSON(http.StatusOK, user.ToResponse())
	}
}

func UserUpdateProfile(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var update models.ProfileUpdate
		if err := c.ShouldBindJSON(&update); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат данных"})
			return
		}

		user, err := authService.UpdateProfile(c.Request.Context(), c.GetUint(middleware.ContextUserID), update)
		if err != nil {
			respondError(c, err, "Ошибка при обновлении профиля")
			return
		}
		c.JSON(http.StatusOK, user.ToResponse())
	}
}

// Обновление FCM токена устройства для push-уведомлений
func UpdateFCMToken(users *repository.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req FCMTokenRequest
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Token) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат данных"})
			return
		}

		if err := users.UpdateFCMToken(c.Request.Context(), c.GetUint(middleware.ContextUserID), req.Token); err != nil {
			respondError(c, err, "Ошибка при обновлении FCM токена")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "FCM токен обновлен"})
	}
}
