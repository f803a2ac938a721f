package middleware

import (
	"net/http"
	"strings"

	"rideshare-backend/internal/auth"
	"rideshare-backend/internal/models"

	"github.com/gin-gonic/gin"
)

// Ключи контекста gin
const (
	ContextUserID    = "user_id"
	ContextEmail     = "email"
	ContextSessionID = "session_id"
	ContextToken     = "token"
)

// BearerToken достает токен из заголовка Authorization
func BearerToken(c *gin.Context) (string, bool) {
	parts := strings.Split(c.GetHeader("Authorization"), " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// JWTAuth пропускает только запросы с действующей сессией
func JWTAuth(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Отсутствует токен авторизации"})
			return
		}

		token, ok := BearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Неверный формат токена"})
			return
		}

		claims, err := authService.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Недействительный токен"})
			return
		}

		setClaims(c, claims, token)
		c.Next()
	}
}

// OptionalAuth заполняет сессию, если токен действителен, и пропускает запрос в любом случае
func OptionalAuth(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := BearerToken(c); ok {
			if claims, err := authService.Authenticate(c.Request.Context(), token); err == nil {
				setClaims(c, claims, token)
			}
		}
		c.Next()
	}
}

func setClaims(c *gin.Context, claims *auth.Claims, token string) {
	c.Set(ContextUserID, claims.UserID)
	c.Set(ContextEmail, claims.Email)
	c.Set(ContextSessionID, claims.ID)
	c.Set(ContextToken, token)
}

// Identity пользователь сессии запроса, nil без авторизации
func Identity(c *gin.Context) *models.Identity {
	userID := c.GetUint(ContextUserID)
	if userID == 0 {
		return nil
	}
	return &models.Identity{UserID: userID, Email: c.GetString(ContextEmail)}
}
