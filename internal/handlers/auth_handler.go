package handlers

import (
	"net/http"

	"rideshare-backend/internal/auth"
	"rideshare-backend/internal/middleware"

	"github.com/gin-gonic/gin"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ConfirmEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func AuthSignup(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input auth.SignupInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат данных"})
			return
		}

		result, err := authService.Signup(c.Request.Context(), input)
		if err != nil {
			respondError(c, err, "Ошибка при регистрации")
			return
		}
		c.JSON(http.StatusCreated, result)
	}
}

// Подтверждение email кодом из письма
func AuthConfirmEmail(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ConfirmEmailRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат данных"})
			return
		}

		session, err := authService.ConfirmEmail(c.Request.Context(), req.Email, req.Code)
		if err != nil {
			respondError(c, err, "Ошибка при подтверждении email")
			return
		}
		c.JSON(http.StatusOK, session)
	}
}

// Повторная отправка кода подтверждения. Ответ не зависит от того, известен ли email.
func AuthResendConfirmation(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ConfirmEmailRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат данных"})
			return
		}

		if err := authService.ResendConfirmationCode(c.Request.Context(), req.Email); err != nil {
			respondError(c, err, "Ошибка при отправке кода подтверждения")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Код подтверждения отправлен"})
	}
}

func AuthLogin(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат данных"})
			return
		}

		session, err := authService.Login(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			respondError(c, err, "Ошибка при входе")
			return
		}
		c.JSON(http.StatusOK, session)
	}
}

// Ссылка на страницу входа провайдера
func AuthOAuthURL(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		url, state, err := authService.OAuthURL(c.Request.Context(), c.Param("provider"))
		if err != nil {
			respondError(c, err, "Ошибка при входе через провайдера")
			return
		}

		if c.Query("redirect") == "true" {
			c.Redirect(http.StatusFound, url)
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": url, "state": state})
	}
}

func AuthOAuthCallback(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if errParam := c.Query("error"); errParam != "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Вход отменен: " + errParam})
			return
		}

		session, err := authService.OAuthCallback(c.Request.Context(), c.Param("provider"), c.Query("state"), c.Query("code"))
		if err != nil {
			respondError(c, err, "Ошибка при входе через провайдера")
			return
		}
		c.JSON(http.StatusOK, session)
	}
}

func AuthLogout(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := authService.Logout(c.Request.Context(), c.GetString(middleware.ContextToken)); err != nil {
			respondError(c, err, "Ошибка при выходе")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Вы вышли из системы"})
	}
}
