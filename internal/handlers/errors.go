package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"rideshare-backend/internal/auth"
	"rideshare-backend/internal/logger"
	"rideshare-backend/internal/repository"
	"rideshare-backend/internal/services/fare"
	"rideshare-backend/internal/services/geocoding"

	"github.com/gin-gonic/gin"
)

// respondError переводит ошибку слоя данных в HTTP ответ.
// fallback уходит клиенту для непредвиденных ошибок.
func respondError(c *gin.Context, err error, fallback string) {
	var validationErr *repository.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Ошибка валидации", "fields": validationErr.Fields})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, repository.ErrNoSession),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrSessionRevoked),
		errors.Is(err, auth.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, repository.ErrForbidden),
		errors.Is(err, auth.ErrEmailNotConfirmed):
		status = http.StatusForbidden
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, auth.ErrUnknownProvider):
		status = http.StatusNotFound
	case errors.Is(err, repository.ErrOwnRide),
		errors.Is(err, auth.ErrInvalidCode),
		errors.Is(err, auth.ErrInvalidState):
		status = http.StatusBadRequest
	case errors.Is(err, repository.ErrNotEnoughSeats),
		errors.Is(err, repository.ErrCourierUnavailable),
		errors.Is(err, repository.ErrNotEnoughCapacity),
		errors.Is(err, repository.ErrAlreadyCancelled),
		errors.Is(err, repository.ErrEmailTaken):
		status = http.StatusConflict
	case errors.Is(err, fare.ErrUnresolvableAddress):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, geocoding.ErrDailyLimit):
		status = http.StatusTooManyRequests
	}

	if status == http.StatusInternalServerError {
		logger.Log.WithError(err).WithField("path", c.FullPath()).Error(fallback)
		c.JSON(status, gin.H{"error": fallback})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// idParam разбирает числовой параметр пути
func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный ID"})
		return 0, false
	}
	return uint(id), true
}
