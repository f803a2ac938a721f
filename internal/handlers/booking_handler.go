package handlers

import (
	"net/http"

	"rideshare-backend/internal/middleware"
	"rideshare-backend/internal/models"
	"rideshare-backend/internal/repository"

	"github.com/gin-gonic/gin"
)

// Бронирование места или отправка посылки
func BookingCreate(bookings *repository.BookingRepository, notifier BookingNotifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.BookingCreate
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат данных"})
			return
		}

		userID := c.GetUint(middleware.ContextUserID)
		booking, ride, err := bookings.Create(c.Request.Context(), userID, input)
		if err != nil {
			respondError(c, err, "Ошибка при создании бронирования")
			return
		}

		if notifier != nil {
			notifier.BookingCreated(c.Request.Context(), booking, ride)
		}

		c.JSON(http.StatusCreated, booking)
	}
}

// Бронирования текущего пассажира
func BookingList(bookings *repository.BookingRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := bookings.ListByPassenger(c.Request.Context(), c.GetUint(middleware.ContextUserID))
		if err != nil {
			respondError(c, err, "Ошибка при получении бронирований")
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

func BookingCancel(bookings *repository.BookingRepository, notifier BookingNotifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}

		booking, ride, err := bookings.Cancel(c.Request.Context(), c.GetUint(middleware.ContextUserID), id)
		if err != nil {
			respondError(c, err, "Ошибка при отмене бронирования")
			return
		}

		if notifier != nil {
			notifier.BookingCancelled(c.Request.Context(), booking, ride)
		}

		c.JSON(http.StatusOK, booking)
	}
}
