package handlers

import (
	"net/http"

	"rideshare-backend/internal/middleware"
	"rideshare-backend/internal/models"
	"rideshare-backend/internal/repository"
	"rideshare-backend/internal/services/search"

	"github.com/gin-gonic/gin"
)

type RideSearchRequest struct {
	PickupPoint string `json:"pickup_point"`
	Destination string `json:"destination"`
	Date        string `json:"date"`
}

// Список опубликованных поездок, новые первыми
func RideList(rides *repository.RideRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, rides.List(c.Request.Context(), middleware.Identity(c)))
	}
}

// Поездки текущего водителя
func RideListMine(rides *repository.RideRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := middleware.Identity(c)
		if identity == nil {
			respondError(c, repository.ErrNoSession, "")
			return
		}
		c.JSON(http.StatusOK, rides.ListByDriver(c.Request.Context(), identity, identity.UserID))
	}
}

func RideGet(rides *repository.RideRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}

		ride, err := rides.Get(c.Request.Context(), id)
		if err != nil {
			respondError(c, err, "Ошибка при получении поездки")
			return
		}
		c.JSON(http.StatusOK, ride)
	}
}

// Публикация новой поездки
func RideCreate(rides *repository.RideRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.RideCreate
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат данных"})
			return
		}

		ride, err := rides.Add(c.Request.Context(), middleware.Identity(c), input)
		if err != nil {
			respondError(c, err, "Ошибка при создании поездки")
			return
		}
		c.JSON(http.StatusCreated, ride)
	}
}

func RideDelete(rides *repository.RideRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}

		if err := rides.Remove(c.Request.Context(), middleware.Identity(c), id); err != nil {
			respondError(c, err, "Ошибка при удалении поездки")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Поездка удалена"})
	}
}

// Поиск поездок по адресам и дате
func RideSearch(rides *repository.RideRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RideSearchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат запроса"})
			return
		}

		all := rides.List(c.Request.Context(), middleware.Identity(c))
		c.JSON(http.StatusOK, search.Rides(all, req.PickupPoint, req.Destination, req.Date))
	}
}
