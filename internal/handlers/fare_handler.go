package handlers

import (
	"net/http"
	"strings"

	"rideshare-backend/internal/services/fare"

	"github.com/gin-gonic/gin"
)

type FareEstimateRequest struct {
	Pickup      string `json:"pickup"`
	Destination string `json:"destination"`
}

// Оценка стоимости поездки. Если адрес не удалось определить, отдается
// стоимость по умолчанию.
func FareEstimate(calculator *fare.Calculator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req FareEstimateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат запроса"})
			return
		}
		if strings.TrimSpace(req.Pickup) == "" || strings.TrimSpace(req.Destination) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Укажите адреса отправления и назначения"})
			return
		}

		c.JSON(http.StatusOK, calculator.CalculateOrDefault(c.Request.Context(), req.Pickup, req.Destination))
	}
}
