package handlers

import (
	"net/http"
	"strings"

	"rideshare-backend/internal/logger"
	"rideshare-backend/internal/services/geocoding"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	defaultAddressLimit = 5
	maxAddressLimit     = 20
)

type AddressSearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type AddressSearchResponse struct {
	Addresses []AddressResult `json:"addresses"`
}

type AddressResult struct {
	Name        string  `json:"name"`
	FullAddress string  `json:"fullAddress"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
}

// Подсказки адресов для полей отправления и назначения
func SearchAddress(geocoder *geocoding.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AddressSearchRequest
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Query) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат запроса"})
			return
		}

		limit := req.Limit
		if limit <= 0 {
			limit = defaultAddressLimit
		}
		if limit > maxAddressLimit {
			limit = maxAddressLimit
		}

		places, err := geocoder.Search(c.Request.Context(), req.Query, limit)
		if err != nil {
			respondError(c, err, "Ошибка при поиске адреса")
			return
		}

		logger.Log.WithFields(logrus.Fields{"query": req.Query, "found": len(places)}).Debug("Поиск адреса")

		addresses := make([]AddressResult, 0, len(places))
		for _, place := range places {
			name := place.Address.Locality()
			if place.Address.Road != "" {
				name = place.Address.Road
			}
			if name == "" {
				name = place.DisplayName
			}
			addresses = append(addresses, AddressResult{
				Name:        name,
				FullAddress: place.DisplayName,
				Lat:         place.Lat,
				Lng:         place.Lng,
			})
		}

		c.JSON(http.StatusOK, AddressSearchResponse{Addresses: addresses})
	}
}
