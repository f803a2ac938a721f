// Package search фильтрует уже загруженный список поездок.
package search

import (
	"strings"

	"rideshare-backend/internal/models"
)

// Rides возвращает поездки, подходящие по месту посадки, назначению и дате.
// Пустые pickup и destination возвращают весь список, дата при этом не учитывается.
func Rides(rides []models.Ride, pickup, destination, date string) []models.Ride {
	pickup = strings.ToLower(strings.TrimSpace(pickup))
	destination = strings.ToLower(strings.TrimSpace(destination))
	date = strings.TrimSpace(date)

	result := make([]models.Ride, 0, len(rides))

	if pickup == "" && destination == "" {
		return append(result, rides...)
	}

	for _, ride := range rides {
		if !matchAddress(ride.PickupPoint, pickup) {
			continue
		}
		if !matchAddress(ride.Destination, destination) {
			continue
		}
		if date != "" && ride.PickupDate != date {
			continue
		}
		result = append(result, ride)
	}

	return result
}

// matchAddress сравнивает адрес в обе стороны: адрес содержит запрос,
// запрос содержит первую часть адреса до запятой или эта часть содержит запрос.
func matchAddress(address, query string) bool {
	if query == "" {
		return true
	}

	address = strings.ToLower(address)
	if strings.Contains(address, query) {
		return true
	}

	head := strings.TrimSpace(strings.SplitN(address, ",", 2)[0])
	if head == "" {
		return false
	}

	return strings.Contains(query, head) || strings.Contains(head, query)
}
