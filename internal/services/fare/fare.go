package fare

import (
	"context"
	"errors"
	"math"

	"rideshare-backend/internal/logger"
	"rideshare-backend/internal/models"
	"rideshare-backend/internal/services/geocoding"

	"github.com/sirupsen/logrus"
)

const (
	earthRadiusKm = 6371.0

	DefaultPerKm    = 3.0
	DefaultBaseFare = 15

	// Подставляются вызывающей стороной, если адрес не удалось разобрать
	FallbackFare     = 30
	FallbackDistance = 10.0
)

// ErrUnresolvableAddress один из адресов не удалось геокодировать
var ErrUnresolvableAddress = errors.New("не удалось определить координаты адреса")

// Geocoder источник координат для расчета
type Geocoder interface {
	Geocode(ctx context.Context, address string) *geocoding.Coordinates
}

// Distance расстояние по формуле гаверсинусов в километрах
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLng := toRadians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	// для антиподов погрешность округления выводит a за 1
	a = math.Min(1, math.Max(0, a))
	c := 2 * math.Asin(math.Sqrt(a))

	return earthRadiusKm * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

type Calculator struct {
	geocoder Geocoder
	perKm    float64
	baseFare int
}

// NewCalculator создает калькулятор, нулевые параметры заменяются значениями по умолчанию
func NewCalculator(geocoder Geocoder, perKm float64, baseFare int) *Calculator {
	if perKm <= 0 {
		perKm = DefaultPerKm
	}
	if baseFare <= 0 {
		baseFare = DefaultBaseFare
	}
	return &Calculator{geocoder: geocoder, perKm: perKm, baseFare: baseFare}
}

// Price считает стоимость по расстоянию
func (c *Calculator) Price(km float64) *models.FareCalculationResult {
	if math.IsNaN(km) || math.IsInf(km, 0) || km < 0 {
		km = 0
	}
	raw := int(math.Round(km * c.perKm))

	fare := raw
	if fare < c.baseFare {
		fare = c.baseFare
	}
	distanceCost := raw - c.baseFare
	if distanceCost < 0 {
		distanceCost = 0
	}

	return &models.FareCalculationResult{
		Fare:         fare,
		Distance:     math.Round(km*10) / 10,
		BaseFare:     c.baseFare,
		DistanceCost: distanceCost,
		TimeCost:     0,
		SurgeFactor:  1.0,
	}
}

// Calculate геокодирует оба адреса и считает стоимость поездки
func (c *Calculator) Calculate(ctx context.Context, pickup, destination string) (*models.FareCalculationResult, error) {
	from := c.geocoder.Geocode(ctx, pickup)
	to := c.geocoder.Geocode(ctx, destination)
	if from == nil || to == nil {
		return nil, ErrUnresolvableAddress
	}

	result := c.Price(Distance(from.Lat, from.Lng, to.Lat, to.Lng))
	result.Estimated = from.IsFallback() || to.IsFallback()
	return result, nil
}

// CalculateOrDefault как Calculate, но при ошибке возвращает тариф по умолчанию
func (c *Calculator) CalculateOrDefault(ctx context.Context, pickup, destination string) *models.FareCalculationResult {
	result, err := c.Calculate(ctx, pickup, destination)
	if err == nil {
		return result
	}

	logger.Log.WithError(err).WithFields(logrus.Fields{
		"pickup":      pickup,
		"destination": destination,
	}).Warn("Ошибка расчета стоимости, используем тариф по умолчанию")

	return &models.FareCalculationResult{
		Fare:         FallbackFare,
		Distance:     FallbackDistance,
		BaseFare:     c.baseFare,
		DistanceCost: FallbackFare - c.baseFare,
		TimeCost:     0,
		SurgeFactor:  1.0,
		Estimated:    true,
	}
}
