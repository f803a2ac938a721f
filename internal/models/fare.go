package models

// FareCalculationResult расчет стоимости поездки, в базе не хранится
type FareCalculationResult struct {
	Fare         int     `json:"fare"`
	Distance     float64 `json:"distance"`
	BaseFare     int     `json:"baseFare"`
	DistanceCost int     `json:"distanceCost"`
	TimeCost     int     `json:"timeCost"`
	SurgeFactor  float64 `json:"surgeFactor"`
	// Estimated true, если хотя бы один адрес не найден и координаты подставлены
	Estimated bool `json:"estimated"`
}
