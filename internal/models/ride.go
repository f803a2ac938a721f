package models

import (
	"time"
)

// UnknownDriverName подставляется, если у водителя нет профиля
const UnknownDriverName = "Unknown Driver"

type Ride struct {
	ID                 uint      `json:"id" gorm:"primaryKey"`
	DriverID           uint      `json:"driver_id" gorm:"not null;index"`
	PickupPoint        string    `json:"pickup_point" gorm:"not null"`
	Destination        string    `json:"destination" gorm:"not null"`
	PickupDate         string    `json:"pickup_date" gorm:"type:varchar(10);not null;index"`
	PickupTimeStart    string    `json:"pickup_time_start" gorm:"type:varchar(5)"`
	PickupTimeEnd      string    `json:"pickup_time_end" gorm:"type:varchar(5)"`
	CarName            string    `json:"car_name" gorm:"default:''"`
	Fare               int       `json:"fare" gorm:"not null"`
	IsCourierAvailable bool      `json:"is_courier_available" gorm:"default:false"`
	LuggageCapacity    *int      `json:"luggage_capacity,omitempty" gorm:"default:null"`
	Seats              int       `json:"seats" gorm:"not null"`
	CreatedAt          time.Time `json:"created_at"`
	Driver             *Profile  `json:"-" gorm:"foreignKey:DriverID"`

	// Заполняются при чтении из профиля водителя
	DriverName  string `json:"driver_name" gorm:"-"`
	DriverPhoto string `json:"driver_photo" gorm:"-"`
}

// FillDriver переносит имя и фото водителя из подгруженного профиля
func (r *Ride) FillDriver() {
	r.DriverName = UnknownDriverName
	r.DriverPhoto = ""
	if r.Driver == nil {
		return
	}
	if r.Driver.Name != "" {
		r.DriverName = r.Driver.Name
	}
	if r.Driver.PhotoURL != nil {
		r.DriverPhoto = *r.Driver.PhotoURL
	}
}

// RideCreate входные данные для публикации поездки
type RideCreate struct {
	PickupPoint        string `json:"pickup_point" validate:"required"`
	Destination        string `json:"destination" validate:"required"`
	PickupDate         string `json:"pickup_date" validate:"required,datetime=2006-01-02"`
	PickupTimeStart    string `json:"pickup_time_start" validate:"omitempty,datetime=15:04"`
	PickupTimeEnd      string `json:"pickup_time_end" validate:"omitempty,datetime=15:04"`
	CarName            string `json:"car_name"`
	Fare               int    `json:"fare"`
	IsCourierAvailable bool   `json:"is_courier_available"`
	LuggageCapacity    *int   `json:"luggage_capacity" validate:"omitempty,gt=0"`
	Seats              int    `json:"seats" validate:"gte=1"`
}
