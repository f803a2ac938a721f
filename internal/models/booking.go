package models

import (
	"time"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"   // Ожидает подтверждения
	BookingStatusConfirmed BookingStatus = "confirmed" // Подтверждено
	BookingStatusCancelled BookingStatus = "cancelled" // Отменено
)

type BookingType string

const (
	BookingTypeSeat    BookingType = "seat"    // Место в салоне
	BookingTypeCourier BookingType = "courier" // Доставка посылки
)

// Booking представляет бронирование поездки
type Booking struct {
	ID            uint          `json:"id" gorm:"primaryKey"`
	RideID        uint          `json:"ride_id" gorm:"not null;index"`
	PassengerID   uint          `json:"passenger_id" gorm:"not null;index"`
	BookingType   BookingType   `json:"booking_type" gorm:"type:varchar(20);default:'seat'"`
	SeatsBooked   int           `json:"seats_booked" gorm:"default:0"`
	PackageWeight *int          `json:"package_weight,omitempty" gorm:"default:null"`
	Status        BookingStatus `json:"status" gorm:"type:varchar(20);default:'pending'"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	Ride          *Ride         `json:"ride,omitempty" gorm:"foreignKey:RideID"`
}

// BookingCreate используется только для создания нового бронирования
type BookingCreate struct {
	RideID        uint        `json:"ride_id" validate:"required"`
	BookingType   BookingType `json:"booking_type" validate:"required,oneof=seat courier"`
	SeatsBooked   int         `json:"seats_booked" validate:"omitempty,gte=1"`
	PackageWeight *int        `json:"package_weight" validate:"omitempty,gt=0"`
}
