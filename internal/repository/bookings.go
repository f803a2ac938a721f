package repository

import (
	"context"
	"errors"
	"fmt"

	"rideshare-backend/internal/logger"
	"rideshare-backend/internal/models"
	"rideshare-backend/internal/realtime"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const bookingsTable = "bookings"

type BookingRepository struct {
	db        *gorm.DB
	rides     *RideRepository
	publisher realtime.Publisher
	validate  *validator.Validate
}

func NewBookingRepository(db *gorm.DB, rides *RideRepository, publisher realtime.Publisher) *BookingRepository {
	return &BookingRepository{
		db:        db,
		rides:     rides,
		publisher: publisher,
		validate:  NewValidator(),
	}
}

// Create бронирует место или доставку посылки. Проверка и списание мест
// выполняются в одной транзакции.
func (r *BookingRepository) Create(ctx context.Context, passengerID uint, input models.BookingCreate) (*models.Booking, *models.Ride, error) {
	if passengerID == 0 {
		return nil, nil, ErrNoSession
	}
	if err := ValidateStruct(r.validate, input); err != nil {
		return nil, nil, err
	}

	switch input.BookingType {
	case models.BookingTypeSeat:
		if input.SeatsBooked < 1 {
			return nil, nil, newValidationError("seats_booked", "обязательное поле")
		}
	case models.BookingTypeCourier:
		if input.PackageWeight == nil {
			return nil, nil, newValidationError("package_weight", "обязательное поле")
		}
	}

	var booking models.Booking
	var ride models.Ride

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&ride, input.RideID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("ошибка при получении поездки: %w", err)
		}

		if ride.DriverID == passengerID {
			return ErrOwnRide
		}

		booking = models.Booking{
			RideID:      ride.ID,
			PassengerID: passengerID,
			BookingType: input.BookingType,
			Status:      models.BookingStatusPending,
		}

		if input.BookingType == models.BookingTypeCourier {
			if !ride.IsCourierAvailable {
				return ErrCourierUnavailable
			}
			if err := r.rides.ReserveLuggage(tx, ride.ID, *input.PackageWeight); err != nil {
				return err
			}
			booking.PackageWeight = input.PackageWeight
		} else {
			if err := r.rides.DecrementSeats(tx, ride.ID, input.SeatsBooked); err != nil {
				return err
			}
			booking.SeatsBooked = input.SeatsBooked
		}

		if err := tx.Create(&booking).Error; err != nil {
			return fmt.Errorf("ошибка при создании бронирования: %w", err)
		}

		// Поездка с уже списанными местами
		var updated models.Ride
		if err := tx.First(&updated, ride.ID).Error; err != nil {
			return fmt.Errorf("ошибка при получении поездки: %w", err)
		}
		ride = updated
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	logger.Log.WithFields(logrus.Fields{
		"booking_id":   booking.ID,
		"ride_id":      booking.RideID,
		"passenger_id": passengerID,
		"type":         booking.BookingType,
	}).Info("Бронирование создано")

	realtime.Notify(ctx, r.publisher, realtime.EventInsert, bookingsTable, booking, nil)
	r.rides.NotifyChanged(ctx, ride.ID)

	return &booking, &ride, nil
}

// ListByPassenger бронирования пассажира вместе с поездками
func (r *BookingRepository) ListByPassenger(ctx context.Context, passengerID uint) ([]models.Booking, error) {
	bookings := []models.Booking{}
	err := r.db.WithContext(ctx).
		Preload("Ride.Driver").
		Where("passenger_id = ?", passengerID).
		Order("created_at DESC, id DESC").
		Find(&bookings).Error
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении бронирований: %w", err)
	}

	for i := range bookings {
		if bookings[i].Ride != nil {
			bookings[i].Ride.FillDriver()
		}
	}
	return bookings, nil
}

// Cancel отменяет бронирование пассажира и возвращает места в поездку
func (r *BookingRepository) Cancel(ctx context.Context, passengerID, bookingID uint) (*models.Booking, *models.Ride, error) {
	var booking models.Booking
	var ride models.Ride

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&booking, bookingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("ошибка при получении бронирования: %w", err)
		}
		if booking.PassengerID != passengerID {
			return ErrForbidden
		}
		if booking.Status == models.BookingStatusCancelled {
			return ErrAlreadyCancelled
		}

		if booking.BookingType == models.BookingTypeCourier {
			if booking.PackageWeight != nil {
				if err := r.rides.ReleaseLuggage(tx, booking.RideID, *booking.PackageWeight); err != nil {
					return err
				}
			}
		} else if err := r.rides.ReleaseSeats(tx, booking.RideID, booking.SeatsBooked); err != nil {
			return err
		}

		booking.Status = models.BookingStatusCancelled
		if err := tx.Model(&booking).Update("status", models.BookingStatusCancelled).Error; err != nil {
			return fmt.Errorf("ошибка при отмене бронирования: %w", err)
		}

		// Поездка могла быть удалена, тогда уведомлять водителя некому
		if err := tx.First(&ride, booking.RideID).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("ошибка при получении поездки: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	logger.Log.WithField("booking_id", booking.ID).Info("Бронирование отменено")

	realtime.Notify(ctx, r.publisher, realtime.EventUpdate, bookingsTable, booking, nil)
	if ride.ID != 0 {
		r.rides.NotifyChanged(ctx, ride.ID)
	}

	return &booking, &ride, nil
}
