package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"rideshare-backend/internal/logger"
	"rideshare-backend/internal/models"
	"rideshare-backend/internal/realtime"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const ridesTable = "rides"

// DefaultMinFare минимальная цена поездки, если не задана другая
const DefaultMinFare = 15

type RideRepository struct {
	db        *gorm.DB
	publisher realtime.Publisher
	validate  *validator.Validate
	minFare   int
}

func NewRideRepository(db *gorm.DB, publisher realtime.Publisher) *RideRepository {
	return &RideRepository{
		db:        db,
		publisher: publisher,
		validate:  NewValidator(),
		minFare:   DefaultMinFare,
	}
}

// SetMinFare задает минимальную цену поездки, обычно равную базовому тарифу
func (r *RideRepository) SetMinFare(minFare int) {
	if minFare > 0 {
		r.minFare = minFare
	}
}

// List все поездки, новые первыми. Без сессии или при ошибке чтения пустой список.
func (r *RideRepository) List(ctx context.Context, session *models.Identity) []models.Ride {
	if session == nil {
		return []models.Ride{}
	}
	return r.find(ctx, r.db.WithContext(ctx))
}

// ListByDriver поездки одного водителя
func (r *RideRepository) ListByDriver(ctx context.Context, session *models.Identity, driverID uint) []models.Ride {
	if session == nil {
		return []models.Ride{}
	}
	return r.find(ctx, r.db.WithContext(ctx).Where("driver_id = ?", driverID))
}

func (r *RideRepository) find(ctx context.Context, query *gorm.DB) []models.Ride {
	var rides []models.Ride
	if err := query.Preload("Driver").Order("created_at DESC, id DESC").Find(&rides).Error; err != nil {
		logger.Log.WithError(err).Warn("Ошибка при получении списка поездок")
		return []models.Ride{}
	}

	for i := range rides {
		rides[i].FillDriver()
	}
	return rides
}

// Get поездка по id
func (r *RideRepository) Get(ctx context.Context, id uint) (*models.Ride, error) {
	var ride models.Ride
	if err := r.db.WithContext(ctx).Preload("Driver").First(&ride, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка при получении поездки: %w", err)
	}
	ride.FillDriver()
	return &ride, nil
}

// Add публикует новую поездку от имени водителя текущей сессии
func (r *RideRepository) Add(ctx context.Context, session *models.Identity, input models.RideCreate) (*models.Ride, error) {
	if session == nil {
		return nil, ErrNoSession
	}

	input.PickupPoint = strings.TrimSpace(input.PickupPoint)
	input.Destination = strings.TrimSpace(input.Destination)
	input.CarName = strings.TrimSpace(input.CarName)
	input.PickupDate = strings.TrimSpace(input.PickupDate)

	err := ValidateStruct(r.validate, input)
	if input.Fare < r.minFare {
		reason := fmt.Sprintf("значение должно быть не меньше %d", r.minFare)
		var verr *ValidationError
		if err == nil {
			err = newValidationError("fare", reason)
		} else if errors.As(err, &verr) {
			verr.Fields["fare"] = reason
		}
	}
	if err != nil {
		return nil, err
	}
	if input.LuggageCapacity != nil && !input.IsCourierAvailable {
		return nil, newValidationError("luggage_capacity", "вместимость багажа указывается только для поездок с доставкой")
	}

	ride := models.Ride{
		DriverID:           session.UserID,
		PickupPoint:        input.PickupPoint,
		Destination:        input.Destination,
		PickupDate:         input.PickupDate,
		PickupTimeStart:    input.PickupTimeStart,
		PickupTimeEnd:      input.PickupTimeEnd,
		CarName:            input.CarName,
		Fare:               input.Fare,
		IsCourierAvailable: input.IsCourierAvailable,
		LuggageCapacity:    input.LuggageCapacity,
		Seats:              input.Seats,
	}

	if err := r.db.WithContext(ctx).Create(&ride).Error; err != nil {
		return nil, fmt.Errorf("ошибка при создании поездки: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{
		"ride_id":   ride.ID,
		"driver_id": ride.DriverID,
	}).Info("Поездка создана")

	realtime.Notify(ctx, r.publisher, realtime.EventInsert, ridesTable, ride, nil)

	created, err := r.Get(ctx, ride.ID)
	if err != nil {
		ride.FillDriver()
		return &ride, nil
	}
	return created, nil
}

// Remove удаляет поездку. Удалить может только ее водитель.
func (r *RideRepository) Remove(ctx context.Context, session *models.Identity, id uint) error {
	if session == nil {
		return ErrNoSession
	}

	var ride models.Ride
	if err := r.db.WithContext(ctx).First(&ride, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка при получении поездки: %w", err)
	}
	if ride.DriverID != session.UserID {
		return ErrForbidden
	}

	if err := r.db.WithContext(ctx).Delete(&models.Ride{}, id).Error; err != nil {
		return fmt.Errorf("ошибка при удалении поездки: %w", err)
	}

	logger.Log.WithField("ride_id", id).Info("Поездка удалена")
	realtime.Notify(ctx, r.publisher, realtime.EventDelete, ridesTable, nil, ride)
	return nil
}

// DecrementSeats занимает места в поездке внутри транзакции tx.
// Условие в UPDATE не дает уйти в минус при параллельных бронированиях.
func (r *RideRepository) DecrementSeats(tx *gorm.DB, rideID uint, seats int) error {
	res := tx.Model(&models.Ride{}).
		Where("id = ? AND seats >= ?", rideID, seats).
		Update("seats", gorm.Expr("seats - ?", seats))
	if res.Error != nil {
		return fmt.Errorf("ошибка при обновлении мест: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotEnoughSeats
	}
	return nil
}

// ReleaseSeats возвращает места при отмене бронирования
func (r *RideRepository) ReleaseSeats(tx *gorm.DB, rideID uint, seats int) error {
	if err := tx.Model(&models.Ride{}).
		Where("id = ?", rideID).
		Update("seats", gorm.Expr("seats + ?", seats)).Error; err != nil {
		return fmt.Errorf("ошибка при возврате мест: %w", err)
	}
	return nil
}

// ReserveLuggage занимает вместимость багажа под посылку
func (r *RideRepository) ReserveLuggage(tx *gorm.DB, rideID uint, weight int) error {
	res := tx.Model(&models.Ride{}).
		Where("id = ? AND is_courier_available = ? AND luggage_capacity >= ?", rideID, true, weight).
		Update("luggage_capacity", gorm.Expr("luggage_capacity - ?", weight))
	if res.Error != nil {
		return fmt.Errorf("ошибка при обновлении вместимости багажа: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotEnoughCapacity
	}
	return nil
}

// ReleaseLuggage возвращает вместимость багажа
func (r *RideRepository) ReleaseLuggage(tx *gorm.DB, rideID uint, weight int) error {
	if err := tx.Model(&models.Ride{}).
		Where("id = ? AND luggage_capacity IS NOT NULL", rideID).
		Update("luggage_capacity", gorm.Expr("luggage_capacity + ?", weight)).Error; err != nil {
		return fmt.Errorf("ошибка при возврате вместимости багажа: %w", err)
	}
	return nil
}

// NotifyChanged публикует UPDATE с актуальной строкой поездки
func (r *RideRepository) NotifyChanged(ctx context.Context, rideID uint) {
	var ride models.Ride
	if err := r.db.WithContext(ctx).First(&ride, rideID).Error; err != nil {
		logger.Log.WithError(err).WithField("ride_id", rideID).Warn("Не удалось перечитать поездку для события")
		return
	}
	realtime.Notify(ctx, r.publisher, realtime.EventUpdate, ridesTable, ride, nil)
}
