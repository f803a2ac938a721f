package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"rideshare-backend/internal/models"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

type UserRepository struct {
	db       *gorm.DB
	validate *validator.Validate
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db, validate: NewValidator()}
}

func (r *UserRepository) FindByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка при получении пользователя: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка при получении пользователя: %w", err)
	}
	return &user, nil
}

// Create сохраняет пользователя и его публичный профиль
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("email = ?", user.Email).Count(&count).Error; err != nil {
			return fmt.Errorf("ошибка при проверке email: %w", err)
		}
		if count > 0 {
			return ErrEmailTaken
		}

		if err := tx.Create(user).Error; err != nil {
			return fmt.Errorf("ошибка при создании пользователя: %w", err)
		}

		profile := models.ProfileFromUser(user)
		if err := tx.Create(&profile).Error; err != nil {
			return fmt.Errorf("ошибка при создании профиля: %w", err)
		}
		return nil
	})
}

// ConfirmEmail отмечает email подтвержденным
func (r *UserRepository) ConfirmEmail(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND email_confirmed_at IS NULL", id).
		Update("email_confirmed_at", gorm.Expr("CURRENT_TIMESTAMP")).Error
	if err != nil {
		return fmt.Errorf("ошибка при подтверждении email: %w", err)
	}
	return nil
}

// UpdateProfile обновляет данные пользователя и профиль в одной транзакции
func (r *UserRepository) UpdateProfile(ctx context.Context, id uint, update models.ProfileUpdate) (*models.User, error) {
	if err := ValidateStruct(r.validate, update); err != nil {
		return nil, err
	}

	var user models.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("ошибка при получении пользователя: %w", err)
		}

		if update.Name != nil {
			user.Name = strings.TrimSpace(*update.Name)
		}
		if update.PhoneNumber != nil {
			user.PhoneNumber = strings.TrimSpace(*update.PhoneNumber)
		}
		if update.PhotoURL != nil {
			user.PhotoURL = strings.TrimSpace(*update.PhotoURL)
		}

		if err := tx.Model(&user).Updates(map[string]interface{}{
			"name":         user.Name,
			"phone_number": user.PhoneNumber,
			"photo_url":    user.PhotoURL,
		}).Error; err != nil {
			return fmt.Errorf("ошибка при обновлении пользователя: %w", err)
		}

		// Save создает профиль, если его еще нет
		profile := models.ProfileFromUser(&user)
		if err := tx.Save(&profile).Error; err != nil {
			return fmt.Errorf("ошибка при обновлении профиля: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetProfile публичный профиль пользователя
func (r *UserRepository) GetProfile(ctx context.Context, id uint) (*models.Profile, error) {
	var profile models.Profile
	if err := r.db.WithContext(ctx).First(&profile, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка при получении профиля: %w", err)
	}
	return &profile, nil
}

func (r *UserRepository) UpdateFCMToken(ctx context.Context, id uint, token string) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("fcm_token", token)
	if res.Error != nil {
		return fmt.Errorf("ошибка при обновлении FCM токена: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FCMToken токен push-уведомлений пользователя, пустая строка если его нет
func (r *UserRepository) FCMToken(ctx context.Context, id uint) (string, error) {
	var user models.User
	err := r.db.WithContext(ctx).Select("id", "fcm_token").First(&user, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("ошибка при получении FCM токена: %w", err)
	}
	return user.FCMToken, nil
}
