package models

import (
	"time"
)

type AuthProvider string

const (
	AuthProviderEmail    AuthProvider = "email"    // Email и пароль
	AuthProviderGoogle   AuthProvider = "google"   // Вход через Google
	AuthProviderFacebook AuthProvider = "facebook" // Вход через Facebook
)

// User учетная запись сервиса авторизации
type User struct {
	ID               uint         `json:"id" gorm:"primaryKey;column:id;autoIncrement"`
	Email            string       `json:"email" gorm:"column:email;uniqueIndex;not null;type:varchar(255)"`
	PasswordHash     string       `json:"-" gorm:"column:password_hash;type:text"`
	Provider         AuthProvider `json:"provider" gorm:"column:provider;type:varchar(20);default:'email'"`
	Name             string       `json:"name" gorm:"column:name;type:varchar(255)"`
	PhoneNumber      string       `json:"phone_number" gorm:"column:phone_number;type:varchar(20)"`
	PhotoURL         string       `json:"photo_url" gorm:"column:photo_url;type:text"`
	FCMToken         string       `json:"-" gorm:"column:fcm_token;type:text"`
	EmailConfirmedAt *time.Time   `json:"email_confirmed_at,omitempty" gorm:"column:email_confirmed_at"`
	CreatedAt        time.Time    `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time    `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

// UserResponse данные пользователя в сессии
type UserResponse struct {
	ID          uint      `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	PhoneNumber string    `json:"phone_number,omitempty"`
	PhotoURL    string    `json:"photo_url,omitempty"`
	Provider    string    `json:"provider"`
	CreatedAt   time.Time `json:"created_at"`
}

func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		PhoneNumber: u.PhoneNumber,
		PhotoURL:    u.PhotoURL,
		Provider:    string(u.Provider),
		CreatedAt:   u.CreatedAt,
	}
}

// Profile публичная копия данных пользователя для отображения в поездках и чатах
type Profile struct {
	ID          uint    `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Name        string  `json:"name" gorm:"type:varchar(255)"`
	Email       string  `json:"email" gorm:"type:varchar(255)"`
	PhoneNumber *string `json:"phone_number,omitempty" gorm:"type:varchar(20)"`
	PhotoURL    *string `json:"photo_url,omitempty" gorm:"type:text"`
}

// ProfileFromUser собирает запись профиля из учетной записи
func ProfileFromUser(u *User) Profile {
	p := Profile{ID: u.ID, Name: u.Name, Email: u.Email}
	if u.PhoneNumber != "" {
		phone := u.PhoneNumber
		p.PhoneNumber = &phone
	}
	if u.PhotoURL != "" {
		photo := u.PhotoURL
		p.PhotoURL = &photo
	}
	return p
}

// ProfileUpdate частичное обновление профиля, nil означает "не менять"
type ProfileUpdate struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	PhoneNumber *string `json:"phone_number" validate:"omitempty,max=20"`
	PhotoURL    *string `json:"photo_url" validate:"omitempty,max=2048"`
}

// Identity пользователь активной сессии. nil означает отсутствие сессии.
type Identity struct {
	UserID uint
	Email  string
}
