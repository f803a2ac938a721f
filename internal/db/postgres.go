package db

import (
	"fmt"
	"time"

	"rideshare-backend/internal/config"
	"rideshare-backend/internal/logger"
	"rideshare-backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormConfig общие настройки gorm. Профиль создается вместе с пользователем,
// поэтому внешние ключи на profiles при миграции не создаются.
func GormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Error),
		DisableForeignKeyConstraintWhenMigrating: true,
	}
}

// ConnectWithRetry подключается к PostgreSQL, повторяя попытки при неудаче
func ConnectWithRetry(cfg config.DBConfig, maxAttempts int, delay time.Duration) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	for i := 0; i < maxAttempts; i++ {
		db, err = gorm.Open(postgres.Open(cfg.DSN()), GormConfig())
		if err == nil {
			sqlDB, err := db.DB()
			if err != nil {
				return nil, fmt.Errorf("не удалось получить доступ к sql.DB: %w", err)
			}

			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
			sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

			return db, nil
		}
		logger.Log.WithError(err).Warnf("Попытка подключения к БД %d из %d не удалась", i+1, maxAttempts)
		time.Sleep(delay)
	}
	return nil, fmt.Errorf("не удалось подключиться к базе данных после %d попыток: %w", maxAttempts, err)
}

// Migrate создает и обновляет таблицы
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Profile{},
		&models.Ride{},
		&models.Booking{},
		&models.Conversation{},
		&models.Message{},
	); err != nil {
		return fmt.Errorf("ошибка миграции базы данных: %w", err)
	}
	return nil
}
