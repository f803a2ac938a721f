// Команда выпускает токен доступа для существующего пользователя.
// Нужна для ручной проверки API и WebSocket.
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"rideshare-backend/internal/auth"
	"rideshare-backend/internal/config"
	"rideshare-backend/internal/db"
	"rideshare-backend/internal/logger"
	"rideshare-backend/internal/repository"
)

func main() {
	email := flag.String("email", "", "email пользователя")
	ttl := flag.Duration("ttl", 24*time.Hour, "срок действия токена")
	flag.Parse()

	if *email == "" {
		logger.Log.Fatal("Укажите -email")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	database, err := db.ConnectWithRetry(cfg.DB, 1, time.Second)
	if err != nil {
		logger.Log.Fatalf("Ошибка подключения к базе данных: %v", err)
	}

	user, err := repository.NewUserRepository(database).FindByEmail(context.Background(), *email)
	if err != nil {
		logger.Log.Fatalf("Пользователь %s не найден: %v", *email, err)
	}

	token, claims, err := auth.NewTokenManager(cfg.Auth.JWTSecret, *ttl).Generate(user.ID, user.Email)
	if err != nil {
		logger.Log.Fatalf("Ошибка генерации токена: %v", err)
	}

	fmt.Printf("Токен для пользователя %d (%s), действует до %s:\n%s\n",
		user.ID, user.Email, claims.ExpiresAt.Time.Format(time.RFC3339), token)
}
