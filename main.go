package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rideshare-backend/internal/auth"
	"rideshare-backend/internal/config"
	"rideshare-backend/internal/db"
	"rideshare-backend/internal/events"
	"rideshare-backend/internal/logger"
	"rideshare-backend/internal/middleware"
	"rideshare-backend/internal/realtime"
	"rideshare-backend/internal/repository"
	"rideshare-backend/internal/routes"
	"rideshare-backend/internal/services/fare"
	"rideshare-backend/internal/services/geocoding"
	"rideshare-backend/internal/services/notification"
	"rideshare-backend/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger.Init(cfg.LogLevel, cfg.LogFormat)

	// Устанавливаем режим релиза для продакшена
	if cfg.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	// Подключение к базе данных
	database, err := db.ConnectWithRetry(cfg.DB, 5, 5*time.Second)
	if err != nil {
		logger.Log.Fatalf("Ошибка подключения к базе данных: %v", err)
	}

	if err := db.Migrate(database); err != nil {
		logger.Log.Fatalf("Ошибка миграции базы данных: %v", err)
	}

	// Redis обязателен: на нем сессии, OAuth state и шина событий
	redisClient, err := db.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Log.Fatalf("Redis недоступен: %v", err)
	}
	defer redisClient.Close()
	logger.Log.Info("Успешное подключение к Redis")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// События изменений: репозитории публикуют в Redis, каждый экземпляр
	// ретранслирует их в свой хаб
	hub := realtime.NewHub(0)
	hub.Start()
	defer hub.Stop()

	bus := realtime.NewRedisBus(redisClient, cfg.Redis.Channel, hub)
	go func() {
		if err := bus.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Log.WithError(err).Error("Шина событий остановлена")
		}
	}()

	geocoder := geocoding.NewClient(geocoding.Options{
		BaseURL:      cfg.Geocoder.URL,
		UserAgent:    cfg.Geocoder.UserAgent,
		Cache:        geocoding.NewCache(redisClient, cfg.Geocoder.CacheTTL, cfg.Geocoder.CacheEnabled),
		RateInterval: cfg.Geocoder.RateInterval,
		DailyLimit:   cfg.Geocoder.DailyLimit,
	})
	defer geocoder.Close()

	calculator := fare.NewCalculator(geocoder, cfg.Fare.PerKm, cfg.Fare.BaseFare)

	users := repository.NewUserRepository(database)
	rides := repository.NewRideRepository(database, bus)
	rides.SetMinFare(cfg.Fare.BaseFare)
	bookings := repository.NewBookingRepository(database, rides, bus)
	messages := repository.NewMessageRepository(database, bus)

	var providers []*auth.OAuthProvider
	if cfg.OAuth.GoogleClientID != "" {
		providers = append(providers, auth.GoogleProvider(cfg.OAuth.GoogleClientID, cfg.OAuth.GoogleClientSecret, cfg.OAuth.RedirectBaseURL))
	}
	if cfg.OAuth.FacebookClientID != "" {
		providers = append(providers, auth.FacebookProvider(cfg.OAuth.FacebookClientID, cfg.OAuth.FacebookClientSecret, cfg.OAuth.RedirectBaseURL))
	}

	authService := auth.NewService(users, auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL), auth.NewStore(redisClient), auth.Options{
		ConfirmEmail: cfg.Auth.ConfirmEmail,
		Providers:    providers,
	})

	// RabbitMQ необязателен
	var publisher *events.Publisher
	if cfg.RabbitMQURL != "" {
		publisher, err = events.NewPublisher(cfg.RabbitMQURL)
		if err != nil {
			logger.Log.WithError(err).Warn("RabbitMQ недоступен, доменные события отключены")
		} else {
			defer publisher.Close()
			logger.Log.Info("Успешное подключение к RabbitMQ")
		}
	}

	// Запускаем WebSocket менеджер
	wsManager := websocket.NewManager(hub, authService, rides, messages)
	wsManager.Start()
	defer wsManager.Stop()

	notifier := notification.NewNotifier(wsManager, notification.NewPushService(cfg.FirebaseServerKey, ""), users, publisher)

	// Создаем Gin роутер
	r := gin.New()
	r.Use(middleware.RequestLogger())
	r.Use(gin.Recovery())
	r.Use(middleware.PrometheusMiddleware())

	// Настройка доверенных прокси
	r.SetTrustedProxies([]string{"127.0.0.1"})

	// Настройка CORS
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.Static("/uploads", cfg.UploadDir)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		body := gin.H{"status": "ok", "time": time.Now().Format(time.RFC3339)}

		if err := redisClient.Ping(c.Request.Context()).Err(); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["redis"] = err.Error()
		}
		if sqlDB, err := database.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["database"] = "недоступна"
		}
		c.JSON(status, body)
	})

	routes.SetupRoutes(r.Group("/api"), routes.Dependencies{
		Auth:            authService,
		Users:           users,
		Rides:           rides,
		Bookings:        bookings,
		Messages:        messages,
		Geocoder:        geocoder,
		Fare:            calculator,
		UploadDir:       cfg.UploadDir,
		BookingNotifier: notifier,
		MessageNotifier: notifier,
	})

	r.GET("/ws", wsManager.Handler())

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.Infof("Сервер запущен на порту %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatalf("Ошибка запуска сервера: %s", err)
		}
	}()

	// Ожидаем сигнал для graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Получен сигнал завершения, закрываем соединения...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Errorf("Ошибка при graceful shutdown: %s", err)
	}
	stop()

	logger.Log.Info("Сервер корректно завершил работу")
}
