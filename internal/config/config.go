package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config содержит все настройки сервиса
type Config struct {
	Port    string
	GinMode string

	LogLevel  string
	LogFormat string

	DB       DBConfig
	Redis    RedisConfig
	Geocoder GeocoderConfig
	Fare     FareConfig
	Auth     AuthConfig
	OAuth    OAuthConfig

	RabbitMQURL       string
	FirebaseServerKey string
	UploadDir         string
}

// DBConfig настройки подключения к PostgreSQL
type DBConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN возвращает строку подключения для драйвера postgres
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Channel  string
}

// Addr возвращает адрес Redis в формате host:port
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

type GeocoderConfig struct {
	URL          string
	UserAgent    string
	CacheEnabled bool
	CacheTTL     time.Duration
	DailyLimit   int
	RateInterval time.Duration
}

type FareConfig struct {
	PerKm    float64
	BaseFare int
}

type AuthConfig struct {
	JWTSecret    string
	TokenTTL     time.Duration
	ConfirmEmail bool
}

type OAuthConfig struct {
	RedirectBaseURL      string
	GoogleClientID       string
	GoogleClientSecret   string
	FacebookClientID     string
	FacebookClientSecret string
}

// Load читает .env (если есть) и переменные окружения
func Load() (*Config, error) {
	// Отсутствие .env не ошибка, в контейнере все приходит через окружение
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Port:      v.GetString("PORT"),
		GinMode:   v.GetString("GIN_MODE"),
		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),
		DB: DBConfig{
			Host:            v.GetString("DB_HOST"),
			Port:            v.GetString("DB_PORT"),
			User:            v.GetString("DB_USER"),
			Password:        v.GetString("DB_PASSWORD"),
			Name:            v.GetString("DB_NAME"),
			SSLMode:         v.GetString("DB_SSLMODE"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: time.Duration(v.GetInt("DB_CONN_MAX_LIFETIME_MINUTES")) * time.Minute,
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			Channel:  v.GetString("REDIS_REALTIME_CHANNEL"),
		},
		Geocoder: GeocoderConfig{
			URL:          v.GetString("GEOCODER_URL"),
			UserAgent:    v.GetString("GEOCODER_USER_AGENT"),
			CacheEnabled: v.GetBool("GEOCODER_CACHE_ENABLED"),
			CacheTTL:     v.GetDuration("GEOCODER_CACHE_TTL"),
			DailyLimit:   v.GetInt("GEOCODER_DAILY_LIMIT"),
			RateInterval: v.GetDuration("GEOCODER_RATE_INTERVAL"),
		},
		Fare: FareConfig{
			PerKm:    v.GetFloat64("FARE_PER_KM"),
			BaseFare: v.GetInt("FARE_BASE"),
		},
		Auth: AuthConfig{
			JWTSecret:    v.GetString("JWT_SECRET"),
			TokenTTL:     v.GetDuration("AUTH_TOKEN_TTL"),
			ConfirmEmail: v.GetBool("AUTH_CONFIRM_EMAIL"),
		},
		OAuth: OAuthConfig{
			RedirectBaseURL:      v.GetString("OAUTH_REDIRECT_BASE_URL"),
			GoogleClientID:       v.GetString("OAUTH_GOOGLE_CLIENT_ID"),
			GoogleClientSecret:   v.GetString("OAUTH_GOOGLE_CLIENT_SECRET"),
			FacebookClientID:     v.GetString("OAUTH_FACEBOOK_CLIENT_ID"),
			FacebookClientSecret: v.GetString("OAUTH_FACEBOOK_CLIENT_SECRET"),
		},
		RabbitMQURL:       v.GetString("RABBITMQ_URL"),
		FirebaseServerKey: v.GetString("FIREBASE_SERVER_KEY"),
		UploadDir:         v.GetString("UPLOAD_DIR"),
	}

	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("не задан JWT_SECRET")
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("GIN_MODE", "debug")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_NAME", "rideshare")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 100)
	v.SetDefault("DB_MAX_IDLE_CONNS", 25)
	v.SetDefault("DB_CONN_MAX_LIFETIME_MINUTES", 60)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_REALTIME_CHANNEL", "realtime:changes")

	v.SetDefault("GEOCODER_URL", "https://nominatim.openstreetmap.org")
	v.SetDefault("GEOCODER_USER_AGENT", "rideshare-backend/1.0")
	v.SetDefault("GEOCODER_CACHE_ENABLED", true)
	v.SetDefault("GEOCODER_CACHE_TTL", 24*time.Hour)
	v.SetDefault("GEOCODER_DAILY_LIMIT", 5000)
	v.SetDefault("GEOCODER_RATE_INTERVAL", time.Second)

	v.SetDefault("FARE_PER_KM", 3.0)
	v.SetDefault("FARE_BASE", 15)

	v.SetDefault("AUTH_TOKEN_TTL", 24*time.Hour)
	v.SetDefault("AUTH_CONFIRM_EMAIL", false)
	v.SetDefault("OAUTH_REDIRECT_BASE_URL", "http://localhost:8080")

	v.SetDefault("UPLOAD_DIR", "uploads")
}
