package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	oauthStateTTL       = 10 * time.Minute
	confirmationCodeTTL = 24 * time.Hour

	// MaxConfirmationAttempts после стольких неверных попыток код сбрасывается
	MaxConfirmationAttempts = 5
)

// Store хранит в Redis отозванные токены, состояния OAuth и коды подтверждения email
type Store struct {
	client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// RevokeToken помещает токен в список отозванных до окончания его срока
func (s *Store) RevokeToken(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, "auth:revoked:"+tokenID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("ошибка при отзыве токена: %w", err)
	}
	return nil
}

func (s *Store) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.client.Exists(ctx, "auth:revoked:"+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("ошибка при проверке токена: %w", err)
	}
	return n > 0, nil
}

// SaveOAuthState запоминает state OAuth-запроса и провайдера
func (s *Store) SaveOAuthState(ctx context.Context, state, provider string) error {
	if err := s.client.Set(ctx, "auth:oauth_state:"+state, provider, oauthStateTTL).Err(); err != nil {
		return fmt.Errorf("ошибка при сохранении состояния OAuth: %w", err)
	}
	return nil
}

// ConsumeOAuthState возвращает провайдера для state и удаляет state.
// Пустая строка означает, что state неизвестен или истек.
func (s *Store) ConsumeOAuthState(ctx context.Context, state string) (string, error) {
	provider, err := s.client.GetDel(ctx, "auth:oauth_state:"+state).Result()
	if err == redis.Nil {
		return "", nil
	} else if err != nil {
		return "", fmt.Errorf("ошибка при получении состояния OAuth: %w", err)
	}
	return provider, nil
}

// GenerateCode случайный шестизначный код подтверждения
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("ошибка при генерации кода: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// SaveConfirmationCode сохраняет код подтверждения email
func (s *Store) SaveConfirmationCode(ctx context.Context, email, code string) error {
	key := "auth:confirm:" + strings.ToLower(email)
	if err := s.client.Set(ctx, key, code, confirmationCodeTTL).Err(); err != nil {
		return fmt.Errorf("ошибка при сохранении кода в Redis: %w", err)
	}
	s.client.Del(ctx, "auth:confirm:attempts:"+strings.ToLower(email))
	return nil
}

// VerifyConfirmationCode проверяет код, верный код удаляется.
// После MaxConfirmationAttempts промахов код удаляется тоже.
func (s *Store) VerifyConfirmationCode(ctx context.Context, email, code string) (bool, error) {
	email = strings.ToLower(email)
	key := "auth:confirm:" + email
	attemptsKey := "auth:confirm:attempts:" + email

	saved, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("ошибка при получении кода из Redis: %w", err)
	}

	if saved == code {
		s.client.Del(ctx, key, attemptsKey)
		return true, nil
	}

	attempts, err := s.client.Incr(ctx, attemptsKey).Result()
	if err != nil {
		return false, fmt.Errorf("ошибка при учете попыток подтверждения: %w", err)
	}
	if attempts == 1 {
		s.client.Expire(ctx, attemptsKey, confirmationCodeTTL)
	}
	if attempts >= MaxConfirmationAttempts {
		s.client.Del(ctx, key, attemptsKey)
	}
	return false, nil
}
