package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache кэширует ответы геокодера в Redis в виде JSON
type Cache struct {
	redisClient *redis.Client
	ttl         time.Duration
	enabled     bool
}

// NewCache создает кэш. Без клиента Redis кэш выключен.
func NewCache(client *redis.Client, ttl time.Duration, enabled bool) *Cache {
	if client == nil || !enabled {
		return &Cache{enabled: false}
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{
		redisClient: client,
		ttl:         ttl,
		enabled:     true,
	}
}

// Get получает данные из кэша
func (c *Cache) Get(ctx context.Context, key string, result interface{}) (bool, error) {
	if c == nil || !c.enabled {
		return false, nil
	}

	val, err := c.redisClient.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("ошибка при получении данных из кэша: %w", err)
	}

	if err := json.Unmarshal([]byte(val), result); err != nil {
		return false, fmt.Errorf("ошибка при десериализации данных из кэша: %w", err)
	}

	return true, nil
}

// Set сохраняет данные в кэш
func (c *Cache) Set(ctx context.Context, key string, value interface{}) error {
	if c == nil || !c.enabled {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("ошибка при сериализации данных для кэша: %w", err)
	}

	if err := c.redisClient.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("ошибка при сохранении данных в кэш: %w", err)
	}

	return nil
}

// GeocodeKey ключ кэша для координат адреса
func (c *Cache) GeocodeKey(address string) string {
	return fmt.Sprintf("geocoding:point:%s", normalizeKey(address))
}

// SearchKey ключ кэша для подсказок адресов
func (c *Cache) SearchKey(query string, limit int) string {
	return fmt.Sprintf("geocoding:search:%d:%s", limit, normalizeKey(query))
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
