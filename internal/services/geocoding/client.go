package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"rideshare-backend/internal/logger"
	"rideshare-backend/internal/metrics"

	"github.com/sirupsen/logrus"
)

const (
	DefaultBaseURL = "https://nominatim.openstreetmap.org"

	// Центр города, который отдается при недоступности геокодера
	DefaultLat = 55.7558
	DefaultLng = 37.6173
)

// ErrDailyLimit превышен дневной лимит запросов к геокодеру
var ErrDailyLimit = errors.New("превышен дневной лимит запросов к геокодеру")

// Source показывает, откуда взяты координаты
type Source string

const (
	SourceGeocoder  Source = "geocoder"  // Ответ геокодера
	SourceSynthetic Source = "synthetic" // Адрес не найден, точка вычислена из строки
	SourceDefault   Source = "default"   // Геокодер недоступен, центр города
)

type Coordinates struct {
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Source Source  `json:"source"`
}

// IsFallback true для координат, которые не пришли от геокодера
func (c *Coordinates) IsFallback() bool {
	return c != nil && c.Source != SourceGeocoder
}

// Address детали адреса из ответа геокодера
type Address struct {
	Road        string `json:"road,omitempty"`
	HouseNumber string `json:"house_number,omitempty"`
	Suburb      string `json:"suburb,omitempty"`
	City        string `json:"city,omitempty"`
	Town        string `json:"town,omitempty"`
	Village     string `json:"village,omitempty"`
	County      string `json:"county,omitempty"`
	State       string `json:"state,omitempty"`
	Country     string `json:"country,omitempty"`
	Postcode    string `json:"postcode,omitempty"`
}

// Locality город, поселок или деревня, что из них известно
func (a Address) Locality() string {
	switch {
	case a.City != "":
		return a.City
	case a.Town != "":
		return a.Town
	default:
		return a.Village
	}
}

// Place найденный адрес для подсказок
type Place struct {
	DisplayName string  `json:"display_name"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Address     Address `json:"address"`
}

// searchItem элемент ответа /search
type searchItem struct {
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	DisplayName string  `json:"display_name"`
	Address     Address `json:"address"`
}

type Options struct {
	BaseURL      string
	UserAgent    string
	HTTPClient   *http.Client
	Cache        *Cache
	RateInterval time.Duration
	DailyLimit   int
}

// Client клиент публичного геокодера (Nominatim)
type Client struct {
	baseURL       string
	userAgent     string
	httpClient    *http.Client
	cache         *Cache
	rateLimiter   *time.Ticker
	requestsMutex sync.Mutex
	requestsCount int
	requestsLimit int
	resetTime     time.Time
}

// NewClient создает клиент геокодера
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "rideshare-backend/1.0"
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	// Политика Nominatim: не чаще одного запроса в секунду
	if opts.RateInterval <= 0 {
		opts.RateInterval = time.Second
	}
	if opts.DailyLimit <= 0 {
		opts.DailyLimit = 5000
	}

	return &Client{
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		userAgent:     opts.UserAgent,
		httpClient:    opts.HTTPClient,
		cache:         opts.Cache,
		rateLimiter:   time.NewTicker(opts.RateInterval),
		requestsLimit: opts.DailyLimit,
		resetTime:     time.Now().Add(24 * time.Hour),
	}
}

// checkRateLimit проверяет лимит запросов и ожидает, если необходимо
func (c *Client) checkRateLimit(ctx context.Context) error {
	c.requestsMutex.Lock()
	defer c.requestsMutex.Unlock()

	if time.Now().After(c.resetTime) {
		c.requestsCount = 0
		c.resetTime = time.Now().Add(24 * time.Hour)
	}

	if c.requestsCount >= c.requestsLimit {
		return fmt.Errorf("%w (%d)", ErrDailyLimit, c.requestsLimit)
	}

	select {
	case <-c.rateLimiter.C:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.requestsCount++
	return nil
}

// Geocode возвращает координаты адреса. Для пустого адреса nil,
// для любого другого всегда точка, при необходимости запасная.
func (c *Client) Geocode(ctx context.Context, address string) *Coordinates {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil
	}

	log := logger.Log.WithField("address", address)

	cacheKey := c.cache.GeocodeKey(address)
	var cached Coordinates
	found, err := c.cache.Get(ctx, cacheKey, &cached)
	if err != nil {
		log.WithError(err).Warn("Ошибка при получении координат из кэша")
	} else if found {
		metrics.TrackGeocoderRequest("search", "ok", true, 0)
		return &cached
	}

	items, err := c.search(ctx, address, 1)
	if err != nil {
		log.WithError(err).Warn("Геокодер недоступен, используем центр города")
		metrics.GeocoderFallbacksTotal.WithLabelValues(string(SourceDefault)).Inc()
		return &Coordinates{Lat: DefaultLat, Lng: DefaultLng, Source: SourceDefault}
	}

	if len(items) == 0 {
		log.Debug("Адрес не найден, вычисляем синтетические координаты")
		metrics.GeocoderFallbacksTotal.WithLabelValues(string(SourceSynthetic)).Inc()
		return Synthetic(address)
	}

	lat, latErr := strconv.ParseFloat(items[0].Lat, 64)
	lng, lngErr := strconv.ParseFloat(items[0].Lon, 64)
	if latErr != nil || lngErr != nil {
		log.WithFields(logrus.Fields{"lat": items[0].Lat, "lon": items[0].Lon}).
			Warn("Геокодер вернул некорректные координаты, используем центр города")
		metrics.GeocoderFallbacksTotal.WithLabelValues(string(SourceDefault)).Inc()
		return &Coordinates{Lat: DefaultLat, Lng: DefaultLng, Source: SourceDefault}
	}

	coords := &Coordinates{Lat: lat, Lng: lng, Source: SourceGeocoder}
	if err := c.cache.Set(ctx, cacheKey, coords); err != nil {
		log.WithError(err).Warn("Ошибка при сохранении координат в кэш")
	}

	return coords
}

// Synthetic детерминированная точка для ненайденного адреса.
// Сумма кодов символов задает смещение внутри полосы 55-60 / 37-42.
func Synthetic(address string) *Coordinates {
	sum := 0
	for _, r := range address {
		sum += int(r)
	}
	return &Coordinates{
		Lat:    55.0 + float64(sum%1000)/1000*5,
		Lng:    37.0 + float64(sum%777)/777*5,
		Source: SourceSynthetic,
	}
}

// Search ищет адреса для подсказок
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Place{}, nil
	}
	if limit <= 0 || limit > 20 {
		limit = 5
	}

	cacheKey := c.cache.SearchKey(query, limit)
	var places []Place
	found, err := c.cache.Get(ctx, cacheKey, &places)
	if err != nil {
		logger.Log.WithError(err).Warn("Ошибка при получении подсказок из кэша")
	} else if found {
		metrics.TrackGeocoderRequest("search", "ok", true, 0)
		return places, nil
	}

	items, err := c.search(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	places = make([]Place, 0, len(items))
	for _, item := range items {
		lat, latErr := strconv.ParseFloat(item.Lat, 64)
		lng, lngErr := strconv.ParseFloat(item.Lon, 64)
		if latErr != nil || lngErr != nil {
			continue
		}
		places = append(places, Place{
			DisplayName: item.DisplayName,
			Lat:         lat,
			Lng:         lng,
			Address:     item.Address,
		})
	}

	if err := c.cache.Set(ctx, cacheKey, places); err != nil {
		logger.Log.WithError(err).Warn("Ошибка при сохранении подсказок в кэш")
	}

	return places, nil
}

func (c *Client) search(ctx context.Context, query string, limit int) ([]searchItem, error) {
	if err := c.checkRateLimit(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Add("format", "json")
	params.Add("q", query)
	params.Add("limit", strconv.Itoa(limit))
	params.Add("addressdetails", "1")

	reqURL := fmt.Sprintf("%s/search?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка при создании запроса: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.TrackGeocoderRequest("search", "error", false, time.Since(start))
		return nil, fmt.Errorf("ошибка при выполнении запроса: %w", err)
	}
	defer resp.Body.Close()

	metrics.TrackGeocoderRequest("search", strconv.Itoa(resp.StatusCode), false, time.Since(start))

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("неверный статус ответа: %d", resp.StatusCode)
	}

	var items []searchItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("ошибка при декодировании ответа: %w", err)
	}

	return items, nil
}

// Close закрывает ресурсы клиента
func (c *Client) Close() {
	c.rateLimiter.Stop()
}
