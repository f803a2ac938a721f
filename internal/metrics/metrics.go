package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal - общее количество запросов
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Общее количество HTTP запросов",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration - длительность запросов
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Длительность HTTP запросов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// RequestsInFlight - количество запросов в обработке
	RequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Текущее количество запросов в обработке",
		},
	)

	// GeocoderRequestsTotal - запросы к геокодеру
	GeocoderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocoder_requests_total",
			Help: "Общее количество запросов к геокодеру",
		},
		[]string{"endpoint", "status", "cached"},
	)

	// GeocoderRequestDuration - длительность запросов к геокодеру
	GeocoderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geocoder_request_duration_seconds",
			Help:    "Длительность запросов к геокодеру в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "cached"},
	)

	// GeocoderFallbacksTotal - сколько раз вместо реального ответа отданы запасные координаты
	GeocoderFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocoder_fallbacks_total",
			Help: "Количество запасных координат, выданных геокодером",
		},
		[]string{"source"},
	)

	// RealtimeEventsTotal - опубликованные события изменений
	RealtimeEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_events_total",
			Help: "Количество событий изменений по таблицам",
		},
		[]string{"table", "event"},
	)

	// RealtimeDroppedTotal - события, не доставленные медленным подписчикам
	RealtimeDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_dropped_events_total",
			Help: "Количество событий, отброшенных из-за переполнения буфера подписчика",
		},
	)
)

// TrackGeocoderRequest отслеживает запрос к геокодеру
func TrackGeocoderRequest(endpoint string, status string, cached bool, duration time.Duration) {
	cachedStr := strconv.FormatBool(cached)
	GeocoderRequestsTotal.WithLabelValues(endpoint, status, cachedStr).Inc()
	GeocoderRequestDuration.WithLabelValues(endpoint, cachedStr).Observe(duration.Seconds())
}
