package realtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"rideshare-backend/internal/logger"
	"rideshare-backend/internal/metrics"

	"github.com/sirupsen/logrus"
)

// ErrHubStopped хаб остановлен и больше не принимает события
var ErrHubStopped = errors.New("хаб событий остановлен")

const defaultBufferSize = 64

// Subscription подписка на события, подходящие под фильтр
type Subscription struct {
	id     uint64
	filter Filter
	events chan ChangeEvent
	hub    *Hub
}

func (s *Subscription) ID() uint64 { return s.id }

func (s *Subscription) Filter() Filter { return s.filter }

// Events канал событий. Закрывается после отписки или остановки хаба.
func (s *Subscription) Events() <-chan ChangeEvent { return s.events }

// Close отписывает подписку от хаба
func (s *Subscription) Close() {
	s.hub.Unsubscribe(s)
}

// Hub раздает события подписчикам внутри процесса.
// Все изменения списка подписок и рассылка идут через один цикл.
type Hub struct {
	subscriptions map[*Subscription]bool
	register      chan *Subscription
	unregister    chan *Subscription
	broadcast     chan ChangeEvent
	done          chan struct{}
	stopOnce      sync.Once
	startOnce     sync.Once
	nextID        uint64
	bufferSize    int
}

// NewHub создает хаб. bufferSize - размер очереди каждого подписчика.
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Hub{
		subscriptions: make(map[*Subscription]bool),
		register:      make(chan *Subscription),
		unregister:    make(chan *Subscription),
		broadcast:     make(chan ChangeEvent),
		done:          make(chan struct{}),
		bufferSize:    bufferSize,
	}
}

// Start запускает цикл обработки хаба
func (h *Hub) Start() {
	h.startOnce.Do(func() {
		logger.Log.Info("Запуск хаба событий")
		go h.run()
	})
}

// Stop останавливает хаб и закрывает каналы всех подписчиков
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}

func (h *Hub) run() {
	for {
		select {
		case sub := <-h.register:
			h.subscriptions[sub] = true
			logger.Log.WithFields(logrus.Fields{
				"subscription": sub.id,
				"filter":       sub.filter.String(),
			}).Debug("Регистрация подписки")

		case sub := <-h.unregister:
			if _, ok := h.subscriptions[sub]; ok {
				delete(h.subscriptions, sub)
				close(sub.events)
				logger.Log.WithField("subscription", sub.id).Debug("Подписка удалена")
			}

		case ev := <-h.broadcast:
			for sub := range h.subscriptions {
				if !sub.filter.Matches(ev) {
					continue
				}
				select {
				case sub.events <- ev:
				default:
					metrics.RealtimeDroppedTotal.Inc()
					logger.Log.WithFields(logrus.Fields{
						"subscription": sub.id,
						"table":        ev.Table,
						"event":        ev.Event,
					}).Warn("Очередь подписчика переполнена, событие отброшено")
				}
			}

		case <-h.done:
			for sub := range h.subscriptions {
				close(sub.events)
			}
			h.subscriptions = nil
			logger.Log.Info("Хаб событий остановлен")
			return
		}
	}
}

// Subscribe регистрирует подписку. После возврата подписка уже получает события.
func (h *Hub) Subscribe(filter Filter) *Subscription {
	sub := &Subscription{
		id:     atomic.AddUint64(&h.nextID, 1),
		filter: filter,
		events: make(chan ChangeEvent, h.bufferSize),
		hub:    h,
	}

	select {
	case h.register <- sub:
	case <-h.done:
		close(sub.events)
	}
	return sub
}

// Unsubscribe удаляет подписку, повторный вызов ничего не делает
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	select {
	case h.unregister <- sub:
	case <-h.done:
	}
}

// Publish рассылает событие подписчикам этого процесса
func (h *Hub) Publish(ctx context.Context, ev ChangeEvent) error {
	select {
	case h.broadcast <- ev:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
