package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"rideshare-backend/internal/logger"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const (
	defaultRetryDelay = 500 * time.Millisecond
	maxRetryDelay     = 30 * time.Second
)

// RedisBus пересылает события через Redis pub/sub, чтобы их видели все экземпляры сервиса
type RedisBus struct {
	client  *redis.Client
	channel string
	hub     *Hub

	ready      chan struct{}
	readyOnce  sync.Once
	retryDelay time.Duration
}

func NewRedisBus(client *redis.Client, channel string, hub *Hub) *RedisBus {
	if channel == "" {
		channel = "realtime:changes"
	}
	return &RedisBus{
		client:  client,
		channel: channel,
		hub:     hub,

		ready:      make(chan struct{}),
		retryDelay: defaultRetryDelay,
	}
}

// Publish отправляет событие в канал Redis
func (b *RedisBus) Publish(ctx context.Context, ev ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("ошибка при сериализации события: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("ошибка при публикации события в Redis: %w", err)
	}
	return nil
}

// Ready закрывается, когда подписка на канал Redis подтверждена впервые
func (b *RedisBus) Ready() <-chan struct{} {
	return b.ready
}

// Run читает канал Redis и передает события в хаб до отмены контекста.
// Если подписаться не удалось, повторяет попытки с растущей паузой.
func (b *RedisBus) Run(ctx context.Context) error {
	delay := b.retryDelay
	for {
		subscribed, err := b.listen(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if subscribed {
			if err != nil {
				return err
			}
			delay = b.retryDelay
			continue
		}

		logger.Log.WithError(err).WithFields(logrus.Fields{
			"channel": b.channel,
			"retry":   delay.String(),
		}).Warn("Не удалось подписаться на канал событий Redis")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
}

// listen держит одну подписку. subscribed сообщает, была ли подписка подтверждена.
func (b *RedisBus) listen(ctx context.Context) (subscribed bool, err error) {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return false, fmt.Errorf("ошибка подписки на канал %s: %w", b.channel, err)
	}
	b.readyOnce.Do(func() { close(b.ready) })
	logger.Log.WithField("channel", b.channel).Info("Подписка на канал событий Redis установлена")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return true, nil
		case msg, ok := <-ch:
			if !ok {
				return true, nil
			}
			ev, err := DecodeEvent([]byte(msg.Payload))
			if err != nil {
				logger.Log.WithError(err).Warn("Получено некорректное событие из Redis")
				continue
			}
			if err := b.hub.Publish(ctx, ev); err != nil {
				if ctx.Err() != nil {
					return true, nil
				}
				return true, err
			}
		}
	}
}
