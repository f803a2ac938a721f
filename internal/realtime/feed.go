package realtime

import (
	"context"
	"strconv"
	"sync"

	"rideshare-backend/internal/logger"
	"rideshare-backend/internal/models"

	"github.com/sirupsen/logrus"
)

// RideLoader загружает актуальный список поездок
type RideLoader func(ctx context.Context) []models.Ride

// RideFeed держит список поездок актуальным: каждое событие по таблице rides
// вызывает полную перезагрузку списка.
type RideFeed struct {
	sub      *Subscription
	load     RideLoader
	onChange func([]models.Ride)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	closed    bool
	issued    uint64
	delivered uint64
}

// WatchRides подписывается на изменения поездок и сразу загружает текущий список.
// onChange вызывается последовательно и не должен вызывать Close.
func WatchRides(ctx context.Context, hub *Hub, filter Filter, load RideLoader, onChange func([]models.Ride)) *RideFeed {
	if filter.Table == "" {
		filter.Table = "rides"
	}
	ctx, cancel := context.WithCancel(ctx)

	f := &RideFeed{
		load:     load,
		onChange: onChange,
		ctx:      ctx,
		cancel:   cancel,
	}
	// Подписка раньше первой загрузки, чтобы не пропустить изменения между ними
	f.sub = hub.Subscribe(filter)

	f.refresh()

	f.wg.Add(1)
	go f.listen()

	return f
}

// WatchDriverRides то же, но только для поездок одного водителя
func WatchDriverRides(ctx context.Context, hub *Hub, driverID uint, load RideLoader, onChange func([]models.Ride)) *RideFeed {
	filter := Filter{
		Table:  "rides",
		Event:  EventAll,
		Column: "driver_id",
		Value:  strconv.FormatUint(uint64(driverID), 10),
	}
	return WatchRides(ctx, hub, filter, load, onChange)
}

func (f *RideFeed) listen() {
	defer f.wg.Done()
	for {
		select {
		case <-f.ctx.Done():
			return
		case ev, ok := <-f.sub.Events():
			if !ok {
				return
			}
			logger.Log.WithFields(logrus.Fields{
				"table": ev.Table,
				"event": ev.Event,
			}).Debug("Изменение поездок, перезагружаем список")
			f.refresh()
		}
	}
}

// refresh запускает загрузку. Загрузки могут пересекаться, результат
// доставляется только если он новее уже доставленного.
func (f *RideFeed) refresh() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.issued++
	gen := f.issued
	f.wg.Add(1)
	f.mu.Unlock()

	go func() {
		defer f.wg.Done()

		rides := f.load(f.ctx)

		f.mu.Lock()
		defer f.mu.Unlock()
		if f.closed || gen <= f.delivered {
			return
		}
		f.delivered = gen
		f.onChange(rides)
	}()
}

// Close отписывается от событий. После возврата onChange больше не вызывается.
func (f *RideFeed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.mu.Unlock()

	f.cancel()
	f.sub.Close()
	f.wg.Wait()
}

// MessageMarker отмечает сообщение прочитанным
type MessageMarker interface {
	MarkMessageRead(ctx context.Context, messageID uint) error
}

// MessageFeed доставляет новые сообщения одной переписки
type MessageFeed struct {
	sub       *Subscription
	viewerID  uint
	marker    MessageMarker
	onMessage func(models.Message)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// WatchMessages подписывается на новые сообщения переписки. Сообщение,
// адресованное viewerID, сразу отмечается прочитанным.
func WatchMessages(ctx context.Context, hub *Hub, conversationID, viewerID uint, marker MessageMarker, onMessage func(models.Message)) *MessageFeed {
	ctx, cancel := context.WithCancel(ctx)

	f := &MessageFeed{
		viewerID:  viewerID,
		marker:    marker,
		onMessage: onMessage,
		ctx:       ctx,
		cancel:    cancel,
	}
	f.sub = hub.Subscribe(Filter{
		Table:  "messages",
		Event:  EventInsert,
		Column: "conversation_id",
		Value:  strconv.FormatUint(uint64(conversationID), 10),
	})

	f.wg.Add(1)
	go f.listen()

	return f
}

func (f *MessageFeed) listen() {
	defer f.wg.Done()
	for {
		select {
		case <-f.ctx.Done():
			return
		case ev, ok := <-f.sub.Events():
			if !ok {
				return
			}
			f.handle(ev)
		}
	}
}

func (f *MessageFeed) handle(ev ChangeEvent) {
	var msg models.Message
	if err := ev.Decode(&msg); err != nil {
		logger.Log.WithError(err).Warn("Не удалось разобрать новое сообщение")
		return
	}

	if msg.ReceiverID == f.viewerID && !msg.Read && f.marker != nil {
		if err := f.marker.MarkMessageRead(f.ctx, msg.ID); err != nil {
			logger.Log.WithError(err).WithField("message_id", msg.ID).Warn("Не удалось отметить сообщение прочитанным")
		} else {
			msg.Read = true
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.onMessage(msg)
}

// Close отписывается от событий. После возврата onMessage больше не вызывается.
func (f *MessageFeed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.mu.Unlock()

	f.cancel()
	f.sub.Close()
	f.wg.Wait()
}
