// Package realtime доставляет изменения строк подписчикам: внутри процесса
// через Hub и между экземплярами сервиса через Redis.
package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"rideshare-backend/internal/logger"
	"rideshare-backend/internal/metrics"

	"github.com/sirupsen/logrus"
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
	EventAll    EventType = "*"
)

// ParseEventType разбирает тип события, пустая строка означает любые события
func ParseEventType(s string) (EventType, error) {
	switch EventType(strings.ToUpper(strings.TrimSpace(s))) {
	case "", EventAll:
		return EventAll, nil
	case EventInsert:
		return EventInsert, nil
	case EventUpdate:
		return EventUpdate, nil
	case EventDelete:
		return EventDelete, nil
	}
	return "", fmt.Errorf("неизвестный тип события: %q", s)
}

// ChangeEvent изменение одной строки таблицы
type ChangeEvent struct {
	Event           EventType              `json:"event"`
	Schema          string                 `json:"schema"`
	Table           string                 `json:"table"`
	Record          map[string]interface{} `json:"record,omitempty"`
	OldRecord       map[string]interface{} `json:"old_record,omitempty"`
	CommitTimestamp time.Time              `json:"commit_timestamp"`
}

// NewChangeEvent собирает событие из моделей новой и старой строки (любая может быть nil)
func NewChangeEvent(event EventType, table string, record, old interface{}) (ChangeEvent, error) {
	ev := ChangeEvent{
		Event:           event,
		Schema:          "public",
		Table:           table,
		CommitTimestamp: time.Now().UTC(),
	}

	var err error
	if record != nil {
		if ev.Record, err = toRow(record); err != nil {
			return ev, err
		}
	}
	if old != nil {
		if ev.OldRecord, err = toRow(old); err != nil {
			return ev, err
		}
	}
	return ev, nil
}

// Row строка, по которой фильтруется событие: для DELETE это старая строка
func (e ChangeEvent) Row() map[string]interface{} {
	if e.Event == EventDelete {
		return e.OldRecord
	}
	return e.Record
}

// Decode переносит новую строку события в модель
func (e ChangeEvent) Decode(dst interface{}) error {
	data, err := json.Marshal(e.Record)
	if err != nil {
		return fmt.Errorf("ошибка при сериализации записи: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("ошибка при разборе записи %s: %w", e.Table, err)
	}
	return nil
}

// DecodeEvent разбирает событие из JSON, числа остаются json.Number
func DecodeEvent(data []byte) (ChangeEvent, error) {
	var ev ChangeEvent
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&ev); err != nil {
		return ev, fmt.Errorf("ошибка при разборе события: %w", err)
	}
	return ev, nil
}

func toRow(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("ошибка при сериализации записи: %w", err)
	}
	row := make(map[string]interface{})
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&row); err != nil {
		return nil, fmt.Errorf("ошибка при разборе записи: %w", err)
	}
	return row, nil
}

// Publisher принимает события изменений
type Publisher interface {
	Publish(ctx context.Context, ev ChangeEvent) error
}

// Notify публикует событие, ошибки только логируются
func Notify(ctx context.Context, pub Publisher, event EventType, table string, record, old interface{}) {
	if pub == nil {
		return
	}

	log := logger.Log.WithFields(logrus.Fields{"table": table, "event": event})

	ev, err := NewChangeEvent(event, table, record, old)
	if err != nil {
		log.WithError(err).Warn("Не удалось сформировать событие изменения")
		return
	}
	if err := pub.Publish(ctx, ev); err != nil {
		log.WithError(err).Warn("Не удалось опубликовать событие изменения")
		return
	}
	metrics.RealtimeEventsTotal.WithLabelValues(table, string(event)).Inc()
}
