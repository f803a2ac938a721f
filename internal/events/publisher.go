// Package events публикует доменные события в RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"rideshare-backend/internal/logger"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	QueueBookingCreated = "booking.created"
	QueueMessageSent    = "message.sent"
)

// BookingCreated событие о новом бронировании
type BookingCreated struct {
	BookingID   uint      `json:"booking_id"`
	RideID      uint      `json:"ride_id"`
	DriverID    uint      `json:"driver_id"`
	PassengerID uint      `json:"passenger_id"`
	BookingType string    `json:"booking_type"`
	SeatsBooked int       `json:"seats_booked"`
	CreatedAt   time.Time `json:"created_at"`
}

// MessageSent событие о новом сообщении
type MessageSent struct {
	MessageID      uint      `json:"message_id"`
	ConversationID uint      `json:"conversation_id"`
	SenderID       uint      `json:"sender_id"`
	ReceiverID     uint      `json:"receiver_id"`
	Timestamp      time.Time `json:"timestamp"`
}

// Publisher публикует события в постоянные очереди. Нулевой *Publisher
// ничего не делает, так сервис работает без RabbitMQ.
type Publisher struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	mu   sync.Mutex
}

// NewPublisher подключается к RabbitMQ и объявляет очереди
func NewPublisher(url string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ошибка открытия канала RabbitMQ: %w", err)
	}

	for _, queue := range []string{QueueBookingCreated, QueueMessageSent} {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("ошибка объявления очереди %s: %w", queue, err)
		}
	}

	return &Publisher{conn: conn, ch: ch}, nil
}

func (p *Publisher) publishJSON(ctx context.Context, queue string, payload interface{}) error {
	if p == nil {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ошибка при сериализации события: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// Канал amqp не потокобезопасен для публикации
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

func (p *Publisher) publish(ctx context.Context, queue string, payload interface{}) {
	if err := p.publishJSON(ctx, queue, payload); err != nil {
		logger.Log.WithError(err).WithFields(logrus.Fields{"queue": queue}).Warn("Не удалось опубликовать событие")
	}
}

func (p *Publisher) BookingCreated(ctx context.Context, ev BookingCreated) {
	p.publish(ctx, QueueBookingCreated, ev)
}

func (p *Publisher) MessageSent(ctx context.Context, ev MessageSent) {
	p.publish(ctx, QueueMessageSent, ev)
}

// Close закрывает канал и соединение
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
