package notification

import (
	"context"
	"strconv"
	"time"

	"rideshare-backend/internal/events"
	"rideshare-backend/internal/logger"
	"rideshare-backend/internal/models"

	"github.com/sirupsen/logrus"
)

// Realtime личные уведомления по WebSocket
type Realtime interface {
	SendBookingStatusUpdate(userID, bookingID uint, status models.BookingStatus)
	SendNewMessage(userID uint, message *models.Message)
}

// TokenSource FCM токены пользователей
type TokenSource interface {
	FCMToken(ctx context.Context, userID uint) (string, error)
}

// Notifier рассылает уведомления о бронированиях и сообщениях по всем каналам.
// Ошибки каналов только логируются.
type Notifier struct {
	realtime Realtime
	push     *PushService
	tokens   TokenSource
	events   *events.Publisher
}

func NewNotifier(realtime Realtime, push *PushService, tokens TokenSource, publisher *events.Publisher) *Notifier {
	return &Notifier{realtime: realtime, push: push, tokens: tokens, events: publisher}
}

// BookingCreated уведомляет водителя и пассажира о новом бронировании
func (n *Notifier) BookingCreated(ctx context.Context, booking *models.Booking, ride *models.Ride) {
	n.bookingStatus(ctx, booking, ride)

	n.events.BookingCreated(ctx, events.BookingCreated{
		BookingID:   booking.ID,
		RideID:      ride.ID,
		DriverID:    ride.DriverID,
		PassengerID: booking.PassengerID,
		BookingType: string(booking.BookingType),
		SeatsBooked: booking.SeatsBooked,
		CreatedAt:   booking.CreatedAt,
	})

	n.sendPush(ctx, ride.DriverID, "Новое бронирование",
		ride.PickupPoint+" → "+ride.Destination, map[string]string{
			"type":       "booking_created",
			"booking_id": strconv.FormatUint(uint64(booking.ID), 10),
			"ride_id":    strconv.FormatUint(uint64(ride.ID), 10),
		})
}

// BookingCancelled уведомляет об отмене бронирования
func (n *Notifier) BookingCancelled(ctx context.Context, booking *models.Booking, ride *models.Ride) {
	n.bookingStatus(ctx, booking, ride)

	n.sendPush(ctx, ride.DriverID, "Бронирование отменено",
		ride.PickupPoint+" → "+ride.Destination, map[string]string{
			"type":       "booking_cancelled",
			"booking_id": strconv.FormatUint(uint64(booking.ID), 10),
			"ride_id":    strconv.FormatUint(uint64(ride.ID), 10),
		})
}

func (n *Notifier) bookingStatus(ctx context.Context, booking *models.Booking, ride *models.Ride) {
	logger.Log.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"status":     booking.Status,
	}).Info("Отправка уведомления о бронировании")

	if n.realtime == nil {
		return
	}
	n.realtime.SendBookingStatusUpdate(booking.PassengerID, booking.ID, booking.Status)
	if ride.DriverID != booking.PassengerID {
		n.realtime.SendBookingStatusUpdate(ride.DriverID, booking.ID, booking.Status)
	}
}

// MessageSent уведомляет получателя о новом сообщении
func (n *Notifier) MessageSent(ctx context.Context, message *models.Message, senderName string) {
	if n.realtime != nil {
		n.realtime.SendNewMessage(message.ReceiverID, message)
	}

	n.events.MessageSent(ctx, events.MessageSent{
		MessageID:      message.ID,
		ConversationID: message.ConversationID,
		SenderID:       message.SenderID,
		ReceiverID:     message.ReceiverID,
		Timestamp:      message.Timestamp,
	})

	n.sendPush(ctx, message.ReceiverID, senderName, message.Text, map[string]string{
		"type":            "new_message",
		"conversation_id": strconv.FormatUint(uint64(message.ConversationID), 10),
	})
}

func (n *Notifier) sendPush(ctx context.Context, userID uint, title, body string, data map[string]string) {
	if !n.push.Enabled() || n.tokens == nil {
		return
	}

	log := logger.Log.WithField("user_id", userID)

	token, err := n.tokens.FCMToken(ctx, userID)
	if err != nil {
		log.WithError(err).Warn("Не удалось получить FCM токен")
		return
	}
	if token == "" {
		return
	}

	// Запрос живет дольше HTTP запроса клиента
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	go func() {
		defer cancel()
		if err := n.push.Send(pushCtx, token, title, body, data); err != nil {
			log.WithError(err).Warn("Ошибка при отправке push-уведомления")
		}
	}()
}
