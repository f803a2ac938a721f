package handlers

import (
	"context"

	"rideshare-backend/internal/models"
)

// BookingNotifier уведомления участников бронирования
type BookingNotifier interface {
	BookingCreated(ctx context.Context, booking *models.Booking, ride *models.Ride)
	BookingCancelled(ctx context.Context, booking *models.Booking, ride *models.Ride)
}

// MessageNotifier уведомление получателя сообщения
type MessageNotifier interface {
	MessageSent(ctx context.Context, message *models.Message, senderName string)
}
