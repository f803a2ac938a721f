// Package notification отправляет push-уведомления через Firebase Cloud Messaging.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const DefaultFCMURL = "https://fcm.googleapis.com/fcm/send"

type PushService struct {
	serverKey  string
	url        string
	httpClient *http.Client
}

type FCMPayload struct {
	To           string            `json:"to"`
	Data         map[string]string `json:"data,omitempty"`
	Notification struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	} `json:"notification"`
}

// NewPushService создает сервис. Пустой url означает стандартный адрес FCM.
func NewPushService(serverKey, url string) *PushService {
	if url == "" {
		url = DefaultFCMURL
	}
	return &PushService{
		serverKey:  serverKey,
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled false, если ключ Firebase не настроен
func (s *PushService) Enabled() bool {
	return s != nil && s.serverKey != ""
}

func (s *PushService) Send(ctx context.Context, token, title, body string, data map[string]string) error {
	if !s.Enabled() || token == "" {
		return nil
	}

	payload := FCMPayload{
		To:   token,
		Data: data,
	}
	payload.Notification.Title = title
	payload.Notification.Body = body

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ошибка при маршалинге данных: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("ошибка при создании запроса: %w", err)
	}

	req.Header.Set("Authorization", "key="+s.serverKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ошибка при отправке уведомления: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("FCM вернул статус %d", resp.StatusCode)
	}

	return nil
}
