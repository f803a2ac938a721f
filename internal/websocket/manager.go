// Package websocket доставляет клиентам события изменений и личные уведомления.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"rideshare-backend/internal/auth"
	"rideshare-backend/internal/logger"
	"rideshare-backend/internal/middleware"
	"rideshare-backend/internal/models"
	"rideshare-backend/internal/realtime"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Типы сообщений сервера
const (
	TypePostgresChanges     = "postgres_changes"
	TypeRides               = "rides"
	TypeMessage             = "message"
	TypeAuthState           = "auth_state"
	TypeBookingStatusUpdate = "BOOKING_STATUS_UPDATE"
	TypeNewMessage          = "NEW_MESSAGE"
	TypeSubscribed          = "subscribed"
	TypeUnsubscribed        = "unsubscribed"
	TypePong                = "pong"
	TypeError               = "error"
)

// Message формат сообщения WebSocket
type Message struct {
	Type    string      `json:"type"`
	Topic   string      `json:"topic,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// RideSource источник списков поездок для подписок на ленту
type RideSource interface {
	List(ctx context.Context, session *models.Identity) []models.Ride
	ListByDriver(ctx context.Context, session *models.Identity, driverID uint) []models.Ride
}

// ConversationAccess проверка участия в переписке и отметка прочтения
type ConversationAccess interface {
	realtime.MessageMarker
	IsParticipant(ctx context.Context, conversationID, userID uint) (bool, error)
}

// Manager управляет подключениями WebSocket
type Manager struct {
	hub           *realtime.Hub
	auth          *auth.Service
	rides         RideSource
	conversations ConversationAccess
	upgrader      websocket.Upgrader

	clientsByUser map[uint]map[*Client]bool
	register      chan *Client
	unregister    chan *Client
	mutex         sync.RWMutex

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewManager(hub *realtime.Hub, authService *auth.Service, rides RideSource, conversations ConversationAccess) *Manager {
	return &Manager{
		hub:           hub,
		auth:          authService,
		rides:         rides,
		conversations: conversations,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clientsByUser: make(map[uint]map[*Client]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		done:          make(chan struct{}),
	}
}

// Start запускает цикл регистрации клиентов
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.run()
	logger.Log.Info("WebSocket Manager запущен")
}

// Stop закрывает все подключения
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
	})
	m.wg.Wait()
}

func (m *Manager) run() {
	defer m.wg.Done()
	for {
		select {
		case client := <-m.register:
			m.mutex.Lock()
			if _, ok := m.clientsByUser[client.userID]; !ok {
				m.clientsByUser[client.userID] = make(map[*Client]bool)
			}
			m.clientsByUser[client.userID][client] = true
			m.mutex.Unlock()
			logger.Log.WithFields(logrus.Fields{"client_id": client.id, "user_id": client.userID}).Debug("Клиент зарегистрирован")

		case client := <-m.unregister:
			m.remove(client)

		case <-m.done:
			m.mutex.Lock()
			var all []*Client
			for _, clients := range m.clientsByUser {
				for client := range clients {
					all = append(all, client)
				}
			}
			m.clientsByUser = make(map[uint]map[*Client]bool)
			m.mutex.Unlock()

			for _, client := range all {
				client.close()
			}
			return
		}
	}
}

func (m *Manager) remove(client *Client) {
	m.mutex.Lock()
	if clients, ok := m.clientsByUser[client.userID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(m.clientsByUser, client.userID)
		}
	}
	m.mutex.Unlock()
	logger.Log.WithFields(logrus.Fields{"client_id": client.id, "user_id": client.userID}).Debug("Клиент отключен")
}

// Connected количество подключений пользователя
func (m *Manager) Connected(userID uint) int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.clientsByUser[userID])
}

// BroadcastToUser отправляет сообщение всем подключениям пользователя
func (m *Manager) BroadcastToUser(userID uint, message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		logger.Log.WithError(err).Error("BroadcastToUser: ошибка при кодировании сообщения")
		return
	}

	m.mutex.RLock()
	clients := make([]*Client, 0, len(m.clientsByUser[userID]))
	for client := range m.clientsByUser[userID] {
		clients = append(clients, client)
	}
	m.mutex.RUnlock()

	for _, client := range clients {
		client.enqueue(data)
	}
}

// SendBookingStatusUpdate отправляет обновление статуса бронирования
func (m *Manager) SendBookingStatusUpdate(userID, bookingID uint, status models.BookingStatus) {
	m.BroadcastToUser(userID, &Message{
		Type: TypeBookingStatusUpdate,
		Payload: gin.H{
			"booking_id": bookingID,
			"status":     status,
		},
	})
}

// SendNewMessage уведомляет получателя о новом сообщении
func (m *Manager) SendNewMessage(userID uint, message *models.Message) {
	m.BroadcastToUser(userID, &Message{Type: TypeNewMessage, Payload: message})
}

// Handler принимает подключение. Токен берется из заголовка Authorization
// или параметра token.
func (m *Manager) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := middleware.BearerToken(c)
		if !ok {
			token = c.Query("token")
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Отсутствует токен авторизации"})
			return
		}

		provider := auth.NewProvider(m.auth)
		provider.Start(c.Request.Context(), token)
		identity := provider.Identity()
		if identity == nil {
			provider.Close()
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Недействительный токен"})
			return
		}

		conn, err := m.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			provider.Close()
			logger.Log.WithError(err).Warn("Ошибка обновления соединения до WebSocket")
			return
		}

		client := newClient(m, conn, identity, provider)

		select {
		case m.register <- client:
		case <-m.done:
			client.close()
			return
		}

		client.run()
	}
}
