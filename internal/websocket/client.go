package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"rideshare-backend/internal/auth"
	"rideshare-backend/internal/logger"
	"rideshare-backend/internal/metrics"
	"rideshare-backend/internal/models"
	"rideshare-backend/internal/realtime"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBufferSize = 64
)

// Типы сообщений клиента
const (
	requestPing          = "ping"
	requestSubscribe     = "subscribe"
	requestUnsubscribe   = "unsubscribe"
	requestWatchRides    = "watch_rides"
	requestWatchMessages = "watch_messages"
	requestLogout        = "logout"
)

type request struct {
	Type           string `json:"type"`
	Topic          string `json:"topic"`
	Table          string `json:"table"`
	Event          string `json:"event"`
	Filter         string `json:"filter"`
	DriverID       uint   `json:"driver_id"`
	ConversationID uint   `json:"conversation_id"`
}

// Client одно подключение пользователя
type Client struct {
	id       string
	userID   uint
	identity *models.Identity
	conn     *websocket.Conn
	manager  *Manager
	provider *auth.Provider

	send chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	topics map[string]func()

	closeOnce sync.Once
}

func newClient(m *Manager, conn *websocket.Conn, identity *models.Identity, provider *auth.Provider) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		id:       uuid.NewString(),
		userID:   identity.UserID,
		identity: identity,
		conn:     conn,
		manager:  m,
		provider: provider,
		send:     make(chan []byte, sendBufferSize),
		ctx:      ctx,
		cancel:   cancel,
		topics:   make(map[string]func()),
	}
}

func (c *Client) log() *logrus.Entry {
	return logger.Log.WithFields(logrus.Fields{"client_id": c.id, "user_id": c.userID})
}

// run обслуживает подключение до его закрытия
func (c *Client) run() {
	stopAuth := c.provider.OnChange(func(user *models.UserResponse) {
		if user == nil {
			c.sendJSON(&Message{Type: TypeAuthState, Payload: map[string]interface{}{"event": auth.EventSignedOut}})
			// Даем писателю отправить последнее сообщение
			go func() {
				time.Sleep(100 * time.Millisecond)
				c.close()
			}()
			return
		}
		c.sendJSON(&Message{Type: TypeAuthState, Payload: map[string]interface{}{"event": auth.EventUserUpdated, "user": user}})
	})

	c.sendJSON(&Message{Type: TypeAuthState, Payload: map[string]interface{}{"event": auth.EventSignedIn, "user": c.provider.CurrentUser()}})

	go c.writePump()
	c.readPump()

	stopAuth()
	c.close()
}

func (c *Client) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log().WithError(err).Debug("Ошибка при чтении сообщения")
			}
			return
		}

		var req request
		if err := json.Unmarshal(data, &req); err != nil {
			c.sendError("", "некорректный JSON")
			continue
		}
		c.handle(req)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log().WithError(err).Debug("Ошибка при отправке сообщения")
				c.cancel()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}
		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) handle(req request) {
	switch req.Type {
	case requestPing:
		c.sendJSON(&Message{Type: TypePong, Payload: map[string]interface{}{"time": time.Now().Unix()}})
	case requestSubscribe:
		c.subscribe(req)
	case requestWatchRides:
		c.watchRides(req)
	case requestWatchMessages:
		c.watchMessages(req)
	case requestUnsubscribe:
		if c.drop(req.Topic) {
			c.sendJSON(&Message{Type: TypeUnsubscribed, Topic: req.Topic})
		} else {
			c.sendError(req.Topic, "подписка не найдена")
		}
	case requestLogout:
		if err := c.provider.Logout(c.ctx); err != nil {
			c.sendError("", "не удалось выйти")
		}
	default:
		c.sendError(req.Topic, fmt.Sprintf("неизвестный тип сообщения: %q", req.Type))
	}
}

// subscribe выдает сырые события изменений таблицы
func (c *Client) subscribe(req request) {
	if req.Topic == "" {
		c.sendError("", "не указан topic")
		return
	}

	event := realtime.EventAll
	if req.Event != "" {
		parsed, err := realtime.ParseEventType(req.Event)
		if err != nil {
			c.sendError(req.Topic, err.Error())
			return
		}
		event = parsed
	}

	filter, err := realtime.ParseFilter(req.Table, event, req.Filter)
	if err != nil {
		c.sendError(req.Topic, err.Error())
		return
	}

	if !c.allowed(filter) {
		c.sendError(req.Topic, "нет доступа к подписке")
		return
	}

	sub := c.manager.hub.Subscribe(filter)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range sub.Events() {
			c.sendJSON(&Message{Type: TypePostgresChanges, Topic: req.Topic, Payload: ev})
		}
	}()

	c.attach(req.Topic, func() {
		sub.Close()
		wg.Wait()
	})
}

// allowed закрывает чужие переписки. Сообщения доступны только с фильтром
// по conversation_id и только участникам.
func (c *Client) allowed(filter realtime.Filter) bool {
	switch filter.Table {
	case "messages", "conversations":
	default:
		return true
	}

	column := "conversation_id"
	if filter.Table == "conversations" {
		column = "id"
	}
	if filter.Column != column {
		return false
	}

	var conversationID uint
	if _, err := fmt.Sscan(filter.Value, &conversationID); err != nil || conversationID == 0 {
		return false
	}
	return c.participant(conversationID)
}

func (c *Client) participant(conversationID uint) bool {
	ok, err := c.manager.conversations.IsParticipant(c.ctx, conversationID, c.userID)
	if err != nil {
		c.log().WithError(err).Warn("Не удалось проверить участника переписки")
		return false
	}
	return ok
}

// watchRides присылает полный список поездок при каждом изменении
func (c *Client) watchRides(req request) {
	if req.Topic == "" {
		c.sendError("", "не указан topic")
		return
	}

	onChange := func(rides []models.Ride) {
		c.sendJSON(&Message{Type: TypeRides, Topic: req.Topic, Payload: rides})
	}

	var feed *realtime.RideFeed
	if req.DriverID != 0 {
		feed = realtime.WatchDriverRides(c.ctx, c.manager.hub, req.DriverID, func(ctx context.Context) []models.Ride {
			return c.manager.rides.ListByDriver(ctx, c.identity, req.DriverID)
		}, onChange)
	} else {
		feed = realtime.WatchRides(c.ctx, c.manager.hub, realtime.Filter{Table: "rides", Event: realtime.EventAll}, func(ctx context.Context) []models.Ride {
			return c.manager.rides.List(ctx, c.identity)
		}, onChange)
	}

	c.attach(req.Topic, feed.Close)
}

// watchMessages присылает новые сообщения переписки и отмечает входящие прочитанными
func (c *Client) watchMessages(req request) {
	if req.Topic == "" {
		c.sendError("", "не указан topic")
		return
	}
	if req.ConversationID == 0 || !c.participant(req.ConversationID) {
		c.sendError(req.Topic, "нет доступа к переписке")
		return
	}

	feed := realtime.WatchMessages(c.ctx, c.manager.hub, req.ConversationID, c.userID, c.manager.conversations, func(msg models.Message) {
		c.sendJSON(&Message{Type: TypeMessage, Topic: req.Topic, Payload: msg})
	})

	c.attach(req.Topic, feed.Close)
}

// attach запоминает подписку, заменяя прежнюю с тем же topic
func (c *Client) attach(topic string, stop func()) {
	c.mu.Lock()
	prev := c.topics[topic]
	c.topics[topic] = stop
	c.mu.Unlock()

	if prev != nil {
		prev()
	}
	c.sendJSON(&Message{Type: TypeSubscribed, Topic: topic})
}

func (c *Client) drop(topic string) bool {
	c.mu.Lock()
	stop, ok := c.topics[topic]
	delete(c.topics, topic)
	c.mu.Unlock()

	if ok {
		stop()
	}
	return ok
}

func (c *Client) sendError(topic, reason string) {
	c.sendJSON(&Message{Type: TypeError, Topic: topic, Payload: map[string]string{"error": reason}})
}

func (c *Client) sendJSON(message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		c.log().WithError(err).Error("Ошибка при кодировании сообщения")
		return
	}
	c.enqueue(data)
}

// enqueue не блокирует отправителя, медленный клиент теряет сообщения
func (c *Client) enqueue(data []byte) {
	select {
	case <-c.ctx.Done():
		return
	default:
	}

	select {
	case c.send <- data:
	default:
		metrics.RealtimeDroppedTotal.Inc()
		c.log().Warn("Очередь клиента переполнена, сообщение пропущено")
	}
}

// close отменяет подписки и закрывает соединение
func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		topics := c.topics
		c.topics = make(map[string]func())
		c.mu.Unlock()

		for _, stop := range topics {
			stop()
		}
		c.provider.Close()

		select {
		case c.manager.unregister <- c:
		case <-c.manager.done:
		}
		c.conn.Close()
	})
}
