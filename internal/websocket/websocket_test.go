package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"rideshare-backend/internal/auth"
	"rideshare-backend/internal/db"
	"rideshare-backend/internal/models"
	"rideshare-backend/internal/realtime"
	"rideshare-backend/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeRides struct{ rides []models.Ride }

func (f *fakeRides) List(context.Context, *models.Identity) []models.Ride { return f.rides }

func (f *fakeRides) ListByDriver(_ context.Context, _ *models.Identity, driverID uint) []models.Ride {
	var out []models.Ride
	for _, r := range f.rides {
		if r.DriverID == driverID {
			out = append(out, r)
		}
	}
	return out
}

// fakeConversations пускает только в переписку 1
type fakeConversations struct{}

func (fakeConversations) IsParticipant(_ context.Context, conversationID, _ uint) (bool, error) {
	return conversationID == 1, nil
}

func (fakeConversations) MarkMessageRead(context.Context, uint) error { return nil }

type fixture struct {
	server  *httptest.Server
	manager *Manager
	hub     *realtime.Hub
	svc     *auth.Service
	session *auth.Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := gorm.Open(sqlite.Open(":memory:"), db.GormConfig())
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.Migrate(gdb))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	svc := auth.NewService(repository.NewUserRepository(gdb), auth.NewTokenManager("test-secret", time.Hour), auth.NewStore(rdb), auth.Options{})
	result, err := svc.Signup(context.Background(), auth.SignupInput{Email: "driver@example.com", Password: "secret123", Name: "Ерлан"})
	require.NoError(t, err)
	require.NotNil(t, result.Session)

	hub := realtime.NewHub(16)
	hub.Start()
	t.Cleanup(hub.Stop)

	rides := &fakeRides{rides: []models.Ride{{ID: 1, DriverID: result.User.ID, PickupPoint: "Алматы", Destination: "Астана", Seats: 3}}}
	manager := NewManager(hub, svc, rides, fakeConversations{})
	manager.Start()
	t.Cleanup(manager.Stop)

	router := gin.New()
	router.GET("/ws", manager.Handler())
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &fixture{server: server, manager: manager, hub: hub, svc: svc, session: result.Session}
}

func (f *fixture) dial(t *testing.T, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?token=" + token
	return websocket.DefaultDialer.Dial(url, nil)
}

func (f *fixture) connect(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := f.dial(t, f.session.AccessToken)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	msg := readType(t, conn, TypeAuthState)
	assert.Contains(t, string(msg), string(auth.EventSignedIn))
	return conn
}

type envelope struct {
	Type    string          `json:"type"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// readType читает сообщения, пока не встретит нужный тип
func readType(t *testing.T, conn *websocket.Conn, typ string) json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var env envelope
		require.NoError(t, json.Unmarshal(data, &env))
		if env.Type == typ {
			return env.Payload
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

func TestHandler_RejectsMissingOrInvalidToken(t *testing.T) {
	f := newFixture(t)

	_, resp, err := f.dial(t, "")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = f.dial(t, "garbage")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestClient_PingPong(t *testing.T) {
	f := newFixture(t)
	conn := f.connect(t)

	send(t, conn, map[string]string{"type": "ping"})
	readType(t, conn, TypePong)

	send(t, conn, map[string]string{"type": "dance"})
	payload := readType(t, conn, TypeError)
	assert.Contains(t, string(payload), "dance")
}

func TestClient_SubscribeReceivesMatchingChanges(t *testing.T) {
	f := newFixture(t)
	conn := f.connect(t)
	driverID := f.session.User.ID

	send(t, conn, map[string]interface{}{"type": "subscribe", "topic": "my-rides", "table": "rides", "event": "*", "filter": "driver_id=eq." + jsonNumber(driverID)})
	readType(t, conn, TypeSubscribed)

	other, err := realtime.NewChangeEvent(realtime.EventInsert, "rides", models.Ride{ID: 8, DriverID: driverID + 100}, nil)
	require.NoError(t, err)
	mine, err := realtime.NewChangeEvent(realtime.EventInsert, "rides", models.Ride{ID: 9, DriverID: driverID}, nil)
	require.NoError(t, err)
	require.NoError(t, f.hub.Publish(context.Background(), other))
	require.NoError(t, f.hub.Publish(context.Background(), mine))

	payload := readType(t, conn, TypePostgresChanges)
	ev, err := realtime.DecodeEvent(payload)
	require.NoError(t, err)
	var ride models.Ride
	require.NoError(t, ev.Decode(&ride))
	assert.Equal(t, uint(9), ride.ID)

	send(t, conn, map[string]string{"type": "unsubscribe", "topic": "my-rides"})
	readType(t, conn, TypeUnsubscribed)
}

func TestClient_MessagesRequireParticipation(t *testing.T) {
	f := newFixture(t)
	conn := f.connect(t)

	send(t, conn, map[string]string{"type": "subscribe", "topic": "all", "table": "messages"})
	readType(t, conn, TypeError)

	send(t, conn, map[string]string{"type": "subscribe", "topic": "foreign", "table": "messages", "filter": "conversation_id=eq.2"})
	readType(t, conn, TypeError)

	send(t, conn, map[string]interface{}{"type": "watch_messages", "topic": "chat", "conversation_id": 1})
	readType(t, conn, TypeSubscribed)

	ev, err := realtime.NewChangeEvent(realtime.EventInsert, "messages", models.Message{ID: 5, ConversationID: 1, SenderID: 77, ReceiverID: f.session.User.ID, Text: "Салем"}, nil)
	require.NoError(t, err)
	require.NoError(t, f.hub.Publish(context.Background(), ev))

	var msg models.Message
	require.NoError(t, json.Unmarshal(readType(t, conn, TypeMessage), &msg))
	assert.Equal(t, "Салем", msg.Text)
	assert.True(t, msg.Read)
}

func TestClient_WatchRidesSendsSnapshot(t *testing.T) {
	f := newFixture(t)
	conn := f.connect(t)

	send(t, conn, map[string]interface{}{"type": "watch_rides", "topic": "feed"})
	var rides []models.Ride
	require.NoError(t, json.Unmarshal(readType(t, conn, TypeRides), &rides))
	require.Len(t, rides, 1)
	assert.Equal(t, "Астана", rides[0].Destination)
}

func TestManager_BroadcastToUser(t *testing.T) {
	f := newFixture(t)
	conn := f.connect(t)
	userID := f.session.User.ID

	require.Eventually(t, func() bool { return f.manager.Connected(userID) == 1 }, 2*time.Second, 10*time.Millisecond)

	f.manager.SendBookingStatusUpdate(userID, 42, models.BookingStatusConfirmed)
	payload := readType(t, conn, TypeBookingStatusUpdate)
	assert.Contains(t, string(payload), `"booking_id":42`)
}

func TestClient_ClosedOnSignOut(t *testing.T) {
	f := newFixture(t)
	conn := f.connect(t)
	userID := f.session.User.ID
	require.Eventually(t, func() bool { return f.manager.Connected(userID) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, f.svc.Logout(context.Background(), f.session.AccessToken))

	payload := readType(t, conn, TypeAuthState)
	assert.Contains(t, string(payload), string(auth.EventSignedOut))

	require.Eventually(t, func() bool { return f.manager.Connected(userID) == 0 }, 2*time.Second, 10*time.Millisecond)

	_, _, err := f.dial(t, f.session.AccessToken)
	assert.Error(t, err)
}

func jsonNumber(n uint) string {
	data, _ := json.Marshal(n)
	return string(data)
}
