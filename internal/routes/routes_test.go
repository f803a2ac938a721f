package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"rideshare-backend/internal/auth"
	"rideshare-backend/internal/db"
	"rideshare-backend/internal/models"
	"rideshare-backend/internal/repository"
	"rideshare-backend/internal/services/fare"
	"rideshare-backend/internal/services/geocoding"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// captureNotifier запоминает уведомления обработчиков
type captureNotifier struct {
	mu       sync.Mutex
	bookings []uint
	messages []string
}

func (n *captureNotifier) BookingCreated(_ context.Context, b *models.Booking, _ *models.Ride) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bookings = append(n.bookings, b.ID)
}

func (n *captureNotifier) BookingCancelled(_ context.Context, b *models.Booking, _ *models.Ride) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bookings = append(n.bookings, b.ID)
}

func (n *captureNotifier) MessageSent(_ context.Context, m *models.Message, sender string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, sender+": "+m.Text)
}

type api struct {
	router    *gin.Engine
	notifier  *captureNotifier
	uploadDir string
}

// nominatim отдает координаты двух городов
func nominatim(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	switch {
	case strings.Contains(q, "Алматы"):
		w.Write([]byte(`[{"lat":"43.2389","lon":"76.8897","display_name":"Алматы, Казахстан","address":{"city":"Алматы"}}]`))
	case strings.Contains(q, "Астана"):
		w.Write([]byte(`[{"lat":"51.1605","lon":"71.4704","display_name":"Астана, Казахстан","address":{"city":"Астана"}}]`))
	default:
		w.Write([]byte(`[]`))
	}
}

func newAPI(t *testing.T) *api {
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

	geoServer := httptest.NewServer(http.HandlerFunc(nominatim))
	t.Cleanup(geoServer.Close)
	geocoder := geocoding.NewClient(geocoding.Options{BaseURL: geoServer.URL, RateInterval: time.Millisecond})
	t.Cleanup(geocoder.Close)

	users := repository.NewUserRepository(gdb)
	rides := repository.NewRideRepository(gdb, nil)
	notifier := &captureNotifier{}
	uploadDir := t.TempDir()

	router := gin.New()
	SetupRoutes(router.Group("/api"), Dependencies{
		Auth:            auth.NewService(users, auth.NewTokenManager("test-secret", time.Hour), auth.NewStore(rdb), auth.Options{}),
		Users:           users,
		Rides:           rides,
		Bookings:        repository.NewBookingRepository(gdb, rides, nil),
		Messages:        repository.NewMessageRepository(gdb, nil),
		Geocoder:        geocoder,
		Fare:            fare.NewCalculator(geocoder, 3, 15),
		UploadDir:       uploadDir,
		BookingNotifier: notifier,
		MessageNotifier: notifier,
	})

	return &api{router: router, notifier: notifier, uploadDir: uploadDir}
}

func (a *api) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

// signup регистрирует пользователя и возвращает его токен и id
func (a *api) signup(t *testing.T, email, name string) (string, uint) {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": email, "password": "secret123", "name": name,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var result auth.SignupResult
	decode(t, w, &result)
	require.NotNil(t, result.Session)
	return result.Session.AccessToken, result.User.ID
}

func validRide() map[string]interface{} {
	return map[string]interface{}{
		"pickup_point":         "Алматы, Абая 10",
		"destination":          "Астана, Кенесары 5",
		"pickup_date":          "2026-11-02",
		"pickup_time_start":    "08:00",
		"pickup_time_end":      "09:30",
		"car_name":             "Toyota Camry",
		"fare":                 5000,
		"seats":                3,
		"is_courier_available": true,
		"luggage_capacity":     20,
	}
}

func TestAuthFlow(t *testing.T) {
	a := newAPI(t)

	w := a.do(t, http.MethodGet, "/api/user", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, id := a.signup(t, "driver@example.com", "Ерлан")

	w = a.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": "driver@example.com", "password": "secret123", "name": "Другой",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = a.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "driver@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(t, http.MethodGet, "/api/user", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var user models.UserResponse
	decode(t, w, &user)
	assert.Equal(t, id, user.ID)
	assert.Equal(t, "Ерлан", user.Name)

	w = a.do(t, http.MethodPut, "/api/profile", token, map[string]string{"name": "Ерлан Б."})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &user)
	assert.Equal(t, "Ерлан Б.", user.Name)

	w = a.do(t, http.MethodPost, "/api/auth/confirm/resend", "", map[string]string{"email": "driver@example.com"})
	assert.Equal(t, http.StatusOK, w.Code)
	w = a.do(t, http.MethodPost, "/api/auth/confirm/resend", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodGet, "/api/auth/oauth/github", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(t, http.MethodPost, "/api/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodGet, "/api/user", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRides(t *testing.T) {
	a := newAPI(t)
	driver, driverID := a.signup(t, "driver@example.com", "Ерлан")
	passenger, _ := a.signup(t, "passenger@example.com", "Алия")

	invalid := validRide()
	invalid["fare"] = 10
	invalid["pickup_point"] = "  "
	w := a.do(t, http.MethodPost, "/api/rides", driver, invalid)
	require.Equal(t, http.StatusBadRequest, w.Code)
	var verr struct {
		Fields map[string]string `json:"fields"`
	}
	decode(t, w, &verr)
	assert.Contains(t, verr.Fields, "fare")
	assert.Contains(t, verr.Fields, "pickup_point")

	w = a.do(t, http.MethodPost, "/api/rides", driver, validRide())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.Ride
	decode(t, w, &created)
	assert.Equal(t, driverID, created.DriverID)

	w = a.do(t, http.MethodGet, "/api/rides", passenger, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rides []models.Ride
	decode(t, w, &rides)
	require.Len(t, rides, 1)
	assert.Equal(t, "Ерлан", rides[0].DriverName)

	w = a.do(t, http.MethodPost, "/api/rides/search", passenger, map[string]string{"pickup_point": "Астана", "destination": "Алматы"})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &rides)
	assert.Len(t, rides, 1, "поиск работает в обе стороны")

	w = a.do(t, http.MethodPost, "/api/rides/search", passenger, map[string]string{"pickup_point": "Шымкент"})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &rides)
	assert.Empty(t, rides)

	w = a.do(t, http.MethodGet, "/api/rides/mine", passenger, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &rides)
	assert.Empty(t, rides)

	path := "/api/rides/" + jsonID(created.ID)
	w = a.do(t, http.MethodDelete, path, passenger, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(t, http.MethodDelete, path, driver, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodGet, path, driver, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(t, http.MethodGet, "/api/rides/abc", driver, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRides_AnonymousListIsEmpty(t *testing.T) {
	a := newAPI(t)
	driver, _ := a.signup(t, "driver@example.com", "Ерлан")
	w := a.do(t, http.MethodPost, "/api/rides", driver, validRide())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = a.do(t, http.MethodGet, "/api/rides", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	w = a.do(t, http.MethodPost, "/api/rides/search", "", map[string]string{"pickup_point": "Астана"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	// недействительный токен равен отсутствию сессии
	w = a.do(t, http.MethodGet, "/api/rides", "garbage", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	w = a.do(t, http.MethodGet, "/api/rides/mine", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(t, http.MethodGet, "/api/rides", driver, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rides []models.Ride
	decode(t, w, &rides)
	assert.Len(t, rides, 1)
}

func TestBookings(t *testing.T) {
	a := newAPI(t)
	driver, _ := a.signup(t, "driver@example.com", "Ерлан")
	passenger, _ := a.signup(t, "passenger@example.com", "Алия")

	w := a.do(t, http.MethodPost, "/api/rides", driver, validRide())
	require.Equal(t, http.StatusCreated, w.Code)
	var ride models.Ride
	decode(t, w, &ride)

	w = a.do(t, http.MethodPost, "/api/bookings", driver, map[string]interface{}{"ride_id": ride.ID, "booking_type": "seat", "seats_booked": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodPost, "/api/bookings", passenger, map[string]interface{}{"ride_id": ride.ID, "booking_type": "seat", "seats_booked": 5})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = a.do(t, http.MethodPost, "/api/bookings", passenger, map[string]interface{}{"ride_id": ride.ID, "booking_type": "seat", "seats_booked": 2})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var booking models.Booking
	decode(t, w, &booking)
	assert.Equal(t, models.BookingStatusPending, booking.Status)

	w = a.do(t, http.MethodGet, "/api/rides/"+jsonID(ride.ID), passenger, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &ride)
	assert.Equal(t, 1, ride.Seats)

	w = a.do(t, http.MethodGet, "/api/bookings", passenger, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.Booking
	decode(t, w, &list)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].Ride)

	w = a.do(t, http.MethodPut, "/api/bookings/"+jsonID(booking.ID)+"/cancel", passenger, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = a.do(t, http.MethodPut, "/api/bookings/"+jsonID(booking.ID)+"/cancel", passenger, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	a.notifier.mu.Lock()
	assert.Equal(t, []uint{booking.ID, booking.ID}, a.notifier.bookings)
	a.notifier.mu.Unlock()
}

func TestConversations(t *testing.T) {
	a := newAPI(t)
	driver, driverID := a.signup(t, "driver@example.com", "Ерлан")
	passenger, passengerID := a.signup(t, "passenger@example.com", "Алия")
	stranger, _ := a.signup(t, "stranger@example.com", "Марат")

	w := a.do(t, http.MethodPost, "/api/conversations", passenger, map[string]uint{"user_id": 9999})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(t, http.MethodPost, "/api/conversations", passenger, map[string]uint{"user_id": driverID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var conv models.Conversation
	decode(t, w, &conv)

	path := "/api/conversations/" + jsonID(conv.ID)

	w = a.do(t, http.MethodPost, path+"/messages", passenger, map[string]string{"text": "Есть место на завтра?"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var msg models.Message
	decode(t, w, &msg)
	assert.Equal(t, driverID, msg.ReceiverID)
	assert.Equal(t, passengerID, msg.SenderID)

	w = a.do(t, http.MethodGet, path+"/messages", stranger, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = a.do(t, http.MethodPost, path+"/messages", stranger, map[string]string{"text": "привет"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(t, http.MethodGet, "/api/conversations", driver, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var summaries []models.ConversationSummary
	decode(t, w, &summaries)
	require.Len(t, summaries, 1)
	assert.Equal(t, int64(1), summaries[0].UnreadCount)
	assert.Equal(t, "Алия", summaries[0].OtherUser.Name)

	w = a.do(t, http.MethodPut, path+"/read", driver, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var read struct {
		Updated int64 `json:"updated"`
	}
	decode(t, w, &read)
	assert.Equal(t, int64(1), read.Updated)

	a.notifier.mu.Lock()
	assert.Equal(t, []string{"Алия: Есть место на завтра?"}, a.notifier.messages)
	a.notifier.mu.Unlock()
}

func TestFareEstimate(t *testing.T) {
	a := newAPI(t)
	token, _ := a.signup(t, "driver@example.com", "Ерлан")

	w := a.do(t, http.MethodPost, "/api/fare/estimate", token, map[string]string{"pickup": "Алматы", "destination": "Астана"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result models.FareCalculationResult
	decode(t, w, &result)
	assert.False(t, result.Estimated)
	assert.InDelta(t, 970, result.Distance, 60)
	assert.Equal(t, 15, result.BaseFare)
	assert.Greater(t, result.Fare, 2500)

	w = a.do(t, http.MethodPost, "/api/fare/estimate", token, map[string]string{"pickup": "Алматы"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodPost, "/api/addresses/search", token, map[string]interface{}{"query": "Астана"})
	require.Equal(t, http.StatusOK, w.Code)
	var addresses struct {
		Addresses []struct {
			Name string  `json:"name"`
			Lat  float64 `json:"lat"`
		} `json:"addresses"`
	}
	decode(t, w, &addresses)
	require.Len(t, addresses.Addresses, 1)
	assert.Equal(t, "Астана", addresses.Addresses[0].Name)
}

func TestUpload(t *testing.T) {
	a := newAPI(t)
	token, _ := a.signup(t, "driver@example.com", "Ерлан")

	upload := func(name string) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = part.Write([]byte("image-bytes"))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		a.router.ServeHTTP(w, req)
		return w
	}

	w := upload("script.sh")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = upload("avatar.PNG")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		URL string `json:"url"`
	}
	decode(t, w, &resp)
	require.True(t, strings.HasPrefix(resp.URL, "/uploads/"))
	assert.True(t, strings.HasSuffix(resp.URL, ".png"))

	stored := filepath.Join(a.uploadDir, filepath.FromSlash(strings.TrimPrefix(resp.URL, "/uploads/")))
	data, err := os.ReadFile(stored)
	require.NoError(t, err)
	assert.Equal(t, "image-bytes", string(data))
}

func jsonID(id uint) string {
	data, _ := json.Marshal(id)
	return string(data)
}
