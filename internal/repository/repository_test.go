package repository

import (
	"context"
	"sync"
	"testing"

	"rideshare-backend/internal/db"
	"rideshare-backend/internal/models"
	"rideshare-backend/internal/realtime"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// recorder запоминает опубликованные события
type recorder struct {
	mu     sync.Mutex
	events []realtime.ChangeEvent
}

func (r *recorder) Publish(_ context.Context, ev realtime.ChangeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) tables() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Table+":"+string(ev.Event))
	}
	return out
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), db.GormConfig())
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	// Одна in-memory база живет только в пределах одного соединения
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(gdb))
	return gdb
}

func createUser(t *testing.T, gdb *gorm.DB, name, email string) *models.User {
	t.Helper()
	user := &models.User{Email: email, Name: name, Provider: models.AuthProviderEmail}
	require.NoError(t, NewUserRepository(gdb).Create(context.Background(), user))
	return user
}

func intPtr(v int) *int { return &v }

func validRide() models.RideCreate {
	return models.RideCreate{
		PickupPoint:     "  Astana, Kabanbay Batyr 53 ",
		Destination:     " Almaty ",
		PickupDate:      "2024-06-01",
		PickupTimeStart: "09:00",
		PickupTimeEnd:   "10:30",
		CarName:         " Toyota Camry ",
		Fare:            40,
		Seats:           3,
	}
}
