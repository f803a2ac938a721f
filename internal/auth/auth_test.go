package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"rideshare-backend/internal/db"
	"rideshare-backend/internal/models"
	"rideshare-backend/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

type fixture struct {
	svc   *Service
	mr    *miniredis.Miniredis
	users *repository.UserRepository
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

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

	users := repository.NewUserRepository(gdb)
	svc := NewService(users, NewTokenManager("test-secret", time.Hour), NewStore(rdb), opts)
	return &fixture{svc: svc, mr: mr, users: users}
}

// eventLog собирает события сервиса
type eventLog struct {
	mu     sync.Mutex
	events []AuthEvent
}

func (l *eventLog) add(ev AuthEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) types() []AuthEventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuthEventType, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.Type)
	}
	return out
}

func signupInput() SignupInput {
	return SignupInput{Email: "Aliya@Example.com", Password: "secret123", Name: "Алия", PhoneNumber: "+77011234567"}
}

func TestTokenManager(t *testing.T) {
	m := NewTokenManager("secret", time.Hour)

	token, claims, err := m.Generate(7, "a@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, claims.ID)

	parsed, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, uint(7), parsed.UserID)
	assert.Equal(t, claims.ID, parsed.ID)

	_, err = NewTokenManager("other", time.Hour).Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := &TokenManager{secret: []byte("secret"), ttl: -time.Minute}
	old, _, err := expired.Generate(7, "a@example.com")
	require.NoError(t, err)
	_, err = m.Validate(old)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestService_SignupLoginLogout(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	log := &eventLog{}
	defer f.svc.OnAuthStateChange(log.add)()

	result, err := f.svc.Signup(ctx, signupInput())
	require.NoError(t, err)
	require.NotNil(t, result.Session)
	assert.False(t, result.ConfirmationRequired)
	assert.Equal(t, "aliya@example.com", result.User.Email)

	profile, err := f.users.GetProfile(ctx, result.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "Алия", profile.Name)

	_, err = f.svc.Login(ctx, "aliya@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "nobody@example.com", "secret123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	session, err := f.svc.Login(ctx, "ALIYA@example.com", "secret123")
	require.NoError(t, err)

	user, _, err := f.svc.CurrentUser(ctx, session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, user.ID)

	require.NoError(t, f.svc.Logout(ctx, session.AccessToken))
	_, err = f.svc.Authenticate(ctx, session.AccessToken)
	assert.ErrorIs(t, err, ErrSessionRevoked)

	// Другая сессия того же пользователя продолжает работать
	_, err = f.svc.Authenticate(ctx, result.Session.AccessToken)
	assert.NoError(t, err)

	assert.Equal(t, []AuthEventType{EventSignedIn, EventSignedIn, EventSignedOut}, log.types())
}

func TestService_SignupValidation(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	input := signupInput()
	input.Password = "123"
	_, err := f.svc.Signup(ctx, input)
	var verr *repository.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "password")

	_, err = f.svc.Signup(ctx, signupInput())
	require.NoError(t, err)
	_, err = f.svc.Signup(ctx, signupInput())
	assert.ErrorIs(t, err, repository.ErrEmailTaken)
}

func TestService_SignupWithEmailConfirmation(t *testing.T) {
	f := newFixture(t, Options{ConfirmEmail: true})
	ctx := context.Background()
	log := &eventLog{}
	defer f.svc.OnAuthStateChange(log.add)()

	result, err := f.svc.Signup(ctx, signupInput())
	require.NoError(t, err)
	assert.True(t, result.ConfirmationRequired)
	assert.Nil(t, result.Session)
	assert.Empty(t, log.types())

	_, err = f.svc.Login(ctx, "aliya@example.com", "secret123")
	assert.ErrorIs(t, err, ErrEmailNotConfirmed)

	_, err = f.svc.ConfirmEmail(ctx, "aliya@example.com", "000000x")
	assert.ErrorIs(t, err, ErrInvalidCode)

	code, err := f.mr.Get("auth:confirm:aliya@example.com")
	require.NoError(t, err)

	session, err := f.svc.ConfirmEmail(ctx, "aliya@example.com", code)
	require.NoError(t, err)
	assert.NotEmpty(t, session.AccessToken)

	_, err = f.svc.Login(ctx, "aliya@example.com", "secret123")
	assert.NoError(t, err)
}

func TestService_ConfirmationCodeAttemptsLimited(t *testing.T) {
	f := newFixture(t, Options{ConfirmEmail: true})
	ctx := context.Background()

	_, err := f.svc.Signup(ctx, signupInput())
	require.NoError(t, err)
	code, err := f.mr.Get("auth:confirm:aliya@example.com")
	require.NoError(t, err)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	for i := 0; i < MaxConfirmationAttempts; i++ {
		_, err = f.svc.ConfirmEmail(ctx, "aliya@example.com", wrong)
		assert.ErrorIs(t, err, ErrInvalidCode)
	}

	_, err = f.svc.ConfirmEmail(ctx, "aliya@example.com", code)
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.False(t, f.mr.Exists("auth:confirm:aliya@example.com"))
	assert.False(t, f.mr.Exists("auth:confirm:attempts:aliya@example.com"))

	require.NoError(t, f.svc.ResendConfirmationCode(ctx, "aliya@example.com"))
	code, err = f.mr.Get("auth:confirm:aliya@example.com")
	require.NoError(t, err)
	session, err := f.svc.ConfirmEmail(ctx, "aliya@example.com", code)
	require.NoError(t, err)
	assert.NotEmpty(t, session.AccessToken)

	// после подтверждения и для неизвестных адресов новый код не выдается
	require.NoError(t, f.svc.ResendConfirmationCode(ctx, "aliya@example.com"))
	require.NoError(t, f.svc.ResendConfirmationCode(ctx, "nobody@example.com"))
	assert.False(t, f.mr.Exists("auth:confirm:aliya@example.com"))
	assert.False(t, f.mr.Exists("auth:confirm:nobody@example.com"))
}

func TestStore_ConfirmationSuccessResetsAttempts(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	store := NewStore(rdb)
	ctx := context.Background()

	require.NoError(t, store.SaveConfirmationCode(ctx, "a@example.com", "123456"))
	for i := 0; i < MaxConfirmationAttempts-1; i++ {
		ok, err := store.VerifyConfirmationCode(ctx, "a@example.com", "654321")
		require.NoError(t, err)
		assert.False(t, ok)
	}
	ok, err := store.VerifyConfirmationCode(ctx, "a@example.com", "123456")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, mr.Exists("auth:confirm:attempts:a@example.com"))
}

func TestStore_ConsumeOAuthStateOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	store := NewStore(rdb)
	ctx := context.Background()

	require.NoError(t, store.SaveOAuthState(ctx, "st", ProviderGoogle))

	var wg sync.WaitGroup
	results := make(chan string, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			provider, err := store.ConsumeOAuthState(ctx, "st")
			assert.NoError(t, err)
			results <- provider
		}()
	}
	wg.Wait()
	close(results)

	won := 0
	for provider := range results {
		if provider != "" {
			assert.Equal(t, ProviderGoogle, provider)
			won++
		}
	}
	assert.Equal(t, 1, won)
	assert.False(t, mr.Exists("auth:oauth_state:st"))
}

// newOAuthServer поддельный провайдер: выдает токен и профиль
func newOAuthServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "good-code", r.Form.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "provider-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer provider-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"email":"berik@example.com","name":"Берик","picture":{"data":{"url":"https://cdn.example.com/berik.jpg"}}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testProvider(srv *httptest.Server) *OAuthProvider {
	return &OAuthProvider{
		Name: ProviderGoogle,
		Config: &oauth2.Config{
			ClientID:     "client",
			ClientSecret: "secret",
			RedirectURL:  callbackURL("http://localhost:8080", ProviderGoogle),
			Endpoint: oauth2.Endpoint{
				AuthURL:   srv.URL + "/auth",
				TokenURL:  srv.URL + "/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		UserInfoURL: srv.URL + "/userinfo",
	}
}

func TestService_OAuthFlow(t *testing.T) {
	srv := newOAuthServer(t)
	f := newFixture(t, Options{Providers: []*OAuthProvider{testProvider(srv)}})
	ctx := context.Background()

	_, _, err := f.svc.OAuthURL(ctx, "myspace")
	assert.ErrorIs(t, err, ErrUnknownProvider)

	authURL, state, err := f.svc.OAuthURL(ctx, ProviderGoogle)
	require.NoError(t, err)
	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, state, parsed.Query().Get("state"))
	assert.Equal(t, "http://localhost:8080/api/auth/oauth/google/callback", parsed.Query().Get("redirect_uri"))

	_, err = f.svc.OAuthCallback(ctx, ProviderGoogle, "forged", "good-code")
	assert.ErrorIs(t, err, ErrInvalidState)

	session, err := f.svc.OAuthCallback(ctx, ProviderGoogle, state, "good-code")
	require.NoError(t, err)
	assert.Equal(t, "berik@example.com", session.User.Email)
	assert.Equal(t, "https://cdn.example.com/berik.jpg", session.User.PhotoURL)
	assert.Equal(t, string(models.AuthProviderGoogle), session.User.Provider)

	// state одноразовый
	_, err = f.svc.OAuthCallback(ctx, ProviderGoogle, state, "good-code")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestProvider_StartWithExistingSession(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	result, err := f.svc.Signup(ctx, signupInput())
	require.NoError(t, err)

	p := NewProvider(f.svc)
	defer p.Close()
	assert.True(t, p.Loading())

	p.Start(ctx, result.Session.AccessToken)
	assert.False(t, p.Loading())
	require.NotNil(t, p.CurrentUser())
	assert.Equal(t, result.User.ID, p.CurrentUser().ID)

	anon := NewProvider(f.svc)
	defer anon.Close()
	anon.Start(ctx, "garbage")
	assert.False(t, anon.Loading())
	assert.Nil(t, anon.CurrentUser())
	assert.Nil(t, anon.Identity())
}

func TestProvider_SignedOutElsewhere(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	result, err := f.svc.Signup(ctx, signupInput())
	require.NoError(t, err)

	p := NewProvider(f.svc)
	defer p.Close()
	p.Start(ctx, result.Session.AccessToken)

	changes := make(chan *models.UserResponse, 4)
	defer p.OnChange(func(u *models.UserResponse) { changes <- u })()

	require.NoError(t, f.svc.Logout(ctx, result.Session.AccessToken))
	assert.Nil(t, <-changes)
	assert.Nil(t, p.CurrentUser())
}

func TestProvider_OAuthSessionArrivesByEvent(t *testing.T) {
	srv := newOAuthServer(t)
	f := newFixture(t, Options{Providers: []*OAuthProvider{testProvider(srv)}})
	ctx := context.Background()

	p := NewProvider(f.svc)
	defer p.Close()
	p.Start(ctx, "")

	other := NewProvider(f.svc)
	defer other.Close()
	other.Start(ctx, "")

	authURL, err := p.LoginWithGoogle(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, authURL)
	assert.Nil(t, p.CurrentUser(), "сессия появляется только после callback")

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	_, err = f.svc.OAuthCallback(ctx, ProviderGoogle, parsed.Query().Get("state"), "good-code")
	require.NoError(t, err)

	require.NotNil(t, p.CurrentUser())
	assert.Equal(t, "berik@example.com", p.CurrentUser().Email)
	assert.Nil(t, other.CurrentUser())

	_, err = p.LoginWithFacebook(ctx)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestProvider_LoginSignupAndProfile(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	p := NewProvider(f.svc)
	defer p.Close()
	p.Start(ctx, "")

	assert.ErrorIs(t, p.UpdateProfile(ctx, models.ProfileUpdate{}), repository.ErrNoSession)

	_, err := p.Signup(ctx, signupInput())
	require.NoError(t, err)
	require.NotNil(t, p.CurrentUser())

	require.NoError(t, p.Logout(ctx))
	assert.Nil(t, p.CurrentUser())
	assert.Error(t, p.Login(ctx, "aliya@example.com", "nope"))
	assert.Nil(t, p.CurrentUser())

	require.NoError(t, p.Login(ctx, "aliya@example.com", "secret123"))

	name := "Алия К."
	require.NoError(t, p.UpdateProfile(ctx, models.ProfileUpdate{Name: &name}))
	assert.Equal(t, "Алия К.", p.CurrentUser().Name)

	empty := ""
	assert.Error(t, p.UpdateProfile(ctx, models.ProfileUpdate{Name: &empty}))
	assert.Equal(t, "Алия К.", p.CurrentUser().Name)
}

func TestProvider_SignupWithConfirmationStaysLoggedOut(t *testing.T) {
	f := newFixture(t, Options{ConfirmEmail: true})
	ctx := context.Background()

	p := NewProvider(f.svc)
	defer p.Close()
	p.Start(ctx, "")

	result, err := p.Signup(ctx, signupInput())
	require.NoError(t, err)
	assert.True(t, result.ConfirmationRequired)
	assert.Nil(t, p.CurrentUser())
}
