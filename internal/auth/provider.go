package auth

import (
	"context"
	"sync"

	"rideshare-backend/internal/logger"
	"rideshare-backend/internal/models"
	"rideshare-backend/internal/repository"
)

// Provider хранит состояние авторизации одного клиента поверх Service
// и обновляет его по событиям сервиса.
type Provider struct {
	svc *Service

	mu           sync.RWMutex
	session      *Session
	user         *models.UserResponse
	loading      bool
	pendingState string
	listeners    map[uint64]func(*models.UserResponse)
	nextID       uint64
	unsubscribe  func()
}

func NewProvider(svc *Service) *Provider {
	return &Provider{
		svc:       svc,
		loading:   true,
		listeners: make(map[uint64]func(*models.UserResponse)),
	}
}

// Start подписывается на события и затем проверяет существующую сессию по токену.
// Подписка идет первой, чтобы не пропустить смену сессии во время проверки.
func (p *Provider) Start(ctx context.Context, token string) {
	unsubscribe := p.svc.OnAuthStateChange(p.handle)
	p.mu.Lock()
	p.unsubscribe = unsubscribe
	p.mu.Unlock()

	var session *Session
	if token != "" {
		user, claims, err := p.svc.CurrentUser(ctx, token)
		if err != nil {
			logger.Log.WithError(err).Debug("Сохраненная сессия недействительна")
		} else {
			session = &Session{
				ID:          claims.ID,
				AccessToken: token,
				TokenType:   "bearer",
				ExpiresAt:   claims.ExpiresAt.Time,
				User:        user.ToResponse(),
			}
		}
	}

	p.mu.Lock()
	// Событие могло установить сессию раньше проверки
	if p.session == nil && session != nil {
		p.setLocked(session)
	}
	p.loading = false
	user := p.user
	p.mu.Unlock()

	p.notify(user)
}

func (p *Provider) handle(ev AuthEvent) {
	p.mu.Lock()
	changed := false

	switch ev.Type {
	case EventSignedIn:
		if p.pendingState != "" && ev.State == p.pendingState && ev.Session != nil {
			p.pendingState = ""
			p.setLocked(ev.Session)
			changed = true
		}
	case EventSignedOut:
		if p.session != nil && ev.SessionID == p.session.ID {
			p.session = nil
			p.user = nil
			changed = true
		}
	case EventUserUpdated:
		if p.user != nil && ev.User != nil && ev.User.ID == p.user.ID {
			u := *ev.User
			p.user = &u
			p.session.User = u
			changed = true
		}
	}

	user := p.user
	p.mu.Unlock()

	if changed {
		p.notify(user)
	}
}

func (p *Provider) setLocked(session *Session) {
	p.session = session
	u := session.User
	p.user = &u
}

func (p *Provider) set(session *Session) {
	p.mu.Lock()
	p.setLocked(session)
	user := p.user
	p.mu.Unlock()
	p.notify(user)
}

func (p *Provider) clear() {
	p.mu.Lock()
	if p.session == nil {
		p.mu.Unlock()
		return
	}
	p.session = nil
	p.user = nil
	p.mu.Unlock()
	p.notify(nil)
}

func (p *Provider) notify(user *models.UserResponse) {
	p.mu.RLock()
	listeners := make([]func(*models.UserResponse), 0, len(p.listeners))
	for _, fn := range p.listeners {
		listeners = append(listeners, fn)
	}
	p.mu.RUnlock()

	for _, fn := range listeners {
		if user == nil {
			fn(nil)
			continue
		}
		u := *user
		fn(&u)
	}
}

// OnChange вызывается при каждом изменении текущего пользователя (nil после выхода)
func (p *Provider) OnChange(fn func(*models.UserResponse)) func() {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.listeners[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// CurrentUser текущий пользователь или nil
func (p *Provider) CurrentUser() *models.UserResponse {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.user == nil {
		return nil
	}
	u := *p.user
	return &u
}

// Session текущая сессия или nil
func (p *Provider) Session() *Session {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.session == nil {
		return nil
	}
	s := *p.session
	return &s
}

// Identity пользователь сессии для репозиториев, nil без сессии
func (p *Provider) Identity() *models.Identity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.user == nil {
		return nil
	}
	return &models.Identity{UserID: p.user.ID, Email: p.user.Email}
}

// Loading true до окончания первой проверки сессии
func (p *Provider) Loading() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loading
}

func (p *Provider) Login(ctx context.Context, email, password string) error {
	session, err := p.svc.Login(ctx, email, password)
	if err != nil {
		return err
	}
	p.set(session)
	return nil
}

// LoginWithGoogle начинает вход через Google. Сессия придет событием
// после возврата пользователя на callback.
func (p *Provider) LoginWithGoogle(ctx context.Context) (string, error) {
	return p.loginWithOAuth(ctx, ProviderGoogle)
}

func (p *Provider) LoginWithFacebook(ctx context.Context) (string, error) {
	return p.loginWithOAuth(ctx, ProviderFacebook)
}

func (p *Provider) loginWithOAuth(ctx context.Context, provider string) (string, error) {
	url, state, err := p.svc.OAuthURL(ctx, provider)
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	p.pendingState = state
	p.mu.Unlock()
	return url, nil
}

// Signup регистрирует пользователя. Без сессии в ответе состояние остается прежним.
func (p *Provider) Signup(ctx context.Context, input SignupInput) (*SignupResult, error) {
	result, err := p.svc.Signup(ctx, input)
	if err != nil {
		return nil, err
	}
	if result.Session != nil {
		p.set(result.Session)
	}
	return result, nil
}

func (p *Provider) Logout(ctx context.Context) error {
	session := p.Session()
	if session == nil {
		return nil
	}
	if err := p.svc.Logout(ctx, session.AccessToken); err != nil {
		return err
	}
	p.clear()
	return nil
}

// UpdateProfile обновляет профиль текущего пользователя. При ошибке состояние не меняется.
func (p *Provider) UpdateProfile(ctx context.Context, update models.ProfileUpdate) error {
	identity := p.Identity()
	if identity == nil {
		return repository.ErrNoSession
	}

	user, err := p.svc.UpdateProfile(ctx, identity.UserID, update)
	if err != nil {
		return err
	}

	p.mu.Lock()
	changed := false
	if p.session != nil && p.user != nil && p.user.ID == user.ID {
		resp := user.ToResponse()
		p.user = &resp
		p.session.User = resp
		changed = true
	}
	current := p.user
	p.mu.Unlock()

	if changed {
		p.notify(current)
	}
	return nil
}

// Close отписывается от событий сервиса
func (p *Provider) Close() {
	p.mu.Lock()
	unsubscribe := p.unsubscribe
	p.unsubscribe = nil
	p.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}
