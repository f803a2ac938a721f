package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"rideshare-backend/internal/logger"
	"rideshare-backend/internal/models"
	"rideshare-backend/internal/repository"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("неверный email или пароль")
	ErrEmailNotConfirmed  = errors.New("email не подтвержден")
	ErrInvalidCode        = errors.New("неверный или истекший код подтверждения")
	ErrUnknownProvider    = errors.New("неизвестный провайдер авторизации")
	ErrInvalidState       = errors.New("недействительный параметр state")
	ErrSessionRevoked     = errors.New("сессия завершена")
)

type AuthEventType string

const (
	EventSignedIn    AuthEventType = "SIGNED_IN"
	EventSignedOut   AuthEventType = "SIGNED_OUT"
	EventUserUpdated AuthEventType = "USER_UPDATED"
)

// Session активная сессия пользователя
type Session struct {
	ID          string              `json:"-"`
	AccessToken string              `json:"access_token"`
	TokenType   string              `json:"token_type"`
	ExpiresAt   time.Time           `json:"expires_at"`
	User        models.UserResponse `json:"user"`
}

// AuthEvent изменение состояния авторизации
type AuthEvent struct {
	Type      AuthEventType
	Session   *Session
	User      *models.UserResponse
	SessionID string
	// State заполнен для входа через OAuth
	State string
}

type SignupInput struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=6"`
	Name        string `json:"name" validate:"required"`
	PhoneNumber string `json:"phone_number" validate:"omitempty,max=20"`
}

type SignupResult struct {
	User                 models.UserResponse `json:"user"`
	Session              *Session            `json:"session"`
	ConfirmationRequired bool                `json:"confirmation_required"`
}

type Options struct {
	ConfirmEmail bool
	Providers    []*OAuthProvider
}

type Service struct {
	users        *repository.UserRepository
	tokens       *TokenManager
	store        *Store
	validate     *validator.Validate
	providers    map[string]*OAuthProvider
	confirmEmail bool

	mu        sync.RWMutex
	listeners map[uint64]func(AuthEvent)
	nextID    uint64
}

func NewService(users *repository.UserRepository, tokens *TokenManager, store *Store, opts Options) *Service {
	providers := make(map[string]*OAuthProvider, len(opts.Providers))
	for _, p := range opts.Providers {
		providers[p.Name] = p
	}
	return &Service{
		users:        users,
		tokens:       tokens,
		store:        store,
		validate:     repository.NewValidator(),
		providers:    providers,
		confirmEmail: opts.ConfirmEmail,
		listeners:    make(map[uint64]func(AuthEvent)),
	}
}

// OnAuthStateChange регистрирует слушателя событий авторизации, возвращает функцию отписки
func (s *Service) OnAuthStateChange(fn func(AuthEvent)) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Service) emit(ev AuthEvent) {
	s.mu.RLock()
	listeners := make([]func(AuthEvent), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

func (s *Service) issue(user *models.User) (*Session, error) {
	token, claims, err := s.tokens.Generate(user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:          claims.ID,
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   claims.ExpiresAt.Time,
		User:        user.ToResponse(),
	}, nil
}

func (s *Service) signIn(user *models.User, state string) (*Session, error) {
	session, err := s.issue(user)
	if err != nil {
		return nil, err
	}

	logger.Log.WithFields(logrus.Fields{
		"user_id":  user.ID,
		"provider": user.Provider,
	}).Info("Пользователь вошел в систему")

	userResp := session.User
	s.emit(AuthEvent{
		Type:      EventSignedIn,
		Session:   session,
		User:      &userResp,
		SessionID: session.ID,
		State:     state,
	})
	return session, nil
}

// Signup регистрирует пользователя. Если нужно подтверждение email, сессия не выдается.
func (s *Service) Signup(ctx context.Context, input SignupInput) (*SignupResult, error) {
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.Name = strings.TrimSpace(input.Name)
	input.PhoneNumber = strings.TrimSpace(input.PhoneNumber)

	if err := repository.ValidateStruct(s.validate, input); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("ошибка при хешировании пароля: %w", err)
	}

	user := &models.User{
		Email:        input.Email,
		PasswordHash: string(hash),
		Provider:     models.AuthProviderEmail,
		Name:         input.Name,
		PhoneNumber:  input.PhoneNumber,
	}
	if !s.confirmEmail {
		now := time.Now().UTC()
		user.EmailConfirmedAt = &now
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	result := &SignupResult{User: user.ToResponse()}

	if s.confirmEmail {
		if err := s.issueConfirmationCode(ctx, user); err != nil {
			return nil, err
		}
		result.ConfirmationRequired = true
		return result, nil
	}

	session, err := s.signIn(user, "")
	if err != nil {
		return nil, err
	}
	result.Session = session
	return result, nil
}

func (s *Service) issueConfirmationCode(ctx context.Context, user *models.User) error {
	code, err := GenerateCode()
	if err != nil {
		return err
	}
	if err := s.store.SaveConfirmationCode(ctx, user.Email, code); err != nil {
		return err
	}
	// Отправка писем не подключена, код доступен в логах
	logger.Log.WithFields(logrus.Fields{
		"user_id": user.ID,
		"email":   user.Email,
		"code":    code,
	}).Info("Код подтверждения email сгенерирован")
	return nil
}

// ResendConfirmationCode выдает новый код и сбрасывает счетчик попыток.
// Для неизвестного или уже подтвержденного email ничего не делает.
func (s *Service) ResendConfirmationCode(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	} else if err != nil {
		return err
	}
	if user.EmailConfirmedAt != nil {
		return nil
	}
	return s.issueConfirmationCode(ctx, user)
}

// ConfirmEmail подтверждает email кодом и открывает сессию
func (s *Service) ConfirmEmail(ctx context.Context, email, code string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	ok, err := s.store.VerifyConfirmationCode(ctx, email, strings.TrimSpace(code))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCode
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := s.users.ConfirmEmail(ctx, user.ID); err != nil {
		return nil, err
	}

	return s.signIn(user, "")
}

// Login вход по email и паролю
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if user.PasswordHash == "" ||
		bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	if s.confirmEmail && user.EmailConfirmedAt == nil {
		return nil, ErrEmailNotConfirmed
	}

	return s.signIn(user, "")
}

// OAuthURL адрес страницы входа провайдера и state для сопоставления ответа
func (s *Service) OAuthURL(ctx context.Context, provider string) (string, string, error) {
	p, ok := s.providers[provider]
	if !ok {
		return "", "", ErrUnknownProvider
	}

	state := uuid.NewString()
	if err := s.store.SaveOAuthState(ctx, state, provider); err != nil {
		return "", "", err
	}

	return p.Config.AuthCodeURL(state), state, nil
}

// OAuthCallback завершает вход через провайдера. Сессия также приходит
// слушателям событием SIGNED_IN с тем же state.
func (s *Service) OAuthCallback(ctx context.Context, provider, state, code string) (*Session, error) {
	p, ok := s.providers[provider]
	if !ok {
		return nil, ErrUnknownProvider
	}

	saved, err := s.store.ConsumeOAuthState(ctx, state)
	if err != nil {
		return nil, err
	}
	if saved == "" || saved != provider {
		return nil, ErrInvalidState
	}

	token, err := p.Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("ошибка обмена кода авторизации %s: %w", provider, err)
	}

	info, err := p.fetchUserInfo(ctx, token)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByEmail(ctx, info.Email)
	if errors.Is(err, repository.ErrNotFound) {
		now := time.Now().UTC()
		user = &models.User{
			Email:            info.Email,
			Provider:         models.AuthProvider(provider),
			Name:             info.Name,
			PhotoURL:         info.pictureURL(),
			EmailConfirmedAt: &now,
		}
		if err := s.users.Create(ctx, user); err != nil {
			return nil, err
		}
		logger.Log.WithFields(logrus.Fields{
			"user_id":  user.ID,
			"provider": provider,
		}).Info("Создан пользователь через OAuth")
	} else if err != nil {
		return nil, err
	}

	return s.signIn(user, state)
}

// Authenticate проверяет токен и то, что сессия не завершена
func (s *Service) Authenticate(ctx context.Context, token string) (*Claims, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil, err
	}

	revoked, err := s.store.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrSessionRevoked
	}
	return claims, nil
}

// CurrentUser пользователь сессии
func (s *Service) CurrentUser(ctx context.Context, token string) (*models.User, *Claims, error) {
	claims, err := s.Authenticate(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, nil, err
	}
	return user, claims, nil
}

// Logout завершает сессию токена
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.Authenticate(ctx, token)
	if err != nil {
		return err
	}

	if err := s.store.RevokeToken(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return err
	}

	logger.Log.WithField("user_id", claims.UserID).Info("Пользователь вышел из системы")
	s.emit(AuthEvent{
		Type:      EventSignedOut,
		User:      &models.UserResponse{ID: claims.UserID, Email: claims.Email},
		SessionID: claims.ID,
	})
	return nil
}

// UpdateProfile обновляет профиль. При ошибке ничего не считается обновленным.
func (s *Service) UpdateProfile(ctx context.Context, userID uint, update models.ProfileUpdate) (*models.User, error) {
	user, err := s.users.UpdateProfile(ctx, userID, update)
	if err != nil {
		return nil, err
	}

	resp := user.ToResponse()
	s.emit(AuthEvent{Type: EventUserUpdated, User: &resp})
	return user, nil
}

// GetUser пользователь по id
func (s *Service) GetUser(ctx context.Context, userID uint) (*models.User, error) {
	return s.users.FindByID(ctx, userID)
}
