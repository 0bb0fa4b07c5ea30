package user

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/example/ec-shop/internal/auth"
	"github.com/example/ec-shop/internal/infrastructure/store"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const AggregateType = "User"

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidEmail       = errors.New("a valid email is required")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionEnded       = errors.New("session has ended")
)

var validate = validator.New()

// User is an account. PasswordHash never leaves the service boundary.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name,omitempty"`
	Role         auth.Role `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Session is one login. LogoutTime is set when the user logs out or the session is rotated.
type Session struct {
	ID               string     `json:"id"`
	UserID           string     `json:"userId"`
	RefreshTokenHash string     `json:"-"`
	IPAddress        string     `json:"ipAddress"`
	UserAgent        string     `json:"userAgent,omitempty"`
	LoginTime        time.Time  `json:"loginTime"`
	LogoutTime       *time.Time `json:"logoutTime,omitempty"`
	ExpiresAt        time.Time  `json:"expiresAt"`
}

func (s *Session) Active(now time.Time) bool {
	return s.LogoutTime == nil && now.Before(s.ExpiresAt)
}

type Repository interface {
	// Insert fails with ErrEmailTaken when the email is already registered.
	Insert(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
}

type SessionRepository interface {
	InsertSession(ctx context.Context, s *Session) error
	FindSession(ctx context.Context, id string) (*Session, error)
	EndSession(ctx context.Context, id string, at time.Time) error
	// ListSessions returns the user's sessions, most recent login first.
	ListSessions(ctx context.Context, userID string) ([]*Session, error)
}

// HashToken returns the hex SHA-256 of a refresh token; only the hash is stored.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isValidEmail(email string) bool {
	return len(email) <= 254 && validate.Var(email, "required,email") == nil
}

type Service struct {
	users    Repository
	sessions SessionRepository
	journal  store.Journal
	logger   *zap.Logger
}

func NewService(users Repository, sessions SessionRepository, journal store.Journal, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{users: users, sessions: sessions, journal: journal, logger: logger.Named("user")}
}

// Register creates a customer account. Public registration never grants admin.
func (s *Service) Register(ctx context.Context, email, password, name string) (*User, error) {
	return s.register(ctx, email, password, name, auth.RoleCustomer)
}

// EnsureAdmin creates the admin account if the email is not registered yet.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) (*User, error) {
	existing, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err == nil {
		if existing.Role != auth.RoleAdmin {
			s.logger.Warn("admin email belongs to a non-admin account", zap.String("user_id", existing.ID))
		}
		return existing, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}
	return s.register(ctx, email, password, "Administrator", auth.RoleAdmin)
}

func (s *Service) register(ctx context.Context, email, password, name string, role auth.Role) (*User, error) {
	email = normalizeEmail(email)
	if !isValidEmail(email) {
		return nil, ErrInvalidEmail
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	u := &User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: passwordHash,
		Name:         strings.TrimSpace(name),
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.Insert(ctx, u); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", zap.String("user_id", u.ID), zap.Stringer("role", role))
	s.record(ctx, u.ID, EventUserRegistered, UserRegistered{
		UserID:       u.ID,
		Email:        u.Email,
		Name:         u.Name,
		Role:         u.Role,
		RegisteredAt: u.CreatedAt,
	})
	return u, nil
}

// Authenticate checks credentials. Unknown email and wrong password are indistinguishable.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	u, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(password, u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.users.FindByID(ctx, id)
}

// NewSessionID allocates the id a refresh token is bound to before the session is stored.
func NewSessionID() string {
	return uuid.New().String()
}

// StartSession records a login.
func (s *Service) StartSession(ctx context.Context, sess *Session) error {
	if sess.LoginTime.IsZero() {
		sess.LoginTime = time.Now().UTC()
	}
	if err := s.sessions.InsertSession(ctx, sess); err != nil {
		return err
	}
	s.record(ctx, sess.UserID, EventUserLoggedIn, UserLoggedIn{
		UserID:    sess.UserID,
		SessionID: sess.ID,
		IPAddress: sess.IPAddress,
		UserAgent: sess.UserAgent,
		LoggedAt:  sess.LoginTime,
	})
	return nil
}

// EndSession stamps the logout time of one of the user's sessions.
func (s *Service) EndSession(ctx context.Context, userID, sessionID string) error {
	sess, err := s.sessions.FindSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.UserID != userID {
		return ErrSessionNotFound
	}
	if sess.LogoutTime != nil {
		return nil
	}

	now := time.Now().UTC()
	if err := s.sessions.EndSession(ctx, sessionID, now); err != nil {
		return err
	}
	s.record(ctx, userID, EventUserLoggedOut, UserLoggedOut{UserID: userID, SessionID: sessionID, LoggedAt: now})
	return nil
}

// VerifySession checks that refreshToken belongs to an active session of userID.
func (s *Service) VerifySession(ctx context.Context, userID, sessionID, refreshToken string) (*Session, error) {
	sess, err := s.sessions.FindSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID || sess.RefreshTokenHash != HashToken(refreshToken) {
		return nil, ErrSessionNotFound
	}
	if !sess.Active(time.Now()) {
		return nil, ErrSessionEnded
	}
	return sess, nil
}

func (s *Service) ListSessions(ctx context.Context, userID string) ([]*Session, error) {
	return s.sessions.ListSessions(ctx, userID)
}

func (s *Service) record(ctx context.Context, userID, eventType string, data any) {
	if s.journal == nil {
		return
	}
	if _, err := s.journal.Append(ctx, userID, AggregateType, eventType, data); err != nil {
		s.logger.Warn("failed to journal event",
			zap.String("event_type", eventType),
			zap.String("user_id", userID),
			zap.Error(err))
	}
}
