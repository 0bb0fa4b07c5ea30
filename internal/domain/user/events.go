package user

import (
	"time"

	"github.com/example/ec-shop/internal/auth"
)

const (
	EventUserRegistered = "UserRegistered"
	EventUserLoggedIn   = "UserLoggedIn"
	EventUserLoggedOut  = "UserLoggedOut"
)

// UserRegistered is emitted when a new account is created
type UserRegistered struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         auth.Role `json:"role"`
	RegisteredAt time.Time `json:"registered_at"`
}

// UserLoggedIn is emitted when a session starts
type UserLoggedIn struct {
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	LoggedAt  time.Time `json:"logged_at"`
}

// UserLoggedOut is emitted when a session ends
type UserLoggedOut struct {
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	LoggedAt  time.Time `json:"logged_at"`
}
