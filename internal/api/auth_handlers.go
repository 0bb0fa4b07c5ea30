package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/example/ec-shop/internal/api/middleware"
	"github.com/example/ec-shop/internal/auth"
	"github.com/example/ec-shop/internal/domain/user"
	"go.uber.org/zap"
)

const (
	refreshTokenCookie = "refresh_token"
	refreshCookiePath  = "/refresh"
)

type UserService interface {
	Register(ctx context.Context, email, password, name string) (*user.User, error)
	Authenticate(ctx context.Context, email, password string) (*user.User, error)
	Get(ctx context.Context, id string) (*user.User, error)
	StartSession(ctx context.Context, sess *user.Session) error
	EndSession(ctx context.Context, userID, sessionID string) error
	VerifySession(ctx context.Context, userID, sessionID, refreshToken string) (*user.Session, error)
	ListSessions(ctx context.Context, userID string) ([]*user.Session, error)
}

// AuthHandlers handles authentication-related HTTP requests
type AuthHandlers struct {
	users  UserService
	jwt    *auth.JWTService
	logger *zap.Logger
}

func NewAuthHandlers(users UserService, jwtService *auth.JWTService, logger *zap.Logger) *AuthHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandlers{users: users, jwt: jwtService, logger: logger.Named("auth")}
}

type registerRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// authResponse carries the access token for clients that do not keep cookies.
type authResponse struct {
	User         *user.User `json:"user"`
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
	ExpiresAt    time.Time  `json:"expiresAt"`
	Message      string     `json:"message,omitempty"`
}

func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	u, err := h.users.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	resp, err := h.startSession(w, r, u)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	resp.Message = "Registration successful"
	respondJSON(w, http.StatusCreated, resp)
}

func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	u, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	resp, err := h.startSession(w, r, u)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	resp.Message = "Login successful"
	respondJSON(w, http.StatusOK, resp)
}

// Logout ends the session named by the refresh token, if one was presented, and clears the cookies.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, &body); err != nil {
			writeError(w, h.logger, err)
			return
		}
	}

	userID := middleware.GetUserID(r.Context())
	if token := refreshTokenFrom(r, body.RefreshToken); token != "" {
		if rc, err := h.jwt.ValidateRefreshToken(token); err == nil && rc.UserID == userID {
			if err := h.users.EndSession(r.Context(), userID, rc.SessionID); err != nil {
				h.logger.Warn("failed to end session",
					zap.String("user_id", userID),
					zap.String("session_id", rc.SessionID),
					zap.Error(err))
			}
		}
	}

	h.clearAuthCookies(w)
	respondJSON(w, http.StatusOK, map[string]string{"message": "Logout successful"})
}

// Refresh rotates the session: the presented refresh token is retired and a new pair is issued.
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, &body); err != nil {
			writeError(w, h.logger, err)
			return
		}
	}

	token := refreshTokenFrom(r, body.RefreshToken)
	if token == "" {
		respondError(w, http.StatusUnauthorized, CodeUnauthenticated, "no refresh token")
		return
	}

	rc, err := h.jwt.ValidateRefreshToken(token)
	if err != nil {
		h.clearAuthCookies(w)
		respondError(w, http.StatusUnauthorized, CodeUnauthenticated, "invalid refresh token")
		return
	}

	if _, err := h.users.VerifySession(r.Context(), rc.UserID, rc.SessionID, token); err != nil {
		h.clearAuthCookies(w)
		writeError(w, h.logger, err)
		return
	}

	u, err := h.users.Get(r.Context(), rc.UserID)
	if err != nil {
		h.clearAuthCookies(w)
		writeError(w, h.logger, err)
		return
	}

	if err := h.users.EndSession(r.Context(), rc.UserID, rc.SessionID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	resp, err := h.startSession(w, r, u)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	resp.Message = "Token refreshed"
	respondJSON(w, http.StatusOK, resp)
}

// Me returns the current authenticated user's information
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.Get(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, u)
}

func (h *AuthHandlers) Sessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.users.ListSessions(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if sessions == nil {
		sessions = []*user.Session{}
	}
	respondJSON(w, http.StatusOK, sessions)
}

// startSession issues a token pair bound to a new session and sets the auth cookies.
func (h *AuthHandlers) startSession(w http.ResponseWriter, r *http.Request, u *user.User) (*authResponse, error) {
	accessToken, accessExpiry, err := h.jwt.GenerateAccessToken(u.ID, u.Email, u.Role)
	if err != nil {
		return nil, err
	}

	sessionID := user.NewSessionID()
	refreshToken, refreshExpiry, err := h.jwt.GenerateRefreshToken(u.ID, sessionID)
	if err != nil {
		return nil, err
	}

	sess := &user.Session{
		ID:               sessionID,
		UserID:           u.ID,
		RefreshTokenHash: user.HashToken(refreshToken),
		IPAddress:        clientIP(r),
		UserAgent:        r.UserAgent(),
		ExpiresAt:        refreshExpiry,
	}
	if err := h.users.StartSession(r.Context(), sess); err != nil {
		return nil, err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    accessToken,
		Path:     "/",
		Expires:  accessExpiry,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshTokenCookie,
		Value:    refreshToken,
		Path:     refreshCookiePath,
		Expires:  refreshExpiry,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})

	return &authResponse{
		User:         u,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    accessExpiry,
	}, nil
}

func (h *AuthHandlers) clearAuthCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshTokenCookie,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
	})
}

func refreshTokenFrom(r *http.Request, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	if cookie, err := r.Cookie(refreshTokenCookie); err == nil {
		return cookie.Value
	}
	return ""
}

// clientIP strips the port from RemoteAddr, which chi's RealIP has already rewritten behind a proxy.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
