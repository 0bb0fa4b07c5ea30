package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	Issuer = "ec-shop"

	audienceAccess  = "access"
	audienceRefresh = "refresh"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims is the payload of an access token.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
	jwt.RegisteredClaims
}

// RefreshClaims identifies the session a refresh token belongs to.
type RefreshClaims struct {
	UserID    string
	SessionID string
}

// JWTService signs and verifies HS256 tokens. Access and refresh tokens share the key
// and are told apart by their audience.
type JWTService struct {
	secretKey          []byte
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
}

func NewJWTService(secretKey string, accessExpiry, refreshExpiry time.Duration) *JWTService {
	return &JWTService{
		secretKey:          []byte(secretKey),
		accessTokenExpiry:  accessExpiry,
		refreshTokenExpiry: refreshExpiry,
	}
}

func (s *JWTService) registered(subject, audience string, ttl time.Duration) jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		Issuer:    Issuer,
		Subject:   subject,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (s *JWTService) sign(claims jwt.Claims, expiresAt *jwt.NumericDate) (string, time.Time, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secretKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt.Time, nil
}

func (s *JWTService) GenerateAccessToken(userID, email string, role Role) (string, time.Time, error) {
	claims := &Claims{
		UserID:           userID,
		Email:            email,
		Role:             role,
		RegisteredClaims: s.registered(userID, audienceAccess, s.accessTokenExpiry),
	}
	return s.sign(claims, claims.ExpiresAt)
}

// GenerateRefreshToken binds a refresh token to sessionID through the jti claim.
func (s *JWTService) GenerateRefreshToken(userID, sessionID string) (string, time.Time, error) {
	claims := s.registered(userID, audienceRefresh, s.refreshTokenExpiry)
	claims.ID = sessionID
	return s.sign(&claims, claims.ExpiresAt)
}

// ValidateAccessToken rejects tokens without a user id or with a role outside the closed set.
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if err := s.parse(tokenString, claims, audienceAccess); err != nil {
		return nil, err
	}
	if claims.UserID == "" || claims.UserID != claims.Subject {
		return nil, ErrInvalidToken
	}
	role, err := ParseRole(string(claims.Role))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims.Role = role
	return claims, nil
}

func (s *JWTService) ValidateRefreshToken(tokenString string) (*RefreshClaims, error) {
	claims := &jwt.RegisteredClaims{}
	if err := s.parse(tokenString, claims, audienceRefresh); err != nil {
		return nil, err
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return &RefreshClaims{UserID: claims.Subject, SessionID: claims.ID}, nil
}

func (s *JWTService) parse(tokenString string, claims jwt.Claims, audience string) error {
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return s.secretKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpiredToken
	default:
		return ErrInvalidToken
	}
}

func (s *JWTService) AccessTokenExpiry() time.Duration {
	return s.accessTokenExpiry
}

func (s *JWTService) RefreshTokenExpiry() time.Duration {
	return s.refreshTokenExpiry
}
