// Package auth issues and verifies the bearer tokens that identify a user
// to the HTTP and WebSocket surfaces.
package auth

import (
	"blindchat/backend/internal/models"
	"context"
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "blindchat-service"

// Identity is the authenticated caller.
type Identity struct {
	UserID    string
	TokenID   string
	ExpiresAt time.Time
}

// Service is created once at startup and shared by every handler.
type Service struct {
	secret  []byte
	ttl     time.Duration
	revoker Revoker
	Now     func() time.Time
}

func NewService(secret string, ttl time.Duration, revoker Revoker) *Service {
	return &Service{secret: []byte(secret), ttl: ttl, revoker: revoker, Now: time.Now}
}

// Issue signs a token for userID.
func (s *Service) Issue(userID string) (string, *Identity, error) {
	now := s.Now()
	id := &Identity{
		UserID:    userID,
		TokenID:   uuid.NewString(),
		ExpiresAt: now.Add(s.ttl).Truncate(time.Second),
	}
	claims := jwt.RegisteredClaims{
		Subject:   id.UserID,
		ID:        id.TokenID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(id.ExpiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return token, id, nil
}

// Verify checks signature, expiry and revocation. Every rejection wraps
// models.ErrNotAuthenticated.
func (s *Service) Verify(ctx context.Context, token string) (*Identity, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrNotAuthenticated, err)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: incomplete claims", models.ErrNotAuthenticated)
	}

	revoked, err := s.revoker.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, fmt.Errorf("%w: token revoked", models.ErrNotAuthenticated)
	}

	return &Identity{
		UserID:    claims.Subject,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Logout revokes the caller's token until it would have expired anyway.
func (s *Service) Logout(ctx context.Context, id *Identity) error {
	if id == nil {
		return models.ErrNotAuthenticated
	}
	ttl := id.ExpiresAt.Sub(s.Now())
	if ttl <= 0 {
		return nil
	}
	return s.revoker.Revoke(ctx, id.TokenID, ttl)
}

type identityKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the caller placed by the middleware.
func FromContext(ctx context.Context) (*Identity, error) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	if !ok || id == nil {
		return nil, models.ErrNotAuthenticated
	}
	return id, nil
}

// IsUnauthenticated reports whether err is an authentication failure.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, models.ErrNotAuthenticated)
}
