// Package auth issues and validates the bearer tokens presented at
// connection establishment and on authenticated HTTP routes.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Dhruv-158/Backend-chatter/internal/backbone"
	"github.com/Dhruv-158/Backend-chatter/internal/models"
	"github.com/Dhruv-158/Backend-chatter/internal/store"
)

var (
	// ErrMissingToken means no credential was presented.
	ErrMissingToken = errors.New("authentication token required")
	// ErrInvalidToken means the credential is malformed, expired, or
	// not an access-class token.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrUnknownUser means the token is valid but the identity does
	// not resolve to an existing account.
	ErrUnknownUser = errors.New("user not found")
)

// Token classes carried in the token_type claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims is the JWT payload for both token classes.
type Claims struct {
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// Authenticator validates bearer credentials and resolves identities.
type Authenticator struct {
	secret     []byte
	users      store.DataStore
	backbone   backbone.Backbone
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewAuthenticator creates an Authenticator signing with secret.
func NewAuthenticator(secret string, users store.DataStore, b backbone.Backbone, accessTTL, refreshTTL time.Duration) *Authenticator {
	return &Authenticator{
		secret:     []byte(secret),
		users:      users,
		backbone:   b,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// TokenPair holds a freshly issued access/refresh token pair.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// IssuePair signs a new access/refresh token pair for userID. The
// refresh token is recorded in the backbone so it can be revoked.
func (a *Authenticator) IssuePair(ctx context.Context, userID uuid.UUID) (*TokenPair, error) {
	access, err := a.sign(userID, TokenTypeAccess, a.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := a.sign(userID, TokenTypeRefresh, a.refreshTTL)
	if err != nil {
		return nil, err
	}

	// Best-effort revocation record; refresh still works locally if
	// the backbone is down, it just cannot be revoked remotely.
	_ = a.backbone.Set(ctx, refreshKey(refresh), []byte(userID.String()), a.refreshTTL)

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (a *Authenticator) sign(userID uuid.UUID, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// parse validates the signature and expiry of tokenString and checks
// that it carries the wanted token class.
func (a *Authenticator) parse(tokenString, wantType string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != wantType {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Authenticate validates an access token and resolves it to a user.
// It mutates nothing on failure; the caller must re-establish the
// connection with a valid credential.
func (a *Authenticator) Authenticate(ctx context.Context, tokenString string) (*models.User, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	claims, err := a.parse(tokenString, TokenTypeAccess)
	if err != nil {
		return nil, err
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}

	user, err := a.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUnknownUser
	}
	return user, nil
}

// Refresh validates a refresh token and issues a fresh pair. The old
// refresh token is revoked.
func (a *Authenticator) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, ErrMissingToken
	}

	claims, err := a.parse(refreshToken, TokenTypeRefresh)
	if err != nil {
		return nil, err
	}

	// Revoked tokens are absent from the backbone. When the backbone
	// cannot answer at all, revocation is unverifiable; the signature
	// and expiry already passed, so the refresh proceeds rather than
	// locking every client out for the duration of the outage.
	if _, err := a.backbone.Get(ctx, refreshKey(refreshToken)); errors.Is(err, backbone.ErrNotFound) {
		return nil, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}

	_ = a.backbone.Delete(ctx, refreshKey(refreshToken))
	return a.IssuePair(ctx, userID)
}

// Revoke invalidates a refresh token. Idempotent.
func (a *Authenticator) Revoke(ctx context.Context, refreshToken string) {
	_ = a.backbone.Delete(ctx, refreshKey(refreshToken))
}

func refreshKey(token string) string {
	return "refresh:" + token
}
