package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dhruv-158/Backend-chatter/internal/backbone"
	"github.com/Dhruv-158/Backend-chatter/internal/models"
	"github.com/Dhruv-158/Backend-chatter/internal/store/storetest"
)

func newAuthenticator(t *testing.T) (*Authenticator, *models.User) {
	t.Helper()
	mem := backbone.NewMemory()
	t.Cleanup(func() { mem.Close() })
	ds := storetest.New()
	user := ds.AddUser("alice")
	return NewAuthenticator("test-secret", ds, mem, time.Hour, 24*time.Hour), user
}

func TestIssueAndAuthenticate(t *testing.T) {
	a, user := newAuthenticator(t)
	ctx := context.Background()

	pair, err := a.IssuePair(ctx, user.ID)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	resolved, err := a.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, resolved.ID)
	assert.Equal(t, "alice", resolved.Username)
}

func TestAuthenticateMissingToken(t *testing.T) {
	a, _ := newAuthenticator(t)
	_, err := a.Authenticate(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestAuthenticateGarbageToken(t *testing.T) {
	a, _ := newAuthenticator(t)
	_, err := a.Authenticate(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticateRejectsRefreshToken(t *testing.T) {
	a, user := newAuthenticator(t)
	ctx := context.Background()

	pair, err := a.IssuePair(ctx, user.ID)
	require.NoError(t, err)

	// The refresh token is a valid JWT but the wrong class.
	_, err = a.Authenticate(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticateExpiredToken(t *testing.T) {
	mem := backbone.NewMemory()
	defer mem.Close()
	ds := storetest.New()
	user := ds.AddUser("alice")
	a := NewAuthenticator("test-secret", ds, mem, -time.Minute, 24*time.Hour)

	pair, err := a.IssuePair(context.Background(), user.ID)
	require.NoError(t, err)

	_, err = a.Authenticate(context.Background(), pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticateWrongSecret(t *testing.T) {
	a, user := newAuthenticator(t)
	ctx := context.Background()

	pair, err := a.IssuePair(ctx, user.ID)
	require.NoError(t, err)

	mem := backbone.NewMemory()
	defer mem.Close()
	other := NewAuthenticator("different-secret", storetest.New(), mem, time.Hour, 24*time.Hour)
	_, err = other.Authenticate(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticateUnknownUser(t *testing.T) {
	a, _ := newAuthenticator(t)
	ctx := context.Background()

	// A token for an account that does not exist in the store.
	pair, err := a.IssuePair(ctx, uuid.New())
	require.NoError(t, err)

	_, err = a.Authenticate(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrUnknownUser)
}

// Tools like gentoken sign Claims directly instead of going through
// IssuePair; those tokens must authenticate the same way.
func TestAuthenticateExternallyMintedToken(t *testing.T) {
	a, user := newAuthenticator(t)

	now := time.Now()
	claims := Claims{
		TokenType: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	resolved, err := a.Authenticate(context.Background(), signed)
	require.NoError(t, err)
	assert.Equal(t, user.ID, resolved.ID)
}

func TestRefreshRotatesTokens(t *testing.T) {
	a, user := newAuthenticator(t)
	ctx := context.Background()

	pair, err := a.IssuePair(ctx, user.ID)
	require.NoError(t, err)

	fresh, err := a.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, fresh.RefreshToken)

	resolved, err := a.Authenticate(ctx, fresh.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, resolved.ID)

	// The old refresh token was consumed during rotation.
	_, err = a.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

// unavailableBackbone stands in for a backbone that has entered
// degraded mode: reads cannot establish key absence.
type unavailableBackbone struct {
	*backbone.Memory
}

func (b unavailableBackbone) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, backbone.ErrUnavailable
}

func TestRefreshWithUnreachableBackbone(t *testing.T) {
	mem := backbone.NewMemory()
	defer mem.Close()
	ds := storetest.New()
	user := ds.AddUser("alice")
	a := NewAuthenticator("test-secret", ds, unavailableBackbone{mem}, time.Hour, 24*time.Hour)
	ctx := context.Background()

	pair, err := a.IssuePair(ctx, user.ID)
	require.NoError(t, err)

	// Revocation cannot be checked, but the token itself is valid;
	// the refresh goes through instead of locking the client out.
	fresh, err := a.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)

	resolved, err := a.Authenticate(ctx, fresh.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, resolved.ID)
}

func TestRevokeInvalidatesRefreshToken(t *testing.T) {
	a, user := newAuthenticator(t)
	ctx := context.Background()

	pair, err := a.IssuePair(ctx, user.ID)
	require.NoError(t, err)

	a.Revoke(ctx, pair.RefreshToken)
	a.Revoke(ctx, pair.RefreshToken) // idempotent

	_, err = a.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
