package auth

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/waypointapp/waypoint-server/internal/errors"
)

func newTestService(t *testing.T) *TokenService {
	t.Helper()
	key, err := LoadOrGenerateKey(t.TempDir())
	require.NoError(t, err)
	svc, err := NewTokenService(key, time.Hour)
	require.NoError(t, err)
	return svc
}

func TestTokenService_RoundTrip(t *testing.T) {
	svc := newTestService(t)

	token, expires, err := svc.GenerateAccessToken("user-ada", "Ada")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, "v4.local."))
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	claims, err := svc.VerifyAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-ada", claims.UserID)
	assert.Equal(t, "Ada", claims.Name)
	assert.Equal(t, "user-ada", claims.Subject)
	assert.True(t, strings.HasPrefix(claims.TokenID, "token-"))
}

func TestTokenService_Expired(t *testing.T) {
	svc := newTestService(t)
	token, _, err := svc.GenerateAccessToken("user-ada", "Ada")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.VerifyAccessToken(token)
	require.Error(t, err)
	assert.Equal(t, domainerrors.CodeTokenExpired, domainerrors.CodeOf(err))
}

func TestTokenService_RejectsForeignKeyAndGarbage(t *testing.T) {
	a := newTestService(t)
	b := newTestService(t)
	token, _, err := a.GenerateAccessToken("user-ada", "Ada")
	require.NoError(t, err)

	_, err = b.VerifyAccessToken(token)
	assert.Equal(t, domainerrors.CodeUnauthorized, domainerrors.CodeOf(err))

	_, err = a.VerifyAccessToken("not-a-token")
	assert.Equal(t, domainerrors.CodeUnauthorized, domainerrors.CodeOf(err))
}

func TestNewTokenService_Validation(t *testing.T) {
	_, err := NewTokenService([]byte("short"), time.Hour)
	assert.Error(t, err)

	_, err = NewTokenService(make([]byte, keyLength), 0)
	assert.Error(t, err)
}

func TestLoadOrGenerateKey_Persists(t *testing.T) {
	dir := t.TempDir()
	first, err := LoadOrGenerateKey(dir)
	require.NoError(t, err)
	second, err := LoadOrGenerateKey(dir)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	info, err := os.Stat(filepath.Join(dir, "auth.key"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestResolveKey(t *testing.T) {
	hexKey := strings.Repeat("ab", keyLength)
	key, err := ResolveKey(hexKey, t.TempDir())
	require.NoError(t, err)
	assert.Len(t, key, keyLength)

	_, err = ResolveKey("zz", t.TempDir())
	assert.Error(t, err)

	dir := t.TempDir()
	key, err = ResolveKey("", dir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "auth.key"))
	assert.Len(t, key, keyLength)
}

func TestClaimsContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, UserIDFrom(ctx))

	ctx = WithClaims(ctx, &AccessClaims{UserID: "user-ada"})
	assert.Equal(t, "user-ada", UserIDFrom(ctx))
	c, ok := ClaimsFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "user-ada", c.UserID)
}
