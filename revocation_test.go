package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/authxlabs/go-authx"
)

func newTestRegistry(t *testing.T) (*auth.RedisRevocationRegistry, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return auth.NewRevocationRegistry(client), mr
}

func TestRegistryRecordAndRevoke(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, registry.Record(ctx, "token-a", userID, time.Now().Add(time.Hour)))

	revoked, err := registry.IsRevoked(ctx, "token-a")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, registry.Revoke(ctx, "token-a"))

	revoked, err = registry.IsRevoked(ctx, "token-a")
	require.NoError(t, err)
	assert.True(t, revoked)

	// revoking again is a no-op
	assert.NoError(t, registry.Revoke(ctx, "token-a"))
}

func TestRegistryUnknownTokenIsRevoked(t *testing.T) {
	registry, _ := newTestRegistry(t)

	revoked, err := registry.IsRevoked(context.Background(), "never-recorded")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestRegistryEntriesExpireWithTheToken(t *testing.T) {
	registry, mr := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, registry.Record(ctx, "token-a", uuid.New(), time.Now().Add(time.Minute)))

	mr.FastForward(2 * time.Minute)

	revoked, err := registry.IsRevoked(ctx, "token-a")
	require.NoError(t, err)
	assert.True(t, revoked, "expired entries are no longer honored")
}

func TestRegistryRotateHasSingleWinner(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()
	userID := uuid.New()
	expires := time.Now().Add(time.Hour)

	require.NoError(t, registry.Record(ctx, "old", userID, expires))

	claimed, err := registry.Rotate(ctx, "old", "new-1", userID, expires)
	require.NoError(t, err)
	assert.True(t, claimed)

	// replaying the consumed token loses the claim
	claimed, err = registry.Rotate(ctx, "old", "new-2", userID, expires)
	require.NoError(t, err)
	assert.False(t, claimed)

	revoked, err := registry.IsRevoked(ctx, "new-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	revoked, err = registry.IsRevoked(ctx, "new-2")
	require.NoError(t, err)
	assert.True(t, revoked, "the loser's replacement was never recorded")
}

func TestRegistryRotateRejectsForeignTokens(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()
	owner := uuid.New()
	expires := time.Now().Add(time.Hour)

	require.NoError(t, registry.Record(ctx, "owned", owner, expires))

	claimed, err := registry.Rotate(ctx, "owned", "stolen", uuid.New(), expires)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestRegistryRevokeAll(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()
	userID := uuid.New()
	other := uuid.New()
	expires := time.Now().Add(time.Hour)

	require.NoError(t, registry.Record(ctx, "a", userID, expires))
	require.NoError(t, registry.Record(ctx, "b", userID, expires))
	require.NoError(t, registry.Record(ctx, "c", other, expires))

	require.NoError(t, registry.RevokeAll(ctx, userID))

	for _, token := range []string{"a", "b"} {
		revoked, err := registry.IsRevoked(ctx, token)
		require.NoError(t, err)
		assert.True(t, revoked, "token %q", token)
	}

	revoked, err := registry.IsRevoked(ctx, "c")
	require.NoError(t, err)
	assert.False(t, revoked, "other users keep their sessions")
}

func TestRegistryRevokeAllExceptKeepsTheCurrentSession(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()
	userID := uuid.New()
	expires := time.Now().Add(time.Hour)

	require.NoError(t, registry.Record(ctx, "keep-me", userID, expires))
	require.NoError(t, registry.Record(ctx, "drop-me", userID, expires))

	require.NoError(t, registry.RevokeAllExcept(ctx, userID, "keep-me"))

	revoked, err := registry.IsRevoked(ctx, "keep-me")
	require.NoError(t, err)
	assert.False(t, revoked)

	revoked, err = registry.IsRevoked(ctx, "drop-me")
	require.NoError(t, err)
	assert.True(t, revoked)
}
