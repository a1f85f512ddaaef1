package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/loki_dashboard/internal/domain"
)

func TestRedisSessionStore_RoundTrip(t *testing.T) {
	addr := os.Getenv("LOKI_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LOKI_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	key := "loki:test:" + uuid.NewString()

	store, err := NewRedisSessionStore(ctx, addr, "", 0, key)
	require.NoError(t, err)
	defer store.Close()
	defer store.ClearSession(ctx)

	s, err := store.LoadSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)

	expires := time.Now().Add(time.Hour).Truncate(time.Millisecond).UTC()
	require.NoError(t, store.SaveSession(ctx, &domain.AuthSession{Token: "tok", ExpiresAt: expires}))

	s, err = store.LoadSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "tok", s.Token)
	assert.True(t, s.ExpiresAt.Equal(expires))

	ttl, err := store.client.TTL(ctx, key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Minute)

	require.NoError(t, store.ClearSession(ctx))
	s, err = store.LoadSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)
}
