package valkey

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valkey-io/valkey-go"
	"go.uber.org/zap"

	"github.com/mapsync-service/internal/domain"
)

func setupValkey(t *testing.T) (*miniredis.Miniredis, *Cache) {
	t.Helper()
	mr := miniredis.RunT(t)

	c, err := NewWithOption(valkey.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return mr, c
}

func TestCache_SetGetDelete(t *testing.T) {
	mr, c := setupValkey(t)
	ctx := context.Background()

	inserted := time.Date(2025, 6, 1, 22, 0, 0, 0, time.UTC)
	clk := clock.NewMock()
	clk.Set(inserted)
	c.WithClock(clk)

	entry := domain.NewStoredEntry(inserted, 7*24*time.Hour, []byte(`"Medium"`))
	require.NoError(t, c.Set(ctx, "route-labels", "9f2c", entry))
	assert.Equal(t, 7*24*time.Hour, mr.TTL("mapsync:route-labels:9f2c"))

	got, err := c.Get(ctx, "route-labels", "9f2c")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entry.Timestamp, got.Timestamp)
	assert.JSONEq(t, `"Medium"`, string(got.Value))

	require.NoError(t, c.Delete(ctx, "route-labels", "9f2c"))
	got, err = c.Get(ctx, "route-labels", "9f2c")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCache_ExpiryFollowsRemainingLifetime(t *testing.T) {
	mr, c := setupValkey(t)
	ctx := context.Background()

	inserted := time.Date(2025, 6, 1, 22, 0, 0, 0, time.UTC)
	clk := clock.NewMock()
	clk.Set(inserted.Add(10 * time.Minute))
	c.WithClock(clk)

	entry := domain.NewStoredEntry(inserted, 30*time.Minute, []byte(`[]`))
	require.NoError(t, c.Set(ctx, "venues", "aged", entry))
	assert.Equal(t, 20*time.Minute, mr.TTL("mapsync:venues:aged"))

	clk.Set(inserted.Add(time.Hour))
	require.NoError(t, c.Set(ctx, "venues", "expired", entry))
	assert.False(t, mr.Exists("mapsync:venues:expired"))
}

func TestCache_MalformedIsMiss(t *testing.T) {
	mr, c := setupValkey(t)
	require.NoError(t, mr.Set("mapsync:venues:bad", "nope"))

	got, err := c.Get(context.Background(), "venues", "bad")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.False(t, mr.Exists("mapsync:venues:bad"))
}
