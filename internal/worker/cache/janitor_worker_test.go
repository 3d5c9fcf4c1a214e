package cache_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mapsync-service/internal/worker/cache"
)

type fakePurger struct {
	calls atomic.Int32
	err   error
}

func (p *fakePurger) PurgeExpired(context.Context) (int64, error) {
	p.calls.Add(1)
	return 3, p.err
}

func TestJanitorWorker(t *testing.T) {
	clk := clock.NewMock()
	purger := &fakePurger{err: errors.New("db down")}
	w := cache.NewJanitorWorker(purger, 0, clk, zap.NewNop())
	assert.Equal(t, cache.DefaultJanitorInterval, w.Interval())

	done := make(chan error, 1)
	go func() { done <- w.Start(context.Background()) }()

	require.Eventually(t, func() bool {
		clk.Add(cache.DefaultJanitorInterval)
		return purger.calls.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, w.Stop())
	assert.NoError(t, <-done)
}
