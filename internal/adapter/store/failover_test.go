package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uplevel-orchestrator/internal/domain"
	"uplevel-orchestrator/internal/usecase/eventbus"
)

// flakyKV is a MemoryKV whose durable behavior can be switched off to
// simulate an outage.
type flakyKV struct {
	inner *MemoryKV
	mu    sync.Mutex
	down  bool
}

func newFlakyKV() *flakyKV {
	return &flakyKV{inner: NewMemoryKV()}
}

func (f *flakyKV) setDown(down bool) {
	f.mu.Lock()
	f.down = down
	f.mu.Unlock()
}

func (f *flakyKV) isDown() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.down
}

func (f *flakyKV) Get(ctx context.Context, key string) ([]byte, error) {
	if f.isDown() {
		return nil, errors.New("connection refused")
	}
	return f.inner.Get(ctx, key)
}

func (f *flakyKV) Set(ctx context.Context, key string, value []byte) error {
	if f.isDown() {
		return errors.New("connection refused")
	}
	return f.inner.Set(ctx, key, value)
}

func (f *flakyKV) Ping(ctx context.Context) error {
	if f.isDown() {
		return errors.New("connection refused")
	}
	return nil
}

func (f *flakyKV) Name() string { return "flaky" }
func (f *flakyKV) Close() error { return nil }

func testFailover(t *testing.T) (*FailoverKV, *flakyKV, *eventbus.Bus) {
	t.Helper()
	durable := newFlakyKV()
	bus := eventbus.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return NewFailoverKV(durable, bus, slog.New(slog.NewTextHandler(io.Discard, nil))), durable, bus
}

func TestFailoverPassesThroughWhenHealthy(t *testing.T) {
	f, durable, _ := testFailover(t)
	ctx := context.Background()

	require.NoError(t, f.Set(ctx, "k", []byte("v")))
	got, err := f.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
	assert.False(t, f.Degraded())

	// Value reached the durable side.
	stored, err := durable.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), stored)
}

func TestFailoverServesFromMemoryDuringOutage(t *testing.T) {
	f, durable, bus := testFailover(t)
	ctx := context.Background()

	degraded := 0
	bus.Subscribe(domain.EventStoreDegraded, func(_ context.Context, e domain.Event) { degraded++ })

	durable.setDown(true)
	require.NoError(t, f.Set(ctx, "k", []byte("v")))

	got, err := f.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
	assert.True(t, f.Degraded())
	assert.Equal(t, 1, degraded, "degraded event published exactly once")
	assert.Contains(t, f.Name(), "degraded")
}

func TestFailoverReconcileFlushesDirtyKeys(t *testing.T) {
	f, durable, bus := testFailover(t)
	ctx := context.Background()

	recovered := 0
	bus.Subscribe(domain.EventStoreRecovered, func(_ context.Context, e domain.Event) { recovered++ })

	durable.setDown(true)
	require.NoError(t, f.Set(ctx, "a", []byte("1")))
	require.NoError(t, f.Set(ctx, "b", []byte("2")))

	// Still down: reconcile is a no-op.
	require.NoError(t, f.Reconcile(ctx))
	assert.True(t, f.Degraded())

	durable.setDown(false)
	require.NoError(t, f.Reconcile(ctx))
	assert.False(t, f.Degraded())
	assert.Equal(t, 1, recovered)

	got, err := durable.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)
	got, err = durable.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), got)
}

func TestFailoverMemoryWriteSurvivesMidFlightFailure(t *testing.T) {
	f, durable, _ := testFailover(t)
	ctx := context.Background()

	// Healthy write, then the durable side dies before the next one.
	require.NoError(t, f.Set(ctx, "old", []byte("durable")))
	durable.setDown(true)
	require.NoError(t, f.Set(ctx, "new", []byte("memory-only")))

	// Both keys readable during the outage.
	got, err := f.Get(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, []byte("durable"), got)
	got, err = f.Get(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, []byte("memory-only"), got)
}

func TestFailoverNotFoundIsNotAnOutage(t *testing.T) {
	f, _, _ := testFailover(t)
	_, err := f.Get(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.False(t, f.Degraded(), "a miss must not trip failover")
}
