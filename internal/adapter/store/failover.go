package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"uplevel-orchestrator/internal/domain"
)

// FailoverKV wraps a durable KV with an in-memory shadow. Writes always land
// in memory; when the durable side errors the store degrades and the key is
// marked dirty. Reconcile flushes dirty keys back once the durable side
// answers pings again.
type FailoverKV struct {
	durable KV
	memory  *MemoryKV
	bus     domain.EventBus
	logger  *slog.Logger

	mu       sync.Mutex
	degraded bool
	dirty    map[string]struct{}
}

// NewFailoverKV wraps durable with an in-memory fallback. bus may be nil.
func NewFailoverKV(durable KV, bus domain.EventBus, logger *slog.Logger) *FailoverKV {
	return &FailoverKV{
		durable: durable,
		memory:  NewMemoryKV(),
		bus:     bus,
		logger:  logger,
		dirty:   make(map[string]struct{}),
	}
}

func (f *FailoverKV) Get(ctx context.Context, key string) ([]byte, error) {
	if !f.isDegraded() {
		data, err := f.durable.Get(ctx, key)
		if err == nil {
			return data, nil
		}
		if errors.Is(err, domain.ErrNotFound) {
			// Absent durably, but a degraded period may have left it
			// only in memory.
			if data, memErr := f.memory.Get(ctx, key); memErr == nil {
				return data, nil
			}
			return nil, err
		}
		f.degrade(ctx, key, err)
	}
	return f.memory.Get(ctx, key)
}

func (f *FailoverKV) Set(ctx context.Context, key string, value []byte) error {
	// Memory is the source of truth during outages; write it first so a
	// durable failure never loses the record.
	if err := f.memory.Set(ctx, key, value); err != nil {
		return err
	}
	if f.isDegraded() {
		f.markDirty(key)
		return nil
	}
	if err := f.durable.Set(ctx, key, value); err != nil {
		f.degrade(ctx, key, err)
		f.markDirty(key)
	}
	return nil
}

// Ping reports the durable side's reachability so health surfaces show
// degraded mode. Reads and writes keep working via memory regardless.
func (f *FailoverKV) Ping(ctx context.Context) error {
	if err := f.durable.Ping(ctx); err != nil {
		f.degradeQuiet(ctx, err)
		return err
	}
	return nil
}

// Name reports the durable backend name, or "<backend>(degraded)" while
// running on the memory fallback.
func (f *FailoverKV) Name() string {
	if f.isDegraded() {
		return f.durable.Name() + "(degraded)"
	}
	return f.durable.Name()
}

func (f *FailoverKV) Close() error {
	memErr := f.memory.Close()
	if err := f.durable.Close(); err != nil {
		return err
	}
	return memErr
}

// Degraded reports whether the store is currently serving from memory.
func (f *FailoverKV) Degraded() bool { return f.isDegraded() }

// Reconcile probes the durable side and, if reachable again, flushes every
// dirty key from memory back to it. Intended to run on a schedule.
func (f *FailoverKV) Reconcile(ctx context.Context) error {
	f.mu.Lock()
	if !f.degraded {
		f.mu.Unlock()
		return nil
	}
	keys := make([]string, 0, len(f.dirty))
	for k := range f.dirty {
		keys = append(keys, k)
	}
	f.mu.Unlock()

	if err := f.durable.Ping(ctx); err != nil {
		return nil // still down, try again next tick
	}

	var failed []string
	for _, key := range keys {
		data, err := f.memory.Get(ctx, key)
		if err != nil {
			continue
		}
		if err := f.durable.Set(ctx, key, data); err != nil {
			failed = append(failed, key)
		}
	}
	if len(failed) > 0 {
		f.logger.Warn("store reconcile incomplete",
			"backend", f.durable.Name(),
			"flushed", len(keys)-len(failed),
			"remaining", len(failed))
		return nil
	}

	f.mu.Lock()
	f.degraded = false
	f.dirty = make(map[string]struct{})
	f.mu.Unlock()

	f.logger.Info("store recovered", "backend", f.durable.Name(), "flushed", len(keys))
	f.publish(ctx, domain.EventStoreRecovered, map[string]any{
		"backend": f.durable.Name(),
		"flushed": len(keys),
	})
	return nil
}

func (f *FailoverKV) isDegraded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.degraded
}

func (f *FailoverKV) markDirty(key string) {
	f.mu.Lock()
	f.dirty[key] = struct{}{}
	f.mu.Unlock()
}

func (f *FailoverKV) degrade(ctx context.Context, key string, err error) {
	f.mu.Lock()
	already := f.degraded
	f.degraded = true
	f.mu.Unlock()
	if already {
		return
	}
	f.logger.Warn("store degraded, falling back to memory",
		"backend", f.durable.Name(), "key", key, "error", err)
	f.publish(ctx, domain.EventStoreDegraded, map[string]any{
		"backend": f.durable.Name(),
		"error":   err.Error(),
	})
}

func (f *FailoverKV) degradeQuiet(ctx context.Context, err error) {
	f.mu.Lock()
	already := f.degraded
	f.degraded = true
	f.mu.Unlock()
	if already {
		return
	}
	f.logger.Warn("store ping failed, falling back to memory",
		"backend", f.durable.Name(), "error", err)
	f.publish(ctx, domain.EventStoreDegraded, map[string]any{
		"backend": f.durable.Name(),
		"error":   err.Error(),
	})
}

func (f *FailoverKV) publish(ctx context.Context, t domain.EventType, payload map[string]any) {
	if f.bus == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	f.bus.Publish(ctx, domain.Event{Type: t, Timestamp: time.Now().UTC(), Payload: raw})
}
