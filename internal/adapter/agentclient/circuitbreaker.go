package agentclient

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"uplevel-orchestrator/internal/domain"
	"uplevel-orchestrator/internal/infra/config"
)

// BreakerCaller wraps an AgentCaller with one circuit breaker per agent so a
// flapping agent cannot absorb dispatch capacity. Probes bypass the breaker;
// the health monitor must keep observing a tripped agent to restore it.
type BreakerCaller struct {
	inner  domain.AgentCaller
	cfg    config.CircuitBreakerConfig
	logger *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*domain.AgentResponse]
}

// NewBreakerCaller wraps inner with per-agent breakers tuned by cfg.
func NewBreakerCaller(inner domain.AgentCaller, cfg config.CircuitBreakerConfig, logger *slog.Logger) *BreakerCaller {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &BreakerCaller{
		inner:    inner,
		cfg:      cfg,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker[*domain.AgentResponse]),
	}
}

func (b *BreakerCaller) breakerFor(agentID string) *gobreaker.CircuitBreaker[*domain.AgentResponse] {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.breakers[agentID]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[*domain.AgentResponse](gobreaker.Settings{
		Name:     agentID,
		Interval: b.cfg.Interval,
		Timeout:  b.cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= b.cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("agent circuit state changed",
				"agent", name, "from", from.String(), "to", to.String())
		},
	})
	b.breakers[agentID] = cb
	return cb
}

func (b *BreakerCaller) Query(ctx context.Context, agent domain.Agent, msg domain.Message) (*domain.AgentResponse, error) {
	cb := b.breakerFor(agent.ID)
	resp, err := cb.Execute(func() (*domain.AgentResponse, error) {
		return b.inner.Query(ctx, agent, msg)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, domain.NewDomainError("agentclient.Query", domain.ErrCircuitOpen, agent.ID)
		}
		return nil, err
	}
	return resp, nil
}

// Probe delegates directly; liveness checks must reach a tripped agent so
// recovery can be observed.
func (b *BreakerCaller) Probe(ctx context.Context, agent domain.Agent) (time.Duration, error) {
	return b.inner.Probe(ctx, agent)
}
