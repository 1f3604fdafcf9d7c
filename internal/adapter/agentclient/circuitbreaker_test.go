package agentclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"uplevel-orchestrator/internal/domain"
	"uplevel-orchestrator/internal/infra/config"
)

type scriptedCaller struct {
	mu       sync.Mutex
	queryErr error
	probes   int
}

func (s *scriptedCaller) Query(ctx context.Context, agent domain.Agent, msg domain.Message) (*domain.AgentResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return &domain.AgentResponse{AgentID: agent.ID, Status: domain.ResponseOK, Content: "ok"}, nil
}

func (s *scriptedCaller) Probe(ctx context.Context, agent domain.Agent) (time.Duration, error) {
	s.mu.Lock()
	s.probes++
	s.mu.Unlock()
	return time.Millisecond, nil
}

func newTestBreaker(inner domain.AgentCaller, maxFailures uint32) *BreakerCaller {
	return NewBreakerCaller(inner, config.CircuitBreakerConfig{
		MaxFailures: maxFailures,
		Timeout:     time.Minute,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &scriptedCaller{queryErr: domain.NewDomainError("t", domain.ErrDispatchTimeout, "fin")}
	b := newTestBreaker(inner, 3)
	agent := domain.Agent{ID: "fin", Endpoint: "http://fin.local"}
	msg := domain.Message{MessageID: "m1", ToAgent: "fin"}

	for i := 0; i < 3; i++ {
		if _, err := b.Query(context.Background(), agent, msg); !errors.Is(err, domain.ErrDispatchTimeout) {
			t.Fatalf("call %d: err = %v, want ErrDispatchTimeout", i+1, err)
		}
	}

	_, err := b.Query(context.Background(), agent, msg)
	if !errors.Is(err, domain.ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
}

func TestBreakerIsPerAgent(t *testing.T) {
	inner := &scriptedCaller{queryErr: domain.NewDomainError("t", domain.ErrDispatchTimeout, "fin")}
	b := newTestBreaker(inner, 2)
	fin := domain.Agent{ID: "fin"}
	msg := domain.Message{MessageID: "m1"}

	for i := 0; i < 2; i++ {
		b.Query(context.Background(), fin, msg)
	}
	if _, err := b.Query(context.Background(), fin, msg); !errors.Is(err, domain.ErrCircuitOpen) {
		t.Fatalf("fin circuit should be open, got %v", err)
	}

	// Another agent's circuit is untouched.
	inner.mu.Lock()
	inner.queryErr = nil
	inner.mu.Unlock()
	sales := domain.Agent{ID: "sales"}
	resp, err := b.Query(context.Background(), sales, msg)
	if err != nil {
		t.Fatalf("sales query: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("Content = %q", resp.Content)
	}
}

func TestProbeBypassesOpenCircuit(t *testing.T) {
	inner := &scriptedCaller{queryErr: domain.NewDomainError("t", domain.ErrDispatchTimeout, "fin")}
	b := newTestBreaker(inner, 1)
	agent := domain.Agent{ID: "fin"}

	b.Query(context.Background(), agent, domain.Message{MessageID: "m1"})
	if _, err := b.Query(context.Background(), agent, domain.Message{MessageID: "m2"}); !errors.Is(err, domain.ErrCircuitOpen) {
		t.Fatalf("circuit should be open, got %v", err)
	}

	if _, err := b.Probe(context.Background(), agent); err != nil {
		t.Fatalf("Probe blocked by open circuit: %v", err)
	}
	if inner.probes != 1 {
		t.Errorf("probes = %d, want 1", inner.probes)
	}
}
