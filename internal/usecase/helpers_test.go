package usecase

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"uplevel-orchestrator/internal/adapter/store"
	"uplevel-orchestrator/internal/domain"
	"uplevel-orchestrator/internal/usecase/eventbus"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestBus() *eventbus.Bus {
	return eventbus.New(discardLogger())
}

func newTestStore() domain.StateStore {
	return store.NewDocumentStore(store.NewMemoryKV())
}

// fakeCaller scripts per-agent responses and records every dispatch.
type fakeCaller struct {
	mu       sync.Mutex
	calls    []string
	respond  map[string]func(msg domain.Message) (*domain.AgentResponse, error)
	probeErr map[string]error
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{
		respond:  make(map[string]func(msg domain.Message) (*domain.AgentResponse, error)),
		probeErr: make(map[string]error),
	}
}

func (f *fakeCaller) ok(agentID, content string) {
	f.respond[agentID] = func(domain.Message) (*domain.AgentResponse, error) {
		return &domain.AgentResponse{AgentID: agentID, Status: domain.ResponseOK, Content: content}, nil
	}
}

func (f *fakeCaller) fail(agentID string, err error) {
	f.respond[agentID] = func(domain.Message) (*domain.AgentResponse, error) {
		return nil, err
	}
}

func (f *fakeCaller) Query(ctx context.Context, agent domain.Agent, msg domain.Message) (*domain.AgentResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, agent.ID)
	f.mu.Unlock()
	fn, ok := f.respond[agent.ID]
	if !ok {
		return nil, domain.NewDomainError("fakeCaller.Query", domain.ErrAgentUnreachable, agent.ID)
	}
	return fn(msg)
}

func (f *fakeCaller) Probe(ctx context.Context, agent domain.Agent) (time.Duration, error) {
	if err := f.probeErr[agent.ID]; err != nil {
		return 0, err
	}
	return time.Millisecond, nil
}

func (f *fakeCaller) callsTo(agentID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, id := range f.calls {
		if id == agentID {
			n++
		}
	}
	return n
}

func testRegistry(agents ...domain.Agent) *Registry {
	r := NewRegistry()
	for _, a := range agents {
		if err := r.Register(a); err != nil {
			panic(err)
		}
	}
	return r
}

func testAgent(id string, capabilities, keywords []string) domain.Agent {
	return domain.Agent{
		ID:           id,
		Name:         id,
		Endpoint:     "http://" + id + ".local:8000",
		Capabilities: capabilities,
		Keywords:     keywords,
	}
}
