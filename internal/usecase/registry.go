package usecase

import (
	"sync"
	"time"

	"uplevel-orchestrator/internal/domain"
)

// Registry tracks the downstream agents the orchestrator can route to.
// Registration order is preserved; classification tie-breaks and
// collaborative output ordering depend on it.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*domain.Agent
	order  []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]*domain.Agent)}
}

// Register adds an agent. Agents start healthy; the monitor demotes them.
func (r *Registry) Register(agent domain.Agent) error {
	if agent.ID == "" {
		return domain.NewDomainError("Registry.Register", domain.ErrInvalidInput, "agent id is required")
	}
	if agent.Endpoint == "" {
		return domain.NewDomainError("Registry.Register", domain.ErrInvalidInput, "agent endpoint is required")
	}
	if len(agent.Capabilities) == 0 {
		return domain.NewDomainError("Registry.Register", domain.ErrInvalidInput, "at least one capability is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[agent.ID]; exists {
		return domain.NewDomainError("Registry.Register", domain.ErrAgentDuplicate, agent.ID)
	}
	if agent.Health == "" {
		agent.Health = domain.AgentHealthy
	}
	stored := agent
	r.agents[agent.ID] = &stored
	r.order = append(r.order, agent.ID)
	return nil
}

// Get returns a copy of the agent, or ErrAgentNotFound.
func (r *Registry) Get(id string) (domain.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.agents[id]
	if !ok {
		return domain.Agent{}, domain.NewDomainError("Registry.Get", domain.ErrAgentNotFound, id)
	}
	return *agent, nil
}

// List returns copies of all agents in registration order.
func (r *Registry) List() []domain.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Agent, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.agents[id])
	}
	return out
}

// UpdateHealth records the monitor's view of an agent. Returns the previous
// health so callers can detect transitions.
func (r *Registry) UpdateHealth(id string, health domain.AgentHealth, latency time.Duration) (domain.AgentHealth, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	agent, ok := r.agents[id]
	if !ok {
		return "", domain.NewDomainError("Registry.UpdateHealth", domain.ErrAgentNotFound, id)
	}
	prev := agent.Health
	agent.Health = health
	agent.LatencyMS = latency.Milliseconds()
	agent.LastProbe = time.Now().UTC()
	return prev, nil
}

// Available returns agents currently considered dispatchable, in
// registration order. Degraded agents still receive traffic.
func (r *Registry) Available() []domain.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Agent, 0, len(r.order))
	for _, id := range r.order {
		if r.agents[id].Health != domain.AgentUnreachable {
			out = append(out, *r.agents[id])
		}
	}
	return out
}
