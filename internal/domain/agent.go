package domain

import (
	"context"
	"time"
)

// AgentHealth represents the monitor's current view of a downstream agent.
type AgentHealth string

const (
	AgentHealthy     AgentHealth = "healthy"
	AgentDegraded    AgentHealth = "degraded"
	AgentUnreachable AgentHealth = "unreachable"
)

// Agent describes a downstream agent service the orchestrator can route to.
// Identity and endpoint come from configuration; health fields are mutated
// only by the health monitor.
type Agent struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Endpoint     string      `json:"endpoint"`
	Capabilities []string    `json:"capabilities"`
	Keywords     []string    `json:"keywords,omitempty"` // classifier corpus, in addition to capability tags
	AuthToken    string      `json:"-"`                  // never serialized
	Health       AgentHealth `json:"health"`
	LatencyMS    int64       `json:"latency_ms"`
	LastProbe    time.Time   `json:"last_probe,omitempty"`
}

// AgentCaller is the transport used to reach a downstream agent.
type AgentCaller interface {
	// Query sends one Agent2Agent message and returns the normalized response.
	Query(ctx context.Context, agent Agent, msg Message) (*AgentResponse, error)
	// Probe issues a liveness check and reports the observed round trip.
	Probe(ctx context.Context, agent Agent) (time.Duration, error)
}
