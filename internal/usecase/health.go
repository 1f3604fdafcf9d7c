package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"uplevel-orchestrator/internal/domain"
	"uplevel-orchestrator/internal/infra/config"
)

// HealthMonitor probes registered agents on a schedule and maintains their
// health in the registry. An agent is demoted to unreachable after
// FailureThreshold consecutive probe failures; a single successful probe
// restores it to healthy.
type HealthMonitor struct {
	registry *Registry
	caller   domain.AgentCaller
	bus      domain.EventBus
	cfg      config.HealthConfig
	logger   *slog.Logger

	cron *cron.Cron

	mu       sync.Mutex
	failures map[string]int
}

// NewHealthMonitor creates a monitor; call Start to begin probing.
func NewHealthMonitor(registry *Registry, caller domain.AgentCaller, bus domain.EventBus, cfg config.HealthConfig, logger *slog.Logger) *HealthMonitor {
	return &HealthMonitor{
		registry: registry,
		caller:   caller,
		bus:      bus,
		cfg:      cfg,
		logger:   logger,
		failures: make(map[string]int),
	}
}

// Start probes all agents once immediately, then on the configured interval.
func (m *HealthMonitor) Start(ctx context.Context) error {
	m.ProbeAll(ctx)

	m.cron = cron.New()
	_, err := m.cron.AddFunc("@every "+m.cfg.Interval.String(), func() {
		m.ProbeAll(ctx)
	})
	if err != nil {
		return domain.WrapOp("HealthMonitor.Start", err)
	}
	m.cron.Start()
	return nil
}

// Stop halts scheduled probing and waits for a running sweep to finish.
func (m *HealthMonitor) Stop() {
	if m.cron != nil {
		<-m.cron.Stop().Done()
	}
}

// ProbeAll sweeps every registered agent once.
func (m *HealthMonitor) ProbeAll(ctx context.Context) {
	for _, agent := range m.registry.List() {
		m.probe(ctx, agent)
	}
}

func (m *HealthMonitor) probe(ctx context.Context, agent domain.Agent) {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	latency, err := m.caller.Probe(probeCtx, agent)
	cancel()

	if err != nil {
		m.recordFailure(ctx, agent, latency, err)
		return
	}
	m.recordSuccess(ctx, agent, latency)
}

func (m *HealthMonitor) recordFailure(ctx context.Context, agent domain.Agent, latency time.Duration, probeErr error) {
	m.mu.Lock()
	m.failures[agent.ID]++
	count := m.failures[agent.ID]
	m.mu.Unlock()

	health := domain.AgentDegraded
	if count >= m.cfg.FailureThreshold {
		health = domain.AgentUnreachable
	}

	prev, err := m.registry.UpdateHealth(agent.ID, health, latency)
	if err != nil {
		return
	}
	m.logger.Warn("agent probe failed",
		"agent", agent.ID, "consecutive", count, "health", health, "error", probeErr)
	if prev != health {
		m.publishTransition(ctx, agent.ID, prev, health)
	}
}

func (m *HealthMonitor) recordSuccess(ctx context.Context, agent domain.Agent, latency time.Duration) {
	m.mu.Lock()
	m.failures[agent.ID] = 0
	m.mu.Unlock()

	prev, err := m.registry.UpdateHealth(agent.ID, domain.AgentHealthy, latency)
	if err != nil {
		return
	}
	if prev != domain.AgentHealthy {
		m.logger.Info("agent recovered", "agent", agent.ID, "latency_ms", latency.Milliseconds())
		m.publishTransition(ctx, agent.ID, prev, domain.AgentHealthy)
	}
}

func (m *HealthMonitor) publishTransition(ctx context.Context, agentID string, from, to domain.AgentHealth) {
	payload, err := json.Marshal(map[string]any{
		"agent_id": agentID,
		"from":     from,
		"to":       to,
	})
	if err != nil {
		return
	}
	m.bus.Publish(ctx, domain.Event{
		Type:      domain.EventAgentHealthChanged,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
}
