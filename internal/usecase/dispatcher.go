package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"uplevel-orchestrator/internal/domain"
)

// Dispatcher sends Agent2Agent messages to registered agents, fail-fast for
// single dispatch and best-effort for parallel fan-out.
type Dispatcher struct {
	registry *Registry
	caller   domain.AgentCaller
	bus      domain.EventBus
	logger   *slog.Logger
}

// NewDispatcher wires a dispatcher over the registry and transport.
func NewDispatcher(registry *Registry, caller domain.AgentCaller, bus domain.EventBus, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, caller: caller, bus: bus, logger: logger}
}

// NewMessage builds the outbound envelope for one agent call.
func NewMessage(agentID string, msgType domain.MessageType, query, sessionID, correlationID string, queryContext map[string]any) domain.Message {
	return domain.Message{
		MessageID:        ulid.Make().String(),
		FromAgent:        domain.SenderOrchestrator,
		ToAgent:          agentID,
		Type:             msgType,
		Query:            query,
		SessionID:        sessionID,
		Context:          queryContext,
		Timestamp:        time.Now().UTC(),
		RequiresResponse: true,
		CorrelationID:    correlationID,
	}
}

// DispatchSingle sends one query to one agent. Unreachable agents fail fast
// without a network call.
func (d *Dispatcher) DispatchSingle(ctx context.Context, agentID string, msg domain.Message) (*domain.AgentResponse, error) {
	agent, err := d.registry.Get(agentID)
	if err != nil {
		return nil, err
	}
	if agent.Health == domain.AgentUnreachable {
		return nil, domain.NewDomainError("Dispatcher.DispatchSingle", domain.ErrAgentUnreachable, agentID)
	}

	d.publishDispatch(ctx, msg)
	start := time.Now()
	resp, err := d.caller.Query(ctx, agent, msg)
	if err != nil {
		d.logger.Warn("dispatch failed", "agent", agentID, "session", msg.SessionID, "error", err)
		return nil, err
	}
	if resp.LatencyMS == 0 {
		resp.LatencyMS = time.Since(start).Milliseconds()
	}
	d.publishResponse(ctx, msg, resp)
	return resp, nil
}

// DispatchParallel fans msg out to every listed agent concurrently. Each
// failure is converted into a failed AgentResponse so one bad agent never
// hides the others' answers. Results are returned in the input order.
func (d *Dispatcher) DispatchParallel(ctx context.Context, agentIDs []string, base domain.Message) []*domain.AgentResponse {
	results := make([]*domain.AgentResponse, len(agentIDs))
	var wg sync.WaitGroup
	for i, agentID := range agentIDs {
		wg.Add(1)
		go func(i int, agentID string) {
			defer wg.Done()
			msg := base
			msg.MessageID = ulid.Make().String()
			msg.ToAgent = agentID
			resp, err := d.DispatchSingle(ctx, agentID, msg)
			if err != nil {
				resp = &domain.AgentResponse{
					AgentID: agentID,
					Status:  domain.ResponseFailed,
					Err:     err.Error(),
				}
			}
			results[i] = resp
		}(i, agentID)
	}
	wg.Wait()
	return results
}

func (d *Dispatcher) publishDispatch(ctx context.Context, msg domain.Message) {
	payload, err := json.Marshal(map[string]any{
		"message_id": msg.MessageID,
		"agent_id":   msg.ToAgent,
		"type":       msg.Type,
	})
	if err != nil {
		return
	}
	d.bus.Publish(ctx, domain.Event{
		Type:      domain.EventAgentDispatched,
		Timestamp: time.Now().UTC(),
		SessionID: msg.SessionID,
		Payload:   payload,
	})
}

func (d *Dispatcher) publishResponse(ctx context.Context, msg domain.Message, resp *domain.AgentResponse) {
	payload, err := json.Marshal(map[string]any{
		"message_id": msg.MessageID,
		"agent_id":   resp.AgentID,
		"status":     resp.Status,
		"latency_ms": resp.LatencyMS,
	})
	if err != nil {
		return
	}
	d.bus.Publish(ctx, domain.Event{
		Type:      domain.EventAgentResponded,
		Timestamp: time.Now().UTC(),
		SessionID: msg.SessionID,
		Payload:   payload,
	})
}
