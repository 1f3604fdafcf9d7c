package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies a category of orchestrator event.
type EventType string

const (
	EventQueryReceived      EventType = "query.received"
	EventQueryClassified    EventType = "query.classified"
	EventAgentDispatched    EventType = "agent.dispatched"
	EventAgentResponded     EventType = "agent.responded"
	EventAgentHealthChanged EventType = "agent.health_changed"
	EventWorkflowStarted    EventType = "workflow.started"
	EventWorkflowStep       EventType = "workflow.step"
	EventWorkflowFinished   EventType = "workflow.finished"
	EventStoreDegraded      EventType = "store.degraded"
	EventStoreRecovered     EventType = "store.recovered"
)

// Event is a single orchestrator occurrence published on the event bus and
// forwarded to gateway WebSocket subscribers.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// EventHandler processes a published event.
type EventHandler func(ctx context.Context, event Event)

// EventBus fans events out to subscribers.
type EventBus interface {
	Publish(ctx context.Context, event Event)
	Subscribe(eventType EventType, handler EventHandler) func()
	SubscribeAll(handler EventHandler) func()
}
