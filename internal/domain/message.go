package domain

import "time"

// MessageType identifies the kind of Agent2Agent message being sent.
type MessageType string

const (
	MessageSingleQuery        MessageType = "single_query"
	MessageCollaborativeQuery MessageType = "collaborative_query"
	MessageWorkflowStep       MessageType = "workflow_step"
)

// SenderOrchestrator is the fixed sender id for outbound messages.
const SenderOrchestrator = "orchestrator"

// Message is the standardized Agent2Agent envelope for every
// orchestrator-to-agent call. Messages are immutable once sent; replies
// are correlated by MessageID.
type Message struct {
	MessageID        string         `json:"message_id"`
	FromAgent        string         `json:"from_agent"`
	ToAgent          string         `json:"to_agent"`
	Type             MessageType    `json:"message_type"`
	Query            string         `json:"query"`
	SessionID        string         `json:"session_id"`
	Context          map[string]any `json:"context,omitempty"`
	Timestamp        time.Time      `json:"timestamp"`
	RequiresResponse bool           `json:"requires_response"`
	CorrelationID    string         `json:"correlation_id,omitempty"` // workflow or step id
}

// ResponseStatus is the outcome of a single agent call.
type ResponseStatus string

const (
	ResponseOK     ResponseStatus = "ok"
	ResponseFailed ResponseStatus = "failed"
)

// AgentResponse is the single canonical shape every downstream reply is
// normalized into. Downstream agents disagree on field names (answer vs
// response); that variability is resolved at the client adapter so nothing
// above it branches on source-specific shapes.
type AgentResponse struct {
	AgentID         string         `json:"agent_id"`
	Status          ResponseStatus `json:"status"`
	Content         string         `json:"content"`
	Data            map[string]any `json:"data,omitempty"`
	Recommendations []string       `json:"recommendations,omitempty"`
	LatencyMS       int64          `json:"latency_ms"`
	Err             string         `json:"error,omitempty"`
}

// Failed reports whether the call did not produce a usable answer.
func (r *AgentResponse) Failed() bool {
	return r == nil || r.Status != ResponseOK
}
