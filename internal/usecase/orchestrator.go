package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"uplevel-orchestrator/internal/domain"
	"uplevel-orchestrator/internal/infra/tracer"
	"uplevel-orchestrator/internal/usecase/classifier"
)

// QueryRequest is one inbound business query. Context carries caller
// supplied key/values forwarded to the dispatched agents.
type QueryRequest struct {
	Query     string
	SessionID string
	UserID    string
	Context   map[string]any
}

// QueryResult is the orchestrator's synthesized answer for one query.
// Failures below the HTTP boundary still produce a well-formed result; the
// Code field carries the machine-readable category when the answer is a
// degradation notice.
type QueryResult struct {
	SessionID       string                  `json:"session_id"`
	QueryType       domain.QueryType        `json:"query_type"`
	Answer          string                  `json:"answer"`
	Agents          []string                `json:"agents_involved"`
	WorkflowID      string                  `json:"workflow_id,omitempty"`
	Status          domain.WorkflowStatus   `json:"workflow_status,omitempty"`
	Data            map[string]any          `json:"data,omitempty"`
	Recommendations []string                `json:"recommendations,omitempty"`
	Responses       []*domain.AgentResponse `json:"responses,omitempty"`
	Code            domain.ErrorCode        `json:"code,omitempty"`
}

const clarificationAnswer = "I couldn't determine which agent should handle this query. " +
	"Could you rephrase it with more detail about what you need?"

// Orchestrator runs the full query pipeline: classify, dispatch (directly,
// in parallel, or through a workflow), synthesize, and record the turn.
type Orchestrator struct {
	classifier *classifier.Classifier
	registry   *Registry
	dispatcher *Dispatcher
	engine     *WorkflowEngine
	sessions   *SessionManager
	synth      *Synthesizer
	bus        domain.EventBus
	logger     *slog.Logger
}

// NewOrchestrator wires the pipeline.
func NewOrchestrator(
	cls *classifier.Classifier,
	registry *Registry,
	dispatcher *Dispatcher,
	engine *WorkflowEngine,
	sessions *SessionManager,
	synth *Synthesizer,
	bus domain.EventBus,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		classifier: cls,
		registry:   registry,
		dispatcher: dispatcher,
		engine:     engine,
		sessions:   sessions,
		synth:      synth,
		bus:        bus,
		logger:     logger,
	}
}

// HandleQuery processes one query end to end. An unclassifiable query
// yields a clarification answer without dispatching. A cancelled context
// discards the turn; nothing partial is appended to the session.
func (o *Orchestrator) HandleQuery(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	ctx, span := tracer.StartSpan(ctx, "orchestrator.HandleQuery")
	defer span.End()

	if req.Query == "" {
		return nil, domain.NewDomainError("Orchestrator.HandleQuery", domain.ErrInvalidInput, "query is required")
	}

	session, err := o.sessions.GetOrCreate(ctx, req.SessionID, req.UserID)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(tracer.StringAttr("session.id", session.ID))

	o.publish(ctx, domain.EventQueryReceived, session.ID, map[string]any{"query": req.Query})

	cls := o.classifier.Classify(req.Query, o.registry.List())
	span.SetAttributes(tracer.StringAttr("query.type", string(cls.Type)))
	o.publish(ctx, domain.EventQueryClassified, session.ID, map[string]any{
		"type":    cls.Type,
		"targets": cls.Targets,
		"score":   cls.Score,
	})
	o.logger.Info("query classified",
		"session", session.ID, "type", cls.Type, "targets", cls.Targets, "score", cls.Score)

	var result *QueryResult
	switch cls.Type {
	case domain.QuerySingleAgent:
		result, err = o.runSingle(ctx, session.ID, req, cls)
	case domain.QueryCollaborative:
		result, err = o.runCollaborative(ctx, session.ID, req, cls)
	case domain.QuerySequential:
		result, err = o.runSequential(ctx, session.ID, req, cls)
	default:
		// Unclassified is surfaced as a clarification prompt, never as a
		// hard error.
		result = &QueryResult{
			QueryType: domain.QueryUnclassified,
			Answer:    clarificationAnswer,
			Code:      domain.CodeUnclassified,
		}
	}
	if err != nil {
		if answer, ok := degradedAnswer(err); ok && ctx.Err() == nil {
			result = &QueryResult{
				QueryType: cls.Type,
				Answer:    answer,
				Agents:    cls.Targets,
				Code:      domain.ErrorCodeOf(err),
			}
		} else {
			tracer.RecordError(span, err)
			return nil, err
		}
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	turn := domain.Turn{
		Query:     req.Query,
		Type:      result.QueryType,
		Answer:    result.Answer,
		Agents:    result.Agents,
		Timestamp: time.Now().UTC(),
	}
	if err := o.sessions.AppendTurn(ctx, session.ID, turn, nil); err != nil {
		// The answer is already computed; losing the turn record is
		// logged, not fatal.
		o.logger.Error("append turn failed", "session", session.ID, "error", err)
	}
	result.SessionID = session.ID
	return result, nil
}

func (o *Orchestrator) runSingle(ctx context.Context, sessionID string, req QueryRequest, cls domain.Classification) (*QueryResult, error) {
	agentID := cls.Targets[0]
	msg := NewMessage(agentID, domain.MessageSingleQuery, req.Query, sessionID, "", req.Context)
	resp, err := o.dispatcher.DispatchSingle(ctx, agentID, msg)
	if err != nil {
		return nil, err
	}
	if resp.Failed() {
		return nil, domain.NewDomainError("Orchestrator.runSingle", domain.ErrDispatchFailed, resp.Err)
	}
	return &QueryResult{
		QueryType:       domain.QuerySingleAgent,
		Answer:          resp.Content,
		Agents:          []string{agentID},
		Data:            resp.Data,
		Recommendations: resp.Recommendations,
		Responses:       []*domain.AgentResponse{resp},
	}, nil
}

// degradedAnswer maps dispatch-category failures to a user-facing answer.
// Everything else stays an error for the gateway to translate.
func degradedAnswer(err error) (string, bool) {
	switch domain.ErrorCodeOf(err) {
	case domain.CodeAgentUnreachable, domain.CodeDispatchFailed,
		domain.CodeDispatchTimeout, domain.CodeCircuitOpen:
		return "No agent was able to process this request right now. " +
			"The relevant agent is unavailable; please try again shortly.", true
	default:
		return "", false
	}
}

func (o *Orchestrator) runCollaborative(ctx context.Context, sessionID string, req QueryRequest, cls domain.Classification) (*QueryResult, error) {
	base := NewMessage("", domain.MessageCollaborativeQuery, req.Query, sessionID, "", req.Context)
	responses := o.dispatcher.DispatchParallel(ctx, cls.Targets, base)

	succeeded := 0
	for _, resp := range responses {
		if !resp.Failed() {
			succeeded++
		}
	}
	if succeeded == 0 {
		return nil, domain.NewDomainError("Orchestrator.runCollaborative", domain.ErrDispatchFailed,
			"all agents failed")
	}

	return &QueryResult{
		QueryType: domain.QueryCollaborative,
		Answer:    o.synth.Collaborative(responses),
		Agents:    cls.Targets,
		Responses: responses,
	}, nil
}

func (o *Orchestrator) runSequential(ctx context.Context, sessionID string, req QueryRequest, cls domain.Classification) (*QueryResult, error) {
	w, err := o.engine.Build(ctx, sessionID, req.Query, cls.Steps)
	if err != nil {
		return nil, err
	}
	if err := o.engine.Execute(ctx, w); err != nil {
		return nil, err
	}
	return &QueryResult{
		QueryType:  domain.QuerySequential,
		Answer:     o.synth.Sequential(w),
		Agents:     cls.Targets,
		WorkflowID: w.ID,
		Status:     w.Status,
	}, nil
}

func (o *Orchestrator) publish(ctx context.Context, t domain.EventType, sessionID string, payload map[string]any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	o.bus.Publish(ctx, domain.Event{
		Type:      t,
		Timestamp: time.Now().UTC(),
		SessionID: sessionID,
		Payload:   raw,
	})
}
