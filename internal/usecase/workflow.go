package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"uplevel-orchestrator/internal/domain"
)

// WorkflowEngine builds and executes sequential workflows. Every step
// transition is persisted before the next step runs so a crash mid-workflow
// leaves inspectable, resumable state.
type WorkflowEngine struct {
	store      domain.StateStore
	dispatcher *Dispatcher
	bus        domain.EventBus
	logger     *slog.Logger
}

// NewWorkflowEngine wires the engine over the store and dispatcher.
func NewWorkflowEngine(store domain.StateStore, dispatcher *Dispatcher, bus domain.EventBus, logger *slog.Logger) *WorkflowEngine {
	return &WorkflowEngine{store: store, dispatcher: dispatcher, bus: bus, logger: logger}
}

// Build turns a sequential classification into a persisted workflow in
// pending state. Steps form a single-predecessor chain.
func (e *WorkflowEngine) Build(ctx context.Context, sessionID, query string, planned []domain.PlannedStep) (*domain.Workflow, error) {
	now := time.Now().UTC()
	w := &domain.Workflow{
		ID:        ulid.Make().String(),
		SessionID: sessionID,
		Query:     query,
		Status:    domain.WorkflowPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i, p := range planned {
		step := domain.Step{
			ID:      fmt.Sprintf("step-%d", i+1),
			AgentID: p.AgentID,
			Input:   p.Text,
			Status:  domain.StepPending,
		}
		if p.DependsOnPrev && i > 0 {
			step.DependsOn = w.Steps[i-1].ID
		}
		w.Steps = append(w.Steps, step)
	}
	if err := e.store.PutWorkflow(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// Execute runs all pending steps in order. A step whose dependency did not
// complete is failed without dispatching. Completed steps keep their
// results, so Execute is also the resume path.
func (e *WorkflowEngine) Execute(ctx context.Context, w *domain.Workflow) error {
	w.Status = domain.WorkflowRunning
	if err := e.persist(ctx, w); err != nil {
		return err
	}
	e.publishLifecycle(ctx, domain.EventWorkflowStarted, w)

	for i := range w.Steps {
		if ctx.Err() != nil {
			break
		}
		step := &w.Steps[i]
		if step.Status != domain.StepPending {
			continue
		}
		e.runStep(ctx, w, step)
	}

	w.Status = w.ComputeStatus()
	if err := e.persist(ctx, w); err != nil {
		return err
	}
	e.publishLifecycle(ctx, domain.EventWorkflowFinished, w)
	return nil
}

func (e *WorkflowEngine) runStep(ctx context.Context, w *domain.Workflow, step *domain.Step) {
	if step.DependsOn != "" {
		dep := w.StepByID(step.DependsOn)
		if dep == nil || dep.Status != domain.StepCompleted {
			step.Status = domain.StepFailed
			step.Err = domain.ErrDependencyFailed.Error()
			step.CompletedAt = time.Now().UTC()
			e.persistStep(ctx, w, step)
			return
		}
	}

	step.Status = domain.StepRunning
	step.StartedAt = time.Now().UTC()
	if err := e.persistStep(ctx, w, step); err != nil {
		step.Status = domain.StepPending
		return
	}

	msg := NewMessage(step.AgentID, domain.MessageWorkflowStep, step.Input, w.SessionID, w.ID, e.stepContext(w, step))
	resp, err := e.dispatcher.DispatchSingle(ctx, step.AgentID, msg)

	step.CompletedAt = time.Now().UTC()
	switch {
	case err != nil:
		step.Status = domain.StepFailed
		step.Err = err.Error()
	case resp.Failed():
		step.Status = domain.StepFailed
		step.Result = resp
		step.Err = resp.Err
	default:
		step.Status = domain.StepCompleted
		step.Result = resp
	}
	e.persistStep(ctx, w, step)
}

// stepContext carries the predecessor's answer so agents can build on it.
func (e *WorkflowEngine) stepContext(w *domain.Workflow, step *domain.Step) map[string]any {
	stepCtx := map[string]any{
		"workflow_id": w.ID,
		"step_id":     step.ID,
	}
	if step.DependsOn != "" {
		if dep := w.StepByID(step.DependsOn); dep != nil && dep.Result != nil {
			stepCtx["previous_step"] = dep.ID
			stepCtx["previous_agent"] = dep.AgentID
			stepCtx["previous_result"] = dep.Result.Content
		}
	}
	return stepCtx
}

// Get loads a workflow by id.
func (e *WorkflowEngine) Get(ctx context.Context, id string) (*domain.Workflow, error) {
	return e.store.GetWorkflow(ctx, id)
}

// Resume re-runs a failed or partial workflow: failed steps return to
// pending (keeping completed results) and execution restarts. Completed and
// running workflows are returned unchanged.
func (e *WorkflowEngine) Resume(ctx context.Context, id string) (*domain.Workflow, error) {
	w, err := e.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.Status == domain.WorkflowCompleted || w.Status == domain.WorkflowRunning {
		return w, nil
	}
	for i := range w.Steps {
		if w.Steps[i].Status == domain.StepFailed {
			w.Steps[i].Status = domain.StepPending
			w.Steps[i].Err = ""
			w.Steps[i].StartedAt = time.Time{}
			w.Steps[i].CompletedAt = time.Time{}
		}
	}
	if err := e.Execute(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

func (e *WorkflowEngine) persist(ctx context.Context, w *domain.Workflow) error {
	w.UpdatedAt = time.Now().UTC()
	if err := e.store.PutWorkflow(ctx, w); err != nil {
		e.logger.Error("persist workflow failed", "workflow", w.ID, "error", err)
		return err
	}
	return nil
}

func (e *WorkflowEngine) persistStep(ctx context.Context, w *domain.Workflow, step *domain.Step) error {
	if err := e.persist(ctx, w); err != nil {
		return err
	}
	payload, err := json.Marshal(map[string]any{
		"workflow_id": w.ID,
		"step_id":     step.ID,
		"agent_id":    step.AgentID,
		"status":      step.Status,
	})
	if err == nil {
		e.bus.Publish(ctx, domain.Event{
			Type:      domain.EventWorkflowStep,
			Timestamp: time.Now().UTC(),
			SessionID: w.SessionID,
			Payload:   payload,
		})
	}
	return nil
}

func (e *WorkflowEngine) publishLifecycle(ctx context.Context, t domain.EventType, w *domain.Workflow) {
	payload, err := json.Marshal(map[string]any{
		"workflow_id": w.ID,
		"status":      w.Status,
		"steps":       len(w.Steps),
	})
	if err != nil {
		return
	}
	e.bus.Publish(ctx, domain.Event{
		Type:      t,
		Timestamp: time.Now().UTC(),
		SessionID: w.SessionID,
		Payload:   payload,
	})
}
