package domain

import "time"

// StepStatus is the execution state of a single workflow step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// WorkflowStatus is the overall state of a workflow.
type WorkflowStatus string

const (
	WorkflowPending   WorkflowStatus = "pending"
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowFailed    WorkflowStatus = "failed"
	// WorkflowPartial means at least one step completed but at least one
	// required step failed or never became eligible. Completed results are
	// preserved and surfaced.
	WorkflowPartial WorkflowStatus = "partial"
)

// Step is one ordered unit of a sequential workflow. Steps form a
// single-predecessor chain: DependsOn names at most one earlier step id.
type Step struct {
	ID          string         `json:"step_id"`
	AgentID     string         `json:"agent_id"`
	Input       string         `json:"input"`
	DependsOn   string         `json:"depends_on,omitempty"`
	Status      StepStatus     `json:"status"`
	Result      *AgentResponse `json:"result,omitempty"`
	Err         string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at,omitempty"`
	CompletedAt time.Time      `json:"completed_at,omitempty"`
}

// Workflow is a multi-step execution plan for one sequential query.
// State is persisted after every step transition so a crash mid-workflow
// leaves recoverable state.
type Workflow struct {
	ID        string         `json:"workflow_id"`
	SessionID string         `json:"session_id"`
	Query     string         `json:"query"`
	Steps     []Step         `json:"steps"`
	Status    WorkflowStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// StepByID returns a pointer to the step with the given id, or nil.
func (w *Workflow) StepByID(id string) *Step {
	for i := range w.Steps {
		if w.Steps[i].ID == id {
			return &w.Steps[i]
		}
	}
	return nil
}

// ComputeStatus derives the workflow status from its step statuses.
// Completed only when every step completed; failed when nothing completed;
// partial when the outcome is mixed.
func (w *Workflow) ComputeStatus() WorkflowStatus {
	var completed, failed, pending int
	for i := range w.Steps {
		switch w.Steps[i].Status {
		case StepCompleted:
			completed++
		case StepFailed:
			failed++
		case StepPending:
			pending++
		}
	}
	switch {
	case completed == len(w.Steps):
		return WorkflowCompleted
	case failed == 0 && pending == 0:
		return WorkflowRunning
	case completed == 0 && failed > 0:
		return WorkflowFailed
	case completed > 0 && (failed > 0 || pending > 0):
		return WorkflowPartial
	default:
		return WorkflowRunning
	}
}
