package usecase

import (
	"fmt"
	"strings"

	"uplevel-orchestrator/internal/domain"
)

// Synthesizer merges multiple agent responses into one answer. Output
// ordering is deterministic: collaborative sections follow agent
// registration order, sequential traces follow step order.
type Synthesizer struct {
	registry *Registry
}

// NewSynthesizer creates a synthesizer backed by the registry for display
// names.
func NewSynthesizer(registry *Registry) *Synthesizer {
	return &Synthesizer{registry: registry}
}

// Collaborative merges parallel fan-out responses. responses must be in the
// same order as the dispatch targets (registration order). Failed responses
// become an unavailability note rather than vanishing.
func (s *Synthesizer) Collaborative(responses []*domain.AgentResponse) string {
	var b strings.Builder
	for i, resp := range responses {
		if i > 0 {
			b.WriteString("\n\n")
		}
		name := s.displayName(resp.AgentID)
		if resp.Failed() {
			fmt.Fprintf(&b, "## %s\n(unavailable: %s)", name, failureReason(resp))
			continue
		}
		fmt.Fprintf(&b, "## %s\n%s", name, resp.Content)
		s.writeRecommendations(&b, resp)
	}
	b.WriteString("\n\nAgents consulted: ")
	for i, resp := range responses {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(s.displayName(resp.AgentID))
	}
	return b.String()
}

// Sequential presents the final completed step's content as the primary
// answer, followed by the full step trace.
func (s *Synthesizer) Sequential(w *domain.Workflow) string {
	var b strings.Builder
	if final := finalCompleted(w); final != nil {
		b.WriteString(final.Result.Content)
		b.WriteString("\n\n---\n\n")
	}
	for i := range w.Steps {
		step := &w.Steps[i]
		if i > 0 {
			b.WriteString("\n\n")
		}
		name := s.displayName(step.AgentID)
		switch step.Status {
		case domain.StepCompleted:
			fmt.Fprintf(&b, "## Step %d: %s\n%s", i+1, name, step.Result.Content)
			s.writeRecommendations(&b, step.Result)
		case domain.StepFailed:
			reason := step.Err
			if reason == "" {
				reason = "step failed"
			}
			fmt.Fprintf(&b, "## Step %d: %s\n(failed: %s)", i+1, name, reason)
		default:
			fmt.Fprintf(&b, "## Step %d: %s\n(not executed)", i+1, name)
		}
	}
	return b.String()
}

func (s *Synthesizer) writeRecommendations(b *strings.Builder, resp *domain.AgentResponse) {
	if len(resp.Recommendations) == 0 {
		return
	}
	b.WriteString("\n\nRecommendations:")
	for _, rec := range resp.Recommendations {
		fmt.Fprintf(b, "\n- %s", rec)
	}
}

func (s *Synthesizer) displayName(agentID string) string {
	if agent, err := s.registry.Get(agentID); err == nil && agent.Name != "" {
		return agent.Name
	}
	return agentID
}

// finalCompleted returns the last step that completed with a result.
func finalCompleted(w *domain.Workflow) *domain.Step {
	for i := len(w.Steps) - 1; i >= 0; i-- {
		if w.Steps[i].Status == domain.StepCompleted && w.Steps[i].Result != nil {
			return &w.Steps[i]
		}
	}
	return nil
}

func failureReason(resp *domain.AgentResponse) string {
	if resp.Err != "" {
		return resp.Err
	}
	return "no response"
}
