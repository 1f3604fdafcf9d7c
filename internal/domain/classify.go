package domain

// QueryType is the orchestrator's determination of how many agents a query
// needs and in what order.
type QueryType string

const (
	QuerySingleAgent   QueryType = "single_agent"
	QueryCollaborative QueryType = "collaborative"
	QuerySequential    QueryType = "sequential"
	// QueryUnclassified is the sentinel returned when no agent clears the
	// relevance threshold. Callers surface it as a clarification request
	// instead of dispatching.
	QueryUnclassified QueryType = "unclassified"
)

// PlannedStep is one unit of a sequential decomposition produced by the
// classifier. DependsOnPrev marks the single-predecessor chain; step N
// depends on step N-1 when set.
type PlannedStep struct {
	Text          string `json:"text"`
	AgentID       string `json:"agent_id"`
	DependsOnPrev bool   `json:"depends_on_prev"`
}

// Classification is the classifier's verdict for one query.
type Classification struct {
	Type QueryType `json:"type"`
	// Targets lists implicated agent ids. For single_agent it has exactly
	// one entry; for collaborative the entries follow agent registration
	// order; empty for unclassified.
	Targets []string      `json:"targets,omitempty"`
	Steps   []PlannedStep `json:"steps,omitempty"` // sequential only
	Score   float64       `json:"score"`           // top relevance score
}
