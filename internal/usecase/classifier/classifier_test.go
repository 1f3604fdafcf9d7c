package classifier

import (
	"reflect"
	"testing"

	"uplevel-orchestrator/internal/domain"
)

func businessAgents() []domain.Agent {
	return []domain.Agent{
		{
			ID:           "financial_intelligence",
			Capabilities: []string{"financial_analysis"},
			Keywords:     []string{"financial performance", "revenue", "profit", "cash flow"},
		},
		{
			ID:           "sales_marketing",
			Capabilities: []string{"sales_marketing"},
			Keywords:     []string{"lead generation", "email campaign", "marketing strategy", "sales"},
		},
	}
}

func TestClassifySingleAgent(t *testing.T) {
	c := New(0.25)
	cls := c.Classify("Show me our lead generation performance", businessAgents())

	if cls.Type != domain.QuerySingleAgent {
		t.Fatalf("Type = %q, want %q", cls.Type, domain.QuerySingleAgent)
	}
	if want := []string{"sales_marketing"}; !reflect.DeepEqual(cls.Targets, want) {
		t.Errorf("Targets = %v, want %v", cls.Targets, want)
	}
	if cls.Score < 0.25 {
		t.Errorf("Score = %g, want >= 0.25", cls.Score)
	}
}

func TestClassifyCollaborative(t *testing.T) {
	c := New(0.25)
	cls := c.Classify("Analyze our financial performance and also create a marketing strategy", businessAgents())

	if cls.Type != domain.QueryCollaborative {
		t.Fatalf("Type = %q, want %q", cls.Type, domain.QueryCollaborative)
	}
	want := []string{"financial_intelligence", "sales_marketing"}
	if !reflect.DeepEqual(cls.Targets, want) {
		t.Errorf("Targets = %v, want %v", cls.Targets, want)
	}
}

func TestClassifyCollaborativeOrderIndependent(t *testing.T) {
	// Targets follow registration order no matter which keyword appears
	// first in the query.
	c := New(0.25)
	cls := c.Classify("Create a marketing strategy and also analyze our financial performance", businessAgents())

	if cls.Type != domain.QueryCollaborative {
		t.Fatalf("Type = %q, want %q", cls.Type, domain.QueryCollaborative)
	}
	want := []string{"financial_intelligence", "sales_marketing"}
	if !reflect.DeepEqual(cls.Targets, want) {
		t.Errorf("Targets = %v, want %v", cls.Targets, want)
	}
}

func TestClassifySequential(t *testing.T) {
	c := New(0.25)
	cls := c.Classify("First show me lead generation performance then create an email campaign", businessAgents())

	if cls.Type != domain.QuerySequential {
		t.Fatalf("Type = %q, want %q", cls.Type, domain.QuerySequential)
	}
	if len(cls.Steps) != 2 {
		t.Fatalf("len(Steps) = %d, want 2", len(cls.Steps))
	}
	if cls.Steps[0].AgentID != "sales_marketing" {
		t.Errorf("step 1 agent = %q, want sales_marketing", cls.Steps[0].AgentID)
	}
	if cls.Steps[0].DependsOnPrev {
		t.Errorf("step 1 must not depend on a predecessor")
	}
	if !cls.Steps[1].DependsOnPrev {
		t.Errorf("step 2 must depend on step 1")
	}
}

func TestClassifySequentialStepOrderMatchesText(t *testing.T) {
	c := New(0.25)
	cls := c.Classify("First analyze our financial performance then create an email campaign", businessAgents())

	if cls.Type != domain.QuerySequential {
		t.Fatalf("Type = %q, want %q", cls.Type, domain.QuerySequential)
	}
	if len(cls.Steps) != 2 {
		t.Fatalf("len(Steps) = %d, want 2", len(cls.Steps))
	}
	if cls.Steps[0].AgentID != "financial_intelligence" || cls.Steps[1].AgentID != "sales_marketing" {
		t.Errorf("step agents = [%s, %s], want [financial_intelligence, sales_marketing]",
			cls.Steps[0].AgentID, cls.Steps[1].AgentID)
	}
}

func TestClassifySequentialBeatsCollaborative(t *testing.T) {
	// Ordering markers win even when a conjunction is present.
	c := New(0.25)
	cls := c.Classify("First check our revenue and profit, then create a marketing strategy", businessAgents())

	if cls.Type != domain.QuerySequential {
		t.Fatalf("Type = %q, want %q", cls.Type, domain.QuerySequential)
	}
}

func TestClassifyUnclassified(t *testing.T) {
	c := New(0.25)
	cls := c.Classify("What is the weather like today", businessAgents())

	if cls.Type != domain.QueryUnclassified {
		t.Fatalf("Type = %q, want %q", cls.Type, domain.QueryUnclassified)
	}
	if len(cls.Targets) != 0 {
		t.Errorf("Targets = %v, want empty", cls.Targets)
	}
}

func TestClassifyConjunctionWithOneAgentFallsBackToSingle(t *testing.T) {
	c := New(0.25)
	cls := c.Classify("Review lead generation and email campaign results", businessAgents())

	if cls.Type != domain.QuerySingleAgent {
		t.Fatalf("Type = %q, want %q", cls.Type, domain.QuerySingleAgent)
	}
	if want := []string{"sales_marketing"}; !reflect.DeepEqual(cls.Targets, want) {
		t.Errorf("Targets = %v, want %v", cls.Targets, want)
	}
}

func TestClassifyIdempotent(t *testing.T) {
	c := New(0.25)
	agents := businessAgents()
	queries := []string{
		"Show me our lead generation performance",
		"Analyze our financial performance and also create a marketing strategy",
		"First analyze revenue then create an email campaign",
		"What is the weather like today",
	}
	for _, q := range queries {
		first := c.Classify(q, agents)
		second := c.Classify(q, agents)
		if !reflect.DeepEqual(first, second) {
			t.Errorf("classification of %q not stable:\nfirst  %+v\nsecond %+v", q, first, second)
		}
	}
}

func TestClassifyTieBreakLexical(t *testing.T) {
	// Equal scores and equally specific matches resolve by lexical id,
	// regardless of registration order.
	agents := []domain.Agent{
		{ID: "beta", Capabilities: []string{"reporting"}, Keywords: []string{"report"}},
		{ID: "alpha", Capabilities: []string{"reporting"}, Keywords: []string{"report"}},
	}
	c := New(0.25)
	cls := c.Classify("show me the report", agents)

	if cls.Type != domain.QuerySingleAgent {
		t.Fatalf("Type = %q, want %q", cls.Type, domain.QuerySingleAgent)
	}
	if cls.Targets[0] != "alpha" {
		t.Errorf("Targets[0] = %q, want alpha", cls.Targets[0])
	}
}

func TestClassifyLongerPhraseWins(t *testing.T) {
	// A two-word phrase match outweighs a one-word match.
	agents := []domain.Agent{
		{ID: "generic", Capabilities: []string{"analysis"}, Keywords: []string{"performance"}},
		{ID: "specific", Capabilities: []string{"analysis"}, Keywords: []string{"lead generation performance"}},
	}
	c := New(0.25)
	cls := c.Classify("show me lead generation performance", agents)

	if cls.Targets[0] != "specific" {
		t.Errorf("Targets[0] = %q, want specific", cls.Targets[0])
	}
}

func TestClassifyEmptyInputs(t *testing.T) {
	c := New(0.25)
	if got := c.Classify("", businessAgents()); got.Type != domain.QueryUnclassified {
		t.Errorf("empty query: Type = %q, want unclassified", got.Type)
	}
	if got := c.Classify("revenue", nil); got.Type != domain.QueryUnclassified {
		t.Errorf("no agents: Type = %q, want unclassified", got.Type)
	}
}
