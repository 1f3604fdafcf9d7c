package usecase

import (
	"context"
	"strings"
	"testing"

	"uplevel-orchestrator/internal/domain"
	"uplevel-orchestrator/internal/usecase/classifier"
)

func newTestOrchestrator(caller *fakeCaller) (*Orchestrator, *SessionManager, domain.StateStore) {
	registry := testRegistry(
		testAgent("financial_intelligence", []string{"financial_analysis"},
			[]string{"financial performance", "revenue", "profit"}),
		testAgent("sales_marketing", []string{"sales_marketing"},
			[]string{"lead generation", "email campaign", "marketing strategy"}),
	)
	bus := newTestBus()
	st := newTestStore()
	dispatcher := NewDispatcher(registry, caller, bus, discardLogger())
	engine := NewWorkflowEngine(st, dispatcher, bus, discardLogger())
	sessions := NewSessionManager(st, NewSessionLocker())
	synth := NewSynthesizer(registry)
	cls := classifier.New(0.25)
	orch := NewOrchestrator(cls, registry, dispatcher, engine, sessions, synth, bus, discardLogger())
	return orch, sessions, st
}

func TestHandleQuerySingleAgent(t *testing.T) {
	caller := newFakeCaller()
	caller.ok("sales_marketing", "leads are up 30%")
	orch, sessions, _ := newTestOrchestrator(caller)

	result, err := orch.HandleQuery(context.Background(), QueryRequest{
		Query: "Show me our lead generation performance",
	})
	if err != nil {
		t.Fatalf("HandleQuery: %v", err)
	}
	if result.QueryType != domain.QuerySingleAgent {
		t.Errorf("QueryType = %q", result.QueryType)
	}
	if result.Answer != "leads are up 30%" {
		t.Errorf("Answer = %q", result.Answer)
	}
	if result.SessionID == "" {
		t.Error("SessionID not set")
	}

	s, err := sessions.Get(context.Background(), result.SessionID)
	if err != nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if len(s.Turns) != 1 || s.Turns[0].Answer != "leads are up 30%" {
		t.Errorf("turn not recorded: %+v", s.Turns)
	}
}

func TestHandleQueryCollaborativePartial(t *testing.T) {
	caller := newFakeCaller()
	caller.ok("financial_intelligence", "margins stable")
	caller.fail("sales_marketing", domain.NewDomainError("fake", domain.ErrDispatchTimeout, "sales"))
	orch, _, _ := newTestOrchestrator(caller)

	result, err := orch.HandleQuery(context.Background(), QueryRequest{
		Query: "Analyze our financial performance and also create a marketing strategy",
	})
	if err != nil {
		t.Fatalf("HandleQuery: %v", err)
	}
	if result.QueryType != domain.QueryCollaborative {
		t.Fatalf("QueryType = %q", result.QueryType)
	}
	if !strings.Contains(result.Answer, "margins stable") {
		t.Errorf("successful content missing:\n%s", result.Answer)
	}
	if !strings.Contains(result.Answer, "unavailable") {
		t.Errorf("failed agent not noted:\n%s", result.Answer)
	}
}

func TestHandleQuerySequentialCreatesWorkflow(t *testing.T) {
	caller := newFakeCaller()
	caller.ok("sales_marketing", "done")
	orch, _, st := newTestOrchestrator(caller)

	result, err := orch.HandleQuery(context.Background(), QueryRequest{
		Query: "First show me lead generation performance then create an email campaign",
	})
	if err != nil {
		t.Fatalf("HandleQuery: %v", err)
	}
	if result.QueryType != domain.QuerySequential {
		t.Fatalf("QueryType = %q", result.QueryType)
	}
	if result.WorkflowID == "" {
		t.Fatal("WorkflowID not set")
	}

	w, err := st.GetWorkflow(context.Background(), result.WorkflowID)
	if err != nil {
		t.Fatalf("workflow not persisted: %v", err)
	}
	if len(w.Steps) != 2 {
		t.Errorf("len(Steps) = %d, want 2", len(w.Steps))
	}
	if w.Status != domain.WorkflowCompleted {
		t.Errorf("Status = %q, want completed", w.Status)
	}
}

func TestHandleQueryUnclassifiedReturnsClarification(t *testing.T) {
	caller := newFakeCaller()
	orch, _, _ := newTestOrchestrator(caller)

	result, err := orch.HandleQuery(context.Background(), QueryRequest{
		Query: "What is the meaning of life",
	})
	if err != nil {
		t.Fatalf("HandleQuery: %v (unclassified must not be an error)", err)
	}
	if result.QueryType != domain.QueryUnclassified {
		t.Errorf("QueryType = %q", result.QueryType)
	}
	if result.Answer == "" {
		t.Error("clarification answer missing")
	}
	if result.Code != domain.CodeUnclassified {
		t.Errorf("Code = %q", result.Code)
	}
	if len(caller.calls) != 0 {
		t.Errorf("unclassified query was dispatched: %v", caller.calls)
	}
}

func TestHandleQueryTotalFailureYieldsAnswer(t *testing.T) {
	caller := newFakeCaller()
	caller.fail("financial_intelligence", domain.NewDomainError("fake", domain.ErrDispatchTimeout, "fin"))
	caller.fail("sales_marketing", domain.NewDomainError("fake", domain.ErrDispatchTimeout, "sales"))
	orch, _, _ := newTestOrchestrator(caller)

	result, err := orch.HandleQuery(context.Background(), QueryRequest{
		Query: "Analyze our financial performance and also create a marketing strategy",
	})
	if err != nil {
		t.Fatalf("HandleQuery: %v (total unavailability must yield an answer)", err)
	}
	if result.Answer == "" {
		t.Fatal("degraded answer missing")
	}
	if result.Code == "" {
		t.Error("degraded result should carry an error code")
	}
}

func TestHandleQueryEmptyQuery(t *testing.T) {
	caller := newFakeCaller()
	orch, _, _ := newTestOrchestrator(caller)
	if _, err := orch.HandleQuery(context.Background(), QueryRequest{}); err == nil {
		t.Fatal("empty query accepted")
	}
}
