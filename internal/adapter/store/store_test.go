package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uplevel-orchestrator/internal/domain"
)

func TestMemoryKV(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()

	_, err := kv.Get(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, kv.Set(ctx, "k", []byte("v1")))
	got, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	require.NoError(t, kv.Set(ctx, "k", []byte("v2")))
	got, err = kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	assert.NoError(t, kv.Ping(ctx))
	assert.Equal(t, "memory", kv.Name())
}

func TestDocumentStoreSessionRoundTrip(t *testing.T) {
	ds := NewDocumentStore(NewMemoryKV())
	ctx := context.Background()

	_, err := ds.GetSession(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)

	now := time.Now().UTC().Truncate(time.Millisecond)
	session := &domain.Session{
		ID:     "s1",
		UserID: "u1",
		Turns: []domain.Turn{
			{Query: "q", Type: domain.QuerySingleAgent, Answer: "a", Agents: []string{"fin"}, Timestamp: now},
		},
		Context:   map[string]any{"topic": "revenue"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, ds.PutSession(ctx, session))

	got, err := ds.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)
	assert.Equal(t, session.Turns, got.Turns)
	assert.Equal(t, "revenue", got.Context["topic"])
}

func TestDocumentStoreWorkflowRoundTrip(t *testing.T) {
	ds := NewDocumentStore(NewMemoryKV())
	ctx := context.Background()

	_, err := ds.GetWorkflow(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrWorkflowNotFound)

	w := &domain.Workflow{
		ID:        "w1",
		SessionID: "s1",
		Query:     "first x then y",
		Status:    domain.WorkflowPartial,
		Steps: []domain.Step{
			{ID: "step-1", AgentID: "fin", Status: domain.StepCompleted,
				Result: &domain.AgentResponse{AgentID: "fin", Status: domain.ResponseOK, Content: "ok"}},
			{ID: "step-2", AgentID: "sales", DependsOn: "step-1", Status: domain.StepFailed, Err: "timeout"},
		},
	}
	require.NoError(t, ds.PutWorkflow(ctx, w))

	got, err := ds.GetWorkflow(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, w.Status, got.Status)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, "step-1", got.Steps[1].DependsOn)
	assert.Equal(t, "ok", got.Steps[0].Result.Content)
}

func TestDocumentStoreKeyNamespaces(t *testing.T) {
	kv := NewMemoryKV()
	ds := NewDocumentStore(kv)
	ctx := context.Background()

	require.NoError(t, ds.PutSession(ctx, &domain.Session{ID: "x"}))
	require.NoError(t, ds.PutWorkflow(ctx, &domain.Workflow{ID: "x"}))

	// Same id, different namespaces; neither clobbers the other.
	_, err := kv.Get(ctx, "session:x")
	assert.NoError(t, err)
	_, err = kv.Get(ctx, "workflow:x")
	assert.NoError(t, err)

	s, err := ds.GetSession(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "x", s.ID)
}
