package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"uplevel-orchestrator/internal/domain"
)

// Key namespaces inside the shared document space.
const (
	sessionPrefix  = "session:"
	workflowPrefix = "workflow:"
)

// KV is the minimal key-value surface shared by all backends. Get returns
// domain.ErrNotFound for absent keys.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Ping(ctx context.Context) error
	Name() string
	Close() error
}

// DocumentStore adapts a KV into a domain.StateStore by serializing records
// as JSON under namespaced keys.
type DocumentStore struct {
	kv KV
}

// NewDocumentStore wraps kv as a StateStore.
func NewDocumentStore(kv KV) *DocumentStore {
	return &DocumentStore{kv: kv}
}

func (d *DocumentStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	data, err := d.kv.Get(ctx, sessionPrefix+id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewDomainError("store.GetSession", domain.ErrSessionNotFound, id)
		}
		return nil, domain.WrapOp("store.GetSession", err)
	}
	var s domain.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("store.GetSession: decode %s: %w", id, err)
	}
	return &s, nil
}

func (d *DocumentStore) PutSession(ctx context.Context, s *domain.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("store.PutSession: encode %s: %w", s.ID, err)
	}
	return domain.WrapOp("store.PutSession", d.kv.Set(ctx, sessionPrefix+s.ID, data))
}

func (d *DocumentStore) GetWorkflow(ctx context.Context, id string) (*domain.Workflow, error) {
	data, err := d.kv.Get(ctx, workflowPrefix+id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewDomainError("store.GetWorkflow", domain.ErrWorkflowNotFound, id)
		}
		return nil, domain.WrapOp("store.GetWorkflow", err)
	}
	var w domain.Workflow
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("store.GetWorkflow: decode %s: %w", id, err)
	}
	return &w, nil
}

func (d *DocumentStore) PutWorkflow(ctx context.Context, w *domain.Workflow) error {
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("store.PutWorkflow: encode %s: %w", w.ID, err)
	}
	return domain.WrapOp("store.PutWorkflow", d.kv.Set(ctx, workflowPrefix+w.ID, data))
}

func (d *DocumentStore) Ping(ctx context.Context) error { return d.kv.Ping(ctx) }
func (d *DocumentStore) Name() string                   { return d.kv.Name() }
func (d *DocumentStore) Close() error                   { return d.kv.Close() }
