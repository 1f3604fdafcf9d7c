package domain

import "context"

// StateStore persists sessions and workflows as namespaced documents
// (session:{id}, workflow:{id}). Implementations must round-trip both
// record types losslessly.
type StateStore interface {
	GetSession(ctx context.Context, id string) (*Session, error)
	PutSession(ctx context.Context, s *Session) error
	GetWorkflow(ctx context.Context, id string) (*Workflow, error)
	PutWorkflow(ctx context.Context, w *Workflow) error
	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
	Name() string
	Close() error
}
