package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"

	"uplevel-orchestrator/internal/domain"
)

// SessionManager owns session lifecycle over the state store. Mutations to
// one session are serialized through the locker so concurrent queries on
// the same session never lose turns.
type SessionManager struct {
	store  domain.StateStore
	locker *SessionLocker
}

// NewSessionManager creates a manager over store.
func NewSessionManager(store domain.StateStore, locker *SessionLocker) *SessionManager {
	return &SessionManager{store: store, locker: locker}
}

// GetOrCreate loads the session, creating it on first use. An empty id
// allocates a fresh session.
func (m *SessionManager) GetOrCreate(ctx context.Context, id, userID string) (*domain.Session, error) {
	if id == "" {
		return m.create(ctx, ulid.Make().String(), userID)
	}

	unlock := m.locker.Lock(id)
	defer unlock()

	s, err := m.store.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return m.createLocked(ctx, id, userID)
		}
		return nil, err
	}
	return s, nil
}

// Get loads an existing session.
func (m *SessionManager) Get(ctx context.Context, id string) (*domain.Session, error) {
	return m.store.GetSession(ctx, id)
}

// AppendTurn records a completed exchange and merges any context updates,
// under the session lock.
func (m *SessionManager) AppendTurn(ctx context.Context, sessionID string, turn domain.Turn, contextUpdates map[string]any) error {
	unlock := m.locker.Lock(sessionID)
	defer unlock()

	s, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	s.Turns = append(s.Turns, turn)
	if s.Context == nil {
		s.Context = make(map[string]any)
	}
	for k, v := range contextUpdates {
		s.Context[k] = v
	}
	s.UpdatedAt = time.Now().UTC()
	return m.store.PutSession(ctx, s)
}

func (m *SessionManager) create(ctx context.Context, id, userID string) (*domain.Session, error) {
	unlock := m.locker.Lock(id)
	defer unlock()
	return m.createLocked(ctx, id, userID)
}

func (m *SessionManager) createLocked(ctx context.Context, id, userID string) (*domain.Session, error) {
	now := time.Now().UTC()
	s := &domain.Session{
		ID:        id,
		UserID:    userID,
		Context:   make(map[string]any),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.PutSession(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}
