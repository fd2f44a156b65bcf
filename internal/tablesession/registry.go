package tablesession

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/pavelanni/kwizkit/internal/model"
)

// ErrUnsavedChanges is returned when closing a dirty session without confirmation.
var ErrUnsavedChanges = errors.New("session has unsaved changes")

// Registry hosts open sessions by id.
type Registry struct {
	committer Committer

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry whose sessions commit through c.
func NewRegistry(c Committer) *Registry {
	return &Registry{committer: c, sessions: make(map[string]*Session)}
}

// Open starts a session over snapshot.
func (r *Registry) Open(snapshot *model.Table) *Session {
	s := New(snapshot, r.committer)
	r.mu.Lock()
	r.sessions[s.ID()] = s
	r.mu.Unlock()
	slog.Info("opened table session", "session_id", s.ID(), "table_id", snapshot.ID)
	return s
}

// Get returns an open session.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, model.NotFoundf("session %s", id)
	}
	return s, nil
}

// Close removes a session. A dirty session is only closed when confirmed.
// The dirty check may wait for a commit on that session; the registry stays
// available to other sessions meanwhile.
func (r *Registry) Close(id string, confirmed bool) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}
	dirty := s.IsDirty()
	if dirty && !confirmed {
		return ErrUnsavedChanges
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[id] != s {
		return model.NotFoundf("session %s", id)
	}
	delete(r.sessions, id)
	slog.Info("closed table session", "session_id", id, "discarded", dirty)
	return nil
}

// CloseTable drops every session editing tableID, used when the table is deleted.
func (r *Registry) CloseTable(tableID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.TableID() == tableID {
			delete(r.sessions, id)
		}
	}
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
