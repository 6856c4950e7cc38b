package session

import (
	"sync"

	"neuropeaks/domain/core"
)

// Store keeps the sessions of the current process, in start order.
type Store struct {
	mu       sync.RWMutex
	sessions map[core.RunID]*Session
	order    []core.RunID
	limit    int
}

// NewStore keeps at most limit sessions; older ones are forgotten first.
// A limit below 1 keeps everything.
func NewStore(limit int) *Store {
	return &Store{sessions: make(map[core.RunID]*Session), limit: limit}
}

// Put registers a session.
func (st *Store) Put(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[s.ID()]; !ok {
		st.order = append(st.order, s.ID())
	}
	st.sessions[s.ID()] = s
	for st.limit > 0 && len(st.order) > st.limit {
		delete(st.sessions, st.order[0])
		st.order = st.order[1:]
	}
}

// Get returns the session of a run.
func (st *Store) Get(id core.RunID) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	if !ok {
		return nil, core.NewNotFoundError("run", id.String())
	}
	return s, nil
}

// List returns summaries of all kept sessions, oldest first.
func (st *Store) List() []Summary {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]Summary, 0, len(st.order))
	for _, id := range st.order {
		out = append(out, st.sessions[id].Summary())
	}
	return out
}
