package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory.  Two instances behind a load
// balancer would disagree about a customer's step, so it is only used when
// Redis is unavailable and in tests.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]memEntry
	ttl      time.Duration
	now      func() time.Time
	swept    time.Time
}

type memEntry struct {
	s       *Session
	expires time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{sessions: make(map[string]memEntry), ttl: ttl, now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(id)
	if !ok {
		return nil, nil
	}
	return e.s.Clone(), nil
}

func (m *MemoryStore) Set(_ context.Context, id string, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()
	c := s.Clone()
	c.UpdatedAt = m.now().UTC()
	m.put(id, c)
	return nil
}

func (m *MemoryStore) Merge(_ context.Context, id string, p Patch) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()
	e, ok := m.live(id)
	if !ok {
		return nil, nil
	}
	s := e.s.Clone()
	p.Apply(s)
	s.UpdatedAt = m.now().UTC()
	m.put(id, s)
	return s.Clone(), nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) live(id string) (memEntry, bool) {
	e, ok := m.sessions[id]
	if !ok {
		return memEntry{}, false
	}
	if m.ttl > 0 && !m.now().Before(e.expires) {
		delete(m.sessions, id)
		return memEntry{}, false
	}
	return e, true
}

// sweep drops every expired session, at most once per ttl, so that
// conversations nobody comes back to do not pile up.
func (m *MemoryStore) sweep() {
	now := m.now()
	if m.ttl <= 0 || now.Sub(m.swept) < m.ttl {
		return
	}
	m.swept = now
	for id, e := range m.sessions {
		if !now.Before(e.expires) {
			delete(m.sessions, id)
		}
	}
}

func (m *MemoryStore) put(id string, s *Session) {
	m.sessions[id] = memEntry{s: s, expires: m.now().Add(m.ttl)}
}
