// Package session keeps one reading controller per browser session and
// evicts the ones nobody has touched for a while.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/palm-oracle-go/internal/logger"
	"github.com/anime-shed/palm-oracle-go/internal/reading"
)

// ControllerFactory builds the controller owned by a new session
type ControllerFactory func(id string) *reading.Controller

// Session pairs an id with its controller
type Session struct {
	ID         string
	Controller *reading.Controller
	CreatedAt  time.Time

	lastSeen time.Time
}

// Manager is a concurrency-safe registry of sessions
type Manager struct {
	mu            sync.Mutex
	sessions      map[string]*Session
	ttl           time.Duration
	newController ControllerFactory
	now           func() time.Time
}

// NewManager creates a manager. A ttl of zero disables eviction.
func NewManager(ttl time.Duration, newController ControllerFactory) *Manager {
	return &Manager{
		sessions:      make(map[string]*Session),
		ttl:           ttl,
		newController: newController,
		now:           time.Now,
	}
}

// Create starts a new session with a random id
func (m *Manager) Create() *Session {
	id := uuid.NewString()
	now := m.now()
	s := &Session{
		ID:         id,
		Controller: m.newController(id),
		CreatedAt:  now,
		lastSeen:   now,
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	logger.WithField("session_id", id).Debug("Session created")
	return s
}

// Get returns the session and marks it as recently used
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if ok {
		s.lastSeen = m.now()
	}
	return s, ok
}

// GetOrCreate returns the session for id, or a fresh one when id is unknown.
// created reports which happened.
func (m *Manager) GetOrCreate(id string) (s *Session, created bool) {
	if id != "" {
		if s, ok := m.Get(id); ok {
			return s, false
		}
	}
	return m.Create(), true
}

// Remove resets and forgets a session
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.Controller.Reset()
	}
	return ok
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Evict removes sessions idle for longer than the ttl. Sessions with a
// reading in flight are kept until it settles.
func (m *Manager) Evict() int {
	if m.ttl <= 0 {
		return 0
	}

	cutoff := m.now().Add(-m.ttl)
	var expired []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if s.lastSeen.After(cutoff) || s.Controller.Phase() == reading.PhaseLoading {
			continue
		}
		delete(m.sessions, id)
		expired = append(expired, s)
	}
	remaining := len(m.sessions)
	m.mu.Unlock()

	for _, s := range expired {
		s.Controller.Reset()
	}
	if len(expired) > 0 {
		logger.WithFields(logrus.Fields{
			"evicted":   len(expired),
			"remaining": remaining,
		}).Info("Evicted idle sessions")
	}
	return len(expired)
}

// Run evicts idle sessions every interval until ctx is done
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if m.ttl <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Evict()
		}
	}
}
