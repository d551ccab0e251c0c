package session

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrStale    = errors.New("session was replaced or ended")
)

// Manager owns every in-flight intake session, keyed by chat user id.
// Callers serialize work on one user with Lock; distinct users never contend
// beyond the short map critical sections.
type Manager struct {
	mu                sync.Mutex
	sessions          map[string]*Session
	locks             map[string]*userLock
	inactivityTimeout time.Duration
	onExpire          func(*Session)
	now               func() time.Time
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 30 * time.Minute
	}
	return &Manager{
		sessions:          make(map[string]*Session),
		locks:             make(map[string]*userLock),
		inactivityTimeout: inactivityTimeout,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

func (m *Manager) SetExpireHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// Lock blocks until the caller holds the user's lock and returns the release
// func. Releasing more than once is a no-op.
func (m *Manager) Lock(userID string) func() {
	m.mu.Lock()
	l, ok := m.locks[userID]
	if !ok {
		l = &userLock{}
		m.locks[userID] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			m.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(m.locks, userID)
			}
			m.mu.Unlock()
		})
	}
}

// Create starts a fresh session for userID, discarding whatever was there.
// The second return value reports whether an active session was replaced.
func (m *Manager) Create(userID string, flow Flow, first State) (*Session, bool) {
	now := m.now()
	s := &Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		Flow:           flow,
		State:          first,
		StartedAt:      now,
		LastActivityAt: now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	_, replaced := m.sessions[userID]
	m.sessions[userID] = s
	return clone(s), replaced
}

func (m *Manager) Get(userID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

// Save writes back a session previously obtained from Create or Get. It fails
// with ErrStale when the stored session is gone or belongs to a newer entry.
func (m *Manager) Save(s *Session) error {
	if s == nil {
		return ErrNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sessions[s.UserID]
	if !ok || cur.ID != s.ID {
		return ErrStale
	}
	c := clone(s)
	c.LastActivityAt = m.now()
	m.sessions[s.UserID] = c
	return nil
}

func (m *Manager) End(userID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.sessions, userID)
	return clone(s), nil
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) expireInactive() {
	now := m.now()
	var expired []*Session

	m.mu.Lock()
	for userID, s := range m.sessions {
		// A held lock means a message for this user is being handled right now.
		if _, busy := m.locks[userID]; busy {
			continue
		}
		if now.Sub(s.LastActivityAt) < m.inactivityTimeout {
			continue
		}
		delete(m.sessions, userID)
		expired = append(expired, clone(s))
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
}

func clone(s *Session) *Session {
	c := *s
	c.OfferedVoices = slices.Clone(s.OfferedVoices)
	return &c
}
