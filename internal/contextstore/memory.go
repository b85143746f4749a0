package contextstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MemoryStore is the default in-process Store. Sessions idle beyond the
// configured TTL are purged by a background sweep.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memSession

	locks      *sessionLocks
	autoCreate bool
	idleTTL    time.Duration
	logger     *logrus.Logger

	done    chan struct{}
	stopped sync.Once
}

type memSession struct {
	session Session
	turns   []Turn
}

// MemoryOptions configures a MemoryStore.
type MemoryOptions struct {
	AutoCreate    bool
	IdleTTL       time.Duration
	SweepInterval time.Duration
	Logger        *logrus.Logger
}

// NewMemoryStore creates an in-memory store. The eviction sweep runs only
// when both IdleTTL and SweepInterval are positive.
func NewMemoryStore(opts MemoryOptions) *MemoryStore {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	s := &MemoryStore{
		sessions:   make(map[string]*memSession),
		locks:      newSessionLocks(),
		autoCreate: opts.AutoCreate,
		idleTTL:    opts.IdleTTL,
		logger:     opts.Logger,
		done:       make(chan struct{}),
	}

	if opts.IdleTTL > 0 && opts.SweepInterval > 0 {
		go s.sweepLoop(opts.SweepInterval)
	}

	return s
}

// Create registers a new session. An existing ID is left untouched.
func (s *MemoryStore) Create(sessionID string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(sessionID).session
}

func (s *MemoryStore) createLocked(sessionID string) *memSession {
	if existing, ok := s.sessions[sessionID]; ok {
		return existing
	}
	now := time.Now()
	ms := &memSession{
		session: Session{ID: sessionID, CreatedAt: now, LastActive: now},
	}
	s.sessions[sessionID] = ms
	return ms
}

// Append adds a turn to the session. When auto-create is off, an unknown
// session yields ErrSessionNotFound.
func (s *MemoryStore) Append(ctx context.Context, sessionID string, turn Turn) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ms, ok := s.sessions[sessionID]
	if !ok {
		if !s.autoCreate {
			return "", ErrSessionNotFound
		}
		ms = s.createLocked(sessionID)
	}

	if turn.ID == "" {
		turn.ID = uuid.New().String()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	turn.SessionID = sessionID

	ms.turns = append(ms.turns, turn)
	ms.session.LastActive = time.Now()

	return turn.ID, nil
}

// History returns the most recent limit turns, oldest first.
func (s *MemoryStore) History(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ms, ok := s.sessions[sessionID]
	if !ok {
		if s.autoCreate {
			return nil, nil
		}
		return nil, ErrSessionNotFound
	}

	turns := ms.turns
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}

	out := make([]Turn, len(turns))
	copy(out, turns)
	return out, nil
}

// Reset clears all turns, preserving the session identifier.
func (s *MemoryStore) Reset(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ms, ok := s.sessions[sessionID]
	if !ok {
		if s.autoCreate {
			s.createLocked(sessionID)
			return nil
		}
		return ErrSessionNotFound
	}

	ms.turns = nil
	ms.session.LastActive = time.Now()
	return nil
}

// Acquire takes the session's turn lock.
func (s *MemoryStore) Acquire(ctx context.Context, sessionID string, wait bool) (func(), error) {
	return s.locks.acquire(ctx, sessionID, wait)
}

// Close stops the eviction sweep.
func (s *MemoryStore) Close() error {
	s.stopped.Do(func() { close(s.done) })
	return nil
}

func (s *MemoryStore) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.done:
			return
		}
	}
}

// sweep evicts idle sessions. A session whose lock is held has a turn in
// flight and is skipped until the next pass.
func (s *MemoryStore) sweep() {
	cutoff := time.Now().Add(-s.idleTTL)

	s.mu.RLock()
	var stale []string
	for id, ms := range s.sessions {
		if ms.session.LastActive.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range stale {
		release, ok := s.locks.tryAcquire(id)
		if !ok {
			continue
		}

		s.mu.Lock()
		ms, exists := s.sessions[id]
		if exists && ms.session.LastActive.Before(cutoff) {
			delete(s.sessions, id)
			s.logger.WithField("session_id", id).Debug("evicted idle session")
		}
		s.mu.Unlock()

		release()
	}
}
