package contextstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// PostgresStore persists sessions and turns so history survives restarts.
// Turn serialization is still in-process: the service owns its sessions, so
// the same lock table used by MemoryStore guards database round-trips.
type PostgresStore struct {
	db         *sqlx.DB
	locks      *sessionLocks
	autoCreate bool
	idleTTL    time.Duration
	logger     *logrus.Logger

	done    chan struct{}
	stopped bool
}

// PostgresOptions configures a PostgresStore.
type PostgresOptions struct {
	AutoCreate    bool
	IdleTTL       time.Duration
	SweepInterval time.Duration
	Logger        *logrus.Logger
}

// NewPostgresStore creates a database-backed store.
func NewPostgresStore(db *sqlx.DB, opts PostgresOptions) *PostgresStore {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	s := &PostgresStore{
		db:         db,
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

type turnRow struct {
	ID          string    `db:"id"`
	SessionID   string    `db:"session_id"`
	Role        string    `db:"role"`
	Content     string    `db:"content"`
	ErrorNotice bool      `db:"error_notice"`
	CreatedAt   time.Time `db:"created_at"`
}

// Append inserts a turn, creating the session row first when auto-create
// is enabled.
func (s *PostgresStore) Append(ctx context.Context, sessionID string, turn Turn) (string, error) {
	now := time.Now()

	if s.autoCreate {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO sessions (id, created_at, last_active)
			VALUES ($1, $2, $2)
			ON CONFLICT (id) DO UPDATE SET last_active = $2
		`, sessionID, now)
		if err != nil {
			return "", fmt.Errorf("upsert session: %w", err)
		}
	} else {
		var exists bool
		err := s.db.GetContext(ctx, &exists,
			"SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)", sessionID)
		if err != nil {
			return "", fmt.Errorf("check session: %w", err)
		}
		if !exists {
			return "", ErrSessionNotFound
		}
		if _, err := s.db.ExecContext(ctx,
			"UPDATE sessions SET last_active = $2 WHERE id = $1", sessionID, now); err != nil {
			return "", fmt.Errorf("touch session: %w", err)
		}
	}

	if turn.ID == "" {
		turn.ID = uuid.New().String()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO turns (id, session_id, role, content, error_notice, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, turn.ID, sessionID, string(turn.Role), turn.Content, turn.ErrorNotice, turn.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("insert turn: %w", err)
	}

	return turn.ID, nil
}

// History returns the most recent limit turns, oldest first. Ordering uses
// the insertion sequence so same-timestamp turns never swap places.
func (s *PostgresStore) History(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)", sessionID)
	if err != nil {
		return nil, fmt.Errorf("check session: %w", err)
	}
	if !exists {
		if s.autoCreate {
			return nil, nil
		}
		return nil, ErrSessionNotFound
	}

	var rows []turnRow
	if limit > 0 {
		err = s.db.SelectContext(ctx, &rows, `
			SELECT id, session_id, role, content, error_notice, created_at
			FROM (
				SELECT id, session_id, role, content, error_notice, created_at, seq
				FROM turns WHERE session_id = $1
				ORDER BY seq DESC LIMIT $2
			) latest
			ORDER BY seq ASC
		`, sessionID, limit)
	} else {
		err = s.db.SelectContext(ctx, &rows, `
			SELECT id, session_id, role, content, error_notice, created_at
			FROM turns WHERE session_id = $1
			ORDER BY seq ASC
		`, sessionID)
	}
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("select turns: %w", err)
	}

	turns := make([]Turn, len(rows))
	for i, r := range rows {
		turns[i] = Turn{
			ID:          r.ID,
			SessionID:   r.SessionID,
			Role:        Role(r.Role),
			Content:     r.Content,
			ErrorNotice: r.ErrorNotice,
			CreatedAt:   r.CreatedAt,
		}
	}
	return turns, nil
}

// Reset deletes the session's turns, preserving the session row.
func (s *PostgresStore) Reset(ctx context.Context, sessionID string) error {
	if s.autoCreate {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO sessions (id, created_at, last_active)
			VALUES ($1, $2, $2)
			ON CONFLICT (id) DO UPDATE SET last_active = $2
		`, sessionID, time.Now())
		if err != nil {
			return fmt.Errorf("upsert session: %w", err)
		}
	} else {
		var exists bool
		if err := s.db.GetContext(ctx, &exists,
			"SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)", sessionID); err != nil {
			return fmt.Errorf("check session: %w", err)
		}
		if !exists {
			return ErrSessionNotFound
		}
	}

	_, err := s.db.ExecContext(ctx, "DELETE FROM turns WHERE session_id = $1", sessionID)
	if err != nil {
		return fmt.Errorf("delete turns: %w", err)
	}
	return nil
}

// Acquire takes the in-process session lock.
func (s *PostgresStore) Acquire(ctx context.Context, sessionID string, wait bool) (func(), error) {
	return s.locks.acquire(ctx, sessionID, wait)
}

// Close stops the eviction sweep.
func (s *PostgresStore) Close() error {
	if !s.stopped {
		s.stopped = true
		close(s.done)
	}
	return nil
}

func (s *PostgresStore) sweepLoop(interval time.Duration) {
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

func (s *PostgresStore) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-s.idleTTL)

	var stale []string
	err := s.db.SelectContext(ctx, &stale,
		"SELECT id FROM sessions WHERE last_active < $1", cutoff)
	if err != nil {
		s.logger.WithError(err).Warn("session sweep query failed")
		return
	}

	for _, id := range stale {
		release, ok := s.locks.tryAcquire(id)
		if !ok {
			continue
		}

		_, err := s.db.ExecContext(ctx,
			"DELETE FROM sessions WHERE id = $1 AND last_active < $2", id, cutoff)
		if err != nil {
			s.logger.WithError(err).WithField("session_id", id).Warn("session eviction failed")
		} else {
			s.logger.WithField("session_id", id).Debug("evicted idle session")
		}

		release()
	}
}
