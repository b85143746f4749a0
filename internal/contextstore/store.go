package contextstore

import (
	"context"
	"errors"
	"time"
)

// Role identifies the author of a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single message within a session. Turns are immutable once
// appended; the store never reorders or rewrites them.
type Turn struct {
	ID          string    `db:"id" json:"id"`
	SessionID   string    `db:"session_id" json:"session_id"`
	Role        Role      `db:"role" json:"role"`
	Content     string    `db:"content" json:"content"`
	FragmentIDs []string  `db:"-" json:"fragment_ids,omitempty"`
	ErrorNotice bool      `db:"error_notice" json:"error_notice,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Session is the metadata record for a conversation thread.
type Session struct {
	ID         string    `db:"id" json:"id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	LastActive time.Time `db:"last_active" json:"last_active"`
}

var (
	// ErrSessionNotFound is returned when a session is absent and
	// auto-create is disabled.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionBusy is returned by a non-waiting Acquire when another
	// turn holds the session.
	ErrSessionBusy = errors.New("session busy")
)

// Store holds per-session conversation history.
//
// All turn operations on a single session are serialized through Acquire;
// callers processing a turn take the session lock first so that appends,
// history reads and resets never interleave with another in-flight turn.
type Store interface {
	// Append adds a turn to the session's history.
	Append(ctx context.Context, sessionID string, turn Turn) (string, error)

	// History returns the most recent limit turns in chronological order,
	// oldest first. limit <= 0 returns the full history.
	History(ctx context.Context, sessionID string, limit int) ([]Turn, error)

	// Reset clears all turns while preserving the session identifier.
	Reset(ctx context.Context, sessionID string) error

	// Acquire takes the session's turn lock. When wait is false and the
	// lock is held, it returns ErrSessionBusy immediately; otherwise it
	// blocks until the lock is free or ctx is done. The returned release
	// function must be called exactly once on every exit path.
	Acquire(ctx context.Context, sessionID string, wait bool) (func(), error)

	// Close stops background maintenance.
	Close() error
}
