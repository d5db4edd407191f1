// Package storage defines the Record Store contract shared by every callfacts
// storage backend.
package storage

import (
	"context"
	"strings"

	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/record"
)

// Reader is the read side of the Record Store. Every method observes a state
// that reflects some prefix of completed mutations; no method observes a
// partially applied one.
type Reader interface {
	// GetSession returns the session or a NotFoundError.
	GetSession(ctx context.Context, sessionID string) (*record.Session, error)

	// ListSessions returns all sessions in no particular order.
	ListSessions(ctx context.Context) ([]*record.Session, error)

	// ListInformation returns the information records matching filter in
	// insertion order.
	ListInformation(ctx context.Context, filter InformationFilter) ([]*record.InformationRecord, error)

	// ListCallLogs returns all call logs in insertion order.
	ListCallLogs(ctx context.Context) ([]*record.CallLog, error)

	// CountCallLogs returns the number of stored call logs.
	CountCallLogs(ctx context.Context) (int, error)

	// Snapshot returns a consistent full-state view of the store.
	Snapshot(ctx context.Context) (*record.Snapshot, error)
}

// Driver is a durable, concurrency-safe Record Store.
type Driver interface {
	Reader

	// Apply commits a Mutation atomically: either every part of it becomes
	// visible or none does. Drivers that persist to disk flush before
	// returning nil. A session is ended exactly when it has a call log; a
	// mutation that would add to or reopen an ended session fails with
	// SessionEndedError.
	Apply(ctx context.Context, m *Mutation) error

	// Load replaces the store's entire state with snap. The snapshot is
	// validated first; an invalid snapshot yields a CorruptStoreError and
	// leaves the store unchanged.
	Load(ctx context.Context, snap *record.Snapshot) error

	// Close releases the driver's resources.
	Close() error
}

// InformationFilter narrows ListInformation. Empty fields do not constrain.
type InformationFilter struct {
	Category  string
	CallerID  string
	SessionID string
}

// Matches reports whether r satisfies every non-empty field of f.
func (f InformationFilter) Matches(r *record.InformationRecord) bool {
	if f.Category != "" && r.Category != f.Category {
		return false
	}
	if f.CallerID != "" && r.CallerID != f.CallerID {
		return false
	}
	if f.SessionID != "" && r.SessionID != f.SessionID {
		return false
	}
	return true
}

// PutSession inserts or replaces a session.
func PutSession(ctx context.Context, d Driver, s *record.Session) error {
	return d.Apply(ctx, &Mutation{Session: s})
}

// AppendInformation appends r to its existing session, bumping the session's
// information_count and last_activity in the same commit.
func AppendInformation(ctx context.Context, d Driver, r *record.InformationRecord) error {
	return d.Apply(ctx, &Mutation{Information: r})
}

// AppendCallLog appends the call log for an existing active session and ends
// it. A session that is already ended fails with SessionEndedError.
func AppendCallLog(ctx context.Context, d Driver, l *record.CallLog) error {
	return d.Apply(ctx, &Mutation{CallLog: l})
}

// CompareSessionsByCreation orders sessions oldest first, then by id. Drivers
// use it so snapshots list sessions deterministically.
func CompareSessionsByCreation(a, b *record.Session) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.SessionID, b.SessionID)
}
