package storage

import (
	"errors"
	"fmt"
)

// NotFoundError is returned when a session doesn't exist in the store.
type NotFoundError struct {
	SessionID string
}

func (e NotFoundError) Error() string {
	if e.SessionID == "" {
		return "session not found"
	}
	return "session not found: " + e.SessionID
}

// StorageError is a failed read or durable write at the persistence layer.
// It is the only error kind worth retrying.
type StorageError struct {
	Op  string
	Err error
}

func (e StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e StorageError) Unwrap() error {
	return e.Err
}

// DuplicateIDError is returned when a record id is already taken.
type DuplicateIDError struct {
	ID string
}

func (e DuplicateIDError) Error() string {
	return "duplicate record id: " + e.ID
}

// DuplicateSessionError is returned when a session already has a call log.
type DuplicateSessionError struct {
	SessionID string
}

func (e DuplicateSessionError) Error() string {
	return "call log already exists for session: " + e.SessionID
}

// DanglingReferenceError is returned when a record would reference a session
// that does not exist.
type DanglingReferenceError struct {
	ID        string
	SessionID string
}

func (e DanglingReferenceError) Error() string {
	return fmt.Sprintf("record %q references missing session %q", e.ID, e.SessionID)
}

// CounterMismatchError is returned when a session's information_count
// disagrees with the number of stored records for it.
type CounterMismatchError struct {
	SessionID string
	Counter   int
	Records   int
}

func (e CounterMismatchError) Error() string {
	return fmt.Sprintf("session %q information_count %d does not match %d stored records",
		e.SessionID, e.Counter, e.Records)
}

// SessionEndedError is returned when a mutation would add a record to, or
// reopen, a session that is already ended.
type SessionEndedError struct {
	SessionID string
}

func (e SessionEndedError) Error() string {
	return "session already ended: " + e.SessionID
}

// LifecycleError is returned when a session's status would disagree with
// whether it has a call log: ended sessions have exactly one, active ones none.
type LifecycleError struct {
	SessionID string
	Ended     bool
}

func (e LifecycleError) Error() string {
	if e.Ended {
		return fmt.Sprintf("session %q would be ended without a call log", e.SessionID)
	}
	return fmt.Sprintf("session %q would stay active with a call log", e.SessionID)
}

// CorruptStoreError is returned when persisted state cannot be read back or
// fails validation.
type CorruptStoreError struct {
	Source string
	Err    error
}

func (e CorruptStoreError) Error() string {
	return fmt.Sprintf("corrupt store %s: %v", e.Source, e.Err)
}

func (e CorruptStoreError) Unwrap() error {
	return e.Err
}

// IsInvariantViolation reports whether err signals an internal bug or
// corrupted state rather than a transient failure.
func IsInvariantViolation(err error) bool {
	var (
		dupID    DuplicateIDError
		dupSess  DuplicateSessionError
		dangling DanglingReferenceError
		counter  CounterMismatchError
		cycle    LifecycleError
		corrupt  CorruptStoreError
	)
	return errors.As(err, &dupID) ||
		errors.As(err, &dupSess) ||
		errors.As(err, &dangling) ||
		errors.As(err, &counter) ||
		errors.As(err, &cycle) ||
		errors.As(err, &corrupt)
}

// IsRetryable reports whether err is a StorageError that is not also an
// invariant violation.
func IsRetryable(err error) bool {
	var se StorageError
	return errors.As(err, &se) && !IsInvariantViolation(err)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// IsSessionEnded reports whether err is a SessionEndedError.
func IsSessionEnded(err error) bool {
	var se SessionEndedError
	return errors.As(err, &se)
}
