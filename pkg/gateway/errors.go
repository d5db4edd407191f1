package gateway

import (
	"errors"
	"fmt"

	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/storage"
)

// ValidationError is malformed or missing input. It is always returned before
// the store is touched.
type ValidationError struct {
	Operation string
	Field     string
	Reason    string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Operation, e.Reason)
	}
	return fmt.Sprintf("%s: invalid %s: %s", e.Operation, e.Field, e.Reason)
}

// StateKind names the lifecycle conflict of a SessionStateError.
type StateKind string

const (
	SessionClosed  StateKind = "SessionClosed"
	UnknownSession StateKind = "UnknownSession"
	AlreadyEnded   StateKind = "AlreadyEnded"
)

var (
	// ErrSessionClosed matches a write against an ended session.
	ErrSessionClosed = errors.New("session is closed")

	// ErrUnknownSession matches end_call for a session that never started.
	ErrUnknownSession = errors.New("unknown session")

	// ErrAlreadyEnded matches a second end_call for the same session.
	ErrAlreadyEnded = errors.New("session already ended")
)

// SessionStateError is a request that conflicts with the session's lifecycle
// state. It is never retried.
type SessionStateError struct {
	Operation string
	SessionID string
	Kind      StateKind
}

func (e SessionStateError) Error() string {
	return fmt.Sprintf("%s: session %q: %s", e.Operation, e.SessionID, e.sentinel())
}

// Is matches the sentinel for the error's kind.
func (e SessionStateError) Is(target error) bool {
	return target == e.sentinel()
}

func (e SessionStateError) sentinel() error {
	switch e.Kind {
	case SessionClosed:
		return ErrSessionClosed
	case UnknownSession:
		return ErrUnknownSession
	case AlreadyEnded:
		return ErrAlreadyEnded
	}
	return errors.New(string(e.Kind))
}

// OperationError wraps a store failure with the operation and session it
// happened in.
type OperationError struct {
	Operation string
	SessionID string
	Err       error
}

func (e OperationError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("%s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("%s: session %q: %v", e.Operation, e.SessionID, e.Err)
}

func (e OperationError) Unwrap() error {
	return e.Err
}

// Caller-facing error kinds.
const (
	KindValidation         = "validation_error"
	KindSessionState       = "session_state_error"
	KindStorage            = "storage_error"
	KindInvariantViolation = "invariant_violation"
)

// Kind maps err onto the caller-facing error taxonomy. It returns an empty
// string for a nil error. A store-level SessionEndedError is a session state
// conflict. Anything unclassified is reported as a storage error, since it
// came from below the gateway.
func Kind(err error) string {
	if err == nil {
		return ""
	}

	var (
		ve ValidationError
		se SessionStateError
	)
	switch {
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &se), storage.IsSessionEnded(err):
		return KindSessionState
	case storage.IsInvariantViolation(err):
		return KindInvariantViolation
	}
	return KindStorage
}
