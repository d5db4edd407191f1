package storage

import (
	"errors"
	"fmt"

	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/record"
)

// Mutation is the unit of atomic change applied by Driver.Apply. It touches
// exactly one session: an optional new session state plus at most one new
// information record or call log belonging to it.
type Mutation struct {
	// Session, when set, is the complete new state of the session and is
	// upserted. When nil and Information is set, the stored session's
	// counter and last_activity are advanced by the driver.
	Session *record.Session

	Information *record.InformationRecord
	CallLog     *record.CallLog
}

// SessionID returns the id of the session the mutation touches.
func (m *Mutation) SessionID() string {
	switch {
	case m.Session != nil:
		return m.Session.SessionID
	case m.Information != nil:
		return m.Information.SessionID
	case m.CallLog != nil:
		return m.CallLog.SessionID
	}
	return ""
}

// Validate checks the mutation's shape before a driver touches any state.
func (m *Mutation) Validate() error {
	if m == nil {
		return errors.New("nil mutation")
	}
	if m.Session == nil && m.Information == nil && m.CallLog == nil {
		return errors.New("empty mutation")
	}
	if m.Information != nil && m.CallLog != nil {
		return errors.New("mutation carries both an information record and a call log")
	}

	id := m.SessionID()
	if id == "" {
		return errors.New("mutation has an empty session id")
	}
	if m.Information != nil {
		if m.Information.ID == "" {
			return errors.New("information record has an empty id")
		}
		if m.Information.SessionID != id {
			return fmt.Errorf("information record session %q does not match %q", m.Information.SessionID, id)
		}
	}
	if m.CallLog != nil {
		if m.CallLog.ID == "" {
			return errors.New("call log has an empty id")
		}
		if m.CallLog.SessionID != id {
			return fmt.Errorf("call log session %q does not match %q", m.CallLog.SessionID, id)
		}
	}
	return nil
}

// NextSession computes the session state that results from applying m on top
// of current, which is nil when the session is not yet stored. It returns a
// DanglingReferenceError when a record would reference no session and a
// SessionEndedError when m would write to or reopen an ended session. A call
// log without a new session state ends the stored session.
func NextSession(current *record.Session, m *Mutation) (*record.Session, error) {
	if current != nil && current.Ended() &&
		(m.Information != nil || m.CallLog != nil || !m.Session.Ended()) {
		return nil, SessionEndedError{SessionID: current.SessionID}
	}
	if m.Session != nil {
		return m.Session.Clone(), nil
	}
	if current == nil {
		id := m.SessionID()
		recordID := ""
		if m.Information != nil {
			recordID = m.Information.ID
		} else if m.CallLog != nil {
			recordID = m.CallLog.ID
		}
		return nil, DanglingReferenceError{ID: recordID, SessionID: id}
	}

	next := current.Clone()
	if m.Information != nil {
		next.InformationCount++
		if m.Information.Timestamp.After(next.LastActivity) {
			next.LastActivity = m.Information.Timestamp
		}
	}
	if m.CallLog != nil {
		endedAt := m.CallLog.EndTime
		next.Status = record.StatusEnded
		next.EndedAt = &endedAt
		next.EndReason = m.CallLog.Reason
		if endedAt.After(next.LastActivity) {
			next.LastActivity = endedAt
		}
	}
	return next, nil
}

// CheckLifecycle verifies that next is ended exactly when its session has a
// call log once the mutation commits.
func CheckLifecycle(next *record.Session, hasCallLog bool) error {
	if next.Ended() != hasCallLog {
		return LifecycleError{SessionID: next.SessionID, Ended: next.Ended()}
	}
	return nil
}
