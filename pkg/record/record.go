// Package record defines the three record kinds kept by the callfacts store:
// sessions, information records and call logs.
//
// A Session is the logical record of one ongoing or completed call. An
// InformationRecord is one discrete fact captured during that call, tagged
// with an open-ended category. A CallLog is the terminal summary written
// exactly once when the call ends.
package record

import "time"

// SessionStatus is the lifecycle state of a Session.
type SessionStatus string

const (
	// StatusActive sessions accept new information records.
	StatusActive SessionStatus = "active"

	// StatusEnded sessions have a CallLog and reject further writes.
	StatusEnded SessionStatus = "ended"
)

// InformationStatusReceived is the only status assigned to new information
// records. Other values are reserved for future workflow states.
const InformationStatusReceived = "received"

// Session is one live or completed call.
type Session struct {
	SessionID        string        `json:"session_id"`
	CallerID         string        `json:"caller_id"`
	CreatedAt        time.Time     `json:"created_at"`
	LastActivity     time.Time     `json:"last_activity"`
	InformationCount int           `json:"information_count"`
	Status           SessionStatus `json:"status"`

	// EndedAt and EndReason are set by end_call.
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	EndReason string     `json:"end_reason,omitempty"`
}

// Ended reports whether the session no longer accepts writes.
func (s *Session) Ended() bool {
	return s.Status == StatusEnded
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}

	c := *s
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	return &c
}

// InformationRecord is one fact shared during a call. It is immutable once
// written.
type InformationRecord struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	CallerID    string    `json:"caller_id"`
	Information string    `json:"information"`
	Category    string    `json:"category"`
	Timestamp   time.Time `json:"timestamp"`
	Status      string    `json:"status"`
}

// Clone returns a copy of the record.
func (r *InformationRecord) Clone() *InformationRecord {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// CallLog is the terminal summary of a session.
type CallLog struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	CallerID  string    `json:"caller_id"`
	EndTime   time.Time `json:"end_time"`
	Reason    string    `json:"reason"`

	// Duration is the caller-reported call length in seconds.
	Duration int64 `json:"duration"`

	// InformationSharedCount is the session's information count at end time.
	InformationSharedCount int `json:"information_shared_count"`
}

// Clone returns a copy of the call log.
func (l *CallLog) Clone() *CallLog {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}
