package eventstream

import (
	"time"

	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/record"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeInformationShared is emitted after an information record and
	// its session update are committed.
	EventTypeInformationShared = "callfacts.information.shared"

	// EventTypeCallEnded is emitted after a call log is committed and its
	// session is ended.
	EventTypeCallEnded = "callfacts.call.ended"
)

// RecordEvent is a transport-neutral event payload for a committed write.
// Exactly one of Information and CallLog is set, matching EventType.
type RecordEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`

	SessionID string `json:"session_id"`
	CallerID  string `json:"caller_id"`

	// SessionCreated is true when the write also created the session.
	SessionCreated bool `json:"session_created,omitempty"`

	Information *record.InformationRecord `json:"information,omitempty"`
	CallLog     *record.CallLog           `json:"call_log,omitempty"`
}
