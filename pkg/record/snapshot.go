package record

import (
	"errors"
	"fmt"
	"time"
)

// SnapshotVersionV1 is the current snapshot layout version.
const SnapshotVersionV1 = 1

// Snapshot is a consistent full-state view of a store. Information records
// and call logs are kept in insertion order.
type Snapshot struct {
	Version     int                  `json:"version"`
	TakenAt     time.Time            `json:"taken_at"`
	Sessions    []*Session           `json:"sessions"`
	Information []*InformationRecord `json:"information"`
	CallLogs    []*CallLog           `json:"call_logs"`
}

// NewSnapshot returns an empty snapshot at the current layout version.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Version:     SnapshotVersionV1,
		Sessions:    []*Session{},
		Information: []*InformationRecord{},
		CallLogs:    []*CallLog{},
	}
}

// Validate checks the snapshot's structural invariants: unique keys, session
// references, one call log per session, counters that match the records they
// count, and a session is ended exactly when it has a call log. It returns
// the first violation found.
func (s *Snapshot) Validate() error {
	if s == nil {
		return errors.New("nil snapshot")
	}
	if s.Version != SnapshotVersionV1 {
		return fmt.Errorf("unsupported snapshot version %d (expected %d)", s.Version, SnapshotVersionV1)
	}

	sessions := make(map[string]*Session, len(s.Sessions))
	for i, sess := range s.Sessions {
		if sess == nil {
			return fmt.Errorf("sessions[%d] is nil", i)
		}
		if sess.SessionID == "" {
			return fmt.Errorf("sessions[%d] has an empty session_id", i)
		}
		if _, dup := sessions[sess.SessionID]; dup {
			return fmt.Errorf("duplicate session %q", sess.SessionID)
		}
		if sess.Status != StatusActive && sess.Status != StatusEnded {
			return fmt.Errorf("session %q has unknown status %q", sess.SessionID, sess.Status)
		}
		if sess.InformationCount < 0 {
			return fmt.Errorf("session %q has negative information_count", sess.SessionID)
		}
		sessions[sess.SessionID] = sess
	}

	ids := make(map[string]struct{}, len(s.Information)+len(s.CallLogs))
	counts := make(map[string]int, len(s.Sessions))
	for i, info := range s.Information {
		if info == nil {
			return fmt.Errorf("information[%d] is nil", i)
		}
		if info.ID == "" {
			return fmt.Errorf("information[%d] has an empty id", i)
		}
		if _, dup := ids[info.ID]; dup {
			return fmt.Errorf("duplicate record id %q", info.ID)
		}
		ids[info.ID] = struct{}{}

		if _, ok := sessions[info.SessionID]; !ok {
			return fmt.Errorf("information %q references unknown session %q", info.ID, info.SessionID)
		}
		counts[info.SessionID]++
	}

	logged := make(map[string]*CallLog, len(s.CallLogs))
	for i, log := range s.CallLogs {
		if log == nil {
			return fmt.Errorf("call_logs[%d] is nil", i)
		}
		if log.ID == "" {
			return fmt.Errorf("call_logs[%d] has an empty id", i)
		}
		if _, dup := ids[log.ID]; dup {
			return fmt.Errorf("duplicate record id %q", log.ID)
		}
		ids[log.ID] = struct{}{}

		if _, ok := sessions[log.SessionID]; !ok {
			return fmt.Errorf("call log %q references unknown session %q", log.ID, log.SessionID)
		}
		if _, dup := logged[log.SessionID]; dup {
			return fmt.Errorf("session %q has more than one call log", log.SessionID)
		}
		if log.Duration < 0 {
			return fmt.Errorf("call log %q has negative duration", log.ID)
		}
		logged[log.SessionID] = log
	}

	for id, sess := range sessions {
		if sess.InformationCount != counts[id] {
			return fmt.Errorf("session %q information_count is %d but %d records exist",
				id, sess.InformationCount, counts[id])
		}

		log, hasLog := logged[id]
		switch {
		case sess.Ended() && !hasLog:
			return fmt.Errorf("session %q is ended but has no call log", id)
		case !sess.Ended() && hasLog:
			return fmt.Errorf("session %q is active but has call log %q", id, log.ID)
		case hasLog && log.InformationSharedCount > sess.InformationCount:
			return fmt.Errorf("call log %q counts %d shared facts but session %q has %d",
				log.ID, log.InformationSharedCount, id, sess.InformationCount)
		}
	}

	return nil
}
