// Package inmemory provides a map-backed storage.Driver. It is not durable and
// is used for tests, ephemeral runs, and as the working set of the jsonfile
// driver.
package inmemory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/record"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/storage"
)

// Driver implements storage.Driver using in-memory maps.
type Driver struct {
	// mu is a read write sync mutex guarding st. Apply holds the write lock
	// for the whole mutation, so readers never see one half applied.
	mu sync.RWMutex

	st *state
}

// state holds the store contents.
type state struct {
	sessions map[string]*record.Session

	// information and callLogs keep insertion order.
	information []*record.InformationRecord
	callLogs    []*record.CallLog

	// ids holds every information and call log id ever stored.
	ids map[string]struct{}

	// infoCount is the number of stored information records per session.
	infoCount map[string]int

	// loggedSessions holds sessions that already have a call log.
	loggedSessions map[string]struct{}
}

// NewDriver creates a new, empty in-memory driver.
func NewDriver() *Driver {
	return &Driver{st: newState()}
}

func newState() *state {
	return &state{
		sessions:       make(map[string]*record.Session),
		information:    []*record.InformationRecord{},
		callLogs:       []*record.CallLog{},
		ids:            make(map[string]struct{}),
		infoCount:      make(map[string]int),
		loggedSessions: make(map[string]struct{}),
	}
}

// Apply commits m atomically.
func (d *Driver) Apply(_ context.Context, m *storage.Mutation) error {
	if err := m.Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// Record ids are checked first so a retried write finds its own id.
	if m.Information != nil {
		if _, dup := d.st.ids[m.Information.ID]; dup {
			return storage.DuplicateIDError{ID: m.Information.ID}
		}
	}
	if m.CallLog != nil {
		if _, dup := d.st.ids[m.CallLog.ID]; dup {
			return storage.DuplicateIDError{ID: m.CallLog.ID}
		}
	}

	sessionID := m.SessionID()
	next, err := storage.NextSession(d.st.sessions[sessionID], m)
	if err != nil {
		return err
	}

	records := d.st.infoCount[sessionID]
	if m.Information != nil {
		records++
	}
	_, logged := d.st.loggedSessions[sessionID]
	if m.CallLog != nil && logged {
		return storage.DuplicateSessionError{SessionID: sessionID}
	}
	if err := storage.CheckLifecycle(next, logged || m.CallLog != nil); err != nil {
		return err
	}
	if next.InformationCount != records {
		return storage.CounterMismatchError{
			SessionID: sessionID,
			Counter:   next.InformationCount,
			Records:   records,
		}
	}

	// Every check passed; nothing below can fail.
	d.st.sessions[sessionID] = next
	if m.Information != nil {
		d.st.information = append(d.st.information, m.Information.Clone())
		d.st.ids[m.Information.ID] = struct{}{}
		d.st.infoCount[sessionID] = records
	}
	if m.CallLog != nil {
		d.st.callLogs = append(d.st.callLogs, m.CallLog.Clone())
		d.st.ids[m.CallLog.ID] = struct{}{}
		d.st.loggedSessions[sessionID] = struct{}{}
	}

	return nil
}

// GetSession retrieves a session by id.
func (d *Driver) GetSession(_ context.Context, sessionID string) (*record.Session, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.st.sessions[sessionID]
	if !ok {
		return nil, storage.NotFoundError{SessionID: sessionID}
	}
	return s.Clone(), nil
}

// ListSessions returns all sessions.
func (d *Driver) ListSessions(_ context.Context) ([]*record.Session, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	sessions := make([]*record.Session, 0, len(d.st.sessions))
	for _, s := range d.st.sessions {
		sessions = append(sessions, s.Clone())
	}
	return sessions, nil
}

// ListInformation returns matching information records in insertion order.
func (d *Driver) ListInformation(_ context.Context, filter storage.InformationFilter) ([]*record.InformationRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := []*record.InformationRecord{}
	for _, r := range d.st.information {
		if filter.Matches(r) {
			result = append(result, r.Clone())
		}
	}
	return result, nil
}

// ListCallLogs returns all call logs in insertion order.
func (d *Driver) ListCallLogs(_ context.Context) ([]*record.CallLog, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	logs := make([]*record.CallLog, 0, len(d.st.callLogs))
	for _, l := range d.st.callLogs {
		logs = append(logs, l.Clone())
	}
	return logs, nil
}

// CountCallLogs returns the number of stored call logs.
func (d *Driver) CountCallLogs(_ context.Context) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.st.callLogs), nil
}

// Snapshot returns a deep copy of the store contents.
func (d *Driver) Snapshot(_ context.Context) (*record.Snapshot, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.st.snapshot(), nil
}

// Load replaces the store contents with snap.
func (d *Driver) Load(_ context.Context, snap *record.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return storage.CorruptStoreError{Source: "snapshot", Err: err}
	}

	next := stateFromSnapshot(snap)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.st = next
	return nil
}

// Clone returns an independent driver holding a deep copy of d's contents.
func (d *Driver) Clone() *Driver {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return &Driver{st: stateFromSnapshot(d.st.snapshot())}
}

// Count returns the number of stored information records.
func (d *Driver) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.st.information)
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}

func (s *state) snapshot() *record.Snapshot {
	snap := record.NewSnapshot()
	snap.TakenAt = time.Now().UTC()

	for _, sess := range s.sessions {
		snap.Sessions = append(snap.Sessions, sess.Clone())
	}
	slices.SortFunc(snap.Sessions, storage.CompareSessionsByCreation)

	for _, r := range s.information {
		snap.Information = append(snap.Information, r.Clone())
	}
	for _, l := range s.callLogs {
		snap.CallLogs = append(snap.CallLogs, l.Clone())
	}
	return snap
}

// stateFromSnapshot builds a state from an already validated snapshot.
func stateFromSnapshot(snap *record.Snapshot) *state {
	st := newState()
	for _, sess := range snap.Sessions {
		st.sessions[sess.SessionID] = sess.Clone()
	}
	for _, r := range snap.Information {
		st.information = append(st.information, r.Clone())
		st.ids[r.ID] = struct{}{}
		st.infoCount[r.SessionID]++
	}
	for _, l := range snap.CallLogs {
		st.callLogs = append(st.callLogs, l.Clone())
		st.ids[l.ID] = struct{}{}
		st.loggedSessions[l.SessionID] = struct{}{}
	}
	return st
}

var _ storage.Driver = (*Driver)(nil)
