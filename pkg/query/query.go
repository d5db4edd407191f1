// Package query is the read side of callfacts: filtering and aggregation over
// a storage.Reader. Nothing here can mutate the store.
package query

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/record"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/storage"
)

// ErrInvalidLimit is returned for a negative limit.
var ErrInvalidLimit = errors.New("limit must be a positive integer")

// Service answers read-only queries against a store.
type Service struct {
	reader storage.Reader
}

// New creates a Service reading from r.
func New(r storage.Reader) *Service {
	return &Service{reader: r}
}

// InformationQuery filters information records. Empty fields do not
// constrain; a zero Limit means no limit.
type InformationQuery struct {
	Category  string
	CallerID  string
	SessionID string
	Limit     int
}

// FilterInformation returns the matching records, most recent first. Records
// with equal timestamps are returned latest-inserted first. An empty match is
// an empty slice, never an error.
func (s *Service) FilterInformation(ctx context.Context, q InformationQuery) ([]*record.InformationRecord, error) {
	if q.Limit < 0 {
		return nil, ErrInvalidLimit
	}

	records, err := s.reader.ListInformation(ctx, storage.InformationFilter{
		Category:  q.Category,
		CallerID:  q.CallerID,
		SessionID: q.SessionID,
	})
	if err != nil {
		return nil, err
	}

	// Reversing first lets a stable sort keep later inserts ahead on ties.
	slices.Reverse(records)
	slices.SortStableFunc(records, func(a, b *record.InformationRecord) int {
		return b.Timestamp.Compare(a.Timestamp)
	})

	return truncate(records, q.Limit), nil
}

// SessionCounts breaks sessions down by status.
type SessionCounts struct {
	Total  int `json:"total"`
	Active int `json:"active"`
	Ended  int `json:"ended"`
}

// Summary is the dashboard's headline view of the store.
type Summary struct {
	Sessions         SessionCounts  `json:"sessions"`
	TotalInformation int            `json:"total_information"`
	TotalCallLogs    int            `json:"total_call_logs"`
	Categories       map[string]int `json:"categories"`

	// LastUpdated is the latest write time seen in the store; nil when empty.
	LastUpdated *time.Time `json:"last_updated,omitempty"`
}

// Summary aggregates one consistent snapshot of the store.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	snap, err := s.reader.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	sum := &Summary{
		TotalInformation: len(snap.Information),
		TotalCallLogs:    len(snap.CallLogs),
		Categories:       make(map[string]int),
	}

	var last time.Time
	bump := func(t time.Time) {
		if t.After(last) {
			last = t
		}
	}

	for _, sess := range snap.Sessions {
		sum.Sessions.Total++
		if sess.Ended() {
			sum.Sessions.Ended++
		} else {
			sum.Sessions.Active++
		}
		bump(sess.LastActivity)
		if sess.EndedAt != nil {
			bump(*sess.EndedAt)
		}
	}
	for _, r := range snap.Information {
		sum.Categories[r.Category]++
	}
	for _, l := range snap.CallLogs {
		bump(l.EndTime)
	}

	if !last.IsZero() {
		sum.LastUpdated = &last
	}
	return sum, nil
}

// ListSessions returns every session, most recently active first.
func (s *Service) ListSessions(ctx context.Context) ([]*record.Session, error) {
	sessions, err := s.reader.ListSessions(ctx)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(sessions, func(a, b *record.Session) int {
		if c := b.LastActivity.Compare(a.LastActivity); c != 0 {
			return c
		}
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.SessionID, b.SessionID)
	})
	return sessions, nil
}

// GetSession returns one session.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*record.Session, error) {
	return s.reader.GetSession(ctx, sessionID)
}

// Qualification is the outcome of a call, derived from its end reason.
type Qualification string

const (
	Qualified    Qualification = "qualified"
	NotQualified Qualification = "not_qualified"
	Transferred  Qualification = "transferred"
	Unknown      Qualification = "unknown"
)

// Qualify derives the qualification outcome from a free-text end reason.
// Negative markers are checked first since "not_qualified" contains
// "qualified".
func Qualify(reason string) Qualification {
	r := strings.ToLower(reason)
	switch {
	case strings.Contains(r, "not_qualified"),
		strings.Contains(r, "disqualified"),
		strings.Contains(r, "decline"):
		return NotQualified
	case strings.Contains(r, "qualified"):
		return Qualified
	case strings.Contains(r, "transfer"):
		return Transferred
	}
	return Unknown
}

// CallSummary is a call log annotated with its qualification outcome.
type CallSummary struct {
	*record.CallLog
	Qualification Qualification `json:"qualification"`
}

// ListCalls returns call logs most recent first, at most limit of them when
// limit is positive.
func (s *Service) ListCalls(ctx context.Context, limit int) ([]CallSummary, error) {
	if limit < 0 {
		return nil, ErrInvalidLimit
	}

	logs, err := s.reader.ListCallLogs(ctx)
	if err != nil {
		return nil, err
	}

	slices.Reverse(logs)
	slices.SortStableFunc(logs, func(a, b *record.CallLog) int {
		return b.EndTime.Compare(a.EndTime)
	})
	logs = truncate(logs, limit)

	calls := make([]CallSummary, 0, len(logs))
	for _, l := range logs {
		calls = append(calls, CallSummary{CallLog: l, Qualification: Qualify(l.Reason)})
	}
	return calls, nil
}

// Snapshot returns the raw store contents.
func (s *Service) Snapshot(ctx context.Context) (*record.Snapshot, error) {
	return s.reader.Snapshot(ctx)
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

// SessionDetail is one session with everything recorded for it.
type SessionDetail struct {
	Session     *record.Session             `json:"session"`
	Information []*record.InformationRecord `json:"information"`

	// Call is set once the session has ended.
	Call *CallSummary `json:"call,omitempty"`
}

// SessionDetail returns a session, its information records most recent first
// and its call log when present. A missing session is a storage.NotFoundError.
func (s *Service) SessionDetail(ctx context.Context, sessionID string) (*SessionDetail, error) {
	sess, err := s.reader.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	info, err := s.FilterInformation(ctx, InformationQuery{SessionID: sessionID})
	if err != nil {
		return nil, err
	}

	detail := &SessionDetail{Session: sess, Information: info}

	logs, err := s.reader.ListCallLogs(ctx)
	if err != nil {
		return nil, err
	}
	for _, l := range logs {
		if l.SessionID == sessionID {
			detail.Call = &CallSummary{CallLog: l, Qualification: Qualify(l.Reason)}
			break
		}
	}
	return detail, nil
}
