// Package sqldriver provides a database/sql storage.Driver shared by the
// SQLite and PostgreSQL backends. Backends embed *Driver and supply a Dialect.
package sqldriver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/record"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/storage"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Dialect holds the backend specific parts of the SQL driver.
type Dialect struct {
	// Name is used in error messages.
	Name string

	// Schema is executed statement by statement at open time. Statements
	// must be idempotent.
	Schema []string

	// Placeholder converts a query written with '?' placeholders into the
	// backend's form. Nil leaves the query unchanged.
	Placeholder func(query string) string

	// LockSession is appended to the session read inside Apply to take a
	// row lock, e.g. " FOR UPDATE". Empty when the transaction already
	// holds a database-wide write lock.
	LockSession string

	// IsUniqueViolation reports whether err is a unique constraint failure.
	IsUniqueViolation func(err error) bool

	// IsCorrupt reports whether err means the database file or pages are
	// damaged.
	IsCorrupt func(err error) bool

	// IntegrityCheck, when set, is a query run at open time that returns a
	// single "ok" row on a healthy database.
	IntegrityCheck string

	// SnapshotTx are the transaction options used by Snapshot.
	SnapshotTx *sql.TxOptions
}

// Driver implements storage.Driver over a *sql.DB.
type Driver struct {
	DB      *sql.DB
	dialect Dialect
}

// New creates the schema, checks the database and returns a Driver. It takes
// ownership of db and closes it on failure.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Driver, error) {
	d := &Driver{DB: db, dialect: dialect}

	if err := d.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := d.check(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

func (d *Driver) migrate(ctx context.Context) error {
	for _, stmt := range d.dialect.Schema {
		if _, err := d.DB.ExecContext(ctx, stmt); err != nil {
			return d.wrap("migrate", err)
		}
	}
	return nil
}

// check verifies the database pages and the stored records before the driver
// serves any request.
func (d *Driver) check(ctx context.Context) error {
	if d.dialect.IntegrityCheck != "" {
		var result string
		if err := d.DB.QueryRowContext(ctx, d.dialect.IntegrityCheck).Scan(&result); err != nil {
			return d.wrap("integrity check", err)
		}
		if result != "ok" {
			return storage.CorruptStoreError{Source: d.dialect.Name, Err: errors.New(result)}
		}
	}

	snap, err := d.Snapshot(ctx)
	if err != nil {
		return err
	}
	if err := snap.Validate(); err != nil {
		return storage.CorruptStoreError{Source: d.dialect.Name, Err: err}
	}
	return nil
}

// Close closes the underlying database.
func (d *Driver) Close() error {
	return d.DB.Close()
}

// Apply commits m in a single transaction.
func (d *Driver) Apply(ctx context.Context, m *storage.Mutation) error {
	if err := m.Validate(); err != nil {
		return err
	}

	return d.inTx(ctx, nil, "apply", func(tx *sql.Tx) error {
		sessionID := m.SessionID()

		current, err := d.getSession(ctx, tx, sessionID, d.dialect.LockSession)
		if err != nil && !storage.IsNotFound(err) {
			return err
		}

		// Record ids are checked first so a retried write finds its own id.
		if m.Information != nil {
			if err := d.checkID(ctx, tx, m.Information.ID); err != nil {
				return err
			}
		}
		if m.CallLog != nil {
			if err := d.checkID(ctx, tx, m.CallLog.ID); err != nil {
				return err
			}
		}

		next, err := storage.NextSession(current, m)
		if err != nil {
			return err
		}

		records, err := d.countInformation(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if m.Information != nil {
			records++
		}
		logged, err := d.exists(ctx, tx, `SELECT 1 FROM call_logs WHERE session_id = ?`, sessionID)
		if err != nil {
			return err
		}
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

		if err := d.upsertSession(ctx, tx, next); err != nil {
			return err
		}
		if m.Information != nil {
			if err := d.insertInformation(ctx, tx, m.Information); err != nil {
				if d.isUnique(err) {
					return storage.DuplicateIDError{ID: m.Information.ID}
				}
				return err
			}
		}
		if m.CallLog != nil {
			if err := d.insertCallLog(ctx, tx, m.CallLog); err != nil {
				if d.isUnique(err) {
					return storage.DuplicateSessionError{SessionID: sessionID}
				}
				return err
			}
		}
		return nil
	})
}

// Load replaces every table's contents with snap.
func (d *Driver) Load(ctx context.Context, snap *record.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return storage.CorruptStoreError{Source: "snapshot", Err: err}
	}

	return d.inTx(ctx, nil, "load", func(tx *sql.Tx) error {
		for _, table := range []string{"call_logs", "information", "sessions"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return d.wrap("clear "+table, err)
			}
		}
		for _, s := range snap.Sessions {
			if err := d.upsertSession(ctx, tx, s); err != nil {
				return err
			}
		}
		for _, r := range snap.Information {
			if err := d.insertInformation(ctx, tx, r); err != nil {
				return err
			}
		}
		for _, l := range snap.CallLogs {
			if err := d.insertCallLog(ctx, tx, l); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetSession retrieves a session by id.
func (d *Driver) GetSession(ctx context.Context, sessionID string) (*record.Session, error) {
	return d.getSession(ctx, d.DB, sessionID, "")
}

// ListSessions returns all sessions ordered by creation.
func (d *Driver) ListSessions(ctx context.Context) ([]*record.Session, error) {
	return d.listSessions(ctx, d.DB)
}

// ListInformation returns matching information records in insertion order.
func (d *Driver) ListInformation(ctx context.Context, filter storage.InformationFilter) ([]*record.InformationRecord, error) {
	return d.listInformation(ctx, d.DB, filter)
}

// ListCallLogs returns all call logs in insertion order.
func (d *Driver) ListCallLogs(ctx context.Context) ([]*record.CallLog, error) {
	return d.listCallLogs(ctx, d.DB)
}

// CountCallLogs returns the number of stored call logs.
func (d *Driver) CountCallLogs(ctx context.Context) (int, error) {
	var n int
	if err := d.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM call_logs`).Scan(&n); err != nil {
		return 0, d.wrap("count call logs", err)
	}
	return n, nil
}

// Snapshot reads every table inside one read transaction.
func (d *Driver) Snapshot(ctx context.Context) (*record.Snapshot, error) {
	snap := record.NewSnapshot()
	snap.TakenAt = time.Now().UTC()

	err := d.inTx(ctx, d.dialect.SnapshotTx, "snapshot", func(tx *sql.Tx) error {
		var err error
		if snap.Sessions, err = d.listSessions(ctx, tx); err != nil {
			return err
		}
		if snap.Information, err = d.listInformation(ctx, tx, storage.InformationFilter{}); err != nil {
			return err
		}
		snap.CallLogs, err = d.listCallLogs(ctx, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// querier is the subset shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (d *Driver) inTx(ctx context.Context, opts *sql.TxOptions, op string, fn func(tx *sql.Tx) error) error {
	tx, err := d.DB.BeginTx(ctx, opts)
	if err != nil {
		return d.wrap("begin "+op, err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return d.wrap("commit "+op, err)
	}
	return nil
}

// wrap classifies a database error as corruption or a retryable failure.
func (d *Driver) wrap(op string, err error) error {
	if d.dialect.IsCorrupt != nil && d.dialect.IsCorrupt(err) {
		return storage.CorruptStoreError{Source: d.dialect.Name, Err: err}
	}
	return storage.StorageError{Op: d.dialect.Name + " " + op, Err: err}
}

// scanErr is wrap for row scans, which also fail on unparseable timestamps.
func (d *Driver) scanErr(op string, err error) error {
	var pe *time.ParseError
	if errors.As(err, &pe) {
		return storage.CorruptStoreError{Source: d.dialect.Name, Err: err}
	}
	return d.wrap(op, err)
}

func (d *Driver) isUnique(err error) bool {
	var se storage.StorageError
	if errors.As(err, &se) {
		err = se.Err
	}
	return d.dialect.IsUniqueViolation != nil && d.dialect.IsUniqueViolation(err)
}

func (d *Driver) q(query string) string {
	if d.dialect.Placeholder == nil {
		return query
	}
	return d.dialect.Placeholder(query)
}

const sessionColumns = `session_id, caller_id, created_at, last_activity, information_count, status, ended_at, end_reason`

func (d *Driver) getSession(ctx context.Context, db querier, sessionID, suffix string) (*record.Session, error) {
	row := db.QueryRowContext(ctx, d.q(`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`+suffix), sessionID)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{SessionID: sessionID}
	}
	if err != nil {
		return nil, d.scanErr("get session", err)
	}
	return s, nil
}

func (d *Driver) listSessions(ctx context.Context, db querier) ([]*record.Session, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY created_at, session_id`)
	if err != nil {
		return nil, d.wrap("list sessions", err)
	}
	defer rows.Close()

	sessions := []*record.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, d.scanErr("scan session", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, d.wrap("list sessions", err)
	}
	return sessions, nil
}

func (d *Driver) listInformation(ctx context.Context, db querier, filter storage.InformationFilter) ([]*record.InformationRecord, error) {
	query := `SELECT id, session_id, caller_id, information, category, recorded_at, status FROM information`

	var (
		where []string
		args  []any
	)
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.CallerID != "" {
		where = append(where, "caller_id = ?")
		args = append(args, filter.CallerID)
	}
	if filter.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq"

	rows, err := db.QueryContext(ctx, d.q(query), args...)
	if err != nil {
		return nil, d.wrap("list information", err)
	}
	defer rows.Close()

	records := []*record.InformationRecord{}
	for rows.Next() {
		var (
			r  record.InformationRecord
			ts string
		)
		if err := rows.Scan(&r.ID, &r.SessionID, &r.CallerID, &r.Information, &r.Category, &ts, &r.Status); err != nil {
			return nil, d.wrap("scan information", err)
		}
		if r.Timestamp, err = parseTime(ts); err != nil {
			return nil, storage.CorruptStoreError{Source: d.dialect.Name, Err: err}
		}
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, d.wrap("list information", err)
	}
	return records, nil
}

func (d *Driver) listCallLogs(ctx context.Context, db querier) ([]*record.CallLog, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, session_id, caller_id, end_time, reason, duration, information_shared_count FROM call_logs ORDER BY seq`)
	if err != nil {
		return nil, d.wrap("list call logs", err)
	}
	defer rows.Close()

	logs := []*record.CallLog{}
	for rows.Next() {
		var (
			l   record.CallLog
			end string
		)
		if err := rows.Scan(&l.ID, &l.SessionID, &l.CallerID, &end, &l.Reason, &l.Duration, &l.InformationSharedCount); err != nil {
			return nil, d.wrap("scan call log", err)
		}
		if l.EndTime, err = parseTime(end); err != nil {
			return nil, storage.CorruptStoreError{Source: d.dialect.Name, Err: err}
		}
		logs = append(logs, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, d.wrap("list call logs", err)
	}
	return logs, nil
}

func (d *Driver) countInformation(ctx context.Context, db querier, sessionID string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, d.q(`SELECT COUNT(*) FROM information WHERE session_id = ?`), sessionID).Scan(&n)
	if err != nil {
		return 0, d.wrap("count information", err)
	}
	return n, nil
}

// checkID enforces id uniqueness across both record tables.
func (d *Driver) checkID(ctx context.Context, db querier, id string) error {
	for _, table := range []string{"information", "call_logs"} {
		taken, err := d.exists(ctx, db, `SELECT 1 FROM `+table+` WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if taken {
			return storage.DuplicateIDError{ID: id}
		}
	}
	return nil
}

func (d *Driver) exists(ctx context.Context, db querier, query string, args ...any) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, d.q(query), args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, d.wrap("lookup", err)
	}
	return true, nil
}

func (d *Driver) upsertSession(ctx context.Context, db querier, s *record.Session) error {
	var endedAt sql.NullString
	if s.EndedAt != nil {
		endedAt = sql.NullString{String: formatTime(*s.EndedAt), Valid: true}
	}

	_, err := db.ExecContext(ctx, d.q(`
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET
			caller_id = excluded.caller_id,
			created_at = excluded.created_at,
			last_activity = excluded.last_activity,
			information_count = excluded.information_count,
			status = excluded.status,
			ended_at = excluded.ended_at,
			end_reason = excluded.end_reason`),
		s.SessionID, s.CallerID, formatTime(s.CreatedAt), formatTime(s.LastActivity),
		s.InformationCount, string(s.Status), endedAt, s.EndReason,
	)
	if err != nil {
		return d.wrap("upsert session", err)
	}
	return nil
}

func (d *Driver) insertInformation(ctx context.Context, db querier, r *record.InformationRecord) error {
	_, err := db.ExecContext(ctx, d.q(`
		INSERT INTO information (id, session_id, caller_id, information, category, recorded_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		r.ID, r.SessionID, r.CallerID, r.Information, r.Category, formatTime(r.Timestamp), r.Status,
	)
	if err != nil {
		return d.wrap("insert information", err)
	}
	return nil
}

func (d *Driver) insertCallLog(ctx context.Context, db querier, l *record.CallLog) error {
	_, err := db.ExecContext(ctx, d.q(`
		INSERT INTO call_logs (id, session_id, caller_id, end_time, reason, duration, information_shared_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		l.ID, l.SessionID, l.CallerID, formatTime(l.EndTime), l.Reason, l.Duration, l.InformationSharedCount,
	)
	if err != nil {
		return d.wrap("insert call log", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*record.Session, error) {
	var (
		s                     record.Session
		status                string
		created, lastActivity string
		endedAt               sql.NullString
	)
	if err := row.Scan(&s.SessionID, &s.CallerID, &created, &lastActivity,
		&s.InformationCount, &status, &endedAt, &s.EndReason); err != nil {
		return nil, err
	}
	s.Status = record.SessionStatus(status)

	var err error
	if s.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if s.LastActivity, err = parseTime(lastActivity); err != nil {
		return nil, err
	}
	if endedAt.Valid {
		t, err := parseTime(endedAt.String)
		if err != nil {
			return nil, err
		}
		s.EndedAt = &t
	}
	return &s, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// Dollar rewrites '?' placeholders as $1, $2, ... for PostgreSQL.
func Dollar(query string) string {
	var (
		b strings.Builder
		n int
	)
	b.Grow(len(query) + 8)
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var _ storage.Driver = (*Driver)(nil)
