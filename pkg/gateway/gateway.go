// Package gateway is the function-call surface the conversational agent
// invokes during a live call. It validates loosely typed input, assigns ids
// and timestamps, keeps session bookkeeping and commits each change to the
// record store as a single atomic mutation.
//
// Writes to one session are serialized; writes to different sessions run in
// parallel. Once a valid write is accepted it runs to completion or failure
// within the configured write timeout, whatever happens to the caller's
// context.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/eventstream"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/query"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/record"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/storage"
)

// Operation names, as the agent invokes them.
const (
	OpShareInformation     = "share_information"
	OpEndCall              = "end_call"
	OpGetSharedInformation = "get_shared_information"
)

const (
	defaultWriteTimeout  = 5 * time.Second
	defaultMaxRetries    = 3
	defaultRetryInterval = 50 * time.Millisecond
)

// EventSink receives events for committed writes. worker.Pool implements it.
type EventSink interface {
	Enqueue(event *eventstream.RecordEvent) error
}

// Config is the gateway's configuration.
type Config struct {
	// Store is the record store every operation runs against.
	Store storage.Driver

	// Events, when set, is handed an event after every committed write.
	// Failing to enqueue never fails the write.
	Events EventSink

	Logger *slog.Logger

	// WriteTimeout bounds one write, from waiting on the session lock to the
	// last retry (defaults to 5s).
	WriteTimeout time.Duration

	// MaxRetries is how many times a retryable storage failure is retried
	// (defaults to 3).
	MaxRetries uint

	// RetryInterval is the first backoff interval (defaults to 50ms).
	RetryInterval time.Duration

	// Clock returns the current time. Defaults to time.Now in UTC.
	Clock func() time.Time

	// NewID returns a fresh record or session id. Defaults to a random UUID.
	NewID func() string
}

// Gateway executes the agent's function calls.
type Gateway struct {
	store  storage.Driver
	query  *query.Service
	events EventSink
	logger *slog.Logger

	writeTimeout  time.Duration
	maxRetries    uint
	retryInterval time.Duration

	now   func() time.Time
	newID func() string

	locks *sessionLocks
}

// New creates a Gateway.
func New(c *Config) (*Gateway, error) {
	if c.Store == nil {
		return nil, errors.New("gateway requires a store")
	}

	g := &Gateway{
		store:         c.Store,
		query:         query.New(c.Store),
		events:        c.Events,
		logger:        c.Logger,
		writeTimeout:  c.WriteTimeout,
		maxRetries:    c.MaxRetries,
		retryInterval: c.RetryInterval,
		now:           c.Clock,
		newID:         c.NewID,
		locks:         newSessionLocks(),
	}

	if g.logger == nil {
		g.logger = slog.New(slog.DiscardHandler)
	}
	if g.writeTimeout <= 0 {
		g.writeTimeout = defaultWriteTimeout
	}
	if g.maxRetries == 0 {
		g.maxRetries = defaultMaxRetries
	}
	if g.retryInterval <= 0 {
		g.retryInterval = defaultRetryInterval
	}
	if g.now == nil {
		g.now = func() time.Time { return time.Now().UTC() }
	}
	if g.newID == nil {
		g.newID = uuid.NewString
	}

	return g, nil
}

// ShareInformationRequest is the input of share_information. An empty
// SessionID starts a new session.
type ShareInformationRequest struct {
	Information string
	Category    string
	CallerID    string
	SessionID   string
}

func (r ShareInformationRequest) validate() error {
	if err := required(OpShareInformation, "information", r.Information); err != nil {
		return err
	}
	if err := required(OpShareInformation, "category", r.Category); err != nil {
		return err
	}
	return required(OpShareInformation, "caller_id", r.CallerID)
}

// ShareInformationResult describes a committed information record.
type ShareInformationResult struct {
	ID        string
	SessionID string
	Timestamp time.Time

	// Created is true when this call started the session.
	Created bool

	// InformationCount is the session's counter after the write.
	InformationCount int
}

// ShareInformation appends one fact to a session, creating the session first
// when SessionID is empty or unknown. The record and the session's counter
// are committed together.
func (g *Gateway) ShareInformation(ctx context.Context, req ShareInformationRequest) (*ShareInformationResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = g.newID()
	}
	log := g.logger.With("operation", OpShareInformation, "session_id", sessionID, "caller_id", req.CallerID)
	log.Debug("function call received", "category", req.Category)

	ctx, cancel := g.detach(ctx)
	defer cancel()

	release, err := g.locks.acquire(ctx, sessionID)
	if err != nil {
		return nil, g.fail(log, OpShareInformation, sessionID, storage.StorageError{Op: "lock session", Err: err}, nil)
	}
	defer release()

	current, err := g.loadSession(ctx, log, sessionID)
	if err != nil {
		return nil, g.fail(log, OpShareInformation, sessionID, err, nil)
	}
	if current != nil && current.Ended() {
		log.Info("rejected write to closed session")
		return nil, SessionStateError{Operation: OpShareInformation, SessionID: sessionID, Kind: SessionClosed}
	}

	now := g.now()
	info := &record.InformationRecord{
		ID:          g.newID(),
		SessionID:   sessionID,
		CallerID:    req.CallerID,
		Information: req.Information,
		Category:    req.Category,
		Timestamp:   now,
		Status:      record.InformationStatusReceived,
	}

	created := current == nil
	next := current.Clone()
	if created {
		next = &record.Session{
			SessionID: sessionID,
			CallerID:  req.CallerID,
			CreatedAt: now,
			Status:    record.StatusActive,
		}
	} else if next.CallerID != req.CallerID {
		log.Warn("caller_id differs from the session's caller", "session_caller_id", next.CallerID)
	}
	next.InformationCount++
	if now.After(next.LastActivity) {
		next.LastActivity = now
	}

	m := &storage.Mutation{Session: next, Information: info}
	if err := g.commit(ctx, log, m, info.ID); err != nil {
		if storage.IsSessionEnded(err) {
			log.Info("session ended by another writer before commit")
			return nil, SessionStateError{Operation: OpShareInformation, SessionID: sessionID, Kind: SessionClosed}
		}
		return nil, g.fail(log, OpShareInformation, sessionID, err, m)
	}

	log.Info("information shared",
		"info_id", info.ID,
		"category", info.Category,
		"created", created,
		"information_count", next.InformationCount,
	)
	g.publish(log, &eventstream.RecordEvent{
		EventType:      eventstream.EventTypeInformationShared,
		SessionID:      sessionID,
		CallerID:       req.CallerID,
		SessionCreated: created,
		Information:    info.Clone(),
	})

	return &ShareInformationResult{
		ID:               info.ID,
		SessionID:        sessionID,
		Timestamp:        info.Timestamp,
		Created:          created,
		InformationCount: next.InformationCount,
	}, nil
}

// EndCallRequest is the input of end_call. Duration is in seconds.
type EndCallRequest struct {
	Reason    string
	CallerID  string
	Duration  int64
	SessionID string
}

func (r EndCallRequest) validate() error {
	if err := required(OpEndCall, "reason", r.Reason); err != nil {
		return err
	}
	if err := required(OpEndCall, "caller_id", r.CallerID); err != nil {
		return err
	}
	if r.Duration < 0 {
		return ValidationError{Operation: OpEndCall, Field: "duration", Reason: "must be a non-negative integer"}
	}
	return nil
}

// EndCallResult describes a committed call log.
type EndCallResult struct {
	CallLogID              string
	SessionID              string
	EndTime                time.Time
	InformationSharedCount int

	// TotalCalls is the number of call logs in the store after the write. It
	// is read after the commit and is zero when that read fails.
	TotalCalls int
}

// EndCall writes the session's call log and ends the session in one commit.
// The session must exist and still be active.
func (g *Gateway) EndCall(ctx context.Context, req EndCallRequest) (*EndCallResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	sessionID := req.SessionID
	log := g.logger.With("operation", OpEndCall, "session_id", sessionID, "caller_id", req.CallerID)
	log.Debug("function call received", "reason", req.Reason, "duration", req.Duration)

	if sessionID == "" {
		return nil, SessionStateError{Operation: OpEndCall, Kind: UnknownSession}
	}

	ctx, cancel := g.detach(ctx)
	defer cancel()

	release, err := g.locks.acquire(ctx, sessionID)
	if err != nil {
		return nil, g.fail(log, OpEndCall, sessionID, storage.StorageError{Op: "lock session", Err: err}, nil)
	}
	defer release()

	current, err := g.loadSession(ctx, log, sessionID)
	if err != nil {
		return nil, g.fail(log, OpEndCall, sessionID, err, nil)
	}
	switch {
	case current == nil:
		log.Info("rejected end of unknown session")
		return nil, SessionStateError{Operation: OpEndCall, SessionID: sessionID, Kind: UnknownSession}
	case current.Ended():
		log.Info("rejected second end of session")
		return nil, SessionStateError{Operation: OpEndCall, SessionID: sessionID, Kind: AlreadyEnded}
	}
	if current.CallerID != req.CallerID {
		log.Warn("caller_id differs from the session's caller", "session_caller_id", current.CallerID)
	}

	now := g.now()
	callLog := &record.CallLog{
		ID:                     g.newID(),
		SessionID:              sessionID,
		CallerID:               req.CallerID,
		EndTime:                now,
		Reason:                 req.Reason,
		Duration:               req.Duration,
		InformationSharedCount: current.InformationCount,
	}

	next := current.Clone()
	next.Status = record.StatusEnded
	next.EndedAt = &now
	next.EndReason = req.Reason
	if now.After(next.LastActivity) {
		next.LastActivity = now
	}

	m := &storage.Mutation{Session: next, CallLog: callLog}
	if err := g.commit(ctx, log, m, callLog.ID); err != nil {
		if storage.IsSessionEnded(err) {
			log.Info("session ended by another writer before commit")
			return nil, SessionStateError{Operation: OpEndCall, SessionID: sessionID, Kind: AlreadyEnded}
		}
		return nil, g.fail(log, OpEndCall, sessionID, err, m)
	}

	log.Info("call ended",
		"call_log_id", callLog.ID,
		"reason", callLog.Reason,
		"information_shared_count", callLog.InformationSharedCount,
	)
	g.publish(log, &eventstream.RecordEvent{
		EventType: eventstream.EventTypeCallEnded,
		SessionID: sessionID,
		CallerID:  req.CallerID,
		CallLog:   callLog.Clone(),
	})

	result := &EndCallResult{
		CallLogID:              callLog.ID,
		SessionID:              sessionID,
		EndTime:                callLog.EndTime,
		InformationSharedCount: callLog.InformationSharedCount,
	}
	if total, err := g.store.CountCallLogs(ctx); err != nil {
		log.Warn("could not count call logs", "error", err)
	} else {
		result.TotalCalls = total
	}
	return result, nil
}

// GetSharedInformationRequest is the input of get_shared_information. Empty
// filters do not constrain; a nil Limit returns every match.
type GetSharedInformationRequest struct {
	Category  string
	CallerID  string
	SessionID string
	Limit     *int
}

// GetSharedInformationResult holds the matching records, most recent first.
type GetSharedInformationResult struct {
	Information []*record.InformationRecord

	// TotalAvailable is the number of matches before the limit was applied.
	TotalAvailable int
}

// GetSharedInformation returns previously shared facts so the agent can avoid
// asking for them again. It never mutates the store.
func (g *Gateway) GetSharedInformation(ctx context.Context, req GetSharedInformationRequest) (*GetSharedInformationResult, error) {
	if req.Limit != nil && *req.Limit <= 0 {
		return nil, ValidationError{Operation: OpGetSharedInformation, Field: "limit", Reason: "must be a positive integer"}
	}

	log := g.logger.With("operation", OpGetSharedInformation, "session_id", req.SessionID, "caller_id", req.CallerID)
	log.Debug("function call received", "category", req.Category)

	records, err := g.query.FilterInformation(ctx, query.InformationQuery{
		Category:  req.Category,
		CallerID:  req.CallerID,
		SessionID: req.SessionID,
	})
	if err != nil {
		return nil, g.fail(log, OpGetSharedInformation, req.SessionID, err, nil)
	}

	result := &GetSharedInformationResult{Information: records, TotalAvailable: len(records)}
	if req.Limit != nil && len(records) > *req.Limit {
		result.Information = records[:*req.Limit]
	}
	return result, nil
}

// detach returns a context that ignores the caller's cancellation but still
// expires after the write timeout, so an accepted write is never abandoned
// half way.
func (g *Gateway) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), g.writeTimeout)
}

// loadSession reads a session, returning nil for one that does not exist.
func (g *Gateway) loadSession(ctx context.Context, log *slog.Logger, sessionID string) (*record.Session, error) {
	var sess *record.Session
	err := g.retry(ctx, log, "get session", func(uint) error {
		s, err := g.store.GetSession(ctx, sessionID)
		if storage.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		sess = s
		return nil
	})
	return sess, err
}

// commit applies m, retrying retryable failures. A retry that finds its own
// record id already stored means an earlier attempt committed and only its
// acknowledgement was lost.
func (g *Gateway) commit(ctx context.Context, log *slog.Logger, m *storage.Mutation, recordID string) error {
	return g.retry(ctx, log, "apply", func(attempt uint) error {
		err := g.store.Apply(ctx, m)

		var dup storage.DuplicateIDError
		if attempt > 1 && errors.As(err, &dup) && dup.ID == recordID {
			log.Warn("write found committed by an earlier attempt", "id", recordID, "attempt", attempt)
			return nil
		}
		return err
	})
}

func (g *Gateway) retry(ctx context.Context, log *slog.Logger, step string, fn func(attempt uint) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.retryInterval

	var (
		attempt uint
		last    error
	)
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := fn(attempt)
		if err == nil {
			return struct{}{}, nil
		}

		last = err
		if !storage.IsRetryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		log.Warn("storage failure, retrying", "step", step, "attempt", attempt, "error", err)
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(g.maxRetries+1))

	if err != nil && ctx.Err() != nil && (last == nil || storage.IsRetryable(last)) {
		// The write timeout expired while backing off.
		return storage.StorageError{
			Op:  step,
			Err: fmt.Errorf("gave up after %d attempts: %w", attempt, errors.Join(ctx.Err(), last)),
		}
	}
	return err
}

// fail wraps a store error with its operation context and logs it. Invariant
// violations are logged with the mutation that triggered them.
func (g *Gateway) fail(log *slog.Logger, op, sessionID string, err error, m *storage.Mutation) error {
	if storage.IsInvariantViolation(err) {
		attrs := []any{"error", err}
		if m != nil {
			attrs = append(attrs, "mutation", mutationAttrs(m))
		}
		log.Error("store invariant violated", attrs...)
	} else {
		log.Error("store operation failed", "error", err)
	}
	return OperationError{Operation: op, SessionID: sessionID, Err: err}
}

func mutationAttrs(m *storage.Mutation) slog.Value {
	attrs := []slog.Attr{}
	if m.Session != nil {
		attrs = append(attrs,
			slog.String("session_status", string(m.Session.Status)),
			slog.Int("information_count", m.Session.InformationCount),
		)
	}
	if m.Information != nil {
		attrs = append(attrs,
			slog.String("info_id", m.Information.ID),
			slog.String("category", m.Information.Category),
		)
	}
	if m.CallLog != nil {
		attrs = append(attrs,
			slog.String("call_log_id", m.CallLog.ID),
			slog.String("reason", m.CallLog.Reason),
		)
	}
	return slog.GroupValue(attrs...)
}

func (g *Gateway) publish(log *slog.Logger, event *eventstream.RecordEvent) {
	if g.events == nil {
		return
	}

	event.SchemaVersion = eventstream.SchemaVersionV1
	event.EventID = g.newID()
	event.EmittedAt = g.now()
	if err := g.events.Enqueue(event); err != nil {
		log.Warn("record event not published", "event_type", event.EventType, "error", err)
	}
}

func required(op, field, value string) error {
	if value == "" {
		return ValidationError{Operation: op, Field: field, Reason: "is required"}
	}
	if strings.TrimSpace(value) == "" {
		return ValidationError{Operation: op, Field: field, Reason: "must not be blank"}
	}
	return nil
}
