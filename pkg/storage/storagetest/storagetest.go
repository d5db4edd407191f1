// Package storagetest provides a shared ginkgo conformance suite that every
// storage.Driver implementation runs from its own test package.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/record"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/storage"
)

// baseTime is the fixed clock used by the suite. Microsecond precision keeps
// round trips through every backend exact.
var baseTime = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

// NewSession returns an active session created at baseTime plus offset.
func NewSession(id, callerID string, offset time.Duration) *record.Session {
	t := baseTime.Add(offset)
	return &record.Session{
		SessionID:    id,
		CallerID:     callerID,
		CreatedAt:    t,
		LastActivity: t,
		Status:       record.StatusActive,
	}
}

// NewInformation returns a received information record stamped at baseTime
// plus offset.
func NewInformation(id, sessionID, callerID, category, text string, offset time.Duration) *record.InformationRecord {
	return &record.InformationRecord{
		ID:          id,
		SessionID:   sessionID,
		CallerID:    callerID,
		Information: text,
		Category:    category,
		Timestamp:   baseTime.Add(offset),
		Status:      record.InformationStatusReceived,
	}
}

// NewCallLog returns a call log stamped at baseTime plus offset.
func NewCallLog(id, sessionID, callerID, reason string, duration int64, shared int, offset time.Duration) *record.CallLog {
	return &record.CallLog{
		ID:                     id,
		SessionID:              sessionID,
		CallerID:               callerID,
		EndTime:                baseTime.Add(offset),
		Reason:                 reason,
		Duration:               duration,
		InformationSharedCount: shared,
	}
}

// DescribeDriver registers the conformance specs for a driver. newDriver is
// called before each spec and must return an empty store; the suite closes
// it afterwards. It returns true so callers can register at package level
// with var _ = DescribeDriver(...).
func DescribeDriver(name string, newDriver func() storage.Driver) bool {
	Describe(name+" conformance", func() {
		var (
			driver storage.Driver
			ctx    context.Context
		)

		BeforeEach(func() {
			ctx = context.Background()
			driver = newDriver()
		})

		AfterEach(func() {
			if driver != nil {
				Expect(driver.Close()).To(Succeed())
			}
		})

		Describe("sessions", func() {
			It("returns NotFoundError for an unknown session", func() {
				_, err := driver.GetSession(ctx, "missing")
				Expect(storage.IsNotFound(err)).To(BeTrue())
			})

			It("stores and retrieves a session", func() {
				s := NewSession("s1", "john_555-1234", 0)
				Expect(storage.PutSession(ctx, driver, s)).To(Succeed())

				got, err := driver.GetSession(ctx, "s1")
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(Equal(s))
			})

			It("replaces a session on a second put", func() {
				s := NewSession("s1", "john_555-1234", 0)
				Expect(storage.PutSession(ctx, driver, s)).To(Succeed())

				touched := s.Clone()
				touched.LastActivity = baseTime.Add(time.Minute)
				Expect(storage.PutSession(ctx, driver, touched)).To(Succeed())

				got, err := driver.GetSession(ctx, "s1")
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(Equal(touched))

				all, err := driver.ListSessions(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(all).To(HaveLen(1))
			})

			It("rejects ending a session without a call log", func() {
				s := NewSession("s1", "john_555-1234", 0)
				Expect(storage.PutSession(ctx, driver, s)).To(Succeed())

				ended := s.Clone()
				endedAt := baseTime.Add(time.Minute)
				ended.Status = record.StatusEnded
				ended.EndedAt = &endedAt
				ended.EndReason = "customer_declined"

				err := storage.PutSession(ctx, driver, ended)
				Expect(err).To(MatchError(storage.LifecycleError{SessionID: "s1", Ended: true}))
				Expect(storage.IsInvariantViolation(err)).To(BeTrue())

				got, err := driver.GetSession(ctx, "s1")
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Ended()).To(BeFalse())
			})
		})

		Describe("information records", func() {
			BeforeEach(func() {
				Expect(storage.PutSession(ctx, driver, NewSession("s1", "john", 0))).To(Succeed())
			})

			It("advances the session counter with the append", func() {
				info := NewInformation("i1", "s1", "john", "debt_info", "$25,000 credit card debt", time.Second)
				Expect(storage.AppendInformation(ctx, driver, info)).To(Succeed())

				got, err := driver.GetSession(ctx, "s1")
				Expect(err).NotTo(HaveOccurred())
				Expect(got.InformationCount).To(Equal(1))
				Expect(got.LastActivity).To(Equal(info.Timestamp))
			})

			It("commits a new session and its first record together", func() {
				s := NewSession("s2", "jane", 0)
				s.InformationCount = 1
				info := NewInformation("i1", "s2", "jane", "conversation_flow", "Customer started call", 0)
				Expect(driver.Apply(ctx, &storage.Mutation{Session: s, Information: info})).To(Succeed())

				got, err := driver.GetSession(ctx, "s2")
				Expect(err).NotTo(HaveOccurred())
				Expect(got.InformationCount).To(Equal(1))
			})

			It("rejects a record for a missing session", func() {
				info := NewInformation("i1", "nope", "john", "debt_info", "x", 0)
				err := storage.AppendInformation(ctx, driver, info)
				var dangling storage.DanglingReferenceError
				Expect(err).To(BeAssignableToTypeOf(dangling))
				Expect(storage.IsInvariantViolation(err)).To(BeTrue())

				records, err := driver.ListInformation(ctx, storage.InformationFilter{})
				Expect(err).NotTo(HaveOccurred())
				Expect(records).To(BeEmpty())
			})

			It("rejects a duplicate id and leaves the store unchanged", func() {
				Expect(storage.AppendInformation(ctx, driver, NewInformation("i1", "s1", "john", "a", "first", 0))).To(Succeed())

				err := storage.AppendInformation(ctx, driver, NewInformation("i1", "s1", "john", "b", "second", time.Second))
				Expect(err).To(MatchError(storage.DuplicateIDError{ID: "i1"}))

				got, err := driver.GetSession(ctx, "s1")
				Expect(err).NotTo(HaveOccurred())
				Expect(got.InformationCount).To(Equal(1))

				records, err := driver.ListInformation(ctx, storage.InformationFilter{})
				Expect(err).NotTo(HaveOccurred())
				Expect(records).To(HaveLen(1))
				Expect(records[0].Information).To(Equal("first"))
			})

			It("rolls back the record when the counter disagrees", func() {
				stale, err := driver.GetSession(ctx, "s1")
				Expect(err).NotTo(HaveOccurred())

				err = driver.Apply(ctx, &storage.Mutation{
					Session:     stale,
					Information: NewInformation("i1", "s1", "john", "a", "x", 0),
				})
				Expect(err).To(MatchError(storage.CounterMismatchError{SessionID: "s1", Counter: 0, Records: 1}))

				records, err := driver.ListInformation(ctx, storage.InformationFilter{})
				Expect(err).NotTo(HaveOccurred())
				Expect(records).To(BeEmpty())
			})

			It("rejects a counter change without records", func() {
				s, err := driver.GetSession(ctx, "s1")
				Expect(err).NotTo(HaveOccurred())
				s.InformationCount = 5

				err = storage.PutSession(ctx, driver, s)
				Expect(storage.IsInvariantViolation(err)).To(BeTrue())
			})

			It("filters records and keeps insertion order", func() {
				Expect(storage.PutSession(ctx, driver, NewSession("s2", "jane", 0))).To(Succeed())
				Expect(storage.AppendInformation(ctx, driver, NewInformation("i1", "s1", "john", "debt_info", "one", 3*time.Second))).To(Succeed())
				Expect(storage.AppendInformation(ctx, driver, NewInformation("i2", "s2", "jane", "debt_info", "two", 2*time.Second))).To(Succeed())
				Expect(storage.AppendInformation(ctx, driver, NewInformation("i3", "s1", "john", "contact", "three", time.Second))).To(Succeed())

				all, err := driver.ListInformation(ctx, storage.InformationFilter{})
				Expect(err).NotTo(HaveOccurred())
				Expect(ids(all)).To(Equal([]string{"i1", "i2", "i3"}))

				debt, err := driver.ListInformation(ctx, storage.InformationFilter{Category: "debt_info"})
				Expect(err).NotTo(HaveOccurred())
				Expect(ids(debt)).To(Equal([]string{"i1", "i2"}))

				johnDebt, err := driver.ListInformation(ctx, storage.InformationFilter{Category: "debt_info", CallerID: "john"})
				Expect(err).NotTo(HaveOccurred())
				Expect(ids(johnDebt)).To(Equal([]string{"i1"}))

				s1, err := driver.ListInformation(ctx, storage.InformationFilter{SessionID: "s1"})
				Expect(err).NotTo(HaveOccurred())
				Expect(ids(s1)).To(Equal([]string{"i1", "i3"}))

				none, err := driver.ListInformation(ctx, storage.InformationFilter{Category: "nothing"})
				Expect(err).NotTo(HaveOccurred())
				Expect(none).NotTo(BeNil())
				Expect(none).To(BeEmpty())
			})
		})

		Describe("call logs", func() {
			BeforeEach(func() {
				Expect(storage.PutSession(ctx, driver, NewSession("s1", "john", 0))).To(Succeed())
				Expect(storage.AppendInformation(ctx, driver, NewInformation("i1", "s1", "john", "a", "x", 0))).To(Succeed())
			})

			It("stores one call log per session and ends the session", func() {
				log := NewCallLog("c1", "s1", "john", "customer_qualified_transfer", 420, 1, time.Minute)
				Expect(storage.AppendCallLog(ctx, driver, log)).To(Succeed())

				logs, err := driver.ListCallLogs(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(logs).To(HaveLen(1))
				Expect(logs[0]).To(Equal(log))

				got, err := driver.GetSession(ctx, "s1")
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Ended()).To(BeTrue())
				Expect(*got.EndedAt).To(Equal(log.EndTime))
				Expect(got.EndReason).To(Equal("customer_qualified_transfer"))

				err = storage.AppendCallLog(ctx, driver, NewCallLog("c2", "s1", "john", "again", 1, 1, 2*time.Minute))
				Expect(err).To(MatchError(storage.SessionEndedError{SessionID: "s1"}))

				n, err := driver.CountCallLogs(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(n).To(Equal(1))
			})

			It("counts call logs across sessions", func() {
				n, err := driver.CountCallLogs(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(n).To(BeZero())

				Expect(storage.PutSession(ctx, driver, NewSession("s2", "jane", 0))).To(Succeed())
				Expect(storage.AppendCallLog(ctx, driver, NewCallLog("c1", "s1", "john", "r", 1, 1, time.Minute))).To(Succeed())
				Expect(storage.AppendCallLog(ctx, driver, NewCallLog("c2", "s2", "jane", "r", 1, 0, time.Minute))).To(Succeed())

				n, err = driver.CountCallLogs(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(n).To(Equal(2))
			})

			It("rejects a call log id already used by an information record", func() {
				err := storage.AppendCallLog(ctx, driver, NewCallLog("i1", "s1", "john", "r", 1, 1, 0))
				Expect(err).To(MatchError(storage.DuplicateIDError{ID: "i1"}))
			})

			It("rejects a call log that leaves the session active", func() {
				s, err := driver.GetSession(ctx, "s1")
				Expect(err).NotTo(HaveOccurred())

				log := NewCallLog("c1", "s1", "john", "customer_declined", 30, 1, time.Minute)
				err = driver.Apply(ctx, &storage.Mutation{Session: s, CallLog: log})
				Expect(err).To(MatchError(storage.LifecycleError{SessionID: "s1", Ended: false}))

				n, err := driver.CountCallLogs(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(n).To(BeZero())
			})

			It("ends the session and writes the log together", func() {
				s, err := driver.GetSession(ctx, "s1")
				Expect(err).NotTo(HaveOccurred())
				endedAt := baseTime.Add(time.Minute)
				s.Status = record.StatusEnded
				s.EndedAt = &endedAt
				s.EndReason = "customer_declined"

				log := NewCallLog("c1", "s1", "john", "customer_declined", 30, s.InformationCount, time.Minute)
				Expect(driver.Apply(ctx, &storage.Mutation{Session: s, CallLog: log})).To(Succeed())

				got, err := driver.GetSession(ctx, "s1")
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Ended()).To(BeTrue())
				Expect(got.EndReason).To(Equal("customer_declined"))
			})
		})

		Describe("ended sessions", func() {
			var stale *record.Session

			BeforeEach(func() {
				Expect(storage.PutSession(ctx, driver, NewSession("s1", "john", 0))).To(Succeed())
				Expect(storage.AppendInformation(ctx, driver, NewInformation("i1", "s1", "john", "a", "x", 0))).To(Succeed())

				var err error
				stale, err = driver.GetSession(ctx, "s1")
				Expect(err).NotTo(HaveOccurred())

				Expect(storage.AppendCallLog(ctx, driver, NewCallLog("c1", "s1", "john", "customer_declined", 30, 1, time.Minute))).To(Succeed())
			})

			expectUnchanged := func() {
				got, err := driver.GetSession(ctx, "s1")
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Ended()).To(BeTrue())
				Expect(got.InformationCount).To(Equal(1))

				records, err := driver.ListInformation(ctx, storage.InformationFilter{SessionID: "s1"})
				Expect(err).NotTo(HaveOccurred())
				Expect(records).To(HaveLen(1))

				n, err := driver.CountCallLogs(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(n).To(Equal(1))
			}

			It("rejects a record written from a state read before the end", func() {
				next := stale.Clone()
				next.InformationCount++
				err := driver.Apply(ctx, &storage.Mutation{
					Session:     next,
					Information: NewInformation("i2", "s1", "john", "a", "late", 2*time.Minute),
				})
				Expect(err).To(MatchError(storage.SessionEndedError{SessionID: "s1"}))
				Expect(storage.IsSessionEnded(err)).To(BeTrue())
				Expect(storage.IsInvariantViolation(err)).To(BeFalse())
				Expect(storage.IsRetryable(err)).To(BeFalse())
				expectUnchanged()
			})

			It("rejects a record appended after the end", func() {
				err := storage.AppendInformation(ctx, driver, NewInformation("i2", "s1", "john", "a", "late", 2*time.Minute))
				Expect(err).To(MatchError(storage.SessionEndedError{SessionID: "s1"}))
				expectUnchanged()
			})

			It("rejects reopening the session with a stale active state", func() {
				err := storage.PutSession(ctx, driver, stale)
				Expect(err).To(MatchError(storage.SessionEndedError{SessionID: "s1"}))
				expectUnchanged()
			})

			It("rejects a second end built from a state read before the first", func() {
				next := stale.Clone()
				endedAt := baseTime.Add(2 * time.Minute)
				next.Status = record.StatusEnded
				next.EndedAt = &endedAt
				next.EndReason = "again"
				err := driver.Apply(ctx, &storage.Mutation{
					Session: next,
					CallLog: NewCallLog("c2", "s1", "john", "again", 60, 1, 2*time.Minute),
				})
				Expect(err).To(MatchError(storage.SessionEndedError{SessionID: "s1"}))
				expectUnchanged()
			})

			It("reports the record id when a committed end is replayed", func() {
				err := storage.AppendCallLog(ctx, driver, NewCallLog("c1", "s1", "john", "customer_declined", 30, 1, time.Minute))
				Expect(err).To(MatchError(storage.DuplicateIDError{ID: "c1"}))
				expectUnchanged()
			})

			It("accepts a put that keeps the session ended", func() {
				got, err := driver.GetSession(ctx, "s1")
				Expect(err).NotTo(HaveOccurred())
				got.LastActivity = baseTime.Add(2 * time.Minute)
				Expect(storage.PutSession(ctx, driver, got)).To(Succeed())
				expectUnchanged()
			})
		})

		Describe("snapshot and load", func() {
			seed := func() {
				Expect(storage.PutSession(ctx, driver, NewSession("s1", "john", 0))).To(Succeed())
				Expect(storage.PutSession(ctx, driver, NewSession("s2", "jane", time.Second))).To(Succeed())
				Expect(storage.AppendInformation(ctx, driver, NewInformation("i1", "s1", "john", "debt_info", "one", time.Second))).To(Succeed())
				Expect(storage.AppendInformation(ctx, driver, NewInformation("i2", "s2", "jane", "contact", "two", 2*time.Second))).To(Succeed())
				Expect(storage.AppendInformation(ctx, driver, NewInformation("i3", "s1", "john", "debt_info", "three", 3*time.Second))).To(Succeed())
				Expect(storage.AppendCallLog(ctx, driver, NewCallLog("c1", "s1", "john", "qualified", 420, 2, time.Minute))).To(Succeed())
			}

			It("produces a valid snapshot", func() {
				seed()
				snap, err := driver.Snapshot(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(snap.Validate()).To(Succeed())
				Expect(snap.Sessions).To(HaveLen(2))
				Expect(ids(snap.Information)).To(Equal([]string{"i1", "i2", "i3"}))
				Expect(snap.CallLogs).To(HaveLen(1))
			})

			It("round-trips through load", func() {
				seed()
				snap, err := driver.Snapshot(ctx)
				Expect(err).NotTo(HaveOccurred())

				fresh := newDriver()
				defer fresh.Close()
				Expect(fresh.Load(ctx, snap)).To(Succeed())

				reloaded, err := fresh.Snapshot(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(reloaded.Sessions).To(Equal(snap.Sessions))
				Expect(reloaded.Information).To(Equal(snap.Information))
				Expect(reloaded.CallLogs).To(Equal(snap.CallLogs))
			})

			It("replaces existing state on load", func() {
				seed()
				Expect(driver.Load(ctx, record.NewSnapshot())).To(Succeed())

				sessions, err := driver.ListSessions(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(sessions).To(BeEmpty())
			})

			It("rejects a corrupt snapshot and keeps the current state", func() {
				seed()
				bad, err := driver.Snapshot(ctx)
				Expect(err).NotTo(HaveOccurred())
				bad.Sessions[0].InformationCount = 99

				err = driver.Load(ctx, bad)
				var corrupt storage.CorruptStoreError
				Expect(err).To(BeAssignableToTypeOf(corrupt))

				sessions, err := driver.ListSessions(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(sessions).To(HaveLen(2))
			})
		})

		Describe("concurrent writers", func() {
			It("keeps every counter consistent", func() {
				const sessions = 4
				const perSession = 10

				for s := range sessions {
					id := fmt.Sprintf("s%d", s)
					Expect(storage.PutSession(ctx, driver, NewSession(id, "caller", 0))).To(Succeed())
				}

				var wg sync.WaitGroup
				errs := make(chan error, sessions*perSession)
				for s := range sessions {
					wg.Add(1)
					go func(s int) {
						defer GinkgoRecover()
						defer wg.Done()
						for i := range perSession {
							info := NewInformation(fmt.Sprintf("s%d-i%d", s, i), fmt.Sprintf("s%d", s), "caller", "c", "x", time.Duration(i)*time.Millisecond)
							errs <- storage.AppendInformation(ctx, driver, info)
						}
					}(s)
				}
				wg.Wait()
				close(errs)
				for err := range errs {
					Expect(err).NotTo(HaveOccurred())
				}

				snap, err := driver.Snapshot(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(snap.Validate()).To(Succeed())
				Expect(snap.Information).To(HaveLen(sessions * perSession))
			})
		})
	})
	return true
}

func ids(records []*record.InformationRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}
