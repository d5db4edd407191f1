package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/eventstream"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/eventstream/broadcast"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/gateway"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/logger"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/query"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/sse"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/storage/inmemory"
)

var _ = Describe("GET /api/events", func() {
	var (
		server *Server
		hub    *broadcast.Hub
	)

	BeforeEach(func() {
		driver := inmemory.NewDriver()
		hub = broadcast.NewHub(16)

		gw, err := gateway.New(&gateway.Config{Store: driver, Events: hubSink{hub}, Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())

		server, err = NewServer(Config{Events: hub}, gw, query.New(driver), logger.Nop())
		Expect(err).NotTo(HaveOccurred())
	})

	// stream opens the event stream, runs fn once it is subscribed, then
	// closes the hub and returns the parsed events.
	stream := func(target string, fn func()) []*sse.Event {
		type result struct {
			body string
			err  error
		}
		done := make(chan result, 1)
		go func() {
			defer GinkgoRecover()
			resp, err := server.app.Test(httptest.NewRequest(http.MethodGet, target, nil), -1)
			if err != nil {
				done <- result{err: err}
				return
			}
			defer resp.Body.Close()
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/event-stream"))
			b, err := io.ReadAll(resp.Body)
			done <- result{body: string(b), err: err}
		}()

		Eventually(hub.Len).Should(Equal(1))
		fn()
		Expect(hub.Close()).To(Succeed())

		var res result
		Eventually(done, 5*time.Second).Should(Receive(&res))
		Expect(res.err).NotTo(HaveOccurred())

		var events []*sse.Event
		r := sse.NewReader(strings.NewReader(res.body))
		for {
			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			if ev == nil {
				return events
			}
			events = append(events, ev)
		}
	}

	It("streams events for committed writes", func() {
		events := stream("/api/events", func() {
			_, err := server.gateway.ShareInformation(context.Background(), gateway.ShareInformationRequest{
				Information: "Has $15,000 in credit card debt",
				Category:    "debt_info",
				CallerID:    "john_555-1234",
			})
			Expect(err).NotTo(HaveOccurred())
		})

		Expect(events).To(HaveLen(1))
		Expect(events[0].Type).To(Equal(eventstream.EventTypeInformationShared))

		var payload eventstream.RecordEvent
		Expect(json.Unmarshal([]byte(events[0].Data), &payload)).To(Succeed())
		Expect(payload.EventID).To(Equal(events[0].ID))
		Expect(payload.SessionCreated).To(BeTrue())
		Expect(payload.Information.Category).To(Equal("debt_info"))
	})

	It("filters by session", func() {
		events := stream("/api/events?session_id=s2", func() {
			for _, id := range []string{"s1", "s2", "s1"} {
				Expect(hub.Publish(context.Background(), &eventstream.RecordEvent{
					EventID:   "e-" + id,
					EventType: eventstream.EventTypeCallEnded,
					SessionID: id,
				})).To(Succeed())
			}
		})

		Expect(events).To(HaveLen(1))
		Expect(events[0].ID).To(Equal("e-s2"))
	})

	It("is not registered without a hub", func() {
		driver := inmemory.NewDriver()
		gw, err := gateway.New(&gateway.Config{Store: driver})
		Expect(err).NotTo(HaveOccurred())
		plain, err := NewServer(Config{}, gw, query.New(driver), nil)
		Expect(err).NotTo(HaveOccurred())

		resp, err := plain.app.Test(httptest.NewRequest(http.MethodGet, "/api/events", nil))
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
	})
})

// hubSink feeds gateway events straight into a hub, standing in for the
// worker pool.
type hubSink struct{ hub *broadcast.Hub }

func (s hubSink) Enqueue(event *eventstream.RecordEvent) error {
	return s.hub.Publish(context.Background(), event)
}
