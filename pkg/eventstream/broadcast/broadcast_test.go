package broadcast_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/eventstream"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/eventstream/broadcast"
)

var _ = Describe("Hub", func() {
	var (
		ctx context.Context
		hub *broadcast.Hub
	)

	event := func(id string) *eventstream.RecordEvent {
		return &eventstream.RecordEvent{EventID: id, EventType: eventstream.EventTypeInformationShared}
	}

	BeforeEach(func() {
		ctx = context.Background()
		hub = broadcast.NewHub(2)
	})

	It("delivers each event to every subscriber", func() {
		a := hub.Subscribe()
		b := hub.Subscribe()
		Expect(hub.Len()).To(Equal(2))

		Expect(hub.Publish(ctx, event("e1"))).To(Succeed())
		Expect(a.C).To(Receive(HaveField("EventID", "e1")))
		Expect(b.C).To(Receive(HaveField("EventID", "e1")))
	})

	It("drops events for a subscriber that falls behind", func() {
		s := hub.Subscribe()
		for _, id := range []string{"e1", "e2", "e3"} {
			Expect(hub.Publish(ctx, event(id))).To(Succeed())
		}

		Expect(s.Dropped()).To(Equal(1))
		Expect(s.C).To(Receive(HaveField("EventID", "e1")))
		Expect(s.C).To(Receive(HaveField("EventID", "e2")))
		Expect(s.C).NotTo(Receive())
	})

	It("rejects a nil event", func() {
		Expect(hub.Publish(ctx, nil)).To(MatchError(eventstream.ErrNilEvent))
	})

	It("stops delivering after a subscription closes", func() {
		s := hub.Subscribe()
		s.Close()
		s.Close()
		Expect(hub.Len()).To(Equal(0))
		Expect(s.C).To(BeClosed())

		Expect(hub.Publish(ctx, event("e1"))).To(Succeed())
	})

	It("closes every subscription on Close", func() {
		s := hub.Subscribe()
		Expect(hub.Close()).To(Succeed())
		Expect(hub.Close()).To(Succeed())
		Expect(s.C).To(BeClosed())
		s.Close()

		late := hub.Subscribe()
		Expect(late.C).To(BeClosed())
	})
})
