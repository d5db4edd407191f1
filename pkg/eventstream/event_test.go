package eventstream_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/eventstream"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/record"
)

var _ = Describe("Event", func() {
	It("marshals an information event with expected top-level keys", func() {
		now := time.Unix(1735689600, 0).UTC()
		event := eventstream.RecordEvent{
			SchemaVersion:  eventstream.SchemaVersionV1,
			EventType:      eventstream.EventTypeInformationShared,
			EventID:        "evt_123",
			EmittedAt:      now,
			SessionID:      "s1",
			CallerID:       "john_555-1234",
			SessionCreated: true,
			Information: &record.InformationRecord{
				ID:          "i1",
				SessionID:   "s1",
				CallerID:    "john_555-1234",
				Information: "$25,000 credit card debt",
				Category:    "debt_info",
				Timestamp:   now,
				Status:      record.InformationStatusReceived,
			},
		}

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		Expect(got).To(HaveKey("schema_version"))
		Expect(got).To(HaveKey("event_type"))
		Expect(got).To(HaveKey("event_id"))
		Expect(got).To(HaveKey("emitted_at"))
		Expect(got).To(HaveKeyWithValue("session_id", "s1"))
		Expect(got).To(HaveKeyWithValue("session_created", true))
		Expect(got).To(HaveKey("information"))
		Expect(got).NotTo(HaveKey("call_log"))
	})

	It("omits the information payload on call events", func() {
		event := eventstream.RecordEvent{
			EventType: eventstream.EventTypeCallEnded,
			CallLog:   &record.CallLog{ID: "c1", SessionID: "s1", Duration: 420},
		}

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())
		Expect(got).To(HaveKey("call_log"))
		Expect(got).NotTo(HaveKey("information"))
		Expect(got).NotTo(HaveKey("session_created"))
	})

	It("defines stable event constants", func() {
		Expect(eventstream.SchemaVersionV1).To(BeNumerically(">", 0))
		Expect(eventstream.EventTypeInformationShared).To(Equal("callfacts.information.shared"))
		Expect(eventstream.EventTypeCallEnded).To(Equal("callfacts.call.ended"))
	})

	It("provides ErrNilEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilEvent).To(MatchError("nil record event"))
	})
})
