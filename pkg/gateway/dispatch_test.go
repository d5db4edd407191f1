package gateway_test

import (
	"context"
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/gateway"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/storage/inmemory"
)

var _ = Describe("Dispatch", func() {
	var (
		ctx   context.Context
		store *inmemory.Driver
		g     *gateway.Gateway
	)

	call := func(name, params, sessionID string) (*gateway.FunctionResult, error) {
		return g.Dispatch(ctx, gateway.FunctionCall{
			FunctionName: name,
			Parameters:   json.RawMessage(params),
			SessionID:    sessionID,
		})
	}

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewDriver()
		g = newGateway(store)
	})

	It("runs share_information and reports the new session", func() {
		res, err := call(gateway.OpShareInformation,
			`{"information": "Customer started call", "category": "conversation_flow", "caller_id": "john_555-1234"}`, "")
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Success).To(BeTrue())
		Expect(res.InfoID).NotTo(BeEmpty())
		Expect(res.SessionID).NotTo(BeEmpty())
		Expect(*res.Created).To(BeTrue())
		Expect(*res.InformationCount).To(Equal(1))
		Expect(res.Message).To(ContainSubstring("conversation_flow"))

		body, err := json.Marshal(res)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(ContainSubstring(`"created":true`))
		Expect(string(body)).NotTo(ContainSubstring(`"error"`))
		Expect(string(body)).NotTo(ContainSubstring(`"information"`))
	})

	It("uses the top-level session id when parameters omit one", func() {
		first, err := call(gateway.OpShareInformation,
			`{"information": "a", "category": "c", "caller_id": "john_555-1234"}`, "")
		Expect(err).NotTo(HaveOccurred())

		second, err := call(gateway.OpShareInformation,
			`{"information": "b", "category": "c", "caller_id": "john_555-1234"}`, first.SessionID)
		Expect(err).NotTo(HaveOccurred())
		Expect(second.SessionID).To(Equal(first.SessionID))
		Expect(*second.Created).To(BeFalse())
		Expect(*second.InformationCount).To(Equal(2))
	})

	It("runs end_call", func() {
		first, err := call(gateway.OpShareInformation,
			`{"information": "a", "category": "c", "caller_id": "john_555-1234"}`, "")
		Expect(err).NotTo(HaveOccurred())

		res, err := call(gateway.OpEndCall,
			`{"reason": "customer_qualified_transfer", "caller_id": "john_555-1234", "duration": 420}`, first.SessionID)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Success).To(BeTrue())
		Expect(res.CallLogID).NotTo(BeEmpty())
		Expect(*res.InformationSharedCount).To(Equal(1))
		Expect(*res.TotalCalls).To(Equal(1))
	})

	It("runs get_shared_information and always includes the information list", func() {
		res, err := call(gateway.OpGetSharedInformation, `{"category": "debt_info"}`, "")
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Success).To(BeTrue())
		Expect(*res.Count).To(Equal(0))

		body, err := json.Marshal(res)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(ContainSubstring(`"information":[]`))
		Expect(string(body)).To(ContainSubstring(`"count":0`))
	})

	It("treats missing parameters as an empty object", func() {
		res, err := call(gateway.OpGetSharedInformation, "", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Success).To(BeTrue())
	})

	DescribeTable("reports failures in the envelope",
		func(name, params, sessionID, kind, field string) {
			res, err := call(name, params, sessionID)
			Expect(err).To(HaveOccurred())
			Expect(res).NotTo(BeNil())
			Expect(res.Success).To(BeFalse())
			Expect(res.ErrorKind).To(Equal(kind))
			Expect(res.Error).To(Equal(err.Error()))
			Expect(res.SessionID).To(Equal(sessionID))

			if field != "" {
				var ve gateway.ValidationError
				Expect(err).To(BeAssignableToTypeOf(ve))
				Expect(err.(gateway.ValidationError).Field).To(Equal(field))
			}
			Expect(store.Count()).To(Equal(0))
		},
		Entry("unknown function", "transfer_call", `{}`, "", gateway.KindValidation, "function_name"),
		Entry("missing function", "", `{}`, "", gateway.KindValidation, "function_name"),
		Entry("missing information", gateway.OpShareInformation, `{"category": "c", "caller_id": "x"}`, "", gateway.KindValidation, "information"),
		Entry("wrong type", gateway.OpShareInformation, `{"information": 5, "category": "c", "caller_id": "x"}`, "", gateway.KindValidation, "information"),
		Entry("malformed json", gateway.OpShareInformation, `{"information":`, "", gateway.KindValidation, "parameters"),
		Entry("missing duration", gateway.OpEndCall, `{"reason": "r", "caller_id": "x"}`, "s1", gateway.KindValidation, "duration"),
		Entry("string duration", gateway.OpEndCall, `{"reason": "r", "caller_id": "x", "duration": "420"}`, "s1", gateway.KindValidation, "duration"),
		Entry("negative duration", gateway.OpEndCall, `{"reason": "r", "caller_id": "x", "duration": -5}`, "s1", gateway.KindValidation, "duration"),
		Entry("unknown session", gateway.OpEndCall, `{"reason": "r", "caller_id": "x", "duration": 5}`, "nonexistent", gateway.KindSessionState, ""),
		Entry("zero limit", gateway.OpGetSharedInformation, `{"limit": 0}`, "", gateway.KindValidation, "limit"),
	)
})
