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

	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/gateway"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/logger"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/query"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/record"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/storage"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/storage/inmemory"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/storage/storagetest"
)

var _ = Describe("Server", func() {
	var (
		server *Server
		driver *inmemory.Driver
	)

	do := func(method, target, body string) (int, []byte) {
		var r io.Reader
		if body != "" {
			r = strings.NewReader(body)
		}
		req := httptest.NewRequest(method, target, r)
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := server.app.Test(req, -1)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		b, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return resp.StatusCode, b
	}

	seed := func() {
		ctx := context.Background()
		s1 := storagetest.NewSession("s1", "john_555-1234", 0)
		s1.InformationCount = 1
		Expect(driver.Apply(ctx, &storage.Mutation{
			Session:     s1,
			Information: storagetest.NewInformation("i1", "s1", "john_555-1234", "debt_info", "Has $15,000 in credit card debt", 0),
		})).To(Succeed())

		s1 = s1.Clone()
		s1.InformationCount = 2
		s1.LastActivity = s1.LastActivity.Add(time.Minute)
		Expect(driver.Apply(ctx, &storage.Mutation{
			Session:     s1,
			Information: storagetest.NewInformation("i2", "s1", "john_555-1234", "contact_info", "Phone number is 555-1234", time.Minute),
		})).To(Succeed())

		s2 := storagetest.NewSession("s2", "jane_555-9876", 2*time.Minute)
		s2.InformationCount = 1
		Expect(driver.Apply(ctx, &storage.Mutation{
			Session:     s2,
			Information: storagetest.NewInformation("i3", "s2", "jane_555-9876", "debt_info", "Owes $4,000", 2*time.Minute),
		})).To(Succeed())
	}

	BeforeEach(func() {
		driver = inmemory.NewDriver()
		gw, err := gateway.New(&gateway.Config{Store: driver, Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())

		server, err = NewServer(Config{ListenAddr: ":0"}, gw, query.New(driver), logger.Nop())
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewServer", func() {
		It("requires a gateway and a query service", func() {
			_, err := NewServer(Config{}, nil, query.New(driver), nil)
			Expect(err).To(MatchError(ContainSubstring("gateway")))

			gw, err := gateway.New(&gateway.Config{Store: driver})
			Expect(err).NotTo(HaveOccurred())
			_, err = NewServer(Config{}, gw, nil, nil)
			Expect(err).To(MatchError(ContainSubstring("query")))
		})
	})

	Describe("GET /ping", func() {
		It("answers pong", func() {
			status, body := do(http.MethodGet, "/ping", "")
			Expect(status).To(Equal(http.StatusOK))
			Expect(string(body)).To(Equal(`"pong"`))
		})
	})

	Describe("GET /api/summary", func() {
		It("reports zero counts for an empty store", func() {
			status, body := do(http.MethodGet, "/api/summary", "")
			Expect(status).To(Equal(http.StatusOK))

			var sum query.Summary
			Expect(json.Unmarshal(body, &sum)).To(Succeed())
			Expect(sum.Sessions.Total).To(Equal(0))
			Expect(sum.TotalInformation).To(Equal(0))
			Expect(sum.LastUpdated).To(BeNil())
		})

		It("counts sessions, records and categories", func() {
			seed()
			status, body := do(http.MethodGet, "/api/summary", "")
			Expect(status).To(Equal(http.StatusOK))

			var sum query.Summary
			Expect(json.Unmarshal(body, &sum)).To(Succeed())
			Expect(sum.Sessions.Total).To(Equal(2))
			Expect(sum.Sessions.Active).To(Equal(2))
			Expect(sum.TotalInformation).To(Equal(3))
			Expect(sum.Categories).To(HaveKeyWithValue("debt_info", 2))
			Expect(sum.Categories).To(HaveKeyWithValue("contact_info", 1))
		})
	})

	Describe("GET /api/sessions", func() {
		BeforeEach(seed)

		It("lists sessions most recently active first", func() {
			status, body := do(http.MethodGet, "/api/sessions", "")
			Expect(status).To(Equal(http.StatusOK))

			var resp SessionsResponse
			Expect(json.Unmarshal(body, &resp)).To(Succeed())
			Expect(resp.Count).To(Equal(2))
			Expect(resp.Sessions[0].SessionID).To(Equal("s2"))
			Expect(resp.Sessions[1].SessionID).To(Equal("s1"))
		})

		It("honours a limit", func() {
			status, body := do(http.MethodGet, "/api/sessions?limit=1", "")
			Expect(status).To(Equal(http.StatusOK))

			var resp SessionsResponse
			Expect(json.Unmarshal(body, &resp)).To(Succeed())
			Expect(resp.Count).To(Equal(1))
		})
	})

	Describe("GET /api/sessions/:id", func() {
		BeforeEach(seed)

		It("returns the session with its records", func() {
			status, body := do(http.MethodGet, "/api/sessions/s1", "")
			Expect(status).To(Equal(http.StatusOK))

			var detail query.SessionDetail
			Expect(json.Unmarshal(body, &detail)).To(Succeed())
			Expect(detail.Session.SessionID).To(Equal("s1"))
			Expect(detail.Information).To(HaveLen(2))
			Expect(detail.Information[0].ID).To(Equal("i2"))
			Expect(detail.Call).To(BeNil())
		})

		It("returns 404 for an unknown session", func() {
			status, body := do(http.MethodGet, "/api/sessions/nonexistent", "")
			Expect(status).To(Equal(http.StatusNotFound))

			var resp ErrorResponse
			Expect(json.Unmarshal(body, &resp)).To(Succeed())
			Expect(resp.Error).To(Equal("session not found"))
		})
	})

	Describe("GET /api/information", func() {
		BeforeEach(seed)

		It("filters by category", func() {
			status, body := do(http.MethodGet, "/api/information?category=debt_info", "")
			Expect(status).To(Equal(http.StatusOK))

			var resp InformationResponse
			Expect(json.Unmarshal(body, &resp)).To(Succeed())
			Expect(resp.Count).To(Equal(2))
			Expect(resp.Information[0].ID).To(Equal("i3"))
			Expect(resp.Information[1].ID).To(Equal("i1"))
		})

		It("combines filters with AND", func() {
			status, body := do(http.MethodGet, "/api/information?category=debt_info&caller_id=john_555-1234", "")
			Expect(status).To(Equal(http.StatusOK))

			var resp InformationResponse
			Expect(json.Unmarshal(body, &resp)).To(Succeed())
			Expect(resp.Count).To(Equal(1))
			Expect(resp.Information[0].ID).To(Equal("i1"))
		})

		It("returns an empty list when nothing matches", func() {
			status, body := do(http.MethodGet, "/api/information?category=employment", "")
			Expect(status).To(Equal(http.StatusOK))
			Expect(string(body)).To(ContainSubstring(`"information":[]`))
		})

		DescribeTable("rejects bad limits",
			func(limit string) {
				status, body := do(http.MethodGet, "/api/information?limit="+limit, "")
				Expect(status).To(Equal(http.StatusBadRequest))
				Expect(string(body)).To(ContainSubstring(query.ErrInvalidLimit.Error()))
			},
			Entry("zero", "0"),
			Entry("negative", "-3"),
			Entry("not a number", "ten"),
		)
	})

	Describe("POST /api/function", func() {
		It("runs the full call lifecycle", func() {
			status, body := do(http.MethodPost, "/api/function",
				`{"function_name": "share_information", "parameters": {"information": "Has $15,000 in credit card debt", "category": "debt_info", "caller_id": "john_555-1234"}}`)
			Expect(status).To(Equal(http.StatusOK))

			var shared gateway.FunctionResult
			Expect(json.Unmarshal(body, &shared)).To(Succeed())
			Expect(shared.Success).To(BeTrue())
			Expect(shared.SessionID).NotTo(BeEmpty())

			status, body = do(http.MethodPost, "/api/function",
				`{"function_name": "end_call", "parameters": {"reason": "customer_qualified_transfer", "caller_id": "john_555-1234", "duration": 420}, "session_id": "`+shared.SessionID+`"}`)
			Expect(status).To(Equal(http.StatusOK))

			var ended gateway.FunctionResult
			Expect(json.Unmarshal(body, &ended)).To(Succeed())
			Expect(ended.Success).To(BeTrue())
			Expect(*ended.InformationSharedCount).To(Equal(1))

			status, body = do(http.MethodGet, "/api/calls", "")
			Expect(status).To(Equal(http.StatusOK))

			var calls CallsResponse
			Expect(json.Unmarshal(body, &calls)).To(Succeed())
			Expect(calls.Count).To(Equal(1))
			Expect(calls.Calls[0].Qualification).To(Equal(query.Qualified))
		})

		It("rejects a malformed body as a validation failure", func() {
			status, body := do(http.MethodPost, "/api/function", `{"function_name":`)
			Expect(status).To(Equal(http.StatusBadRequest))

			var res gateway.FunctionResult
			Expect(json.Unmarshal(body, &res)).To(Succeed())
			Expect(res.Success).To(BeFalse())
			Expect(res.ErrorKind).To(Equal(gateway.KindValidation))
		})

		It("rejects an unknown function", func() {
			status, body := do(http.MethodPost, "/api/function", `{"function_name": "transfer_call"}`)
			Expect(status).To(Equal(http.StatusBadRequest))
			Expect(string(body)).To(ContainSubstring(`"error_kind":"validation_error"`))
		})

		It("maps session state failures to 409", func() {
			status, body := do(http.MethodPost, "/api/function",
				`{"function_name": "end_call", "parameters": {"reason": "r", "caller_id": "x", "duration": 5}, "session_id": "nonexistent"}`)
			Expect(status).To(Equal(http.StatusConflict))
			Expect(string(body)).To(ContainSubstring(`"error_kind":"session_state_error"`))
			Expect(driver.Count()).To(Equal(0))
		})
	})

	Describe("GET /api/raw_data", func() {
		It("returns the whole store", func() {
			seed()
			status, body := do(http.MethodGet, "/api/raw_data", "")
			Expect(status).To(Equal(http.StatusOK))

			var snap record.Snapshot
			Expect(json.Unmarshal(body, &snap)).To(Succeed())
			Expect(snap.Sessions).To(HaveLen(2))
			Expect(snap.Information).To(HaveLen(3))
			Expect(snap.CallLogs).To(BeEmpty())
		})
	})
})
