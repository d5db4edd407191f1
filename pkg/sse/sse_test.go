package sse_test

import (
	"bytes"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/sse"
)

var _ = Describe("Reader", func() {
	readAll := func(src string) []*sse.Event {
		r := sse.NewReader(strings.NewReader(src))
		var events []*sse.Event
		for {
			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			if ev == nil {
				return events
			}
			events = append(events, ev)
		}
	}

	It("parses a record event", func() {
		events := readAll("id: e1\nevent: callfacts.information.shared\ndata: {\"session_id\":\"s1\"}\n\n")
		Expect(events).To(HaveLen(1))
		Expect(events[0].ID).To(Equal("e1"))
		Expect(events[0].Type).To(Equal("callfacts.information.shared"))
		Expect(events[0].Data).To(Equal(`{"session_id":"s1"}`))
	})

	It("parses consecutive events", func() {
		events := readAll("event: a\ndata: 1\n\nevent: b\ndata: 2\n\n")
		Expect(events).To(HaveLen(2))
		Expect(events[1].Type).To(Equal("b"))
		Expect(events[1].Data).To(Equal("2"))
	})

	It("joins data lines with newlines", func() {
		events := readAll("data: first\ndata:\ndata: third\n\n")
		Expect(events[0].Data).To(Equal("first\n\nthird"))
	})

	It("skips comments and keep-alives", func() {
		events := readAll(": keep-alive\n\n\n: another\ndata: x\n\n")
		Expect(events).To(HaveLen(1))
		Expect(events[0].Data).To(Equal("x"))
	})

	It("accepts a field without a space after the colon", func() {
		events := readAll("data:tight\n\n")
		Expect(events[0].Data).To(Equal("tight"))
	})

	It("ignores retry and unknown fields", func() {
		events := readAll("retry: 1000\nfoo: bar\ndata: x\n\n")
		Expect(events).To(HaveLen(1))
		Expect(events[0].Type).To(BeEmpty())
	})

	It("returns an event cut off by the end of the stream", func() {
		events := readAll("event: callfacts.call.ended\ndata: {}")
		Expect(events).To(HaveLen(1))
		Expect(events[0].Type).To(Equal("callfacts.call.ended"))
	})

	It("returns nothing for an empty stream", func() {
		Expect(readAll("")).To(BeEmpty())
		Expect(readAll("\n\n\n")).To(BeEmpty())
	})

	It("tees the raw stream verbatim", func() {
		src := ": hello\n\nid: 1\ndata: x\n\n"
		var dst bytes.Buffer
		r := sse.NewTeeReader(strings.NewReader(src), &dst)
		for {
			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			if ev == nil {
				break
			}
		}
		Expect(dst.String()).To(Equal(src))
	})
})

var _ = Describe("Write", func() {
	It("round-trips through the reader", func() {
		in := sse.Event{ID: "e7", Type: "callfacts.call.ended", Data: "line one\nline two"}

		var buf bytes.Buffer
		Expect(sse.Write(&buf, in)).To(Succeed())
		Expect(sse.Comment(&buf, "ping")).To(Succeed())
		Expect(buf.String()).To(HavePrefix("id: e7\nevent: callfacts.call.ended\ndata: line one\ndata: line two\n\n"))

		ev, err := sse.NewReader(&buf).Next()
		Expect(err).NotTo(HaveOccurred())
		Expect(*ev).To(Equal(in))
	})

	It("omits empty id and type", func() {
		var buf bytes.Buffer
		Expect(sse.Write(&buf, sse.Event{Data: "x"})).To(Succeed())
		Expect(buf.String()).To(Equal("data: x\n\n"))
	})
})
