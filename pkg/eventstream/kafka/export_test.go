package kafka

import "time"

type MessageWriter = messageWriter

// NewPublisherWithWriter exposes the writer seam to tests.
func NewPublisherWithWriter(w MessageWriter, timeout time.Duration) *Publisher {
	return newPublisher(w, timeout)
}
