package testutils

import (
	"context"
	"errors"
	"sync"

	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/eventstream"
)

// ErrPublishFailed is returned by the recording publisher when FailPublish is set.
var ErrPublishFailed = errors.New("publish failed")

// RecordingPublisher is an eventstream.Publisher that keeps every event it is
// given.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.RecordEvent
	closed bool

	// FailPublish causes Publish to return an error without recording.
	FailPublish bool
}

// NewRecordingPublisher creates a new recording publisher.
func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{events: make([]*eventstream.RecordEvent, 0)}
}

func (p *RecordingPublisher) Publish(_ context.Context, event *eventstream.RecordEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailPublish {
		return ErrPublishFailed
	}
	p.events = append(p.events, event)
	return nil
}

func (p *RecordingPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Events returns a copy of the recorded events.
func (p *RecordingPublisher) Events() []*eventstream.RecordEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*eventstream.RecordEvent, len(p.events))
	copy(out, p.events)
	return out
}

// Closed reports whether Close has been called.
func (p *RecordingPublisher) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
