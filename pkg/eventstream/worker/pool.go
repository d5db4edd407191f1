// Package worker provides an asynchronous worker pool that publishes record
// events through an eventstream.Publisher.
//
// The pool decouples publishing from the gateway's write path so a slow or
// unavailable broker never delays a live call. Each session's events go to
// one worker, so they are published in the order they were enqueued.
package worker

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/eventstream"
)

var (
	defaultNumWorkers     uint = 2
	defaultJobQueueSize   uint = 256
	defaultPublishTimeout      = 10 * time.Second
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("worker pool closed")

// Config is the configuration options for the worker pool.
type Config struct {
	// Publisher receives every enqueued event.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of each worker's buffered job channel
	// (defaults to 256).
	QueueSize uint

	// PublishTimeout bounds one publish call (defaults to 10s).
	PublishTimeout time.Duration

	Logger *slog.Logger
}

// Pool publishes events asynchronously via a worker pool.
type Pool struct {
	config *Config
	queues []chan *eventstream.RecordEvent
	wg     sync.WaitGroup
	logger *slog.Logger

	// mu guards closed so Enqueue never sends on a closed channel.
	mu     sync.RWMutex
	closed bool
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Publisher == nil {
		return nil, errors.New("worker pool requires a publisher")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.PublishTimeout == 0 {
		c.PublishTimeout = defaultPublishTimeout
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}

	wp := &Pool{
		config: c,
		queues: make([]chan *eventstream.RecordEvent, c.NumWorkers),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		wp.queues[i] = make(chan *eventstream.RecordEvent, c.QueueSize)
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits an event to its session's worker. It never blocks: when
// that worker's queue is full the event is dropped and logged.
func (p *Pool) Enqueue(event *eventstream.RecordEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	select {
	case p.shard(event.SessionID) <- event:
		p.logger.Debug("event queued",
			"event_type", event.EventType,
			"session_id", event.SessionID,
		)
		return nil
	default:
		p.logger.Error("event not queued, queue full, event dropped",
			"event_type", event.EventType,
			"event_id", event.EventID,
			"session_id", event.SessionID,
		)
		return fmt.Errorf("event queue full, dropped %s", event.EventID)
	}
}

// Close stops accepting events, waits for queued events to drain and then
// closes the publisher.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	for _, q := range p.queues {
		close(q)
	}
	p.mu.Unlock()

	p.wg.Wait()
	return p.config.Publisher.Close()
}

// shard picks the queue that owns sessionID.
func (p *Pool) shard(sessionID string) chan *eventstream.RecordEvent {
	h := fnv.New64a()
	_, _ = h.Write([]byte(sessionID))
	return p.queues[h.Sum64()%uint64(len(p.queues))]
}

// worker is the inner worker thread that continuously pulls events off its queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("event worker started", "worker_id", id)

	for event := range p.queues[id] {
		p.publish(event)
	}

	p.logger.Debug("event worker stopped", "worker_id", id)
}

func (p *Pool) publish(event *eventstream.RecordEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.PublishTimeout)
	defer cancel()

	if err := p.config.Publisher.Publish(ctx, event); err != nil {
		p.logger.Error("event publish failed",
			"event_type", event.EventType,
			"event_id", event.EventID,
			"session_id", event.SessionID,
			"error", err,
		)
		return
	}

	p.logger.Debug("event published",
		"event_type", event.EventType,
		"event_id", event.EventID,
	)
}
