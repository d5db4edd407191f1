package eventstream

import (
	"context"
	"errors"
)

type multiPublisher struct {
	publishers []Publisher
}

// Multi returns a Publisher that publishes every event to each of publishers
// in order. Every publisher is attempted; their errors are joined.
func Multi(publishers ...Publisher) Publisher {
	return &multiPublisher{publishers: publishers}
}

func (m *multiPublisher) Publish(ctx context.Context, event *RecordEvent) error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *multiPublisher) Close() error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
