package testutils

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/storage"
)

// ErrInjected is the cause carried by every StorageError the flaky driver
// injects.
var ErrInjected = errors.New("injected storage failure")

// FlakyDriver wraps a storage.Driver and injects write failures on demand.
// Reads pass straight through to the wrapped driver.
type FlakyDriver struct {
	storage.Driver

	mu sync.Mutex

	// FailApplies is the number of upcoming Apply calls that fail with a
	// StorageError before reaching the wrapped driver.
	FailApplies int

	// LoseAcks is the number of upcoming Apply calls that commit to the
	// wrapped driver and then report a StorageError anyway.
	LoseAcks int

	// ApplyErr, when set, is returned by every Apply without committing.
	ApplyErr error

	// ApplyDelay is slept before each Apply reaches the wrapped driver.
	ApplyDelay time.Duration

	attempts int
}

// NewFlakyDriver wraps d.
func NewFlakyDriver(d storage.Driver) *FlakyDriver {
	return &FlakyDriver{Driver: d}
}

func (f *FlakyDriver) Apply(ctx context.Context, m *storage.Mutation) error {
	f.mu.Lock()
	f.attempts++
	applyErr := f.ApplyErr
	failBefore := f.FailApplies > 0
	if failBefore {
		f.FailApplies--
	}
	loseAck := !failBefore && f.LoseAcks > 0
	if loseAck {
		f.LoseAcks--
	}
	delay := f.ApplyDelay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if applyErr != nil {
		return applyErr
	}
	if failBefore {
		return storage.StorageError{Op: "apply", Err: ErrInjected}
	}

	if err := f.Driver.Apply(ctx, m); err != nil {
		return err
	}
	if loseAck {
		return storage.StorageError{Op: "apply", Err: ErrInjected}
	}
	return nil
}

// Attempts returns how many times Apply has been called.
func (f *FlakyDriver) Attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}
