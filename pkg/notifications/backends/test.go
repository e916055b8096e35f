package backends

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp-forge/rdocs/pkg/models"
)

// TestBackend is a mock backend for testing failure scenarios.
// It allows tests to inject various types of failures to verify that
// a failing backend never affects the write path or the other backends.
type TestBackend struct {
	name    string
	mu      sync.RWMutex
	config  TestBackendConfig
	changes []TestBackendChange
	handled int
}

// TestBackendConfig configures the test backend behavior
type TestBackendConfig struct {
	// Name overrides the backend name (default "test")
	Name string

	// FailureMode determines how the backend should fail
	FailureMode FailureMode

	// FailureCount is the number of changes that fail before the backend
	// recovers. Only used when FailureMode is FailureModeFirstNFail
	FailureCount int

	// Delay adds artificial latency before processing. The delay honours
	// context cancellation.
	Delay time.Duration

	// FailureMessage is the error message to return
	FailureMessage string

	// RecordChanges enables recording of all processed changes for verification
	RecordChanges bool
}

// FailureMode defines how the test backend should behave
type FailureMode string

const (
	// FailureModeNone processes all changes successfully
	FailureModeNone FailureMode = "none"

	// FailureModeAlways always fails with a retryable error
	FailureModeAlways FailureMode = "always"

	// FailureModePermanent always fails with a permanent (non-retryable) error
	FailureModePermanent FailureMode = "permanent"

	// FailureModeFirstNFail fails the first N changes, then succeeds
	FailureModeFirstNFail FailureMode = "first_n_fail"
)

// TestBackendChange records a processed change for verification
type TestBackendChange struct {
	Change    models.Change
	Timestamp time.Time
	Success   bool
	Error     error
}

// NewTestBackend creates a new test backend
func NewTestBackend(config TestBackendConfig) *TestBackend {
	name := config.Name
	if name == "" {
		name = "test"
	}
	if config.FailureMode == "" {
		config.FailureMode = FailureModeNone
	}
	return &TestBackend{
		name:   name,
		config: config,
	}
}

// Name returns the backend name
func (b *TestBackend) Name() string {
	return b.name
}

// Handle processes a change according to the configured failure mode
func (b *TestBackend) Handle(ctx context.Context, change *models.Change) error {
	b.mu.RLock()
	delay := b.config.Delay
	b.mu.RUnlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var err error
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = NewBackendError(b.name, "send", true, ctxErr)
	} else {
		err = b.failure()
	}
	b.handled++

	if b.config.RecordChanges {
		b.changes = append(b.changes, TestBackendChange{
			Change:    *change,
			Timestamp: time.Now(),
			Success:   err == nil,
			Error:     err,
		})
	}
	return err
}

// failure returns the error the current mode dictates. Callers must hold b.mu.
func (b *TestBackend) failure() error {
	switch b.config.FailureMode {
	case FailureModeNone:
		return nil

	case FailureModeAlways:
		errMsg := b.config.FailureMessage
		if errMsg == "" {
			errMsg = "simulated retryable failure"
		}
		return NewBackendError(b.name, "send", true, errors.New(errMsg))

	case FailureModePermanent:
		errMsg := b.config.FailureMessage
		if errMsg == "" {
			errMsg = "simulated permanent failure"
		}
		return NewBackendError(b.name, "send", false, errors.New(errMsg))

	case FailureModeFirstNFail:
		seen := b.handled
		if seen < b.config.FailureCount {
			return NewBackendError(b.name, "send", true,
				fmt.Errorf("simulated failure %d/%d", seen+1, b.config.FailureCount))
		}
		return nil
	}

	return NewBackendError(b.name, "send", false,
		fmt.Errorf("unknown failure mode: %s", b.config.FailureMode))
}

// GetChanges returns all recorded changes (for test verification)
func (b *TestBackend) GetChanges() []TestBackendChange {
	b.mu.RLock()
	defer b.mu.RUnlock()

	changes := make([]TestBackendChange, len(b.changes))
	copy(changes, b.changes)
	return changes
}

// GetChangeCount returns the number of processed changes
func (b *TestBackend) GetChangeCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.changes)
}

// GetSuccessCount returns the number of successfully processed changes
func (b *TestBackend) GetSuccessCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.countSuccess()
}

// GetFailureCount returns the number of failed changes
func (b *TestBackend) GetFailureCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.changes) - b.countSuccess()
}

func (b *TestBackend) countSuccess() int {
	count := 0
	for _, c := range b.changes {
		if c.Success {
			count++
		}
	}
	return count
}

// Reset clears all recorded changes
func (b *TestBackend) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.changes = nil
	b.handled = 0
}

// SetFailureMode dynamically changes the failure mode
func (b *TestBackend) SetFailureMode(mode FailureMode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.config.FailureMode = mode
}
