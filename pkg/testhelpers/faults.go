package testhelpers

import (
	"fmt"
	"sync"

	"github.com/ekaya-inc/agenda-sync/pkg/apperrors"
)

// Faults records calls per operation and returns queued errors in order.
// The in-memory stores embed it so tests can script outages.
type Faults struct {
	mu     sync.Mutex
	queued map[string][]error
	calls  map[string]int
}

// FailNext queues errs for the next calls of op, one per call.
func (f *Faults) FailNext(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queued == nil {
		f.queued = make(map[string][]error)
	}
	f.queued[op] = append(f.queued[op], errs...)
}

// Calls returns how many times op was invoked.
func (f *Faults) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *Faults) hit(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[op]++
	q := f.queued[op]
	if len(q) == 0 {
		return nil
	}
	f.queued[op] = q[1:]
	return q[0]
}

// TransientError builds a retryable store failure.
func TransientError(store, op string) error {
	return &apperrors.StoreError{Store: store, Op: op, Retryable: true, Err: fmt.Errorf("%s unavailable", store)}
}

// PermanentError builds a non-retryable store failure.
func PermanentError(store, op string) error {
	return &apperrors.StoreError{Store: store, Op: op, Err: fmt.Errorf("%s rejected the write", store)}
}

func conflictError(store, op, what string) error {
	return &apperrors.StoreError{Store: store, Op: op, Err: fmt.Errorf("%w: %s", apperrors.ErrConflict, what)}
}

func notFoundError(store, op, what string) error {
	return &apperrors.StoreError{Store: store, Op: op, Err: fmt.Errorf("%s: %w", what, apperrors.ErrNotFound)}
}
