package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestProcess_ResultsInSubmissionOrder(t *testing.T) {
	pool := New(Config{MaxConcurrent: 2}, zap.NewNop())

	items := []Item[string]{
		{ID: "a", Execute: func(ctx context.Context) (string, error) {
			time.Sleep(20 * time.Millisecond)
			return "first", nil
		}},
		{ID: "b", Execute: func(ctx context.Context) (string, error) { return "second", nil }},
		{ID: "c", Execute: func(ctx context.Context) (string, error) { return "third", nil }},
	}

	results := Process(context.Background(), pool, items, nil)

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	want := []string{"first", "second", "third"}
	for i, r := range results {
		if r.Err != nil {
			t.Errorf("item %s failed: %v", r.ID, r.Err)
		}
		if r.Result != want[i] || r.Index != i {
			t.Errorf("result %d = %q (index %d), want %q", i, r.Result, r.Index, want[i])
		}
	}
}

func TestProcess_WithErrors(t *testing.T) {
	pool := New(Config{MaxConcurrent: 2}, zap.NewNop())

	expectedErr := errors.New("item failed")
	items := []Item[int]{
		{ID: "ok1", Execute: func(ctx context.Context) (int, error) { return 1, nil }},
		{ID: "bad", Execute: func(ctx context.Context) (int, error) { return 0, expectedErr }},
		{ID: "ok2", Execute: func(ctx context.Context) (int, error) { return 2, nil }},
	}

	results := Process(context.Background(), pool, items, nil)

	if results[0].Err != nil || results[2].Err != nil {
		t.Errorf("unexpected errors: %v, %v", results[0].Err, results[2].Err)
	}
	if !errors.Is(results[1].Err, expectedErr) {
		t.Errorf("expected item failure, got %v", results[1].Err)
	}
}

func TestProcess_EmptyItems(t *testing.T) {
	pool := New(Config{MaxConcurrent: 2}, zap.NewNop())

	if results := Process[int](context.Background(), pool, nil, nil); results != nil {
		t.Errorf("expected nil results, got %v", results)
	}
}

func TestProcess_ContextCancellation(t *testing.T) {
	pool := New(Config{MaxConcurrent: 1}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	items := []Item[string]{
		{ID: "first", Execute: func(ctx context.Context) (string, error) {
			cancel()
			<-ctx.Done()
			return "", ctx.Err()
		}},
		{ID: "second", Execute: func(ctx context.Context) (string, error) {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			return "ran", nil
		}},
	}

	results := Process(ctx, pool, items, nil)

	if !errors.Is(results[0].Err, context.Canceled) {
		t.Errorf("first item: expected context.Canceled, got %v", results[0].Err)
	}
	if results[1].Err == nil && results[1].Result != "ran" {
		t.Errorf("second item: unexpected result %q", results[1].Result)
	}
}

func TestProcess_ConcurrencyLimit(t *testing.T) {
	maxConcurrent := 3
	pool := New(Config{MaxConcurrent: maxConcurrent}, zap.NewNop())

	var current atomic.Int32
	var maxObserved atomic.Int32

	items := make([]Item[struct{}], 10)
	for i := range items {
		items[i] = Item[struct{}]{
			ID: fmt.Sprintf("item%d", i),
			Execute: func(ctx context.Context) (struct{}, error) {
				n := current.Add(1)
				defer current.Add(-1)
				for {
					m := maxObserved.Load()
					if n <= m || maxObserved.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(30 * time.Millisecond)
				return struct{}{}, nil
			},
		}
	}

	Process(context.Background(), pool, items, nil)

	if got := maxObserved.Load(); got > int32(maxConcurrent) {
		t.Errorf("concurrency limit violated: observed %d, limit %d", got, maxConcurrent)
	}
	if got := maxObserved.Load(); got < 2 {
		t.Errorf("expected some concurrency, max observed %d", got)
	}
}

func TestProcess_ProgressCallback(t *testing.T) {
	pool := New(Config{MaxConcurrent: 2}, zap.NewNop())

	items := []Item[int]{
		{ID: "1", Execute: func(ctx context.Context) (int, error) { return 1, nil }},
		{ID: "2", Execute: func(ctx context.Context) (int, error) { return 2, nil }},
		{ID: "3", Execute: func(ctx context.Context) (int, error) { return 3, nil }},
	}

	var mu sync.Mutex
	var updates []int
	Process(context.Background(), pool, items, func(completed, total int) {
		mu.Lock()
		defer mu.Unlock()
		updates = append(updates, completed)
		if total != 3 {
			t.Errorf("expected total=3, got %d", total)
		}
	})

	mu.Lock()
	defer mu.Unlock()
	if len(updates) != 3 || updates[2] != 3 {
		t.Errorf("unexpected progress updates: %v", updates)
	}
}

func TestNew_DefaultsInvalidSize(t *testing.T) {
	if got := New(Config{MaxConcurrent: 0}, zap.NewNop()).Size(); got != 4 {
		t.Errorf("expected default size 4, got %d", got)
	}
	if got := New(Config{MaxConcurrent: -3}, zap.NewNop()).Size(); got != 4 {
		t.Errorf("expected default size 4, got %d", got)
	}
}
