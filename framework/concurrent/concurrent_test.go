package concurrent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestForEachWithLimit_RunsAll(t *testing.T) {
	var count atomic.Int32
	err := ForEachWithLimit(context.Background(), []int{1, 2, 3, 4, 5}, 2, func(ctx context.Context, n int) error {
		count.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if count.Load() != 5 {
		t.Fatalf("expected 5 executions, got %d", count.Load())
	}
}

func TestForEachWithLimit_RespectsLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	err := ForEachWithLimit(context.Background(), make([]int, 20), 3, func(ctx context.Context, n int) error {
		cur := inFlight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if peak.Load() > 3 {
		t.Fatalf("limit exceeded: peak concurrency %d", peak.Load())
	}
}

func TestForEachWithLimit_CollectsAllErrors(t *testing.T) {
	errBoom := errors.New("boom")
	err := ForEachWithLimit(context.Background(), []int{1, 2, 3}, 2, func(ctx context.Context, n int) error {
		if n != 2 {
			return errBoom
		}
		return nil
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected joined error containing boom, got %v", err)
	}
}

func TestForEachWithLimit_EmptyInput(t *testing.T) {
	if err := ForEachWithLimit(context.Background(), nil, 2, func(ctx context.Context, n int) error {
		t.Fatal("must not be called")
		return nil
	}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestMapWithLimit_PreservesOrder(t *testing.T) {
	items := []int{5, 1, 4, 2, 3}
	results, err := MapWithLimit(context.Background(), items, 2, func(ctx context.Context, n int) (int, error) {
		time.Sleep(time.Duration(n) * time.Millisecond)
		return n * 10, nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	for i, n := range items {
		if results[i] != n*10 {
			t.Fatalf("result %d: expected %d, got %d", i, n*10, results[i])
		}
	}
}

func TestMapWithLimit_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := MapWithLimit(ctx, []int{1, 2, 3}, 1, func(ctx context.Context, n int) (int, error) {
		return n, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
