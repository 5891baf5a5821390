package batch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunReturnsAllResults(t *testing.T) {
	results, err := Run(context.Background(), 4, func(_ context.Context, i int) (int, error) {
		return i * 10, nil
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	for i, r := range results {
		if r != i*10 {
			t.Fatalf("result %d: expected %d got %d", i, i*10, r)
		}
	}
}

func TestRunFailsWhenAnyMemberFails(t *testing.T) {
	boom := errors.New("swap failed")
	for failing := 0; failing < 4; failing++ {
		var settled atomic.Int32
		_, err := Run(context.Background(), 4, func(_ context.Context, i int) (string, error) {
			defer settled.Add(1)
			if i == failing {
				return "", boom
			}
			time.Sleep(5 * time.Millisecond)
			return "sig", nil
		})
		if !errors.Is(err, boom) {
			t.Fatalf("failing=%d: expected boom, got %v", failing, err)
		}
		if settled.Load() != 4 {
			t.Fatalf("failing=%d: expected every member to settle before Run returned, got %d", failing, settled.Load())
		}
	}
}

func TestRunLaunchesMembersBeforeAwaiting(t *testing.T) {
	const count = 4
	var started sync.WaitGroup
	started.Add(count)
	release := make(chan struct{})
	go func() {
		started.Wait()
		close(release)
	}()

	done := make(chan error, 1)
	go func() {
		_, err := Run(context.Background(), count, func(_ context.Context, i int) (int, error) {
			started.Done()
			<-release
			return i, nil
		})
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("members were not all in flight at once")
	}
}

func TestRunDoesNotCancelSiblings(t *testing.T) {
	var sawCancel atomic.Bool
	_, err := Run(context.Background(), 3, func(ctx context.Context, i int) (int, error) {
		if i == 0 {
			return 0, errors.New("first")
		}
		time.Sleep(10 * time.Millisecond)
		if ctx.Err() != nil {
			sawCancel.Store(true)
		}
		return i, nil
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if sawCancel.Load() {
		t.Fatalf("siblings must not observe cancellation")
	}
}

func TestRunWithZeroCount(t *testing.T) {
	results, err := Run(context.Background(), 0, func(context.Context, int) (int, error) {
		t.Fatalf("op must not run")
		return 0, nil
	})
	if err != nil || len(results) != 0 {
		t.Fatalf("expected empty results, got %v %v", results, err)
	}
}
