package retry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func policy(max int, base time.Duration, rec *sleepRecorder) Policy {
	return Policy{MaxAttempts: max, BaseDelay: base, Sleep: rec.sleep, Log: zerolog.Nop(), Label: "test"}
}

func TestDoReturnsFirstSuccess(t *testing.T) {
	rec := &sleepRecorder{}
	calls := 0
	got, err := Do(context.Background(), policy(3, time.Second, rec), func(context.Context) (string, error) {
		calls++
		return "sig", nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if got != "sig" || calls != 1 {
		t.Fatalf("expected one call returning sig, got %q after %d calls", got, calls)
	}
	if len(rec.delays) != 0 {
		t.Fatalf("expected no sleeps, got %v", rec.delays)
	}
}

func TestDoExhaustsWithGeometricDelays(t *testing.T) {
	base := 500 * time.Millisecond
	for max := 1; max <= 6; max++ {
		rec := &sleepRecorder{}
		calls := 0
		_, err := Do(context.Background(), policy(max, base, rec), func(context.Context) (int, error) {
			calls++
			return 0, fmt.Errorf("jupiter quote: %w", ErrRateLimited)
		})
		if !errors.Is(err, ErrRetriesExhausted) {
			t.Fatalf("max=%d: expected ErrRetriesExhausted, got %v", max, err)
		}
		if errors.Is(err, ErrRateLimited) {
			t.Fatalf("max=%d: exhausted error must be distinct from the cause", max)
		}
		if calls != max {
			t.Fatalf("max=%d: expected %d attempts, got %d", max, max, calls)
		}
		if len(rec.delays) != max-1 {
			t.Fatalf("max=%d: expected %d sleeps, got %v", max, max-1, rec.delays)
		}
		want := base
		for i, d := range rec.delays {
			if d != want {
				t.Fatalf("max=%d: delay %d expected %s got %s", max, i, want, d)
			}
			want *= 2
		}
	}
}

func TestDoPropagatesOtherErrorsWithoutSleeping(t *testing.T) {
	rec := &sleepRecorder{}
	boom := errors.New("simulation failed")
	calls := 0
	_, err := Do(context.Background(), policy(5, time.Second, rec), func(context.Context) (int, error) {
		calls++
		return 0, boom
	})
	if err != boom {
		t.Fatalf("expected original error, got %v", err)
	}
	if calls != 1 || len(rec.delays) != 0 {
		t.Fatalf("expected 1 call and no sleeps, got %d calls and %v", calls, rec.delays)
	}
}

func TestDoRecoversAfterTwoRateLimits(t *testing.T) {
	rec := &sleepRecorder{}
	calls := 0
	got, err := Do(context.Background(), policy(5, 500*time.Millisecond, rec), func(context.Context) (string, error) {
		calls++
		if calls <= 2 {
			return "", ErrRateLimited
		}
		return "sold", nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if got != "sold" || calls != 3 {
		t.Fatalf("expected success on third attempt, got %q after %d", got, calls)
	}
	if len(rec.delays) != 2 || rec.delays[0] != 500*time.Millisecond || rec.delays[1] != time.Second {
		t.Fatalf("expected delays [500ms 1s], got %v", rec.delays)
	}
}

func TestDoWithoutAttemptsNeverCallsOperation(t *testing.T) {
	for _, max := range []int{0, -3} {
		rec := &sleepRecorder{}
		_, err := Do(context.Background(), policy(max, time.Second, rec), func(context.Context) (int, error) {
			t.Fatalf("operation must not run when max attempts is %d", max)
			return 0, nil
		})
		if !errors.Is(err, ErrRetriesExhausted) {
			t.Fatalf("expected ErrRetriesExhausted, got %v", err)
		}
	}
}

// A retry bound of 0.1 floors to zero attempts,
// so every swap fails immediately with ErrRetriesExhausted.
func TestFractionalRetryBoundFloorsToZero(t *testing.T) {
	if got := Attempts(0.1); got != 0 {
		t.Fatalf("expected 0 attempts for 0.1, got %d", got)
	}
	_, err := Do(context.Background(), Policy{MaxAttempts: Attempts(0.1), Log: zerolog.Nop()}, func(context.Context) (int, error) {
		t.Fatalf("operation must not run")
		return 0, nil
	})
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
}

func TestAttempts(t *testing.T) {
	cases := map[float64]int{
		-1:  0,
		0:   0,
		0.9: 0,
		1:   1,
		3.9: 3,
		5:   5,
	}
	for in, want := range cases {
		if got := Attempts(in); got != want {
			t.Fatalf("Attempts(%v): expected %d got %d", in, want, got)
		}
	}
}

func TestDoStopsWhenContextCanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Hour,
		Log:         zerolog.Nop(),
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return Sleep(ctx, d)
		},
	}
	_, err := Do(ctx, p, func(context.Context) (int, error) {
		calls++
		return 0, ErrRateLimited
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestDoLogsRateLimitNotice(t *testing.T) {
	var buf bytes.Buffer
	rec := &sleepRecorder{}
	p := Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, Sleep: rec.sleep, Log: zerolog.New(&buf), Label: "sell"}
	_, _ = Do(context.Background(), p, func(context.Context) (int, error) { return 0, ErrRateLimited })
	if !strings.Contains(buf.String(), "rate limited") || !strings.Contains(buf.String(), `"op":"sell"`) {
		t.Fatalf("expected rate limit notice, got %s", buf.String())
	}
}

func TestSleepHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := Sleep(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("expected nil after short sleep, got %v", err)
	}
}
