package retry

import (
	"context"
	"testing"
	"time"

	"github.com/conveyorci/conveyor/pipeline"
	"github.com/pkg/errors"
)

func failNTimes(n int) (Op, *int) {
	calls := 0
	return func(ctx context.Context) error {
		calls++
		if calls <= n {
			return errors.New("flaky")
		}
		return nil
	}, &calls
}

func TestDoAttemptCounts(t *testing.T) {
	tests := []struct {
		name        string
		failures    int
		maxAttempts int
		wantErr     bool
		wantCalls   int
	}{
		{"first try succeeds", 0, 3, false, 1},
		{"succeeds on last attempt", 2, 3, false, 3},
		{"exhausted", 3, 3, true, 3},
		{"single attempt", 1, 1, true, 1},
		{"zero attempts clamps to one", 0, 0, false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, calls := failNTimes(tt.failures)
			err := Do(context.Background(), op, tt.maxAttempts, time.Millisecond)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Do() error = %v, wantErr %v", err, tt.wantErr)
			}
			if *calls != tt.wantCalls {
				t.Fatalf("op invoked %d times, want %d", *calls, tt.wantCalls)
			}
		})
	}
}

func TestDoReturnsLastFailure(t *testing.T) {
	last := errors.New("attempt three")
	calls := 0
	op := func(ctx context.Context) error {
		calls++
		if calls == 3 {
			return last
		}
		return errors.Errorf("attempt %d", calls)
	}
	err := Do(context.Background(), op, 3, time.Millisecond)
	if !errors.Is(err, last) {
		t.Fatalf("Do() = %v, want the last failure", err)
	}
}

func TestDoCancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	op := func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("flaky")
	}
	err := Do(ctx, op, 5, time.Minute)
	if !errors.Is(err, pipeline.ErrTimeoutOrCancel) {
		t.Fatalf("Do() = %v, want ErrTimeoutOrCancel", err)
	}
	if calls != 1 {
		t.Fatalf("op invoked %d times after cancel, want 1", calls)
	}
}

func TestDoConfigurationErrExitsImmediately(t *testing.T) {
	calls := 0
	op := func(ctx context.Context) error {
		calls++
		return errors.Wrap(pipeline.ErrConfiguration, "bad template")
	}
	err := Do(context.Background(), op, 5, time.Millisecond)
	if !errors.Is(err, pipeline.ErrConfiguration) {
		t.Fatalf("Do() = %v, want ErrConfiguration", err)
	}
	if calls != 1 {
		t.Fatalf("op invoked %d times, definition problems must not retry", calls)
	}
}

func TestDoTerminatorErrExitsImmediately(t *testing.T) {
	calls := 0
	op := func(ctx context.Context) error {
		calls++
		return pipeline.ErrTimeoutOrCancel
	}
	err := Do(context.Background(), op, 5, time.Millisecond)
	if !errors.Is(err, pipeline.ErrTimeoutOrCancel) {
		t.Fatalf("Do() = %v, want ErrTimeoutOrCancel", err)
	}
	if calls != 1 {
		t.Fatalf("op invoked %d times, terminator errors must not retry", calls)
	}
}
