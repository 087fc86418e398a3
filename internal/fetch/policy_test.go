package fetch

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// errTimeout stands in for a transport timeout.
var errTimeout = errors.New("i/o timeout")

// scripted returns an op that yields results in order, one per attempt.
func scripted(results ...error) (func(context.Context, int) error, *int) {
	calls := 0
	return func(_ context.Context, attempt int) error {
		calls++
		if attempt != calls {
			panic("attempt numbering out of sync")
		}
		if calls > len(results) {
			return errors.New("unexpected extra attempt")
		}
		return results[calls-1]
	}, &calls
}

func testPolicy(s Sleeper) Policy {
	p := DefaultPolicy()
	p.Unit = time.Millisecond
	p.Sleeper = s
	return p
}

// TestPolicy_TimeoutsThenSuccess verifies two transient failures produce two
// exponential backoff waits and no cooldown.
func TestPolicy_TimeoutsThenSuccess(t *testing.T) {
	t.Parallel()

	rec := &RecordingSleeper{}
	op, calls := scripted(errTimeout, errTimeout, nil)

	if err := testPolicy(rec).Do(context.Background(), "https://m.example/p", op); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if *calls != 3 {
		t.Fatalf("attempts: got %d want 3", *calls)
	}
	want := []Wait{
		{Kind: Backoff, Duration: 2 * time.Millisecond},
		{Kind: Backoff, Duration: 4 * time.Millisecond},
	}
	if diff := cmp.Diff(want, rec.Waits()); diff != "" {
		t.Fatalf("waits mismatch (-want +got):\n%s", diff)
	}
}

// TestPolicy_RateLimitUsesFlatCooldown verifies a 429 waits the flat cooldown.
func TestPolicy_RateLimitUsesFlatCooldown(t *testing.T) {
	t.Parallel()

	rec := &RecordingSleeper{}
	op, calls := scripted(&StatusError{Code: http.StatusTooManyRequests}, nil)

	if err := testPolicy(rec).Do(context.Background(), "u", op); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if *calls != 2 {
		t.Fatalf("attempts: got %d want 2", *calls)
	}
	want := []Wait{{Kind: Cooldown, Duration: 5 * time.Millisecond}}
	if diff := cmp.Diff(want, rec.Waits()); diff != "" {
		t.Fatalf("waits mismatch (-want +got):\n%s", diff)
	}
}

// TestPolicy_CooldownDoesNotAdvanceBackoff verifies the backoff exponent
// only counts transient failures.
func TestPolicy_CooldownDoesNotAdvanceBackoff(t *testing.T) {
	t.Parallel()

	rec := &RecordingSleeper{}
	op, _ := scripted(&StatusError{Code: http.StatusTooManyRequests}, errTimeout, nil)

	if err := testPolicy(rec).Do(context.Background(), "u", op); err != nil {
		t.Fatalf("Do: %v", err)
	}
	want := []Wait{
		{Kind: Cooldown, Duration: 5 * time.Millisecond},
		{Kind: Backoff, Duration: 2 * time.Millisecond},
	}
	if diff := cmp.Diff(want, rec.Waits()); diff != "" {
		t.Fatalf("waits mismatch (-want +got):\n%s", diff)
	}
}

// TestPolicy_OtherStatusFailsImmediately verifies non-429 statuses are not retried.
func TestPolicy_OtherStatusFailsImmediately(t *testing.T) {
	t.Parallel()

	rec := &RecordingSleeper{}
	op, calls := scripted(&StatusError{URL: "u", Code: http.StatusNotFound})

	err := testPolicy(rec).Do(context.Background(), "u", op)

	var ex *ExhaustedError
	if !errors.As(err, &ex) {
		t.Fatalf("expected *ExhaustedError, got %T %v", err, err)
	}
	if ex.Attempts != 1 || *calls != 1 {
		t.Fatalf("attempts: error says %d, op saw %d; want 1", ex.Attempts, *calls)
	}
	if !IsStatus(err, http.StatusNotFound) {
		t.Fatalf("cause should be the 404 StatusError: %v", err)
	}
	if len(rec.Waits()) != 0 {
		t.Fatalf("no waits expected, got %v", rec.Waits())
	}
}

// TestPolicy_Exhausted verifies the last cause is kept and no wait follows
// the final attempt.
func TestPolicy_Exhausted(t *testing.T) {
	t.Parallel()

	rec := &RecordingSleeper{}
	last := errors.New("connection reset")
	op, _ := scripted(errTimeout, errTimeout, last)

	err := testPolicy(rec).Do(context.Background(), "u", op)

	var ex *ExhaustedError
	if !errors.As(err, &ex) {
		t.Fatalf("expected *ExhaustedError, got %T %v", err, err)
	}
	if ex.Attempts != 3 || !errors.Is(err, last) {
		t.Fatalf("unexpected exhausted error: %+v", ex)
	}
	if got := len(rec.Waits()); got != 2 {
		t.Fatalf("waits: got %d want 2", got)
	}
}

func TestPolicy_PermanentStops(t *testing.T) {
	t.Parallel()

	rec := &RecordingSleeper{}
	bad := errors.New("bad url")
	op, calls := scripted(Permanent(bad))

	err := testPolicy(rec).Do(context.Background(), "u", op)
	if !errors.Is(err, bad) || *calls != 1 {
		t.Fatalf("Permanent: err=%v calls=%d", err, *calls)
	}
}

// TestPolicy_CancelDuringWait verifies cancellation aborts a wait and is
// reported as the context error, not as exhaustion.
func TestPolicy_CancelDuringWait(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	p := testPolicy(SleeperFunc(func(ctx context.Context, w Wait) error {
		cancel()
		return ctx.Err()
	}))
	op, calls := scripted(errTimeout, nil)

	err := p.Do(ctx, "u", op)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	var ex *ExhaustedError
	if errors.As(err, &ex) {
		t.Fatalf("cancellation must not look like exhaustion: %v", err)
	}
	if *calls != 1 {
		t.Fatalf("attempts: got %d want 1", *calls)
	}
}

func TestSleepContext(t *testing.T) {
	t.Parallel()

	if err := sleepContext(context.Background(), Wait{Duration: time.Millisecond}); err != nil {
		t.Fatalf("sleepContext: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, Wait{Duration: time.Hour}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
