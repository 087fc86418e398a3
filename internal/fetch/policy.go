// Package fetch retrieves pages with a bounded retry policy: exponential
// backoff for transient failures and a flat cooldown for HTTP 429.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"menuscrape/internal/metrics"
)

// WaitKind distinguishes the two kinds of retry wait.
type WaitKind string

const (
	Backoff  WaitKind = "backoff"
	Cooldown WaitKind = "cooldown"
)

// Wait is one pause between attempts.
type Wait struct {
	Kind     WaitKind
	Duration time.Duration
}

// Sleeper performs retry waits. It returns ctx.Err() when ctx ends first.
type Sleeper interface {
	Sleep(ctx context.Context, w Wait) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, w Wait) error

func (f SleeperFunc) Sleep(ctx context.Context, w Wait) error { return f(ctx, w) }

// ContextSleeper sleeps on a timer and wakes early on cancellation.
var ContextSleeper Sleeper = SleeperFunc(sleepContext)

func sleepContext(ctx context.Context, w Wait) error {
	if w.Duration <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(w.Duration)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RecordingSleeper records waits without sleeping. Safe for concurrent use.
type RecordingSleeper struct {
	mu    sync.Mutex
	waits []Wait
}

func (r *RecordingSleeper) Sleep(ctx context.Context, w Wait) error {
	r.mu.Lock()
	r.waits = append(r.waits, w)
	r.mu.Unlock()
	return ctx.Err()
}

// Waits returns a copy of the recorded waits.
func (r *RecordingSleeper) Waits() []Wait {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Wait(nil), r.waits...)
}

// Policy bounds the attempts made for one URL.
//
// A transient failure (transport error, timeout) waits Unit*2^n, where n
// counts the transient failures of this call so far (1, 2, ...). A 429
// waits CooldownUnits*Unit, consumes an attempt and leaves n alone. Any
// other HTTP status, or an error wrapped with Permanent, ends the call.
type Policy struct {
	Attempts      int
	Unit          time.Duration
	CooldownUnits int

	Sleeper Sleeper           // nil means ContextSleeper
	Logger  *slog.Logger      // nil means discard
	Metrics *metrics.Recorder // nil is fine
}

// DefaultPolicy is 3 attempts, a 1s unit and a 5-unit cooldown.
func DefaultPolicy() Policy {
	return Policy{Attempts: 3, Unit: time.Second, CooldownUnits: 5}
}

// BackoffFor returns the wait after the n-th transient failure.
func (p Policy) BackoffFor(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	return p.Unit << uint(n)
}

// CooldownFor returns the flat wait after a 429.
func (p Policy) CooldownFor() time.Duration {
	return time.Duration(p.CooldownUnits) * p.Unit
}

// Do runs op until it succeeds or the policy gives up. op receives the
// 1-based attempt number. Failures come back as *ExhaustedError; a
// cancelled ctx comes back wrapped as-is.
func (p Policy) Do(ctx context.Context, url string, op func(ctx context.Context, attempt int) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	sleeper := p.Sleeper
	if sleeper == nil {
		sleeper = ContextSleeper
	}
	log := p.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	transient := 0
	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("fetch %s: %w", url, err)
		}

		err := op(ctx, attempt)
		if err == nil {
			return nil
		}
		last = err
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("fetch %s: %w", url, ctxErr)
		}

		var w Wait
		var se *StatusError
		switch {
		case isPermanent(err):
			return &ExhaustedError{URL: url, Attempts: attempt, Cause: err}
		case errors.As(err, &se) && se.Code == http.StatusTooManyRequests:
			w = Wait{Kind: Cooldown, Duration: p.CooldownFor()}
		case errors.As(err, &se):
			return &ExhaustedError{URL: url, Attempts: attempt, Cause: err}
		default:
			transient++
			w = Wait{Kind: Backoff, Duration: p.BackoffFor(transient)}
		}

		if attempt == attempts {
			break
		}

		log.Warn("fetch attempt failed",
			"url", url, "attempt", attempt, "err", err,
			"wait", w.Duration, "kind", string(w.Kind))
		p.Metrics.RecordWait(string(w.Kind))

		if err := sleeper.Sleep(ctx, w); err != nil {
			return fmt.Errorf("fetch %s: %w", url, err)
		}
	}

	return &ExhaustedError{URL: url, Attempts: attempts, Cause: last}
}
