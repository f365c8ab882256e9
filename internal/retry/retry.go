// Package retry provides the shared reconnect machinery used by the
// signaling bus, the negotiation engine and the translation session:
// a bounded retry policy with pluggable backoff and a re-armable
// watchdog timer. All timing goes through an injectable clock so the
// logic is testable without real sleeps.
package retry

import (
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// ErrAttemptsExhausted is returned once a retrier has used up its
// attempt budget. The condition is terminal for the caller.
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// Policy describes how a recoverable operation is retried.
type Policy struct {
	// MaxAttempts bounds the number of retries. Zero means unlimited,
	// which is appropriate for persistent relays (signaling) but not
	// for remote compute calls (translation service).
	MaxAttempts int

	// Base is the delay before the first retry.
	Base time.Duration

	// Cap limits the backoff delay. Ignored when zero.
	Cap time.Duration

	// Exponential doubles the delay per attempt when true; otherwise
	// every retry waits exactly Base.
	Exponential bool
}

// Delay returns the wait before retry number attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	d := p.Base
	if p.Exponential {
		for i := 1; i < attempt; i++ {
			d *= 2
			if p.Cap > 0 && d >= p.Cap {
				return p.Cap
			}
		}
	}
	if p.Cap > 0 && d > p.Cap {
		return p.Cap
	}
	return d
}

// Retrier tracks attempts for one retried operation and owns the
// pending retry timer. Exactly one retry may be scheduled at a time;
// scheduling a new one first cancels the previous.
type Retrier struct {
	policy Policy
	clk    clock.Clock

	mu      sync.Mutex
	attempt int
	timer   *clock.Timer
}

// NewRetrier creates a retrier for the given policy. Pass
// clock.New() outside of tests.
func NewRetrier(policy Policy, clk clock.Clock) *Retrier {
	return &Retrier{policy: policy, clk: clk}
}

// Schedule arms a retry after the policy's backoff and invokes fn when
// it fires. It returns ErrAttemptsExhausted when the attempt budget is
// spent; fn is not invoked in that case.
func (r *Retrier) Schedule(fn func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.attempt++
	if r.policy.MaxAttempts > 0 && r.attempt > r.policy.MaxAttempts {
		return ErrAttemptsExhausted
	}

	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = r.clk.AfterFunc(r.policy.Delay(r.attempt), fn)
	return nil
}

// Attempt returns the number of retries scheduled since the last Reset.
func (r *Retrier) Attempt() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempt
}

// Reset clears the attempt counter after a successful operation.
func (r *Retrier) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempt = 0
}

// Cancel stops any pending retry without touching the attempt counter.
func (r *Retrier) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// Watchdog fires a callback once a fixed ceiling elapses, unless it is
// disarmed first. Arming again re-starts the ceiling.
type Watchdog struct {
	ceiling time.Duration
	clk     clock.Clock
	fn      func()

	mu    sync.Mutex
	timer *clock.Timer
}

// NewWatchdog creates a watchdog with the given ceiling.
func NewWatchdog(ceiling time.Duration, clk clock.Clock, fn func()) *Watchdog {
	return &Watchdog{ceiling: ceiling, clk: clk, fn: fn}
}

// Arm starts (or restarts) the ceiling timer.
func (w *Watchdog) Arm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = w.clk.AfterFunc(w.ceiling, w.fn)
}

// Disarm stops the ceiling timer without firing.
func (w *Watchdog) Disarm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
