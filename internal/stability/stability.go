// Package stability implements the polled wait conditions used after
// navigation and actions: page-load count stability, text appearance, and
// accordion expansion. Every monitor is an explicit state machine driven
// by an injectable clock, so tests advance time deterministically instead
// of sleeping.
package stability

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

// State is a monitor's lifecycle state.
type State int

const (
	StatePolling State = iota
	StateStabilized
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StatePolling:
		return "polling"
	case StateStabilized:
		return "stabilized"
	case StateTimedOut:
		return "timed-out"
	}
	return "unknown"
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the production clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

const (
	DefaultInterval      = 500 * time.Millisecond
	DefaultTimeout       = 15 * time.Second
	DefaultStablePolls   = 3
	DefaultIdleQuietTime = 400 * time.Millisecond
)

// Result reports the terminal state of one monitor run.
type Result struct {
	State State
	// Count is the last observed interactive-element count (page-load
	// monitor only).
	Count int
	// Polls is the number of probe evaluations performed.
	Polls int
	// Elapsed is wall time between start and the terminal transition.
	Elapsed time.Duration
}

// Stable is a convenience for the success check.
func (r Result) Stable() bool { return r.State == StateStabilized }

// PageLoadMonitor waits until the page's interactive-element count is
// non-zero and unchanged across StablePolls consecutive probes. Each cycle
// optionally waits for network idleness first; idle failures are logged
// and ignored, a busy network must not wedge the wait.
type PageLoadMonitor struct {
	Probe       func(ctx context.Context) (int, error)
	WaitIdle    func(ctx context.Context) error
	Interval    time.Duration
	Timeout     time.Duration
	StablePolls int
	Clock       Clock
	Log         *zap.Logger
}

// Run drives the monitor to a terminal state.
func (m *PageLoadMonitor) Run(ctx context.Context) (Result, error) {
	m.defaults()
	start := m.Clock.Now()
	deadline := start.Add(m.Timeout)

	res := Result{State: StatePolling}
	lastCount := -1
	streak := 0

	for {
		if m.WaitIdle != nil {
			idleCtx, cancel := context.WithTimeout(ctx, m.Interval*2)
			if err := m.WaitIdle(idleCtx); err != nil {
				m.Log.Debug("network idle wait did not settle", zap.Error(err))
			}
			cancel()
		}

		count, err := m.Probe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			m.Log.Debug("element count probe failed", zap.Error(err))
			count = -1
		}
		res.Polls++
		res.Count = count

		if count > 0 && count == lastCount {
			streak++
		} else {
			streak = 1
		}
		lastCount = count

		if count > 0 && streak >= m.StablePolls {
			res.State = StateStabilized
			res.Elapsed = m.Clock.Now().Sub(start)
			return res, nil
		}
		if !m.Clock.Now().Add(m.Interval).Before(deadline) {
			res.State = StateTimedOut
			res.Elapsed = m.Clock.Now().Sub(start)
			return res, nil
		}
		if err := m.Clock.Sleep(ctx, m.Interval); err != nil {
			return res, err
		}
	}
}

func (m *PageLoadMonitor) defaults() {
	if m.Interval <= 0 {
		m.Interval = DefaultInterval
	}
	if m.Timeout <= 0 {
		m.Timeout = DefaultTimeout
	}
	if m.StablePolls <= 0 {
		m.StablePolls = DefaultStablePolls
	}
	if m.Clock == nil {
		m.Clock = SystemClock{}
	}
	if m.Log == nil {
		m.Log = zap.NewNop()
	}
}

// Condition polls an arbitrary predicate to a terminal state. Text and
// accordion waits are thin wrappers over it.
type Condition struct {
	Check    func(ctx context.Context) (done bool, err error)
	Interval time.Duration
	Timeout  time.Duration
	Clock    Clock
}

// Run polls Check until it reports done, returns a hard error, or the
// timeout expires.
func (c *Condition) Run(ctx context.Context) (Result, error) {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	start := c.Clock.Now()
	deadline := start.Add(c.Timeout)
	res := Result{State: StatePolling}

	for {
		done, err := c.Check(ctx)
		res.Polls++
		if err != nil {
			res.Elapsed = c.Clock.Now().Sub(start)
			return res, err
		}
		if done {
			res.State = StateStabilized
			res.Elapsed = c.Clock.Now().Sub(start)
			return res, nil
		}
		if !c.Clock.Now().Add(c.Interval).Before(deadline) {
			res.State = StateTimedOut
			res.Elapsed = c.Clock.Now().Sub(start)
			return res, nil
		}
		if err := c.Clock.Sleep(ctx, c.Interval); err != nil {
			return res, err
		}
	}
}

// TextSearch reports whether needle occurs in haystack, case-insensitive.
// Shared by the text wait so the matching rule lives in one place.
func TextSearch(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// AccordionState is the observed expand state of a target element.
type AccordionState int

const (
	AccordionCollapsed AccordionState = iota
	AccordionExpanded
	AccordionMissing
)

// AccordionWait polls probe until the element reports expanded, disappears,
// or the timeout expires. A missing element terminates the wait: the caller
// distinguishes that from expansion via the returned state.
func AccordionWait(ctx context.Context, probe func(ctx context.Context) (AccordionState, error), cond Condition) (AccordionState, Result, error) {
	last := AccordionCollapsed
	cond.Check = func(ctx context.Context) (bool, error) {
		state, err := probe(ctx)
		if err != nil {
			return false, err
		}
		last = state
		return state != AccordionCollapsed, nil
	}
	res, err := cond.Run(ctx)
	return last, res, err
}
