package stability

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeClock advances instantly on Sleep.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	return nil
}

func countSequence(counts ...int) func(ctx context.Context) (int, error) {
	i := 0
	return func(ctx context.Context) (int, error) {
		if i < len(counts) {
			c := counts[i]
			i++
			return c, nil
		}
		return counts[len(counts)-1], nil
	}
}

func TestPageLoad_RequiresThreeStablePolls(t *testing.T) {
	clock := newFakeClock()
	m := &PageLoadMonitor{
		Probe:    countSequence(5, 5, 5),
		Interval: 100 * time.Millisecond,
		Timeout:  10 * time.Second,
		Clock:    clock,
		Log:      zaptest.NewLogger(t),
	}

	res, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Stable())
	assert.Equal(t, 5, res.Count)
	assert.Equal(t, 3, res.Polls)
}

func TestPageLoad_ResetOnChange(t *testing.T) {
	clock := newFakeClock()
	m := &PageLoadMonitor{
		Probe:    countSequence(3, 3, 7, 7, 7),
		Interval: 100 * time.Millisecond,
		Timeout:  10 * time.Second,
		Clock:    clock,
		Log:      zaptest.NewLogger(t),
	}

	res, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Stable())
	assert.Equal(t, 7, res.Count)
	// The streak restarts when the count moves: 3,3 then 7,7,7.
	assert.Equal(t, 5, res.Polls)
}

func TestPageLoad_ZeroCountNeverStabilizes(t *testing.T) {
	clock := newFakeClock()
	m := &PageLoadMonitor{
		Probe:    countSequence(0),
		Interval: 1 * time.Second,
		Timeout:  5 * time.Second,
		Clock:    clock,
		Log:      zaptest.NewLogger(t),
	}

	res, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateTimedOut, res.State)
	assert.Equal(t, 0, res.Count)
}

func TestPageLoad_TimeoutReportsLastCount(t *testing.T) {
	clock := newFakeClock()
	next := 0
	m := &PageLoadMonitor{
		Probe: func(ctx context.Context) (int, error) {
			next++
			return next, nil // never repeats, never stabilizes
		},
		Interval: 1 * time.Second,
		Timeout:  4 * time.Second,
		Clock:    clock,
		Log:      zaptest.NewLogger(t),
	}

	res, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateTimedOut, res.State)
	assert.Equal(t, res.Polls, res.Count)
}

func TestPageLoad_IdleFailureIsNotFatal(t *testing.T) {
	clock := newFakeClock()
	m := &PageLoadMonitor{
		Probe:    countSequence(2, 2, 2),
		WaitIdle: func(ctx context.Context) error { return fmt.Errorf("network still busy") },
		Interval: 100 * time.Millisecond,
		Timeout:  10 * time.Second,
		Clock:    clock,
		Log:      zaptest.NewLogger(t),
	}

	res, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Stable())
}

func TestPageLoad_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	clock := newFakeClock()
	probes := 0
	m := &PageLoadMonitor{
		Probe: func(ctx context.Context) (int, error) {
			probes++
			if probes == 2 {
				cancel()
			}
			return probes, nil
		},
		Interval: 1 * time.Second,
		Timeout:  time.Minute,
		Clock:    clock,
		Log:      zaptest.NewLogger(t),
	}

	_, err := m.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCondition_SucceedsOnLaterPoll(t *testing.T) {
	clock := newFakeClock()
	calls := 0
	c := &Condition{
		Check: func(ctx context.Context) (bool, error) {
			calls++
			return calls >= 4, nil
		},
		Interval: 250 * time.Millisecond,
		Timeout:  time.Minute,
		Clock:    clock,
	}

	res, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Stable())
	assert.Equal(t, 4, res.Polls)
	assert.Equal(t, 3*250*time.Millisecond, res.Elapsed)
}

func TestCondition_Timeout(t *testing.T) {
	clock := newFakeClock()
	c := &Condition{
		Check:    func(ctx context.Context) (bool, error) { return false, nil },
		Interval: 1 * time.Second,
		Timeout:  3 * time.Second,
		Clock:    clock,
	}

	res, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateTimedOut, res.State)
	assert.Equal(t, 3, res.Polls)
}

func TestCondition_PropagatesHardError(t *testing.T) {
	c := &Condition{
		Check: func(ctx context.Context) (bool, error) {
			return false, fmt.Errorf("probe exploded")
		},
		Clock: newFakeClock(),
	}
	_, err := c.Run(context.Background())
	assert.ErrorContains(t, err, "probe exploded")
}

func TestTextSearch(t *testing.T) {
	assert.True(t, TextSearch("Order Confirmed!", "order confirmed"))
	assert.True(t, TextSearch("abc DEF ghi", "def"))
	assert.False(t, TextSearch("abc", "xyz"))
}

func TestAccordionWait(t *testing.T) {
	clock := newFakeClock()
	states := []AccordionState{AccordionCollapsed, AccordionCollapsed, AccordionExpanded}
	i := 0
	probe := func(ctx context.Context) (AccordionState, error) {
		s := states[i]
		if i < len(states)-1 {
			i++
		}
		return s, nil
	}

	state, res, err := AccordionWait(context.Background(), probe, Condition{
		Interval: 100 * time.Millisecond,
		Timeout:  time.Minute,
		Clock:    clock,
	})
	require.NoError(t, err)
	assert.Equal(t, AccordionExpanded, state)
	assert.True(t, res.Stable())
	assert.Equal(t, 3, res.Polls)
}

func TestAccordionWait_MissingTerminates(t *testing.T) {
	state, res, err := AccordionWait(context.Background(),
		func(ctx context.Context) (AccordionState, error) { return AccordionMissing, nil },
		Condition{Interval: time.Second, Timeout: time.Minute, Clock: newFakeClock()})
	require.NoError(t, err)
	assert.Equal(t, AccordionMissing, state)
	assert.True(t, res.Stable())
	assert.Equal(t, 1, res.Polls)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "polling", StatePolling.String())
	assert.Equal(t, "stabilized", StateStabilized.String())
	assert.Equal(t, "timed-out", StateTimedOut.String())
}
