package live

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const trackerPollInterval = 25 * time.Millisecond

// netTracker counts in-flight requests from DevTools network events so
// waitQuiet can detect a settled page.
type netTracker struct {
	mu     sync.Mutex
	active map[network.RequestID]struct{}
	last   time.Time
}

func newNetTracker() *netTracker {
	return &netTracker{active: make(map[network.RequestID]struct{})}
}

// listen subscribes to the tab's network events for the lifetime of ctx.
func (t *netTracker) listen(ctx context.Context) {
	chromedp.ListenTarget(ctx, func(ev any) {
		switch ev := ev.(type) {
		case *network.EventRequestWillBeSent:
			t.begin(ev.RequestID)
		case *network.EventLoadingFinished:
			t.end(ev.RequestID)
		case *network.EventLoadingFailed:
			t.end(ev.RequestID)
		}
	})
}

func (t *netTracker) begin(id network.RequestID) {
	t.mu.Lock()
	t.active[id] = struct{}{}
	t.mu.Unlock()
}

func (t *netTracker) end(id network.RequestID) {
	t.mu.Lock()
	delete(t.active, id)
	t.last = time.Now()
	t.mu.Unlock()
}

// inFlight reports the number of unfinished requests.
func (t *netTracker) inFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// waitQuiet blocks until no request is in flight and the last completion
// is at least quiet ago, or the context expires.
func (t *netTracker) waitQuiet(ctx context.Context, quiet time.Duration) error {
	ticker := time.NewTicker(trackerPollInterval)
	defer ticker.Stop()
	for {
		t.mu.Lock()
		idle := len(t.active) == 0 && (t.last.IsZero() || time.Since(t.last) >= quiet)
		t.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
