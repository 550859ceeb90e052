package network

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"
)

// IdleTracker wraps a transport and counts in-flight requests. A request
// stays in flight until its response body is closed, which is when the
// document consumer has actually finished reading it. WaitIdle blocks
// until no request has been active for a quiet period.
type IdleTracker struct {
	Transport http.RoundTripper

	mu       sync.Mutex
	active   int
	lastDone time.Time
}

func NewIdleTracker(transport http.RoundTripper) *IdleTracker {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &IdleTracker{Transport: transport, lastDone: time.Now()}
}

func (t *IdleTracker) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	t.active++
	t.mu.Unlock()

	resp, err := t.Transport.RoundTrip(req)
	if err != nil {
		t.done()
		return nil, err
	}
	resp.Body = &trackedBody{ReadCloser: resp.Body, onClose: t.done}
	return resp, nil
}

func (t *IdleTracker) done() {
	t.mu.Lock()
	t.active--
	t.lastDone = time.Now()
	t.mu.Unlock()
}

// InFlight returns the current number of active requests.
func (t *IdleTracker) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// WaitIdle blocks until zero requests have been in flight for quiet, or
// the context ends.
func (t *IdleTracker) WaitIdle(ctx context.Context, quiet time.Duration) error {
	const checkEvery = 25 * time.Millisecond
	ticker := time.NewTicker(checkEvery)
	defer ticker.Stop()
	for {
		t.mu.Lock()
		idleFor := time.Since(t.lastDone)
		active := t.active
		t.mu.Unlock()
		if active == 0 && idleFor >= quiet {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

type trackedBody struct {
	io.ReadCloser
	onClose func()
	once    sync.Once
}

func (b *trackedBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.onClose)
	return err
}
