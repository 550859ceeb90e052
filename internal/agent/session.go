// Package agent exposes the tool surface over one page session: snapshot
// rendering, selector-addressed actions, stability waits, frame switching,
// and the accessibility inspection. Tool calls are strictly serialized;
// concurrent callers block on the session gate until the in-flight call
// finishes.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/Zegnet/qandalf-agentic/internal/browser"
	"github.com/Zegnet/qandalf-agentic/internal/index"
	"github.com/Zegnet/qandalf-agentic/internal/stability"
)

// Config carries the session-level tunables.
type Config struct {
	// WaitInterval is the poll interval of every wait tool.
	WaitInterval time.Duration
	// WaitTimeout bounds waits whose caller passed no explicit timeout.
	WaitTimeout time.Duration
	// StablePolls is how many consecutive equal element counts
	// wait_for_page_load requires.
	StablePolls int
	// HighlightDuration is how long an action highlight stays visible.
	HighlightDuration time.Duration
	// MaxElements caps a snapshot's registry size.
	MaxElements int
}

func (c Config) withDefaults() Config {
	if c.WaitInterval <= 0 {
		c.WaitInterval = stability.DefaultInterval
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = stability.DefaultTimeout
	}
	if c.StablePolls <= 0 {
		c.StablePolls = stability.DefaultStablePolls
	}
	if c.HighlightDuration <= 0 {
		c.HighlightDuration = 2 * time.Second
	}
	if c.MaxElements <= 0 {
		c.MaxElements = index.DefaultMaxElements
	}
	return c
}

// Session owns one page and the per-session mutable state: the frame
// pointer lives in the page, the highlighter here. All tools funnel
// through the weighted-semaphore gate, so calls for one session never
// interleave.
type Session struct {
	id     string
	log    *zap.Logger
	cfg    Config
	page   browser.Page
	walker *index.Walker
	hl     *Highlighter
	gate   *semaphore.Weighted
	clock  stability.Clock
}

// NewSession wraps a page in a tool session.
func NewSession(page browser.Page, cfg Config, log *zap.Logger) *Session {
	cfg = cfg.withDefaults()
	log = log.Named("agent")
	return &Session{
		id:     uuid.NewString(),
		log:    log,
		cfg:    cfg,
		page:   page,
		walker: index.NewWalker(log, cfg.MaxElements),
		hl:     NewHighlighter(page, cfg.HighlightDuration, log),
		gate:   semaphore.NewWeighted(1),
		clock:  stability.SystemClock{},
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Close clears any highlight and shuts the page down.
func (s *Session) Close(ctx context.Context) error {
	if err := s.gate.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.gate.Release(1)
	_ = s.hl.Clear(ctx)
	return s.page.Close(ctx)
}

// run serializes one tool call and converts tool-level failures into a
// descriptive string result. Only context expiry propagates as an error;
// everything else becomes a response the caller can read.
func (s *Session) run(ctx context.Context, tool string, f func(ctx context.Context) (string, error)) (string, error) {
	if err := s.gate.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer s.gate.Release(1)

	out, err := f(ctx)
	if err == nil {
		return out, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "", err
	}
	s.log.Debug("Tool call failed.",
		zap.String("session_id", s.id),
		zap.String("tool", tool),
		zap.Error(err))
	return fmt.Sprintf("Error: %v", err), nil
}

// snapshot captures the current scope through the shared indexing
// pipeline.
func (s *Session) snapshot(ctx context.Context) (*browser.PageState, *index.Snapshot, error) {
	state, err := s.page.State(ctx)
	if err != nil {
		return nil, nil, err
	}
	return state, s.walker.CaptureWith(state.Doc, state.Registry, state.URL), nil
}
