package agent

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Zegnet/qandalf-agentic/internal/browser"
)

const highlightClearTimeout = 5 * time.Second

// Highlighter owns the session's single highlight overlay and its
// auto-clear timer. Flash cancels whatever is active before drawing, so
// at most one overlay exists at any time.
type Highlighter struct {
	mu       sync.Mutex
	page     browser.Page
	log      *zap.Logger
	duration time.Duration
	timer    *time.Timer
}

func NewHighlighter(page browser.Page, duration time.Duration, log *zap.Logger) *Highlighter {
	return &Highlighter{page: page, log: log.Named("highlight"), duration: duration}
}

// Flash highlights the element and schedules its removal. Any pending
// timer is stopped and any existing overlay removed first.
func (h *Highlighter) Flash(ctx context.Context, selector string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stopTimerLocked()
	if err := h.page.ClearHighlight(ctx); err != nil {
		h.log.Debug("Clearing previous highlight failed.", zap.Error(err))
	}
	if err := h.page.Highlight(ctx, selector); err != nil {
		return err
	}

	h.timer = time.AfterFunc(h.duration, func() {
		h.mu.Lock()
		h.timer = nil
		h.mu.Unlock()

		clearCtx, cancel := context.WithTimeout(context.Background(), highlightClearTimeout)
		defer cancel()
		if err := h.page.ClearHighlight(clearCtx); err != nil {
			h.log.Debug("Auto-clearing highlight failed.",
				zap.String("selector", selector), zap.Error(err))
		}
	})
	return nil
}

// Clear removes the overlay immediately and cancels the pending timer.
func (h *Highlighter) Clear(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopTimerLocked()
	return h.page.ClearHighlight(ctx)
}

func (h *Highlighter) stopTimerLocked() {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}
