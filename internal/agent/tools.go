package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Zegnet/qandalf-agentic/api/schemas"
	"github.com/Zegnet/qandalf-agentic/internal/browser"
	"github.com/Zegnet/qandalf-agentic/internal/browser/query"
	"github.com/Zegnet/qandalf-agentic/internal/index"
	"github.com/Zegnet/qandalf-agentic/internal/stability"
)

// pageTextLimit bounds how much visible text the text wait scans per poll.
const pageTextLimit = 1 << 16

// NavigateTo loads the url and waits for the page to settle.
func (s *Session) NavigateTo(ctx context.Context, url string) (string, error) {
	return s.run(ctx, "navigate_to", func(ctx context.Context) (string, error) {
		if err := s.page.Navigate(ctx, url); err != nil {
			return "", err
		}
		return fmt.Sprintf("Successfully navigated to %s", s.page.CurrentURL()), nil
	})
}

// GetPageContent snapshots the current scope and renders the interactive
// element registry.
func (s *Session) GetPageContent(ctx context.Context) (string, error) {
	return s.run(ctx, "get_page_content", func(ctx context.Context) (string, error) {
		_, snap, err := s.snapshot(ctx)
		if err != nil {
			return "", err
		}
		return index.Render(snap), nil
	})
}

// ElementClick highlights and clicks the element.
func (s *Session) ElementClick(ctx context.Context, selector string) (string, error) {
	return s.run(ctx, "element_click", func(ctx context.Context) (string, error) {
		s.flash(ctx, selector)
		if err := s.page.Click(ctx, selector); err != nil {
			return "", err
		}
		return fmt.Sprintf("Clicked element %q", selector), nil
	})
}

// ElementType highlights the element and replaces its value with text.
func (s *Session) ElementType(ctx context.Context, selector, text string) (string, error) {
	return s.run(ctx, "element_type", func(ctx context.Context) (string, error) {
		s.flash(ctx, selector)
		if err := s.page.Type(ctx, selector, text); err != nil {
			return "", err
		}
		return fmt.Sprintf("Typed %d characters into %q", len(text), selector), nil
	})
}

// ElementSelectOption selects the options matching the given values or
// visible texts.
func (s *Session) ElementSelectOption(ctx context.Context, selector string, values []string) (string, error) {
	return s.run(ctx, "element_select_option", func(ctx context.Context) (string, error) {
		s.flash(ctx, selector)
		if err := s.page.SelectOptions(ctx, selector, values); err != nil {
			return "", err
		}
		return fmt.Sprintf("Selected %s in %q", strings.Join(values, ", "), selector), nil
	})
}

// WaitForElement polls until the selector resolves somewhere in the
// document or any shadow root.
func (s *Session) WaitForElement(ctx context.Context, selector string, timeout time.Duration) (string, error) {
	return s.run(ctx, "wait_for_element", func(ctx context.Context) (string, error) {
		cond := stability.Condition{
			Check: func(ctx context.Context) (bool, error) {
				state, err := s.page.State(ctx)
				if err != nil {
					return false, err
				}
				if _, err := query.Deep(state.Doc, state.Registry, selector); err != nil {
					if errors.Is(err, schemas.ErrElementNotFound) {
						return false, nil
					}
					return false, err
				}
				return true, nil
			},
			Interval: s.cfg.WaitInterval,
			Timeout:  s.timeoutOr(timeout),
			Clock:    s.clock,
		}
		res, err := cond.Run(ctx)
		if err != nil {
			return "", err
		}
		if !res.Stable() {
			return "", schemas.SelectorTimeoutError(selector, s.timeoutOr(timeout).Milliseconds())
		}
		return fmt.Sprintf("Element %q is present (after %d polls)", selector, res.Polls), nil
	})
}

// WaitForTimeout sleeps for the requested duration.
func (s *Session) WaitForTimeout(ctx context.Context, d time.Duration) (string, error) {
	return s.run(ctx, "wait_for_timeout", func(ctx context.Context) (string, error) {
		if err := s.clock.Sleep(ctx, d); err != nil {
			return "", err
		}
		return fmt.Sprintf("Waited %v", d), nil
	})
}

// WaitForPageLoad polls the interactive-element count until it is
// non-zero and unchanged across the configured number of polls.
func (s *Session) WaitForPageLoad(ctx context.Context) (string, error) {
	return s.run(ctx, "wait_for_page_load", func(ctx context.Context) (string, error) {
		mon := stability.PageLoadMonitor{
			Probe: func(ctx context.Context) (int, error) {
				_, snap, err := s.snapshot(ctx)
				if err != nil {
					return 0, err
				}
				return len(snap.Records), nil
			},
			WaitIdle:    s.page.WaitIdle,
			Interval:    s.cfg.WaitInterval,
			Timeout:     s.cfg.WaitTimeout,
			StablePolls: s.cfg.StablePolls,
			Clock:       s.clock,
			Log:         s.log,
		}
		res, err := mon.Run(ctx)
		if err != nil {
			return "", err
		}
		if !res.Stable() {
			return "", fmt.Errorf("page did not stabilize within %v (last interactive count %d)",
				s.cfg.WaitTimeout, res.Count)
		}
		return fmt.Sprintf("Page load stabilized at %d interactive elements after %d polls",
			res.Count, res.Polls), nil
	})
}

// WaitForText polls until the text occurs (case-insensitive) in the
// visible text of the document or any shadow root.
func (s *Session) WaitForText(ctx context.Context, text string, timeout time.Duration) (string, error) {
	return s.run(ctx, "wait_for_text", func(ctx context.Context) (string, error) {
		cond := stability.Condition{
			Check: func(ctx context.Context) (bool, error) {
				state, err := s.page.State(ctx)
				if err != nil {
					return false, err
				}
				return stability.TextSearch(visibleText(state), text), nil
			},
			Interval: s.cfg.WaitInterval,
			Timeout:  s.timeoutOr(timeout),
			Clock:    s.clock,
		}
		res, err := cond.Run(ctx)
		if err != nil {
			return "", err
		}
		if !res.Stable() {
			return "", fmt.Errorf("%w: text %q did not appear within %v",
				schemas.ErrSelectorTimeout, text, s.timeoutOr(timeout))
		}
		return fmt.Sprintf("Text %q found on page", text), nil
	})
}

// WaitForAccordionExpand polls the element's aria-expanded state until it
// expands, disappears, or the timeout expires.
func (s *Session) WaitForAccordionExpand(ctx context.Context, selector string, timeout time.Duration) (string, error) {
	return s.run(ctx, "wait_for_accordion_expand", func(ctx context.Context) (string, error) {
		probe := func(ctx context.Context) (stability.AccordionState, error) {
			state, err := s.page.State(ctx)
			if err != nil {
				return stability.AccordionMissing, err
			}
			res, err := query.Deep(state.Doc, state.Registry, selector)
			if err != nil {
				if errors.Is(err, schemas.ErrElementNotFound) {
					return stability.AccordionMissing, nil
				}
				return stability.AccordionMissing, err
			}
			if strings.EqualFold(query.Attr(res.Node, "aria-expanded"), "true") {
				return stability.AccordionExpanded, nil
			}
			return stability.AccordionCollapsed, nil
		}
		cond := stability.Condition{
			Interval: s.cfg.WaitInterval,
			Timeout:  s.timeoutOr(timeout),
			Clock:    s.clock,
		}
		last, res, err := stability.AccordionWait(ctx, probe, cond)
		if err != nil {
			return "", err
		}
		switch {
		case last == stability.AccordionExpanded:
			return fmt.Sprintf("Accordion %q expanded (after %d polls)", selector, res.Polls), nil
		case last == stability.AccordionMissing:
			return fmt.Sprintf("Element %q disappeared while waiting for expansion", selector), nil
		default:
			return "", schemas.SelectorTimeoutError(selector, s.timeoutOr(timeout).Milliseconds())
		}
	})
}

// SwitchToFrame retargets subsequent tools at a frame, or back at the
// main document for "main".
func (s *Session) SwitchToFrame(ctx context.Context, target string) (string, error) {
	return s.run(ctx, "switch_to_frame", func(ctx context.Context) (string, error) {
		if err := s.page.SwitchFrame(ctx, target); err != nil {
			return "", err
		}
		if target == browser.FrameMain || target == "" {
			return "Switched to main document", nil
		}
		return fmt.Sprintf("Switched to frame %q", target), nil
	})
}

// PressKeyboardKey sends a key press to the focused element.
func (s *Session) PressKeyboardKey(ctx context.Context, key string) (string, error) {
	return s.run(ctx, "press_keyboard_key", func(ctx context.Context) (string, error) {
		if err := s.page.PressKey(ctx, key); err != nil {
			return "", err
		}
		return fmt.Sprintf("Pressed key %q", key), nil
	})
}

// UploadFile attaches a local file to a file input.
func (s *Session) UploadFile(ctx context.Context, selector, path string) (string, error) {
	return s.run(ctx, "upload_file", func(ctx context.Context) (string, error) {
		s.flash(ctx, selector)
		if err := s.page.Upload(ctx, selector, path); err != nil {
			return "", err
		}
		return fmt.Sprintf("Uploaded %s to %q", path, selector), nil
	})
}

// InspectAccessibility reports accessibility problems among the indexed
// elements, optionally restricted to one tag.
func (s *Session) InspectAccessibility(ctx context.Context, elementType string) (string, error) {
	return s.run(ctx, "inspect_accessibility", func(ctx context.Context) (string, error) {
		_, snap, err := s.snapshot(ctx)
		if err != nil {
			return "", err
		}
		return accessibilityReport(snap, elementType), nil
	})
}

// flash is the best-effort pre-action highlight; a failed highlight never
// blocks the action itself.
func (s *Session) flash(ctx context.Context, selector string) {
	if err := s.hl.Flash(ctx, selector); err != nil {
		s.log.Debug("Highlight skipped.", zap.String("selector", selector), zap.Error(err))
	}
}

func (s *Session) timeoutOr(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return s.cfg.WaitTimeout
}

// visibleText flattens the visible text of the document and every shadow
// root into one searchable string.
func visibleText(state *browser.PageState) string {
	var b strings.Builder
	b.WriteString(query.Text(state.Doc, pageTextLimit))
	if state.Registry != nil {
		for _, root := range state.Registry.Roots {
			b.WriteByte(' ')
			b.WriteString(query.Text(root.Tree, pageTextLimit))
		}
	}
	return b.String()
}
