package live

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Zegnet/qandalf-agentic/api/schemas"
	"github.com/Zegnet/qandalf-agentic/internal/browser"
	"github.com/Zegnet/qandalf-agentic/internal/browser/shadowdom"
)

// Config controls the launched Chromium instance and per-operation
// timeouts.
type Config struct {
	Headless          bool
	UserAgent         string
	NavigationTimeout time.Duration
	ActionTimeout     time.Duration
	// PostLoadWait is the network quiet period WaitIdle looks for.
	PostLoadWait   time.Duration
	MaxShadowDepth int
}

func (c Config) withDefaults() Config {
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 45 * time.Second
	}
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = 15 * time.Second
	}
	if c.PostLoadWait <= 0 {
		c.PostLoadWait = 400 * time.Millisecond
	}
	if c.MaxShadowDepth <= 0 {
		c.MaxShadowDepth = shadowdom.DefaultMaxDepth
	}
	return c
}

// Page drives one Chromium tab. It satisfies browser.Page; callers
// serialize access per session.
type Page struct {
	id  string
	log *zap.Logger
	cfg Config

	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	tracker     *netTracker

	mu        sync.Mutex
	navigated bool
	frameSel  string // "" means the main document
	url       string
}

var _ browser.Page = (*Page)(nil)

// Launch starts a Chromium process and opens a fresh tab. The parent
// context bounds the browser's lifetime.
func Launch(parent context.Context, cfg Config, log *zap.Logger) (*Page, error) {
	cfg = cfg.withDefaults()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", cfg.Headless),
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	p := &Page{
		id:          uuid.NewString(),
		log:         log.Named("live"),
		cfg:         cfg,
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		tracker:     newNetTracker(),
	}
	p.tracker.listen(tabCtx)

	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("launching browser: %w", err)
	}
	p.log.Debug("Browser tab ready.", zap.String("page_id", p.id))
	return p, nil
}

// Navigate loads the url, waits for the document to be ready and the
// network to settle, and resets the frame pointer to the main document.
func (p *Page) Navigate(ctx context.Context, rawURL string) error {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return fmt.Errorf("unsupported url scheme: %q", rawURL)
	}

	start := time.Now()
	err := p.runCDP(ctx, p.cfg.NavigationTimeout,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigating to %s: %w", rawURL, err)
	}
	settleCtx, cancel := context.WithTimeout(ctx, p.cfg.PostLoadWait*4)
	defer cancel()
	if werr := p.tracker.waitQuiet(settleCtx, p.cfg.PostLoadWait); werr != nil {
		p.log.Debug("Network did not settle after navigation.",
			zap.String("url", rawURL), zap.Error(werr))
	}

	p.mu.Lock()
	p.navigated = true
	p.frameSel = ""
	p.url = rawURL
	p.mu.Unlock()

	p.log.Info("Navigation complete.",
		zap.String("url", rawURL), zap.Duration("elapsed", time.Since(start)))
	return nil
}

// State serializes the current scope's DOM, shadow roots included, and
// parses it back into the shared document model.
func (p *Page) State(ctx context.Context) (*browser.PageState, error) {
	frameSel, err := p.scope()
	if err != nil {
		return nil, err
	}

	var raw string
	if err := p.eval(ctx, serializeScript(frameSel), &raw); err != nil {
		return nil, fmt.Errorf("serializing page: %w", err)
	}
	if raw == "" {
		return nil, fmt.Errorf("frame %q is gone: %w", frameSel, schemas.ErrSessionUnavailable)
	}

	doc, err := htmlquery.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing serialized page: %w", err)
	}
	reg := shadowdom.BuildRegistry(doc, p.cfg.MaxShadowDepth)

	loc, err := p.location(ctx, frameSel)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.url = loc
	p.mu.Unlock()

	return &browser.PageState{Doc: doc, Registry: reg, URL: loc}, nil
}

// CurrentURL reports the last observed address of the current scope.
func (p *Page) CurrentURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// Click prefers the native CDP click, which produces trusted input
// events, and falls back to a shadow-aware script click when the
// selector is not reachable by a plain query.
func (p *Page) Click(ctx context.Context, selector string) error {
	frameSel, err := p.scope()
	if err != nil {
		return err
	}

	if frameSel == "" {
		nerr := p.runCDP(ctx, p.cfg.ActionTimeout,
			chromedp.ScrollIntoView(selector, chromedp.ByQuery),
			chromedp.Click(selector, chromedp.ByQuery),
		)
		if nerr == nil {
			return nil
		}
		p.log.Debug("Native click failed, trying shadow fallback.",
			zap.String("selector", selector), zap.Error(nerr))
	}
	return p.runScriptAction(ctx, frameSel, selector, "click", nil)
}

// Type replaces the element's value through the native value setter so
// framework change listeners observe the edit.
func (p *Page) Type(ctx context.Context, selector, text string) error {
	frameSel, err := p.scope()
	if err != nil {
		return err
	}
	return p.runScriptAction(ctx, frameSel, selector, "type", text)
}

// SelectOptions marks the options matching the given values or visible
// texts as selected.
func (p *Page) SelectOptions(ctx context.Context, selector string, values []string) error {
	frameSel, err := p.scope()
	if err != nil {
		return err
	}

	var exists bool
	if err := p.eval(ctx, existsScript(frameSel, selector), &exists); err != nil {
		return schemas.ActionFailureError("select_option", selector, err)
	}
	if !exists {
		return schemas.ElementNotFoundError(selector)
	}

	var ok bool
	if err := p.eval(ctx, actionScript(frameSel, selector, "select", values), &ok); err != nil {
		return schemas.ActionFailureError("select_option", selector, err)
	}
	if !ok {
		return schemas.ActionFailureError("select_option", selector,
			fmt.Errorf("no option matches %v", values))
	}
	return nil
}

// Upload points a file input at a local file. Only light-DOM inputs of
// the main document can receive files over CDP.
func (p *Page) Upload(ctx context.Context, selector, path string) error {
	frameSel, err := p.scope()
	if err != nil {
		return err
	}
	if frameSel != "" {
		return schemas.ActionFailureError("upload_file", selector,
			errors.New("file upload inside a frame is not supported"))
	}

	info, err := os.Stat(path)
	if err != nil {
		return schemas.ActionFailureError("upload_file", selector, err)
	}
	if info.IsDir() {
		return schemas.ActionFailureError("upload_file", selector,
			fmt.Errorf("%s is a directory", path))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return schemas.ActionFailureError("upload_file", selector, err)
	}

	if err := p.runCDP(ctx, p.cfg.ActionTimeout,
		chromedp.SetUploadFiles(selector, []string{abs}, chromedp.ByQuery),
	); err != nil {
		var exists bool
		if p.eval(ctx, existsScript("", selector), &exists) == nil && !exists {
			return schemas.ElementNotFoundError(selector)
		}
		return schemas.ActionFailureError("upload_file", selector, err)
	}
	return nil
}

// PressKey dispatches a key press to the focused element. Named keys
// become a keyDown/keyUp pair; single printable characters go through
// the regular key event path.
func (p *Page) PressKey(ctx context.Context, key string) error {
	if _, err := p.scope(); err != nil {
		return err
	}

	if name, ok := canonicalKey(key); ok {
		err := p.runCDP(ctx, p.cfg.ActionTimeout,
			input.DispatchKeyEvent(input.KeyDown).WithKey(name),
			input.DispatchKeyEvent(input.KeyUp).WithKey(name),
		)
		if err != nil {
			return schemas.ActionFailureError("press_keyboard_key", key, err)
		}
		return nil
	}
	if len([]rune(key)) == 1 {
		if err := p.runCDP(ctx, p.cfg.ActionTimeout, chromedp.KeyEvent(key)); err != nil {
			return schemas.ActionFailureError("press_keyboard_key", key, err)
		}
		return nil
	}
	return schemas.ActionFailureError("press_keyboard_key", key,
		fmt.Errorf("unknown key %q", key))
}

// SwitchFrame retargets subsequent operations at the matching iframe,
// or back at the main document for target "main".
func (p *Page) SwitchFrame(ctx context.Context, target string) error {
	if _, err := p.scope(); err != nil {
		return err
	}
	if target == browser.FrameMain || target == "" {
		p.mu.Lock()
		p.frameSel = ""
		p.mu.Unlock()
		return nil
	}

	var sel *string
	if err := p.eval(ctx, frameResolveScript(target), &sel); err != nil {
		return fmt.Errorf("resolving frame %q: %w", target, err)
	}
	if sel == nil || *sel == "" {
		names, _ := p.FrameNames(ctx)
		return fmt.Errorf("frame not found: %q (available: %s)",
			target, strings.Join(names, ", "))
	}

	p.mu.Lock()
	p.frameSel = *sel
	p.mu.Unlock()
	p.log.Debug("Switched frame.", zap.String("target", target), zap.String("selector", *sel))
	return nil
}

// FrameNames lists the switchable frames of the main document.
func (p *Page) FrameNames(ctx context.Context) ([]string, error) {
	if _, err := p.scope(); err != nil {
		return nil, err
	}
	var names []string
	if err := p.eval(ctx, frameListScript, &names); err != nil {
		return nil, fmt.Errorf("listing frames: %w", err)
	}
	return names, nil
}

// Highlight draws the single overlay over the element. Any previous
// overlay is removed first.
func (p *Page) Highlight(ctx context.Context, selector string) error {
	frameSel, err := p.scope()
	if err != nil {
		return err
	}
	var ok bool
	if err := p.eval(ctx, highlightScript(frameSel, selector), &ok); err != nil {
		return schemas.ActionFailureError("highlight", selector, err)
	}
	if !ok {
		return schemas.ElementNotFoundError(selector)
	}
	return nil
}

// ClearHighlight removes the overlay if one is present.
func (p *Page) ClearHighlight(ctx context.Context) error {
	if _, err := p.scope(); err != nil {
		return err
	}
	return p.eval(ctx, clearHighlightScript(), nil)
}

// WaitIdle blocks until no tracked requests are in flight and the
// network has been quiet for the configured period.
func (p *Page) WaitIdle(ctx context.Context) error {
	if _, err := p.scope(); err != nil {
		return err
	}
	return p.tracker.waitQuiet(ctx, p.cfg.PostLoadWait)
}

// Close tears down the tab and the browser process.
func (p *Page) Close(ctx context.Context) error {
	p.mu.Lock()
	p.navigated = false
	p.mu.Unlock()
	if p.tabCancel != nil {
		p.tabCancel()
	}
	if p.allocCancel != nil {
		p.allocCancel()
	}
	p.log.Debug("Browser closed.", zap.String("page_id", p.id))
	return nil
}

// scope returns the active frame selector, or ErrSessionUnavailable
// before the first navigation.
func (p *Page) scope() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.navigated {
		return "", fmt.Errorf("no page loaded: %w", schemas.ErrSessionUnavailable)
	}
	return p.frameSel, nil
}

// runScriptAction executes the shadow-aware action script and maps its
// outcome onto the shared error kinds.
func (p *Page) runScriptAction(ctx context.Context, frameSel, selector, action string, payload any) error {
	var found bool
	if err := p.eval(ctx, actionScript(frameSel, selector, action, payload), &found); err != nil {
		return schemas.ActionFailureError(action, selector, err)
	}
	if !found {
		return schemas.ElementNotFoundError(selector)
	}
	return nil
}

// runCDP executes actions on the tab context, bounded by the timeout.
// The caller's context aborts the run early; protocol calls themselves
// must carry the tab target, so the timeout derives from tabCtx.
func (p *Page) runCDP(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(p.tabCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

// eval runs a script in the tab under the action timeout.
func (p *Page) eval(ctx context.Context, script string, out any) error {
	return p.runCDP(ctx, p.cfg.ActionTimeout, chromedp.Evaluate(script, out))
}

// location reports the address of the given scope.
func (p *Page) location(ctx context.Context, frameSel string) (string, error) {
	if frameSel == "" {
		var loc string
		if err := p.runCDP(ctx, p.cfg.ActionTimeout, chromedp.Location(&loc)); err != nil {
			return "", fmt.Errorf("reading location: %w", err)
		}
		return loc, nil
	}
	script := fmt.Sprintf(`(() => {
  const fr = document.querySelector(%s);
  return fr && fr.contentDocument ? fr.contentDocument.location.href : '';
})()`, jsArg(frameSel))
	var loc string
	if err := p.eval(ctx, script, &loc); err != nil {
		return "", fmt.Errorf("reading frame location: %w", err)
	}
	return loc, nil
}

// namedKeys maps the tool-facing key aliases onto the DOM key names the
// protocol expects.
var namedKeys = map[string]string{
	"enter":      "Enter",
	"return":     "Enter",
	"tab":        "Tab",
	"escape":     "Escape",
	"esc":        "Escape",
	"backspace":  "Backspace",
	"delete":     "Delete",
	"space":      " ",
	"arrowup":    "ArrowUp",
	"arrowdown":  "ArrowDown",
	"arrowleft":  "ArrowLeft",
	"arrowright": "ArrowRight",
	"up":         "ArrowUp",
	"down":       "ArrowDown",
	"left":       "ArrowLeft",
	"right":      "ArrowRight",
	"home":       "Home",
	"end":        "End",
	"pageup":     "PageUp",
	"pagedown":   "PageDown",
}

func canonicalKey(key string) (string, bool) {
	name, ok := namedKeys[strings.ToLower(strings.TrimSpace(key))]
	return name, ok
}
