// Package static implements browser.Page without a browser process: pages
// are fetched over a plain HTTP stack, parsed into an html.Node tree with
// declarative shadow roots instantiated, and actions mutate the tree the
// way a minimal user agent would. Deterministic and dependency-free at
// runtime, it backs tests and crawl-style sessions where a real renderer
// is unnecessary.
package static

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/Zegnet/qandalf-agentic/api/schemas"
	"github.com/Zegnet/qandalf-agentic/internal/browser"
	"github.com/Zegnet/qandalf-agentic/internal/browser/network"
	"github.com/Zegnet/qandalf-agentic/internal/browser/query"
	"github.com/Zegnet/qandalf-agentic/internal/browser/shadowdom"
)

// Config tunes one static page.
type Config struct {
	Network           network.Config
	NavigationTimeout time.Duration
	PostLoadWait      time.Duration
	MaxRedirects      int
	MaxShadowDepth    int
}

func (c *Config) defaults() {
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 30 * time.Second
	}
	if c.PostLoadWait <= 0 {
		c.PostLoadWait = 150 * time.Millisecond
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = 10
	}
}

// frame is one switchable iframe of the main document.
type frame struct {
	selector string
	name     string
	src      *url.URL
}

// Page is the static engine. All exported methods lock; the engine is
// safe for the serialized access pattern the tool layer guarantees and
// tolerant of accidental concurrency.
type Page struct {
	id    string
	log   *zap.Logger
	cfg   Config
	stack *network.Stack

	mu      sync.Mutex
	doc     *html.Node
	reg     *shadowdom.Registry
	url     *url.URL
	frames  []frame
	cur     int // index into frames, -1 for main
	curDoc  *html.Node
	curReg  *shadowdom.Registry
	curURL  *url.URL
	focused *html.Node
	hilited *html.Node
}

// New builds a page with its own HTTP stack.
func New(cfg Config, log *zap.Logger) (*Page, error) {
	cfg.defaults()
	stack, err := network.NewStack(cfg.Network)
	if err != nil {
		return nil, fmt.Errorf("building http stack: %w", err)
	}
	id := uuid.NewString()
	return &Page{
		id:    id,
		log:   log.Named("static").With(zap.String("page_id", id)),
		cfg:   cfg,
		stack: stack,
		cur:   -1,
	}, nil
}

// ID returns the page's session identifier.
func (p *Page) ID() string { return p.id }

// Navigate fetches the url, following redirects manually, parses the
// document and instantiates its shadow roots. The frame pointer resets to
// the main document.
func (p *Page) Navigate(ctx context.Context, raw string) error {
	target, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parsing url %q: %w", raw, err)
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", target.Scheme)
	}

	navCtx, cancel := context.WithTimeout(ctx, p.cfg.NavigationTimeout)
	defer cancel()

	doc, final, err := p.fetchDocument(navCtx, target)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.installDocument(doc, final)
	p.log.Info("navigation complete",
		zap.String("url", final.String()), zap.Int("frames", len(p.frames)))
	return nil
}

// installDocument swaps in a freshly parsed main document. Caller holds
// the lock.
func (p *Page) installDocument(doc *html.Node, at *url.URL) {
	p.doc = doc
	p.url = at
	p.reg = shadowdom.BuildRegistry(doc, p.cfg.MaxShadowDepth)
	p.frames = discoverFrames(doc, at)
	p.cur = -1
	p.curDoc, p.curReg, p.curURL = nil, nil, nil
	p.focused = nil
	p.hilited = nil
}

// fetchDocument runs the manual redirect loop and parses the terminal
// response.
func (p *Page) fetchDocument(ctx context.Context, target *url.URL) (*html.Node, *url.URL, error) {
	current := target
	for hop := 0; ; hop++ {
		if hop > p.cfg.MaxRedirects {
			return nil, nil, fmt.Errorf("redirect limit (%d) exceeded at %s", p.cfg.MaxRedirects, current)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current.String(), nil)
		if err != nil {
			return nil, nil, err
		}
		resp, err := p.stack.Client.Do(req)
		if err != nil {
			return nil, nil, fmt.Errorf("fetching %s: %w", current, err)
		}
		next, redirected := redirectTarget(resp, current)
		if redirected {
			resp.Body.Close()
			p.log.Debug("following redirect",
				zap.String("from", current.String()), zap.String("to", next.String()))
			current = next
			continue
		}
		doc, err := htmlquery.Parse(resp.Body)
		closeErr := resp.Body.Close()
		if err != nil {
			return nil, nil, fmt.Errorf("parsing document from %s: %w", current, err)
		}
		if closeErr != nil {
			p.log.Debug("response body close failed", zap.Error(closeErr))
		}
		if resp.StatusCode >= 400 {
			p.log.Warn("navigation returned error status",
				zap.Int("status", resp.StatusCode), zap.String("url", current.String()))
		}
		return doc, current, nil
	}
}

func redirectTarget(resp *http.Response, from *url.URL) (*url.URL, bool) {
	switch resp.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
	default:
		return nil, false
	}
	loc := resp.Header.Get("Location")
	if loc == "" {
		return nil, false
	}
	next, err := url.Parse(loc)
	if err != nil {
		return nil, false
	}
	return from.ResolveReference(next), true
}

// State returns the current scope's view.
func (p *Page) State(ctx context.Context) (*browser.PageState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	doc, reg, at, err := p.scopeLocked()
	if err != nil {
		return nil, err
	}
	return &browser.PageState{Doc: doc, Registry: reg, URL: at.String()}, nil
}

// scopeLocked resolves the active document. Caller holds the lock.
func (p *Page) scopeLocked() (*html.Node, *shadowdom.Registry, *url.URL, error) {
	if p.doc == nil {
		return nil, nil, nil, fmt.Errorf("%w: no document loaded", schemas.ErrSessionUnavailable)
	}
	if p.cur >= 0 && p.curDoc != nil {
		return p.curDoc, p.curReg, p.curURL, nil
	}
	return p.doc, p.reg, p.url, nil
}

// CurrentURL reports the active scope's address, or "" before the first
// navigation.
func (p *Page) CurrentURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur >= 0 && p.curURL != nil {
		return p.curURL.String()
	}
	if p.url != nil {
		return p.url.String()
	}
	return ""
}

// WaitIdle blocks until the HTTP stack has been quiet briefly.
func (p *Page) WaitIdle(ctx context.Context) error {
	return p.stack.Idle.WaitIdle(ctx, p.cfg.PostLoadWait)
}

// SwitchFrame switches the action scope to a frame of the main document,
// fetching its src document on first use. "main" always restores the top
// document.
func (p *Page) SwitchFrame(ctx context.Context, target string) error {
	p.mu.Lock()
	if target == browser.FrameMain || target == "" {
		p.cur = -1
		p.curDoc, p.curReg, p.curURL = nil, nil, nil
		p.mu.Unlock()
		return nil
	}
	if p.doc == nil {
		p.mu.Unlock()
		return fmt.Errorf("%w: no document loaded", schemas.ErrSessionUnavailable)
	}
	idx := p.findFrameLocked(target)
	if idx < 0 {
		available := frameDescriptors(p.frames)
		p.mu.Unlock()
		return fmt.Errorf("frame not found: %q (available: %s)", target, strings.Join(available, ", "))
	}
	fr := p.frames[idx]
	p.mu.Unlock()

	if fr.src == nil {
		return fmt.Errorf("frame %q has no src document", target)
	}
	doc, final, err := p.fetchDocument(ctx, fr.src)
	if err != nil {
		return fmt.Errorf("loading frame %q: %w", target, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.cur = idx
	p.curDoc = doc
	p.curReg = shadowdom.BuildRegistry(doc, p.cfg.MaxShadowDepth)
	p.curURL = final
	p.focused = nil
	return nil
}

func (p *Page) findFrameLocked(target string) int {
	if n, err := strconv.Atoi(target); err == nil {
		if n >= 0 && n < len(p.frames) {
			return n
		}
		return -1
	}
	for i, fr := range p.frames {
		if fr.name != "" && fr.name == target {
			return i
		}
		if fr.selector == target {
			return i
		}
	}
	// Last resort: treat the target as a selector for an iframe element.
	if n, err := query.First(p.doc, target); err == nil && n != nil {
		src := query.Attr(n, "src")
		for i, fr := range p.frames {
			if fr.src != nil && src != "" && strings.HasSuffix(fr.src.String(), src) {
				return i
			}
		}
	}
	return -1
}

// FrameNames lists the switchable frames of the main document.
func (p *Page) FrameNames(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.doc == nil {
		return nil, fmt.Errorf("%w: no document loaded", schemas.ErrSessionUnavailable)
	}
	return frameDescriptors(p.frames), nil
}

func frameDescriptors(frames []frame) []string {
	out := make([]string, 0, len(frames))
	for i, fr := range frames {
		desc := fmt.Sprintf("[%d] %s", i, fr.selector)
		if fr.name != "" {
			desc += " name=" + fr.name
		}
		out = append(out, desc)
	}
	return out
}

func discoverFrames(doc *html.Node, base *url.URL) []frame {
	nodes, err := query.All(doc, "iframe, frame")
	if err != nil {
		return nil
	}
	frames := make([]frame, 0, len(nodes))
	for _, n := range nodes {
		fr := frame{
			selector: frameSelector(n, doc),
			name:     query.Attr(n, "name"),
		}
		if src := query.Attr(n, "src"); src != "" {
			if u, err := url.Parse(src); err == nil {
				fr.src = base.ResolveReference(u)
			}
		}
		frames = append(frames, fr)
	}
	return frames
}

func frameSelector(n *html.Node, doc *html.Node) string {
	if id := query.Attr(n, "id"); id != "" {
		return "#" + id
	}
	if name := query.Attr(n, "name"); name != "" {
		return fmt.Sprintf("iframe[name=%q]", name)
	}
	idx := 1
	for sib := n.PrevSibling; sib != nil; sib = sib.PrevSibling {
		if sib.Type == html.ElementNode && strings.EqualFold(sib.Data, n.Data) {
			idx++
		}
	}
	return fmt.Sprintf("%s:nth-of-type(%d)", strings.ToLower(n.Data), idx)
}

// Close shuts the HTTP stack down.
func (p *Page) Close(ctx context.Context) error {
	p.stack.Client.CloseIdleConnections()
	return nil
}
