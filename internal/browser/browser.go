// Package browser defines the page abstraction shared by the two engines:
// the static pure-Go engine and the live CDP engine. The agent tool layer
// only ever talks to Page.
package browser

import (
	"context"

	"golang.org/x/net/html"

	"github.com/Zegnet/qandalf-agentic/internal/browser/shadowdom"
)

// PageState is one consistent view of the current document: the parsed
// tree, its instantiated shadow roots, and the address it came from.
type PageState struct {
	Doc      *html.Node
	Registry *shadowdom.Registry
	URL      string
}

// Page is a navigable document with selector-addressed actions. All
// methods block until completion or context expiry; callers serialize
// access per session.
type Page interface {
	// Navigate loads the url and replaces the current document. It resets
	// the frame pointer to the main document.
	Navigate(ctx context.Context, url string) error

	// State returns the current scope's document view: the main document,
	// or the switched-to frame's.
	State(ctx context.Context) (*PageState, error)

	// CurrentURL reports the address of the current scope without I/O.
	CurrentURL() string

	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	SelectOptions(ctx context.Context, selector string, values []string) error
	Upload(ctx context.Context, selector, path string) error
	PressKey(ctx context.Context, key string) error

	// SwitchFrame changes the current scope. Target is a frame selector,
	// name, zero-based index, or "main" to return to the top document.
	SwitchFrame(ctx context.Context, target string) error
	// FrameNames lists switchable frames of the main document.
	FrameNames(ctx context.Context) ([]string, error)

	Highlight(ctx context.Context, selector string) error
	ClearHighlight(ctx context.Context) error

	// WaitIdle blocks until the page's network activity settles. Best
	// effort: engines may return an error the caller is free to ignore.
	WaitIdle(ctx context.Context) error

	Close(ctx context.Context) error
}

// FrameMain is the SwitchFrame target restoring the top document.
const FrameMain = "main"
