package index

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/Zegnet/qandalf-agentic/internal/browser/query"
	"github.com/Zegnet/qandalf-agentic/internal/browser/shadowdom"
)

const (
	labelMaxLen        = 80
	contextMaxLen      = 60
	siblingLookback    = 3
	containerWalkDepth = 10
)

var containerTags = map[string]bool{
	"form": true, "fieldset": true, "section": true, "article": true,
	"nav": true, "aside": true, "header": true, "footer": true,
	"main": true, "dialog": true, "table": true, "details": true,
}

var headingSelector = "h1, h2, h3, h4, h5, h6, legend, caption, summary"

var formControlTags = map[string]bool{
	"input": true, "select": true, "textarea": true, "button": true,
}

// Enricher derives human-readable labels and container context for
// records. It shares the snapshot's shadow registry so ancestor walks can
// stop at (or hop across) boundaries.
type Enricher struct {
	reg *shadowdom.Registry
}

func NewEnricher(reg *shadowdom.Registry) *Enricher {
	return &Enricher{reg: reg}
}

// Label resolves the display label for n. Resolution order: own visible
// text, aria-label, title, alt, data-label, then for empty form controls
// the associated or surrounding label text.
func (e *Enricher) Label(n *html.Node, scope *html.Node) string {
	if text := query.Text(n, labelMaxLen); text != "" {
		return text
	}
	for _, attrName := range []string{"aria-label", "title", "alt", "data-label"} {
		if v := strings.TrimSpace(query.Attr(n, attrName)); v != "" {
			return truncate(v, labelMaxLen)
		}
	}
	if !formControlTags[strings.ToLower(n.Data)] {
		return ""
	}
	if text := e.associatedLabel(n, scope); text != "" {
		return text
	}
	if text := e.enclosingLabel(n); text != "" {
		return text
	}
	if text := precedingSiblingText(n); text != "" {
		return text
	}
	return parentPrecedingText(n)
}

// associatedLabel finds <label for=id> within the same scope.
func (e *Enricher) associatedLabel(n, scope *html.Node) string {
	id := query.Attr(n, "id")
	if id == "" || scope == nil {
		return ""
	}
	var found string
	query.Walk(scope, func(el *html.Node) bool {
		if strings.EqualFold(el.Data, "label") && query.Attr(el, "for") == id {
			found = query.Text(el, labelMaxLen)
			return false
		}
		return true
	})
	return found
}

func (e *Enricher) enclosingLabel(n *html.Node) string {
	p := n.Parent
	for i := 0; p != nil && i < containerWalkDepth; i++ {
		if p.Type == html.ElementNode && strings.EqualFold(p.Data, "label") {
			return query.Text(p, labelMaxLen)
		}
		p = p.Parent
	}
	return ""
}

// precedingSiblingText scans a bounded window of previous element siblings
// for short text.
func precedingSiblingText(n *html.Node) string {
	seen := 0
	for sib := n.PrevSibling; sib != nil && seen < siblingLookback; sib = sib.PrevSibling {
		if sib.Type != html.ElementNode {
			continue
		}
		seen++
		if text := query.Text(sib, labelMaxLen); text != "" && len(text) <= labelMaxLen {
			return text
		}
	}
	return ""
}

// parentPrecedingText checks the element immediately before the parent
// container, a common layout for label-above-field forms.
func parentPrecedingText(n *html.Node) string {
	p := n.Parent
	if p == nil {
		return ""
	}
	for sib := p.PrevSibling; sib != nil; sib = sib.PrevSibling {
		if sib.Type == html.ElementNode {
			return query.Text(sib, labelMaxLen)
		}
	}
	return ""
}

// Context walks ancestors for a container-like element and extracts its
// title: a heading descendant, a title/aria-label attribute, or the
// container's own first short text line. Crossing into a shadow root's top
// falls back to the host's first text line.
func (e *Enricher) Context(n *html.Node) string {
	p := e.parent(n)
	for i := 0; p != nil && i < containerWalkDepth; i++ {
		if p.Type == html.ElementNode {
			if p.Data == shadowdom.ShadowRootContainer {
				break
			}
			if containerTags[strings.ToLower(p.Data)] {
				if title := containerTitle(p); title != "" {
					return title
				}
			}
		}
		next := e.parent(p)
		if next != nil && e.reg != nil {
			// Crossing out of a shadow root: describe the host instead of
			// continuing into the light DOM.
			if root := e.reg.RootOf(p); root != nil && e.reg.RootOf(next) == nil {
				return firstTextLine(root.Host)
			}
		}
		p = next
	}
	return ""
}

func (e *Enricher) parent(n *html.Node) *html.Node {
	if e.reg != nil {
		return e.reg.ParentAcrossBoundary(n)
	}
	return n.Parent
}

func containerTitle(container *html.Node) string {
	if h, err := query.First(container, headingSelector); err == nil && h != nil {
		if text := query.Text(h, contextMaxLen); text != "" {
			return text
		}
	}
	for _, attrName := range []string{"aria-label", "title"} {
		if v := strings.TrimSpace(query.Attr(container, attrName)); v != "" {
			return truncate(v, contextMaxLen)
		}
	}
	if line := firstTextLine(container); line != "" {
		return line
	}
	return ""
}

// firstTextLine returns the first direct-ish text run of n when it is
// short enough to be a title rather than body copy.
func firstTextLine(n *html.Node) string {
	if n == nil {
		return ""
	}
	var found string
	var rec func(*html.Node) bool
	rec = func(cur *html.Node) bool {
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.TextNode:
				if text := strings.Join(strings.Fields(c.Data), " "); text != "" {
					found = text
					return false
				}
			case html.ElementNode:
				switch strings.ToLower(c.Data) {
				case "script", "style", "template", "noscript":
					continue
				}
				if !rec(c) {
					return false
				}
			}
		}
		return true
	}
	rec(n)
	if len(found) > contextMaxLen {
		return ""
	}
	return found
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
