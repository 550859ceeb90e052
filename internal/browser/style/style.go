// Package style resolves the computed display, visibility, opacity and
// cursor of elements from user-agent defaults, scoped author sheets, inline
// style attributes, and serializer hints. Visibility and cursor inherit
// through the parent chain; crossing a shadow boundary inherits from the
// host element.
package style

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/Zegnet/qandalf-agentic/internal/browser/parser"
	"github.com/Zegnet/qandalf-agentic/internal/browser/query"
	"github.com/Zegnet/qandalf-agentic/internal/browser/shadowdom"
)

// HintAttr carries computed style resolved by a live renderer, serialized
// as "display:block;visibility:visible;opacity:1;cursor:pointer". When
// present it overrides the cascade entirely for that element.
const HintAttr = "data-qdl-style"

// Computed is the resolved style of one element.
type Computed struct {
	Display    string
	Visibility string
	Opacity    float64
	Cursor     string
}

// Hidden reports whether the computed style alone hides the element.
func (c Computed) Hidden() bool {
	return c.Display == "none" || c.Visibility == "hidden" ||
		c.Visibility == "collapse" || c.Opacity <= 0
}

// userAgentCSS approximates the defaults that matter for interactivity
// classification.
const userAgentCSS = `
	head, script, style, meta, link, title, template, noscript { display: none }
	[hidden] { display: none }
	input[type=hidden] { display: none }
	a[href] { cursor: pointer }
	div, p, h1, h2, h3, h4, h5, h6, ul, ol, li, form, fieldset, section,
	article, nav, aside, header, footer, main, table, figure, blockquote,
	details, summary, dialog { display: block }
	span, a, b, i, em, strong, small, label, img, button, input, select,
	textarea { display: inline }
`

var uaSheet = parser.ParseSheet(userAgentCSS)

// Resolver caches computed styles per node for one snapshot. It is not
// safe for concurrent use.
type Resolver struct {
	docSheets []parser.StyleSheet
	reg       *shadowdom.Registry
	cache     map[*html.Node]Computed
}

// NewResolver builds a resolver for a parsed document. Document-level
// sheets come from <style> elements outside any shadow root; each shadow
// root's own sheets are taken from the registry and scoped to that root.
func NewResolver(doc *html.Node, reg *shadowdom.Registry) *Resolver {
	r := &Resolver{reg: reg, cache: make(map[*html.Node]Computed)}
	collectSheets(doc, &r.docSheets)
	return r
}

func collectSheets(doc *html.Node, out *[]parser.StyleSheet) {
	var rec func(*html.Node)
	rec = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if strings.EqualFold(n.Data, "template") {
				return
			}
			if strings.EqualFold(n.Data, "style") {
				var b strings.Builder
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					if c.Type == html.TextNode {
						b.WriteString(c.Data)
					}
				}
				*out = append(*out, parser.ParseSheet(b.String()))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			rec(c)
		}
	}
	rec(doc)
}

// Resolve returns the computed style of n, consulting the cache first.
func (r *Resolver) Resolve(n *html.Node) Computed {
	if c, ok := r.cache[n]; ok {
		return c
	}
	c := r.compute(n)
	r.cache[n] = c
	return c
}

func (r *Resolver) compute(n *html.Node) Computed {
	own := r.OwnStyle(n)

	c := Computed{
		Display:    valueOr(own, parser.PropDisplay, defaultFor(n, parser.PropDisplay)),
		Visibility: valueOr(own, parser.PropVisibility, ""),
		Opacity:    1,
		Cursor:     valueOr(own, parser.PropCursor, ""),
	}
	if o, ok := own[parser.PropOpacity]; ok {
		c.Opacity = parseOpacity(o)
	}
	// visibility and cursor inherit.
	if c.Visibility == "" || c.Visibility == "inherit" || c.Cursor == "" || c.Cursor == "inherit" {
		parent := r.parentOf(n)
		var pc Computed
		if parent != nil {
			pc = r.Resolve(parent)
		} else {
			pc = Computed{Visibility: "visible", Opacity: 1, Cursor: "auto"}
		}
		if c.Visibility == "" || c.Visibility == "inherit" {
			c.Visibility = pc.Visibility
		}
		if c.Cursor == "" || c.Cursor == "inherit" {
			c.Cursor = pc.Cursor
		}
	}
	if c.Visibility == "" {
		c.Visibility = "visible"
	}
	if c.Cursor == "" {
		c.Cursor = "auto"
	}
	return c
}

func (r *Resolver) parentOf(n *html.Node) *html.Node {
	var p *html.Node
	if r.reg != nil {
		p = r.reg.ParentAcrossBoundary(n)
	} else {
		p = n.Parent
	}
	for p != nil && p.Type != html.ElementNode {
		p = p.Parent
	}
	return p
}

// OwnStyle cascades the declarations that apply directly to n, without
// inheritance: serializer hint, then inline style, then scoped author
// sheets by specificity, then user-agent defaults.
func (r *Resolver) OwnStyle(n *html.Node) map[parser.Property]string {
	out := make(map[parser.Property]string, 4)

	type applied struct {
		value       string
		origin      int // 0 UA, 1 author, 2 inline, 3 hint
		specificity int
		position    int
		important   bool
	}
	best := make(map[parser.Property]applied, 4)

	consider := func(p parser.Property, a applied) {
		cur, ok := best[p]
		if !ok {
			best[p] = a
			return
		}
		if a.important != cur.important {
			if a.important {
				best[p] = a
			}
			return
		}
		if a.origin != cur.origin {
			if a.origin > cur.origin {
				best[p] = a
			}
			return
		}
		if a.specificity > cur.specificity ||
			a.specificity == cur.specificity && a.position >= cur.position {
			best[p] = a
		}
	}

	scope, sheets := r.scopeFor(n)
	applySheet := func(sheet parser.StyleSheet, origin int) {
		for _, rule := range sheet.Rules {
			matchSpec := -1
			for _, cs := range rule.Selectors {
				if query.Matches(n, parser.SelectorGroup{cs}, scope) {
					if s := cs.Specificity(); s > matchSpec {
						matchSpec = s
					}
				}
			}
			if matchSpec < 0 {
				continue
			}
			for _, d := range rule.Declarations {
				consider(d.Property, applied{
					value: d.Value, origin: origin,
					specificity: matchSpec, position: rule.Position,
					important: d.Important,
				})
			}
		}
	}

	applySheet(uaSheet, 0)
	for _, sheet := range sheets {
		applySheet(sheet, 1)
	}
	for p, v := range parseInline(query.Attr(n, "style")) {
		consider(p, applied{value: v, origin: 2})
	}
	// The hint is already a computed value, so it outranks everything,
	// important declarations included.
	for p, v := range parseInline(query.Attr(n, HintAttr)) {
		consider(p, applied{value: v, origin: 3, important: true})
	}

	for p, a := range best {
		out[p] = a.value
	}
	return out
}

// scopeFor returns the selector scope and the author sheets that apply to
// n: the document's for light DOM nodes, the owning shadow root's for
// shadow content.
func (r *Resolver) scopeFor(n *html.Node) (*html.Node, []parser.StyleSheet) {
	if r.reg != nil {
		if root := r.reg.RootOf(n); root != nil {
			return root.Tree, root.Styles
		}
	}
	top := n
	for top.Parent != nil {
		top = top.Parent
	}
	return top, r.docSheets
}

func parseInline(style string) map[parser.Property]string {
	if style == "" {
		return nil
	}
	out := make(map[parser.Property]string, 4)
	for _, part := range strings.Split(style, ";") {
		name, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(value), "!important")))
		if name != "" && value != "" {
			out[parser.Property(name)] = value
		}
	}
	return out
}

func valueOr(m map[parser.Property]string, p parser.Property, fallback string) string {
	if v, ok := m[p]; ok && v != "" {
		return v
	}
	return fallback
}

func parseOpacity(v string) float64 {
	v = strings.TrimSpace(v)
	if pct, ok := strings.CutSuffix(v, "%"); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(pct), 64); err == nil {
			return f / 100
		}
		return 1
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return 1
}

func defaultFor(n *html.Node, p parser.Property) string {
	if p == parser.PropDisplay {
		return "inline"
	}
	return ""
}
