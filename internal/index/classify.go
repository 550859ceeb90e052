// Package index builds the element snapshot of a page: it walks the
// document and every instantiated shadow root, classifies nodes as
// visible and interactive, synthesizes scope-relative selectors, enriches
// records with labels and container context, and renders the result as a
// compact text block.
package index

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/Zegnet/qandalf-agentic/internal/browser/layout"
	"github.com/Zegnet/qandalf-agentic/internal/browser/query"
	"github.com/Zegnet/qandalf-agentic/internal/browser/shadowdom"
	"github.com/Zegnet/qandalf-agentic/internal/browser/style"
)

// maxButtonWalk bounds the ancestor walk that decides whether a text node
// sits inside a button.
const maxButtonWalk = 6

var frameTags = map[string]bool{"iframe": true, "frame": true}

var canonicalTags = map[string]bool{
	"a": true, "button": true, "input": true,
	"select": true, "textarea": true, "label": true,
}

// textTags are the inline text carriers subject to the stricter noise
// rules of classification.
var textTags = map[string]bool{
	"span": true, "p": true, "li": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"em": true, "strong": true, "b": true, "i": true, "small": true,
}

// Verdict is the outcome of one interactivity rule.
type Verdict int

const (
	// VerdictSkip means the rule does not apply; evaluation continues.
	VerdictSkip Verdict = iota
	VerdictInclude
	VerdictExclude
)

// Rule is one interactivity predicate. Rules are evaluated in order and
// the first non-skip verdict wins.
type Rule struct {
	Name string
	Eval func(c *Classifier, n *html.Node) Verdict
}

// Classifier decides element inclusion for one snapshot.
type Classifier struct {
	styles *style.Resolver
	boxes  *layout.Measurer
	reg    *shadowdom.Registry
	rules  []Rule
}

func NewClassifier(styles *style.Resolver, boxes *layout.Measurer, reg *shadowdom.Registry) *Classifier {
	return &Classifier{styles: styles, boxes: boxes, reg: reg, rules: defaultRules()}
}

// Rules exposes the active rule list, mainly so tests can exercise rules
// individually.
func (c *Classifier) Rules() []Rule { return c.rules }

func defaultRules() []Rule {
	return []Rule{
		{Name: "frame-tag", Eval: ruleFrameTag},
		{Name: "inline-text", Eval: ruleInlineText},
		{Name: "pointer-cursor", Eval: rulePointerCursor},
		{Name: "canonical-tag", Eval: ruleCanonicalTag},
		{Name: "image", Eval: ruleImage},
		{Name: "explicit-handler", Eval: ruleExplicitHandler},
	}
}

// IsVisible applies the computed-style checks, then either the text
// presence rule for inline text tags or the positive-box rule for
// everything else.
func (c *Classifier) IsVisible(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if c.styles.Resolve(n).Hidden() {
		return false
	}
	if textTags[strings.ToLower(n.Data)] {
		// Zero-box text (transformed or clipped) still counts when it has
		// content.
		return query.Text(n, 0) != ""
	}
	return !c.boxes.Measure(n).Empty()
}

// IsInteractive runs the ordered rule list; an element no rule claims is
// not interactive.
func (c *Classifier) IsInteractive(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, r := range c.rules {
		switch r.Eval(c, n) {
		case VerdictInclude:
			return true
		case VerdictExclude:
			return false
		}
	}
	return false
}

// Include is the full inclusion gate.
func (c *Classifier) Include(n *html.Node) bool {
	return c.IsVisible(n) && c.IsInteractive(n)
}

func ruleFrameTag(_ *Classifier, n *html.Node) Verdict {
	if frameTags[strings.ToLower(n.Data)] {
		return VerdictInclude
	}
	return VerdictSkip
}

// ruleInlineText owns the whole decision for inline text carriers. It runs
// before the generic pointer rule because an inherited pointer cursor must
// not drag decorative wrapper text in.
func ruleInlineText(c *Classifier, n *html.Node) Verdict {
	if !textTags[strings.ToLower(n.Data)] {
		return VerdictSkip
	}
	text := query.Text(n, 0)
	if len([]rune(text)) < 2 {
		return VerdictExclude
	}
	if ownCursorPointer(c, n) {
		return VerdictInclude
	}
	if c.insideButton(n) {
		return VerdictExclude
	}
	if hasExplicitHandler(n) {
		return VerdictInclude
	}
	if c.reg != nil && c.reg.RootOf(n) != nil && len([]rune(text)) >= 3 {
		return VerdictInclude
	}
	return VerdictExclude
}

func rulePointerCursor(c *Classifier, n *html.Node) Verdict {
	if c.styles.Resolve(n).Cursor == "pointer" {
		return VerdictInclude
	}
	return VerdictSkip
}

func ruleCanonicalTag(_ *Classifier, n *html.Node) Verdict {
	if canonicalTags[strings.ToLower(n.Data)] {
		return VerdictInclude
	}
	return VerdictSkip
}

func ruleImage(_ *Classifier, n *html.Node) Verdict {
	if strings.EqualFold(n.Data, "img") {
		return VerdictInclude
	}
	return VerdictSkip
}

func ruleExplicitHandler(_ *Classifier, n *html.Node) Verdict {
	if hasExplicitHandler(n) {
		return VerdictInclude
	}
	return VerdictSkip
}

func hasExplicitHandler(n *html.Node) bool {
	return query.HasAttr(n, "role") || query.HasAttr(n, "onclick") || query.HasAttr(n, "tabindex")
}

// ownCursorPointer checks the element's own cascade, not the inherited
// value.
func ownCursorPointer(c *Classifier, n *html.Node) bool {
	own := c.styles.OwnStyle(n)
	return own["cursor"] == "pointer"
}

// insideButton walks a bounded number of ancestors looking for a button,
// never crossing a shadow boundary.
func (c *Classifier) insideButton(n *html.Node) bool {
	p := n.Parent
	for i := 0; p != nil && i < maxButtonWalk; i++ {
		if p.Type == html.ElementNode {
			if p.Data == shadowdom.ShadowRootContainer {
				return false
			}
			if strings.EqualFold(p.Data, "button") {
				return true
			}
		}
		p = p.Parent
	}
	return false
}
