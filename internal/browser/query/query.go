package query

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/Zegnet/qandalf-agentic/api/schemas"
	"github.com/Zegnet/qandalf-agentic/internal/browser/parser"
	"github.com/Zegnet/qandalf-agentic/internal/browser/shadowdom"
)

// All returns every element under scope matching the selector text, in
// document order. Template subtrees are skipped, so declarative shadow
// content is invisible to its enclosing scope.
func All(scope *html.Node, selector string) ([]*html.Node, error) {
	group, err := parser.ParseSelectorList(selector)
	if err != nil {
		return nil, err
	}
	return AllParsed(scope, group), nil
}

// AllParsed is All for a pre-parsed selector group.
func AllParsed(scope *html.Node, group parser.SelectorGroup) []*html.Node {
	var out []*html.Node
	Walk(scope, func(n *html.Node) bool {
		for _, cs := range group {
			if matchesComplex(n, cs, scope) {
				out = append(out, n)
				break
			}
		}
		return true
	})
	return out
}

// First returns the first matching element under scope, or nil.
func First(scope *html.Node, selector string) (*html.Node, error) {
	group, err := parser.ParseSelectorList(selector)
	if err != nil {
		return nil, err
	}
	return FirstParsed(scope, group), nil
}

// FirstParsed is First for a pre-parsed selector group.
func FirstParsed(scope *html.Node, group parser.SelectorGroup) *html.Node {
	var found *html.Node
	Walk(scope, func(n *html.Node) bool {
		for _, cs := range group {
			if matchesComplex(n, cs, scope) {
				found = n
				return false
			}
		}
		return true
	})
	return found
}

// Matches reports whether n itself satisfies the selector group within
// scope.
func Matches(n *html.Node, group parser.SelectorGroup, scope *html.Node) bool {
	for _, cs := range group {
		if matchesComplex(n, cs, scope) {
			return true
		}
	}
	return false
}

// Walk visits scope's element descendants in document order, skipping
// template subtrees. The visitor returns false to stop early.
func Walk(scope *html.Node, visit func(*html.Node) bool) {
	var rec func(*html.Node) bool
	rec = func(n *html.Node) bool {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode {
				if strings.EqualFold(c.Data, "template") {
					continue
				}
				if !visit(c) {
					return false
				}
			}
			if !rec(c) {
				return false
			}
		}
		return true
	}
	rec(scope)
}

// Result is the outcome of a shadow-aware lookup.
type Result struct {
	Node *html.Node
	// Root is non-nil when the match came from the shadow fallback search.
	Root *shadowdom.Root
}

// Deep resolves a selector the way action resolution requires: first a
// direct query against the document scope, then on miss a recursive search
// through every instantiated shadow root in discovery order. The first
// match wins.
func Deep(doc *html.Node, reg *shadowdom.Registry, selector string) (Result, error) {
	group, err := parser.ParseSelectorList(selector)
	if err != nil {
		return Result{}, err
	}
	if n := FirstParsed(doc, group); n != nil {
		return Result{Node: n}, nil
	}
	if reg != nil {
		for _, root := range reg.Roots {
			if n := FirstParsed(root.Tree, group); n != nil {
				return Result{Node: n, Root: root}, nil
			}
		}
	}
	return Result{}, schemas.ElementNotFoundError(selector)
}

// Text returns the trimmed, whitespace-collapsed text content of n,
// truncated to max runes (0 means unlimited). Script and style text is
// excluded.
func Text(n *html.Node, max int) string {
	var b strings.Builder
	var rec func(*html.Node)
	rec = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
		case html.ElementNode:
			switch strings.ToLower(n.Data) {
			case "script", "style", "template", "noscript":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			rec(c)
		}
	}
	rec(n)
	text := strings.Join(strings.Fields(b.String()), " ")
	if max > 0 {
		// Cut on rune boundaries so multibyte labels stay valid UTF-8.
		if runes := []rune(text); len(runes) > max {
			cut := runes[:max]
			for i := len(cut) - 1; i > max/2; i-- {
				if cut[i] == ' ' {
					cut = cut[:i]
					break
				}
			}
			text = string(cut) + "…"
		}
	}
	return text
}

// OwnText returns only the direct text children of n, collapsed.
func OwnText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
