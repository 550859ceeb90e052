// Package query evaluates parsed selectors against html.Node trees. All
// matching is scope-relative: ancestor combinators never climb past the
// scope node, and traversal never descends into <template> subtrees, so a
// shadow root container behaves as an isolated document.
package query

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/Zegnet/qandalf-agentic/internal/browser/parser"
)

// Attr returns the value of the named attribute, case-insensitive on the
// attribute name.
func Attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}
	return ""
}

// HasAttr reports whether the attribute is present at all.
func HasAttr(n *html.Node, name string) bool {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return true
		}
	}
	return false
}

// MatchesCompound reports whether the element satisfies one compound
// selector, ignoring its combinator.
func MatchesCompound(n *html.Node, s parser.SimpleSelector) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if s.Tag != "" && s.Tag != "*" && !strings.EqualFold(n.Data, s.Tag) {
		return false
	}
	if s.ID != "" && Attr(n, "id") != s.ID {
		return false
	}
	if len(s.Classes) > 0 {
		classes := strings.Fields(Attr(n, "class"))
		for _, want := range s.Classes {
			found := false
			for _, have := range classes {
				if have == want {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	for _, a := range s.Attributes {
		if !matchesAttribute(n, a) {
			return false
		}
	}
	if s.NthOfType > 0 && nthOfTypeIndex(n) != s.NthOfType {
		return false
	}
	return true
}

func matchesAttribute(n *html.Node, a parser.AttributeSelector) bool {
	if a.Operator == "" {
		return HasAttr(n, a.Name)
	}
	if !HasAttr(n, a.Name) {
		return false
	}
	val := Attr(n, a.Name)
	switch a.Operator {
	case "=":
		return val == a.Value
	case "^=":
		return a.Value != "" && strings.HasPrefix(val, a.Value)
	case "$=":
		return a.Value != "" && strings.HasSuffix(val, a.Value)
	case "*=":
		return a.Value != "" && strings.Contains(val, a.Value)
	case "~=":
		for _, f := range strings.Fields(val) {
			if f == a.Value {
				return true
			}
		}
	}
	return false
}

// nthOfTypeIndex returns the 1-based position of n among element siblings
// sharing its tag.
func nthOfTypeIndex(n *html.Node) int {
	idx := 1
	for sib := n.PrevSibling; sib != nil; sib = sib.PrevSibling {
		if sib.Type == html.ElementNode && strings.EqualFold(sib.Data, n.Data) {
			idx++
		}
	}
	return idx
}

// matchesComplex evaluates the full chain right to left, bounded by scope:
// an ancestor or sibling outside the scope subtree cannot satisfy a
// combinator.
func matchesComplex(n *html.Node, cs parser.ComplexSelector, scope *html.Node) bool {
	return matchFrom(n, cs.Parts, len(cs.Parts)-1, scope)
}

func matchFrom(n *html.Node, parts []parser.SimpleSelector, i int, scope *html.Node) bool {
	if !MatchesCompound(n, parts[i]) {
		return false
	}
	if i == 0 {
		return true
	}
	switch parts[i].Combinator {
	case parser.CombinatorChild:
		p := n.Parent
		if p == nil || !inScope(p, scope) {
			return false
		}
		return matchFrom(p, parts, i-1, scope)
	case parser.CombinatorDescendant:
		for p := n.Parent; p != nil && inScope(p, scope); p = p.Parent {
			if matchFrom(p, parts, i-1, scope) {
				return true
			}
		}
		return false
	case parser.CombinatorAdjacent:
		for sib := n.PrevSibling; sib != nil; sib = sib.PrevSibling {
			if sib.Type == html.ElementNode {
				return matchFrom(sib, parts, i-1, scope)
			}
		}
		return false
	case parser.CombinatorSibling:
		for sib := n.PrevSibling; sib != nil; sib = sib.PrevSibling {
			if sib.Type == html.ElementNode && matchFrom(sib, parts, i-1, scope) {
				return true
			}
		}
		return false
	}
	return false
}

// inScope reports whether n is the scope node or inside it. Matching uses
// this to keep combinators from escaping the scope.
func inScope(n, scope *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == scope {
			return true
		}
	}
	return false
}
