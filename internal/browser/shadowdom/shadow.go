// Package shadowdom instantiates declarative shadow roots found in a parsed
// document and tracks every instantiated root in a registry. A host is an
// element whose first element child is <template shadowrootmode="open|closed">.
// Instantiation clones the template content under a synthetic #shadow-root
// container, so shadow content never appears in the document tree itself and
// selector scopes stay isolated.
package shadowdom

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/Zegnet/qandalf-agentic/internal/browser/parser"
)

// ShadowRootContainer is the Data of the synthetic element wrapping
// instantiated shadow content.
const ShadowRootContainer = "#shadow-root"

// Root is one instantiated shadow root.
type Root struct {
	Host  *html.Node
	Tree  *html.Node // #shadow-root container; Parent is nil
	Mode  string     // "open" or "closed"
	Depth int        // nesting depth, 1 for document-level hosts
	// Styles holds sheets from <style> elements inside this root, scoped to
	// the root only.
	Styles []parser.StyleSheet
}

// Registry holds every shadow root of a document in depth-first discovery
// order, the same order the element walker visits scopes in.
type Registry struct {
	Roots  []*Root
	byTree map[*html.Node]*Root
	byHost map[*html.Node]*Root
}

// DefaultMaxDepth bounds nested shadow root expansion.
const DefaultMaxDepth = 16

// IsHost reports whether n carries a declarative shadow root: its first
// element child is a template with a valid shadowrootmode attribute.
func IsHost(n *html.Node) bool {
	return templateOf(n) != nil
}

func templateOf(n *html.Node) *html.Node {
	if n == nil || n.Type != html.ElementNode {
		return nil
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if strings.EqualFold(c.Data, "template") && shadowMode(c) != "" {
			return c
		}
		return nil // first element child is not a shadow template
	}
	return nil
}

func shadowMode(tmpl *html.Node) string {
	mode := strings.ToLower(attr(tmpl, "shadowrootmode"))
	if mode == "open" || mode == "closed" {
		return mode
	}
	return ""
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}
	return ""
}

// Instantiate clones the host's template content into a fresh #shadow-root
// container and collects the root's own style sheets. Returns nil if the
// host has no declarative shadow template.
func Instantiate(host *html.Node) *Root {
	tmpl := templateOf(host)
	if tmpl == nil {
		return nil
	}
	container := &html.Node{Type: html.ElementNode, Data: ShadowRootContainer}
	// Template content is either under the parser's synthetic content node
	// or directly under the template element.
	src := tmpl
	r := &Root{Host: host, Tree: container, Mode: shadowMode(tmpl)}
	for c := src.FirstChild; c != nil; c = c.NextSibling {
		clone := cloneTree(c)
		container.AppendChild(clone)
	}
	for _, styleText := range collectStyleText(container) {
		r.Styles = append(r.Styles, parser.ParseSheet(styleText))
	}
	return r
}

func cloneTree(n *html.Node) *html.Node {
	clone := &html.Node{
		Type:     n.Type,
		DataAtom: n.DataAtom,
		Data:     n.Data,
		Attr:     append([]html.Attribute(nil), n.Attr...),
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		clone.AppendChild(cloneTree(c))
	}
	return clone
}

func collectStyleText(scope *html.Node) []string {
	var sheets []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && strings.EqualFold(n.Data, "style") {
			var b strings.Builder
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					b.WriteString(c.Data)
				}
			}
			sheets = append(sheets, b.String())
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(scope)
	return sheets
}

// BuildRegistry walks the document, instantiates every declarative shadow
// root and recursively expands roots nested inside shadow content, bounded
// by maxDepth (<=0 means DefaultMaxDepth).
func BuildRegistry(doc *html.Node, maxDepth int) *Registry {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	reg := &Registry{
		byTree: make(map[*html.Node]*Root),
		byHost: make(map[*html.Node]*Root),
	}
	reg.expand(doc, 0, maxDepth)
	return reg
}

func (reg *Registry) expand(scope *html.Node, depth, maxDepth int) {
	if depth >= maxDepth {
		return
	}
	for _, host := range hostsIn(scope) {
		root := Instantiate(host)
		if root == nil {
			continue
		}
		root.Depth = depth + 1
		reg.Roots = append(reg.Roots, root)
		reg.byTree[root.Tree] = root
		reg.byHost[root.Host] = root
		reg.expand(root.Tree, depth+1, maxDepth)
	}
}

// hostsIn returns shadow hosts under scope in document order, without
// descending into template content.
func hostsIn(scope *html.Node) []*html.Node {
	var hosts []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if strings.EqualFold(n.Data, "template") {
				return
			}
			if IsHost(n) {
				hosts = append(hosts, n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(scope)
	return hosts
}

// Count returns the number of instantiated roots.
func (reg *Registry) Count() int { return len(reg.Roots) }

// ByHost returns the root attached to host, or nil.
func (reg *Registry) ByHost(host *html.Node) *Root {
	return reg.byHost[host]
}

// ByTree returns the root whose container is tree, or nil.
func (reg *Registry) ByTree(tree *html.Node) *Root {
	return reg.byTree[tree]
}

// RootOf returns the shadow root owning n, or nil when n lives in the
// document tree. It walks n's parent chain to its detached top and checks
// whether that top is a registered container.
func (reg *Registry) RootOf(n *html.Node) *Root {
	top := n
	for top.Parent != nil {
		top = top.Parent
	}
	return reg.byTree[top]
}

// ParentAcrossBoundary returns n's parent element, hopping from a shadow
// root container to its host so ancestor walks can cross the boundary.
func (reg *Registry) ParentAcrossBoundary(n *html.Node) *html.Node {
	p := n.Parent
	if p == nil {
		if root := reg.byTree[n]; root != nil {
			return root.Host
		}
		return nil
	}
	if p.Type == html.ElementNode && p.Data == ShadowRootContainer {
		if root := reg.byTree[p]; root != nil {
			return root.Host
		}
	}
	return p
}
