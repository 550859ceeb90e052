package index

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/Zegnet/qandalf-agentic/internal/browser/parser"
	"github.com/Zegnet/qandalf-agentic/internal/browser/query"
	"github.com/Zegnet/qandalf-agentic/internal/browser/shadowdom"
)

// maxPathSegments bounds the ancestor walk of path synthesis.
const maxPathSegments = 32

// Synthesize produces the scope-relative selector for n. scope is the
// query root the selector will be evaluated against: the document for
// light DOM nodes, the owning shadow root container for shadow nodes.
//
// An element id short-circuits to "#id". Document-level ids are only
// trusted when unique document-wide; inside a shadow root any id is
// accepted, since the scope is already encapsulated. Otherwise the path is
// built upward with tag segments, adding :nth-of-type(n) only when the tag
// is ambiguous among siblings, and terminates early at the first ancestor
// carrying an id. A selector that could name more than one node in the
// scope would let a later action land on the wrong element, so the path is
// re-queried before it is returned; when it does not resolve back to n
// alone, a full chain anchored at the scope root with every segment
// position-pinned replaces it.
func Synthesize(n *html.Node, scope *html.Node, inShadow bool) string {
	if id := query.Attr(n, "id"); id != "" && usableID(id) {
		if inShadow || idUnique(scope, id) {
			return "#" + id
		}
	}
	sel := buildPath(n, scope, inShadow, false)
	if resolvesUniquely(sel, scope, n) {
		return sel
	}
	return buildPath(n, scope, inShadow, true)
}

// buildPath walks from n toward scope collecting path segments. The short
// form stops at the nearest id-bearing ancestor or at body, and pins
// position only where the tag repeats among siblings. The pinned form
// keeps walking to the scope root and pins every segment, which anchors
// the chain when the short form collides with an equal tag path in a
// sibling subtree.
func buildPath(n *html.Node, scope *html.Node, inShadow, pinned bool) string {
	var segments []string
	cur := n
	for len(segments) < maxPathSegments {
		segments = append(segments, segmentFor(cur, pinned))
		parent := cur.Parent
		if parent == nil || parent == scope || parent.Type != html.ElementNode {
			break
		}
		if parent.Data == shadowdom.ShadowRootContainer {
			break
		}
		if !pinned {
			tag := strings.ToLower(parent.Data)
			if tag == "body" || tag == "html" {
				break
			}
		}
		if id := query.Attr(parent, "id"); id != "" && usableID(id) {
			if !pinned || inShadow || idUnique(scope, id) {
				segments = append(segments, "#"+id)
				break
			}
		}
		cur = parent
	}

	// The walk collected leaf-first.
	for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
		segments[i], segments[j] = segments[j], segments[i]
	}
	return strings.Join(segments, " > ")
}

func resolvesUniquely(sel string, scope *html.Node, n *html.Node) bool {
	group, err := parser.ParseSelectorList(sel)
	if err != nil {
		return false
	}
	matches := query.AllParsed(scope, group)
	return len(matches) == 1 && matches[0] == n
}

func segmentFor(n *html.Node, pinned bool) string {
	tag := strings.ToLower(n.Data)
	if pinned {
		return fmt.Sprintf("%s:nth-of-type(%d)", tag, nthOfType(n))
	}
	count := 0
	for sib := firstSibling(n); sib != nil; sib = sib.NextSibling {
		if sib.Type == html.ElementNode && strings.EqualFold(sib.Data, n.Data) {
			count++
			if count > 1 {
				break
			}
		}
	}
	if count > 1 {
		return fmt.Sprintf("%s:nth-of-type(%d)", tag, nthOfType(n))
	}
	return tag
}

func firstSibling(n *html.Node) *html.Node {
	if n.Parent != nil {
		return n.Parent.FirstChild
	}
	return n
}

func nthOfType(n *html.Node) int {
	idx := 1
	for sib := n.PrevSibling; sib != nil; sib = sib.PrevSibling {
		if sib.Type == html.ElementNode && strings.EqualFold(sib.Data, n.Data) {
			idx++
		}
	}
	return idx
}

// usableID rejects ids that would not survive a round trip through the
// selector parser (spaces, leading digits, CSS metacharacters).
func usableID(id string) bool {
	if id == "" || id[0] >= '0' && id[0] <= '9' {
		return false
	}
	for i := 0; i < len(id); i++ {
		b := id[i]
		ok := b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' ||
			b == '-' || b == '_' || b >= 0x80
		if !ok {
			return false
		}
	}
	return true
}

func idUnique(scope *html.Node, id string) bool {
	count := 0
	query.Walk(scope, func(n *html.Node) bool {
		if query.Attr(n, "id") == id {
			count++
		}
		return count < 2
	})
	return count == 1
}
