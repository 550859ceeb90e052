package index

import (
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/Zegnet/qandalf-agentic/api/schemas"
	"github.com/Zegnet/qandalf-agentic/internal/browser/layout"
	"github.com/Zegnet/qandalf-agentic/internal/browser/query"
	"github.com/Zegnet/qandalf-agentic/internal/browser/shadowdom"
	"github.com/Zegnet/qandalf-agentic/internal/browser/style"
)

// DefaultMaxElements caps one snapshot.
const DefaultMaxElements = 400

// candidateTags is the superset of tags worth classifying at all.
var candidateTags = func() map[string]bool {
	m := map[string]bool{"img": true, "iframe": true, "frame": true}
	for t := range canonicalTags {
		m[t] = true
	}
	for t := range textTags {
		m[t] = true
	}
	return m
}()

// Snapshot is the immutable result of one walk. It is rebuilt from scratch
// on every content query and discarded after rendering.
type Snapshot struct {
	Meta    schemas.PageMeta
	Records []schemas.ElementRecord

	nodes  []*html.Node
	byNode map[*html.Node]int
}

// NodeAt returns the DOM node behind record i, or nil.
func (s *Snapshot) NodeAt(i int) *html.Node {
	if i < 0 || i >= len(s.nodes) {
		return nil
	}
	return s.nodes[i]
}

// IndexOf returns the record index for a node, or -1.
func (s *Snapshot) IndexOf(n *html.Node) int {
	if i, ok := s.byNode[n]; ok {
		return i
	}
	return -1
}

// Walker coordinates one snapshot pass.
type Walker struct {
	log         *zap.Logger
	maxElements int
}

func NewWalker(log *zap.Logger, maxElements int) *Walker {
	if maxElements <= 0 {
		maxElements = DefaultMaxElements
	}
	return &Walker{log: log, maxElements: maxElements}
}

// Capture walks doc and all instantiated shadow roots depth-first and
// builds the record list. Indices are dense in discovery order and
// parentId always references a smaller index.
func (w *Walker) Capture(doc *html.Node, url string) *Snapshot {
	return w.CaptureWith(doc, shadowdom.BuildRegistry(doc, 0), url)
}

// CaptureWith reuses an existing shadow registry, so state mutated inside
// instantiated shadow trees by earlier actions is still observable.
func (w *Walker) CaptureWith(doc *html.Node, reg *shadowdom.Registry, url string) *Snapshot {
	styles := style.NewResolver(doc, reg)
	boxes := layout.NewMeasurer(styles)
	classifier := NewClassifier(styles, boxes, reg)
	enricher := NewEnricher(reg)

	snap := &Snapshot{byNode: make(map[*html.Node]int)}
	snap.Meta.URL = url
	snap.Meta.Title = documentTitle(doc)
	snap.Meta.ShadowRoots = reg.Count()

	// Scope worklist, depth-first: the document first, then each shadow
	// root in the order its host was discovered. The registry is already
	// in that order.
	type scopeItem struct {
		tree    *html.Node
		root    *shadowdom.Root
		context string
	}
	scopes := []scopeItem{{tree: doc}}
	for _, root := range reg.Roots {
		scopes = append(scopes, scopeItem{
			tree:    root.Tree,
			root:    root,
			context: firstTextLine(root.Host),
		})
	}

	for _, sc := range scopes {
		w.collectScope(snap, sc.tree, sc.root, sc.context, classifier, enricher)
		if len(snap.Records) >= w.maxElements {
			w.log.Warn("element snapshot truncated",
				zap.Int("limit", w.maxElements), zap.String("url", url))
			break
		}
	}

	w.resolveParents(snap, reg)
	snap.Meta.ElementCount = len(snap.Records)
	snap.Meta.FrameCount = countFrames(doc)
	return snap
}

func (w *Walker) collectScope(snap *Snapshot, tree *html.Node, root *shadowdom.Root, hostContext string, classifier *Classifier, enricher *Enricher) {
	inShadow := root != nil
	query.Walk(tree, func(n *html.Node) bool {
		if len(snap.Records) >= w.maxElements {
			return false
		}
		if !isCandidate(n) || !classifier.Include(n) {
			return true
		}
		rec := buildRecord(n, tree, inShadow, enricher)
		if rec.FormContext == "" && hostContext != "" {
			rec.FormContext = hostContext
		}
		rec.Index = len(snap.Records)
		snap.byNode[n] = rec.Index
		snap.nodes = append(snap.nodes, n)
		snap.Records = append(snap.Records, rec)
		return true
	})
}

func isCandidate(n *html.Node) bool {
	if candidateTags[strings.ToLower(n.Data)] {
		return true
	}
	return hasExplicitHandler(n)
}

func buildRecord(n *html.Node, scope *html.Node, inShadow bool, enricher *Enricher) schemas.ElementRecord {
	rec := schemas.ElementRecord{
		Tag:          strings.ToLower(n.Data),
		Type:         strings.ToLower(query.Attr(n, "type")),
		Text:         enricher.Label(n, scope),
		ID:           query.Attr(n, "id"),
		Name:         query.Attr(n, "name"),
		Href:         query.Attr(n, "href"),
		Src:          query.Attr(n, "src"),
		Alt:          query.Attr(n, "alt"),
		Placeholder:  query.Attr(n, "placeholder"),
		Value:        query.Attr(n, "value"),
		AriaLabel:    query.Attr(n, "aria-label"),
		AriaExpanded: query.Attr(n, "aria-expanded"),
		Role:         query.Attr(n, "role"),
		InShadowDOM:  inShadow,
		Selector:     Synthesize(n, scope, inShadow),
		FormContext:  enricher.Context(n),
	}
	if strings.EqualFold(n.Data, "select") {
		rec.Options = extractOptions(n)
	}
	return rec
}

// extractOptions flattens a select's options in document order, carrying
// optgroup disabled state down and prefixing the group label.
func extractOptions(sel *html.Node) []schemas.SelectOption {
	var opts []schemas.SelectOption
	var rec func(n *html.Node, groupLabel string, groupDisabled bool)
	rec = func(n *html.Node, groupLabel string, groupDisabled bool) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch strings.ToLower(c.Data) {
			case "optgroup":
				rec(c, strings.TrimSpace(query.Attr(c, "label")), query.HasAttr(c, "disabled"))
			case "option":
				if groupDisabled || query.HasAttr(c, "disabled") {
					continue
				}
				text := query.Text(c, labelMaxLen)
				if groupLabel != "" {
					text = groupLabel + " / " + text
				}
				value := text
				if query.HasAttr(c, "value") {
					value = query.Attr(c, "value")
				}
				opts = append(opts, schemas.SelectOption{
					Value:    value,
					Text:     text,
					Selected: query.HasAttr(c, "selected"),
				})
			}
		}
	}
	rec(sel, "", false)
	return opts
}

// resolveParents links each record to its nearest indexed ancestor,
// hopping shadow boundaries through the registry.
func (w *Walker) resolveParents(snap *Snapshot, reg *shadowdom.Registry) {
	for i := range snap.Records {
		n := snap.nodes[i]
		for p := reg.ParentAcrossBoundary(n); p != nil; p = reg.ParentAcrossBoundary(p) {
			if idx, ok := snap.byNode[p]; ok {
				if idx < i {
					parent := idx
					snap.Records[i].ParentID = &parent
				}
				break
			}
		}
	}
}

func documentTitle(doc *html.Node) string {
	if t, err := query.First(doc, "title"); err == nil && t != nil {
		return query.Text(t, contextMaxLen)
	}
	return ""
}

func countFrames(doc *html.Node) int {
	frames, err := query.All(doc, "iframe, frame")
	if err != nil {
		return 0
	}
	return len(frames)
}
