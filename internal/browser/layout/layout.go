// Package layout estimates rendered element size. Classification only needs
// a zero/non-zero answer plus rough proportions, so the measurer computes
// intrinsic content boxes: text runs scale with font metrics, replaced
// elements use their HTML size attributes or form-control intrinsics, and
// containers aggregate children by display axis. A renderer-provided hint
// attribute short-circuits the estimate with real geometry.
package layout

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/Zegnet/qandalf-agentic/internal/browser/query"
	"github.com/Zegnet/qandalf-agentic/internal/browser/style"
)

const (
	BaseFontSize  = 16.0
	lineHeight    = 1.2
	avgGlyphRatio = 0.6
)

// HintAttr carries a border-box size measured by a live renderer, as
// "WxH" with CSS pixel floats.
const HintAttr = "data-qdl-box"

// Box is an estimated border-box size.
type Box struct {
	W, H float64
}

// Empty reports a zero-area box.
func (b Box) Empty() bool { return b.W <= 0 || b.H <= 0 }

// intrinsic sizes of replaced and form elements.
var intrinsics = map[string]Box{
	"input":    {W: 170, H: 22},
	"select":   {W: 170, H: 24},
	"textarea": {W: 280, H: 66},
	"button":   {W: 64, H: 24},
	"iframe":   {W: 300, H: 150},
	"frame":    {W: 300, H: 150},
	// Unsized images still render at natural size in a real browser; a
	// small placeholder box keeps them measurable.
	"img": {W: 24, H: 24},
	"video":    {W: 300, H: 150},
	"canvas":   {W: 300, H: 150},
	"svg":      {W: 300, H: 150},
	"hr":       {W: 100, H: 2},
	"br":       {W: 0, H: BaseFontSize * lineHeight},
}

var checkboxBox = Box{W: 13, H: 13}

// Measurer computes and memoizes element boxes for one snapshot. Not safe
// for concurrent use.
type Measurer struct {
	styles *style.Resolver
	cache  map[*html.Node]Box
}

func NewMeasurer(styles *style.Resolver) *Measurer {
	return &Measurer{styles: styles, cache: make(map[*html.Node]Box)}
}

// Measure returns the estimated border-box of n. Elements with
// display:none measure zero regardless of content.
func (m *Measurer) Measure(n *html.Node) Box {
	if b, ok := m.cache[n]; ok {
		return b
	}
	b := m.measure(n)
	m.cache[n] = b
	return b
}

func (m *Measurer) measure(n *html.Node) Box {
	if n.Type == html.TextNode {
		return MeasureText(n.Data)
	}
	if n.Type != html.ElementNode {
		return Box{}
	}
	if hint, ok := parseBoxHint(query.Attr(n, HintAttr)); ok {
		return hint
	}

	computed := m.styles.Resolve(n)
	if computed.Display == "none" {
		return Box{}
	}

	tag := strings.ToLower(n.Data)
	if b, ok := m.replacedBox(n, tag); ok {
		return b
	}

	// Containers aggregate child boxes: block children stack vertically,
	// inline children flow horizontally.
	var box Box
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && strings.EqualFold(c.Data, "template") {
			continue
		}
		child := m.Measure(c)
		if child.W <= 0 && child.H <= 0 {
			continue
		}
		if c.Type == html.ElementNode && isBlockLevel(m.styles.Resolve(c).Display) {
			box.H += child.H
			box.W = maxf(box.W, child.W)
		} else {
			box.W += child.W
			box.H = maxf(box.H, child.H)
		}
	}
	return box
}

func (m *Measurer) replacedBox(n *html.Node, tag string) (Box, bool) {
	base, ok := intrinsics[tag]
	if !ok {
		return Box{}, false
	}
	if tag == "input" {
		switch strings.ToLower(query.Attr(n, "type")) {
		case "hidden":
			return Box{}, true
		case "checkbox", "radio":
			base = checkboxBox
		case "image":
			base = Box{}
		}
	}
	if w, err := strconv.ParseFloat(query.Attr(n, "width"), 64); err == nil {
		base.W = w
	}
	if h, err := strconv.ParseFloat(query.Attr(n, "height"), 64); err == nil {
		base.H = h
	}
	return base, true
}

// MeasureText estimates a text run's box using average glyph width at the
// base font size. Whitespace-only runs measure zero.
func MeasureText(text string) Box {
	collapsed := strings.Join(strings.Fields(text), " ")
	if collapsed == "" {
		return Box{}
	}
	return Box{
		W: float64(len([]rune(collapsed))) * BaseFontSize * avgGlyphRatio,
		H: BaseFontSize * lineHeight,
	}
}

func parseBoxHint(hint string) (Box, bool) {
	w, h, ok := strings.Cut(hint, "x")
	if !ok {
		return Box{}, false
	}
	wf, errW := strconv.ParseFloat(strings.TrimSpace(w), 64)
	hf, errH := strconv.ParseFloat(strings.TrimSpace(h), 64)
	if errW != nil || errH != nil {
		return Box{}, false
	}
	return Box{W: wf, H: hf}, true
}

func isBlockLevel(display string) bool {
	switch display {
	case "block", "flex", "grid", "table", "list-item", "flow-root":
		return true
	}
	return false
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
