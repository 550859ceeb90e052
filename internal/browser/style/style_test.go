package style

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/Zegnet/qandalf-agentic/internal/browser/query"
	"github.com/Zegnet/qandalf-agentic/internal/browser/shadowdom"
)

func resolverFor(t *testing.T, src string) (*Resolver, *html.Node, *shadowdom.Registry) {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(src))
	require.NoError(t, err)
	reg := shadowdom.BuildRegistry(doc, 0)
	return NewResolver(doc, reg), doc, reg
}

func mustFind(t *testing.T, scope *html.Node, sel string) *html.Node {
	t.Helper()
	n, err := query.First(scope, sel)
	require.NoError(t, err)
	require.NotNil(t, n, "selector %q", sel)
	return n
}

func TestUserAgentDefaults(t *testing.T) {
	r, doc, _ := resolverFor(t, `<body><div>d</div><span>s</span><input type="hidden" name="h"><a href="/x">l</a></body>`)

	assert.Equal(t, "block", r.Resolve(mustFind(t, doc, "div")).Display)
	assert.Equal(t, "inline", r.Resolve(mustFind(t, doc, "span")).Display)
	assert.Equal(t, "none", r.Resolve(mustFind(t, doc, "input")).Display)
	assert.Equal(t, "pointer", r.Resolve(mustFind(t, doc, "a")).Cursor)
}

func TestAuthorSheetCascade(t *testing.T) {
	r, doc, _ := resolverFor(t, `<head><style>
		div { display: none; }
		div.shown { display: block; }
		#special { cursor: pointer; }
	</style></head><body>
		<div>plain</div>
		<div class="shown" id="special">special</div>
	</body>`)

	divs, err := query.All(doc, "div")
	require.NoError(t, err)
	require.Len(t, divs, 2)

	assert.Equal(t, "none", r.Resolve(divs[0]).Display)
	special := r.Resolve(divs[1])
	assert.Equal(t, "block", special.Display)
	assert.Equal(t, "pointer", special.Cursor)
}

func TestImportantBeatsInline(t *testing.T) {
	r, doc, _ := resolverFor(t, `<head><style>.force { display: none !important; }</style></head>
		<body><div class="force" style="display: block">x</div></body>`)
	assert.Equal(t, "none", r.Resolve(mustFind(t, doc, "div")).Display)
}

func TestInlineBeatsSheet(t *testing.T) {
	r, doc, _ := resolverFor(t, `<head><style>div { display: none; }</style></head>
		<body><div style="display: flex">x</div></body>`)
	assert.Equal(t, "flex", r.Resolve(mustFind(t, doc, "div")).Display)
}

func TestVisibilityAndCursorInherit(t *testing.T) {
	r, doc, _ := resolverFor(t, `<body>
		<div style="visibility: hidden; cursor: grab">
			<span id="child">hidden text</span>
			<span id="shown" style="visibility: visible">shown text</span>
		</div>
	</body>`)

	child := r.Resolve(mustFind(t, doc, "#child"))
	assert.Equal(t, "hidden", child.Visibility)
	assert.Equal(t, "grab", child.Cursor)
	assert.True(t, child.Hidden())

	shown := r.Resolve(mustFind(t, doc, "#shown"))
	assert.Equal(t, "visible", shown.Visibility)
	assert.False(t, shown.Hidden())
}

func TestOpacity(t *testing.T) {
	r, doc, _ := resolverFor(t, `<body>
		<div id="zero" style="opacity: 0">x</div>
		<div id="pct" style="opacity: 50%">x</div>
	</body>`)
	assert.True(t, r.Resolve(mustFind(t, doc, "#zero")).Hidden())
	assert.InDelta(t, 0.5, r.Resolve(mustFind(t, doc, "#pct")).Opacity, 0.001)
}

func TestShadowScopedSheets(t *testing.T) {
	r, doc, reg := resolverFor(t, `<head><style>button { cursor: help; }</style></head><body>
		<w-c><template shadowrootmode="open">
			<style>button { cursor: pointer; }</style>
			<button id="in">in</button>
		</template></w-c>
		<button id="out">out</button>
	</body>`)

	require.Equal(t, 1, reg.Count())
	inBtn := mustFind(t, reg.Roots[0].Tree, "#in")

	// The shadow root's own sheet applies inside; the document sheet does
	// not cross the boundary.
	assert.Equal(t, "pointer", r.Resolve(inBtn).Cursor)
	assert.Equal(t, "help", r.Resolve(mustFind(t, doc, "#out")).Cursor)
}

func TestShadowInheritsFromHost(t *testing.T) {
	r, _, reg := resolverFor(t, `<body>
		<w-c style="visibility: hidden"><template shadowrootmode="open"><p id="p">text</p></template></w-c>
	</body>`)
	require.Equal(t, 1, reg.Count())
	p := mustFind(t, reg.Roots[0].Tree, "#p")
	assert.Equal(t, "hidden", r.Resolve(p).Visibility)
}

func TestHintOverridesEverything(t *testing.T) {
	r, doc, _ := resolverFor(t, `<head><style>div { display: none !important; }</style></head>
		<body><div data-qdl-style="display:block;visibility:visible;opacity:1;cursor:pointer">x</div></body>`)
	c := r.Resolve(mustFind(t, doc, "div"))
	assert.Equal(t, "block", c.Display)
	assert.Equal(t, "pointer", c.Cursor)
	assert.False(t, c.Hidden())
}
