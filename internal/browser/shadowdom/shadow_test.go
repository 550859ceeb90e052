package shadowdom

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func parseDoc(t *testing.T, src string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(src))
	require.NoError(t, err)
	return doc
}

func findTag(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findTag(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func TestIsHost(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want bool
	}{
		{
			name: "open declarative root",
			src:  `<my-widget><template shadowrootmode="open"><button>Go</button></template></my-widget>`,
			want: true,
		},
		{
			name: "closed declarative root",
			src:  `<my-widget><template shadowrootmode="closed"><p>x</p></template></my-widget>`,
			want: true,
		},
		{
			name: "mode attribute uppercase",
			src:  `<my-widget><template SHADOWROOTMODE="OPEN"><p>x</p></template></my-widget>`,
			want: true,
		},
		{
			name: "plain template is not a host",
			src:  `<my-widget><template><p>x</p></template></my-widget>`,
			want: false,
		},
		{
			name: "template not first element child",
			src:  `<my-widget><span>s</span><template shadowrootmode="open"><p>x</p></template></my-widget>`,
			want: false,
		},
		{
			name: "invalid mode value",
			src:  `<my-widget><template shadowrootmode="sealed"><p>x</p></template></my-widget>`,
			want: false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := parseDoc(t, tc.src)
			host := findTag(doc, "my-widget")
			require.NotNil(t, host)
			assert.Equal(t, tc.want, IsHost(host))
		})
	}
}

func TestInstantiate(t *testing.T) {
	doc := parseDoc(t, `<my-widget>
		<template shadowrootmode="open">
			<style>button { cursor: pointer; }</style>
			<button id="inner">Inner</button>
		</template>
		<span>light dom</span>
	</my-widget>`)
	host := findTag(doc, "my-widget")
	require.True(t, IsHost(host))

	root := Instantiate(host)
	require.NotNil(t, root)
	assert.Equal(t, "open", root.Mode)
	assert.Equal(t, ShadowRootContainer, root.Tree.Data)
	assert.Nil(t, root.Tree.Parent)

	// Content is cloned: the template's own subtree stays untouched.
	btn := findTag(root.Tree, "button")
	require.NotNil(t, btn)
	assert.NotSame(t, findTag(host, "button"), btn)

	require.Len(t, root.Styles, 1)
	require.Len(t, root.Styles[0].Rules, 1)
}

func TestBuildRegistry_Nested(t *testing.T) {
	doc := parseDoc(t, `<body>
		<outer-el>
			<template shadowrootmode="open">
				<inner-el>
					<template shadowrootmode="open"><button>deep</button></template>
				</inner-el>
			</template>
		</outer-el>
		<flat-el><template shadowrootmode="closed"><a href="/x">link</a></template></flat-el>
	</body>`)

	reg := BuildRegistry(doc, 0)
	require.Equal(t, 3, reg.Count())

	assert.Equal(t, "outer-el", reg.Roots[0].Host.Data)
	assert.Equal(t, 1, reg.Roots[0].Depth)
	assert.Equal(t, "inner-el", reg.Roots[1].Host.Data)
	assert.Equal(t, 2, reg.Roots[1].Depth)
	assert.Equal(t, "flat-el", reg.Roots[2].Host.Data)
	assert.Equal(t, 1, reg.Roots[2].Depth)

	deepBtn := findTag(reg.Roots[1].Tree, "button")
	require.NotNil(t, deepBtn)
	assert.Same(t, reg.Roots[1], reg.RootOf(deepBtn))
	assert.Nil(t, reg.RootOf(findTag(doc, "outer-el")))
}

func TestBuildRegistry_DepthBound(t *testing.T) {
	doc := parseDoc(t, `<a-el><template shadowrootmode="open">
		<b-el><template shadowrootmode="open">
			<c-el><template shadowrootmode="open"><p>deep</p></template></c-el>
		</template></b-el>
	</template></a-el>`)

	reg := BuildRegistry(doc, 2)
	assert.Equal(t, 2, reg.Count())
}

func TestParentAcrossBoundary(t *testing.T) {
	doc := parseDoc(t, `<host-el><template shadowrootmode="open"><div><button>b</button></div></template></host-el>`)
	reg := BuildRegistry(doc, 0)
	require.Equal(t, 1, reg.Count())

	root := reg.Roots[0]
	btn := findTag(root.Tree, "button")
	require.NotNil(t, btn)

	div := reg.ParentAcrossBoundary(btn)
	assert.Equal(t, "div", div.Data)
	// The synthetic container is skipped: crossing the boundary lands on
	// the host element directly.
	assert.Equal(t, "host-el", reg.ParentAcrossBoundary(div).Data)
}
