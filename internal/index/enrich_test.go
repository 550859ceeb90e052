package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zegnet/qandalf-agentic/internal/browser/query"
)

func TestLabel_OwnTextWins(t *testing.T) {
	f := newFixture(t, `<body><button id="b" aria-label="ignored">Save changes</button></body>`)
	assert.Equal(t, "Save changes", f.enricher.Label(f.find(t, "#b"), f.doc))
}

func TestLabel_AttributeFallbacks(t *testing.T) {
	f := newFixture(t, `<body>
		<button id="a" aria-label="Close dialog"></button>
		<img id="i" src="/x.png" alt="Company logo">
		<button id="d" data-label="Custom"></button>
	</body>`)
	assert.Equal(t, "Close dialog", f.enricher.Label(f.find(t, "#a"), f.doc))
	assert.Equal(t, "Company logo", f.enricher.Label(f.find(t, "#i"), f.doc))
	assert.Equal(t, "Custom", f.enricher.Label(f.find(t, "#d"), f.doc))
}

func TestLabel_AssociatedLabelFor(t *testing.T) {
	f := newFixture(t, `<body>
		<label for="email">Email address</label>
		<input id="email" type="text">
	</body>`)
	assert.Equal(t, "Email address", f.enricher.Label(f.find(t, "#email"), f.doc))
}

func TestLabel_EnclosingLabel(t *testing.T) {
	f := newFixture(t, `<body><label>Remember me <input id="r" type="checkbox"></label></body>`)
	assert.Equal(t, "Remember me", f.enricher.Label(f.find(t, "#r"), f.doc))
}

func TestLabel_PrecedingSibling(t *testing.T) {
	f := newFixture(t, `<body><div>
		<span>Phone number</span>
		<input id="ph" type="text">
	</div></body>`)
	assert.Equal(t, "Phone number", f.enricher.Label(f.find(t, "#ph"), f.doc))
}

func TestLabel_ParentPrecedingSibling(t *testing.T) {
	f := newFixture(t, `<body>
		<div>Shipping address</div>
		<div><input id="addr" type="text"></div>
	</body>`)
	assert.Equal(t, "Shipping address", f.enricher.Label(f.find(t, "#addr"), f.doc))
}

func TestLabel_NonFormControlGetsNoLabelSearch(t *testing.T) {
	f := newFixture(t, `<body>
		<span>Nearby text</span>
		<div id="d" role="button"></div>
	</body>`)
	assert.Equal(t, "", f.enricher.Label(f.find(t, "#d"), f.doc))
}

func TestContext_FormHeading(t *testing.T) {
	f := newFixture(t, `<body><section>
		<h2>Billing details</h2>
		<form><input id="cc" type="text"></form>
	</section></body>`)
	assert.Equal(t, "Billing details", f.enricher.Context(f.find(t, "#cc")))
}

func TestContext_AriaLabelOnContainer(t *testing.T) {
	f := newFixture(t, `<body><nav aria-label="Main menu"><a id="l" href="/">Home</a></nav></body>`)
	assert.Equal(t, "Main menu", f.enricher.Context(f.find(t, "#l")))
}

func TestContext_FirstShortTextLine(t *testing.T) {
	f := newFixture(t, `<body><fieldset>Delivery options<input id="o" type="radio"></fieldset></body>`)
	assert.Equal(t, "Delivery options", f.enricher.Context(f.find(t, "#o")))
}

func TestContext_ShadowHostFallback(t *testing.T) {
	f := newFixture(t, `<body>
		<w-c>
			<template shadowrootmode="open"><div><button id="sb">Go</button></div></template>
			Checkout widget
		</w-c>
	</body>`)
	require.Equal(t, 1, f.reg.Count())
	btn, err := query.First(f.reg.Roots[0].Tree, "#sb")
	require.NoError(t, err)
	require.NotNil(t, btn)
	assert.Equal(t, "Checkout widget", f.enricher.Context(btn))
}

func TestContext_NoneFound(t *testing.T) {
	f := newFixture(t, `<body><div><button id="b">Go</button></div></body>`)
	assert.Equal(t, "", f.enricher.Context(f.find(t, "#b")))
}
