package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSelectorList_Compound(t *testing.T) {
	group, err := ParseSelectorList("button#save.primary[type=\"submit\"]")
	require.NoError(t, err)
	require.Len(t, group, 1)
	require.Len(t, group[0].Parts, 1)

	p := group[0].Parts[0]
	assert.Equal(t, "button", p.Tag)
	assert.Equal(t, "save", p.ID)
	assert.Equal(t, []string{"primary"}, p.Classes)
	require.Len(t, p.Attributes, 1)
	assert.Equal(t, "type", p.Attributes[0].Name)
	assert.Equal(t, "=", p.Attributes[0].Operator)
	assert.Equal(t, "submit", p.Attributes[0].Value)
}

func TestParseSelectorList_Combinators(t *testing.T) {
	group, err := ParseSelectorList("#root > div:nth-of-type(2) span")
	require.NoError(t, err)
	require.Len(t, group, 1)

	parts := group[0].Parts
	require.Len(t, parts, 3)
	assert.Equal(t, "root", parts[0].ID)
	assert.Equal(t, CombinatorChild, parts[1].Combinator)
	assert.Equal(t, 2, parts[1].NthOfType)
	assert.Equal(t, CombinatorDescendant, parts[2].Combinator)
}

func TestParseSelectorList_Group(t *testing.T) {
	group, err := ParseSelectorList("a[href], button, input[type='checkbox']")
	require.NoError(t, err)
	assert.Len(t, group, 3)
}

func TestParseSelectorList_Errors(t *testing.T) {
	cases := []string{
		"",
		"div,,span",
		"#",
		"div:nth-of-type(0)",
		"div:nth-of-type(x)",
		"[=v]",
		"[name",
	}
	for _, sel := range cases {
		_, err := ParseSelectorList(sel)
		assert.Error(t, err, "selector %q should not parse", sel)
	}
}

func TestSelectorRoundTrip(t *testing.T) {
	cases := []string{
		"#save",
		"#root > button",
		"#panel > div:nth-of-type(3) > span:nth-of-type(2)",
		"form > input:nth-of-type(1)",
	}
	for _, sel := range cases {
		group, err := ParseSelectorList(sel)
		require.NoError(t, err)
		assert.Equal(t, sel, group[0].String())
	}
}

func TestSpecificityOrdering(t *testing.T) {
	spec := func(sel string) int {
		group, err := ParseSelectorList(sel)
		require.NoError(t, err)
		return group[0].Specificity()
	}
	assert.Greater(t, spec("#id"), spec(".a.b.c"))
	assert.Greater(t, spec(".a"), spec("div span a"))
	assert.Greater(t, spec("div:nth-of-type(2)"), spec("div"))
	assert.Greater(t, spec("[hidden]"), spec("input"))
}

func TestParseSheet(t *testing.T) {
	sheet := ParseSheet(`
		/* hidden things */
		.hidden { display: none !important; }
		@media (max-width: 600px) { .m { display: none; } }
		button, a { cursor: pointer; color: blue }
		broken { { }
		span { visibility: hidden; opacity: 0.5; }
	`)
	require.Len(t, sheet.Rules, 3)

	first := sheet.Rules[0]
	require.Len(t, first.Declarations, 1)
	assert.Equal(t, PropDisplay, first.Declarations[0].Property)
	assert.Equal(t, "none", first.Declarations[0].Value)
	assert.True(t, first.Declarations[0].Important)

	assert.Len(t, sheet.Rules[1].Selectors, 2)
	assert.Equal(t, 2, sheet.Rules[1].Position)

	last := sheet.Rules[2]
	require.Len(t, last.Declarations, 2)
	assert.Equal(t, PropVisibility, last.Declarations[0].Property)
	assert.Equal(t, "0.5", last.Declarations[1].Value)
}

func TestParseSheet_ValueWithBraceInString(t *testing.T) {
	sheet := ParseSheet(`div { background: url("a}b.png"); display: block; }`)
	require.Len(t, sheet.Rules, 1)
	assert.Len(t, sheet.Rules[0].Declarations, 2)
}

func TestUnknownPseudoNeverMatches(t *testing.T) {
	group, err := ParseSelectorList("a:hover")
	require.NoError(t, err)
	// Nothing in a parsed document carries the sentinel attribute, so the
	// compound must match no element.
	require.Len(t, group[0].Parts[0].Attributes, 1)
	assert.Equal(t, "\x00", group[0].Parts[0].Attributes[0].Value)
}
