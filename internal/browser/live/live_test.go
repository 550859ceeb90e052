package live

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSArgEscaping(t *testing.T) {
	assert.Equal(t, `"plain"`, jsArg("plain"))
	assert.Equal(t, `"with \"quotes\""`, jsArg(`with "quotes"`))
	assert.Equal(t, `["a","b"]`, jsArg([]string{"a", "b"}))
	assert.Equal(t, "null", jsArg(nil))

	// Selector text must never break out of the script string.
	out := jsArg(`'; alert(1); '`)
	assert.False(t, strings.Contains(out, "';"), "quote not escaped: %s", out)
}

func TestSerializeScriptScoping(t *testing.T) {
	main := serializeScript("")
	require.Contains(t, main, "data-qdl-style")
	require.Contains(t, main, "data-qdl-box")
	require.Contains(t, main, `shadowrootmode="open"`)
	assert.Contains(t, main, `const frameSel = "";`)

	framed := serializeScript("#checkout")
	assert.Contains(t, framed, `const frameSel = "#checkout";`)
	assert.Contains(t, framed, "contentDocument")
}

func TestActionScriptShapes(t *testing.T) {
	click := actionScript("", "#buy", "click", nil)
	require.Contains(t, click, "deepFind")
	assert.Contains(t, click, `"click"`)
	assert.Contains(t, click, `"#buy"`)

	typ := actionScript("#frame", "input[name=q]", "type", "hello")
	assert.Contains(t, typ, `"hello"`)
	assert.Contains(t, typ, `"#frame"`)
	assert.Contains(t, typ, "getOwnPropertyDescriptor")

	sel := actionScript("", "#size", "select", []string{"xl", "Large"})
	assert.Contains(t, sel, `["xl","Large"]`)
}

func TestHighlightScriptsRemoveBeforeCreate(t *testing.T) {
	script := highlightScript("", "#target")
	remove := strings.Index(script, "prev.remove()")
	create := strings.Index(script, "createElement")
	require.GreaterOrEqual(t, remove, 0)
	require.GreaterOrEqual(t, create, 0)
	assert.Less(t, remove, create, "previous overlay must be removed before a new one is drawn")

	clear := clearHighlightScript()
	assert.Contains(t, clear, overlayID)
}

func TestFrameResolveScriptTargets(t *testing.T) {
	byName := frameResolveScript("checkout")
	assert.Contains(t, byName, `"checkout"`)
	byIndex := frameResolveScript("0")
	assert.Contains(t, byIndex, `"0"`)
}

func TestFrameScriptsUseSiblingOrdinals(t *testing.T) {
	// The nth-of-type position must come from a same-tag sibling walk, not
	// from the frame's index in the flat iframe/frame node list, or the
	// selector breaks as soon as frames live under different parents.
	for name, script := range map[string]string{
		"list":    frameListScript,
		"resolve": frameResolveScript("checkout"),
	} {
		assert.Contains(t, script, "previousElementSibling", name)
		assert.NotContains(t, script, "(i + 1)", name)
	}
}

func TestCanonicalKey(t *testing.T) {
	cases := map[string]string{
		"enter":  "Enter",
		"Return": "Enter",
		"ESC":    "Escape",
		" tab ":  "Tab",
		"down":   "ArrowDown",
	}
	for in, want := range cases {
		got, ok := canonicalKey(in)
		require.True(t, ok, "key %q", in)
		assert.Equal(t, want, got)
	}
	_, ok := canonicalKey("hyperspace")
	assert.False(t, ok)
}

func TestNetTrackerWaitQuiet(t *testing.T) {
	tr := newNetTracker()

	// A fresh tracker with no observed traffic is already quiet.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, tr.waitQuiet(ctx, 10*time.Millisecond))

	tr.begin("req-1")
	tr.begin("req-2")
	assert.Equal(t, 2, tr.inFlight())

	busyCtx, busyCancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer busyCancel()
	assert.ErrorIs(t, tr.waitQuiet(busyCtx, 10*time.Millisecond), context.DeadlineExceeded)

	tr.end("req-1")
	tr.end("req-2")
	assert.Equal(t, 0, tr.inFlight())

	quietCtx, quietCancel := context.WithTimeout(context.Background(), time.Second)
	defer quietCancel()
	require.NoError(t, tr.waitQuiet(quietCtx, 20*time.Millisecond))
}
