package static

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/Zegnet/qandalf-agentic/api/schemas"
	"github.com/Zegnet/qandalf-agentic/internal/browser"
	"github.com/Zegnet/qandalf-agentic/internal/browser/query"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func newPage(t *testing.T) *Page {
	t.Helper()
	p, err := New(Config{
		NavigationTimeout: 5 * time.Second,
		PostLoadWait:      10 * time.Millisecond,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p
}

func serve(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func servePages(t *testing.T, pages map[string]string) *httptest.Server {
	return serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(body))
	}))
}

func TestNavigateAndState(t *testing.T) {
	srv := servePages(t, map[string]string{
		"/": `<html><head><title>Home</title></head><body><button id="go">Go</button></body></html>`,
	})
	p := newPage(t)

	require.NoError(t, p.Navigate(context.Background(), srv.URL+"/"))
	state, err := p.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/", state.URL)

	btn, err := query.First(state.Doc, "#go")
	require.NoError(t, err)
	assert.NotNil(t, btn)
}

func TestStateBeforeNavigate(t *testing.T) {
	p := newPage(t)
	_, err := p.State(context.Background())
	assert.ErrorIs(t, err, schemas.ErrSessionUnavailable)
}

func TestNavigate_FollowsRedirects(t *testing.T) {
	srv := serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			http.Redirect(w, r, "/hop", http.StatusFound)
		case "/hop":
			http.Redirect(w, r, "/final", http.StatusMovedPermanently)
		case "/final":
			_, _ = w.Write([]byte(`<body><p id="here">arrived</p></body>`))
		}
	}))
	p := newPage(t)

	require.NoError(t, p.Navigate(context.Background(), srv.URL+"/"))
	assert.Equal(t, srv.URL+"/final", p.CurrentURL())
}

func TestNavigate_RedirectLoopBounded(t *testing.T) {
	srv := serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	}))
	p := newPage(t)

	err := p.Navigate(context.Background(), srv.URL+"/loop")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redirect limit")
}

func TestClick_AnchorNavigates(t *testing.T) {
	srv := servePages(t, map[string]string{
		"/":    `<body><a id="next" href="/two">next</a></body>`,
		"/two": `<body><h1>Second</h1></body>`,
	})
	p := newPage(t)
	require.NoError(t, p.Navigate(context.Background(), srv.URL+"/"))

	require.NoError(t, p.Click(context.Background(), "#next"))
	assert.Equal(t, srv.URL+"/two", p.CurrentURL())
}

func TestClick_CheckboxToggles(t *testing.T) {
	srv := servePages(t, map[string]string{
		"/": `<body><form><input id="agree" type="checkbox" name="agree"></form></body>`,
	})
	p := newPage(t)
	require.NoError(t, p.Navigate(context.Background(), srv.URL+"/"))

	require.NoError(t, p.Click(context.Background(), "#agree"))
	state, err := p.State(context.Background())
	require.NoError(t, err)
	box, err := query.First(state.Doc, "#agree")
	require.NoError(t, err)
	assert.True(t, query.HasAttr(box, "checked"))

	require.NoError(t, p.Click(context.Background(), "#agree"))
	assert.False(t, query.HasAttr(box, "checked"))
}

func TestClick_NotFound(t *testing.T) {
	srv := servePages(t, map[string]string{"/": `<body></body>`})
	p := newPage(t)
	require.NoError(t, p.Navigate(context.Background(), srv.URL+"/"))

	err := p.Click(context.Background(), "#ghost")
	assert.True(t, errors.Is(err, schemas.ErrElementNotFound))
}

func TestFormSubmission_Get(t *testing.T) {
	srv := serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			_, _ = w.Write([]byte(`<body><form action="/search" method="get">
				<input type="text" name="q" value="">
				<button id="go" type="submit">Search</button>
			</form></body>`))
		case "/search":
			fmt.Fprintf(w, `<body><p id="result">query=%s</p></body>`, r.URL.Query().Get("q"))
		}
	}))
	p := newPage(t)
	require.NoError(t, p.Navigate(context.Background(), srv.URL+"/"))

	require.NoError(t, p.Type(context.Background(), "input[name=q]", "golang"))
	require.NoError(t, p.Click(context.Background(), "#go"))

	state, err := p.State(context.Background())
	require.NoError(t, err)
	result, err := query.First(state.Doc, "#result")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "query=golang", query.Text(result, 0))
}

func TestFormSubmission_PostWithRedirect(t *testing.T) {
	var postedUser string
	srv := serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			_, _ = w.Write([]byte(`<body><form action="/login" method="post">
				<input type="text" name="user">
				<input type="hidden" name="csrf" value="tok123">
				<input id="submit" type="submit" value="Sign in">
			</form></body>`))
		case "/login":
			require.NoError(t, r.ParseForm())
			postedUser = r.PostForm.Get("user")
			assert.Equal(t, "tok123", r.PostForm.Get("csrf"))
			http.Redirect(w, r, "/welcome", http.StatusSeeOther)
		case "/welcome":
			_, _ = w.Write([]byte(`<body><h1 id="hi">Welcome</h1></body>`))
		}
	}))
	p := newPage(t)
	require.NoError(t, p.Navigate(context.Background(), srv.URL+"/"))

	require.NoError(t, p.Type(context.Background(), "input[name=user]", "ada"))
	require.NoError(t, p.Click(context.Background(), "#submit"))

	assert.Equal(t, "ada", postedUser)
	assert.Equal(t, srv.URL+"/welcome", p.CurrentURL())
}

func TestPressEnterSubmitsFocusedForm(t *testing.T) {
	got := make(chan string, 1)
	srv := serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			_, _ = w.Write([]byte(`<body><form action="/s" method="get"><input type="text" name="q"></form></body>`))
		case "/s":
			got <- r.URL.Query().Get("q")
			_, _ = w.Write([]byte(`<body>ok</body>`))
		}
	}))
	p := newPage(t)
	require.NoError(t, p.Navigate(context.Background(), srv.URL+"/"))

	require.NoError(t, p.Type(context.Background(), "input[name=q]", "enter key"))
	require.NoError(t, p.PressKey(context.Background(), "Enter"))
	assert.Equal(t, "enter key", <-got)
}

func TestSelectOptions(t *testing.T) {
	srv := servePages(t, map[string]string{
		"/": `<body><select id="size" name="size">
			<option value="s">Small</option>
			<option value="m" selected>Medium</option>
			<option value="l">Large</option>
		</select></body>`,
	})
	p := newPage(t)
	require.NoError(t, p.Navigate(context.Background(), srv.URL+"/"))

	require.NoError(t, p.SelectOptions(context.Background(), "#size", []string{"l"}))

	state, err := p.State(context.Background())
	require.NoError(t, err)
	selected, err := query.All(state.Doc, "option[selected]")
	require.NoError(t, err)
	require.Len(t, selected, 1)
	assert.Equal(t, "l", query.Attr(selected[0], "value"))

	err = p.SelectOptions(context.Background(), "#size", []string{"xxl"})
	assert.True(t, errors.Is(err, schemas.ErrActionFailure))
}

func TestUpload(t *testing.T) {
	srv := servePages(t, map[string]string{
		"/": `<body><input id="f" type="file" name="doc"><input id="txt" type="text" name="t"></body>`,
	})
	p := newPage(t)
	require.NoError(t, p.Navigate(context.Background(), srv.URL+"/"))

	path := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))

	require.NoError(t, p.Upload(context.Background(), "#f", path))

	err := p.Upload(context.Background(), "#f", filepath.Join(t.TempDir(), "missing.txt"))
	assert.True(t, errors.Is(err, schemas.ErrActionFailure))

	err = p.Upload(context.Background(), "#txt", path)
	assert.True(t, errors.Is(err, schemas.ErrActionFailure))
}

func TestShadowFallbackActions(t *testing.T) {
	srv := servePages(t, map[string]string{
		"/": `<body>
			<checkout-widget><template shadowrootmode="open">
				<input id="qty" type="text" name="qty">
				<input id="opt" type="checkbox" name="opt">
			</template></checkout-widget>
		</body>`,
	})
	p := newPage(t)
	require.NoError(t, p.Navigate(context.Background(), srv.URL+"/"))

	// Neither control exists in the light DOM; both actions must land via
	// the recursive shadow search.
	require.NoError(t, p.Type(context.Background(), "#qty", "3"))
	require.NoError(t, p.Click(context.Background(), "#opt"))

	state, err := p.State(context.Background())
	require.NoError(t, err)
	res, err := query.Deep(state.Doc, state.Registry, "#qty")
	require.NoError(t, err)
	require.NotNil(t, res.Root)
	assert.Equal(t, "3", query.Attr(res.Node, "value"))

	boxRes, err := query.Deep(state.Doc, state.Registry, "#opt")
	require.NoError(t, err)
	assert.True(t, query.HasAttr(boxRes.Node, "checked"))
}

func TestFrames(t *testing.T) {
	srv := servePages(t, map[string]string{
		"/":      `<body><h1>Top</h1><iframe id="inner" name="widget" src="/frame"></iframe></body>`,
		"/frame": `<body><button id="inside">Frame button</button></body>`,
	})
	p := newPage(t)
	require.NoError(t, p.Navigate(context.Background(), srv.URL+"/"))

	names, err := p.FrameNames(context.Background())
	require.NoError(t, err)
	require.Len(t, names, 1)
	assert.Contains(t, names[0], "#inner")
	assert.Contains(t, names[0], "name=widget")

	// By name.
	require.NoError(t, p.SwitchFrame(context.Background(), "widget"))
	state, err := p.State(context.Background())
	require.NoError(t, err)
	inside, err := query.First(state.Doc, "#inside")
	require.NoError(t, err)
	assert.NotNil(t, inside)
	assert.Equal(t, srv.URL+"/frame", p.CurrentURL())

	// "main" always restores the top document, from any prior state.
	require.NoError(t, p.SwitchFrame(context.Background(), browser.FrameMain))
	state, err = p.State(context.Background())
	require.NoError(t, err)
	top, err := query.First(state.Doc, "h1")
	require.NoError(t, err)
	assert.Equal(t, "Top", query.Text(top, 0))
	require.NoError(t, p.SwitchFrame(context.Background(), browser.FrameMain))

	err = p.SwitchFrame(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame not found")
	assert.Contains(t, err.Error(), "#inner")
}

func TestHighlightInvariant(t *testing.T) {
	srv := servePages(t, map[string]string{
		"/": `<body><button id="a">A</button><button id="b">B</button></body>`,
	})
	p := newPage(t)
	require.NoError(t, p.Navigate(context.Background(), srv.URL+"/"))

	require.NoError(t, p.Highlight(context.Background(), "#a"))
	require.NoError(t, p.Highlight(context.Background(), "#b"))

	state, err := p.State(context.Background())
	require.NoError(t, err)
	marked, err := query.All(state.Doc, "[data-qdl-highlight]")
	require.NoError(t, err)
	require.Len(t, marked, 1)
	assert.Equal(t, "b", query.Attr(marked[0], "id"))

	require.NoError(t, p.ClearHighlight(context.Background()))
	marked, err = query.All(state.Doc, "[data-qdl-highlight]")
	require.NoError(t, err)
	assert.Empty(t, marked)
}

func TestWaitIdle(t *testing.T) {
	srv := servePages(t, map[string]string{"/": `<body>quiet</body>`})
	p := newPage(t)
	require.NoError(t, p.Navigate(context.Background(), srv.URL+"/"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, p.WaitIdle(ctx))
}
