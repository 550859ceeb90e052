package static

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/Zegnet/qandalf-agentic/api/schemas"
	"github.com/Zegnet/qandalf-agentic/internal/browser/query"
	"github.com/Zegnet/qandalf-agentic/internal/browser/shadowdom"
)

// HighlightAttr marks the currently highlighted element in the tree. The
// static engine has no pixels to draw on, so the marker attribute is its
// overlay.
const HighlightAttr = "data-qdl-highlight"

// resolve finds the action target: direct query against the current scope
// first, then the recursive shadow-root fallback.
func (p *Page) resolve(selector string) (query.Result, error) {
	doc, reg, _, err := p.scopeLocked()
	if err != nil {
		return query.Result{}, err
	}
	return query.Deep(doc, reg, selector)
}

// Click resolves the selector and applies the click's document-level
// consequence: anchors navigate, submit controls submit their form,
// checkables toggle, details open.
func (p *Page) Click(ctx context.Context, selector string) error {
	p.mu.Lock()
	res, err := p.resolve(selector)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	n := res.Node
	p.focused = n

	tag := strings.ToLower(n.Data)
	inputType := strings.ToLower(query.Attr(n, "type"))
	switch {
	case tag == "a" && query.Attr(n, "href") != "":
		href := query.Attr(n, "href")
		_, _, base, _ := p.scopeLocked()
		p.mu.Unlock()
		return p.followLink(ctx, base, href)

	case tag == "input" && inputType == "checkbox":
		toggleAttr(n, "checked")
		p.mu.Unlock()
		return nil

	case tag == "input" && inputType == "radio":
		p.selectRadio(n)
		p.mu.Unlock()
		return nil

	case tag == "summary":
		if d := n.Parent; d != nil && strings.EqualFold(d.Data, "details") {
			toggleAttr(d, "open")
		}
		p.mu.Unlock()
		return nil

	case isSubmitControl(tag, inputType, n):
		form := enclosingForm(n, res.Root)
		if form == nil {
			p.mu.Unlock()
			p.log.Debug("submit control outside any form", zap.String("selector", selector))
			return nil
		}
		payload := serializeForm(form, n)
		base := p.url
		p.mu.Unlock()
		return p.submitForm(ctx, base, form, payload)
	}

	// Plain clicks on everything else have no static consequence beyond
	// focus; handlers would need a script engine.
	p.mu.Unlock()
	return nil
}

func (p *Page) followLink(ctx context.Context, base *url.URL, href string) error {
	if strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return nil
	}
	ref, err := url.Parse(href)
	if err != nil {
		return schemas.ActionFailureError("click", href, err)
	}
	return p.Navigate(ctx, base.ResolveReference(ref).String())
}

// selectRadio checks n and unchecks its name group within the same form
// scope.
func (p *Page) selectRadio(n *html.Node) {
	name := query.Attr(n, "name")
	scope := enclosingForm(n, nil)
	if scope == nil {
		doc, _, _, err := p.scopeLocked()
		if err != nil {
			return
		}
		scope = doc
	}
	if name != "" {
		group, err := query.All(scope, fmt.Sprintf("input[type=radio][name=%q]", name))
		if err == nil {
			for _, other := range group {
				removeAttr(other, "checked")
			}
		}
	}
	setAttr(n, "checked", "checked")
}

// Type focuses the control and replaces its value.
func (p *Page) Type(ctx context.Context, selector, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	res, err := p.resolve(selector)
	if err != nil {
		return err
	}
	n := res.Node
	tag := strings.ToLower(n.Data)
	switch tag {
	case "input":
		setAttr(n, "value", text)
	case "textarea":
		setTextContent(n, text)
	default:
		if query.Attr(n, "contenteditable") != "" {
			setTextContent(n, text)
			break
		}
		return schemas.ActionFailureError("type", selector,
			fmt.Errorf("element <%s> does not accept text input", tag))
	}
	p.focused = n
	return nil
}

// SelectOptions marks the given option values selected, clearing previous
// selection. Multi-selects accept several values; single selects take the
// first.
func (p *Page) SelectOptions(ctx context.Context, selector string, values []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	res, err := p.resolve(selector)
	if err != nil {
		return err
	}
	sel := res.Node
	if !strings.EqualFold(sel.Data, "select") {
		return schemas.ActionFailureError("select_option", selector,
			fmt.Errorf("element <%s> is not a select", strings.ToLower(sel.Data)))
	}
	if len(values) == 0 {
		return schemas.ActionFailureError("select_option", selector, fmt.Errorf("no values given"))
	}
	if !query.HasAttr(sel, "multiple") && len(values) > 1 {
		values = values[:1]
	}

	wanted := make(map[string]bool, len(values))
	for _, v := range values {
		wanted[v] = true
	}
	matched := 0
	options, err := query.All(sel, "option")
	if err != nil {
		return err
	}
	for _, opt := range options {
		value := query.Attr(opt, "value")
		if !query.HasAttr(opt, "value") {
			value = query.Text(opt, 0)
		}
		if wanted[value] || wanted[query.Text(opt, 0)] {
			setAttr(opt, "selected", "selected")
			matched++
		} else {
			removeAttr(opt, "selected")
		}
	}
	if matched == 0 {
		return schemas.ActionFailureError("select_option", selector,
			fmt.Errorf("no option matches %v", values))
	}
	p.focused = sel
	return nil
}

// Upload attaches a local file path to a file input after verifying the
// file exists.
func (p *Page) Upload(ctx context.Context, selector, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return schemas.ActionFailureError("upload", selector, err)
	}
	if info.IsDir() {
		return schemas.ActionFailureError("upload", selector, fmt.Errorf("%s is a directory", path))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	res, err := p.resolve(selector)
	if err != nil {
		return err
	}
	n := res.Node
	if !strings.EqualFold(n.Data, "input") || !strings.EqualFold(query.Attr(n, "type"), "file") {
		return schemas.ActionFailureError("upload", selector, fmt.Errorf("element is not a file input"))
	}
	setAttr(n, "value", path)
	p.focused = n
	return nil
}

// PressKey applies the named key to the focused element. Enter submits
// the enclosing form, Escape clears focus, Tab moves focus off; other
// keys are accepted without document effect.
func (p *Page) PressKey(ctx context.Context, key string) error {
	p.mu.Lock()
	switch strings.ToLower(key) {
	case "enter", "return":
		n := p.focused
		if n == nil {
			p.mu.Unlock()
			return nil
		}
		form := enclosingForm(n, nil)
		if form == nil {
			p.mu.Unlock()
			return nil
		}
		payload := serializeForm(form, nil)
		base := p.url
		p.mu.Unlock()
		return p.submitForm(ctx, base, form, payload)
	case "escape", "esc", "tab":
		p.focused = nil
	}
	p.mu.Unlock()
	return nil
}

// Highlight marks the resolved element, removing any previous marker
// first. At most one element carries the marker.
func (p *Page) Highlight(ctx context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hilited != nil {
		removeAttr(p.hilited, HighlightAttr)
		p.hilited = nil
	}
	res, err := p.resolve(selector)
	if err != nil {
		return err
	}
	setAttr(res.Node, HighlightAttr, "true")
	p.hilited = res.Node
	return nil
}

// ClearHighlight removes the marker if present.
func (p *Page) ClearHighlight(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hilited != nil {
		removeAttr(p.hilited, HighlightAttr)
		p.hilited = nil
	}
	return nil
}

// -- form submission --

func isSubmitControl(tag, inputType string, n *html.Node) bool {
	if tag == "button" {
		return inputType == "" || inputType == "submit"
	}
	return tag == "input" && (inputType == "submit" || inputType == "image")
}

// enclosingForm walks up to the nearest form, crossing a shadow boundary
// only through the supplied root's host.
func enclosingForm(n *html.Node, root *shadowdom.Root) *html.Node {
	cur := n.Parent
	for cur != nil {
		if cur.Type == html.ElementNode {
			if strings.EqualFold(cur.Data, "form") {
				return cur
			}
			if cur.Data == shadowdom.ShadowRootContainer {
				if root != nil && root.Tree == cur {
					cur = root.Host
					continue
				}
				return nil
			}
		}
		cur = cur.Parent
	}
	return nil
}

// serializeForm collects successful controls in document order via an
// XPath pass. submitter, when non-nil and named, contributes its own
// name/value pair.
func serializeForm(form *html.Node, submitter *html.Node) url.Values {
	payload := url.Values{}
	for _, n := range htmlquery.Find(form, "//input|//select|//textarea") {
		name := query.Attr(n, "name")
		if name == "" || query.HasAttr(n, "disabled") {
			continue
		}
		tag := strings.ToLower(n.Data)
		inputType := strings.ToLower(query.Attr(n, "type"))
		switch {
		case tag == "input" && (inputType == "checkbox" || inputType == "radio"):
			if query.HasAttr(n, "checked") {
				v := query.Attr(n, "value")
				if v == "" {
					v = "on"
				}
				payload.Add(name, v)
			}
		case tag == "input" && (inputType == "submit" || inputType == "button" || inputType == "image" || inputType == "file"):
			// Submit buttons only via the submitter; file payloads are not
			// serialized on this path.
		case tag == "select":
			opts, err := query.All(n, "option[selected]")
			if err == nil {
				for _, opt := range opts {
					v := query.Attr(opt, "value")
					if !query.HasAttr(opt, "value") {
						v = query.Text(opt, 0)
					}
					payload.Add(name, v)
				}
			}
		case tag == "textarea":
			payload.Add(name, query.Text(n, 0))
		default:
			payload.Add(name, query.Attr(n, "value"))
		}
	}
	if submitter != nil {
		if name := query.Attr(submitter, "name"); name != "" {
			payload.Add(name, query.Attr(submitter, "value"))
		}
	}
	return payload
}

// submitForm performs the method/action dance and installs the response
// as the new document.
func (p *Page) submitForm(ctx context.Context, base *url.URL, form *html.Node, payload url.Values) error {
	action := query.Attr(form, "action")
	target := base
	if action != "" {
		ref, err := url.Parse(action)
		if err != nil {
			return schemas.ActionFailureError("submit", action, err)
		}
		target = base.ResolveReference(ref)
	}

	method := strings.ToUpper(query.Attr(form, "method"))
	if method == "" {
		method = http.MethodGet
	}

	navCtx, cancel := context.WithTimeout(ctx, p.cfg.NavigationTimeout)
	defer cancel()

	var req *http.Request
	var err error
	if method == http.MethodPost {
		req, err = http.NewRequestWithContext(navCtx, http.MethodPost, target.String(),
			strings.NewReader(payload.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		withQuery := *target
		withQuery.RawQuery = payload.Encode()
		req, err = http.NewRequestWithContext(navCtx, http.MethodGet, withQuery.String(), nil)
	}
	if err != nil {
		return schemas.ActionFailureError("submit", target.String(), err)
	}

	resp, err := p.stack.Client.Do(req)
	if err != nil {
		return schemas.ActionFailureError("submit", target.String(), err)
	}
	final := resp.Request.URL
	if next, redirected := redirectTarget(resp, final); redirected {
		resp.Body.Close()
		return p.Navigate(ctx, next.String())
	}
	doc, err := htmlquery.Parse(resp.Body)
	resp.Body.Close()
	if err != nil {
		return schemas.ActionFailureError("submit", target.String(), err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.installDocument(doc, final)
	p.log.Info("form submitted", zap.String("method", method), zap.String("url", final.String()))
	return nil
}

// -- node attribute helpers --

func setAttr(n *html.Node, key, value string) {
	for i := range n.Attr {
		if strings.EqualFold(n.Attr[i].Key, key) {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: value})
}

func removeAttr(n *html.Node, key string) {
	for i := range n.Attr {
		if strings.EqualFold(n.Attr[i].Key, key) {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

func toggleAttr(n *html.Node, key string) {
	if query.HasAttr(n, key) {
		removeAttr(n, key)
	} else {
		setAttr(n, key, key)
	}
}

func setTextContent(n *html.Node, text string) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}
