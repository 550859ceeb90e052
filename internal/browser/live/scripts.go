// Package live implements browser.Page on a real Chromium tab over the
// DevTools protocol. Indexing runs on the same Go pipeline as the static
// engine: an injected serializer re-emits the live DOM, shadow roots
// included, as declarative shadow templates annotated with computed style
// and geometry hints, and the resulting HTML is parsed back in Go.
package live

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsArg encodes a Go value as a JavaScript literal for script templating.
func jsArg(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

// serializeScript walks the live DOM and rebuilds outer HTML with every
// open shadow root re-emitted as <template shadowrootmode="open">. Each
// element carries two hint attributes with its computed style subset and
// border-box size, so the Go classifier sees real render state instead of
// estimates. A non-empty frameSel serializes that iframe's document
// instead of the top one.
func serializeScript(frameSel string) string {
	return fmt.Sprintf(`(() => {
  const STYLE_ATTR = 'data-qdl-style';
  const BOX_ATTR = 'data-qdl-box';
  const frameSel = %s;
  let docRoot = document;
  if (frameSel) {
    const fr = document.querySelector(frameSel);
    if (!fr || !fr.contentDocument) return '';
    docRoot = fr.contentDocument;
  }
  const ser = (node, out) => {
    if (node.nodeType === Node.TEXT_NODE) { out.push(esc(node.data)); return; }
    if (node.nodeType === Node.COMMENT_NODE) { return; }
    if (node.nodeType !== Node.ELEMENT_NODE) { return; }
    const tag = node.tagName.toLowerCase();
    if (tag === 'script' || tag === 'noscript') { return; }
    out.push('<', tag);
    for (const a of node.attributes) {
      if (a.name === STYLE_ATTR || a.name === BOX_ATTR) continue;
      out.push(' ', a.name, '="', escAttr(a.value), '"');
    }
    const cs = node.ownerDocument.defaultView.getComputedStyle(node);
    out.push(' ', STYLE_ATTR, '="display:', cs.display,
      ';visibility:', cs.visibility, ';opacity:', cs.opacity,
      ';cursor:', cs.cursor, '"');
    const r = node.getBoundingClientRect();
    out.push(' ', BOX_ATTR, '="', r.width.toFixed(1), 'x', r.height.toFixed(1), '"');
    out.push('>');
    if (node.shadowRoot) {
      out.push('<template shadowrootmode="open">');
      for (const c of node.shadowRoot.childNodes) ser(c, out);
      out.push('</template>');
    }
    if (tag === 'select' || tag === 'style') {
      out.push(node.innerHTML);
    } else if (tag === 'textarea') {
      out.push(esc(node.value));
    } else {
      for (const c of node.childNodes) ser(c, out);
    }
    out.push('</', tag, '>');
  };
  const esc = s => s.replace(/&/g, '&amp;').replace(/</g, '&lt;');
  const escAttr = s => esc(s).replace(/"/g, '&quot;');
  const out = [];
  ser(docRoot.documentElement, out);
  return '<!DOCTYPE html>' + out.join('');
})()`, jsArg(frameSel))
}

// deepFind is the shared JS helper locating a selector in the document or
// any open shadow root, optionally scoped to a same-origin iframe. It
// mirrors the Go-side two-phase resolution: direct query first, then a
// depth-first shadow walk.
const deepFindJS = `
  const rootOf = (frameSel) => {
    if (!frameSel) return document;
    const fr = document.querySelector(frameSel);
    if (!fr || !fr.contentDocument) return null;
    return fr.contentDocument;
  };
  const deepFind = (root, sel) => {
    try {
      const direct = root.querySelector(sel);
      if (direct) return direct;
    } catch (e) { return null; }
    const stack = [root];
    while (stack.length) {
      const scope = stack.pop();
      const all = scope.querySelectorAll('*');
      for (const el of all) {
        if (el.shadowRoot) {
          const hit = el.shadowRoot.querySelector(sel);
          if (hit) return hit;
          stack.push(el.shadowRoot);
        }
      }
    }
    return null;
  };`

// actionScript locates the selector with shadow fallback and applies one
// of click/type/select by direct element manipulation, dispatching the
// synthetic events frameworks listen for. Returns true when the element
// was found and acted on.
func actionScript(frameSel, selector, action string, payload any) string {
	return fmt.Sprintf(`(() => {%s
  const root = rootOf(%s);
  if (!root) return false;
  const el = deepFind(root, %s);
  if (!el) return false;
  el.scrollIntoView({block: 'center', inline: 'center'});
  const fire = (type) => el.dispatchEvent(new Event(type, {bubbles: true, composed: true}));
  const action = %s;
  const payload = %s;
  if (action === 'click') {
    el.click();
  } else if (action === 'type') {
    el.focus();
    const proto = el.tagName === 'TEXTAREA'
      ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
    const desc = Object.getOwnPropertyDescriptor(proto, 'value');
    if (desc && desc.set) { desc.set.call(el, payload); } else { el.value = payload; }
    fire('input'); fire('change');
  } else if (action === 'select') {
    const wanted = new Set(payload);
    let matched = false;
    for (const opt of el.options) {
      const hit = wanted.has(opt.value) || wanted.has(opt.textContent.trim());
      opt.selected = hit ? true : (el.multiple ? false : opt.selected && !matched);
      if (hit) matched = true;
    }
    if (!matched) return false;
    fire('input'); fire('change');
  }
  return true;
})()`, deepFindJS, jsArg(frameSel), jsArg(selector), jsArg(action), jsArg(payload))
}

// existsScript reports whether the selector resolves anywhere, shadow
// roots included.
func existsScript(frameSel, selector string) string {
	return fmt.Sprintf(`(() => {%s
  const root = rootOf(%s);
  if (!root) return false;
  return deepFind(root, %s) !== null;
})()`, deepFindJS, jsArg(frameSel), jsArg(selector))
}

// overlayID is the DOM id of the single highlight overlay element.
const overlayID = "__qdl_highlight_overlay"

// highlightScript removes any existing overlay and draws a new one over
// the resolved element's border box. The remove-then-create order is the
// at-most-one-overlay invariant.
func highlightScript(frameSel, selector string) string {
	return fmt.Sprintf(`(() => {%s
  const prev = document.getElementById(%s);
  if (prev) prev.remove();
  const root = rootOf(%s);
  if (!root) return false;
  const el = deepFind(root, %s);
  if (!el) return false;
  const r = el.getBoundingClientRect();
  const box = document.createElement('div');
  box.id = %s;
  box.style.cssText = 'position:fixed;pointer-events:none;z-index:2147483647;' +
    'border:2px solid #ff2d55;border-radius:3px;background:rgba(255,45,85,0.08);' +
    'left:' + (r.left - 2) + 'px;top:' + (r.top - 2) + 'px;' +
    'width:' + r.width + 'px;height:' + r.height + 'px;';
  document.body.appendChild(box);
  return true;
})()`, deepFindJS, jsArg(overlayID), jsArg(frameSel), jsArg(selector), jsArg(overlayID))
}

// clearHighlightScript removes the overlay if present.
func clearHighlightScript() string {
	return fmt.Sprintf(`(() => {
  const prev = document.getElementById(%s);
  if (prev) { prev.remove(); return true; }
  return false;
})()`, jsArg(overlayID))
}

// frameListScript describes the switchable iframes of the main document.
// Positional selectors use the frame's ordinal among same-tag siblings of
// its own parent, matching what nth-of-type resolves against.
const frameListScript = `(() => {
  const ord = (fr) => {
    let n = 1;
    for (let sib = fr.previousElementSibling; sib; sib = sib.previousElementSibling) {
      if (sib.tagName === fr.tagName) n++;
    }
    return n;
  };
  const out = [];
  document.querySelectorAll('iframe, frame').forEach((fr, i) => {
    let desc = '[' + i + '] ';
    if (fr.id) desc += '#' + fr.id;
    else desc += fr.tagName.toLowerCase() + ':nth-of-type(' + ord(fr) + ')';
    if (fr.name) desc += ' name=' + fr.name;
    out.push(desc);
  });
  return out;
})()`

// frameResolveScript turns a name/index/selector target into the selector
// of a matching iframe, or null.
func frameResolveScript(target string) string {
	return fmt.Sprintf(`(() => {
  const target = %s;
  const frames = Array.from(document.querySelectorAll('iframe, frame'));
  const asIndex = Number(target);
  if (!isNaN(asIndex) && String(asIndex) === target) {
    const fr = frames[asIndex];
    return fr ? selFor(fr) : null;
  }
  for (let i = 0; i < frames.length; i++) {
    if (frames[i].name === target || frames[i].id === target) return selFor(frames[i]);
  }
  try {
    const direct = document.querySelector(target);
    if (direct && (direct.tagName === 'IFRAME' || direct.tagName === 'FRAME')) {
      return selFor(direct);
    }
  } catch (e) {}
  return null;
  function selFor(fr) {
    if (fr.id) return '#' + fr.id;
    if (fr.name) return fr.tagName.toLowerCase() + '[name="' + fr.name + '"]';
    let n = 1;
    for (let sib = fr.previousElementSibling; sib; sib = sib.previousElementSibling) {
      if (sib.tagName === fr.tagName) n++;
    }
    return fr.tagName.toLowerCase() + ':nth-of-type(' + n + ')';
  }
})()`, jsArg(target))
}
