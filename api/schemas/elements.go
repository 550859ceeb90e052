// Package schemas defines the wire-level types shared between the browser
// engines, the element indexer and the agent tool surface.
package schemas

// SelectOption is a single option of a <select> control, in document order.
type SelectOption struct {
	Value    string `json:"value"`
	Text     string `json:"text"`
	Selected bool   `json:"selected"`
}

// ElementRecord is one indexed page element as surfaced to the caller.
// Index values are dense per snapshot; Selector is scope-relative, meaning
// it resolves against the element's own shadow root when InShadowDOM is set.
type ElementRecord struct {
	Index        int            `json:"index"`
	Tag          string         `json:"tag"`
	Type         string         `json:"type,omitempty"`
	Text         string         `json:"text,omitempty"`
	ID           string         `json:"id,omitempty"`
	Name         string         `json:"name,omitempty"`
	Href         string         `json:"href,omitempty"`
	Src          string         `json:"src,omitempty"`
	Alt          string         `json:"alt,omitempty"`
	Placeholder  string         `json:"placeholder,omitempty"`
	Value        string         `json:"value,omitempty"`
	AriaLabel    string         `json:"ariaLabel,omitempty"`
	AriaExpanded string         `json:"ariaExpanded,omitempty"`
	Role         string         `json:"role,omitempty"`
	Selector     string         `json:"selector"`
	ParentID     *int           `json:"parentId,omitempty"`
	InShadowDOM  bool           `json:"inShadowDom,omitempty"`
	FormContext  string         `json:"formContext,omitempty"`
	Options      []SelectOption `json:"options,omitempty"`
}

// PageMeta carries top-level metadata for one indexed snapshot.
type PageMeta struct {
	URL          string `json:"url"`
	Title        string `json:"title"`
	ElementCount int    `json:"elementCount"`
	ShadowRoots  int    `json:"shadowRoots"`
	FrameCount   int    `json:"frameCount"`
}
