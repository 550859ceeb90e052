package index

import (
	"fmt"
	"strings"
)

// Render produces the compact text block a language model consumes: a
// short page header followed by one line per record. Lines stay terse on
// purpose; every token here is prompt budget.
func Render(snap *Snapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Page: %s\n", snap.Meta.URL)
	if snap.Meta.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", snap.Meta.Title)
	}
	fmt.Fprintf(&b, "Interactive elements: %d", snap.Meta.ElementCount)
	if snap.Meta.ShadowRoots > 0 {
		fmt.Fprintf(&b, " (shadow roots: %d)", snap.Meta.ShadowRoots)
	}
	if snap.Meta.FrameCount > 0 {
		fmt.Fprintf(&b, " (frames: %d)", snap.Meta.FrameCount)
	}
	b.WriteString("\n\n")

	if len(snap.Records) == 0 {
		b.WriteString("No interactive elements found.\n")
		return b.String()
	}

	for _, rec := range snap.Records {
		fmt.Fprintf(&b, "[%d] <%s", rec.Index, rec.Tag)
		if rec.Type != "" {
			fmt.Fprintf(&b, " type=%s", rec.Type)
		}
		b.WriteString(">")
		if rec.Text != "" {
			fmt.Fprintf(&b, " %q", rec.Text)
		} else if rec.AriaLabel != "" {
			fmt.Fprintf(&b, " %q", rec.AriaLabel)
		} else if rec.Placeholder != "" {
			fmt.Fprintf(&b, " placeholder=%q", rec.Placeholder)
		}
		fmt.Fprintf(&b, " selector=%s", rec.Selector)
		if rec.ParentID != nil {
			fmt.Fprintf(&b, " parent=%d", *rec.ParentID)
		}
		if rec.InShadowDOM {
			b.WriteString(" shadow")
		}
		if rec.Href != "" {
			fmt.Fprintf(&b, " href=%s", rec.Href)
		}
		if rec.Role != "" {
			fmt.Fprintf(&b, " role=%s", rec.Role)
		}
		if rec.AriaExpanded != "" {
			fmt.Fprintf(&b, " expanded=%s", rec.AriaExpanded)
		}
		if rec.FormContext != "" {
			fmt.Fprintf(&b, " context=%q", rec.FormContext)
		}
		b.WriteString("\n")
		for _, opt := range rec.Options {
			marker := " "
			if opt.Selected {
				marker = "*"
			}
			fmt.Fprintf(&b, "    %s option value=%q %q\n", marker, opt.Value, opt.Text)
		}
	}
	return b.String()
}
