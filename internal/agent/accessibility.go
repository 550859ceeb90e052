package agent

import (
	"fmt"
	"strings"

	"github.com/Zegnet/qandalf-agentic/api/schemas"
	"github.com/Zegnet/qandalf-agentic/internal/index"
)

var labelledControlTags = map[string]bool{
	"input": true, "select": true, "textarea": true,
}

var namedControlTags = map[string]bool{
	"a": true, "button": true,
}

var expandableTags = map[string]bool{
	"a": true, "button": true, "summary": true, "details": true,
}

// accessibilityReport walks the indexed elements and flags the common
// authoring problems: images without alt text, unlabeled form controls,
// nameless buttons and links, and aria-expanded on elements that cannot
// carry it. An empty elementType inspects everything.
func accessibilityReport(snap *index.Snapshot, elementType string) string {
	elementType = strings.ToLower(strings.TrimSpace(elementType))

	checked := 0
	var issues []string
	for _, rec := range snap.Records {
		if elementType != "" && rec.Tag != elementType {
			continue
		}
		checked++
		for _, issue := range recordIssues(rec) {
			issues = append(issues, fmt.Sprintf("[%d] <%s> selector=%s : %s",
				rec.Index, rec.Tag, rec.Selector, issue))
		}
	}

	var b strings.Builder
	scope := "all elements"
	if elementType != "" {
		scope = fmt.Sprintf("<%s> elements", elementType)
	}
	fmt.Fprintf(&b, "Accessibility inspection (%s): %d checked, %d issue(s)\n", scope, checked, len(issues))
	if len(issues) == 0 {
		b.WriteString("No accessibility issues found.")
		return b.String()
	}
	b.WriteString(strings.Join(issues, "\n"))
	return b.String()
}

func recordIssues(rec schemas.ElementRecord) []string {
	var out []string

	if rec.Tag == "img" && rec.Alt == "" && rec.AriaLabel == "" {
		out = append(out, "image has no alt text or aria-label")
	}

	if labelledControlTags[rec.Tag] && !isButtonLike(rec) && rec.Type != "hidden" {
		if rec.Text == "" && rec.AriaLabel == "" && rec.Placeholder == "" {
			out = append(out, "form control has no accessible label")
		}
	}

	if namedControlTags[rec.Tag] || isButtonLike(rec) {
		if rec.Text == "" && rec.AriaLabel == "" && rec.Value == "" && rec.Alt == "" {
			out = append(out, "interactive element has no accessible name")
		}
	}

	if rec.AriaExpanded != "" && !expandableTags[rec.Tag] && rec.Role != "button" && rec.Role != "link" {
		out = append(out, "aria-expanded on an element that is not a disclosure control")
	}

	return out
}

// isButtonLike covers the input types that act as buttons and so need a
// name rather than a label.
func isButtonLike(rec schemas.ElementRecord) bool {
	if rec.Tag != "input" {
		return false
	}
	switch rec.Type {
	case "submit", "button", "reset", "image":
		return true
	}
	return false
}
