// CLAUDE:SUMMARY Candidate control enumeration — input-like elements filtered by visibility attributes.
package fieldmap

import (
	"strings"

	"golang.org/x/net/html"
)

// Input types that can never receive fill values.
var excludedInputTypes = map[string]bool{
	"hidden": true,
	"submit": true,
	"button": true,
	"reset":  true,
	"image":  true,
}

// scan returns candidate controls in document order: text-like inputs,
// textareas, selects, contenteditable regions, and role=textbox elements,
// excluding elements hidden at the attribute level.
func scan(doc *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if isElement(n) {
			if !isVisible(n) {
				// Hidden subtrees cannot contain visible controls.
				if isHiddenContainer(n) {
					return
				}
			} else if isCandidate(n) {
				out = append(out, n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

func isCandidate(n *html.Node) bool {
	switch n.Data {
	case "input":
		return !excludedInputTypes[strings.ToLower(attr(n, "type"))]
	case "textarea", "select":
		return true
	}
	if strings.EqualFold(attr(n, "contenteditable"), "true") {
		return true
	}
	return attr(n, "role") == "textbox"
}

// isVisible applies attribute-level visibility on a static tree. A live
// renderer would also check computed size; on a parsed tree the hidden
// attribute, type=hidden, aria-hidden, and inline display/visibility styles
// are what we can see.
func isVisible(n *html.Node) bool {
	if hasAttr(n, "hidden") {
		return false
	}
	if attr(n, "aria-hidden") == "true" {
		return false
	}
	style := strings.ReplaceAll(strings.ToLower(attr(n, "style")), " ", "")
	if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
		return false
	}
	return true
}

// isHiddenContainer reports whether an invisible element hides its whole
// subtree (hidden attr or inline style, as opposed to eg. type=hidden which
// only affects the input itself).
func isHiddenContainer(n *html.Node) bool {
	if hasAttr(n, "hidden") || attr(n, "aria-hidden") == "true" {
		return true
	}
	style := strings.ReplaceAll(strings.ToLower(attr(n, "style")), " ", "")
	return strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden")
}

// isEditable reports whether the control accepts input right now.
func isEditable(n *html.Node) bool {
	if hasAttr(n, "disabled") || hasAttr(n, "readonly") {
		return false
	}
	return true
}
