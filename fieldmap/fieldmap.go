// CLAUDE:SUMMARY Field discovery entry point — scans a parsed document, infers labels, classifies roles, synthesizes locators.
// Package fieldmap discovers fillable fields in an HTML document tree.
//
// The pipeline per document:
//
//	scan (candidate controls) → label (strategy chain) → role (pattern table) → locator
//
// fieldmap is pure: it never mutates the tree, and re-mapping an unchanged
// tree yields the same descriptors in the same order. Elements for which no
// label strategy produces text are silently excluded; duplicate locators are
// dropped first-seen-wins.
package fieldmap

import (
	"strings"

	"golang.org/x/net/html"
)

// FieldDescriptor describes one fillable control discovered on a page.
// Identity is the Locator, unique within one scan.
type FieldDescriptor struct {
	Locator  string `json:"locator"`
	Label    string `json:"label"`
	Role     string `json:"role"`
	Kind     string `json:"kind,omitempty"`
	Editable bool   `json:"editable"`
	Visible  bool   `json:"visible"`
}

// Control kinds, derived from the element itself rather than its label.
const (
	KindText            = "text"
	KindTextarea        = "textarea"
	KindSelect          = "select"
	KindCheckbox        = "checkbox"
	KindRadio           = "radio"
	KindContentEditable = "contenteditable"
)

// Map scans the document and returns descriptors for every visible, labeled,
// fillable control in document order.
func Map(doc *html.Node) []FieldDescriptor {
	var out []FieldDescriptor
	seen := make(map[string]bool)

	for _, el := range scan(doc) {
		label := inferLabel(doc, el)
		if label == "" {
			continue
		}
		loc := Locator(doc, el)
		if loc == "" || seen[loc] {
			continue
		}
		seen[loc] = true

		out = append(out, FieldDescriptor{
			Locator:  loc,
			Label:    label,
			Role:     ClassifyRole(label),
			Kind:     kindOf(el),
			Editable: isEditable(el),
			Visible:  true,
		})
	}
	return out
}

// kindOf maps an element to its control kind.
func kindOf(n *html.Node) string {
	switch n.Data {
	case "textarea":
		return KindTextarea
	case "select":
		return KindSelect
	case "input":
		switch strings.ToLower(attr(n, "type")) {
		case "checkbox":
			return KindCheckbox
		case "radio":
			return KindRadio
		default:
			return KindText
		}
	}
	if strings.EqualFold(attr(n, "contenteditable"), "true") {
		return KindContentEditable
	}
	return KindText
}

// --- shared node helpers ---

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func isElement(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode
}

// collectText concatenates the text content under n, whitespace-normalized.
// skip, if non-nil, excludes that subtree (used to excise a control's own
// text from its enclosing label).
func collectText(n *html.Node, skip *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		if cur == skip {
			return
		}
		if cur.Type == html.TextNode {
			sb.WriteString(cur.Data)
			sb.WriteString(" ")
			return
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

// cleanLabel strips colon/asterisk decoration and trims whitespace.
func cleanLabel(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == ':' || r == '*' {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// findByID returns the first element with the given id attribute.
func findByID(doc *html.Node, id string) *html.Node {
	if id == "" {
		return nil
	}
	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if isElement(n) && attr(n, "id") == id {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return found
}

// closest walks up from n to the nearest ancestor with the given tag.
func closest(n *html.Node, tag string) *html.Node {
	for cur := n.Parent; cur != nil; cur = cur.Parent {
		if isElement(cur) && cur.Data == tag {
			return cur
		}
	}
	return nil
}
