// CLAUDE:SUMMARY Label inference — ordered strategy chain, first non-empty result wins.
package fieldmap

import (
	"strings"

	"golang.org/x/net/html"
)

// labelStrategy extracts a label for a control, or "" when it does not apply.
type labelStrategy func(doc, el *html.Node) string

// labelStrategies is the fixed priority order. Evaluation is lazy and stops
// at the first non-empty result, so order is a total tie-break: an explicit
// label beats a placeholder beats a table header.
var labelStrategies = []labelStrategy{
	labelForControl,
	ariaLabel,
	ariaLabelledBy,
	placeholder,
	enclosingLabel,
	precedingSiblingElement,
	tableRowHeader,
	precedingTextNode,
}

// inferLabel runs the strategy chain for one control.
func inferLabel(doc, el *html.Node) string {
	for _, strategy := range labelStrategies {
		if text := strategy(doc, el); text != "" {
			return text
		}
	}
	return ""
}

// labelForControl: a <label for="..."> pointing at the control's id.
func labelForControl(doc, el *html.Node) string {
	id := attr(el, "id")
	if id == "" {
		return ""
	}
	var found string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != "" {
			return
		}
		if isElement(n) && n.Data == "label" && attr(n, "for") == id && isVisible(n) {
			found = cleanLabel(collectText(n, nil))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return found
}

// ariaLabel: the accessible-name attribute on the control itself.
func ariaLabel(_, el *html.Node) string {
	return cleanLabel(attr(el, "aria-label"))
}

// ariaLabelledBy: accessible-name reference to another element's text.
func ariaLabelledBy(doc, el *html.Node) string {
	ref := findByID(doc, attr(el, "aria-labelledby"))
	if ref == nil {
		return ""
	}
	return cleanLabel(collectText(ref, nil))
}

// placeholder: the control's placeholder hint.
func placeholder(_, el *html.Node) string {
	return cleanLabel(attr(el, "placeholder"))
}

// enclosingLabel: a wrapping <label>'s text with the control's own text excised.
func enclosingLabel(_, el *html.Node) string {
	wrap := closest(el, "label")
	if wrap == nil {
		return ""
	}
	return cleanLabel(collectText(wrap, el))
}

// Element tags accepted as label-bearing preceding siblings.
var labelishTags = map[string]bool{
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"label": true, "b": true, "strong": true, "span": true, "div": true,
}

// precedingSiblingElement: the immediately preceding sibling element when it
// is a heading/label/emphasis-like element.
func precedingSiblingElement(_, el *html.Node) string {
	prev := el.PrevSibling
	for prev != nil && prev.Type != html.ElementNode {
		prev = prev.PrevSibling
	}
	if prev == nil || !labelishTags[prev.Data] || !isVisible(prev) {
		return ""
	}
	return cleanLabel(collectText(prev, nil))
}

// tableRowHeader: the containing row's <th>, or its first <td> when that cell
// is not the control's own cell. Common in EMR layouts.
func tableRowHeader(_, el *html.Node) string {
	tr := closest(el, "tr")
	if tr == nil {
		return ""
	}
	ownCell := closest(el, "td")
	var firstTD *html.Node
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if !isElement(c) {
			continue
		}
		if c.Data == "th" {
			return cleanLabel(collectText(c, nil))
		}
		if c.Data == "td" && firstTD == nil {
			firstTD = c
		}
	}
	if firstTD != nil && firstTD != ownCell {
		return cleanLabel(collectText(firstTD, nil))
	}
	return ""
}

// precedingTextNode: the nearest preceding sibling text node, stopping at the
// first element sibling.
func precedingTextNode(_, el *html.Node) string {
	for n := el.PrevSibling; n != nil; n = n.PrevSibling {
		if n.Type == html.TextNode {
			if t := cleanLabel(n.Data); t != "" {
				return t
			}
			continue
		}
		if n.Type == html.ElementNode {
			break
		}
	}
	return ""
}

// IsMultilineKind reports whether a field kind is a multi-line text surface.
// Used by plan building for note-target fallback.
func IsMultilineKind(kind string) bool {
	switch strings.ToLower(kind) {
	case KindTextarea, KindContentEditable, "textbox":
		return true
	}
	return false
}
