// CLAUDE:SUMMARY Locator synthesis — unique id, unique name, or structural nth-of-type path.
package fieldmap

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Locator builds a minimal CSS locator string sufficient to re-find el in
// the same document instance. Preference order: unique #id, unique [name],
// structural tag path with sibling ordinals. Tree mutation between synthesis
// and resolution can make the locator dangle; that is an accepted limitation.
func Locator(doc, el *html.Node) string {
	if id := attr(el, "id"); id != "" && countWithAttr(doc, "id", id) == 1 {
		return "#" + escapeIdent(id)
	}
	if name := attr(el, "name"); name != "" && countWithAttr(doc, "name", name) == 1 {
		return `[name="` + escapeQuoted(name) + `"]`
	}

	var parts []string
	for node := el; isElement(node); node = node.Parent {
		sel := node.Data
		if id := attr(node, "id"); id != "" {
			parts = append([]string{sel + "#" + escapeIdent(id)}, parts...)
			break
		}
		if total, nth := sameTagSiblings(node); total > 1 {
			sel += fmt.Sprintf(":nth-of-type(%d)", nth)
		}
		parts = append([]string{sel}, parts...)
	}
	return strings.Join(parts, " > ")
}

// sameTagSiblings returns how many element siblings share node's tag
// (including node) and node's 1-based position among them.
func sameTagSiblings(node *html.Node) (total, nth int) {
	if node.Parent == nil {
		return 1, 1
	}
	for s := node.Parent.FirstChild; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode && s.Data == node.Data {
			total++
			if s == node {
				nth = total
			}
		}
	}
	return total, nth
}

func countWithAttr(doc *html.Node, key, val string) int {
	n := 0
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		if isElement(cur) && attr(cur, key) == val {
			n++
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return n
}

// escapeIdent escapes characters that would break a CSS identifier.
func escapeIdent(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('\\')
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func escapeQuoted(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
