// CLAUDE:SUMMARY Locator resolution — CSS-subset matcher for the locator grammar over parsed trees.
package fieldmap

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Resolve re-finds the element a locator points at within the document, or
// nil when nothing matches. Supports exactly the grammar Locator emits:
//
//	#id
//	[name="value"]
//	tag, tag#id, tag:nth-of-type(n), chained with " > "
func Resolve(doc *html.Node, locator string) *html.Node {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return nil
	}

	if strings.HasPrefix(locator, "#") && !strings.Contains(locator, " ") {
		return findByID(doc, unescapeIdent(locator[1:]))
	}
	if strings.HasPrefix(locator, `[name="`) && strings.HasSuffix(locator, `"]`) {
		name := unescapeQuoted(locator[len(`[name="`) : len(locator)-2])
		return findFirstWithAttr(doc, "name", name)
	}

	current := []*html.Node{doc}
	for _, seg := range strings.Split(locator, " > ") {
		step, ok := parseSegment(seg)
		if !ok {
			return nil
		}

		// An id segment jumps straight to the element regardless of depth.
		if step.id != "" {
			n := findByID(doc, step.id)
			if n == nil || (step.tag != "" && n.Data != step.tag) {
				return nil
			}
			current = []*html.Node{n}
			continue
		}

		var next []*html.Node
		for _, parent := range current {
			sameTag := 0
			for c := parent.FirstChild; c != nil; c = c.NextSibling {
				if c.Type != html.ElementNode || c.Data != step.tag {
					continue
				}
				sameTag++
				if step.nth == 0 || sameTag == step.nth {
					next = append(next, c)
				}
			}
		}
		if len(next) == 0 {
			return nil
		}
		current = next
	}
	return current[0]
}

type pathSegment struct {
	tag string
	id  string
	nth int // 0 = any position
}

func parseSegment(seg string) (pathSegment, bool) {
	seg = strings.TrimSpace(seg)
	var step pathSegment

	if idx := strings.Index(seg, ":nth-of-type("); idx >= 0 {
		numStr := strings.TrimSuffix(seg[idx+len(":nth-of-type("):], ")")
		n, err := strconv.Atoi(numStr)
		if err != nil || n < 1 {
			return step, false
		}
		step.nth = n
		seg = seg[:idx]
	}
	if idx := strings.IndexByte(seg, '#'); idx >= 0 {
		step.id = unescapeIdent(seg[idx+1:])
		seg = seg[:idx]
	}
	step.tag = seg
	if step.tag == "" && step.id == "" {
		return step, false
	}
	return step, true
}

func findFirstWithAttr(doc *html.Node, key, val string) *html.Node {
	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if isElement(n) && attr(n, key) == val {
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

func unescapeIdent(s string) string {
	return strings.ReplaceAll(s, `\`, "")
}

func unescapeQuoted(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}
