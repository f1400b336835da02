// CLAUDE:SUMMARY Surface fingerprinting — bounded samples of headings/tabs/breadcrumbs and a stable grouping hash.
// Package surface derives a compact identity for the current page "surface":
// the logical screen a user is looking at, as opposed to the URL alone.
//
// A Snapshot holds small bounded samples of headings, breadcrumbs, tabs,
// buttons, and popup titles. The SurfaceID is a non-cryptographic hash over
// (url, active tab, headings): two scans of the same logical screen collapse
// to the same surface even when cosmetic content differs, while navigation
// or heading changes produce a new one. It is a fingerprint for telemetry
// grouping, not an identifier.
package surface

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Sample caps. Surfaces are fingerprints; more than this adds noise.
const (
	maxHeadings    = 10
	maxBreadcrumbs = 10
	maxTabs        = 10
	maxButtons     = 10
	maxPopups      = 10
)

// Tab is one visible tab control and whether it is selected.
type Tab struct {
	Label  string `json:"label"`
	Active bool   `json:"active"`
}

// Snapshot is the captured surface state for one scan.
type Snapshot struct {
	CapturedAt  time.Time `json:"capturedAt"`
	Headings    []string  `json:"headings"`
	Breadcrumbs []string  `json:"breadcrumbs"`
	Tabs        []Tab     `json:"tabs"`
	ActiveTab   string    `json:"activeTab,omitempty"`
	Buttons     []string  `json:"buttons"`
	Popups      []string  `json:"popups"`
	SurfaceID   string    `json:"surfaceId"`
}

// Capture builds a Snapshot from a parsed document and its URL.
func Capture(doc *html.Node, pageURL string) Snapshot {
	q := goquery.NewDocumentFromNode(doc)

	snap := Snapshot{
		CapturedAt:  time.Now().UTC(),
		Headings:    sampleText(q, "h1, h2, h3", maxHeadings),
		Breadcrumbs: breadcrumbs(q),
		Tabs:        tabs(q),
		Buttons:     sampleText(q, "button, .btn", maxButtons),
		Popups:      popups(q),
	}
	for _, t := range snap.Tabs {
		if t.Active {
			snap.ActiveTab = t.Label
			break
		}
	}
	snap.SurfaceID = ID(pageURL, snap.ActiveTab, snap.Headings)
	return snap
}

// ID computes the surface fingerprint. FNV-1a: deterministic, cheap, and
// explicitly not collision-resistant.
func ID(pageURL, activeTab string, headings []string) string {
	h := fnv.New64a()
	h.Write([]byte(pageURL))
	h.Write([]byte{'|'})
	h.Write([]byte(activeTab))
	for _, head := range headings {
		h.Write([]byte{'|'})
		h.Write([]byte(head))
	}
	return fmt.Sprintf("surface_%d", h.Sum64())
}

func sampleText(q *goquery.Document, selector string, limit int) []string {
	var out []string
	q.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if text := clean(s.Text()); text != "" {
			out = append(out, text)
		}
		return len(out) < limit
	})
	return out
}

func breadcrumbs(q *goquery.Document) []string {
	var out []string
	q.Find(`nav[aria-label="breadcrumb"], .breadcrumb`).First().
		Find("li, a, span").
		EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if text := clean(s.Text()); text != "" {
				out = append(out, text)
			}
			return len(out) < maxBreadcrumbs
		})
	return out
}

func tabs(q *goquery.Document) []Tab {
	var out []Tab
	q.Find(`[role="tab"], .tab, .nav-link`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		label := clean(s.Text())
		if label == "" {
			return true
		}
		out = append(out, Tab{
			Label:  label,
			Active: s.AttrOr("aria-selected", "") == "true" || s.HasClass("active") || s.HasClass("selected"),
		})
		return len(out) < maxTabs
	})
	return out
}

func popups(q *goquery.Document) []string {
	var out []string
	q.Find(`[role="dialog"], .modal, .popup`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		title := clean(s.AttrOr("aria-label", ""))
		if title == "" {
			title = clean(s.Find("h1, h2, h3, header").First().Text())
		}
		if title != "" {
			out = append(out, title)
		}
		return len(out) < maxPopups
	})
	return out
}

// Title returns the document title, trimmed.
func Title(doc *html.Node) string {
	return clean(goquery.NewDocumentFromNode(doc).Find("title").First().Text())
}

// PageText returns the visible body text, whitespace-normalized. Used as the
// free-text context for plan building. The document tree is shared with the
// field mapper, so this walks without mutating it.
func PageText(doc *html.Node) string {
	var sb strings.Builder
	for _, body := range goquery.NewDocumentFromNode(doc).Find("body").Nodes {
		visibleText(body, &sb)
	}
	return clean(sb.String())
}

func visibleText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript":
			return
		}
	}
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		sb.WriteByte(' ')
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		visibleText(c, sb)
	}
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
