package surface

import (
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/hazyhaar/chartfill/fieldmap"
)

func parse(t *testing.T, src string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

const clinicPage = `<html><head><title>Chart - Encounter</title></head><body>
	<nav aria-label="breadcrumb"><li>Patients</li><li>Jane Doe</li><li>Encounter</li></nav>
	<h1>Jane Doe</h1>
	<h2>Office Visit</h2>
	<div role="tablist">
		<button role="tab" aria-selected="false">Summary</button>
		<button role="tab" aria-selected="true">Progress Note</button>
		<button role="tab" aria-selected="false">Orders</button>
	</div>
	<button>Save</button>
	<button class="btn">Sign</button>
	<div role="dialog" aria-label="Allergy Warning"><p>Penicillin on file.</p></div>
	<script>var x = 1;</script>
</body></html>`

func TestCaptureCollectsSamples(t *testing.T) {
	snap := Capture(parse(t, clinicPage), "https://ehr.example/chart/42")

	if got, want := snap.Headings, []string{"Jane Doe", "Office Visit"}; !equal(got, want) {
		t.Errorf("headings: got %v, want %v", got, want)
	}
	if got, want := snap.Breadcrumbs, []string{"Patients", "Jane Doe", "Encounter"}; !equal(got, want) {
		t.Errorf("breadcrumbs: got %v, want %v", got, want)
	}
	if snap.ActiveTab != "Progress Note" {
		t.Errorf("active tab: got %q, want %q", snap.ActiveTab, "Progress Note")
	}
	if len(snap.Tabs) != 3 || snap.Tabs[0].Active || !snap.Tabs[1].Active {
		t.Errorf("tabs: got %+v", snap.Tabs)
	}
	if len(snap.Popups) != 1 || snap.Popups[0] != "Allergy Warning" {
		t.Errorf("popups: got %v", snap.Popups)
	}
	if !strings.HasPrefix(snap.SurfaceID, "surface_") {
		t.Errorf("surface id %q lacks prefix", snap.SurfaceID)
	}
}

func TestSampleCapAtTen(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("<html><body>")
	for i := 0; i < 25; i++ {
		sb.WriteString("<h2>Section</h2><button>Go</button>")
	}
	sb.WriteString("</body></html>")

	snap := Capture(parse(t, sb.String()), "https://ehr.example")
	if len(snap.Headings) != 10 {
		t.Errorf("headings: got %d, want 10", len(snap.Headings))
	}
	if len(snap.Buttons) != 10 {
		t.Errorf("buttons: got %d, want 10", len(snap.Buttons))
	}
}

func TestIDStableAndSensitive(t *testing.T) {
	base := ID("https://ehr.example/chart", "Progress Note", []string{"Jane Doe"})
	if again := ID("https://ehr.example/chart", "Progress Note", []string{"Jane Doe"}); again != base {
		t.Errorf("same inputs produced %q then %q", base, again)
	}

	variants := []string{
		ID("https://ehr.example/other", "Progress Note", []string{"Jane Doe"}),
		ID("https://ehr.example/chart", "Orders", []string{"Jane Doe"}),
		ID("https://ehr.example/chart", "Progress Note", []string{"John Doe"}),
	}
	for i, v := range variants {
		if v == base {
			t.Errorf("variant %d collided with base id %q", i, base)
		}
	}
}

func TestIDSeparatorPreventsConcatAliasing(t *testing.T) {
	a := ID("https://x", "ab", []string{"c"})
	b := ID("https://x", "a", []string{"bc"})
	if a == b {
		t.Error("field boundary lost in fingerprint input")
	}
}

func TestTitleAndPageText(t *testing.T) {
	doc := parse(t, clinicPage)
	if got := Title(doc); got != "Chart - Encounter" {
		t.Errorf("title: got %q", got)
	}
	text := PageText(doc)
	if !strings.Contains(text, "Penicillin on file.") {
		t.Errorf("page text missing dialog body: %q", text)
	}
	if strings.Contains(text, "var x") {
		t.Errorf("page text includes script content: %q", text)
	}
}

func TestPageTextLeavesTreeIntact(t *testing.T) {
	// The script sits between the span and the input: if PageText removed
	// it, the span would become the input's preceding sibling and a
	// re-scan would suddenly label the field.
	doc := parse(t, `<html><body>
		<span>Allergies</span><script>var x = 1;</script><input id="allergies" aria-hidden="false">
	</body></html>`)

	before := fieldmap.Map(doc)
	text := PageText(doc)
	after := fieldmap.Map(doc)

	if strings.Contains(text, "var x") {
		t.Errorf("page text includes script content: %q", text)
	}
	if len(before) != len(after) {
		t.Fatalf("field set changed after PageText: %d then %d", len(before), len(after))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Errorf("field %d changed: %+v then %+v", i, before[i], after[i])
		}
	}
	if PageText(doc) != text {
		t.Error("second PageText call differs from first")
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
