package anchor

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/chartfill/agent"
	"github.com/hazyhaar/chartfill/kit"
	"github.com/hazyhaar/chartfill/planner"
	"github.com/hazyhaar/chartfill/replay"
)

const encounterPage = `<html><head><title>Encounter</title></head><body>
	<h1>Jane Doe</h1>
	<p>Name: Jane Doe. DOB: 01/02/1980. Reason for Visit: cough.</p>
	<label for="name">Patient Name</label><input id="name" type="text">
	<label for="note">Progress Note</label><textarea id="note"></textarea>
</body></html>`

// memElement is a static stand-in for a live control.
type memElement struct {
	mu    sync.Mutex
	value string
}

func (m *memElement) ScrollIntoView() error { return nil }
func (m *memElement) Focus() error          { return nil }
func (m *memElement) Blur() error           { return nil }
func (m *memElement) Click() error          { return nil }
func (m *memElement) IsToggle() bool        { return false }
func (m *memElement) Highlight(bool) error  { return nil }

func (m *memElement) Value() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value, nil
}

func (m *memElement) SetValue(v string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = v
	return nil
}

func (m *memElement) Checked() (bool, error) { return false, nil }
func (m *memElement) SetChecked(bool) error  { return nil }

type memDoc struct {
	els map[string]*memElement
}

func (d *memDoc) Resolve(locator string) (replay.Element, bool) {
	el, ok := d.els[locator]
	return el, ok
}

// staticDriver serves a fixed page with controls backed by memElements.
type staticDriver struct {
	url  string
	html string
	doc  *memDoc
}

func (d *staticDriver) URL() string { return d.url }

func (d *staticDriver) HTML(context.Context) (string, error) { return d.html, nil }

func (d *staticDriver) Document() replay.Document { return d.doc }

func (d *staticDriver) Close() error { return nil }

func newEncounterDriver() *staticDriver {
	return &staticDriver{
		url:  "https://ehr.example/encounter/7",
		html: encounterPage,
		doc: &memDoc{els: map[string]*memElement{
			"#name": {},
			"#note": {},
		}},
	}
}

func newTestSession(t *testing.T, opts ...SessionOption) (*Session, *staticDriver) {
	t.Helper()
	driver := newEncounterDriver()
	opts = append([]SessionOption{WithReplayPacing(replay.Pacing{})}, opts...)
	return NewSession(driver, opts...), driver
}

func TestSessionMap(t *testing.T) {
	s, _ := newTestSession(t)
	m, err := s.Map(context.Background())
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if len(m.Fields) != 2 {
		t.Fatalf("fields: got %d, want 2", len(m.Fields))
	}
	if m.Title != "Encounter" {
		t.Errorf("title: got %q", m.Title)
	}
	if m.UX == nil || !strings.HasPrefix(m.UX.SurfaceID, "surface_") {
		t.Errorf("ux snapshot: %+v", m.UX)
	}
	if !strings.Contains(m.Context, "Reason for Visit: cough") {
		t.Errorf("context missing page text: %q", m.Context)
	}
	if s.LastMap() == nil {
		t.Error("map not retained on session")
	}
}

func TestSessionFillWritesPageAndUndoRestores(t *testing.T) {
	s, driver := newTestSession(t)
	ctx := context.Background()

	driver.doc.els["#note"].value = "prior note"

	plan, res, err := s.Fill(ctx, "S: cough x3 days.")
	if err != nil {
		t.Fatalf("fill: %v", err)
	}
	if !res.OK || res.Failed != 0 || res.Skipped != 0 {
		t.Fatalf("result: %+v", res)
	}
	if got, _ := driver.doc.els["#name"].Value(); got != "Jane Doe" {
		t.Errorf("#name: got %q, want context hint", got)
	}
	if got, _ := driver.doc.els["#note"].Value(); got != "S: cough x3 days." {
		t.Errorf("#note: got %q", got)
	}
	if s.LastPlan() == nil || s.LastPlan().ID != plan.ID {
		t.Error("plan not retained on session")
	}

	restored, err := s.Undo(ctx)
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if restored != 2 {
		t.Errorf("restored: got %d, want 2", restored)
	}
	if got, _ := driver.doc.els["#note"].Value(); got != "prior note" {
		t.Errorf("#note after undo: got %q", got)
	}
	if _, err := s.Undo(ctx); err == nil {
		t.Error("second undo succeeded; undo must be single-level")
	}
}

func TestSessionRefusesConcurrentPlans(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()

	slow := &planner.FillPlan{
		ID:    "plan_slow",
		Steps: []planner.FillStep{{Action: planner.ActionWait, Ms: 300}},
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := s.ExecutePlan(ctx, slow)
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	if _, err := s.ExecutePlan(ctx, &planner.FillPlan{ID: "plan_second"}); err == nil {
		t.Error("second plan accepted while first in flight")
	}
	if err := <-errCh; err != nil {
		t.Fatalf("first plan: %v", err)
	}
}

// capturingPlanSource records the session id the fill context carries.
type capturingPlanSource struct {
	sessionID string
}

func (c *capturingPlanSource) Plan(ctx context.Context, req agent.PlanRequest) (*planner.FillPlan, error) {
	c.sessionID = kit.GetSessionID(ctx)
	return localPlanSource{builder: planner.NewBuilder()}.Plan(ctx, req)
}

func TestFillTagsContextWithSessionID(t *testing.T) {
	src := &capturingPlanSource{}
	s, _ := newTestSession(t, WithPlanSource(src))

	if _, _, err := s.Fill(context.Background(), "note"); err != nil {
		t.Fatalf("fill: %v", err)
	}
	if !strings.HasPrefix(src.sessionID, "sess_") {
		t.Errorf("session id: got %q, want sess_ prefix", src.sessionID)
	}
}

func TestSessionSendMapToAgent(t *testing.T) {
	svc := agent.NewService()
	r := chi.NewRouter()
	svc.RegisterHTTP(r)
	ts := httptest.NewServer(r)
	defer ts.Close()

	s, _ := newTestSession(t, WithAgentURL(ts.URL), WithDoctorID("dr-1"))
	ok, count, err := s.SendMap(context.Background())
	if err != nil {
		t.Fatalf("sendmap: %v", err)
	}
	if !ok || count != 2 {
		t.Fatalf("ack: ok=%v count=%d", ok, count)
	}
	latest := svc.Latest()
	if latest == nil || latest.DoctorID != "dr-1" {
		t.Fatalf("agent latest: %+v", latest)
	}
}

func TestHTTPPlanSource(t *testing.T) {
	svc := agent.NewService()
	r := chi.NewRouter()
	svc.RegisterHTTP(r)
	ts := httptest.NewServer(r)
	defer ts.Close()

	src := &HTTPPlanSource{BaseURL: ts.URL}
	s, driver := newTestSession(t, WithPlanSource(src))

	plan, res, err := s.Fill(context.Background(), "note text")
	if err != nil {
		t.Fatalf("fill: %v", err)
	}
	if len(plan.Steps) != 10 {
		t.Fatalf("steps: got %d, want 10", len(plan.Steps))
	}
	if !res.OK {
		t.Fatalf("result: %+v", res)
	}
	if got, _ := driver.doc.els["#note"].Value(); got != "note text" {
		t.Errorf("#note: got %q", got)
	}
	// The remote agent retains the plan it built.
	if svc.PlanByID(plan.ID) == nil {
		t.Error("agent did not retain the plan")
	}
}
