package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/chartfill/dbopen"
	"github.com/hazyhaar/chartfill/fieldmap"
	"github.com/hazyhaar/chartfill/kit"
	"github.com/hazyhaar/chartfill/observability"
	"github.com/hazyhaar/chartfill/planner"
	"github.com/hazyhaar/chartfill/readiness"
	"github.com/hazyhaar/chartfill/replay"
	"github.com/hazyhaar/chartfill/surface"
)

func newTestServer(t *testing.T) (*Service, *httptest.Server) {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(readiness.Schema))
	scorer := readiness.NewScorer(db, readiness.Config{}, nil)
	svc := NewService(WithScorer(scorer))

	r := chi.NewRouter()
	svc.RegisterHTTP(r)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return svc, ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func sampleMap(doctorID string) *DomMap {
	return &DomMap{
		URL:   "https://ehr.example/chart/1",
		Title: "Encounter",
		Fields: []fieldmap.FieldDescriptor{
			{Locator: "#name", Label: "Patient Name", Role: fieldmap.RoleName, Kind: fieldmap.KindText, Editable: true, Visible: true},
			{Locator: "#note", Label: "Progress Note", Role: fieldmap.RoleNote, Kind: fieldmap.KindTextarea, Editable: true, Visible: true},
		},
		Context:  "Name: Jane Doe",
		UX:       &surface.Snapshot{SurfaceID: "surface_123"},
		DoctorID: doctorID,
	}
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
}

func TestIngestRejectsMissingURL(t *testing.T) {
	_, ts := newTestServer(t)
	resp := postJSON(t, ts.URL+"/dom", map[string]any{"fields": []any{}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", resp.StatusCode)
	}
}

func TestIngestThenLatest(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/dom")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("empty latest status: got %d, want 404", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/dom", sampleMap("dr-1"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ingest status: got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/dom")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var m DomMap
	decode(t, resp, &m)
	if m.URL != "https://ehr.example/chart/1" || len(m.Fields) != 2 {
		t.Fatalf("latest: %+v", m)
	}
}

func TestIngestSanitizesContext(t *testing.T) {
	svc, ts := newTestServer(t)
	m := sampleMap("")
	m.Context = `Name: Jane <script>alert("x")</script>Doe`
	postJSON(t, ts.URL+"/dom", m)

	got := svc.Latest().Context
	if strings.Contains(got, "<script>") || strings.Contains(got, "alert") {
		t.Fatalf("context not sanitized: %q", got)
	}
	if !strings.Contains(got, "Name: Jane") {
		t.Fatalf("sanitization removed text content: %q", got)
	}
}

func TestPlanFromLatestMap(t *testing.T) {
	_, ts := newTestServer(t)
	postJSON(t, ts.URL+"/dom", sampleMap("dr-2"))

	resp := postJSON(t, ts.URL+"/actions/plan", map[string]any{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("plan status: got %d", resp.StatusCode)
	}
	var body struct {
		OK   bool `json:"ok"`
		Plan struct {
			ID    string `json:"id"`
			Steps []struct {
				Action  string `json:"action"`
				Locator string `json:"locator"`
				Value   string `json:"value"`
			} `json:"steps"`
		} `json:"plan"`
	}
	decode(t, resp, &body)
	if !body.OK || !strings.HasPrefix(body.Plan.ID, "plan_") {
		t.Fatalf("plan body: %+v", body)
	}
	// Two editable fields, five steps each.
	if len(body.Plan.Steps) != 10 {
		t.Fatalf("steps: got %d, want 10", len(body.Plan.Steps))
	}
	for _, s := range body.Plan.Steps {
		if s.Action == "setValue" && s.Locator == "#name" && s.Value != "Jane Doe" {
			t.Errorf("name value: got %q, want hint from context", s.Value)
		}
	}
}

func TestPlanWithoutFieldsOrMapIs400(t *testing.T) {
	_, ts := newTestServer(t)
	resp := postJSON(t, ts.URL+"/actions/fill", map[string]any{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", resp.StatusCode)
	}
}

func TestExecuteWithoutSessionReportsSkips(t *testing.T) {
	_, ts := newTestServer(t)
	postJSON(t, ts.URL+"/dom", sampleMap(""))

	var planBody struct {
		Plan json.RawMessage `json:"plan"`
	}
	resp := postJSON(t, ts.URL+"/actions/plan", map[string]any{})
	decode(t, resp, &planBody)
	var plan struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(planBody.Plan, &plan); err != nil {
		t.Fatalf("unmarshal plan: %v", err)
	}

	resp = postJSON(t, ts.URL+"/actions/execute", map[string]any{"planId": plan.ID})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("execute status: got %d", resp.StatusCode)
	}
	var result struct {
		OK      bool `json:"ok"`
		Skipped int  `json:"skipped"`
	}
	decode(t, resp, &result)
	if result.OK || result.Skipped != 10 {
		t.Fatalf("result: %+v", result)
	}

	resp = postJSON(t, ts.URL+"/actions/execute", map[string]any{"planId": "plan_unknown"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown plan status: got %d, want 404", resp.StatusCode)
	}
}

func TestReadinessEndpointTracksIngest(t *testing.T) {
	_, ts := newTestServer(t)
	for i := 0; i < 4; i++ {
		postJSON(t, ts.URL+"/dom", sampleMap("dr-9"))
	}

	resp, err := http.Get(ts.URL + "/readiness/dr-9")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	var p readiness.Profile
	decode(t, resp, &p)
	if p.Events != 4 || p.Surfaces["surface_123"] != 4 {
		t.Fatalf("profile: %+v", p)
	}
	if p.AutopilotReady {
		t.Error("ready after 4 events on one surface")
	}
}

func TestPlanCacheBounded(t *testing.T) {
	svc := NewService()
	ctx := t.Context()
	m := sampleMap("")
	if _, err := svc.Ingest(ctx, m); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	var firstID string
	for i := 0; i < maxRetainedPlans+10; i++ {
		plan, err := svc.Plan(ctx, PlanRequest{})
		if err != nil {
			t.Fatalf("plan %d: %v", i, err)
		}
		if i == 0 {
			firstID = plan.ID
		}
	}
	if svc.PlanByID(firstID) != nil {
		t.Error("oldest plan not evicted")
	}
	if len(svc.plans) != maxRetainedPlans {
		t.Errorf("cache size: got %d, want %d", len(svc.plans), maxRetainedPlans)
	}
}

// recordingGenerator captures the context handed to note generation.
type recordingGenerator struct {
	mu  sync.Mutex
	got string
}

func (g *recordingGenerator) GenerateNote(_ context.Context, pageContext string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.got = pageContext
	return "generated note", nil
}

func TestPlanDoesNotResanitizeIngestedContext(t *testing.T) {
	gen := &recordingGenerator{}
	svc := NewService(WithBuilder(planner.NewBuilder(planner.WithNoteGenerator(gen))))
	ctx := t.Context()

	m := sampleMap("")
	m.Context = "Vitals & labs reviewed"
	if _, err := svc.Ingest(ctx, m); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	want := svc.Latest().Context
	if !strings.Contains(want, "&amp;") {
		t.Fatalf("ingest did not escape ampersand: %q", want)
	}

	if _, err := svc.Plan(ctx, PlanRequest{}); err != nil {
		t.Fatalf("plan: %v", err)
	}
	if strings.Contains(gen.got, "&amp;amp;") {
		t.Fatalf("context escaped twice: %q", gen.got)
	}
	if gen.got != want {
		t.Errorf("generator context: got %q, want %q", gen.got, want)
	}
}

func TestEventLogRecordsPipeline(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(observability.Schema))
	events := observability.NewEventLogger(db)
	svc := NewService(WithEventLog(events))
	ctx := t.Context()

	if _, err := svc.Ingest(ctx, sampleMap("dr-5")); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	plan, err := svc.Plan(ctx, PlanRequest{})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	svc.RecordExecution(ctx, replay.Result{PlanID: plan.ID, OK: true, Applied: 10})

	for _, tc := range []struct {
		eventType string
		want      int
	}{
		{observability.EventMapIngested, 1},
		{observability.EventPlanBuilt, 1},
		{observability.EventPlanExecuted, 1},
	} {
		n, err := events.CountByType(ctx, tc.eventType)
		if err != nil {
			t.Fatalf("count %s: %v", tc.eventType, err)
		}
		if n != tc.want {
			t.Errorf("%s: got %d, want %d", tc.eventType, n, tc.want)
		}
	}
}

func TestHTTPRequestsCarryRequestID(t *testing.T) {
	svc := NewService()
	r := chi.NewRouter()
	svc.RegisterHTTP(r)

	var gotID, gotTransport string
	r.Get("/ctx", func(w http.ResponseWriter, req *http.Request) {
		gotID = kit.GetRequestID(req.Context())
		gotTransport = kit.GetTransport(req.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	ts := httptest.NewServer(r)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/ctx")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()

	if !strings.HasPrefix(gotID, "req_") {
		t.Errorf("request id: got %q, want req_ prefix", gotID)
	}
	if gotTransport != "http" {
		t.Errorf("transport: got %q, want %q", gotTransport, "http")
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ListenAddr != ":8787" || cfg.DBPath != "chartfill.db" {
		t.Fatalf("defaults: %+v", cfg)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := t.TempDir() + "/chartfill.yaml"
	content := "listen_addr: \":9999\"\nreadiness:\n  min_events: 5\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":9999" {
		t.Errorf("listen_addr: got %q", cfg.ListenAddr)
	}
	if cfg.Readiness.MinEvents != 5 {
		t.Errorf("min_events: got %d", cfg.Readiness.MinEvents)
	}
	if cfg.DBPath != "chartfill.db" {
		t.Errorf("db_path default: got %q", cfg.DBPath)
	}
}
