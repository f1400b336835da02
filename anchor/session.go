// CLAUDE:SUMMARY Live fill session — owns the mapped state, one in-flight plan, and undo for a single page.
// Package anchor runs the pipeline against a live page. A Session owns one
// page and all the state the host-side entry points need: the last map, the
// last plan, and the undo handle for the last execution. One plan runs at a
// time; a second ExecutePlan while one is in flight is refused.
package anchor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/chartfill/agent"
	"github.com/hazyhaar/chartfill/anchor/internal/browser"
	"github.com/hazyhaar/chartfill/fieldmap"
	"github.com/hazyhaar/chartfill/idgen"
	"github.com/hazyhaar/chartfill/kit"
	"github.com/hazyhaar/chartfill/planner"
	"github.com/hazyhaar/chartfill/replay"
	"github.com/hazyhaar/chartfill/surface"
)

// PageDriver is the live page a session drives. The rod implementation is
// the production one; tests substitute a static page.
type PageDriver interface {
	URL() string
	HTML(ctx context.Context) (string, error)
	Document() replay.Document
	Close() error
}

// PlanSource builds plans for the session. Satisfied by *agent.Service
// in-process and by HTTPPlanSource against a remote agent.
type PlanSource interface {
	Plan(ctx context.Context, req agent.PlanRequest) (*planner.FillPlan, error)
}

// Session binds one page to the mapping and fill pipeline.
type Session struct {
	id     string
	driver PageDriver
	plans  PlanSource
	logger *slog.Logger
	pacing replay.Pacing

	agentURL string
	httpc    *http.Client
	doctorID string

	mu         sync.Mutex
	inFlight   bool
	lastMapped *agent.DomMap
	lastPlan   *planner.FillPlan
	exec       *replay.Executor
	lastUndo   string
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithPlanSource sets where plans come from. Without one the session plans
// locally with a default builder.
func WithPlanSource(ps PlanSource) SessionOption {
	return func(s *Session) { s.plans = ps }
}

// WithSessionLogger sets the session logger.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = logger }
}

// WithAgentURL enables SendMap to a remote agent.
func WithAgentURL(url string) SessionOption {
	return func(s *Session) { s.agentURL = strings.TrimRight(url, "/") }
}

// WithDoctorID attaches an operator identity to outgoing maps so the agent
// can track readiness.
func WithDoctorID(id string) SessionOption {
	return func(s *Session) { s.doctorID = id }
}

// WithReplayPacing overrides the executor pacing.
func WithReplayPacing(p replay.Pacing) SessionOption {
	return func(s *Session) { s.pacing = p }
}

// NewSession wraps a page driver.
func NewSession(driver PageDriver, opts ...SessionOption) *Session {
	s := &Session{
		id:     idgen.Prefixed("sess_", idgen.Default)(),
		driver: driver,
		pacing: replay.DefaultPacing(),
		httpc:  &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.plans == nil {
		s.plans = localPlanSource{builder: planner.NewBuilder(planner.WithLogger(s.logger))}
	}
	s.exec = replay.NewExecutor(driver.Document(),
		replay.WithPacing(s.pacing),
		replay.WithLogger(s.logger))
	return s
}

// open navigates a new tab to the URL and wraps it in a Session. Outside
// callers go through Browser.OpenSession.
func open(ctx context.Context, mgr *browser.Manager, pageURL string, opts ...SessionOption) (*Session, error) {
	tab, err := mgr.OpenTab(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("anchor: %w", err)
	}
	return NewSession(&rodDriver{tab: tab}, opts...), nil
}

// Map pulls the live DOM, extracts fields, and fingerprints the surface.
// The result becomes the session's current map.
func (s *Session) Map(ctx context.Context) (*agent.DomMap, error) {
	raw, err := s.driver.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("anchor: map: %w", err)
	}
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("anchor: map: parse dom: %w", err)
	}

	snap := surface.Capture(doc, s.driver.URL())
	m := &agent.DomMap{
		URL:      s.driver.URL(),
		Title:    surface.Title(doc),
		Fields:   fieldmap.Map(doc),
		Context:  surface.PageText(doc),
		UX:       &snap,
		DoctorID: s.doctorID,
	}

	s.mu.Lock()
	s.lastMapped = m
	s.mu.Unlock()

	s.logger.Info("page mapped", "url", m.URL, "fields", len(m.Fields), "surface_id", snap.SurfaceID)
	return m, nil
}

// SendMap posts the current map to the configured agent, mapping first when
// needed. Returns the agent's acknowledgement count.
func (s *Session) SendMap(ctx context.Context) (bool, int, error) {
	if s.agentURL == "" {
		return false, 0, fmt.Errorf("anchor: sendmap: no agent url configured")
	}
	m, err := s.currentMap(ctx)
	if err != nil {
		return false, 0, err
	}

	body, err := json.Marshal(m)
	if err != nil {
		return false, 0, fmt.Errorf("anchor: sendmap: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.agentURL+"/dom", bytes.NewReader(body))
	if err != nil {
		return false, 0, fmt.Errorf("anchor: sendmap: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpc.Do(req)
	if err != nil {
		return false, 0, fmt.Errorf("anchor: sendmap: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, 0, fmt.Errorf("anchor: sendmap: agent returned %d", resp.StatusCode)
	}

	var ack struct {
		OK     bool `json:"ok"`
		Fields int  `json:"fields"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return false, 0, fmt.Errorf("anchor: sendmap: decode ack: %w", err)
	}
	return ack.OK, ack.Fields, nil
}

// Fill maps if needed, obtains a plan, and executes it against the page.
func (s *Session) Fill(ctx context.Context, note string) (*planner.FillPlan, replay.Result, error) {
	ctx = kit.WithSessionID(ctx, s.id)
	m, err := s.currentMap(ctx)
	if err != nil {
		return nil, replay.Result{}, err
	}

	plan, err := s.plans.Plan(ctx, agent.PlanRequest{
		URL:     m.URL,
		Fields:  m.Fields,
		Context: m.Context,
		Note:    note,
	})
	if err != nil {
		return nil, replay.Result{}, fmt.Errorf("anchor: fill: %w", err)
	}

	res, err := s.ExecutePlan(ctx, plan)
	return plan, res, err
}

// ExecutePlan runs a plan on the live page. Only one plan may be in flight.
func (s *Session) ExecutePlan(ctx context.Context, plan *planner.FillPlan) (replay.Result, error) {
	ctx = kit.WithSessionID(ctx, s.id)
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return replay.Result{}, fmt.Errorf("anchor: a plan is already executing")
	}
	s.inFlight = true
	s.mu.Unlock()

	res, err := s.exec.Execute(ctx, plan)

	// Plan sources backed by the agent keep a durable execution record.
	if rec, ok := s.plans.(interface {
		RecordExecution(ctx context.Context, res replay.Result)
	}); ok {
		rec.RecordExecution(ctx, res)
	}

	s.mu.Lock()
	s.inFlight = false
	s.lastPlan = plan
	if res.UndoToken != "" {
		s.lastUndo = res.UndoToken
	}
	s.mu.Unlock()
	return res, err
}

// Undo reverts the latest executed plan's mutations.
func (s *Session) Undo(ctx context.Context) (int, error) {
	s.mu.Lock()
	token := s.lastUndo
	s.lastUndo = ""
	s.mu.Unlock()
	if token == "" {
		return 0, fmt.Errorf("anchor: nothing to undo")
	}
	return s.exec.Undo(ctx, token)
}

// LastMap returns the current map, or nil before the first Map call.
func (s *Session) LastMap() *agent.DomMap {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMapped
}

// LastPlan returns the most recently executed plan, or nil.
func (s *Session) LastPlan() *planner.FillPlan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPlan
}

// Close releases the underlying page.
func (s *Session) Close() error {
	return s.driver.Close()
}

func (s *Session) currentMap(ctx context.Context) (*agent.DomMap, error) {
	if m := s.LastMap(); m != nil {
		return m, nil
	}
	return s.Map(ctx)
}

// localPlanSource plans in-process without an agent.
type localPlanSource struct {
	builder *planner.Builder
}

func (l localPlanSource) Plan(ctx context.Context, req agent.PlanRequest) (*planner.FillPlan, error) {
	return l.builder.Build(ctx, planner.Request{
		URL:     req.URL,
		Fields:  req.Fields,
		Context: req.Context,
		Note:    req.Note,
		Mode:    req.Mode,
	})
}

// HTTPPlanSource requests plans from a remote agent's /actions/plan.
type HTTPPlanSource struct {
	BaseURL string
	Client  *http.Client
}

// Plan posts the request and decodes the returned plan.
func (h *HTTPPlanSource) Plan(ctx context.Context, req agent.PlanRequest) (*planner.FillPlan, error) {
	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("anchor: plan request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(h.BaseURL, "/")+"/actions/plan", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anchor: plan request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anchor: plan request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("anchor: plan request: agent returned %d", resp.StatusCode)
	}

	var out struct {
		OK   bool              `json:"ok"`
		Plan *planner.FillPlan `json:"plan"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("anchor: plan request: decode: %w", err)
	}
	if !out.OK || out.Plan == nil {
		return nil, fmt.Errorf("anchor: plan request: agent refused")
	}
	return out.Plan, nil
}

// rodDriver adapts a browser tab to the PageDriver contract.
type rodDriver struct {
	tab *browser.Tab
}

func (d *rodDriver) URL() string { return d.tab.PageURL }

func (d *rodDriver) HTML(ctx context.Context) (string, error) {
	return d.tab.HTML(ctx)
}

func (d *rodDriver) Document() replay.Document {
	return newRodDocument(d.tab.Page)
}

func (d *rodDriver) Close() error { return d.tab.Close() }
