// CLAUDE:SUMMARY Ingestion + planning service — latest-map state, plan retention, readiness feed.
// Package agent is the service boundary: it receives mapped DOM snapshots,
// hands out fill plans, and reports operator readiness. Transport is chi
// for HTTP and the MCP tool surface in mcp.go; both sit over the same
// service methods.
//
//	page mapper ──POST /dom──► Service ──► readiness.Scorer
//	                              │
//	 POST /actions/plan ──────────┴──► planner.Builder ──► FillPlan
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/chartfill/fieldmap"
	"github.com/hazyhaar/chartfill/kit"
	"github.com/hazyhaar/chartfill/observability"
	"github.com/hazyhaar/chartfill/planner"
	"github.com/hazyhaar/chartfill/readiness"
	"github.com/hazyhaar/chartfill/replay"
	"github.com/hazyhaar/chartfill/surface"
)

// DomMap is one ingested snapshot from a page mapper.
type DomMap struct {
	URL      string                     `json:"url"`
	Title    string                     `json:"title,omitempty"`
	Fields   []fieldmap.FieldDescriptor `json:"fields"`
	Context  string                     `json:"context,omitempty"`
	UX       *surface.Snapshot          `json:"ux,omitempty"`
	DoctorID string                     `json:"doctor_id,omitempty"`
}

// maxRetainedPlans bounds the in-memory plan cache; oldest plans are evicted
// first.
const maxRetainedPlans = 100

// Service holds the agent state. One latest map, a bounded plan cache, and
// the collaborators wired in through options.
type Service struct {
	logger   *slog.Logger
	builder  *planner.Builder
	scorer   *readiness.Scorer
	events   *observability.EventLogger
	sanitize *bluemonday.Policy

	mu        sync.RWMutex
	latest    *DomMap
	plans     map[string]*planner.FillPlan
	planOrder []string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithScorer enables readiness tracking for ingested maps that carry a
// doctor id.
func WithScorer(scorer *readiness.Scorer) ServiceOption {
	return func(s *Service) { s.scorer = scorer }
}

// WithBuilder replaces the default plan builder.
func WithBuilder(b *planner.Builder) ServiceOption {
	return func(s *Service) { s.builder = b }
}

// WithEventLog records domain events (ingests, plans) durably.
func WithEventLog(events *observability.EventLogger) ServiceOption {
	return func(s *Service) { s.events = events }
}

// NewService returns a ready Service.
func NewService(opts ...ServiceOption) *Service {
	s := &Service{
		sanitize: bluemonday.StrictPolicy(),
		plans:    make(map[string]*planner.FillPlan),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.builder == nil {
		s.builder = planner.NewBuilder(planner.WithLogger(s.logger))
	}
	return s
}

// Ingest stores the map as the latest snapshot and, when a doctor id and
// surface data are present, feeds the readiness scorer. Context text is
// stripped of any markup before it is retained.
func (s *Service) Ingest(ctx context.Context, m *DomMap) (*readiness.Profile, error) {
	if m == nil || m.URL == "" {
		return nil, fmt.Errorf("agent: ingest: url required")
	}
	m.Context = s.sanitize.Sanitize(m.Context)

	s.mu.Lock()
	s.latest = m
	s.mu.Unlock()

	var profile *readiness.Profile
	if s.scorer != nil && m.DoctorID != "" && m.UX != nil {
		var err error
		profile, err = s.scorer.Observe(ctx, m.DoctorID, readiness.Sample{
			SurfaceID:  m.UX.SurfaceID,
			URL:        m.URL,
			FieldCount: len(m.Fields),
		})
		if err != nil {
			// Telemetry must not block ingestion.
			s.logger.Warn("readiness observation failed", "doctor_id", m.DoctorID, "error", err)
			profile = nil
		}
	}

	if s.events != nil {
		surfaceID := ""
		if m.UX != nil {
			surfaceID = m.UX.SurfaceID
		}
		s.events.Log(ctx, observability.Event{
			EventType: observability.EventMapIngested,
			DoctorID:  m.DoctorID,
			SurfaceID: surfaceID,
			Success:   true,
		})
	}

	s.logger.Info("dom map ingested",
		"url", m.URL,
		"fields", len(m.Fields),
		"doctor_id", m.DoctorID,
		"request_id", kit.GetRequestID(ctx))
	return profile, nil
}

// Latest returns the most recent ingested map, or nil.
func (s *Service) Latest() *DomMap {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// PlanRequest is the planning input; empty Fields fall back to the latest
// ingested map.
type PlanRequest struct {
	URL     string                     `json:"url,omitempty"`
	Fields  []fieldmap.FieldDescriptor `json:"fields,omitempty"`
	Context string                     `json:"context,omitempty"`
	Note    string                     `json:"note,omitempty"`
	Mode    string                     `json:"mode,omitempty"`
}

// Plan builds and retains a fill plan. Caller-supplied context is sanitized
// here; context inherited from the latest map was already sanitized at
// ingestion and passes through untouched.
func (s *Service) Plan(ctx context.Context, req PlanRequest) (*planner.FillPlan, error) {
	req.Context = s.sanitize.Sanitize(req.Context)

	if len(req.Fields) == 0 {
		latest := s.Latest()
		if latest == nil {
			return nil, fmt.Errorf("agent: plan: no fields given and no map ingested")
		}
		req.Fields = latest.Fields
		if req.URL == "" {
			req.URL = latest.URL
		}
		if req.Context == "" {
			req.Context = latest.Context
		}
	}

	plan, err := s.builder.Build(ctx, planner.Request{
		URL:     req.URL,
		Fields:  req.Fields,
		Context: req.Context,
		Note:    req.Note,
		Mode:    req.Mode,
	})
	if err != nil {
		return nil, fmt.Errorf("agent: plan: %w", err)
	}

	s.mu.Lock()
	s.plans[plan.ID] = plan
	s.planOrder = append(s.planOrder, plan.ID)
	for len(s.planOrder) > maxRetainedPlans {
		delete(s.plans, s.planOrder[0])
		s.planOrder = s.planOrder[1:]
	}
	s.mu.Unlock()

	if s.events != nil {
		s.events.Log(ctx, observability.Event{
			EventType: observability.EventPlanBuilt,
			PlanID:    plan.ID,
			Success:   true,
		})
	}
	return plan, nil
}

// RecordExecution logs the outcome of a page-side execution. Sessions that
// plan through this service report back here after running the plan.
func (s *Service) RecordExecution(ctx context.Context, res replay.Result) {
	s.logger.Info("execution recorded",
		"plan_id", res.PlanID,
		"ok", res.OK,
		"session_id", kit.GetSessionID(ctx))
	if s.events == nil {
		return
	}
	s.events.Log(ctx, observability.Event{
		EventType: observability.EventPlanExecuted,
		PlanID:    res.PlanID,
		Success:   res.OK,
	})
}

// PlanByID returns a retained plan, or nil.
func (s *Service) PlanByID(id string) *planner.FillPlan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.plans[id]
}

// Readiness returns the scored profile for a doctor.
func (s *Service) Readiness(ctx context.Context, doctorID string) (*readiness.Profile, error) {
	if s.scorer == nil {
		return nil, fmt.Errorf("agent: readiness tracking not enabled")
	}
	if doctorID == "" {
		return nil, fmt.Errorf("agent: readiness: doctor_id required")
	}
	return s.scorer.Profile(ctx, doctorID)
}
