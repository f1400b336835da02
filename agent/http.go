// CLAUDE:SUMMARY chi routes for health, map ingestion, planning, execution handoff, and readiness.
package agent

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/chartfill/idgen"
	"github.com/hazyhaar/chartfill/kit"
	"github.com/hazyhaar/chartfill/planner"
	"github.com/hazyhaar/chartfill/replay"
)

var newRequestID = idgen.Prefixed("req_", idgen.Default)

// withRequestContext tags every request with its transport and a fresh
// request id so handler log lines can be correlated.
func withRequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := kit.WithTransport(r.Context(), "http")
		ctx = kit.WithRequestID(ctx, newRequestID())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RegisterHTTP mounts the agent endpoints on a chi router.
func (s *Service) RegisterHTTP(r chi.Router) {
	r.Use(withRequestContext)
	r.Get("/", s.handleHealth)
	r.Post("/dom", s.handleIngest)
	r.Get("/dom", s.handleLatest)
	r.Post("/actions/plan", s.handlePlan)
	r.Post("/actions/fill", s.handlePlan)
	r.Post("/actions/execute", s.handleExecute)
	r.Get("/readiness/{doctor_id}", s.handleReadiness)
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "service": "chartfill-agent"})
}

func (s *Service) handleIngest(w http.ResponseWriter, r *http.Request) {
	var m DomMap
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if m.URL == "" {
		writeError(w, http.StatusBadRequest, "url required")
		return
	}

	profile, err := s.Ingest(r.Context(), &m)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := map[string]any{"ok": true, "fields": len(m.Fields)}
	if m.UX != nil {
		resp["surfaceId"] = m.UX.SurfaceID
	}
	if profile != nil {
		resp["autopilotReady"] = profile.AutopilotReady
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handleLatest(w http.ResponseWriter, r *http.Request) {
	m := s.Latest()
	if m == nil {
		writeError(w, http.StatusNotFound, "no map ingested yet")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Service) handlePlan(w http.ResponseWriter, r *http.Request) {
	var req PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	plan, err := s.Plan(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "plan": plan})
}

type executeRequest struct {
	PlanID string            `json:"planId,omitempty"`
	Plan   *planner.FillPlan `json:"plan,omitempty"`
}

// handleExecute resolves the plan but does not drive a page: execution
// happens where a live document exists (the anchor session). The response
// reports every step as skipped so callers can tell nothing ran.
func (s *Service) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	plan := req.Plan
	if plan == nil && req.PlanID != "" {
		plan = s.PlanByID(req.PlanID)
	}
	if plan == nil {
		writeError(w, http.StatusNotFound, "plan not found; pass planId of a built plan or an inline plan")
		return
	}

	writeJSON(w, http.StatusOK, replay.Result{
		PlanID:  plan.ID,
		OK:      false,
		Skipped: len(plan.Steps),
		Errors:  []string{"no live page attached: execute through an anchor session"},
	})
}

func (s *Service) handleReadiness(w http.ResponseWriter, r *http.Request) {
	profile, err := s.Readiness(r.Context(), chi.URLParam(r, "doctor_id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}
