// CLAUDE:SUMMARY Readiness scoring — per-doctor observation ledger, coverage, and the autopilot gate.
// Package readiness tracks how often each operator has been observed filling
// forms on each surface and decides when assisted autofill has seen enough
// repetition to be offered.
//
// Coverage is the share of all observed events that happened on surfaces
// seen at least MinRepeats times: high coverage means the operator works a
// small set of familiar screens rather than wandering.
package readiness

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/chartfill/readiness/internal/store"
)

// Schema creates the profile table. Callers apply it when opening the
// database, e.g. dbopen.WithSchema(readiness.Schema).
const Schema = store.Schema

// maxRecent bounds the sample ring kept per doctor.
const maxRecent = 20

// Config holds the autopilot gate thresholds.
type Config struct {
	MinEvents         int     `yaml:"min_events"`
	MinSurfaces       int     `yaml:"min_surfaces"`
	MinRepeats        int     `yaml:"min_repeats"`
	CoverageThreshold float64 `yaml:"coverage_threshold"`
}

func (c *Config) defaults() {
	if c.MinEvents <= 0 {
		c.MinEvents = 20
	}
	if c.MinSurfaces <= 0 {
		c.MinSurfaces = 3
	}
	if c.MinRepeats <= 0 {
		c.MinRepeats = 3
	}
	if c.CoverageThreshold <= 0 {
		c.CoverageThreshold = 0.6
	}
}

// Sample is one observed mapping event.
type Sample struct {
	SurfaceID  string    `json:"surfaceId"`
	URL        string    `json:"url,omitempty"`
	FieldCount int       `json:"fieldCount"`
	At         time.Time `json:"at"`
}

// Profile is the scored state for one doctor.
type Profile struct {
	DoctorID       string         `json:"doctorId"`
	Events         int            `json:"events"`
	Surfaces       map[string]int `json:"surfaces"`
	LastSeen       time.Time      `json:"lastSeen"`
	Coverage       float64        `json:"coverage"`
	AutopilotReady bool           `json:"autopilotReady"`
	Recent         []Sample       `json:"recent"`
}

// storage persists profiles. The internal sqlite store is the production
// implementation; tests substitute failure modes.
type storage interface {
	Get(ctx context.Context, doctorID string) (*store.Row, error)
	Upsert(ctx context.Context, row *store.Row) error
}

// Scorer applies observations and computes readiness. Writes for the same
// doctor are serialized; distinct doctors proceed in parallel.
type Scorer struct {
	cfg    Config
	db     storage
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewScorer returns a Scorer persisting to db, which must carry the Schema
// table. A nil logger falls back to slog.Default().
func NewScorer(db *sql.DB, cfg Config, logger *slog.Logger) *Scorer {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{
		cfg:    cfg,
		db:     store.New(db),
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (s *Scorer) lockFor(doctorID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[doctorID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[doctorID] = l
	}
	return l
}

// Observe folds one sample into the doctor's profile and persists it. A
// storage read failure starts from a fresh profile rather than losing the
// event; only the write can fail.
func (s *Scorer) Observe(ctx context.Context, doctorID string, sample Sample) (*Profile, error) {
	l := s.lockFor(doctorID)
	l.Lock()
	defer l.Unlock()

	p := s.load(ctx, doctorID)
	if sample.At.IsZero() {
		sample.At = time.Now().UTC()
	}

	p.Events++
	p.Surfaces[sample.SurfaceID]++
	p.LastSeen = sample.At
	p.Recent = append(p.Recent, sample)
	if len(p.Recent) > maxRecent {
		p.Recent = p.Recent[len(p.Recent)-maxRecent:]
	}
	s.score(p)

	if err := s.save(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Debug("observation recorded",
		"doctor_id", doctorID,
		"surface_id", sample.SurfaceID,
		"events", p.Events,
		"coverage", p.Coverage,
		"autopilot_ready", p.AutopilotReady)
	return p, nil
}

// Profile returns the current scored profile; unknown doctors get a fresh
// zero profile, not an error.
func (s *Scorer) Profile(ctx context.Context, doctorID string) (*Profile, error) {
	l := s.lockFor(doctorID)
	l.Lock()
	defer l.Unlock()

	p := s.load(ctx, doctorID)
	s.score(p)
	return p, nil
}

func (s *Scorer) score(p *Profile) {
	if p.Events == 0 {
		p.Coverage = 0
		p.AutopilotReady = false
		return
	}
	repeated := 0
	for _, n := range p.Surfaces {
		if n >= s.cfg.MinRepeats {
			repeated += n
		}
	}
	p.Coverage = float64(repeated) / float64(p.Events)
	p.AutopilotReady = p.Events >= s.cfg.MinEvents &&
		len(p.Surfaces) >= s.cfg.MinSurfaces &&
		p.Coverage >= s.cfg.CoverageThreshold
}

func (s *Scorer) load(ctx context.Context, doctorID string) *Profile {
	p := &Profile{DoctorID: doctorID, Surfaces: make(map[string]int)}

	row, err := s.db.Get(ctx, doctorID)
	if err != nil {
		s.logger.Warn("profile read failed, starting fresh", "doctor_id", doctorID, "error", err)
		return p
	}
	if row == nil {
		return p
	}

	p.Events = row.Events
	if row.LastSeen > 0 {
		p.LastSeen = time.UnixMilli(row.LastSeen).UTC()
	}
	if err := json.Unmarshal([]byte(row.Surfaces), &p.Surfaces); err != nil || p.Surfaces == nil {
		p.Surfaces = make(map[string]int)
	}
	if err := json.Unmarshal([]byte(row.Samples), &p.Recent); err != nil {
		p.Recent = nil
	}
	return p
}

func (s *Scorer) save(ctx context.Context, p *Profile) error {
	surfaces, _ := json.Marshal(p.Surfaces)
	samples, _ := json.Marshal(p.Recent)
	return s.db.Upsert(ctx, &store.Row{
		DoctorID: p.DoctorID,
		Events:   p.Events,
		Surfaces: string(surfaces),
		Samples:  string(samples),
		LastSeen: p.LastSeen.UnixMilli(),
	})
}
