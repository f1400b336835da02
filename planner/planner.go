// CLAUDE:SUMMARY Fill-plan types — immutable step sequences with ids, meta, and JSON wire shape.
// Package planner turns a field map plus free-text page context into a
// FillPlan: an ordered list of primitive UI steps a replay engine can apply.
//
// Pipeline position:
//
//	fieldmap.Map ──► planner.Builder ──► FillPlan ──► replay.Executor
//	                       ▲
//	                 NoteGenerator (optional)
//
// Plans are value snapshots. Once built they are never mutated; re-planning
// produces a new plan with a new id.
package planner

import (
	"time"
)

// Step actions, applied strictly in order by the executor. The builder
// emits the first five; the rest exist for hand-built and replayed plans.
const (
	ActionScroll   = "scroll"
	ActionFocus    = "focus"
	ActionSetValue = "setValue"
	ActionWait     = "wait"
	ActionBlur     = "blur"
	ActionClick    = "click"
	ActionSelect   = "select"
	ActionCheck    = "check"
	ActionUncheck  = "uncheck"
)

// StrategySingleNoteTarget marks plans that route generated note text into
// exactly one field and demo-fill the rest.
const StrategySingleNoteTarget = "single-note-target"

// FillStep is one primitive action. Locator is empty for wait steps; Value
// is set only for setValue; Ms only for wait.
type FillStep struct {
	Action  string `json:"action"`
	Locator string `json:"locator,omitempty"`
	Value   string `json:"value,omitempty"`
	Ms      int    `json:"ms,omitempty"`
	Label   string `json:"label,omitempty"`
	Role    string `json:"role,omitempty"`
}

// Meta records how the plan was derived.
type Meta struct {
	Mode       string `json:"mode"`
	Strategy   string `json:"strategy"`
	FieldCount int    `json:"fieldCount"`
	NoteTarget string `json:"noteTarget,omitempty"`
	NoteUsed   bool   `json:"noteUsed"`
}

// FillPlan is the executor's input: id, provenance, and the ordered steps.
type FillPlan struct {
	ID        string     `json:"id"`
	CreatedAt time.Time  `json:"createdAt"`
	URL       string     `json:"url"`
	Steps     []FillStep `json:"steps"`
	Meta      Meta       `json:"meta"`
}
