// CLAUDE:SUMMARY Plan execution — Document/Element abstraction, step state machine, undo snapshots.
// Package replay applies a planner.FillPlan to a document, one step at a
// time, and keeps enough pre-mutation state to undo the whole run.
//
// The executor never talks to a browser directly. It drives the Document
// interface; anchor adapts a live rod page into it and tests use an
// in-memory fake. Step outcomes land in exactly one of three buckets:
// applied, failed (action error), or skipped (locator did not resolve).
package replay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/chartfill/idgen"
	"github.com/hazyhaar/chartfill/planner"
)

// Document resolves locators to live elements.
type Document interface {
	// Resolve returns the element for a locator, or false when the locator
	// no longer matches anything.
	Resolve(locator string) (Element, bool)
}

// Element is the minimal control surface the executor needs. Implementations
// dispatch whatever notification events (input/change) the host page expects
// as part of SetValue and SetChecked.
type Element interface {
	ScrollIntoView() error
	Focus() error
	Blur() error
	Click() error
	Value() (string, error)
	SetValue(v string) error
	Checked() (bool, error)
	SetChecked(on bool) error
	// IsToggle reports whether the element holds a checked bit
	// (checkbox/radio) rather than a text value.
	IsToggle() bool
	// Highlight toggles the transient visual marker around the element.
	Highlight(on bool) error
}

// Pacing holds the delays between executor actions. The zero value runs
// full speed, which is what tests want.
type Pacing struct {
	StepDelay     time.Duration
	ScrollSettle  time.Duration
	HighlightHold time.Duration
}

// DefaultPacing matches interactive use: slow enough to watch, fast enough
// to not annoy.
func DefaultPacing() Pacing {
	return Pacing{
		StepDelay:     50 * time.Millisecond,
		ScrollSettle:  300 * time.Millisecond,
		HighlightHold: 600 * time.Millisecond,
	}
}

// Result is the outcome of one Execute call.
type Result struct {
	PlanID    string   `json:"planId"`
	OK        bool     `json:"ok"`
	Applied   int      `json:"applied"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors,omitempty"`
	UndoToken string   `json:"undoToken,omitempty"`
}

// fieldState is the pre-mutation capture for one locator.
type fieldState struct {
	value    string
	checked  bool
	isToggle bool
}

// Snapshot is the undo state for one execution: first-touch values per
// locator, in touch order.
type Snapshot struct {
	Token    string
	order    []string
	restored map[string]fieldState
}

// Len reports how many distinct fields the snapshot covers.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Executor runs plans against one Document. Not safe for concurrent
// Execute calls; the owning session serializes.
type Executor struct {
	doc    Document
	logger *slog.Logger
	pacing Pacing
	newID  idgen.Generator

	last *Snapshot // latest execution only; Undo consumes it
}

// ExecOption configures an Executor.
type ExecOption func(*Executor)

// WithPacing overrides the default delays. Pass the zero Pacing to disable
// them entirely.
func WithPacing(p Pacing) ExecOption {
	return func(e *Executor) { e.pacing = p }
}

// WithLogger sets the executor logger.
func WithLogger(logger *slog.Logger) ExecOption {
	return func(e *Executor) { e.logger = logger }
}

// NewExecutor returns an executor bound to doc.
func NewExecutor(doc Document, opts ...ExecOption) *Executor {
	e := &Executor{
		doc:    doc,
		pacing: DefaultPacing(),
		newID:  idgen.Prefixed("undo_", idgen.Default),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Execute applies the plan's steps in order. Step failures accumulate in
// the result; the only error return is context cancellation. A run that
// mutated at least one field replaces the undo snapshot.
func (e *Executor) Execute(ctx context.Context, plan *planner.FillPlan) (Result, error) {
	res := Result{PlanID: plan.ID}
	snap := &Snapshot{Token: e.newID(), restored: make(map[string]fieldState)}

	for i, step := range plan.Steps {
		if err := sleep(ctx, e.pacing.StepDelay); err != nil {
			return res, fmt.Errorf("replay: plan %s interrupted at step %d: %w", plan.ID, i, err)
		}

		if step.Action == planner.ActionWait {
			if err := sleep(ctx, time.Duration(step.Ms)*time.Millisecond); err != nil {
				return res, fmt.Errorf("replay: plan %s interrupted at step %d: %w", plan.ID, i, err)
			}
			res.Applied++
			continue
		}

		el, ok := e.doc.Resolve(step.Locator)
		if !ok {
			res.Skipped++
			e.logger.Debug("step skipped, locator unresolved", "plan_id", plan.ID, "step", i, "locator", step.Locator)
			continue
		}

		if err := e.applyStep(ctx, el, step, snap); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("step %d (%s %s): %v", i, step.Action, step.Locator, err))
			continue
		}
		res.Applied++
	}

	res.OK = res.Failed == 0
	if snap.Len() > 0 {
		e.last = snap
		res.UndoToken = snap.Token
	}
	e.logger.Info("plan executed",
		"plan_id", plan.ID,
		"ok", res.OK,
		"applied", res.Applied,
		"failed", res.Failed,
		"skipped", res.Skipped)
	return res, nil
}

func (e *Executor) applyStep(ctx context.Context, el Element, step planner.FillStep, snap *Snapshot) error {
	_ = el.Highlight(true)
	defer func() {
		if e.pacing.HighlightHold > 0 {
			_ = sleep(ctx, e.pacing.HighlightHold)
		}
		_ = el.Highlight(false)
	}()

	switch step.Action {
	case planner.ActionScroll:
		if err := el.ScrollIntoView(); err != nil {
			return err
		}
		return sleep(ctx, e.pacing.ScrollSettle)
	case planner.ActionFocus:
		return el.Focus()
	case planner.ActionBlur:
		return el.Blur()
	case planner.ActionClick:
		return el.Click()
	case planner.ActionSetValue, planner.ActionSelect:
		if err := e.capture(el, step.Locator, snap); err != nil {
			return err
		}
		if el.IsToggle() {
			return el.SetChecked(truthy(step.Value))
		}
		return el.SetValue(step.Value)
	case planner.ActionCheck, planner.ActionUncheck:
		if err := e.capture(el, step.Locator, snap); err != nil {
			return err
		}
		return el.SetChecked(step.Action == planner.ActionCheck)
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
}

// capture records the pre-mutation state the first time a locator is
// touched. Later writes to the same field keep the original capture so undo
// restores the pre-plan state, not an intermediate one.
func (e *Executor) capture(el Element, locator string, snap *Snapshot) error {
	if _, done := snap.restored[locator]; done {
		return nil
	}
	st := fieldState{isToggle: el.IsToggle()}
	var err error
	if st.isToggle {
		st.checked, err = el.Checked()
	} else {
		st.value, err = el.Value()
	}
	if err != nil {
		return fmt.Errorf("capture prior state: %w", err)
	}
	snap.restored[locator] = st
	snap.order = append(snap.order, locator)
	return nil
}

// Undo restores every field the latest execution touched. Single level: a
// successful undo clears the snapshot, and a token from an older run is
// rejected.
func (e *Executor) Undo(ctx context.Context, token string) (int, error) {
	if e.last == nil || e.last.Token != token {
		return 0, fmt.Errorf("replay: no undo state for token %q", token)
	}

	restored := 0
	var firstErr error
	for _, locator := range e.last.order {
		if err := ctx.Err(); err != nil {
			return restored, fmt.Errorf("replay: undo interrupted: %w", err)
		}
		el, ok := e.doc.Resolve(locator)
		if !ok {
			if firstErr == nil {
				firstErr = fmt.Errorf("replay: undo: locator %q no longer resolves", locator)
			}
			continue
		}
		st := e.last.restored[locator]
		var err error
		if st.isToggle {
			err = el.SetChecked(st.checked)
		} else {
			err = el.SetValue(st.value)
		}
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("replay: undo %q: %w", locator, err)
			}
			continue
		}
		restored++
	}

	e.last = nil
	return restored, firstErr
}

func truthy(v string) bool {
	switch v {
	case "", "false", "0", "off", "no":
		return false
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
