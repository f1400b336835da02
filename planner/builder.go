// CLAUDE:SUMMARY Plan builder — note-target selection, context hints, per-field step expansion.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/chartfill/fieldmap"
)

// NoteGenerator produces narrative note text from page context. Implemented
// by notegen; tests substitute a stub. A generator failure is never a plan
// failure.
type NoteGenerator interface {
	GenerateNote(ctx context.Context, pageContext string) (string, error)
}

// Request carries everything a single plan build needs.
type Request struct {
	URL     string
	Fields  []fieldmap.FieldDescriptor
	Context string // free page text, already sanitized upstream
	Note    string // pre-written note; suppresses generation
	Mode    string // defaults to "demo"
}

// settleAfterSet is the per-field pause letting the host page react to the
// value before blur.
const settleAfterSet = 800

// noteTargetCues are probed in order against field labels; the first label
// containing a cue becomes the note target.
var noteTargetCues = []string{
	"note", "assessment", "plan", "a/p", "subjective",
	"hpi", "history of present illness",
}

// Context hint probes. Single capture group; the last match in the text wins.
var (
	nameHintRe   = regexp.MustCompile(`(?i)\bname:\s*([^\n\r,;.|]+)`)
	dobHintRe    = regexp.MustCompile(`(?i)\bdob:\s*([^\n\r,;.|]+)`)
	reasonHintRe = regexp.MustCompile(`(?i)\breason for visit:\s*([^\n\r;.|]+)`)
)

// Builder constructs FillPlans. Safe for concurrent use; the step counter
// keeps ids unique within a process even at equal timestamps.
type Builder struct {
	gen     NoteGenerator
	logger  *slog.Logger
	now     func() time.Time
	counter atomic.Int64
}

// Option configures a Builder.
type Option func(*Builder)

// WithNoteGenerator enables note generation for requests that carry context
// but no note.
func WithNoteGenerator(gen NoteGenerator) Option {
	return func(b *Builder) { b.gen = gen }
}

// WithLogger sets the builder logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) { b.logger = logger }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// NewBuilder returns a ready Builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// Build derives a FillPlan from the request. Only editable fields produce
// steps; with no editable fields the plan is valid and empty.
func (b *Builder) Build(ctx context.Context, req Request) (*FillPlan, error) {
	mode := req.Mode
	if mode == "" {
		mode = "demo"
	}

	var editable []fieldmap.FieldDescriptor
	for _, f := range req.Fields {
		if f.Editable {
			editable = append(editable, f)
		}
	}

	target := noteTarget(editable)
	hints := contextHints(req.Context)

	note := strings.TrimSpace(req.Note)
	if note == "" && strings.TrimSpace(req.Context) != "" && b.gen != nil {
		generated, err := b.gen.GenerateNote(ctx, req.Context)
		if err != nil {
			b.logger.Warn("note generation failed, planning without note", "error", err)
		} else {
			note = strings.TrimSpace(generated)
		}
	}

	plan := &FillPlan{
		ID:        b.nextID(),
		CreatedAt: b.now().UTC(),
		URL:       req.URL,
		Meta: Meta{
			Mode:       mode,
			Strategy:   StrategySingleNoteTarget,
			FieldCount: len(editable),
		},
	}
	if target != nil {
		plan.Meta.NoteTarget = target.Locator
	}

	for _, f := range editable {
		value := b.valueFor(f, target, note, hints)
		if target != nil && note != "" && f.Locator == target.Locator {
			plan.Meta.NoteUsed = true
		}
		plan.Steps = append(plan.Steps,
			FillStep{Action: ActionScroll, Locator: f.Locator, Label: f.Label, Role: f.Role},
			FillStep{Action: ActionFocus, Locator: f.Locator},
			FillStep{Action: ActionSetValue, Locator: f.Locator, Value: value, Label: f.Label, Role: f.Role},
			FillStep{Action: ActionWait, Ms: settleAfterSet},
			FillStep{Action: ActionBlur, Locator: f.Locator},
		)
	}

	b.logger.Debug("plan built",
		"plan_id", plan.ID,
		"fields", len(editable),
		"note_target", plan.Meta.NoteTarget,
		"note_used", plan.Meta.NoteUsed)
	return plan, nil
}

func (b *Builder) nextID() string {
	return fmt.Sprintf("plan_%d_%d", b.now().UnixMilli(), b.counter.Add(1))
}

func (b *Builder) valueFor(f fieldmap.FieldDescriptor, target *fieldmap.FieldDescriptor, note string, hints map[string]string) string {
	if target != nil && f.Locator == target.Locator && note != "" {
		return note
	}
	switch f.Role {
	case fieldmap.RoleName:
		if v := hints["name"]; v != "" {
			return v
		}
	case fieldmap.RoleDOB:
		if v := hints["dob"]; v != "" {
			return v
		}
	case fieldmap.RoleCC:
		if v := hints["reason"]; v != "" {
			return v
		}
	}
	return demoValue(f.Label)
}

// noteTarget picks the field to receive the note: first label matching a cue,
// else the first multi-line text surface.
func noteTarget(fields []fieldmap.FieldDescriptor) *fieldmap.FieldDescriptor {
	for _, cue := range noteTargetCues {
		for i := range fields {
			if strings.Contains(strings.ToLower(fields[i].Label), cue) {
				return &fields[i]
			}
		}
	}
	for i := range fields {
		if fieldmap.IsMultilineKind(fields[i].Kind) {
			return &fields[i]
		}
	}
	return nil
}

func contextHints(text string) map[string]string {
	hints := make(map[string]string, 3)
	probe := func(key string, re *regexp.Regexp) {
		matches := re.FindAllStringSubmatch(text, -1)
		if len(matches) == 0 {
			return
		}
		if v := strings.TrimSpace(matches[len(matches)-1][1]); v != "" {
			hints[key] = v
		}
	}
	probe("name", nameHintRe)
	probe("dob", dobHintRe)
	probe("reason", reasonHintRe)
	return hints
}

// demoValue derives the placeholder written into fields with no better
// source: DEMO_ plus the label uppercased with non-alphanumeric runs
// collapsed to underscores.
func demoValue(label string) string {
	var sb strings.Builder
	sb.WriteString("DEMO_")
	lastUnderscore := true
	for _, r := range strings.ToUpper(label) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			sb.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.TrimSuffix(sb.String(), "_")
}
