package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/mizukilab/kaiseki-backend/internal/dataset"
)

type StepType string

const (
	StepFilter    StepType = "filter"
	StepAggregate StepType = "aggregate"
	StepTransform StepType = "transform"
	StepSummary   StepType = "summary"
)

func ParseStepType(s string) (StepType, error) {
	switch StepType(strings.ToLower(strings.TrimSpace(s))) {
	case StepFilter:
		return StepFilter, nil
	case StepAggregate:
		return StepAggregate, nil
	case StepTransform:
		return StepTransform, nil
	case StepSummary:
		return StepSummary, nil
	default:
		return "", validationf("type", "unknown step type %q", s)
	}
}

type StepStatus string

const (
	StatusCreated      StepStatus = "created"
	StatusConfigured   StepStatus = "configured"
	StatusMaterialized StepStatus = "materialized"
)

type SourceKind string

const (
	SourceOriginal SourceKind = "original"
	SourceStep     SourceKind = "step"
)

// SourceRef points a step at its input: the session's original dataset
// or another step's materialized result. Step references bind to the
// target's stable ID, so deleting the target leaves a detectable
// dangling reference instead of silently shifting to a different step.
type SourceRef struct {
	Kind   SourceKind `json:"kind"`
	StepID uuid.UUID  `json:"step_id,omitempty"`
}

func OriginalRef() SourceRef { return SourceRef{Kind: SourceOriginal} }

func StepRef(id uuid.UUID) SourceRef { return SourceRef{Kind: SourceStep, StepID: id} }

func (r SourceRef) IsOriginal() bool { return r.Kind == SourceOriginal }

// Step is one stage of a session's pipeline. Identity is the stable
// ID; Order is the public addressing scheme ("step_N") and display
// index, monotonically assigned and never reused after deletion.
type Step struct {
	ID     uuid.UUID
	Order  int
	Name   string
	Type   StepType
	Source SourceRef
	Config Config
	Result *Result
	Active bool
	Status StepStatus
}

// Result is one materialization of a step. Table is the in-memory
// dataset while an execution is in flight; DatasetPath is the stored
// handle. Summary steps carry formulas, optionally a chart, and
// optionally a stored passthrough copy of their input, but no dataset
// of their own.
type Result struct {
	Table           *dataset.Table  `json:"-"`
	DatasetPath     string          `json:"dataset_path,omitempty"`
	PassthroughPath string          `json:"passthrough_path,omitempty"`
	RowCount        int             `json:"row_count"`
	ColumnCount     int             `json:"column_count"`
	Formulas        []FormulaResult `json:"formulas,omitempty"`
	Chart           *ChartArtifact  `json:"chart,omitempty"`
}

// HasDataset reports whether this result can serve as another step's
// data source.
func (r *Result) HasDataset() bool {
	if r == nil {
		return false
	}
	return r.Table != nil || r.DatasetPath != ""
}

type FormulaResult struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// MarshalJSON keeps NaN representable: formula values travel as the
// canonical cell string.
func (f FormulaResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name  string `json:"name"`
		Value string `json:"value"`
		Unit  string `json:"unit"`
	}{Name: f.Name, Value: dataset.FormatNumber(f.Value), Unit: f.Unit})
}

func (f *FormulaResult) UnmarshalJSON(data []byte) error {
	var w struct {
		Name  string `json:"name"`
		Value string `json:"value"`
		Unit  string `json:"unit"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	v, err := parseFormulaValue(w.Value)
	if err != nil {
		return err
	}
	f.Name = w.Name
	f.Value = v
	f.Unit = w.Unit
	return nil
}

func parseFormulaValue(s string) (float64, error) {
	if s == "NaN" {
		return nan(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// ChartArtifact is the opaque, serializable handle to a rendered
// chart.
type ChartArtifact struct {
	Path   string `json:"path"`
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// DatasetStore is the storage collaborator: datasets move in and out
// of the engine exclusively through opaque path handles.
type DatasetStore interface {
	Load(ctx context.Context, path string) (*dataset.Table, error)
	Save(ctx context.Context, sessionID uuid.UUID, name string, t *dataset.Table, prefix string) (string, error)
}

// ChartRenderer is the charting collaborator. Validate rejects a chart
// config against a concrete dataset; Render produces the artifact.
type ChartRenderer interface {
	Validate(ctx context.Context, t *dataset.Table, cfg json.RawMessage) error
	Render(ctx context.Context, sessionID uuid.UUID, t *dataset.Table, cfg json.RawMessage) (*ChartArtifact, error)
}

// ResultPersister receives each step the moment its new result is
// ready. Cascade steps are persisted one at a time so earlier
// successes survive a later failure.
type ResultPersister interface {
	PersistResult(ctx context.Context, step *Step) error
}

// SortSteps orders steps ascending by Order, in place.
func SortSteps(steps []*Step) {
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })
}

// NextOrder returns the next sequential order for a new step. Orders
// are 0-based and never reused, so this is max+1 over every step ever
// seen here, active or not.
func NextOrder(steps []*Step) int {
	next := 0
	for _, s := range steps {
		if s.Order >= next {
			next = s.Order + 1
		}
	}
	return next
}

func findByID(steps []*Step, id uuid.UUID) *Step {
	for _, s := range steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}

func findByOrder(steps []*Step, order int) *Step {
	for _, s := range steps {
		if s.Order == order {
			return s
		}
	}
	return nil
}

// ParseSourceRef turns the public form ("original" or "step_N") into a
// bound reference. Step references resolve N against the current step
// orders; the target must be active and must sit strictly before
// ownOrder (pass -1 for a step about to be appended).
func ParseSourceRef(raw string, steps []*Step, ownOrder int) (SourceRef, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" || s == string(SourceOriginal) {
		return OriginalRef(), nil
	}
	rest, ok := strings.CutPrefix(s, "step_")
	if !ok {
		return SourceRef{}, referencef(raw, "data source must be %q or \"step_N\"", SourceOriginal)
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return SourceRef{}, referencef(raw, "malformed step reference")
	}
	target := findByOrder(steps, n)
	if target == nil {
		return SourceRef{}, referencef(raw, "no step with order %d", n)
	}
	if !target.Active {
		return SourceRef{}, referencef(raw, "step %d is inactive", n)
	}
	if ownOrder >= 0 && target.Order >= ownOrder {
		return SourceRef{}, referencef(raw, "step %d does not precede step %d", n, ownOrder)
	}
	return StepRef(target.ID), nil
}

// FormatSourceRef renders a bound reference back to its public form.
// A dangling binding renders as "step_?" so overviews stay readable.
func FormatSourceRef(ref SourceRef, steps []*Step) string {
	if ref.IsOriginal() {
		return string(SourceOriginal)
	}
	if target := findByID(steps, ref.StepID); target != nil {
		return fmt.Sprintf("step_%d", target.Order)
	}
	return "step_?"
}
