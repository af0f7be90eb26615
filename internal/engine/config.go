package engine

import (
	"encoding/json"
	"fmt"

	"github.com/mizukilab/kaiseki-backend/internal/dataset"
)

// Config is the tagged union of step configurations. Exactly one
// variant is set, and it must match the owning step's type.
type Config struct {
	Filter    *FilterConfig    `json:"filter,omitempty"`
	Aggregate *AggregateConfig `json:"aggregate,omitempty"`
	Transform *TransformConfig `json:"transform,omitempty"`
	Summary   *SummaryConfig   `json:"summary,omitempty"`
}

// CheckShape verifies the union carries exactly the variant for t.
func (c Config) CheckShape(t StepType) error {
	set := 0
	if c.Filter != nil {
		set++
	}
	if c.Aggregate != nil {
		set++
	}
	if c.Transform != nil {
		set++
	}
	if c.Summary != nil {
		set++
	}
	if set != 1 {
		return validationf("config", "exactly one config variant required, got %d", set)
	}
	var ok bool
	switch t {
	case StepFilter:
		ok = c.Filter != nil
	case StepAggregate:
		ok = c.Aggregate != nil
	case StepTransform:
		ok = c.Transform != nil
	case StepSummary:
		ok = c.Summary != nil
	}
	if !ok {
		return validationf("config", "config variant does not match step type %q", t)
	}
	return nil
}

// Clone deep-copies the union through its JSON form so appliers and
// snapshots never alias a caller's config.
func (c Config) Clone() Config {
	data, err := json.Marshal(c)
	if err != nil {
		return Config{}
	}
	var out Config
	if err := json.Unmarshal(data, &out); err != nil {
		return Config{}
	}
	return out
}

// DefaultConfig seeds a freshly created step of type t. Filter steps
// start with a category filter pre-populated from the source's current
// distinct values per axis column; the other types start empty.
func DefaultConfig(t StepType, src *dataset.Table) (Config, error) {
	switch t {
	case StepFilter:
		fc := &FilterConfig{Category: make([]CategoryFilter, 0, len(src.AxisColumns()))}
		for _, col := range src.AxisColumns() {
			values, err := src.DistinctValues(col.Name)
			if err != nil {
				return Config{}, fmt.Errorf("seed filter config: %w", err)
			}
			fc.Category = append(fc.Category, CategoryFilter{Column: col.Name, Values: values})
		}
		return Config{Filter: fc}, nil
	case StepAggregate:
		return Config{Aggregate: &AggregateConfig{GroupBy: []string{}, Aggregations: []Aggregation{}}}, nil
	case StepTransform:
		return Config{Transform: &TransformConfig{Operations: []TransformOperation{}}}, nil
	case StepSummary:
		return Config{Summary: &SummaryConfig{Formulas: []SummaryFormula{}}}, nil
	default:
		return Config{}, validationf("type", "unknown step type %q", t)
	}
}
