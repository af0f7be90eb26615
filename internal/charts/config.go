package charts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mizukilab/kaiseki-backend/internal/dataset"
)

type GraphType string

const (
	GraphScatter       GraphType = "scatter"
	GraphBar           GraphType = "bar"
	GraphHorizontalBar GraphType = "horizontal_bar"
	GraphStackedBar    GraphType = "stacked_bar"
	GraphLine          GraphType = "line"
	GraphLineAndBar    GraphType = "line_and_bar"
	GraphWaterfall     GraphType = "waterfall"
	GraphPie           GraphType = "pie"
)

// Config is the chart payload attached to a summary step. Each graph
// type reads its own parameter subset; Validate enforces exactly that
// subset against a concrete dataset.
type Config struct {
	GraphType    GraphType `json:"graph_type"`
	Title        string    `json:"title,omitempty"`
	XAxis        string    `json:"x_axis,omitempty"`
	Subjects     []string  `json:"subjects,omitempty"`
	LineSubjects []string  `json:"line_subjects,omitempty"`
	LegendAxis   string    `json:"legend_axis,omitempty"`
}

func ParseConfig(raw json.RawMessage) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("malformed chart config: %w", err)
	}
	cfg.GraphType = GraphType(strings.ToLower(strings.TrimSpace(string(cfg.GraphType))))
	return &cfg, nil
}

// Validate checks the config against the dataset it will draw:
// x_axis and legend_axis must be axis columns, subjects must exist in
// the Subject column, and the per-type cardinality rules hold.
func (cfg *Config) Validate(t *dataset.Table) error {
	switch cfg.GraphType {
	case GraphScatter:
		if err := cfg.checkSubjects(t, 2, 2); err != nil {
			return err
		}
		if cfg.XAxis != "" && !t.IsAxis(cfg.XAxis) {
			return fmt.Errorf("x_axis %q is not an axis column", cfg.XAxis)
		}
		return nil
	case GraphBar, GraphHorizontalBar, GraphLine:
		if err := cfg.checkXAxis(t); err != nil {
			return err
		}
		if err := cfg.checkSubjects(t, 1, 0); err != nil {
			return err
		}
		return cfg.checkLegendAxis(t)
	case GraphStackedBar:
		if err := cfg.checkXAxis(t); err != nil {
			return err
		}
		if err := cfg.checkSubjects(t, 1, 0); err != nil {
			return err
		}
		if len(cfg.Subjects) == 1 && cfg.LegendAxis == "" {
			return fmt.Errorf("stacked_bar needs two or more subjects or a legend_axis to stack")
		}
		return cfg.checkLegendAxis(t)
	case GraphLineAndBar:
		if err := cfg.checkXAxis(t); err != nil {
			return err
		}
		if err := cfg.checkSubjects(t, 1, 0); err != nil {
			return err
		}
		if len(cfg.LineSubjects) == 0 {
			return fmt.Errorf("line_and_bar requires at least one line subject")
		}
		if err := subjectsExist(t, cfg.LineSubjects, "line_subjects"); err != nil {
			return err
		}
		return nil
	case GraphWaterfall, GraphPie:
		if err := cfg.checkXAxis(t); err != nil {
			return err
		}
		return cfg.checkSubjects(t, 1, 1)
	case "":
		return fmt.Errorf("graph_type is required")
	default:
		return fmt.Errorf("unknown graph_type %q", cfg.GraphType)
	}
}

func (cfg *Config) checkXAxis(t *dataset.Table) error {
	if strings.TrimSpace(cfg.XAxis) == "" {
		return fmt.Errorf("%s requires an x_axis column", cfg.GraphType)
	}
	if !t.IsAxis(cfg.XAxis) {
		return fmt.Errorf("x_axis %q is not an axis column", cfg.XAxis)
	}
	return nil
}

func (cfg *Config) checkLegendAxis(t *dataset.Table) error {
	if cfg.LegendAxis == "" {
		return nil
	}
	if !t.IsAxis(cfg.LegendAxis) {
		return fmt.Errorf("legend_axis %q is not an axis column", cfg.LegendAxis)
	}
	if cfg.LegendAxis == cfg.XAxis {
		return fmt.Errorf("legend_axis must differ from x_axis")
	}
	if len(cfg.Subjects) > 1 {
		return fmt.Errorf("legend_axis only applies to single-subject charts")
	}
	return nil
}

// checkSubjects enforces min <= len(subjects) (<= max when max > 0)
// and that every named subject exists.
func (cfg *Config) checkSubjects(t *dataset.Table, min, max int) error {
	n := len(cfg.Subjects)
	if n < min {
		return fmt.Errorf("%s requires at least %d subject(s), got %d", cfg.GraphType, min, n)
	}
	if max > 0 && n > max {
		return fmt.Errorf("%s accepts at most %d subject(s), got %d", cfg.GraphType, max, n)
	}
	return subjectsExist(t, cfg.Subjects, "subjects")
}

func subjectsExist(t *dataset.Table, names []string, field string) error {
	existing := make(map[string]struct{})
	for _, s := range t.DistinctSubjects() {
		existing[s] = struct{}{}
	}
	for _, name := range names {
		if _, ok := existing[name]; !ok {
			return fmt.Errorf("%s: subject %q not present in dataset", field, name)
		}
	}
	return nil
}
