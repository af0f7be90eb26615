package engine

import (
	"github.com/mizukilab/kaiseki-backend/internal/dataset"
)

// AggregateConfig groups the source by axis columns and evaluates an
// ordered list of named aggregations. Base entries compute a statistic
// over one subject's Values; derived entries combine two earlier
// entries elementwise.
type AggregateConfig struct {
	GroupBy      []string      `json:"group_by"`
	Aggregations []Aggregation `json:"aggregations"`
}

// Aggregation is one named entry. Base shape: Method is a statistic
// and Subject names the rows it reads. Derived shape: Method is an
// arithmetic operator and Operands names exactly two entries declared
// strictly earlier in the same list.
type Aggregation struct {
	Name     string   `json:"name"`
	Method   string   `json:"method"`
	Subject  string   `json:"subject,omitempty"`
	Operands []string `json:"operands,omitempty"`
}

type aggEntry struct {
	name    string
	method  string
	base    bool
	subject string
	opA     int
	opB     int
}

type aggPlan struct {
	groupBy []string
	entries []aggEntry
}

// compileAggregate validates the config against the live source and
// resolves operand names into indexes of earlier entries.
func compileAggregate(cfg *AggregateConfig, src *dataset.Table) (*aggPlan, error) {
	if cfg == nil {
		return nil, validationf("aggregate", "missing config")
	}
	seenCols := make(map[string]struct{}, len(cfg.GroupBy))
	for _, col := range cfg.GroupBy {
		if _, dup := seenCols[col]; dup {
			return nil, validationf("group_by", "duplicate column %q", col)
		}
		seenCols[col] = struct{}{}
		if !src.IsAxis(col) {
			return nil, validationf("group_by", "column %q is not an axis column", col)
		}
	}

	subjects := make(map[string]struct{})
	for _, s := range src.DistinctSubjects() {
		subjects[s] = struct{}{}
	}

	plan := &aggPlan{groupBy: cfg.GroupBy, entries: make([]aggEntry, 0, len(cfg.Aggregations))}
	symbols := make(map[string]int, len(cfg.Aggregations))
	for i, agg := range cfg.Aggregations {
		if agg.Name == "" {
			return nil, validationf("aggregations", "entry %d has an empty name", i)
		}
		if _, dup := symbols[agg.Name]; dup {
			return nil, validationf("aggregations", "duplicate name %q", agg.Name)
		}
		switch {
		case isStatMethod(agg.Method):
			if len(agg.Operands) != 0 {
				return nil, validationf("aggregations", "%q: base method %q takes no operands", agg.Name, agg.Method)
			}
			if agg.Subject == "" {
				return nil, validationf("aggregations", "%q: base method %q requires a subject", agg.Name, agg.Method)
			}
			if _, ok := subjects[agg.Subject]; !ok {
				return nil, validationf("aggregations", "%q: subject %q not present in source", agg.Name, agg.Subject)
			}
			plan.entries = append(plan.entries, aggEntry{name: agg.Name, method: agg.Method, base: true, subject: agg.Subject})
		case isArithOp(agg.Method):
			if agg.Subject != "" {
				return nil, validationf("aggregations", "%q: derived method %q takes operands, not a subject", agg.Name, agg.Method)
			}
			if len(agg.Operands) != 2 {
				return nil, validationf("aggregations", "%q: derived method %q requires exactly 2 operands, got %d", agg.Name, agg.Method, len(agg.Operands))
			}
			a, ok := symbols[agg.Operands[0]]
			if !ok {
				return nil, validationf("aggregations", "%q: operand %q not declared earlier", agg.Name, agg.Operands[0])
			}
			b, ok := symbols[agg.Operands[1]]
			if !ok {
				return nil, validationf("aggregations", "%q: operand %q not declared earlier", agg.Name, agg.Operands[1])
			}
			plan.entries = append(plan.entries, aggEntry{name: agg.Name, method: agg.Method, opA: a, opB: b})
		default:
			return nil, validationf("aggregations", "%q: unknown method %q", agg.Name, agg.Method)
		}
		symbols[agg.Name] = i
	}
	return plan, nil
}

// ValidateAggregate checks the config against the live source dataset.
func ValidateAggregate(cfg *AggregateConfig, src *dataset.Table) error {
	_, err := compileAggregate(cfg, src)
	return err
}

type aggGroup struct {
	key   string
	cells []dataset.Cell
}

// ApplyAggregate evaluates the plan. Groups are emitted in the source
// dataset's first-appearance order; within a group, rows follow the
// declaration order of the aggregation names. Output columns are the
// group_by columns followed by Subject and Value.
func ApplyAggregate(cfg *AggregateConfig, src *dataset.Table) (*dataset.Table, error) {
	plan, err := compileAggregate(cfg, src)
	if err != nil {
		return nil, err
	}

	groupIdxs := make([]int, len(plan.groupBy))
	for i, col := range plan.groupBy {
		idx, _ := src.ColumnIndex(col)
		groupIdxs[i] = idx
	}

	// global group order: first appearance over all source rows
	groupPos := make(map[string]int)
	groups := make([]aggGroup, 0)
	for _, row := range src.Rows {
		key := src.GroupKey(row, groupIdxs)
		if _, ok := groupPos[key]; ok {
			continue
		}
		cells := make([]dataset.Cell, len(groupIdxs))
		for i, idx := range groupIdxs {
			cells[i] = row[idx]
		}
		groupPos[key] = len(groups)
		groups = append(groups, aggGroup{key: key, cells: cells})
	}

	si := src.SubjectIndex()
	vi := src.ValueIndex()

	// per-entry results: group key -> value, plus presence
	results := make([]map[string]float64, len(plan.entries))
	for ei, entry := range plan.entries {
		if entry.base {
			perGroup := make(map[string][]float64)
			for _, row := range src.Rows {
				if row[si].String() != entry.subject {
					continue
				}
				key := src.GroupKey(row, groupIdxs)
				if _, ok := perGroup[key]; !ok {
					perGroup[key] = make([]float64, 0, 4)
				}
				if v, ok := row[vi].NumericValue(); ok {
					perGroup[key] = append(perGroup[key], v)
				}
			}
			res := make(map[string]float64, len(perGroup))
			for key, values := range perGroup {
				res[key] = computeStat(entry.method, values)
			}
			results[ei] = res
		} else {
			left := results[entry.opA]
			right := results[entry.opB]
			res := make(map[string]float64)
			for key, a := range left {
				b, ok := right[key]
				if !ok {
					continue
				}
				res[key] = applyArith(entry.method, a, b)
			}
			results[ei] = res
		}
	}

	out, err := buildAggregateSchema(src, plan.groupBy)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		for ei, entry := range plan.entries {
			v, ok := results[ei][g.key]
			if !ok {
				continue
			}
			row := make([]dataset.Cell, 0, len(g.cells)+2)
			row = append(row, g.cells...)
			row = append(row, dataset.Text(entry.name), dataset.Number(v))
			out.Rows = append(out.Rows, row)
		}
	}
	return out, nil
}

func buildAggregateSchema(src *dataset.Table, groupBy []string) (*dataset.Table, error) {
	columns := make([]dataset.Column, 0, len(groupBy)+2)
	for _, col := range groupBy {
		idx, _ := src.ColumnIndex(col)
		columns = append(columns, src.Columns[idx])
	}
	columns = append(columns,
		dataset.Column{Name: src.SubjectColumn, Type: dataset.TypeText},
		dataset.Column{Name: src.ValueColumn, Type: dataset.TypeNumber},
	)
	return dataset.New(columns, src.SubjectColumn, src.ValueColumn)
}
