package engine

import (
	"fmt"
	"sort"

	"github.com/mizukilab/kaiseki-backend/internal/dataset"
)

// FilterConfig narrows the source dataset in three fixed stages:
// category allow-lists, then one numeric mode over the Value column,
// then a key-tuple join against a reference dataset.
type FilterConfig struct {
	Category []CategoryFilter `json:"category,omitempty"`
	Numeric  *NumericFilter   `json:"numeric,omitempty"`
	Table    *TableFilter     `json:"table,omitempty"`
}

// CategoryFilter keeps rows whose value in Column is in Values. A row
// must satisfy every configured column to survive.
type CategoryFilter struct {
	Column string   `json:"column"`
	Values []string `json:"values"`
}

type NumericMode string

const (
	NumericRange      NumericMode = "range"
	NumericTopK       NumericMode = "top_k"
	NumericPercentage NumericMode = "percentage"
)

// NumericFilter selects rows by their Value column under exactly one
// active mode. Rows whose Value is not numeric are always retained.
type NumericFilter struct {
	Mode       NumericMode       `json:"mode"`
	Range      *RangeFilter      `json:"range,omitempty"`
	TopK       *TopKFilter       `json:"top_k,omitempty"`
	Percentage *PercentageFilter `json:"percentage,omitempty"`
}

type RangeFilter struct {
	EnableMin  bool    `json:"enable_min"`
	MinValue   float64 `json:"min_value"`
	IncludeMin bool    `json:"include_min"`
	EnableMax  bool    `json:"enable_max"`
	MaxValue   float64 `json:"max_value"`
	IncludeMax bool    `json:"include_max"`
}

type TopKFilter struct {
	K         int  `json:"k"`
	Ascending bool `json:"ascending"`
}

// PercentageFilter keeps rows whose Value lies in the inclusive band
// between the two percentiles, computed over valid numeric Values.
type PercentageFilter struct {
	MinPercentile float64 `json:"min_percentile"`
	MaxPercentile float64 `json:"max_percentile"`
}

// TableFilter keeps (or, in exclude mode, drops) rows whose key-column
// tuple appears in the reference dataset.
type TableFilter struct {
	Enabled     bool      `json:"enabled"`
	Reference   SourceRef `json:"reference"`
	KeyColumns  []string  `json:"key_columns"`
	ExcludeMode bool      `json:"exclude_mode"`
}

// ValidateFilter checks the config against the live source dataset:
// category columns must be axis columns with values drawn from the
// current distincts, the numeric filter must carry exactly its mode's
// parameters, and table-filter keys must be axis columns.
func ValidateFilter(cfg *FilterConfig, src *dataset.Table) error {
	if cfg == nil {
		return validationf("filter", "missing config")
	}
	seen := make(map[string]struct{}, len(cfg.Category))
	for _, cf := range cfg.Category {
		if _, dup := seen[cf.Column]; dup {
			return validationf("category", "duplicate column %q", cf.Column)
		}
		seen[cf.Column] = struct{}{}
		if !src.IsAxis(cf.Column) {
			return validationf("category", "column %q is not an axis column", cf.Column)
		}
		distincts, err := src.DistinctValues(cf.Column)
		if err != nil {
			return validationf("category", "%v", err)
		}
		present := make(map[string]struct{}, len(distincts))
		for _, d := range distincts {
			present[d] = struct{}{}
		}
		for _, v := range cf.Values {
			if _, ok := present[v]; !ok {
				return validationf("category", "value %q not present in column %q", v, cf.Column)
			}
		}
	}
	if nf := cfg.Numeric; nf != nil {
		if err := validateNumericFilter(nf); err != nil {
			return err
		}
	}
	if tf := cfg.Table; tf != nil && tf.Enabled {
		if len(tf.KeyColumns) == 0 {
			return validationf("table_filter", "key_columns must not be empty")
		}
		keySeen := make(map[string]struct{}, len(tf.KeyColumns))
		for _, kc := range tf.KeyColumns {
			if _, dup := keySeen[kc]; dup {
				return validationf("table_filter", "duplicate key column %q", kc)
			}
			keySeen[kc] = struct{}{}
			if !src.IsAxis(kc) {
				return validationf("table_filter", "key column %q is not an axis column", kc)
			}
		}
		if tf.Reference.Kind != SourceOriginal && tf.Reference.Kind != SourceStep {
			return validationf("table_filter", "reference has unknown kind %q", tf.Reference.Kind)
		}
	}
	return nil
}

func validateNumericFilter(nf *NumericFilter) error {
	var want int
	if nf.Range != nil {
		want++
	}
	if nf.TopK != nil {
		want++
	}
	if nf.Percentage != nil {
		want++
	}
	if want != 1 {
		return validationf("numeric", "exactly one of range, top_k, percentage required, got %d", want)
	}
	switch nf.Mode {
	case NumericRange:
		if nf.Range == nil {
			return validationf("numeric", "mode %q requires range parameters", nf.Mode)
		}
	case NumericTopK:
		if nf.TopK == nil {
			return validationf("numeric", "mode %q requires top_k parameters", nf.Mode)
		}
		if nf.TopK.K <= 0 {
			return validationf("numeric", "top_k k must be a positive integer, got %d", nf.TopK.K)
		}
	case NumericPercentage:
		if nf.Percentage == nil {
			return validationf("numeric", "mode %q requires percentage parameters", nf.Mode)
		}
		p := nf.Percentage
		if p.MinPercentile < 0 || p.MaxPercentile > 100 || p.MinPercentile > p.MaxPercentile {
			return validationf("numeric", "percentile bounds must satisfy 0 <= min <= max <= 100, got %v..%v", p.MinPercentile, p.MaxPercentile)
		}
	default:
		return validationf("numeric", "unknown mode %q", nf.Mode)
	}
	return nil
}

// ApplyFilter runs the three stages in fixed order over a copy of src.
// ref is the resolved table-filter reference; it may be nil when the
// table filter is absent or disabled.
func ApplyFilter(cfg *FilterConfig, src, ref *dataset.Table) (*dataset.Table, error) {
	rows := make([]int, 0, src.RowCount())
	for i := range src.Rows {
		rows = append(rows, i)
	}

	rows = applyCategoryStage(cfg.Category, src, rows)

	if cfg.Numeric != nil {
		var err error
		rows, err = applyNumericStage(cfg.Numeric, src, rows)
		if err != nil {
			return nil, err
		}
	}

	if cfg.Table != nil && cfg.Table.Enabled {
		if ref == nil {
			return nil, fmt.Errorf("table filter: reference dataset not resolved")
		}
		var err error
		rows, err = applyTableStage(cfg.Table, src, ref, rows)
		if err != nil {
			return nil, err
		}
	}

	out := src.CloneEmpty()
	for _, ri := range rows {
		row := make([]dataset.Cell, len(src.Rows[ri]))
		copy(row, src.Rows[ri])
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

func applyCategoryStage(filters []CategoryFilter, src *dataset.Table, rows []int) []int {
	for _, cf := range filters {
		idx, ok := src.ColumnIndex(cf.Column)
		if !ok {
			// validated earlier; an absent column keeps nothing
			return nil
		}
		allowed := make(map[string]struct{}, len(cf.Values))
		for _, v := range cf.Values {
			allowed[v] = struct{}{}
		}
		kept := rows[:0]
		for _, ri := range rows {
			if _, ok := allowed[src.Rows[ri][idx].String()]; ok {
				kept = append(kept, ri)
			}
		}
		rows = kept
	}
	return rows
}

func applyNumericStage(nf *NumericFilter, src *dataset.Table, rows []int) ([]int, error) {
	vi := src.ValueIndex()
	switch nf.Mode {
	case NumericRange:
		r := nf.Range
		kept := rows[:0]
		for _, ri := range rows {
			v, ok := src.Rows[ri][vi].NumericValue()
			if !ok {
				kept = append(kept, ri)
				continue
			}
			if r.EnableMin {
				if r.IncludeMin && v < r.MinValue {
					continue
				}
				if !r.IncludeMin && v <= r.MinValue {
					continue
				}
			}
			if r.EnableMax {
				if r.IncludeMax && v > r.MaxValue {
					continue
				}
				if !r.IncludeMax && v >= r.MaxValue {
					continue
				}
			}
			kept = append(kept, ri)
		}
		return kept, nil

	case NumericTopK:
		type ranked struct {
			row int
			val float64
		}
		numeric := make([]ranked, 0, len(rows))
		for _, ri := range rows {
			if v, ok := src.Rows[ri][vi].NumericValue(); ok {
				numeric = append(numeric, ranked{row: ri, val: v})
			}
		}
		sort.SliceStable(numeric, func(i, j int) bool {
			if nf.TopK.Ascending {
				return numeric[i].val < numeric[j].val
			}
			return numeric[i].val > numeric[j].val
		})
		k := nf.TopK.K
		if k > len(numeric) {
			k = len(numeric)
		}
		keep := make(map[int]struct{}, k)
		for _, r := range numeric[:k] {
			keep[r.row] = struct{}{}
		}
		kept := rows[:0]
		for _, ri := range rows {
			if _, ok := src.Rows[ri][vi].NumericValue(); !ok {
				kept = append(kept, ri)
				continue
			}
			if _, ok := keep[ri]; ok {
				kept = append(kept, ri)
			}
		}
		return kept, nil

	case NumericPercentage:
		values := make([]float64, 0, len(rows))
		for _, ri := range rows {
			if v, ok := src.Rows[ri][vi].NumericValue(); ok {
				values = append(values, v)
			}
		}
		sort.Float64s(values)
		lo := quantile(values, nf.Percentage.MinPercentile)
		hi := quantile(values, nf.Percentage.MaxPercentile)
		kept := rows[:0]
		for _, ri := range rows {
			v, ok := src.Rows[ri][vi].NumericValue()
			if !ok {
				kept = append(kept, ri)
				continue
			}
			if v >= lo && v <= hi {
				kept = append(kept, ri)
			}
		}
		return kept, nil
	}
	return nil, fmt.Errorf("numeric filter: unknown mode %q", nf.Mode)
}

func applyTableStage(tf *TableFilter, src, ref *dataset.Table, rows []int) ([]int, error) {
	srcIdxs := make([]int, len(tf.KeyColumns))
	refIdxs := make([]int, len(tf.KeyColumns))
	for i, kc := range tf.KeyColumns {
		si, ok := src.ColumnIndex(kc)
		if !ok {
			return nil, fmt.Errorf("table filter: source lacks key column %q", kc)
		}
		ri, ok := ref.ColumnIndex(kc)
		if !ok {
			return nil, fmt.Errorf("table filter: reference dataset lacks key column %q", kc)
		}
		srcIdxs[i] = si
		refIdxs[i] = ri
	}
	refKeys := make(map[string]struct{}, ref.RowCount())
	for _, row := range ref.Rows {
		refKeys[ref.GroupKey(row, refIdxs)] = struct{}{}
	}
	kept := rows[:0]
	for _, ri := range rows {
		_, present := refKeys[src.GroupKey(src.Rows[ri], srcIdxs)]
		if present != tf.ExcludeMode {
			kept = append(kept, ri)
		}
	}
	return kept, nil
}

// reconcileCategory refreshes a filter's category stage against the
// current source before re-execution. When an entry's column vanished
// upstream the whole stage resets to the full distinct list per axis
// column; otherwise stale values that vanished upstream are dropped
// from the allow-lists. Returns the (possibly replaced) config and
// whether anything changed.
func reconcileCategory(cfg *FilterConfig, src *dataset.Table) (*FilterConfig, bool, error) {
	for _, cf := range cfg.Category {
		if src.IsAxis(cf.Column) {
			continue
		}
		out := &FilterConfig{Numeric: cfg.Numeric, Table: cfg.Table}
		axes := src.AxisColumns()
		out.Category = make([]CategoryFilter, 0, len(axes))
		for _, col := range axes {
			values, err := src.DistinctValues(col.Name)
			if err != nil {
				return nil, false, err
			}
			out.Category = append(out.Category, CategoryFilter{Column: col.Name, Values: values})
		}
		return out, true, nil
	}

	changed := false
	category := make([]CategoryFilter, len(cfg.Category))
	for i, cf := range cfg.Category {
		distincts, err := src.DistinctValues(cf.Column)
		if err != nil {
			return nil, false, err
		}
		present := make(map[string]struct{}, len(distincts))
		for _, d := range distincts {
			present[d] = struct{}{}
		}
		values := make([]string, 0, len(cf.Values))
		for _, v := range cf.Values {
			if _, ok := present[v]; ok {
				values = append(values, v)
			}
		}
		if len(values) != len(cf.Values) {
			changed = true
		}
		category[i] = CategoryFilter{Column: cf.Column, Values: values}
	}
	if !changed {
		return cfg, false, nil
	}
	return &FilterConfig{Category: category, Numeric: cfg.Numeric, Table: cfg.Table}, true, nil
}
