package engine

import (
	"fmt"
	"strings"

	"github.com/mizukilab/kaiseki-backend/internal/dataset"
)

// DataOverview renders a dataset digest for the upstream agent: shape,
// columns with roles and distinct counts, subjects, value statistics,
// and a short preview.
func DataOverview(t *dataset.Table) string {
	var b strings.Builder
	fmt.Fprintf(&b, "rows: %d\n", t.RowCount())
	fmt.Fprintf(&b, "columns (%d):\n", len(t.Columns))
	for _, c := range t.Columns {
		role := "axis"
		switch c.Name {
		case t.SubjectColumn:
			role = "subject"
		case t.ValueColumn:
			role = "value"
		}
		if role == "axis" {
			distincts, _ := t.DistinctValues(c.Name)
			fmt.Fprintf(&b, "  - %s (%s, axis, %d distinct)\n", c.Name, c.Type, len(distincts))
		} else {
			fmt.Fprintf(&b, "  - %s (%s, %s)\n", c.Name, c.Type, role)
		}
	}

	subjects := t.DistinctSubjects()
	fmt.Fprintf(&b, "subjects (%d): %s\n", len(subjects), strings.Join(truncateList(subjects, 20), ", "))

	vi := t.ValueIndex()
	values := make([]float64, 0, t.RowCount())
	for _, row := range t.Rows {
		if v, ok := row[vi].NumericValue(); ok {
			values = append(values, v)
		}
	}
	if len(values) > 0 {
		fmt.Fprintf(&b, "value: count=%d sum=%s mean=%s min=%s max=%s\n",
			len(values),
			dataset.FormatNumber(computeStat(MethodSum, values)),
			dataset.FormatNumber(computeStat(MethodMean, values)),
			dataset.FormatNumber(computeStat(MethodMin, values)),
			dataset.FormatNumber(computeStat(MethodMax, values)))
	} else {
		b.WriteString("value: no numeric values\n")
	}

	preview := t.RowCount()
	if preview > 5 {
		preview = 5
	}
	if preview > 0 {
		b.WriteString("preview:\n")
		names := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			names[i] = c.Name
		}
		fmt.Fprintf(&b, "  %s\n", strings.Join(names, " | "))
		for _, row := range t.Rows[:preview] {
			cells := make([]string, len(row))
			for i, c := range row {
				cells[i] = c.String()
			}
			fmt.Fprintf(&b, "  %s\n", strings.Join(cells, " | "))
		}
	}
	return b.String()
}

// StepOverview renders one step's configuration and latest result.
func StepOverview(step *Step, steps []*Step) string {
	var b strings.Builder
	fmt.Fprintf(&b, "step %d: %s (%s)\n", step.Order, step.Name, step.Type)
	fmt.Fprintf(&b, "source: %s\n", FormatSourceRef(step.Source, steps))
	fmt.Fprintf(&b, "status: %s\n", step.Status)

	switch step.Type {
	case StepFilter:
		describeFilter(&b, step.Config.Filter, steps)
	case StepAggregate:
		describeAggregate(&b, step.Config.Aggregate)
	case StepTransform:
		describeTransform(&b, step.Config.Transform)
	case StepSummary:
		describeSummary(&b, step.Config.Summary)
	}

	if r := step.Result; r != nil {
		if r.DatasetPath != "" {
			fmt.Fprintf(&b, "result: %d rows x %d columns\n", r.RowCount, r.ColumnCount)
		}
		for _, f := range r.Formulas {
			fmt.Fprintf(&b, "result formula: %s = %s %s\n", f.Name, dataset.FormatNumber(f.Value), f.Unit)
		}
		if r.Chart != nil {
			fmt.Fprintf(&b, "result chart: %s (%s %dx%d)\n", r.Chart.Path, r.Chart.Format, r.Chart.Width, r.Chart.Height)
		}
		if r.PassthroughPath != "" {
			fmt.Fprintf(&b, "result table: %s\n", r.PassthroughPath)
		}
	}
	return b.String()
}

func describeFilter(b *strings.Builder, cfg *FilterConfig, steps []*Step) {
	if cfg == nil {
		return
	}
	for _, cf := range cfg.Category {
		fmt.Fprintf(b, "category %s: %s\n", cf.Column, strings.Join(truncateList(cf.Values, 10), ", "))
	}
	if nf := cfg.Numeric; nf != nil {
		switch nf.Mode {
		case NumericRange:
			r := nf.Range
			parts := make([]string, 0, 2)
			if r.EnableMin {
				op := ">"
				if r.IncludeMin {
					op = ">="
				}
				parts = append(parts, fmt.Sprintf("value %s %s", op, dataset.FormatNumber(r.MinValue)))
			}
			if r.EnableMax {
				op := "<"
				if r.IncludeMax {
					op = "<="
				}
				parts = append(parts, fmt.Sprintf("value %s %s", op, dataset.FormatNumber(r.MaxValue)))
			}
			if len(parts) == 0 {
				parts = append(parts, "no bounds")
			}
			fmt.Fprintf(b, "numeric range: %s\n", strings.Join(parts, " and "))
		case NumericTopK:
			dir := "largest"
			if nf.TopK.Ascending {
				dir = "smallest"
			}
			fmt.Fprintf(b, "numeric top_k: %d %s by value\n", nf.TopK.K, dir)
		case NumericPercentage:
			fmt.Fprintf(b, "numeric percentage: %s..%s percentile\n",
				dataset.FormatNumber(nf.Percentage.MinPercentile), dataset.FormatNumber(nf.Percentage.MaxPercentile))
		}
	}
	if tf := cfg.Table; tf != nil && tf.Enabled {
		mode := "include"
		if tf.ExcludeMode {
			mode = "exclude"
		}
		fmt.Fprintf(b, "table filter: %s keys [%s] from %s\n", mode, strings.Join(tf.KeyColumns, ", "), FormatSourceRef(tf.Reference, steps))
	}
}

func describeAggregate(b *strings.Builder, cfg *AggregateConfig) {
	if cfg == nil {
		return
	}
	if len(cfg.GroupBy) > 0 {
		fmt.Fprintf(b, "group by: %s\n", strings.Join(cfg.GroupBy, ", "))
	} else {
		b.WriteString("group by: (whole dataset)\n")
	}
	for _, a := range cfg.Aggregations {
		if len(a.Operands) == 2 {
			fmt.Fprintf(b, "aggregation %s = %s %s %s\n", a.Name, a.Operands[0], a.Method, a.Operands[1])
		} else {
			fmt.Fprintf(b, "aggregation %s = %s(%s)\n", a.Name, a.Method, a.Subject)
		}
	}
}

func describeTransform(b *strings.Builder, cfg *TransformConfig) {
	if cfg == nil {
		return
	}
	for i, op := range cfg.Operations {
		fmt.Fprintf(b, "operation %d: %s %s via %s\n", i, op.Type, op.TargetName, describeCalc(op.Calculation))
	}
}

func describeCalc(calc Calculation) string {
	switch calc.Kind {
	case CalcConstant:
		if calc.Constant == nil {
			return "constant"
		}
		if calc.Constant.Text != nil {
			return fmt.Sprintf("constant %q", *calc.Constant.Text)
		}
		return fmt.Sprintf("constant %s", dataset.FormatNumber(*calc.Constant.Number))
	case CalcCopy:
		if calc.Copy == nil {
			return "copy"
		}
		return fmt.Sprintf("copy of %s", calc.Copy.Source)
	case CalcFormula:
		f := calc.Formula
		if f == nil {
			return "formula"
		}
		if len(f.Operands) == 2 {
			return fmt.Sprintf("%s %s %s", f.Operands[0], f.Op, f.Operands[1])
		}
		if len(f.Operands) == 1 && f.Constant != nil {
			return fmt.Sprintf("%s %s %s", f.Operands[0], f.Op, dataset.FormatNumber(*f.Constant))
		}
		return "formula"
	case CalcMapping:
		pairs := make([]string, 0, len(calc.Mapping))
		for _, m := range calc.Mapping {
			pairs = append(pairs, fmt.Sprintf("%s=%s", m.Subject, dataset.FormatNumber(m.Value)))
		}
		return fmt.Sprintf("mapping {%s}", strings.Join(truncateList(pairs, 8), ", "))
	}
	return string(calc.Kind)
}

func describeSummary(b *strings.Builder, cfg *SummaryConfig) {
	if cfg == nil {
		return
	}
	for _, f := range cfg.Formulas {
		if len(f.Operands) == 2 {
			fmt.Fprintf(b, "formula %s = %s %s %s (unit %s, portion %s)\n",
				f.FormulaText, f.Operands[0], f.Type, f.Operands[1], f.Unit, dataset.FormatNumber(f.Portion))
		} else {
			fmt.Fprintf(b, "formula %s = %s(%s) (unit %s, portion %s)\n",
				f.FormulaText, f.Type, f.Subject, f.Unit, dataset.FormatNumber(f.Portion))
		}
	}
	if hasChart(cfg.Chart) {
		b.WriteString("chart: configured\n")
	}
	if cfg.Table != nil && cfg.Table.ShowSourceData {
		fmt.Fprintf(b, "table: show source data as %q\n", cfg.Table.TableName)
	}
}

func truncateList(list []string, max int) []string {
	if len(list) <= max {
		return list
	}
	out := make([]string, max+1)
	copy(out, list[:max])
	out[max] = fmt.Sprintf("... (%d more)", len(list)-max)
	return out
}
