package engine

import (
	"encoding/json"
	"math"

	"github.com/mizukilab/kaiseki-backend/internal/dataset"
)

// Units a summary formula may carry.
const (
	UnitYen     = "円"
	UnitPercent = "%"
	UnitCount   = "個"
)

func isUnit(u string) bool {
	return u == UnitYen || u == UnitPercent || u == UnitCount
}

// SummaryConfig computes an ordered list of named scalar formulas over
// the step's input dataset, optionally renders a chart (validated and
// produced by the charting collaborator, opaque here), and optionally
// passes the input table through for display. A summary step never
// produces a dataset of its own.
type SummaryConfig struct {
	Formulas []SummaryFormula `json:"formulas"`
	Chart    json.RawMessage  `json:"chart,omitempty"`
	Table    *SummaryTable    `json:"table,omitempty"`
}

type SummaryTable struct {
	ShowSourceData bool   `json:"show_source_data"`
	TableName      string `json:"table_name"`
}

// SummaryFormula is one named scalar. Base shape: Type is a statistic
// and Subject names the rows it reads. Composite shape: Type is an
// arithmetic operator and Operands names exactly two formula_text
// values declared strictly earlier (operand order matters for - and /).
// The computed value is multiplied by Portion.
type SummaryFormula struct {
	Type        string   `json:"type"`
	Subject     string   `json:"subject,omitempty"`
	Operands    []string `json:"operands,omitempty"`
	FormulaText string   `json:"formula_text"`
	Unit        string   `json:"unit"`
	Portion     float64  `json:"portion"`
}

type summaryEntry struct {
	formula SummaryFormula
	base    bool
	opA     int
	opB     int
}

func compileSummary(cfg *SummaryConfig, src *dataset.Table) ([]summaryEntry, error) {
	if cfg == nil {
		return nil, validationf("summary", "missing config")
	}
	subjects := make(map[string]struct{})
	for _, s := range src.DistinctSubjects() {
		subjects[s] = struct{}{}
	}

	entries := make([]summaryEntry, 0, len(cfg.Formulas))
	symbols := make(map[string]int, len(cfg.Formulas))
	for i, f := range cfg.Formulas {
		if f.FormulaText == "" {
			return nil, validationf("formulas", "formula %d has an empty formula_text", i)
		}
		if _, dup := symbols[f.FormulaText]; dup {
			return nil, validationf("formulas", "duplicate formula_text %q", f.FormulaText)
		}
		if !isUnit(f.Unit) {
			return nil, validationf("formulas", "%q: unit must be one of 円, %%, 個, got %q", f.FormulaText, f.Unit)
		}
		if math.IsNaN(f.Portion) || math.IsInf(f.Portion, 0) {
			return nil, validationf("formulas", "%q: portion must be a real number", f.FormulaText)
		}
		switch {
		case isStatMethod(f.Type):
			if len(f.Operands) != 0 {
				return nil, validationf("formulas", "%q: base type %q takes no operands", f.FormulaText, f.Type)
			}
			if f.Subject == "" {
				return nil, validationf("formulas", "%q: base type %q requires a target subject", f.FormulaText, f.Type)
			}
			if _, ok := subjects[f.Subject]; !ok {
				return nil, validationf("formulas", "%q: subject %q not present in source", f.FormulaText, f.Subject)
			}
			entries = append(entries, summaryEntry{formula: f, base: true})
		case isArithOp(f.Type):
			if f.Subject != "" {
				return nil, validationf("formulas", "%q: composite type %q takes operands, not a subject", f.FormulaText, f.Type)
			}
			if len(f.Operands) != 2 {
				return nil, validationf("formulas", "%q: composite type %q requires exactly 2 operands, got %d", f.FormulaText, f.Type, len(f.Operands))
			}
			a, ok := symbols[f.Operands[0]]
			if !ok {
				return nil, validationf("formulas", "%q: operand %q not declared earlier", f.FormulaText, f.Operands[0])
			}
			b, ok := symbols[f.Operands[1]]
			if !ok {
				return nil, validationf("formulas", "%q: operand %q not declared earlier", f.FormulaText, f.Operands[1])
			}
			entries = append(entries, summaryEntry{formula: f, opA: a, opB: b})
		default:
			return nil, validationf("formulas", "%q: unknown type %q", f.FormulaText, f.Type)
		}
		symbols[f.FormulaText] = i
	}
	return entries, nil
}

// ValidateSummary checks the formula list against the live source.
// The chart payload is validated separately by the charting
// collaborator and is not inspected here.
func ValidateSummary(cfg *SummaryConfig, src *dataset.Table) error {
	_, err := compileSummary(cfg, src)
	return err
}

// ApplySummary evaluates the formulas in declared order. Composite
// formulas read their operands' already-computed values (after those
// operands' portions) and then apply their own portion.
func ApplySummary(cfg *SummaryConfig, src *dataset.Table) ([]FormulaResult, error) {
	entries, err := compileSummary(cfg, src)
	if err != nil {
		return nil, err
	}
	si := src.SubjectIndex()
	vi := src.ValueIndex()

	values := make([]float64, len(entries))
	out := make([]FormulaResult, len(entries))
	for i, e := range entries {
		var v float64
		if e.base {
			nums := make([]float64, 0, src.RowCount())
			for _, row := range src.Rows {
				if row[si].String() != e.formula.Subject {
					continue
				}
				if n, ok := row[vi].NumericValue(); ok {
					nums = append(nums, n)
				}
			}
			v = computeStat(e.formula.Type, nums)
		} else {
			v = applyArith(e.formula.Type, values[e.opA], values[e.opB])
		}
		v *= e.formula.Portion
		values[i] = v
		out[i] = FormulaResult{Name: e.formula.FormulaText, Value: v, Unit: e.formula.Unit}
	}
	return out, nil
}
