package engine

import (
	"encoding/json"
	"math"
	"testing"
)

func TestApplySummary_BaseFormulaWithPortion(t *testing.T) {
	src := salesTable(t)
	cfg := &SummaryConfig{Formulas: []SummaryFormula{{
		Type:        MethodSum,
		Subject:     "売上",
		FormulaText: "総売上",
		Unit:        UnitYen,
		Portion:     0.5,
	}}}
	results, err := ApplySummary(cfg, src)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.Name != "総売上" || r.Value != 75.0 || r.Unit != UnitYen {
		t.Fatalf("got %q = %v %s", r.Name, r.Value, r.Unit)
	}
}

func TestApplySummary_CompositeReadsPostPortionValues(t *testing.T) {
	src := salesTable(t) // 売上: 100, 50
	cfg := &SummaryConfig{Formulas: []SummaryFormula{
		{Type: MethodSum, Subject: "売上", FormulaText: "半分", Unit: UnitYen, Portion: 0.5},
		{Type: MethodCount, Subject: "売上", FormulaText: "件数", Unit: UnitCount, Portion: 1},
		{Type: OpDiv, Operands: []string{"半分", "件数"}, FormulaText: "平均", Unit: UnitYen, Portion: 2},
	}}
	results, err := ApplySummary(cfg, src)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	// 半分 = 150*0.5 = 75, 件数 = 2, 平均 = (75/2)*2 = 75
	if results[0].Value != 75 || results[1].Value != 2 || results[2].Value != 75 {
		t.Fatalf("got %v, %v, %v", results[0].Value, results[1].Value, results[2].Value)
	}
}

func TestApplySummary_DivisionPolicy(t *testing.T) {
	src := mixedTable(t) // メモ rows carry no numeric values
	cfg := &SummaryConfig{Formulas: []SummaryFormula{
		{Type: MethodSum, Subject: "メモ", FormulaText: "a", Unit: UnitCount, Portion: 1},
		{Type: MethodSum, Subject: "メモ", FormulaText: "b", Unit: UnitCount, Portion: 1},
		{Type: MethodSum, Subject: "売上", FormulaText: "c", Unit: UnitYen, Portion: 1},
		{Type: OpDiv, Operands: []string{"a", "b"}, FormulaText: "zero", Unit: UnitPercent, Portion: 1},
		{Type: OpDiv, Operands: []string{"c", "b"}, FormulaText: "undef", Unit: UnitPercent, Portion: 1},
	}}
	results, err := ApplySummary(cfg, src)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	byName := make(map[string]float64, len(results))
	for _, r := range results {
		byName[r.Name] = r.Value
	}
	if byName["a"] != 0 {
		t.Fatalf("sum over no numeric values must be 0, got %v", byName["a"])
	}
	if byName["zero"] != 0 {
		t.Fatalf("0/0 must be 0, got %v", byName["zero"])
	}
	if !math.IsNaN(byName["undef"]) {
		t.Fatalf("150/0 must be NaN, got %v", byName["undef"])
	}
}

func TestApplySummary_MeanOfEmptySubjectIsNaN(t *testing.T) {
	src := mixedTable(t)
	cfg := &SummaryConfig{Formulas: []SummaryFormula{
		{Type: MethodMean, Subject: "メモ", FormulaText: "平均", Unit: UnitCount, Portion: 1},
		{Type: MethodCount, Subject: "メモ", FormulaText: "件数", Unit: UnitCount, Portion: 1},
	}}
	results, err := ApplySummary(cfg, src)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !math.IsNaN(results[0].Value) {
		t.Fatalf("mean over no numeric values must be NaN, got %v", results[0].Value)
	}
	if results[1].Value != 0 {
		t.Fatalf("count over no numeric values must be 0, got %v", results[1].Value)
	}
}

func TestValidateSummary_Rejections(t *testing.T) {
	src := salesTable(t)
	base := func(mut func(*SummaryFormula)) []SummaryFormula {
		f := SummaryFormula{Type: MethodSum, Subject: "売上", FormulaText: "総売上", Unit: UnitYen, Portion: 1}
		mut(&f)
		return []SummaryFormula{f}
	}
	cases := []struct {
		name     string
		formulas []SummaryFormula
	}{
		{"empty formula_text", base(func(f *SummaryFormula) { f.FormulaText = "" })},
		{"unknown unit", base(func(f *SummaryFormula) { f.Unit = "ドル" })},
		{"portion NaN", base(func(f *SummaryFormula) { f.Portion = math.NaN() })},
		{"portion infinite", base(func(f *SummaryFormula) { f.Portion = math.Inf(1) })},
		{"base with operands", base(func(f *SummaryFormula) { f.Operands = []string{"x", "y"} })},
		{"base without subject", base(func(f *SummaryFormula) { f.Subject = "" })},
		{"base subject missing from source", base(func(f *SummaryFormula) { f.Subject = "在庫" })},
		{"unknown type", base(func(f *SummaryFormula) { f.Type = "median" })},
		{"duplicate formula_text", []SummaryFormula{
			{Type: MethodSum, Subject: "売上", FormulaText: "x", Unit: UnitYen, Portion: 1},
			{Type: MethodCount, Subject: "売上", FormulaText: "x", Unit: UnitCount, Portion: 1},
		}},
		{"composite with subject", []SummaryFormula{
			{Type: MethodSum, Subject: "売上", FormulaText: "a", Unit: UnitYen, Portion: 1},
			{Type: MethodSum, Subject: "売上", FormulaText: "b", Unit: UnitYen, Portion: 1},
			{Type: OpAdd, Subject: "売上", Operands: []string{"a", "b"}, FormulaText: "c", Unit: UnitYen, Portion: 1},
		}},
		{"composite with one operand", []SummaryFormula{
			{Type: MethodSum, Subject: "売上", FormulaText: "a", Unit: UnitYen, Portion: 1},
			{Type: OpAdd, Operands: []string{"a"}, FormulaText: "c", Unit: UnitYen, Portion: 1},
		}},
		{"composite operand declared later", []SummaryFormula{
			{Type: OpAdd, Operands: []string{"a", "b"}, FormulaText: "c", Unit: UnitYen, Portion: 1},
			{Type: MethodSum, Subject: "売上", FormulaText: "a", Unit: UnitYen, Portion: 1},
			{Type: MethodSum, Subject: "売上", FormulaText: "b", Unit: UnitYen, Portion: 1},
		}},
		{"composite references itself", []SummaryFormula{
			{Type: MethodSum, Subject: "売上", FormulaText: "a", Unit: UnitYen, Portion: 1},
			{Type: OpAdd, Operands: []string{"a", "c"}, FormulaText: "c", Unit: UnitYen, Portion: 1},
		}},
	}
	for _, c := range cases {
		err := ValidateSummary(&SummaryConfig{Formulas: c.formulas}, src)
		if err == nil {
			t.Fatalf("%s: expected validation error", c.name)
		}
		if !IsValidation(err) {
			t.Fatalf("%s: expected ValidationError, got %T %v", c.name, err, err)
		}
	}
}

func TestApplySummary_OperandOrderMatters(t *testing.T) {
	src := salesTable(t)
	cfg := &SummaryConfig{Formulas: []SummaryFormula{
		{Type: MethodMax, Subject: "売上", FormulaText: "最大", Unit: UnitYen, Portion: 1},
		{Type: MethodMin, Subject: "売上", FormulaText: "最小", Unit: UnitYen, Portion: 1},
		{Type: OpSub, Operands: []string{"最大", "最小"}, FormulaText: "幅", Unit: UnitYen, Portion: 1},
		{Type: OpSub, Operands: []string{"最小", "最大"}, FormulaText: "逆幅", Unit: UnitYen, Portion: 1},
	}}
	results, err := ApplySummary(cfg, src)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if results[2].Value != 50 || results[3].Value != -50 {
		t.Fatalf("got %v and %v", results[2].Value, results[3].Value)
	}
}

func TestFormulaResult_JSONKeepsNaN(t *testing.T) {
	in := FormulaResult{Name: "率", Value: math.NaN(), Unit: UnitPercent}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out FormulaResult
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Name != "率" || !math.IsNaN(out.Value) || out.Unit != UnitPercent {
		t.Fatalf("round trip lost fields: %+v", out)
	}

	in.Value = 75
	data, err = json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Value != 75 {
		t.Fatalf("got %v", out.Value)
	}
}
