package engine

import (
	"math"
	"testing"

	"github.com/mizukilab/kaiseki-backend/internal/dataset"
)

func floatPtr(v float64) *float64 { return &v }

func strPtr(s string) *string { return &s }

func TestApplyTransform_AddSubjectMappingAddsOneRowPerCombination(t *testing.T) {
	src := mixedTable(t) // combos: 東京, 大阪, 名古屋
	cfg := &TransformConfig{Operations: []TransformOperation{{
		Type:       TransformAddSubject,
		TargetName: "予算",
		Calculation: Calculation{
			Kind: CalcMapping,
			Mapping: []MappingEntry{
				{Subject: "売上", Value: 1.0},
				{Subject: "費用", Value: 2.0},
			},
		},
	}}}
	out, err := ApplyTransform(cfg, src)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out.RowCount() != src.RowCount()+3 {
		t.Fatalf("expected one new row per axis combination, got %d new",
			out.RowCount()-src.RowCount())
	}
	si, vi := out.SubjectIndex(), out.ValueIndex()
	gi, _ := out.ColumnIndex("地域")
	got := make(map[string]float64)
	for _, row := range out.Rows[src.RowCount():] {
		if row[si].String() != "予算" {
			t.Fatalf("appended row has wrong subject %q", row[si].String())
		}
		v, _ := row[vi].Number()
		got[row[gi].String()] = v
	}
	// 東京 and 大阪 carry both mapped subjects; the first entry wins.
	if got["東京"] != 1.0 || got["大阪"] != 1.0 {
		t.Fatalf("first matching entry should win: %v", got)
	}
	// 名古屋 matches no entry.
	if !math.IsNaN(got["名古屋"]) {
		t.Fatalf("combination without any mapped subject must get NaN, got %v", got["名古屋"])
	}
	// source untouched
	if src.RowCount() != 5 {
		t.Fatalf("transform must not mutate its input")
	}
}

func TestApplyTransform_LaterOperationsSeeEarlierRows(t *testing.T) {
	src := salesTable(t)
	cfg := &TransformConfig{Operations: []TransformOperation{
		{
			Type:       TransformAddSubject,
			TargetName: "在庫",
			Calculation: Calculation{Kind: CalcConstant,
				Constant: &ConstantCalc{Number: floatPtr(5)}},
		},
		{
			Type:       TransformAddSubject,
			TargetName: "指数",
			Calculation: Calculation{Kind: CalcMapping,
				Mapping: []MappingEntry{{Subject: "在庫", Value: 9}}},
		},
	}}
	out, err := ApplyTransform(cfg, src)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	// the second operation sees the rows the first one appended
	si, vi := out.SubjectIndex(), out.ValueIndex()
	count := 0
	for _, row := range out.Rows {
		if row[si].String() == "指数" {
			count++
			if v, _ := row[vi].Number(); v != 9 {
				t.Fatalf("mapping should match the subject added earlier in the step, got %v", v)
			}
		}
	}
	if count != 2 {
		t.Fatalf("expected 2 指数 rows, got %d", count)
	}
}

func TestApplyTransform_AddAxisConstantAndFormula(t *testing.T) {
	src := salesTable(t)
	cfg := &TransformConfig{Operations: []TransformOperation{
		{
			Type:        TransformAddAxis,
			TargetName:  "国",
			Calculation: Calculation{Kind: CalcConstant, Constant: &ConstantCalc{Text: strPtr("日本")}},
		},
		{
			Type:       TransformAddAxis,
			TargetName: "係数",
			Calculation: Calculation{Kind: CalcConstant,
				Constant: &ConstantCalc{Number: floatPtr(2)}},
		},
		{
			Type:       TransformAddAxis,
			TargetName: "倍率",
			Calculation: Calculation{Kind: CalcFormula,
				Formula: &FormulaCalc{Op: OpMul, Operands: []string{"係数"}, Constant: floatPtr(10)}},
		},
	}}
	out, err := ApplyTransform(cfg, src)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	ci, ok := out.ColumnIndex("国")
	if !ok {
		t.Fatalf("国 column missing")
	}
	if out.Rows[0][ci].String() != "日本" {
		t.Fatalf("constant text not applied: %q", out.Rows[0][ci].String())
	}
	mi, _ := out.ColumnIndex("倍率")
	if v, _ := out.Rows[1][mi].Number(); v != 20 {
		t.Fatalf("formula over the axis column added earlier failed: %v", v)
	}
}

func TestApplyTransform_ModifyAxisFormulaTwoOperands(t *testing.T) {
	tbl, err := dataset.New([]dataset.Column{
		{Name: "a", Type: dataset.TypeNumber},
		{Name: "b", Type: dataset.TypeNumber},
		{Name: "科目", Type: dataset.TypeText},
		{Name: "値", Type: dataset.TypeNumber},
	}, "科目", "値")
	if err != nil {
		t.Fatalf("new table: %v", err)
	}
	tbl.AppendRow(dataset.Number(6), dataset.Number(3), dataset.Text("売上"), dataset.Number(1))
	tbl.AppendRow(dataset.Number(5), dataset.Number(0), dataset.Text("売上"), dataset.Number(1))
	tbl.AppendRow(dataset.Number(0), dataset.Number(0), dataset.Text("売上"), dataset.Number(1))

	cfg := &TransformConfig{Operations: []TransformOperation{{
		Type:       TransformModifyAxis,
		TargetName: "a",
		Calculation: Calculation{Kind: CalcFormula,
			Formula: &FormulaCalc{Op: OpDiv, Operands: []string{"a", "b"}}},
	}}}
	out, err := ApplyTransform(cfg, tbl)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	ai, _ := out.ColumnIndex("a")
	if v, _ := out.Rows[0][ai].Number(); v != 2 {
		t.Fatalf("6/3: got %v", v)
	}
	if v, _ := out.Rows[1][ai].Number(); !math.IsNaN(v) {
		t.Fatalf("5/0 must be NaN, got %v", v)
	}
	if v, _ := out.Rows[2][ai].Number(); v != 0 {
		t.Fatalf("0/0 must be 0, got %v", v)
	}
}

func TestApplyTransform_ModifySubjectOverwritesOnlyMatchingCombos(t *testing.T) {
	tbl, err := dataset.New([]dataset.Column{
		{Name: "地域", Type: dataset.TypeText},
		{Name: "科目", Type: dataset.TypeText},
		{Name: "値", Type: dataset.TypeNumber},
	}, "科目", "値")
	if err != nil {
		t.Fatalf("new table: %v", err)
	}
	tbl.AppendRow(dataset.Text("東京"), dataset.Text("売上"), dataset.Number(100))
	tbl.AppendRow(dataset.Text("東京"), dataset.Text("目標"), dataset.Number(1))
	tbl.AppendRow(dataset.Text("大阪"), dataset.Text("売上"), dataset.Number(50))
	// 大阪 has no 目標 row

	cfg := &TransformConfig{Operations: []TransformOperation{{
		Type:       TransformModifySubject,
		TargetName: "目標",
		Calculation: Calculation{Kind: CalcFormula,
			Formula: &FormulaCalc{Op: OpMul, Operands: []string{"売上"}, Constant: floatPtr(1.2)}},
	}}}
	out, err := ApplyTransform(cfg, tbl)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out.RowCount() != 3 {
		t.Fatalf("modify_subject must not add rows, got %d", out.RowCount())
	}
	vi := out.ValueIndex()
	if v, _ := out.Rows[1][vi].Number(); v != 120 {
		t.Fatalf("東京 目標 should be 120, got %v", v)
	}
	if v, _ := out.Rows[2][vi].Number(); v != 50 {
		t.Fatalf("unrelated rows must stay untouched, got %v", v)
	}
}

func TestApplyTransform_SubjectCopy(t *testing.T) {
	src := mixedTable(t)
	cfg := &TransformConfig{Operations: []TransformOperation{{
		Type:        TransformAddSubject,
		TargetName:  "売上控え",
		Calculation: Calculation{Kind: CalcCopy, Copy: &CopyCalc{Source: "売上"}},
	}}}
	out, err := ApplyTransform(cfg, src)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	si, vi := out.SubjectIndex(), out.ValueIndex()
	gi, _ := out.ColumnIndex("地域")
	for _, row := range out.Rows[src.RowCount():] {
		if row[si].String() != "売上控え" {
			continue
		}
		v, _ := row[vi].Number()
		switch row[gi].String() {
		case "東京":
			if v != 100 {
				t.Fatalf("東京 copy: got %v", v)
			}
		case "大阪":
			if v != 50 {
				t.Fatalf("大阪 copy: got %v", v)
			}
		case "名古屋":
			if !math.IsNaN(v) {
				t.Fatalf("combo without the source subject must get NaN, got %v", v)
			}
		}
	}
}

func TestValidateTransform_Rejections(t *testing.T) {
	src := mixedTable(t)
	cases := []struct {
		name string
		op   TransformOperation
	}{
		{"mapping on axis level", TransformOperation{
			Type: TransformAddAxis, TargetName: "x",
			Calculation: Calculation{Kind: CalcMapping, Mapping: []MappingEntry{{Subject: "売上", Value: 1}}},
		}},
		{"add_axis duplicate column", TransformOperation{
			Type: TransformAddAxis, TargetName: "地域",
			Calculation: Calculation{Kind: CalcConstant, Constant: &ConstantCalc{Number: floatPtr(1)}},
		}},
		{"add_axis collides with reserved column", TransformOperation{
			Type: TransformAddAxis, TargetName: "値",
			Calculation: Calculation{Kind: CalcConstant, Constant: &ConstantCalc{Number: floatPtr(1)}},
		}},
		{"modify_axis unknown column", TransformOperation{
			Type: TransformModifyAxis, TargetName: "店舗",
			Calculation: Calculation{Kind: CalcConstant, Constant: &ConstantCalc{Number: floatPtr(1)}},
		}},
		{"add_subject duplicate subject", TransformOperation{
			Type: TransformAddSubject, TargetName: "売上",
			Calculation: Calculation{Kind: CalcConstant, Constant: &ConstantCalc{Number: floatPtr(1)}},
		}},
		{"modify_subject unknown subject", TransformOperation{
			Type: TransformModifySubject, TargetName: "在庫",
			Calculation: Calculation{Kind: CalcConstant, Constant: &ConstantCalc{Number: floatPtr(1)}},
		}},
		{"subject constant must be numeric", TransformOperation{
			Type: TransformAddSubject, TargetName: "x",
			Calculation: Calculation{Kind: CalcConstant, Constant: &ConstantCalc{Text: strPtr("a")}},
		}},
		{"constant with both payloads", TransformOperation{
			Type: TransformAddAxis, TargetName: "x",
			Calculation: Calculation{Kind: CalcConstant, Constant: &ConstantCalc{Text: strPtr("a"), Number: floatPtr(1)}},
		}},
		{"formula with two operands and constant", TransformOperation{
			Type: TransformAddAxis, TargetName: "x",
			Calculation: Calculation{Kind: CalcFormula, Formula: &FormulaCalc{Op: OpAdd, Operands: []string{"地域", "地域"}, Constant: floatPtr(1)}},
		}},
		{"formula with one operand and no constant", TransformOperation{
			Type: TransformAddAxis, TargetName: "x",
			Calculation: Calculation{Kind: CalcFormula, Formula: &FormulaCalc{Op: OpAdd, Operands: []string{"地域"}}},
		}},
		{"formula operand unknown", TransformOperation{
			Type: TransformAddAxis, TargetName: "x",
			Calculation: Calculation{Kind: CalcFormula, Formula: &FormulaCalc{Op: OpAdd, Operands: []string{"店舗"}, Constant: floatPtr(1)}},
		}},
		{"axis formula cannot read subjects", TransformOperation{
			Type: TransformAddAxis, TargetName: "x",
			Calculation: Calculation{Kind: CalcFormula, Formula: &FormulaCalc{Op: OpAdd, Operands: []string{"売上"}, Constant: floatPtr(1)}},
		}},
		{"copy source unknown", TransformOperation{
			Type: TransformAddSubject, TargetName: "x",
			Calculation: Calculation{Kind: CalcCopy, Copy: &CopyCalc{Source: "在庫"}},
		}},
		{"mapping key unknown", TransformOperation{
			Type: TransformAddSubject, TargetName: "x",
			Calculation: Calculation{Kind: CalcMapping, Mapping: []MappingEntry{{Subject: "在庫", Value: 1}}},
		}},
		{"unknown operation type", TransformOperation{
			Type: "rename_axis", TargetName: "x",
			Calculation: Calculation{Kind: CalcConstant, Constant: &ConstantCalc{Number: floatPtr(1)}},
		}},
	}
	for _, c := range cases {
		err := ValidateTransform(&TransformConfig{Operations: []TransformOperation{c.op}}, src)
		if err == nil {
			t.Fatalf("%s: expected validation error", c.name)
		}
		if !IsValidation(err) {
			t.Fatalf("%s: expected ValidationError, got %T %v", c.name, err, err)
		}
	}
}

func TestValidateTransform_CumulativeSchemaVisibility(t *testing.T) {
	src := salesTable(t)
	cfg := &TransformConfig{Operations: []TransformOperation{
		{
			Type:        TransformAddAxis,
			TargetName:  "係数",
			Calculation: Calculation{Kind: CalcConstant, Constant: &ConstantCalc{Number: floatPtr(2)}},
		},
		{
			Type:       TransformAddAxis,
			TargetName: "倍",
			Calculation: Calculation{Kind: CalcFormula,
				Formula: &FormulaCalc{Op: OpMul, Operands: []string{"係数"}, Constant: floatPtr(3)}},
		},
	}}
	if err := ValidateTransform(cfg, src); err != nil {
		t.Fatalf("later operations must see earlier additions: %v", err)
	}

	reversed := &TransformConfig{Operations: []TransformOperation{cfg.Operations[1], cfg.Operations[0]}}
	if err := ValidateTransform(reversed, src); err == nil {
		t.Fatalf("operand declared later must be rejected")
	}
}
