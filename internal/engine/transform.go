package engine

import (
	"fmt"

	"github.com/mizukilab/kaiseki-backend/internal/dataset"
)

// TransformConfig is an ordered list of schema-editing operations.
// Each operation consumes the cumulative result of all prior
// operations in the same step, so a column or subject added earlier in
// the list is a legal target or operand later in the list.
type TransformConfig struct {
	Operations []TransformOperation `json:"operations"`
}

type TransformOpType string

const (
	TransformAddAxis       TransformOpType = "add_axis"
	TransformModifyAxis    TransformOpType = "modify_axis"
	TransformAddSubject    TransformOpType = "add_subject"
	TransformModifySubject TransformOpType = "modify_subject"
)

func (t TransformOpType) axisLevel() bool {
	return t == TransformAddAxis || t == TransformModifyAxis
}

func (t TransformOpType) valid() bool {
	switch t {
	case TransformAddAxis, TransformModifyAxis, TransformAddSubject, TransformModifySubject:
		return true
	}
	return false
}

// TransformOperation targets one axis column or one subject. Axis
// operations compute a value per row; subject operations compute one
// scalar per distinct axis combination.
type TransformOperation struct {
	Type        TransformOpType `json:"operation_type"`
	TargetName  string          `json:"target_name"`
	Calculation Calculation     `json:"calculation"`
}

type CalcKind string

const (
	CalcConstant CalcKind = "constant"
	CalcCopy     CalcKind = "copy"
	CalcFormula  CalcKind = "formula"
	CalcMapping  CalcKind = "mapping"
)

// Calculation is the tagged union of value rules. Mapping is only
// legal for subject-level operations.
type Calculation struct {
	Kind     CalcKind       `json:"kind"`
	Constant *ConstantCalc  `json:"constant,omitempty"`
	Copy     *CopyCalc      `json:"copy,omitempty"`
	Formula  *FormulaCalc   `json:"formula,omitempty"`
	Mapping  []MappingEntry `json:"mapping,omitempty"`
}

// ConstantCalc holds exactly one literal. Subject-level operations
// write into the Value column and therefore require the number form.
type ConstantCalc struct {
	Text   *string  `json:"text,omitempty"`
	Number *float64 `json:"number,omitempty"`
}

type CopyCalc struct {
	Source string `json:"source"`
}

// FormulaCalc is either two operands, or one operand plus a constant.
type FormulaCalc struct {
	Op       string   `json:"op"`
	Operands []string `json:"operands"`
	Constant *float64 `json:"constant,omitempty"`
}

// MappingEntry pairs an existing subject with the value to emit for
// axis combinations where that subject is present. Entries are
// ordered; the first match per combination wins.
type MappingEntry struct {
	Subject string  `json:"subject"`
	Value   float64 `json:"value"`
}

// schemaSim tracks the cumulative column and subject sets while
// validating an operation list without touching any data.
type schemaSim struct {
	columns  map[string]struct{}
	axis     map[string]struct{}
	subjects map[string]struct{}
}

func newSchemaSim(src *dataset.Table) *schemaSim {
	sim := &schemaSim{
		columns:  make(map[string]struct{}, len(src.Columns)),
		axis:     make(map[string]struct{}, len(src.Columns)),
		subjects: make(map[string]struct{}),
	}
	for _, c := range src.Columns {
		sim.columns[c.Name] = struct{}{}
		if c.Name != src.SubjectColumn && c.Name != src.ValueColumn {
			sim.axis[c.Name] = struct{}{}
		}
	}
	for _, s := range src.DistinctSubjects() {
		sim.subjects[s] = struct{}{}
	}
	return sim
}

// ValidateTransform walks the operation list against a simulated
// schema so later operations see what earlier ones will have created.
func ValidateTransform(cfg *TransformConfig, src *dataset.Table) error {
	if cfg == nil {
		return validationf("transform", "missing config")
	}
	sim := newSchemaSim(src)
	for i, op := range cfg.Operations {
		if err := validateTransformOp(op, sim); err != nil {
			return validationf("operations", "operation %d (%s): %v", i, op.Type, err)
		}
		switch op.Type {
		case TransformAddAxis:
			sim.columns[op.TargetName] = struct{}{}
			sim.axis[op.TargetName] = struct{}{}
		case TransformAddSubject:
			sim.subjects[op.TargetName] = struct{}{}
		}
	}
	return nil
}

func validateTransformOp(op TransformOperation, sim *schemaSim) error {
	if !op.Type.valid() {
		return fmt.Errorf("unknown operation type %q", op.Type)
	}
	if op.TargetName == "" {
		return fmt.Errorf("target_name must not be empty")
	}
	switch op.Type {
	case TransformAddAxis:
		if _, exists := sim.columns[op.TargetName]; exists {
			return fmt.Errorf("column %q already exists", op.TargetName)
		}
	case TransformModifyAxis:
		if _, ok := sim.axis[op.TargetName]; !ok {
			return fmt.Errorf("axis column %q does not exist", op.TargetName)
		}
	case TransformAddSubject:
		if _, exists := sim.subjects[op.TargetName]; exists {
			return fmt.Errorf("subject %q already exists", op.TargetName)
		}
	case TransformModifySubject:
		if _, ok := sim.subjects[op.TargetName]; !ok {
			return fmt.Errorf("subject %q does not exist", op.TargetName)
		}
	}
	return validateCalculation(op.Calculation, op.Type.axisLevel(), sim)
}

func validateCalculation(calc Calculation, axisLevel bool, sim *schemaSim) error {
	operandKnown := func(name string) bool {
		if axisLevel {
			_, ok := sim.axis[name]
			return ok
		}
		_, ok := sim.subjects[name]
		return ok
	}
	level := "subject"
	if axisLevel {
		level = "axis column"
	}

	switch calc.Kind {
	case CalcConstant:
		c := calc.Constant
		if c == nil {
			return fmt.Errorf("constant calculation requires a constant payload")
		}
		if (c.Text == nil) == (c.Number == nil) {
			return fmt.Errorf("constant requires exactly one of text or number")
		}
		if !axisLevel && c.Number == nil {
			return fmt.Errorf("subject-level constant must be a number")
		}
	case CalcCopy:
		if calc.Copy == nil || calc.Copy.Source == "" {
			return fmt.Errorf("copy calculation requires a source")
		}
		if !operandKnown(calc.Copy.Source) {
			return fmt.Errorf("copy source %q is not an existing %s", calc.Copy.Source, level)
		}
	case CalcFormula:
		f := calc.Formula
		if f == nil {
			return fmt.Errorf("formula calculation requires a formula payload")
		}
		if !isArithOp(f.Op) {
			return fmt.Errorf("unknown formula operator %q", f.Op)
		}
		twoOperands := len(f.Operands) == 2 && f.Constant == nil
		oneWithConst := len(f.Operands) == 1 && f.Constant != nil
		if !twoOperands && !oneWithConst {
			return fmt.Errorf("formula requires exactly 2 operands, or 1 operand plus a constant")
		}
		for _, name := range f.Operands {
			if !operandKnown(name) {
				return fmt.Errorf("formula operand %q is not an existing %s", name, level)
			}
		}
	case CalcMapping:
		if axisLevel {
			return fmt.Errorf("mapping is only valid for subject-level operations")
		}
		if len(calc.Mapping) == 0 {
			return fmt.Errorf("mapping must not be empty")
		}
		seen := make(map[string]struct{}, len(calc.Mapping))
		for _, m := range calc.Mapping {
			if _, dup := seen[m.Subject]; dup {
				return fmt.Errorf("mapping lists subject %q twice", m.Subject)
			}
			seen[m.Subject] = struct{}{}
			if !operandKnown(m.Subject) {
				return fmt.Errorf("mapping subject %q does not exist", m.Subject)
			}
		}
	default:
		return fmt.Errorf("unknown calculation kind %q", calc.Kind)
	}
	return nil
}

// ApplyTransform runs the operations in order over a copy of src.
func ApplyTransform(cfg *TransformConfig, src *dataset.Table) (*dataset.Table, error) {
	if err := ValidateTransform(cfg, src); err != nil {
		return nil, err
	}
	cur := src.Clone()
	for i, op := range cfg.Operations {
		var err error
		if op.Type.axisLevel() {
			err = applyAxisOp(cur, op)
		} else {
			err = applySubjectOp(cur, op)
		}
		if err != nil {
			return nil, fmt.Errorf("operation %d (%s): %w", i, op.Type, err)
		}
	}
	return cur, nil
}

func applyAxisOp(t *dataset.Table, op TransformOperation) error {
	colType, err := axisResultType(t, op.Calculation)
	if err != nil {
		return err
	}
	targetIdx := -1
	if op.Type == TransformAddAxis {
		t.Columns = append(t.Columns, dataset.Column{Name: op.TargetName, Type: colType})
		targetIdx = len(t.Columns) - 1
		for ri := range t.Rows {
			t.Rows[ri] = append(t.Rows[ri], dataset.Null())
		}
	} else {
		idx, ok := t.ColumnIndex(op.TargetName)
		if !ok {
			return fmt.Errorf("axis column %q does not exist", op.TargetName)
		}
		targetIdx = idx
		t.Columns[idx].Type = colType
	}

	for ri := range t.Rows {
		cell, err := axisCellValue(t, t.Rows[ri], op.Calculation)
		if err != nil {
			return err
		}
		t.Rows[ri][targetIdx] = cell
	}
	return nil
}

func axisResultType(t *dataset.Table, calc Calculation) (dataset.ColumnType, error) {
	switch calc.Kind {
	case CalcConstant:
		if calc.Constant != nil && calc.Constant.Text != nil {
			return dataset.TypeText, nil
		}
		return dataset.TypeNumber, nil
	case CalcCopy:
		idx, ok := t.ColumnIndex(calc.Copy.Source)
		if !ok {
			return "", fmt.Errorf("copy source %q does not exist", calc.Copy.Source)
		}
		return t.Columns[idx].Type, nil
	case CalcFormula:
		return dataset.TypeNumber, nil
	default:
		return "", fmt.Errorf("calculation kind %q not valid for axis operations", calc.Kind)
	}
}

func axisCellValue(t *dataset.Table, row []dataset.Cell, calc Calculation) (dataset.Cell, error) {
	switch calc.Kind {
	case CalcConstant:
		if calc.Constant.Text != nil {
			return dataset.Text(*calc.Constant.Text), nil
		}
		return dataset.Number(*calc.Constant.Number), nil
	case CalcCopy:
		idx, ok := t.ColumnIndex(calc.Copy.Source)
		if !ok {
			return dataset.Cell{}, fmt.Errorf("copy source %q does not exist", calc.Copy.Source)
		}
		return row[idx], nil
	case CalcFormula:
		f := calc.Formula
		operands := make([]float64, len(f.Operands))
		for i, name := range f.Operands {
			idx, ok := t.ColumnIndex(name)
			if !ok {
				return dataset.Cell{}, fmt.Errorf("formula operand %q does not exist", name)
			}
			v, ok := row[idx].NumericValue()
			if !ok {
				return dataset.Number(nan()), nil
			}
			operands[i] = v
		}
		if len(operands) == 2 {
			return dataset.Number(applyArith(f.Op, operands[0], operands[1])), nil
		}
		return dataset.Number(applyArith(f.Op, operands[0], *f.Constant)), nil
	default:
		return dataset.Cell{}, fmt.Errorf("calculation kind %q not valid for axis operations", calc.Kind)
	}
}

func applySubjectOp(t *dataset.Table, op TransformOperation) error {
	si := t.SubjectIndex()
	vi := t.ValueIndex()
	combos := t.AxisCombinations()

	// scalar per combination, resolved against the pre-operation rows
	scalars := make([]float64, len(combos))
	for ci, combo := range combos {
		scalars[ci] = subjectScalar(t, combo, op.Calculation, si, vi)
	}

	switch op.Type {
	case TransformAddSubject:
		axisIdxs := make([]int, 0, len(t.Columns))
		for i, c := range t.Columns {
			if c.Name == t.SubjectColumn || c.Name == t.ValueColumn {
				continue
			}
			axisIdxs = append(axisIdxs, i)
		}
		for ci, combo := range combos {
			row := make([]dataset.Cell, len(t.Columns))
			for i, idx := range axisIdxs {
				row[idx] = combo.Cells[i]
			}
			row[si] = dataset.Text(op.TargetName)
			row[vi] = dataset.Number(scalars[ci])
			t.Rows = append(t.Rows, row)
		}
	case TransformModifySubject:
		for ci, combo := range combos {
			for _, ri := range combo.RowIdxs {
				if t.Rows[ri][si].String() == op.TargetName {
					t.Rows[ri][vi] = dataset.Number(scalars[ci])
				}
			}
		}
	default:
		return fmt.Errorf("not a subject-level operation: %q", op.Type)
	}
	return nil
}

// subjectScalar computes one value for an axis combination. A subject
// that is absent from the combination, or whose Value does not coerce,
// contributes NaN.
func subjectScalar(t *dataset.Table, combo dataset.AxisCombination, calc Calculation, si, vi int) float64 {
	lookup := func(subject string) float64 {
		for _, ri := range combo.RowIdxs {
			if t.Rows[ri][si].String() == subject {
				if v, ok := t.Rows[ri][vi].NumericValue(); ok {
					return v
				}
				return nan()
			}
		}
		return nan()
	}

	switch calc.Kind {
	case CalcConstant:
		return *calc.Constant.Number
	case CalcCopy:
		return lookup(calc.Copy.Source)
	case CalcFormula:
		f := calc.Formula
		a := lookup(f.Operands[0])
		if len(f.Operands) == 2 {
			return applyArith(f.Op, a, lookup(f.Operands[1]))
		}
		return applyArith(f.Op, a, *f.Constant)
	case CalcMapping:
		for _, m := range calc.Mapping {
			if comboHasSubject(t, combo, m.Subject, si) {
				return m.Value
			}
		}
		return nan()
	}
	return nan()
}

func comboHasSubject(t *dataset.Table, combo dataset.AxisCombination, subject string, si int) bool {
	for _, ri := range combo.RowIdxs {
		if t.Rows[ri][si].String() == subject {
			return true
		}
	}
	return false
}
