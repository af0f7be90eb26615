package dataset

import (
	"fmt"
	"strings"
)

// ColumnType is the inferred storage type of a column. Cells inside a
// column may still be null; text columns may hold numeric-looking
// strings that NumericValue coerces on demand.
type ColumnType string

const (
	TypeText   ColumnType = "text"
	TypeNumber ColumnType = "number"
	TypeDate   ColumnType = "date"
)

type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Table is a fully materialized long-format dataset: zero or more axis
// columns plus the two reserved columns named by SubjectColumn and
// ValueColumn. Row order is meaningful and preserved by every
// operation that does not explicitly sort.
type Table struct {
	Columns       []Column
	SubjectColumn string
	ValueColumn   string
	Rows          [][]Cell
}

// New builds an empty table and checks the reserved columns exist.
func New(columns []Column, subjectColumn, valueColumn string) (*Table, error) {
	t := &Table{
		Columns:       columns,
		SubjectColumn: subjectColumn,
		ValueColumn:   valueColumn,
		Rows:          make([][]Cell, 0),
	}
	if _, ok := t.ColumnIndex(subjectColumn); !ok {
		return nil, fmt.Errorf("subject column %q not in column set", subjectColumn)
	}
	if _, ok := t.ColumnIndex(valueColumn); !ok {
		return nil, fmt.Errorf("value column %q not in column set", valueColumn)
	}
	if subjectColumn == valueColumn {
		return nil, fmt.Errorf("subject and value columns must differ")
	}
	return t, nil
}

func (t *Table) RowCount() int { return len(t.Rows) }

func (t *Table) ColumnCount() int { return len(t.Columns) }

func (t *Table) ColumnIndex(name string) (int, bool) {
	for i, c := range t.Columns {
		if c.Name == name {
			return i, true
		}
	}
	return 0, false
}

func (t *Table) SubjectIndex() int {
	i, _ := t.ColumnIndex(t.SubjectColumn)
	return i
}

func (t *Table) ValueIndex() int {
	i, _ := t.ColumnIndex(t.ValueColumn)
	return i
}

// IsAxis reports whether name is a non-reserved column of this table.
func (t *Table) IsAxis(name string) bool {
	if name == t.SubjectColumn || name == t.ValueColumn {
		return false
	}
	_, ok := t.ColumnIndex(name)
	return ok
}

// AxisColumns returns the non-reserved columns in table order.
func (t *Table) AxisColumns() []Column {
	out := make([]Column, 0, len(t.Columns))
	for _, c := range t.Columns {
		if c.Name == t.SubjectColumn || c.Name == t.ValueColumn {
			continue
		}
		out = append(out, c)
	}
	return out
}

// AppendRow adds one row; the cell count must match the column count.
func (t *Table) AppendRow(cells ...Cell) error {
	if len(cells) != len(t.Columns) {
		return fmt.Errorf("row has %d cells, table has %d columns", len(cells), len(t.Columns))
	}
	t.Rows = append(t.Rows, cells)
	return nil
}

// DistinctValues returns the canonical string of every distinct value
// in the named column, in first-appearance order. Null cells are
// skipped.
func (t *Table) DistinctValues(name string) ([]string, error) {
	idx, ok := t.ColumnIndex(name)
	if !ok {
		return nil, fmt.Errorf("column %q not in column set", name)
	}
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, row := range t.Rows {
		c := row[idx]
		if c.IsNull() {
			continue
		}
		s := c.String()
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out, nil
}

// DistinctSubjects is DistinctValues over the subject column.
func (t *Table) DistinctSubjects() []string {
	out, _ := t.DistinctValues(t.SubjectColumn)
	return out
}

// AxisKey joins the canonical axis-cell strings of a row into a
// grouping key. With no axis columns every row shares the empty key.
func (t *Table) AxisKey(row []Cell) string {
	return t.GroupKey(row, t.axisIndexes())
}

// GroupKey joins the canonical strings of the given column indexes.
// The unit separator keeps composite keys unambiguous.
func (t *Table) GroupKey(row []Cell, idxs []int) string {
	if len(idxs) == 0 {
		return ""
	}
	parts := make([]string, len(idxs))
	for i, idx := range idxs {
		parts[i] = row[idx].String()
	}
	return strings.Join(parts, "\x1f")
}

func (t *Table) axisIndexes() []int {
	idxs := make([]int, 0, len(t.Columns))
	for i, c := range t.Columns {
		if c.Name == t.SubjectColumn || c.Name == t.ValueColumn {
			continue
		}
		idxs = append(idxs, i)
	}
	return idxs
}

// AxisCombination is one distinct tuple of axis values with the rows
// (by index) that carry it, in first-appearance order.
type AxisCombination struct {
	Key     string
	Cells   []Cell
	RowIdxs []int
}

// AxisCombinations enumerates the distinct axis tuples of the table in
// first-appearance order. Cells holds one cell per axis column, in
// axis-column order.
func (t *Table) AxisCombinations() []AxisCombination {
	idxs := t.axisIndexes()
	byKey := make(map[string]int)
	combos := make([]AxisCombination, 0)
	for ri, row := range t.Rows {
		key := t.GroupKey(row, idxs)
		pos, ok := byKey[key]
		if !ok {
			cells := make([]Cell, len(idxs))
			for i, idx := range idxs {
				cells[i] = row[idx]
			}
			pos = len(combos)
			byKey[key] = pos
			combos = append(combos, AxisCombination{Key: key, Cells: cells})
		}
		combos[pos].RowIdxs = append(combos[pos].RowIdxs, ri)
	}
	return combos
}

// Clone deep-copies the table so appliers can build new results
// without touching their input.
func (t *Table) Clone() *Table {
	cols := make([]Column, len(t.Columns))
	copy(cols, t.Columns)
	rows := make([][]Cell, len(t.Rows))
	for i, row := range t.Rows {
		r := make([]Cell, len(row))
		copy(r, row)
		rows[i] = r
	}
	return &Table{
		Columns:       cols,
		SubjectColumn: t.SubjectColumn,
		ValueColumn:   t.ValueColumn,
		Rows:          rows,
	}
}

// CloneEmpty copies the schema only.
func (t *Table) CloneEmpty() *Table {
	c := t.Clone()
	c.Rows = make([][]Cell, 0)
	return c
}

// Validate checks structural integrity: reserved columns present and
// distinct, unique column names, uniform row width.
func (t *Table) Validate() error {
	if _, ok := t.ColumnIndex(t.SubjectColumn); !ok {
		return fmt.Errorf("subject column %q not in column set", t.SubjectColumn)
	}
	if _, ok := t.ColumnIndex(t.ValueColumn); !ok {
		return fmt.Errorf("value column %q not in column set", t.ValueColumn)
	}
	if t.SubjectColumn == t.ValueColumn {
		return fmt.Errorf("subject and value columns must differ")
	}
	seen := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		if c.Name == "" {
			return fmt.Errorf("empty column name")
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("duplicate column %q", c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return fmt.Errorf("row %d has %d cells, table has %d columns", i, len(row), len(t.Columns))
		}
	}
	return nil
}
