package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// wireTable is the stored form of a Table. Rows hold one JSON value
// per column: null, number, or string. JSON cannot carry NaN, so NaN
// number cells travel as the string "NaN" and are revived on decode
// using the column type.
type wireTable struct {
	Columns       []Column        `json:"columns"`
	SubjectColumn string          `json:"subject_column"`
	ValueColumn   string          `json:"value_column"`
	Rows          [][]interface{} `json:"rows"`
}

// Encode serializes the table to its canonical JSON document.
func Encode(t *Table) ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("encode dataset: %w", err)
	}
	w := wireTable{
		Columns:       t.Columns,
		SubjectColumn: t.SubjectColumn,
		ValueColumn:   t.ValueColumn,
		Rows:          make([][]interface{}, len(t.Rows)),
	}
	for ri, row := range t.Rows {
		out := make([]interface{}, len(row))
		for ci, c := range row {
			switch c.Kind() {
			case KindNull:
				out[ci] = nil
			case KindText:
				s, _ := c.Text()
				out[ci] = s
			case KindNumber:
				v, _ := c.Number()
				if math.IsNaN(v) {
					out[ci] = "NaN"
				} else {
					out[ci] = json.Number(FormatNumber(v))
				}
			case KindDate:
				out[ci] = c.String()
			}
		}
		w.Rows[ri] = out
	}
	return json.Marshal(w)
}

// Decode parses a canonical dataset document back into a Table.
func Decode(data []byte) (*Table, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var w wireTable
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	t := &Table{
		Columns:       w.Columns,
		SubjectColumn: w.SubjectColumn,
		ValueColumn:   w.ValueColumn,
		Rows:          make([][]Cell, len(w.Rows)),
	}
	for ri, row := range w.Rows {
		if len(row) != len(w.Columns) {
			return nil, fmt.Errorf("decode dataset: row %d has %d cells, expected %d", ri, len(row), len(w.Columns))
		}
		cells := make([]Cell, len(row))
		for ci, raw := range row {
			cell, err := decodeCell(raw, w.Columns[ci].Type)
			if err != nil {
				return nil, fmt.Errorf("decode dataset: row %d column %q: %w", ri, w.Columns[ci].Name, err)
			}
			cells[ci] = cell
		}
		t.Rows[ri] = cells
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return t, nil
}

func decodeCell(raw interface{}, ct ColumnType) (Cell, error) {
	switch v := raw.(type) {
	case nil:
		return Null(), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return Cell{}, fmt.Errorf("bad number %q", v.String())
		}
		return Number(f), nil
	case string:
		switch ct {
		case TypeNumber:
			if v == "NaN" {
				return Number(math.NaN()), nil
			}
			return Text(v), nil
		case TypeDate:
			if d, ok := ParseDate(v); ok {
				return Date(d), nil
			}
			return Text(v), nil
		default:
			return Text(v), nil
		}
	case bool:
		if v {
			return Text("true"), nil
		}
		return Text("false"), nil
	default:
		return Cell{}, fmt.Errorf("unsupported cell value %T", raw)
	}
}
