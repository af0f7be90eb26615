package dataset

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// ImportOptions names the reserved columns of an incoming CSV. When
// left empty the last column is taken as Value and the one before it
// as Subject, matching the long-format files this system ingests.
type ImportOptions struct {
	SubjectColumn string
	ValueColumn   string
}

// FromCSV parses a header-first CSV into a typed table. A UTF-8 BOM is
// tolerated. Column types are inferred over the non-empty values: a
// column where every value parses as a number becomes a number column,
// then dates are tried, otherwise text. Empty fields become null cells.
func FromCSV(r io.Reader, opts ImportOptions) (*Table, error) {
	cr := csv.NewReader(stripBOM(r))
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("csv import: empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("csv import: read header: %w", err)
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("csv import: need at least subject and value columns, got %d", len(header))
	}
	names := make([]string, len(header))
	seen := make(map[string]struct{}, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			return nil, fmt.Errorf("csv import: column %d has an empty header", i+1)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("csv import: duplicate column %q", name)
		}
		seen[name] = struct{}{}
		names[i] = name
	}

	subjectCol := opts.SubjectColumn
	valueCol := opts.ValueColumn
	if valueCol == "" {
		valueCol = names[len(names)-1]
	}
	if subjectCol == "" {
		subjectCol = names[len(names)-2]
	}
	if subjectCol == valueCol {
		return nil, fmt.Errorf("csv import: subject and value columns must differ")
	}
	if !contains(names, subjectCol) {
		return nil, fmt.Errorf("csv import: subject column %q not in header", subjectCol)
	}
	if !contains(names, valueCol) {
		return nil, fmt.Errorf("csv import: value column %q not in header", valueCol)
	}

	records := make([][]string, 0)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv import: read row %d: %w", len(records)+2, err)
		}
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}
		records = append(records, rec)
	}

	columns := make([]Column, len(names))
	for i, name := range names {
		columns[i] = Column{Name: name, Type: inferColumnType(records, i)}
	}

	t := &Table{
		Columns:       columns,
		SubjectColumn: subjectCol,
		ValueColumn:   valueCol,
		Rows:          make([][]Cell, 0, len(records)),
	}
	for ri, rec := range records {
		cells := make([]Cell, len(columns))
		for ci, raw := range rec {
			cell, err := parseCell(raw, columns[ci].Type)
			if err != nil {
				return nil, fmt.Errorf("csv import: row %d column %q: %w", ri+2, columns[ci].Name, err)
			}
			cells[ci] = cell
		}
		t.Rows = append(t.Rows, cells)
	}
	return t, nil
}

func inferColumnType(records [][]string, col int) ColumnType {
	sawValue := false
	allNumber := true
	allDate := true
	for _, rec := range records {
		v := rec[col]
		if v == "" {
			continue
		}
		sawValue = true
		if allNumber {
			if f, err := strconv.ParseFloat(v, 64); err != nil || math.IsNaN(f) {
				allNumber = false
			}
		}
		if allDate {
			if _, ok := ParseDate(v); !ok {
				allDate = false
			}
		}
		if !allNumber && !allDate {
			return TypeText
		}
	}
	if !sawValue {
		return TypeText
	}
	if allNumber {
		return TypeNumber
	}
	return TypeDate
}

func parseCell(raw string, ct ColumnType) (Cell, error) {
	if raw == "" {
		return Null(), nil
	}
	switch ct {
	case TypeNumber:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Cell{}, fmt.Errorf("bad number %q", raw)
		}
		return Number(f), nil
	case TypeDate:
		d, ok := ParseDate(raw)
		if !ok {
			return Cell{}, fmt.Errorf("bad date %q", raw)
		}
		return Date(d), nil
	default:
		return Text(raw), nil
	}
}

func stripBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	head, err := br.Peek(3)
	if err == nil && head[0] == 0xEF && head[1] == 0xBB && head[2] == 0xBF {
		br.Discard(3)
	}
	return br
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
