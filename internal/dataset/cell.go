package dataset

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind discriminates the cell variant.
type Kind uint8

const (
	KindNull Kind = iota
	KindText
	KindNumber
	KindDate
)

// DateLayout is the canonical string form for date cells.
const DateLayout = "2006-01-02"

// Cell is one immutable table value: null, text, number, or date.
// Construct through Null/Text/Number/Date; the zero value is null.
type Cell struct {
	kind Kind
	text string
	num  float64
	date time.Time
}

func Null() Cell { return Cell{kind: KindNull} }

func Text(s string) Cell { return Cell{kind: KindText, text: s} }

func Number(v float64) Cell { return Cell{kind: KindNumber, num: v} }

func Date(t time.Time) Cell {
	y, m, d := t.UTC().Date()
	return Cell{kind: KindDate, date: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func (c Cell) Kind() Kind { return c.kind }

func (c Cell) IsNull() bool { return c.kind == KindNull }

func (c Cell) Text() (string, bool) {
	if c.kind != KindText {
		return "", false
	}
	return c.text, true
}

func (c Cell) Number() (float64, bool) {
	if c.kind != KindNumber {
		return 0, false
	}
	return c.num, true
}

func (c Cell) Date() (time.Time, bool) {
	if c.kind != KindDate {
		return time.Time{}, false
	}
	return c.date, true
}

// NumericValue coerces the cell to a finite float. Number cells
// qualify unless they hold NaN; text cells qualify when they parse
// cleanly as a float. Null and date cells never qualify.
func (c Cell) NumericValue() (float64, bool) {
	switch c.kind {
	case KindNumber:
		if math.IsNaN(c.num) {
			return 0, false
		}
		return c.num, true
	case KindText:
		v, err := strconv.ParseFloat(strings.TrimSpace(c.text), 64)
		if err != nil || math.IsNaN(v) {
			return 0, false
		}
		return v, true
	default:
		return 0, false
	}
}

// String returns the canonical form used for membership tests, group
// keys, and display: "" for null, the text itself, a trailing-zero-free
// decimal for numbers ("NaN" included), and DateLayout for dates.
func (c Cell) String() string {
	switch c.kind {
	case KindText:
		return c.text
	case KindNumber:
		return FormatNumber(c.num)
	case KindDate:
		return c.date.Format(DateLayout)
	default:
		return ""
	}
}

func (c Cell) Equal(o Cell) bool {
	if c.kind != o.kind {
		return false
	}
	switch c.kind {
	case KindText:
		return c.text == o.text
	case KindNumber:
		if math.IsNaN(c.num) && math.IsNaN(o.num) {
			return true
		}
		return c.num == o.num
	case KindDate:
		return c.date.Equal(o.date)
	default:
		return true
	}
}

// FormatNumber renders a float the way cells do: no exponent for the
// common range, no trailing zeros, NaN spelled out.
func FormatNumber(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var dateLayouts = []string{
	DateLayout,
	"2006/01/02",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	time.RFC3339,
}

// ParseDate accepts the date layouts tolerated on import.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
