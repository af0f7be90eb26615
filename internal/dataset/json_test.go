package dataset

import (
	"math"
	"testing"
	"time"
)

func TestEncodeDecode_RoundTripsAllCellKinds(t *testing.T) {
	tbl, err := New([]Column{
		{Name: "日付", Type: TypeDate},
		{Name: "科目", Type: TypeText},
		{Name: "値", Type: TypeNumber},
	}, "科目", "値")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	tbl.AppendRow(Date(day), Text("売上"), Number(123.45))
	tbl.AppendRow(Null(), Text("費用"), Null())
	tbl.AppendRow(Date(day), Text("率"), Number(math.NaN()))

	data, err := Encode(tbl)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.SubjectColumn != "科目" || got.ValueColumn != "値" {
		t.Fatalf("reserved columns lost: %q / %q", got.SubjectColumn, got.ValueColumn)
	}
	if got.RowCount() != 3 {
		t.Fatalf("row count: %d", got.RowCount())
	}
	if d, ok := got.Rows[0][0].Date(); !ok || !d.Equal(day) {
		t.Fatalf("date cell lost: %v ok=%v", d, ok)
	}
	if v, ok := got.Rows[0][2].Number(); !ok || v != 123.45 {
		t.Fatalf("number cell lost: %v ok=%v", v, ok)
	}
	if !got.Rows[1][0].IsNull() || !got.Rows[1][2].IsNull() {
		t.Fatalf("null cells lost")
	}
	nan, ok := got.Rows[2][2].Number()
	if !ok || !math.IsNaN(nan) {
		t.Fatalf("NaN did not round-trip: %v ok=%v", nan, ok)
	}
}

func TestDecode_RejectsMalformedDocuments(t *testing.T) {
	if _, err := Decode([]byte(`{`)); err == nil {
		t.Fatalf("truncated json should fail")
	}
	// value column missing from the column set
	bad := `{"columns":[{"name":"a","type":"text"}],"subject_column":"a","value_column":"v","rows":[]}`
	if _, err := Decode([]byte(bad)); err == nil {
		t.Fatalf("missing value column should fail")
	}
	// ragged row
	ragged := `{"columns":[{"name":"科目","type":"text"},{"name":"値","type":"number"}],"subject_column":"科目","value_column":"値","rows":[["売上"]]}`
	if _, err := Decode([]byte(ragged)); err == nil {
		t.Fatalf("ragged row should fail")
	}
}

func TestEncode_NumberFormattingStaysCanonical(t *testing.T) {
	tbl, err := New([]Column{
		{Name: "科目", Type: TypeText},
		{Name: "値", Type: TypeNumber},
	}, "科目", "値")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	tbl.AppendRow(Text("売上"), Number(100))
	data, err := Encode(tbl)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	s := string(data)
	if want := `["売上",100]`; !containsStr(s, want) {
		t.Fatalf("expected %s in %s", want, s)
	}
}

func containsStr(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
