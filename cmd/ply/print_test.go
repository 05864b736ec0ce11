package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/razeghi71/ply/value"
)

func TestPrintTable(t *testing.T) {
	ds := value.FromData([]value.Datum{
		value.NewDatum(
			value.Attribute{Name: "city", Value: value.String("NY")},
			value.Attribute{Name: "revenue", Value: value.Number(8336817)},
		),
		value.NewDatum(
			value.Attribute{Name: "city", Value: value.String("Los Angeles")},
			value.Attribute{Name: "revenue", Value: value.Number(2.5)},
		),
	})

	var buf bytes.Buffer
	if err := printTable(&buf, ds); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "" +
		"city        | revenue\n" +
		"------------+--------\n" +
		"NY          | 8336817\n" +
		"Los Angeles | 2.5\n"
	if buf.String() != want {
		t.Errorf("got:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestFormatCell(t *testing.T) {
	nested := value.FromData([]value.Datum{value.NewDatum(), value.NewDatum()})
	tests := []struct {
		v    value.Value
		want string
	}{
		{value.Null(), "null"},
		{value.Number(1e6), "1000000"},
		{value.Time(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)), "2024-03-01T09:00:00Z"},
		{value.NewSet(value.Number(1), value.String("a")), "[1, a]"},
		{value.DatasetVal(nested), "<2 rows>"},
	}
	for _, tt := range tests {
		if got := formatCell(tt.v); got != tt.want {
			t.Errorf("formatCell(%s) = %q, want %q", tt.v, got, tt.want)
		}
	}
}

func TestPrintValueJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := printValue(&buf, value.Number(3), "json"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.Len() == 0 || buf.Bytes()[buf.Len()-1] != '\n' {
		t.Errorf("expected newline terminated JSON, got %q", buf.String())
	}

	buf.Reset()
	if err := printValue(&buf, value.String("x"), "table"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.String() != "x\n" {
		t.Errorf("got %q", buf.String())
	}
}
