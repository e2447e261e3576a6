package utils

import (
	"reflect"
	"testing"

	"github.com/shopspring/decimal"
)

func TestFormatEUR(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"12.5", "€12.50"},
		{"0", "€0.00"},
		{"-3.456", "-€3.46"},
		{"1234.5", "€1234.50"},
	}
	for _, tt := range tests {
		if got := FormatEUR(decimal.RequireFromString(tt.in)); got != tt.want {
			t.Errorf("FormatEUR(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatPct(t *testing.T) {
	if got := FormatPct(decimal.RequireFromString("0.0909"), 2); got != "9.09%" {
		t.Errorf("FormatPct = %q, want 9.09%%", got)
	}
	if got := FormatPct(decimal.RequireFromString("0.018181"), 3); got != "1.818%" {
		t.Errorf("FormatPct = %q, want 1.818%%", got)
	}
}

func TestSplitCodes(t *testing.T) {
	got := SplitCodes(" asml, INGA,,asml ,phia")
	want := []string{"ASML", "INGA", "PHIA"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SplitCodes() = %v, want %v", got, want)
	}
	if got := SplitCodes(""); got != nil {
		t.Errorf("SplitCodes(\"\") = %v, want nil", got)
	}
}
