package quant

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestQuantizeRoundsUp(t *testing.T) {
	if got := Quantize(dec("100.001"), dec("0.01")); got != "100.01" {
		t.Fatalf("expected 100.01, got %s", got)
	}
	if got := Quantize(dec("0.0151"), dec("0.001")); got != "0.016" {
		t.Fatalf("expected 0.016, got %s", got)
	}
}

func TestQuantizeExactValueUnchanged(t *testing.T) {
	if got := Quantize(dec("100.00"), dec("0.01")); got != "100.00" {
		t.Fatalf("expected 100.00, got %s", got)
	}
	if got := Quantize(dec("7"), dec("1")); got != "7" {
		t.Fatalf("expected 7, got %s", got)
	}
}

func TestQuantizeNeverBelowInput(t *testing.T) {
	values := []string{"0.00019", "1.234567", "99.999", "50375.0001"}
	steps := []string{"0.0001", "0.001", "0.01", "0.5", "1"}
	for _, v := range values {
		for _, s := range steps {
			got := decimal.RequireFromString(Quantize(dec(v), dec(s)))
			if got.LessThan(dec(v)) {
				t.Fatalf("quantize(%s, %s) = %s rounded down", v, s, got)
			}
		}
	}
}

func TestQuantizeFloatAbsorbsNoise(t *testing.T) {
	// 100.00 is not exactly representable in binary; the ratio round
	// must keep this from ticking up a step.
	if got := QuantizeFloat(100.00, dec("0.01")); got != "100.00" {
		t.Fatalf("expected 100.00, got %s", got)
	}
}

func TestStepDecimals(t *testing.T) {
	cases := map[string]int32{
		"1":      0,
		"10":     0,
		"0.1":    1,
		"0.01":   2,
		"0.010":  2,
		"0.0001": 4,
	}
	for step, want := range cases {
		if got := StepDecimals(dec(step)); got != want {
			t.Fatalf("StepDecimals(%s) = %d, want %d", step, got, want)
		}
	}
}
