package money

import (
	"fmt"
	"testing"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in    string
		want  string
		valid bool
	}{
		{"$12.50", "12.50", true},
		{"12.5", "12.50", true},
		{"-$3.00", "-3.00", true},
		{"$1,234.56", "1234.56", true},
		{"USD 7", "7.00", true},
		{"", "NaN", false},
		{"$", "NaN", false},
		{"abc", "NaN", false},
		{"1.2.3", "NaN", false},
		{"5-", "NaN", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := ParseAmount(tt.in)
			if got.IsValid() != tt.valid {
				t.Fatalf("ParseAmount(%q).IsValid() = %v, want %v", tt.in, got.IsValid(), tt.valid)
			}
			if got.Fixed() != tt.want {
				t.Errorf("ParseAmount(%q).Fixed() = %q, want %q", tt.in, got.Fixed(), tt.want)
			}
		})
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"12", "$12.00"},
		{"$9.999", "$10.00"},
		{"-4.5", "-$4.50"},
		{"0", "$0.00"},
	}
	for _, tt := range tests {
		if got := FormatAmount(ParseAmount(tt.in)); got != tt.want {
			t.Errorf("FormatAmount(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if got := FormatAmount(Amount{}); got != "NaN" {
		t.Errorf("FormatAmount(invalid) = %q, want NaN", got)
	}
}

func TestFormat_Idempotent(t *testing.T) {
	inputs := []string{"12", "$3.456", "-$1", "1,000.1", "n/a", "", "$0.00"}
	for _, in := range inputs {
		once := Format(in)
		twice := Format(once)
		if once != twice {
			t.Errorf("Format not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestInvalidPropagates(t *testing.T) {
	sum := ParseAmount("abc").Add(ParseAmount("1.00"))
	if sum.IsValid() {
		t.Fatal("expected invalid + valid to be invalid")
	}
	if _, ok := sum.Float64(); ok {
		t.Error("expected Float64 to report !ok for invalid amount")
	}
}

func TestVerifyTipCalculation_ExactTotals(t *testing.T) {
	// amount and tip in cents; total computed exactly.
	for amount := int64(0); amount <= 20000; amount += 137 {
		for tip := int64(0); tip <= 5000; tip += 71 {
			a := FromCents(amount)
			tp := FromCents(tip)
			total := a.Add(tp)

			res := VerifyTipCalculation(FormatAmount(a), FormatAmount(tp), FormatAmount(total))
			if !res.IsCorrect {
				t.Fatalf("amount=%s tip=%s total=%s: expected correct, got %+v", a, tp, total, res)
			}
		}
	}
}

func TestVerifyTipCalculation_OffByTwoCents(t *testing.T) {
	for _, off := range []int64{2, -2, 5, 100, -250} {
		a, tp := FromCents(4000), FromCents(600)
		total := a.Add(tp).Add(FromCents(off))

		res := VerifyTipCalculation(FormatAmount(a), FormatAmount(tp), FormatAmount(total))
		if res.IsCorrect {
			t.Errorf("off by %d cents: expected incorrect, got %+v", off, res)
		}
	}
}

func TestVerifyTipCalculation_OneCentTolerance(t *testing.T) {
	res := VerifyTipCalculation("$10.00", "$2.00", "$12.01")
	if !res.IsCorrect {
		t.Fatalf("expected one cent to be within tolerance, got %+v", res)
	}
	if res.Difference != "0.01" {
		t.Errorf("Difference = %q, want 0.01", res.Difference)
	}
}

func TestVerifyTipCalculation_Fields(t *testing.T) {
	res := VerifyTipCalculation("$40.00", "$6.00", "$47.00")
	want := Verification{Expected: "46.00", Actual: "47.00", Difference: "1.00"}
	if res.Expected != want.Expected || res.Actual != want.Actual || res.Difference != want.Difference {
		t.Errorf("got %+v, want fields %+v", res, want)
	}
	if res.IsCorrect || res.Verified || res.DoubleChecked {
		t.Errorf("expected incorrect, unverified, not double-checked: %+v", res)
	}

	short := VerifyTipCalculation("$10.00", "$2.00", "$11.00")
	if short.Difference != "-1.00" || short.IsCorrect {
		t.Errorf("total below expected: got %+v, want Difference -1.00", short)
	}
	if res := VerifyTipCalculation("$10.00", "$2.00", "$11.99"); !res.IsCorrect || res.Difference != "-0.01" {
		t.Errorf("one cent short should pass with Difference -0.01, got %+v", res)
	}
}

func TestVerifyTipCalculation_Malformed(t *testing.T) {
	res := VerifyTipCalculation("ten dollars", "$2.00", "$12.00")
	if res.IsCorrect {
		t.Fatal("expected malformed amount to fail verification")
	}
	if res.Expected != "NaN" || res.Difference != "NaN" {
		t.Errorf("expected NaN fields, got %+v", res)
	}
	if res.Actual != "12.00" {
		t.Errorf("Actual = %q, want 12.00", res.Actual)
	}
}

func TestVerifyTipCalculation_DoubleCheck(t *testing.T) {
	tests := []struct {
		amount, tip, total string
		doubleChecked      bool
		verified           bool
	}{
		{"$50.00", "$5.00", "$55.00", true, true},
		{"$45.00", "$5.00", "$50.00", true, true},
		{"$10.00", "$2.00", "$12.00", false, true},
		{"$50.00", "$5.00", "$60.00", true, false},
		{"$40.00", "$5.00", "$49.99", false, false},
	}

	for _, tt := range tests {
		name := fmt.Sprintf("%s+%s=%s", tt.amount, tt.tip, tt.total)
		t.Run(name, func(t *testing.T) {
			res := VerifyTipCalculation(tt.amount, tt.tip, tt.total)
			if res.DoubleChecked != tt.doubleChecked {
				t.Errorf("DoubleChecked = %v, want %v", res.DoubleChecked, tt.doubleChecked)
			}
			if res.Verified != tt.verified {
				t.Errorf("Verified = %v, want %v", res.Verified, tt.verified)
			}
		})
	}
}
