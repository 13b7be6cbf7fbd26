package money

import "github.com/shopspring/decimal"

// Defaults used by VerifyTipCalculation.
var (
	DefaultTolerance            = decimal.New(1, -2)
	DefaultDoubleCheckThreshold = decimal.NewFromInt(50)
)

// Verification is the outcome of checking amount + tip against total.
type Verification struct {
	Expected   string `json:"expected"`
	Actual     string `json:"actual"`
	Difference string `json:"difference"`
	IsCorrect  bool   `json:"isCorrect"`

	// DoubleChecked is set for totals at or above the double-check threshold.
	DoubleChecked bool `json:"doubleChecked"`
	// Verified is IsCorrect confirmed by the second pass when one ran.
	Verified bool `json:"verified"`
}

// Verifier checks receipt arithmetic.
type Verifier struct {
	Tolerance            decimal.Decimal
	DoubleCheckThreshold decimal.Decimal
}

// NewVerifier returns a Verifier with the default tolerance and threshold.
func NewVerifier() Verifier {
	return Verifier{
		Tolerance:            DefaultTolerance,
		DoubleCheckThreshold: DefaultDoubleCheckThreshold,
	}
}

// VerifyTipCalculation checks amount+tip against total with the defaults.
func VerifyTipCalculation(amount, tip, total string) Verification {
	return NewVerifier().Verify(amount, tip, total)
}

// Verify compares amount+tip with total. Malformed inputs never error; they
// produce "NaN" fields and IsCorrect=false.
func (v Verifier) Verify(amount, tip, total string) Verification {
	a, t, tot := ParseAmount(amount), ParseAmount(tip), ParseAmount(total)

	res := v.check(a, t, tot)
	res.Verified = res.IsCorrect

	if tot.IsValid() && tot.Decimal().GreaterThanOrEqual(v.DoubleCheckThreshold) {
		second := v.check(a, t, tot)
		res.DoubleChecked = true
		res.Verified = res.IsCorrect && second.IsCorrect == res.IsCorrect && second.Difference == res.Difference
	}
	return res
}

func (v Verifier) check(amount, tip, total Amount) Verification {
	expected := amount.Add(tip)
	// Signed: negative when the receipt total is short of amount+tip.
	diff := total.Sub(expected)

	return Verification{
		Expected:   expected.Fixed(),
		Actual:     total.Fixed(),
		Difference: diff.Fixed(),
		IsCorrect:  diff.IsValid() && diff.Abs().Decimal().LessThanOrEqual(v.Tolerance),
	}
}
