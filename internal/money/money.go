// Package money parses, formats and cross-checks the dollar strings found on
// scanned receipts ("$12.50", "-$3.00", "12.5").
package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// invalidText is what an unparseable amount formats to.
const invalidText = "NaN"

// Amount is a monetary value parsed from receipt text. The zero value is an
// invalid amount; invalid amounts poison any arithmetic they take part in.
type Amount struct {
	d     decimal.Decimal
	valid bool
}

// NewAmount wraps a decimal as a valid amount.
func NewAmount(d decimal.Decimal) Amount {
	return Amount{d: d, valid: true}
}

// FromCents builds an amount from an integer number of cents.
func FromCents(cents int64) Amount {
	return NewAmount(decimal.New(cents, -2))
}

// ParseAmount keeps only digits, '.' and '-' from s and parses the rest.
// Anything that does not survive as a plain decimal number yields an
// invalid amount; it never panics.
func ParseAmount(s string) Amount {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" || cleaned == "-" || cleaned == "." {
		return Amount{}
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return Amount{}
	}
	return NewAmount(d)
}

// IsValid reports whether the amount parsed.
func (a Amount) IsValid() bool { return a.valid }

// Decimal returns the underlying value. It is zero for invalid amounts.
func (a Amount) Decimal() decimal.Decimal { return a.d }

// Float64 returns the value as a float; ok is false for invalid amounts.
func (a Amount) Float64() (f float64, ok bool) {
	if !a.valid {
		return 0, false
	}
	f, _ = a.d.Float64()
	return f, true
}

// Add returns a+b. The result is invalid if either side is.
func (a Amount) Add(b Amount) Amount {
	if !a.valid || !b.valid {
		return Amount{}
	}
	return NewAmount(a.d.Add(b.d))
}

// Sub returns a-b. The result is invalid if either side is.
func (a Amount) Sub(b Amount) Amount {
	if !a.valid || !b.valid {
		return Amount{}
	}
	return NewAmount(a.d.Sub(b.d))
}

// Abs returns |a|.
func (a Amount) Abs() Amount {
	if !a.valid {
		return a
	}
	return NewAmount(a.d.Abs())
}

// Cmp compares two valid amounts. Invalid amounts compare as zero.
func (a Amount) Cmp(b Amount) int {
	return a.d.Cmp(b.d)
}

// Fixed renders the amount with two decimals and no currency symbol.
func (a Amount) Fixed() string {
	if !a.valid {
		return invalidText
	}
	return a.d.StringFixed(2)
}

// String implements fmt.Stringer using FormatAmount.
func (a Amount) String() string {
	return FormatAmount(a)
}

// FormatAmount renders a as "$NN.NN", or "-$NN.NN" for negative values.
func FormatAmount(a Amount) string {
	if !a.valid {
		return invalidText
	}
	rounded := a.d.Round(2)
	if rounded.IsNegative() {
		return "-$" + rounded.Abs().StringFixed(2)
	}
	return "$" + rounded.StringFixed(2)
}

// Format parses s and re-renders it as "$NN.NN". Unparseable input comes
// back unchanged, so Format(Format(s)) == Format(s).
func Format(s string) string {
	a := ParseAmount(s)
	if !a.IsValid() {
		return s
	}
	return FormatAmount(a)
}
