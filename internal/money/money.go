package money

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

// apdCtx is the shared arithmetic context. 34 digits matches IEEE
// decimal128 and is far beyond anything a utility bill needs. Rounding
// is half-even so repeated cent rounding carries no upward bias.
var apdCtx = func() *apd.Context {
	ctx := apd.BaseContext.WithPrecision(34)
	ctx.Rounding = apd.RoundHalfEven
	return ctx
}()

// Amount is an exact decimal quantity used for bill arithmetic, so that
// consumption × tariff and the tax multiplication never pick up binary
// float drift before rounding.
type Amount struct {
	value apd.Decimal
}

// Parse parses a decimal string into an Amount.
func Parse(s string) (Amount, error) {
	var d apd.Decimal
	if _, _, err := d.SetString(s); err != nil {
		return Amount{}, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return Amount{value: d}, nil
}

// FromFloat converts a float64 into an Amount.
func FromFloat(f float64) Amount {
	var d apd.Decimal
	// SetFloat64 only errors on NaN/Inf, which never reach bill math.
	if _, err := d.SetFloat64(f); err != nil {
		d.SetInt64(0)
	}
	return Amount{value: d}
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	var result apd.Decimal
	apdCtx.Add(&result, &a.value, &b.value)
	return Amount{value: result}
}

// Sub returns a - b.
func (a Amount) Sub(b Amount) Amount {
	var result apd.Decimal
	apdCtx.Sub(&result, &a.value, &b.value)
	return Amount{value: result}
}

// Mul returns a × b.
func (a Amount) Mul(b Amount) Amount {
	var result apd.Decimal
	apdCtx.Mul(&result, &a.value, &b.value)
	return Amount{value: result}
}

// Round2 rounds to two decimal places, half-even.
func (a Amount) Round2() Amount {
	var result apd.Decimal
	apdCtx.Quantize(&result, &a.value, -2)
	return Amount{value: result}
}

// IsNegative reports whether the amount is below zero.
func (a Amount) IsNegative() bool {
	return a.value.Negative && !a.value.IsZero()
}

// Float64 returns the closest float64 to the amount.
func (a Amount) Float64() float64 {
	f, err := a.value.Float64()
	if err != nil {
		return 0
	}
	return f
}

func (a Amount) String() string {
	return a.value.String()
}
