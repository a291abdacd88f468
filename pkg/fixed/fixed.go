// Package fixed implements the 18-decimal fixed-point amount arithmetic used by
// every contract in the settlement engine.
//
// Amounts are *uint256.Int values scaled by One (1e18). All helpers are checked:
// they return types.ErrOverflow or types.ErrUnderflow instead of wrapping, and
// they never mutate their arguments. Callers pick the rounding direction
// explicitly (Down/Up) so that every rounding decision favours the pool.
package fixed

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/cockroachdb/apd/v3"
	"github.com/holiman/uint256"
	"github.com/mselser95/settlement-engine/pkg/types"
)

// Decimals is the number of decimal places carried by every amount.
const Decimals = 18

// BpsDenominator is the number of basis points in 100%.
const BpsDenominator = 10_000

// Precision is the number of significant digits used for decimal math.
const Precision = 60

//nolint:gochecknoglobals // immutable constants
var (
	one = uint256.NewInt(1_000_000_000_000_000_000)
	bps = uint256.NewInt(BpsDenominator)

	// Context is the decimal context shared by curve and conversion math.
	Context = apd.BaseContext.WithPrecision(Precision)
)

// One returns 1.0 in fixed-point.
func One() *uint256.Int {
	return new(uint256.Int).Set(one)
}

// Zero returns a fresh zero amount.
func Zero() *uint256.Int {
	return new(uint256.Int)
}

// Units returns n whole units scaled to 18 decimals.
func Units(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), one)
}

// OrZero returns x, or a fresh zero when x is nil.
func OrZero(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return x
}

// Add returns x+y.
func Add(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(OrZero(x), OrZero(y))
	if overflow {
		return nil, types.ErrOverflow
	}
	return z, nil
}

// Sub returns x-y.
func Sub(x, y *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(OrZero(x), OrZero(y))
	if underflow {
		return nil, types.ErrUnderflow
	}
	return z, nil
}

// MulDivDown returns floor(x*y/d).
func MulDivDown(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, types.ErrDivisionByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(OrZero(x), OrZero(y), d)
	if overflow {
		return nil, types.ErrOverflow
	}
	return z, nil
}

// MulDivUp returns ceil(x*y/d).
func MulDivUp(x, y, d *uint256.Int) (*uint256.Int, error) {
	z, err := MulDivDown(x, y, d)
	if err != nil {
		return nil, err
	}

	rem := new(big.Int).Mul(OrZero(x).ToBig(), OrZero(y).ToBig())
	rem.Mod(rem, d.ToBig())
	if rem.Sign() != 0 {
		return Add(z, uint256.NewInt(1))
	}
	return z, nil
}

// BpsDown returns floor(x*b/10000).
func BpsDown(x *uint256.Int, b uint64) (*uint256.Int, error) {
	return MulDivDown(x, uint256.NewInt(b), bps)
}

// BpsUp returns ceil(x*b/10000).
func BpsUp(x *uint256.Int, b uint64) (*uint256.Int, error) {
	return MulDivUp(x, uint256.NewInt(b), bps)
}

// Min returns the smaller of x and y.
func Min(x, y *uint256.Int) *uint256.Int {
	if x.Lt(y) {
		return x
	}
	return y
}

// Max returns the larger of x and y.
func Max(x, y *uint256.Int) *uint256.Int {
	if x.Gt(y) {
		return x
	}
	return y
}

// ToDecimal converts a raw integer amount (wei-like units) to a decimal.
func ToDecimal(x *uint256.Int) *apd.Decimal {
	d, _, err := apd.NewFromString(OrZero(x).Dec())
	if err != nil {
		// Dec() always yields a valid base-10 integer.
		panic(fmt.Sprintf("fixed: decimal conversion: %v", err))
	}
	return d
}

// FloorFromDecimal rounds d down to an integer amount.
func FloorFromDecimal(d *apd.Decimal) (*uint256.Int, error) {
	return integral(d, false)
}

// CeilFromDecimal rounds d up to an integer amount.
func CeilFromDecimal(d *apd.Decimal) (*uint256.Int, error) {
	return integral(d, true)
}

func integral(d *apd.Decimal, up bool) (*uint256.Int, error) {
	r := new(apd.Decimal)
	var err error
	if up {
		_, err = Context.Ceil(r, d)
	} else {
		_, err = Context.Floor(r, d)
	}
	if err != nil {
		return nil, fmt.Errorf("round decimal: %w", err)
	}
	if r.Sign() < 0 {
		return nil, types.ErrUnderflow
	}
	if r.IsZero() {
		return new(uint256.Int), nil
	}

	z, err := uint256.FromDecimal(r.Text('f'))
	if err != nil {
		return nil, types.ErrOverflow
	}
	return z, nil
}

// Format renders x as a decimal string with 18 places, trimming trailing zeros.
func Format(x *uint256.Int) string {
	s := OrZero(x).Dec()
	if len(s) <= Decimals {
		s = strings.Repeat("0", Decimals-len(s)+1) + s
	}
	whole, frac := s[:len(s)-Decimals], strings.TrimRight(s[len(s)-Decimals:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

// Parse reads a human decimal string ("12.5") into an 18-decimal amount,
// truncating digits beyond the 18th place.
func Parse(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("parse amount: empty string")
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > Decimals {
		frac = frac[:Decimals]
	}
	frac += strings.Repeat("0", Decimals-len(frac))

	digits := strings.TrimLeft(whole+frac, "0")
	if digits == "" {
		return new(uint256.Int), nil
	}
	z, err := uint256.FromDecimal(digits)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return z, nil
}

// Float returns x in whole units as a float64, for metrics and display only.
func Float(x *uint256.Int) float64 {
	f, _ := new(big.Float).SetInt(OrZero(x).ToBig()).Float64()
	return f / 1e18
}
