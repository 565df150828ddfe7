// Package amount provides the fixed-point ZLD money type used by wallet ledgers.
package amount

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Base is the number of base units in one ZLD (1/2^24 of a ZLD per base unit).
const Base int64 = 1 << 24

// Max is the largest representable amount. Overflow past this is a hard error.
const Max = Amount(1<<62 - 1)

// ErrOverflow is returned when an operation would exceed Max in magnitude.
var ErrOverflow = errors.New("amount: overflow")

// ErrInvalid is returned when a textual amount cannot be parsed.
var ErrInvalid = errors.New("amount: invalid format")

// Amount is a signed fixed-point quantity of ZLD, in base units of 1/2^24 ZLD.
type Amount int64

// Zero is the additive identity.
const Zero Amount = 0

// Add returns a+b, or ErrOverflow if the result exceeds Max in magnitude.
func (a Amount) Add(b Amount) (Amount, error) {
	r := a + b
	if overflowed(a, b, r) || abs64(int64(r)) > int64(Max) {
		return 0, ErrOverflow
	}
	return r, nil
}

// Sub returns a-b, or ErrOverflow if the result exceeds Max in magnitude.
func (a Amount) Sub(b Amount) (Amount, error) {
	return a.Add(-b)
}

// Neg returns the additive inverse.
func (a Amount) Neg() Amount {
	return -a
}

// Cmp returns -1, 0 or 1 as a is less than, equal to, or greater than b.
func (a Amount) Cmp(b Amount) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// MulInt64 multiplies the amount by a signed integer factor.
func (a Amount) MulInt64(n int64) (Amount, error) {
	if a == 0 || n == 0 {
		return 0, nil
	}
	r := int64(a) * n
	if r/n != int64(a) {
		return 0, ErrOverflow
	}
	if abs64(r) > int64(Max) {
		return 0, ErrOverflow
	}
	return Amount(r), nil
}

// BaseUnits returns the amount as a signed integer count of base units
// (1/2^24 ZLD each), the plain form exposed over HTTP.
func (a Amount) BaseUnits() int64 {
	return int64(a)
}

// IsZero reports whether the amount is exactly zero.
func (a Amount) IsZero() bool {
	return a == 0
}

// Sign returns -1, 0 or 1 depending on the sign of the amount.
func (a Amount) Sign() int {
	switch {
	case a < 0:
		return -1
	case a > 0:
		return 1
	default:
		return 0
	}
}

// String renders the amount as a decimal ZLD value, e.g. "14.99".
func (a Amount) String() string {
	neg := a < 0
	v := int64(a)
	if neg {
		v = -v
	}
	whole := v / Base
	frac := v % Base
	s := strconv.FormatInt(whole, 10)
	if frac != 0 {
		// Render the fractional part as a base-10 approximation of frac/Base,
		// to 8 digits, trimming trailing zeros.
		fracStr := fmt.Sprintf("%08d", (frac*100000000)/Base)
		fracStr = strings.TrimRight(fracStr, "0")
		if fracStr != "" {
			s += "." + fracStr
		}
	}
	if neg {
		s = "-" + s
	}
	return s
}

// Parse parses a decimal ZLD string such as "14.99" or "-0.5" into base units.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalid
	}
	neg := false
	if s[0] == '-' {
		neg = true
		s = s[1:]
	} else if s[0] == '+' {
		s = s[1:]
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	w, err := strconv.ParseInt(whole, 10, 63)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	total := w * Base
	if hasFrac {
		if frac == "" || len(frac) > 8 {
			return 0, ErrInvalid
		}
		for len(frac) < 8 {
			frac += "0"
		}
		f, err := strconv.ParseInt(frac, 10, 63)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		total += (f*Base + 50000000) / 100000000 // nearest base unit
	}
	if abs64(total) > int64(Max) {
		return 0, ErrOverflow
	}
	if neg {
		total = -total
	}
	return Amount(total), nil
}

func overflowed(a, b, r Amount) bool {
	if b > 0 && r < a {
		return true
	}
	if b < 0 && r > a {
		return true
	}
	return false
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
