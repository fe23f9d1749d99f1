package database

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// AmountDecimals is the number of fractional digits an Amount can carry.
const AmountDecimals = 6

// AmountScale is the number of units in one whole coin.
const AmountScale Amount = 1_000_000

// Limits applied when validating transactions.
const (
	MaxAmount Amount = 1_000_000 * AmountScale
	MaxFee    Amount = 1 * AmountScale
)

// Fee tiers used for pruning and confirmation estimates.
const (
	FeeHigh     Amount = 1000
	FeeStandard Amount = 500
	FeeEconomy  Amount = 100
)

// ErrMalformedAmount is returned when a decimal string cannot be parsed.
var ErrMalformedAmount = errors.New("malformed decimal")

// =============================================================================

// Amount is a fixed point decimal value in millionths of a coin.
type Amount int64

// ParseAmount converts a decimal string like "12.5" or "1.25e1" into an
// Amount. More than six fractional digits is an error.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)

	var neg bool
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}

	s, err := expandExponent(s)
	if err != nil {
		return 0, err
	}

	whole, frac, hasDot := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return 0, ErrMalformedAmount
	}
	if hasDot && frac == "" {
		return 0, ErrMalformedAmount
	}
	if !isDigits(whole) || !isDigits(frac) {
		return 0, ErrMalformedAmount
	}
	if len(frac) > AmountDecimals {
		return 0, fmt.Errorf("%w: at most %d decimal places", ErrInvalidAmount, AmountDecimals)
	}
	if len(whole) > 12 {
		return 0, fmt.Errorf("%w: out of range", ErrInvalidAmount)
	}

	var w int64
	if whole != "" {
		w, _ = strconv.ParseInt(whole, 10, 64)
	}

	var f int64
	if frac != "" {
		f, _ = strconv.ParseInt(frac+strings.Repeat("0", AmountDecimals-len(frac)), 10, 64)
	}

	a := Amount(w)*AmountScale + Amount(f)
	if neg {
		a = -a
	}

	return a, nil
}

// MustParseAmount is ParseAmount for constant values known to be valid.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String returns the shortest decimal form of the amount.
func (a Amount) String() string {
	var sign string
	v := int64(a)
	if v < 0 {
		sign = "-"
		v = -v
	}

	whole := v / int64(AmountScale)
	frac := v % int64(AmountScale)
	if frac == 0 {
		return sign + strconv.FormatInt(whole, 10)
	}

	fs := strings.TrimRight(fmt.Sprintf("%06d", frac), "0")
	return fmt.Sprintf("%s%d.%s", sign, whole, fs)
}

// Float64 returns the amount as a float for display and estimates.
func (a Amount) Float64() float64 {
	return float64(a) / float64(AmountScale)
}

// MarshalJSON writes the amount as a JSON number.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts the amount as a JSON number or a quoted decimal.
func (a *Amount) UnmarshalJSON(data []byte) error {
	v, err := ParseAmount(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}

	*a = v
	return nil
}

// =============================================================================

// maxExponent bounds the exponent accepted in scientific notation.
const maxExponent = 30

// expandExponent rewrites scientific notation as a plain decimal by moving
// the point, so no precision is lost to floating point.
func expandExponent(s string) (string, error) {
	mant, exp, found := strings.Cut(strings.ToLower(s), "e")
	if !found {
		return s, nil
	}

	e, err := strconv.Atoi(exp)
	if err != nil || e < -maxExponent || e > maxExponent {
		return "", ErrMalformedAmount
	}

	whole, frac, hasDot := strings.Cut(mant, ".")
	if (whole == "" && frac == "") || (hasDot && frac == "") || !isDigits(whole) || !isDigits(frac) {
		return "", ErrMalformedAmount
	}

	digits := whole + frac
	point := len(whole) + e

	switch {
	case point <= 0:
		digits = strings.Repeat("0", 1-point) + digits
		point = 1
	case point > len(digits):
		digits += strings.Repeat("0", point-len(digits))
	}

	out := strings.TrimLeft(digits[:point], "0")
	if out == "" {
		out = "0"
	}
	if rest := strings.TrimRight(digits[point:], "0"); rest != "" {
		out += "." + rest
	}

	return out, nil
}

func isDigits(s string) bool {
	for _, c := range []byte(s) {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
