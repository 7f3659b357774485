// Package types holds the numeric value types used by the ledger and by documents.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"docflow/internal/core/apperror"
)

// Quantity is a fixed-point stock quantity with four fractional digits,
// stored in the database as a scaled BIGINT.
type Quantity int64

// QuantityScale is the number of Quantity units in one whole item.
const QuantityScale int64 = 10_000

// Units returns n whole items as a Quantity. n is trusted; request input
// goes through ParseQuantity, which checks the range.
func Units(n int64) Quantity { return Quantity(n * QuantityScale) }

func (q Quantity) IsZero() bool     { return q == 0 }
func (q Quantity) IsPositive() bool { return q > 0 }
func (q Quantity) IsNegative() bool { return q < 0 }
func (q Quantity) Neg() Quantity    { return -q }

// Min returns the smaller of q and o.
func (q Quantity) Min(o Quantity) Quantity {
	if o < q {
		return o
	}
	return q
}

// String renders the quantity without trailing fractional zeros ("12", "0.5", "-3.25").
func (q Quantity) String() string {
	v := int64(q)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	whole, frac := v/QuantityScale, v%QuantityScale
	if frac == 0 {
		return fmt.Sprintf("%s%d", sign, whole)
	}
	return strings.TrimRight(fmt.Sprintf("%s%d.%04d", sign, whole, frac), "0")
}

// MarshalJSON writes the quantity as a JSON number.
func (q Quantity) MarshalJSON() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalJSON accepts a JSON number or a numeric string.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*q = 0
		return nil
	}
	s := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	}
	parsed, err := ParseQuantity(s)
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

// MaxQuantity is the largest representable quantity.
const MaxQuantity = Quantity(math.MaxInt64)

// ParseQuantity parses a decimal string with at most four fractional digits.
// Exponent notation and values beyond MaxQuantity fail with VALIDATION_ERROR.
func ParseQuantity(s string) (Quantity, error) {
	in := s
	invalid := func(reason string) *apperror.AppError {
		return apperror.NewValidation(fmt.Sprintf("quantity %q: %s", in, reason)).WithDetail("value", in)
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return 0, invalid("empty")
	}
	sign := int64(1)
	switch s[0] {
	case '-':
		sign, s = -1, s[1:]
	case '+':
		s = s[1:]
	}

	wholeStr, fracStr, _ := strings.Cut(s, ".")
	if wholeStr == "" && fracStr == "" {
		return 0, invalid("no digits")
	}
	if !digitsOnly(wholeStr) || !digitsOnly(fracStr) {
		return 0, invalid("not a plain decimal number")
	}
	if len(fracStr) > 4 {
		return 0, invalid("more than 4 fractional digits")
	}
	if wholeStr == "" {
		wholeStr = "0"
	}
	whole, err := strconv.ParseInt(wholeStr, 10, 64)
	if err != nil {
		return 0, invalid("out of range")
	}
	var frac int64
	if fracStr != "" {
		fracStr += strings.Repeat("0", 4-len(fracStr))
		if frac, err = strconv.ParseInt(fracStr, 10, 64); err != nil {
			return 0, invalid("bad fraction")
		}
	}
	if whole > (math.MaxInt64-frac)/QuantityScale {
		return 0, invalid("out of range").WithDetail("max", MaxQuantity.String())
	}
	return Quantity(sign * (whole*QuantityScale + frac)), nil
}

func digitsOnly(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
