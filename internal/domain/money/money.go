// Package money implements a fixed-precision monetary value used throughout
// the ledger and shipment fee fields. Values are stored as an integer count
// of minor units (agorot, 1/100 of a new shekel) to avoid floating point
// drift in financial accumulation.
package money

import (
	"database/sql/driver"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Money is a fixed-precision amount, represented internally as minor units.
// The zero value is zero.
type Money int64

// Zero is the additive identity.
const Zero Money = 0

// FromMajor builds a Money from a major-unit decimal amount (e.g. 10.50).
// Rounds to the nearest minor unit (banker's rounding is not required here;
// all call sites round at the point of user input, never on read).
func FromMajor(major float64) Money {
	return Money(math.Round(major * 100))
}

// FromMinor builds a Money directly from minor units.
func FromMinor(minor int64) Money {
	return Money(minor)
}

// Minor returns the amount as an integer count of minor units.
func (m Money) Minor() int64 { return int64(m) }

// Major returns the amount as a float64 major-unit value, for display only.
// Never use this for further arithmetic — accumulate in Money instead.
func (m Money) Major() float64 { return float64(m) / 100 }

// Add returns m + other.
func (m Money) Add(other Money) Money { return m + other }

// Sub returns m - other.
func (m Money) Sub(other Money) Money { return m - other }

// Neg returns -m.
func (m Money) Neg() Money { return -m }

// MulRate multiplies Money by a rate (e.g. a commission_rate in [0,1]),
// rounding to the nearest minor unit.
func (m Money) MulRate(rate float64) Money {
	return Money(math.Round(float64(m) * rate))
}

// LessThan reports whether m < other.
func (m Money) LessThan(other Money) bool { return m < other }

// String renders the amount with exactly two decimal digits, e.g. "-125.00".
func (m Money) String() string {
	neg := m < 0
	v := int64(m)
	if neg {
		v = -v
	}
	whole := v / 100
	frac := v % 100
	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%s%d.%02d", sign, whole, frac)
}

// Parse parses a decimal string ("10.50", "-125.00", "10") into Money.
// At most 2 decimal places are accepted; this mirrors the Amount validator's
// contract in internal/validation.
func Parse(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("money: empty value")
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	parts := strings.SplitN(s, ".", 2)
	wholeStr := parts[0]
	fracStr := "00"
	if len(parts) == 2 {
		fracStr = parts[1]
		if len(fracStr) > 2 {
			return 0, fmt.Errorf("money: at most 2 decimal places allowed: %q", s)
		}
		for len(fracStr) < 2 {
			fracStr += "0"
		}
	}
	whole, err := strconv.ParseInt(wholeStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("money: invalid amount %q: %w", s, err)
	}
	frac, err := strconv.ParseInt(fracStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("money: invalid amount %q: %w", s, err)
	}
	total := whole*100 + frac
	if neg {
		total = -total
	}
	return Money(total), nil
}

// Value implements driver.Valuer, persisting Money as a NUMERIC(10,2) via
// its decimal string form.
func (m Money) Value() (driver.Value, error) {
	return m.String(), nil
}

// Scan implements sql.Scanner, accepting the numeric/decimal forms Postgres
// drivers typically hand back for NUMERIC columns (string or []byte).
func (m *Money) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*m = 0
		return nil
	case []byte:
		parsed, err := Parse(string(v))
		if err != nil {
			return err
		}
		*m = parsed
		return nil
	case string:
		parsed, err := Parse(v)
		if err != nil {
			return err
		}
		*m = parsed
		return nil
	case float64:
		*m = FromMajor(v)
		return nil
	case int64:
		*m = Money(v * 100)
		return nil
	default:
		return fmt.Errorf("money: unsupported scan type %T", src)
	}
}

// MarshalJSON renders Money as a JSON string with 2 decimal places, so API
// consumers never see floating point artifacts.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON accepts either a JSON string ("10.50") or a bare JSON number.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
