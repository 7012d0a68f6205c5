package core

import (
	"database/sql/driver"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const moneyPlaces = 2

var (
	errInvalidMoney = errors.New("invalid amount")

	hundred = decimal.New(100, 0)

	// MaxMoney is the largest amount a NUMERIC(10, 2) column holds.
	MaxMoney = NewMoney(99999999, 99)
)

// Money is an amount of bonuses with exactly 2 decimal places, eg: NewMoney(1500, 50) is 1500.50.
// It maps to NUMERIC(10, 2) columns and is (un)marshalled as a JSON string "1500.50".
// Amounts always lie within [-MaxMoney, MaxMoney].
type Money struct {
	d decimal.Decimal
}

// NewMoney builds an amount from its whole and hundredth parts.
func NewMoney(units, cents int64) Money {
	return newMoney(decimal.New(units, 0).Add(decimal.New(cents, -moneyPlaces)))
}

// newMoney keeps d at exponent -2 (and zero as the zero value) so equal amounts are deeply equal.
func newMoney(d decimal.Decimal) Money {
	cents := d.Mul(hundred).IntPart()
	if cents == 0 {
		return Money{}
	}
	return Money{d: decimal.New(cents, -moneyPlaces)}
}

// moneyFromDecimal rejects amounts with more than 2 decimal places or outside of the NUMERIC(10, 2) range.
func moneyFromDecimal(d decimal.Decimal) (Money, error) {
	// large exponents are rejected before any rescaling
	if exp := d.Exponent(); exp > 10 || exp < -moneyPlaces {
		return Money{}, errInvalidMoney
	}
	if d.Abs().GreaterThan(MaxMoney.d) {
		return Money{}, errInvalidMoney
	}
	return newMoney(d), nil
}

// ParseMoney parses a decimal amount with at most 2 fractional digits.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, errInvalidMoney
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, errInvalidMoney
	}
	return moneyFromDecimal(d)
}

func (m Money) String() string {
	return m.d.StringFixed(moneyPlaces)
}

// Float is only meant for metrics and percentages.
func (m Money) Float() float64 {
	f, _ := m.d.Float64()
	return f
}

func (m Money) Add(o Money) Money { return newMoney(m.d.Add(o.d)) }
func (m Money) Sub(o Money) Money { return newMoney(m.d.Sub(o.d)) }

// Cmp returns -1, 0 or +1 depending on whether m is lower than, equal to or greater than o.
func (m Money) Cmp(o Money) int { return m.d.Cmp(o.d) }

func (m Money) Equal(o Money) bool       { return m.d.Equal(o.d) }
func (m Money) LessThan(o Money) bool    { return m.d.LessThan(o.d) }
func (m Money) GreaterThan(o Money) bool { return m.d.GreaterThan(o.d) }
func (m Money) IsPositive() bool         { return m.d.IsPositive() }
func (m Money) IsNegative() bool         { return m.d.IsNegative() }

// Cents is used by the validators: `gt=0` and co. apply to it.
func (m Money) Cents() int64 {
	return m.d.Mul(hundred).IntPart()
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(m.String())), nil
}

// UnmarshalJSON accepts both JSON strings ("10.50") and numbers (10.5).
func (m *Money) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		return nil
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Value implements driver.Valuer.
func (m Money) Value() (driver.Value, error) {
	return m.String(), nil
}

// Scan implements sql.Scanner; Postgres returns NUMERIC as text.
func (m *Money) Scan(src interface{}) error {
	if src == nil {
		*m = Money{}
		return nil
	}
	var d decimal.Decimal
	if err := d.Scan(src); err != nil {
		return errors.Wrapf(err, "cannot scan %T into core.Money", src)
	}
	parsed, err := moneyFromDecimal(d)
	if err != nil {
		return errors.Wrapf(err, "scanning %v", src)
	}
	*m = parsed
	return nil
}
