package money

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrNegativeAmount   = errors.New("amount cannot be negative")
	ErrInvalidCurrency  = errors.New("invalid currency")
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrInexactMinor     = errors.New("amount is not a whole number of minor units")
)

// Money is an exact decimal amount in a single ISO 4217 currency.
// The zero value has no currency and is reported by IsZero.
type Money struct {
	amount   decimal.Decimal
	currency string
}

// Parse builds Money from a decimal string such as "19.99".
// Negative amounts are rejected; use Sub to produce a difference.
func Parse(amount, code string) (Money, error) {
	cur, err := parseCurrency(code)
	if err != nil {
		return Money{}, err
	}

	s := strings.TrimSpace(amount)
	if s == "" {
		return Money{}, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}

	if d.IsNegative() {
		return Money{}, ErrNegativeAmount
	}

	return Money{amount: d, currency: cur}, nil
}

// MustParse is Parse for constants and tests.
func MustParse(amount, code string) Money {
	m, err := Parse(amount, code)
	if err != nil {
		panic(err)
	}

	return m
}

// FromMinor builds Money from an integer count of minor units, e.g. 1999 cents.
func FromMinor(units int64, code string) (Money, error) {
	cur, err := parseCurrency(code)
	if err != nil {
		return Money{}, err
	}

	if units < 0 {
		return Money{}, ErrNegativeAmount
	}

	return Money{amount: decimal.New(units, -scaleOf(cur)), currency: cur}, nil
}

func parseCurrency(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if len(c) != 3 {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}

	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
		}
	}

	unit, err := currency.ParseISO(c)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}

	return unit.String(), nil
}

// scaleOf returns the number of minor-unit digits for the currency (2 for USD, 0 for JPY).
func scaleOf(code string) int32 {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return 2
	}

	scale, _ := currency.Standard.Rounding(unit)

	return int32(scale)
}

func (m Money) Currency() string { return m.currency }

func (m Money) Decimal() decimal.Decimal { return m.amount }

func (m Money) IsZero() bool { return m.currency == "" }

func (m Money) IsPositive() bool { return m.amount.IsPositive() }

func (m Money) IsNegative() bool { return m.amount.IsNegative() }

func (m Money) Add(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}

	return Money{amount: m.amount.Add(o.amount), currency: m.currency}, nil
}

// Sub may return a negative amount.
func (m Money) Sub(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}

	return Money{amount: m.amount.Sub(o.amount), currency: m.currency}, nil
}

// Mul scales the amount exactly. Call Round to bring a fee or rate result back to the currency's minor unit.
func (m Money) Mul(factor decimal.Decimal) Money {
	return Money{amount: m.amount.Mul(factor), currency: m.currency}
}

// Round rounds half-to-even to the currency's minor unit.
func (m Money) Round() Money {
	return Money{amount: m.amount.RoundBank(scaleOf(m.currency)), currency: m.currency}
}

// Cmp compares two amounts of the same currency, returning -1, 0 or +1.
func (m Money) Cmp(o Money) (int, error) {
	if err := m.sameCurrency(o); err != nil {
		return 0, err
	}

	return m.amount.Cmp(o.amount), nil
}

func (m Money) Equal(o Money) bool {
	return m.currency == o.currency && m.amount.Equal(o.amount)
}

// MinorUnits returns the amount as an integer count of minor units,
// failing when the amount carries more precision than the currency allows.
func (m Money) MinorUnits() (int64, error) {
	shifted := m.amount.Shift(scaleOf(m.currency))
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("%w: %s %s", ErrInexactMinor, m.String(), m.currency)
	}

	if !shifted.BigInt().IsInt64() {
		return 0, fmt.Errorf("%w: %s overflows minor units", ErrInvalidAmount, m.String())
	}

	return shifted.IntPart(), nil
}

// String renders the canonical decimal form: at least the currency's minor digits, never fewer
// than the value carries, so "100" USD renders "100.00" and "19.999" stays "19.999".
func (m Money) String() string {
	places := scaleOf(m.currency)
	if exp := -m.amount.Exponent(); exp > places {
		places = exp
	}

	return m.amount.StringFixed(places)
}

func (m Money) sameCurrency(o Money) error {
	if m.currency != o.currency {
		return fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, m.currency, o.currency)
	}

	return nil
}

type wireMoney struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// MarshalJSON encodes the amount as a decimal string, never as a JSON number.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireMoney{Amount: m.String(), Currency: m.currency})
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var w wireMoney
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decoding money: %w", err)
	}

	parsed, err := Parse(w.Amount, w.Currency)
	if err != nil {
		return err
	}

	*m = parsed

	return nil
}

// Value stores the amount as NUMERIC text; the currency lives in its own column.
func (m Money) Value() (driver.Value, error) {
	return m.String(), nil
}
