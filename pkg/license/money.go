package license

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/currency"
)

// Money is an amount in the currency's minor unit, e.g. 2995 USD for $29.95.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// ParseMoney parses a decimal string such as "29.95" in the given ISO 4217 currency.
// More fraction digits than the currency allows is an error.
func ParseMoney(amount, code string) (Money, error) {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	scale, _ := currency.Standard.Rounding(unit)

	amount = strings.TrimSpace(amount)
	if amount == "" || strings.HasPrefix(amount, "-") || strings.HasPrefix(amount, "+") {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}

	whole, frac, _ := strings.Cut(amount, ".")
	if len(frac) > scale || whole == "" {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	frac += strings.Repeat("0", scale-len(frac))

	minor, err := strconv.ParseInt(whole+frac, 10, 64)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}

	return Money{Amount: minor, Currency: unit.String()}, nil
}

// MustParseMoney is ParseMoney for constants; it panics on bad input.
func MustParseMoney(amount, code string) Money {
	m, err := ParseMoney(amount, code)
	if err != nil {
		panic(err)
	}
	return m
}

// Scale returns the number of minor-unit digits of the currency.
func (m Money) Scale() int {
	unit, err := currency.ParseISO(m.Currency)
	if err != nil {
		return 2
	}
	scale, _ := currency.Standard.Rounding(unit)
	return scale
}

// Decimal formats the amount as a plain decimal string, e.g. "29.95".
func (m Money) Decimal() string {
	scale := m.Scale()
	s := strconv.FormatInt(m.Amount, 10)
	if scale == 0 {
		return s
	}
	if len(s) <= scale {
		s = strings.Repeat("0", scale-len(s)+1) + s
	}
	return s[:len(s)-scale] + "." + s[len(s)-scale:]
}

// MinorUnits formats the amount in minor units, e.g. "2995".
func (m Money) MinorUnits() string {
	return strconv.FormatInt(m.Amount, 10)
}

func (m Money) String() string {
	return m.Decimal() + " " + m.Currency
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.Amount == 0
}

// Equal compares amount and currency.
func (m Money) Equal(o Money) bool {
	return m.Amount == o.Amount && strings.EqualFold(m.Currency, o.Currency)
}
