package license_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/licensekit/pkg/license"
)

func TestParseMoney(t *testing.T) {
	t.Parallel()

	valid := []struct {
		in, code string
		minor    int64
		decimal  string
	}{
		{"29.95", "USD", 2995, "29.95"},
		{"199.95", "usd", 19995, "199.95"},
		{"9.9", "EUR", 990, "9.90"},
		{"10", "USD", 1000, "10.00"},
		{"0.05", "USD", 5, "0.05"},
		{"1500", "JPY", 1500, "1500"},
	}
	for _, tc := range valid {
		t.Run(tc.in+" "+tc.code, func(t *testing.T) {
			t.Parallel()
			m, err := license.ParseMoney(tc.in, tc.code)
			require.NoError(t, err)
			assert.Equal(t, tc.minor, m.Amount)
			assert.Equal(t, tc.decimal, m.Decimal())
		})
	}

	invalid := []struct{ in, code string }{
		{"", "USD"},
		{"-1.00", "USD"},
		{"1.999", "USD"},
		{"abc", "USD"},
		{".50", "USD"},
		{"1.5", "JPY"},
	}
	for _, tc := range invalid {
		t.Run("invalid "+tc.in+" "+tc.code, func(t *testing.T) {
			t.Parallel()
			_, err := license.ParseMoney(tc.in, tc.code)
			assert.ErrorIs(t, err, license.ErrInvalidAmount)
		})
	}

	t.Run("unknown currency", func(t *testing.T) {
		t.Parallel()
		_, err := license.ParseMoney("1.00", "XYZW")
		assert.ErrorIs(t, err, license.ErrInvalidCurrency)
	})
}

func TestMoney_Equal(t *testing.T) {
	t.Parallel()

	a := license.MustParseMoney("29.95", "USD")
	assert.True(t, a.Equal(license.Money{Amount: 2995, Currency: "usd"}))
	assert.False(t, a.Equal(license.MustParseMoney("29.95", "EUR")))
	assert.Equal(t, "29.95 USD", a.String())
	assert.Equal(t, "2995", a.MinorUnits())
}
