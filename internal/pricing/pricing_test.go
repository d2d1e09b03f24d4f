package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCalculate_SeniorDiscount(t *testing.T) {
	b, err := Calculate(dec("112.00"), DiscountSenior)
	require.NoError(t, err)

	assert.True(t, b.VATExclusiveSubtotal.Equal(dec("100.00")), b.VATExclusiveSubtotal.String())
	assert.True(t, b.VATAmount.Equal(dec("12.00")), b.VATAmount.String())
	assert.True(t, b.DiscountAmount.Equal(dec("20.00")), b.DiscountAmount.String())
	assert.True(t, b.Tax.IsZero())
	assert.True(t, b.Total.Equal(dec("80.00")), b.Total.String())
}

func TestCalculate_PWDMatchesSenior(t *testing.T) {
	senior, err := Calculate(dec("112.00"), DiscountSenior)
	require.NoError(t, err)
	pwd, err := Calculate(dec("112.00"), DiscountPWD)
	require.NoError(t, err)

	assert.True(t, senior.Total.Equal(pwd.Total))
	assert.Equal(t, DiscountPWD, pwd.DiscountType)
}

func TestCalculate_NoDiscount(t *testing.T) {
	b, err := Calculate(dec("112.00"), DiscountNone)
	require.NoError(t, err)

	assert.True(t, b.Total.Equal(dec("112.00")))
	assert.True(t, b.Tax.IsZero())
	assert.True(t, b.DiscountAmount.IsZero())
	assert.True(t, b.VATAmount.IsZero())
}

func TestCalculate_RoundsToCents(t *testing.T) {
	// 100 / 1.12 = 89.2857… -> 89.29; 20% of 89.29 = 17.858 -> 17.86
	b, err := Calculate(dec("100.00"), DiscountSenior)
	require.NoError(t, err)

	assert.Equal(t, "89.29", b.VATExclusiveSubtotal.StringFixed(2))
	assert.Equal(t, "10.71", b.VATAmount.StringFixed(2))
	assert.Equal(t, "17.86", b.DiscountAmount.StringFixed(2))
	assert.Equal(t, "71.43", b.Total.StringFixed(2))
	assert.True(t, b.VATExclusiveSubtotal.Add(b.VATAmount).Equal(b.Subtotal))
}

func TestCalculate_Rejects(t *testing.T) {
	_, err := Calculate(dec("-1"), DiscountNone)
	assert.ErrorIs(t, err, ErrNegativeSubtotal)

	_, err = Calculate(dec("10"), DiscountType("student"))
	assert.ErrorIs(t, err, ErrUnknownDiscount)
}

func TestChange(t *testing.T) {
	change, err := Change(dec("80.00"), dec("100.00"))
	require.NoError(t, err)
	assert.Equal(t, "20.00", change.StringFixed(2))

	change, err = Change(dec("80.00"), dec("80.00"))
	require.NoError(t, err)
	assert.True(t, change.IsZero())

	_, err = Change(dec("80.00"), dec("70.00"))
	assert.ErrorIs(t, err, ErrInsufficientPayment)
}

func TestParseDiscountType(t *testing.T) {
	cases := map[string]DiscountType{
		"":       DiscountNone,
		"none":   DiscountNone,
		"Senior": DiscountSenior,
		" pwd ":  DiscountPWD,
	}
	for in, want := range cases {
		got, err := ParseDiscountType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseDiscountType("vip")
	assert.ErrorIs(t, err, ErrUnknownDiscount)

	assert.True(t, DiscountSenior.RequiresBeneficiary())
	assert.False(t, DiscountNone.RequiresBeneficiary())
}
