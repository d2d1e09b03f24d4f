// Package pricing turns a VAT-inclusive subtotal into the amounts printed on a
// receipt. All arithmetic is fixed-point at currency precision (2 places,
// rounding half away from zero).
package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DiscountType is the beneficiary class of a sale.
type DiscountType string

const (
	DiscountNone   DiscountType = "none"
	DiscountSenior DiscountType = "senior"
	DiscountPWD    DiscountType = "pwd"
)

// Statutory rates. Listed prices embed 12% VAT; senior citizens and persons
// with disability are VAT-exempt and get 20% off the VAT-exclusive amount.
var (
	vatDivisor   = decimal.RequireFromString("1.12")
	discountRate = decimal.RequireFromString("0.20")
)

const places = 2

var (
	ErrUnknownDiscount     = errors.New("unknown discount type")
	ErrNegativeSubtotal    = errors.New("subtotal cannot be negative")
	ErrInsufficientPayment = errors.New("cash tendered is less than the total")
)

// ParseDiscountType accepts "", "none", "senior" and "pwd" (case-insensitive).
func ParseDiscountType(s string) (DiscountType, error) {
	switch DiscountType(strings.ToLower(strings.TrimSpace(s))) {
	case "", DiscountNone:
		return DiscountNone, nil
	case DiscountSenior:
		return DiscountSenior, nil
	case DiscountPWD:
		return DiscountPWD, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDiscount, s)
}

// RequiresBeneficiary reports whether an ID number and name must accompany the sale.
func (d DiscountType) RequiresBeneficiary() bool {
	return d == DiscountSenior || d == DiscountPWD
}

// Breakdown is the result of pricing a subtotal.
type Breakdown struct {
	DiscountType         DiscountType
	Subtotal             decimal.Decimal
	VATExclusiveSubtotal decimal.Decimal
	VATAmount            decimal.Decimal
	DiscountAmount       decimal.Decimal
	Tax                  decimal.Decimal
	Total                decimal.Decimal
}

// Calculate prices a VAT-inclusive subtotal. VATExclusiveSubtotal + VATAmount
// always equals Subtotal exactly.
func Calculate(subtotal decimal.Decimal, discount DiscountType) (Breakdown, error) {
	if subtotal.IsNegative() {
		return Breakdown{}, ErrNegativeSubtotal
	}
	subtotal = subtotal.Round(places)

	switch discount {
	case DiscountNone, "":
		return Breakdown{
			DiscountType:         DiscountNone,
			Subtotal:             subtotal,
			VATExclusiveSubtotal: subtotal,
			VATAmount:            decimal.Zero,
			DiscountAmount:       decimal.Zero,
			Tax:                  decimal.Zero,
			Total:                subtotal,
		}, nil
	case DiscountSenior, DiscountPWD:
		vatExclusive := subtotal.DivRound(vatDivisor, places)
		discountAmount := vatExclusive.Mul(discountRate).Round(places)
		return Breakdown{
			DiscountType:         discount,
			Subtotal:             subtotal,
			VATExclusiveSubtotal: vatExclusive,
			VATAmount:            subtotal.Sub(vatExclusive),
			DiscountAmount:       discountAmount,
			Tax:                  decimal.Zero,
			Total:                vatExclusive.Sub(discountAmount),
		}, nil
	}
	return Breakdown{}, fmt.Errorf("%w: %q", ErrUnknownDiscount, discount)
}

// Change returns cash - total, or ErrInsufficientPayment when cash falls short.
func Change(total, cash decimal.Decimal) (decimal.Decimal, error) {
	if cash.LessThan(total) {
		return decimal.Zero, ErrInsufficientPayment
	}
	return cash.Sub(total), nil
}
