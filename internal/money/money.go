// Package money keeps every amount as integer cents.
// Decimal text only appears at the JSON boundary.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Cents is an amount in the smallest currency unit
type Cents int64

var hundred = decimal.NewFromInt(100)

// Convert decimal amount (like 90.5) into cents
// More than two fractional digits is an error: amounts are never rounded silently
func FromDecimal(d decimal.Decimal) (Cents, error) {
	scaled := d.Mul(hundred)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("amount %s has more than two fractional digits", d.String())
	}

	n := scaled.BigInt()
	if !n.IsInt64() {
		return 0, errors.New("amount out of range")
	}
	return Cents(n.Int64()), nil
}

// Parse decimal text (like "90.5") into cents
func Parse(s string) (Cents, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return FromDecimal(d)
}

func MustParse(s string) Cents {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Cents) Decimal() decimal.Decimal {
	return decimal.New(int64(c), -2)
}

func (c Cents) String() string {
	return c.Decimal().StringFixed(2)
}

// Encoded as JSON number with two fractional digits: 90.00
func (c Cents) MarshalJSON() ([]byte, error) {
	return []byte(c.String()), nil
}

// Accepts both JSON numbers and quoted decimal strings
func (c *Cents) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}

	v, err := FromDecimal(d)
	if err != nil {
		return err
	}

	*c = v
	return nil
}

// Split gross into platform fee and seller amount
// Fee is gross*rate rounded half-to-even to whole cents, the remainder goes to the seller,
// so fee + seller == gross always holds
func SplitFee(gross Cents, rate decimal.Decimal) (fee Cents, seller Cents) {
	f := gross.Decimal().Mul(rate).Mul(hundred).RoundBank(0)
	fee = Cents(f.IntPart())
	return fee, gross - fee
}

// Fee rate must be within [0, 1]
func ParseRate(s string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(s)
	if err != nil {
		return rate, fmt.Errorf("invalid fee rate %q: %w", s, err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return rate, fmt.Errorf("fee rate %s must be between 0 and 1", rate.String())
	}
	return rate, nil
}
