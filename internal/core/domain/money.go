package domain

import (
	"github.com/shopspring/decimal"
)

// Quantity is a non-negative count of units.
type Quantity struct {
	n int
}

// NewQuantity accepts zero and positive counts.
func NewQuantity(n int) (Quantity, error) {
	if n < 0 {
		return Quantity{}, invalid("quantity", "must not be negative")
	}
	return Quantity{n: n}, nil
}

// PositiveQuantity accepts strictly positive counts, as required for line items and stock movements.
func PositiveQuantity(n int) (Quantity, error) {
	if n <= 0 {
		return Quantity{}, invalid("quantity", "must be greater than zero")
	}
	return Quantity{n: n}, nil
}

func (q Quantity) Int() int { return q.n }

func (q Quantity) IsZero() bool { return q.n == 0 }

func (q Quantity) Add(o Quantity) Quantity { return Quantity{n: q.n + o.n} }

// MoneyScale is the number of decimal places an amount may carry.
const MoneyScale = 4

// Money is a non-negative decimal amount.
type Money struct {
	d decimal.Decimal
}

// Zero is the additive identity for totals.
var Zero = Money{d: decimal.Zero}

func NewMoney(d decimal.Decimal) (Money, error) {
	if d.IsNegative() {
		return Money{}, invalid("amount", "must not be negative")
	}
	if !d.Equal(d.Round(MoneyScale)) {
		return Money{}, invalid("amount", "has too many decimal places")
	}
	return Money{d: d}, nil
}

func MoneyFromString(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, invalid("amount", err.Error())
	}
	return NewMoney(d)
}

func (m Money) Decimal() decimal.Decimal { return m.d }

func (m Money) Times(q Quantity) Money {
	return Money{d: m.d.Mul(decimal.NewFromInt(int64(q.n)))}
}

func (m Money) Plus(o Money) Money { return Money{d: m.d.Add(o.d)} }

func (m Money) Equal(o Money) bool { return m.d.Equal(o.d) }

func (m Money) IsPositive() bool { return m.d.IsPositive() }

func (m Money) String() string { return m.d.StringFixed(2) }
