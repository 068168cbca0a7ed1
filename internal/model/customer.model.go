package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Customer is keyed by phone and carries the three running cashback balances.
type Customer struct {
	Phone             string          `json:"phone"`
	Name              string          `json:"name"`
	TotalCashback     decimal.Decimal `json:"total_cashback"`
	AvailableCashback decimal.Decimal `json:"available_cashback"`
	UsedCashback      decimal.Decimal `json:"used_cashback"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func (Customer) TableName() string { return "customers" }

// NewCustomer returns a customer whose first accrual is earned.
func NewCustomer(phone, name string, earned decimal.Decimal, now time.Time) *Customer {
	return &Customer{
		Phone:             phone,
		Name:              name,
		TotalCashback:     earned,
		AvailableCashback: earned,
		UsedCashback:      decimal.Zero,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (c *Customer) Accrue(earned decimal.Decimal, now time.Time) {
	c.TotalCashback = c.TotalCashback.Add(earned)
	c.AvailableCashback = c.AvailableCashback.Add(earned)
	c.UpdatedAt = now
}

func (c *Customer) CanRedeem(amount decimal.Decimal) bool {
	return amount.LessThanOrEqual(c.AvailableCashback)
}

// Redeem moves amount from available to used. Callers check CanRedeem first.
func (c *Customer) Redeem(amount decimal.Decimal, now time.Time) {
	c.AvailableCashback = c.AvailableCashback.Sub(amount)
	c.UsedCashback = c.UsedCashback.Add(amount)
	c.UpdatedAt = now
}

// CheckBalances verifies total = available + used and 0 <= available <= total.
func (c *Customer) CheckBalances() error {
	if !c.TotalCashback.Equal(c.AvailableCashback.Add(c.UsedCashback)) {
		return fmt.Errorf("customer %s: total %s != available %s + used %s",
			c.Phone, c.TotalCashback, c.AvailableCashback, c.UsedCashback)
	}
	if c.AvailableCashback.IsNegative() || c.AvailableCashback.GreaterThan(c.TotalCashback) {
		return fmt.Errorf("customer %s: available %s outside [0, %s]", c.Phone, c.AvailableCashback, c.TotalCashback)
	}
	if c.UsedCashback.IsNegative() {
		return fmt.Errorf("customer %s: negative used %s", c.Phone, c.UsedCashback)
	}
	return nil
}
