package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Settings struct {
	CashbackPercentage decimal.Decimal `json:"cashback_percentage"`
	MinimumRedemption  decimal.Decimal `json:"minimum_redemption"`
	EligibleCategories []string        `json:"eligible_categories"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

func (s *Settings) ListsCategory(category string) bool {
	for _, c := range s.EligibleCategories {
		if c == category {
			return true
		}
	}
	return false
}

// Stats is a single snapshot over the whole ledger.
type Stats struct {
	TotalCustomers        int64           `json:"total_customers"`
	TotalSales            decimal.Decimal `json:"total_sales"`
	TotalCashbackGiven    decimal.Decimal `json:"total_cashback_given"`
	TotalCashbackRedeemed decimal.Decimal `json:"total_cashback_redeemed"`
}
