package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Money values are kept at two decimal places.
const MoneyPlaces = 2

func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

type PurchaseRequest struct {
	Phone       string          `json:"phone"`
	Name        string          `json:"name"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
}

// Normalize trims text fields and rounds the amount.
func (p PurchaseRequest) Normalize() PurchaseRequest {
	p.Phone = strings.TrimSpace(p.Phone)
	p.Name = strings.TrimSpace(p.Name)
	p.Category = strings.TrimSpace(p.Category)
	p.Description = strings.TrimSpace(p.Description)
	p.Amount = RoundMoney(p.Amount)
	return p
}

// RedemptionRequest redeems Amount, or the whole available balance when All is set.
type RedemptionRequest struct {
	Phone       string          `json:"phone"`
	Amount      decimal.Decimal `json:"amount"`
	All         bool            `json:"all"`
	Description string          `json:"description"`
}

func (r RedemptionRequest) Normalize() RedemptionRequest {
	r.Phone = strings.TrimSpace(r.Phone)
	r.Description = strings.TrimSpace(r.Description)
	r.Amount = RoundMoney(r.Amount)
	return r
}
