package fixtures

import (
	"time"

	"github.com/samueldng/cash-back-phone-link/internal/model"
	"github.com/shopspring/decimal"
)

const (
	PhoneAna   = "11987654321"
	PhoneBruno = "21912345678"
)

// DefaultSettings matches the seeded cashback_settings row.
func DefaultSettings() model.Settings {
	return model.Settings{
		CashbackPercentage: decimal.NewFromInt(5),
		MinimumRedemption:  decimal.NewFromInt(15),
		EligibleCategories: []string{"acessorios"},
	}
}

func NewTestCustomer(phone, name string, total, available, used string) *model.Customer {
	now := time.Now().UTC()
	return &model.Customer{
		Phone:             phone,
		Name:              name,
		TotalCashback:     decimal.RequireFromString(total),
		AvailableCashback: decimal.RequireFromString(available),
		UsedCashback:      decimal.RequireFromString(used),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func Purchase(phone, name, amount, category string) model.PurchaseRequest {
	return model.PurchaseRequest{
		Phone:    phone,
		Name:     name,
		Amount:   decimal.RequireFromString(amount),
		Category: category,
	}
}

func EligiblePurchase(phone, amount string) model.PurchaseRequest {
	return Purchase(phone, "Cliente "+phone, amount, "acessorios")
}

func IneligiblePurchase(phone, amount string) model.PurchaseRequest {
	return Purchase(phone, "Cliente "+phone, amount, "celulares")
}

func Redemption(phone, amount string) model.RedemptionRequest {
	return model.RedemptionRequest{
		Phone:  phone,
		Amount: decimal.RequireFromString(amount),
	}
}

func RedeemAll(phone string) model.RedemptionRequest {
	return model.RedemptionRequest{Phone: phone, All: true}
}

var (
	InvalidPurchases = map[string]model.PurchaseRequest{
		"missing phone":   Purchase("", "Ana", "100", "acessorios"),
		"missing name":    Purchase(PhoneAna, "", "100", "acessorios"),
		"zero amount":     Purchase(PhoneAna, "Ana", "0", "acessorios"),
		"negative amount": Purchase(PhoneAna, "Ana", "-10", "acessorios"),
	}
)
