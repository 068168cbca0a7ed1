package repository

import (
	"time"

	"github.com/samueldng/cash-back-phone-link/internal/model"
	"github.com/shopspring/decimal"
)

type CustomerEntity struct {
	Phone             string          `db:"phone"              gorm:"primaryKey;column:phone;size:32"`
	Name              string          `db:"name"               gorm:"column:name;not null"`
	TotalCashback     decimal.Decimal `db:"total_cashback"     gorm:"column:total_cashback;type:numeric(14,2);not null;default:0"`
	AvailableCashback decimal.Decimal `db:"available_cashback" gorm:"column:available_cashback;type:numeric(14,2);not null;default:0"`
	UsedCashback      decimal.Decimal `db:"used_cashback"      gorm:"column:used_cashback;type:numeric(14,2);not null;default:0"`
	CreatedAt         time.Time       `db:"created_at"         gorm:"column:created_at;not null;index"`
	UpdatedAt         time.Time       `db:"updated_at"         gorm:"column:updated_at;not null"`
}

func (CustomerEntity) TableName() string {
	return "customers"
}

func toCustomerEntity(m *model.Customer) *CustomerEntity {
	if m == nil {
		return nil
	}
	return &CustomerEntity{
		Phone:             m.Phone,
		Name:              m.Name,
		TotalCashback:     m.TotalCashback,
		AvailableCashback: m.AvailableCashback,
		UsedCashback:      m.UsedCashback,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func toCustomerModel(e *CustomerEntity) *model.Customer {
	if e == nil {
		return nil
	}
	return &model.Customer{
		Phone:             e.Phone,
		Name:              e.Name,
		TotalCashback:     model.RoundMoney(e.TotalCashback),
		AvailableCashback: model.RoundMoney(e.AvailableCashback),
		UsedCashback:      model.RoundMoney(e.UsedCashback),
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
}

func toCustomerModels(entities []*CustomerEntity) []*model.Customer {
	if entities == nil {
		return nil
	}
	models := make([]*model.Customer, len(entities))
	for i, e := range entities {
		models[i] = toCustomerModel(e)
	}
	return models
}
