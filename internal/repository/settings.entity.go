package repository

import (
	"time"

	"github.com/samueldng/cash-back-phone-link/internal/model"
	"github.com/shopspring/decimal"
)

// settingsRowID is the id of the only row in cashback_settings.
const settingsRowID = 1

type SettingsEntity struct {
	ID                 int             `db:"id"                  gorm:"primaryKey;column:id;autoIncrement:false"`
	CashbackPercentage decimal.Decimal `db:"cashback_percentage" gorm:"column:cashback_percentage;type:numeric(5,2);not null"`
	MinimumRedemption  decimal.Decimal `db:"minimum_redemption"  gorm:"column:minimum_redemption;type:numeric(14,2);not null"`
	EligibleCategories []string        `db:"eligible_categories" gorm:"column:eligible_categories;serializer:json;type:text;not null"`
	UpdatedAt          time.Time       `db:"updated_at"          gorm:"column:updated_at;not null"`
}

func (SettingsEntity) TableName() string {
	return "cashback_settings"
}

func toSettingsEntity(m *model.Settings) *SettingsEntity {
	if m == nil {
		return nil
	}
	categories := m.EligibleCategories
	if categories == nil {
		categories = []string{}
	}
	return &SettingsEntity{
		ID:                 settingsRowID,
		CashbackPercentage: m.CashbackPercentage,
		MinimumRedemption:  m.MinimumRedemption,
		EligibleCategories: categories,
		UpdatedAt:          m.UpdatedAt,
	}
}

func toSettingsModel(e *SettingsEntity) *model.Settings {
	if e == nil {
		return nil
	}
	return &model.Settings{
		CashbackPercentage: model.RoundMoney(e.CashbackPercentage),
		MinimumRedemption:  model.RoundMoney(e.MinimumRedemption),
		EligibleCategories: e.EligibleCategories,
		UpdatedAt:          e.UpdatedAt,
	}
}
