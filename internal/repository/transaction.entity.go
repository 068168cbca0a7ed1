package repository

import (
	"time"

	"github.com/samueldng/cash-back-phone-link/internal/model"
	"github.com/shopspring/decimal"
)

type TransactionEntity struct {
	ID             string          `db:"id"              gorm:"primaryKey;column:id;size:36"`
	Phone          string          `db:"phone"           gorm:"column:phone;not null;index"`
	Amount         decimal.Decimal `db:"amount"          gorm:"column:amount;type:numeric(14,2);not null"`
	CashbackEarned decimal.Decimal `db:"cashback_earned" gorm:"column:cashback_earned;type:numeric(14,2);not null;default:0"`
	Type           string          `db:"type"            gorm:"column:type;not null"`
	Category       *string         `db:"category"        gorm:"column:category"`
	Description    string          `db:"description"     gorm:"column:description;not null;default:''"`
	Timestamp      time.Time       `db:"timestamp"       gorm:"column:timestamp;not null;index"`
}

func (TransactionEntity) TableName() string {
	return "transactions"
}

func toTransactionEntity(m *model.Transaction) *TransactionEntity {
	if m == nil {
		return nil
	}
	return &TransactionEntity{
		ID:             m.ID,
		Phone:          m.Phone,
		Amount:         m.Amount,
		CashbackEarned: m.CashbackEarned,
		Type:           string(m.Type),
		Category:       m.Category,
		Description:    m.Description,
		Timestamp:      m.Timestamp,
	}
}

func toTransactionModel(e *TransactionEntity) *model.Transaction {
	if e == nil {
		return nil
	}
	return &model.Transaction{
		ID:             e.ID,
		Phone:          e.Phone,
		Amount:         model.RoundMoney(e.Amount),
		CashbackEarned: model.RoundMoney(e.CashbackEarned),
		Type:           model.TransactionType(e.Type),
		Category:       e.Category,
		Description:    e.Description,
		Timestamp:      e.Timestamp,
	}
}

func toTransactionModels(entities []*TransactionEntity) []*model.Transaction {
	if entities == nil {
		return nil
	}
	models := make([]*model.Transaction, len(entities))
	for i, e := range entities {
		models[i] = toTransactionModel(e)
	}
	return models
}
