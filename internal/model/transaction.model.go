package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypePurchase   TransactionType = "purchase"
	TransactionTypeRedemption TransactionType = "redemption"
)

// Transaction is an immutable record of one balance-affecting event.
// CashbackEarned is negative for redemptions.
type Transaction struct {
	ID             string          `json:"id"`
	Phone          string          `json:"phone"`
	Amount         decimal.Decimal `json:"amount"`
	CashbackEarned decimal.Decimal `json:"cashback_earned"`
	Type           TransactionType `json:"type"`
	Category       *string         `json:"category,omitempty"`
	Description    string          `json:"description"`
	Timestamp      time.Time       `json:"timestamp"`
}

func (Transaction) TableName() string { return "transactions" }

// TransactionFilter controls List queries. Results are newest first.
type TransactionFilter struct {
	Phone *string
	Limit int // <= 0 means no limit
}

// LedgerEntry is what a mutation returns: the customer after the event and
// the transaction that recorded it.
type LedgerEntry struct {
	Customer    *Customer    `json:"customer"`
	Transaction *Transaction `json:"transaction"`
	NewCustomer bool         `json:"new_customer"`
}
