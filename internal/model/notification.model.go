package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type NotificationKind string

const (
	NotificationWelcome  NotificationKind = "welcome"
	NotificationEarned   NotificationKind = "earned"
	NotificationRedeemed NotificationKind = "redeemed"
)

// Notification is emitted after a ledger mutation commits.
type Notification struct {
	ID        string           `json:"id"`
	Phone     string           `json:"phone"`
	Name      string           `json:"name,omitempty"`
	Kind      NotificationKind `json:"kind"`
	Amount    decimal.Decimal  `json:"amount"`
	CreatedAt time.Time        `json:"created_at"`
}
