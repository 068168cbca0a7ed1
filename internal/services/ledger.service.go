package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samueldng/cash-back-phone-link/internal/model"
	"github.com/samueldng/cash-back-phone-link/internal/repository"
	"github.com/samueldng/cash-back-phone-link/pkg/logger"
	"github.com/samueldng/cash-back-phone-link/pkg/prom"
	"github.com/shopspring/decimal"
)

type CustomerRepository interface {
	GetByPhone(ctx context.Context, phone string) (*model.Customer, error)
	GetByPhoneForUpdate(ctx context.Context, phone string) (*model.Customer, error)
	Insert(ctx context.Context, c *model.Customer) error
	UpdateBalances(ctx context.Context, c *model.Customer) error
	List(ctx context.Context) ([]*model.Customer, error)
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type TransactionRepository interface {
	Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error)
	List(ctx context.Context, f model.TransactionFilter) ([]*model.Transaction, error)
	Stats(ctx context.Context) (*model.Stats, error)
}

type SettingsProvider interface {
	Get(ctx context.Context) (*model.Settings, error)
}

// Notifier hands a notification to the delivery pipeline. It is called after
// commit; its error is logged and never fails the ledger operation.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

// Locker serializes mutations of one phone.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

const (
	opPurchase  = "purchase"
	opRedeem    = "redeem"
	opRedeemAll = "redeem_all"
)

// LedgerService accrues and redeems cashback. Every mutation of a phone runs
// under that phone's lock and writes the customer and its transaction in one
// database transaction.
type LedgerService struct {
	customerRepo    CustomerRepository
	transactionRepo TransactionRepository
	settings        SettingsProvider
	policy          EligibilityPolicy
	locker          Locker
	notifier        Notifier
	now             func() time.Time
}

func NewLedgerService(
	customerRepo CustomerRepository,
	transactionRepo TransactionRepository,
	settings SettingsProvider,
	policy EligibilityPolicy,
	locker Locker,
	notifier Notifier,
) *LedgerService {
	if policy == nil {
		policy = AllowListPolicy{}
	}
	return &LedgerService{
		customerRepo:    customerRepo,
		transactionRepo: transactionRepo,
		settings:        settings,
		policy:          policy,
		locker:          locker,
		notifier:        notifier,
		now:             time.Now,
	}
}

// CalculateCashback returns amount * percentage / 100 rounded to cents, or
// zero when the purchase is not eligible.
func CalculateCashback(amount, percentage decimal.Decimal, eligible bool) decimal.Decimal {
	if !eligible {
		return decimal.Zero
	}
	return model.RoundMoney(amount.Mul(percentage).Div(hundred))
}

func (s *LedgerService) RecordPurchase(ctx context.Context, req model.PurchaseRequest) (*model.LedgerEntry, error) {
	started := time.Now()
	entry, err := s.recordPurchase(ctx, req.Normalize())
	s.observe(opPurchase, started, err)
	return entry, err
}

func (s *LedgerService) recordPurchase(ctx context.Context, req model.PurchaseRequest) (*model.LedgerEntry, error) {
	if req.Phone == "" {
		return nil, newValidationError("phone", "is required")
	}
	if !req.Amount.IsPositive() {
		return nil, newValidationError("amount", "must be greater than zero")
	}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, classify("load settings", err)
	}

	eligible := s.policy.IsEligible(req.Category, settings)
	earned := CalculateCashback(req.Amount, settings.CashbackPercentage, eligible)

	unlock, err := s.locker.Lock(ctx, req.Phone)
	if err != nil {
		return nil, classify("lock customer", err)
	}
	defer unlock()

	var entry *model.LedgerEntry
	err = s.customerRepo.WithinTransaction(ctx, func(ctx context.Context) error {
		now := s.now().UTC()
		isNew := false

		customer, err := s.customerRepo.GetByPhoneForUpdate(ctx, req.Phone)
		switch {
		case errors.Is(err, repository.ErrCustomerNotFound):
			if req.Name == "" {
				return newValidationError("name", "is required for a new customer")
			}
			isNew = true
			customer = model.NewCustomer(req.Phone, req.Name, earned, now)
		case err != nil:
			return fmt.Errorf("load customer: %w", err)
		default:
			customer.Accrue(earned, now)
		}

		if err := customer.CheckBalances(); err != nil {
			return err
		}

		if isNew {
			err = s.customerRepo.Insert(ctx, customer)
		} else {
			err = s.customerRepo.UpdateBalances(ctx, customer)
		}
		if err != nil {
			return fmt.Errorf("save customer: %w", err)
		}

		txn, err := s.transactionRepo.Create(ctx, &model.Transaction{
			ID:             uuid.NewString(),
			Phone:          req.Phone,
			Amount:         req.Amount,
			CashbackEarned: earned,
			Type:           model.TransactionTypePurchase,
			Category:       optional(req.Category),
			Description:    purchaseDescription(req),
			Timestamp:      now,
		})
		if err != nil {
			return fmt.Errorf("append transaction: %w", err)
		}

		entry = &model.LedgerEntry{Customer: customer, Transaction: txn, NewCustomer: isNew}
		return nil
	})
	if err != nil {
		return nil, classify("record purchase", err)
	}

	logger.Info("purchase recorded",
		"phone", req.Phone,
		"amount", req.Amount.StringFixed(2),
		"cashback", earned.StringFixed(2),
		"eligible", eligible,
		"new_customer", entry.NewCustomer)
	prom.AddPurchase(eligible, earned.InexactFloat64())

	if entry.NewCustomer {
		s.notify(ctx, entry.Customer, model.NotificationWelcome, decimal.Zero)
	}
	if earned.IsPositive() {
		s.notify(ctx, entry.Customer, model.NotificationEarned, earned)
	}

	return entry, nil
}

// Redeem spends req.Amount of the customer's available cashback, or all of it
// when req.All is set.
func (s *LedgerService) Redeem(ctx context.Context, req model.RedemptionRequest) (*model.LedgerEntry, error) {
	started := time.Now()
	op := opRedeem
	if req.All {
		op = opRedeemAll
	}
	entry, err := s.redeem(ctx, req.Normalize())
	s.observe(op, started, err)
	return entry, err
}

// RedeemAll spends the customer's whole available balance.
func (s *LedgerService) RedeemAll(ctx context.Context, phone string) (*model.LedgerEntry, error) {
	return s.Redeem(ctx, model.RedemptionRequest{Phone: phone, All: true})
}

func (s *LedgerService) redeem(ctx context.Context, req model.RedemptionRequest) (*model.LedgerEntry, error) {
	if req.Phone == "" {
		return nil, newValidationError("phone", "is required")
	}
	if !req.All && !req.Amount.IsPositive() {
		return nil, newValidationError("amount", "must be greater than zero")
	}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, classify("load settings", err)
	}
	if !req.All && req.Amount.LessThan(settings.MinimumRedemption) {
		return nil, belowMinimum(settings.MinimumRedemption)
	}

	unlock, err := s.locker.Lock(ctx, req.Phone)
	if err != nil {
		return nil, classify("lock customer", err)
	}
	defer unlock()

	var entry *model.LedgerEntry
	err = s.customerRepo.WithinTransaction(ctx, func(ctx context.Context) error {
		customer, err := s.customerRepo.GetByPhoneForUpdate(ctx, req.Phone)
		if errors.Is(err, repository.ErrCustomerNotFound) {
			return &NotFoundError{Phone: req.Phone}
		}
		if err != nil {
			return fmt.Errorf("load customer: %w", err)
		}

		amount := req.Amount
		if req.All {
			amount = customer.AvailableCashback
			if !amount.IsPositive() {
				return newValidationError("amount", "no cashback available")
			}
			if amount.LessThan(settings.MinimumRedemption) {
				return belowMinimum(settings.MinimumRedemption)
			}
		}

		if !customer.CanRedeem(amount) {
			return &InsufficientBalanceError{
				Phone:     req.Phone,
				Available: customer.AvailableCashback,
				Requested: amount,
			}
		}

		now := s.now().UTC()
		customer.Redeem(amount, now)
		if err := customer.CheckBalances(); err != nil {
			return err
		}
		if err := s.customerRepo.UpdateBalances(ctx, customer); err != nil {
			return fmt.Errorf("save customer: %w", err)
		}

		description := req.Description
		if description == "" {
			description = "Cashback redemption - R$ " + amount.StringFixed(2)
		}
		txn, err := s.transactionRepo.Create(ctx, &model.Transaction{
			ID:             uuid.NewString(),
			Phone:          req.Phone,
			Amount:         amount,
			CashbackEarned: amount.Neg(),
			Type:           model.TransactionTypeRedemption,
			Description:    description,
			Timestamp:      now,
		})
		if err != nil {
			return fmt.Errorf("append transaction: %w", err)
		}

		entry = &model.LedgerEntry{Customer: customer, Transaction: txn}
		return nil
	})
	if err != nil {
		return nil, classify("redeem cashback", err)
	}

	logger.Info("cashback redeemed",
		"phone", req.Phone,
		"amount", entry.Transaction.Amount.StringFixed(2),
		"available", entry.Customer.AvailableCashback.StringFixed(2))
	prom.AddRedemption(entry.Transaction.Amount.InexactFloat64())

	s.notify(ctx, entry.Customer, model.NotificationRedeemed, entry.Transaction.Amount)

	return entry, nil
}

func (s *LedgerService) GetCustomerByPhone(ctx context.Context, phone string) (*model.Customer, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, newValidationError("phone", "is required")
	}

	customer, err := s.customerRepo.GetByPhone(ctx, phone)
	if errors.Is(err, repository.ErrCustomerNotFound) {
		return nil, &NotFoundError{Phone: phone}
	}
	if err != nil {
		return nil, classify("load customer", err)
	}
	return customer, nil
}

func (s *LedgerService) ListCustomers(ctx context.Context) ([]*model.Customer, error) {
	customers, err := s.customerRepo.List(ctx)
	if err != nil {
		return nil, classify("list customers", err)
	}
	return customers, nil
}

// GetTransactions returns the newest transactions first. limit <= 0 returns all.
func (s *LedgerService) GetTransactions(ctx context.Context, limit int) ([]*model.Transaction, error) {
	txns, err := s.transactionRepo.List(ctx, model.TransactionFilter{Limit: limit})
	if err != nil {
		return nil, classify("list transactions", err)
	}
	return txns, nil
}

func (s *LedgerService) GetTransactionsByPhone(ctx context.Context, phone string) ([]*model.Transaction, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, newValidationError("phone", "is required")
	}

	txns, err := s.transactionRepo.List(ctx, model.TransactionFilter{Phone: &phone})
	if err != nil {
		return nil, classify("list transactions", err)
	}
	return txns, nil
}

func (s *LedgerService) GetAggregateStats(ctx context.Context) (*model.Stats, error) {
	stats, err := s.transactionRepo.Stats(ctx)
	if err != nil {
		return nil, classify("aggregate stats", err)
	}
	return stats, nil
}

func (s *LedgerService) notify(ctx context.Context, c *model.Customer, kind model.NotificationKind, amount decimal.Decimal) {
	if s.notifier == nil {
		return
	}

	n := model.Notification{
		ID:        uuid.NewString(),
		Phone:     c.Phone,
		Name:      c.Name,
		Kind:      kind,
		Amount:    amount,
		CreatedAt: s.now().UTC(),
	}
	// the ledger change is already committed
	if err := s.notifier.Notify(context.WithoutCancel(ctx), n); err != nil {
		logger.Warn("failed to dispatch notification", "phone", c.Phone, "kind", kind, "error", err)
		prom.AddNotificationDispatched(string(kind), "failed")
		return
	}
	prom.AddNotificationDispatched(string(kind), "queued")
}

func (s *LedgerService) observe(op string, started time.Time, err error) {
	prom.AddOperationDuration(op, time.Since(started).Seconds())
	if err == nil {
		return
	}

	kind := "persistence"
	switch {
	case errors.Is(err, ErrValidation):
		kind = "validation"
	case errors.Is(err, ErrNotFound):
		kind = "not_found"
	case errors.Is(err, ErrInsufficientBalance):
		kind = "insufficient_balance"
	}
	prom.AddLedgerError(op, kind)

	if kind == "persistence" {
		logger.Error("ledger operation failed", "operation", op, "error", err)
	}
}

func belowMinimum(minimum decimal.Decimal) *ValidationError {
	return newValidationError("amount", "minimum redemption is R$ "+minimum.StringFixed(2))
}

func purchaseDescription(req model.PurchaseRequest) string {
	if req.Description != "" {
		return req.Description
	}
	if req.Category != "" {
		return "Purchase of " + req.Category + " - R$ " + req.Amount.StringFixed(2)
	}
	return "Purchase - R$ " + req.Amount.StringFixed(2)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
