package helpers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/samueldng/cash-back-phone-link/internal/model"
	"github.com/samueldng/cash-back-phone-link/internal/repository"
	"github.com/samueldng/cash-back-phone-link/pkg/pg"
	"github.com/samueldng/cash-back-phone-link/pkg/redis"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// SetupTestDB returns an in-memory sqlite ledger with the full schema.
func SetupTestDB(t *testing.T) *pg.DB {
	db, err := pg.OpenSQLite(":memory:", false)
	require.NoError(t, err)
	require.NoError(t, repository.AutoMigrate(db))
	return db
}

// SetupTestRedis starts a miniredis that is closed with the test. Adapters
// are cached by name, so each call registers a fresh one.
func SetupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	mr := miniredis.RunT(t)

	connName := fmt.Sprintf("test-%s-%d", t.Name(), time.Now().UnixNano())
	adapter, err := redis.NewRedisAdapter(connName, "", &redis.Options{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	return mr, adapter
}

func Money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// CreateTestCustomer inserts a customer whose balances already satisfy
// total = available + used.
func CreateTestCustomer(t *testing.T, db *pg.DB, phone, name string, available, used string) *model.Customer {
	now := time.Now().UTC()
	c := &model.Customer{
		Phone:             phone,
		Name:              name,
		AvailableCashback: Money(available),
		UsedCashback:      Money(used),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	c.TotalCashback = c.AvailableCashback.Add(c.UsedCashback)

	require.NoError(t, repository.NewCustomerRepository(db).Insert(context.Background(), c))
	return c
}

func CreateTestTransaction(t *testing.T, db *pg.DB, phone string, txnType model.TransactionType, amount, earned string) *model.Transaction {
	txn, err := repository.NewTransactionRepository(db).Create(context.Background(), &model.Transaction{
		ID:             uuid.NewString(),
		Phone:          phone,
		Amount:         Money(amount),
		CashbackEarned: Money(earned),
		Type:           txnType,
		Description:    string(txnType),
		Timestamp:      time.Now().UTC(),
	})
	require.NoError(t, err)
	return txn
}

func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func AssertEventually(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	if !WaitForCondition(t, timeout, condition) {
		t.Fatal(msg)
	}
}

func ContextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func Ptr[T any](v T) *T {
	return &v
}
