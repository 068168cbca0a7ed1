package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/samueldng/cash-back-phone-link/internal/model"
	"github.com/samueldng/cash-back-phone-link/internal/repository"
	"github.com/samueldng/cash-back-phone-link/pkg/lock"
	"github.com/samueldng/cash-back-phone-link/pkg/pg"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []model.Notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, note model.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
	return n.err
}

func (n *recordingNotifier) kinds() []model.NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []model.NotificationKind
	for _, s := range n.sent {
		out = append(out, s.Kind)
	}
	return out
}

type ledgerFixture struct {
	db           *pg.DB
	svc          *LedgerService
	settings     *SettingsService
	transactions *repository.TransactionRepository
	notifier     *recordingNotifier
}

func newLedgerFixture(t *testing.T, policy EligibilityPolicy) *ledgerFixture {
	db, err := pg.OpenSQLite(":memory:", false)
	require.NoError(t, err)
	require.NoError(t, repository.AutoMigrate(db))

	customers := repository.NewCustomerRepository(db)
	transactions := repository.NewTransactionRepository(db)
	settings := NewSettingsService(repository.NewSettingsRepository(db), DefaultSettings())
	notifier := &recordingNotifier{}

	return &ledgerFixture{
		db:           db,
		svc:          NewLedgerService(customers, transactions, settings, policy, lock.NewKeyedMutex(), notifier),
		settings:     settings,
		transactions: transactions,
		notifier:     notifier,
	}
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (f *ledgerFixture) txnCount(t *testing.T, phone string) int {
	txns, err := f.svc.GetTransactionsByPhone(context.Background(), phone)
	require.NoError(t, err)
	return len(txns)
}

// assertLedgerConsistent checks the balances against the transaction history.
func (f *ledgerFixture) assertLedgerConsistent(t *testing.T, phone string) {
	ctx := context.Background()
	c, err := f.svc.GetCustomerByPhone(ctx, phone)
	require.NoError(t, err)
	require.NoError(t, c.CheckBalances())

	txns, err := f.svc.GetTransactionsByPhone(ctx, phone)
	require.NoError(t, err)

	earned, redeemed := decimal.Zero, decimal.Zero
	for _, txn := range txns {
		switch txn.Type {
		case model.TransactionTypePurchase:
			earned = earned.Add(txn.CashbackEarned)
		case model.TransactionTypeRedemption:
			redeemed = redeemed.Add(txn.Amount)
		}
	}
	assert.True(t, c.TotalCashback.Equal(earned), "total %s earned %s", c.TotalCashback, earned)
	assert.True(t, c.AvailableCashback.Equal(earned.Sub(redeemed)), "available %s", c.AvailableCashback)
	assert.True(t, c.UsedCashback.Equal(redeemed), "used %s", c.UsedCashback)
}

func TestCalculateCashback(t *testing.T) {
	tests := []struct {
		amount, pct string
		eligible    bool
		want        string
	}{
		{"100.00", "5", true, "5"},
		{"100.00", "5", false, "0"},
		{"10.10", "5", true, "0.51"}, // 0.505 rounds half up
		{"33.33", "2.5", true, "0.83"},
		{"0.01", "5", true, "0"},
		{"200", "100", true, "200"},
	}
	for _, tt := range tests {
		got := CalculateCashback(money(tt.amount), money(tt.pct), tt.eligible)
		assert.True(t, got.Equal(money(tt.want)), "%s @ %s%% = %s, want %s", tt.amount, tt.pct, got, tt.want)
	}
}

func TestLedgerService_RecordPurchase(t *testing.T) {
	ctx := context.Background()

	t.Run("new customer earns five percent", func(t *testing.T) {
		f := newLedgerFixture(t, AllowListPolicy{})

		entry, err := f.svc.RecordPurchase(ctx, model.PurchaseRequest{
			Phone: " 11999990000 ", Name: "Ana", Amount: money("100.00"), Category: "acessorios",
		})
		require.NoError(t, err)

		assert.True(t, entry.NewCustomer)
		assert.Equal(t, "11999990000", entry.Customer.Phone)
		assert.True(t, entry.Customer.TotalCashback.Equal(money("5.00")))
		assert.True(t, entry.Customer.AvailableCashback.Equal(money("5.00")))
		assert.True(t, entry.Customer.UsedCashback.IsZero())

		assert.Equal(t, model.TransactionTypePurchase, entry.Transaction.Type)
		assert.True(t, entry.Transaction.CashbackEarned.Equal(money("5.00")))
		assert.Equal(t, "Purchase of acessorios - R$ 100.00", entry.Transaction.Description)
		require.NotNil(t, entry.Transaction.Category)
		assert.Equal(t, "acessorios", *entry.Transaction.Category)
		assert.NotEmpty(t, entry.Transaction.ID)

		assert.Equal(t, 1, f.txnCount(t, "11999990000"))
		assert.Equal(t, []model.NotificationKind{model.NotificationWelcome, model.NotificationEarned}, f.notifier.kinds())
		f.assertLedgerConsistent(t, "11999990000")
	})

	t.Run("ineligible category earns nothing but is recorded", func(t *testing.T) {
		f := newLedgerFixture(t, AllowListPolicy{})

		entry, err := f.svc.RecordPurchase(ctx, model.PurchaseRequest{
			Phone: "1", Name: "Bia", Amount: money("80"), Category: "roupas",
		})
		require.NoError(t, err)

		assert.True(t, entry.Transaction.CashbackEarned.IsZero())
		assert.True(t, entry.Customer.TotalCashback.IsZero())
		assert.Equal(t, 1, f.txnCount(t, "1"))
		assert.Equal(t, []model.NotificationKind{model.NotificationWelcome}, f.notifier.kinds())
	})

	t.Run("all purchases policy ignores category", func(t *testing.T) {
		f := newLedgerFixture(t, AllPurchasesPolicy{})

		entry, err := f.svc.RecordPurchase(ctx, model.PurchaseRequest{Phone: "1", Name: "Bia", Amount: money("80")})
		require.NoError(t, err)
		assert.True(t, entry.Transaction.CashbackEarned.Equal(money("4")))
		assert.Nil(t, entry.Transaction.Category)
		assert.Equal(t, "Purchase - R$ 80.00", entry.Transaction.Description)
	})

	t.Run("existing customer accrues and keeps name", func(t *testing.T) {
		f := newLedgerFixture(t, AllowListPolicy{})

		_, err := f.svc.RecordPurchase(ctx, model.PurchaseRequest{Phone: "1", Name: "Ana", Amount: money("100"), Category: "acessorios"})
		require.NoError(t, err)
		entry, err := f.svc.RecordPurchase(ctx, model.PurchaseRequest{Phone: "1", Amount: money("50"), Category: "acessorios", Description: "mesa"})
		require.NoError(t, err)

		assert.False(t, entry.NewCustomer)
		assert.Equal(t, "Ana", entry.Customer.Name)
		assert.True(t, entry.Customer.TotalCashback.Equal(money("7.5")))
		assert.Equal(t, "mesa", entry.Transaction.Description)
		f.assertLedgerConsistent(t, "1")
	})

	t.Run("settings changes apply to the next purchase", func(t *testing.T) {
		f := newLedgerFixture(t, AllowListPolicy{})

		_, err := f.settings.Update(ctx, model.Settings{
			CashbackPercentage: money("10"),
			MinimumRedemption:  money("15"),
			EligibleCategories: []string{"roupas"},
		})
		require.NoError(t, err)

		entry, err := f.svc.RecordPurchase(ctx, model.PurchaseRequest{Phone: "1", Name: "Ana", Amount: money("80"), Category: "roupas"})
		require.NoError(t, err)
		assert.True(t, entry.Transaction.CashbackEarned.Equal(money("8")))
	})

	t.Run("validation", func(t *testing.T) {
		f := newLedgerFixture(t, AllowListPolicy{})

		cases := map[string]model.PurchaseRequest{
			"empty phone":           {Phone: "  ", Name: "Ana", Amount: money("10")},
			"zero amount":           {Phone: "1", Name: "Ana", Amount: decimal.Zero},
			"negative amount":       {Phone: "1", Name: "Ana", Amount: money("-1")},
			"rounds to zero":        {Phone: "1", Name: "Ana", Amount: money("0.004")},
			"new customer, no name": {Phone: "1", Amount: money("10")},
		}
		for name, req := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := f.svc.RecordPurchase(ctx, req)
				assert.ErrorIs(t, err, ErrValidation)
			})
		}

		_, err := f.svc.GetCustomerByPhone(ctx, "1")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, 0, f.txnCount(t, "1"))
		assert.Empty(t, f.notifier.kinds())
	})

	t.Run("notification failure does not fail the purchase", func(t *testing.T) {
		f := newLedgerFixture(t, AllowListPolicy{})
		f.notifier.err = assert.AnError

		entry, err := f.svc.RecordPurchase(ctx, model.PurchaseRequest{Phone: "1", Name: "Ana", Amount: money("100"), Category: "acessorios"})
		require.NoError(t, err)
		assert.True(t, entry.Customer.AvailableCashback.Equal(money("5")))
		assert.Len(t, f.notifier.kinds(), 2)
	})

	t.Run("concurrent purchases lose no update", func(t *testing.T) {
		f := newLedgerFixture(t, AllowListPolicy{})
		_, err := f.svc.RecordPurchase(ctx, model.PurchaseRequest{Phone: "1", Name: "Ana", Amount: money("100"), Category: "acessorios"})
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.svc.RecordPurchase(ctx, model.PurchaseRequest{Phone: "1", Amount: money("20"), Category: "acessorios"})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		c, err := f.svc.GetCustomerByPhone(ctx, "1")
		require.NoError(t, err)
		assert.True(t, c.TotalCashback.Equal(money("25")), c.TotalCashback.String())
		assert.Equal(t, 21, f.txnCount(t, "1"))
		f.assertLedgerConsistent(t, "1")
	})

	t.Run("concurrent first purchases create one customer", func(t *testing.T) {
		f := newLedgerFixture(t, AllowListPolicy{})

		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.svc.RecordPurchase(ctx, model.PurchaseRequest{Phone: "new", Name: "N", Amount: money("100"), Category: "acessorios"})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		c, err := f.svc.GetCustomerByPhone(ctx, "new")
		require.NoError(t, err)
		assert.True(t, c.TotalCashback.Equal(money("25")))
		customers, err := f.svc.ListCustomers(ctx)
		require.NoError(t, err)
		assert.Len(t, customers, 1)
	})
}

func TestLedgerService_Redeem(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, f *ledgerFixture, amount string) {
		_, err := f.svc.RecordPurchase(ctx, model.PurchaseRequest{Phone: "1", Name: "Ana", Amount: money(amount), Category: "acessorios"})
		require.NoError(t, err)
	}

	t.Run("redeems and records negative cashback", func(t *testing.T) {
		f := newLedgerFixture(t, AllowListPolicy{})
		seed(t, f, "400") // 20.00 available

		entry, err := f.svc.Redeem(ctx, model.RedemptionRequest{Phone: "1", Amount: money("15")})
		require.NoError(t, err)

		assert.True(t, entry.Customer.AvailableCashback.Equal(money("5")))
		assert.True(t, entry.Customer.UsedCashback.Equal(money("15")))
		assert.True(t, entry.Customer.TotalCashback.Equal(money("20")))
		assert.Equal(t, model.TransactionTypeRedemption, entry.Transaction.Type)
		assert.True(t, entry.Transaction.CashbackEarned.Equal(money("-15")))
		assert.Nil(t, entry.Transaction.Category)
		assert.Equal(t, "Cashback redemption - R$ 15.00", entry.Transaction.Description)
		assert.Contains(t, f.notifier.kinds(), model.NotificationRedeemed)
		f.assertLedgerConsistent(t, "1")
	})

	t.Run("below minimum", func(t *testing.T) {
		f := newLedgerFixture(t, AllowListPolicy{})
		seed(t, f, "400")

		_, err := f.svc.Redeem(ctx, model.RedemptionRequest{Phone: "1", Amount: money("10")})
		assert.ErrorIs(t, err, ErrValidation)
		assert.Equal(t, 1, f.txnCount(t, "1"))
	})

	t.Run("minimum is checked before the customer exists", func(t *testing.T) {
		f := newLedgerFixture(t, AllowListPolicy{})
		_, err := f.svc.Redeem(ctx, model.RedemptionRequest{Phone: "ghost", Amount: money("1")})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("insufficient balance", func(t *testing.T) {
		f := newLedgerFixture(t, AllowListPolicy{})
		seed(t, f, "400")

		_, err := f.svc.Redeem(ctx, model.RedemptionRequest{Phone: "1", Amount: money("20.01")})
		assert.ErrorIs(t, err, ErrInsufficientBalance)

		var ibe *InsufficientBalanceError
		require.ErrorAs(t, err, &ibe)
		assert.True(t, ibe.Available.Equal(money("20")))

		c, err := f.svc.GetCustomerByPhone(ctx, "1")
		require.NoError(t, err)
		assert.True(t, c.AvailableCashback.Equal(money("20")))
		assert.Equal(t, 1, f.txnCount(t, "1"))
	})

	t.Run("unknown customer", func(t *testing.T) {
		f := newLedgerFixture(t, AllowListPolicy{})
		_, err := f.svc.Redeem(ctx, model.RedemptionRequest{Phone: "ghost", Amount: money("20")})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("non positive amount", func(t *testing.T) {
		f := newLedgerFixture(t, AllowListPolicy{})
		_, err := f.svc.Redeem(ctx, model.RedemptionRequest{Phone: "1", Amount: decimal.Zero})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("redeem all", func(t *testing.T) {
		f := newLedgerFixture(t, AllowListPolicy{})
		seed(t, f, "333.33") // 16.67 available

		entry, err := f.svc.RedeemAll(ctx, "1")
		require.NoError(t, err)
		assert.True(t, entry.Transaction.Amount.Equal(money("16.67")))
		assert.True(t, entry.Customer.AvailableCashback.IsZero())

		_, err = f.svc.RedeemAll(ctx, "1")
		assert.ErrorIs(t, err, ErrValidation)
		f.assertLedgerConsistent(t, "1")
	})

	t.Run("redeem all below minimum", func(t *testing.T) {
		f := newLedgerFixture(t, AllowListPolicy{})
		seed(t, f, "100") // 5.00 available

		_, err := f.svc.RedeemAll(ctx, "1")
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("concurrent redemptions never overdraw", func(t *testing.T) {
		f := newLedgerFixture(t, AllowListPolicy{})
		seed(t, f, "1000") // 50.00 available

		var wg sync.WaitGroup
		var mu sync.Mutex
		ok, insufficient := 0, 0
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.svc.Redeem(ctx, model.RedemptionRequest{Phone: "1", Amount: money("20")})
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					ok++
				} else if assert.ErrorIs(t, err, ErrInsufficientBalance) {
					insufficient++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 2, ok)
		assert.Equal(t, 3, insufficient)
		f.assertLedgerConsistent(t, "1")
	})
}

func TestLedgerService_Stats(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t, AllowListPolicy{})

	_, err := f.svc.RecordPurchase(ctx, model.PurchaseRequest{Phone: "1", Name: "A", Amount: money("400"), Category: "acessorios"})
	require.NoError(t, err)
	_, err = f.svc.RecordPurchase(ctx, model.PurchaseRequest{Phone: "2", Name: "B", Amount: money("50"), Category: "roupas"})
	require.NoError(t, err)
	_, err = f.svc.Redeem(ctx, model.RedemptionRequest{Phone: "1", Amount: money("15")})
	require.NoError(t, err)

	stats, err := f.svc.GetAggregateStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalCustomers)
	assert.True(t, stats.TotalSales.Equal(money("450")))
	assert.True(t, stats.TotalCashbackGiven.Equal(money("20")))
	assert.True(t, stats.TotalCashbackRedeemed.Equal(money("15")))

	latest, err := f.svc.GetTransactions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, model.TransactionTypeRedemption, latest[0].Type)
}

type MockCustomerRepository struct {
	mock.Mock
}

func (m *MockCustomerRepository) GetByPhone(ctx context.Context, phone string) (*model.Customer, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Customer), args.Error(1)
}

func (m *MockCustomerRepository) GetByPhoneForUpdate(ctx context.Context, phone string) (*model.Customer, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Customer), args.Error(1)
}

func (m *MockCustomerRepository) Insert(ctx context.Context, c *model.Customer) error {
	return m.Called(ctx, c).Error(0)
}

func (m *MockCustomerRepository) UpdateBalances(ctx context.Context, c *model.Customer) error {
	return m.Called(ctx, c).Error(0)
}

func (m *MockCustomerRepository) List(ctx context.Context) ([]*model.Customer, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Customer), args.Error(1)
}

func (m *MockCustomerRepository) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	args := m.Called(ctx)
	if args.Error(0) != nil {
		return args.Error(0)
	}
	return fn(ctx)
}

type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	args := m.Called(ctx, txn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) List(ctx context.Context, f model.TransactionFilter) ([]*model.Transaction, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) Stats(ctx context.Context) (*model.Stats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Stats), args.Error(1)
}

type staticSettings struct{ s model.Settings }

func (s staticSettings) Get(context.Context) (*model.Settings, error) {
	c := s.s
	return &c, nil
}

func TestLedgerService_PersistenceFailures(t *testing.T) {
	ctx := context.Background()
	existing := model.NewCustomer("1", "Ana", money("20"), time.Now().UTC())

	t.Run("transaction append failure surfaces as persistence error", func(t *testing.T) {
		customers := new(MockCustomerRepository)
		txns := new(MockTransactionRepository)
		notifier := &recordingNotifier{}
		svc := NewLedgerService(customers, txns, staticSettings{DefaultSettings()}, AllowListPolicy{}, lock.NewKeyedMutex(), notifier)

		customers.On("WithinTransaction", mock.Anything).Return(nil)
		customers.On("GetByPhoneForUpdate", mock.Anything, "1").Return(existing, nil)
		customers.On("UpdateBalances", mock.Anything, mock.Anything).Return(nil)
		txns.On("Create", mock.Anything, mock.Anything).Return(nil, assert.AnError)

		_, err := svc.RecordPurchase(ctx, model.PurchaseRequest{Phone: "1", Amount: money("10"), Category: "acessorios"})
		assert.ErrorIs(t, err, ErrPersistence)
		assert.ErrorIs(t, err, assert.AnError)
		assert.Empty(t, notifier.kinds())
	})

	t.Run("begin failure", func(t *testing.T) {
		customers := new(MockCustomerRepository)
		svc := NewLedgerService(customers, new(MockTransactionRepository), staticSettings{DefaultSettings()}, AllowListPolicy{}, lock.NewKeyedMutex(), nil)
		customers.On("WithinTransaction", mock.Anything).Return(assert.AnError)

		_, err := svc.Redeem(ctx, model.RedemptionRequest{Phone: "1", Amount: money("15")})
		assert.ErrorIs(t, err, ErrPersistence)
	})

	t.Run("query failures", func(t *testing.T) {
		customers := new(MockCustomerRepository)
		txns := new(MockTransactionRepository)
		svc := NewLedgerService(customers, txns, staticSettings{DefaultSettings()}, nil, lock.NewKeyedMutex(), nil)
		customers.On("GetByPhone", mock.Anything, "1").Return(nil, assert.AnError)
		customers.On("List", mock.Anything).Return(nil, assert.AnError)
		txns.On("Stats", mock.Anything).Return(nil, assert.AnError)

		_, err := svc.GetCustomerByPhone(ctx, "1")
		assert.ErrorIs(t, err, ErrPersistence)
		_, err = svc.ListCustomers(ctx)
		assert.ErrorIs(t, err, ErrPersistence)
		_, err = svc.GetAggregateStats(ctx)
		assert.ErrorIs(t, err, ErrPersistence)
	})
}
