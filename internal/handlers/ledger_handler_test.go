package handlers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/samueldng/cash-back-phone-link/internal/model"
	"github.com/samueldng/cash-back-phone-link/internal/services"
	xhttp "github.com/samueldng/cash-back-phone-link/pkg/http"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

type MockLedgerService struct {
	mock.Mock
}

func (m *MockLedgerService) RecordPurchase(ctx context.Context, req model.PurchaseRequest) (*model.LedgerEntry, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.LedgerEntry), args.Error(1)
}

func (m *MockLedgerService) Redeem(ctx context.Context, req model.RedemptionRequest) (*model.LedgerEntry, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.LedgerEntry), args.Error(1)
}

func (m *MockLedgerService) GetCustomerByPhone(ctx context.Context, phone string) (*model.Customer, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Customer), args.Error(1)
}

func (m *MockLedgerService) ListCustomers(ctx context.Context) ([]*model.Customer, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Customer), args.Error(1)
}

func (m *MockLedgerService) GetTransactions(ctx context.Context, limit int) ([]*model.Transaction, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Transaction), args.Error(1)
}

func (m *MockLedgerService) GetTransactionsByPhone(ctx context.Context, phone string) ([]*model.Transaction, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Transaction), args.Error(1)
}

func (m *MockLedgerService) GetAggregateStats(ctx context.Context) (*model.Stats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Stats), args.Error(1)
}

func setupTestContext(method, path string, body []byte) *xhttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	if body != nil {
		ctx.Request.SetBody(body)
	}
	return ctx
}

func sampleEntry() *model.LedgerEntry {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	return &model.LedgerEntry{
		Customer: model.NewCustomer("11999990000", "Ana", decimal.RequireFromString("5.00"), now),
		Transaction: &model.Transaction{
			ID:             "txn-1",
			Phone:          "11999990000",
			Amount:         decimal.RequireFromString("100.00"),
			CashbackEarned: decimal.RequireFromString("5.00"),
			Type:           model.TransactionTypePurchase,
			Timestamp:      now,
		},
		NewCustomer: true,
	}
}

func TestLedgerHandler_RecordPurchase(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		svc := new(MockLedgerService)
		handler := NewLedgerHandler(svc)

		svc.On("RecordPurchase", mock.Anything, mock.MatchedBy(func(r model.PurchaseRequest) bool {
			return r.Phone == "11999990000" && r.Amount.Equal(decimal.NewFromInt(100)) && r.Category == "acessorios"
		})).Return(sampleEntry(), nil)

		ctx := setupTestContext("POST", "/api/v1/purchases",
			[]byte(`{"phone":"11999990000","name":"Ana","amount":100,"category":"acessorios"}`))
		handler.RecordPurchase(ctx)

		assert.Equal(t, 201, ctx.Response.StatusCode())
		var resp model.LedgerEntry
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp))
		assert.True(t, resp.NewCustomer)
		assert.True(t, resp.Customer.AvailableCashback.Equal(decimal.NewFromInt(5)))
		svc.AssertExpectations(t)
	})

	t.Run("amount as string is accepted", func(t *testing.T) {
		svc := new(MockLedgerService)
		handler := NewLedgerHandler(svc)
		svc.On("RecordPurchase", mock.Anything, mock.MatchedBy(func(r model.PurchaseRequest) bool {
			return r.Amount.Equal(decimal.RequireFromString("49.90"))
		})).Return(sampleEntry(), nil)

		ctx := setupTestContext("POST", "/api/v1/purchases", []byte(`{"phone":"1","amount":"49.90"}`))
		handler.RecordPurchase(ctx)
		assert.Equal(t, 201, ctx.Response.StatusCode())
	})

	t.Run("invalid json", func(t *testing.T) {
		handler := NewLedgerHandler(new(MockLedgerService))
		ctx := setupTestContext("POST", "/api/v1/purchases", []byte(`{`))
		handler.RecordPurchase(ctx)
		assert.Equal(t, 400, ctx.Response.StatusCode())
	})

	t.Run("validation error", func(t *testing.T) {
		svc := new(MockLedgerService)
		handler := NewLedgerHandler(svc)
		svc.On("RecordPurchase", mock.Anything, mock.Anything).
			Return(nil, &services.ValidationError{Field: "amount", Reason: "must be greater than zero"})

		ctx := setupTestContext("POST", "/api/v1/purchases", []byte(`{"phone":"1","amount":0}`))
		handler.RecordPurchase(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
		assert.Contains(t, string(ctx.Response.Body()), "amount")
	})

	t.Run("persistence error hides details", func(t *testing.T) {
		svc := new(MockLedgerService)
		handler := NewLedgerHandler(svc)
		svc.On("RecordPurchase", mock.Anything, mock.Anything).
			Return(nil, &services.PersistenceError{Op: "record purchase", Err: assert.AnError})

		ctx := setupTestContext("POST", "/api/v1/purchases", []byte(`{"phone":"1","amount":10}`))
		handler.RecordPurchase(ctx)

		assert.Equal(t, 500, ctx.Response.StatusCode())
		assert.NotContains(t, string(ctx.Response.Body()), assert.AnError.Error())
	})
}

func TestLedgerHandler_Redeem(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"created", nil, 201},
		{"below minimum", &services.ValidationError{Field: "amount", Reason: "minimum redemption is R$ 15.00"}, 400},
		{"unknown customer", &services.NotFoundError{Phone: "1"}, 404},
		{"insufficient balance", &services.InsufficientBalanceError{Phone: "1", Available: decimal.NewFromInt(5), Requested: decimal.NewFromInt(20)}, 409},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockLedgerService)
			handler := NewLedgerHandler(svc)

			if tt.err != nil {
				svc.On("Redeem", mock.Anything, mock.Anything).Return(nil, tt.err)
			} else {
				svc.On("Redeem", mock.Anything, mock.Anything).Return(sampleEntry(), nil)
			}

			ctx := setupTestContext("POST", "/api/v1/redemptions", []byte(`{"phone":"1","amount":20}`))
			handler.Redeem(ctx)
			assert.Equal(t, tt.status, ctx.Response.StatusCode())
		})
	}

	t.Run("redeem all flag is forwarded", func(t *testing.T) {
		svc := new(MockLedgerService)
		handler := NewLedgerHandler(svc)
		svc.On("Redeem", mock.Anything, mock.MatchedBy(func(r model.RedemptionRequest) bool {
			return r.All && r.Phone == "1"
		})).Return(sampleEntry(), nil)

		ctx := setupTestContext("POST", "/api/v1/redemptions", []byte(`{"phone":"1","all":true}`))
		handler.Redeem(ctx)
		assert.Equal(t, 201, ctx.Response.StatusCode())
		svc.AssertExpectations(t)
	})
}

func TestLedgerHandler_Queries(t *testing.T) {
	t.Run("get customer", func(t *testing.T) {
		svc := new(MockLedgerService)
		handler := NewLedgerHandler(svc)
		svc.On("GetCustomerByPhone", mock.Anything, "11999990000").Return(sampleEntry().Customer, nil)

		ctx := setupTestContext("GET", "/api/v1/customers/11999990000", nil)
		ctx.SetUserValue("phone", "11999990000")
		handler.GetCustomer(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		assert.Contains(t, string(ctx.Response.Body()), `"name":"Ana"`)
	})

	t.Run("customer not found", func(t *testing.T) {
		svc := new(MockLedgerService)
		handler := NewLedgerHandler(svc)
		svc.On("GetCustomerByPhone", mock.Anything, "404").Return(nil, &services.NotFoundError{Phone: "404"})

		ctx := setupTestContext("GET", "/api/v1/customers/404", nil)
		ctx.SetUserValue("phone", "404")
		handler.GetCustomer(ctx)
		assert.Equal(t, 404, ctx.Response.StatusCode())
	})

	t.Run("list customers empty", func(t *testing.T) {
		svc := new(MockLedgerService)
		handler := NewLedgerHandler(svc)
		svc.On("ListCustomers", mock.Anything).Return([]*model.Customer(nil), nil)

		ctx := setupTestContext("GET", "/api/v1/customers", nil)
		handler.ListCustomers(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		assert.JSONEq(t, `{"items":[],"total":0}`, string(ctx.Response.Body()))
	})

	t.Run("transactions with limit", func(t *testing.T) {
		svc := new(MockLedgerService)
		handler := NewLedgerHandler(svc)
		svc.On("GetTransactions", mock.Anything, 10).Return([]*model.Transaction{sampleEntry().Transaction}, nil)

		ctx := setupTestContext("GET", "/api/v1/transactions?limit=10", nil)
		handler.ListTransactions(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		svc.AssertExpectations(t)
	})

	t.Run("transactions with bad limit", func(t *testing.T) {
		handler := NewLedgerHandler(new(MockLedgerService))
		ctx := setupTestContext("GET", "/api/v1/transactions?limit=abc", nil)
		handler.ListTransactions(ctx)
		assert.Equal(t, 400, ctx.Response.StatusCode())
	})

	t.Run("customer transactions", func(t *testing.T) {
		svc := new(MockLedgerService)
		handler := NewLedgerHandler(svc)
		svc.On("GetTransactionsByPhone", mock.Anything, "11999990000").Return([]*model.Transaction{sampleEntry().Transaction}, nil)

		ctx := setupTestContext("GET", "/api/v1/customers/11999990000/transactions", nil)
		ctx.SetUserValue("phone", "11999990000")
		handler.ListCustomerTransactions(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		assert.Contains(t, string(ctx.Response.Body()), `"total":1`)
	})

	t.Run("stats", func(t *testing.T) {
		svc := new(MockLedgerService)
		handler := NewLedgerHandler(svc)
		svc.On("GetAggregateStats", mock.Anything).Return(&model.Stats{
			TotalCustomers:        2,
			TotalSales:            decimal.NewFromInt(300),
			TotalCashbackGiven:    decimal.NewFromInt(15),
			TotalCashbackRedeemed: decimal.Zero,
		}, nil)

		ctx := setupTestContext("GET", "/api/v1/stats", nil)
		handler.GetStats(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		assert.Contains(t, string(ctx.Response.Body()), `"total_customers":2`)
	})
}
