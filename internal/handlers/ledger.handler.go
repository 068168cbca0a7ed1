package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/samueldng/cash-back-phone-link/internal/model"
	xhttp "github.com/samueldng/cash-back-phone-link/pkg/http"
)

type LedgerService interface {
	RecordPurchase(ctx context.Context, req model.PurchaseRequest) (*model.LedgerEntry, error)
	Redeem(ctx context.Context, req model.RedemptionRequest) (*model.LedgerEntry, error)
	GetCustomerByPhone(ctx context.Context, phone string) (*model.Customer, error)
	ListCustomers(ctx context.Context) ([]*model.Customer, error)
	GetTransactions(ctx context.Context, limit int) ([]*model.Transaction, error)
	GetTransactionsByPhone(ctx context.Context, phone string) ([]*model.Transaction, error)
	GetAggregateStats(ctx context.Context) (*model.Stats, error)
}

type LedgerHandler struct {
	svc LedgerService
}

func RegisterLedgerRoutes(e *router.Group, h *LedgerHandler) {
	e.POST("/purchases", h.RecordPurchase)
	e.POST("/redemptions", h.Redeem)
	e.GET("/customers", h.ListCustomers)
	e.GET("/customers/{phone}", h.GetCustomer)
	e.GET("/customers/{phone}/transactions", h.ListCustomerTransactions)
	e.GET("/transactions", h.ListTransactions)
	e.GET("/stats", h.GetStats)
}

func NewLedgerHandler(svc LedgerService) *LedgerHandler {
	return &LedgerHandler{
		svc: svc,
	}
}

type itemsResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

func newItemsResponse[T any](items []T) itemsResponse[T] {
	if items == nil {
		items = []T{}
	}
	return itemsResponse[T]{Items: items, Total: len(items)}
}

func (h *LedgerHandler) RecordPurchase(ctx *xhttp.RequestCtx) {
	var req model.PurchaseRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	entry, err := h.svc.RecordPurchase(ctx, req)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, entry)
}

func (h *LedgerHandler) Redeem(ctx *xhttp.RequestCtx) {
	var req model.RedemptionRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	entry, err := h.svc.Redeem(ctx, req)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, entry)
}

func (h *LedgerHandler) ListCustomers(ctx *xhttp.RequestCtx) {
	customers, err := h.svc.ListCustomers(ctx)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, newItemsResponse(customers))
}

func (h *LedgerHandler) GetCustomer(ctx *xhttp.RequestCtx) {
	customer, err := h.svc.GetCustomerByPhone(ctx, pathParam(ctx, "phone"))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, customer)
}

func (h *LedgerHandler) ListCustomerTransactions(ctx *xhttp.RequestCtx) {
	txns, err := h.svc.GetTransactionsByPhone(ctx, pathParam(ctx, "phone"))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, newItemsResponse(txns))
}

func (h *LedgerHandler) ListTransactions(ctx *xhttp.RequestCtx) {
	limit, err := queryInt(ctx, "limit")
	if err != nil || limit < 0 {
		writeError(ctx, xhttp.StatusBadRequest, "limit must be a non-negative integer")
		return
	}

	txns, err := h.svc.GetTransactions(ctx, limit)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, newItemsResponse(txns))
}

func (h *LedgerHandler) GetStats(ctx *xhttp.RequestCtx) {
	stats, err := h.svc.GetAggregateStats(ctx)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, stats)
}
