package repository

import (
	"context"

	"github.com/samueldng/cash-back-phone-link/internal/model"
	"github.com/samueldng/cash-back-phone-link/pkg/pg"
	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"
)

// statsQuery reads all aggregates in one statement so they share a snapshot.
const statsQuery = `
SELECT
	(SELECT COUNT(*) FROM customers) AS total_customers,
	COALESCE(SUM(CASE WHEN type = 'purchase' THEN amount ELSE 0 END), 0) AS total_sales,
	COALESCE(SUM(CASE WHEN type = 'purchase' THEN cashback_earned ELSE 0 END), 0) AS total_cashback_given,
	COALESCE(SUM(CASE WHEN type = 'redemption' THEN amount ELSE 0 END), 0) AS total_cashback_redeemed
FROM transactions`

type TransactionRepository struct {
	*pg.DB
}

func NewTransactionRepository(db *pg.DB) *TransactionRepository {
	return &TransactionRepository{
		db,
	}
}

func (r *TransactionRepository) Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	entity := toTransactionEntity(txn)

	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toTransactionModel(entity), nil
}

// List returns transactions newest first.
func (r *TransactionRepository) List(ctx context.Context, filter model.TransactionFilter) ([]*model.Transaction, error) {
	q := r.Read(ctx).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}, Desc: true})

	if filter.Phone != nil {
		q = q.Where("phone = ?", *filter.Phone)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var entities []*TransactionEntity
	if err := q.Find(&entities).Error; err != nil {
		return nil, err
	}

	return toTransactionModels(entities), nil
}

type statsRow struct {
	TotalCustomers        int64
	TotalSales            decimal.Decimal
	TotalCashbackGiven    decimal.Decimal
	TotalCashbackRedeemed decimal.Decimal
}

func (r *TransactionRepository) Stats(ctx context.Context) (*model.Stats, error) {
	var row statsRow
	if err := r.Read(ctx).Raw(statsQuery).Scan(&row).Error; err != nil {
		return nil, err
	}

	return &model.Stats{
		TotalCustomers:        row.TotalCustomers,
		TotalSales:            model.RoundMoney(row.TotalSales),
		TotalCashbackGiven:    model.RoundMoney(row.TotalCashbackGiven),
		TotalCashbackRedeemed: model.RoundMoney(row.TotalCashbackRedeemed),
	}, nil
}
