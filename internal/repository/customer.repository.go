package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samueldng/cash-back-phone-link/internal/model"
	"github.com/samueldng/cash-back-phone-link/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrCustomerNotFound   = errors.New("customer not found")
	ErrConcurrentUpdate   = errors.New("concurrent update detected")
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

type CustomerRepository struct {
	*pg.DB
}

func NewCustomerRepository(db *pg.DB) *CustomerRepository {
	return &CustomerRepository{
		db,
	}
}

// WithinTransaction runs fn in a write transaction and retries the whole
// transaction when it lost an insert race on the same phone.
func (r *CustomerRepository) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	const maxRetries = 3
	const baseDelay = 2 * time.Millisecond

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := r.DB.WithinTransaction(ctx, fn)
		if !errors.Is(err, ErrConcurrentUpdate) {
			return err
		}

		if attempt < maxRetries {
			delay := baseDelay * time.Duration(1<<attempt) // 2ms, 4ms, 8ms
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return fmt.Errorf("%w: failed after %d attempts", ErrMaxRetriesExceeded, maxRetries+1)
}

func (r *CustomerRepository) GetByPhone(ctx context.Context, phone string) (*model.Customer, error) {
	var entity CustomerEntity
	err := r.Read(ctx).
		Where("phone = ?", phone).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, err
	}

	return toCustomerModel(&entity), nil
}

// GetByPhoneForUpdate loads the customer row under SELECT ... FOR UPDATE.
// It must be called inside WithinTransaction for the lock to be held.
func (r *CustomerRepository) GetByPhoneForUpdate(ctx context.Context, phone string) (*model.Customer, error) {
	var entity CustomerEntity
	err := r.Write(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("phone = ?", phone).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, err
	}

	return toCustomerModel(&entity), nil
}

// Insert creates a customer. A row that appeared for the same phone since it
// was last read yields ErrConcurrentUpdate.
func (r *CustomerRepository) Insert(ctx context.Context, customer *model.Customer) error {
	entity := toCustomerEntity(customer)

	result := r.Write(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "phone"}}, DoNothing: true}).
		Create(entity)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConcurrentUpdate
	}

	return nil
}

// UpdateBalances writes the three balances of an existing customer.
// Name and created_at are left untouched.
func (r *CustomerRepository) UpdateBalances(ctx context.Context, customer *model.Customer) error {
	result := r.Write(ctx).
		Model(&CustomerEntity{}).
		Where("phone = ?", customer.Phone).
		Updates(map[string]interface{}{
			"total_cashback":     customer.TotalCashback,
			"available_cashback": customer.AvailableCashback,
			"used_cashback":      customer.UsedCashback,
			"updated_at":         customer.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCustomerNotFound
	}

	return nil
}

// List returns every customer, newest first.
func (r *CustomerRepository) List(ctx context.Context) ([]*model.Customer, error) {
	var entities []*CustomerEntity
	err := r.Read(ctx).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "created_at"}, Desc: true}).
		Find(&entities).
		Error
	if err != nil {
		return nil, err
	}

	return toCustomerModels(entities), nil
}
