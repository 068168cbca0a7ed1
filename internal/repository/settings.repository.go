package repository

import (
	"context"
	"errors"

	"github.com/samueldng/cash-back-phone-link/internal/model"
	"github.com/samueldng/cash-back-phone-link/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrSettingsNotFound = errors.New("settings not found")

type SettingsRepository struct {
	*pg.DB
}

func NewSettingsRepository(db *pg.DB) *SettingsRepository {
	return &SettingsRepository{
		db,
	}
}

func (r *SettingsRepository) Get(ctx context.Context) (*model.Settings, error) {
	var entity SettingsEntity
	err := r.Read(ctx).
		Where("id = ?", settingsRowID).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSettingsNotFound
		}
		return nil, err
	}

	return toSettingsModel(&entity), nil
}

// Save writes the settings row, creating it on first use.
func (r *SettingsRepository) Save(ctx context.Context, settings *model.Settings) (*model.Settings, error) {
	entity := toSettingsEntity(settings)

	err := r.Write(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"cashback_percentage", "minimum_redemption", "eligible_categories", "updated_at"}),
		}).
		Create(entity).
		Error
	if err != nil {
		return nil, err
	}

	return toSettingsModel(entity), nil
}
