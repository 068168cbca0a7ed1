package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/samueldng/cash-back-phone-link/internal/model"
	"github.com/samueldng/cash-back-phone-link/internal/repository"
	"github.com/samueldng/cash-back-phone-link/pkg/logger"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type SettingsRepository interface {
	Get(ctx context.Context) (*model.Settings, error)
	Save(ctx context.Context, s *model.Settings) (*model.Settings, error)
}

// SettingsService resolves the cashback rules. Every call reads the store so
// updates apply to the next operation; a missing row yields the defaults.
type SettingsService struct {
	repo     SettingsRepository
	defaults model.Settings
	now      func() time.Time
}

func NewSettingsService(repo SettingsRepository, defaults model.Settings) *SettingsService {
	return &SettingsService{
		repo:     repo,
		defaults: defaults,
		now:      time.Now,
	}
}

// DefaultSettings are used until an administrator saves settings.
func DefaultSettings() model.Settings {
	return model.Settings{
		CashbackPercentage: decimal.NewFromInt(5),
		MinimumRedemption:  decimal.NewFromInt(15),
		EligibleCategories: []string{"acessorios"},
	}
}

func (s *SettingsService) Get(ctx context.Context) (*model.Settings, error) {
	settings, err := s.repo.Get(ctx)
	if errors.Is(err, repository.ErrSettingsNotFound) {
		d := s.defaults
		d.EligibleCategories = append([]string(nil), s.defaults.EligibleCategories...)
		return &d, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load settings", Err: err}
	}
	return settings, nil
}

// Update validates and stores new settings. Percentage and minimum are kept
// with two decimal places; more precise values are rejected, not rounded.
func (s *SettingsService) Update(ctx context.Context, in model.Settings) (*model.Settings, error) {
	if !hasTwoPlaces(in.CashbackPercentage) {
		return nil, newValidationError("cashback_percentage", "at most 2 decimal places")
	}
	if !hasTwoPlaces(in.MinimumRedemption) {
		return nil, newValidationError("minimum_redemption", "at most 2 decimal places")
	}
	in.CashbackPercentage = model.RoundMoney(in.CashbackPercentage)
	in.MinimumRedemption = model.RoundMoney(in.MinimumRedemption)

	if in.CashbackPercentage.IsNegative() || in.CashbackPercentage.GreaterThan(hundred) {
		return nil, newValidationError("cashback_percentage", "must be between 0 and 100")
	}
	if in.MinimumRedemption.IsNegative() {
		return nil, newValidationError("minimum_redemption", "must not be negative")
	}
	in.EligibleCategories = normalizeCategories(in.EligibleCategories)
	in.UpdatedAt = s.now().UTC()

	saved, err := s.repo.Save(ctx, &in)
	if err != nil {
		return nil, &PersistenceError{Op: "save settings", Err: err}
	}

	logger.Info("cashback settings updated",
		"percentage", saved.CashbackPercentage.String(),
		"minimum_redemption", saved.MinimumRedemption.String(),
		"categories", saved.EligibleCategories)
	return saved, nil
}

// hasTwoPlaces reports whether d is unchanged by rounding to cents, so
// "7.50" and "7.500" pass while "33.333" does not.
func hasTwoPlaces(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}

func normalizeCategories(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, c := range in {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
