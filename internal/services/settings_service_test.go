package services

import (
	"context"
	"testing"

	"github.com/samueldng/cash-back-phone-link/internal/model"
	"github.com/samueldng/cash-back-phone-link/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSettingsRepository struct {
	mock.Mock
}

func (m *MockSettingsRepository) Get(ctx context.Context) (*model.Settings, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Settings), args.Error(1)
}

func (m *MockSettingsRepository) Save(ctx context.Context, s *model.Settings) (*model.Settings, error) {
	args := m.Called(ctx, s)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Settings), args.Error(1)
}

func TestSettingsService_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults when no row", func(t *testing.T) {
		repo := new(MockSettingsRepository)
		repo.On("Get", mock.Anything).Return(nil, repository.ErrSettingsNotFound)

		s, err := NewSettingsService(repo, DefaultSettings()).Get(ctx)
		require.NoError(t, err)
		assert.True(t, s.CashbackPercentage.Equal(money("5")))
		assert.True(t, s.MinimumRedemption.Equal(money("15")))
		assert.Equal(t, []string{"acessorios"}, s.EligibleCategories)
	})

	t.Run("stored settings win", func(t *testing.T) {
		repo := new(MockSettingsRepository)
		repo.On("Get", mock.Anything).Return(&model.Settings{CashbackPercentage: money("2"), MinimumRedemption: money("20")}, nil)

		s, err := NewSettingsService(repo, DefaultSettings()).Get(ctx)
		require.NoError(t, err)
		assert.True(t, s.CashbackPercentage.Equal(money("2")))
	})

	t.Run("store failure", func(t *testing.T) {
		repo := new(MockSettingsRepository)
		repo.On("Get", mock.Anything).Return(nil, assert.AnError)

		_, err := NewSettingsService(repo, DefaultSettings()).Get(ctx)
		assert.ErrorIs(t, err, ErrPersistence)
	})
}

func TestSettingsService_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("normalizes categories", func(t *testing.T) {
		repo := new(MockSettingsRepository)
		repo.On("Save", mock.Anything, mock.MatchedBy(func(s *model.Settings) bool {
			return assert.ObjectsAreEqual([]string{"acessorios", "roupas"}, s.EligibleCategories) && !s.UpdatedAt.IsZero()
		})).Return(&model.Settings{}, nil)

		_, err := NewSettingsService(repo, DefaultSettings()).Update(ctx, model.Settings{
			CashbackPercentage: money("7.5"),
			MinimumRedemption:  money("0"),
			EligibleCategories: []string{" acessorios", "roupas", "", "acessorios"},
		})
		require.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("keeps two decimal places", func(t *testing.T) {
		repo := new(MockSettingsRepository)
		repo.On("Save", mock.Anything, mock.MatchedBy(func(s *model.Settings) bool {
			return s.CashbackPercentage.Equal(money("33.33")) && s.MinimumRedemption.Equal(money("15"))
		})).Return(&model.Settings{}, nil)

		_, err := NewSettingsService(repo, DefaultSettings()).Update(ctx, model.Settings{
			CashbackPercentage: money("33.330"),
			MinimumRedemption:  money("15.000"),
		})
		require.NoError(t, err)
		repo.AssertExpectations(t)
	})

	for name, in := range map[string]model.Settings{
		"percentage above 100": {CashbackPercentage: money("100.01")},
		"negative percentage":  {CashbackPercentage: money("-1")},
		"negative minimum":     {CashbackPercentage: money("5"), MinimumRedemption: money("-0.01")},
		"percentage precision": {CashbackPercentage: money("33.333")},
		"minimum precision":    {CashbackPercentage: money("5"), MinimumRedemption: money("15.005")},
	} {
		t.Run(name, func(t *testing.T) {
			repo := new(MockSettingsRepository)
			_, err := NewSettingsService(repo, DefaultSettings()).Update(ctx, in)
			assert.ErrorIs(t, err, ErrValidation)
			repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
		})
	}
}

func TestNewEligibilityPolicy(t *testing.T) {
	settings := &model.Settings{EligibleCategories: []string{"acessorios"}}

	p, err := NewEligibilityPolicy("")
	require.NoError(t, err)
	assert.True(t, p.IsEligible("acessorios", settings))
	assert.False(t, p.IsEligible("roupas", settings))
	assert.False(t, p.IsEligible("", settings))

	p, err = NewEligibilityPolicy("ALL")
	require.NoError(t, err)
	assert.True(t, p.IsEligible("", settings))

	_, err = NewEligibilityPolicy("sometimes")
	assert.Error(t, err)
}
