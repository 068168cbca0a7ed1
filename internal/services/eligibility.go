package services

import (
	"fmt"
	"strings"

	"github.com/samueldng/cash-back-phone-link/internal/model"
)

// EligibilityPolicy decides whether a purchase category earns cashback.
type EligibilityPolicy interface {
	IsEligible(category string, settings *model.Settings) bool
	Name() string
}

const (
	EligibilityAllowList = "allow_list"
	EligibilityAll       = "all"
)

// AllowListPolicy accepts only categories listed in the settings.
type AllowListPolicy struct{}

func (AllowListPolicy) IsEligible(category string, settings *model.Settings) bool {
	if category == "" || settings == nil {
		return false
	}
	return settings.ListsCategory(category)
}

func (AllowListPolicy) Name() string { return EligibilityAllowList }

// AllPurchasesPolicy makes every purchase eligible.
type AllPurchasesPolicy struct{}

func (AllPurchasesPolicy) IsEligible(string, *model.Settings) bool { return true }

func (AllPurchasesPolicy) Name() string { return EligibilityAll }

func NewEligibilityPolicy(mode string) (EligibilityPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", EligibilityAllowList:
		return AllowListPolicy{}, nil
	case EligibilityAll:
		return AllPurchasesPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown eligibility mode %q", mode)
	}
}
