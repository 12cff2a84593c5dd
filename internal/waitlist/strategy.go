package waitlist

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ReleaseStrategy tunes how a release batch picks and prices offers
type ReleaseStrategy struct {
	BatchSize               int                  `json:"batch_size" validate:"gte=1,lte=1000"`
	ReleaseIntervalMinutes  int                  `json:"release_interval_minutes" validate:"gte=0,lte=1440"`
	PriorityWeights         map[Priority]float64 `json:"priority_weights" validate:"required"`
	MaxOffersPerUser        int                  `json:"max_offers_per_user" validate:"gte=1"`
	OfferExpirationHours    int                  `json:"offer_expiration_hours" validate:"gte=1,lte=720"`
	ConsiderSeatPreferences bool                 `json:"consider_seat_preferences"`
	PriceFlexibilityPercent float64              `json:"price_flexibility_percent" validate:"gte=0,lte=100"`
}

func DefaultReleaseStrategy() ReleaseStrategy {
	return ReleaseStrategy{
		BatchSize:              10,
		ReleaseIntervalMinutes: 30,
		PriorityWeights: map[Priority]float64{
			PriorityStandard: 1,
			PriorityLoyalty:  2,
			PriorityPremium:  5,
			PriorityVIP:      10,
		},
		MaxOffersPerUser:        1,
		OfferExpirationHours:    24,
		ConsiderSeatPreferences: false,
		PriceFlexibilityPercent: 0,
	}
}

func (s ReleaseStrategy) Validate() error {
	return validateStruct(s)
}

// StrategyOverrides holds optional per-call or per-file overrides
type StrategyOverrides struct {
	BatchSize               *int                 `json:"batch_size,omitempty" yaml:"batch_size"`
	ReleaseIntervalMinutes  *int                 `json:"release_interval_minutes,omitempty" yaml:"release_interval_minutes"`
	PriorityWeights         map[Priority]float64 `json:"priority_weights,omitempty" yaml:"priority_weights"`
	MaxOffersPerUser        *int                 `json:"max_offers_per_user,omitempty" yaml:"max_offers_per_user"`
	OfferExpirationHours    *int                 `json:"offer_expiration_hours,omitempty" yaml:"offer_expiration_hours"`
	ConsiderSeatPreferences *bool                `json:"consider_seat_preferences,omitempty" yaml:"consider_seat_preferences"`
	PriceFlexibilityPercent *float64             `json:"price_flexibility_percent,omitempty" yaml:"price_flexibility_percent"`
}

func coalesce[T any](override *T, current T) T {
	if override != nil {
		return *override
	}
	return current
}

// Merge applies non-nil overrides on top of base. Weights merge per tier.
func (o *StrategyOverrides) Merge(base ReleaseStrategy) ReleaseStrategy {
	if o == nil {
		return base
	}

	out := base
	out.BatchSize = coalesce(o.BatchSize, base.BatchSize)
	out.ReleaseIntervalMinutes = coalesce(o.ReleaseIntervalMinutes, base.ReleaseIntervalMinutes)
	out.MaxOffersPerUser = coalesce(o.MaxOffersPerUser, base.MaxOffersPerUser)
	out.OfferExpirationHours = coalesce(o.OfferExpirationHours, base.OfferExpirationHours)
	out.ConsiderSeatPreferences = coalesce(o.ConsiderSeatPreferences, base.ConsiderSeatPreferences)
	out.PriceFlexibilityPercent = coalesce(o.PriceFlexibilityPercent, base.PriceFlexibilityPercent)

	out.PriorityWeights = make(map[Priority]float64, len(base.PriorityWeights))
	for k, v := range base.PriorityWeights {
		out.PriorityWeights[k] = v
	}
	for k, v := range o.PriorityWeights {
		out.PriorityWeights[k] = v
	}
	return out
}

// LoadStrategyFile reads YAML overrides and merges them onto the defaults.
// An empty path returns the defaults.
func LoadStrategyFile(path string) (ReleaseStrategy, error) {
	base := DefaultReleaseStrategy()
	if path == "" {
		return base, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("failed to read strategy file: %w", err)
	}

	var overrides StrategyOverrides
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return base, fmt.Errorf("failed to parse strategy file: %w", err)
	}

	merged := overrides.Merge(base)
	if err := merged.Validate(); err != nil {
		return base, err
	}
	return merged, nil
}
