package waitlist

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// UserProfile carries the directory attributes that decide a user's tier
type UserProfile struct {
	UserID          uuid.UUID `json:"user_id"`
	Email           string    `json:"email"`
	Name            string    `json:"name"`
	TotalSpend      float64   `json:"total_spend"`
	MembershipLevel string    `json:"membership_level"`
	EventsAttended  int       `json:"events_attended"`
}

// TierBenefits is the perk bundle attached to a tier
type TierBenefits struct {
	SkipAheadPositions   int     `json:"skip_ahead_positions" yaml:"skip_ahead_positions"`
	ExtendedOfferHours   int     `json:"extended_offer_hours" yaml:"extended_offer_hours"`
	PriceDiscountPercent float64 `json:"price_discount_percent" yaml:"price_discount_percent"`
	PersonalizedService  bool    `json:"personalized_service" yaml:"personalized_service"`
	ExclusiveSeating     bool    `json:"exclusive_seating" yaml:"exclusive_seating"`
}

// ResolverConfig parameterises tier resolution.
//
// JoinOffsets and WaitMultipliers are independent knobs: the first only shapes
// the position hint returned on join, the second only scales estimated wait.
type ResolverConfig struct {
	VIPSpendThreshold      float64
	PremiumSpendThreshold  float64
	LoyaltyEventsThreshold int

	Benefits           map[Priority]TierBenefits
	JoinOffsets        map[Priority]int
	WaitMultipliers    map[Priority]float64
	MinutesPerPosition float64
}

func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		VIPSpendThreshold:      5000,
		PremiumSpendThreshold:  2000,
		LoyaltyEventsThreshold: 5,
		Benefits: map[Priority]TierBenefits{
			PriorityVIP: {
				SkipAheadPositions:   50,
				ExtendedOfferHours:   12,
				PriceDiscountPercent: 10,
				PersonalizedService:  true,
				ExclusiveSeating:     true,
			},
			PriorityPremium: {
				SkipAheadPositions:   20,
				ExtendedOfferHours:   6,
				PriceDiscountPercent: 5,
			},
			PriorityLoyalty: {
				SkipAheadPositions: 5,
				ExtendedOfferHours: 2,
			},
			PriorityStandard: {},
		},
		JoinOffsets: map[Priority]int{
			PriorityVIP:      1000,
			PriorityPremium:  500,
			PriorityLoyalty:  100,
			PriorityStandard: 0,
		},
		WaitMultipliers: map[Priority]float64{
			PriorityVIP:      0.3,
			PriorityPremium:  0.6,
			PriorityLoyalty:  0.8,
			PriorityStandard: 1.0,
		},
		MinutesPerPosition: 30,
	}
}

// PriorityResolver maps users and tier requests onto priorities and benefits
type PriorityResolver struct {
	cfg ResolverConfig
}

func NewPriorityResolver(cfg ResolverConfig) *PriorityResolver {
	return &PriorityResolver{cfg: cfg}
}

// Resolve returns the explicitly requested tier when valid, otherwise derives
// one from the profile. A nil profile resolves to standard.
func (r *PriorityResolver) Resolve(profile *UserProfile, requested Priority) Priority {
	if requested.IsValid() {
		return requested
	}
	if profile == nil {
		return PriorityStandard
	}

	membership := Priority(strings.ToUpper(strings.TrimSpace(profile.MembershipLevel)))
	switch {
	case profile.TotalSpend >= r.cfg.VIPSpendThreshold || membership == PriorityVIP:
		return PriorityVIP
	case profile.TotalSpend >= r.cfg.PremiumSpendThreshold || membership == PriorityPremium:
		return PriorityPremium
	case profile.EventsAttended >= r.cfg.LoyaltyEventsThreshold || membership == PriorityLoyalty:
		return PriorityLoyalty
	default:
		return PriorityStandard
	}
}

func (r *PriorityResolver) Benefits(p Priority) TierBenefits {
	return r.cfg.Benefits[p]
}

// ApplyBenefits stamps the tier's offer terms onto an entry. Only upgrades
// earn them; entries that join or are imported at a tier keep default terms.
func (r *PriorityResolver) ApplyBenefits(e *WaitlistEntry) TierBenefits {
	b := r.Benefits(e.Priority)
	e.ExtendedOfferHours = b.ExtendedOfferHours
	e.PriceDiscountPercent = b.PriceDiscountPercent
	return b
}

// JoinPositionHint is the informational position shown on join before
// recalculation settles the real one.
func (r *PriorityResolver) JoinPositionHint(activeCount int, p Priority) int {
	hint := activeCount + 1 - r.cfg.JoinOffsets[p]
	if hint < 1 {
		return 1
	}
	return hint
}

// EstimatedWait scales the per-position wait by the tier's multiplier
func (r *PriorityResolver) EstimatedWait(position int, p Priority) time.Duration {
	if position <= 0 {
		return 0
	}
	mult, ok := r.cfg.WaitMultipliers[p]
	if !ok {
		mult = 1
	}
	minutes := float64(position) * r.cfg.MinutesPerPosition * mult
	return time.Duration(minutes * float64(time.Minute))
}
