package waitlist

import (
	"bytes"
	"math"
	"sort"
	"strings"
	"time"
)

// WaitingDays returns the fractional number of days an entry has waited
func WaitingDays(e WaitlistEntry, now time.Time) float64 {
	d := now.Sub(e.JoinedAt)
	if d <= 0 {
		return 0
	}
	return d.Hours() / 24
}

// OfferExpired reports whether an offered offer is past its deadline
func OfferExpired(o TicketOffer, now time.Time) bool {
	return o.Status == OfferStatusOffered && o.ExpiresAt.Before(now)
}

// OfferTimeRemaining returns how long the user has left to respond, zero once expired
func OfferTimeRemaining(o TicketOffer, now time.Time) time.Duration {
	if o.Status != OfferStatusOffered {
		return 0
	}
	if rem := o.ExpiresAt.Sub(now); rem > 0 {
		return rem
	}
	return 0
}

// QueueLess is the canonical queue order: tier rank desc, joinedAt asc, id asc.
func QueueLess(a, b WaitlistEntry) bool {
	if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
		return ra > rb
	}
	if !a.JoinedAt.Equal(b.JoinedAt) {
		return a.JoinedAt.Before(b.JoinedAt)
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}

// SortQueue sorts entries into queue order in place
func SortQueue(entries []WaitlistEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return QueueLess(entries[i], entries[j])
	})
}

// AssignPositions numbers queue-ordered entries 1..N and returns only the
// entries whose position differs from the stored one.
func AssignPositions(ordered []WaitlistEntry) []PositionChange {
	var changes []PositionChange
	for i, e := range ordered {
		if e.Position != i+1 {
			changes = append(changes, PositionChange{
				EntryID:     e.ID,
				OldPosition: e.Position,
				NewPosition: i + 1,
			})
		}
	}
	return changes
}

// SelectionScore ranks release candidates. Tier weight dominates, then queue
// position, then tenure.
func SelectionScore(e WaitlistEntry, weights map[Priority]float64, now time.Time, seatMatch bool) float64 {
	score := weights[e.Priority]
	score += WaitingDays(e, now) * 0.1
	score += math.Max(0, float64(100-e.Position)) * 0.01
	if seatMatch {
		score += 0.5
	}
	return score
}

// OfferPrice caps the base price by the user's ceiling and the strategy's
// flexibility band, then applies the entry's tier discount.
func OfferPrice(basePrice float64, maxPriceWilling *float64, flexibilityPercent, discountPercent float64) float64 {
	ceiling := basePrice
	if maxPriceWilling != nil {
		ceiling = *maxPriceWilling
	}
	price := math.Min(ceiling, basePrice*(1+flexibilityPercent/100))
	if discountPercent > 0 {
		price = price * (1 - discountPercent/100)
	}
	return math.Round(price*100) / 100
}

// PriceEligible reports whether the entry accepts the intended offer price
func PriceEligible(e WaitlistEntry, intendedPrice float64) bool {
	return e.MaxPriceWilling == nil || *e.MaxPriceWilling >= intendedPrice
}

// SeatPreferenceMatches reports whether any section the entry asked for is
// among the sections being released. Preferences use "section" or "sections".
func SeatPreferenceMatches(prefs JSONMap, sections []string) bool {
	if len(prefs) == 0 || len(sections) == 0 {
		return false
	}

	available := make(map[string]bool, len(sections))
	for _, s := range sections {
		available[strings.ToLower(s)] = true
	}

	for _, wanted := range preferredSections(prefs) {
		if available[strings.ToLower(wanted)] {
			return true
		}
	}
	return false
}

func preferredSections(prefs JSONMap) []string {
	var out []string
	if s, ok := prefs["section"].(string); ok && s != "" {
		out = append(out, s)
	}
	switch v := prefs["sections"].(type) {
	case []string:
		out = append(out, v...)
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

// reactivate returns an entry to the queue after its offer ended without a sale
func reactivate(e *WaitlistEntry) {
	e.Status = EntryStatusActive
	e.NotifiedAt = nil
	e.NotificationExpiresAt = nil
}
