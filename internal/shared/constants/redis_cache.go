package constants

import (
	"fmt"
	"time"
)

// Redis Key Configuration
// This file centralizes all Redis keys and TTL values used by the waitlist service
// Pattern: evently:{module}:{operation}:{identifier}:{params?}

// ================== CACHE TTL DURATIONS ==================

const (
	TTL_STATIC_SHORT = 6 * time.Hour // 6 hours - for user profiles
)

// ================== REDIS KEY PREFIXES ==================

const (
	CACHE_PREFIX = "evently"
)

// ================== DIRECTORY MODULE ==================

const (
	CACHE_KEY_USER_PROFILE = CACHE_PREFIX + ":directory:user:profile:uuid:" // + user-id
)

const (
	TTL_USER_PROFILE = TTL_STATIC_SHORT // 6 hours
)

// ================== WAITLIST MODULE ==================

const (
	// Per-event recalculation lock, value is the holder's token
	KEY_WAITLIST_LOCK = CACHE_PREFIX + ":waitlist:lock:event:" // + event-id
)

// ================== RATE LIMIT MODULE ==================

const (
	KEY_RATE_LIMIT = CACHE_PREFIX + ":ratelimit:" // + limit-type:identifier
)

// ================== HELPER FUNCTIONS ==================

// BuildUserProfileKey -> "evently:directory:user:profile:uuid:<user-id>"
func BuildUserProfileKey(userID string) string {
	return CACHE_KEY_USER_PROFILE + userID
}

func BuildWaitlistLockKey(eventID string) string {
	return KEY_WAITLIST_LOCK + eventID
}

// BuildRateLimitKey -> "evently:ratelimit:user:<identifier>"
func BuildRateLimitKey(limitType, identifier string) string {
	return fmt.Sprintf("%s%s:%s", KEY_RATE_LIMIT, limitType, identifier)
}

/*
INVALIDATION:

When a user's spend or membership changes, delete
evently:directory:user:profile:uuid:<user-id> so the next join resolves
the tier from fresh data.
*/
