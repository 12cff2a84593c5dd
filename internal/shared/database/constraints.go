package database

import (
	"fmt"

	"gorm.io/gorm"
)

// waitlistConstraints back the engine's uniqueness rules with the database:
// one open entry per user and event, one open offer per entry.
var waitlistConstraints = []struct {
	name string
	sql  string
}{
	{
		name: "uniq_waitlist_open_entry",
		sql: `CREATE UNIQUE INDEX IF NOT EXISTS uniq_waitlist_open_entry
			ON waitlist_entries (user_id, event_id)
			WHERE status IN ('ACTIVE', 'NOTIFIED')`,
	},
	{
		name: "uniq_ticket_offer_open",
		sql: `CREATE UNIQUE INDEX IF NOT EXISTS uniq_ticket_offer_open
			ON ticket_offers (entry_id)
			WHERE status = 'OFFERED'`,
	},
	{
		// matches the queue order used by recalculation and release
		name: "idx_waitlist_queue_order",
		sql: `CREATE INDEX IF NOT EXISTS idx_waitlist_queue_order
			ON waitlist_entries (event_id, status, priority_rank, joined_at)`,
	},
	{
		name: "idx_ticket_offers_open_expiry",
		sql: `CREATE INDEX IF NOT EXISTS idx_ticket_offers_open_expiry
			ON ticket_offers (expires_at)
			WHERE status = 'OFFERED'`,
	},
}

// MigrateConstraints adds the partial unique indexes and query indexes
func MigrateConstraints(db *gorm.DB) error {
	for _, c := range waitlistConstraints {
		if err := db.Exec(c.sql).Error; err != nil {
			return fmt.Errorf("failed to create %s: %w", c.name, err)
		}
	}
	return nil
}
