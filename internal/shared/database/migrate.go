package database

import (
	"evently-waitlist/internal/bookings"
	"evently-waitlist/internal/events"
	"evently-waitlist/internal/users"
	"evently-waitlist/internal/waitlist"

	"gorm.io/gorm"
)

// Migrate creates or updates the tables and then the waitlist indexes
func Migrate(db *gorm.DB) error {
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto`).Error; err != nil {
		return err
	}
	if err := db.AutoMigrate(
		&users.User{},
		&events.Event{},
		&bookings.Booking{},
		&waitlist.WaitlistEntry{},
		&waitlist.TicketOffer{},
	); err != nil {
		return err
	}
	return MigrateConstraints(db)
}
