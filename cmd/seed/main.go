package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"evently-waitlist/internal/app"
	"evently-waitlist/internal/events"
	"evently-waitlist/internal/shared/config"
	"evently-waitlist/internal/users"
	"evently-waitlist/internal/waitlist"
	"evently-waitlist/pkg/logger"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

type Seeder struct {
	app *app.App
}

func main() {
	fmt.Println("🌱 Starting Evently Waitlist Seeder...")
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	// joins made by the seeder must not wait for a worker
	cfg.Jobs.Backend = "ticker"

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger.NewWithWriter(os.Stdout, "warn"))
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	seeder := &Seeder{app: a}

	fmt.Println("\n🧹 Cleaning database...")
	if err := seeder.CleanDatabase(); err != nil {
		log.Fatalf("Failed to clean database: %v", err)
	}
	fmt.Println("✅ Database cleaned successfully")

	fmt.Println("\n🌱 Seeding database...")
	if err := seeder.SeedAll(ctx); err != nil {
		log.Fatalf("Failed to seed database: %v", err)
	}
	fmt.Println("\n🎉 Seeding completed! Database is ready for testing.")
}

// CleanDatabase truncates all tables, children first
func (s *Seeder) CleanDatabase() error {
	tables := []string{"ticket_offers", "waitlist_entries", "bookings", "events", "users"}

	db := s.app.DB.PostgreSQL
	for _, table := range tables {
		fmt.Printf("  Truncating table: %s\n", table)
		if err := db.Exec(fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", table)).Error; err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}
	return nil
}

func (s *Seeder) SeedAll(ctx context.Context) error {
	userIDs, err := s.SeedUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to seed users: %w", err)
	}

	soldOut, err := s.SeedEvents(ctx, userIDs["admin"])
	if err != nil {
		return fmt.Errorf("failed to seed events: %w", err)
	}

	if err := s.SeedWaitlist(ctx, soldOut, userIDs); err != nil {
		return fmt.Errorf("failed to seed waitlist: %w", err)
	}

	// Clear Redis cache to ensure fresh state
	if err := s.app.DB.Redis.FlushDB(ctx).Err(); err != nil {
		log.Printf("Warning: Failed to clear Redis cache: %v", err)
	}
	return nil
}

// SeedUsers creates an admin and one member of each tier
func (s *Seeder) SeedUsers(ctx context.Context) (map[string]uuid.UUID, error) {
	fmt.Println("  👤 Seeding users...")

	// Hash password for all users (using "qwerty")
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte("qwerty"), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	usersData := []struct {
		key        string
		firstName  string
		lastName   string
		email      string
		role       users.Role
		membership string
	}{
		{"admin", "Admin", "User", "admin@evently.dev", users.RoleAdmin, ""},
		{"standard", "Sam", "Standard", "sam@evently.dev", users.RoleUser, ""},
		{"loyalty", "Lee", "Loyal", "lee@evently.dev", users.RoleUser, string(waitlist.PriorityLoyalty)},
		{"premium", "Pat", "Premium", "pat@evently.dev", users.RoleUser, string(waitlist.PriorityPremium)},
		{"vip", "Val", "Vip", "val@evently.dev", users.RoleUser, string(waitlist.PriorityVIP)},
	}

	userIDs := make(map[string]uuid.UUID)
	for _, u := range usersData {
		user := &users.User{
			FirstName:       u.firstName,
			LastName:        u.lastName,
			Email:           u.email,
			Password:        string(hashedPassword),
			Role:            u.role,
			MembershipLevel: u.membership,
		}
		if err := s.app.Users.CreateUser(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to create user %s: %w", u.email, err)
		}
		userIDs[u.key] = user.ID
		fmt.Printf("    ✅ Created user: %s (%s)\n", user.Email, user.Role)
	}
	return userIDs, nil
}

// SeedEvents creates one open event and one sold-out event, returning the latter
func (s *Seeder) SeedEvents(ctx context.Context, adminID uuid.UUID) (uuid.UUID, error) {
	fmt.Println("  🎫 Seeding events...")

	open, err := s.app.Events.CreateEvent(ctx, adminID, events.CreateEventRequest{
		Name:          "Open Air Cinema",
		Venue:         "Riverside Park",
		DateTime:      time.Now().AddDate(0, 1, 0),
		TotalCapacity: 200,
		Price:         25,
		Publish:       true,
	})
	if err != nil {
		return uuid.Nil, err
	}
	fmt.Printf("    ✅ Created event: %s\n", open.Name)

	soldOut, err := s.app.Events.CreateEvent(ctx, adminID, events.CreateEventRequest{
		Name:          "Jazz Night",
		Venue:         "Blue Hall",
		DateTime:      time.Now().AddDate(0, 0, 14),
		TotalCapacity: 50,
		Price:         80,
		Publish:       true,
	})
	if err != nil {
		return uuid.Nil, err
	}
	if err := s.app.DB.PostgreSQL.Model(soldOut).Update("booked_count", soldOut.TotalCapacity).Error; err != nil {
		return uuid.Nil, fmt.Errorf("failed to sell out event: %w", err)
	}
	fmt.Printf("    ✅ Created sold-out event: %s\n", soldOut.Name)
	return soldOut.ID, nil
}

// SeedWaitlist joins every regular user to the sold-out event's waitlist
func (s *Seeder) SeedWaitlist(ctx context.Context, eventID uuid.UUID, userIDs map[string]uuid.UUID) error {
	fmt.Println("  ⏳ Seeding waitlist...")

	maxPrice := 120.0
	for _, key := range []string{"standard", "loyalty", "premium", "vip"} {
		resp, err := s.app.Engine.Service.JoinWaitlist(ctx, userIDs[key], &waitlist.JoinWaitlistRequest{
			EventID:         eventID,
			TicketQuantity:  2,
			MaxPriceWilling: &maxPrice,
		})
		if err != nil {
			return fmt.Errorf("failed to join %s: %w", key, err)
		}
		fmt.Printf("    ✅ %s joined at position %d\n", key, resp.Position)
	}
	return nil
}
