// Package app wires the waitlist service together. Both the HTTP server and
// the operator CLI build their dependencies through it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"evently-waitlist/internal/auth"
	"evently-waitlist/internal/bookings"
	"evently-waitlist/internal/directory"
	"evently-waitlist/internal/events"
	"evently-waitlist/internal/notifications"
	"evently-waitlist/internal/scheduler"
	"evently-waitlist/internal/shared/config"
	"evently-waitlist/internal/shared/database"
	"evently-waitlist/internal/shared/middleware"
	"evently-waitlist/internal/users"
	"evently-waitlist/internal/waitlist"
	"evently-waitlist/pkg/cache"
	"evently-waitlist/pkg/logger"
	"evently-waitlist/pkg/ratelimit"
)

// App holds every long-lived dependency of the service
type App struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *database.DB
	Cache  cache.Service
	Auth   *middleware.Auth

	Users     users.Repository
	Accounts  auth.Service
	Events    events.Service
	Bookings  bookings.Service
	Directory *directory.Service
	Engine    *waitlist.Engine

	Scheduler   waitlist.JobScheduler
	Handlers    *scheduler.Handlers
	RateLimiter *ratelimit.RateLimiter

	closers []io.Closer
}

// New connects to the stores and builds the engine
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	log = logger.OrDefault(log)
	a := &App{Config: cfg, Logger: log}

	db, err := database.InitDB(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.DB = db
	a.Cache = cache.NewService(db.Redis, log)
	a.Auth = middleware.NewAuth(cfg.JWT, log)
	a.RateLimiter = ratelimit.NewRateLimiter(db.Redis, cfg.RateLimit)

	var inline *scheduler.Inline
	switch cfg.Jobs.Backend {
	case "asynq":
		client := scheduler.NewClient(scheduler.RedisOpt(cfg.Redis), cfg.Jobs, log)
		a.closers = append(a.closers, client)
		a.Scheduler = client
	default:
		inline = scheduler.NewInline(log)
		a.Scheduler = inline
	}

	notifier, err := newNotifier(cfg.Kafka, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	if c, ok := notifier.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	strategy, err := waitlist.LoadStrategyFile(cfg.Waitlist.StrategyFile)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load release strategy: %w", err)
	}

	releaser := &Releaser{scheduler: a.Scheduler}

	a.Users = users.NewRepository(db.PostgreSQL)
	a.Accounts = auth.NewService(a.Users, a.Auth, cfg.JWT.AccessTTL, log)
	eventRepo := events.NewRepository(db.PostgreSQL)
	bookingRepo := bookings.NewRepository(db.PostgreSQL, eventRepo)

	a.Directory = directory.NewService(a.Users, eventRepo, bookingRepo, a.Cache, cfg.Redis.ProfileCacheTTL, log)
	a.Bookings = bookings.NewService(bookingRepo, releaser, a.Directory, nil, log)
	a.Events = events.NewService(eventRepo, releaser, nil, log)

	a.Engine = waitlist.NewEngine(waitlist.EngineDeps{
		Store:     waitlist.NewRepository(db.PostgreSQL),
		Locker:    waitlist.NewRedisLocker(db.Redis, cfg.Waitlist.LockTTL, cfg.Waitlist.LockWait, log),
		Directory: a.Directory,
		Notifier:  notifier,
		Orders:    a.Bookings,
		Scheduler: a.Scheduler,
		Logger:    log,
		Strategy:  &strategy,
		Settings: &waitlist.ServiceConfig{
			MaxQuantityPerUser:      cfg.Waitlist.MaxQuantityPerUser,
			ImmediateOfferThreshold: cfg.Waitlist.ImmediateOfferThreshold,
			SweepBatchSize:          cfg.Waitlist.SweepBatchSize,
			BulkBatchSize:           cfg.Waitlist.BulkBatchSize,
			MaxNotifications:        cfg.Waitlist.MaxNotifications,
		},
	})

	a.Handlers = scheduler.NewHandlers(a.Engine, log)
	if inline != nil {
		inline.Bind(a.Handlers)
	}
	return a, nil
}

func newNotifier(cfg config.KafkaConfig, log *logger.Logger) (waitlist.Notifier, error) {
	if !cfg.Enabled {
		log.Info("Kafka disabled, notifications are logged only")
		return notifications.NewLogDispatcher(log), nil
	}
	d, err := notifications.NewKafkaDispatcher(cfg, nil, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize notifications: %w", err)
	}
	return d, nil
}

// Close releases every connection the app opened
func (a *App) Close() error {
	var errList []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errList = append(errList, a.closers[i].Close())
	}
	if a.DB != nil {
		errList = append(errList, a.DB.Close())
	}
	return errors.Join(errList...)
}
