package waitlist

import (
	"evently-waitlist/internal/shared/clock"
	"evently-waitlist/pkg/logger"
)

// EngineDeps are the collaborators and knobs needed to build an Engine.
// Zero values fall back to in-process defaults where one exists.
type EngineDeps struct {
	Store     Store
	Locker    EventLocker
	Directory Directory
	Notifier  Notifier
	Orders    OrderService
	Scheduler JobScheduler
	Clock     clock.Clock
	Logger    *logger.Logger
	Strategy  *ReleaseStrategy
	Resolver  *ResolverConfig
	Settings  *ServiceConfig
}

// Engine bundles the waitlist components sharing one store and clock
type Engine struct {
	Store        Store
	Resolver     *PriorityResolver
	Recalculator *PositionRecalculator
	Releases     *ReleaseEngine
	Responses    *OfferResponseHandler
	Sweeper      *ExpirySweeper
	Bulk         *BulkOperationExecutor
	Service      Service
}

func NewEngine(deps EngineDeps) *Engine {
	var opts []Option
	if deps.Clock != nil {
		opts = append(opts, WithClock(deps.Clock))
	}
	if deps.Logger != nil {
		opts = append(opts, WithLogger(deps.Logger))
	}

	strategy := DefaultReleaseStrategy()
	if deps.Strategy != nil {
		strategy = *deps.Strategy
	}
	resolverCfg := DefaultResolverConfig()
	if deps.Resolver != nil {
		resolverCfg = *deps.Resolver
	}
	settings := DefaultServiceConfig()
	if deps.Settings != nil {
		settings = deps.Settings
	}

	resolver := NewPriorityResolver(resolverCfg)
	recalculator := NewPositionRecalculator(deps.Store, deps.Locker, opts...)
	releases := NewReleaseEngine(deps.Store, deps.Directory, deps.Notifier, deps.Scheduler, recalculator, strategy, opts...)
	sweeper := NewExpirySweeper(deps.Store, releases, recalculator, deps.Notifier, settings.SweepBatchSize, settings.MaxNotifications, opts...)
	responses := NewOfferResponseHandler(deps.Store, deps.Orders, releases, recalculator, sweeper, deps.Notifier, opts...)
	bulk := NewBulkOperationExecutor(deps.Store, recalculator, releases, deps.Directory, deps.Notifier, resolver,
		settings.BulkBatchSize, settings.MaxQuantityPerUser, opts...)

	return &Engine{
		Store:        deps.Store,
		Resolver:     resolver,
		Recalculator: recalculator,
		Releases:     releases,
		Responses:    responses,
		Sweeper:      sweeper,
		Bulk:         bulk,
		Service:      NewService(deps.Store, deps.Directory, deps.Notifier, resolver, recalculator, releases, sweeper, settings, opts...),
	}
}
