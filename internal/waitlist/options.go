package waitlist

import (
	"evently-waitlist/internal/shared/clock"
	"evently-waitlist/pkg/logger"
)

// Option configures the engine components
type Option func(*options)

type options struct {
	clock  clock.Clock
	logger *logger.Logger
}

func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func buildOptions(component string, opts []Option) options {
	o := options{clock: clock.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logger.OrDefault(o.logger).WithComponent(component)
	return o
}
