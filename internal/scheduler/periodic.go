package scheduler

import (
	"fmt"

	"evently-waitlist/internal/shared/config"
	"evently-waitlist/internal/waitlist"
	"evently-waitlist/pkg/logger"

	"github.com/hibiken/asynq"
)

// Periodic enqueues the expiry sweep on a cron spec
type Periodic struct {
	scheduler *asynq.Scheduler
	spec      string
	logger    *logger.Logger
}

func NewPeriodic(redisOpt asynq.RedisConnOpt, cfg config.JobsConfig, log *logger.Logger) (*Periodic, error) {
	spec := cfg.SweepCron
	if spec == "" {
		spec = "@every 1m"
	}

	s := asynq.NewScheduler(redisOpt, nil)
	task := asynq.NewTask(waitlist.TaskExpirySweep, nil)
	if _, err := s.Register(spec, task, asynq.Queue(QueueFor(waitlist.TaskExpirySweep)), asynq.MaxRetry(0)); err != nil {
		return nil, fmt.Errorf("failed to register sweep %q: %w", spec, err)
	}

	return &Periodic{
		scheduler: s,
		spec:      spec,
		logger:    logger.OrDefault(log).WithComponent("scheduler"),
	}, nil
}

func (p *Periodic) Start() error {
	if err := p.scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start periodic scheduler: %w", err)
	}
	p.logger.Info("Periodic sweep scheduled", "spec", p.spec)
	return nil
}

func (p *Periodic) Shutdown() {
	p.scheduler.Shutdown()
}
