package app

import (
	"context"
	"fmt"

	"evently-waitlist/internal/scheduler"
	"evently-waitlist/internal/waitlist"
)

// StartBackground starts the job runners this process owns and returns a
// function that stops them. With the asynq backend and no embedded worker
// the jobs run in a separate `waitlistctl worker` process.
func (a *App) StartBackground(ctx context.Context) (func(), error) {
	jobs := a.Config.Jobs

	switch {
	case jobs.Backend == "ticker":
		jp := waitlist.NewJobProcessor(a.Engine.Sweeper, &waitlist.JobConfig{ExpiryCheckInterval: jobs.SweepInterval}, a.Logger)
		jp.Start(ctx)
		return jp.Stop, nil

	case jobs.EmbeddedWorker:
		return a.startWorker()
	}

	a.Logger.Info("No embedded worker; run `waitlistctl worker` to process jobs")
	return func() {}, nil
}

func (a *App) startWorker() (func(), error) {
	redisOpt := scheduler.RedisOpt(a.Config.Redis)

	worker := scheduler.NewWorker(redisOpt, a.Config.Jobs, a.Handlers, a.Logger)
	if err := worker.Start(); err != nil {
		return nil, err
	}

	periodic, err := scheduler.NewPeriodic(redisOpt, a.Config.Jobs, a.Logger)
	if err != nil {
		worker.Shutdown()
		return nil, err
	}
	if err := periodic.Start(); err != nil {
		worker.Shutdown()
		return nil, err
	}

	return func() {
		periodic.Shutdown()
		worker.Shutdown()
	}, nil
}

// RunWorker processes jobs in the foreground until the process is signalled
func (a *App) RunWorker() error {
	if a.Config.Jobs.Backend != "asynq" {
		return fmt.Errorf("worker requires JOBS_BACKEND=asynq, got %q", a.Config.Jobs.Backend)
	}
	redisOpt := scheduler.RedisOpt(a.Config.Redis)

	periodic, err := scheduler.NewPeriodic(redisOpt, a.Config.Jobs, a.Logger)
	if err != nil {
		return err
	}
	if err := periodic.Start(); err != nil {
		return err
	}
	defer periodic.Shutdown()

	return scheduler.NewWorker(redisOpt, a.Config.Jobs, a.Handlers, a.Logger).Run()
}
