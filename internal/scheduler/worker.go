package scheduler

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"evently-waitlist/internal/shared/config"
	"evently-waitlist/pkg/logger"

	"github.com/hibiken/asynq"
)

// Worker processes waitlist tasks from Redis
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *logger.Logger
}

func NewWorker(redisOpt asynq.RedisConnOpt, cfg config.JobsConfig, handlers *Handlers, log *logger.Logger) *Worker {
	log = logger.OrDefault(log).WithComponent("worker")

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:    concurrency,
		Queues:         queueWeights,
		RetryDelayFunc: RetryDelay(cfg.BaseBackoff, cfg.MaxBackoff),
		Logger:         &asynqLogger{log: log},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			log.ErrorWithContext(ctx, "Task failed", err, map[string]interface{}{
				"task":      task.Type(),
				"retried":   retried,
				"max_retry": maxRetry,
			})
		}),
	})

	return &Worker{
		server: server,
		mux:    handlers.NewServeMux(),
		logger: log,
	}
}

// Start begins processing in the background
func (w *Worker) Start() error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}
	w.logger.Info("Worker started")
	return nil
}

// Run blocks until the process receives a termination signal
func (w *Worker) Run() error {
	return w.server.Run(w.mux)
}

func (w *Worker) Shutdown() {
	w.server.Shutdown()
	w.logger.Info("Worker stopped")
}

// RetryDelay doubles base per attempt and caps at max
func RetryDelay(base, max time.Duration) asynq.RetryDelayFunc {
	if base <= 0 {
		base = 2 * time.Second
	}
	if max < base {
		max = base
	}
	return func(n int, _ error, _ *asynq.Task) time.Duration {
		d := float64(base) * math.Pow(2, float64(n))
		if d > float64(max) {
			return max
		}
		return time.Duration(d)
	}
}

// asynqLogger routes asynq's own logging through ours
type asynqLogger struct {
	log *logger.Logger
}

func (l *asynqLogger) Debug(args ...interface{}) { l.log.Debug(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...interface{})  { l.log.Info(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...interface{})  { l.log.Warn(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...interface{}) { l.log.Error(fmt.Sprint(args...)) }

func (l *asynqLogger) Fatal(args ...interface{}) {
	l.log.Error(fmt.Sprint(args...))
	os.Exit(1)
}
