package waitlist

import (
	"context"
	"sync"
	"time"

	"evently-waitlist/pkg/logger"
)

// JobProcessor runs the expiry sweep on a ticker inside the API process.
// It is used when no queue worker is deployed.
type JobProcessor struct {
	sweeper *ExpirySweeper
	config  *JobConfig
	logger  *logger.Logger
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

// JobConfig contains configuration for background jobs
type JobConfig struct {
	ExpiryCheckInterval time.Duration
}

// DefaultJobConfig returns default job configuration
func DefaultJobConfig() *JobConfig {
	return &JobConfig{
		ExpiryCheckInterval: 1 * time.Minute,
	}
}

// NewJobProcessor creates a new job processor
func NewJobProcessor(sweeper *ExpirySweeper, config *JobConfig, log *logger.Logger) *JobProcessor {
	if config == nil {
		config = DefaultJobConfig()
	}
	return &JobProcessor{
		sweeper: sweeper,
		config:  config,
		logger:  logger.OrDefault(log).WithComponent("jobs"),
		done:    make(chan struct{}),
	}
}

// Start starts the background sweep loop
func (jp *JobProcessor) Start(ctx context.Context) {
	jp.logger.Info("Starting waitlist background jobs", "expiry_check_interval", jp.config.ExpiryCheckInterval.String())

	jp.wg.Add(1)
	go func() {
		defer jp.wg.Done()
		jp.startExpiryProcessor(ctx)
	}()
}

// Stop stops the loop and waits for an in-flight sweep to finish
func (jp *JobProcessor) Stop() {
	jp.once.Do(func() {
		close(jp.done)
	})
	jp.wg.Wait()
	jp.logger.Info("Waitlist background jobs stopped")
}

func (jp *JobProcessor) startExpiryProcessor(ctx context.Context) {
	ticker := time.NewTicker(jp.config.ExpiryCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			jp.RunOnce(ctx)
		case <-jp.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce performs a single sweep
func (jp *JobProcessor) RunOnce(ctx context.Context) *SweepResult {
	result, err := jp.sweeper.Sweep(ctx)
	if err != nil {
		jp.logger.ErrorWithContext(ctx, "Error sweeping expired offers", err, nil)
		return nil
	}

	if result.Expired > 0 || result.Failed > 0 {
		jp.logger.InfoWithContext(ctx, "Swept expired offers", map[string]interface{}{
			"expired":          result.Expired,
			"failed":           result.Failed,
			"skipped":          result.Skipped,
			"releases_created": result.ReleasesCreated,
		})
	}
	return result
}
