package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"evently-waitlist/internal/shared/config"
	"evently-waitlist/internal/waitlist"
	"evently-waitlist/pkg/logger"

	"github.com/hibiken/asynq"
)

// Queue names and their weights on the worker
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

var queueWeights = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
	QueueLow:      1,
}

// QueueFor routes a task to its queue. Releases and sweeps move tickets
// between buyers so they go first; bulk jobs can wait.
func QueueFor(taskName string) string {
	switch taskName {
	case waitlist.TaskReleaseBatch, waitlist.TaskExpirySweep:
		return QueueCritical
	case waitlist.TaskBulkExecute:
		return QueueLow
	default:
		return QueueDefault
	}
}

// RedisOpt builds the asynq connection from the shared redis settings
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Client enqueues waitlist tasks on asynq
type Client struct {
	client   enqueuer
	maxRetry int
	logger   *logger.Logger
}

var _ waitlist.JobScheduler = (*Client)(nil)

func NewClient(redisOpt asynq.RedisConnOpt, cfg config.JobsConfig, log *logger.Logger) *Client {
	return newClient(asynq.NewClient(redisOpt), cfg.MaxRetry, log)
}

func newClient(e enqueuer, maxRetry int, log *logger.Logger) *Client {
	return &Client{
		client:   e,
		maxRetry: maxRetry,
		logger:   logger.OrDefault(log).WithComponent("scheduler"),
	}
}

// Enqueue marshals payload as JSON and schedules it after delay
func (c *Client) Enqueue(ctx context.Context, taskName string, payload interface{}, delay time.Duration) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", taskName, err)
	}

	opts := []asynq.Option{asynq.Queue(QueueFor(taskName))}
	if c.maxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(c.maxRetry))
	}
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}

	info, err := c.client.EnqueueContext(ctx, asynq.NewTask(taskName, body), opts...)
	if err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", taskName, err)
	}

	c.logger.DebugContext(ctx, "Task enqueued",
		"task", taskName,
		"task_id", info.ID,
		"queue", info.Queue,
		"delay", delay.String(),
	)
	return nil
}

func (c *Client) Close() error {
	return c.client.Close()
}
