package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"evently-waitlist/internal/waitlist"
	"evently-waitlist/pkg/logger"

	"github.com/hibiken/asynq"
)

// Inline runs tasks in-process through the same handlers the worker uses.
// It backs the "ticker" jobs backend where no Redis worker is deployed.
// Tasks are lost on restart and are not retried.
type Inline struct {
	mu      sync.RWMutex
	handler asynq.Handler
	timeout time.Duration
	logger  *logger.Logger
	wg      sync.WaitGroup
}

var _ waitlist.JobScheduler = (*Inline)(nil)

func NewInline(log *logger.Logger) *Inline {
	return &Inline{
		timeout: time.Minute,
		logger:  logger.OrDefault(log).WithComponent("scheduler"),
	}
}

// Bind attaches the handlers once the engine they need exists
func (i *Inline) Bind(h *Handlers) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.handler = h.NewServeMux()
}

func (i *Inline) Enqueue(_ context.Context, taskName string, payload interface{}, delay time.Duration) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", taskName, err)
	}

	i.mu.RLock()
	handler := i.handler
	i.mu.RUnlock()
	if handler == nil {
		return fmt.Errorf("no handlers bound for %s", taskName)
	}

	task := asynq.NewTask(taskName, body)
	i.wg.Add(1)
	time.AfterFunc(delay, func() {
		defer i.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), i.timeout)
		defer cancel()
		if err := handler.ProcessTask(ctx, task); err != nil {
			i.logger.ErrorWithContext(ctx, "Inline task failed", err, map[string]interface{}{"task": taskName})
		}
	})
	return nil
}

// Wait blocks until every enqueued task has run
func (i *Inline) Wait() {
	i.wg.Wait()
}
