package scheduler

import (
	"context"
	"encoding/json"
	"fmt"

	"evently-waitlist/internal/shared/errs"
	"evently-waitlist/internal/waitlist"
	"evently-waitlist/pkg/logger"

	"github.com/hibiken/asynq"
)

// Handlers runs waitlist tasks against the engine
type Handlers struct {
	engine *waitlist.Engine
	logger *logger.Logger
}

func NewHandlers(engine *waitlist.Engine, log *logger.Logger) *Handlers {
	return &Handlers{
		engine: engine,
		logger: logger.OrDefault(log).WithComponent("worker"),
	}
}

// NewServeMux registers every waitlist task
func (h *Handlers) NewServeMux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(waitlist.TaskReleaseBatch, h.HandleReleaseBatch)
	mux.HandleFunc(waitlist.TaskExpirySweep, h.HandleExpirySweep)
	mux.HandleFunc(waitlist.TaskBulkExecute, h.HandleBulkExecute)
	return mux
}

func (h *Handlers) HandleReleaseBatch(ctx context.Context, t *asynq.Task) error {
	var payload waitlist.ReleaseBatchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid release payload: %v: %w", err, asynq.SkipRetry)
	}

	result, err := h.engine.Releases.Release(ctx, payload.Request())
	if err != nil {
		return retryable(err)
	}

	h.logger.InfoWithContext(ctx, "Release batch processed", map[string]interface{}{
		"event_id":          payload.EventID.String(),
		"reason":            string(payload.Reason),
		"releases_created":  result.ReleasesCreated,
		"tickets_remaining": result.TicketsRemaining,
		"next_batch":        result.NextBatchScheduled,
	})
	return nil
}

func (h *Handlers) HandleExpirySweep(ctx context.Context, _ *asynq.Task) error {
	result, err := h.engine.Sweeper.Sweep(ctx)
	if err != nil {
		return err
	}
	if result.Expired > 0 || result.Failed > 0 {
		h.logger.InfoWithContext(ctx, "Swept expired offers", map[string]interface{}{
			"expired":          result.Expired,
			"failed":           result.Failed,
			"releases_created": result.ReleasesCreated,
		})
	}
	return nil
}

func (h *Handlers) HandleBulkExecute(ctx context.Context, t *asynq.Task) error {
	var payload waitlist.BulkTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid bulk payload: %v: %w", err, asynq.SkipRetry)
	}

	// per-row failures live in the result; only whole-operation errors retry
	if _, err := h.engine.Bulk.Execute(ctx, payload); err != nil {
		return retryable(err)
	}
	return nil
}

// retryable stops asynq from retrying errors a retry cannot fix
func retryable(err error) error {
	if errs.Is(err, errs.ErrValidation) || errs.Is(err, errs.ErrNotFound) {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}
