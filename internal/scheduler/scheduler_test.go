package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"evently-waitlist/internal/shared/clock"
	"evently-waitlist/internal/shared/errs"
	"evently-waitlist/internal/waitlist"
	"evently-waitlist/internal/waitlist/mocks"
	"evently-waitlist/pkg/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type recordingEnqueuer struct {
	task *asynq.Task
	opts map[asynq.OptionType]interface{}
	err  error
}

func (r *recordingEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.task = task
	r.opts = make(map[asynq.OptionType]interface{})
	for _, o := range opts {
		r.opts[o.Type()] = o.Value()
	}
	queue, _ := r.opts[asynq.QueueOpt].(string)
	return &asynq.TaskInfo{ID: "task-1", Queue: queue, Type: task.Type()}, nil
}

func (r *recordingEnqueuer) Close() error { return nil }

func TestClientEnqueueRoutesAndDelays(t *testing.T) {
	rec := &recordingEnqueuer{}
	client := newClient(rec, 5, logger.Discard())

	payload := waitlist.ReleaseBatchPayload{EventID: uuid.New(), AvailableTickets: 4, Reason: waitlist.ReleaseReasonCancellation}
	require.NoError(t, client.Enqueue(context.Background(), waitlist.TaskReleaseBatch, payload, 30*time.Second))

	assert.Equal(t, waitlist.TaskReleaseBatch, rec.task.Type())
	assert.Equal(t, QueueCritical, rec.opts[asynq.QueueOpt])
	assert.Equal(t, 5, rec.opts[asynq.MaxRetryOpt])
	assert.Equal(t, 30*time.Second, rec.opts[asynq.ProcessInOpt])

	var got waitlist.ReleaseBatchPayload
	require.NoError(t, json.Unmarshal(rec.task.Payload(), &got))
	assert.Equal(t, payload.EventID, got.EventID)
	assert.Equal(t, 4, got.AvailableTickets)

	// no delay means no ProcessIn option
	require.NoError(t, client.Enqueue(context.Background(), waitlist.TaskBulkExecute, waitlist.BulkTaskPayload{Operation: waitlist.BulkOpRemove}, 0))
	assert.Equal(t, QueueLow, rec.opts[asynq.QueueOpt])
	assert.NotContains(t, rec.opts, asynq.ProcessInOpt)
}

func TestClientEnqueueFailure(t *testing.T) {
	client := newClient(&recordingEnqueuer{err: errors.New("redis down")}, 0, logger.Discard())
	err := client.Enqueue(context.Background(), waitlist.TaskExpirySweep, nil, 0)
	assert.ErrorContains(t, err, "redis down")

	err = client.Enqueue(context.Background(), waitlist.TaskExpirySweep, make(chan int), 0)
	assert.ErrorContains(t, err, "marshal")
}

func TestQueueFor(t *testing.T) {
	assert.Equal(t, QueueCritical, QueueFor(waitlist.TaskReleaseBatch))
	assert.Equal(t, QueueCritical, QueueFor(waitlist.TaskExpirySweep))
	assert.Equal(t, QueueLow, QueueFor(waitlist.TaskBulkExecute))
	assert.Equal(t, QueueDefault, QueueFor("something:else"))
}

func TestRetryDelay(t *testing.T) {
	delay := RetryDelay(2*time.Second, time.Minute)
	assert.Equal(t, 2*time.Second, delay(0, nil, nil))
	assert.Equal(t, 16*time.Second, delay(3, nil, nil))
	assert.Equal(t, time.Minute, delay(10, nil, nil))

	// max below base is lifted to base
	assert.Equal(t, 5*time.Second, RetryDelay(5*time.Second, time.Second)(4, nil, nil))
}

func newTestHandlers(t *testing.T) (*Handlers, *mocks.MockDirectory) {
	ctrl := gomock.NewController(t)
	directory := mocks.NewMockDirectory(ctrl)
	engine := waitlist.NewEngine(waitlist.EngineDeps{
		Store:     waitlist.NewMemoryStore(),
		Locker:    waitlist.NewLocalLocker(),
		Directory: directory,
		Notifier:  mocks.NewMockNotifier(ctrl),
		Orders:    mocks.NewMockOrderService(ctrl),
		Scheduler: mocks.NewMockJobScheduler(ctrl),
		Clock:     clock.NewMockClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)),
		Logger:    logger.Discard(),
	})
	return NewHandlers(engine, logger.Discard()), directory
}

func task(t *testing.T, name string, payload interface{}) *asynq.Task {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return asynq.NewTask(name, body)
}

func TestHandleReleaseBatch(t *testing.T) {
	h, directory := newTestHandlers(t)
	eventID := uuid.New()

	directory.EXPECT().GetEvent(gomock.Any(), eventID).
		Return(&waitlist.EventInfo{ID: eventID, Name: "Jazz Night", BasePrice: 80, AvailableTickets: 2}, nil)

	err := h.HandleReleaseBatch(context.Background(), task(t, waitlist.TaskReleaseBatch,
		waitlist.ReleaseBatchPayload{EventID: eventID, AvailableTickets: 2, Reason: waitlist.ReleaseReasonCancellation}))
	assert.NoError(t, err)
}

func TestHandleReleaseBatchSkipsRetry(t *testing.T) {
	h, directory := newTestHandlers(t)
	missing := uuid.New()
	directory.EXPECT().GetEvent(gomock.Any(), missing).Return(nil, errs.NotFound("event %s", missing))

	err := h.HandleReleaseBatch(context.Background(), asynq.NewTask(waitlist.TaskReleaseBatch, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = h.HandleReleaseBatch(context.Background(), task(t, waitlist.TaskReleaseBatch,
		waitlist.ReleaseBatchPayload{EventID: uuid.New(), AvailableTickets: 0}))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = h.HandleReleaseBatch(context.Background(), task(t, waitlist.TaskReleaseBatch,
		waitlist.ReleaseBatchPayload{EventID: missing, AvailableTickets: 1}))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleReleaseBatchRetriesTransientErrors(t *testing.T) {
	h, directory := newTestHandlers(t)
	directory.EXPECT().GetEvent(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection reset"))

	err := h.HandleReleaseBatch(context.Background(), task(t, waitlist.TaskReleaseBatch,
		waitlist.ReleaseBatchPayload{EventID: uuid.New(), AvailableTickets: 1}))
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleExpirySweepWithNothingDue(t *testing.T) {
	h, _ := newTestHandlers(t)
	assert.NoError(t, h.HandleExpirySweep(context.Background(), asynq.NewTask(waitlist.TaskExpirySweep, nil)))
}

func TestHandleBulkExecute(t *testing.T) {
	h, _ := newTestHandlers(t)

	err := h.HandleBulkExecute(context.Background(), task(t, waitlist.TaskBulkExecute, waitlist.BulkTaskPayload{Operation: "rename"}))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = h.HandleBulkExecute(context.Background(), asynq.NewTask(waitlist.TaskBulkExecute, []byte("not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestServeMuxRoutesEveryTask(t *testing.T) {
	h, _ := newTestHandlers(t)
	mux := h.NewServeMux()

	for _, name := range []string{waitlist.TaskReleaseBatch, waitlist.TaskExpirySweep, waitlist.TaskBulkExecute} {
		_, pattern := mux.Handler(asynq.NewTask(name, nil))
		assert.Equal(t, name, pattern)
	}
}

func TestInlineRunsThroughHandlers(t *testing.T) {
	h, directory := newTestHandlers(t)
	eventID := uuid.New()
	directory.EXPECT().GetEvent(gomock.Any(), eventID).Return(&waitlist.EventInfo{ID: eventID, BasePrice: 50}, nil)

	inline := NewInline(logger.Discard())
	err := inline.Enqueue(context.Background(), waitlist.TaskReleaseBatch, waitlist.ReleaseBatchPayload{EventID: eventID, AvailableTickets: 1}, 0)
	require.Error(t, err, "unbound scheduler must refuse tasks")

	inline.Bind(h)
	require.NoError(t, inline.Enqueue(context.Background(), waitlist.TaskReleaseBatch,
		waitlist.ReleaseBatchPayload{EventID: eventID, AvailableTickets: 1}, time.Millisecond))
	inline.Wait()
}

func TestInlineReleaseSettlesWhenNobodyFits(t *testing.T) {
	ctrl := gomock.NewController(t)
	directory := mocks.NewMockDirectory(ctrl)
	store := waitlist.NewMemoryStore()
	inline := NewInline(logger.Discard())

	engine := waitlist.NewEngine(waitlist.EngineDeps{
		Store:     store,
		Locker:    waitlist.NewLocalLocker(),
		Directory: directory,
		Notifier:  mocks.NewMockNotifier(ctrl),
		Orders:    mocks.NewMockOrderService(ctrl),
		Scheduler: inline,
		Clock:     clock.NewMockClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)),
		Logger:    logger.Discard(),
	})
	inline.Bind(NewHandlers(engine, logger.Discard()))

	eventID := uuid.New()
	directory.EXPECT().GetEvent(gomock.Any(), eventID).
		Return(&waitlist.EventInfo{ID: eventID, BasePrice: 50}, nil).AnyTimes()

	group := &waitlist.WaitlistEntry{
		UserID:         uuid.New(),
		EventID:        eventID,
		Priority:       waitlist.PriorityVIP,
		Status:         waitlist.EntryStatusActive,
		TicketQuantity: 4,
		JoinedAt:       time.Date(2025, 5, 30, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.CreateEntry(context.Background(), group))

	require.NoError(t, inline.Enqueue(context.Background(), waitlist.TaskReleaseBatch,
		waitlist.ReleaseBatchPayload{EventID: eventID, AvailableTickets: 1, Reason: waitlist.ReleaseReasonCancellation}, 0))

	done := make(chan struct{})
	go func() {
		inline.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("release kept rescheduling itself")
	}
	assert.Empty(t, store.Offers())
}
