package app

import (
	"context"

	"evently-waitlist/internal/waitlist"

	"github.com/google/uuid"
)

// Releaser queues tickets freed outside the waitlist (cancellations,
// capacity and price changes) as a release batch, so a failed release is
// retried by the worker instead of the request that freed them.
type Releaser struct {
	scheduler waitlist.JobScheduler
}

func (r *Releaser) ReleaseCancelled(ctx context.Context, eventID uuid.UUID, quantity int) error {
	return r.ReleaseInventory(ctx, eventID, quantity, waitlist.ReleaseReasonCancellation)
}

func (r *Releaser) ReleaseInventory(ctx context.Context, eventID uuid.UUID, quantity int, reason waitlist.ReleaseReason) error {
	if quantity <= 0 {
		return nil
	}
	return r.scheduler.Enqueue(ctx, waitlist.TaskReleaseBatch, waitlist.ReleaseBatchPayload{
		EventID:          eventID,
		AvailableTickets: quantity,
		Reason:           reason,
	}, 0)
}
