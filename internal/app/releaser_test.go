package app

import (
	"context"
	"testing"

	"evently-waitlist/internal/waitlist"
	"evently-waitlist/internal/waitlist/mocks"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestReleaserQueuesReleaseBatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	sched := mocks.NewMockJobScheduler(ctrl)
	eventID := uuid.New()

	sched.EXPECT().Enqueue(gomock.Any(), waitlist.TaskReleaseBatch, waitlist.ReleaseBatchPayload{
		EventID:          eventID,
		AvailableTickets: 3,
		Reason:           waitlist.ReleaseReasonCancellation,
	}, gomock.Any()).Return(nil)

	r := &Releaser{scheduler: sched}
	require.NoError(t, r.ReleaseCancelled(context.Background(), eventID, 3))

	// nothing freed, nothing queued
	require.NoError(t, r.ReleaseInventory(context.Background(), eventID, 0, waitlist.ReleaseReasonPriceChange))
}
