package waitlist

import (
	"net/http"
	"strconv"

	"evently-waitlist/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Controller struct {
	service      Service
	responses    *OfferResponseHandler
	releases     *ReleaseEngine
	recalculator *PositionRecalculator
	sweeper      *ExpirySweeper
	bulk         *BulkOperationExecutor
	scheduler    JobScheduler
}

func NewController(engine *Engine, scheduler JobScheduler) *Controller {
	return &Controller{
		service:      engine.Service,
		responses:    engine.Responses,
		releases:     engine.Releases,
		recalculator: engine.Recalculator,
		sweeper:      engine.Sweeper,
		bulk:         engine.Bulk,
		scheduler:    scheduler,
	}
}

func respondBadRequest(ctx *gin.Context, message string, details interface{}) {
	response.RespondJSON(ctx, "error", http.StatusBadRequest, message, nil, details)
}

// currentUser reads the user id the JWT middleware put on the context
func currentUser(ctx *gin.Context) (uuid.UUID, bool) {
	raw, exists := ctx.Get("user_id")
	if !exists {
		response.RespondJSON(ctx, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return uuid.Nil, false
	}
	idStr, _ := raw.(string)
	userID, err := uuid.Parse(idStr)
	if err != nil {
		respondBadRequest(ctx, "Invalid user ID", nil)
		return uuid.Nil, false
	}
	return userID, true
}

func uuidParam(ctx *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(ctx.Param(name))
	if err != nil {
		respondBadRequest(ctx, "Invalid "+name, nil)
		return uuid.Nil, false
	}
	return id, true
}

// JoinWaitlist godoc
// @Summary Join an event waitlist
// @Tags waitlist
// @Accept json
// @Produce json
// @Param request body JoinWaitlistRequest true "Join request"
// @Success 201 {object} response.StandardApiResponse
// @Router /waitlist [post]
func (c *Controller) JoinWaitlist(ctx *gin.Context) {
	var request JoinWaitlistRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		respondBadRequest(ctx, "Invalid request body", err.Error())
		return
	}

	userID, ok := currentUser(ctx)
	if !ok {
		return
	}

	result, err := c.service.JoinWaitlist(ctx.Request.Context(), userID, &request)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}
	response.RespondJSON(ctx, "success", http.StatusCreated, "Successfully joined waitlist", result, nil)
}

// LeaveWaitlist godoc
// @Summary Leave an event waitlist
// @Tags waitlist
// @Param event_id path string true "Event ID"
// @Success 200 {object} response.StandardApiResponse
// @Router /waitlist/{event_id} [delete]
func (c *Controller) LeaveWaitlist(ctx *gin.Context) {
	eventID, ok := uuidParam(ctx, "event_id")
	if !ok {
		return
	}
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}

	if err := c.service.LeaveWaitlist(ctx.Request.Context(), userID, eventID); err != nil {
		response.RespondError(ctx, err)
		return
	}
	response.RespondJSON(ctx, "success", http.StatusOK, "Successfully left waitlist", nil, nil)
}

// GetWaitlistStatus godoc
// @Summary Current waitlist entry of the caller
// @Tags waitlist
// @Param event_id path string true "Event ID"
// @Success 200 {object} response.StandardApiResponse
// @Router /waitlist/status/{event_id} [get]
func (c *Controller) GetWaitlistStatus(ctx *gin.Context) {
	eventID, ok := uuidParam(ctx, "event_id")
	if !ok {
		return
	}
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}

	status, err := c.service.GetWaitlistStatus(ctx.Request.Context(), userID, eventID)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}
	response.RespondJSON(ctx, "success", http.StatusOK, "Waitlist status", status, nil)
}

// RespondToOffer godoc
// @Summary Accept or decline a ticket offer
// @Tags waitlist
// @Accept json
// @Param offer_id path string true "Offer ID"
// @Param request body RespondOfferRequest true "Response"
// @Success 200 {object} response.StandardApiResponse
// @Failure 410 {object} response.StandardApiResponse
// @Router /waitlist/offers/{offer_id}/respond [post]
func (c *Controller) RespondToOffer(ctx *gin.Context) {
	offerID, ok := uuidParam(ctx, "offer_id")
	if !ok {
		return
	}
	var request RespondOfferRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		respondBadRequest(ctx, "Invalid request body", err.Error())
		return
	}
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}

	result, err := c.responses.Respond(ctx.Request.Context(), RespondRequest{
		OfferID:       offerID,
		UserID:        userID,
		Action:        request.Action,
		DeclineReason: request.DeclineReason,
	})
	if err != nil {
		response.RespondError(ctx, err)
		return
	}
	response.RespondJSON(ctx, "success", http.StatusOK, "Offer "+string(result.Offer.Status), result, nil)
}

func (c *Controller) GetMyOffers(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}

	offers, err := c.service.GetUserOffers(ctx.Request.Context(), userID)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}
	response.RespondJSON(ctx, "success", http.StatusOK, "Ticket offers", offers, nil)
}

func (c *Controller) GetWaitlistStats(ctx *gin.Context) {
	eventID, ok := uuidParam(ctx, "event_id")
	if !ok {
		return
	}

	stats, err := c.service.GetWaitlistStats(ctx.Request.Context(), eventID)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}
	response.RespondJSON(ctx, "success", http.StatusOK, "Waitlist stats", stats, nil)
}

func (c *Controller) GetWaitlistEntries(ctx *gin.Context) {
	eventID, ok := uuidParam(ctx, "event_id")
	if !ok {
		return
	}

	status := EntryStatus(ctx.Query("status"))
	if status != "" && !status.IsValid() {
		respondBadRequest(ctx, "Invalid status filter", nil)
		return
	}

	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", strconv.Itoa(DefaultPageSize)))

	entries, err := c.service.GetWaitlistEntries(ctx.Request.Context(), eventID, status, page, limit)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}
	response.RespondJSON(ctx, "success", http.StatusOK, "Waitlist entries", entries, nil)
}

// ReleaseTickets godoc
// @Summary Offer newly available tickets to the waitlist
// @Tags admin-waitlist
// @Accept json
// @Param event_id path string true "Event ID"
// @Param request body ReleaseTicketsRequest true "Release"
// @Success 200 {object} response.StandardApiResponse
// @Router /admin/waitlist/release/{event_id} [post]
func (c *Controller) ReleaseTickets(ctx *gin.Context) {
	eventID, ok := uuidParam(ctx, "event_id")
	if !ok {
		return
	}
	var request ReleaseTicketsRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		respondBadRequest(ctx, "Invalid request body", err.Error())
		return
	}

	req := ReleaseRequest{
		EventID:          eventID,
		AvailableTickets: request.AvailableTickets,
		Reason:           request.Reason,
		SeatSections:     request.SeatSections,
	}
	if request.Strategy != nil {
		strategy := request.Strategy.Merge(c.releases.DefaultStrategy())
		req.Strategy = &strategy
	}

	result, err := c.releases.Release(ctx.Request.Context(), req)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}
	response.RespondJSON(ctx, "success", http.StatusOK, "Tickets released", result, nil)
}

func (c *Controller) RecalculatePositions(ctx *gin.Context) {
	eventID, ok := uuidParam(ctx, "event_id")
	if !ok {
		return
	}

	result, err := c.recalculator.Recalculate(ctx.Request.Context(), eventID)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}
	response.RespondJSON(ctx, "success", http.StatusOK, "Positions recalculated", result, nil)
}

func (c *Controller) SweepExpiredOffers(ctx *gin.Context) {
	result, err := c.sweeper.Sweep(ctx.Request.Context())
	if err != nil {
		response.RespondError(ctx, err)
		return
	}
	response.RespondJSON(ctx, "success", http.StatusOK, "Expiry sweep complete", result, nil)
}

func (c *Controller) UpgradePriority(ctx *gin.Context) {
	entryID, ok := uuidParam(ctx, "entry_id")
	if !ok {
		return
	}
	var request UpgradePriorityRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		respondBadRequest(ctx, "Invalid request body", err.Error())
		return
	}

	result, err := c.service.UpgradePriority(ctx.Request.Context(), entryID, request.Priority)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}
	response.RespondJSON(ctx, "success", http.StatusOK, "Priority upgraded", result, nil)
}

func (c *Controller) BulkUpdate(ctx *gin.Context) {
	var request BulkUpdateRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		respondBadRequest(ctx, "Invalid request body", err.Error())
		return
	}
	patch := request.Patch
	c.runBulk(ctx, BulkTaskPayload{
		Operation: BulkOpUpdate,
		Filter:    request.Filter,
		Patch:     &patch,
		Options:   request.Options,
	})
}

func (c *Controller) BulkRemove(ctx *gin.Context) {
	var request BulkRemoveRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		respondBadRequest(ctx, "Invalid request body", err.Error())
		return
	}
	c.runBulk(ctx, BulkTaskPayload{
		Operation: BulkOpRemove,
		Filter:    request.Filter,
		Reason:    request.Reason,
		Options:   request.Options,
	})
}

func (c *Controller) BulkImport(ctx *gin.Context) {
	var request BulkImportRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		respondBadRequest(ctx, "Invalid request body", err.Error())
		return
	}
	c.runBulk(ctx, BulkTaskPayload{
		Operation: BulkOpImport,
		EventID:   request.EventID,
		Rows:      request.Rows,
		Options:   request.Options,
		Import:    request.Import,
	})
}

func (c *Controller) BulkAdjustPositions(ctx *gin.Context) {
	var request BulkAdjustRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		respondBadRequest(ctx, "Invalid request body", err.Error())
		return
	}
	adjustment := request.Adjustment
	c.runBulk(ctx, BulkTaskPayload{
		Operation:  BulkOpAdjust,
		Filter:     request.Filter,
		Adjustment: &adjustment,
		Options:    request.Options,
	})
}

// runBulk executes inline, or queues the operation when ?async=true
func (c *Controller) runBulk(ctx *gin.Context, payload BulkTaskPayload) {
	async, _ := strconv.ParseBool(ctx.Query("async"))
	if async && !payload.Options.DryRun && c.scheduler != nil {
		if err := c.scheduler.Enqueue(ctx.Request.Context(), TaskBulkExecute, payload, 0); err != nil {
			response.RespondError(ctx, err)
			return
		}
		response.RespondJSON(ctx, "success", http.StatusAccepted, "Bulk "+payload.Operation+" queued", gin.H{
			"operation": payload.Operation,
		}, nil)
		return
	}

	result, err := c.bulk.Execute(ctx.Request.Context(), payload)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}
	response.RespondJSON(ctx, "success", http.StatusOK, "Bulk "+payload.Operation+" complete", result, nil)
}

func (c *Controller) HealthCheck(ctx *gin.Context) {
	response.RespondJSON(ctx, "success", http.StatusOK, "Waitlist service is healthy", gin.H{
		"service": "waitlist",
	}, nil)
}
