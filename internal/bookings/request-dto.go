package bookings

type BookingListQuery struct {
	Page    int    `form:"page" binding:"omitempty,min=1"`
	Limit   int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Status  string `form:"status" binding:"omitempty,oneof=CONFIRMED CANCELLED"`
	EventID string `form:"event_id" binding:"omitempty,uuid"`
}
