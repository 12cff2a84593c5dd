package events

// EventResponse adds live availability to an event
type EventResponse struct {
	Event
	HeldTickets      int `json:"held_tickets"`
	AvailableTickets int `json:"available_tickets"`
}

type PaginatedEvents struct {
	Events     []Event `json:"events"`
	TotalCount int64   `json:"total_count"`
	Page       int     `json:"page"`
	Limit      int     `json:"limit"`
}
