package events

import "time"

type CreateEventRequest struct {
	Name          string    `json:"name" binding:"required,min=3,max=255"`
	Description   string    `json:"description" binding:"max=2000"`
	Venue         string    `json:"venue" binding:"required,max=255"`
	DateTime      time.Time `json:"date_time" binding:"required"`
	TotalCapacity int       `json:"total_capacity" binding:"required,gt=0"`
	Price         float64   `json:"price" binding:"gte=0"`
	Publish       bool      `json:"publish"`
}

// UpdateEventRequest changes only the fields that are set
type UpdateEventRequest struct {
	Name          *string    `json:"name,omitempty" binding:"omitempty,min=3,max=255"`
	Description   *string    `json:"description,omitempty" binding:"omitempty,max=2000"`
	Venue         *string    `json:"venue,omitempty" binding:"omitempty,max=255"`
	DateTime      *time.Time `json:"date_time,omitempty"`
	TotalCapacity *int       `json:"total_capacity,omitempty" binding:"omitempty,gt=0"`
	Price         *float64   `json:"price,omitempty" binding:"omitempty,gte=0"`
	Status        *string    `json:"status,omitempty" binding:"omitempty,oneof=draft published cancelled completed"`
}

type EventListQuery struct {
	Page  int `form:"page,default=1" binding:"min=1"`
	Limit int `form:"limit,default=20" binding:"min=1,max=100"`
}
