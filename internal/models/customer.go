package models

import (
	"time"

	"github.com/google/uuid"
)

type Customer struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	PriorityBooking bool      `json:"priority_booking"`
	CreatedAt       time.Time `json:"created_at"`
}
