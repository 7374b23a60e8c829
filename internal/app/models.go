package app

import (
	"booking-scheduler/internal/booking"
	"booking-scheduler/internal/schedule"
)

type createServiceReq struct {
	Name            string `json:"name" binding:"required"`
	DurationMinutes int    `json:"duration_minutes" binding:"required,min=5,max=1440"`
	IsOnline        bool   `json:"is_online"`
	IsInPerson      bool   `json:"is_in_person"`
	PriceCents      int64  `json:"price_cents" binding:"min=0"`
	Currency        string `json:"currency"`
}

type createBookingReq struct {
	UserID     string `json:"user_id"` // optional, defaults to the caller
	ProviderID string `json:"provider_id" binding:"required"`
	ServiceID  string `json:"service_id" binding:"required"`
	Date       string `json:"date" binding:"required"`       // YYYY-MM-DD
	StartTime  string `json:"start_time" binding:"required"` // HH:MM
	EndTime    string `json:"end_time,omitempty"`
}

type rescheduleReq struct {
	Date      string `json:"date" binding:"required"`
	StartTime string `json:"start_time" binding:"required"`
}

type slotsResp struct {
	ProviderID string           `json:"provider_id"`
	ServiceID  string           `json:"service_id"`
	Date       string           `json:"date"`
	Slots      []schedule.Clock `json:"slots"`
}

type bookingsResp struct {
	Bookings []booking.Reservation `json:"bookings"`
	Count    int                   `json:"count"`
}
