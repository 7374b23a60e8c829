package booking

import (
	"encoding/json"
	"time"

	"booking-scheduler/internal/schedule"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
	PaymentFailed   PaymentStatus = "failed"
)

// Service is a consultation a provider offers. Its duration sizes every slot
// and reservation made against it.
type Service struct {
	ID              string    `json:"id"`
	ProviderID      string    `json:"provider_id"`
	Name            string    `json:"name"`
	DurationMinutes int       `json:"duration_minutes"`
	IsOnline        bool      `json:"is_online"`
	IsInPerson      bool      `json:"is_in_person"`
	PriceCents      int64     `json:"price_cents"`
	Currency        string    `json:"currency"`
	CreatedAt       time.Time `json:"created_at,omitempty"`
}

// Reservation is a booking of one service with one provider. Rows are never
// deleted; cancellation and refunds are status changes.
type Reservation struct {
	ID            string         `json:"id"`
	UserID        string         `json:"user_id"`
	ProviderID    string         `json:"provider_id"`
	ServiceID     string         `json:"service_id"`
	Date          time.Time      `json:"-"`
	StartTime     schedule.Clock `json:"start_time"`
	EndTime       schedule.Clock `json:"end_time"`
	Status        Status         `json:"status"`
	PaymentStatus PaymentStatus  `json:"payment_status"`
	PaymentRef    string         `json:"payment_ref,omitempty"`
	PriceCents    int64          `json:"price_cents"`
	Currency      string         `json:"currency"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Interval is the reserved [date+start, date+end) range.
func (r Reservation) Interval() schedule.Interval {
	return schedule.On(r.Date, r.StartTime, r.EndTime)
}

func (r Reservation) MarshalJSON() ([]byte, error) {
	type alias Reservation
	return json.Marshal(struct {
		alias
		Date string `json:"date"`
	}{alias(r), r.Date.Format(time.DateOnly)})
}

type Role string

const (
	RoleUser     Role = "user"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
)

// Actor is the authenticated caller of a lifecycle operation.
type Actor struct {
	ID   string
	Role Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Filter narrows reservation listings. Zero values are ignored.
type Filter struct {
	ProviderID string
	UserID     string
	From       time.Time
	To         time.Time
	Status     Status
}
