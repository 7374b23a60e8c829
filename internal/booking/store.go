package booking

import (
	"context"
	"time"

	"booking-scheduler/internal/notify"
	"booking-scheduler/internal/schedule"
)

// Reader is the read side of booking persistence. Missing rows are reported
// as apperr NotFound errors.
type Reader interface {
	GetService(ctx context.Context, id string) (Service, error)
	GetReservation(ctx context.Context, id string) (Reservation, error)
	// ListLiveReservations returns the pending and confirmed reservations of a
	// provider on one calendar day.
	ListLiveReservations(ctx context.Context, providerID string, date time.Time) ([]Reservation, error)
}

// Writer is handed to callbacks running inside a provider-locked transaction.
type Writer interface {
	Reader
	LockReservation(ctx context.Context, id string) (Reservation, error)
	InsertReservation(ctx context.Context, r *Reservation) error
	UpdateReservation(ctx context.Context, r Reservation) error
}

type Store interface {
	Reader
	ListReservations(ctx context.Context, f Filter) ([]Reservation, error)
	ListAvailability(ctx context.Context, providerID string) ([]schedule.Rule, error)
	// WithProviderLock runs fn in a single transaction that serializes
	// interval-changing writes for providerID.
	WithProviderLock(ctx context.Context, providerID string, fn func(Writer) error) error
}

// BusySource lists externally synced busy time for a provider. Providers
// without a calendar connection yield no intervals.
type BusySource interface {
	BusyBetween(ctx context.Context, providerID string, from, to time.Time) ([]schedule.Interval, error)
	HasBusyConflict(ctx context.Context, providerID string, iv schedule.Interval) (bool, error)
}

// Notifier delivers notifications on a best-effort basis.
type Notifier interface {
	Notify(ctx context.Context, n notify.Notification)
}
