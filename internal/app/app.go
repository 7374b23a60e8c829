// Package app is the HTTP API of the booking scheduler.
package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"booking-scheduler/internal/booking"
	"booking-scheduler/internal/calendar"
	"booking-scheduler/internal/notify"
	"booking-scheduler/internal/schedule"
)

// Bookings is the reservation lifecycle.
type Bookings interface {
	Create(ctx context.Context, actor booking.Actor, req booking.CreateRequest) (booking.Reservation, error)
	Get(ctx context.Context, actor booking.Actor, id string) (booking.Reservation, error)
	List(ctx context.Context, actor booking.Actor, f booking.Filter) ([]booking.Reservation, error)
	Confirm(ctx context.Context, actor booking.Actor, id string) (booking.Reservation, error)
	Cancel(ctx context.Context, actor booking.Actor, id string) (booking.Reservation, error)
	Reschedule(ctx context.Context, actor booking.Actor, id string, date time.Time, start schedule.Clock) (booking.Reservation, error)
	Complete(ctx context.Context, actor booking.Actor, id string) (booking.Reservation, error)
	FreeSlots(ctx context.Context, providerID, serviceID string, date time.Time) ([]schedule.Clock, error)
	HasConflict(ctx context.Context, providerID string, date time.Time, start, end schedule.Clock, excludeID string) (bool, error)
}

// Catalog is the provider-owned data edited directly through the API.
type Catalog interface {
	ListAvailability(ctx context.Context, providerID string) ([]schedule.Rule, error)
	SetAvailability(ctx context.Context, providerID string, rules []schedule.Rule) error
	CreateService(ctx context.Context, svc *booking.Service) error
	ListServices(ctx context.Context, providerID string) ([]booking.Service, error)
	ListNotifications(ctx context.Context, userID string, limit int) ([]notify.Notification, error)
	Ping(ctx context.Context) error
}

// Calendar is the external calendar connection of providers.
type Calendar interface {
	AuthURL(ctx context.Context, providerID string) (string, error)
	Callback(ctx context.Context, state, code string) (calendar.Token, error)
	Sync(ctx context.Context, providerID string) (int, error)
	Disconnect(ctx context.Context, providerID string) error
	BusyIntervals(ctx context.Context, providerID string, from, to time.Time) ([]calendar.BusyInterval, error)
}

// SyncQueue hands calendar work to the background worker.
type SyncQueue interface {
	EnqueueSync(ctx context.Context, providerID string) (string, error)
	EnqueueSyncAll(ctx context.Context) (string, error)
}

type App struct {
	bookings Bookings
	catalog  Catalog
	calendar Calendar
	queue    SyncQueue
	logger   *zap.Logger
	now      func() time.Time
}

type Deps struct {
	Bookings Bookings
	Catalog  Catalog
	Calendar Calendar
	Queue    SyncQueue
	Logger   *zap.Logger
}

func New(d Deps) *App {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &App{
		bookings: d.Bookings,
		catalog:  d.Catalog,
		calendar: d.Calendar,
		queue:    d.Queue,
		logger:   d.Logger,
		now:      time.Now,
	}
}
