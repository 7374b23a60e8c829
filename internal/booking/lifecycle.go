package booking

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"booking-scheduler/internal/apperr"
	"booking-scheduler/internal/metrics"
	"booking-scheduler/internal/notify"
	"booking-scheduler/internal/schedule"
)

var tracer = otel.Tracer("booking-scheduler/booking")

// Lifecycle owns every status change of a reservation.
type Lifecycle struct {
	store    Store
	busy     BusySource
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

type Option func(*Lifecycle)

// WithBusySource makes Create and FreeSlots honour externally synced busy time.
func WithBusySource(b BusySource) Option {
	return func(l *Lifecycle) { l.busy = b }
}

func WithNotifier(n Notifier) Option {
	return func(l *Lifecycle) { l.notifier = n }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Lifecycle) { l.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(l *Lifecycle) { l.now = now }
}

func NewLifecycle(store Store, logger *zap.Logger, opts ...Option) *Lifecycle {
	if store == nil {
		panic("booking: store required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Lifecycle{store: store, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type CreateRequest struct {
	UserID     string
	ProviderID string
	ServiceID  string
	Date       time.Time
	StartTime  schedule.Clock
	// EndTime is optional. When set it must equal StartTime plus the service
	// duration.
	EndTime *schedule.Clock
}

// Create books a pending reservation after checking the interval against live
// reservations and, when connected, the provider's external calendar.
func (l *Lifecycle) Create(ctx context.Context, actor Actor, req CreateRequest) (res Reservation, err error) {
	ctx, span := tracer.Start(ctx, "booking.create")
	defer func() { l.finish(span, "create", err) }()
	span.SetAttributes(
		attribute.String("booking.provider_id", req.ProviderID),
		attribute.String("booking.service_id", req.ServiceID),
	)

	if req.UserID == "" {
		req.UserID = actor.ID
	}
	if req.UserID != actor.ID && !actor.IsAdmin() {
		return Reservation{}, apperr.Forbidden("cannot book on behalf of another user")
	}

	svc, err := l.serviceFor(ctx, req.ProviderID, req.ServiceID)
	if err != nil {
		return Reservation{}, err
	}
	end := req.StartTime.Add(svc.DurationMinutes)
	if !req.StartTime.Valid() || !end.Valid() {
		return Reservation{}, apperr.Invalid("the service does not fit on %s starting at %s", req.Date.Format(time.DateOnly), req.StartTime)
	}
	if req.EndTime != nil && *req.EndTime != end {
		return Reservation{}, apperr.Invalid("end_time must be %s for a %d minute service", end, svc.DurationMinutes)
	}

	res = Reservation{
		UserID:        req.UserID,
		ProviderID:    req.ProviderID,
		ServiceID:     svc.ID,
		Date:          schedule.Day(req.Date),
		StartTime:     req.StartTime,
		EndTime:       end,
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		PriceCents:    svc.PriceCents,
		Currency:      svc.Currency,
	}
	iv := res.Interval()
	if iv.Start.Before(l.now()) {
		return Reservation{}, apperr.Invalid("cannot book a time in the past")
	}
	if err := l.checkExternal(ctx, req.ProviderID, iv); err != nil {
		return Reservation{}, err
	}

	err = l.store.WithProviderLock(ctx, req.ProviderID, func(w Writer) error {
		conflict, err := hasConflict(ctx, w, req.ProviderID, iv, "")
		if err != nil {
			return err
		}
		if conflict {
			return apperr.Conflict("slot already booked")
		}
		return w.InsertReservation(ctx, &res)
	})
	if err != nil {
		return Reservation{}, err
	}

	l.logger.Info("booking created",
		zap.String("booking_id", res.ID),
		zap.String("provider_id", res.ProviderID),
		zap.String("user_id", res.UserID),
		zap.String("date", res.Date.Format(time.DateOnly)),
		zap.Stringer("start", res.StartTime),
	)
	l.notify(ctx, res.ProviderID, notify.TypeBookingRequested, "New booking request",
		fmt.Sprintf("You have a new booking request for %s at %s.", res.Date.Format(time.DateOnly), res.StartTime), res.ID)
	return res, nil
}

// Get returns a reservation visible to actor.
func (l *Lifecycle) Get(ctx context.Context, actor Actor, id string) (Reservation, error) {
	r, err := l.store.GetReservation(ctx, id)
	if err != nil {
		return Reservation{}, err
	}
	if err := participant(actor, r); err != nil {
		return Reservation{}, err
	}
	return r, nil
}

// List returns reservations matching f. Non-admin actors only see their own
// bookings, as a user or as the provider.
func (l *Lifecycle) List(ctx context.Context, actor Actor, f Filter) ([]Reservation, error) {
	if !actor.IsAdmin() {
		switch {
		case f.ProviderID != "" && f.ProviderID == actor.ID:
		case f.UserID != "" && f.UserID == actor.ID:
		default:
			return nil, apperr.Forbidden("cannot list bookings of another account")
		}
	}
	return l.store.ListReservations(ctx, f)
}

// Confirm is the provider accepting a pending request.
func (l *Lifecycle) Confirm(ctx context.Context, actor Actor, id string) (res Reservation, err error) {
	ctx, span := tracer.Start(ctx, "booking.confirm")
	defer func() { l.finish(span, "confirm", err) }()

	res, _, err = l.mutate(ctx, id, providerOnly(actor, "confirm"), func(_ Writer, r *Reservation) (bool, error) {
		if r.Status != StatusPending {
			return false, apperr.InvalidState("only pending bookings can be confirmed, this one is %s", r.Status)
		}
		return true, r.moveTo(StatusConfirmed)
	})
	if err != nil {
		return Reservation{}, err
	}
	l.notify(ctx, res.UserID, notify.TypeBookingConfirmed, "Booking confirmed",
		fmt.Sprintf("Your booking on %s at %s was confirmed.", res.Date.Format(time.DateOnly), res.StartTime), res.ID)
	return res, nil
}

// Cancel may be called by either party. The other party is notified.
func (l *Lifecycle) Cancel(ctx context.Context, actor Actor, id string) (res Reservation, err error) {
	ctx, span := tracer.Start(ctx, "booking.cancel")
	defer func() { l.finish(span, "cancel", err) }()

	res, _, err = l.mutate(ctx, id, func(r Reservation) error { return participant(actor, r) }, func(_ Writer, r *Reservation) (bool, error) {
		if !r.Status.Live() {
			return false, apperr.InvalidState("cannot cancel a %s booking", r.Status)
		}
		return true, r.moveTo(StatusCancelled)
	})
	if err != nil {
		return Reservation{}, err
	}

	msg := fmt.Sprintf("The booking on %s at %s was cancelled.", res.Date.Format(time.DateOnly), res.StartTime)
	for _, recipient := range counterparties(actor, res) {
		l.notify(ctx, recipient, notify.TypeBookingCancelled, "Booking cancelled", msg, res.ID)
	}
	return res, nil
}

// Reschedule moves a live reservation to a new interval in place. The
// reservation's own current interval never counts as a conflict.
func (l *Lifecycle) Reschedule(ctx context.Context, actor Actor, id string, date time.Time, start schedule.Clock) (res Reservation, err error) {
	ctx, span := tracer.Start(ctx, "booking.reschedule")
	defer func() { l.finish(span, "reschedule", err) }()

	authorize := func(r Reservation) error {
		if actor.IsAdmin() || actor.ID == r.UserID {
			return nil
		}
		return apperr.Forbidden("only the customer can reschedule this booking")
	}
	res, _, err = l.mutate(ctx, id, authorize, func(w Writer, r *Reservation) (bool, error) {
		if !r.Status.Live() {
			return false, apperr.InvalidState("cannot reschedule a %s booking", r.Status)
		}
		svc, err := w.GetService(ctx, r.ServiceID)
		if err != nil {
			return false, err
		}
		end := start.Add(svc.DurationMinutes)
		if !start.Valid() || !end.Valid() {
			return false, apperr.Invalid("the service does not fit on %s starting at %s", date.Format(time.DateOnly), start)
		}
		iv := schedule.On(schedule.Day(date), start, end)
		if iv.Start.Before(l.now()) {
			return false, apperr.Invalid("cannot move a booking into the past")
		}
		if err := l.checkExternal(ctx, r.ProviderID, iv); err != nil {
			return false, err
		}
		conflict, err := hasConflict(ctx, w, r.ProviderID, iv, r.ID)
		if err != nil {
			return false, err
		}
		if conflict {
			return false, apperr.Conflict("the new time overlaps another booking")
		}
		r.Date = schedule.Day(date)
		r.StartTime = start
		r.EndTime = end
		return true, nil
	})
	if err != nil {
		return Reservation{}, err
	}

	l.notify(ctx, res.ProviderID, notify.TypeBookingRescheduled, "Booking rescheduled",
		fmt.Sprintf("A booking moved to %s at %s. Please re-confirm if needed.", res.Date.Format(time.DateOnly), res.StartTime), res.ID)
	return res, nil
}

// Complete closes a confirmed booking once the consultation has happened.
func (l *Lifecycle) Complete(ctx context.Context, actor Actor, id string) (res Reservation, err error) {
	ctx, span := tracer.Start(ctx, "booking.complete")
	defer func() { l.finish(span, "complete", err) }()

	res, _, err = l.mutate(ctx, id, providerOnly(actor, "complete"), func(_ Writer, r *Reservation) (bool, error) {
		return true, r.moveTo(StatusCompleted)
	})
	if err != nil {
		return Reservation{}, err
	}
	l.notify(ctx, res.UserID, notify.TypeBookingCompleted, "Booking completed",
		"Your consultation was marked as completed. You can now leave a review.", res.ID)
	return res, nil
}

// ApplyPaymentSuccess handles a successful checkout for booking id.
func (l *Lifecycle) ApplyPaymentSuccess(ctx context.Context, id, paymentRef string) (res Reservation, err error) {
	ctx, span := tracer.Start(ctx, "booking.payment_success")
	defer func() { l.finish(span, "payment_success", err) }()

	res, changed, err := l.mutate(ctx, id, nil, func(_ Writer, r *Reservation) (bool, error) {
		return ApplyPaymentSuccess(r, paymentRef)
	})
	if err != nil || !changed {
		return res, err
	}
	msg := fmt.Sprintf("Payment received for the booking on %s at %s.", res.Date.Format(time.DateOnly), res.StartTime)
	l.notify(ctx, res.UserID, notify.TypePaymentReceived, "Payment received", msg, res.ID)
	l.notify(ctx, res.ProviderID, notify.TypePaymentReceived, "Booking paid", msg, res.ID)
	return res, nil
}

func (l *Lifecycle) ApplyPaymentFailure(ctx context.Context, id, paymentRef string) (res Reservation, err error) {
	ctx, span := tracer.Start(ctx, "booking.payment_failure")
	defer func() { l.finish(span, "payment_failure", err) }()

	res, changed, err := l.mutate(ctx, id, nil, func(_ Writer, r *Reservation) (bool, error) {
		return ApplyPaymentFailure(r, paymentRef)
	})
	if err != nil || !changed {
		return res, err
	}
	l.notify(ctx, res.UserID, notify.TypePaymentFailed, "Payment failed",
		"Your payment did not go through. Please try again to keep your booking.", res.ID)
	return res, nil
}

func (l *Lifecycle) ApplyRefund(ctx context.Context, id, paymentRef string) (res Reservation, err error) {
	ctx, span := tracer.Start(ctx, "booking.refund")
	defer func() { l.finish(span, "refund", err) }()

	res, changed, err := l.mutate(ctx, id, nil, func(_ Writer, r *Reservation) (bool, error) {
		return ApplyRefund(r, paymentRef)
	})
	if err != nil || !changed {
		return res, err
	}
	msg := fmt.Sprintf("The payment for the booking on %s was refunded.", res.Date.Format(time.DateOnly))
	l.notify(ctx, res.UserID, notify.TypePaymentRefunded, "Payment refunded", msg, res.ID)
	l.notify(ctx, res.ProviderID, notify.TypePaymentRefunded, "Booking refunded", msg, res.ID)
	return res, nil
}

// FreeSlots lists the start times a user can still book on date.
func (l *Lifecycle) FreeSlots(ctx context.Context, providerID, serviceID string, date time.Time) ([]schedule.Clock, error) {
	svc, err := l.serviceFor(ctx, providerID, serviceID)
	if err != nil {
		return nil, err
	}
	rules, err := l.store.ListAvailability(ctx, providerID)
	if err != nil {
		return nil, err
	}
	day := schedule.Day(date)
	candidates := schedule.Dedupe(schedule.GenerateSlots(rules, day, svc.DurationMinutes))
	if len(candidates) == 0 {
		return []schedule.Clock{}, nil
	}

	live, err := l.store.ListLiveReservations(ctx, providerID, day)
	if err != nil {
		return nil, err
	}
	taken := make([]schedule.Interval, 0, len(live))
	for _, r := range live {
		taken = append(taken, r.Interval())
	}
	if l.busy != nil {
		busy, err := l.busy.BusyBetween(ctx, providerID, day, day.AddDate(0, 0, 1))
		if err != nil {
			l.logger.Warn("free slots: external calendar unavailable", zap.String("provider_id", providerID), zap.Error(err))
		}
		taken = append(taken, busy...)
	}

	now := l.now()
	out := make([]schedule.Clock, 0, len(candidates))
	for _, c := range candidates {
		iv := schedule.On(day, c, c.Add(svc.DurationMinutes))
		if iv.Start.Before(now) || schedule.OverlapsAny(iv, taken) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// mutate loads reservation id, authorizes, and applies fn inside the
// provider's lock. The row is only written when fn reports a change.
func (l *Lifecycle) mutate(ctx context.Context, id string, authorize func(Reservation) error, fn func(Writer, *Reservation) (bool, error)) (Reservation, bool, error) {
	current, err := l.store.GetReservation(ctx, id)
	if err != nil {
		return Reservation{}, false, err
	}
	if authorize != nil {
		if err := authorize(current); err != nil {
			return Reservation{}, false, err
		}
	}

	var (
		out     Reservation
		changed bool
	)
	err = l.store.WithProviderLock(ctx, current.ProviderID, func(w Writer) error {
		r, err := w.LockReservation(ctx, id)
		if err != nil {
			return err
		}
		changed, err = fn(w, &r)
		if err != nil {
			return err
		}
		if changed {
			if err := w.UpdateReservation(ctx, r); err != nil {
				return err
			}
		}
		out = r
		return nil
	})
	if err != nil {
		return Reservation{}, false, err
	}
	return out, changed, nil
}

func (l *Lifecycle) serviceFor(ctx context.Context, providerID, serviceID string) (Service, error) {
	svc, err := l.store.GetService(ctx, serviceID)
	if err != nil {
		return Service{}, err
	}
	if svc.ProviderID != providerID {
		return Service{}, apperr.NotFound("service %s is not offered by this provider", serviceID)
	}
	if svc.DurationMinutes <= 0 {
		return Service{}, apperr.Invalid("service %s has no duration", serviceID)
	}
	return svc, nil
}

// checkExternal consults the synced calendar opportunistically: a lookup
// failure is logged and does not block the booking.
func (l *Lifecycle) checkExternal(ctx context.Context, providerID string, iv schedule.Interval) error {
	conflict, err := l.HasExternalConflict(ctx, providerID, iv)
	if err != nil {
		l.logger.Warn("external busy check skipped", zap.String("provider_id", providerID), zap.Error(err))
		return nil
	}
	if conflict {
		return apperr.Conflict("provider is busy in their calendar")
	}
	return nil
}

func (l *Lifecycle) notify(ctx context.Context, userID, typ, title, message, bookingID string) {
	if l.notifier == nil {
		return
	}
	l.notifier.Notify(ctx, notify.Notification{
		UserID:    userID,
		Type:      typ,
		Title:     title,
		Message:   message,
		BookingID: bookingID,
	})
}

func (l *Lifecycle) finish(span trace.Span, operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(apperr.KindOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.Message(err))
	}
	l.metrics.ObserveTransition(operation, outcome)
	span.End()
}

func participant(actor Actor, r Reservation) error {
	if actor.IsAdmin() || actor.ID == r.UserID || actor.ID == r.ProviderID {
		return nil
	}
	return apperr.Forbidden("not a participant of this booking")
}

func providerOnly(actor Actor, action string) func(Reservation) error {
	return func(r Reservation) error {
		if actor.IsAdmin() || actor.ID == r.ProviderID {
			return nil
		}
		return apperr.Forbidden("only the provider can %s this booking", action)
	}
}

func counterparties(actor Actor, r Reservation) []string {
	switch actor.ID {
	case r.UserID:
		return []string{r.ProviderID}
	case r.ProviderID:
		return []string{r.UserID}
	}
	return []string{r.UserID, r.ProviderID}
}
