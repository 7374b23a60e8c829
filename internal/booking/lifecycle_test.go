package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"booking-scheduler/internal/apperr"
	"booking-scheduler/internal/notify"
	"booking-scheduler/internal/schedule"
)

type memStore struct {
	mu       sync.Mutex
	services map[string]Service
	rules    []schedule.Rule
	bookings map[string]Reservation
	seq      int
	failList error
}

func newMemStore() *memStore {
	return &memStore{services: map[string]Service{}, bookings: map[string]Reservation{}}
}

func (m *memStore) GetService(_ context.Context, id string) (Service, error) {
	svc, ok := m.services[id]
	if !ok {
		return Service{}, apperr.NotFound("service %s not found", id)
	}
	return svc, nil
}

func (m *memStore) GetReservation(_ context.Context, id string) (Reservation, error) {
	r, ok := m.bookings[id]
	if !ok {
		return Reservation{}, apperr.NotFound("booking %s not found", id)
	}
	return r, nil
}

func (m *memStore) LockReservation(ctx context.Context, id string) (Reservation, error) {
	return m.GetReservation(ctx, id)
}

func (m *memStore) ListLiveReservations(_ context.Context, providerID string, date time.Time) ([]Reservation, error) {
	if m.failList != nil {
		return nil, m.failList
	}
	var out []Reservation
	for _, r := range m.bookings {
		if r.ProviderID == providerID && r.Date.Equal(schedule.Day(date)) && r.Status.Live() {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) InsertReservation(_ context.Context, r *Reservation) error {
	m.seq++
	r.ID = fmt.Sprintf("b%d", m.seq)
	m.bookings[r.ID] = *r
	return nil
}

func (m *memStore) UpdateReservation(_ context.Context, r Reservation) error {
	m.bookings[r.ID] = r
	return nil
}

func (m *memStore) ListReservations(_ context.Context, f Filter) ([]Reservation, error) {
	var out []Reservation
	for _, r := range m.bookings {
		if f.ProviderID != "" && r.ProviderID != f.ProviderID {
			continue
		}
		if f.UserID != "" && r.UserID != f.UserID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *memStore) ListAvailability(_ context.Context, providerID string) ([]schedule.Rule, error) {
	var out []schedule.Rule
	for _, r := range m.rules {
		if r.ProviderID == providerID {
			out = append(out, r)
		}
	}
	return out, nil
}

// WithProviderLock applies fn against a snapshot and only keeps the changes
// when fn succeeds, like a rolled back transaction would.
func (m *memStore) WithProviderLock(_ context.Context, _ string, fn func(Writer) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := make(map[string]Reservation, len(m.bookings))
	for k, v := range m.bookings {
		snapshot[k] = v
	}
	if err := fn(m); err != nil {
		m.bookings = snapshot
		return err
	}
	return nil
}

type recorder struct {
	sent []notify.Notification
}

func (r *recorder) Notify(_ context.Context, n notify.Notification) {
	r.sent = append(r.sent, n)
}

func (r *recorder) to(userID string) []notify.Notification {
	var out []notify.Notification
	for _, n := range r.sent {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

type busyStub struct {
	intervals []schedule.Interval
	err       error
}

func (b busyStub) BusyBetween(context.Context, string, time.Time, time.Time) ([]schedule.Interval, error) {
	return b.intervals, b.err
}

func (b busyStub) HasBusyConflict(_ context.Context, _ string, iv schedule.Interval) (bool, error) {
	if b.err != nil {
		return false, b.err
	}
	return schedule.OverlapsAny(iv, b.intervals), nil
}

var (
	monday = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	before = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	customer = Actor{ID: "u1", Role: RoleUser}
	other    = Actor{ID: "u2", Role: RoleUser}
	provider = Actor{ID: "p1", Role: RoleProvider}
	admin    = Actor{ID: "ops", Role: RoleAdmin}
)

func fixture(t *testing.T, opts ...Option) (*Lifecycle, *memStore, *recorder) {
	t.Helper()
	st := newMemStore()
	st.services["s60"] = Service{ID: "s60", ProviderID: "p1", Name: "Consult", DurationMinutes: 60, PriceCents: 5000, Currency: "usd"}
	st.services["s30"] = Service{ID: "s30", ProviderID: "p1", Name: "Quick", DurationMinutes: 30}
	st.services["other"] = Service{ID: "other", ProviderID: "p2", DurationMinutes: 30}
	st.rules = []schedule.Rule{{ProviderID: "p1", DayOfWeek: time.Monday, Start: schedule.MustClock("09:00"), End: schedule.MustClock("12:00")}}
	rec := &recorder{}
	opts = append([]Option{WithNotifier(rec), WithClock(func() time.Time { return before })}, opts...)
	return NewLifecycle(st, zaptest.NewLogger(t), opts...), st, rec
}

func book(t *testing.T, l *Lifecycle, start string) Reservation {
	t.Helper()
	res, err := l.Create(context.Background(), customer, CreateRequest{
		ProviderID: "p1", ServiceID: "s60", Date: monday, StartTime: schedule.MustClock(start),
	})
	require.NoError(t, err)
	return res
}

func TestCreate_DerivesEndAndNotifiesProvider(t *testing.T) {
	l, _, rec := fixture(t)

	res := book(t, l, "10:00")

	assert.Equal(t, "11:00", res.EndTime.String())
	assert.Equal(t, StatusPending, res.Status)
	assert.Equal(t, PaymentPending, res.PaymentStatus)
	assert.Equal(t, "u1", res.UserID)
	assert.Equal(t, int64(5000), res.PriceCents)
	require.Len(t, rec.to("p1"), 1)
	assert.Equal(t, notify.TypeBookingRequested, rec.to("p1")[0].Type)
}

func TestCreate_OverlapIsConflict(t *testing.T) {
	l, st, _ := fixture(t)
	book(t, l, "10:00")

	_, err := l.Create(context.Background(), other, CreateRequest{
		ProviderID: "p1", ServiceID: "s30", Date: monday, StartTime: schedule.MustClock("10:30"),
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Equal(t, "slot already booked", apperr.Message(err))
	assert.Len(t, st.bookings, 1)
}

func TestCreate_TouchingIntervalsDoNotConflict(t *testing.T) {
	l, _, _ := fixture(t)
	book(t, l, "10:00")
	book(t, l, "11:00")
	book(t, l, "09:00")
}

func TestCreate_CancelledBookingFreesInterval(t *testing.T) {
	l, _, _ := fixture(t)
	first := book(t, l, "10:00")
	_, err := l.Cancel(context.Background(), customer, first.ID)
	require.NoError(t, err)

	second := book(t, l, "10:00")
	assert.NotEqual(t, first.ID, second.ID)
}

func TestCreate_Validation(t *testing.T) {
	l, _, _ := fixture(t)
	ctx := context.Background()
	wrongEnd := schedule.MustClock("10:30")

	cases := []struct {
		name  string
		actor Actor
		req   CreateRequest
		kind  apperr.Kind
	}{
		{"unknown service", customer, CreateRequest{ProviderID: "p1", ServiceID: "nope", Date: monday, StartTime: schedule.MustClock("10:00")}, apperr.KindNotFound},
		{"service of another provider", customer, CreateRequest{ProviderID: "p1", ServiceID: "other", Date: monday, StartTime: schedule.MustClock("10:00")}, apperr.KindNotFound},
		{"mismatched end", customer, CreateRequest{ProviderID: "p1", ServiceID: "s60", Date: monday, StartTime: schedule.MustClock("10:00"), EndTime: &wrongEnd}, apperr.KindInvalid},
		{"past", customer, CreateRequest{ProviderID: "p1", ServiceID: "s60", Date: time.Date(2025, 12, 29, 0, 0, 0, 0, time.UTC), StartTime: schedule.MustClock("10:00")}, apperr.KindInvalid},
		{"runs past midnight", customer, CreateRequest{ProviderID: "p1", ServiceID: "s60", Date: monday, StartTime: schedule.MustClock("23:30")}, apperr.KindInvalid},
		{"on behalf of someone else", customer, CreateRequest{UserID: "u2", ProviderID: "p1", ServiceID: "s60", Date: monday, StartTime: schedule.MustClock("10:00")}, apperr.KindForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := l.Create(ctx, tc.actor, tc.req)
			require.Error(t, err)
			assert.Equal(t, tc.kind, apperr.KindOf(err))
		})
	}
}

func TestCreate_ExternalBusyBlocks(t *testing.T) {
	busy := busyStub{intervals: []schedule.Interval{schedule.On(monday, schedule.MustClock("10:15"), schedule.MustClock("10:45"))}}
	l, _, _ := fixture(t, WithBusySource(busy))

	_, err := l.Create(context.Background(), customer, CreateRequest{
		ProviderID: "p1", ServiceID: "s60", Date: monday, StartTime: schedule.MustClock("10:00"),
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Equal(t, "provider is busy in their calendar", apperr.Message(err))
}

func TestCreate_ExternalLookupFailureFailsOpen(t *testing.T) {
	l, _, _ := fixture(t, WithBusySource(busyStub{err: errors.New("redis down")}))
	book(t, l, "10:00")
}

func TestConfirmThenCancelByProvider(t *testing.T) {
	l, _, rec := fixture(t)
	ctx := context.Background()
	res := book(t, l, "10:00")

	_, err := l.Confirm(ctx, customer, res.ID)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	confirmed, err := l.Confirm(ctx, provider, res.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)

	_, err = l.Confirm(ctx, provider, res.ID)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))

	cancelled, err := l.Cancel(ctx, provider, res.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	types := []string{}
	for _, n := range rec.to("u1") {
		types = append(types, n.Type)
	}
	assert.Equal(t, []string{notify.TypeBookingConfirmed, notify.TypeBookingCancelled}, types)
}

func TestTerminalStatusesRejectEveryTransition(t *testing.T) {
	ctx := context.Background()
	for _, terminal := range []Status{StatusCompleted, StatusCancelled, StatusRefunded} {
		t.Run(string(terminal), func(t *testing.T) {
			l, st, _ := fixture(t)
			res := book(t, l, "10:00")
			r := st.bookings[res.ID]
			r.Status = terminal
			st.bookings[res.ID] = r

			_, err := l.Confirm(ctx, provider, res.ID)
			assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
			_, err = l.Cancel(ctx, customer, res.ID)
			assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
			_, err = l.Complete(ctx, provider, res.ID)
			assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
			_, err = l.Reschedule(ctx, customer, res.ID, monday, schedule.MustClock("11:00"))
			assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
			assert.Equal(t, terminal, st.bookings[res.ID].Status)

			for _, paid := range []PaymentStatus{PaymentPending, PaymentPaid} {
				r := st.bookings[res.ID]
				r.PaymentStatus = paid
				st.bookings[res.ID] = r

				_, err = l.ApplyPaymentSuccess(ctx, res.ID, "pi_late")
				assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err), "payment success with %s", paid)
				_, err = l.ApplyPaymentFailure(ctx, res.ID, "pi_late")
				assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err), "payment failure with %s", paid)
				_, err = l.ApplyRefund(ctx, res.ID, "pi_late")
				assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err), "refund with %s", paid)
				assert.Equal(t, terminal, st.bookings[res.ID].Status)
				assert.Equal(t, paid, st.bookings[res.ID].PaymentStatus)
			}
		})
	}
}

func TestComplete_RequiresConfirmed(t *testing.T) {
	l, _, _ := fixture(t)
	ctx := context.Background()
	res := book(t, l, "10:00")

	_, err := l.Complete(ctx, provider, res.ID)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))

	_, err = l.Confirm(ctx, provider, res.ID)
	require.NoError(t, err)
	done, err := l.Complete(ctx, admin, res.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
}

func TestReschedule_OwnIntervalIsNotAConflict(t *testing.T) {
	l, _, rec := fixture(t)
	res := book(t, l, "10:00")

	moved, err := l.Reschedule(context.Background(), customer, res.ID, monday, schedule.MustClock("10:30"))
	require.NoError(t, err)
	assert.Equal(t, res.ID, moved.ID)
	assert.Equal(t, "10:30", moved.StartTime.String())
	assert.Equal(t, "11:30", moved.EndTime.String())
	assert.Equal(t, StatusPending, moved.Status)
	assert.Equal(t, notify.TypeBookingRescheduled, rec.to("p1")[len(rec.to("p1"))-1].Type)
}

func TestReschedule_IntoAnotherBookingFails(t *testing.T) {
	l, st, _ := fixture(t)
	a := book(t, l, "09:00")
	book(t, l, "11:00")

	_, err := l.Reschedule(context.Background(), customer, a.ID, monday, schedule.MustClock("10:30"))
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Equal(t, "09:00", st.bookings[a.ID].StartTime.String())

	_, err = l.Reschedule(context.Background(), provider, a.ID, monday, schedule.MustClock("10:00"))
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestPaymentSuccess_ConfirmsOnceAndIsIdempotent(t *testing.T) {
	l, st, rec := fixture(t)
	ctx := context.Background()
	res := book(t, l, "10:00")

	paid, err := l.ApplyPaymentSuccess(ctx, res.ID, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, paid.Status)
	assert.Equal(t, PaymentPaid, paid.PaymentStatus)
	assert.Equal(t, "pi_1", paid.PaymentRef)
	sent := len(rec.sent)

	again, err := l.ApplyPaymentSuccess(ctx, res.ID, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, paid.Status, again.Status)
	assert.Len(t, rec.sent, sent)
	assert.Equal(t, StatusConfirmed, st.bookings[res.ID].Status)
}

func TestPaymentFailureThenRefundPath(t *testing.T) {
	l, _, _ := fixture(t)
	ctx := context.Background()
	res := book(t, l, "10:00")

	failed, err := l.ApplyPaymentFailure(ctx, res.ID, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, failed.Status)
	assert.Equal(t, PaymentFailed, failed.PaymentStatus)

	_, err = l.ApplyRefund(ctx, res.ID, "")
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))

	_, err = l.ApplyPaymentSuccess(ctx, res.ID, "pi_2")
	require.NoError(t, err)
	refunded, err := l.ApplyRefund(ctx, res.ID, "")
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, refunded.Status)
	assert.Equal(t, PaymentRefunded, refunded.PaymentStatus)
	assert.Equal(t, "pi_2", refunded.PaymentRef)
}

func TestNotifierIsBestEffort(t *testing.T) {
	st := newMemStore()
	st.services["s60"] = Service{ID: "s60", ProviderID: "p1", DurationMinutes: 60}
	sink := notify.NewService(failingNotifications{}, zaptest.NewLogger(t))
	l := NewLifecycle(st, zaptest.NewLogger(t), WithNotifier(sink), WithClock(func() time.Time { return before }))

	res, err := l.Create(context.Background(), customer, CreateRequest{
		ProviderID: "p1", ServiceID: "s60", Date: monday, StartTime: schedule.MustClock("10:00"),
	})
	require.NoError(t, err)
	assert.Contains(t, st.bookings, res.ID)
}

type failingNotifications struct{}

func (failingNotifications) InsertNotification(context.Context, *notify.Notification) error {
	return errors.New("insert failed")
}

func TestFreeSlots(t *testing.T) {
	busy := busyStub{intervals: []schedule.Interval{schedule.On(monday, schedule.MustClock("11:00"), schedule.MustClock("11:15"))}}
	l, _, _ := fixture(t, WithBusySource(busy))
	book(t, l, "09:00")

	slots, err := l.FreeSlots(context.Background(), "p1", "s30", monday)
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00", "10:30", "11:30"}, schedule.Strings(slots))
}

func TestFreeSlots_NoRulesIsEmpty(t *testing.T) {
	l, _, _ := fixture(t)
	slots, err := l.FreeSlots(context.Background(), "p1", "s30", monday.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestHasConflict(t *testing.T) {
	l, st, _ := fixture(t)
	ctx := context.Background()
	res := book(t, l, "10:00")

	hit, err := l.HasConflict(ctx, "p1", monday, schedule.MustClock("10:59"), schedule.MustClock("11:30"), "")
	require.NoError(t, err)
	assert.True(t, hit)

	hit, err = l.HasConflict(ctx, "p1", monday, schedule.MustClock("10:00"), schedule.MustClock("11:00"), res.ID)
	require.NoError(t, err)
	assert.False(t, hit)

	st.failList = errors.New("db down")
	_, err = l.HasConflict(ctx, "p1", monday, schedule.MustClock("10:00"), schedule.MustClock("11:00"), "")
	assert.Error(t, err)
}

func TestList_Scoping(t *testing.T) {
	l, _, _ := fixture(t)
	ctx := context.Background()
	book(t, l, "10:00")

	got, err := l.List(ctx, customer, Filter{UserID: "u1"})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = l.List(ctx, other, Filter{UserID: "u1"})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	got, err = l.List(ctx, admin, Filter{})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
