package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"booking-scheduler/internal/apperr"
	"booking-scheduler/internal/booking"
)

const bookingColumns = `id, user_id, provider_id, service_id, booking_date, start_time, end_time,
	status, payment_status, COALESCE(payment_ref, ''), price_cents, currency, created_at, updated_at`

func (s *Store) GetReservation(ctx context.Context, id string) (booking.Reservation, error) {
	return getReservation(ctx, s.db, id, false)
}

func (s *Store) ListLiveReservations(ctx context.Context, providerID string, date time.Time) ([]booking.Reservation, error) {
	return listLive(ctx, s.db, providerID, date)
}

func (s *Store) ListReservations(ctx context.Context, f booking.Filter) ([]booking.Reservation, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.ProviderID != "" {
		add("provider_id=$%d", f.ProviderID)
	}
	if f.UserID != "" {
		add("user_id=$%d", f.UserID)
	}
	if !f.From.IsZero() {
		add("booking_date >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("booking_date < $%d", f.To)
	}
	if f.Status != "" {
		add("status=$%d", string(f.Status))
	}

	q := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY booking_date, start_time`
	return queryReservations(ctx, s.db, q, args...)
}

// WithProviderLock serializes interval-changing writes per provider with a
// transaction-scoped advisory lock. The bookings exclusion constraint backs it
// up for writers that bypass the lock.
func (s *Store) WithProviderLock(ctx context.Context, providerID string, fn func(booking.Writer) error) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, providerID); err != nil {
			return fmt.Errorf("store: lock provider: %w", err)
		}
		return fn(txWriter{tx: tx, now: s.now})
	})
}

type txWriter struct {
	tx  pgx.Tx
	now func() time.Time
}

func (w txWriter) GetService(ctx context.Context, id string) (booking.Service, error) {
	return getService(ctx, w.tx, id)
}

func (w txWriter) GetReservation(ctx context.Context, id string) (booking.Reservation, error) {
	return getReservation(ctx, w.tx, id, false)
}

func (w txWriter) LockReservation(ctx context.Context, id string) (booking.Reservation, error) {
	return getReservation(ctx, w.tx, id, true)
}

func (w txWriter) ListLiveReservations(ctx context.Context, providerID string, date time.Time) ([]booking.Reservation, error) {
	return listLive(ctx, w.tx, providerID, date)
}

func (w txWriter) InsertReservation(ctx context.Context, r *booking.Reservation) error {
	now := w.now()
	r.ID = uuid.NewString()
	r.CreatedAt = now
	r.UpdatedAt = now

	q := `INSERT INTO bookings
	      (id, user_id, provider_id, service_id, booking_date, start_time, end_time,
	       status, payment_status, payment_ref, price_cents, currency, created_at, updated_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NULLIF($10,''),$11,$12,$13,$14)`
	_, err := w.tx.Exec(ctx, q,
		r.ID, r.UserID, r.ProviderID, r.ServiceID, r.Date, pgTime(r.StartTime), pgTime(r.EndTime),
		string(r.Status), string(r.PaymentStatus), r.PaymentRef, r.PriceCents, r.Currency, now, now)
	if isExclusionViolation(err) {
		return apperr.Conflict("slot already booked")
	}
	if err != nil {
		return fmt.Errorf("store: insert booking: %w", err)
	}
	return nil
}

func (w txWriter) UpdateReservation(ctx context.Context, r booking.Reservation) error {
	r.UpdatedAt = w.now()
	q := `UPDATE bookings SET booking_date=$2, start_time=$3, end_time=$4, status=$5,
	      payment_status=$6, payment_ref=NULLIF($7,''), updated_at=$8
	      WHERE id=$1`
	tag, err := w.tx.Exec(ctx, q,
		r.ID, r.Date, pgTime(r.StartTime), pgTime(r.EndTime), string(r.Status),
		string(r.PaymentStatus), r.PaymentRef, r.UpdatedAt)
	if isExclusionViolation(err) {
		return apperr.Conflict("the new time overlaps another booking")
	}
	if err != nil {
		return fmt.Errorf("store: update booking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("booking not found")
	}
	return nil
}

func getReservation(ctx context.Context, q querier, id string, forUpdate bool) (booking.Reservation, error) {
	sql := `SELECT ` + bookingColumns + ` FROM bookings WHERE id=$1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	r, err := scanReservation(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return booking.Reservation{}, apperr.NotFound("booking not found")
	}
	return r, err
}

func listLive(ctx context.Context, q querier, providerID string, date time.Time) ([]booking.Reservation, error) {
	sql := `SELECT ` + bookingColumns + ` FROM bookings
	        WHERE provider_id=$1 AND booking_date=$2 AND status IN ('pending','confirmed')
	        ORDER BY start_time`
	return queryReservations(ctx, q, sql, providerID, date)
}

func queryReservations(ctx context.Context, q querier, sql string, args ...any) ([]booking.Reservation, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list bookings: %w", err)
	}
	defer rows.Close()

	out := []booking.Reservation{}
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanReservation(row pgx.Row) (booking.Reservation, error) {
	var (
		r                     booking.Reservation
		start, end            pgtype.Time
		status, paymentStatus string
	)
	err := row.Scan(&r.ID, &r.UserID, &r.ProviderID, &r.ServiceID, &r.Date, &start, &end,
		&status, &paymentStatus, &r.PaymentRef, &r.PriceCents, &r.Currency, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return booking.Reservation{}, err
		}
		return booking.Reservation{}, fmt.Errorf("store: scan booking: %w", err)
	}
	r.StartTime = clockOf(start)
	r.EndTime = clockOf(end)
	r.Status = booking.Status(status)
	r.PaymentStatus = booking.PaymentStatus(paymentStatus)
	return r, nil
}
