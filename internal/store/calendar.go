package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"booking-scheduler/internal/apperr"
	"booking-scheduler/internal/calendar"
)

func (s *Store) GetToken(ctx context.Context, providerID string) (calendar.Token, error) {
	q := `SELECT provider_id, access_token, refresh_token, expires_at, calendar_id, is_active, updated_at
	      FROM calendar_tokens WHERE provider_id=$1`
	var t calendar.Token
	err := s.db.QueryRow(ctx, q, providerID).Scan(
		&t.ProviderID, &t.AccessToken, &t.RefreshToken, &t.ExpiresAt, &t.CalendarID, &t.IsActive, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return calendar.Token{}, apperr.NotFound("calendar is not connected")
	}
	if err != nil {
		return calendar.Token{}, fmt.Errorf("store: get calendar token: %w", err)
	}
	return t, nil
}

func (s *Store) UpsertToken(ctx context.Context, t calendar.Token) error {
	q := `INSERT INTO calendar_tokens
	      (provider_id, access_token, refresh_token, expires_at, calendar_id, is_active, updated_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7)
	      ON CONFLICT (provider_id) DO UPDATE SET
	        access_token=EXCLUDED.access_token,
	        refresh_token=EXCLUDED.refresh_token,
	        expires_at=EXCLUDED.expires_at,
	        calendar_id=EXCLUDED.calendar_id,
	        is_active=EXCLUDED.is_active,
	        updated_at=EXCLUDED.updated_at`
	_, err := s.db.Exec(ctx, q,
		t.ProviderID, t.AccessToken, t.RefreshToken, t.ExpiresAt, t.CalendarID, t.IsActive, s.now())
	if err != nil {
		return fmt.Errorf("store: upsert calendar token: %w", err)
	}
	return nil
}

func (s *Store) DeactivateToken(ctx context.Context, providerID string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE calendar_tokens SET is_active=false, updated_at=$2 WHERE provider_id=$1`, providerID, s.now())
	if err != nil {
		return fmt.Errorf("store: deactivate calendar token: %w", err)
	}
	return nil
}

func (s *Store) DeleteConnection(ctx context.Context, providerID string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM busy_intervals WHERE provider_id=$1`, providerID); err != nil {
			return fmt.Errorf("store: delete busy intervals: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM calendar_tokens WHERE provider_id=$1`, providerID); err != nil {
			return fmt.Errorf("store: delete calendar token: %w", err)
		}
		return nil
	})
}

// ReplaceBusyIntervals deletes the cached set and copies the new one in the
// same transaction, so a failed copy keeps the previous intervals.
func (s *Store) ReplaceBusyIntervals(ctx context.Context, providerID string, intervals []calendar.BusyInterval) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM busy_intervals WHERE provider_id=$1`, providerID); err != nil {
			return fmt.Errorf("store: clear busy intervals: %w", err)
		}
		if len(intervals) == 0 {
			return nil
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"busy_intervals"},
			[]string{"provider_id", "external_event_id", "title", "start_time", "end_time"},
			pgx.CopyFromSlice(len(intervals), func(i int) ([]any, error) {
				b := intervals[i]
				return []any{providerID, b.ExternalEventID, b.Title, b.Start, b.End}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("store: insert busy intervals: %w", err)
		}
		return nil
	})
}

// ListBusyIntervals returns cached intervals overlapping [from, to).
func (s *Store) ListBusyIntervals(ctx context.Context, providerID string, from, to time.Time) ([]calendar.BusyInterval, error) {
	q := `SELECT provider_id, external_event_id, title, start_time, end_time
	      FROM busy_intervals
	      WHERE provider_id=$1 AND start_time < $3 AND end_time > $2
	      ORDER BY start_time`
	rows, err := s.db.Query(ctx, q, providerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("store: list busy intervals: %w", err)
	}
	defer rows.Close()

	out := []calendar.BusyInterval{}
	for rows.Next() {
		var b calendar.BusyInterval
		if err := rows.Scan(&b.ProviderID, &b.ExternalEventID, &b.Title, &b.Start, &b.End); err != nil {
			return nil, fmt.Errorf("store: scan busy interval: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) ListActiveProviders(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT provider_id FROM calendar_tokens WHERE is_active ORDER BY provider_id`)
	if err != nil {
		return nil, fmt.Errorf("store: list calendar providers: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan calendar provider: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
