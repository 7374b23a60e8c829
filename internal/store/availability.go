package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"booking-scheduler/internal/schedule"
)

func (s *Store) ListAvailability(ctx context.Context, providerID string) ([]schedule.Rule, error) {
	q := `SELECT id, provider_id, day_of_week, start_time, end_time
	      FROM availability_rules WHERE provider_id=$1 ORDER BY id`
	rows, err := s.db.Query(ctx, q, providerID)
	if err != nil {
		return nil, fmt.Errorf("store: list availability: %w", err)
	}
	defer rows.Close()

	out := []schedule.Rule{}
	for rows.Next() {
		var (
			r          schedule.Rule
			day        int
			start, end pgtype.Time
		)
		if err := rows.Scan(&r.ID, &r.ProviderID, &day, &start, &end); err != nil {
			return nil, fmt.Errorf("store: scan availability: %w", err)
		}
		r.DayOfWeek = time.Weekday(day)
		r.Start = clockOf(start)
		r.End = clockOf(end)
		out = append(out, r)
	}
	return out, rows.Err()
}

// SetAvailability replaces every rule of the provider. Readers see either the
// old set or the new one.
func (s *Store) SetAvailability(ctx context.Context, providerID string, rules []schedule.Rule) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM availability_rules WHERE provider_id=$1`, providerID); err != nil {
			return fmt.Errorf("store: clear availability: %w", err)
		}
		if len(rules) == 0 {
			return nil
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"availability_rules"},
			[]string{"provider_id", "day_of_week", "start_time", "end_time"},
			pgx.CopyFromSlice(len(rules), func(i int) ([]any, error) {
				r := rules[i]
				return []any{providerID, int(r.DayOfWeek), pgTime(r.Start), pgTime(r.End)}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("store: insert availability: %w", err)
		}
		return nil
	})
}
