package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"booking-scheduler/internal/apperr"
	"booking-scheduler/internal/booking"
)

const serviceColumns = `id, provider_id, name, duration_minutes, is_online, is_in_person, price_cents, currency, created_at`

func (s *Store) CreateService(ctx context.Context, svc *booking.Service) error {
	svc.ID = uuid.NewString()
	svc.CreatedAt = s.now()
	q := `INSERT INTO services (` + serviceColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err := s.db.Exec(ctx, q,
		svc.ID, svc.ProviderID, svc.Name, svc.DurationMinutes, svc.IsOnline, svc.IsInPerson,
		svc.PriceCents, svc.Currency, svc.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: insert service: %w", err)
	}
	return nil
}

func (s *Store) GetService(ctx context.Context, id string) (booking.Service, error) {
	return getService(ctx, s.db, id)
}

func (s *Store) ListServices(ctx context.Context, providerID string) ([]booking.Service, error) {
	q := `SELECT ` + serviceColumns + ` FROM services WHERE provider_id=$1 ORDER BY created_at`
	rows, err := s.db.Query(ctx, q, providerID)
	if err != nil {
		return nil, fmt.Errorf("store: list services: %w", err)
	}
	defer rows.Close()

	out := []booking.Service{}
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

func getService(ctx context.Context, q querier, id string) (booking.Service, error) {
	row := q.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE id=$1`, id)
	svc, err := scanService(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return booking.Service{}, apperr.NotFound("service not found")
	}
	return svc, err
}

func scanService(row pgx.Row) (booking.Service, error) {
	var svc booking.Service
	err := row.Scan(&svc.ID, &svc.ProviderID, &svc.Name, &svc.DurationMinutes, &svc.IsOnline,
		&svc.IsInPerson, &svc.PriceCents, &svc.Currency, &svc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return booking.Service{}, err
		}
		return booking.Service{}, fmt.Errorf("store: scan service: %w", err)
	}
	return svc, nil
}
