package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"booking-scheduler/internal/notify"
)

func (s *Store) InsertNotification(ctx context.Context, n *notify.Notification) error {
	n.ID = uuid.NewString()
	n.CreatedAt = s.now()
	q := `INSERT INTO notifications (id, user_id, type, title, message, booking_id, read, created_at)
	      VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),false,$7)`
	_, err := s.db.Exec(ctx, q, n.ID, n.UserID, n.Type, n.Title, n.Message, n.BookingID, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: insert notification: %w", err)
	}
	return nil
}

func (s *Store) ListNotifications(ctx context.Context, userID string, limit int) ([]notify.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	q := `SELECT id, user_id, type, title, message, COALESCE(booking_id::text, ''), read, created_at
	      FROM notifications WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2`
	rows, err := s.db.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list notifications: %w", err)
	}
	defer rows.Close()

	out := []notify.Notification{}
	for rows.Next() {
		var n notify.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.BookingID, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkEventProcessed records a webhook event id and reports false when it was
// already recorded.
func (s *Store) MarkEventProcessed(ctx context.Context, source, eventID string) (bool, error) {
	q := `INSERT INTO processed_events (source, event_id, processed_at)
	      VALUES ($1, $2, $3)
	      ON CONFLICT DO NOTHING`
	tag, err := s.db.Exec(ctx, q, source, eventID, s.now())
	if err != nil {
		return false, fmt.Errorf("store: mark event processed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ForgetEvent removes a processed marker so a failed delivery can be retried.
func (s *Store) ForgetEvent(ctx context.Context, source, eventID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM processed_events WHERE source=$1 AND event_id=$2`, source, eventID)
	if err != nil {
		return fmt.Errorf("store: forget event: %w", err)
	}
	return nil
}
