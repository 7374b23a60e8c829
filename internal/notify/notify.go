package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	TypeBookingRequested   = "booking_requested"
	TypeBookingConfirmed   = "booking_confirmed"
	TypeBookingCancelled   = "booking_cancelled"
	TypeBookingRescheduled = "booking_rescheduled"
	TypeBookingCompleted   = "booking_completed"
	TypePaymentReceived    = "payment_received"
	TypePaymentFailed      = "payment_failed"
	TypePaymentRefunded    = "payment_refunded"
)

// Notification is an in-app message addressed to a user or provider.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	BookingID string    `json:"booking_id,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists notifications.
type Store interface {
	InsertNotification(ctx context.Context, n *Notification) error
}

// Service delivers notifications without ever failing the caller.
type Service struct {
	store  Store
	logger *zap.Logger
}

func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger}
}

// Notify stores n. Errors are logged and dropped.
func (s *Service) Notify(ctx context.Context, n Notification) {
	if s == nil || s.store == nil {
		return
	}
	if n.UserID == "" {
		s.logger.Debug("notify: no recipient, skipping", zap.String("type", n.Type))
		return
	}
	if err := s.store.InsertNotification(ctx, &n); err != nil {
		s.logger.Warn("notify: failed to store notification",
			zap.String("user_id", n.UserID),
			zap.String("type", n.Type),
			zap.String("booking_id", n.BookingID),
			zap.Error(err),
		)
		return
	}
	s.logger.Debug("notify: stored", zap.String("user_id", n.UserID), zap.String("type", n.Type))
}
