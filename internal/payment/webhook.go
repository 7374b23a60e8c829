// Package payment applies Stripe payment events to bookings.
package payment

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"

	"booking-scheduler/internal/apperr"
	"booking-scheduler/internal/booking"
)

const (
	source       = "stripe"
	maxBodyBytes = 1 << 20
)

// Bookings is the part of the reservation lifecycle driven by payments.
type Bookings interface {
	ApplyPaymentSuccess(ctx context.Context, id, paymentRef string) (booking.Reservation, error)
	ApplyPaymentFailure(ctx context.Context, id, paymentRef string) (booking.Reservation, error)
	ApplyRefund(ctx context.Context, id, paymentRef string) (booking.Reservation, error)
}

// EventLog remembers delivered event ids so replays are ignored.
type EventLog interface {
	MarkEventProcessed(ctx context.Context, source, eventID string) (bool, error)
	ForgetEvent(ctx context.Context, source, eventID string) error
}

type WebhookHandler struct {
	secret    string
	tolerance time.Duration
	bookings  Bookings
	events    EventLog
	logger    *zap.Logger
}

func NewWebhookHandler(secret string, tolerance time.Duration, bookings Bookings, events EventLog, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &WebhookHandler{secret: secret, tolerance: tolerance, bookings: bookings, events: events, logger: logger}
}

// Handle verifies the Stripe signature and applies the event. Signature
// verification is the only authentication on this route.
func (h *WebhookHandler) Handle(c *gin.Context) {
	if strings.TrimSpace(h.secret) == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "stripe webhook not configured"})
		return
	}
	sig := c.GetHeader("Stripe-Signature")
	if sig == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing Stripe-Signature header"})
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}
	evt, err := webhook.ConstructEventWithTolerance(body, sig, h.secret, h.tolerance)
	if err != nil {
		h.logger.Warn("stripe: rejected webhook", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	ctx := c.Request.Context()
	log := h.logger.With(zap.String("event_id", evt.ID), zap.String("event_type", string(evt.Type)))

	fresh, err := h.events.MarkEventProcessed(ctx, source, evt.ID)
	if err != nil {
		log.Error("stripe: record event failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record event"})
		return
	}
	if !fresh {
		log.Info("stripe: duplicate event ignored")
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
		return
	}

	status, err := h.apply(ctx, evt)
	if err != nil {
		if transient(err) {
			if ferr := h.events.ForgetEvent(ctx, source, evt.ID); ferr != nil {
				log.Error("stripe: forget event failed", zap.Error(ferr))
			}
			log.Error("stripe: apply event failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to apply event"})
			return
		}
		log.Warn("stripe: event not applicable", zap.Error(err))
		status = "ignored"
	}
	log.Info("stripe: event handled", zap.String("status", status))
	c.JSON(http.StatusOK, gin.H{"status": status})
}

func (h *WebhookHandler) apply(ctx context.Context, evt stripe.Event) (string, error) {
	switch evt.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
			return "", apperr.Invalid("invalid checkout session payload")
		}
		id := bookingID(session.Metadata)
		if id == "" {
			return "ignored", nil
		}
		ref := session.ID
		if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
			ref = session.PaymentIntent.ID
		}
		_, err := h.bookings.ApplyPaymentSuccess(ctx, id, ref)
		return "applied", err

	case "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
			return "", apperr.Invalid("invalid payment intent payload")
		}
		id := bookingID(pi.Metadata)
		if id == "" {
			return "ignored", nil
		}
		_, err := h.bookings.ApplyPaymentFailure(ctx, id, pi.ID)
		return "applied", err

	case "charge.refunded":
		var charge stripe.Charge
		if err := json.Unmarshal(evt.Data.Raw, &charge); err != nil {
			return "", apperr.Invalid("invalid charge payload")
		}
		id := bookingID(charge.Metadata)
		if id == "" {
			return "ignored", nil
		}
		ref := ""
		if charge.PaymentIntent != nil {
			ref = charge.PaymentIntent.ID
		}
		_, err := h.bookings.ApplyRefund(ctx, id, ref)
		return "applied", err
	}
	return "ignored", nil
}

func bookingID(metadata map[string]string) string {
	return strings.TrimSpace(metadata["booking_id"])
}

// transient errors are worth a Stripe retry. Classified failures mean the
// event can never apply to this booking.
func transient(err error) bool {
	return apperr.KindOf(err) == apperr.KindInternal
}
