package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap/zaptest"

	"booking-scheduler/internal/apperr"
	"booking-scheduler/internal/booking"
)

const secret = "whsec_test"

type call struct {
	op, id, ref string
}

type fakeBookings struct {
	calls []call
	err   error
}

func (f *fakeBookings) record(op, id, ref string) (booking.Reservation, error) {
	f.calls = append(f.calls, call{op, id, ref})
	return booking.Reservation{ID: id}, f.err
}

func (f *fakeBookings) ApplyPaymentSuccess(_ context.Context, id, ref string) (booking.Reservation, error) {
	return f.record("success", id, ref)
}

func (f *fakeBookings) ApplyPaymentFailure(_ context.Context, id, ref string) (booking.Reservation, error) {
	return f.record("failure", id, ref)
}

func (f *fakeBookings) ApplyRefund(_ context.Context, id, ref string) (booking.Reservation, error) {
	return f.record("refund", id, ref)
}

type memEvents struct {
	seen      map[string]bool
	forgotten []string
}

func (m *memEvents) MarkEventProcessed(_ context.Context, _, id string) (bool, error) {
	if m.seen[id] {
		return false, nil
	}
	m.seen[id] = true
	return true, nil
}

func (m *memEvents) ForgetEvent(_ context.Context, _, id string) error {
	delete(m.seen, id)
	m.forgotten = append(m.forgotten, id)
	return nil
}

func setup(t *testing.T, bookings *fakeBookings) (*gin.Engine, *memEvents) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	events := &memEvents{seen: map[string]bool{}}
	h := NewWebhookHandler(secret, 5*time.Minute, bookings, events, zaptest.NewLogger(t))
	r := gin.New()
	r.POST("/webhooks/stripe", h.Handle)
	return r, events
}

func event(t *testing.T, id, typ string, object map[string]any) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"type":        typ,
		"api_version": stripe.APIVersion,
		"created":     time.Now().Unix(),
		"data":        map[string]any{"object": object},
	})
	require.NoError(t, err)
	return raw
}

func post(t *testing.T, r http.Handler, payload []byte, signingSecret string) *httptest.ResponseRecorder {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    signingSecret,
		Timestamp: time.Now(),
	})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhook_CheckoutCompletedAppliesOnce(t *testing.T) {
	bookings := &fakeBookings{}
	r, _ := setup(t, bookings)
	payload := event(t, "evt_1", "checkout.session.completed", map[string]any{
		"id": "cs_1", "object": "checkout.session",
		"metadata":       map[string]string{"booking_id": "b1"},
		"payment_intent": "pi_1",
	})

	w := post(t, r, payload, secret)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "applied")

	w = post(t, r, payload, secret)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "duplicate")

	assert.Equal(t, []call{{"success", "b1", "pi_1"}}, bookings.calls)
}

func TestWebhook_FailureAndRefund(t *testing.T) {
	bookings := &fakeBookings{}
	r, _ := setup(t, bookings)

	w := post(t, r, event(t, "evt_2", "payment_intent.payment_failed", map[string]any{
		"id": "pi_2", "object": "payment_intent", "metadata": map[string]string{"booking_id": "b2"},
	}), secret)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = post(t, r, event(t, "evt_3", "charge.refunded", map[string]any{
		"id": "ch_3", "object": "charge", "refunded": true, "payment_intent": "pi_2",
		"metadata": map[string]string{"booking_id": "b2"},
	}), secret)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, []call{{"failure", "b2", "pi_2"}, {"refund", "b2", "pi_2"}}, bookings.calls)
}

func TestWebhook_BadSignature(t *testing.T) {
	bookings := &fakeBookings{}
	r, _ := setup(t, bookings)

	w := post(t, r, event(t, "evt_4", "checkout.session.completed", map[string]any{"id": "cs"}), "whsec_other")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, bookings.calls)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader([]byte("{}")))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhook_UnknownTypeAndMissingMetadataAreIgnored(t *testing.T) {
	bookings := &fakeBookings{}
	r, _ := setup(t, bookings)

	w := post(t, r, event(t, "evt_5", "customer.created", map[string]any{"id": "cus_1", "object": "customer"}), secret)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ignored")

	w = post(t, r, event(t, "evt_6", "checkout.session.completed", map[string]any{"id": "cs_6", "object": "checkout.session"}), secret)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, bookings.calls)
}

func TestWebhook_ErrorHandling(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		code    int
		retried bool
	}{
		{"state error is acknowledged", apperr.InvalidState("already refunded"), http.StatusOK, false},
		{"unknown booking is acknowledged", apperr.NotFound("booking not found"), http.StatusOK, false},
		{"storage failure is retried", errors.New("connection reset"), http.StatusInternalServerError, true},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bookings := &fakeBookings{err: tc.err}
			r, events := setup(t, bookings)
			id := fmt.Sprintf("evt_err_%d", i)

			w := post(t, r, event(t, id, "checkout.session.completed", map[string]any{
				"id": "cs", "object": "checkout.session", "metadata": map[string]string{"booking_id": "b1"},
			}), secret)
			assert.Equal(t, tc.code, w.Code)
			assert.Equal(t, tc.retried, !events.seen[id])
		})
	}
}

func TestWebhook_NotConfigured(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewWebhookHandler("", 0, &fakeBookings{}, &memEvents{seen: map[string]bool{}}, nil)
	r := gin.New()
	r.POST("/webhooks/stripe", h.Handle)

	w := post(t, r, []byte("{}"), secret)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
