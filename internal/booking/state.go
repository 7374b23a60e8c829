package booking

import "booking-scheduler/internal/apperr"

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled, StatusRefunded},
}

// Live statuses block the reserved interval for other bookings.
func (s Status) Live() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (r *Reservation) moveTo(next Status) error {
	if !r.Status.CanTransitionTo(next) {
		return apperr.InvalidState("cannot move a %s booking to %s", r.Status, next)
	}
	r.Status = next
	return nil
}

func rejectTerminal(r *Reservation) error {
	if r.Status.Terminal() {
		return apperr.InvalidState("cannot change the payment of a %s booking", r.Status)
	}
	return nil
}

// ApplyPaymentSuccess records a captured payment. A pending booking is
// confirmed in the same step, so paid and pending never coexist. Applying it to
// an already paid live booking is a no-op and reports changed=false.
func ApplyPaymentSuccess(r *Reservation, ref string) (changed bool, err error) {
	if err := rejectTerminal(r); err != nil {
		return false, err
	}
	switch r.PaymentStatus {
	case PaymentPaid:
		return false, nil
	case PaymentRefunded:
		return false, apperr.InvalidState("payment for this booking was already refunded")
	}
	if r.Status == StatusPending {
		r.Status = StatusConfirmed
	}
	r.PaymentStatus = PaymentPaid
	if ref != "" {
		r.PaymentRef = ref
	}
	return true, nil
}

// ApplyPaymentFailure marks the payment attempt failed. The booking status is
// left alone so the user can retry checkout.
func ApplyPaymentFailure(r *Reservation, ref string) (changed bool, err error) {
	if err := rejectTerminal(r); err != nil {
		return false, err
	}
	switch r.PaymentStatus {
	case PaymentFailed:
		return false, nil
	case PaymentPaid, PaymentRefunded:
		return false, apperr.InvalidState("payment for this booking is already %s", r.PaymentStatus)
	}
	r.PaymentStatus = PaymentFailed
	if ref != "" {
		r.PaymentRef = ref
	}
	return true, nil
}

// ApplyRefund moves a paid, confirmed booking to refunded on both axes.
func ApplyRefund(r *Reservation, ref string) (changed bool, err error) {
	if err := rejectTerminal(r); err != nil {
		return false, err
	}
	if r.PaymentStatus != PaymentPaid {
		return false, apperr.InvalidState("booking has no captured payment to refund")
	}
	if err := r.moveTo(StatusRefunded); err != nil {
		return false, err
	}
	r.PaymentStatus = PaymentRefunded
	if ref != "" {
		r.PaymentRef = ref
	}
	return true, nil
}
