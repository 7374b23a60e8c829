package app

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"booking-scheduler/internal/apperr"
	"booking-scheduler/internal/booking"
	"booking-scheduler/internal/schedule"
)

// GET /providers/:id/availability
func (a *App) ListAvailabilityHandler(c *gin.Context) {
	rules, err := a.catalog.ListAvailability(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rules)
}

// PUT /providers/:id/availability
// Replaces the whole weekly schedule with the posted rules.
func (a *App) SetAvailabilityHandler(c *gin.Context) {
	providerID := c.Param("id")
	if !a.ownsProvider(c, providerID) {
		return
	}
	var payload []schedule.Rule
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c, err.Error())
		return
	}
	for i := range payload {
		payload[i].ProviderID = providerID
		if err := payload[i].Validate(); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	if err := a.catalog.SetAvailability(c.Request.Context(), providerID, payload); err != nil {
		a.writeError(c, err)
		return
	}
	rules, err := a.catalog.ListAvailability(c.Request.Context(), providerID)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rules)
}

// GET /providers/:id/services
func (a *App) ListServicesHandler(c *gin.Context) {
	services, err := a.catalog.ListServices(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, services)
}

// POST /providers/:id/services
func (a *App) CreateServiceHandler(c *gin.Context) {
	providerID := c.Param("id")
	if !a.ownsProvider(c, providerID) {
		return
	}
	var req createServiceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	svc := booking.Service{
		ProviderID:      providerID,
		Name:            strings.TrimSpace(req.Name),
		DurationMinutes: req.DurationMinutes,
		IsOnline:        req.IsOnline,
		IsInPerson:      req.IsInPerson,
		PriceCents:      req.PriceCents,
		Currency:        strings.ToLower(strings.TrimSpace(req.Currency)),
	}
	if svc.Currency == "" {
		svc.Currency = "usd"
	}
	if err := a.catalog.CreateService(c.Request.Context(), &svc); err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, svc)
}

// POST /bookings
func (a *App) CreateBookingHandler(c *gin.Context) {
	var req createBookingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	date, err := schedule.ParseDay(req.Date)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	start, err := schedule.ParseClock(req.StartTime)
	if err != nil {
		badRequest(c, "invalid start_time, want HH:MM")
		return
	}
	create := booking.CreateRequest{
		UserID:     req.UserID,
		ProviderID: req.ProviderID,
		ServiceID:  req.ServiceID,
		Date:       date,
		StartTime:  start,
	}
	if req.EndTime != "" {
		end, err := schedule.ParseClock(req.EndTime)
		if err != nil {
			badRequest(c, "invalid end_time, want HH:MM")
			return
		}
		create.EndTime = &end
	}

	res, err := a.bookings.Create(c.Request.Context(), actorFrom(c), create)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// GET /bookings/:id
func (a *App) GetBookingHandler(c *gin.Context) {
	res, err := a.bookings.Get(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /bookings?provider_id=&user_id=&from=YYYY-MM-DD&to=YYYY-MM-DD&status=
// Without a provider or user filter the caller's own bookings are listed.
func (a *App) ListBookingsHandler(c *gin.Context) {
	actor := actorFrom(c)
	f := booking.Filter{
		ProviderID: c.Query("provider_id"),
		UserID:     c.Query("user_id"),
		Status:     booking.Status(c.Query("status")),
	}
	if f.ProviderID == "" && f.UserID == "" && !actor.IsAdmin() {
		if actor.Role == booking.RoleProvider {
			f.ProviderID = actor.ID
		} else {
			f.UserID = actor.ID
		}
	}

	var err error
	if s := c.Query("from"); s != "" {
		if f.From, err = schedule.ParseDay(s); err != nil {
			badRequest(c, "invalid from")
			return
		}
	}
	if s := c.Query("to"); s != "" {
		if f.To, err = schedule.ParseDay(s); err != nil {
			badRequest(c, "invalid to")
			return
		}
	}
	if !f.From.IsZero() && !f.To.IsZero() && !f.From.Before(f.To) {
		badRequest(c, "from must be before to")
		return
	}

	list, err := a.bookings.List(c.Request.Context(), actor, f)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bookingsResp{Bookings: list, Count: len(list)})
}

// POST /bookings/:id/confirm
func (a *App) ConfirmBookingHandler(c *gin.Context) {
	a.transition(c, a.bookings.Confirm)
}

// POST /bookings/:id/cancel and DELETE /bookings/:id
func (a *App) CancelBookingHandler(c *gin.Context) {
	a.transition(c, a.bookings.Cancel)
}

// POST /bookings/:id/complete
func (a *App) CompleteBookingHandler(c *gin.Context) {
	a.transition(c, a.bookings.Complete)
}

// POST /bookings/:id/reschedule
func (a *App) RescheduleBookingHandler(c *gin.Context) {
	var req rescheduleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	date, err := schedule.ParseDay(req.Date)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	start, err := schedule.ParseClock(req.StartTime)
	if err != nil {
		badRequest(c, "invalid start_time, want HH:MM")
		return
	}
	res, err := a.bookings.Reschedule(c.Request.Context(), actorFrom(c), c.Param("id"), date, start)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /notifications?limit=
func (a *App) ListNotificationsHandler(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	list, err := a.catalog.ListNotifications(c.Request.Context(), actorFrom(c).ID, limit)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// GET /healthz
func (a *App) HealthHandler(c *gin.Context) {
	if err := a.catalog.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": a.now().UTC().Format(time.RFC3339)})
}

func (a *App) transition(c *gin.Context, fn func(context.Context, booking.Actor, string) (booking.Reservation, error)) {
	res, err := fn(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *App) ownsProvider(c *gin.Context, providerID string) bool {
	actor := actorFrom(c)
	if actor.IsAdmin() || actor.ID == providerID {
		return true
	}
	a.writeError(c, apperr.Forbidden("only the provider can change this"))
	return false
}
