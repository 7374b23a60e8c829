package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"booking-scheduler/internal/calendar"
	"booking-scheduler/internal/schedule"
)

const defaultBusyRange = 30 * 24 * time.Hour

// calendarProvider resolves whose connection a calendar request acts on.
// Admins may name any provider through ?provider_id=.
func calendarProvider(c *gin.Context) string {
	actor := actorFrom(c)
	if id := c.Query("provider_id"); id != "" && actor.IsAdmin() {
		return id
	}
	return actor.ID
}

func (a *App) calendarReady(c *gin.Context) bool {
	if a.calendar == nil {
		a.writeError(c, calendar.ErrNotConfigured)
		return false
	}
	return true
}

// GET /calendar/auth
// Returns the Google consent URL for the caller's calendar.
func (a *App) CalendarAuthHandler(c *gin.Context) {
	if !a.calendarReady(c) {
		return
	}
	url, err := a.calendar.AuthURL(c.Request.Context(), calendarProvider(c))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"auth_url": url})
}

// GET /oauth2callback?state=&code=
// Google redirects here after consent, so the route is public and the state
// parameter identifies the provider.
func (a *App) OAuth2CallbackHandler(c *gin.Context) {
	if !a.calendarReady(c) {
		return
	}
	if msg := c.Query("error"); msg != "" {
		badRequest(c, "authorization denied: "+msg)
		return
	}
	tok, err := a.calendar.Callback(c.Request.Context(), c.Query("state"), c.Query("code"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":     "Google Calendar connected",
		"provider_id": tok.ProviderID,
		"calendar_id": tok.CalendarID,
	})
}

// POST /calendar/sync
func (a *App) CalendarSyncHandler(c *gin.Context) {
	if !a.calendarReady(c) {
		return
	}
	n, err := a.calendar.Sync(c.Request.Context(), calendarProvider(c))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"busy_intervals": n})
}

// GET /calendar/busy?from=YYYY-MM-DD&to=YYYY-MM-DD
func (a *App) CalendarBusyHandler(c *gin.Context) {
	if !a.calendarReady(c) {
		return
	}
	from := a.now().UTC()
	to := from.Add(defaultBusyRange)
	var err error
	if s := c.Query("from"); s != "" {
		if from, err = schedule.ParseDay(s); err != nil {
			badRequest(c, "invalid from")
			return
		}
	}
	if s := c.Query("to"); s != "" {
		if to, err = schedule.ParseDay(s); err != nil {
			badRequest(c, "invalid to")
			return
		}
	}
	if !from.Before(to) {
		badRequest(c, "from must be before to")
		return
	}

	busy, err := a.calendar.BusyIntervals(c.Request.Context(), calendarProvider(c), from, to)
	if err != nil {
		a.writeError(c, err)
		return
	}
	if busy == nil {
		busy = []calendar.BusyInterval{}
	}
	c.JSON(http.StatusOK, gin.H{"busy_intervals": busy, "count": len(busy)})
}

// DELETE /calendar
func (a *App) CalendarDisconnectHandler(c *gin.Context) {
	if !a.calendarReady(c) {
		return
	}
	if err := a.calendar.Disconnect(c.Request.Context(), calendarProvider(c)); err != nil {
		a.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /admin/calendar/sync-all
// Hands a full sync to the worker.
func (a *App) EnqueueSyncAllHandler(c *gin.Context) {
	if a.queue == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "job queue not configured", "code": "UNAVAILABLE"})
		return
	}
	id, err := a.queue.EnqueueSyncAll(c.Request.Context())
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": id})
}

// POST /admin/providers/:id/calendar/sync
func (a *App) EnqueueSyncHandler(c *gin.Context) {
	if a.queue == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "job queue not configured", "code": "UNAVAILABLE"})
		return
	}
	id, err := a.queue.EnqueueSync(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": id})
}
