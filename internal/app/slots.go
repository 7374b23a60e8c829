package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"booking-scheduler/internal/schedule"
)

// GET /providers/:id/slots?service_id=&date=YYYY-MM-DD
// Lists start times a user can still book on that date.
func (a *App) SlotsHandler(c *gin.Context) {
	providerID := c.Param("id")
	serviceID := c.Query("service_id")
	if serviceID == "" {
		badRequest(c, "service_id required")
		return
	}
	date, err := schedule.ParseDay(c.Query("date"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	slots, err := a.bookings.FreeSlots(c.Request.Context(), providerID, serviceID, date)
	if err != nil {
		a.writeError(c, err)
		return
	}
	if slots == nil {
		slots = []schedule.Clock{}
	}
	c.JSON(http.StatusOK, slotsResp{
		ProviderID: providerID,
		ServiceID:  serviceID,
		Date:       date.Format(time.DateOnly),
		Slots:      slots,
	})
}

// GET /providers/:id/conflicts?date=&start_time=&end_time=&exclude_id=
func (a *App) ConflictsHandler(c *gin.Context) {
	date, err := schedule.ParseDay(c.Query("date"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	start, err := schedule.ParseClock(c.Query("start_time"))
	if err != nil {
		badRequest(c, "invalid start_time, want HH:MM")
		return
	}
	end, err := schedule.ParseClock(c.Query("end_time"))
	if err != nil {
		badRequest(c, "invalid end_time, want HH:MM")
		return
	}
	if end <= start {
		badRequest(c, "end_time must be after start_time")
		return
	}

	conflict, err := a.bookings.HasConflict(c.Request.Context(), c.Param("id"), date, start, end, c.Query("exclude_id"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conflict": conflict})
}
