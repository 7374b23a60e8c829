package app

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"booking-scheduler/internal/apperr"
	"booking-scheduler/internal/calendar"
)

var statusByKind = map[apperr.Kind]int{
	apperr.KindNotFound:            http.StatusNotFound,
	apperr.KindConflict:            http.StatusConflict,
	apperr.KindForbidden:           http.StatusForbidden,
	apperr.KindInvalidState:        http.StatusBadRequest,
	apperr.KindInvalid:             http.StatusBadRequest,
	apperr.KindExternalAuthExpired: http.StatusUnauthorized,
}

// writeError maps err onto the JSON error body. Unclassified errors are
// logged and reported as a generic 500.
func (a *App) writeError(c *gin.Context, err error) {
	if errors.Is(err, calendar.ErrNotConfigured) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Google Calendar not configured", "code": "UNAVAILABLE"})
		return
	}
	kind := apperr.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		a.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Error(err),
		)
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": string(apperr.KindInternal)})
		return
	}
	c.JSON(status, gin.H{"error": apperr.Message(err), "code": string(kind)})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": string(apperr.KindInvalid)})
}
