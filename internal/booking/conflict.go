package booking

import (
	"context"
	"time"

	"booking-scheduler/internal/schedule"
)

// HasConflict reports whether [date+start, date+end) overlaps a live
// reservation of providerID other than excludeID. It never writes.
func (l *Lifecycle) HasConflict(ctx context.Context, providerID string, date time.Time, start, end schedule.Clock, excludeID string) (bool, error) {
	return hasConflict(ctx, l.store, providerID, schedule.On(date, start, end), excludeID)
}

func hasConflict(ctx context.Context, r Reader, providerID string, iv schedule.Interval, excludeID string) (bool, error) {
	live, err := r.ListLiveReservations(ctx, providerID, schedule.Day(iv.Start))
	if err != nil {
		return false, err
	}
	for _, res := range live {
		if excludeID != "" && res.ID == excludeID {
			continue
		}
		if !res.Status.Live() {
			continue
		}
		if res.Interval().Overlaps(iv) {
			return true, nil
		}
	}
	return false, nil
}

// HasExternalConflict checks iv against the provider's synced calendar. A
// provider without a connection never conflicts.
func (l *Lifecycle) HasExternalConflict(ctx context.Context, providerID string, iv schedule.Interval) (bool, error) {
	if l.busy == nil {
		return false, nil
	}
	return l.busy.HasBusyConflict(ctx, providerID, iv)
}
