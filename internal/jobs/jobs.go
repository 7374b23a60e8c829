// Package jobs defines the background calendar sync tasks run by the worker.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"booking-scheduler/internal/apperr"
	"booking-scheduler/internal/calendar"
)

const (
	TypeCalendarSyncAll = "calendar:sync_all"
	TypeCalendarSync    = "calendar:sync"
)

type SyncPayload struct {
	ProviderID string `json:"provider_id"`
}

func NewSyncAllTask() *asynq.Task {
	return asynq.NewTask(TypeCalendarSyncAll, nil, asynq.MaxRetry(2))
}

func NewSyncTask(providerID string) (*asynq.Task, error) {
	b, err := json.Marshal(SyncPayload{ProviderID: providerID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeCalendarSync, b, asynq.MaxRetry(3)), nil
}

// Syncer is implemented by calendar.Service.
type Syncer interface {
	Sync(ctx context.Context, providerID string) (int, error)
	SyncAll(ctx context.Context) (calendar.SyncReport, error)
}

type Handlers struct {
	syncer Syncer
	logger *zap.Logger
}

func NewHandlers(syncer Syncer, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{syncer: syncer, logger: logger}
}

func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeCalendarSyncAll, h.HandleSyncAll)
	mux.HandleFunc(TypeCalendarSync, h.HandleSync)
}

func (h *Handlers) HandleSyncAll(ctx context.Context, _ *asynq.Task) error {
	report, err := h.syncer.SyncAll(ctx)
	if err != nil {
		return fmt.Errorf("sync all calendars: %w", err)
	}
	h.logger.Info("jobs: calendar sync finished",
		zap.Int("providers", report.Providers),
		zap.Int("failed", report.Failed),
	)
	return nil
}

// HandleSync syncs one provider. Failures that need the provider to act are
// not retried.
func (h *Handlers) HandleSync(ctx context.Context, t *asynq.Task) error {
	var p SyncPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil || p.ProviderID == "" {
		h.logger.Warn("jobs: invalid sync payload", zap.ByteString("payload", t.Payload()))
		return fmt.Errorf("invalid payload: %w", asynq.SkipRetry)
	}
	n, err := h.syncer.Sync(ctx, p.ProviderID)
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindExternalAuthExpired, apperr.KindNotFound:
			h.logger.Info("jobs: calendar sync skipped", zap.String("provider_id", p.ProviderID), zap.Error(err))
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("sync calendar %s: %w", p.ProviderID, err)
	}
	h.logger.Info("jobs: calendar synced", zap.String("provider_id", p.ProviderID), zap.Int("busy_intervals", n))
	return nil
}

// Enqueuer lets the API hand sync work to the worker.
type Enqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(client *asynq.Client) *Enqueuer {
	return &Enqueuer{client: client}
}

func (e *Enqueuer) EnqueueSync(ctx context.Context, providerID string) (string, error) {
	task, err := NewSyncTask(providerID)
	if err != nil {
		return "", err
	}
	info, err := e.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("enqueue calendar sync: %w", err)
	}
	return info.ID, nil
}

func (e *Enqueuer) EnqueueSyncAll(ctx context.Context) (string, error) {
	info, err := e.client.EnqueueContext(ctx, NewSyncAllTask())
	if err != nil {
		return "", fmt.Errorf("enqueue calendar sync: %w", err)
	}
	return info.ID, nil
}

// RegisterSchedule adds the periodic full sync to the worker's scheduler.
func RegisterSchedule(s *asynq.Scheduler, cronspec string) (string, error) {
	return s.Register(cronspec, NewSyncAllTask())
}
