package calendar

import (
	"context"
	"time"

	"go.uber.org/zap"

	"booking-scheduler/internal/apperr"
	"booking-scheduler/internal/metrics"
	"booking-scheduler/internal/schedule"
)

const (
	DefaultSyncWindow    = 90 * 24 * time.Hour
	DefaultRefreshMargin = 5 * time.Minute
)

type Config struct {
	SyncWindow    time.Duration
	RefreshMargin time.Duration
}

// Service runs the OAuth connection and the busy-interval sync for providers.
type Service struct {
	client  Client
	store   Store
	states  StateStore
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	window  time.Duration
	margin  time.Duration
}

func NewService(client Client, store Store, states StateStore, logger *zap.Logger, m *metrics.Metrics, cfg Config) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SyncWindow <= 0 {
		cfg.SyncWindow = DefaultSyncWindow
	}
	if cfg.RefreshMargin <= 0 {
		cfg.RefreshMargin = DefaultRefreshMargin
	}
	return &Service{
		client:  client,
		store:   store,
		states:  states,
		logger:  logger,
		metrics: m,
		now:     time.Now,
		window:  cfg.SyncWindow,
		margin:  cfg.RefreshMargin,
	}
}

// AuthURL starts the OAuth flow for providerID.
func (s *Service) AuthURL(ctx context.Context, providerID string) (string, error) {
	if s.client == nil {
		return "", ErrNotConfigured
	}
	state, err := s.states.Issue(ctx, providerID)
	if err != nil {
		return "", err
	}
	return s.client.AuthCodeURL(state), nil
}

// Callback finishes the OAuth flow: it stores the grant and runs a first sync.
// A failed first sync is logged; the connection itself stays in place.
func (s *Service) Callback(ctx context.Context, state, code string) (Token, error) {
	if s.client == nil {
		return Token{}, ErrNotConfigured
	}
	if code == "" {
		return Token{}, apperr.Invalid("authorization code required")
	}
	providerID, err := s.states.Consume(ctx, state)
	if err != nil {
		return Token{}, err
	}
	grant, err := s.client.Exchange(ctx, code)
	if err != nil {
		s.logger.Warn("calendar: code exchange failed", zap.String("provider_id", providerID), zap.Error(err))
		return Token{}, apperr.Invalid("authorization code was rejected")
	}

	tok := Token{
		ProviderID:   providerID,
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		ExpiresAt:    grant.Expiry,
		CalendarID:   grant.CalendarID,
		IsActive:     true,
	}
	if tok.CalendarID == "" {
		tok.CalendarID = "primary"
	}
	if err := s.store.UpsertToken(ctx, tok); err != nil {
		return Token{}, err
	}
	s.logger.Info("calendar connected", zap.String("provider_id", providerID), zap.String("calendar_id", tok.CalendarID))

	if _, err := s.Sync(ctx, providerID); err != nil {
		s.logger.Warn("calendar: initial sync failed", zap.String("provider_id", providerID), zap.Error(err))
	}
	return tok, nil
}

// EnsureValidToken returns a token that stays valid for at least the refresh
// margin. When the refresh fails the connection is deactivated and the
// provider has to authorize again.
func (s *Service) EnsureValidToken(ctx context.Context, providerID string) (Token, error) {
	tok, err := s.store.GetToken(ctx, providerID)
	if err != nil {
		return Token{}, err
	}
	if !tok.IsActive {
		return Token{}, apperr.ExternalAuthExpired("calendar access expired, authorize again", nil)
	}
	if s.now().Add(s.margin).Before(tok.ExpiresAt) {
		return tok, nil
	}
	if s.client == nil {
		return Token{}, ErrNotConfigured
	}

	grant, err := s.client.Refresh(ctx, tok.RefreshToken)
	if err != nil {
		if derr := s.store.DeactivateToken(ctx, providerID); derr != nil {
			s.logger.Error("calendar: deactivate token failed", zap.String("provider_id", providerID), zap.Error(derr))
		}
		s.logger.Warn("calendar: token refresh failed", zap.String("provider_id", providerID), zap.Error(err))
		return Token{}, apperr.ExternalAuthExpired("calendar access expired, authorize again", err)
	}

	tok.AccessToken = grant.AccessToken
	tok.ExpiresAt = grant.Expiry
	if grant.RefreshToken != "" {
		tok.RefreshToken = grant.RefreshToken
	}
	if err := s.store.UpsertToken(ctx, tok); err != nil {
		return Token{}, err
	}
	return tok, nil
}

// Sync replaces the cached busy intervals with the blocking events of the
// next sync window and returns how many were stored.
func (s *Service) Sync(ctx context.Context, providerID string) (n int, err error) {
	started := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(apperr.KindOf(err))
		}
		s.metrics.ObserveSync(outcome, time.Since(started), n)
	}()

	tok, err := s.EnsureValidToken(ctx, providerID)
	if err != nil {
		return 0, err
	}
	if s.client == nil {
		return 0, ErrNotConfigured
	}

	from := s.now().UTC()
	to := from.Add(s.window)
	events, err := s.client.ListEvents(ctx, tok.AccessToken, tok.CalendarID, from, to)
	if err != nil {
		return 0, err
	}

	intervals := BusyFromEvents(providerID, events)
	if err := s.store.ReplaceBusyIntervals(ctx, providerID, intervals); err != nil {
		return 0, err
	}
	s.logger.Info("calendar synced",
		zap.String("provider_id", providerID),
		zap.Int("events", len(events)),
		zap.Int("busy_intervals", len(intervals)),
	)
	return len(intervals), nil
}

// SyncReport summarizes a SyncAll run.
type SyncReport struct {
	Providers int `json:"providers"`
	Synced    int `json:"synced"`
	Failed    int `json:"failed"`
}

// SyncAll syncs every active connection. A failing provider is logged and
// skipped.
func (s *Service) SyncAll(ctx context.Context) (SyncReport, error) {
	providers, err := s.store.ListActiveProviders(ctx)
	if err != nil {
		return SyncReport{}, err
	}
	report := SyncReport{Providers: len(providers)}
	for _, providerID := range providers {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if _, err := s.Sync(ctx, providerID); err != nil {
			report.Failed++
			s.logger.Warn("calendar: sync failed", zap.String("provider_id", providerID), zap.Error(err))
			continue
		}
		report.Synced++
	}
	s.logger.Info("calendar sync run finished",
		zap.Int("providers", report.Providers),
		zap.Int("synced", report.Synced),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// Disconnect forgets the token and the cached intervals.
func (s *Service) Disconnect(ctx context.Context, providerID string) error {
	if err := s.store.DeleteConnection(ctx, providerID); err != nil {
		return err
	}
	s.logger.Info("calendar disconnected", zap.String("provider_id", providerID))
	return nil
}

// BusyIntervals reads the cache without contacting the external calendar.
func (s *Service) BusyIntervals(ctx context.Context, providerID string, from, to time.Time) ([]BusyInterval, error) {
	return s.store.ListBusyIntervals(ctx, providerID, from, to)
}

// BusyBetween exposes the cache as plain intervals. A provider without a
// connection has an empty cache and therefore no external constraint.
func (s *Service) BusyBetween(ctx context.Context, providerID string, from, to time.Time) ([]schedule.Interval, error) {
	cached, err := s.store.ListBusyIntervals(ctx, providerID, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]schedule.Interval, 0, len(cached))
	for _, b := range cached {
		out = append(out, schedule.Interval{Start: b.Start, End: b.End})
	}
	return out, nil
}

// HasBusyConflict applies the reservation overlap rule to the cached
// intervals.
func (s *Service) HasBusyConflict(ctx context.Context, providerID string, iv schedule.Interval) (bool, error) {
	busy, err := s.BusyBetween(ctx, providerID, iv.Start, iv.End)
	if err != nil {
		return false, err
	}
	return schedule.OverlapsAny(iv, busy), nil
}

// BusyFromEvents keeps the events that block time and converts them.
func BusyFromEvents(providerID string, events []Event) []BusyInterval {
	out := make([]BusyInterval, 0, len(events))
	for _, ev := range events {
		if !ev.Blocking() {
			continue
		}
		out = append(out, BusyInterval{
			ProviderID:      providerID,
			ExternalEventID: ev.ID,
			Title:           ev.Title,
			Start:           ev.Start,
			End:             ev.End,
		})
	}
	return out
}
