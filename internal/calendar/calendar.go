// Package calendar keeps a provider's external calendar connection usable and
// mirrors its busy time locally.
package calendar

import (
	"context"
	"time"
)

// Token is the stored OAuth grant for one provider. IsActive turns false when
// a refresh fails and stays false until the provider authorizes again.
type Token struct {
	ProviderID   string    `json:"provider_id"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
	CalendarID   string    `json:"calendar_id"`
	IsActive     bool      `json:"is_active"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BusyInterval is one cached busy range copied from the external calendar.
type BusyInterval struct {
	ProviderID      string    `json:"provider_id"`
	ExternalEventID string    `json:"external_event_id"`
	Title           string    `json:"title"`
	Start           time.Time `json:"start_time"`
	End             time.Time `json:"end_time"`
}

// Event is an external calendar event after validation at the client
// boundary. Start and End are always set and Start is before End.
type Event struct {
	ID          string
	Title       string
	Start       time.Time
	End         time.Time
	AllDay      bool
	Transparent bool
	Cancelled   bool
}

// Blocking reports whether the event occupies the provider's time.
func (e Event) Blocking() bool {
	return !e.AllDay && !e.Transparent && !e.Cancelled
}

// Grant is what the provider returns from a code exchange or a refresh.
type Grant struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	CalendarID   string
}

// Client talks to the external calendar provider.
type Client interface {
	AuthCodeURL(state string) string
	// Exchange trades an authorization code for tokens and discovers the
	// primary calendar id.
	Exchange(ctx context.Context, code string) (Grant, error)
	// Refresh returns a new access token. RefreshToken is empty when the
	// provider keeps the old one.
	Refresh(ctx context.Context, refreshToken string) (Grant, error)
	ListEvents(ctx context.Context, accessToken, calendarID string, from, to time.Time) ([]Event, error)
}

// Store persists tokens and the busy-interval cache. GetToken reports a
// missing connection as an apperr NotFound error.
type Store interface {
	GetToken(ctx context.Context, providerID string) (Token, error)
	UpsertToken(ctx context.Context, t Token) error
	DeactivateToken(ctx context.Context, providerID string) error
	// DeleteConnection removes the token and every cached interval. Deleting
	// a missing connection is not an error.
	DeleteConnection(ctx context.Context, providerID string) error
	// ReplaceBusyIntervals swaps the provider's cached set in one transaction.
	ReplaceBusyIntervals(ctx context.Context, providerID string, intervals []BusyInterval) error
	ListBusyIntervals(ctx context.Context, providerID string, from, to time.Time) ([]BusyInterval, error)
	ListActiveProviders(ctx context.Context) ([]string, error)
}

// StateStore maps a single-use OAuth state value to the provider that
// started the flow.
type StateStore interface {
	Issue(ctx context.Context, providerID string) (string, error)
	Consume(ctx context.Context, state string) (string, error)
}
