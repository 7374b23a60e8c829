package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const pageSize = 250

// GoogleConfig holds the OAuth client registration. Endpoint, APIEndpoint and
// HTTPClient are only set to point the client somewhere other than Google.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	Endpoint    oauth2.Endpoint
	APIEndpoint string
	HTTPClient  *http.Client
}

// GoogleClient implements Client on top of the Google Calendar v3 API.
type GoogleClient struct {
	config     *oauth2.Config
	apiOpts    []option.ClientOption
	httpClient *http.Client
}

var ErrNotConfigured = errors.New("calendar: google client is not configured")

func NewGoogleClient(cfg GoogleConfig) (*GoogleClient, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RedirectURL == "" {
		return nil, ErrNotConfigured
	}
	endpoint := cfg.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	g := &GoogleClient{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{gcal.CalendarReadonlyScope},
			Endpoint:     endpoint,
		},
		httpClient: cfg.HTTPClient,
	}
	if cfg.APIEndpoint != "" {
		g.apiOpts = append(g.apiOpts, option.WithEndpoint(cfg.APIEndpoint))
	}
	return g, nil
}

// AuthCodeURL asks for offline access so the grant carries a refresh token.
func (g *GoogleClient) AuthCodeURL(state string) string {
	return g.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (g *GoogleClient) Exchange(ctx context.Context, code string) (Grant, error) {
	tok, err := g.config.Exchange(g.baseContext(ctx), code)
	if err != nil {
		return Grant{}, fmt.Errorf("calendar: exchange code: %w", err)
	}
	srv, err := g.service(ctx, tok)
	if err != nil {
		return Grant{}, err
	}
	primary, err := srv.CalendarList.Get("primary").Context(ctx).Do()
	if err != nil {
		return Grant{}, fmt.Errorf("calendar: discover primary calendar: %w", err)
	}
	return Grant{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
		CalendarID:   primary.Id,
	}, nil
}

func (g *GoogleClient) Refresh(ctx context.Context, refreshToken string) (Grant, error) {
	src := g.config.TokenSource(g.baseContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return Grant{}, fmt.Errorf("calendar: refresh token: %w", err)
	}
	grant := Grant{AccessToken: tok.AccessToken, Expiry: tok.Expiry}
	if tok.RefreshToken != refreshToken {
		grant.RefreshToken = tok.RefreshToken
	}
	return grant, nil
}

// ListEvents pages through every event in [from, to). Recurring events are
// expanded into single instances. Events without a usable start and end are
// dropped.
func (g *GoogleClient) ListEvents(ctx context.Context, accessToken, calendarID string, from, to time.Time) ([]Event, error) {
	srv, err := g.service(ctx, &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	if err != nil {
		return nil, err
	}

	call := srv.Events.List(calendarID).
		SingleEvents(true).
		OrderBy("startTime").
		ShowDeleted(false).
		MaxResults(pageSize).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339))

	var out []Event
	err = call.Pages(ctx, func(page *gcal.Events) error {
		for _, item := range page.Items {
			ev, err := parseEvent(item)
			if err != nil {
				continue
			}
			out = append(out, ev)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("calendar: list events: %w", err)
	}
	return out, nil
}

func (g *GoogleClient) service(ctx context.Context, tok *oauth2.Token) (*gcal.Service, error) {
	client := g.config.Client(g.baseContext(ctx), tok)
	opts := append([]option.ClientOption{option.WithHTTPClient(client)}, g.apiOpts...)
	srv, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("calendar: create service: %w", err)
	}
	return srv, nil
}

// baseContext carries the transport oauth2 uses underneath the token source.
func (g *GoogleClient) baseContext(ctx context.Context) context.Context {
	if g.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
}

// parseEvent validates the raw API shape. All-day events carry a date and no
// dateTime.
func parseEvent(item *gcal.Event) (Event, error) {
	if item == nil || item.Start == nil || item.End == nil {
		return Event{}, errors.New("event without start or end")
	}
	ev := Event{
		ID:          item.Id,
		Title:       item.Summary,
		Transparent: item.Transparency == "transparent",
		Cancelled:   item.Status == "cancelled",
	}

	if item.Start.DateTime == "" {
		if item.Start.Date == "" {
			return Event{}, fmt.Errorf("event %s has no start", item.Id)
		}
		start, err := time.Parse(time.DateOnly, item.Start.Date)
		if err != nil {
			return Event{}, fmt.Errorf("event %s: %w", item.Id, err)
		}
		end, err := time.Parse(time.DateOnly, item.End.Date)
		if err != nil {
			end = start.AddDate(0, 0, 1)
		}
		ev.AllDay = true
		ev.Start, ev.End = start, end
		return ev, nil
	}

	start, err := time.Parse(time.RFC3339, item.Start.DateTime)
	if err != nil {
		return Event{}, fmt.Errorf("event %s: %w", item.Id, err)
	}
	end, err := time.Parse(time.RFC3339, item.End.DateTime)
	if err != nil {
		return Event{}, fmt.Errorf("event %s: %w", item.Id, err)
	}
	if !start.Before(end) {
		return Event{}, fmt.Errorf("event %s ends before it starts", item.Id)
	}
	ev.Start, ev.End = start.UTC(), end.UTC()
	return ev, nil
}
