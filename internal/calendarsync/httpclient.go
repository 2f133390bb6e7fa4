package calendarsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	cleanhttp "github.com/hashicorp/go-cleanhttp"
	retryablehttp "github.com/hashicorp/go-retryablehttp"
)

// ErrEventNotFound is returned when the calendar service reports 404 for an
// event id.
var ErrEventNotFound = errors.New("calendarsync: event not found")

// HTTPCalendarConfig configures the REST calendar client.
type HTTPCalendarConfig struct {
	BaseURL string
	APIKey  string
	// RetryMax bounds HTTP-level retries on 429/5xx responses. Defaults to 3.
	RetryMax int
	// RetryWaitMin and RetryWaitMax bound the backoff between retries.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// HTTPCalendar implements ExternalCalendar against a REST calendar service
// exposing GET/POST /events and PUT/DELETE /events/{id}. Transient failures
// are retried with exponential backoff at the transport level.
type HTTPCalendar struct {
	baseURL *url.URL
	apiKey  string
	client  *retryablehttp.Client
}

// NewHTTPCalendar builds a client with a pooled transport and retry policy.
func NewHTTPCalendar(cfg HTTPCalendarConfig) (*HTTPCalendar, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("calendarsync: invalid base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("calendarsync: base URL must be absolute: %q", cfg.BaseURL)
	}

	client := retryablehttp.NewClient()
	client.HTTPClient = cleanhttp.DefaultPooledClient()
	client.Logger = nil
	if cfg.RetryMax > 0 {
		client.RetryMax = cfg.RetryMax
	} else {
		client.RetryMax = 3
	}
	if cfg.RetryWaitMin > 0 {
		client.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		client.RetryWaitMax = cfg.RetryWaitMax
	}

	return &HTTPCalendar{baseURL: base, apiKey: cfg.APIKey, client: client}, nil
}

type eventPayload struct {
	ID        string    `json:"id,omitempty"`
	Title     string    `json:"title"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Location  string    `json:"location,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

func toPayload(event Event) eventPayload {
	return eventPayload{
		ID:        event.ID,
		Title:     event.Title,
		Start:     event.Start,
		End:       event.End,
		Location:  event.Location,
		UpdatedAt: event.UpdatedAt,
	}
}

func (p eventPayload) toEvent() Event {
	return Event{
		ID:        p.ID,
		Title:     p.Title,
		Start:     p.Start,
		End:       p.End,
		Location:  p.Location,
		UpdatedAt: p.UpdatedAt,
	}
}

// ListEvents fetches the events overlapping [from, to).
func (c *HTTPCalendar) ListEvents(ctx context.Context, from, to time.Time) ([]Event, error) {
	endpoint := c.endpoint("events")
	query := endpoint.Query()
	query.Set("from", from.UTC().Format(time.RFC3339))
	query.Set("to", to.UTC().Format(time.RFC3339))
	endpoint.RawQuery = query.Encode()

	var payloads []eventPayload
	if err := c.do(ctx, http.MethodGet, endpoint.String(), nil, &payloads); err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(payloads))
	for _, p := range payloads {
		events = append(events, p.toEvent())
	}
	return events, nil
}

// CreateEvent posts a new event and returns it with the assigned id.
func (c *HTTPCalendar) CreateEvent(ctx context.Context, event Event) (Event, error) {
	var created eventPayload
	endpoint := c.endpoint("events")
	if err := c.do(ctx, http.MethodPost, endpoint.String(), toPayload(event), &created); err != nil {
		return Event{}, err
	}
	return created.toEvent(), nil
}

// UpdateEvent replaces the event identified by event.ID.
func (c *HTTPCalendar) UpdateEvent(ctx context.Context, event Event) (Event, error) {
	if event.ID == "" {
		return Event{}, fmt.Errorf("calendarsync: update requires an event id")
	}
	var updated eventPayload
	endpoint := c.endpoint("events", event.ID)
	if err := c.do(ctx, http.MethodPut, endpoint.String(), toPayload(event), &updated); err != nil {
		return Event{}, err
	}
	return updated.toEvent(), nil
}

// DeleteEvent removes the event. Deleting an already-absent event succeeds,
// which keeps retried deletes idempotent.
func (c *HTTPCalendar) DeleteEvent(ctx context.Context, eventID string) error {
	if eventID == "" {
		return fmt.Errorf("calendarsync: delete requires an event id")
	}
	endpoint := c.endpoint("events", eventID)
	err := c.do(ctx, http.MethodDelete, endpoint.String(), nil, nil)
	if errors.Is(err, ErrEventNotFound) {
		return nil
	}
	return err
}

func (c *HTTPCalendar) endpoint(segments ...string) *url.URL {
	endpoint := *c.baseURL
	endpoint.Path, _ = url.JoinPath(endpoint.Path, segments...)
	return &endpoint
}

func (c *HTTPCalendar) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("calendarsync: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("calendarsync: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("calendarsync: %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrEventNotFound
	case resp.StatusCode >= 400:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("calendarsync: %s %s: unexpected status %d: %s", method, endpoint, resp.StatusCode, snippet)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("calendarsync: decode response: %w", err)
	}
	return nil
}
