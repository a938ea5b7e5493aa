// Package meetingapi fires the downstream stage-trigger webhook that
// accompanies every orchestrated transition.
package meetingapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"meetingflow/internal/queue"
	"meetingflow/internal/services"
)

const defaultHTTPTimeout = 15 * time.Second

// HTTPDoer describes the HTTP client used by the trigger.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenMinter signs the actor token attached to each call.
type TokenMinter interface {
	GenerateActorToken(actor string, meetingID int64, event string) (string, error)
}

// Payload is the JSON body posted for one transition.
type Payload struct {
	MeetingID int64  `json:"meeting_id"`
	Event     string `json:"event"`
	From      string `json:"from"`
	To        string `json:"to"`
	Actor     string `json:"actor"`
	Platform  string `json:"platform"`
	OwnerID   string `json:"owner_id"`
}

// eventRoutes maps events onto the per-event routes of the meeting API,
// relative to {base_url}/meetings/{id}. Other events use "transitions".
var eventRoutes = map[queue.Event][]string{
	queue.EventInitCapture:           {"capture", "init"},
	queue.EventStartCapture:          {"capture", "bot", "start"},
	queue.EventFailCaptureBot:        {"capture", "bot", "fail"},
	queue.EventCompleteCapture:       {"capture", "stop"},
	queue.EventInitTranscription:     {"transcription", "init"},
	queue.EventStartTranscription:    {"transcription", "start"},
	queue.EventFailTranscription:     {"transcription", "fail"},
	queue.EventCompleteTranscription: {"transcription", "end"},
}

func routeElems(meetingID int64, event queue.Event) []string {
	elems := []string{"meetings", strconv.FormatInt(meetingID, 10)}
	if route, ok := eventRoutes[event]; ok {
		return append(elems, route...)
	}
	return append(elems, "transitions")
}

// Client posts each transition to the meeting API route for its event.
type Client struct {
	baseURL string
	client  HTTPDoer
	tokens  TokenMinter
}

// NewClient builds a trigger for baseURL. A nil tokens minter sends
// unauthenticated calls.
func NewClient(baseURL string, timeout time.Duration, tokens TokenMinter) *Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return NewHTTPClient(baseURL, &http.Client{Timeout: timeout}, tokens)
}

// NewHTTPClient builds a trigger with a caller-supplied HTTP client.
func NewHTTPClient(baseURL string, client HTTPDoer, tokens TokenMinter) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  client,
		tokens:  tokens,
	}
}

// Fire posts the transition and reports any non-2xx answer as
// services.ErrDownstreamCall.
func (c *Client) Fire(ctx context.Context, meeting *queue.Meeting, tr queue.Transition) error {
	endpoint, err := url.JoinPath(c.baseURL, routeElems(meeting.ID, tr.Event)...)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "downstream", string(tr.Event), "build url", err)
	}
	payload := Payload{
		MeetingID: meeting.ID,
		Event:     string(tr.Event),
		From:      string(tr.From),
		To:        string(tr.To),
		Actor:     tr.Actor,
		Platform:  string(meeting.Platform),
		OwnerID:   meeting.OwnerID.String(),
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode trigger payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build trigger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	requestID, ok := services.RequestIDFromContext(ctx)
	if !ok {
		requestID = uuid.NewString()
	}
	req.Header.Set("X-Request-ID", requestID)
	if c.tokens != nil {
		token, err := c.tokens.GenerateActorToken(tr.Actor, meeting.ID, string(tr.Event))
		if err != nil {
			return services.Wrap(services.ErrDownstreamCall, "downstream", string(tr.Event), "mint actor token", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrDownstreamCall, "downstream", string(tr.Event), "post transition", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return services.Wrap(services.ErrDownstreamCall, "downstream", string(tr.Event),
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}
	return nil
}
