package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// playTimeout bounds one play request. Until-end can simulate a whole
// season in a single call.
const playTimeout = 30 * time.Minute

type Client struct {
	BaseURL string
	HTTP    *http.Client
	// Stream has no timeout and is used for long requests.
	Stream *http.Client
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status   int
	Message  string
	Messages []string
}

func (e *APIError) Error() string {
	if len(e.Messages) > 0 {
		return fmt.Sprintf("api status %d: %s", e.Status, strings.Join(e.Messages, "; "))
	}
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

// IsAPIError reports whether err came back from the server rather than the
// network.
func IsAPIError(err error) bool {
	var ae *APIError
	return errors.As(err, &ae)
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
		Stream: &http.Client{},
	}
}

func (c *Client) League(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, c.HTTP, http.MethodGet, "/v1/league", nil, &out, "")
	return out, err
}

// Play asks the server to simulate action. idem makes a retried request
// return the first result instead of playing again.
func (c *Client) Play(ctx context.Context, action string, idem string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, playTimeout)
	defer cancel()
	var out map[string]any
	err := c.jsonRequest(ctx, c.Stream, http.MethodPost, "/v1/play", map[string]any{"action": action}, &out, idem)
	return out, err
}

func (c *Client) NewPhase(ctx context.Context, phase, returnTo string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, playTimeout)
	defer cancel()
	body := map[string]any{"phase": phase}
	if returnTo != "" {
		body["returnTo"] = returnTo
	}
	var out map[string]any
	err := c.jsonRequest(ctx, c.Stream, http.MethodPost, "/v1/phase", body, &out, "")
	return out, err
}

func (c *Client) Abort(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, c.HTTP, http.MethodPost, "/v1/phase/abort", nil, &out, "")
	return out, err
}

func (c *Client) Standings(ctx context.Context, season int) (map[string]any, error) {
	path := "/v1/standings"
	if season > 0 {
		path += "?season=" + strconv.Itoa(season)
	}
	var out map[string]any
	err := c.jsonRequest(ctx, c.HTTP, http.MethodGet, path, nil, &out, "")
	return out, err
}

func (c *Client) Roster(ctx context.Context, tid int) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, c.HTTP, http.MethodGet, fmt.Sprintf("/v1/teams/%d/roster", tid), nil, &out, "")
	return out, err
}

func (c *Client) Search(ctx context.Context, q string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, c.HTTP, http.MethodGet, "/v1/players/search?q="+url.QueryEscape(q), nil, &out, "")
	return out, err
}

func (c *Client) Events(ctx context.Context, season int) (map[string]any, error) {
	path := "/v1/events"
	if season > 0 {
		path += "?season=" + strconv.Itoa(season)
	}
	var out map[string]any
	err := c.jsonRequest(ctx, c.HTTP, http.MethodGet, path, nil, &out, "")
	return out, err
}

func (c *Client) SetAttributes(ctx context.Context, attrs map[string]any) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, c.HTTP, http.MethodPut, "/v1/attributes", attrs, &out, "")
	return out, err
}

func (c *Client) StartNegotiation(ctx context.Context, pid int, resigning bool) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, c.HTTP, http.MethodPost, "/v1/negotiations", map[string]any{"pid": pid, "resigning": resigning}, &out, "")
	return out, err
}

func (c *Client) Offer(ctx context.Context, pid int, amount float64, exp int) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, c.HTTP, http.MethodPost, fmt.Sprintf("/v1/negotiations/%d/offer", pid), map[string]any{"amount": amount, "exp": exp}, &out, "")
	return out, err
}

func (c *Client) AcceptNegotiation(ctx context.Context, pid int) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, c.HTTP, http.MethodPost, fmt.Sprintf("/v1/negotiations/%d/accept", pid), nil, &out, "")
	return out, err
}

func (c *Client) AutoDraft(ctx context.Context, untilEnd bool) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, c.HTTP, http.MethodPost, "/v1/draft/auto", map[string]any{"untilEnd": untilEnd}, &out, "")
	return out, err
}

func (c *Client) DraftPick(ctx context.Context, pid int) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, c.HTTP, http.MethodPost, "/v1/draft/pick", map[string]any{"pid": pid}, &out, "")
	return out, err
}

// Do sends a raw request, used to replay queued commands.
func (c *Client) Do(ctx context.Context, method, path string, body map[string]any, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, c.Stream, method, path, body, &out, idem)
	return out, err
}

// Update is one server-sent update.
type Update struct {
	Tags        []string        `json:"tags"`
	RedirectURL string          `json:"redirectUrl,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// Updates streams /v1/updates until ctx ends or the server hangs up.
func (c *Client) Updates(ctx context.Context, fn func(Update)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v1/updates", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.Stream.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return readAPIError(resp)
	}
	return ReadEvents(resp.Body, fn)
}

// ReadEvents parses a server-sent event stream, calling fn for each data
// line that decodes as an Update. Comment lines are skipped.
func ReadEvents(r io.Reader, fn func(Update)) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var u Update
		if err := json.Unmarshal([]byte(data), &u); err != nil {
			continue
		}
		fn(u)
	}
	if err := sc.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (c *Client) jsonRequest(ctx context.Context, hc *http.Client, method, path string, in any, out any, idem string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return readAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func readAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	ae := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	var body struct {
		Error    string   `json:"error"`
		Messages []string `json:"messages"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		ae.Message, ae.Messages = body.Error, body.Messages
	}
	return ae
}
