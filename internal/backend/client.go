// Package backend is the HTTP client for the business backend API handling
// bookings, meetings and availability.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"concierge/internal/errors"
	"concierge/internal/logging"
)

// Result is the uniform outcome of a backend call. Error carries a
// user-presentable message when Success is false.
type Result struct {
	Success    bool
	StatusCode int
	Data       map[string]any
	Error      string
}

// Client calls the backend API with retries on transient failures.
type Client struct {
	baseURL string
	apiKey  string
	jwt     string
	http    *http.Client
	retry   errors.RetryConfig
	log     logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets the fallback X-API-Key credential.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithJWT sets the bearer token. Takes precedence over the API key.
func WithJWT(token string) Option {
	return func(c *Client) { c.jwt = token }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.http = client }
}

// WithRetryConfig overrides the retry policy.
func WithRetryConfig(cfg errors.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// NewClient creates a backend client against baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		retry:   errors.DefaultRetryConfig(),
		log:     logging.NewComponentLogger("backend"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateBooking creates a new service booking.
func (c *Client) CreateBooking(ctx context.Context, booking map[string]any) Result {
	return c.do(ctx, http.MethodPost, "/bookings", booking)
}

// GetBooking fetches a booking by reference.
func (c *Client) GetBooking(ctx context.Context, bookingID string) Result {
	return c.do(ctx, http.MethodGet, "/bookings/"+url.PathEscape(bookingID), nil)
}

// CancelBooking cancels a booking.
func (c *Client) CancelBooking(ctx context.Context, bookingID string) Result {
	return c.do(ctx, http.MethodDelete, "/bookings/"+url.PathEscape(bookingID), nil)
}

// RescheduleBooking moves a booking to a new date and time.
func (c *Client) RescheduleBooking(ctx context.Context, bookingID string, change map[string]any) Result {
	return c.do(ctx, http.MethodPut, "/bookings/"+url.PathEscape(bookingID), change)
}

// CheckAvailability lists open slots for a service on a date.
func (c *Client) CheckAvailability(ctx context.Context, date, service string) Result {
	query := url.Values{}
	query.Set("date", date)
	if service != "" {
		query.Set("service", service)
	}
	return c.do(ctx, http.MethodGet, "/bookings/availability?"+query.Encode(), nil)
}

// ScheduleMeeting books a meeting. A 409 means the slot was taken.
func (c *Client) ScheduleMeeting(ctx context.Context, meeting map[string]any) Result {
	return c.do(ctx, http.MethodPost, "/meetings", meeting)
}

// GetAvailableMeetingTimes lists open meeting slots for a duration.
func (c *Client) GetAvailableMeetingTimes(ctx context.Context, date, duration string) Result {
	query := url.Values{}
	if date != "" {
		query.Set("date", date)
	}
	if duration != "" {
		query.Set("duration", duration)
	}
	return c.do(ctx, http.MethodGet, "/meetings/availability?"+query.Encode(), nil)
}

// RequestCallback submits a callback request for a human follow-up.
func (c *Client) RequestCallback(ctx context.Context, callback map[string]any) Result {
	return c.do(ctx, http.MethodPost, "/callbacks", callback)
}

// HealthCheck reports whether the backend answers its health endpoint.
func (c *Client) HealthCheck(ctx context.Context) bool {
	return c.do(ctx, http.MethodGet, "/health", nil).Success
}

func (c *Client) do(ctx context.Context, method, path string, payload map[string]any) Result {
	result, err := errors.RetryWithResult(ctx, c.retry, func(ctx context.Context) (Result, error) {
		return c.once(ctx, method, path, payload)
	}, c.log)
	if err != nil {
		c.log.Warn("%s %s failed: %v", method, path, err)
		return Result{Success: false, StatusCode: statusOf(err), Error: messageOf(err)}
	}
	return result
}

func (c *Client) once(ctx context.Context, method, path string, payload map[string]any) (Result, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return Result{}, errors.NewPermanentError(err, "invalid request payload")
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return Result{}, errors.NewPermanentError(err, "invalid request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Source", "chatbot")
	if c.jwt != "" {
		req.Header.Set("Authorization", "Bearer "+c.jwt)
	} else if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, errors.NewTransientError(err, "backend unreachable")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Result{}, errors.NewTransientError(err, "failed reading backend response")
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return Result{Success: true, StatusCode: resp.StatusCode, Data: decodeBody(data)}, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return Result{}, &errors.TransientError{
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfterSeconds(resp),
			Message:    "backend rate limited",
		}
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return Result{}, &errors.PermanentError{StatusCode: resp.StatusCode, Message: "Authentication failed"}
	case resp.StatusCode == http.StatusNotFound:
		return Result{}, &errors.PermanentError{StatusCode: resp.StatusCode, Message: "Resource not found"}
	case resp.StatusCode >= 500:
		return Result{}, &errors.TransientError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("backend error HTTP %d", resp.StatusCode),
		}
	default:
		return Result{}, &errors.PermanentError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(data, resp.StatusCode),
		}
	}
}

func decodeBody(data []byte) map[string]any {
	if len(data) == 0 {
		return nil
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return map[string]any{"raw": string(data)}
	}
	return decoded
}

func errorMessage(data []byte, status int) string {
	if decoded := decodeBody(data); decoded != nil {
		for _, key := range []string{"error", "message", "detail"} {
			if msg, ok := decoded[key].(string); ok && msg != "" {
				return msg
			}
		}
	}
	return fmt.Sprintf("backend request failed with HTTP %d", status)
}

func retryAfterSeconds(resp *http.Response) int {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return seconds
}

func statusOf(err error) int {
	var transient *errors.TransientError
	if stderrors.As(err, &transient) {
		return transient.StatusCode
	}
	var permanent *errors.PermanentError
	if stderrors.As(err, &permanent) {
		return permanent.StatusCode
	}
	return 0
}

func messageOf(err error) string {
	var transient *errors.TransientError
	if stderrors.As(err, &transient) && transient.Message != "" {
		return transient.Message
	}
	var permanent *errors.PermanentError
	if stderrors.As(err, &permanent) && permanent.Message != "" {
		return permanent.Message
	}
	return "Service temporarily unavailable. Please try again later."
}
