package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"concierge/internal/errors"
)

// Hosted APIs answer fast or not at all; a local Ollama model may need to
// load weights before the first token.
const (
	hostedChatTimeout = 30 * time.Second
	localChatTimeout  = 120 * time.Second
)

// baseClient carries the HTTP plumbing shared by every provider client:
// JSON round trips and transient/permanent error classification.
type baseClient struct {
	http *http.Client
}

func newBaseClient(timeout time.Duration) baseClient {
	return baseClient{http: &http.Client{Timeout: timeout}}
}

// postJSON sends payload to url with headers and decodes the response into
// out. Non-2xx statuses become classified errors.
func (c baseClient) postJSON(ctx context.Context, url string, headers map[string]string, payload, out any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return errors.NewPermanentError(err, "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return errors.NewPermanentError(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.NewTransientError(err, "provider unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return errors.NewTransientError(err, "read provider response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyHTTPError(resp, body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.NewPermanentError(err, "decode provider response")
	}
	return nil
}

func (c baseClient) getJSON(ctx context.Context, url string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.NewPermanentError(err, "build request")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.NewTransientError(err, "provider unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return errors.NewTransientError(err, "read provider response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyHTTPError(resp, body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.NewPermanentError(err, "decode provider response")
	}
	return nil
}

func classifyHTTPError(resp *http.Response, body []byte) error {
	message := providerErrorMessage(body, resp.StatusCode)
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := 0
		if header := resp.Header.Get("Retry-After"); header != "" {
			if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
				retryAfter = seconds
			}
		}
		return &errors.TransientError{StatusCode: resp.StatusCode, RetryAfter: retryAfter, Message: message}
	case resp.StatusCode >= 500:
		return &errors.TransientError{StatusCode: resp.StatusCode, Message: message}
	default:
		return &errors.PermanentError{StatusCode: resp.StatusCode, Message: message}
	}
}

func providerErrorMessage(body []byte, status int) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Error.Message != "" {
			return fmt.Sprintf("provider error HTTP %d: %s", status, envelope.Error.Message)
		}
		if envelope.Message != "" {
			return fmt.Sprintf("provider error HTTP %d: %s", status, envelope.Message)
		}
	}
	return fmt.Sprintf("provider error HTTP %d", status)
}
