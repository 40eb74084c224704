package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// retryStep is the default linear backoff unit between delivery attempts.
var retryStep = 200 * time.Millisecond

// maxErrorBody bounds how much of a failed response ends up in the error.
const maxErrorBody = 4 << 10

// StatusError reports a non-2xx response.
type StatusError struct {
	Name   string
	Status string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return e.Name + " " + e.Status
	}
	return fmt.Sprintf("%s %s: %s", e.Name, e.Status, e.Body)
}

// Retryable reports server errors and throttling.
func (e *StatusError) Retryable() bool {
	return e.Code >= http.StatusInternalServerError || e.Code == http.StatusTooManyRequests
}

// Delivery POSTs JSON payloads to one endpoint with linear backoff.
type Delivery struct {
	Client   *http.Client
	Endpoint string
	// Name prefixes errors, e.g. "slack webhook".
	Name       string
	RetryLimit int
	// Backoff is the base delay; attempt n waits n*Backoff.
	Backoff time.Duration
	// Retry decides whether a failed attempt is repeated. Nil retries every failure.
	Retry func(error) bool
}

// Post encodes payload and delivers it, returning the last error once the retry
// budget is spent or Retry declines.
func (d Delivery) Post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", d.Name, err)
	}

	hc := d.Client
	if hc == nil {
		hc = http.DefaultClient
	}
	step := d.Backoff
	if step <= 0 {
		step = retryStep
	}

	attempts := max(d.RetryLimit, 0) + 1
	var lastErr error
	for attempt := range attempts {
		if lastErr = d.post(ctx, hc, body); lastErr == nil {
			return nil
		}
		if attempt == attempts-1 || (d.Retry != nil && !d.Retry(lastErr)) {
			break
		}
		timer := time.NewTimer(time.Duration(attempt+1) * step)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

// PostJSON delivers payload retrying up to retryLimit times on any failure.
func PostJSON(ctx context.Context, hc *http.Client, endpoint, name string, retryLimit int, payload any) error {
	return Delivery{Client: hc, Endpoint: endpoint, Name: name, RetryLimit: retryLimit}.Post(ctx, payload)
}

func (d Delivery) post(ctx context.Context, hc *http.Client, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", d.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", d.Name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errorResponse(resp, d.Name)
	}
	return drain(resp, d.Name)
}

func drain(resp *http.Response, name string) error {
	_, copyErr := io.Copy(io.Discard, resp.Body)
	closeErr := resp.Body.Close()
	switch {
	case copyErr != nil && closeErr != nil:
		return errors.Join(
			fmt.Errorf("drain %s response body: %w", name, copyErr),
			fmt.Errorf("close response body: %w", closeErr),
		)
	case copyErr != nil:
		return fmt.Errorf("drain %s response body: %w", name, copyErr)
	case closeErr != nil:
		return fmt.Errorf("close response body: %w", closeErr)
	}
	return nil
}

func errorResponse(resp *http.Response, name string) error {
	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	closeErr := resp.Body.Close()
	if readErr != nil {
		return errors.Join(fmt.Errorf("read %s error response: %w", name, readErr), closeErr)
	}
	return &StatusError{
		Name:   name,
		Status: resp.Status,
		Code:   resp.StatusCode,
		Body:   strings.TrimSpace(string(respBody)),
	}
}
