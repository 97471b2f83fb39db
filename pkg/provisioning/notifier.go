// Package provisioning tells the downstream leave service about newly created
// users.
//
// Notifications are best effort: a single attempt, no retries. Callers log and
// discard failures; a signup never fails because of them.
package provisioning

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

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultTimeout bounds a single downstream call
const DefaultTimeout = 5 * time.Second

// ErrNotifyFailed is returned when the downstream answers with a non-2xx status
var ErrNotifyFailed = errors.New("provisioning notification failed")

// Notifier announces a new user to the downstream provisioning service
type Notifier interface {
	NotifyNewUser(ctx context.Context, userID, bearerToken string) error
}

// StatusError carries the downstream status code
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d", ErrNotifyFailed, e.StatusCode)
}

// Unwrap lets errors.Is match ErrNotifyFailed
func (e *StatusError) Unwrap() error {
	return ErrNotifyFailed
}

// HTTPNotifier posts to {base}/leave/balances
type HTTPNotifier struct {
	endpoint string
	client   *http.Client
}

// NewHTTPNotifier creates a notifier for the service at baseURL. A nil client
// gets an otelhttp-instrumented client with the given timeout.
func NewHTTPNotifier(baseURL string, timeout time.Duration, client *http.Client) (*HTTPNotifier, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("provisioning base URL is required")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if client == nil {
		client = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	return &HTTPNotifier{
		endpoint: strings.TrimRight(baseURL, "/") + "/leave/balances",
		client:   client,
	}, nil
}

type notifyRequest struct {
	EmployeeID string `json:"employeeId"`
}

// NotifyNewUser sends {"employeeId": userID} authenticated with bearerToken
func (n *HTTPNotifier) NotifyNewUser(ctx context.Context, userID, bearerToken string) error {
	body, err := json.Marshal(notifyRequest{EmployeeID: userID})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearerToken)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}

// NopNotifier drops every notification. Used when no downstream is configured.
type NopNotifier struct{}

// NotifyNewUser does nothing
func (NopNotifier) NotifyNewUser(ctx context.Context, userID, bearerToken string) error {
	return nil
}
