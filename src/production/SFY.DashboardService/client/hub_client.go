package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	config "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Config"
	sfymodels "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Models"
)

// TokenHeader carries the hub read token
const TokenHeader = "SFY_AUTH_TOKEN"

var (
	// ErrNotFound is returned when the hub has no such device or file
	ErrNotFound = errors.New("not found")
	// ErrTransport covers network failures and unexpected hub responses
	ErrTransport = errors.New("hub transport error")
	// ErrCircuitOpen is returned without calling the hub while the breaker is open
	ErrCircuitOpen = fmt.Errorf("%w: circuit breaker is open", ErrTransport)
)

// HubClient talks to the data hub that serves the device directory, device
// details and stored files.
type HubClient struct {
	baseURL        string
	token          string
	httpClient     *http.Client
	circuitBreaker *CircuitBreaker
	maxRetries     int
	retryDelay     time.Duration
}

// NewHubClient creates a new hub client
func NewHubClient(cfg config.HubConfig) *HubClient {
	return &HubClient{
		baseURL: cfg.URL,
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		circuitBreaker: NewCircuitBreaker(cfg.BreakerMaxFailures, cfg.BreakerReset),
		maxRetries:     cfg.MaxRetries,
		retryDelay:     cfg.RetryDelay,
	}
}

// retryWithBackoff runs operation once, plus up to maxRetries retries with
// exponential backoff when retries are enabled. Not-found is never retried.
func (c *HubClient) retryWithBackoff(ctx context.Context, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !c.circuitBreaker.canExecute() {
			return ErrCircuitOpen
		}

		err := operation()
		if err == nil || errors.Is(err, ErrNotFound) {
			c.circuitBreaker.onSuccess()
			return err
		}

		lastErr = err
		if ctx.Err() != nil {
			// Cancelled by the caller, not a hub failure.
			return lastErr
		}
		c.circuitBreaker.onFailure()

		if attempt == c.maxRetries {
			break
		}

		delay := time.Duration(float64(c.retryDelay) * math.Pow(2, float64(attempt)))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	if c.maxRetries == 0 {
		return lastErr
	}
	return fmt.Errorf("operation failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

// ListDevices returns the device identifiers known to the hub
func (c *HubClient) ListDevices(ctx context.Context) ([]string, error) {
	var devices []string

	err := c.retryWithBackoff(ctx, func() error {
		body, err := c.get(ctx, "/buoys")
		if err != nil {
			return fmt.Errorf("failed to list devices: %w", err)
		}

		if err := json.Unmarshal(body, &devices); err != nil {
			return fmt.Errorf("%w: failed to decode device list: %v", ErrTransport, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return devices, nil
}

// GetDeviceDetail returns the file listing and base fields of one device. The hub
// answers either with a bare array of file names or with a detail object.
func (c *HubClient) GetDeviceDetail(ctx context.Context, dev string) (sfymodels.DeviceDetail, error) {
	var detail sfymodels.DeviceDetail

	err := c.retryWithBackoff(ctx, func() error {
		body, err := c.get(ctx, "/buoys/"+url.PathEscape(dev))
		if err != nil {
			return fmt.Errorf("failed to get device %s: %w", dev, err)
		}

		detail, err = decodeDetail(body)
		if err != nil {
			return fmt.Errorf("%w: failed to decode device %s: %v", ErrTransport, dev, err)
		}
		return nil
	})
	if err != nil {
		return sfymodels.DeviceDetail{}, err
	}

	if detail.Dev == "" {
		detail.Dev = dev
	}
	return detail, nil
}

// GetFileContent returns the raw content of one stored file
func (c *HubClient) GetFileContent(ctx context.Context, dev, name string) ([]byte, error) {
	var content []byte

	err := c.retryWithBackoff(ctx, func() error {
		body, err := c.get(ctx, "/buoys/"+url.PathEscape(dev)+"/"+url.PathEscape(name))
		if err != nil {
			return fmt.Errorf("failed to get file %s of %s: %w", name, dev, err)
		}
		content = body
		return nil
	})
	if err != nil {
		return nil, err
	}

	return content, nil
}

func decodeDetail(body []byte) (sfymodels.DeviceDetail, error) {
	var detail sfymodels.DeviceDetail

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err := json.Unmarshal(trimmed, &detail.Files)
		return detail, err
	}

	err := json.Unmarshal(trimmed, &detail)
	return detail, err
}

// get issues a GET and returns the body of a 200 response
func (c *HubClient) get(ctx context.Context, path string) ([]byte, error) {
	resp, err := c.makeRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: hub returned status %d: %s", ErrTransport, resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrTransport, err)
	}
	return body, nil
}

// makeRequest makes an HTTP request to the hub
func (c *HubClient) makeRequest(ctx context.Context, method, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.token != "" {
		req.Header.Set(TokenHeader, c.token)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "sfy-dashboard")

	return c.httpClient.Do(req)
}

// Health checks that the hub answers the directory endpoint
func (c *HubClient) Health(ctx context.Context) error {
	resp, err := c.makeRequest(ctx, http.MethodGet, "/buoys")
	if err != nil {
		return fmt.Errorf("failed to check hub health: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("hub health check failed with status %d", resp.StatusCode)
	}

	return nil
}

// GetCircuitBreakerStatus returns the current circuit breaker status for monitoring
func (c *HubClient) GetCircuitBreakerStatus() map[string]interface{} {
	return c.circuitBreaker.Status()
}
