package crm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/calin/convohist/internal/logger"
	"github.com/go-resty/resty/v2"
)

// Caller is the authenticated-call capability the export pipeline depends
// on. Implementations attach current credentials for the location and
// surface *APIError for non-2xx upstream responses.
type Caller interface {
	Call(ctx context.Context, locationID, method, url string, body interface{}) ([]byte, error)
}

// APIError is an upstream CRM API failure with its HTTP status preserved,
// so callers can branch on error class.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("crm api error: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsUnprocessable reports whether err is an upstream 422.
func IsUnprocessable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnprocessableEntity
}

// IsUnauthorized reports whether err is an upstream 401.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// TokenSource supplies and refreshes per-location access tokens.
type TokenSource interface {
	AccessToken(ctx context.Context, locationID string) (string, error)
	Refresh(ctx context.Context, locationID string) (string, error)
}

// ClientConfig holds settings for the CRM API client.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
}

// Client implements Caller against the CRM REST API. On a 401 response it
// refreshes the location's credentials exactly once and retries the call
// once before surfacing the failure.
type Client struct {
	http    *resty.Client
	tokens  TokenSource
	baseURL string
	logger  *logger.Logger
}

// NewClient creates a new CRM API client.
// Parameters:
//   - cfg: client configuration including the API base URL.
//   - tokens: per-location token source.
//   - log: logger instance.
// Returns:
//   - *Client: initialized client.
func NewClient(cfg *ClientConfig, tokens TokenSource, log *logger.Logger) *Client {
	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	client.SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	} else {
		client.SetTimeout(30 * time.Second)
	}

	return &Client{
		http:    client,
		tokens:  tokens,
		baseURL: cfg.BaseURL,
		logger:  log,
	}
}

// Call issues an authenticated request against the CRM API. The url is
// relative to the configured base URL. A 401 triggers one transparent
// token refresh and one retry; every other error class propagates as-is.
func (c *Client) Call(ctx context.Context, locationID, method, url string, body interface{}) ([]byte, error) {
	token, err := c.tokens.AccessToken(ctx, locationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	data, err := c.do(ctx, token, method, url, body)
	if err == nil || !IsUnauthorized(err) {
		return data, err
	}

	c.logger.WithField(logger.FieldLocationID, locationID).Warn("Access token rejected, refreshing")

	token, err = c.tokens.Refresh(ctx, locationID)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh access token: %w", err)
	}

	return c.do(ctx, token, method, url, body)
}

func (c *Client) do(ctx context.Context, token, method, url string, body interface{}) ([]byte, error) {
	req := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+token)
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, c.baseURL+url)
	if err != nil {
		return nil, fmt.Errorf("crm request failed: %w", err)
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, &APIError{
			StatusCode: resp.StatusCode(),
			Body:       string(resp.Body()),
		}
	}

	return resp.Body(), nil
}
