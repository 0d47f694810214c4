// Package client is a typed HTTP client for the Keyfold account API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/keyfold/keyfold/types/api/requests"
	"github.com/keyfold/keyfold/types/api/responses"
)

// HTTPError represents an error response from the API.
type HTTPError struct {
	StatusCode int
	Status     string
	URL        string
	Method     string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s failed with status %d %s: %s", e.Method, e.URL, e.StatusCode, e.Status, e.Body)
}

// RetryConfig configures the retry behavior.
type RetryConfig struct {
	MaxRetries           int
	InitialInterval      time.Duration
	MaxInterval          time.Duration
	Multiplier           float64
	MaxElapsedTime       time.Duration
	RetryableStatusCodes []int
}

// DefaultRetryConfig provides sensible defaults for retries.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:           3,
		InitialInterval:      100 * time.Millisecond,
		MaxInterval:          10 * time.Second,
		Multiplier:           2.0,
		MaxElapsedTime:       30 * time.Second,
		RetryableStatusCodes: []int{408, 429, 500, 502, 503, 504},
	}
}

// Client talks to a Keyfold server.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	bearerToken string
	retryConfig *RetryConfig
}

// Option modifies the client.
type Option func(*Client)

// WithTimeout sets the timeout for all requests.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

// WithBearerToken attaches a bearer token to every request. Required for
// the protected endpoints (execute, admin and extension management).
func WithBearerToken(token string) Option {
	return func(c *Client) { c.bearerToken = token }
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(config *RetryConfig) Option {
	return func(c *Client) { c.retryConfig = config }
}

// New creates a client for the given base URL.
func New(baseURL string, options ...Option) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		retryConfig: DefaultRetryConfig(),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// CreateAccount deploys (or returns) the account for an admin/init-data
// pair.
func (c *Client) CreateAccount(ctx context.Context, req requests.CreateAccountRequest) (*responses.AccountResponse, error) {
	var out responses.AccountResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/accounts", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PredictAddress returns the counterfactual address without deploying.
func (c *Client) PredictAddress(ctx context.Context, req requests.CreateAccountRequest) (*responses.PredictAddressResponse, error) {
	var out responses.PredictAddressResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/accounts/predict", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAccount fetches one account by address.
func (c *Client) GetAccount(ctx context.Context, address string) (*responses.AccountResponse, error) {
	var out responses.AccountResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/accounts/"+url.PathEscape(address), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type listEnvelope struct {
	Data []responses.AccountResponse `json:"data"`
}

// ListAccounts returns every deployed account.
func (c *Client) ListAccounts(ctx context.Context) ([]responses.AccountResponse, error) {
	var out listEnvelope
	if err := c.do(ctx, http.MethodGet, "/api/v1/accounts", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// AccountsBySigner returns the accounts a signer holds a role on.
func (c *Client) AccountsBySigner(ctx context.Context, signer string) ([]responses.AccountResponse, error) {
	var out listEnvelope
	if err := c.do(ctx, http.MethodGet, "/api/v1/signers/"+url.PathEscape(signer)+"/accounts", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// PermissionGrantDigest returns the digest an admin must sign for the
// grant.
func (c *Client) PermissionGrantDigest(ctx context.Context, account string, req requests.PermissionGrantRequest) (*responses.DigestResponse, error) {
	var out responses.DigestResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/accounts/"+url.PathEscape(account)+"/permissions/digest", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitPermissionGrant applies an admin-signed permission request.
func (c *Client) SubmitPermissionGrant(ctx context.Context, account string, req requests.PermissionGrantRequest) error {
	return c.do(ctx, http.MethodPost, "/api/v1/accounts/"+url.PathEscape(account)+"/permissions", req, nil)
}

// OperationDigest returns the digest a signer must sign for an operation.
func (c *Client) OperationDigest(ctx context.Context, req requests.OperationRequest) (*responses.DigestResponse, error) {
	var out responses.DigestResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/operations/digest", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidateOperation runs validation for a signed operation.
func (c *Client) ValidateOperation(ctx context.Context, req requests.OperationRequest) (*responses.ValidationResponse, error) {
	var out responses.ValidationResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/operations/validate", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Execute forwards calls through the account as the authenticated caller.
func (c *Client) Execute(ctx context.Context, account string, req requests.ExecuteRequest) (*responses.ExecuteResponse, error) {
	var out responses.ExecuteResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/accounts/"+url.PathEscape(account)+"/execute", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Nonce returns the next expected sequence for a nonce key.
func (c *Client) Nonce(ctx context.Context, account, key string) (*responses.NonceResponse, error) {
	var out responses.NonceResponse
	path := "/api/v1/accounts/" + url.PathEscape(account) + "/nonce?key=" + url.QueryEscape(key)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListExtensions returns an account's installed extensions.
func (c *Client) ListExtensions(ctx context.Context, account string) ([]responses.ExtensionResponse, error) {
	var out struct {
		Data []responses.ExtensionResponse `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/accounts/"+url.PathEscape(account)+"/extensions", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// AddExtension installs an extension on an account.
func (c *Client) AddExtension(ctx context.Context, account string, req requests.AddExtensionRequest) (*responses.ExtensionResponse, error) {
	var out responses.ExtensionResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/accounts/"+url.PathEscape(account)+"/extensions", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RemoveExtension uninstalls the named extension.
func (c *Client) RemoveExtension(ctx context.Context, account, name string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/accounts/"+url.PathEscape(account)+"/extensions/"+url.PathEscape(name), nil, nil)
}

// do executes one request with retries on transport errors and retryable
// status codes, then decodes the JSON response into target when non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, target interface{}) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}
	fullURL := c.baseURL + path

	var resp *http.Response
	operation := func() error {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if c.bearerToken != "" {
			req.Header.Set("Authorization", "Bearer "+c.bearerToken)
		}

		resp, err = c.httpClient.Do(req)
		if err != nil {
			return err
		}
		for _, code := range c.retryConfig.RetryableStatusCodes {
			if resp.StatusCode == code {
				_, _ = io.Copy(io.Discard, resp.Body)
				_ = resp.Body.Close()
				return fmt.Errorf("retryable status code: %d", resp.StatusCode)
			}
		}
		return nil
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = c.retryConfig.InitialInterval
	expBackoff.MaxInterval = c.retryConfig.MaxInterval
	expBackoff.Multiplier = c.retryConfig.Multiplier
	expBackoff.MaxElapsedTime = c.retryConfig.MaxElapsedTime

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(expBackoff, uint64(c.retryConfig.MaxRetries)), ctx))
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			URL:        fullURL,
			Method:     method,
			Body:       string(raw),
		}
	}

	if target == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(target)
}
