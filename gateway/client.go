// Package gateway dispatches every API call the client makes: it attaches
// the current bearer credential, and on a 401 from a non-exempt endpoint
// performs exactly one silent token refresh before replaying the request.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	interrors "github.com/tunzadent/dentclient/internal/errors"
)

// Credentials is the gateway's view of the session store: read the token
// pair at request-build time, replace the access token after a refresh, and
// destroy the session when a refresh fails.
type Credentials interface {
	AccessToken() string
	RefreshToken() string
	SetAccessToken(token string) error
	Logout()
}

// Interceptor mutates an outgoing request before dispatch.
type Interceptor func(*http.Request)

const refreshPath = "/accounts/token/refresh/"

// exemptPaths are excluded from the refresh/retry mechanism: a 401 from any
// of these means bad credentials or a bad one-time code, which a refreshed
// access token cannot fix.
var exemptPaths = []string{
	"/accounts/register/",
	"/accounts/login/",
	"/accounts/verify-email/",
	"/accounts/2fa/setup/",
	"/accounts/2fa/complete/",
	"/accounts/resend-verification/",
}

func isExempt(path string) bool {
	for _, exempt := range exemptPaths {
		if strings.HasPrefix(path, exempt) {
			return true
		}
	}
	return false
}

// Client is the single HTTP client all services dispatch through.
type Client struct {
	baseURL          string
	httpClient       *http.Client
	creds            Credentials
	interceptors     []Interceptor
	onSessionExpired func()

	// refreshLock serializes concurrent refresh attempts so a burst of 401s
	// results in a single refresh call.
	refreshLock sync.Mutex
}

// Option defines a function type to modify the Client instance.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client (primarily for testing).
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the transport-level timeout on the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithOnSessionExpired registers the host application's reaction to a failed
// refresh (the browser client's "navigate to login"). The gateway itself
// never decides presentation.
func WithOnSessionExpired(fn func()) Option {
	return func(c *Client) {
		c.onSessionExpired = fn
	}
}

// WithInterceptors appends request interceptors after the built-in bearer
// and request-ID interceptors.
func WithInterceptors(interceptors ...Interceptor) Option {
	return func(c *Client) {
		c.interceptors = append(c.interceptors, interceptors...)
	}
}

// New creates a gateway client for the given API base URL.
func New(baseURL string, creds Credentials, options ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("[gateway.New] baseURL is required")
	}
	if creds == nil {
		return nil, errors.New("[gateway.New] credentials source is required")
	}

	client := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		creds:   creds,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	client.interceptors = []Interceptor{client.bearerInterceptor, requestIDInterceptor}

	for _, opt := range options {
		opt(client)
	}

	return client, nil
}

// Do sends a JSON request and decodes a 2xx response body into out (out may
// be nil). Non-2xx responses are returned as *APIError.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return errors.Wrapf(err, "[gateway.Do] marshal %s %s body", method, path)
		}
	}
	return c.dispatch(ctx, method, path, "application/json", payload, out)
}

// MultipartForm describes a multipart/form-data upload: plain fields plus a
// single file part.
type MultipartForm struct {
	Fields    map[string]string
	FileField string
	FileName  string
	File      io.Reader
}

// DoMultipart posts a multipart form. The form is buffered up front so the
// request stays replayable for the refresh-and-retry path.
func (c *Client) DoMultipart(ctx context.Context, path string, form *MultipartForm, out any) error {
	payload, contentType, err := encodeMultipart(form)
	if err != nil {
		return err
	}
	return c.dispatch(ctx, http.MethodPost, path, contentType, payload, out)
}

// dispatch performs the request with the one-shot refresh-and-retry contract
// from the session design: a 401 from a non-exempt path triggers exactly one
// refresh attempt and one replay; whatever the replay yields is final.
func (c *Client) dispatch(ctx context.Context, method, path, contentType string, payload []byte, out any) error {
	staleAccess := c.creds.AccessToken()

	statusCode, body, err := c.send(ctx, method, path, contentType, payload)
	if err != nil {
		return errors.Wrapf(interrors.ErrConnectivity, "%s %s: %v", method, path, err)
	}

	if statusCode == http.StatusUnauthorized && !isExempt(path) {
		originalErr := newAPIError(statusCode, body)

		if refreshErr := c.refreshAccessToken(ctx, staleAccess); refreshErr != nil {
			c.expireSession()
			if interrors.Is(refreshErr, interrors.ErrRefreshTokenMissing) {
				return originalErr
			}
			return fmt.Errorf("%w: %w", interrors.ErrSessionExpired, refreshErr)
		}

		statusCode, body, err = c.send(ctx, method, path, contentType, payload)
		if err != nil {
			return errors.Wrapf(interrors.ErrConnectivity, "%s %s (retry): %v", method, path, err)
		}
	}

	return decodeResponse(statusCode, body, out)
}

func (c *Client) send(ctx context.Context, method, path, contentType string, payload []byte) (int, []byte, error) {
	var bodyReader io.Reader = http.NoBody
	if len(payload) > 0 {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" && len(payload) > 0 {
		req.Header.Set("Content-Type", contentType)
	}

	for _, interceptor := range c.interceptors {
		interceptor(req)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}

	log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Msg("api request")

	return resp.StatusCode, body, nil
}

func decodeResponse(statusCode int, body []byte, out any) error {
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return newAPIError(statusCode, body)
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "[gateway] decode response")
	}
	return nil
}

func (c *Client) expireSession() {
	c.creds.Logout()
	if c.onSessionExpired != nil {
		c.onSessionExpired()
	}
}
