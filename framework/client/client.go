package client

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config holds configuration for the Prometheus API client.
type Config struct {
	// BaseURL is the root of the Prometheus-compatible API.
	BaseURL string

	// Timeout applies to every request. Zero means DefaultTimeout.
	Timeout time.Duration

	// BearerToken is sent as an Authorization header when set.
	BearerToken string

	// OrgID is sent as X-Scope-OrgID when set (multi-tenant gateways).
	OrgID string

	// InsecureSkipVerify disables TLS verification for self-signed targets.
	InsecureSkipVerify bool
}

// DefaultTimeout is used when Config.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Client is a thin wrapper over the target's health, query and status
// endpoints. It keeps no state between calls and performs no retries;
// retry policy belongs to the caller.
type Client struct {
	config     *Config
	httpClient *http.Client
	baseURL    string
}

// APIResponse represents the envelope of the Prometheus HTTP API.
type APIResponse struct {
	Status string `json:"status"`
	Data   struct {
		ResultType string      `json:"resultType"`
		Result     []APIResult `json:"result"`
	} `json:"data"`
	ErrorType string `json:"errorType,omitempty"`
	Error     string `json:"error,omitempty"`
}

// APIResult is a single series in an API response.
type APIResult struct {
	Metric map[string]string `json:"metric"`
	Values [][]interface{}   `json:"values,omitempty"`
	Value  []interface{}     `json:"value,omitempty"`
}

// BuildInfo is the payload of /api/v1/status/buildinfo.
type BuildInfo struct {
	Version   string `json:"version"`
	Revision  string `json:"revision"`
	Branch    string `json:"branch"`
	GoVersion string `json:"goVersion"`
}

// TSDBStatus is a subset of /api/v1/status/tsdb.
type TSDBStatus struct {
	HeadStats struct {
		NumSeries     uint64 `json:"numSeries"`
		ChunkCount    uint64 `json:"chunkCount"`
		MinTime       int64  `json:"minTime"`
		MaxTime       int64  `json:"maxTime"`
		NumLabelPairs int    `json:"numLabelPairs"`
	} `json:"headStats"`
}

// New creates a Client for the given target.
func New(config *Config) (*Client, error) {
	if config == nil || config.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	transport := &http.Transport{}
	if config.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		baseURL: strings.TrimRight(config.BaseURL, "/"),
	}, nil
}

// BaseURL returns the target base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Timeout returns the effective per-request timeout.
func (c *Client) Timeout() time.Duration {
	return c.httpClient.Timeout
}

// Healthy checks /-/healthy. A nil error means the target reports liveness.
func (c *Client) Healthy(ctx context.Context) error {
	_, err := c.get(ctx, "/-/healthy", nil)
	return err
}

// Ready checks /-/ready. A nil error means the target reports readiness.
func (c *Client) Ready(ctx context.Context) error {
	_, err := c.get(ctx, "/-/ready", nil)
	return err
}

// Probe issues a GET against an arbitrary API path and returns the HTTP
// status code. Unlike the typed calls it does not treat non-2xx as an error:
// the security suite needs to observe rejections.
func (c *Client) Probe(ctx context.Context, path string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, c.classify("GET "+path, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

// Query executes an instant query at the given evaluation time.
func (c *Client) Query(ctx context.Context, expr string, ts time.Time) (*APIResponse, error) {
	params := url.Values{}
	params.Add("query", expr)
	if !ts.IsZero() {
		params.Add("time", fmt.Sprintf("%d", ts.Unix()))
	}
	return c.getAPI(ctx, "/api/v1/query", params)
}

// QueryRange executes a range query.
func (c *Client) QueryRange(ctx context.Context, expr string, start, end time.Time, step time.Duration) (*APIResponse, error) {
	params := url.Values{}
	params.Add("query", expr)
	params.Add("start", fmt.Sprintf("%d", start.Unix()))
	params.Add("end", fmt.Sprintf("%d", end.Unix()))
	params.Add("step", fmt.Sprintf("%d", int(step.Seconds())))
	return c.getAPI(ctx, "/api/v1/query_range", params)
}

// BuildInfo fetches /api/v1/status/buildinfo.
func (c *Client) BuildInfo(ctx context.Context) (*BuildInfo, error) {
	body, err := c.get(ctx, "/api/v1/status/buildinfo", nil)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Status string    `json:"status"`
		Data   BuildInfo `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal buildinfo: %w", err)
	}
	return &envelope.Data, nil
}

// TSDBStatus fetches /api/v1/status/tsdb.
func (c *Client) TSDBStatus(ctx context.Context) (*TSDBStatus, error) {
	body, err := c.get(ctx, "/api/v1/status/tsdb", nil)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Status string     `json:"status"`
		Data   TSDBStatus `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tsdb status: %w", err)
	}
	return &envelope.Data, nil
}

// getAPI issues a GET for an API envelope endpoint and checks its status field.
func (c *Client) getAPI(ctx context.Context, path string, params url.Values) (*APIResponse, error) {
	body, err := c.get(ctx, path, params)
	if err != nil {
		return nil, err
	}

	var resp APIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if resp.Status != "success" {
		return nil, &ResponseError{
			StatusCode: http.StatusOK,
			ErrorType:  resp.ErrorType,
			Message:    resp.Error,
		}
	}

	return &resp, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	apiURL := c.baseURL + path
	if len(params) > 0 {
		apiURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.classify("GET "+path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ConnectionError{URL: apiURL, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, parseResponseError(resp.StatusCode, body)
	}

	return body, nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.config.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.BearerToken)
	}
	if c.config.OrgID != "" {
		req.Header.Set("X-Scope-OrgID", c.config.OrgID)
	}
}

// classify maps a transport error to the client's failure taxonomy.
func (c *Client) classify(op string, err error) error {
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return &TimeoutError{Op: op, Timeout: c.httpClient.Timeout}
	}
	if uerr, ok := err.(*url.Error); ok {
		if uerr.Timeout() || ctxDeadline(uerr.Err) {
			return &TimeoutError{Op: op, Timeout: c.httpClient.Timeout}
		}
		return &ConnectionError{URL: uerr.URL, Err: uerr.Err}
	}
	return &ConnectionError{URL: c.baseURL, Err: err}
}

func ctxDeadline(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// parseResponseError extracts the structured API error from a non-2xx body
// when present.
func parseResponseError(status int, body []byte) error {
	var apiErr struct {
		ErrorType string `json:"errorType"`
		Error     string `json:"error"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
		return &ResponseError{StatusCode: status, ErrorType: apiErr.ErrorType, Message: apiErr.Error}
	}
	return &ResponseError{StatusCode: status, Message: strings.TrimSpace(string(body))}
}

// ScalarValue extracts the first sample value of an instant query response.
func ScalarValue(resp *APIResponse) (float64, bool) {
	if resp == nil || len(resp.Data.Result) == 0 {
		return 0, false
	}
	value := resp.Data.Result[0].Value
	if len(value) != 2 {
		return 0, false
	}
	s, ok := value[1].(string)
	if !ok {
		return 0, false
	}
	var f float64
	if _, err := fmt.Sscanf(s, "%g", &f); err != nil {
		return 0, false
	}
	return f, true
}
