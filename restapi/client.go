package restapi

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

	"github.com/hashicorp/go-cleanhttp"

	"github.com/arloliu/syncpoint/internal/logging"
	"github.com/arloliu/syncpoint/internal/metrics"
	"github.com/arloliu/syncpoint/types"
)

// DefaultPort is the control API port of a node.
const DefaultPort = 10000

// maxErrorBody bounds how much of an error response body is kept.
const maxErrorBody = 64 << 10

// Config holds Client settings.
type Config struct {
	// Port is the control API port used by the default address resolver.
	// Default: 10000
	Port int

	// Timeout bounds a single request. Long-running calls (tablet moves,
	// remote task waits) should be bounded by the caller's context instead.
	// Default: 30s
	Timeout time.Duration

	// HTTPClient overrides the pooled client built from go-cleanhttp.
	HTTPClient *http.Client

	// Resolver maps a node to its base URL. Default: "http://{node}:{Port}".
	Resolver func(node types.NodeID) string

	// Logger receives request diagnostics. Default: no-op.
	Logger types.Logger

	// Metrics receives remote error counters. Default: no-op.
	Metrics types.MetricsCollector
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		Port:    DefaultPort,
		Timeout: 30 * time.Second,
	}
}

// Option configures a Client.
type Option func(*Config)

// WithPort sets the control API port.
func WithPort(port int) Option {
	return func(c *Config) {
		c.Port = port
	}
}

// WithTimeout sets the per-request timeout.
//
// Parameters:
//   - d: Timeout applied to each request; zero disables it
//
// Returns:
//   - Option: Configuration option
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Config) {
		c.HTTPClient = hc
	}
}

// WithAddressResolver sets the node to base URL mapping.
//
// Parameters:
//   - fn: Returns a base URL such as "http://127.0.0.1:10000"
//
// Returns:
//   - Option: Configuration option
func WithAddressResolver(fn func(node types.NodeID) string) Option {
	return func(c *Config) {
		c.Resolver = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger types.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(collector types.MetricsCollector) Option {
	return func(c *Config) {
		c.Metrics = collector
	}
}

// Client talks to the control API of every node in the cluster.
//
// It is safe for concurrent use.
type Client struct {
	http     *http.Client
	resolver func(node types.NodeID) string
	timeout  time.Duration
	logger   types.Logger
	metrics  types.MetricsCollector
}

// New creates a control API client.
//
// Parameters:
//   - opts: Optional configuration
//
// Returns:
//   - *Client: The client
func New(opts ...Option) *Client {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	hc := config.HTTPClient
	if hc == nil {
		hc = cleanhttp.DefaultPooledClient()
	}

	resolver := config.Resolver
	if resolver == nil {
		port := config.Port
		resolver = func(node types.NodeID) string {
			return fmt.Sprintf("http://%s:%d", hostForURL(string(node)), port)
		}
	}

	return &Client{
		http:     hc,
		resolver: resolver,
		timeout:  config.Timeout,
		logger:   logging.OrNop(config.Logger),
		metrics:  metrics.OrNop(config.Metrics),
	}
}

// hostForURL brackets bare IPv6 addresses.
func hostForURL(host string) string {
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		return "[" + host + "]"
	}

	return host
}

// errorBody is the JSON shape of a control API error.
type errorBody struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// call performs one request and decodes a JSON response into out when non-nil.
func (c *Client) call(ctx context.Context, node types.NodeID, op, method, path string, query url.Values, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	return c.do(ctx, node, op, method, path, query, out)
}

// callUnbounded performs a request bounded only by ctx.
func (c *Client) callUnbounded(ctx context.Context, node types.NodeID, op, method, path string, query url.Values, out any) error {
	return c.do(ctx, node, op, method, path, query, out)
}

func (c *Client) do(ctx context.Context, node types.NodeID, op, method, path string, query url.Values, out any) error {
	target := strings.TrimRight(c.resolver(node), "/") + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, http.NoBody)
	if err != nil {
		return c.fail(&types.RemoteCallError{Node: node, Operation: op, Cause: err})
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("control api request", "node", node, "op", op, "method", method, "url", target)

	resp, err := c.http.Do(req)
	if err != nil {
		return c.fail(&types.RemoteCallError{Node: node, Operation: op, Cause: err})
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return c.fail(&types.RemoteCallError{Node: node, Operation: op, StatusCode: resp.StatusCode, Cause: err})
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.fail(&types.RemoteCallError{
			Node:       node,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body),
		})
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return c.fail(&types.RemoteCallError{
			Node:       node,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    "malformed response: " + truncate(string(body), 256),
			Cause:      err,
		})
	}

	return nil
}

func (c *Client) fail(err *types.RemoteCallError) error {
	c.metrics.IncRemoteCallError(err.Node, err.Operation)
	c.logger.Warn("control api call failed", "node", err.Node, "op", err.Operation, "status", err.StatusCode, "error", err)

	return err
}

// errorMessage extracts the "message" field of an error body, falling back to the raw text.
func errorMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Message != "" {
		return eb.Message
	}

	var s string
	if err := json.Unmarshal(body, &s); err == nil {
		return s
	}

	return truncate(strings.TrimSpace(string(body)), 1024)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n] + "..."
}

func pythonBool(b bool) string {
	if b {
		return "True"
	}

	return "False"
}
