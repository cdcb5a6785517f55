// Package kvstore wraps the managed key-value service's REST API. The
// service exposes one base URL with two bearer tokens: a read/write token
// and a read-only one used for the read-optimized endpoint. Retries with
// exponential backoff are delegated to the req client; this layer only
// adds health checking and the fallback helper the hybrid facade relies on.
package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/imroc/req/v3"
	"k8s.io/klog/v2"

	"github.com/wrenware/showcase/pkg/apperrors"
)

const (
	// OpRead selects the read-optimized endpoint.
	OpRead = "read"
	// OpWrite selects the general read/write endpoint.
	OpWrite = "write"

	defaultHealthTTL = 30 * time.Second
	requestTimeout   = 5 * time.Second
	retryCount       = 2
	retryMinInterval = 100 * time.Millisecond
	retryMaxInterval = 2 * time.Second
)

// Config carries the connection settings, normally taken from the
// environment at startup.
type Config struct {
	URL           string
	Token         string
	ReadOnlyToken string
	// HealthTTL bounds how often the service is actually pinged.
	HealthTTL time.Duration
	// Clock is injectable for tests; defaults to time.Now.
	Clock func() time.Time
}

// Client manages the two logical endpoints and a cached health state.
type Client struct {
	write *req.Client
	read  *req.Client

	healthTTL time.Duration
	clock     func() time.Time

	mu            sync.Mutex
	healthy       bool
	healthExpiry  time.Time
	healthChecked bool
}

// New validates the config and builds both endpoint clients.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" || cfg.Token == "" || cfg.ReadOnlyToken == "" {
		return nil, fmt.Errorf("kvstore: URL and both tokens are required")
	}
	if cfg.HealthTTL <= 0 {
		cfg.HealthTTL = defaultHealthTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Client{
		write:     newEndpoint(cfg.URL, cfg.Token),
		read:      newEndpoint(cfg.URL, cfg.ReadOnlyToken),
		healthTTL: cfg.HealthTTL,
		clock:     cfg.Clock,
	}, nil
}

func newEndpoint(url, token string) *req.Client {
	return req.C().
		SetBaseURL(url).
		SetCommonBearerAuthToken(token).
		SetTimeout(requestTimeout).
		SetCommonRetryCount(retryCount).
		SetCommonRetryBackoffInterval(retryMinInterval, retryMaxInterval)
}

type restResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

// Result is the raw command reply; use the typed accessors to decode it.
type Result struct {
	raw json.RawMessage
}

// IsNil reports a null reply (missing key).
func (r Result) IsNil() bool {
	return len(r.raw) == 0 || string(r.raw) == "null"
}

// Str decodes a string reply; nil replies decode to "".
func (r Result) Str() (string, error) {
	if r.IsNil() {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(r.raw, &s); err != nil {
		return "", err
	}
	return s, nil
}

// Int64 decodes an integer reply.
func (r Result) Int64() (int64, error) {
	if r.IsNil() {
		return 0, nil
	}
	var n int64
	if err := json.Unmarshal(r.raw, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// StrSlice decodes an array reply; null members become "".
func (r Result) StrSlice() ([]string, error) {
	if r.IsNil() {
		return []string{}, nil
	}
	var items []*string
	if err := json.Unmarshal(r.raw, &items); err != nil {
		return nil, err
	}
	out := make([]string, len(items))
	for i, it := range items {
		if it != nil {
			out[i] = *it
		}
	}
	return out, nil
}

// Do executes one command against the endpoint selected by op. The
// command is sent as a JSON array, e.g. ["SET", "key", "value"].
func (c *Client) Do(ctx context.Context, op string, cmd ...any) (Result, error) {
	endpoint, err := c.GetClient(ctx, op)
	if err != nil {
		return Result{}, err
	}
	return doOn(ctx, endpoint, cmd...)
}

func doOn(ctx context.Context, endpoint *req.Client, cmd ...any) (Result, error) {
	var body restResponse
	resp, err := endpoint.R().
		SetContext(ctx).
		SetBodyJsonMarshal(cmd).
		SetSuccessResult(&body).
		SetErrorResult(&body).
		Post("/")
	if err != nil {
		return Result{}, fmt.Errorf("kv command %v: %w", cmdName(cmd), err)
	}
	if body.Error != "" {
		return Result{}, fmt.Errorf("kv command %v: %s", cmdName(cmd), body.Error)
	}
	if resp.IsErrorState() {
		return Result{}, fmt.Errorf("kv command %v: status %s", cmdName(cmd), resp.Status)
	}
	return Result{raw: body.Result}, nil
}

func cmdName(cmd []any) any {
	if len(cmd) == 0 {
		return "<empty>"
	}
	return cmd[0]
}

// GetClient returns the endpoint for the operation kind, refusing with
// StoreUnavailableError when the cached health check reports unhealthy.
func (c *Client) GetClient(ctx context.Context, op string) (*req.Client, error) {
	if !c.HealthCheck(ctx) {
		return nil, &apperrors.StoreUnavailableError{Reason: "health check failed"}
	}
	if op == OpWrite {
		return c.write, nil
	}
	return c.read, nil
}

// HealthCheck pings both endpoints and caches the combined verdict for a
// short interval so hot paths do not hammer the service with probes.
func (c *Client) HealthCheck(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock()
	if c.healthChecked && now.Before(c.healthExpiry) {
		return c.healthy
	}
	c.healthy = c.ping(ctx, c.write) && c.ping(ctx, c.read)
	c.healthExpiry = now.Add(c.healthTTL)
	c.healthChecked = true
	return c.healthy
}

// InvalidateHealth drops the cached verdict so the next call probes again.
func (c *Client) InvalidateHealth() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.healthChecked = false
}

func (c *Client) ping(ctx context.Context, endpoint *req.Client) bool {
	res, err := doOn(ctx, endpoint, "PING")
	if err != nil {
		klog.Warningf("kv ping failed: %v", err)
		return false
	}
	pong, err := res.Str()
	if err != nil || pong != "PONG" {
		klog.Warningf("kv ping returned unexpected reply: %q %v", pong, err)
		return false
	}
	return true
}

// ExecuteWithFallback runs primary unless the store was recently seen
// unhealthy, in which case (or when primary fails) it runs fallback. With
// no fallback the primary error propagates. This is the whole circuit
// breaker contract; retry policy stays inside the req client.
func ExecuteWithFallback[T any](ctx context.Context, c *Client, primary, fallback func(context.Context) (T, error)) (T, error) {
	if !c.HealthCheck(ctx) {
		if fallback != nil {
			return fallback(ctx)
		}
		var zero T
		return zero, &apperrors.StoreUnavailableError{Reason: "health check failed"}
	}
	out, err := primary(ctx)
	if err != nil {
		if fallback != nil {
			klog.Warningf("kv primary failed, using fallback: %v", err)
			return fallback(ctx)
		}
		return out, err
	}
	return out, nil
}
