package taskctl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arloliu/syncpoint/internal/backoff"
	"github.com/arloliu/syncpoint/internal/logging"
	"github.com/arloliu/syncpoint/internal/metrics"
	"github.com/arloliu/syncpoint/types"
)

// API is the subset of the control API the controller needs.
//
// *restapi.Client satisfies it.
type API interface {
	GetTaskStatus(ctx context.Context, node types.NodeID, id string) (types.TaskStatus, error)
	AbortTask(ctx context.Context, node types.NodeID, id string) error
}

// RemoteWaiter is implemented by control APIs that can block on the server
// until a task is terminal. *restapi.Client satisfies it.
type RemoteWaiter interface {
	WaitTaskRemote(ctx context.Context, node types.NodeID, id string) (types.TaskStatus, error)
}

// Config holds Controller settings.
type Config struct {
	// PollInterval is the first delay between status polls.
	// Default: 100ms
	PollInterval time.Duration

	// MaxPollInterval caps the delay between polls.
	// Default: 1s
	MaxPollInterval time.Duration

	// DefaultTimeout applies when Wait is called with a zero timeout.
	// Default: 5m
	DefaultTimeout time.Duration

	// Logger receives task diagnostics. Default: no-op.
	Logger types.Logger

	// Metrics receives poll counters. Default: no-op.
	Metrics types.MetricsCollector
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval:    100 * time.Millisecond,
		MaxPollInterval: time.Second,
		DefaultTimeout:  5 * time.Minute,
	}
}

// Option configures a Controller.
type Option func(*Config)

func (c Config) pollPolicy(timeout time.Duration) backoff.Policy {
	return backoff.Policy{
		Initial: c.PollInterval,
		Max:     c.MaxPollInterval,
		Timeout: timeout,
	}
}

// WithPollInterval sets the initial and maximum delay between polls.
func WithPollInterval(initial, max time.Duration) Option {
	return func(c *Config) {
		c.PollInterval = initial
		c.MaxPollInterval = max
	}
}

// WithDefaultTimeout sets the timeout used when Wait gets zero.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.DefaultTimeout = d
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

// Controller observes and aborts server-side tasks.
//
// It records the last state observed for every handle and rejects
// observations that leave a terminal state.
type Controller struct {
	api     API
	config  Config
	logger  types.Logger
	metrics types.MetricsCollector

	mu       sync.Mutex
	observed map[types.TaskHandle]types.TaskState
}

// New creates a Controller over api.
//
// Returns:
//   - *Controller: The controller
//   - error: types.ErrNilAPI if api is nil, or an error wrapping
//     backoff.ErrInvalidPolicy for non-positive poll intervals
func New(api API, opts ...Option) (*Controller, error) {
	if api == nil {
		return nil, types.ErrNilAPI
	}

	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if err := config.pollPolicy(0).Validate(); err != nil {
		return nil, fmt.Errorf("taskctl: %w", err)
	}

	return &Controller{
		api:      api,
		config:   config,
		logger:   logging.OrNop(config.Logger),
		metrics:  metrics.OrNop(config.Metrics),
		observed: make(map[types.TaskHandle]types.TaskState),
	}, nil
}

// Status returns a point-in-time snapshot of the task without blocking.
//
// Returns:
//   - types.TaskStatus: The observed status
//   - error: *types.RemoteCallError on transport failure, or
//     types.ErrStateRegression if the task left a terminal state
func (c *Controller) Status(ctx context.Context, handle types.TaskHandle) (types.TaskStatus, error) {
	c.metrics.IncTaskPoll(handle.Node)

	status, err := c.api.GetTaskStatus(ctx, handle.Node, handle.ID)
	if err != nil {
		return types.TaskStatus{}, err
	}
	if err := c.observe(handle, status.State); err != nil {
		return status, err
	}

	return status, nil
}

// Wait polls the task until it reaches a terminal state.
//
// A failed task is a successful observation: Wait returns its status with a
// nil error and the caller decides whether failure was expected.
//
// Parameters:
//   - ctx: Context for cancellation
//   - handle: Task to wait for
//   - timeout: Wait budget; zero uses the configured default
//
// Returns:
//   - types.TaskStatus: The terminal status
//   - error: *types.TimeoutError if the budget elapsed, or a Status error
func (c *Controller) Wait(ctx context.Context, handle types.TaskHandle, timeout time.Duration) (types.TaskStatus, error) {
	if timeout <= 0 {
		timeout = c.config.DefaultTimeout
	}

	start := time.Now()
	var last types.TaskStatus
	policy := c.config.pollPolicy(timeout)
	err := backoff.Poll(ctx, policy, func(ctx context.Context) (backoff.Outcome, error) {
		status, err := c.Status(ctx, handle)
		if err != nil {
			return backoff.Stop, err
		}
		last = status
		if status.IsTerminal() {
			return backoff.Stop, nil
		}

		return backoff.Retry, nil
	})

	var deadline *backoff.ErrDeadline
	if errors.As(err, &deadline) {
		c.logger.Warn("task wait timed out", "task", handle, "state", last.State, "timeout", timeout)
		return last, &types.TimeoutError{Operation: "wait_task", Node: handle.Node, Timeout: timeout}
	}
	if err != nil {
		return last, err
	}

	c.metrics.ObserveTaskWaitDuration(time.Since(start).Seconds())
	c.logger.Debug("task finished", "task", handle, "state", last.State, "error", last.Error)

	return last, nil
}

// WaitRemote waits for a terminal state with one server-side wait_task call
// instead of polling. Without a RemoteWaiter API it falls back to Wait.
//
// The observed state goes through the same transition check as Status.
//
// Returns:
//   - types.TaskStatus: The terminal status
//   - error: *types.TimeoutError if the budget elapsed, or a remote error
func (c *Controller) WaitRemote(ctx context.Context, handle types.TaskHandle, timeout time.Duration) (types.TaskStatus, error) {
	waiter, ok := c.api.(RemoteWaiter)
	if !ok {
		return c.Wait(ctx, handle, timeout)
	}
	if timeout <= 0 {
		timeout = c.config.DefaultTimeout
	}

	start := time.Now()
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	status, err := waiter.WaitTaskRemote(waitCtx, handle.Node, handle.ID)
	if err != nil {
		if ctx.Err() == nil && errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
			c.logger.Warn("remote task wait timed out", "task", handle, "timeout", timeout)
			return types.TaskStatus{}, &types.TimeoutError{Operation: "wait_task", Node: handle.Node, Timeout: timeout, Last: err}
		}
		return types.TaskStatus{}, fmt.Errorf("syncpoint: wait %s: %w", handle, err)
	}
	c.metrics.IncTaskPoll(handle.Node)
	if err := c.observe(handle, status.State); err != nil {
		return status, err
	}
	if !status.IsTerminal() {
		return status, fmt.Errorf("syncpoint: wait %s returned non-terminal state %s", handle, status.State)
	}

	c.metrics.ObserveTaskWaitDuration(time.Since(start).Seconds())
	c.logger.Debug("task finished", "task", handle, "state", status.State, "error", status.Error)

	return status, nil
}

// Abort requests cooperative cancellation of the task and returns immediately.
//
// The task may still finish as done if it completes before it observes the
// request; use Wait to learn the outcome.
func (c *Controller) Abort(ctx context.Context, handle types.TaskHandle) error {
	if err := c.api.AbortTask(ctx, handle.Node, handle.ID); err != nil {
		return fmt.Errorf("syncpoint: abort %s: %w", handle, err)
	}
	c.logger.Debug("task abort requested", "task", handle)

	return nil
}

// AbortAndWait requests cancellation and waits for the terminal state.
func (c *Controller) AbortAndWait(ctx context.Context, handle types.TaskHandle, timeout time.Duration) (types.TaskStatus, error) {
	if err := c.Abort(ctx, handle); err != nil {
		return types.TaskStatus{}, err
	}

	return c.Wait(ctx, handle, timeout)
}

// LastObserved returns the last state observed for handle.
func (c *Controller) LastObserved(handle types.TaskHandle) (types.TaskState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.observed[handle]

	return state, ok
}

// observe enforces the running -> {done, failed} transition rule.
func (c *Controller) observe(handle types.TaskHandle, state types.TaskState) error {
	c.mu.Lock()
	prev, seen := c.observed[handle]
	if seen && prev.IsTerminal() && state != prev {
		c.mu.Unlock()
		c.logger.Error("task left terminal state", "task", handle, "from", prev, "to", state)

		return fmt.Errorf("%w: %s went from %s to %s", types.ErrStateRegression, handle, prev, state)
	}
	c.observed[handle] = state
	c.mu.Unlock()

	if state.IsTerminal() && (!seen || !prev.IsTerminal()) {
		c.metrics.IncTaskTerminal(state)
	}

	return nil
}
