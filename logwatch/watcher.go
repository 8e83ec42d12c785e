package logwatch

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/arloliu/syncpoint/internal/backoff"
	"github.com/arloliu/syncpoint/internal/logging"
	"github.com/arloliu/syncpoint/internal/metrics"
	"github.com/arloliu/syncpoint/types"
)

// Config holds Watcher settings.
type Config struct {
	// PollInterval is the first delay between reads while waiting.
	// Default: 50ms
	PollInterval time.Duration

	// MaxPollInterval caps the delay between reads.
	// Default: 500ms
	MaxPollInterval time.Duration

	// DefaultTimeout applies when WaitFor is called with a zero timeout.
	// Default: 60s
	DefaultTimeout time.Duration

	// BatchSize bounds the lines fetched from the source per read.
	// Default: 1024
	BatchSize int

	// Logger receives debug output. Default: no-op.
	Logger types.Logger

	// Metrics receives wait counters. Default: no-op.
	Metrics types.MetricsCollector
}

// DefaultConfig returns the default watcher configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval:    50 * time.Millisecond,
		MaxPollInterval: 500 * time.Millisecond,
		DefaultTimeout:  60 * time.Second,
		BatchSize:       1024,
	}
}

func (c Config) pollPolicy(timeout time.Duration) backoff.Policy {
	return backoff.Policy{
		Initial: c.PollInterval,
		Max:     c.MaxPollInterval,
		Timeout: timeout,
	}
}

// Option configures a Watcher.
type Option func(*Config)

// WithPollInterval sets the initial and maximum delay between reads.
//
// Parameters:
//   - initial: First delay
//   - max: Upper bound on the delay
//
// Returns:
//   - Option: Configuration option
func WithPollInterval(initial, max time.Duration) Option {
	return func(c *Config) {
		c.PollInterval = initial
		c.MaxPollInterval = max
	}
}

// WithDefaultTimeout sets the timeout used when WaitFor gets zero.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.DefaultTimeout = d
	}
}

// WithBatchSize sets the number of lines fetched per read.
func WithBatchSize(n int) Option {
	return func(c *Config) {
		c.BatchSize = n
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

// Watcher observes one node's diagnostic stream.
//
// A Watcher holds no cursor of its own: every call reads from the offset it
// was given, so concurrent waits on the same stream are independent.
type Watcher struct {
	node    types.NodeID
	src     Source
	config  Config
	logger  types.Logger
	metrics types.MetricsCollector
}

// New creates a Watcher for node over src.
//
// Parameters:
//   - node: Node the stream belongs to
//   - src: The node's stream
//   - opts: Optional configuration
//
// Returns:
//   - *Watcher: The watcher
//   - error: types.ErrNilSource if src is nil, or an error wrapping
//     backoff.ErrInvalidPolicy for non-positive poll intervals
func New(node types.NodeID, src Source, opts ...Option) (*Watcher, error) {
	if src == nil {
		return nil, types.ErrNilSource
	}

	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	if err := config.pollPolicy(0).Validate(); err != nil {
		return nil, fmt.Errorf("logwatch: %w", err)
	}

	return &Watcher{
		node:    node,
		src:     src,
		config:  config,
		logger:  logging.OrNop(config.Logger),
		metrics: metrics.OrNop(config.Metrics),
	}, nil
}

// Node returns the node whose stream is watched.
func (w *Watcher) Node() types.NodeID {
	return w.node
}

// Source returns the underlying stream.
func (w *Watcher) Source() Source {
	return w.src
}

// Mark captures the current end of the stream.
//
// Any line appended after Mark returns has an offset >= the mark's offset.
// A source implementing Syncer is synced first so that lines already in the
// node's log land before the mark. Two marks with no intervening writes are
// equal.
func (w *Watcher) Mark(ctx context.Context) (types.LogMark, error) {
	if s, ok := w.src.(Syncer); ok {
		if err := s.Sync(ctx); err != nil {
			return types.LogMark{}, fmt.Errorf("syncpoint: sync log source of %s: %w", w.node, err)
		}
	}

	end, err := w.src.End(ctx)
	if err != nil {
		return types.LogMark{}, err
	}

	return types.LogMark{Node: w.node, Offset: end}, nil
}

// WaitFor blocks until a line at or after from matches pattern.
//
// The pattern is an RE2 expression searched anywhere in the line. The first
// matching line in stream order is returned.
//
// Parameters:
//   - ctx: Context for cancellation
//   - pattern: Regular expression to search for
//   - from: Mark from this watcher's node; earlier lines are ignored
//   - timeout: Wait budget; zero uses the configured default
//
// Returns:
//   - types.PatternMatch: The first match with Offset >= from.Offset
//   - error: *types.TimeoutError when the budget elapsed,
//     types.ErrMarkNodeMismatch for a foreign mark, or a source error
func (w *Watcher) WaitFor(ctx context.Context, pattern string, from types.LogMark, timeout time.Duration) (types.PatternMatch, error) {
	matches, err := w.WaitForAll(ctx, []string{pattern}, from, timeout)
	if err != nil {
		return types.PatternMatch{}, err
	}

	return matches[0], nil
}

// WaitForAll blocks until every pattern has matched a line at or after from.
//
// Patterns may match in any order; each result is the first match of the
// pattern at the same index.
func (w *Watcher) WaitForAll(ctx context.Context, patterns []string, from types.LogMark, timeout time.Duration) ([]types.PatternMatch, error) {
	if from.Node != w.node {
		return nil, fmt.Errorf("%w: mark from %s used on %s", types.ErrMarkNodeMismatch, from.Node, w.node)
	}
	if len(patterns) == 0 {
		return nil, nil
	}

	res := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("syncpoint: invalid pattern %q: %w", p, err)
		}
		res[i] = re
	}
	if timeout <= 0 {
		timeout = w.config.DefaultTimeout
	}

	w.metrics.IncLogWait(w.node)
	start := time.Now()
	defer func() {
		w.metrics.ObserveLogWaitDuration(w.node, time.Since(start).Seconds())
	}()

	found := make([]*types.PatternMatch, len(patterns))
	remaining := len(patterns)
	cursor := from.Offset

	policy := w.config.pollPolicy(timeout)
	err := backoff.Poll(ctx, policy, func(ctx context.Context) (backoff.Outcome, error) {
		for {
			lines, next, err := w.src.Lines(ctx, cursor, w.config.BatchSize)
			if err != nil {
				return backoff.Stop, err
			}
			cursor = next

			for _, line := range lines {
				if line.Offset < from.Offset {
					continue
				}
				for i, re := range res {
					if found[i] != nil {
						continue
					}
					groups := re.FindStringSubmatch(line.Text)
					if groups == nil {
						continue
					}
					found[i] = &types.PatternMatch{
						Node:   w.node,
						Line:   line.Text,
						Groups: groups,
						Offset: line.Offset,
					}
					remaining--
				}
				if remaining == 0 {
					return backoff.Stop, nil
				}
			}

			if len(lines) < w.config.BatchSize {
				return backoff.Retry, nil
			}
		}
	})

	var deadline *backoff.ErrDeadline
	if errors.As(err, &deadline) {
		w.metrics.IncLogWaitTimeout(w.node)
		w.logger.Warn("log wait timed out", "node", w.node, "patterns", patterns, "from", from.Offset, "timeout", timeout)

		return nil, &types.TimeoutError{Operation: "wait_for", Node: w.node, Timeout: timeout}
	}
	if err != nil {
		return nil, err
	}

	out := make([]types.PatternMatch, len(found))
	for i, m := range found {
		out[i] = *m
	}
	w.logger.Debug("log pattern matched", "node", w.node, "patterns", patterns, "offset", out[0].Offset)

	return out, nil
}

// Grep returns every line captured so far that matches pattern.
func (w *Watcher) Grep(ctx context.Context, pattern string) ([]types.PatternMatch, error) {
	return w.GrepFrom(ctx, pattern, types.LogMark{Node: w.node})
}

// GrepFrom returns every line at or after from that matches pattern, up to the
// end of the stream at call time.
func (w *Watcher) GrepFrom(ctx context.Context, pattern string, from types.LogMark) ([]types.PatternMatch, error) {
	if from.Node != w.node {
		return nil, fmt.Errorf("%w: mark from %s used on %s", types.ErrMarkNodeMismatch, from.Node, w.node)
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("syncpoint: invalid pattern %q: %w", pattern, err)
	}

	end, err := w.src.End(ctx)
	if err != nil {
		return nil, err
	}

	var matches []types.PatternMatch
	cursor := from.Offset
	for cursor < end {
		lines, next, err := w.src.Lines(ctx, cursor, w.config.BatchSize)
		if err != nil {
			return nil, err
		}
		for _, line := range lines {
			if line.Offset >= end {
				return matches, nil
			}
			if line.Offset < from.Offset {
				continue
			}
			if groups := re.FindStringSubmatch(line.Text); groups != nil {
				matches = append(matches, types.PatternMatch{
					Node:   w.node,
					Line:   line.Text,
					Groups: groups,
					Offset: line.Offset,
				})
			}
		}
		if len(lines) == 0 || next == cursor {
			break
		}
		cursor = next
	}

	return matches, nil
}
