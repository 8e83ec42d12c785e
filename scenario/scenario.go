package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/syncpoint"
	"github.com/arloliu/syncpoint/internal/logging"
	"github.com/arloliu/syncpoint/internal/metrics"
	"github.com/arloliu/syncpoint/types"
)

// Scenario defines a test scenario interface.
type Scenario interface {
	// Name returns the unique name of the scenario.
	Name() string

	// Description returns a human-readable description.
	Description() string

	// Run executes the scenario logic. A non-nil error fails the scenario.
	Run(ctx context.Context, sc *syncpoint.ScenarioContext) error
}

// Result is the outcome of one scenario run.
type Result struct {
	Name     string
	Started  time.Time
	Duration time.Duration
	Err      error
}

// Passed reports whether the scenario returned no error.
func (r Result) Passed() bool {
	return r.Err == nil
}

// Report collects the results of a Runner.Run call in execution order.
type Report struct {
	Results []Result
}

// Passed reports whether every scenario passed.
func (r *Report) Passed() bool {
	for _, res := range r.Results {
		if !res.Passed() {
			return false
		}
	}

	return true
}

// Failed returns the failing results.
func (r *Report) Failed() []Result {
	var failed []Result
	for _, res := range r.Results {
		if !res.Passed() {
			failed = append(failed, res)
		}
	}

	return failed
}

// Err joins every scenario failure, prefixed with the scenario name.
func (r *Report) Err() error {
	var errs []error
	for _, res := range r.Failed() {
		errs = append(errs, fmt.Errorf("%s: %w", res.Name, res.Err))
	}

	return errors.Join(errs...)
}

// Runner executes registered scenarios in order.
type Runner struct {
	scenarios []Scenario
	logger    types.Logger
	metrics   types.MetricsCollector
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(logger types.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logging.OrNop(logger)
	}
}

// WithMetrics sets the runner's metrics collector.
func WithMetrics(collector types.MetricsCollector) RunnerOption {
	return func(r *Runner) {
		r.metrics = metrics.OrNop(collector)
	}
}

// NewRunner creates an empty runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		logger:  logging.NewNopLogger(),
		metrics: metrics.NewNopMetrics(),
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register adds scenarios to the runner.
func (r *Runner) Register(scenarios ...Scenario) {
	r.scenarios = append(r.scenarios, scenarios...)
}

// Scenarios returns the registered scenarios.
func (r *Runner) Scenarios() []Scenario {
	return r.scenarios
}

// Run executes every registered scenario in order against sc.
//
// A failing scenario does not stop later ones; a canceled ctx does. The
// report always holds a result for every scenario that started.
//
// Returns:
//   - *Report: Per-scenario results
//   - error: The joined scenario failures, or ctx.Err() if canceled
func (r *Runner) Run(ctx context.Context, sc *syncpoint.ScenarioContext) (*Report, error) {
	report := &Report{}

	for _, s := range r.scenarios {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		r.logger.Info("--------------------------------------------------")
		r.logger.Info("Running Scenario", "name", s.Name())
		r.logger.Info("--------------------------------------------------")

		start := time.Now()
		err := s.Run(ctx, sc)
		res := Result{Name: s.Name(), Started: start, Duration: time.Since(start), Err: err}
		report.Results = append(report.Results, res)

		r.metrics.IncScenarioResult(s.Name(), err == nil)
		r.metrics.ObserveScenarioDuration(s.Name(), res.Duration.Seconds())

		if err != nil {
			r.logger.Error("Scenario failed", "name", s.Name(), "duration", res.Duration, "error", err)
		} else {
			r.logger.Info("Scenario completed successfully", "name", s.Name(), "duration", res.Duration)
		}
	}

	return report, report.Err()
}

// Select returns the scenarios whose names are listed, in the listed order.
// An empty list selects all of them.
func Select(all []Scenario, names []string) ([]Scenario, error) {
	if len(names) == 0 {
		return all, nil
	}

	byName := make(map[string]Scenario, len(all))
	for _, s := range all {
		byName[s.Name()] = s
	}

	selected := make([]Scenario, 0, len(names))
	for _, name := range names {
		s, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("syncpoint: unknown scenario %q", name)
		}
		selected = append(selected, s)
	}

	return selected, nil
}
