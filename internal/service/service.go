// Package service is the operation surface shared by the HTTP API and the
// CLI: run submission, status, results, analytics and the benchmark catalog.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/maktheus/AgentBenchMark/internal/agent"
	"github.com/maktheus/AgentBenchMark/internal/analytics"
	"github.com/maktheus/AgentBenchMark/internal/config"
	"github.com/maktheus/AgentBenchMark/internal/dataset"
	"github.com/maktheus/AgentBenchMark/internal/orchestrator"
	"github.com/maktheus/AgentBenchMark/internal/store"
)

const (
	maxSamples     = 10
	maxTemperature = 2.0
)

var (
	// ErrNotFound reports an unknown run id.
	ErrNotFound = errors.New("service: run not found")
	// ErrNotReady reports a results request against a run that has not
	// completed yet.
	ErrNotReady = errors.New("service: results not available yet")
)

// ValidationError rejects a malformed request. The message is safe to show
// to callers.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "service: validation error"
	}
	if e.Field == "" {
		return fmt.Sprintf("service: %s", e.Message)
	}
	return fmt.Sprintf("service: %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Runner launches and cancels benchmark executions.
type Runner interface {
	Start(run *store.Run) error
	Cancel(runID string) bool
}

// Service wires the store, dataset catalog and orchestrator behind the
// external operations.
type Service struct {
	store    store.Store
	datasets dataset.Loader
	runner   Runner
	defaults config.BenchmarkConfig

	now func() time.Time
	id  func() string
}

// New builds a Service. The orchestrator runner may be nil only in contexts
// that never submit runs.
func New(st store.Store, datasets dataset.Loader, runner Runner, defaults config.BenchmarkConfig) *Service {
	return &Service{
		store:    st,
		datasets: datasets,
		runner:   runner,
		defaults: defaults,
		now:      time.Now,
		id:       uuid.NewString,
	}
}

// SubmitRequest describes a benchmark run to start.
type SubmitRequest struct {
	Benchmark string             `json:"benchmark"`
	Agents    []agent.Descriptor `json:"agents"`
	Config    store.RunConfig    `json:"config"`
}

// SubmitRun validates the request, persists a queued run and hands it to the
// orchestrator. Nothing is persisted when validation fails.
func (s *Service) SubmitRun(ctx context.Context, req *SubmitRequest) (*store.Run, error) {
	if s == nil {
		return nil, errors.New("service: nil service")
	}
	if req == nil {
		return nil, invalid("", "missing request body")
	}

	benchmark := strings.TrimSpace(req.Benchmark)
	if benchmark == "" {
		return nil, invalid("benchmark", "benchmark id is required")
	}
	if len(req.Agents) == 0 {
		return nil, invalid("agents", "at least one agent is required")
	}
	if max := s.defaults.MaxAgents; max > 0 && len(req.Agents) > max {
		return nil, invalid("agents", "at most %d agents per run", max)
	}

	seen := make(map[string]struct{}, len(req.Agents))
	for i, d := range req.Agents {
		id := strings.TrimSpace(d.ID)
		if id == "" {
			return nil, invalid("agents", "agent %d has an empty id", i)
		}
		if _, dup := seen[id]; dup {
			return nil, invalid("agents", "duplicate agent id %q", id)
		}
		seen[id] = struct{}{}
	}

	cfg, err := s.resolveConfig(req.Config)
	if err != nil {
		return nil, err
	}

	if _, err := s.datasets.Load(ctx, benchmark); err != nil {
		if errors.Is(err, dataset.ErrNotFound) {
			return nil, invalid("benchmark", "unknown benchmark %q", benchmark)
		}
		return nil, fmt.Errorf("service: load benchmark: %w", err)
	}

	run := &store.Run{
		ID:        s.id(),
		Status:    store.StatusQueued,
		Benchmark: benchmark,
		Agents:    req.Agents,
		Config:    cfg,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("service: create run: %w", err)
	}
	if s.runner != nil {
		if err := s.runner.Start(run); err != nil {
			return nil, fmt.Errorf("service: start run: %w", err)
		}
	}
	return run, nil
}

func (s *Service) resolveConfig(cfg store.RunConfig) (store.RunConfig, error) {
	if cfg.Samples < 0 {
		return cfg, invalid("config.samples", "samples must be positive")
	}
	if cfg.Samples > maxSamples {
		return cfg, invalid("config.samples", "at most %d samples per question", maxSamples)
	}
	if cfg.Temperature < 0 || cfg.Temperature > maxTemperature {
		return cfg, invalid("config.temperature", "temperature must be between 0 and %v", maxTemperature)
	}
	if cfg.MaxTokens < 0 {
		return cfg, invalid("config.max_tokens", "max_tokens must be positive")
	}
	for id, ov := range cfg.Overrides {
		if ov.Temperature != nil && (*ov.Temperature < 0 || *ov.Temperature > maxTemperature) {
			return cfg, invalid("config.overrides", "temperature for %q must be between 0 and %v", id, maxTemperature)
		}
		if ov.MaxTokens != nil && *ov.MaxTokens < 0 {
			return cfg, invalid("config.overrides", "max_tokens for %q must be positive", id)
		}
	}

	if cfg.Samples == 0 {
		cfg.Samples = s.defaults.Samples
	}
	if cfg.Samples <= 0 {
		cfg.Samples = 1
	}
	if cfg.QueryTimeoutMs <= 0 {
		cfg.QueryTimeoutMs = s.defaults.QueryTimeout.Milliseconds()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = s.defaults.MaxAttempts
	}
	if cfg.AgentRateLimit <= 0 {
		cfg.AgentRateLimit = s.defaults.AgentRate
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = s.defaults.MaxInFlight
	}
	if strings.TrimSpace(cfg.JudgeAgent) == "" {
		cfg.JudgeAgent = s.defaults.JudgeAgent
	}
	return cfg, nil
}

// GetRunStatus returns the run record, including progress.
func (s *Service) GetRunStatus(ctx context.Context, runID string) (*store.Run, error) {
	return s.getRun(ctx, runID)
}

// ListRuns returns the most recent runs.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]*store.Run, error) {
	if s == nil {
		return nil, errors.New("service: nil service")
	}
	runs, err := s.store.ListRuns(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("service: list runs: %w", err)
	}
	return runs, nil
}

// RunResults pairs a completed run with its per-agent aggregates.
type RunResults struct {
	Run          *store.Run           `json:"run"`
	Results      []*store.AgentResult `json:"results"`
	TopPerformer string               `json:"top_performer,omitempty"`
}

// GetRunResults returns final results. Runs that have not completed yield
// ErrNotReady; failed runs never become ready.
func (s *Service) GetRunResults(ctx context.Context, runID string) (*RunResults, error) {
	run, err := s.getRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != store.StatusCompleted {
		return nil, fmt.Errorf("%w: run %q is %s", ErrNotReady, runID, run.Status)
	}

	results, err := s.store.AgentResultsByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("service: load results: %w", err)
	}
	return &RunResults{
		Run:          run,
		Results:      results,
		TopPerformer: analytics.TopPerformer(results),
	}, nil
}

// GetAnalysis computes the analytics report for a completed run.
func (s *Service) GetAnalysis(ctx context.Context, runID string) (*analytics.Report, error) {
	results, err := s.finalResults(ctx, runID)
	if err != nil {
		return nil, err
	}
	return analytics.Analyze(runID, results), nil
}

// GetDeductions computes the deduction patterns for a completed run.
func (s *Service) GetDeductions(ctx context.Context, runID string) (*analytics.Deductions, error) {
	results, err := s.finalResults(ctx, runID)
	if err != nil {
		return nil, err
	}
	return analytics.Deduce(runID, results), nil
}

func (s *Service) finalResults(ctx context.Context, runID string) ([]*store.AgentResult, error) {
	run, err := s.getRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != store.StatusCompleted {
		return nil, fmt.Errorf("%w: run %q is %s", ErrNotReady, runID, run.Status)
	}
	results, err := s.store.AgentResultsByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("service: load results: %w", err)
	}
	return results, nil
}

// CancelRun aborts a queued or processing run.
func (s *Service) CancelRun(ctx context.Context, runID string) (*store.Run, error) {
	run, err := s.getRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status.Terminal() {
		return nil, invalid("run_id", "run %q already %s", runID, run.Status)
	}

	if s.runner != nil {
		s.runner.Cancel(runID)
	}
	// Mark failed here as well so the caller observes the terminal state
	// immediately; the orchestrator's own write then hits ErrTerminal and
	// is ignored.
	if err := s.store.FailRun(ctx, runID, "cancelled", s.now().UTC()); err != nil && !errors.Is(err, store.ErrTerminal) {
		return nil, fmt.Errorf("service: cancel run: %w", err)
	}
	return s.getRun(ctx, runID)
}

// ListBenchmarks returns the dataset catalog.
func (s *Service) ListBenchmarks(ctx context.Context) ([]dataset.Info, error) {
	if s == nil {
		return nil, errors.New("service: nil service")
	}
	infos, err := s.datasets.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: list benchmarks: %w", err)
	}
	return infos, nil
}

func (s *Service) getRun(ctx context.Context, runID string) (*store.Run, error) {
	if s == nil {
		return nil, errors.New("service: nil service")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, fmt.Errorf("%w: empty run id", ErrNotFound)
	}
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, runID)
		}
		return nil, fmt.Errorf("service: get run: %w", err)
	}
	return run, nil
}

var _ Runner = (*orchestrator.Orchestrator)(nil)
