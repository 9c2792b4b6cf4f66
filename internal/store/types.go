package store

import (
	"context"
	"errors"
	"time"

	"github.com/maktheus/AgentBenchMark/internal/agent"
)

// RunStatus is the run lifecycle state.
type RunStatus string

const (
	StatusQueued     RunStatus = "queued"
	StatusProcessing RunStatus = "processing"
	StatusCompleted  RunStatus = "completed"
	StatusFailed     RunStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var (
	// ErrNotFound reports an unknown run id.
	ErrNotFound = errors.New("store: run not found")
	// ErrTerminal reports a mutation against a completed or failed run.
	ErrTerminal = errors.New("store: run already terminal")
)

// AgentParams are per-agent overrides of the run configuration.
type AgentParams struct {
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// RunConfig is the benchmark execution configuration.
type RunConfig struct {
	Temperature    float64                `json:"temperature,omitempty"`
	MaxTokens      int                    `json:"max_tokens,omitempty"`
	Samples        int                    `json:"samples,omitempty"`
	QueryTimeoutMs int64                  `json:"query_timeout_ms,omitempty"`
	MaxAttempts    int                    `json:"max_attempts,omitempty"`
	AgentRateLimit float64                `json:"agent_rate_limit,omitempty"` // queries per second per agent
	MaxInFlight    int                    `json:"max_in_flight,omitempty"`
	JudgeAgent     string                 `json:"judge_agent,omitempty"`
	Overrides      map[string]AgentParams `json:"overrides,omitempty"`
}

// Run is the durable record of one benchmark execution. Mutated only by the
// orchestrator; terminal once completed or failed.
type Run struct {
	ID          string             `json:"run_id"`
	Status      RunStatus          `json:"status"`
	Benchmark   string             `json:"benchmark"`
	Agents      []agent.Descriptor `json:"agents"`
	Config      RunConfig          `json:"config"`
	CreatedAt   time.Time          `json:"created_at"`
	StartedAt   time.Time          `json:"started_at,omitempty"`
	CompletedAt time.Time          `json:"completed_at,omitempty"`
	Progress    float64            `json:"progress"`
	FailReason  string             `json:"fail_reason,omitempty"`
}

// Attempt is the terminal record for one (agent, question, sample) triple:
// the raw response plus its evaluation outcome, or the adapter/evaluation
// error that ended it. Retries replace, never append.
type Attempt struct {
	RunID      string  `json:"run_id"`
	AgentID    string  `json:"agent_id"`
	QuestionID string  `json:"question_id"`
	Sample     int     `json:"sample"`
	Category   string  `json:"category,omitempty"`
	Response   string  `json:"response,omitempty"`
	Tokens     int     `json:"tokens"`
	LatencyMs  int64   `json:"latency_ms"`
	ErrKind    string  `json:"err_kind,omitempty"`
	ErrMsg     string  `json:"err_msg,omitempty"`
	Graded     bool    `json:"graded"`
	Correct    bool    `json:"correct"`
	Score      float64 `json:"score"`
	Judged     bool    `json:"judged,omitempty"`
	Rationale  string  `json:"rationale,omitempty"`
}

// Errored reports whether the attempt ended in an adapter error. Evaluation
// failures leave the attempt ungraded, not errored. Errored attempts are
// excluded from the accuracy denominator.
func (a *Attempt) Errored() bool {
	return a != nil && a.ErrKind != ""
}

// AgentResult is the per-agent aggregate for a run, recomputable from the
// run's attempts. Final only once the run is terminal.
type AgentResult struct {
	RunID          string             `json:"run_id"`
	AgentID        string             `json:"agent_id"`
	Accuracy       float64            `json:"accuracy"`       // percent, one decimal
	AvgLatencyMs   float64            `json:"latency_avg_ms"` // over non-errored attempts
	AvgTokens      float64            `json:"tokens_avg"`
	Consistency    float64            `json:"consistency"` // 0.0 - 1.0
	ErrorRate      float64            `json:"error_rate"`  // percent
	Total          int                `json:"total"`
	Graded         int                `json:"graded"`
	Correct        int                `json:"correct"`
	Errored        int                `json:"errored"`
	CategoryScores map[string]float64 `json:"category_scores"`
	Final          bool               `json:"final"`
}

// Store is the durable record of run state and results. All mutations to a
// run's aggregates are serialized per run by the orchestrator; the store
// itself only guarantees atomicity per call.
type Store interface {
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)

	MarkProcessing(ctx context.Context, id string, startedAt time.Time) error
	UpdateProgress(ctx context.Context, id string, progress float64) error
	CompleteRun(ctx context.Context, id string, completedAt time.Time) error
	FailRun(ctx context.Context, id, reason string, completedAt time.Time) error

	SaveAttempt(ctx context.Context, att *Attempt) error
	AttemptsByRun(ctx context.Context, runID string) ([]*Attempt, error)

	SaveAgentResult(ctx context.Context, res *AgentResult) error
	AgentResultsByRun(ctx context.Context, runID string) ([]*AgentResult, error)

	Close() error
}
