package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/maktheus/AgentBenchMark/internal/agent"
)

const defaultListLimit = 50

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB

	insertAttemptStmt  *sql.Stmt
	updateProgressStmt *sql.Stmt
	getRunStmt         *sql.Stmt
}

var sqliteOpen = sql.Open

// NewSQLiteStore opens or creates a SQLite store at the given path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("store: empty sqlite path")
	}
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("store: create sqlite dir: %w", err)
			}
		}
	}

	db, err := sqliteOpen("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping sqlite: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	st := &SQLiteStore{db: db}
	if err := st.prepareStatements(); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON`,
		`PRAGMA journal_mode = WAL`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			benchmark TEXT NOT NULL,
			agents_json TEXT NOT NULL,
			config_json TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			started_at INTEGER NOT NULL DEFAULT 0,
			completed_at INTEGER NOT NULL DEFAULT 0,
			progress REAL NOT NULL DEFAULT 0,
			fail_reason TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS attempts (
			run_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			question_id TEXT NOT NULL,
			sample INTEGER NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			response TEXT NOT NULL DEFAULT '',
			tokens INTEGER NOT NULL DEFAULT 0,
			latency_ms INTEGER NOT NULL DEFAULT 0,
			err_kind TEXT NOT NULL DEFAULT '',
			err_msg TEXT NOT NULL DEFAULT '',
			graded INTEGER NOT NULL DEFAULT 0,
			correct INTEGER NOT NULL DEFAULT 0,
			score REAL NOT NULL DEFAULT 0,
			judged INTEGER NOT NULL DEFAULT 0,
			rationale TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (run_id, agent_id, question_id, sample),
			FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS agent_results (
			run_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			accuracy REAL NOT NULL,
			latency_avg_ms REAL NOT NULL,
			tokens_avg REAL NOT NULL,
			consistency REAL NOT NULL,
			error_rate REAL NOT NULL,
			total INTEGER NOT NULL,
			graded INTEGER NOT NULL,
			correct INTEGER NOT NULL,
			errored INTEGER NOT NULL,
			category_scores_json TEXT NOT NULL DEFAULT '{}',
			final INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (run_id, agent_id),
			FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_run ON attempts(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("store: init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) prepareStatements() error {
	if s == nil || s.db == nil {
		return errors.New("store: nil sqlite store")
	}
	ctx := context.Background()

	var err error
	s.insertAttemptStmt, err = s.db.PrepareContext(ctx, `
		INSERT OR REPLACE INTO attempts (
			run_id, agent_id, question_id, sample, category, response, tokens,
			latency_ms, err_kind, err_msg, graded, correct, score, judged, rationale
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("store: prepare insert attempt: %w", err)
	}

	// MAX keeps progress monotonically non-decreasing even under races.
	s.updateProgressStmt, err = s.db.PrepareContext(ctx, `
		UPDATE runs SET progress = MAX(progress, ?) WHERE id = ? AND status = ?
	`)
	if err != nil {
		return fmt.Errorf("store: prepare update progress: %w", err)
	}

	s.getRunStmt, err = s.db.PrepareContext(ctx, `
		SELECT id, status, benchmark, agents_json, config_json, created_at,
			started_at, completed_at, progress, fail_reason
		FROM runs WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("store: prepare get run: %w", err)
	}
	return nil
}

// Close releases database resources.
func (s *SQLiteStore) Close() error {
	if s == nil {
		return nil
	}
	for _, stmt := range []*sql.Stmt{s.insertAttemptStmt, s.updateProgressStmt, s.getRunStmt} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// CreateRun persists a freshly submitted run.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) error {
	if s == nil {
		return errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return errors.New("store: nil context")
	}
	if run == nil {
		return errors.New("store: nil run")
	}
	id := strings.TrimSpace(run.ID)
	if id == "" {
		return errors.New("store: empty run id")
	}

	agentsJSON, err := json.Marshal(run.Agents)
	if err != nil {
		return fmt.Errorf("store: marshal agents: %w", err)
	}
	cfgJSON, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("store: marshal config: %w", err)
	}

	status := run.Status
	if status == "" {
		status = StatusQueued
	}
	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, status, benchmark, agents_json, config_json, created_at, progress)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, string(status), run.Benchmark, string(agentsJSON), string(cfgJSON), createdAt.UTC().UnixMilli(), run.Progress)
	if err != nil {
		return fmt.Errorf("store: insert run: %w", err)
	}
	return nil
}

// GetRun loads a run by id.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	if s == nil {
		return nil, errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return nil, errors.New("store: nil context")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}

	run, err := scanRun(s.getRunStmt.QueryRowContext(ctx, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
		}
		return nil, fmt.Errorf("store: get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if s == nil {
		return nil, errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return nil, errors.New("store: nil context")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, benchmark, agents_json, config_json, created_at,
			started_at, completed_at, progress, fail_reason
		FROM runs ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		id            string
		status        string
		benchmark     string
		agentsJSON    string
		cfgJSON       string
		createdAtMS   int64
		startedAtMS   int64
		completedAtMS int64
		progress      float64
		failReason    string
	)
	if err := row.Scan(&id, &status, &benchmark, &agentsJSON, &cfgJSON,
		&createdAtMS, &startedAtMS, &completedAtMS, &progress, &failReason); err != nil {
		return nil, err
	}

	var agents []agent.Descriptor
	if err := json.Unmarshal([]byte(agentsJSON), &agents); err != nil {
		return nil, fmt.Errorf("decode agents: %w", err)
	}
	var cfg RunConfig
	if err := json.Unmarshal([]byte(cfgJSON), &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	run := &Run{
		ID:         id,
		Status:     RunStatus(status),
		Benchmark:  benchmark,
		Agents:     agents,
		Config:     cfg,
		CreatedAt:  time.UnixMilli(createdAtMS).UTC(),
		Progress:   progress,
		FailReason: failReason,
	}
	if startedAtMS > 0 {
		run.StartedAt = time.UnixMilli(startedAtMS).UTC()
	}
	if completedAtMS > 0 {
		run.CompletedAt = time.UnixMilli(completedAtMS).UTC()
	}
	return run, nil
}

// MarkProcessing transitions queued -> processing.
func (s *SQLiteStore) MarkProcessing(ctx context.Context, id string, startedAt time.Time) error {
	return s.transition(ctx, id, `
		UPDATE runs SET status = ?, started_at = ? WHERE id = ? AND status = ?
	`, string(StatusProcessing), startedAt.UTC().UnixMilli(), id, string(StatusQueued))
}

// UpdateProgress raises the run's progress. Never lowers it.
func (s *SQLiteStore) UpdateProgress(ctx context.Context, id string, progress float64) error {
	if s == nil {
		return errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return errors.New("store: nil context")
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	_, err := s.updateProgressStmt.ExecContext(ctx, progress, id, string(StatusProcessing))
	if err != nil {
		return fmt.Errorf("store: update progress: %w", err)
	}
	return nil
}

// CompleteRun transitions processing -> completed and pins progress to 1.
func (s *SQLiteStore) CompleteRun(ctx context.Context, id string, completedAt time.Time) error {
	return s.transition(ctx, id, `
		UPDATE runs SET status = ?, completed_at = ?, progress = 1
		WHERE id = ? AND status NOT IN (?, ?)
	`, string(StatusCompleted), completedAt.UTC().UnixMilli(), id, string(StatusCompleted), string(StatusFailed))
}

// FailRun transitions a non-terminal run to failed with a reason.
func (s *SQLiteStore) FailRun(ctx context.Context, id, reason string, completedAt time.Time) error {
	return s.transition(ctx, id, `
		UPDATE runs SET status = ?, completed_at = ?, fail_reason = ?
		WHERE id = ? AND status NOT IN (?, ?)
	`, string(StatusFailed), completedAt.UTC().UnixMilli(), reason, id, string(StatusCompleted), string(StatusFailed))
}

func (s *SQLiteStore) transition(ctx context.Context, id, query string, args ...any) error {
	if s == nil {
		return errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return errors.New("store: nil context")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrNotFound
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("store: transition run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: transition run: %w", err)
	}
	if n == 0 {
		if _, err := s.GetRun(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: %q", ErrTerminal, id)
	}
	return nil
}

// SaveAttempt upserts the terminal record for one (agent, question, sample).
func (s *SQLiteStore) SaveAttempt(ctx context.Context, att *Attempt) error {
	if s == nil {
		return errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return errors.New("store: nil context")
	}
	if att == nil {
		return errors.New("store: nil attempt")
	}
	if strings.TrimSpace(att.RunID) == "" || strings.TrimSpace(att.AgentID) == "" || strings.TrimSpace(att.QuestionID) == "" {
		return errors.New("store: attempt missing key fields")
	}

	_, err := s.insertAttemptStmt.ExecContext(ctx,
		att.RunID, att.AgentID, att.QuestionID, att.Sample, att.Category,
		att.Response, att.Tokens, att.LatencyMs, att.ErrKind, att.ErrMsg,
		boolInt(att.Graded), boolInt(att.Correct), att.Score, boolInt(att.Judged), att.Rationale,
	)
	if err != nil {
		return fmt.Errorf("store: insert attempt: %w", err)
	}
	return nil
}

// AttemptsByRun lists a run's attempts in (agent, question, sample) order.
func (s *SQLiteStore) AttemptsByRun(ctx context.Context, runID string) ([]*Attempt, error) {
	if s == nil {
		return nil, errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return nil, errors.New("store: nil context")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, agent_id, question_id, sample, category, response, tokens,
			latency_ms, err_kind, err_msg, graded, correct, score, judged, rationale
		FROM attempts WHERE run_id = ?
		ORDER BY agent_id ASC, question_id ASC, sample ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: list attempts: %w", err)
	}
	defer rows.Close()

	var out []*Attempt
	for rows.Next() {
		var (
			att                     Attempt
			graded, correct, judged int
		)
		if err := rows.Scan(&att.RunID, &att.AgentID, &att.QuestionID, &att.Sample,
			&att.Category, &att.Response, &att.Tokens, &att.LatencyMs,
			&att.ErrKind, &att.ErrMsg, &graded, &correct, &att.Score, &judged, &att.Rationale); err != nil {
			return nil, fmt.Errorf("store: scan attempt: %w", err)
		}
		att.Graded = graded != 0
		att.Correct = correct != 0
		att.Judged = judged != 0
		out = append(out, &att)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list attempts: %w", err)
	}
	return out, nil
}

// SaveAgentResult upserts a per-agent aggregate.
func (s *SQLiteStore) SaveAgentResult(ctx context.Context, res *AgentResult) error {
	if s == nil {
		return errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return errors.New("store: nil context")
	}
	if res == nil {
		return errors.New("store: nil agent result")
	}
	if strings.TrimSpace(res.RunID) == "" || strings.TrimSpace(res.AgentID) == "" {
		return errors.New("store: agent result missing key fields")
	}

	catJSON, err := json.Marshal(res.CategoryScores)
	if err != nil {
		return fmt.Errorf("store: marshal category scores: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO agent_results (
			run_id, agent_id, accuracy, latency_avg_ms, tokens_avg, consistency,
			error_rate, total, graded, correct, errored, category_scores_json, final
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, res.RunID, res.AgentID, res.Accuracy, res.AvgLatencyMs, res.AvgTokens,
		res.Consistency, res.ErrorRate, res.Total, res.Graded, res.Correct,
		res.Errored, string(catJSON), boolInt(res.Final))
	if err != nil {
		return fmt.Errorf("store: insert agent result: %w", err)
	}
	return nil
}

// AgentResultsByRun lists a run's aggregates in agent id order.
func (s *SQLiteStore) AgentResultsByRun(ctx context.Context, runID string) ([]*AgentResult, error) {
	if s == nil {
		return nil, errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return nil, errors.New("store: nil context")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, agent_id, accuracy, latency_avg_ms, tokens_avg, consistency,
			error_rate, total, graded, correct, errored, category_scores_json, final
		FROM agent_results WHERE run_id = ?
		ORDER BY agent_id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: list agent results: %w", err)
	}
	defer rows.Close()

	var out []*AgentResult
	for rows.Next() {
		var (
			res     AgentResult
			catJSON string
			final   int
		)
		if err := rows.Scan(&res.RunID, &res.AgentID, &res.Accuracy, &res.AvgLatencyMs,
			&res.AvgTokens, &res.Consistency, &res.ErrorRate, &res.Total,
			&res.Graded, &res.Correct, &res.Errored, &catJSON, &final); err != nil {
			return nil, fmt.Errorf("store: scan agent result: %w", err)
		}
		if err := json.Unmarshal([]byte(catJSON), &res.CategoryScores); err != nil {
			return nil, fmt.Errorf("store: decode category scores: %w", err)
		}
		res.Final = final != 0
		out = append(out, &res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list agent results: %w", err)
	}
	return out, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
