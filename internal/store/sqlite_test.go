package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/maktheus/AgentBenchMark/internal/agent"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()

	sqlitePath := filepath.Join(t.TempDir(), "bench.db")
	sq, err := NewSQLiteStore(sqlitePath)
	if err != nil {
		t.Fatalf("NewSQLiteStore(%q): %v", sqlitePath, err)
	}
	t.Cleanup(func() { _ = sq.Close() })

	return map[string]Store{
		"sqlite": sq,
		"memory": NewMemoryStore(),
	}
}

func testRun(id string) *Run {
	temp := 0.2
	return &Run{
		ID:        id,
		Benchmark: "demo-v1",
		Agents: []agent.Descriptor{
			{ID: "gpt-4o", Kind: "openai", Model: "gpt-4o"},
			{ID: "claude-sonnet", Kind: "anthropic", Model: "claude-sonnet-4-20250514"},
		},
		Config: RunConfig{
			Samples:        2,
			QueryTimeoutMs: 30000,
			MaxAttempts:    3,
			Overrides: map[string]AgentParams{
				"gpt-4o": {Temperature: &temp},
			},
		},
		CreatedAt: time.Now().UTC(),
	}
}

func TestRunLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			run := testRun("run-lifecycle")
			if err := st.CreateRun(ctx, run); err != nil {
				t.Fatalf("CreateRun: %v", err)
			}

			got, err := st.GetRun(ctx, run.ID)
			if err != nil {
				t.Fatalf("GetRun: %v", err)
			}
			if got.Status != StatusQueued {
				t.Fatalf("status = %q, want %q", got.Status, StatusQueued)
			}
			if got.Benchmark != "demo-v1" || len(got.Agents) != 2 {
				t.Fatalf("round trip lost fields: %+v", got)
			}
			if got.Config.Overrides["gpt-4o"].Temperature == nil {
				t.Fatalf("override temperature lost")
			}

			if err := st.MarkProcessing(ctx, run.ID, time.Now()); err != nil {
				t.Fatalf("MarkProcessing: %v", err)
			}
			if err := st.MarkProcessing(ctx, run.ID, time.Now()); !errors.Is(err, ErrTerminal) {
				t.Fatalf("second MarkProcessing err = %v, want ErrTerminal", err)
			}

			if err := st.CompleteRun(ctx, run.ID, time.Now()); err != nil {
				t.Fatalf("CompleteRun: %v", err)
			}
			got, err = st.GetRun(ctx, run.ID)
			if err != nil {
				t.Fatalf("GetRun after complete: %v", err)
			}
			if got.Status != StatusCompleted {
				t.Fatalf("status = %q, want %q", got.Status, StatusCompleted)
			}
			if got.Progress != 1 {
				t.Fatalf("progress = %v, want 1", got.Progress)
			}
			if got.CompletedAt.IsZero() {
				t.Fatalf("completed_at not set")
			}

			if err := st.FailRun(ctx, run.ID, "late", time.Now()); !errors.Is(err, ErrTerminal) {
				t.Fatalf("FailRun on completed err = %v, want ErrTerminal", err)
			}
		})
	}
}

func TestFailRun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			run := testRun("run-fail")
			if err := st.CreateRun(ctx, run); err != nil {
				t.Fatalf("CreateRun: %v", err)
			}
			if err := st.MarkProcessing(ctx, run.ID, time.Now()); err != nil {
				t.Fatalf("MarkProcessing: %v", err)
			}
			if err := st.FailRun(ctx, run.ID, "cancelled", time.Now()); err != nil {
				t.Fatalf("FailRun: %v", err)
			}

			got, err := st.GetRun(ctx, run.ID)
			if err != nil {
				t.Fatalf("GetRun: %v", err)
			}
			if got.Status != StatusFailed || got.FailReason != "cancelled" {
				t.Fatalf("got status %q reason %q", got.Status, got.FailReason)
			}
			if err := st.CompleteRun(ctx, run.ID, time.Now()); !errors.Is(err, ErrTerminal) {
				t.Fatalf("CompleteRun on failed err = %v, want ErrTerminal", err)
			}
		})
	}
}

func TestProgressMonotone(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			run := testRun("run-progress")
			if err := st.CreateRun(ctx, run); err != nil {
				t.Fatalf("CreateRun: %v", err)
			}
			if err := st.MarkProcessing(ctx, run.ID, time.Now()); err != nil {
				t.Fatalf("MarkProcessing: %v", err)
			}

			for _, p := range []float64{0.25, 0.75, 0.5} {
				if err := st.UpdateProgress(ctx, run.ID, p); err != nil {
					t.Fatalf("UpdateProgress(%v): %v", p, err)
				}
			}
			got, err := st.GetRun(ctx, run.ID)
			if err != nil {
				t.Fatalf("GetRun: %v", err)
			}
			if got.Progress != 0.75 {
				t.Fatalf("progress = %v, want 0.75", got.Progress)
			}
		})
	}
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := st.GetRun(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("err = %v, want ErrNotFound", err)
			}
			if err := st.MarkProcessing(ctx, "missing", time.Now()); !errors.Is(err, ErrNotFound) {
				t.Fatalf("MarkProcessing err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestListRunsOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			base := time.Now().UTC().Truncate(time.Second)
			for i, id := range []string{"list-a", "list-b", "list-c"} {
				run := testRun(id)
				run.CreatedAt = base.Add(time.Duration(i) * time.Second)
				if err := st.CreateRun(ctx, run); err != nil {
					t.Fatalf("CreateRun(%q): %v", id, err)
				}
			}

			runs, err := st.ListRuns(ctx, 2)
			if err != nil {
				t.Fatalf("ListRuns: %v", err)
			}
			if len(runs) != 2 {
				t.Fatalf("len = %d, want 2", len(runs))
			}
			if runs[0].ID != "list-c" || runs[1].ID != "list-b" {
				t.Fatalf("order = [%s %s], want [list-c list-b]", runs[0].ID, runs[1].ID)
			}
		})
	}
}

func TestAttemptUpsert(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			run := testRun("run-attempts")
			if err := st.CreateRun(ctx, run); err != nil {
				t.Fatalf("CreateRun: %v", err)
			}

			first := &Attempt{
				RunID: run.ID, AgentID: "gpt-4o", QuestionID: "demo-1", Sample: 0,
				Category: "arithmetic", ErrKind: "rate_limited", ErrMsg: "429",
			}
			if err := st.SaveAttempt(ctx, first); err != nil {
				t.Fatalf("SaveAttempt: %v", err)
			}

			// A retry of the same (agent, question, sample) replaces the record.
			second := &Attempt{
				RunID: run.ID, AgentID: "gpt-4o", QuestionID: "demo-1", Sample: 0,
				Category: "arithmetic", Response: "4", Tokens: 12, LatencyMs: 80,
				Graded: true, Correct: true, Score: 1,
			}
			if err := st.SaveAttempt(ctx, second); err != nil {
				t.Fatalf("SaveAttempt replace: %v", err)
			}

			other := &Attempt{
				RunID: run.ID, AgentID: "claude-sonnet", QuestionID: "demo-1", Sample: 0,
				Category: "arithmetic", Response: "five", Graded: true, Correct: false,
			}
			if err := st.SaveAttempt(ctx, other); err != nil {
				t.Fatalf("SaveAttempt other: %v", err)
			}

			atts, err := st.AttemptsByRun(ctx, run.ID)
			if err != nil {
				t.Fatalf("AttemptsByRun: %v", err)
			}
			if len(atts) != 2 {
				t.Fatalf("len = %d, want 2", len(atts))
			}
			if atts[0].AgentID != "claude-sonnet" || atts[1].AgentID != "gpt-4o" {
				t.Fatalf("order = [%s %s]", atts[0].AgentID, atts[1].AgentID)
			}
			got := atts[1]
			if got.ErrKind != "" || !got.Correct || got.Response != "4" || got.Errored() {
				t.Fatalf("replace lost fields: %+v", got)
			}
		})
	}
}

func TestAgentResultRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			run := testRun("run-results")
			if err := st.CreateRun(ctx, run); err != nil {
				t.Fatalf("CreateRun: %v", err)
			}

			res := &AgentResult{
				RunID: run.ID, AgentID: "gpt-4o",
				Accuracy: 66.7, AvgLatencyMs: 120.5, AvgTokens: 34.2,
				Consistency: 0.9, ErrorRate: 10,
				Total: 6, Graded: 3, Correct: 2, Errored: 1,
				CategoryScores: map[string]float64{"arithmetic": 100, "general_knowledge": 50},
				Final:          true,
			}
			if err := st.SaveAgentResult(ctx, res); err != nil {
				t.Fatalf("SaveAgentResult: %v", err)
			}

			// Upsert keyed on (run, agent).
			res.Accuracy = 83.3
			if err := st.SaveAgentResult(ctx, res); err != nil {
				t.Fatalf("SaveAgentResult update: %v", err)
			}

			results, err := st.AgentResultsByRun(ctx, run.ID)
			if err != nil {
				t.Fatalf("AgentResultsByRun: %v", err)
			}
			if len(results) != 1 {
				t.Fatalf("len = %d, want 1", len(results))
			}
			got := results[0]
			if got.Accuracy != 83.3 || !got.Final {
				t.Fatalf("round trip: %+v", got)
			}
			if got.CategoryScores["arithmetic"] != 100 || got.CategoryScores["general_knowledge"] != 50 {
				t.Fatalf("category scores: %+v", got.CategoryScores)
			}
		})
	}
}

func TestNewSQLiteStoreBadPath(t *testing.T) {
	t.Parallel()
	if _, err := NewSQLiteStore(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
