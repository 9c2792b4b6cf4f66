package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/maktheus/AgentBenchMark/internal/agent"
	"github.com/maktheus/AgentBenchMark/internal/dataset"
	"github.com/maktheus/AgentBenchMark/internal/store"
)

// stubAdapter answers from a prompt->response map and can fail scripted
// numbers of times before succeeding.
type stubAdapter struct {
	id        string
	responses map[string]string
	err       *agent.Error
	failFirst int

	mu    sync.Mutex
	calls int
}

func (s *stubAdapter) Query(ctx context.Context, prompt string, opts agent.QueryOptions) (*agent.Reply, error) {
	s.mu.Lock()
	s.calls++
	n := s.calls
	s.mu.Unlock()

	if s.err != nil && (s.failFirst == 0 || n <= s.failFirst) {
		return nil, s.err
	}
	text, ok := s.responses[prompt]
	if !ok {
		text = "i do not know"
	}
	return &agent.Reply{Text: text, InputTokens: 10, OutputTokens: 5, LatencyMs: 50}, nil
}

func (s *stubAdapter) Info() agent.Info {
	return agent.Info{Name: s.id, Model: "stub"}
}

func (s *stubAdapter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// blockingAdapter waits for cancellation.
type blockingAdapter struct{ started chan struct{} }

func (b *blockingAdapter) Query(ctx context.Context, prompt string, opts agent.QueryOptions) (*agent.Reply, error) {
	select {
	case b.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return nil, &agent.Error{Kind: agent.KindNetwork, Agent: "blocker", Message: ctx.Err().Error()}
}

func (b *blockingAdapter) Info() agent.Info { return agent.Info{Name: "blocker"} }

var demoAnswers = map[string]string{
	"What is 2+2? Reply with only the number.":                      "4",
	"What is the capital of France? Reply with only the city name.": "Paris",
	"What is 12*12? Reply with only the number.":                    "144",
}

func newTestOrchestrator(t *testing.T, adapters map[string]agent.Adapter) (*Orchestrator, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	o := New(st, dataset.NewDirLoader(t.TempDir()), agent.Credentials{})
	o.newAdapter = func(d agent.Descriptor, _ agent.Credentials) (agent.Adapter, error) {
		a, ok := adapters[d.ID]
		if !ok {
			return nil, fmt.Errorf("no stub for %q", d.ID)
		}
		return a, nil
	}
	return o, st
}

func submitRun(t *testing.T, st store.Store, run *store.Run) {
	t.Helper()
	if err := st.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
}

func TestExecuteCompletesRun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	good := &stubAdapter{id: "good", responses: demoAnswers}
	shaky := &stubAdapter{id: "shaky", responses: map[string]string{
		"What is 2+2? Reply with only the number.":                      "4",
		"What is the capital of France? Reply with only the city name.": "London",
		"What is 12*12? Reply with only the number.":                    "144",
	}}

	o, st := newTestOrchestrator(t, map[string]agent.Adapter{"good": good, "shaky": shaky})
	run := &store.Run{
		ID:        "run-1",
		Benchmark: "demo-v1",
		Agents: []agent.Descriptor{
			{ID: "good", Kind: "local"},
			{ID: "shaky", Kind: "local"},
		},
		Config: store.RunConfig{Samples: 1, MaxAttempts: 1},
	}
	submitRun(t, st, run)

	o.Execute(ctx, run)

	got, err := st.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != store.StatusCompleted {
		t.Fatalf("status = %q (reason %q), want completed", got.Status, got.FailReason)
	}
	if got.Progress != 1 {
		t.Fatalf("progress = %v, want 1", got.Progress)
	}

	atts, err := st.AttemptsByRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("AttemptsByRun: %v", err)
	}
	if len(atts) != 6 {
		t.Fatalf("attempts = %d, want 6", len(atts))
	}

	results, err := st.AgentResultsByRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("AgentResultsByRun: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].AgentID != "good" || results[0].Accuracy != 100.0 {
		t.Fatalf("good: %+v", results[0])
	}
	// 2 correct of 3 graded.
	if results[1].AgentID != "shaky" || results[1].Accuracy != 66.7 {
		t.Fatalf("shaky: %+v", results[1])
	}
	if !results[0].Final || !results[1].Final {
		t.Fatalf("results not final")
	}
}

func TestExecutePerPairErrorsDoNotFailRun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	broken := &stubAdapter{id: "broken", err: &agent.Error{
		Kind: agent.KindAuth, Agent: "broken", Message: "bad key",
	}}
	o, st := newTestOrchestrator(t, map[string]agent.Adapter{"broken": broken})
	run := &store.Run{
		ID:        "run-errors",
		Benchmark: "demo-v1",
		Agents:    []agent.Descriptor{{ID: "broken", Kind: "local"}},
		Config:    store.RunConfig{Samples: 1, MaxAttempts: 3},
	}
	submitRun(t, st, run)

	o.Execute(ctx, run)

	got, err := st.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != store.StatusCompleted {
		t.Fatalf("status = %q, want completed", got.Status)
	}

	// Auth errors are not retryable.
	if n := broken.callCount(); n != 3 {
		t.Fatalf("calls = %d, want 3 (one per question)", n)
	}

	results, err := st.AgentResultsByRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("AgentResultsByRun: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	res := results[0]
	if res.Errored != 3 || res.ErrorRate != 100.0 || res.Accuracy != 0 {
		t.Fatalf("result: %+v", res)
	}
}

func TestExecuteRetriesRateLimited(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	oldBase := retryBaseDelay
	retryBaseDelay = time.Millisecond
	t.Cleanup(func() { retryBaseDelay = oldBase })

	// Fails the first call with 429, succeeds after.
	flaky := &stubAdapter{
		id:        "flaky",
		responses: demoAnswers,
		err:       &agent.Error{Kind: agent.KindRateLimited, Agent: "flaky", Message: "429"},
		failFirst: 1,
	}
	o, st := newTestOrchestrator(t, map[string]agent.Adapter{"flaky": flaky})
	run := &store.Run{
		ID:        "run-retry",
		Benchmark: "demo-v1",
		Agents:    []agent.Descriptor{{ID: "flaky", Kind: "local"}},
		Config:    store.RunConfig{Samples: 1, MaxAttempts: 3, MaxInFlight: 1},
	}
	submitRun(t, st, run)

	o.Execute(ctx, run)

	atts, err := st.AttemptsByRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("AttemptsByRun: %v", err)
	}
	for _, att := range atts {
		if att.Errored() {
			t.Fatalf("attempt %s errored after retry: %s", att.QuestionID, att.ErrMsg)
		}
	}
	if n := flaky.callCount(); n != 4 {
		t.Fatalf("calls = %d, want 4 (3 questions + 1 retry)", n)
	}
}

func TestCancelFailsRun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	blocker := &blockingAdapter{started: make(chan struct{}, 1)}
	o, st := newTestOrchestrator(t, map[string]agent.Adapter{"blocker": blocker})
	run := &store.Run{
		ID:        "run-cancel",
		Benchmark: "demo-v1",
		Agents:    []agent.Descriptor{{ID: "blocker", Kind: "local"}},
		Config:    store.RunConfig{Samples: 1, MaxAttempts: 1},
	}
	submitRun(t, st, run)

	if err := o.Start(run); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-blocker.started

	if !o.Cancel(run.ID) {
		t.Fatalf("Cancel: run not found")
	}
	o.Wait()

	got, err := st.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != store.StatusFailed || got.FailReason != "cancelled" {
		t.Fatalf("status = %q reason %q, want failed/cancelled", got.Status, got.FailReason)
	}

	// Mid-flight outcomes are discarded.
	atts, err := st.AttemptsByRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("AttemptsByRun: %v", err)
	}
	if len(atts) != 0 {
		t.Fatalf("attempts = %d, want 0", len(atts))
	}
}

func TestExecuteUnknownBenchmarkFailsRun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	o, st := newTestOrchestrator(t, map[string]agent.Adapter{})
	run := &store.Run{
		ID:        "run-nods",
		Benchmark: "no-such-benchmark",
		Agents:    []agent.Descriptor{{ID: "good", Kind: "local"}},
	}
	submitRun(t, st, run)

	o.Execute(ctx, run)

	got, err := st.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != store.StatusFailed {
		t.Fatalf("status = %q, want failed", got.Status)
	}
}

func TestQueryOptionsOverrides(t *testing.T) {
	t.Parallel()

	temp := 0.9
	tokens := 256
	cfg := store.RunConfig{
		Temperature: 0.2,
		MaxTokens:   64,
		Overrides: map[string]store.AgentParams{
			"tuned": {Temperature: &temp, MaxTokens: &tokens},
		},
	}

	base := queryOptions(cfg, "plain")
	if base.Temperature != 0.2 || base.MaxTokens != 64 {
		t.Fatalf("plain: %+v", base)
	}
	tuned := queryOptions(cfg, "tuned")
	if tuned.Temperature != 0.9 || tuned.MaxTokens != 256 {
		t.Fatalf("tuned: %+v", tuned)
	}
}

func TestLatencyBudgetExcludesPair(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	dir := t.TempDir()
	ds := `{
  "id": "latency-v1",
  "name": "Latency budget",
  "data": [
    {"id": "q1", "question": "fast one", "answer": "yes", "max_latency_ms": 10},
    {"id": "q2", "question": "slow ok", "answer": "blue"}
  ]
}`
	if err := os.WriteFile(filepath.Join(dir, "latency-v1.json"), []byte(ds), 0o644); err != nil {
		t.Fatalf("write dataset: %v", err)
	}

	// Stub replies report 50ms, over q1's 10ms budget.
	slow := &stubAdapter{id: "slow", responses: map[string]string{
		"fast one": "yes",
		"slow ok":  "blue",
	}}
	st := store.NewMemoryStore()
	o := New(st, dataset.NewDirLoader(dir), agent.Credentials{})
	o.newAdapter = func(d agent.Descriptor, _ agent.Credentials) (agent.Adapter, error) {
		return slow, nil
	}

	run := &store.Run{
		ID:        "run-latency",
		Benchmark: "latency-v1",
		Agents:    []agent.Descriptor{{ID: "slow", Kind: "local"}},
		Config:    store.RunConfig{Samples: 1, MaxAttempts: 1},
	}
	submitRun(t, st, run)

	o.Execute(ctx, run)

	got, err := st.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != store.StatusCompleted {
		t.Fatalf("status = %q (reason %q), want completed", got.Status, got.FailReason)
	}

	atts, err := st.AttemptsByRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("AttemptsByRun: %v", err)
	}
	if len(atts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(atts))
	}
	for _, att := range atts {
		if att.QuestionID == "q1" && att.ErrKind != string(agent.KindTimeout) {
			t.Fatalf("q1 not marked timeout: %+v", att)
		}
	}

	results, err := st.AgentResultsByRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("AgentResultsByRun: %v", err)
	}
	res := results[0]
	// The over-budget pair is errored, not wrong: 1/1 graded.
	if res.Accuracy != 100.0 || res.Graded != 1 || res.Errored != 1 {
		t.Fatalf("result: %+v", res)
	}
	if res.ErrorRate != 50.0 {
		t.Fatalf("error rate = %v, want 50.0", res.ErrorRate)
	}
}

// attemptFailStore rejects every attempt write.
type attemptFailStore struct {
	*store.MemoryStore
}

func (s *attemptFailStore) SaveAttempt(ctx context.Context, att *store.Attempt) error {
	return errors.New("disk full")
}

func TestSaveAttemptFailureFailsRun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	good := &stubAdapter{id: "good", responses: demoAnswers}
	st := &attemptFailStore{MemoryStore: store.NewMemoryStore()}
	o := New(st, dataset.NewDirLoader(t.TempDir()), agent.Credentials{})
	o.newAdapter = func(d agent.Descriptor, _ agent.Credentials) (agent.Adapter, error) {
		return good, nil
	}

	run := &store.Run{
		ID:        "run-saveerr",
		Benchmark: "demo-v1",
		Agents:    []agent.Descriptor{{ID: "good", Kind: "local"}},
		Config:    store.RunConfig{Samples: 1, MaxAttempts: 1},
	}
	submitRun(t, st, run)

	o.Execute(ctx, run)

	got, err := st.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != store.StatusFailed {
		t.Fatalf("status = %q, want failed", got.Status)
	}
	if !strings.Contains(got.FailReason, "save attempt") {
		t.Fatalf("reason = %q", got.FailReason)
	}

	// No partial aggregates behind a failed run.
	results, err := st.AgentResultsByRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("AgentResultsByRun: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("results = %d, want 0", len(results))
	}
}
