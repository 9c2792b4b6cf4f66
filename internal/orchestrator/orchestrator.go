package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/maktheus/AgentBenchMark/internal/agent"
	"github.com/maktheus/AgentBenchMark/internal/dataset"
	"github.com/maktheus/AgentBenchMark/internal/evaluator"
	"github.com/maktheus/AgentBenchMark/internal/store"
)

var (
	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 4 * time.Second
)

// Orchestrator drives benchmark runs: it fans queries out across agents,
// evaluates responses as they arrive, and persists attempts and aggregates.
type Orchestrator struct {
	store    store.Store
	datasets dataset.Loader
	creds    agent.Credentials

	// seam for tests
	newAdapter func(agent.Descriptor, agent.Credentials) (agent.Adapter, error)

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// New creates an Orchestrator backed by the given store and dataset loader.
func New(st store.Store, datasets dataset.Loader, creds agent.Credentials) *Orchestrator {
	return &Orchestrator{
		store:      st,
		datasets:   datasets,
		creds:      creds,
		newAdapter: agent.New,
		cancels:    make(map[string]context.CancelFunc),
	}
}

// Start executes the run asynchronously. The run must already be persisted
// with status queued.
func (o *Orchestrator) Start(run *store.Run) error {
	if o == nil {
		return errors.New("orchestrator: nil orchestrator")
	}
	if run == nil {
		return errors.New("orchestrator: nil run")
	}

	ctx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.cancels[run.ID] = cancel
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			cancel()
			o.mu.Lock()
			delete(o.cancels, run.ID)
			o.mu.Unlock()
		}()
		o.Execute(ctx, run)
	}()
	return nil
}

// Cancel aborts an in-flight run. It reports whether a run was ours to abort.
func (o *Orchestrator) Cancel(runID string) bool {
	if o == nil {
		return false
	}
	o.mu.Lock()
	cancel, ok := o.cancels[runID]
	o.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Wait blocks until all in-flight runs finish. Used at shutdown.
func (o *Orchestrator) Wait() {
	if o == nil {
		return
	}
	o.wg.Wait()
}

type task struct {
	adapter  agent.Adapter
	limiter  *rate.Limiter
	agentID  string
	question dataset.Question
	sample   int
}

// Execute runs the full benchmark synchronously. Per-pair agent failures are
// recorded as errored attempts; only cancellation or infrastructure failures
// fail the run.
func (o *Orchestrator) Execute(ctx context.Context, run *store.Run) {
	if o == nil || run == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if err := o.store.MarkProcessing(ctx, run.ID, time.Now().UTC()); err != nil {
		return
	}

	ds, err := o.datasets.Load(ctx, run.Benchmark)
	if err != nil {
		o.fail(run.ID, fmt.Sprintf("load benchmark %q: %v", run.Benchmark, err))
		return
	}

	adapters := make(map[string]agent.Adapter, len(run.Agents))
	limiters := make(map[string]*rate.Limiter, len(run.Agents))
	for _, d := range run.Agents {
		a, err := o.newAdapter(d, o.creds)
		if err != nil {
			o.fail(run.ID, fmt.Sprintf("agent %q: %v", d.ID, err))
			return
		}
		adapters[d.ID] = a
		limiters[d.ID] = newLimiter(run.Config.AgentRateLimit)
	}

	engine := &evaluator.Engine{}
	if j := strings.TrimSpace(run.Config.JudgeAgent); j != "" && hasJudged(ds) {
		judge, err := o.newAdapter(agent.Descriptor{ID: j}, o.creds)
		if err != nil {
			o.fail(run.ID, fmt.Sprintf("judge agent %q: %v", j, err))
			return
		}
		engine.Judge = judge
	}

	samples := run.Config.Samples
	if samples <= 0 {
		samples = 1
	}

	tasks := make([]task, 0, len(run.Agents)*len(ds.Questions)*samples)
	for _, d := range run.Agents {
		for _, q := range ds.Questions {
			for s := 0; s < samples; s++ {
				tasks = append(tasks, task{
					adapter:  adapters[d.ID],
					limiter:  limiters[d.ID],
					agentID:  d.ID,
					question: q,
					sample:   s,
				})
			}
		}
	}

	inFlight := run.Config.MaxInFlight
	if inFlight <= 0 {
		inFlight = 8
	}
	sem := semaphore.NewWeighted(int64(inFlight))

	var (
		done     atomic.Int64
		total    = int64(len(tasks))
		attMu    sync.Mutex
		attempts = make([]*store.Attempt, 0, len(tasks))
		saveErr  error
	)

	var wg sync.WaitGroup
	for i := range tasks {
		tk := tasks[i]
		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)

			if err := tk.limiter.Wait(ctx); err != nil {
				return
			}

			att := o.runTask(ctx, run, engine, tk)
			if ctx.Err() != nil {
				// Cancelled runs discard whatever was mid-flight.
				return
			}

			// A lost attempt would leave the aggregates short of what
			// progress reports, so persistence failures fail the run.
			attMu.Lock()
			if err := o.store.SaveAttempt(ctx, att); err != nil {
				if saveErr == nil {
					saveErr = err
				}
			} else {
				attempts = append(attempts, att)
			}
			attMu.Unlock()

			n := done.Add(1)
			_ = o.store.UpdateProgress(ctx, run.ID, float64(n)/float64(total))
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		o.fail(run.ID, "cancelled")
		return
	}
	if saveErr != nil {
		o.fail(run.ID, fmt.Sprintf("save attempt: %v", saveErr))
		return
	}

	for _, res := range Aggregate(run.ID, attempts) {
		if err := o.store.SaveAgentResult(ctx, res); err != nil {
			o.fail(run.ID, fmt.Sprintf("save results: %v", err))
			return
		}
	}

	_ = o.store.CompleteRun(ctx, run.ID, time.Now().UTC())
}

// fail marks the run failed. Uses a fresh context so the write survives
// cancellation of the run context.
func (o *Orchestrator) fail(runID, reason string) {
	log.Printf("orchestrator: run %s failed: %s", runID, reason)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = o.store.FailRun(ctx, runID, reason, time.Now().UTC())
}

func (o *Orchestrator) runTask(ctx context.Context, run *store.Run, engine *evaluator.Engine, tk task) *store.Attempt {
	att := &store.Attempt{
		RunID:      run.ID,
		AgentID:    tk.agentID,
		QuestionID: tk.question.ID,
		Sample:     tk.sample,
		Category:   tk.question.Category,
	}

	opts := queryOptions(run.Config, tk.agentID)
	reply, err := o.queryWithRetry(ctx, run.Config, tk, opts)
	if err != nil {
		var ae *agent.Error
		if errors.As(err, &ae) {
			att.ErrKind = string(ae.Kind)
			att.ErrMsg = ae.Message
		} else {
			att.ErrKind = string(agent.KindNetwork)
			att.ErrMsg = err.Error()
		}
		return att
	}

	att.Response = reply.Text
	att.Tokens = reply.TotalTokens()
	att.LatencyMs = reply.LatencyMs

	if tk.question.MaxLatencyMs > 0 && reply.LatencyMs > tk.question.MaxLatencyMs {
		att.ErrKind = string(agent.KindTimeout)
		att.ErrMsg = fmt.Sprintf("latency %dms over budget %dms", reply.LatencyMs, tk.question.MaxLatencyMs)
		return att
	}

	q := tk.question
	outcome, evalErr := engine.Evaluate(ctx, &q, reply.Text)
	if evalErr != nil {
		// An evaluation failure leaves the attempt ungraded, not errored:
		// the agent answered, we just could not score it.
		return att
	}
	att.Graded = outcome.Graded
	att.Correct = outcome.Correct
	att.Score = outcome.Score
	att.Judged = outcome.Judged
	att.Rationale = outcome.Rationale
	return att
}

func (o *Orchestrator) queryWithRetry(ctx context.Context, cfg store.RunConfig, tk task, opts agent.QueryOptions) (*agent.Reply, error) {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, backoffDelay(attempt)); err != nil {
				return nil, lastErr
			}
		}

		reply, err := o.query(ctx, cfg, tk, opts)
		if err == nil {
			return reply, nil
		}
		lastErr = err

		var ae *agent.Error
		if !errors.As(err, &ae) || !ae.Retryable() {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (o *Orchestrator) query(ctx context.Context, cfg store.RunConfig, tk task, opts agent.QueryOptions) (*agent.Reply, error) {
	queryCtx := ctx
	if cfg.QueryTimeoutMs > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, time.Duration(cfg.QueryTimeoutMs)*time.Millisecond)
		defer cancel()
	}
	return tk.adapter.Query(queryCtx, tk.question.Prompt, opts)
}

func queryOptions(cfg store.RunConfig, agentID string) agent.QueryOptions {
	opts := agent.QueryOptions{
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}
	if ov, ok := cfg.Overrides[agentID]; ok {
		if ov.Temperature != nil {
			opts.Temperature = *ov.Temperature
		}
		if ov.MaxTokens != nil {
			opts.MaxTokens = *ov.MaxTokens
		}
	}
	return opts
}

func newLimiter(qps float64) *rate.Limiter {
	if qps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(qps), 1)
}

func backoffDelay(attempt int) time.Duration {
	d := retryBaseDelay * time.Duration(math.Pow(2, float64(attempt-1)))
	if d > retryMaxDelay {
		d = retryMaxDelay
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func hasJudged(ds *dataset.Dataset) bool {
	for _, q := range ds.Questions {
		if q.Judged {
			return true
		}
	}
	return false
}
