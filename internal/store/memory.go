package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and single-shot CLI runs.
type MemoryStore struct {
	mu      sync.RWMutex
	runs    map[string]*Run
	order   []string
	atts    map[string]map[string]*Attempt
	results map[string]map[string]*AgentResult
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:    make(map[string]*Run),
		atts:    make(map[string]map[string]*Attempt),
		results: make(map[string]map[string]*AgentResult),
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) CreateRun(ctx context.Context, run *Run) error {
	if run == nil || strings.TrimSpace(run.ID) == "" {
		return fmt.Errorf("store: invalid run")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; ok {
		return fmt.Errorf("store: duplicate run id %q", run.ID)
	}
	cp := cloneRun(run)
	if cp.Status == "" {
		cp.Status = StatusQueued
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.runs[cp.ID] = cp
	m.order = append(m.order, cp.ID)
	return nil
}

func (m *MemoryStore) GetRun(ctx context.Context, id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[strings.TrimSpace(id)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return cloneRun(run), nil
}

func (m *MemoryStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Run, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, cloneRun(m.runs[m.order[i]]))
	}
	return out, nil
}

func (m *MemoryStore) MarkProcessing(ctx context.Context, id string, startedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if run.Status != StatusQueued {
		return fmt.Errorf("%w: %q", ErrTerminal, id)
	}
	run.Status = StatusProcessing
	run.StartedAt = startedAt.UTC()
	return nil
}

func (m *MemoryStore) UpdateProgress(ctx context.Context, id string, progress float64) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if run.Status == StatusProcessing && progress > run.Progress {
		run.Progress = progress
	}
	return nil
}

func (m *MemoryStore) CompleteRun(ctx context.Context, id string, completedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if run.Status.Terminal() {
		return fmt.Errorf("%w: %q", ErrTerminal, id)
	}
	run.Status = StatusCompleted
	run.CompletedAt = completedAt.UTC()
	run.Progress = 1
	return nil
}

func (m *MemoryStore) FailRun(ctx context.Context, id, reason string, completedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if run.Status.Terminal() {
		return fmt.Errorf("%w: %q", ErrTerminal, id)
	}
	run.Status = StatusFailed
	run.CompletedAt = completedAt.UTC()
	run.FailReason = reason
	return nil
}

func (m *MemoryStore) SaveAttempt(ctx context.Context, att *Attempt) error {
	if att == nil || att.RunID == "" || att.AgentID == "" || att.QuestionID == "" {
		return fmt.Errorf("store: invalid attempt")
	}
	key := fmt.Sprintf("%s|%s|%d", att.AgentID, att.QuestionID, att.Sample)
	m.mu.Lock()
	defer m.mu.Unlock()
	byKey := m.atts[att.RunID]
	if byKey == nil {
		byKey = make(map[string]*Attempt)
		m.atts[att.RunID] = byKey
	}
	cp := *att
	byKey[key] = &cp
	return nil
}

func (m *MemoryStore) AttemptsByRun(ctx context.Context, runID string) ([]*Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byKey := m.atts[runID]
	out := make([]*Attempt, 0, len(byKey))
	for _, att := range byKey {
		cp := *att
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AgentID != out[j].AgentID {
			return out[i].AgentID < out[j].AgentID
		}
		if out[i].QuestionID != out[j].QuestionID {
			return out[i].QuestionID < out[j].QuestionID
		}
		return out[i].Sample < out[j].Sample
	})
	return out, nil
}

func (m *MemoryStore) SaveAgentResult(ctx context.Context, res *AgentResult) error {
	if res == nil || res.RunID == "" || res.AgentID == "" {
		return fmt.Errorf("store: invalid agent result")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	byAgent := m.results[res.RunID]
	if byAgent == nil {
		byAgent = make(map[string]*AgentResult)
		m.results[res.RunID] = byAgent
	}
	cp := *res
	if res.CategoryScores != nil {
		cp.CategoryScores = make(map[string]float64, len(res.CategoryScores))
		for k, v := range res.CategoryScores {
			cp.CategoryScores[k] = v
		}
	}
	byAgent[res.AgentID] = &cp
	return nil
}

func (m *MemoryStore) AgentResultsByRun(ctx context.Context, runID string) ([]*AgentResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byAgent := m.results[runID]
	out := make([]*AgentResult, 0, len(byAgent))
	for _, res := range byAgent {
		cp := *res
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out, nil
}

func cloneRun(run *Run) *Run {
	cp := *run
	cp.Agents = append(run.Agents[:0:0], run.Agents...)
	if run.Config.Overrides != nil {
		cp.Config.Overrides = make(map[string]AgentParams, len(run.Config.Overrides))
		for k, v := range run.Config.Overrides {
			cp.Config.Overrides[k] = v
		}
	}
	return &cp
}
