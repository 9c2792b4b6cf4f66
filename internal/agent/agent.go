package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Adapter is the uniform contract over heterogeneous AI backends. Callers
// never branch on the concrete adapter type; every failure comes back as a
// typed *Error so the orchestrator can apply a uniform per-question policy.
type Adapter interface {
	Query(ctx context.Context, prompt string, opts QueryOptions) (*Reply, error)
	Info() Info
}

type QueryOptions struct {
	System      string
	Temperature float64
	MaxTokens   int
}

// Reply is a successful adapter response.
type Reply struct {
	Text         string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
}

func (r *Reply) TotalTokens() int {
	if r == nil {
		return 0
	}
	return r.InputTokens + r.OutputTokens
}

// Info describes an adapter. Pure descriptor, no side effects.
type Info struct {
	Name         string   `json:"name"`
	Model        string   `json:"model"`
	Capabilities []string `json:"capabilities"`
}

// ErrorKind classifies adapter failures.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindNetwork     ErrorKind = "network"
	KindRateLimited ErrorKind = "rate_limited"
	KindAuth        ErrorKind = "authentication"
	KindMalformed   ErrorKind = "malformed_response"
)

// Error is the only error type adapters return from Query.
type Error struct {
	Kind    ErrorKind
	Agent   string
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return "agent: <nil>"
	}
	return fmt.Sprintf("agent %s: %s: %s", e.Agent, e.Kind, e.Message)
}

// Retryable reports whether the failure is worth retrying. Only provider
// throttling is; auth and malformed responses fail the pair immediately.
func (e *Error) Retryable() bool {
	return e != nil && e.Kind == KindRateLimited
}

func newError(agentID string, kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Agent: strings.TrimSpace(agentID), Message: strings.TrimSpace(msg)}
}

// classifyCtxErr maps context termination onto the adapter taxonomy.
func classifyCtxErr(agentID string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(agentID, KindTimeout, "query deadline exceeded")
	}
	return newError(agentID, KindNetwork, err.Error())
}
