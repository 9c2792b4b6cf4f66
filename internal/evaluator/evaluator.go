package evaluator

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/maktheus/AgentBenchMark/internal/agent"
	"github.com/maktheus/AgentBenchMark/internal/dataset"
)

// Outcome is the result of grading a single response. Produced exactly once
// per response that did not error at the adapter boundary.
type Outcome struct {
	Graded    bool    `json:"graded"`
	Correct   bool    `json:"correct"`
	Score     float64 `json:"score"` // 0.0 - 1.0
	Judged    bool    `json:"judged,omitempty"`
	Rationale string  `json:"rationale,omitempty"`
}

// Engine grades responses. Exact/template grading is deterministic and makes
// no external calls; judged grading delegates to the judge adapter.
type Engine struct {
	Judge agent.Adapter
}

// Evaluate grades one response against the question's canonical answer. A
// returned error means the outcome is ungraded (evaluation error), never a
// silent zero.
func (e *Engine) Evaluate(ctx context.Context, q *dataset.Question, response string) (*Outcome, error) {
	if q == nil {
		return nil, errors.New("evaluator: nil question")
	}

	if q.Judged {
		if e == nil || e.Judge == nil {
			return nil, errors.New("evaluator: judged question without judge agent")
		}
		return e.judge(ctx, q, response)
	}

	correct := matchExact(q, response)
	out := &Outcome{Graded: true, Correct: correct}
	if correct {
		out.Score = 1
	}
	return out, nil
}

// matchExact normalizes the response and compares it to the canonical answer
// or, for multiple choice, to the matching option by label or text.
func matchExact(q *dataset.Question, response string) bool {
	resp := Normalize(response)
	if resp == "" {
		return false
	}

	if len(q.Options) > 0 {
		want := optionIndex(q.Options, q.Answer)
		if want < 0 {
			return false
		}
		got, ok := parseChoice(q.Options, response)
		return ok && got == want
	}

	want := Normalize(q.Answer)
	if resp == want {
		return true
	}
	return numericEqual(resp, want)
}

// Normalize case-folds, trims whitespace and strips surrounding punctuation
// and option-label decoration so "A." and "(a)" compare equal to "a".
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, "\"'`")
	s = strings.TrimRight(s, ".!?:;,")
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '(' && s[len(s)-1] == ')' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

// optionIndex resolves the canonical answer to an option index. The answer
// may be the option text or its letter label.
func optionIndex(options []string, answer string) int {
	ans := Normalize(answer)
	if ans == "" {
		return -1
	}
	for i, opt := range options {
		if Normalize(opt) == ans {
			return i
		}
	}
	if len(ans) == 1 {
		idx := int(ans[0] - 'a')
		if idx >= 0 && idx < len(options) {
			return idx
		}
	}
	return -1
}

// parseChoice extracts the selected option from a free-text response.
func parseChoice(options []string, response string) (int, bool) {
	resp := Normalize(response)
	if resp == "" {
		return 0, false
	}

	for _, prefix := range []string{"the answer is", "answer:", "answer is", "answer"} {
		if rest, ok := strings.CutPrefix(resp, prefix); ok {
			resp = Normalize(rest)
			break
		}
	}

	// Bare label such as "b" or "b) some text".
	if len(resp) >= 1 {
		idx := int(resp[0] - 'a')
		if idx >= 0 && idx < len(options) {
			if len(resp) == 1 {
				return idx, true
			}
			switch resp[1] {
			case '.', ')', ':', ' ':
				return idx, true
			}
		}
	}

	for i, opt := range options {
		if Normalize(opt) == resp {
			return i, true
		}
	}
	return 0, false
}

func numericEqual(a, b string) bool {
	fa, errA := strconv.ParseFloat(strings.ReplaceAll(a, ",", ""), 64)
	fb, errB := strconv.ParseFloat(strings.ReplaceAll(b, ",", ""), 64)
	if errA != nil || errB != nil {
		return false
	}
	return fa == fb
}
