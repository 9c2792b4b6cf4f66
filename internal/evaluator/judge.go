package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/maktheus/AgentBenchMark/internal/agent"
	"github.com/maktheus/AgentBenchMark/internal/dataset"
)

const judgeScoreScale = 5
const judgePassScore = 4

const judgePromptTemplate = `You are a strict benchmark grader. Grade the candidate answer against the reference answer.

## Question
{{.Question}}

## Reference Answer
{{.Answer}}
{{if .Rationale}}
## Grading Notes
{{.Rationale}}
{{end}}
## Candidate Answer
{{.Response}}

## Instructions
Rate the candidate answer on a scale of 1-{{.Scale}}.
- 1: wrong or unrelated
- {{.Scale}}: fully correct and complete

Output ONLY valid JSON in this exact format:
{"score": <integer 1-{{.Scale}}>, "reasoning": "<brief explanation>"}`

var judgePromptTmpl = template.Must(template.New("judge").Parse(judgePromptTemplate))

type judgePromptData struct {
	Question  string
	Answer    string
	Rationale string
	Response  string
	Scale     int
}

type judgeOutput struct {
	Score     int    `json:"score"`
	Reasoning string `json:"reasoning"`
}

// judge issues the fixed rubric prompt to the judge agent and parses the
// score. Parse failures are evaluation errors, never a zero grade.
func (e *Engine) judge(ctx context.Context, q *dataset.Question, response string) (*Outcome, error) {
	var buf bytes.Buffer
	err := judgePromptTmpl.Execute(&buf, judgePromptData{
		Question:  q.Prompt,
		Answer:    q.Answer,
		Rationale: q.Rationale,
		Response:  response,
		Scale:     judgeScoreScale,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluator: render judge prompt: %w", err)
	}

	reply, qerr := e.Judge.Query(ctx, buf.String(), agent.QueryOptions{MaxTokens: 512})
	if qerr != nil {
		return nil, fmt.Errorf("evaluator: judge query: %w", qerr)
	}

	var out judgeOutput
	if err := parseJudgeJSON(reply.Text, &out); err != nil {
		return nil, fmt.Errorf("evaluator: parse judge output: %w", err)
	}
	if out.Score < 1 || out.Score > judgeScoreScale {
		return nil, fmt.Errorf("evaluator: judge score %d out of range 1-%d", out.Score, judgeScoreScale)
	}

	score := float64(out.Score-1) / float64(judgeScoreScale-1)
	return &Outcome{
		Graded:    true,
		Correct:   out.Score >= judgePassScore,
		Score:     score,
		Judged:    true,
		Rationale: strings.TrimSpace(out.Reasoning),
	}, nil
}

// parseJudgeJSON extracts the first JSON object from raw model output,
// tolerating markdown fences.
func parseJudgeJSON(raw string, out any) error {
	s := strings.TrimSpace(raw)
	if s == "" {
		return errors.New("empty judge output")
	}

	if strings.HasPrefix(s, "```") {
		s = strings.TrimSpace(strings.TrimPrefix(s, "```"))
		s = strings.TrimSpace(strings.TrimPrefix(s, "json"))
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = strings.TrimSpace(s[:idx])
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < 0 || start >= end {
		return errors.New("missing JSON object")
	}
	return json.Unmarshal([]byte(s[start:end+1]), out)
}
