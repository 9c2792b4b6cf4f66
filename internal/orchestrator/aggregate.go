package orchestrator

import (
	"math"
	"sort"

	"github.com/maktheus/AgentBenchMark/internal/evaluator"
	"github.com/maktheus/AgentBenchMark/internal/store"
)

// Aggregate folds a run's attempts into one AgentResult per agent, ordered
// by agent id. Errored attempts count toward totals and error rate but are
// excluded from accuracy, latency and token averages.
func Aggregate(runID string, attempts []*store.Attempt) []*store.AgentResult {
	byAgent := make(map[string][]*store.Attempt)
	for _, att := range attempts {
		if att == nil {
			continue
		}
		byAgent[att.AgentID] = append(byAgent[att.AgentID], att)
	}

	ids := make([]string, 0, len(byAgent))
	for id := range byAgent {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]*store.AgentResult, 0, len(ids))
	for _, id := range ids {
		out = append(out, aggregateAgent(runID, id, byAgent[id]))
	}
	return out
}

func aggregateAgent(runID, agentID string, attempts []*store.Attempt) *store.AgentResult {
	res := &store.AgentResult{
		RunID:          runID,
		AgentID:        agentID,
		Total:          len(attempts),
		CategoryScores: make(map[string]float64),
		Final:          true,
	}

	var (
		latencySum int64
		tokenSum   int
		answered   int
		catGraded  = make(map[string]int)
		catCorrect = make(map[string]int)
	)

	for _, att := range attempts {
		if att.Errored() {
			res.Errored++
			continue
		}
		answered++
		latencySum += att.LatencyMs
		tokenSum += att.Tokens

		if !att.Graded {
			continue
		}
		res.Graded++
		catGraded[att.Category]++
		if att.Correct {
			res.Correct++
			catCorrect[att.Category]++
		}
	}

	if res.Graded > 0 {
		res.Accuracy = round1(100 * float64(res.Correct) / float64(res.Graded))
	}
	if answered > 0 {
		res.AvgLatencyMs = float64(latencySum) / float64(answered)
		res.AvgTokens = float64(tokenSum) / float64(answered)
	}
	if res.Total > 0 {
		res.ErrorRate = round1(100 * float64(res.Errored) / float64(res.Total))
	}
	for cat, graded := range catGraded {
		res.CategoryScores[cat] = round1(100 * float64(catCorrect[cat]) / float64(graded))
	}
	res.Consistency = consistencyOf(attempts)
	return res
}

// consistencyOf averages per-question response agreement across samples.
// Errored samples count in each question's denominator but never agree,
// so an agent that errors often reads as inconsistent.
func consistencyOf(attempts []*store.Attempt) float64 {
	type group struct {
		responses []string
		total     int
	}
	byQuestion := make(map[string]*group)
	var order []string
	for _, att := range attempts {
		g := byQuestion[att.QuestionID]
		if g == nil {
			g = &group{}
			byQuestion[att.QuestionID] = g
			order = append(order, att.QuestionID)
		}
		g.total++
		if !att.Errored() {
			g.responses = append(g.responses, att.Response)
		}
	}
	if len(order) == 0 {
		return 0
	}

	var sum float64
	for _, qid := range order {
		g := byQuestion[qid]
		modal := evaluator.Consistency(g.responses)
		sum += modal * float64(len(g.responses)) / float64(g.total)
	}
	return sum / float64(len(order))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
