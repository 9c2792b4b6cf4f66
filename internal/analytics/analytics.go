// Package analytics derives reports and deductions from a completed run's
// per-agent aggregates. Everything here is pure: the same results always
// produce the same output.
package analytics

import (
	"fmt"
	"sort"

	"github.com/maktheus/AgentBenchMark/internal/store"
)

// Report is the performance analysis for one run.
type Report struct {
	RunID              string                     `json:"run_id"`
	TotalAgents        int                        `json:"total_agents"`
	TopPerformer       string                     `json:"top_performer,omitempty"`
	PerformanceMetrics map[string]AgentMetrics    `json:"performance_metrics"`
	Comparative        *Comparative               `json:"comparative_analysis,omitempty"`
	StatisticalSummary map[string]MetricSummary   `json:"statistical_summary"`
	Insights           []string                   `json:"insights"`
}

// AgentMetrics carries per-agent rating breakdowns.
type AgentMetrics struct {
	Accuracy        float64 `json:"accuracy"`
	AccuracyRating  string  `json:"accuracy_rating"`
	AvgLatencyMs    float64 `json:"latency_avg_ms"`
	LatencyRating   string  `json:"latency_rating"`
	TokensPerSecond float64 `json:"tokens_per_second"`
	CostEfficiency  float64 `json:"cost_efficiency"`
}

// Comparative names the best agent per metric and ranks all of them.
type Comparative struct {
	BestAccuracy  string        `json:"best_accuracy"`
	BestLatency   string        `json:"best_latency"`
	MostEfficient string        `json:"most_efficient"`
	Ranking       []RankedAgent `json:"performance_ranking"`
}

// RankedAgent is one row of the composite-score ranking.
type RankedAgent struct {
	AgentID        string  `json:"agent_id"`
	CompositeScore float64 `json:"composite_score"`
	Accuracy       float64 `json:"accuracy"`
	AvgLatencyMs   float64 `json:"latency_avg_ms"`
	Consistency    float64 `json:"consistency"`
}

// MetricSummary is the five-number description of one metric across agents.
type MetricSummary struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Analyze builds the report for a run's final agent results.
func Analyze(runID string, results []*store.AgentResult) *Report {
	report := &Report{
		RunID:              runID,
		TotalAgents:        len(results),
		PerformanceMetrics: make(map[string]AgentMetrics, len(results)),
		StatisticalSummary: summarize(results),
		Insights:           []string{},
	}
	if len(results) == 0 {
		return report
	}

	sorted := sortByID(results)
	for _, res := range sorted {
		report.PerformanceMetrics[res.AgentID] = AgentMetrics{
			Accuracy:        res.Accuracy,
			AccuracyRating:  rateAccuracy(res.Accuracy),
			AvgLatencyMs:    res.AvgLatencyMs,
			LatencyRating:   rateLatency(res.AvgLatencyMs),
			TokensPerSecond: round1(tokensPerSecond(res.AvgTokens, res.AvgLatencyMs)),
			CostEfficiency:  round3(costEfficiency(res.Accuracy, res.AvgTokens)),
		}
	}

	report.TopPerformer = TopPerformer(sorted)
	report.Insights = insights(sorted)

	if len(sorted) >= 2 {
		report.Comparative = compare(sorted)
	}
	return report
}

// TopPerformer picks the winner: highest accuracy, then lower average
// latency, then lexically smallest agent id.
func TopPerformer(results []*store.AgentResult) string {
	var best *store.AgentResult
	for _, res := range sortByID(results) {
		if best == nil ||
			res.Accuracy > best.Accuracy ||
			(res.Accuracy == best.Accuracy && res.AvgLatencyMs < best.AvgLatencyMs) {
			best = res
		}
	}
	if best == nil {
		return ""
	}
	return best.AgentID
}

func compare(sorted []*store.AgentResult) *Comparative {
	cmp := &Comparative{
		BestAccuracy:  sorted[0].AgentID,
		BestLatency:   sorted[0].AgentID,
		MostEfficient: sorted[0].AgentID,
	}
	bestAcc, bestLat, bestTok := sorted[0].Accuracy, sorted[0].AvgLatencyMs, sorted[0].AvgTokens
	for _, res := range sorted[1:] {
		if res.Accuracy > bestAcc {
			bestAcc, cmp.BestAccuracy = res.Accuracy, res.AgentID
		}
		if res.AvgLatencyMs < bestLat {
			bestLat, cmp.BestLatency = res.AvgLatencyMs, res.AgentID
		}
		if res.AvgTokens < bestTok {
			bestTok, cmp.MostEfficient = res.AvgTokens, res.AgentID
		}
	}

	ranking := make([]RankedAgent, 0, len(sorted))
	for _, res := range sorted {
		ranking = append(ranking, RankedAgent{
			AgentID:        res.AgentID,
			CompositeScore: round1(compositeScore(res)),
			Accuracy:       res.Accuracy,
			AvgLatencyMs:   res.AvgLatencyMs,
			Consistency:    res.Consistency,
		})
	}
	sort.SliceStable(ranking, func(i, j int) bool {
		return ranking[i].CompositeScore > ranking[j].CompositeScore
	})
	cmp.Ranking = ranking
	return cmp
}

// compositeScore blends accuracy, latency headroom and consistency. Latency
// contributes nothing beyond ten seconds.
func compositeScore(res *store.AgentResult) float64 {
	latSec := res.AvgLatencyMs / 1000
	latencyScore := (10 - latSec) * 2
	if latencyScore < 0 {
		latencyScore = 0
	}
	return res.Accuracy*0.5 + latencyScore + res.Consistency*30
}

func summarize(results []*store.AgentResult) map[string]MetricSummary {
	out := make(map[string]MetricSummary)
	if len(results) == 0 {
		return out
	}

	cols := map[string][]float64{
		"accuracy":       {},
		"latency_avg_ms": {},
		"tokens_avg":     {},
		"consistency":    {},
		"error_rate":     {},
	}
	for _, res := range results {
		cols["accuracy"] = append(cols["accuracy"], res.Accuracy)
		cols["latency_avg_ms"] = append(cols["latency_avg_ms"], res.AvgLatencyMs)
		cols["tokens_avg"] = append(cols["tokens_avg"], res.AvgTokens)
		cols["consistency"] = append(cols["consistency"], res.Consistency)
		cols["error_rate"] = append(cols["error_rate"], res.ErrorRate)
	}
	for name, vals := range cols {
		out[name] = MetricSummary{
			Mean:   round3(mean(vals)),
			Median: round3(median(vals)),
			StdDev: round3(stdDev(vals)),
			Min:    round3(minOf(vals)),
			Max:    round3(maxOf(vals)),
		}
	}
	return out
}

func insights(sorted []*store.AgentResult) []string {
	out := []string{}
	for _, res := range sorted {
		switch {
		case res.Accuracy >= 90:
			out = append(out, fmt.Sprintf("%s shows excellent accuracy (>=90%%)", res.AgentID))
		case res.Accuracy >= 80:
			out = append(out, fmt.Sprintf("%s shows good accuracy (80-89%%)", res.AgentID))
		case res.Accuracy < 70:
			out = append(out, fmt.Sprintf("%s needs accuracy improvements (<70%%)", res.AgentID))
		}

		if res.AvgLatencyMs <= 2000 {
			out = append(out, fmt.Sprintf("%s has excellent response time (<=2s)", res.AgentID))
		} else if res.AvgLatencyMs > 5000 {
			out = append(out, fmt.Sprintf("%s shows high latency (>5s)", res.AgentID))
		}

		tps := tokensPerSecond(res.AvgTokens, res.AvgLatencyMs)
		if tps > 500 {
			out = append(out, fmt.Sprintf("%s processes tokens very efficiently", res.AgentID))
		} else if tps > 0 && tps < 100 {
			out = append(out, fmt.Sprintf("%s could process tokens more efficiently", res.AgentID))
		}
	}
	return out
}

func rateAccuracy(accuracy float64) string {
	switch {
	case accuracy >= 90:
		return "Excellent"
	case accuracy >= 80:
		return "Good"
	case accuracy >= 70:
		return "Fair"
	default:
		return "Poor"
	}
}

func rateLatency(latencyMs float64) string {
	switch {
	case latencyMs <= 1000:
		return "Excellent"
	case latencyMs <= 3000:
		return "Good"
	case latencyMs <= 5000:
		return "Fair"
	default:
		return "Poor"
	}
}

func tokensPerSecond(tokensAvg, latencyMs float64) float64 {
	if latencyMs <= 0 || tokensAvg <= 0 {
		return 0
	}
	return tokensAvg / (latencyMs / 1000)
}

func costEfficiency(accuracy, tokensAvg float64) float64 {
	if tokensAvg <= 0 {
		return 0
	}
	return (accuracy / 100) / (tokensAvg / 1000)
}

func sortByID(results []*store.AgentResult) []*store.AgentResult {
	sorted := append([]*store.AgentResult(nil), results...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].AgentID < sorted[j].AgentID })
	return sorted
}
