package analytics

import (
	"fmt"
	"sort"

	"github.com/maktheus/AgentBenchMark/internal/store"
)

const anomalySigma = 2.0

// Deductions are the advanced patterns derived from a run's results.
type Deductions struct {
	RunID           string                       `json:"run_id"`
	Clusters        [][]string                   `json:"performance_clusters"`
	Behavioral      map[string]BehavioralInsight `json:"behavioral_insights"`
	Correlations    *Correlations                `json:"correlation_analysis,omitempty"`
	Anomalies       []Anomaly                    `json:"detected_anomalies"`
	Recommendations []string                     `json:"recommendations"`
}

// BehavioralInsight profiles one agent's behavior across categories.
type BehavioralInsight struct {
	ScoreConsistency string   `json:"score_consistency"`
	Strengths        []string `json:"category_strengths"`
	Weaknesses       []string `json:"category_weaknesses"`
	Profile          string   `json:"performance_profile"`
}

// Correlations are pairwise Pearson coefficients over per-agent metrics.
type Correlations struct {
	AccuracyVsLatency float64           `json:"accuracy_vs_latency"`
	AccuracyVsTokens  float64           `json:"accuracy_vs_tokens"`
	LatencyVsTokens   float64           `json:"latency_vs_tokens"`
	Interpretation    map[string]string `json:"interpretation"`
}

// Anomaly flags a metric more than two standard deviations from the mean.
type Anomaly struct {
	AgentID string  `json:"agent_id"`
	Metric  string  `json:"metric"`
	Value   float64 `json:"value"`
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"std_dev"`
	Type    string  `json:"type"` // "low_outlier" or "high_outlier"
}

// Deduce derives clusters, correlations, anomalies and recommendations from
// a run's final agent results.
func Deduce(runID string, results []*store.AgentResult) *Deductions {
	sorted := sortByID(results)

	ded := &Deductions{
		RunID:           runID,
		Behavioral:      behavioral(sorted),
		Anomalies:       detectAnomalies(sorted),
		Recommendations: recommendations(sorted),
	}

	ids := make([]string, 0, len(sorted))
	features := make([][]float64, 0, len(sorted))
	for _, res := range sorted {
		ids = append(ids, res.AgentID)
		features = append(features, []float64{
			res.Accuracy, res.AvgLatencyMs, res.AvgTokens, res.Consistency,
		})
	}
	ded.Clusters = clusterAgents(ids, features)

	if len(sorted) >= 2 {
		ded.Correlations = correlations(sorted)
	}
	return ded
}

func correlations(sorted []*store.AgentResult) *Correlations {
	var acc, lat, tok []float64
	for _, res := range sorted {
		acc = append(acc, res.Accuracy)
		lat = append(lat, res.AvgLatencyMs)
		tok = append(tok, res.AvgTokens)
	}

	c := &Correlations{
		AccuracyVsLatency: round3(pearson(acc, lat)),
		AccuracyVsTokens:  round3(pearson(acc, tok)),
		LatencyVsTokens:   round3(pearson(lat, tok)),
	}
	c.Interpretation = map[string]string{
		"accuracy_vs_latency": interpretCorrelation(c.AccuracyVsLatency),
		"accuracy_vs_tokens":  interpretCorrelation(c.AccuracyVsTokens),
		"latency_vs_tokens":   interpretCorrelation(c.LatencyVsTokens),
	}
	return c
}

func interpretCorrelation(r float64) string {
	abs := r
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs > 0.7:
		return "Strong correlation"
	case abs > 0.3:
		return "Moderate correlation"
	default:
		return "Weak correlation"
	}
}

func behavioral(sorted []*store.AgentResult) map[string]BehavioralInsight {
	out := make(map[string]BehavioralInsight, len(sorted))
	for _, res := range sorted {
		cats := make([]string, 0, len(res.CategoryScores))
		vals := make([]float64, 0, len(res.CategoryScores))
		for cat := range res.CategoryScores {
			cats = append(cats, cat)
		}
		sort.Strings(cats)
		for _, cat := range cats {
			vals = append(vals, res.CategoryScores[cat])
		}

		m := mean(vals)
		sd := stdDev(vals)

		insight := BehavioralInsight{
			Strengths:  []string{},
			Weaknesses: []string{},
			Profile:    profile(res),
		}
		switch {
		case sd < 5:
			insight.ScoreConsistency = "High"
		case sd < 10:
			insight.ScoreConsistency = "Medium"
		default:
			insight.ScoreConsistency = "Low"
		}
		for _, cat := range cats {
			score := res.CategoryScores[cat]
			if score > m+5 {
				insight.Strengths = append(insight.Strengths, cat)
			} else if score < m-5 {
				insight.Weaknesses = append(insight.Weaknesses, cat)
			}
		}
		out[res.AgentID] = insight
	}
	return out
}

func profile(res *store.AgentResult) string {
	switch {
	case res.Accuracy >= 85 && res.AvgLatencyMs <= 3000 && res.Consistency >= 0.8:
		return "High Performance"
	case res.Accuracy >= 75 && res.AvgLatencyMs <= 5000 && res.Consistency >= 0.6:
		return "Balanced Performance"
	default:
		return "Needs Improvement"
	}
}

// detectAnomalies flags metric values outside mean +/- 2 sigma. Needs at
// least three agents; metrics with zero spread are skipped.
func detectAnomalies(sorted []*store.AgentResult) []Anomaly {
	out := []Anomaly{}
	if len(sorted) < 3 {
		return out
	}

	metrics := []struct {
		name string
		get  func(*store.AgentResult) float64
	}{
		{"accuracy", func(r *store.AgentResult) float64 { return r.Accuracy }},
		{"latency_avg_ms", func(r *store.AgentResult) float64 { return r.AvgLatencyMs }},
		{"tokens_avg", func(r *store.AgentResult) float64 { return r.AvgTokens }},
		{"consistency", func(r *store.AgentResult) float64 { return r.Consistency }},
	}

	for _, metric := range metrics {
		vals := make([]float64, 0, len(sorted))
		for _, res := range sorted {
			vals = append(vals, metric.get(res))
		}
		m := mean(vals)
		sd := stdDev(vals)
		if sd == 0 {
			continue
		}

		lower, upper := m-anomalySigma*sd, m+anomalySigma*sd
		for _, res := range sorted {
			v := metric.get(res)
			if v >= lower && v <= upper {
				continue
			}
			typ := "high_outlier"
			if v < lower {
				typ = "low_outlier"
			}
			out = append(out, Anomaly{
				AgentID: res.AgentID,
				Metric:  metric.name,
				Value:   v,
				Mean:    round3(m),
				StdDev:  round3(sd),
				Type:    typ,
			})
		}
	}
	return out
}

func recommendations(sorted []*store.AgentResult) []string {
	seen := make(map[string]struct{})
	add := func(rec string) {
		seen[rec] = struct{}{}
	}

	for _, res := range sorted {
		if res.Accuracy < 75 {
			add(fmt.Sprintf("consider fine-tuning %s to improve accuracy", res.AgentID))
		}
		if res.AvgLatencyMs > 5000 {
			add(fmt.Sprintf("optimize response time for %s", res.AgentID))
		}
		if res.AvgTokens > 2000 {
			add(fmt.Sprintf("review token usage efficiency for %s", res.AgentID))
		}
		if res.Consistency < 0.8 {
			add(fmt.Sprintf("improve response consistency for %s", res.AgentID))
		}
	}

	if len(sorted) > 1 {
		best, worst := sorted[0], sorted[0]
		for _, res := range sorted[1:] {
			if res.Accuracy > best.Accuracy {
				best = res
			}
			if res.Accuracy < worst.Accuracy {
				worst = res
			}
		}
		if best.Accuracy-worst.Accuracy > 10 {
			add(fmt.Sprintf("compare configurations of %s and %s to identify success factors",
				best.AgentID, worst.AgentID))
		}
	}

	add("run additional benchmarks for statistical validation")
	add("document the best-performing configurations")

	out := make([]string, 0, len(seen))
	for rec := range seen {
		out = append(out, rec)
	}
	sort.Strings(out)
	return out
}
