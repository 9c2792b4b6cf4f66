package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newAnalyticsCmd(st *cliState) *cobra.Command {
	var deductions bool

	cmd := &cobra.Command{
		Use:   "analytics <run_id>",
		Short: "Show the analytics report, or deduction patterns with --deductions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(st.configPath)
			if err != nil {
				return err
			}
			defer e.close()

			if deductions {
				d, err := e.svc.GetDeductions(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				// The nested pattern maps do not tabulate well; JSON only.
				return writeJSON(cmd, d)
			}

			report, err := e.svc.GetAnalysis(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if st.jsonOut {
				return writeJSON(cmd, report)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s: %d agents\n", report.RunID, report.TotalAgents)
			if report.TopPerformer != "" {
				fmt.Fprintf(out, "top performer: %s\n\n", report.TopPerformer)
			}

			w := newTable(cmd)
			tableRow(w, "AGENT", "ACCURACY", "RATING", "LATENCY", "RATING", "TOKENS/S", "COST EFF")
			for _, id := range sortedKeys(report.PerformanceMetrics) {
				m := report.PerformanceMetrics[id]
				tableRow(w, id,
					fmt.Sprintf("%.1f%%", m.Accuracy), m.AccuracyRating,
					fmt.Sprintf("%.0fms", m.AvgLatencyMs), m.LatencyRating,
					fmt.Sprintf("%.1f", m.TokensPerSecond),
					fmt.Sprintf("%.3f", m.CostEfficiency),
				)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if len(report.Insights) > 0 {
				fmt.Fprintln(out)
				for _, insight := range report.Insights {
					fmt.Fprintf(out, "- %s\n", insight)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&deductions, "deductions", false, "show deduction patterns instead of the report")
	return cmd
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
