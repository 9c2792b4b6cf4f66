package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maktheus/AgentBenchMark/internal/agent"
	"github.com/maktheus/AgentBenchMark/internal/service"
	"github.com/maktheus/AgentBenchMark/internal/store"
)

func newRunCmd(st *cliState) *cobra.Command {
	var (
		agents      []string
		samples     int
		temperature float64
		maxTokens   int
		judge       string
		detach      bool
	)

	cmd := &cobra.Command{
		Use:   "run <benchmark>",
		Short: "Execute a benchmark against one or more agents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(st.configPath)
			if err != nil {
				return err
			}
			defer e.close()

			req := &service.SubmitRequest{
				Benchmark: args[0],
				Agents:    parseAgents(agents),
				Config: store.RunConfig{
					Samples:     samples,
					Temperature: temperature,
					MaxTokens:   maxTokens,
					JudgeAgent:  judge,
				},
			}

			run, err := e.svc.SubmitRun(cmd.Context(), req)
			if err != nil {
				return err
			}
			if detach {
				fmt.Fprintf(cmd.OutOrStdout(), "run %s queued\n", run.ID)
				return nil
			}

			// Block until the orchestrator finishes the run.
			e.orch.Wait()

			final, err := e.svc.GetRunStatus(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			if final.Status == store.StatusFailed {
				return fmt.Errorf("run %s failed: %s", final.ID, final.FailReason)
			}

			res, err := e.svc.GetRunResults(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			if st.jsonOut {
				return writeJSON(cmd, res)
			}
			return printResults(cmd, res)
		},
	}

	cmd.Flags().StringSliceVarP(&agents, "agent", "a", nil, "agent to benchmark (id[:kind[:model]]), repeatable")
	cmd.Flags().IntVar(&samples, "samples", 0, "samples per question (default from config)")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "sampling temperature")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "max completion tokens")
	cmd.Flags().StringVar(&judge, "judge", "", "agent id to use as LLM judge")
	cmd.Flags().BoolVar(&detach, "detach", false, "queue the run and return immediately")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

// parseAgents turns "id[:kind[:model]]" specs into descriptors.
func parseAgents(specs []string) []agent.Descriptor {
	out := make([]agent.Descriptor, 0, len(specs))
	for _, s := range specs {
		parts := strings.SplitN(s, ":", 3)
		d := agent.Descriptor{ID: strings.TrimSpace(parts[0])}
		if len(parts) > 1 {
			d.Kind = strings.TrimSpace(parts[1])
		}
		if len(parts) > 2 {
			d.Model = strings.TrimSpace(parts[2])
		}
		out = append(out, d)
	}
	return out
}

func printResults(cmd *cobra.Command, res *service.RunResults) error {
	fmt.Fprintf(cmd.OutOrStdout(), "run %s: %s\n", res.Run.ID, res.Run.Status)
	if res.TopPerformer != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "top performer: %s\n\n", res.TopPerformer)
	}

	w := newTable(cmd)
	tableRow(w, "AGENT", "ACCURACY", "LATENCY", "TOKENS", "CONSISTENCY", "ERRORS")
	for _, r := range res.Results {
		tableRow(w,
			r.AgentID,
			fmt.Sprintf("%.1f%%", r.Accuracy),
			fmt.Sprintf("%.0fms", r.AvgLatencyMs),
			fmt.Sprintf("%.1f", r.AvgTokens),
			fmt.Sprintf("%.2f", r.Consistency),
			fmt.Sprintf("%.1f%%", r.ErrorRate),
		)
	}
	return w.Flush()
}
