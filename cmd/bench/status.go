package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd(st *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <run_id>",
		Short: "Show the state of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(st.configPath)
			if err != nil {
				return err
			}
			defer e.close()

			run, err := e.svc.GetRunStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if st.jsonOut {
				return writeJSON(cmd, run)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run:       %s\n", run.ID)
			fmt.Fprintf(out, "benchmark: %s\n", run.Benchmark)
			fmt.Fprintf(out, "status:    %s\n", run.Status)
			fmt.Fprintf(out, "progress:  %s\n", percent(run.Progress))
			if run.FailReason != "" {
				fmt.Fprintf(out, "reason:    %s\n", run.FailReason)
			}
			return nil
		},
	}
	return cmd
}

func percent(p float64) string {
	return fmt.Sprintf("%.0f%%", p*100)
}
