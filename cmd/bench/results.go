package main

import (
	"github.com/spf13/cobra"
)

func newResultsCmd(st *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results <run_id>",
		Short: "Show per-agent results for a completed run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(st.configPath)
			if err != nil {
				return err
			}
			defer e.close()

			res, err := e.svc.GetRunResults(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if st.jsonOut {
				return writeJSON(cmd, res)
			}
			return printResults(cmd, res)
		},
	}
	return cmd
}
