package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCancelCmd(st *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <run_id>",
		Short: "Cancel a queued or processing run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(st.configPath)
			if err != nil {
				return err
			}
			defer e.close()

			run, err := e.svc.CancelRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if st.jsonOut {
				return writeJSON(cmd, run)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s cancelled\n", run.ID)
			return nil
		},
	}
	return cmd
}
