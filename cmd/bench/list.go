package main

import (
	"strings"

	"github.com/spf13/cobra"
)

func newListCmd(st *cliState) *cobra.Command {
	var (
		showRuns bool
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available benchmarks, or past runs with --runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(st.configPath)
			if err != nil {
				return err
			}
			defer e.close()

			if showRuns {
				runs, err := e.svc.ListRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if st.jsonOut {
					return writeJSON(cmd, runs)
				}
				w := newTable(cmd)
				tableRow(w, "RUN", "BENCHMARK", "STATUS", "PROGRESS", "CREATED")
				for _, r := range runs {
					tableRow(w, r.ID, r.Benchmark, r.Status,
						percent(r.Progress), r.CreatedAt.Format("2006-01-02 15:04:05"))
				}
				return w.Flush()
			}

			infos, err := e.svc.ListBenchmarks(cmd.Context())
			if err != nil {
				return err
			}
			if st.jsonOut {
				return writeJSON(cmd, infos)
			}
			w := newTable(cmd)
			tableRow(w, "ID", "NAME", "QUESTIONS", "CATEGORIES")
			for _, info := range infos {
				tableRow(w, info.ID, info.Name, info.QuestionCount,
					strings.Join(info.Categories, ","))
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&showRuns, "runs", false, "list runs instead of benchmarks")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum runs to list")
	return cmd
}
