package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(cmd *cobra.Command) *tabwriter.Writer {
	return tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
}

func tableRow(w *tabwriter.Writer, cols ...any) {
	format := ""
	for i := range cols {
		if i > 0 {
			format += "\t"
		}
		format += "%v"
	}
	fmt.Fprintf(w, format+"\n", cols...)
}
