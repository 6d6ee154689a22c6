package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/market-ingest/internal/source"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List built-in sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printSources(os.Stdout, source.List())
	},
}

func printSources(w io.Writer, infos []source.Info) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tURL\tFEED")
	for _, s := range infos {
		feed := s.FeedURL
		if feed == "" {
			feed = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.Name, s.URL, feed)
	}
	return tw.Flush()
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}
