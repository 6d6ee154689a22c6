package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/market-ingest/internal/dedup"
	"github.com/sells-group/market-ingest/internal/model"
)

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Inspect the delivered-item fingerprint file",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		return cfg.Validate("dedup")
	},
}

var dedupStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show fingerprint file size and capacity",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, loadErr := dedup.Open(cfg.Ingest.DedupPath, cfg.Ingest.DedupCapacity)
		return printDedupStats(os.Stdout, s, loadErr)
	},
}

var (
	checkTitle     string
	checkURL       string
	checkPublished string
)

var dedupCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Report whether an item would be delivered as new",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, loadErr := dedup.Open(cfg.Ingest.DedupPath, cfg.Ingest.DedupCapacity)
		if loadErr != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", loadErr)
		}
		return checkItem(os.Stdout, s, checkTitle, checkURL, checkPublished)
	},
}

func printDedupStats(w io.Writer, s *dedup.Store, loadErr error) error {
	status := "ok"
	if loadErr != nil {
		status = "unreadable (" + loadErr.Error() + ")"
	}
	fmt.Fprintf(w, "path:      %s\n", s.Path())
	fmt.Fprintf(w, "status:    %s\n", status)
	fmt.Fprintf(w, "entries:   %d\n", s.Len())
	fmt.Fprintf(w, "capacity:  %d\n", s.Capacity())
	return nil
}

func checkItem(w io.Writer, s *dedup.Store, title, url, published string) error {
	if title == "" && url == "" {
		return eris.New("dedup check: --title or --url is required")
	}
	item := model.ContentItem{Title: title, URL: url}
	if published != "" {
		t, err := time.Parse(time.RFC3339, published)
		if err != nil {
			if t, err = time.Parse("2006-01-02", published); err != nil {
				return eris.Wrapf(err, "dedup check: parse --published %q", published)
			}
		}
		item.PublishedAt = t
	}

	fp := dedup.ItemFingerprint(item)
	state := "new"
	if !s.IsNew(fp) {
		state = "seen"
	}
	fmt.Fprintf(w, "fingerprint: %s\n", fp)
	fmt.Fprintf(w, "state:       %s\n", state)
	return nil
}

func init() {
	dedupCheckCmd.Flags().StringVar(&checkTitle, "title", "", "item title")
	dedupCheckCmd.Flags().StringVar(&checkURL, "url", "", "item URL")
	dedupCheckCmd.Flags().StringVar(&checkPublished, "published", "", "publication time (RFC 3339 or YYYY-MM-DD)")
	dedupCmd.AddCommand(dedupStatsCmd, dedupCheckCmd)
	rootCmd.AddCommand(dedupCmd)
}
