package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/duskwren/webcrawler/internal/pagerank"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pagerank CRAWLER_OUTPUT [PAGERANK_OUTPUT]",
		Short: "Rank the pages in a crawler link-graph report by PageRank",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("pagerank: opening %s: %w", args[0], err)
			}
			defer in.Close()

			rep, err := pagerank.ParseReport(in)
			if err != nil {
				return err
			}

			out := os.Stdout
			if len(args) == 2 {
				f, err := os.Create(args[1])
				if err != nil {
					return fmt.Errorf("pagerank: creating %s: %w", args[1], err)
				}
				defer f.Close()
				out = f
			}

			ranked := pagerank.Rank(rep)
			return pagerank.WriteRanked(out, ranked)
		},
	}
	return cmd
}
