package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ppiankov/postbrief/internal/config"
	"github.com/ppiankov/postbrief/internal/fetch"
	"github.com/ppiankov/postbrief/internal/source"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch posts for every account and print what was found",
	Long:  "fetch runs the configured backend for every account and prints outcomes and permalinks. Nothing is summarized or written.",
	RunE:  fetchAction,
}

func fetchAction(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	adapter, err := buildAdapter(cfg, log, nil)
	if err != nil {
		return fmt.Errorf("set up %s backend: %w", cfg.Backend, err)
	}
	orch, err := fetch.New(adapter, fetchLimit(cfg), fetch.WithLogger(log))
	if err != nil {
		return err
	}

	results := orch.Run(cmd.Context(), accounts(cfg))
	printResults(cmd.OutOrStdout(), results, time.Now())
	return nil
}

func printResults(w io.Writer, results []fetch.Result, now time.Time) {
	for _, res := range results {
		fmt.Fprintf(w, "%-20s %-11s %d posts in %s\n",
			at(res.Account), res.Kind, len(res.Posts), res.Elapsed.Round(time.Millisecond))
		if res.Kind == fetch.OutcomeUnavailable {
			fmt.Fprintf(w, "    %s\n", res.Message())
		}
		for _, p := range res.Posts {
			when := "undated"
			if !p.PublishedAt.IsZero() {
				when = humanize.RelTime(p.PublishedAt, now, "ago", "from now")
			}
			link := p.Permalink
			if link == "" {
				link = p.ID
			}
			fmt.Fprintf(w, "    %-16s %s\n", when, link)
		}
	}

	t := fetch.Summarize(results)
	fmt.Fprintf(w, "\n%d accounts: %d ok, %d empty, %d unavailable, %s posts\n",
		len(results), t.OK, t.Empty, t.Unavailable, humanize.Comma(int64(t.Posts)))
}

// at renders an account as @handle.
func at(a source.Account) string {
	return "@" + strings.TrimPrefix(string(a), "@")
}
