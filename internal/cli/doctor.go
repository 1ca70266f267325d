package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/postbrief/internal/config"
	"github.com/ppiankov/postbrief/internal/source"
)

// probeAccount is used when no account is configured for the mirror probe.
const probeAccount = "jack"

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check config, scraper binary, mirrors, and API keys",
	RunE:  doctorAction,
}

func doctorAction(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()
	ok := true

	// Config dir
	if info, err := os.Stat(configDir); err != nil || !info.IsDir() {
		printCheck(w, false, "config directory %s", configDir)
		ok = false
	} else {
		printCheck(w, true, "config directory %s", configDir)
	}

	// Config file
	cfg, err := config.Load(configDir)
	if err != nil {
		printCheck(w, false, "config: %v", err)
		return errors.New("some checks failed")
	}
	printCheck(w, true, "%s (%d accounts, backend %s)", cfg.Path, len(cfg.Accounts), cfg.Backend)

	switch cfg.Backend {
	case config.BackendSubprocess:
		if path, err := exec.LookPath(cfg.Subprocess.Command[0]); err != nil {
			printCheck(w, false, "scraper %q not found on PATH", cfg.Subprocess.Command[0])
			ok = false
		} else {
			printCheck(w, true, "scraper %s", path)
		}
	case config.BackendMirror:
		if !probeMirrors(cmd.Context(), w, cfg) {
			ok = false
		}
	}

	// API key
	if cfg.Summarize.Mode != config.ModeHeuristic {
		if cfg.Summarize.APIKey == "" {
			printCheck(w, false, "%s API key: $%s is not set (heuristic summaries will be used)", cfg.Summarize.Mode, cfg.Summarize.APIKeyEnv)
			ok = false
		} else {
			printCheck(w, true, "%s API key from $%s", cfg.Summarize.Mode, cfg.Summarize.APIKeyEnv)
		}
	}

	// Output dir
	if info, err := os.Stat(cfg.Digest.OutDir); err == nil && !info.IsDir() {
		printCheck(w, false, "digest.out_dir %s is not a directory", cfg.Digest.OutDir)
		ok = false
	} else {
		printCheck(w, true, "digest.out_dir %s", cfg.Digest.OutDir)
	}

	if !ok {
		return errors.New("some checks failed")
	}
	fmt.Fprintln(w, "\nAll checks passed.")
	return nil
}

type probeResult struct {
	endpoint string
	entries  int
	elapsed  time.Duration
	err      error
}

// probeMirrors fetches the first account's feed from every endpoint at once.
// It reports mirror health only; a run still walks the pool sequentially.
// Returns false when no endpoint served entries.
func probeMirrors(ctx context.Context, w io.Writer, cfg *config.Config) bool {
	pool, err := source.NewMirrorPool(cfg.Mirror.Endpoints, source.WithMirrorPath(cfg.Mirror.Path))
	if err != nil {
		printCheck(w, false, "mirror pool: %v", err)
		return false
	}
	parser := source.NewFeedParser(source.NewHTTPClient(source.HTTPOptions{
		UserAgent:          cfg.HTTP.UserAgent,
		Timeout:            cfg.Mirror.Timeout.Duration,
		InsecureSkipVerify: cfg.HTTP.InsecureSkipVerify,
	}))

	account := source.Account(probeAccount)
	if len(cfg.Accounts) > 0 {
		account = source.Account(cfg.Accounts[0])
	}

	endpoints := pool.Endpoints()
	results := make([]probeResult, len(endpoints))

	g, gctx := errgroup.WithContext(ctx)
	for i, endpoint := range endpoints {
		g.Go(func() error {
			actx, cancel := context.WithTimeout(gctx, cfg.Mirror.Timeout.Duration)
			defer cancel()

			start := time.Now()
			feed, err := parser.ParseURL(actx, pool.FeedURL(endpoint, account))
			res := probeResult{endpoint: endpoint, elapsed: time.Since(start), err: err}
			if err == nil {
				res.entries = entryCount(feed)
			}

			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	healthy := 0
	for _, r := range results {
		switch {
		case r.err != nil:
			printCheck(w, false, "mirror %s: %v", r.endpoint, r.err)
		case r.entries == 0:
			printInfo(w, "mirror %s: empty feed for %s (%s)", r.endpoint, at(account), r.elapsed.Round(time.Millisecond))
		default:
			healthy++
			printCheck(w, true, "mirror %s: %d entries for %s (%s)", r.endpoint, r.entries, at(account), r.elapsed.Round(time.Millisecond))
		}
	}
	if healthy == 0 {
		printCheck(w, false, "no mirror served entries")
		return false
	}
	return true
}

func entryCount(feed *gofeed.Feed) int {
	if feed == nil {
		return 0
	}
	return len(feed.Items)
}

func printCheck(w io.Writer, pass bool, format string, args ...any) {
	mark := "FAIL"
	if pass {
		mark = " OK "
	}
	fmt.Fprintf(w, "[%s] %s\n", mark, fmt.Sprintf(format, args...))
}

func printInfo(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "[INFO] %s\n", fmt.Sprintf(format, args...))
}
