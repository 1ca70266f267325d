package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ppiankov/postbrief/internal/config"
	"github.com/ppiankov/postbrief/internal/digest"
	"github.com/ppiankov/postbrief/internal/fetch"
	"github.com/ppiankov/postbrief/internal/metrics"
	"github.com/ppiankov/postbrief/internal/privacy"
	"github.com/ppiankov/postbrief/internal/source"
	"github.com/ppiankov/postbrief/internal/summarize"
)

const dateFlagLayout = "2006-01-02"

var (
	runDate   string
	runFormat string
	runOut    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch, summarize, and write the daily digest",
	RunE:  runAction,
}

func init() {
	runCmd.Flags().StringVar(&runDate, "date", "", "digest date YYYY-MM-DD (default: today in digest.timezone)")
	runCmd.Flags().StringVar(&runFormat, "format", "", "output format: markdown, json, terminal (default: digest.format)")
	runCmd.Flags().StringVar(&runOut, "out", "", "output file (default: <digest.out_dir>/<date><ext>)")
}

func runAction(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	date, err := digestDate(runDate, cfg.Location(), time.Now())
	if err != nil {
		return err
	}

	format := cfg.Digest.Format
	if runFormat != "" {
		format = runFormat
	}
	formatter, err := digest.New(format, layout(cfg), false)
	if err != nil {
		return err
	}

	out := runOut
	if out == "" {
		out = digest.FileName(cfg.Digest.OutDir, date, formatter)
	}

	return runPipeline(cmd.Context(), cfg, date, formatter, out, cmd.OutOrStdout())
}

// runPipeline fetches every account, summarizes the posts, and writes the
// digest to out. Account and post failures only shrink the digest; the
// only error returned is a failed write.
func runPipeline(ctx context.Context, cfg *config.Config, date time.Time, f digest.Formatter, out string, w io.Writer) error {
	start := time.Now()
	runID := uuid.NewString()
	rlog := log.WithField("run_id", runID)
	m := metrics.NewRun()

	rlog.WithFields(logrus.Fields{
		"backend":  cfg.Backend,
		"accounts": len(cfg.Accounts),
		"date":     date.Format(dateFlagLayout),
	}).Info("run started")

	results := fetchAll(ctx, cfg, rlog, m)

	redactor, err := buildRedactor(cfg)
	if err != nil {
		return err
	}
	summarizer, release := buildSummarizer(ctx, cfg, rlog)
	defer release()

	input := digest.Input{Date: date, RunID: runID}
	for _, res := range results {
		entries := summarizeAll(ctx, summarizer, redactor, res, rlog, m)
		input.Entries = append(input.Entries, entries...)
		input.Accounts = append(input.Accounts, digest.AccountStatus{
			Account:  res.Account,
			Outcome:  string(res.Kind),
			Fetched:  len(res.Posts),
			Rendered: len(entries),
			Error:    res.Message(),
		})
	}

	if err := digest.WriteFile(out, f, input); err != nil {
		return fmt.Errorf("write digest: %w", err)
	}

	m.Finish(time.Now())
	if cfg.Metrics.Textfile != "" {
		if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			rlog.WithError(err).Warn("could not write metrics textfile")
		}
	}

	tally := fetch.Summarize(results)
	size := ""
	if info, err := os.Stat(out); err == nil {
		size = " (" + humanize.Bytes(uint64(info.Size())) + ")"
	}
	fmt.Fprintf(w, "Wrote %s%s: %d posts from %d accounts (%d ok, %d empty, %d unavailable) in %s\n",
		out, size, len(input.Entries), len(results), tally.OK, tally.Empty, tally.Unavailable,
		time.Since(start).Round(time.Millisecond))

	return nil
}

// fetchAll runs the orchestrator over the configured accounts. When the
// adapter cannot be built every account is reported unavailable.
func fetchAll(ctx context.Context, cfg *config.Config, l logrus.FieldLogger, m *metrics.Run) []fetch.Result {
	accts := accounts(cfg)

	adapter, err := buildAdapter(cfg, l, m)
	if err != nil {
		l.WithError(err).Error("backend could not be set up, every account is unavailable")
		results := make([]fetch.Result, 0, len(accts))
		for _, a := range accts {
			res := fetch.Result{
				Account: a,
				Kind:    fetch.OutcomeUnavailable,
				Err:     fmt.Errorf("%w: %w", source.ErrUnavailable, err),
			}
			m.AccountFetched(string(res.Kind), 0)
			results = append(results, res)
		}
		return results
	}

	orch, err := fetch.New(adapter, fetchLimit(cfg),
		fetch.WithLogger(l),
		fetch.WithObserver(func(res fetch.Result) {
			m.AccountFetched(string(res.Kind), res.Elapsed)
		}),
	)
	if err != nil {
		l.WithError(err).Error("orchestrator could not be set up")
		return nil
	}
	return orch.Run(ctx, accts)
}

// summarizeAll summarizes one account's posts. A post whose summary fails
// is left out of the digest.
func summarizeAll(ctx context.Context, s summarize.Summarizer, r *privacy.Redactor, res fetch.Result, l logrus.FieldLogger, m *metrics.Run) []digest.Entry {
	entries := make([]digest.Entry, 0, len(res.Posts))
	for _, p := range res.Posts {
		summary, err := s.Summarize(ctx, r.Apply(p.Body))
		if err != nil {
			m.PostSummarized(false)
			l.WithFields(logrus.Fields{"account": p.Account, "post_id": p.ID}).
				WithError(err).Warn("summary failed, dropping post")
			continue
		}
		m.PostSummarized(true)
		entries = append(entries, digest.Entry{Post: p, Summary: summary})
	}
	return entries
}

// digestDate parses value as YYYY-MM-DD in loc, or returns the day of now
// in loc when value is empty.
func digestDate(value string, loc *time.Location, now time.Time) (time.Time, error) {
	if value == "" {
		y, mo, d := now.In(loc).Date()
		return time.Date(y, mo, d, 0, 0, 0, 0, loc), nil
	}
	t, err := time.ParseInLocation(dateFlagLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q (want YYYY-MM-DD)", value)
	}
	return t, nil
}

func layout(cfg *config.Config) digest.Layout {
	return digest.Layout{
		Title:    cfg.Digest.Title,
		Heading:  cfg.Digest.Heading,
		Excerpt:  cfg.Digest.Excerpt,
		LinkText: cfg.Digest.LinkText,
	}
}
