package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/ppiankov/postbrief/internal/config"
	"github.com/ppiankov/postbrief/internal/metrics"
	"github.com/ppiankov/postbrief/internal/privacy"
	"github.com/ppiankov/postbrief/internal/source"
	"github.com/ppiankov/postbrief/internal/summarize"
)

// buildAdapter creates the one adapter the config selects. m may be nil.
func buildAdapter(cfg *config.Config, l logrus.FieldLogger, m *metrics.Run) (source.Adapter, error) {
	l = l.WithField("backend", cfg.Backend)
	withLog := source.WithLogger(l)

	switch cfg.Backend {
	case config.BackendLibrary:
		client := source.NewHTTPClient(source.HTTPOptions{
			UserAgent: cfg.HTTP.UserAgent,
			Timeout:   cfg.Library.Timeout.Duration,
		})
		return source.NewLibrary(source.NewBlueskyScraper(cfg.Library.Host, client), withLog)

	case config.BackendSubprocess:
		return source.NewSubprocess(cfg.Subprocess.Command, cfg.Subprocess.Timeout.Duration, cfg.Subprocess.Permalink, withLog)

	case config.BackendMirror:
		pool, err := buildMirrorPool(cfg, l, m)
		if err != nil {
			return nil, err
		}
		return source.NewMirror(pool, cfg.Mirror.Permalink, withLog)

	case config.BackendFeed:
		parser := source.NewFeedParser(source.NewHTTPClient(source.HTTPOptions{
			UserAgent:          cfg.HTTP.UserAgent,
			Timeout:            cfg.Feed.Timeout.Duration,
			InsecureSkipVerify: cfg.HTTP.InsecureSkipVerify,
		}))
		return source.NewFixedFeed(cfg.Feed.URL, parser, cfg.Feed.Timeout.Duration, withLog)
	}

	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

func buildMirrorPool(cfg *config.Config, l logrus.FieldLogger, m *metrics.Run) (*source.MirrorPool, error) {
	parser := source.NewFeedParser(source.NewHTTPClient(source.HTTPOptions{
		UserAgent:          cfg.HTTP.UserAgent,
		Timeout:            cfg.Mirror.Timeout.Duration,
		InsecureSkipVerify: cfg.HTTP.InsecureSkipVerify,
	}))

	return source.NewMirrorPool(cfg.Mirror.Endpoints,
		source.WithMirrorPath(cfg.Mirror.Path),
		source.WithMirrorTimeout(cfg.Mirror.Timeout.Duration),
		source.WithAcceptEmpty(cfg.Mirror.AcceptEmpty),
		source.WithFeedParser(parser),
		source.WithAttemptHook(func(account source.Account, a source.Attempt) {
			entry := l.WithFields(logrus.Fields{
				"account":  account,
				"endpoint": a.Endpoint,
				"result":   a.Result,
				"elapsed":  a.Elapsed.Round(time.Millisecond),
			})
			if a.Err != nil {
				entry = entry.WithError(a.Err)
			}
			entry.Debug("mirror attempt")
			if m != nil {
				m.MirrorAttempt(string(a.Result))
			}
		}),
	)
}

// fetchLimit is the per-account cap passed to the adapter. The fixed feed
// is only capped when feed.max_items is set.
func fetchLimit(cfg *config.Config) int {
	if cfg.Backend == config.BackendFeed {
		return cfg.Feed.MaxItems
	}
	return cfg.Limit
}

func accounts(cfg *config.Config) []source.Account {
	return lo.Map(cfg.Accounts, func(a string, _ int) source.Account { return source.Account(a) })
}

// buildSummarizer returns the configured summarizer and a release func.
// Model-backed modes without an API key fall back to the heuristic one.
func buildSummarizer(ctx context.Context, cfg *config.Config, l logrus.FieldLogger) (summarize.Summarizer, func()) {
	noop := func() {}
	sc := cfg.Summarize
	params := summarize.Params{
		Model:       sc.Model,
		Temperature: lo.FromPtrOr(sc.Temperature, config.DefaultTemperature),
		MaxTokens:   sc.MaxTokens,
		Timeout:     sc.Timeout.Duration,
		Language:    sc.Language,
		Prompt:      sc.Prompt,
	}

	if sc.Mode != config.ModeHeuristic && sc.APIKey == "" {
		l.WithField("api_key_env", sc.APIKeyEnv).
			Warnf("%s summarizer has no API key, using heuristic summaries", sc.Mode)
		return summarize.Heuristic{}, noop
	}

	switch sc.Mode {
	case config.ModeOpenAI:
		s, err := summarize.NewOpenAI(sc.APIKey, sc.Endpoint, params)
		if err != nil {
			l.WithError(err).Warn("openai summarizer unavailable, using heuristic summaries")
			return summarize.Heuristic{}, noop
		}
		return s, noop
	case config.ModeGemini:
		s, err := summarize.NewGemini(ctx, sc.APIKey, params)
		if err != nil {
			l.WithError(err).Warn("gemini summarizer unavailable, using heuristic summaries")
			return summarize.Heuristic{}, noop
		}
		return s, func() { _ = s.Close() }
	}
	return summarize.Heuristic{}, noop
}

// buildRedactor returns nil when redaction is off. Without configured
// patterns the built-in secret patterns apply.
func buildRedactor(cfg *config.Config) (*privacy.Redactor, error) {
	if !cfg.Privacy.Redact.Enabled {
		return nil, nil
	}
	patterns := cfg.Privacy.Redact.Patterns
	if len(patterns) == 0 {
		patterns = privacy.DefaultPatterns
	}
	return privacy.NewRedactor(patterns)
}
