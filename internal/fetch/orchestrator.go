// Package fetch runs the configured adapter over every account and turns
// whatever happens into a per-account outcome.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/ppiankov/postbrief/internal/source"
)

// maxErrRunes caps error messages in logs and outcome records.
const maxErrRunes = 200

// OutcomeKind classifies an account-level fetch result.
type OutcomeKind string

const (
	OutcomeOK          OutcomeKind = "ok"
	OutcomeEmpty       OutcomeKind = "empty"
	OutcomeUnavailable OutcomeKind = "unavailable"
)

// Result is the outcome for one account.
type Result struct {
	Account source.Account
	Kind    OutcomeKind
	Posts   []source.Post // newest first; empty unless Kind is OutcomeOK
	Err     error         // set only for OutcomeUnavailable
	Elapsed time.Duration
}

// Message returns the truncated error text, or "".
func (r Result) Message() string {
	if r.Err == nil {
		return ""
	}
	return Truncate(r.Err.Error(), maxErrRunes)
}

// Orchestrator fetches accounts one at a time. A failing account never stops
// the loop and is never retried within the run.
type Orchestrator struct {
	adapter  source.Adapter
	limit    int
	log      logrus.FieldLogger
	observer func(Result)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger used for per-account summary lines.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// WithObserver is called once per account with its final result.
func WithObserver(fn func(Result)) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// New creates an orchestrator around adapter. limit <= 0 means no cap.
func New(adapter source.Adapter, limit int, opts ...Option) (*Orchestrator, error) {
	if adapter == nil {
		return nil, errors.New("fetch: adapter is required")
	}
	o := &Orchestrator{
		adapter: adapter,
		limit:   limit,
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Run fetches every account in order and returns one result per account
// processed. When ctx is cancelled the loop stops before the next account;
// results for accounts already processed are still returned.
func (o *Orchestrator) Run(ctx context.Context, accounts []source.Account) []Result {
	results := make([]Result, 0, len(accounts))
	for _, account := range accounts {
		if ctx.Err() != nil {
			o.log.WithField("remaining", len(accounts)-len(results)).Warn("run interrupted, skipping remaining accounts")
			break
		}

		res := o.fetchOne(ctx, account)
		o.logResult(res)
		if o.observer != nil {
			o.observer(res)
		}
		results = append(results, res)
	}
	return results
}

func (o *Orchestrator) fetchOne(ctx context.Context, account source.Account) (res Result) {
	start := time.Now()
	res.Account = account

	defer func() {
		if p := recover(); p != nil {
			res = Result{
				Account: account,
				Kind:    OutcomeUnavailable,
				Err:     fmt.Errorf("%w: adapter panic: %v", source.ErrUnavailable, p),
			}
		}
		res.Elapsed = time.Since(start)
	}()

	posts, err := o.adapter.Fetch(ctx, account, o.limit)
	switch {
	case err != nil:
		if !errors.Is(err, source.ErrUnavailable) {
			err = fmt.Errorf("%w: %w", source.ErrUnavailable, err)
		}
		res.Kind = OutcomeUnavailable
		res.Err = err
	case len(posts) == 0:
		res.Kind = OutcomeEmpty
	default:
		if o.limit > 0 && len(posts) > o.limit {
			posts = posts[:o.limit]
		}
		res.Kind = OutcomeOK
		res.Posts = posts
	}
	return res
}

func (o *Orchestrator) logResult(res Result) {
	entry := o.log.WithFields(logrus.Fields{
		"account": res.Account,
		"backend": o.adapter.Name(),
		"outcome": res.Kind,
		"posts":   len(res.Posts),
		"elapsed": res.Elapsed.Round(time.Millisecond),
	})
	if res.Kind == OutcomeUnavailable {
		entry.WithField("error", res.Message()).Warn("account unavailable")
		return
	}
	entry.Infof("%s -> %d posts", res.Account, len(res.Posts))
}

// Tally counts results per outcome kind.
type Tally struct {
	OK          int
	Empty       int
	Unavailable int
	Posts       int
}

// Summarize tallies results.
func Summarize(results []Result) Tally {
	counts := lo.CountValuesBy(results, func(r Result) OutcomeKind { return r.Kind })
	return Tally{
		OK:          counts[OutcomeOK],
		Empty:       counts[OutcomeEmpty],
		Unavailable: counts[OutcomeUnavailable],
		Posts:       lo.SumBy(results, func(r Result) int { return len(r.Posts) }),
	}
}

// Truncate shortens s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
