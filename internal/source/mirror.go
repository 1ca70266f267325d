package source

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

const (
	mirrorSourceName     = "mirror"
	DefaultMirrorPath    = "/{account}/rss"
	DefaultMirrorTimeout = 10 * time.Second
)

// AttemptResult is the state an endpoint ends up in for one account.
type AttemptResult string

const (
	AttemptFailed AttemptResult = "failed"
	AttemptEmpty  AttemptResult = "empty"
	AttemptOK     AttemptResult = "ok"
)

// Attempt records one endpoint's answer while serving one account.
// Endpoints missing from the attempt list were never tried.
type Attempt struct {
	Endpoint string
	Result   AttemptResult
	Entries  int
	Err      error
	Elapsed  time.Duration
}

// EndpointError ties a transport or parse failure to the mirror that caused it.
type EndpointError struct {
	Endpoint string
	Cause    error
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("mirror %s: %v", e.Endpoint, e.Cause)
}

func (e *EndpointError) Unwrap() error {
	return e.Cause
}

// MirrorPool picks among interchangeable feed mirrors. The endpoint order is
// shuffled once when the pool is built and reused for every account, which
// bounds the total latency of a run.
type MirrorPool struct {
	endpoints   []string
	path        string
	timeout     time.Duration
	acceptEmpty bool
	parser      FeedParser
	rng         *rand.Rand
	onAttempt   func(Account, Attempt)
}

// MirrorOption configures a MirrorPool.
type MirrorOption func(*MirrorPool)

// WithMirrorPath sets the per-account feed path appended to each endpoint.
func WithMirrorPath(path string) MirrorOption {
	return func(p *MirrorPool) {
		if path != "" {
			p.path = path
		}
	}
}

// WithMirrorTimeout bounds every single endpoint attempt.
func WithMirrorTimeout(d time.Duration) MirrorOption {
	return func(p *MirrorPool) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithAcceptEmpty makes an empty but valid feed a final answer instead of a
// reason to try the next endpoint.
func WithAcceptEmpty(accept bool) MirrorOption {
	return func(p *MirrorPool) { p.acceptEmpty = accept }
}

// WithFeedParser replaces the parser used to retrieve mirror feeds.
func WithFeedParser(fp FeedParser) MirrorOption {
	return func(p *MirrorPool) { p.parser = fp }
}

// WithShuffleSource fixes the randomness used for the one-time shuffle.
func WithShuffleSource(r *rand.Rand) MirrorOption {
	return func(p *MirrorPool) { p.rng = r }
}

// WithAttemptHook is called after every endpoint attempt.
func WithAttemptHook(fn func(Account, Attempt)) MirrorOption {
	return func(p *MirrorPool) { p.onAttempt = fn }
}

// NewMirrorPool builds a pool over endpoints and shuffles it.
func NewMirrorPool(endpoints []string, opts ...MirrorOption) (*MirrorPool, error) {
	cleaned := lo.Uniq(lo.FilterMap(endpoints, func(e string, _ int) (string, bool) {
		e = strings.TrimRight(strings.TrimSpace(e), "/")
		return e, e != ""
	}))
	if len(cleaned) == 0 {
		return nil, errors.New("mirror: at least one endpoint is required")
	}

	p := &MirrorPool{
		endpoints: cleaned,
		path:      DefaultMirrorPath,
		timeout:   DefaultMirrorTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.parser == nil {
		p.parser = NewFeedParser(NewHTTPClient(HTTPOptions{Timeout: p.timeout}))
	}

	if p.rng != nil {
		p.rng.Shuffle(len(p.endpoints), func(i, j int) {
			p.endpoints[i], p.endpoints[j] = p.endpoints[j], p.endpoints[i]
		})
	} else {
		rand.Shuffle(len(p.endpoints), func(i, j int) {
			p.endpoints[i], p.endpoints[j] = p.endpoints[j], p.endpoints[i]
		})
	}

	return p, nil
}

// Endpoints returns the pool order used for every account.
func (p *MirrorPool) Endpoints() []string {
	return slices.Clone(p.endpoints)
}

// FeedURL builds the account feed URL served by endpoint.
func (p *MirrorPool) FeedURL(endpoint string, account Account) string {
	handle := strings.TrimPrefix(string(account), "@")
	return endpoint + expandTemplate(p.path, url.PathEscape(handle), 0, "")
}

// Fetch walks the endpoints in pool order, one at a time, and returns the
// first feed that parses with at least one usable entry. A feed that parses
// but is empty does not end the walk: one mirror serving nothing says little
// about the account. A feed whose entries all lack content counts as a failed
// attempt. Attempts lists every endpoint that was tried.
func (p *MirrorPool) Fetch(ctx context.Context, account Account) (*gofeed.Feed, []Attempt, error) {
	attempts := make([]Attempt, 0, len(p.endpoints))

	for _, endpoint := range p.endpoints {
		if err := ctx.Err(); err != nil {
			return nil, attempts, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}

		feed, attempt := p.try(ctx, endpoint, account)
		attempts = append(attempts, attempt)
		if p.onAttempt != nil {
			p.onAttempt(account, attempt)
		}

		switch attempt.Result {
		case AttemptOK:
			return feed, attempts, nil
		case AttemptEmpty:
			if p.acceptEmpty {
				return feed, attempts, nil
			}
		}
	}

	return nil, attempts, ErrPoolExhausted
}

func (p *MirrorPool) try(ctx context.Context, endpoint string, account Account) (*gofeed.Feed, Attempt) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	feed, err := p.parser.ParseURL(ctx, p.FeedURL(endpoint, account))
	attempt := Attempt{Endpoint: endpoint, Elapsed: time.Since(start)}

	switch {
	case err != nil:
		attempt.Result = AttemptFailed
		attempt.Err = &EndpointError{Endpoint: endpoint, Cause: err}
	case feed == nil:
		attempt.Result = AttemptFailed
		attempt.Err = &EndpointError{Endpoint: endpoint, Cause: errors.New("no feed document")}
	case len(feed.Items) == 0:
		attempt.Result = AttemptEmpty
	case !lo.ContainsBy(feed.Items, usableItem):
		attempt.Result = AttemptFailed
		attempt.Err = &EndpointError{Endpoint: endpoint, Cause: fmt.Errorf("%d entries, none with content", len(feed.Items))}
	default:
		attempt.Result = AttemptOK
		attempt.Entries = len(feed.Items)
	}
	return feed, attempt
}

// MirrorAdapter serves accounts through a MirrorPool.
type MirrorAdapter struct {
	base
	pool      *MirrorPool
	permalink string
}

// NewMirror creates the mirror-pool adapter. permalink optionally rewrites
// entry links to the origin platform, e.g. "https://x.com/{account}/status/{id}".
func NewMirror(pool *MirrorPool, permalink string, opts ...AdapterOption) (*MirrorAdapter, error) {
	if pool == nil {
		return nil, errors.New("mirror: pool is required")
	}
	return &MirrorAdapter{base: newBase(opts), pool: pool, permalink: permalink}, nil
}

func (m *MirrorAdapter) Name() string {
	return mirrorSourceName
}

func (m *MirrorAdapter) Fetch(ctx context.Context, account Account, limit int) ([]Post, error) {
	log := m.log.WithField("account", account)

	feed, attempts, err := m.pool.Fetch(ctx, account)
	failed := lo.CountBy(attempts, func(a Attempt) bool { return a.Result == AttemptFailed })
	if err != nil {
		log.WithFields(logrus.Fields{"attempts": len(attempts), "failed": failed}).
			Warnf("no mirror could serve account: %v", err)
		return nil, err
	}

	winner := attempts[len(attempts)-1]
	log = log.WithFields(logrus.Fields{"endpoint": winner.Endpoint, "attempts": len(attempts)})

	posts, dropped := postsFromFeed(feed, account, limit, feedOptions{permalink: m.permalink}, log)
	if len(posts) == 0 && dropped > 0 {
		return nil, unavailable("%d entries from %s had no usable content", dropped, winner.Endpoint)
	}
	if dropped > 0 {
		log.Warnf("dropped %d unusable entries", dropped)
	}
	log.Debugf("mirror served %d entries", len(feed.Items))

	return posts, nil
}
