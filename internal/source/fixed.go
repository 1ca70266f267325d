package source

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
)

const fixedSourceName = "feed"

// FixedFeedAdapter reads one statically configured feed. There is no
// fallback: when the feed cannot be parsed the account is unavailable.
type FixedFeedAdapter struct {
	base
	feedURL string
	parser  FeedParser
	timeout time.Duration
}

// NewFixedFeed creates the fixed-feed adapter for feedURL.
func NewFixedFeed(feedURL string, parser FeedParser, timeout time.Duration, opts ...AdapterOption) (*FixedFeedAdapter, error) {
	feedURL = strings.TrimSpace(feedURL)
	if feedURL == "" {
		return nil, errors.New("feed: url is required")
	}
	if u, err := url.Parse(feedURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.New("feed: url must be absolute")
	}
	if timeout <= 0 {
		timeout = DefaultFeedTimeout
	}
	if parser == nil {
		parser = NewFeedParser(NewHTTPClient(HTTPOptions{Timeout: timeout}))
	}
	return &FixedFeedAdapter{
		base:    newBase(opts),
		feedURL: feedURL,
		parser:  parser,
		timeout: timeout,
	}, nil
}

func (f *FixedFeedAdapter) Name() string {
	return fixedSourceName
}

// Fetch parses the configured feed and attributes every entry to account.
// The account only labels the posts; it plays no part in the URL.
func (f *FixedFeedAdapter) Fetch(ctx context.Context, account Account, limit int) ([]Post, error) {
	log := f.log.WithField("account", account)

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	feed, err := f.parser.ParseURL(ctx, f.feedURL)
	if err != nil {
		log.Warnf("feed unavailable: %v", err)
		return nil, unavailable("%v", err)
	}

	posts, dropped := postsFromFeed(feed, account, limit, feedOptions{}, log)
	if len(posts) == 0 && dropped > 0 {
		return nil, unavailable("%d entries in %s had no usable content", dropped, f.feedURL)
	}
	if dropped > 0 {
		log.Warnf("dropped %d unusable entries", dropped)
	}
	return posts, nil
}
