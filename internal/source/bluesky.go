package source

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/atproto/syntax"
	util "github.com/bluesky-social/indigo/util"
	"github.com/bluesky-social/indigo/xrpc"
)

const (
	DefaultBlueskyHost    = "https://public.api.bsky.app"
	DefaultBlueskyTimeout = 30 * time.Second
	blueskyPageSize       = 25
	blueskyFilter         = "posts_no_replies"
)

// BlueskyScraper pages through an actor's public author feed. Pages are
// requested only when the consumer advances past the previous one.
type BlueskyScraper struct {
	client   *xrpc.Client
	pageSize int64
}

// NewBlueskyScraper creates a scraper against an AppView host. No session is
// needed for public author feeds.
func NewBlueskyScraper(host string, httpClient *http.Client) *BlueskyScraper {
	if host == "" {
		host = DefaultBlueskyHost
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultBlueskyTimeout}
	}
	ua := DefaultUserAgent
	return &BlueskyScraper{
		client: &xrpc.Client{
			Host:      strings.TrimRight(host, "/"),
			Client:    httpClient,
			UserAgent: &ua,
		},
		pageSize: blueskyPageSize,
	}
}

func (s *BlueskyScraper) Posts(ctx context.Context, account Account) (iter.Seq2[RawPost, error], error) {
	actor := strings.TrimPrefix(strings.TrimSpace(string(account)), "@")
	if _, err := syntax.ParseAtIdentifier(actor); err != nil {
		return nil, fmt.Errorf("bluesky: invalid actor %q: %w", actor, err)
	}

	return func(yield func(RawPost, error) bool) {
		cursor := ""
		for {
			out, err := bsky.FeedGetAuthorFeed(ctx, s.client, actor, cursor, blueskyFilter, false, s.pageSize)
			if err != nil {
				yield(RawPost{}, fmt.Errorf("bluesky: get author feed: %w", err))
				return
			}

			for _, item := range out.Feed {
				raw, ok := rawFromFeedView(actor, item)
				if !ok {
					continue
				}
				if !yield(raw, nil) {
					return
				}
			}

			if len(out.Feed) == 0 || out.Cursor == nil || *out.Cursor == "" || *out.Cursor == cursor {
				return
			}
			cursor = *out.Cursor
		}
	}, nil
}

// rawFromFeedView keeps the actor's own posts; reposts of other accounts and
// records that are not posts are skipped.
func rawFromFeedView(actor string, item *bsky.FeedDefs_FeedViewPost) (RawPost, bool) {
	if item == nil || item.Reason != nil || item.Post == nil || item.Post.Record == nil {
		return RawPost{}, false
	}
	rec, ok := item.Post.Record.Val.(*bsky.FeedPost)
	if !ok {
		return RawPost{}, false
	}

	aturi, err := util.ParseAtUri(item.Post.Uri)
	if err != nil || aturi.Rkey == "" {
		return RawPost{}, false
	}
	rkey := aturi.Rkey

	handle := actor
	if item.Post.Author != nil && item.Post.Author.Handle != "" {
		handle = item.Post.Author.Handle
	}

	published, err := parseTimestamp(rec.CreatedAt)
	if err != nil {
		published, _ = parseTimestamp(item.Post.IndexedAt)
	}

	return RawPost{
		ID:          rkey,
		PublishedAt: published,
		Content:     rec.Text,
		Markup:      PlainText,
		Permalink:   fmt.Sprintf("https://bsky.app/profile/%s/post/%s", handle, rkey),
	}, true
}
