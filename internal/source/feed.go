package source

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/sirupsen/logrus"
)

const (
	DefaultUserAgent   = "Mozilla/5.0 (compatible; postbrief/1.0; +https://github.com/ppiankov/postbrief)"
	DefaultFeedTimeout = 30 * time.Second
)

var statusIDRe = regexp.MustCompile(`/status(?:es)?/(\d+)`)

// HTTPOptions configures the client used for feed and mirror requests.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration

	// InsecureSkipVerify disables certificate checks for this client only.
	// Some mirror nodes run with self-signed or expired certificates.
	InsecureSkipVerify bool
}

// NewHTTPClient builds the client shared by feed-based adapters.
func NewHTTPClient(opts HTTPOptions) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in per config
	}

	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultFeedTimeout
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: &uaTransport{base: transport, userAgent: ua},
	}
}

// uaTransport injects a User-Agent header into every request.
type uaTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *uaTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(req)
}

// FeedParser retrieves and parses an RSS/Atom/JSON feed.
type FeedParser interface {
	ParseURL(ctx context.Context, feedURL string) (*gofeed.Feed, error)
}

type httpFeedParser struct {
	client *http.Client
}

// NewFeedParser returns a gofeed-backed parser that fetches with client.
func NewFeedParser(client *http.Client) FeedParser {
	if client == nil {
		client = NewHTTPClient(HTTPOptions{})
	}
	return &httpFeedParser{client: client}
}

func (p *httpFeedParser) ParseURL(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	fp := gofeed.NewParser()
	fp.Client = p.client

	feed, err := fp.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		var httpErr gofeed.HTTPError
		if errors.As(err, &httpErr) {
			return nil, fmt.Errorf("fetch %s: status %d", feedURL, httpErr.StatusCode)
		}
		return nil, fmt.Errorf("fetch %s: %w", feedURL, err)
	}
	if feed == nil {
		return nil, fmt.Errorf("fetch %s: no feed document", feedURL)
	}
	return feed, nil
}

// feedOptions shape how feed entries become posts.
type feedOptions struct {
	// permalink, when set, rebuilds links from the status id found in the
	// entry link. Mirror nodes link to themselves rather than the origin.
	permalink string
}

// postsFromFeed converts feed entries to posts, newest first, capped at
// limit. It also reports how many entries were dropped as unusable.
func postsFromFeed(feed *gofeed.Feed, account Account, limit int, opts feedOptions, log logrus.FieldLogger) ([]Post, int) {
	posts := make([]Post, 0, len(feed.Items))
	dropped := 0

	for _, item := range feed.Items {
		if item == nil {
			dropped++
			continue
		}
		id := itemID(item)
		p, err := newPost(account, RawPost{
			ID:          id,
			PublishedAt: itemPublishedTime(item),
			Content:     itemContent(item),
			Markup:      HTML,
			Permalink:   itemPermalink(item, account, id, opts.permalink),
		})
		if err != nil {
			dropped++
			log.WithFields(logrus.Fields{"account": account, "item": id}).Debugf("dropping feed entry: %v", err)
			continue
		}
		posts = append(posts, p)
	}

	sortNewestFirst(posts)
	return truncate(posts, limit), dropped
}

func itemPublishedTime(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}
	return time.Time{}
}

// itemID prefers the numeric status id embedded in the entry link, which is
// what permalinks on the origin platform are built from.
func itemID(item *gofeed.Item) string {
	for _, s := range []string{item.Link, item.GUID} {
		if m := statusIDRe.FindStringSubmatch(s); m != nil {
			return m[1]
		}
	}
	if item.GUID != "" {
		return item.GUID
	}
	return item.Link
}

func itemContent(item *gofeed.Item) string {
	switch {
	case item.Content != "":
		return item.Content
	case item.Description != "":
		return item.Description
	default:
		return item.Title
	}
}

// usableItem reports whether item would normalize to a non-empty post.
func usableItem(item *gofeed.Item) bool {
	return item != nil && Normalize(itemContent(item), HTML) != ""
}

func itemPermalink(item *gofeed.Item, account Account, id, template string) string {
	if template != "" && statusIDRe.MatchString(item.Link+" "+item.GUID) {
		return expandTemplate(template, string(account), 0, id)
	}
	return item.Link
}
