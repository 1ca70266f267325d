package source

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

var fixtureBase = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// rssFeed renders an RSS document with n entries, the newest first, linking
// to nitter-style status URLs for account.
func rssFeed(account string, n int) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>` + account + `</title>`)
	for i := range n {
		id := 1000 + n - i
		fmt.Fprintf(&b, `<item><title>post %d</title><link>https://mirror.example/%s/status/%d#m</link><guid>https://mirror.example/%s/status/%d</guid><pubDate>%s</pubDate><description>&lt;p&gt;post number %d&lt;/p&gt;</description></item>`,
			id, account, id, account, id,
			fixtureBase.Add(-time.Duration(i)*time.Hour).Format(time.RFC1123Z), id)
	}
	b.WriteString(`</channel></rss>`)
	return b.String()
}

// gofeedItems builds parsed feed entries directly, skipping the network.
func gofeedItems(account string, n int) *gofeed.Feed {
	feed := &gofeed.Feed{Title: account}
	for i := range n {
		published := fixtureBase.Add(-time.Duration(i) * time.Hour)
		id := 1000 + n - i
		feed.Items = append(feed.Items, &gofeed.Item{
			Title:           fmt.Sprintf("post %d", id),
			Description:     fmt.Sprintf("<p>post number %d</p>", id),
			Link:            fmt.Sprintf("https://mirror.example/%s/status/%d", account, id),
			PublishedParsed: &published,
		})
	}
	return feed
}

type parseResult struct {
	feed *gofeed.Feed
	err  error
}

// fakeParser answers per endpoint prefix and records every URL it was asked for.
type fakeParser struct {
	mu      sync.Mutex
	answers map[string]parseResult
	calls   []string
}

func newFakeParser() *fakeParser {
	return &fakeParser{answers: map[string]parseResult{}}
}

func (f *fakeParser) set(endpoint string, feed *gofeed.Feed, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers[endpoint] = parseResult{feed: feed, err: err}
}

func (f *fakeParser) ParseURL(_ context.Context, feedURL string) (*gofeed.Feed, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, feedURL)
	for endpoint, r := range f.answers {
		if strings.HasPrefix(feedURL, endpoint+"/") {
			return r.feed, r.err
		}
	}
	return nil, fmt.Errorf("no answer for %s", feedURL)
}

func (f *fakeParser) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// poolInOrder builds a pool whose one-time shuffle produced exactly order.
func poolInOrder(t *testing.T, order []string, opts ...MirrorOption) *MirrorPool {
	t.Helper()
	for seed := uint64(1); seed < 10_000; seed++ {
		all := append(slices.Clone(opts), WithShuffleSource(rand.New(rand.NewPCG(seed, seed))))
		p, err := NewMirrorPool(slices.Clone(order), all...)
		if err != nil {
			t.Fatalf("NewMirrorPool: %v", err)
		}
		if slices.Equal(p.Endpoints(), order) {
			return p
		}
	}
	t.Fatalf("no seed produced order %v", order)
	return nil
}

func quietLogger() (*logrus.Logger, *test.Hook) {
	l, hook := test.NewNullLogger()
	l.SetLevel(logrus.DebugLevel)
	return l, hook
}
