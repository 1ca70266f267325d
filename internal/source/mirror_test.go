package source

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMirrorPool_RequiresEndpoints(t *testing.T) {
	_, err := NewMirrorPool(nil)
	require.Error(t, err)

	_, err = NewMirrorPool([]string{"", "  "})
	require.Error(t, err)
}

func TestNewMirrorPool_CleansAndDedupes(t *testing.T) {
	p, err := NewMirrorPool([]string{"https://a.example/", " https://b.example", "https://a.example"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"https://a.example", "https://b.example"}, p.Endpoints())
}

func TestMirrorPool_ShuffleIsStableAcrossAccounts(t *testing.T) {
	endpoints := []string{"https://a.example", "https://b.example", "https://c.example", "https://d.example"}
	fp := newFakeParser()
	p, err := NewMirrorPool(endpoints,
		WithFeedParser(fp),
		WithShuffleSource(rand.New(rand.NewPCG(7, 7))),
	)
	require.NoError(t, err)

	order := p.Endpoints()
	for _, acct := range []Account{"alice", "bob", "carol"} {
		_, attempts, err := p.Fetch(context.Background(), acct)
		require.ErrorIs(t, err, ErrPoolExhausted)
		got := make([]string, len(attempts))
		for i, a := range attempts {
			got[i] = a.Endpoint
		}
		assert.Equal(t, order, got, "account %s", acct)
	}
}

func TestMirrorPool_FeedURL(t *testing.T) {
	p, err := NewMirrorPool([]string{"https://nitter.example"}, WithMirrorPath("/{account}/rss"))
	require.NoError(t, err)
	assert.Equal(t, "https://nitter.example/sama/rss", p.FeedURL("https://nitter.example", "@sama"))
	assert.Equal(t, "https://nitter.example/a%20b/rss", p.FeedURL("https://nitter.example", "a b"))
}

func TestMirrorPool_StopsAtFirstNonEmpty(t *testing.T) {
	order := []string{"https://m1.example", "https://m2.example", "https://m3.example", "https://m4.example", "https://m5.example"}

	for k := 1; k <= len(order); k++ {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			fp := newFakeParser()
			p := poolInOrder(t, order, WithFeedParser(fp))

			for i, endpoint := range order {
				switch {
				case i < k-1:
					fp.set(endpoint, &gofeed.Feed{}, nil)
				case i == k-1:
					fp.set(endpoint, gofeedItems("alice", 4), nil)
				default:
					fp.set(endpoint, gofeedItems("alice", 9), nil)
				}
			}

			feed, attempts, err := p.Fetch(context.Background(), "alice")
			require.NoError(t, err)
			assert.Len(t, feed.Items, 4)
			require.Len(t, attempts, k)
			assert.Len(t, fp.called(), k)
			for _, a := range attempts[:k-1] {
				assert.Equal(t, AttemptEmpty, a.Result)
			}
			assert.Equal(t, AttemptOK, attempts[k-1].Result)
			assert.Equal(t, 4, attempts[k-1].Entries)
		})
	}
}

func TestMirrorPool_AllFailOrEmpty(t *testing.T) {
	order := []string{"https://m1.example", "https://m2.example", "https://m3.example", "https://m4.example"}
	fp := newFakeParser()
	p := poolInOrder(t, order, WithFeedParser(fp))

	fp.set(order[0], nil, errors.New("connection refused"))
	fp.set(order[1], &gofeed.Feed{}, nil)
	fp.set(order[2], nil, errors.New("status 429"))
	fp.set(order[3], &gofeed.Feed{Items: []*gofeed.Item{}}, nil)

	feed, attempts, err := p.Fetch(context.Background(), "alice")
	assert.Nil(t, feed)
	require.ErrorIs(t, err, ErrPoolExhausted)
	require.ErrorIs(t, err, ErrUnavailable)
	require.Len(t, attempts, len(order))
	assert.Len(t, fp.called(), len(order))

	assert.Equal(t, AttemptFailed, attempts[0].Result)
	var epErr *EndpointError
	require.ErrorAs(t, attempts[0].Err, &epErr)
	assert.Equal(t, order[0], epErr.Endpoint)
	assert.Equal(t, AttemptEmpty, attempts[1].Result)
	assert.Equal(t, AttemptFailed, attempts[2].Result)
	assert.Equal(t, AttemptEmpty, attempts[3].Result)
}

func TestMirrorPool_AcceptEmpty(t *testing.T) {
	order := []string{"https://m1.example", "https://m2.example"}
	fp := newFakeParser()
	p := poolInOrder(t, order, WithFeedParser(fp), WithAcceptEmpty(true))

	fp.set(order[0], &gofeed.Feed{}, nil)
	fp.set(order[1], gofeedItems("alice", 3), nil)

	feed, attempts, err := p.Fetch(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, feed.Items)
	assert.Len(t, attempts, 1)
}

func TestMirrorPool_AttemptHook(t *testing.T) {
	order := []string{"https://m1.example", "https://m2.example"}
	fp := newFakeParser()

	var seen []AttemptResult
	p := poolInOrder(t, order, WithFeedParser(fp), WithAttemptHook(func(acct Account, a Attempt) {
		assert.Equal(t, Account("bob"), acct)
		seen = append(seen, a.Result)
	}))
	fp.set(order[0], nil, errors.New("boom"))
	fp.set(order[1], gofeedItems("bob", 1), nil)

	_, _, err := p.Fetch(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, []AttemptResult{AttemptFailed, AttemptOK}, seen)
}

func TestMirrorPool_CancelledBeforeAttempt(t *testing.T) {
	fp := newFakeParser()
	p, err := NewMirrorPool([]string{"https://m1.example"}, WithFeedParser(fp))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, attempts, err := p.Fetch(ctx, "alice")
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Empty(t, attempts)
	assert.Empty(t, fp.called())
}

func TestMirrorAdapter_TimeoutThenSuccess(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
	}))
	defer slow.Close()

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/alice/rss", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, rssFeed("alice", 5))
	}))
	defer good.Close()

	order := []string{slow.URL, good.URL}
	p := poolInOrder(t, order, WithMirrorTimeout(100*time.Millisecond))

	log, _ := quietLogger()
	adapter, err := NewMirror(p, "https://x.com/{account}/status/{id}", WithLogger(log))
	require.NoError(t, err)

	feed, attempts, err := p.Fetch(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, feed.Items, 5)
	require.Len(t, attempts, 2)
	assert.Equal(t, slow.URL, attempts[0].Endpoint)
	assert.Equal(t, AttemptFailed, attempts[0].Result)
	assert.Equal(t, good.URL, attempts[1].Endpoint)
	assert.Equal(t, AttemptOK, attempts[1].Result)

	posts, err := adapter.Fetch(context.Background(), "alice", 10)
	require.NoError(t, err)
	require.Len(t, posts, 5)
	assert.Equal(t, "1005", posts[0].ID)
	assert.Equal(t, "https://x.com/alice/status/1005", posts[0].Permalink)
	assert.Equal(t, "post number 1005", posts[0].Body)
	assert.Equal(t, Account("alice"), posts[0].Account)
}

func TestMirrorAdapter_Truncates(t *testing.T) {
	fp := newFakeParser()
	fp.set("https://m1.example", gofeedItems("alice", 8), nil)
	p, err := NewMirrorPool([]string{"https://m1.example"}, WithFeedParser(fp))
	require.NoError(t, err)

	log, _ := quietLogger()
	adapter, err := NewMirror(p, "", WithLogger(log))
	require.NoError(t, err)

	for _, limit := range []int{1, 3, 8} {
		posts, err := adapter.Fetch(context.Background(), "alice", limit)
		require.NoError(t, err)
		require.Len(t, posts, limit)
		for i := 1; i < len(posts); i++ {
			assert.False(t, posts[i].PublishedAt.After(posts[i-1].PublishedAt), "posts must be newest first")
		}
	}

	posts, err := adapter.Fetch(context.Background(), "alice", 20)
	require.NoError(t, err)
	assert.Len(t, posts, 8)
	assert.Equal(t, "https://mirror.example/alice/status/1008", posts[0].Permalink)
}

func TestMirrorAdapter_UnusableEntries(t *testing.T) {
	fp := newFakeParser()
	fp.set("https://m1.example", &gofeed.Feed{Items: []*gofeed.Item{
		{Link: "https://mirror.example/alice/status/1"},
		{Link: "https://mirror.example/alice/status/2", Description: "<p> </p>"},
	}}, nil)
	p, err := NewMirrorPool([]string{"https://m1.example"}, WithFeedParser(fp))
	require.NoError(t, err)

	log, _ := quietLogger()
	adapter, err := NewMirror(p, "", WithLogger(log))
	require.NoError(t, err)

	posts, err := adapter.Fetch(context.Background(), "alice", 5)
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Empty(t, posts)
}

func TestMirrorPool_UnusableFeedTriesNextEndpoint(t *testing.T) {
	fp := newFakeParser()
	fp.set("https://m1.example", &gofeed.Feed{Items: []*gofeed.Item{
		{Link: "https://mirror.example/alice/status/1"},
		{Link: "https://mirror.example/alice/status/2", Description: "<p> </p>"},
	}}, nil)
	fp.set("https://m2.example", gofeedItems("alice", 3), nil)
	p := poolInOrder(t, []string{"https://m1.example", "https://m2.example"}, WithFeedParser(fp))

	log, _ := quietLogger()
	adapter, err := NewMirror(p, "", WithLogger(log))
	require.NoError(t, err)

	posts, err := adapter.Fetch(context.Background(), "alice", 5)
	require.NoError(t, err)
	assert.Len(t, posts, 3)
	assert.Len(t, fp.called(), 2)

	_, attempts, err := p.Fetch(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, AttemptFailed, attempts[0].Result)
	assert.ErrorContains(t, attempts[0].Err, "none with content")
	assert.Equal(t, AttemptOK, attempts[1].Result)
}

func TestMirrorAdapter_PoolExhausted(t *testing.T) {
	fp := newFakeParser()
	p, err := NewMirrorPool([]string{"https://m1.example", "https://m2.example"}, WithFeedParser(fp))
	require.NoError(t, err)

	log, hook := quietLogger()
	adapter, err := NewMirror(p, "", WithLogger(log))
	require.NoError(t, err)

	_, err = adapter.Fetch(context.Background(), "alice", 5)
	require.ErrorIs(t, err, ErrPoolExhausted)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, Account("alice"), hook.LastEntry().Data["account"])
	assert.Equal(t, 2, hook.LastEntry().Data["failed"])
}
