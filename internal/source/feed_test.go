package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPClient_UserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	resp, err := NewHTTPClient(HTTPOptions{UserAgent: "postbrief-test/1"}).Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "postbrief-test/1", got)

	resp, err = NewHTTPClient(HTTPOptions{}).Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, DefaultUserAgent, got)
}

func TestNewHTTPClient_InsecureSkipVerifyIsScoped(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rssFeed("alice", 1))
	}))
	defer srv.Close()

	_, err := NewHTTPClient(HTTPOptions{}).Get(srv.URL)
	require.Error(t, err, "self-signed certificate must be rejected by default")

	resp, err := NewHTTPClient(HTTPOptions{InsecureSkipVerify: true}).Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	_, err = http.Get(srv.URL)
	require.Error(t, err, "the default client must stay strict")
}

func TestFeedParser_HTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewFeedParser(nil).ParseURL(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}

func TestItemID(t *testing.T) {
	tests := []struct {
		name string
		item gofeed.Item
		want string
	}{
		{"status link", gofeed.Item{Link: "https://nitter.example/sama/status/123#m"}, "123"},
		{"statuses guid", gofeed.Item{GUID: "https://mastodon.example/users/a/statuses/456"}, "456"},
		{"plain guid", gofeed.Item{GUID: "urn:post:9", Link: "https://blog.example/p/9"}, "urn:post:9"},
		{"link only", gofeed.Item{Link: "https://blog.example/p/9"}, "https://blog.example/p/9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, itemID(&tt.item))
		})
	}
}

func TestItemContent(t *testing.T) {
	assert.Equal(t, "c", itemContent(&gofeed.Item{Content: "c", Description: "d", Title: "t"}))
	assert.Equal(t, "d", itemContent(&gofeed.Item{Description: "d", Title: "t"}))
	assert.Equal(t, "t", itemContent(&gofeed.Item{Title: "t"}))
}

func TestItemPermalink(t *testing.T) {
	item := &gofeed.Item{Link: "https://nitter.example/sama/status/123#m"}
	assert.Equal(t, "https://x.com/sama/status/123", itemPermalink(item, "sama", "123", "https://x.com/{account}/status/{id}"))
	assert.Equal(t, item.Link, itemPermalink(item, "sama", "123", ""))

	blog := &gofeed.Item{Link: "https://blog.example/p/9"}
	assert.Equal(t, blog.Link, itemPermalink(blog, "sama", "9", "https://x.com/{account}/status/{id}"))
}

func TestParseTimestamp(t *testing.T) {
	for _, s := range []string{
		"2026-03-14T12:00:00Z",
		"2026-03-14T12:00:00.123+00:00",
		"2026-03-14 12:00:00",
		"Sat, 14 Mar 2026 12:00:00 +0000",
		"2026-03-14",
	} {
		ts, err := parseTimestamp(s)
		require.NoError(t, err, s)
		assert.Equal(t, 2026, ts.Year())
		assert.Equal(t, time.March, ts.Month())
	}
	_, err := parseTimestamp("last tuesday")
	assert.Error(t, err)
}

func TestSortNewestFirst(t *testing.T) {
	older := fixtureBase.Add(-time.Hour)
	posts := []Post{
		{ID: "undated-1"},
		{ID: "old", PublishedAt: older},
		{ID: "undated-2"},
		{ID: "new", PublishedAt: fixtureBase},
	}
	sortNewestFirst(posts)

	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	assert.Equal(t, []string{"new", "old", "undated-1", "undated-2"}, ids)
}
