package source

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Account is a source handle as written in the config (e.g. "sama").
type Account string

func (a Account) String() string { return string(a) }

// Post is a single normalized item fetched for an account.
type Post struct {
	Account     Account
	ID          string    // source-assigned, only used to build permalinks
	PublishedAt time.Time // best effort: some backends only know the date
	Body        string    // normalized text, never empty
	Permalink   string
}

// Adapter fetches recent posts for one account from one backend family.
//
// A nil error with zero posts means the source answered with nothing new.
// A non-nil error means the account could not be served by this backend;
// adapters wrap ErrUnavailable so callers can tell the two apart.
type Adapter interface {
	// Name returns the backend identifier (e.g. "mirror").
	Name() string

	// Fetch returns at most limit posts, newest first. limit <= 0 means no cap.
	Fetch(ctx context.Context, account Account, limit int) ([]Post, error)
}

var (
	// ErrUnavailable marks an account that no backend attempt could serve.
	ErrUnavailable = errors.New("source unavailable")

	// ErrPoolExhausted is returned when every mirror endpoint failed or was empty.
	ErrPoolExhausted = fmt.Errorf("%w: all mirror endpoints failed or returned no entries", ErrUnavailable)

	// ErrEmptyBody is returned for items whose content normalizes to nothing.
	ErrEmptyBody = errors.New("post has no content")
)

// RawPost is an item as a backend delivers it, before normalization.
type RawPost struct {
	ID          string
	PublishedAt time.Time
	Content     string
	Markup      Markup
	Permalink   string
}

// newPost normalizes raw content into a Post. Items without content are
// rejected so that "no post" never turns into a post with an empty body.
func newPost(account Account, raw RawPost) (Post, error) {
	body := Normalize(raw.Content, raw.Markup)
	if body == "" {
		return Post{}, ErrEmptyBody
	}
	return Post{
		Account:     account,
		ID:          raw.ID,
		PublishedAt: raw.PublishedAt,
		Body:        body,
		Permalink:   strings.TrimSpace(raw.Permalink),
	}, nil
}

func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnavailable, fmt.Sprintf(format, args...))
}

// truncate caps posts at limit. limit <= 0 leaves posts untouched.
func truncate(posts []Post, limit int) []Post {
	if limit > 0 && len(posts) > limit {
		return posts[:limit]
	}
	return posts
}

// sortNewestFirst orders posts by publication time, newest first. Posts
// without a timestamp keep their relative order after the dated ones.
func sortNewestFirst(posts []Post) {
	slices.SortStableFunc(posts, func(a, b Post) int {
		switch {
		case a.PublishedAt.IsZero() && b.PublishedAt.IsZero():
			return 0
		case a.PublishedAt.IsZero():
			return 1
		case b.PublishedAt.IsZero():
			return -1
		}
		return b.PublishedAt.Compare(a.PublishedAt)
	})
}

// expandTemplate substitutes {account}, {limit} and {id} in s.
func expandTemplate(s string, account string, limit int, id string) string {
	return strings.NewReplacer(
		"{account}", account,
		"{limit}", strconv.Itoa(limit),
		"{id}", id,
	).Replace(s)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02",
}

// parseTimestamp accepts the date formats seen across backends, from full
// instants down to bare dates.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// base carries settings shared by every adapter.
type base struct {
	log logrus.FieldLogger
}

// AdapterOption configures settings shared by every adapter.
type AdapterOption func(*base)

// WithLogger sets the logger adapters report degraded fetches to.
func WithLogger(l logrus.FieldLogger) AdapterOption {
	return func(b *base) {
		if l != nil {
			b.log = l
		}
	}
}

func newBase(opts []AdapterOption) base {
	b := base{log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}
