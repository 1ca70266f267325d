package source

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/sirupsen/logrus"
)

const librarySourceName = "library"

// Scraper is an in-process scraping capability that yields an account's
// posts lazily, newest first. An error from Posts means the scraper could
// not start at all; an error yielded by the sequence ends it.
type Scraper interface {
	Posts(ctx context.Context, account Account) (iter.Seq2[RawPost, error], error)
}

// LibraryAdapter pulls posts from a Scraper, advancing the sequence only as
// far as the limit requires.
type LibraryAdapter struct {
	base
	scraper Scraper
}

// NewLibrary creates the library-backed adapter.
func NewLibrary(scraper Scraper, opts ...AdapterOption) (*LibraryAdapter, error) {
	if scraper == nil {
		return nil, errors.New("library: scraper is required")
	}
	return &LibraryAdapter{base: newBase(opts), scraper: scraper}, nil
}

func (l *LibraryAdapter) Name() string {
	return librarySourceName
}

// Fetch pulls at most limit items and stops earlier at exhaustion or at the
// first failure while advancing. Items without content still use up the
// limit. A failure after some posts were pulled keeps those posts; a failure
// before any post makes the account unavailable.
func (l *LibraryAdapter) Fetch(ctx context.Context, account Account, limit int) ([]Post, error) {
	log := l.log.WithField("account", account)

	seq, err := l.scraper.Posts(ctx, account)
	if err != nil {
		log.Warnf("init scraper failed: %v", err)
		return nil, fmt.Errorf("%w: init scraper: %w", ErrUnavailable, err)
	}

	var (
		posts   []Post
		iterErr error
		pulled  int
		dropped int
	)
	for raw, err := range seq {
		if err != nil {
			iterErr = err
			break
		}
		pulled++
		if p, err := newPost(account, raw); err != nil {
			dropped++
			log.WithField("item", raw.ID).Debugf("dropping post: %v", err)
		} else {
			posts = append(posts, p)
		}
		if limit > 0 && pulled >= limit {
			break
		}
	}

	if iterErr != nil {
		log.WithField("pulled", len(posts)).Warnf("iterate posts failed: %v", iterErr)
		if len(posts) == 0 {
			return nil, fmt.Errorf("%w: iterate posts: %w", ErrUnavailable, iterErr)
		}
	}
	if dropped > 0 {
		log.WithFields(logrus.Fields{"dropped": dropped}).Debug("skipped posts without content")
	}

	sortNewestFirst(posts)
	return posts, nil
}
