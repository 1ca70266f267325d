package digest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/postbrief/internal/source"
)

const dateLayout = "2006-01-02"

// Entry pairs a fetched post with its summary.
type Entry struct {
	Post    source.Post
	Summary string
}

// AccountStatus is how one account fared in the run.
type AccountStatus struct {
	Account  source.Account
	Outcome  string // ok, empty or unavailable
	Fetched  int
	Rendered int    // posts that made it into the digest
	Error    string // truncated; unavailable only
}

// Input is everything a formatter renders. Entries are in account order,
// newest first within an account.
type Input struct {
	Date     time.Time // digest day; its location is used for post dates
	RunID    string
	Entries  []Entry
	Accounts []AccountStatus
}

// Layout holds the configurable wording of the rendered digest. {date} is
// replaced in Title.
type Layout struct {
	Title    string
	Heading  string
	Excerpt  string
	LinkText string
}

// DefaultLayout is used for unset Layout fields.
var DefaultLayout = Layout{
	Title:    "{date} post digest",
	Heading:  "post digest",
	Excerpt:  "Today's posts at a glance",
	LinkText: "Original post",
}

func (l Layout) withDefaults() Layout {
	if l.Title == "" {
		l.Title = DefaultLayout.Title
	}
	if l.Heading == "" {
		l.Heading = DefaultLayout.Heading
	}
	if l.Excerpt == "" {
		l.Excerpt = DefaultLayout.Excerpt
	}
	if l.LinkText == "" {
		l.LinkText = DefaultLayout.LinkText
	}
	return l
}

func (l Layout) title(date string) string {
	return strings.ReplaceAll(l.Title, "{date}", date)
}

// Formatter writes a formatted digest to w.
type Formatter interface {
	Format(w io.Writer, input Input) error
	// Ext is the file extension used for the dated output file.
	Ext() string
}

// New returns the formatter for name: markdown, json or terminal.
func New(name string, layout Layout, color bool) (Formatter, error) {
	switch name {
	case "", "markdown", "md":
		return NewMarkdown(layout), nil
	case "json":
		return NewJSON(), nil
	case "terminal":
		return NewTerminal(layout, color), nil
	default:
		return nil, fmt.Errorf("unknown digest format %q (want markdown, json or terminal)", name)
	}
}

// FileName is the dated file a formatter's output goes to.
func FileName(dir string, date time.Time, f Formatter) string {
	return filepath.Join(dir, date.Format(dateLayout)+f.Ext())
}

// WriteFile renders input to path, replacing any file already there. The
// output is written to a temporary file first so a failed run never leaves
// a half-written digest behind.
func WriteFile(path string, f Formatter, input Input) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".postbrief-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := f.Format(tmp, input); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("format digest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod digest: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace digest: %w", err)
	}
	return nil
}

func postDate(p source.Post, loc *time.Location) string {
	if p.PublishedAt.IsZero() {
		return "undated"
	}
	if loc == nil {
		loc = time.UTC
	}
	return p.PublishedAt.In(loc).Format(dateLayout)
}

func handle(a source.Account) string {
	return "@" + strings.TrimPrefix(string(a), "@")
}
