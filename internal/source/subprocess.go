package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xeipuuv/gojsonschema"
)

const (
	subprocessSourceName     = "subprocess"
	DefaultSubprocessTimeout = 2 * time.Minute
	maxLineLength            = 1 << 20 // 1 MiB per JSONL line
)

// scrapedLineSchema is what a scraper must print per line: snscrape-style
// jsonl with an id, a date and at least one content field.
const scrapedLineSchema = `{
  "type": "object",
  "required": ["id", "date"],
  "properties": {
    "id": {"type": ["string", "integer"]},
    "url": {"type": "string"},
    "date": {"type": "string", "minLength": 1},
    "rawContent": {"type": "string"},
    "content": {"type": "string"},
    "renderedContent": {"type": "string"}
  },
  "anyOf": [
    {"required": ["rawContent"]},
    {"required": ["content"]},
    {"required": ["renderedContent"]}
  ]
}`

var lineSchema = gojsonschema.NewStringLoader(scrapedLineSchema)

// SubprocessAdapter runs an external scraper once per account and reads one
// JSON object per stdout line.
type SubprocessAdapter struct {
	base
	command   []string
	timeout   time.Duration
	permalink string
}

// NewSubprocess creates the subprocess adapter. command elements may contain
// {account} and {limit}; permalink may contain {account} and {id} and is used
// when a line carries no url.
func NewSubprocess(command []string, timeout time.Duration, permalink string, opts ...AdapterOption) (*SubprocessAdapter, error) {
	if len(command) == 0 || strings.TrimSpace(command[0]) == "" {
		return nil, errors.New("subprocess: command is required")
	}
	if timeout <= 0 {
		timeout = DefaultSubprocessTimeout
	}
	return &SubprocessAdapter{
		base:      newBase(opts),
		command:   command,
		timeout:   timeout,
		permalink: permalink,
	}, nil
}

func (s *SubprocessAdapter) Name() string {
	return subprocessSourceName
}

// Command returns the argv that would run for account.
func (s *SubprocessAdapter) Command(account Account, limit int) []string {
	handle := strings.TrimPrefix(string(account), "@")
	argv := make([]string, len(s.command))
	for i, arg := range s.command {
		argv[i] = expandTemplate(arg, handle, limit, "")
	}
	return argv
}

func (s *SubprocessAdapter) Fetch(ctx context.Context, account Account, limit int) ([]Post, error) {
	log := s.log.WithField("account", account)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	argv := s.Command(account, limit)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if first := firstLine(stderr.String()); first != "" {
			log.WithFields(logrus.Fields{"stderr": first, "argv0": argv[0]}).Warn("scraper failed")
		}
		if errors.Is(err, exec.ErrNotFound) {
			return nil, unavailable("scraper %q not found", argv[0])
		}
		if ctx.Err() != nil {
			return nil, unavailable("scraper timed out after %s", s.timeout)
		}
		return nil, unavailable("scraper: %v", err)
	}
	if first := firstLine(stderr.String()); first != "" {
		log.WithField("stderr", first).Info("scraper wrote diagnostics")
	}

	raws, malformed, err := parseJSONL(&stdout, s.permalink, string(account))
	if err != nil {
		return nil, unavailable("read scraper output: %v", err)
	}
	if malformed > 0 {
		log.Warnf("dropped %d malformed lines", malformed)
	}

	posts := make([]Post, 0, len(raws))
	dropped := malformed
	for _, raw := range raws {
		p, err := newPost(account, raw)
		if err != nil {
			dropped++
			log.WithField("item", raw.ID).Debugf("dropping post: %v", err)
			continue
		}
		posts = append(posts, p)
	}
	if len(posts) == 0 && dropped > 0 {
		return nil, unavailable("all %d scraper lines were unusable", dropped)
	}

	sortNewestFirst(posts)
	return truncate(posts, limit), nil
}

// scrapedID accepts both string and numeric ids.
type scrapedID string

func (id *scrapedID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = scrapedID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("id must be an integer: %w", err)
	}
	*id = scrapedID(n.String())
	return nil
}

type scrapedLine struct {
	ID              scrapedID `json:"id"`
	URL             string    `json:"url"`
	Date            string    `json:"date"`
	RawContent      string    `json:"rawContent"`
	Content         string    `json:"content"`
	RenderedContent string    `json:"renderedContent"`
}

// text returns the first content field present. Scrapers pass the
// platform's entity-encoded text through, so every field is treated as HTML.
func (l scrapedLine) text() string {
	switch {
	case l.RawContent != "":
		return l.RawContent
	case l.Content != "":
		return l.Content
	default:
		return l.RenderedContent
	}
}

// parseJSONL reads scraper lines from r. Lines that fail the schema, do not
// decode or carry an unknown date format are counted, not fatal.
func parseJSONL(r io.Reader, permalink, account string) ([]RawPost, int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)

	var (
		raws      []RawPost
		malformed int
	)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		result, err := gojsonschema.Validate(lineSchema, gojsonschema.NewStringLoader(line))
		if err != nil || !result.Valid() {
			malformed++
			continue
		}

		var sl scrapedLine
		if err := json.Unmarshal([]byte(line), &sl); err != nil {
			malformed++
			continue
		}
		published, err := parseTimestamp(sl.Date)
		if err != nil {
			malformed++
			continue
		}

		link := sl.URL
		if link == "" && permalink != "" {
			link = expandTemplate(permalink, account, 0, string(sl.ID))
		}
		raws = append(raws, RawPost{
			ID:          string(sl.ID),
			PublishedAt: published,
			Content:     sl.text(),
			Markup:      HTML,
			Permalink:   link,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, malformed, err
	}
	return raws, malformed, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
