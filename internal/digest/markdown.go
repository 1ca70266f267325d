package digest

import (
	"bytes"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// MarkdownFormatter writes a static-site post: YAML front matter, a title
// and one card per summarized post.
type MarkdownFormatter struct {
	layout Layout
}

// NewMarkdown creates a Markdown formatter.
func NewMarkdown(layout Layout) *MarkdownFormatter {
	return &MarkdownFormatter{layout: layout.withDefaults()}
}

func (f *MarkdownFormatter) Ext() string { return ".md" }

type frontMatter struct {
	Title   string `yaml:"title"`
	Date    string `yaml:"date"`
	Layout  string `yaml:"layout"`
	Excerpt string `yaml:"excerpt"`
}

// Format writes the digest as Markdown to w.
func (f *MarkdownFormatter) Format(w io.Writer, input Input) error {
	date := input.Date.Format(dateLayout)

	fm, err := yaml.Marshal(frontMatter{
		Title:   f.layout.title(date),
		Date:    date,
		Layout:  "post",
		Excerpt: f.layout.Excerpt,
	})
	if err != nil {
		return fmt.Errorf("marshal front matter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(fm)
	buf.WriteString("---\n\n")
	fmt.Fprintf(&buf, "# %s %s\n\n", date, f.layout.Heading)

	if len(input.Entries) == 0 {
		buf.WriteString("_No posts today._\n")
	}

	for _, e := range input.Entries {
		buf.WriteString("<div class=\"card\">\n")
		fmt.Fprintf(&buf, "### %s · %s\n\n", handle(e.Post.Account), postDate(e.Post, input.Date.Location()))
		fmt.Fprintf(&buf, "%s\n\n", e.Summary)
		if e.Post.Permalink != "" {
			fmt.Fprintf(&buf, "[%s](%s)\n\n", f.layout.LinkText, e.Post.Permalink)
		}
		buf.WriteString("</div>\n\n")
	}

	_, err = w.Write(buf.Bytes())
	return err
}
