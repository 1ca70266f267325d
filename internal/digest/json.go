package digest

import (
	"encoding/json"
	"io"
	"time"
)

type jsonDigest struct {
	Meta     jsonMeta      `json:"meta"`
	Accounts []jsonAccount `json:"accounts"`
	Entries  []jsonEntry   `json:"entries"`
}

type jsonMeta struct {
	Date     string `json:"date"`
	RunID    string `json:"run_id,omitempty"`
	Accounts int    `json:"accounts"`
	Posts    int    `json:"posts"`
}

type jsonAccount struct {
	Account  string `json:"account"`
	Outcome  string `json:"outcome"`
	Fetched  int    `json:"fetched"`
	Rendered int    `json:"rendered"`
	Error    string `json:"error,omitempty"`
}

type jsonEntry struct {
	Account     string `json:"account"`
	ID          string `json:"id,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
	Permalink   string `json:"permalink,omitempty"`
	Summary     string `json:"summary"`
}

// JSONFormatter formats a digest as JSON, including per-account outcomes.
type JSONFormatter struct{}

// NewJSON creates a JSON formatter.
func NewJSON() *JSONFormatter {
	return &JSONFormatter{}
}

func (f *JSONFormatter) Ext() string { return ".json" }

// Format writes the digest as JSON to w.
func (f *JSONFormatter) Format(w io.Writer, input Input) error {
	out := jsonDigest{
		Meta: jsonMeta{
			Date:     input.Date.Format(dateLayout),
			RunID:    input.RunID,
			Accounts: len(input.Accounts),
			Posts:    len(input.Entries),
		},
		Accounts: make([]jsonAccount, 0, len(input.Accounts)),
		Entries:  make([]jsonEntry, 0, len(input.Entries)),
	}

	for _, a := range input.Accounts {
		out.Accounts = append(out.Accounts, jsonAccount{
			Account:  string(a.Account),
			Outcome:  a.Outcome,
			Fetched:  a.Fetched,
			Rendered: a.Rendered,
			Error:    a.Error,
		})
	}
	for _, e := range input.Entries {
		je := jsonEntry{
			Account:   string(e.Post.Account),
			ID:        e.Post.ID,
			Permalink: e.Post.Permalink,
			Summary:   e.Summary,
		}
		if !e.Post.PublishedAt.IsZero() {
			je.PublishedAt = e.Post.PublishedAt.UTC().Format(time.RFC3339)
		}
		out.Entries = append(out.Entries, je)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(out)
}
