package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"
)

const (
	DefaultTemperature = 0.4
	DefaultMaxTokens   = 300
	DefaultTimeout     = 60 * time.Second
	DefaultLanguage    = "English"
)

// DefaultPrompt asks for a short localized summary plus hashtags.
const DefaultPrompt = `You are an editor writing in {{.Language}}. Summarize the post below in at most 200 characters and add 3 #hashtags.
=== post ===
{{.Text}}
=== end ===`

// ErrEmptyCompletion is returned when a model answers with no text.
var ErrEmptyCompletion = errors.New("empty completion")

// Summarizer condenses one post's text into a short summary. A failure
// concerns only that post.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Params are the sampling and prompt settings shared by model-backed
// summarizers.
type Params struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	Language    string
	Prompt      string // text/template with {{.Language}} and {{.Text}}
}

func (p Params) withDefaults() Params {
	if p.MaxTokens <= 0 {
		p.MaxTokens = DefaultMaxTokens
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultTimeout
	}
	if p.Language == "" {
		p.Language = DefaultLanguage
	}
	if strings.TrimSpace(p.Prompt) == "" {
		p.Prompt = DefaultPrompt
	}
	return p
}

// Prompt renders the user prompt for one post.
type Prompt struct {
	tmpl     *template.Template
	language string
}

// NewPrompt parses a prompt template.
func NewPrompt(text, language string) (*Prompt, error) {
	if strings.TrimSpace(text) == "" {
		text = DefaultPrompt
	}
	tmpl, err := template.New("prompt").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}
	if language == "" {
		language = DefaultLanguage
	}
	return &Prompt{tmpl: tmpl, language: language}, nil
}

func (p *Prompt) Render(text string) (string, error) {
	var b strings.Builder
	err := p.tmpl.Execute(&b, struct {
		Language string
		Text     string
	}{p.language, text})
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return b.String(), nil
}
