package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const DefaultGeminiModel = "gemini-1.5-flash"

// contentGenerator is the part of *genai.GenerativeModel the summarizer uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Gemini summarizes through the Google Gemini API.
type Gemini struct {
	client *genai.Client
	model  contentGenerator
	params Params
	prompt *Prompt
}

// NewGemini creates a Gemini summarizer. Close releases the client.
func NewGemini(ctx context.Context, apiKey string, p Params, opts ...option.ClientOption) (*Gemini, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini: api key is required")
	}
	p = p.withDefaults()
	if p.Model == "" {
		p.Model = DefaultGeminiModel
	}
	prompt, err := NewPrompt(p.Prompt, p.Language)
	if err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	model := client.GenerativeModel(p.Model)
	model.SetTemperature(float32(p.Temperature))
	model.SetMaxOutputTokens(int32(p.MaxTokens))

	return &Gemini{client: client, model: model, params: p, prompt: prompt}, nil
}

func (g *Gemini) Summarize(ctx context.Context, text string) (string, error) {
	content, err := g.prompt.Render(text)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, g.params.Timeout)
	defer cancel()

	resp, err := g.model.GenerateContent(ctx, genai.Text(content))
	if err != nil {
		return "", fmt.Errorf("gemini: generate content: %w", err)
	}
	out, err := extractText(resp)
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	return out, nil
}

func (g *Gemini) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates: %w", ErrEmptyCompletion)
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content: %w", ErrEmptyCompletion)
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	out := strings.TrimSpace(strings.Join(parts, ""))
	if out == "" {
		return "", ErrEmptyCompletion
	}
	return out, nil
}
