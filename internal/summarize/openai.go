package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultOpenAIEndpoint = "https://api.openai.com/v1/chat/completions"
	DefaultOpenAIModel    = "gpt-4o-mini"
	maxRetries            = 3
)

// OpenAI sends post text to an OpenAI-compatible chat completions API.
type OpenAI struct {
	apiKey   string
	endpoint string
	params   Params
	prompt   *Prompt
	client   *http.Client

	// newBackOff builds the retry schedule for one call.
	newBackOff func() backoff.BackOff
}

// NewOpenAI creates an OpenAI-compatible summarizer. endpoint may be empty.
func NewOpenAI(apiKey, endpoint string, p Params) (*OpenAI, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("openai: api key is required")
	}
	p = p.withDefaults()
	if p.Model == "" {
		p.Model = DefaultOpenAIModel
	}
	if endpoint == "" {
		endpoint = DefaultOpenAIEndpoint
	}
	prompt, err := NewPrompt(p.Prompt, p.Language)
	if err != nil {
		return nil, err
	}
	return &OpenAI{
		apiKey:   apiKey,
		endpoint: endpoint,
		params:   p,
		prompt:   prompt,
		client:   &http.Client{Timeout: p.Timeout},
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			b.MaxElapsedTime = p.Timeout
			return backoff.WithMaxRetries(b, maxRetries)
		},
	}, nil
}

// Summarize returns the model's completion for text. Rate limiting and
// server errors are retried a few times; anything else fails at once.
func (o *OpenAI) Summarize(ctx context.Context, text string) (string, error) {
	content, err := o.prompt.Render(text)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(chatRequest{
		Model:       o.params.Model,
		Messages:    []chatMessage{{Role: "user", Content: content}},
		Temperature: o.params.Temperature,
		MaxTokens:   o.params.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, o.params.Timeout)
	defer cancel()

	summary, err := backoff.RetryWithData(func() (string, error) {
		return o.call(ctx, body)
	}, backoff.WithContext(o.newBackOff(), ctx))
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	return summary, nil
}

func (o *OpenAI) call(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", backoff.Permanent(fmt.Errorf("http request: %w", err))
		}
		return "", fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
		if err.Retryable() {
			return "", err
		}
		return "", backoff.Permanent(err)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	if len(chatResp.Choices) == 0 {
		return "", backoff.Permanent(fmt.Errorf("no choices: %w", ErrEmptyCompletion))
	}

	out := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if out == "" {
		return "", backoff.Permanent(ErrEmptyCompletion)
	}
	return out, nil
}

// StatusError is a non-200 answer from the completion API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("api returned status %d", e.Code)
	}
	return fmt.Sprintf("api returned status %d: %s", e.Code, e.Body)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}
