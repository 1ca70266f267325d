package summarize

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/samber/lo"
)

var (
	urlRe     = regexp.MustCompile(`https?://\S+`)
	hashtagRe = regexp.MustCompile(`(?:^|\s)(#[\p{L}\p{N}_]+)`)
)

const (
	maxSentenceRunes = 200
	maxHashtags      = 3
)

var alertKeywords = []string{"breaking", "deprecated", "removed", "outage", "security"}

// Heuristic summarizes without a model: the first sentence, a sentence with
// an alert keyword when there is one, and up to three of the post's own
// hashtags. It never fails on non-empty text.
type Heuristic struct{}

func (Heuristic) Summarize(_ context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyCompletion
	}

	tags := lo.Uniq(lo.Map(hashtagRe.FindAllStringSubmatch(text, -1), func(m []string, _ int) string {
		return m[1]
	}))
	if len(tags) > maxHashtags {
		tags = tags[:maxHashtags]
	}

	body := strings.TrimSpace(urlRe.ReplaceAllString(text, ""))
	sentences := splitSentences(body)

	var parts []string
	if len(sentences) > 0 {
		parts = append(parts, capRunes(sentences[0], maxSentenceRunes))
	}
	if sent := findSentenceContaining(sentences, alertKeywords); sent != "" && (len(sentences) == 0 || sent != sentences[0]) {
		parts = append(parts, capRunes(sent, maxSentenceRunes))
	}
	if len(parts) == 0 {
		parts = append(parts, capRunes(text, maxSentenceRunes))
	}

	out := strings.Join(parts, " ")
	if len(tags) > 0 {
		out += "\n\n" + strings.Join(tags, " ")
	}
	return out, nil
}

// findSentenceContaining returns the first sentence that contains any keyword.
func findSentenceContaining(sentences []string, keywords []string) string {
	for _, sent := range sentences {
		lower := strings.ToLower(sent)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				return sent
			}
		}
	}
	return ""
}

// splitSentences splits at newlines, at ". ", "! ", "? " and after CJK
// full stops, which are not followed by a space.
func splitSentences(text string) []string {
	var (
		sentences []string
		current   strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}

	runes := []rune(text)
	for i, r := range runes {
		if r == '\n' {
			flush()
			continue
		}
		current.WriteRune(r)

		switch r {
		case '。', '！', '？':
			flush()
		case '.', '!', '?':
			if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
				flush()
			}
		}
	}
	flush()
	return sentences
}

// capRunes truncates s to n runes at the last space when one is near.
func capRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	cut := string(r[:n])
	if idx := strings.LastIndexByte(cut, ' '); idx > len(cut)/2 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut) + "…"
}
