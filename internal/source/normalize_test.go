package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_HTML(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "plain text", "plain text"},
		{"empty", "", ""},
		{"whitespace only", " \t\n ", ""},
		{"entities without markup", "Tom &amp; Jerry &#8212; &quot;live&quot;", "Tom & Jerry — \"live\""},
		{"paragraph with entity", "<p>Hello &amp; welcome</p>", "Hello & welcome"},
		{"line break", "line one<br>line two", "line one\nline two"},
		{"paragraphs", "<p>one</p><p>two</p>", "one\n\ntwo"},
		{"link label", `<p>see <a href="https://example.com/docs">docs</a></p>`, "see docs (https://example.com/docs)"},
		{"bare link", `<a href="https://example.com/x">https://example.com/x</a>`, "https://example.com/x"},
		{"hashtag link", `<a href="https://x.com/hashtag/go">#go</a> rocks`, "#go rocks"},
		{"list", "<ul><li>a</li><li>b</li></ul>", "- a\n- b"},
		{"image alt", `<p>look <img src="x.png" alt="a cat"></p>`, "look [a cat]"},
		{"script dropped", "<p>hi</p><script>alert(1)</script>", "hi"},
		{"spaces collapsed", "  a \t b  \n\n\n\n c ", "a b\n\nc"},
		{"double encoded decoded once", "&amp;amp; stays &amp;", "&amp; stays &"},
		{"escaped tags decoded once", "<p>use &amp;lt;div&amp;gt; tags</p>", "use &lt;div&gt; tags"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input, HTML))
		})
	}
}

func TestNormalize_PlainText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "plain text", "plain text"},
		{"entity kept literal", "AT&amp;T", "AT&amp;T"},
		{"angle brackets kept", "use <div> tags", "use <div> tags"},
		{"spaces collapsed", "  a \t b  \n\n\n\n c ", "a b\n\nc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input, PlainText))
		})
	}
}

// A normalized body is plain text; normalizing it again must not decode
// anything a second time.
func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"plain text",
		"Tom &amp; Jerry",
		"5 &gt; 3 and 2 &lt; 4",
		"<p>Hello &amp; welcome</p><p>second&nbsp;paragraph</p>",
		`<div>news: <a href="https://example.com/a?b=1&amp;c=2">link</a></div>`,
		"<ul><li>one</li><li>two</li></ul>",
		"café &#233; 日本語",
		"  spaced \t out \n\n\n text ",
		"&amp;amp; stays",
		"<p>use &amp;lt;div&amp;gt; tags</p>",
		"AT&amp;amp;T",
	}

	for _, in := range inputs {
		for _, markup := range []Markup{HTML, PlainText} {
			once := Normalize(in, markup)
			twice := Normalize(once, PlainText)
			assert.Equal(t, once, twice, "normalizing %q (markup %d) twice", in, markup)
		}
	}
}
