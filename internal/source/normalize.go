package source

import (
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	xhtml "golang.org/x/net/html"
)

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]*>`)
	spaceRunRe   = regexp.MustCompile(`[\t\f\v\p{Zs}]+`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
)

const blockSelector = "p, div, blockquote, pre, h1, h2, h3, h4, h5, h6, ul, ol, table, tr, hr"

// Markup says how a backend encodes post content.
type Markup int

const (
	// PlainText content is used as is; "&amp;" in it is literal text.
	PlainText Markup = iota
	// HTML content is markup or entity-encoded text, as feeds and the
	// scraper CLI deliver it.
	HTML
)

// Normalize turns raw post content into plain text that carries no
// rendering assumptions. HTML goes through a parser, which decodes every
// entity once while building the tree. Plain text is never unescaped, so
// normalizing a normalized body as PlainText leaves it unchanged.
func Normalize(raw string, markup Markup) string {
	if markup == HTML {
		return cleanText(htmlToText(raw))
	}
	return cleanText(raw)
}

func htmlToText(raw string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return html.UnescapeString(htmlTagRe.ReplaceAllString(raw, " "))
	}

	doc.Find("script, style, noscript").Remove()

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		label := strings.TrimSpace(a.Text())
		switch {
		case href == "" || strings.HasPrefix(href, "#"):
		case label == "":
			a.SetText(href)
		case label != href && !strings.HasPrefix(label, "#") && !strings.HasPrefix(label, "@"):
			a.AfterNodes(textNode(" (" + href + ")"))
		}
	})

	doc.Find("br").Each(func(_ int, br *goquery.Selection) {
		br.ReplaceWithNodes(textNode("\n"))
	})
	doc.Find("li").Each(func(_ int, li *goquery.Selection) {
		li.PrependNodes(textNode("- "))
		li.AfterNodes(textNode("\n"))
	})
	doc.Find("img[alt]").Each(func(_ int, img *goquery.Selection) {
		if alt := strings.TrimSpace(img.AttrOr("alt", "")); alt != "" {
			img.ReplaceWithNodes(textNode("[" + alt + "]"))
		}
	})
	doc.Find(blockSelector).Each(func(_ int, block *goquery.Selection) {
		block.AfterNodes(textNode("\n\n"))
	})

	return doc.Find("body").Text()
}

func textNode(s string) *xhtml.Node {
	return &xhtml.Node{Type: xhtml.TextNode, Data: s}
}

// cleanText collapses horizontal whitespace, trims every line and keeps at
// most one blank line between paragraphs.
func cleanText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRunRe.ReplaceAllString(line, " "))
	}

	s = strings.Join(lines, "\n")
	s = blankLinesRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
