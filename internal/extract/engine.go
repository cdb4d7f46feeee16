// Package extract implements the heuristic extraction engine. It operates
// on a rendered-HTML snapshot and performs no I/O, so it is deterministic
// and unit-testable without a browser.
package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"smartcrawl/internal/crawler"
)

// DefaultSelectors is the prioritized list of content-container patterns
// for the primary pass: semantic containers, common component-library class
// names, ARIA roles, site-specific custom elements, and generic
// result/entry/post classes.
var DefaultSelectors = []string{
	"article", ".product", ".item", ".card", "li", "tr",
	`[role="article"]`, `[role="listitem"]`,
	"ytd-video-renderer", "ytd-rich-item-renderer", "ytd-compact-video-renderer",
	".result", ".entry", ".post",
}

const (
	maxItems          = 20
	primaryMinText    = 10
	primaryTruncateAt = 150
	fallbackMinText   = 20
	fallbackTruncate  = 100
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// Engine extracts structured items from a document snapshot.
type Engine struct {
	selectors []string
}

// NewEngine builds an Engine; pass nil to use DefaultSelectors.
func NewEngine(selectors []string) *Engine {
	if len(selectors) == 0 {
		selectors = DefaultSelectors
	}
	return &Engine{selectors: selectors}
}

// Extract runs the layered heuristic over the snapshot: a primary pass over
// likely container elements, a broad anchor fallback only when the primary
// pass yields nothing, then dedup by link (first occurrence wins) and the
// item cap. ItemCount is the deduplicated total before the cap.
func (e *Engine) Extract(rawHTML string, baseURL string) (crawler.ExtractionResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return crawler.ExtractionResult{}, fmt.Errorf("parse document snapshot: %w", err)
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return crawler.ExtractionResult{}, fmt.Errorf("parse base url: %w", err)
	}

	result := crawler.ExtractionResult{
		Title: collapseWhitespace(doc.Find("title").First().Text()),
	}
	if desc, ok := doc.Find(`meta[name="description"]`).First().Attr("content"); ok {
		result.MetaDescription = desc
	}

	items := e.primaryPass(doc, base)
	if len(items) == 0 {
		items = fallbackPass(doc, base)
	}

	items = dedupByLink(items)
	result.ItemCount = len(items)
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	result.Items = items
	return result, nil
}

func (e *Engine) primaryPass(doc *goquery.Document, base *url.URL) []crawler.Item {
	var items []crawler.Item
	doc.Find(strings.Join(e.selectors, ", ")).Each(func(_ int, el *goquery.Selection) {
		text := elementText(el)
		link, ok := resolveAttr(el.Find("a[href]").First(), "href", base)
		if !ok || runeLen(text) <= primaryMinText {
			return
		}
		item := crawler.Item{
			Text: truncate(text, primaryTruncateAt),
			Link: link,
		}
		if image, ok := resolveAttr(el.Find("img[src]").First(), "src", base); ok {
			item.Image = image
		}
		items = append(items, item)
	})
	return items
}

// fallbackPass sweeps every anchor in the document. It only runs when the
// primary pass found nothing, so it trades precision for recall: longer
// minimum text, no image, and script pseudo-URLs excluded.
func fallbackPass(doc *goquery.Document, base *url.URL) []crawler.Item {
	var items []crawler.Item
	doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		text := elementText(a)
		if runeLen(text) <= fallbackMinText {
			return
		}
		link, ok := resolveAttr(a, "href", base)
		if !ok || link == "" || strings.HasPrefix(link, "javascript:") {
			return
		}
		items = append(items, crawler.Item{
			Text: truncateRunes(text, fallbackTruncate) + "...",
			Link: link,
		})
	})
	return items
}

func dedupByLink(items []crawler.Item) []crawler.Item {
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, item := range items {
		if _, dup := seen[item.Link]; dup {
			continue
		}
		seen[item.Link] = struct{}{}
		out = append(out, item)
	}
	return out
}

// elementText returns the element's visible text, falling back to its
// aria-label or title attribute when the text is empty.
func elementText(el *goquery.Selection) string {
	text := collapseWhitespace(visibleText(el))
	if text != "" {
		return text
	}
	if label, ok := el.Attr("aria-label"); ok && strings.TrimSpace(label) != "" {
		return collapseWhitespace(label)
	}
	if title, ok := el.Attr("title"); ok {
		return collapseWhitespace(title)
	}
	return ""
}

// visibleText approximates innerText: descendant text content excluding
// script, style, noscript and template subtrees.
func visibleText(el *goquery.Selection) string {
	var b strings.Builder
	for _, n := range el.Nodes {
		collectText(n, &b)
	}
	return b.String()
}

func collectText(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		b.WriteByte(' ')
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "template":
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}

// resolveAttr resolves the named URL attribute against the page base.
func resolveAttr(sel *goquery.Selection, attr string, base *url.URL) (string, bool) {
	raw, ok := sel.Attr(attr)
	if !ok {
		return "", false
	}
	resolved, err := base.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	return resolved.String(), true
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

func runeLen(s string) int {
	return len([]rune(s))
}

// truncate cuts text at limit runes, appending an ellipsis marker only when
// something was cut.
func truncate(s string, limit int) string {
	if runeLen(s) <= limit {
		return s
	}
	return truncateRunes(s, limit) + "..."
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
