package extract

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"smartcrawl/internal/crawler"
)

const baseURL = "https://example.com/catalog"

func extract(t *testing.T, rawHTML string) crawler.ExtractionResult {
	t.Helper()
	result, err := NewEngine(nil).Extract(rawHTML, baseURL)
	require.NoError(t, err)
	return result
}

func TestExtract_PrimaryPass(t *testing.T) {
	t.Parallel()

	page := `<html><head>
		<title>  Widget   Shop  </title>
		<meta name="description" content="All the widgets.">
	</head><body>
		<ul>
			<li>Deluxe widget, now in stock <a href="/widgets/1">view</a> <img src="/img/1.png"></li>
			<li>Compact widget for travel <a href="https://example.com/widgets/2">view</a></li>
			<li>tiny</li>
		</ul>
	</body></html>`

	res := extract(t, page)
	require.Equal(t, "Widget Shop", res.Title)
	require.Equal(t, "All the widgets.", res.MetaDescription)
	require.Equal(t, 2, res.ItemCount)
	require.Len(t, res.Items, 2)

	require.Equal(t, "Deluxe widget, now in stock view", res.Items[0].Text)
	require.Equal(t, "https://example.com/widgets/1", res.Items[0].Link)
	require.Equal(t, "https://example.com/img/1.png", res.Items[0].Image)

	require.Equal(t, "https://example.com/widgets/2", res.Items[1].Link)
	require.Empty(t, res.Items[1].Image)
}

func TestExtract_TextLengthThreshold(t *testing.T) {
	t.Parallel()

	// Exactly 10 visible runes is below the bar; 11 clears it.
	page := `<body><ul>
		<li><a href="/a">1234567890</a></li>
		<li><a href="/b">12345678901</a></li>
	</ul></body>`

	res := extract(t, page)
	require.Equal(t, 1, res.ItemCount)
	require.Equal(t, "https://example.com/b", res.Items[0].Link)
}

func TestExtract_ContainerWithoutLinkSkipped(t *testing.T) {
	t.Parallel()

	page := `<body><article>A long enough description with no anchor at all.</article></body>`
	res := extract(t, page)
	require.Zero(t, res.ItemCount)
	require.Empty(t, res.Items)
}

func TestExtract_TruncatesLongText(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 160)
	page := fmt.Sprintf(`<body><li>%s<a href="/long">go</a></li></body>`, long)

	res := extract(t, page)
	require.Len(t, res.Items, 1)
	text := res.Items[0].Text
	require.True(t, strings.HasSuffix(text, "..."))
	require.Len(t, []rune(text), 153)
}

func TestExtract_ShortTextNotTruncated(t *testing.T) {
	t.Parallel()

	page := `<body><li>exactly enough words here <a href="/s">go</a></li></body>`
	res := extract(t, page)
	require.Len(t, res.Items, 1)
	require.False(t, strings.HasSuffix(res.Items[0].Text, "..."))
}

func TestExtract_DedupKeepsFirstOccurrence(t *testing.T) {
	t.Parallel()

	page := `<body><ul>
		<li>First listing of the widget <a href="/widgets/1">view</a></li>
		<li>Second listing, same target <a href="/widgets/1">view</a></li>
		<li>A different widget entirely <a href="/widgets/2">view</a></li>
	</ul></body>`

	res := extract(t, page)
	require.Equal(t, 2, res.ItemCount)
	require.Equal(t, "First listing of the widget view", res.Items[0].Text)
	require.Equal(t, "https://example.com/widgets/1", res.Items[0].Link)
	require.Equal(t, "https://example.com/widgets/2", res.Items[1].Link)
}

func TestExtract_ItemCountBeforeCap(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString("<body><ul>")
	for i := 0; i < 25; i++ {
		fmt.Fprintf(&b, `<li>Catalog entry number %02d <a href="/e/%d">view</a></li>`, i, i)
	}
	b.WriteString("</ul></body>")

	res := extract(t, b.String())
	require.Equal(t, 25, res.ItemCount)
	require.Len(t, res.Items, 20)
	require.Equal(t, "https://example.com/e/0", res.Items[0].Link)
	require.Equal(t, "https://example.com/e/19", res.Items[19].Link)
}

func TestExtract_AriaLabelFallbackForText(t *testing.T) {
	t.Parallel()

	page := `<body><div class="card" aria-label="Accessible card label"><a href="/c/1"><img src="/c/1.png"></a></div></body>`
	res := extract(t, page)
	require.Len(t, res.Items, 1)
	require.Equal(t, "Accessible card label", res.Items[0].Text)
}

func TestExtract_ScriptTextInvisible(t *testing.T) {
	t.Parallel()

	// Script bodies are not visible text and must not rescue a too-short
	// container.
	page := `<body><li><script>var padding = "aaaaaaaaaaaaaaaaaaaaaaaa";</script>hi<a href="/x">go</a></li></body>`
	res := extract(t, page)
	require.Empty(t, res.Items)
}

func TestExtract_FallbackPass(t *testing.T) {
	t.Parallel()

	// No container elements at all: the anchor sweep kicks in.
	page := `<body>
		<p><a href="/read/1">A headline long enough for the fallback</a></p>
		<p><a href="/read/2">too short here</a></p>
		<p><a href="javascript:void(0)">A script pseudo link that must be skipped</a></p>
	</body>`

	res := extract(t, page)
	require.Equal(t, 1, res.ItemCount)
	require.Equal(t, "https://example.com/read/1", res.Items[0].Link)
	require.Equal(t, "A headline long enough for the fallback...", res.Items[0].Text)
	require.Empty(t, res.Items[0].Image)
}

func TestExtract_FallbackTruncation(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("y", 120)
	page := fmt.Sprintf(`<body><p><a href="/long">%s</a></p></body>`, long)

	res := extract(t, page)
	require.Len(t, res.Items, 1)
	require.Len(t, []rune(res.Items[0].Text), 103)
}

func TestExtract_FallbackNotUsedWhenPrimaryMatches(t *testing.T) {
	t.Parallel()

	page := `<body>
		<li>A primary container item <a href="/p/1">view</a></li>
		<p><a href="/stray">A stray anchor outside any container</a></p>
	</body>`

	res := extract(t, page)
	require.Equal(t, 1, res.ItemCount)
	require.Equal(t, "https://example.com/p/1", res.Items[0].Link)
}

func TestExtract_CustomSelectors(t *testing.T) {
	t.Parallel()

	engine := NewEngine([]string{".listing"})
	page := `<body>
		<div class="listing">Only this block should match <a href="/l/1">view</a></div>
		<li>A default container that must be ignored <a href="/ignored">view</a></li>
	</body>`

	res, err := engine.Extract(page, baseURL)
	require.NoError(t, err)
	require.Equal(t, 1, res.ItemCount)
	require.Equal(t, "https://example.com/l/1", res.Items[0].Link)
}
