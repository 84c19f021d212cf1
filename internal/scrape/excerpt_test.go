package scrape

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const productPage = `<!DOCTYPE html>
<html>
<head>
<title>BPC-157 10mg - Example Peptides</title>
<meta property="og:price:amount" content="49.99">
<meta property="og:availability" content="instock">
<script type="application/ld+json">
{"@type":"Product","name":"BPC-157 10mg","offers":{"price":"49.99","availability":"https://schema.org/InStock"}}
</script>
<script>console.log("tracking")</script>
<style>.price { color: red }</style>
</head>
<body>
<nav>Home / Shop / Peptides</nav>
<h1>BPC-157 10mg</h1>
<div class="product-price">$49.99</div>
<span class="stock in-stock">In stock</span>
<form action="/cart/add"><button>Add to cart</button></form>
<p>Lyophilized research peptide, 99% purity. Third-party tested.</p>
<footer>Copyright Example Peptides</footer>
</body>
</html>`

func TestExcerpt_PrioritizesStructuredData(t *testing.T) {
	t.Parallel()

	got := Excerpt([]byte(productPage), 3000)

	assert.Contains(t, got, `JSON-LD: {"@type":"Product"`)
	assert.Contains(t, got, "meta og:price:amount=49.99")
	assert.Contains(t, got, "meta og:availability=instock")
	assert.Contains(t, got, "[product-price] $49.99")
	assert.Contains(t, got, "[stock in-stock] In stock")
	assert.Contains(t, got, "form: Add to cart")
	assert.Contains(t, got, "title: BPC-157 10mg - Example Peptides")
	assert.Contains(t, got, "h1: BPC-157 10mg")
	assert.Contains(t, got, "Lyophilized research peptide")

	// Structured data outranks body text.
	assert.Less(t, strings.Index(got, "JSON-LD"), strings.Index(got, "body:"))

	// Script and style bodies never leak into the excerpt.
	assert.NotContains(t, got, "tracking")
	assert.NotContains(t, got, "color: red")
}

func TestExcerpt_Bounded(t *testing.T) {
	t.Parallel()

	big := "<html><body><p>" + strings.Repeat("filler text ", 2000) + "</p></body></html>"
	got := Excerpt([]byte(big), 3000)
	assert.LessOrEqual(t, len(got), 3000)
	assert.NotEmpty(t, got)
}

func TestExcerpt_DefaultBound(t *testing.T) {
	t.Parallel()

	big := "<html><body>" + strings.Repeat("x ", 5000) + "</body></html>"
	got := Excerpt([]byte(big), 0)
	assert.LessOrEqual(t, len(got), 3000)
}

func TestExcerpt_UnparseableFallsBackToPlaintext(t *testing.T) {
	t.Parallel()

	// goquery parses almost anything, but the fallback path must still
	// bound its output.
	got := Excerpt([]byte("plain text, no markup at all"), 3000)
	assert.Contains(t, got, "plain text")
}

func TestCondense(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a b c", condense("  a\n\tb   c  "))
	assert.Equal(t, "", condense(" \n\t "))
}

func TestTruncate_UTF8Safe(t *testing.T) {
	t.Parallel()

	s := "prix: 49€"
	got := truncate(s, 9) // would split the euro sign
	assert.True(t, len(got) <= 9)
	assert.NotContains(t, got, "�")
	assert.Equal(t, s, truncate(s, 100))
}
