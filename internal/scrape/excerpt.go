package scrape

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// stockClassRe matches element classes that usually carry price or
// availability signals.
var stockClassRe = regexp.MustCompile(`(?i)\b(price|stock|availability|sold[-_]?out|in[-_]?stock|out[-_]?of[-_]?stock|add[-_]?to[-_]?cart|inventory)\b`)

const (
	maxJSONLDBlock   = 1200
	maxSignalElement = 200
	maxSignalCount   = 15
	maxFormFragment  = 400
)

// Excerpt reduces a full HTML document to a bounded, signal-dense text
// block for the Tier-2 classifier. Structured data comes first, then
// price/stock markup, then title and a truncated plain-text body, so
// truncation at maxChars drops the least informative content.
func Excerpt(html []byte, maxChars int) string {
	if maxChars <= 0 {
		maxChars = 3000
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		// Unparseable markup still gets a best-effort plaintext excerpt.
		return truncate(condense(string(html)), maxChars)
	}

	var b strings.Builder

	// 1. JSON-LD blocks.
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		block := truncate(condense(s.Text()), maxJSONLDBlock)
		if block != "" {
			b.WriteString("JSON-LD: ")
			b.WriteString(block)
			b.WriteString("\n")
		}
	})

	// 2. OpenGraph / microdata price and availability metas.
	doc.Find(`meta[property], meta[itemprop]`).Each(func(_ int, s *goquery.Selection) {
		key, _ := s.Attr("property")
		if key == "" {
			key, _ = s.Attr("itemprop")
		}
		if !stockClassRe.MatchString(key) {
			return
		}
		content, _ := s.Attr("content")
		if content != "" {
			b.WriteString("meta ")
			b.WriteString(key)
			b.WriteString("=")
			b.WriteString(content)
			b.WriteString("\n")
		}
	})

	// 3. Elements classed as price/stock/availability.
	signals := 0
	doc.Find("[class]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		if !stockClassRe.MatchString(class) {
			return true
		}
		// Skip containers whose children will be visited anyway.
		if s.Children().Length() > 3 {
			return true
		}
		text := truncate(condense(s.Text()), maxSignalElement)
		if text == "" {
			text = "(empty)"
		}
		b.WriteString("[")
		b.WriteString(condense(class))
		b.WriteString("] ")
		b.WriteString(text)
		b.WriteString("\n")
		signals++
		return signals < maxSignalCount
	})

	// 4. Purchase form fragment.
	if form := doc.Find(`form[action*="cart"], form[action*="checkout"]`).First(); form.Length() > 0 {
		if frag := truncate(condense(form.Text()), maxFormFragment); frag != "" {
			b.WriteString("form: ")
			b.WriteString(frag)
			b.WriteString("\n")
		}
	}

	// 5. Title and first H1.
	if title := condense(doc.Find("title").First().Text()); title != "" {
		b.WriteString("title: ")
		b.WriteString(title)
		b.WriteString("\n")
	}
	if h1 := condense(doc.Find("h1").First().Text()); h1 != "" {
		b.WriteString("h1: ")
		b.WriteString(h1)
		b.WriteString("\n")
	}

	// 6. Truncated plain-text body fills whatever budget remains.
	remaining := maxChars - b.Len()
	if remaining > 50 {
		doc.Find("script, style, nav, footer, noscript").Remove()
		body := condense(doc.Find("body").Text())
		b.WriteString("body: ")
		b.WriteString(truncate(body, remaining-6))
	}

	return truncate(strings.TrimSpace(b.String()), maxChars)
}

var spaceRe = regexp.MustCompile(`\s+`)

// condense collapses all whitespace runs to single spaces.
func condense(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// truncate bounds s to n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	cut := s[:n]
	for len(cut) > 0 && cut[len(cut)-1]&0xC0 == 0x80 {
		cut = cut[:len(cut)-1]
	}
	if len(cut) > 0 && cut[len(cut)-1] >= 0xC0 {
		cut = cut[:len(cut)-1]
	}
	return cut
}
