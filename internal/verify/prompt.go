package verify

import (
	"fmt"
	"strings"

	"github.com/peptide-index/stockwatch/pkg/anthropic"

	"github.com/peptide-index/stockwatch/internal/model"
)

// systemPrompt constrains the classifier to the fixed verdict schema.
// The bias toward KEEP is deliberate: a missed correction costs far less
// than wrongly suppressing a live listing.
const systemPrompt = `You are an inventory verification analyst for a peptide product catalog. You are given a text excerpt extracted from a vendor's product page, together with the product the catalog expects to find there.

Determine whether the listing is still live, whether it shows the expected product, whether it is in stock, and what it currently costs.

Respond with ONLY a JSON object, no prose and no markdown fences:
{
  "listing_active": boolean,   // false only for a 404/"not found"/redirect-to-home page
  "correct_product": boolean,  // the page sells the expected product (dosage variations count as correct)
  "in_stock": boolean,
  "detected_price": number or null,  // price in USD if visible, else null
  "detected_name": string,     // product name as shown on the page, "" if none
  "page_title": string,
  "action": string,            // exactly one of: KEEP, MARK_OOS, MARK_INSTOCK, UPDATE_PRICE, FLAG_WRONG, REMOVE_DEAD
  "confidence": number,        // 0.0 to 1.0
  "reasoning": string          // one or two short sentences
}

Action rules:
- KEEP: listing active, correct product, in stock, price within about 10% of expected.
- MARK_OOS: correct product with an explicit out-of-stock signal.
- MARK_INSTOCK: catalog says out of stock but the page shows it available.
- UPDATE_PRICE: in stock, correct product, visible price differs from expected by more than 10%.
- FLAG_WRONG: page is live but sells a different product than expected.
- REMOVE_DEAD: the listing itself is gone (404, "not found" page, redirect to the storefront home).

When the evidence is ambiguous or the excerpt is too thin to judge, choose KEEP with low confidence. Never choose MARK_OOS, FLAG_WRONG, or REMOVE_DEAD on weak evidence.`

// buildSystemBlocks assembles the cached system context. Learning notes
// accumulate in creation order and are appended as a second block so the
// base prompt stays cache-stable even as notes grow.
func buildSystemBlocks(notes []model.LearningNote) []anthropic.SystemBlock {
	if len(notes) == 0 {
		return anthropic.BuildCachedSystemBlocks(systemPrompt)
	}
	var b strings.Builder
	b.WriteString("Heuristics learned from reviewing your past decisions. Apply them where relevant:\n")
	for _, n := range notes {
		b.WriteString("- ")
		b.WriteString(strings.TrimSpace(n.Text))
		b.WriteString("\n")
	}
	return anthropic.BuildCachedSystemBlocks(systemPrompt, b.String())
}

// buildUserPrompt renders one item's evidence for classification.
func buildUserPrompt(item model.TrackedItem, tier1Status string, excerpt string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Vendor: %s\n", item.VendorName)
	fmt.Fprintf(&b, "Product URL: %s\n", item.ProductURL)
	fmt.Fprintf(&b, "Expected product: %s\n", item.ExpectedName)
	fmt.Fprintf(&b, "Expected price: $%.2f\n", item.ExpectedPrice)
	fmt.Fprintf(&b, "Catalog stock status: %s\n", stockWord(item.InStock))
	if item.LastError != "" {
		fmt.Fprintf(&b, "Last automated check error: %s\n", item.LastError)
	}
	if tier1Status != "" {
		fmt.Fprintf(&b, "Page fetch status: %s\n", tier1Status)
	}
	b.WriteString("\nPage excerpt:\n")
	b.WriteString(excerpt)
	return b.String()
}

func stockWord(inStock bool) string {
	if inStock {
		return "in stock"
	}
	return "out of stock"
}
