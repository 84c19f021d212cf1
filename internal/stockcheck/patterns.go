package stockcheck

import "strings"

// outOfStockSignals are scanned in order against the lowercased page
// body; the first hit decides. Ordering matters: structured-data and
// markup signals are stronger than loose copy, so they come first.
var outOfStockSignals = []string{
	`"availability":"https://schema.org/outofstock"`,
	`"availability":"http://schema.org/outofstock"`,
	`"availability":"outofstock"`,
	`"availability":"https://schema.org/soldout"`,
	`og:availability" content="oos`,
	`og:availability" content="out of stock`,
	`class="stock out-of-stock`,
	`class="out-of-stock`,
	`class="product-oos`,
	`class="sold-out`,
	"out-of-stock",
	"out of stock",
	"sold out",
	"sold-out",
	"currently unavailable",
	"currently out of",
	"no longer available",
	"temporarily unavailable",
	"notify me when available",
	"notify when available",
	"back in stock soon",
	"email when available",
	"waitlist",
}

// disabledPurchaseSignals catch storefronts that leave stock copy intact
// but disable the buy control.
var disabledPurchaseSignals = []string{
	`<button disabled`,
	`<button type="submit" disabled`,
	`add-to-cart" disabled`,
	`add_to_cart_disabled`,
	`btn--sold-out`,
	`product-form--sold-out`,
	`data-available="false"`,
}

// FindAbsenceSignal scans a page body for positive evidence of absence.
// Returns the matched signal and true on a hit.
func FindAbsenceSignal(body []byte) (string, bool) {
	page := strings.ToLower(string(body))
	for _, sig := range outOfStockSignals {
		if strings.Contains(page, sig) {
			return sig, true
		}
	}
	for _, sig := range disabledPurchaseSignals {
		if strings.Contains(page, sig) {
			return sig, true
		}
	}
	return "", false
}
