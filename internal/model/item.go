package model

import "time"

// IntegrationFamily selects how a vendor's listings are scraped.
type IntegrationFamily string

const (
	// FamilyStorefront vendors serve conventional HTML product pages.
	FamilyStorefront IntegrationFamily = "structured-storefront"
	// FamilyJSONAPI vendors expose a structured product endpoint at <url>.json.
	FamilyJSONAPI IntegrationFamily = "json-api"
	// FamilyRestricted vendors block scraping; their items are assumed
	// available and excluded from both tiers.
	FamilyRestricted IntegrationFamily = "access-restricted"
)

// Vendor maps a vendor to its integration family.
type Vendor struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Family IntegrationFamily `json:"family"`
}

// TrackedItem is one catalog listing tracked for stock and price.
// Rows are mutated only through the store's stored-procedure wrappers
// and never deleted by the pipeline.
type TrackedItem struct {
	ID             string            `json:"id"`
	ProductURL     string            `json:"product_url"`
	VendorID       string            `json:"vendor_id"`
	VendorName     string            `json:"vendor_name"`
	Family         IntegrationFamily `json:"family"`
	ExpectedName   string            `json:"expected_name"`
	ExpectedPrice  float64           `json:"expected_price"`
	InStock        bool              `json:"in_stock"`
	ScrapeDisabled bool              `json:"scrape_disabled"`
	LastCheckedAt  *time.Time        `json:"last_checked_at,omitempty"`
	LastVerifiedAt *time.Time        `json:"last_verified_at,omitempty"`
	LastError      string            `json:"last_error,omitempty"`
}

// Checkable reports whether Tier 1 should fetch this item at all.
func (t TrackedItem) Checkable() bool {
	return t.ProductURL != "" && t.Family != FamilyRestricted && !t.ScrapeDisabled
}
