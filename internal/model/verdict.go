package model

import "time"

// VerdictSource tags how a Tier-1 stock verdict was produced.
type VerdictSource string

const (
	SourceStorefront VerdictSource = "structured-storefront"
	SourceJSONAPI    VerdictSource = "json-api"
	SourceRestricted VerdictSource = "access-restricted"
	SourceError      VerdictSource = "error"
	SourceTimeout    VerdictSource = "timeout"
	SourceNoURL      VerdictSource = "no-url"
)

// StockVerdict is the immutable result of one Tier-1 fetch attempt.
// It is consumed by the batched status update and never persisted as-is.
type StockVerdict struct {
	ItemID     string        `json:"item_id"`
	InStock    bool          `json:"in_stock"`
	Source     VerdictSource `json:"source"`
	Err        string        `json:"error,omitempty"`
	HTTPStatus int           `json:"http_status,omitempty"`
	CheckedAt  time.Time     `json:"checked_at"`
}

// Action is the corrective operation Tier 2 applies to a listing.
type Action string

const (
	ActionKeep        Action = "KEEP"
	ActionMarkOOS     Action = "MARK_OOS"
	ActionMarkInStock Action = "MARK_INSTOCK"
	ActionUpdatePrice Action = "UPDATE_PRICE"
	ActionFlagWrong   Action = "FLAG_WRONG"
	ActionRemoveDead  Action = "REMOVE_DEAD"
)

// Valid reports whether a is one of the six known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionKeep, ActionMarkOOS, ActionMarkInStock,
		ActionUpdatePrice, ActionFlagWrong, ActionRemoveDead:
		return true
	}
	return false
}

// Destructive reports whether the action suppresses or flags a listing
// rather than keeping or correcting it. Destructive actions require
// stronger evidence from the classifier.
func (a Action) Destructive() bool {
	return a == ActionRemoveDead || a == ActionFlagWrong || a == ActionMarkOOS
}

// AIVerdict is the schema-constrained Tier-2 classification output.
// The action is never trusted blindly: it must be reconcilable with the
// structured fields (see verify.ReconcileAction).
type AIVerdict struct {
	ListingActive  bool     `json:"listing_active"`
	CorrectProduct bool     `json:"correct_product"`
	InStock        bool     `json:"in_stock"`
	DetectedPrice  *float64 `json:"detected_price"`
	DetectedName   string   `json:"detected_name"`
	PageTitle      string   `json:"page_title"`
	Action         Action   `json:"action"`
	Confidence     float64  `json:"confidence"`
	Reasoning      string   `json:"reasoning"`
}

// PriceDrift returns the relative difference between the detected and
// expected price, or 0 when either is unusable.
func (v AIVerdict) PriceDrift(expected float64) float64 {
	if v.DetectedPrice == nil || expected <= 0 {
		return 0
	}
	drift := (*v.DetectedPrice - expected) / expected
	if drift < 0 {
		return -drift
	}
	return drift
}
