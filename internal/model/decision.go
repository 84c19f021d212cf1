package model

import "time"

// Decision is one append-only Tier-2 decision log entry. Only
// WasOverridden is ever mutated, by a human correcting the action.
type Decision struct {
	ID            string    `json:"id"`
	ItemID        string    `json:"item_id"`
	VendorName    string    `json:"vendor_name"`
	ProductURL    string    `json:"product_url"`
	Action        Action    `json:"action"`
	Confidence    float64   `json:"confidence"`
	Reasoning     string    `json:"reasoning"`
	DetectedPrice *float64  `json:"detected_price,omitempty"`
	DetectedName  string    `json:"detected_name,omitempty"`
	PageTitle     string    `json:"page_title,omitempty"`
	Excerpt       string    `json:"excerpt,omitempty"`
	WasOverridden bool      `json:"was_overridden"`
	CreatedAt     time.Time `json:"created_at"`
}

// LearningNote is a persisted natural-language heuristic injected into
// every subsequent Tier-2 classifier context, in creation order.
type LearningNote struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// RunKind names which pipeline job a run record belongs to.
type RunKind string

const (
	RunCheck  RunKind = "check"  // Tier-1 deterministic sweep
	RunVerify RunKind = "verify" // Tier-2 AI verification
	RunReview RunKind = "review" // self-review learning loop
)

// RunLog is a write-once record of one pipeline execution.
type RunLog struct {
	ID          string        `json:"id"`
	Kind        RunKind       `json:"kind"`
	Checked     int           `json:"checked"`
	InStock     int           `json:"in_stock"`
	OutOfStock  int           `json:"out_of_stock"`
	Errored     int           `json:"errored"`
	Duration    time.Duration `json:"-"`
	DurationMS  int64         `json:"duration_ms"`
	TriggeredBy string        `json:"triggered_by"`
	CreatedAt   time.Time     `json:"created_at"`
}

// RunSummary is the JSON body every job endpoint returns.
type RunSummary struct {
	Success     bool           `json:"success"`
	Kind        RunKind        `json:"kind"`
	Counts      map[string]int `json:"counts"`
	DurationMS  int64          `json:"duration_ms"`
	TriggeredBy string         `json:"triggered_by"`
	Timestamp   time.Time      `json:"timestamp"`
}
