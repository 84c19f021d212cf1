// Package store persists tracked items, decisions, learning notes, and
// run logs. All catalog mutations go through privileged stored
// procedures so concurrent workers cannot race on schema invariants.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/peptide-index/stockwatch/internal/model"
)

// ErrDecisionNotFound is returned by MarkDecisionOverridden when no
// decision log entry has the given ID.
var ErrDecisionNotFound = eris.New("store: decision not found")

// Store defines the persistence interface for the verification pipeline.
type Store interface {
	// Tracked items
	ListTrackedItems(ctx context.Context) ([]model.TrackedItem, error)

	// Tier-1 batched status updates (update_price_stock_status).
	// Verdicts are applied in chunks; a failed chunk is logged and the
	// remaining chunks still attempt to apply.
	UpdateStockStatus(ctx context.Context, verdicts []model.StockVerdict) error

	// Tier-2 action application (apply_ai_action). Idempotent.
	ApplyAIAction(ctx context.Context, itemID string, verdict model.AIVerdict) error

	// Decision log (log_ai_decision); append-only.
	LogDecision(ctx context.Context, d model.Decision) (string, error)
	ListRecentDecisions(ctx context.Context, limit int) ([]model.Decision, error)
	CountDecisions(ctx context.Context) (int, error)
	MarkDecisionOverridden(ctx context.Context, decisionID string) error

	// Learning notes (add_learning_note); append-only, creation order.
	AddLearningNote(ctx context.Context, text, source string) error
	ListLearningNotes(ctx context.Context) ([]model.LearningNote, error)

	// Run observability (log_inventory_run); write-once.
	LogRun(ctx context.Context, run model.RunLog) error
	ListRuns(ctx context.Context, limit int) ([]model.RunLog, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
