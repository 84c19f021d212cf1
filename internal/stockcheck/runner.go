package stockcheck

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/peptide-index/stockwatch/internal/metrics"
	"github.com/peptide-index/stockwatch/internal/model"
	"github.com/peptide-index/stockwatch/internal/store"
	"github.com/peptide-index/stockwatch/internal/worker"
)

// Runner drives a Tier-1 sweep over the full trackable catalog.
type Runner struct {
	store   store.Store
	checker *Checker
	workers int
}

// NewRunner creates a Runner. workers bounds concurrent fetches.
func NewRunner(st store.Store, checker *Checker, workers int) *Runner {
	if workers <= 0 {
		workers = 4
	}
	return &Runner{store: st, checker: checker, workers: workers}
}

// Run checks every checkable item and batch-applies the verdicts. Only
// a failure to list the catalog is fatal; a datastore failure while
// applying is logged and the run record is still written.
func (r *Runner) Run(ctx context.Context, triggeredBy string) (model.RunSummary, error) {
	start := time.Now()

	items, err := r.store.ListTrackedItems(ctx)
	if err != nil {
		return model.RunSummary{}, eris.Wrap(err, "stockcheck: list tracked items")
	}

	queue := make([]model.TrackedItem, 0, len(items))
	for _, it := range items {
		if it.Checkable() {
			queue = append(queue, it)
		}
	}

	zap.L().Info("stock check starting",
		zap.Int("catalog", len(items)),
		zap.Int("queue", len(queue)),
		zap.String("triggered_by", triggeredBy),
	)

	verdicts := worker.Map(ctx, r.workers, queue, r.checker.Check)

	for _, v := range verdicts {
		result := "in_stock"
		if !v.InStock {
			result = "out_of_stock"
		}
		if v.Source == model.SourceError || v.Source == model.SourceTimeout {
			result = "error"
		}
		metrics.ChecksTotal.WithLabelValues(string(v.Source), result).Inc()
	}

	if err := r.store.UpdateStockStatus(ctx, verdicts); err != nil {
		zap.L().Error("applying stock verdicts failed", zap.Error(err))
	}

	tally := TallyVerdicts(verdicts)
	duration := time.Since(start)
	metrics.RunDuration.WithLabelValues(string(model.RunCheck)).Observe(duration.Seconds())

	run := model.RunLog{
		Kind:        model.RunCheck,
		Checked:     tally.Checked,
		InStock:     tally.InStock,
		OutOfStock:  tally.OutOfStock,
		Errored:     tally.Errored,
		Duration:    duration,
		DurationMS:  duration.Milliseconds(),
		TriggeredBy: triggeredBy,
	}
	if err := r.store.LogRun(ctx, run); err != nil {
		zap.L().Error("recording stock check run failed", zap.Error(err))
	}

	zap.L().Info("stock check finished",
		zap.Int("checked", tally.Checked),
		zap.Int("in_stock", tally.InStock),
		zap.Int("out_of_stock", tally.OutOfStock),
		zap.Int("errored", tally.Errored),
		zap.Duration("duration", duration),
	)

	return model.RunSummary{
		Success: true,
		Kind:    model.RunCheck,
		Counts: map[string]int{
			"checked":      tally.Checked,
			"in_stock":     tally.InStock,
			"out_of_stock": tally.OutOfStock,
			"errored":      tally.Errored,
			"skipped":      len(items) - len(queue),
		},
		DurationMS:  duration.Milliseconds(),
		TriggeredBy: triggeredBy,
		Timestamp:   start.UTC(),
	}, nil
}
