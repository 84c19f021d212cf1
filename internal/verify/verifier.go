package verify

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/peptide-index/stockwatch/internal/metrics"
	"github.com/peptide-index/stockwatch/internal/model"
	"github.com/peptide-index/stockwatch/internal/scrape"
	"github.com/peptide-index/stockwatch/internal/store"
	"github.com/peptide-index/stockwatch/internal/worker"
)

// PageFetcher fetches one product page. scrape.Fetcher satisfies it.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*scrape.Result, error)
}

// Options tunes one Verifier.
type Options struct {
	Workers         int     // classifier-bound worker pool size
	BacklogCap      int     // max items examined per run
	MaxExcerptChars int     // bound on the classifier input excerpt
	LogExcerptChars int     // bound on the excerpt stored in the decision log
	PriceTolerance  float64 // relative drift above which UPDATE_PRICE is accepted
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.BacklogCap <= 0 {
		o.BacklogCap = 50
	}
	if o.MaxExcerptChars <= 0 {
		o.MaxExcerptChars = 3000
	}
	if o.LogExcerptChars <= 0 {
		o.LogExcerptChars = 1500
	}
	if o.PriceTolerance <= 0 {
		o.PriceTolerance = 0.10
	}
	return o
}

// Verifier runs the Tier-2 verification job: build the priority
// backlog, then fetch → excerpt → classify → apply → log per item.
type Verifier struct {
	store      store.Store
	fetcher    PageFetcher
	classifier Classifier
	opts       Options
}

func New(st store.Store, fetcher PageFetcher, classifier Classifier, opts Options) *Verifier {
	return &Verifier{store: st, fetcher: fetcher, classifier: classifier, opts: opts.withDefaults()}
}

type outcomeKind int

const (
	outcomeApplied outcomeKind = iota
	outcomeSkipped             // fetch failed; item stays eligible, nothing logged
	outcomeErrored             // classifier or datastore failure
)

type outcome struct {
	itemID string
	kind   outcomeKind
	action model.Action
}

// Run executes one verification pass. Only a failure to list the
// catalog is fatal; per-item failures are contained.
func (v *Verifier) Run(ctx context.Context, triggeredBy string) (model.RunSummary, error) {
	start := time.Now()

	items, err := v.store.ListTrackedItems(ctx)
	if err != nil {
		return model.RunSummary{}, eris.Wrap(err, "verify: list tracked items")
	}
	backlog := model.BuildBacklog(items, v.opts.BacklogCap)

	notes, err := v.store.ListLearningNotes(ctx)
	if err != nil {
		// Notes sharpen the classifier but are not required for a run.
		zap.L().Warn("loading learning notes failed, verifying without them", zap.Error(err))
		notes = nil
	}

	zap.L().Info("verification run starting",
		zap.Int("catalog", len(items)),
		zap.Int("backlog", len(backlog)),
		zap.Int("learning_notes", len(notes)),
		zap.String("triggered_by", triggeredBy),
	)

	outcomes := worker.Map(ctx, v.opts.Workers, backlog, func(ctx context.Context, item model.TrackedItem) outcome {
		return v.verifyOne(ctx, item, notes)
	})

	counts := map[string]int{"examined": len(backlog)}
	var inStock, outOfStock, errored int
	for _, o := range outcomes {
		switch o.kind {
		case outcomeSkipped:
			counts["skipped"]++
		case outcomeErrored:
			counts["errored"]++
			errored++
		case outcomeApplied:
			counts["applied"]++
			switch o.action {
			case model.ActionKeep:
				counts["kept"]++
			default:
				counts["corrected"]++
			}
			switch o.action {
			case model.ActionMarkOOS, model.ActionRemoveDead:
				outOfStock++
			case model.ActionMarkInStock, model.ActionUpdatePrice, model.ActionKeep:
				inStock++
			}
		}
	}

	duration := time.Since(start)
	metrics.RunDuration.WithLabelValues(string(model.RunVerify)).Observe(duration.Seconds())

	run := model.RunLog{
		Kind:        model.RunVerify,
		Checked:     len(backlog),
		InStock:     inStock,
		OutOfStock:  outOfStock,
		Errored:     errored,
		Duration:    duration,
		DurationMS:  duration.Milliseconds(),
		TriggeredBy: triggeredBy,
	}
	if err := v.store.LogRun(ctx, run); err != nil {
		zap.L().Error("recording verification run failed", zap.Error(err))
	}

	zap.L().Info("verification run finished",
		zap.Int("examined", counts["examined"]),
		zap.Int("applied", counts["applied"]),
		zap.Int("corrected", counts["corrected"]),
		zap.Int("skipped", counts["skipped"]),
		zap.Int("errored", counts["errored"]),
		zap.Duration("duration", duration),
	)

	return model.RunSummary{
		Success:     true,
		Kind:        model.RunVerify,
		Counts:      counts,
		DurationMS:  duration.Milliseconds(),
		TriggeredBy: triggeredBy,
		Timestamp:   start.UTC(),
	}, nil
}

func (v *Verifier) verifyOne(ctx context.Context, item model.TrackedItem, notes []model.LearningNote) outcome {
	res, err := v.fetcher.Fetch(ctx, item.ProductURL)
	if err != nil || res == nil || res.TimedOut || len(res.Body) == 0 {
		// Transport failure is not evidence about the listing. Skip
		// without logging a decision; the item stays in the backlog.
		metrics.SkippedFetches.Inc()
		zap.L().Debug("fetch failed, skipping item",
			zap.String("item_id", item.ID),
			zap.String("url", item.ProductURL),
			zap.Error(err),
		)
		return outcome{itemID: item.ID, kind: outcomeSkipped}
	}

	excerpt := scrape.Excerpt(res.Body, v.opts.MaxExcerptChars)
	verdict, err := v.classifier.Classify(ctx, ClassifyRequest{
		Item:        item,
		FetchStatus: res.Status(),
		Excerpt:     excerpt,
		Notes:       notes,
	})
	if err != nil {
		// Console-level only: no decision log entry for a classifier
		// failure, the item remains queued for the next run.
		metrics.ClassifierErrors.Inc()
		zap.L().Warn("classification failed",
			zap.String("item_id", item.ID),
			zap.String("vendor", item.VendorName),
			zap.Error(err),
		)
		return outcome{itemID: item.ID, kind: outcomeErrored}
	}

	verdict.Action = ReconcileAction(verdict, item.ExpectedPrice, v.opts.PriceTolerance)

	if err := v.store.ApplyAIAction(ctx, item.ID, verdict); err != nil {
		zap.L().Error("applying action failed",
			zap.String("item_id", item.ID),
			zap.String("action", string(verdict.Action)),
			zap.Error(err),
		)
		return outcome{itemID: item.ID, kind: outcomeErrored}
	}

	if _, err := v.store.LogDecision(ctx, decisionFrom(item, verdict, excerpt, v.opts.LogExcerptChars)); err != nil {
		zap.L().Error("logging decision failed", zap.String("item_id", item.ID), zap.Error(err))
	}

	metrics.ActionsTotal.WithLabelValues(string(verdict.Action)).Inc()
	zap.L().Info("item verified",
		zap.String("item_id", item.ID),
		zap.String("vendor", item.VendorName),
		zap.String("action", string(verdict.Action)),
		zap.Float64("confidence", verdict.Confidence),
	)
	return outcome{itemID: item.ID, kind: outcomeApplied, action: verdict.Action}
}

func decisionFrom(item model.TrackedItem, verdict model.AIVerdict, excerpt string, maxChars int) model.Decision {
	if len(excerpt) > maxChars {
		cut := maxChars
		// Keep the stored excerpt valid UTF-8.
		for cut > 0 && excerpt[cut]&0xC0 == 0x80 {
			cut--
		}
		excerpt = excerpt[:cut]
	}
	return model.Decision{
		ItemID:        item.ID,
		VendorName:    item.VendorName,
		ProductURL:    item.ProductURL,
		Action:        verdict.Action,
		Confidence:    verdict.Confidence,
		Reasoning:     verdict.Reasoning,
		DetectedPrice: verdict.DetectedPrice,
		DetectedName:  verdict.DetectedName,
		PageTitle:     verdict.PageTitle,
		Excerpt:       excerpt,
	}
}
