// Package review implements the self-review learning loop: it reads
// the recent decision log, asks the classifier to critique its own
// output, and persists accepted heuristics as learning notes.
package review

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/peptide-index/stockwatch/pkg/anthropic"

	"github.com/peptide-index/stockwatch/internal/metrics"
	"github.com/peptide-index/stockwatch/internal/model"
	"github.com/peptide-index/stockwatch/internal/resilience"
	"github.com/peptide-index/stockwatch/internal/store"
)

// Options tunes one Reviewer.
type Options struct {
	MinDecisions  int // below this the run is a no-op
	RecentWindow  int // how many recent decisions to review
	MaxNotes      int // cap on accepted notes per run
	MinNoteLength int // trimmed candidates shorter than this are rejected
}

func (o Options) withDefaults() Options {
	if o.MinDecisions <= 0 {
		o.MinDecisions = 10
	}
	if o.RecentWindow <= 0 {
		o.RecentWindow = 100
	}
	if o.MaxNotes <= 0 {
		o.MaxNotes = 3
	}
	if o.MinNoteLength <= 0 {
		o.MinNoteLength = 20
	}
	return o
}

// Reviewer runs the weekly self-review cycle.
type Reviewer struct {
	store     store.Store
	client    anthropic.Client
	model     string
	maxTokens int64
	retry     resilience.RetryConfig
	opts      Options
}

func New(st store.Store, client anthropic.Client, modelID string, maxTokens int64, opts Options) *Reviewer {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("anthropic", "self-review")
	return &Reviewer{
		store:     st,
		client:    client,
		model:     modelID,
		maxTokens: maxTokens,
		retry:     retry,
		opts:      opts.withDefaults(),
	}
}

const reviewSystemPrompt = `You review the recent decisions of an automated inventory verifier for a peptide product catalog. Your goal is to extract durable heuristics that would have prevented its mistakes, especially decisions a human later overrode and decisions made with low confidence.

Respond with ONLY a JSON object, no prose and no markdown fences:
{
  "notes": ["..."],   // 1 to 3 heuristics, each one full sentence, specific and actionable
  "summary": "..."    // two or three sentences on overall decision quality
}

Good heuristics name a concrete page pattern, vendor behavior, or evidence threshold. Do not restate the action rules the verifier already follows, and do not propose heuristics that merely repeat an existing one.`

// reviewStats aggregates the decision window for the review prompt.
type reviewStats struct {
	Total         int
	Overridden    int
	LowConfidence int
	Destructive   int
	ByAction      map[model.Action]int
}

func aggregate(decisions []model.Decision) reviewStats {
	stats := reviewStats{Total: len(decisions), ByAction: map[model.Action]int{}}
	for _, d := range decisions {
		if d.WasOverridden {
			stats.Overridden++
		}
		if d.Confidence < 0.7 {
			stats.LowConfidence++
		}
		if d.Action.Destructive() {
			stats.Destructive++
		}
		stats.ByAction[d.Action]++
	}
	return stats
}

func buildReviewPrompt(decisions []model.Decision, stats reviewStats, notes []model.LearningNote) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Reviewing the %d most recent decisions.\n", stats.Total)
	fmt.Fprintf(&b, "Overridden by a human: %d\n", stats.Overridden)
	fmt.Fprintf(&b, "Low confidence (<0.7): %d\n", stats.LowConfidence)
	fmt.Fprintf(&b, "Destructive actions (MARK_OOS/FLAG_WRONG/REMOVE_DEAD): %d\n", stats.Destructive)
	b.WriteString("Action frequency:\n")
	actions := make([]string, 0, len(stats.ByAction))
	for a := range stats.ByAction {
		actions = append(actions, string(a))
	}
	sort.Strings(actions)
	for _, a := range actions {
		fmt.Fprintf(&b, "  %s: %d\n", a, stats.ByAction[model.Action(a)])
	}

	if len(notes) > 0 {
		b.WriteString("\nExisting heuristics (do not repeat these):\n")
		for _, n := range notes {
			fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(n.Text))
		}
	}

	b.WriteString("\nDecisions:\n")
	for _, d := range decisions {
		flag := ""
		if d.WasOverridden {
			flag = " [OVERRIDDEN]"
		}
		fmt.Fprintf(&b, "- %s | %s | %s (%.2f)%s: %s\n",
			d.VendorName, d.DetectedName, d.Action, d.Confidence, flag, d.Reasoning)
	}
	return b.String()
}

// reviewResponse is the schema the reviewer prompt requires.
type reviewResponse struct {
	Notes   []string `json:"notes"`
	Summary string   `json:"summary"`
}

// Run executes one self-review cycle. With fewer than MinDecisions
// logged decisions it is a no-op.
func (r *Reviewer) Run(ctx context.Context, triggeredBy string) (model.RunSummary, error) {
	start := time.Now()

	total, err := r.store.CountDecisions(ctx)
	if err != nil {
		return model.RunSummary{}, eris.Wrap(err, "review: count decisions")
	}
	if total < r.opts.MinDecisions {
		zap.L().Info("self-review skipped, not enough decisions",
			zap.Int("decisions", total),
			zap.Int("required", r.opts.MinDecisions),
		)
		return model.RunSummary{
			Success:     true,
			Kind:        model.RunReview,
			Counts:      map[string]int{"decisions": total, "notes_added": 0},
			DurationMS:  time.Since(start).Milliseconds(),
			TriggeredBy: triggeredBy,
			Timestamp:   start.UTC(),
		}, nil
	}

	decisions, err := r.store.ListRecentDecisions(ctx, r.opts.RecentWindow)
	if err != nil {
		return model.RunSummary{}, eris.Wrap(err, "review: list decisions")
	}
	existing, err := r.store.ListLearningNotes(ctx)
	if err != nil {
		return model.RunSummary{}, eris.Wrap(err, "review: list learning notes")
	}

	stats := aggregate(decisions)
	resp, err := resilience.DoVal(ctx, r.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return r.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     r.model,
			MaxTokens: r.maxTokens,
			System:    anthropic.BuildCachedSystemBlocks(reviewSystemPrompt),
			Messages: []anthropic.Message{
				{Role: "user", Content: buildReviewPrompt(decisions, stats, existing)},
			},
		})
	})
	if err != nil {
		return model.RunSummary{}, eris.Wrap(err, "review: generate heuristics")
	}
	resp.Usage.LogCost(r.model, "self-review")
	metrics.RecordTokens(r.model, resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var parsed reviewResponse
	if err := json.Unmarshal([]byte(cleanJSON(resp.Text())), &parsed); err != nil {
		return model.RunSummary{}, eris.Wrap(err, "review: parse response")
	}

	accepted := FilterCandidates(parsed.Notes, existing, r.opts.MinNoteLength, r.opts.MaxNotes)
	added := 0
	for _, note := range accepted {
		if err := r.store.AddLearningNote(ctx, note, "self-review"); err != nil {
			zap.L().Error("persisting learning note failed", zap.Error(err))
			continue
		}
		metrics.LearningNotes.Inc()
		added++
		zap.L().Info("learning note added", zap.String("note", note))
	}

	duration := time.Since(start)
	metrics.RunDuration.WithLabelValues(string(model.RunReview)).Observe(duration.Seconds())

	run := model.RunLog{
		Kind:        model.RunReview,
		Checked:     len(decisions),
		Duration:    duration,
		DurationMS:  duration.Milliseconds(),
		TriggeredBy: triggeredBy,
	}
	if err := r.store.LogRun(ctx, run); err != nil {
		zap.L().Error("recording review run failed", zap.Error(err))
	}

	zap.L().Info("self-review finished",
		zap.Int("decisions_reviewed", len(decisions)),
		zap.Int("notes_proposed", len(parsed.Notes)),
		zap.Int("notes_added", added),
		zap.String("summary", parsed.Summary),
	)

	return model.RunSummary{
		Success: true,
		Kind:    model.RunReview,
		Counts: map[string]int{
			"decisions":      len(decisions),
			"overridden":     stats.Overridden,
			"low_confidence": stats.LowConfidence,
			"destructive":    stats.Destructive,
			"notes_proposed": len(parsed.Notes),
			"notes_added":    added,
		},
		DurationMS:  duration.Milliseconds(),
		TriggeredBy: triggeredBy,
		Timestamp:   start.UTC(),
	}, nil
}

// FilterCandidates applies the acceptance rules: trimmed length above
// the minimum, not a substring of any existing note, not a duplicate of
// an earlier candidate, capped at maxNotes. Deduplication happens only
// here, at generation time; persisted notes are never revised.
func FilterCandidates(candidates []string, existing []model.LearningNote, minLength, maxNotes int) []string {
	var accepted []string
	for _, c := range candidates {
		trimmed := strings.TrimSpace(c)
		if len(trimmed) <= minLength {
			continue
		}
		if containsNote(existing, accepted, trimmed) {
			continue
		}
		accepted = append(accepted, trimmed)
		if len(accepted) == maxNotes {
			break
		}
	}
	return accepted
}

func containsNote(existing []model.LearningNote, accepted []string, candidate string) bool {
	lower := strings.ToLower(candidate)
	for _, n := range existing {
		if strings.Contains(strings.ToLower(n.Text), lower) {
			return true
		}
	}
	for _, a := range accepted {
		if strings.Contains(strings.ToLower(a), lower) {
			return true
		}
	}
	return false
}

// cleanJSON strips markdown fences and surrounding prose from a model
// response.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	return strings.TrimSpace(s)
}
