// Package verify implements Tier-2 AI verification: fetch, excerpt,
// schema-constrained classification, action reconciliation, and the
// decision log.
package verify

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/peptide-index/stockwatch/pkg/anthropic"

	"github.com/peptide-index/stockwatch/internal/metrics"
	"github.com/peptide-index/stockwatch/internal/model"
	"github.com/peptide-index/stockwatch/internal/resilience"
)

// ClassifyRequest carries one item's evidence to the classifier.
type ClassifyRequest struct {
	Item        model.TrackedItem
	FetchStatus string
	Excerpt     string
	Notes       []model.LearningNote
}

// Classifier is the schema-constrained classification capability. Any
// backend that yields a valid AIVerdict can stand in for the Anthropic
// implementation.
type Classifier interface {
	Classify(ctx context.Context, req ClassifyRequest) (model.AIVerdict, error)
}

// AnthropicClassifier classifies page excerpts with the Anthropic API,
// with retries on transient failures and a circuit breaker so a
// degraded API fails the run fast instead of burning the whole backlog.
type AnthropicClassifier struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	retry     resilience.RetryConfig
	breaker   *resilience.CircuitBreaker
}

// NewAnthropicClassifier builds the production classifier.
func NewAnthropicClassifier(client anthropic.Client, modelID string, maxTokens int64) *AnthropicClassifier {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("anthropic", "classify")
	return &AnthropicClassifier{
		client:    client,
		model:     modelID,
		maxTokens: maxTokens,
		retry:     retry,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     time.Minute,
		}),
	}
}

func (c *AnthropicClassifier) Classify(ctx context.Context, req ClassifyRequest) (model.AIVerdict, error) {
	temp := 0.0
	msgReq := anthropic.MessageRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		System:      buildSystemBlocks(req.Notes),
		Temperature: &temp,
		Messages: []anthropic.Message{
			{Role: "user", Content: buildUserPrompt(req.Item, req.FetchStatus, req.Excerpt)},
		},
	}

	start := time.Now()
	resp, err := resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			return c.client.CreateMessage(ctx, msgReq)
		})
	})
	metrics.ClassifierLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return model.AIVerdict{}, eris.Wrap(err, "verify: classify")
	}

	resp.Usage.LogCost(c.model, "verify")
	metrics.RecordTokens(c.model, resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var verdict model.AIVerdict
	if err := json.Unmarshal([]byte(cleanJSON(resp.Text())), &verdict); err != nil {
		return model.AIVerdict{}, eris.Wrap(err, "verify: parse verdict")
	}
	if verdict.Confidence < 0 {
		verdict.Confidence = 0
	}
	if verdict.Confidence > 1 {
		verdict.Confidence = 1
	}
	return verdict, nil
}

// cleanJSON strips markdown fences and any prose around the first JSON
// object in a model response.
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

// ReconcileAction validates the classifier's chosen action against its
// own reported evidence. An action the evidence cannot support is
// coerced to KEEP rather than trusted, so an inconsistent response can
// never produce a destructive correction.
func ReconcileAction(v model.AIVerdict, expectedPrice, priceTolerance float64) model.Action {
	if !v.Action.Valid() {
		return model.ActionKeep
	}
	switch v.Action {
	case model.ActionRemoveDead:
		if !v.ListingActive {
			return v.Action
		}
	case model.ActionFlagWrong:
		if v.ListingActive && !v.CorrectProduct {
			return v.Action
		}
	case model.ActionMarkOOS:
		if v.ListingActive && v.CorrectProduct && !v.InStock {
			return v.Action
		}
	case model.ActionMarkInStock:
		if v.ListingActive && v.CorrectProduct && v.InStock {
			return v.Action
		}
	case model.ActionUpdatePrice:
		if v.ListingActive && v.CorrectProduct && v.InStock &&
			v.DetectedPrice != nil && *v.DetectedPrice > 0 &&
			v.PriceDrift(expectedPrice) > priceTolerance {
			return v.Action
		}
	case model.ActionKeep:
		return v.Action
	}
	return model.ActionKeep
}
