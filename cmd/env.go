package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/peptide-index/stockwatch/pkg/anthropic"

	"github.com/peptide-index/stockwatch/internal/review"
	"github.com/peptide-index/stockwatch/internal/scrape"
	"github.com/peptide-index/stockwatch/internal/stockcheck"
	"github.com/peptide-index/stockwatch/internal/store"
	"github.com/peptide-index/stockwatch/internal/verify"
)

// pipelineEnv wires the stores, fetchers, and jobs a command needs.
// Commands build only the parts they use via the init helpers below.
type pipelineEnv struct {
	store    store.Store
	checker  *stockcheck.Runner
	verifier *verify.Verifier
	reviewer *review.Reviewer
}

func (e *pipelineEnv) Close() {
	if e.store != nil {
		_ = e.store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "", "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.Options{
			MaxConns:        cfg.Store.MaxConns,
			MinConns:        cfg.Store.MinConns,
			UpdateChunkSize: cfg.Scrape.UpdateChunkSize,
		})
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func initFetcher() *scrape.Fetcher {
	limiter := scrape.NewHostLimiter(time.Duration(cfg.Scrape.HostIntervalMS) * time.Millisecond)
	return scrape.NewFetcher(scrape.Options{
		UserAgent:    cfg.Scrape.UserAgent,
		Timeout:      time.Duration(cfg.Scrape.TimeoutSecs) * time.Second,
		MaxBodyBytes: cfg.Scrape.MaxBodyBytes,
	}, limiter)
}

// initPipeline builds the full environment used by serve and schedule.
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}

	fetcher := initFetcher()
	client := anthropic.NewClient(cfg.Anthropic.Key)

	return &pipelineEnv{
		store:   st,
		checker: stockcheck.NewRunner(st, stockcheck.New(fetcher), cfg.Scrape.CheckWorkers),
		verifier: verify.New(st, fetcher,
			verify.NewAnthropicClassifier(client, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens),
			verify.Options{
				Workers:         cfg.Verify.Workers,
				BacklogCap:      cfg.Verify.BacklogCap,
				MaxExcerptChars: cfg.Scrape.MaxExcerptChars,
				PriceTolerance:  cfg.Verify.PriceTolerance,
			}),
		reviewer: review.New(st, client, cfg.Anthropic.ReviewModel, cfg.Anthropic.MaxTokens,
			review.Options{
				MinDecisions:  cfg.Review.MinDecisions,
				RecentWindow:  cfg.Review.RecentWindow,
				MaxNotes:      cfg.Review.MaxNotes,
				MinNoteLength: cfg.Review.MinNoteLength,
			}),
	}, nil
}
