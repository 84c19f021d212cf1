// Package stockcheck implements the deterministic Tier-1 stock
// classifier over vendor integration families.
package stockcheck

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/peptide-index/stockwatch/internal/model"
	"github.com/peptide-index/stockwatch/internal/scrape"
)

// PageFetcher is the slice of the scrape.Fetcher the checker needs.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*scrape.Result, error)
}

// Checker classifies one tracked item per call. Every code path returns
// a verdict; transport and parse failures are folded into `error`
// verdicts with in-stock left true, because absence is only ever
// declared on positive evidence.
type Checker struct {
	fetcher PageFetcher
}

// New creates a Checker.
func New(fetcher PageFetcher) *Checker {
	return &Checker{fetcher: fetcher}
}

// Check produces exactly one StockVerdict for item.
func (c *Checker) Check(ctx context.Context, item model.TrackedItem) model.StockVerdict {
	now := time.Now()

	switch {
	case item.Family == model.FamilyRestricted:
		// No network call: these vendors cannot be scraped and their
		// items are treated as always available.
		return model.StockVerdict{ItemID: item.ID, InStock: true, Source: model.SourceRestricted, CheckedAt: now}
	case item.ProductURL == "":
		return model.StockVerdict{ItemID: item.ID, InStock: true, Source: model.SourceNoURL, CheckedAt: now}
	case item.Family == model.FamilyJSONAPI:
		return c.checkJSONAPI(ctx, item, now)
	default:
		return c.checkStorefront(ctx, item, now)
	}
}

func (c *Checker) checkStorefront(ctx context.Context, item model.TrackedItem, now time.Time) model.StockVerdict {
	res, err := c.fetcher.Fetch(ctx, item.ProductURL)
	if err != nil {
		return errorVerdict(item.ID, model.SourceError, err, 0, now)
	}
	if res.TimedOut {
		return model.StockVerdict{ItemID: item.ID, InStock: true, Source: model.SourceTimeout, Err: "fetch timed out", CheckedAt: now}
	}

	switch {
	case res.StatusCode == http.StatusNotFound:
		// A 404 is positive evidence the listing was removed.
		return model.StockVerdict{
			ItemID: item.ID, InStock: false, Source: model.SourceStorefront,
			Err: "product page not found", HTTPStatus: res.StatusCode, CheckedAt: now,
		}
	case res.StatusCode >= 400:
		// Ambiguous transport-level failure: never flip stock on it.
		return model.StockVerdict{
			ItemID: item.ID, InStock: true, Source: model.SourceError,
			Err: "http status " + res.Status(), HTTPStatus: res.StatusCode, CheckedAt: now,
		}
	}

	if sig, hit := FindAbsenceSignal(res.Body); hit {
		zap.L().Debug("stockcheck: absence signal",
			zap.String("item", item.ID),
			zap.String("signal", sig),
		)
		return model.StockVerdict{ItemID: item.ID, InStock: false, Source: model.SourceStorefront, HTTPStatus: res.StatusCode, CheckedAt: now}
	}

	return model.StockVerdict{ItemID: item.ID, InStock: true, Source: model.SourceStorefront, HTTPStatus: res.StatusCode, CheckedAt: now}
}

// productEnvelope mirrors the conventional structured product endpoint.
type productEnvelope struct {
	Product struct {
		PublishedAt *string `json:"published_at"`
		Variants    []struct {
			Available bool `json:"available"`
		} `json:"variants"`
	} `json:"product"`
}

func (c *Checker) checkJSONAPI(ctx context.Context, item model.TrackedItem, now time.Time) model.StockVerdict {
	res, err := c.fetcher.Fetch(ctx, JSONEndpoint(item.ProductURL))
	if err != nil {
		return errorVerdict(item.ID, model.SourceError, err, 0, now)
	}
	if res.TimedOut {
		return model.StockVerdict{ItemID: item.ID, InStock: true, Source: model.SourceTimeout, Err: "fetch timed out", CheckedAt: now}
	}

	switch {
	case res.StatusCode == http.StatusNotFound:
		return model.StockVerdict{
			ItemID: item.ID, InStock: false, Source: model.SourceJSONAPI,
			Err: "product endpoint not found", HTTPStatus: res.StatusCode, CheckedAt: now,
		}
	case res.StatusCode >= 400:
		return model.StockVerdict{
			ItemID: item.ID, InStock: true, Source: model.SourceError,
			Err: "http status " + res.Status(), HTTPStatus: res.StatusCode, CheckedAt: now,
		}
	}

	if ct := res.ContentType; ct != "" && !strings.Contains(ct, "json") {
		return model.StockVerdict{
			ItemID: item.ID, InStock: true, Source: model.SourceError,
			Err: "unexpected content type " + ct, HTTPStatus: res.StatusCode, CheckedAt: now,
		}
	}

	var env productEnvelope
	if err := json.Unmarshal(res.Body, &env); err != nil {
		return errorVerdict(item.ID, model.SourceError, err, res.StatusCode, now)
	}

	if env.Product.PublishedAt == nil || *env.Product.PublishedAt == "" {
		return model.StockVerdict{
			ItemID: item.ID, InStock: false, Source: model.SourceJSONAPI,
			Err: "product unpublished", HTTPStatus: res.StatusCode, CheckedAt: now,
		}
	}

	for _, v := range env.Product.Variants {
		if v.Available {
			return model.StockVerdict{ItemID: item.ID, InStock: true, Source: model.SourceJSONAPI, HTTPStatus: res.StatusCode, CheckedAt: now}
		}
	}
	return model.StockVerdict{ItemID: item.ID, InStock: false, Source: model.SourceJSONAPI, HTTPStatus: res.StatusCode, CheckedAt: now}
}

func errorVerdict(itemID string, source model.VerdictSource, err error, status int, now time.Time) model.StockVerdict {
	return model.StockVerdict{
		ItemID: itemID, InStock: true, Source: source,
		Err: err.Error(), HTTPStatus: status, CheckedAt: now,
	}
}

// JSONEndpoint derives the conventional structured product endpoint
// from a product page URL: the path with a .json suffix, query dropped.
func JSONEndpoint(pageURL string) string {
	u := pageURL
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	u = strings.TrimRight(u, "/")
	if strings.HasSuffix(u, ".json") {
		return u
	}
	return u + ".json"
}

// Tally aggregates verdicts into run-level counters.
type Tally struct {
	Checked    int
	InStock    int
	OutOfStock int
	Errored    int
}

// TallyVerdicts counts verdicts by outcome category. Timeouts and
// transport errors both land in Errored; restricted and no-url verdicts
// count as checked and in stock, matching the always-available policy.
func TallyVerdicts(verdicts []model.StockVerdict) Tally {
	var t Tally
	for _, v := range verdicts {
		t.Checked++
		if v.Source == model.SourceError || v.Source == model.SourceTimeout {
			t.Errored++
			continue
		}
		if v.InStock {
			t.InStock++
		} else {
			t.OutOfStock++
		}
	}
	return t
}
