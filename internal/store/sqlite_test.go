package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peptide-index/stockwatch/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "stockwatch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seedCatalog(t *testing.T, s *SQLiteStore) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.SeedVendor(ctx, model.Vendor{ID: "vendor-1", Name: "Amino Asylum", Family: model.FamilyStorefront}))
	require.NoError(t, s.SeedVendor(ctx, model.Vendor{ID: "vendor-2", Name: "Swiss Chems", Family: model.FamilyJSONAPI}))
	require.NoError(t, s.SeedItem(ctx, model.TrackedItem{
		ID: "item-1", VendorID: "vendor-1", ProductURL: "https://example.com/p/bpc-157",
		ExpectedName: "BPC-157 10mg", ExpectedPrice: 44.99, InStock: true,
	}))
	require.NoError(t, s.SeedItem(ctx, model.TrackedItem{
		ID: "item-2", VendorID: "vendor-2", ProductURL: "https://example.com/p/tb-500",
		ExpectedName: "TB-500 5mg", ExpectedPrice: 54.99, InStock: true,
	}))
}

func TestSQLiteStockUpdateRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestSQLiteStore(t)
	seedCatalog(t, s)
	ctx := context.Background()

	checked := time.Now().UTC().Truncate(time.Second)
	err := s.UpdateStockStatus(ctx, []model.StockVerdict{
		{ItemID: "item-1", InStock: false, Err: "product page not found", CheckedAt: checked},
		{ItemID: "item-2", InStock: true, CheckedAt: checked},
	})
	require.NoError(t, err)

	items, err := s.ListTrackedItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)

	byID := map[string]model.TrackedItem{}
	for _, it := range items {
		byID[it.ID] = it
	}
	assert.False(t, byID["item-1"].InStock)
	assert.Equal(t, "product page not found", byID["item-1"].LastError)
	assert.NotNil(t, byID["item-1"].LastCheckedAt)
	assert.True(t, byID["item-2"].InStock)
	assert.Empty(t, byID["item-2"].LastError)
}

func TestSQLiteApplyAIAction(t *testing.T) {
	t.Parallel()
	s := newTestSQLiteStore(t)
	seedCatalog(t, s)
	ctx := context.Background()

	price := 39.99
	cases := []struct {
		name    string
		verdict model.AIVerdict
		check   func(t *testing.T, it model.TrackedItem)
	}{
		{
			name:    "mark oos",
			verdict: model.AIVerdict{Action: model.ActionMarkOOS},
			check: func(t *testing.T, it model.TrackedItem) {
				assert.False(t, it.InStock)
				assert.False(t, it.ScrapeDisabled)
			},
		},
		{
			name:    "update price restocks",
			verdict: model.AIVerdict{Action: model.ActionUpdatePrice, DetectedPrice: &price},
			check: func(t *testing.T, it model.TrackedItem) {
				assert.True(t, it.InStock)
				assert.InDelta(t, 39.99, it.ExpectedPrice, 0.001)
			},
		},
		{
			name:    "flag wrong sets error",
			verdict: model.AIVerdict{Action: model.ActionFlagWrong},
			check: func(t *testing.T, it model.TrackedItem) {
				assert.NotEmpty(t, it.LastError)
			},
		},
		{
			name:    "remove dead disables scraping without deleting",
			verdict: model.AIVerdict{Action: model.ActionRemoveDead},
			check: func(t *testing.T, it model.TrackedItem) {
				assert.True(t, it.ScrapeDisabled)
				assert.False(t, it.InStock)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, s.ApplyAIAction(ctx, "item-1", tc.verdict))
			items, err := s.ListTrackedItems(ctx)
			require.NoError(t, err)
			for _, it := range items {
				if it.ID == "item-1" {
					require.NotNil(t, it.LastVerifiedAt)
					tc.check(t, it)
					return
				}
			}
			t.Fatal("item-1 missing from catalog")
		})
	}
}

func TestSQLiteApplyAIAction_UnknownAction(t *testing.T) {
	t.Parallel()
	s := newTestSQLiteStore(t)
	seedCatalog(t, s)
	require.Error(t, s.ApplyAIAction(context.Background(), "item-1", model.AIVerdict{Action: "DELETE_ROW"}))
}

func TestSQLiteDecisionLog(t *testing.T) {
	t.Parallel()
	s := newTestSQLiteStore(t)
	seedCatalog(t, s)
	ctx := context.Background()

	price := 44.99
	var lastID string
	for i := 0; i < 3; i++ {
		id, err := s.LogDecision(ctx, model.Decision{
			ItemID:        "item-1",
			VendorName:    "Amino Asylum",
			ProductURL:    "https://example.com/p/bpc-157",
			Action:        model.ActionKeep,
			Confidence:    0.9,
			Reasoning:     "listing matches expected product",
			DetectedPrice: &price,
		})
		require.NoError(t, err)
		lastID = id
	}

	n, err := s.CountDecisions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	decisions, err := s.ListRecentDecisions(ctx, 2)
	require.NoError(t, err)
	require.Len(t, decisions, 2)
	require.NotNil(t, decisions[0].DetectedPrice)
	assert.InDelta(t, 44.99, *decisions[0].DetectedPrice, 0.001)

	require.NoError(t, s.MarkDecisionOverridden(ctx, lastID))
	assert.ErrorIs(t, s.MarkDecisionOverridden(ctx, "missing-id"), ErrDecisionNotFound)

	decisions, err = s.ListRecentDecisions(ctx, 10)
	require.NoError(t, err)
	overridden := 0
	for _, d := range decisions {
		if d.WasOverridden {
			overridden++
		}
	}
	assert.Equal(t, 1, overridden)
}

func TestSQLiteLearningNotesOrder(t *testing.T) {
	t.Parallel()
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddLearningNote(ctx, "first note about login-gated prices", "self-review"))
	require.NoError(t, s.AddLearningNote(ctx, "second note about placeholder pages", "self-review"))

	notes, err := s.ListLearningNotes(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Contains(t, notes[0].Text, "first")
	assert.Contains(t, notes[1].Text, "second")
	assert.Equal(t, "self-review", notes[0].Source)
}

func TestSQLiteRunLog(t *testing.T) {
	t.Parallel()
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.LogRun(ctx, model.RunLog{
		Kind: model.RunCheck, Checked: 10, InStock: 7, OutOfStock: 2, Errored: 1,
		Duration: 1500 * time.Millisecond, TriggeredBy: "manual",
	}))
	require.NoError(t, s.LogRun(ctx, model.RunLog{
		Kind: model.RunVerify, Checked: 5, TriggeredBy: "cron",
	}))

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, r := range runs {
		if r.Kind == model.RunCheck {
			assert.Equal(t, int64(1500), r.DurationMS)
			assert.Equal(t, 1500*time.Millisecond, r.Duration)
		}
	}
}
