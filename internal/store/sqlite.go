package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/peptide-index/stockwatch/internal/model"
)

// SQLiteStore is the local development store. It mirrors the Postgres
// schema with plain SQL in place of the stored procedures, so the
// pipeline can run end-to-end without a database server.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) a SQLite database at path.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// SQLite allows one writer; serialize access through a single conn.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "sqlite: pragmas")
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS vendors (
	id     TEXT PRIMARY KEY,
	name   TEXT NOT NULL,
	family TEXT NOT NULL DEFAULT 'structured-storefront'
);

CREATE TABLE IF NOT EXISTS tracked_items (
	id               TEXT PRIMARY KEY,
	vendor_id        TEXT NOT NULL REFERENCES vendors(id),
	product_url      TEXT,
	expected_name    TEXT NOT NULL,
	expected_price   REAL NOT NULL DEFAULT 0,
	in_stock         INTEGER NOT NULL DEFAULT 1,
	scrape_disabled  INTEGER NOT NULL DEFAULT 0,
	last_checked_at  TIMESTAMP,
	last_verified_at TIMESTAMP,
	last_error       TEXT
);

CREATE TABLE IF NOT EXISTS ai_decisions (
	id             TEXT PRIMARY KEY,
	item_id        TEXT NOT NULL REFERENCES tracked_items(id),
	vendor_name    TEXT NOT NULL,
	product_url    TEXT NOT NULL,
	action         TEXT NOT NULL,
	confidence     REAL NOT NULL,
	reasoning      TEXT NOT NULL,
	detected_price REAL,
	detected_name  TEXT,
	page_title     TEXT,
	excerpt        TEXT,
	was_overridden INTEGER NOT NULL DEFAULT 0,
	created_at     TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS learning_notes (
	id         TEXT PRIMARY KEY,
	note       TEXT NOT NULL,
	source     TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS inventory_runs (
	id           TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	checked      INTEGER NOT NULL,
	in_stock     INTEGER NOT NULL,
	out_of_stock INTEGER NOT NULL,
	errored      INTEGER NOT NULL,
	duration_ms  INTEGER NOT NULL,
	triggered_by TEXT NOT NULL,
	created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_tracked_items_vendor ON tracked_items(vendor_id);
CREATE INDEX IF NOT EXISTS idx_ai_decisions_created ON ai_decisions(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_inventory_runs_created ON inventory_runs(created_at DESC);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ListTrackedItems(ctx context.Context) ([]model.TrackedItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT i.id, i.product_url, i.vendor_id, v.name, v.family, i.expected_name, i.expected_price, i.in_stock, i.scrape_disabled, i.last_checked_at, i.last_verified_at, i.last_error
		 FROM tracked_items i JOIN vendors v ON v.id = i.vendor_id ORDER BY i.id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list tracked items")
	}
	defer rows.Close()

	var items []model.TrackedItem
	for rows.Next() {
		var it model.TrackedItem
		var url, lastErr sql.NullString
		var checked, verified sql.NullTime
		if err := rows.Scan(&it.ID, &url, &it.VendorID, &it.VendorName, &it.Family,
			&it.ExpectedName, &it.ExpectedPrice, &it.InStock, &it.ScrapeDisabled,
			&checked, &verified, &lastErr); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan tracked item")
		}
		it.ProductURL = url.String
		it.LastError = lastErr.String
		if checked.Valid {
			t := checked.Time
			it.LastCheckedAt = &t
		}
		if verified.Valid {
			t := verified.Time
			it.LastVerifiedAt = &t
		}
		items = append(items, it)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: list tracked items")
}

func (s *SQLiteStore) UpdateStockStatus(ctx context.Context, verdicts []model.StockVerdict) error {
	if len(verdicts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback()

	failed := 0
	for _, v := range verdicts {
		var lastErr any
		if v.Err != "" {
			lastErr = v.Err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE tracked_items SET in_stock = ?, last_checked_at = ?, last_error = ? WHERE id = ?`,
			v.InStock, v.CheckedAt, lastErr, v.ItemID); err != nil {
			failed++
			zap.L().Error("stock update failed", zap.String("item_id", v.ItemID), zap.Error(err))
		}
	}
	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit stock updates")
	}
	if failed == len(verdicts) {
		return eris.New("sqlite: all stock updates failed")
	}
	return nil
}

func (s *SQLiteStore) ApplyAIAction(ctx context.Context, itemID string, verdict model.AIVerdict) error {
	var query string
	args := []any{itemID}
	switch verdict.Action {
	case model.ActionKeep:
		query = `UPDATE tracked_items SET last_verified_at = CURRENT_TIMESTAMP, last_error = NULL WHERE id = ?`
	case model.ActionMarkOOS:
		query = `UPDATE tracked_items SET in_stock = 0, last_verified_at = CURRENT_TIMESTAMP, last_error = NULL WHERE id = ?`
	case model.ActionMarkInStock:
		query = `UPDATE tracked_items SET in_stock = 1, last_verified_at = CURRENT_TIMESTAMP, last_error = NULL WHERE id = ?`
	case model.ActionUpdatePrice:
		query = `UPDATE tracked_items SET expected_price = COALESCE(?, expected_price), in_stock = 1, last_verified_at = CURRENT_TIMESTAMP, last_error = NULL WHERE id = ?`
		var price any
		if verdict.DetectedPrice != nil {
			price = *verdict.DetectedPrice
		}
		args = []any{price, itemID}
	case model.ActionFlagWrong:
		query = `UPDATE tracked_items SET last_error = 'wrong product at listing URL', last_verified_at = CURRENT_TIMESTAMP WHERE id = ?`
	case model.ActionRemoveDead:
		query = `UPDATE tracked_items SET scrape_disabled = 1, in_stock = 0, last_verified_at = CURRENT_TIMESTAMP, last_error = NULL WHERE id = ?`
	default:
		return eris.Errorf("sqlite: unknown action %q", verdict.Action)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return eris.Wrapf(err, "sqlite: apply action %s", verdict.Action)
	}
	return nil
}

func (s *SQLiteStore) LogDecision(ctx context.Context, d model.Decision) (string, error) {
	id := d.ID
	if id == "" {
		id = uuid.NewString()
	}
	var price any
	if d.DetectedPrice != nil {
		price = *d.DetectedPrice
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ai_decisions (id, item_id, vendor_name, product_url, action, confidence, reasoning, detected_price, detected_name, page_title, excerpt, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, d.ItemID, d.VendorName, d.ProductURL, string(d.Action),
		d.Confidence, d.Reasoning, price, d.DetectedName, d.PageTitle, d.Excerpt, time.Now().UTC())
	if err != nil {
		return "", eris.Wrap(err, "sqlite: log decision")
	}
	return id, nil
}

func (s *SQLiteStore) ListRecentDecisions(ctx context.Context, limit int) ([]model.Decision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, item_id, vendor_name, product_url, action, confidence, reasoning, detected_price, detected_name, page_title, excerpt, was_overridden, created_at
		 FROM ai_decisions ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list decisions")
	}
	defer rows.Close()

	var out []model.Decision
	for rows.Next() {
		var d model.Decision
		var price sql.NullFloat64
		var name, title, excerpt sql.NullString
		if err := rows.Scan(&d.ID, &d.ItemID, &d.VendorName, &d.ProductURL, &d.Action,
			&d.Confidence, &d.Reasoning, &price, &name, &title, &excerpt,
			&d.WasOverridden, &d.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan decision")
		}
		if price.Valid {
			p := price.Float64
			d.DetectedPrice = &p
		}
		d.DetectedName = name.String
		d.PageTitle = title.String
		d.Excerpt = excerpt.String
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list decisions")
}

func (s *SQLiteStore) CountDecisions(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM ai_decisions`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count decisions")
	}
	return n, nil
}

func (s *SQLiteStore) MarkDecisionOverridden(ctx context.Context, decisionID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE ai_decisions SET was_overridden = 1 WHERE id = ?`, decisionID)
	if err != nil {
		return eris.Wrap(err, "sqlite: mark decision overridden")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Wrapf(ErrDecisionNotFound, "sqlite: decision %s", decisionID)
	}
	return nil
}

func (s *SQLiteStore) AddLearningNote(ctx context.Context, text, source string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO learning_notes (id, note, source, created_at) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), text, source, time.Now().UTC())
	return eris.Wrap(err, "sqlite: add learning note")
}

func (s *SQLiteStore) ListLearningNotes(ctx context.Context) ([]model.LearningNote, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, note, source, created_at FROM learning_notes ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list learning notes")
	}
	defer rows.Close()

	var out []model.LearningNote
	for rows.Next() {
		var n model.LearningNote
		if err := rows.Scan(&n.ID, &n.Text, &n.Source, &n.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan learning note")
		}
		out = append(out, n)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list learning notes")
}

func (s *SQLiteStore) LogRun(ctx context.Context, run model.RunLog) error {
	id := run.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO inventory_runs (id, kind, checked, in_stock, out_of_stock, errored, duration_ms, triggered_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, string(run.Kind), run.Checked, run.InStock, run.OutOfStock,
		run.Errored, run.Duration.Milliseconds(), run.TriggeredBy, time.Now().UTC())
	return eris.Wrap(err, "sqlite: log run")
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.RunLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, checked, in_stock, out_of_stock, errored, duration_ms, triggered_by, created_at
		 FROM inventory_runs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var out []model.RunLog
	for rows.Next() {
		var r model.RunLog
		if err := rows.Scan(&r.ID, &r.Kind, &r.Checked, &r.InStock, &r.OutOfStock,
			&r.Errored, &r.DurationMS, &r.TriggeredBy, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		r.Duration = time.Duration(r.DurationMS) * time.Millisecond
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list runs")
}

// SeedVendor inserts or updates a vendor row; used by dev tooling to
// bootstrap a local catalog.
func (s *SQLiteStore) SeedVendor(ctx context.Context, v model.Vendor) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO vendors (id, name, family) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, family = excluded.family`,
		v.ID, v.Name, string(v.Family))
	return eris.Wrap(err, "sqlite: seed vendor")
}

// SeedItem inserts a tracked item; used by dev tooling.
func (s *SQLiteStore) SeedItem(ctx context.Context, it model.TrackedItem) error {
	id := it.ID
	if id == "" {
		id = uuid.NewString()
	}
	var url any
	if it.ProductURL != "" {
		url = it.ProductURL
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tracked_items (id, vendor_id, product_url, expected_name, expected_price, in_stock, scrape_disabled)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, it.VendorID, url, it.ExpectedName, it.ExpectedPrice, it.InStock, it.ScrapeDisabled)
	return eris.Wrap(err, "sqlite: seed item")
}
