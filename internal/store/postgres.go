package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/peptide-index/stockwatch/internal/db"
	"github.com/peptide-index/stockwatch/internal/model"
)

// PostgresStore implements Store using pgxpool. All writes to
// tracked_items go through SECURITY DEFINER functions; the pipeline
// role has no direct UPDATE grant on the table.
type PostgresStore struct {
	pool      db.Pool
	closeFn   func()
	chunkSize int
}

// Options holds connection pool tuning and batching parameters.
type Options struct {
	MaxConns        int32
	MinConns        int32
	UpdateChunkSize int
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations.
var preparedStatements = map[string]string{
	"list_items":        sqlListItems,
	"apply_ai_action":   sqlApplyAction,
	"log_ai_decision":   sqlLogDecision,
	"add_learning_note": sqlAddNote,
	"update_stock":      sqlUpdateStock,
}

const (
	sqlListItems   = `SELECT i.id, i.product_url, i.vendor_id, v.name, v.family, i.expected_name, i.expected_price, i.in_stock, i.scrape_disabled, i.last_checked_at, i.last_verified_at, i.last_error FROM tracked_items i JOIN vendors v ON v.id = i.vendor_id ORDER BY i.id`
	sqlUpdateStock = `SELECT update_price_stock_status($1)`
	sqlApplyAction = `SELECT apply_ai_action($1, $2, $3)`
	sqlLogDecision = `SELECT log_ai_decision($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	sqlAddNote     = `SELECT add_learning_note($1, $2, $3)`
	sqlLogRun      = `SELECT log_inventory_run($1, $2, $3, $4, $5, $6, $7, $8)`
)

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, opts *Options) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	chunkSize := 50
	if opts != nil {
		if opts.MaxConns > 0 {
			maxConns = opts.MaxConns
		}
		if opts.MinConns > 0 {
			minConns = opts.MinConns
		}
		if opts.UpdateChunkSize > 0 {
			chunkSize = opts.UpdateChunkSize
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, chunkSize: chunkSize}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS vendors (
	id     TEXT PRIMARY KEY,
	name   TEXT NOT NULL,
	family TEXT NOT NULL DEFAULT 'structured-storefront'
);

CREATE TABLE IF NOT EXISTS tracked_items (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	vendor_id        TEXT NOT NULL REFERENCES vendors(id),
	product_url      TEXT,
	expected_name    TEXT NOT NULL,
	expected_price   NUMERIC(10,2) NOT NULL DEFAULT 0,
	in_stock         BOOLEAN NOT NULL DEFAULT true,
	scrape_disabled  BOOLEAN NOT NULL DEFAULT false,
	last_checked_at  TIMESTAMPTZ,
	last_verified_at TIMESTAMPTZ,
	last_error       TEXT
);

CREATE TABLE IF NOT EXISTS ai_decisions (
	id             TEXT PRIMARY KEY,
	item_id        TEXT NOT NULL REFERENCES tracked_items(id),
	vendor_name    TEXT NOT NULL,
	product_url    TEXT NOT NULL,
	action         TEXT NOT NULL,
	confidence     DOUBLE PRECISION NOT NULL,
	reasoning      TEXT NOT NULL,
	detected_price NUMERIC(10,2),
	detected_name  TEXT,
	page_title     TEXT,
	excerpt        TEXT,
	was_overridden BOOLEAN NOT NULL DEFAULT false,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS learning_notes (
	id         TEXT PRIMARY KEY,
	note       TEXT NOT NULL,
	source     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS inventory_runs (
	id           TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	checked      INTEGER NOT NULL,
	in_stock     INTEGER NOT NULL,
	out_of_stock INTEGER NOT NULL,
	errored      INTEGER NOT NULL,
	duration_ms  BIGINT NOT NULL,
	triggered_by TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_tracked_items_vendor ON tracked_items(vendor_id);
CREATE INDEX IF NOT EXISTS idx_tracked_items_verified ON tracked_items(last_verified_at);
CREATE INDEX IF NOT EXISTS idx_ai_decisions_item ON ai_decisions(item_id);
CREATE INDEX IF NOT EXISTS idx_ai_decisions_created ON ai_decisions(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_inventory_runs_created ON inventory_runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_learning_notes_created ON learning_notes(created_at);

-- Privileged mutation paths. SECURITY DEFINER lets the pipeline role
-- update tracked_items without holding a direct UPDATE grant.

CREATE OR REPLACE FUNCTION update_price_stock_status(updates jsonb) RETURNS void AS $$
DECLARE
	u jsonb;
BEGIN
	FOR u IN SELECT * FROM jsonb_array_elements(updates) LOOP
		UPDATE tracked_items SET
			in_stock        = COALESCE((u->>'in_stock')::boolean, in_stock),
			last_checked_at = COALESCE((u->>'checked_at')::timestamptz, now()),
			last_error      = NULLIF(u->>'error', '')
		WHERE id = u->>'id';
	END LOOP;
END;
$$ LANGUAGE plpgsql SECURITY DEFINER;

CREATE OR REPLACE FUNCTION apply_ai_action(p_item_id text, p_action text, p_price numeric) RETURNS void AS $$
BEGIN
	CASE p_action
	WHEN 'KEEP' THEN
		UPDATE tracked_items SET last_verified_at = now(), last_error = NULL WHERE id = p_item_id;
	WHEN 'MARK_OOS' THEN
		UPDATE tracked_items SET in_stock = false, last_verified_at = now(), last_error = NULL WHERE id = p_item_id;
	WHEN 'MARK_INSTOCK' THEN
		UPDATE tracked_items SET in_stock = true, last_verified_at = now(), last_error = NULL WHERE id = p_item_id;
	WHEN 'UPDATE_PRICE' THEN
		UPDATE tracked_items SET expected_price = COALESCE(p_price, expected_price), in_stock = true, last_verified_at = now(), last_error = NULL WHERE id = p_item_id;
	WHEN 'FLAG_WRONG' THEN
		UPDATE tracked_items SET last_error = 'wrong product at listing URL', last_verified_at = now() WHERE id = p_item_id;
	WHEN 'REMOVE_DEAD' THEN
		UPDATE tracked_items SET scrape_disabled = true, in_stock = false, last_verified_at = now(), last_error = NULL WHERE id = p_item_id;
	ELSE
		RAISE EXCEPTION 'unknown action %', p_action;
	END CASE;
END;
$$ LANGUAGE plpgsql SECURITY DEFINER;

CREATE OR REPLACE FUNCTION log_ai_decision(
	p_id text, p_item_id text, p_vendor_name text, p_product_url text,
	p_action text, p_confidence double precision, p_reasoning text,
	p_detected_price numeric, p_detected_name text, p_page_title text, p_excerpt text
) RETURNS void AS $$
BEGIN
	INSERT INTO ai_decisions (id, item_id, vendor_name, product_url, action, confidence, reasoning, detected_price, detected_name, page_title, excerpt)
	VALUES (p_id, p_item_id, p_vendor_name, p_product_url, p_action, p_confidence, p_reasoning, p_detected_price, p_detected_name, p_page_title, p_excerpt);
END;
$$ LANGUAGE plpgsql SECURITY DEFINER;

CREATE OR REPLACE FUNCTION add_learning_note(p_id text, p_note text, p_source text) RETURNS void AS $$
BEGIN
	INSERT INTO learning_notes (id, note, source) VALUES (p_id, p_note, p_source);
END;
$$ LANGUAGE plpgsql SECURITY DEFINER;

CREATE OR REPLACE FUNCTION log_inventory_run(
	p_id text, p_kind text, p_checked integer, p_in_stock integer,
	p_out_of_stock integer, p_errored integer, p_duration_ms bigint, p_triggered_by text
) RETURNS void AS $$
BEGIN
	INSERT INTO inventory_runs (id, kind, checked, in_stock, out_of_stock, errored, duration_ms, triggered_by)
	VALUES (p_id, p_kind, p_checked, p_in_stock, p_out_of_stock, p_errored, p_duration_ms, p_triggered_by);
END;
$$ LANGUAGE plpgsql SECURITY DEFINER;
`

// Migrate creates tables, indexes, and the privileged functions.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// ListTrackedItems returns every tracked item with its vendor metadata.
func (s *PostgresStore) ListTrackedItems(ctx context.Context) ([]model.TrackedItem, error) {
	rows, err := s.pool.Query(ctx, sqlListItems)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list tracked items")
	}
	defer rows.Close()

	var items []model.TrackedItem
	for rows.Next() {
		var it model.TrackedItem
		var url, lastErr *string
		if err := rows.Scan(&it.ID, &url, &it.VendorID, &it.VendorName, &it.Family,
			&it.ExpectedName, &it.ExpectedPrice, &it.InStock, &it.ScrapeDisabled,
			&it.LastCheckedAt, &it.LastVerifiedAt, &lastErr); err != nil {
			return nil, eris.Wrap(err, "postgres: scan tracked item")
		}
		if url != nil {
			it.ProductURL = *url
		}
		if lastErr != nil {
			it.LastError = *lastErr
		}
		items = append(items, it)
	}
	return items, eris.Wrap(rows.Err(), "postgres: list tracked items")
}

// stockUpdate is the wire shape consumed by update_price_stock_status.
type stockUpdate struct {
	ID        string    `json:"id"`
	InStock   bool      `json:"in_stock"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// UpdateStockStatus applies Tier-1 verdicts through the batched stored
// procedure, chunked to bound payload size. A failed chunk is logged
// and the remaining chunks still run; the whole call errors only when
// every chunk failed.
func (s *PostgresStore) UpdateStockStatus(ctx context.Context, verdicts []model.StockVerdict) error {
	if len(verdicts) == 0 {
		return nil
	}

	updates := make([]stockUpdate, len(verdicts))
	for i, v := range verdicts {
		updates[i] = stockUpdate{ID: v.ItemID, InStock: v.InStock, Error: v.Err, CheckedAt: v.CheckedAt}
	}

	chunks := db.Chunk(updates, s.chunkSize)
	failed := 0
	var lastErr error
	for _, chunk := range chunks {
		payload, err := json.Marshal(chunk)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal stock updates")
		}
		if _, err := s.pool.Exec(ctx, sqlUpdateStock, payload); err != nil {
			failed++
			lastErr = err
			zap.L().Error("stock update chunk failed",
				zap.Int("chunk_size", len(chunk)),
				zap.Error(err),
			)
		}
	}
	if failed == len(chunks) {
		return eris.Wrap(lastErr, "postgres: all stock update chunks failed")
	}
	return nil
}

// ApplyAIAction applies one Tier-2 verdict through apply_ai_action.
func (s *PostgresStore) ApplyAIAction(ctx context.Context, itemID string, verdict model.AIVerdict) error {
	var price any
	if verdict.DetectedPrice != nil {
		price = *verdict.DetectedPrice
	}
	if _, err := s.pool.Exec(ctx, sqlApplyAction, itemID, string(verdict.Action), price); err != nil {
		return eris.Wrapf(err, "postgres: apply action %s", verdict.Action)
	}
	return nil
}

// LogDecision appends one decision-log entry and returns its ID.
func (s *PostgresStore) LogDecision(ctx context.Context, d model.Decision) (string, error) {
	id := d.ID
	if id == "" {
		id = uuid.NewString()
	}
	var price any
	if d.DetectedPrice != nil {
		price = *d.DetectedPrice
	}
	_, err := s.pool.Exec(ctx, sqlLogDecision,
		id, d.ItemID, d.VendorName, d.ProductURL, string(d.Action),
		d.Confidence, d.Reasoning, price, d.DetectedName, d.PageTitle, d.Excerpt)
	if err != nil {
		return "", eris.Wrap(err, "postgres: log decision")
	}
	return id, nil
}

// ListRecentDecisions returns the most recent decisions, newest first.
func (s *PostgresStore) ListRecentDecisions(ctx context.Context, limit int) ([]model.Decision, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, item_id, vendor_name, product_url, action, confidence, reasoning, detected_price, detected_name, page_title, excerpt, was_overridden, created_at FROM ai_decisions ORDER BY created_at DESC LIMIT $1`,
		limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list decisions")
	}
	defer rows.Close()

	var out []model.Decision
	for rows.Next() {
		var d model.Decision
		var name, title, excerpt *string
		if err := rows.Scan(&d.ID, &d.ItemID, &d.VendorName, &d.ProductURL, &d.Action,
			&d.Confidence, &d.Reasoning, &d.DetectedPrice, &name, &title, &excerpt,
			&d.WasOverridden, &d.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan decision")
		}
		if name != nil {
			d.DetectedName = *name
		}
		if title != nil {
			d.PageTitle = *title
		}
		if excerpt != nil {
			d.Excerpt = *excerpt
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list decisions")
}

// CountDecisions returns the total number of decision-log entries.
func (s *PostgresStore) CountDecisions(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM ai_decisions`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: count decisions")
	}
	return n, nil
}

// MarkDecisionOverridden sets the one mutable flag on a decision entry.
func (s *PostgresStore) MarkDecisionOverridden(ctx context.Context, decisionID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE ai_decisions SET was_overridden = true WHERE id = $1`, decisionID)
	if err != nil {
		return eris.Wrap(err, "postgres: mark decision overridden")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrDecisionNotFound, "postgres: decision %s", decisionID)
	}
	return nil
}

// AddLearningNote appends a heuristic through add_learning_note.
func (s *PostgresStore) AddLearningNote(ctx context.Context, text, source string) error {
	if _, err := s.pool.Exec(ctx, sqlAddNote, uuid.NewString(), text, source); err != nil {
		return eris.Wrap(err, "postgres: add learning note")
	}
	return nil
}

// ListLearningNotes returns all notes in creation order.
func (s *PostgresStore) ListLearningNotes(ctx context.Context) ([]model.LearningNote, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, note, source, created_at FROM learning_notes ORDER BY created_at ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list learning notes")
	}
	defer rows.Close()

	var out []model.LearningNote
	for rows.Next() {
		var n model.LearningNote
		if err := rows.Scan(&n.ID, &n.Text, &n.Source, &n.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan learning note")
		}
		out = append(out, n)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list learning notes")
}

// LogRun records one pipeline execution through log_inventory_run.
func (s *PostgresStore) LogRun(ctx context.Context, run model.RunLog) error {
	id := run.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, sqlLogRun,
		id, string(run.Kind), run.Checked, run.InStock, run.OutOfStock,
		run.Errored, run.Duration.Milliseconds(), run.TriggeredBy)
	return eris.Wrap(err, "postgres: log run")
}

// ListRuns returns recent run records, newest first.
func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.RunLog, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, kind, checked, in_stock, out_of_stock, errored, duration_ms, triggered_by, created_at FROM inventory_runs ORDER BY created_at DESC LIMIT $1`,
		limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var out []model.RunLog
	for rows.Next() {
		var r model.RunLog
		if err := rows.Scan(&r.ID, &r.Kind, &r.Checked, &r.InStock, &r.OutOfStock,
			&r.Errored, &r.DurationMS, &r.TriggeredBy, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.Duration = time.Duration(r.DurationMS) * time.Millisecond
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list runs")
}
