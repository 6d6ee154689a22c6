package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/market-ingest/internal/model"
	"github.com/sells-group/market-ingest/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db    *sql.DB
	retry resilience.RetryConfig
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, retry: resilience.DefaultRetryConfig()}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS cycles (
	id              TEXT PRIMARY KEY,
	started_at      DATETIME NOT NULL,
	finished_at     DATETIME NOT NULL,
	consensus_value REAL NOT NULL DEFAULT 0,
	sample_count    INTEGER NOT NULL DEFAULT 0,
	reliability     TEXT NOT NULL,
	band            TEXT NOT NULL DEFAULT '',
	spread_range    REAL NOT NULL DEFAULT 0,
	success_rate    REAL NOT NULL DEFAULT 0,
	new_items       INTEGER NOT NULL DEFAULT 0,
	payload         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS content_items (
	fingerprint   TEXT PRIMARY KEY,
	cycle_id      TEXT NOT NULL REFERENCES cycles(id),
	source_id     TEXT NOT NULL,
	title         TEXT NOT NULL,
	url           TEXT NOT NULL,
	published_at  DATETIME,
	author        TEXT NOT NULL DEFAULT '',
	first_seen_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_cycles_started_at ON cycles(started_at);
CREATE INDEX IF NOT EXISTS idx_content_items_cycle_id ON content_items(cycle_id);
CREATE INDEX IF NOT EXISTS idx_content_items_source_id ON content_items(source_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveCycle(ctx context.Context, c *model.Cycle) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal cycle")
	}
	sum := Summarize(c)
	rows := itemRows(c.NewItems)

	return resilience.Do(ctx, s.retry, "sqlite_save_cycle", func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return eris.Wrap(err, "sqlite: begin")
		}
		defer tx.Rollback() //nolint:errcheck

		_, err = tx.ExecContext(ctx, `
			INSERT INTO cycles (id, started_at, finished_at, consensus_value, sample_count,
				reliability, band, spread_range, success_rate, new_items, payload)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				finished_at = excluded.finished_at,
				consensus_value = excluded.consensus_value,
				sample_count = excluded.sample_count,
				reliability = excluded.reliability,
				band = excluded.band,
				spread_range = excluded.spread_range,
				success_rate = excluded.success_rate,
				new_items = excluded.new_items,
				payload = excluded.payload`,
			sum.ID, sum.StartedAt, sum.FinishedAt, sum.ConsensusValue, sum.SampleCount,
			string(sum.Reliability), sum.Band, sum.SpreadRange, sum.SuccessRate, sum.NewItems,
			string(payload),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert cycle %s", c.ID)
		}

		now := time.Now().UTC()
		for _, r := range rows {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO content_items (fingerprint, cycle_id, source_id, title, url, published_at, author, first_seen_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (fingerprint) DO NOTHING`,
				r.Fingerprint, c.ID, r.SourceID, r.Title, r.URL, r.PublishedAt, r.Author, now,
			); err != nil {
				return eris.Wrapf(err, "sqlite: insert item %s", r.URL)
			}
		}
		return eris.Wrap(tx.Commit(), "sqlite: commit")
	})
}

func (s *SQLiteStore) GetCycle(ctx context.Context, id string) (*model.Cycle, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM cycles WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "cycle %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get cycle %s", id)
	}
	var c model.Cycle
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal cycle %s", id)
	}
	return &c, nil
}

func (s *SQLiteStore) ListCycles(ctx context.Context, limit int) ([]CycleSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, consensus_value, sample_count,
			reliability, band, spread_range, success_rate, new_items
		FROM cycles ORDER BY started_at DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list cycles")
	}
	defer rows.Close() //nolint:errcheck

	var out []CycleSummary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cycle")
		}
		out = append(out, sum)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate cycles")
}

func (s *SQLiteStore) CountItems(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM content_items`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count items")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSummary(row scannable) (CycleSummary, error) {
	var sum CycleSummary
	var reliability string
	err := row.Scan(&sum.ID, &sum.StartedAt, &sum.FinishedAt, &sum.ConsensusValue, &sum.SampleCount,
		&reliability, &sum.Band, &sum.SpreadRange, &sum.SuccessRate, &sum.NewItems)
	sum.Reliability = model.Reliability(reliability)
	return sum, err
}
