package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/market-ingest/internal/db"
	"github.com/sells-group/market-ingest/internal/model"
	"github.com/sells-group/market-ingest/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	retry   resilience.RetryConfig
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	insertCycleSQL = `INSERT INTO cycles (id, started_at, finished_at, consensus_value, sample_count, reliability, band, spread_range, success_rate, new_items, payload)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO UPDATE SET finished_at = EXCLUDED.finished_at, consensus_value = EXCLUDED.consensus_value, sample_count = EXCLUDED.sample_count, reliability = EXCLUDED.reliability, band = EXCLUDED.band, spread_range = EXCLUDED.spread_range, success_rate = EXCLUDED.success_rate, new_items = EXCLUDED.new_items, payload = EXCLUDED.payload`
	getCycleSQL    = `SELECT payload FROM cycles WHERE id = $1`
	listCyclesSQL  = `SELECT id, started_at, finished_at, consensus_value, sample_count, reliability, band, spread_range, success_rate, new_items FROM cycles ORDER BY started_at DESC LIMIT $1`
	countItemsSQL  = `SELECT COUNT(*) FROM content_items`
)

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"insert_cycle": insertCycleSQL,
	"get_cycle":    getCycleSQL,
	"list_cycles":  listCyclesSQL,
	"count_items":  countItemsSQL,
}

var itemInsert = db.InsertConfig{
	Table:        "content_items",
	Columns:      []string{"fingerprint", "cycle_id", "source_id", "title", "url", "published_at", "author", "first_seen_at"},
	ConflictKeys: []string{"fingerprint"},
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

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
	return &PostgresStore{pool: pool, closeFn: pool.Close, retry: resilience.DefaultRetryConfig()}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS cycles (
	id              TEXT PRIMARY KEY,
	started_at      TIMESTAMPTZ NOT NULL,
	finished_at     TIMESTAMPTZ NOT NULL,
	consensus_value DOUBLE PRECISION NOT NULL DEFAULT 0,
	sample_count    INTEGER NOT NULL DEFAULT 0,
	reliability     TEXT NOT NULL,
	band            TEXT NOT NULL DEFAULT '',
	spread_range    DOUBLE PRECISION NOT NULL DEFAULT 0,
	success_rate    DOUBLE PRECISION NOT NULL DEFAULT 0,
	new_items       INTEGER NOT NULL DEFAULT 0,
	payload         JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS content_items (
	fingerprint   TEXT PRIMARY KEY,
	cycle_id      TEXT NOT NULL REFERENCES cycles(id),
	source_id     TEXT NOT NULL,
	title         TEXT NOT NULL,
	url           TEXT NOT NULL,
	published_at  TIMESTAMPTZ,
	author        TEXT NOT NULL DEFAULT '',
	first_seen_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_cycles_started_at ON cycles(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_content_items_cycle_id ON content_items(cycle_id);
CREATE INDEX IF NOT EXISTS idx_content_items_source_published ON content_items(source_id, published_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// SaveCycle writes the cycle row and bulk-loads its items in one
// transaction, retrying the whole transaction on transient errors.
func (s *PostgresStore) SaveCycle(ctx context.Context, c *model.Cycle) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal cycle")
	}
	sum := Summarize(c)

	now := time.Now().UTC()
	var rows [][]any
	for _, r := range itemRows(c.NewItems) {
		rows = append(rows, []any{r.Fingerprint, c.ID, r.SourceID, r.Title, r.URL, r.PublishedAt, r.Author, now})
	}

	return resilience.Do(ctx, s.retry, "postgres_save_cycle", func(ctx context.Context) error {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return eris.Wrap(err, "postgres: begin")
		}
		defer tx.Rollback(ctx) //nolint:errcheck

		if _, err := tx.Exec(ctx, insertCycleSQL,
			sum.ID, sum.StartedAt, sum.FinishedAt, sum.ConsensusValue, sum.SampleCount,
			string(sum.Reliability), sum.Band, sum.SpreadRange, sum.SuccessRate, sum.NewItems,
			payload,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert cycle %s", c.ID)
		}

		if _, err := db.BulkInsert(ctx, tx, itemInsert, rows); err != nil {
			return eris.Wrap(err, "postgres: insert items")
		}
		return eris.Wrap(tx.Commit(ctx), "postgres: commit")
	})
}

func (s *PostgresStore) GetCycle(ctx context.Context, id string) (*model.Cycle, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, getCycleSQL, id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "cycle %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get cycle %s", id)
	}
	var c model.Cycle
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, eris.Wrapf(err, "postgres: unmarshal cycle %s", id)
	}
	return &c, nil
}

func (s *PostgresStore) ListCycles(ctx context.Context, limit int) ([]CycleSummary, error) {
	rows, err := s.pool.Query(ctx, listCyclesSQL, clampLimit(limit))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list cycles")
	}
	defer rows.Close()

	var out []CycleSummary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan cycle")
		}
		out = append(out, sum)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate cycles")
}

func (s *PostgresStore) CountItems(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, countItemsSQL).Scan(&n)
	return n, eris.Wrap(err, "postgres: count items")
}
