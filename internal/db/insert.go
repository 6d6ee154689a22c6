package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// InsertConfig describes a bulk insert.
type InsertConfig struct {
	Table        string
	Columns      []string
	ConflictKeys []string
	// UpdateCols are set from EXCLUDED on conflict. Empty means rows that
	// conflict are skipped.
	UpdateCols []string
}

// BulkInsert copies rows into a temp table inside tx and moves them into the
// target with INSERT ... ON CONFLICT. It returns the number of rows inserted
// or updated.
func BulkInsert(ctx context.Context, tx pgx.Tx, cfg InsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(cfg.Columns) == 0 {
		return 0, eris.New("db: insert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return 0, eris.New("db: insert: no conflict keys specified")
	}

	tempIdent := pgx.Identifier{"_tmp_" + strings.ReplaceAll(cfg.Table, ".", "_")}
	temp := tempIdent.Sanitize()
	if _, err := tx.Exec(ctx, fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		temp, sanitizeTable(cfg.Table),
	)); err != nil {
		return 0, eris.Wrapf(err, "db: insert: create temp table for %s", cfg.Table)
	}

	if _, err := tx.CopyFrom(ctx, tempIdent, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: insert: copy into temp table for %s", cfg.Table)
	}

	tag, err := tx.Exec(ctx, InsertSQL(cfg, temp))
	if err != nil {
		return 0, eris.Wrapf(err, "db: insert: move rows into %s", cfg.Table)
	}
	return tag.RowsAffected(), nil
}

// InsertSQL builds the INSERT ... SELECT ... ON CONFLICT statement moving
// rows from source into cfg.Table.
func InsertSQL(cfg InsertConfig, source string) string {
	cols := quoteAndJoin(cfg.Columns)
	action := "DO NOTHING"
	if len(cfg.UpdateCols) > 0 {
		sets := make([]string, len(cfg.UpdateCols))
		for i, c := range cfg.UpdateCols {
			q := pgx.Identifier{c}.Sanitize()
			sets[i] = q + " = EXCLUDED." + q
		}
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		sanitizeTable(cfg.Table), cols, cols, source, quoteAndJoin(cfg.ConflictKeys), action)
}

// sanitizeTable handles schema-qualified names like "market.cycles".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
