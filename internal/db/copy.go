package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertCopy bulk-loads rows into a transaction-scoped staging table with
// COPY and merges them into table, replacing rows whose key already exists.
// Rows repeating a key within one batch collapse to a single row. It returns
// the number of rows merged.
func UpsertCopy(ctx context.Context, pool Pool, table, key string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrapf(err, "db: begin upsert %s", table)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	stage := "stage_" + table
	if _, err := tx.Exec(ctx, fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{stage}.Sanitize(), pgx.Identifier{table}.Sanitize(),
	)); err != nil {
		return 0, eris.Wrapf(err, "db: create staging table for %s", table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{stage}, columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", stage)
	}

	tag, err := tx.Exec(ctx, mergeSQL(table, stage, key, columns))
	if err != nil {
		return 0, eris.Wrapf(err, "db: merge into %s", table)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrapf(err, "db: commit upsert %s", table)
	}
	return tag.RowsAffected(), nil
}

// mergeSQL builds the INSERT ... SELECT that moves staged rows into table.
func mergeSQL(table, stage, key string, columns []string) string {
	cols := make([]string, len(columns))
	var sets []string
	for i, c := range columns {
		cols[i] = pgx.Identifier{c}.Sanitize()
		if c != key {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", cols[i], cols[i]))
		}
	}
	k := pgx.Identifier{key}.Sanitize()
	list := strings.Join(cols, ", ")

	conflict := "DO NOTHING"
	if len(sets) > 0 {
		conflict = "DO UPDATE SET " + strings.Join(sets, ", ")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT DISTINCT ON (%s) %s FROM %s ORDER BY %s ON CONFLICT (%s) %s",
		pgx.Identifier{table}.Sanitize(), list, k, list, pgx.Identifier{stage}.Sanitize(), k, k, conflict)
}
