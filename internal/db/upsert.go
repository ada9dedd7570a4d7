package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertConfig defines the parameters for a bulk upsert operation.
type UpsertConfig struct {
	Table        string   // target table (e.g., "public.announcements")
	Columns      []string // all columns being inserted
	ConflictKeys []string // columns forming the unique constraint
	// UpdateCols are the columns to update on conflict. nil means all
	// non-conflict columns; an empty non-nil slice means DO NOTHING.
	UpdateCols []string
	// UpdateExpr overrides the SET expression of a column. The default is
	// EXCLUDED.<col>. Expressions may reference the target table by name.
	UpdateExpr map[string]string
	// UpdateWhere restricts which conflicting rows are updated.
	UpdateWhere string
}

// UpsertResult counts the rows written by BulkUpsert.
type UpsertResult struct {
	Inserted int64
	Updated  int64
}

// Total returns the number of rows written.
func (r UpsertResult) Total() int64 { return r.Inserted + r.Updated }

// BulkUpsert performs a bulk upsert via a temp table and INSERT ... ON CONFLICT.
// 1. Creates a temp table with the same columns
// 2. COPY rows into the temp table
// 3. INSERT INTO target SELECT ... FROM temp ON CONFLICT (keys) DO UPDATE/NOTHING
// 4. The temp table is dropped on commit
//
// Inserted and updated rows are told apart with the xmax system column.
// Rows must not repeat a conflict key within one call.
func BulkUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (UpsertResult, error) {
	if len(rows) == 0 {
		return UpsertResult{}, nil
	}

	if len(cfg.Columns) == 0 {
		return UpsertResult{}, eris.New("db: upsert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return UpsertResult{}, eris.New("db: upsert: no conflict keys specified")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return UpsertResult{}, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tempTable := tempTableName(cfg.Table)

	createSQL := fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{tempTable}.Sanitize(),
		sanitizeTable(cfg.Table),
	)
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return UpsertResult{}, eris.Wrapf(err, "db: upsert: create temp table for %s", cfg.Table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{tempTable}, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return UpsertResult{}, eris.Wrapf(err, "db: upsert: COPY into temp table for %s", cfg.Table)
	}

	res := UpsertResult{}
	out, err := tx.Query(ctx, BuildUpsertSQL(cfg))
	if err != nil {
		return UpsertResult{}, eris.Wrapf(err, "db: upsert: INSERT ON CONFLICT for %s", cfg.Table)
	}
	for out.Next() {
		var inserted bool
		if err := out.Scan(&inserted); err != nil {
			out.Close()
			return UpsertResult{}, eris.Wrap(err, "db: upsert: scan result")
		}
		if inserted {
			res.Inserted++
		} else {
			res.Updated++
		}
	}
	out.Close()
	if err := out.Err(); err != nil {
		return UpsertResult{}, eris.Wrapf(err, "db: upsert: INSERT ON CONFLICT for %s", cfg.Table)
	}

	if err := tx.Commit(ctx); err != nil {
		return UpsertResult{}, eris.Wrap(err, "db: upsert: commit tx")
	}

	return res, nil
}

// BuildUpsertSQL renders the INSERT ... SELECT ... ON CONFLICT statement that
// moves rows from the temp table into cfg.Table.
func BuildUpsertSQL(cfg UpsertConfig) string {
	colList := quoteAndJoin(cfg.Columns)
	conflictList := quoteAndJoin(cfg.ConflictKeys)

	action := "DO NOTHING"
	if updateCols := resolveUpdateCols(cfg); len(updateCols) > 0 {
		setClauses := make([]string, 0, len(updateCols))
		for _, col := range updateCols {
			expr, ok := cfg.UpdateExpr[col]
			if !ok {
				expr = "EXCLUDED." + pgx.Identifier{col}.Sanitize()
			}
			setClauses = append(setClauses, fmt.Sprintf("%s = %s", pgx.Identifier{col}.Sanitize(), expr))
		}
		action = "DO UPDATE SET " + strings.Join(setClauses, ", ")
		if cfg.UpdateWhere != "" {
			action += " WHERE " + cfg.UpdateWhere
		}
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s RETURNING (xmax = 0) AS inserted",
		sanitizeTable(cfg.Table),
		colList,
		colList,
		pgx.Identifier{tempTableName(cfg.Table)}.Sanitize(),
		conflictList,
		action,
	)
}

func resolveUpdateCols(cfg UpsertConfig) []string {
	if cfg.UpdateCols != nil {
		return cfg.UpdateCols
	}
	conflictSet := make(map[string]bool, len(cfg.ConflictKeys))
	for _, k := range cfg.ConflictKeys {
		conflictSet[k] = true
	}
	var cols []string
	for _, c := range cfg.Columns {
		if !conflictSet[c] {
			cols = append(cols, c)
		}
	}
	return cols
}

func tempTableName(table string) string {
	return fmt.Sprintf("_tmp_upsert_%s", strings.ReplaceAll(table, ".", "_"))
}

// sanitizeTable handles schema-qualified table names like "public.announcements".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
