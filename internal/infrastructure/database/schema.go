package database

import (
	"context"
	"database/sql"
	"iter"
	"strings"
)

// Statement templates for the structural helpers. They are expanded with the
// same {key} substitution as catalog queries.
const (
	listTablesQuery     = `SELECT name, sql FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite\_%' ESCAPE '\'`
	columnsQuery        = "SELECT * FROM {table} LIMIT 0"
	rowCountQuery       = "SELECT COUNT(*) FROM {table}"
	createIndexTemplate = "CREATE {unique}INDEX {ifNotExists}{name} ON {table}({columns})"
	dropTemplate        = "DROP {kind} {ifExists}{name}"
)

// TableSchema describes one user table.
type TableSchema struct {
	Name string

	// Columns are in declaration order, taken from the live table rather
	// than parsed from SQL.
	Columns []string

	// SQL is the CREATE statement as stored by SQLite.
	SQL string
}

// IndexOptions control CreateIndex.
type IndexOptions struct {
	Unique      bool
	IfNotExists bool
}

// Schema yields every user table with its columns, in creation order.
// Internal sqlite_* tables are skipped. An error is yielded once and ends
// the sequence.
func (d *Database) Schema(ctx context.Context) iter.Seq2[TableSchema, error] {
	return func(yield func(TableSchema, error) bool) {
		tables, err := d.tables(ctx)
		if err != nil {
			yield(TableSchema{}, err)
			return
		}

		for _, t := range tables {
			cols, err := d.columns(ctx, t.Name)
			if err != nil {
				yield(TableSchema{}, err)
				return
			}
			t.Columns = cols
			if !yield(t, nil) {
				return
			}
		}
	}
}

// tables lists user tables. The cursor is drained before columns are read.
func (d *Database) tables(ctx context.Context) ([]TableSchema, error) {
	rows, err := d.Dispatch(ctx, Query{Text: listTablesQuery})
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor

	var out []TableSchema
	for rows.Next() {
		var (
			name string
			ddl  sql.NullString
		)
		if err := rows.Scan(&name, &ddl); err != nil {
			return nil, err
		}
		out = append(out, TableSchema{Name: name, SQL: ddl.String})
	}
	return out, rows.Err()
}

// columns reads column names from a zero-row select on table.
func (d *Database) columns(ctx context.Context, table string) ([]string, error) {
	rows, err := d.Dispatch(ctx, Query{
		Text:   columnsQuery,
		Format: map[string]any{"table": quoteIdent(table)},
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor
	return rows.Columns(), nil
}

// RowCount returns the number of rows in table. A schema-qualified name such
// as "main.t" counts t in schema main; the first dot is the separator. A
// missing table is reported by SQLite as an *EngineError.
func (d *Database) RowCount(ctx context.Context, table string) (int64, error) {
	rows, err := d.Dispatch(ctx, Query{
		Text:   rowCountQuery,
		Format: map[string]any{"table": quoteQualified(table)},
	})
	if err != nil {
		return 0, err
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor

	var count int64
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, err
		}
		return 0, sql.ErrNoRows
	}
	if err := rows.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// CreateIndex creates an index on table over columns, in the given order.
// Names are passed to SQLite unquoted.
func (d *Database) CreateIndex(ctx context.Context, name, table string, columns []string, opts IndexOptions) error {
	format := map[string]any{
		"unique":      "",
		"ifNotExists": "",
		"name":        name,
		"table":       table,
		"columns":     strings.Join(columns, ","),
	}
	if opts.Unique {
		format["unique"] = "UNIQUE "
	}
	if opts.IfNotExists {
		format["ifNotExists"] = "IF NOT EXISTS "
	}

	_, err := d.Materialize(ctx, Query{Text: createIndexTemplate, Format: format})
	return err
}

// Drop removes a table, view or index. kind is upper-cased and otherwise
// forwarded to SQLite unchecked.
func (d *Database) Drop(ctx context.Context, kind, name string, ifExists bool) error {
	format := map[string]any{
		"kind":     strings.ToUpper(kind),
		"ifExists": "",
		"name":     name,
	}
	if ifExists {
		format["ifExists"] = "IF EXISTS "
	}

	_, err := d.Materialize(ctx, Query{Text: dropTemplate, Format: format})
	return err
}

// quoteIdent quotes an SQL identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteQualified quotes schema.name as two identifiers.
func quoteQualified(name string) string {
	if schema, table, ok := strings.Cut(name, "."); ok {
		return quoteIdent(schema) + "." + quoteIdent(table)
	}
	return quoteIdent(name)
}
