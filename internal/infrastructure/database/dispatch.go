package database

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Query is a dispatch request.
//
// Name selects a template from the catalog defaults and always wins over
// Text. Format replaces {key} placeholders in the resolved SQL before
// binding. Args carries the bind values.
type Query struct {
	Name   string
	Text   string
	Format map[string]any
	Args   Binding
}

// Binding holds the parameter tuples for a query.
// The zero value binds nothing.
type Binding struct {
	tuples [][]any
	batch  bool
}

// Single binds one tuple; the statement runs once.
func Single(values ...any) Binding {
	return Binding{tuples: [][]any{values}}
}

// Batch binds a sequence of tuples; the statement runs once per tuple inside
// one transaction, so either every tuple is applied or none is.
func Batch(tuples ...[]any) Binding {
	return Binding{tuples: tuples, batch: true}
}

// IsBatch reports whether the binding was built with Batch.
func (b Binding) IsBatch() bool {
	return b.batch
}

// Len returns the number of tuples.
func (b Binding) Len() int {
	return len(b.tuples)
}

// Dispatch resolves q, executes it and returns a cursor over its rows.
//
// Resolution order:
//  1. Name set: the catalog template, or an error if it is not defined
//  2. Text set: the literal SQL
//  3. neither: ErrMissingQueryText
//
// Statements that produce no columns run to completion before Dispatch
// returns. Result cursors must be closed (or drained) by the caller.
//
// Returns:
//   - *Rows: Cursor, empty for batches and statements without results
//   - error: *ConfigError, *UnknownQueryError, ErrMissingQueryText,
//     *EngineError or ErrClosed. Text holding more than one statement
//     fails with an *EngineError wrapping ErrMultipleStatements before
//     anything runs.
func (d *Database) Dispatch(ctx context.Context, q Query) (*Rows, error) {
	unlock, err := d.enter()
	if err != nil {
		return nil, err
	}
	defer unlock()

	text, err := d.resolve(q)
	if err != nil {
		return nil, err
	}
	text = substitute(text, q.Format)

	start := time.Now()
	if q.Args.batch {
		err = d.execBatch(ctx, text, q.Args.tuples)
		d.notify(ctx, QueryEvent{
			Kind:      EventBatch,
			Name:      q.Name,
			Statement: text,
			Tuples:    len(q.Args.tuples),
			Duration:  time.Since(start),
			Err:       err,
		})
		if err != nil {
			return nil, err
		}
		return emptyRows(d), nil
	}

	var args []any
	if len(q.Args.tuples) > 0 {
		args = q.Args.tuples[0]
	}
	rows, err := d.query(ctx, text, args)
	d.notify(ctx, QueryEvent{
		Kind:      EventDispatch,
		Name:      q.Name,
		Statement: text,
		Duration:  time.Since(start),
		Err:       err,
	})
	return rows, err
}

// Materialize dispatches q and drains every row before returning.
func (d *Database) Materialize(ctx context.Context, q Query) ([]Row, error) {
	rows, err := d.Dispatch(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor

	var out []Row
	for rows.Next() {
		row, err := rows.Values()
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Exec runs literal SQL with one optional tuple and discards any rows.
func (d *Database) Exec(ctx context.Context, text string, args ...any) error {
	_, err := d.Materialize(ctx, Query{Text: text, Args: Single(args...)})
	return err
}

// Run materializes the catalog query name bound to args.
func (d *Database) Run(ctx context.Context, name string, args ...any) ([]Row, error) {
	return d.Materialize(ctx, Query{Name: name, Args: Single(args...)})
}

// resolve picks the SQL text for q.
func (d *Database) resolve(q Query) (string, error) {
	switch {
	case q.Name != "":
		if !d.cat.HasDefaults() {
			return "", &ConfigError{
				Op:  "resolve",
				Err: fmt.Errorf("catalog has no defaults section: %w", &UnknownQueryError{Name: q.Name}),
			}
		}
		text, ok := d.cat.Lookup(q.Name)
		if !ok {
			return "", &UnknownQueryError{Name: q.Name}
		}
		return text, nil
	case q.Text != "":
		return q.Text, nil
	default:
		return "", ErrMissingQueryText
	}
}

// substitute replaces {key} with the string form of format[key].
// Placeholders with no entry are left untouched.
func substitute(text string, format map[string]any) string {
	if len(format) == 0 {
		return text
	}
	pairs := make([]string, 0, 2*len(format))
	for key, value := range format {
		pairs = append(pairs, "{"+key+"}", fmt.Sprint(value))
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// query runs text once. Result-less statements are stepped to completion here
// so that their effects do not depend on the caller iterating.
func (d *Database) query(ctx context.Context, text string, args []any) (*Rows, error) {
	stmt, err := single(text)
	if err != nil {
		return nil, err
	}

	sqlRows, err := d.conn.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, engineErr(text, err)
	}

	cols, err := sqlRows.Columns()
	if err != nil {
		sqlRows.Close() //nolint:errcheck // Error path
		return nil, engineErr(text, err)
	}

	if len(cols) == 0 {
		for sqlRows.Next() {
		}
		err := sqlRows.Err()
		if closeErr := sqlRows.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return nil, engineErr(text, err)
		}
		return emptyRows(d), nil
	}

	r := &Rows{db: d, rows: sqlRows, cols: cols, query: text}
	d.track(r)
	return r, nil
}

// execBatch runs text once per tuple in a single transaction.
func (d *Database) execBatch(ctx context.Context, text string, tuples [][]any) error {
	stmt, err := single(text)
	if err != nil {
		return err
	}

	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return engineErr(text, fmt.Errorf("starting transaction: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		return engineErr(text, err)
	}
	defer prepared.Close() //nolint:errcheck // Closed with the transaction

	for i, tuple := range tuples {
		if _, err := prepared.ExecContext(ctx, tuple...); err != nil {
			return engineErr(text, fmt.Errorf("tuple %d: %w", i, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return engineErr(text, fmt.Errorf("committing batch: %w", err))
	}
	return nil
}
