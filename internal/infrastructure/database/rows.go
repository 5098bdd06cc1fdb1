package database

import (
	"database/sql"
	"iter"
	"sync"
)

// Row is one result tuple in column order.
// TEXT values arrive as string, INTEGER as int64, REAL as float64,
// BLOB as []byte and NULL as nil. The driver makes two exceptions by
// declared column type:
//   - DATE, DATETIME and TIMESTAMP: TEXT and INTEGER values arrive as
//     time.Time (UTC), the zero time when the text is not a timestamp
//   - BOOLEAN: INTEGER values arrive as bool
type Row []any

// Rows is a lazy cursor over a dispatched statement's results.
//
// It is bound to the Database's single connection: drain or Close it before
// issuing statements that depend on the same transaction, and never use it
// after the Database is closed (it then reports ErrClosed).
type Rows struct {
	db    *Database
	rows  *sql.Rows
	cols  []string
	query string

	mu        sync.Mutex
	done      bool
	abandoned bool
	err       error
}

// emptyRows is the cursor returned for statements without a result set.
func emptyRows(d *Database) *Rows {
	return &Rows{db: d, done: true}
}

// Columns returns the result column names.
func (r *Rows) Columns() []string {
	return append([]string(nil), r.cols...)
}

// Next advances to the next row. It returns false when the rows are
// exhausted, closed or failed; check Err afterwards.
func (r *Rows) Next() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.abandoned || r.db.closed.Load() {
		r.err = ErrClosed
		return false
	}
	if r.done {
		return false
	}

	if r.rows.Next() {
		return true
	}
	r.err = engineErr(r.query, r.rows.Err())
	r.finishLocked()
	return false
}

// Values returns the current row.
func (r *Rows) Values() (Row, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.abandoned || r.db.closed.Load() {
		return nil, ErrClosed
	}
	if r.rows == nil || r.done {
		return nil, sql.ErrNoRows
	}

	row := make(Row, len(r.cols))
	ptrs := make([]any, len(row))
	for i := range row {
		ptrs[i] = &row[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		return nil, engineErr(r.query, err)
	}
	return row, nil
}

// Scan copies the current row into dest, as sql.Rows.Scan does.
func (r *Rows) Scan(dest ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.abandoned || r.db.closed.Load() {
		return ErrClosed
	}
	if r.rows == nil || r.done {
		return sql.ErrNoRows
	}
	if err := r.rows.Scan(dest...); err != nil {
		return engineErr(r.query, err)
	}
	return nil
}

// Err returns the error, if any, that ended iteration.
func (r *Rows) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close releases the cursor. It is safe to call more than once.
func (r *Rows) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return nil
	}
	return r.finishLocked()
}

// All yields every remaining row and closes the cursor when iteration stops.
// An iteration error is yielded once with a nil Row.
func (r *Rows) All() iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		defer r.Close() //nolint:errcheck // Read-only cursor
		for r.Next() {
			row, err := r.Values()
			if !yield(row, err) || err != nil {
				return
			}
		}
		if err := r.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// abandon closes the cursor on behalf of Database.Close.
func (r *Rows) abandon() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.abandoned = true
	if !r.done {
		r.done = true
		r.rows.Close() //nolint:errcheck // Connection is going away
	}
}

func (r *Rows) finishLocked() error {
	r.done = true
	if r.rows == nil {
		return nil
	}
	r.db.untrack(r)
	if err := r.rows.Close(); err != nil {
		return engineErr(r.query, err)
	}
	return nil
}
