// Package database is the SQLite access layer of catalogdb.
//
// This package manages:
//   - One connection per Database, opened with foreign keys enforced
//   - Bootstrap of the catalog's create statements at open
//   - Dispatch of catalog (by name) or literal (by text) queries
//   - Schema introspection and index/table lifecycle helpers
//   - Scalar functions registered on the connection
//
// Dispatch resolves a Query in a fixed order: a Name always refers to the
// catalog defaults and never falls back to Text; Text is used verbatim; a
// query with neither is rejected. {key} placeholders are then replaced from
// Query.Format, and the statement runs once per tuple of Query.Args.
//
// Usage:
//
//	cat, err := catalog.Load("configs/catalog.yaml")
//	if err != nil {
//	    return err
//	}
//
//	err = database.With(ctx, database.Config{Path: "data/app.db"}, cat, func(db *database.Database) error {
//	    _, err := db.Dispatch(ctx, database.Query{
//	        Name: "insert_person",
//	        Args: database.Batch([]any{1, "Mark"}, []any{2, "Eloise"}),
//	    })
//	    if err != nil {
//	        return err
//	    }
//	    rows, err := db.Materialize(ctx, database.Query{Name: "all_people"})
//	    ...
//	})
//
// Errors:
//   - *ConfigError: bootstrap statement rejected, or no defaults section
//   - *UnknownQueryError (errors.Is ErrUnknownQuery): name not in catalog
//   - ErrMissingQueryText: neither name nor text
//   - *EngineError: anything SQLite reports, diagnostic preserved
//   - ErrClosed: any use after Close
//
// Nothing is retried.
package database
