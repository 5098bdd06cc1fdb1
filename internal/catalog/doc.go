// Package catalog holds the named-query catalog consumed by the database layer.
//
// A catalog is loaded once from a YAML (or JSON) document and is read-only
// afterwards. It carries two sections:
//
//	create:                      # bootstrap statements, run in order at open
//	  - CREATE TABLE IF NOT EXISTS people (id INTEGER PRIMARY KEY, name TEXT)
//	defaults:                    # named queries resolvable by dispatch
//	  insert_person: INSERT INTO people VALUES (?, ?)
//	  all_people: SELECT * FROM {table}
//
// The older document layout is also understood: `create` may be a mapping of
// table name to statement (document order is kept), the `insert` and `select`
// groups are folded into `defaults`, and a `details` section names the
// database file.
//
// Callers that need different queries build a new Catalog; there is no way to
// mutate one after construction, so a Catalog may be shared freely between
// goroutines.
package catalog
