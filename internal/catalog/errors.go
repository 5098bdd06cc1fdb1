package catalog

import "errors"

var (
	// ErrInvalidDocument is returned when a catalog document has the wrong shape.
	ErrInvalidDocument = errors.New("catalog: invalid document")

	// ErrDuplicateQuery is returned when the same query name is defined twice
	// across the defaults, insert and select sections.
	ErrDuplicateQuery = errors.New("catalog: duplicate query name")
)
