package database

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// Domain-specific errors for database operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrClosed is returned by every operation attempted after Close,
	// including iteration of rows obtained before the close.
	ErrClosed = errors.New("database: closed")

	// ErrMissingQueryText is returned when a query names neither a catalog
	// entry nor literal SQL.
	ErrMissingQueryText = errors.New("database: query has neither name nor text")

	// ErrUnknownQuery matches any *UnknownQueryError.
	ErrUnknownQuery = errors.New("database: unknown query name")
)

// UnknownQueryError reports a named query absent from the catalog defaults.
type UnknownQueryError struct {
	Name string
}

func (e *UnknownQueryError) Error() string {
	return fmt.Sprintf("database: unknown query name %q", e.Name)
}

// Is lets errors.Is(err, ErrUnknownQuery) match.
func (e *UnknownQueryError) Is(target error) bool {
	return target == ErrUnknownQuery
}

// ConfigError reports a catalog that cannot serve the requested operation:
// a bootstrap statement the engine rejected, or a missing defaults section.
type ConfigError struct {
	// Op names the phase that failed, e.g. "bootstrap" or "resolve".
	Op  string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("database: config %s: %v", e.Op, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// EngineError wraps a failure reported by SQLite. The driver's diagnostic is
// kept intact and reachable through errors.As.
type EngineError struct {
	Query string
	Err   error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("database: engine: %v", e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// Code returns the SQLite primary result code, or 0 when the failure did not
// originate in the driver.
func (e *EngineError) Code() sqlite3.ErrNo {
	var serr sqlite3.Error
	if errors.As(e.Err, &serr) {
		return serr.Code
	}
	return 0
}

// engineErr wraps err unless it is nil or already classified.
func engineErr(query string, err error) error {
	if err == nil {
		return nil
	}
	var ee *EngineError
	if errors.As(err, &ee) || errors.Is(err, ErrClosed) {
		return err
	}
	return &EngineError{Query: query, Err: err}
}
