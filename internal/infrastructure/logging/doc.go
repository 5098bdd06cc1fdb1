// Package logging provides structured logging for catalogdb.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version, instance) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - A database.Observer that logs every executed statement
//
// # Configuration
//
// Logging is configured via the LoggingConfig in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # json, text
//	  output: "stderr"   # stdout, stderr
//	  slow_query_ms: 250 # statements this slow log at info; 0 disables
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0", logging.WithInstance(cfg.Instance.ID))
//	logger.Info("database opened", "path", cfg.Database.Path)
//
//	db, err := database.Open(ctx, cfg.Database, cat, database.WithObserver(logger))
//
// Statements log at debug, failures at warn and slow statements at info.
//
// # Security
//
// Never log secrets, tokens or bound query parameters; statement text is
// fine, the values bound to it are not.
package logging
