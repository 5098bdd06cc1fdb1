// Package audit keeps a trail of mutating API calls (literal SQL, batches,
// index creation and drops) in a dedicated SQLite file.
//
// The trail is itself a catalogdb database: its schema and statements are
// an embedded catalog, and the filtered list query is assembled through
// placeholder substitution.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/catalogdb/internal/catalog"
	"github.com/nerrad567/catalogdb/internal/infrastructure/database"
)

// Page size limits for List.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// timeLayout sorts lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Named statements of the audit catalog.
const (
	queryInsert = "insert"
	queryCount  = "count"
	queryList   = "list"
)

// Entry represents a single audit trail record.
type Entry struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	Source     string         `json:"source"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter controls which entries List returns.
type Filter struct {
	Action     string // optional: exact action match
	EntityType string // optional: exact entity type match
	EntityID   string // optional: exact entity match
	Limit      int    // default 50, max 200
	Offset     int    // pagination offset
}

// ListResult is one page of entries, newest first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository records and lists audit entries.
type Repository interface {
	Create(ctx context.Context, entry *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// Store is a Repository backed by its own SQLite database.
type Store struct {
	db *database.Database
	mu sync.Mutex
}

// auditCatalog declares the audit_logs schema and statements.
// {where} receives a clause built from fixed conditions; values are bound.
func auditCatalog() *catalog.Catalog {
	return catalog.New(
		[]string{
			`CREATE TABLE IF NOT EXISTS audit_logs (
				id TEXT PRIMARY KEY,
				action TEXT NOT NULL,
				entity_type TEXT NOT NULL,
				entity_id TEXT,
				user_id TEXT,
				source TEXT NOT NULL,
				details TEXT,
				created_at TEXT NOT NULL
			)`,
			"CREATE INDEX IF NOT EXISTS idx_audit_logs_created ON audit_logs(created_at)",
		},
		map[string]string{
			queryInsert: `INSERT INTO audit_logs (id, action, entity_type, entity_id, user_id, source, details, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			queryCount: "SELECT COUNT(*) FROM audit_logs {where}",
			queryList: `SELECT id, action, entity_type, entity_id, user_id, source, details, created_at
				FROM audit_logs {where} ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		},
	)
}

// Open opens (creating if needed) the audit database at path.
func Open(ctx context.Context, path string, logger database.Logger) (*Store, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        path,
		WALMode:     true,
		BusyTimeout: 5,
	}, auditCatalog(), database.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the audit database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts entry. The ID and CreatedAt are generated if empty.
func (s *Store) Create(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = "aud-" + uuid.NewString()[:8]
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var details any
	if entry.Details != nil {
		b, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshalling audit details: %w", err)
		}
		details = string(b)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Run(ctx, queryInsert,
		entry.ID, entry.Action, entry.EntityType,
		nullableString(entry.EntityID), nullableString(entry.UserID),
		entry.Source, details,
		entry.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// nullableString maps "" to NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns entries matching filter, newest first.
func (s *Store) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	where, args := filter.where()
	format := map[string]any{"where": where}

	s.mu.Lock()
	defer s.mu.Unlock()

	countRows, err := s.db.Materialize(ctx, database.Query{
		Name:   queryCount,
		Format: format,
		Args:   database.Single(args...),
	})
	if err != nil {
		return nil, fmt.Errorf("counting audit entries: %w", err)
	}
	total, _ := countRows[0][0].(int64) //nolint:errcheck // COUNT(*) is always an integer

	rows, err := s.db.Dispatch(ctx, database.Query{
		Name:   queryList,
		Format: format,
		Args:   database.Single(append(args, filter.Limit, filter.Offset)...),
	})
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor

	entries := []Entry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   int(total),
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

func (f Filter) where() (string, []any) {
	var conditions []string
	var args []any

	if f.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, f.Action)
	}
	if f.EntityType != "" {
		conditions = append(conditions, "entity_type = ?")
		args = append(args, f.EntityType)
	}
	if f.EntityID != "" {
		conditions = append(conditions, "entity_id = ?")
		args = append(args, f.EntityID)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

func scanEntry(rows *database.Rows) (Entry, error) {
	var entry Entry
	var entityID, userID, details sql.NullString
	var createdAt string

	if err := rows.Scan(&entry.ID, &entry.Action, &entry.EntityType,
		&entityID, &userID, &entry.Source, &details, &createdAt); err != nil {
		return Entry{}, fmt.Errorf("scanning audit entry: %w", err)
	}

	entry.EntityID = entityID.String
	entry.UserID = userID.String
	if details.Valid && details.String != "" {
		var m map[string]any
		if json.Unmarshal([]byte(details.String), &m) == nil {
			entry.Details = m
		}
	}

	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parsing audit timestamp %q: %w", createdAt, err)
	}
	entry.CreatedAt = t
	return entry, nil
}
