package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/catalogdb/internal/infrastructure/database"
)

// TableInfo describes one user table.
type TableInfo struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	SQL     string   `json:"sql"`
}

// IndexRequest is the body of POST /indexes.
type IndexRequest struct {
	Name        string   `json:"name"`
	Table       string   `json:"table"`
	Columns     []string `json:"columns"`
	Unique      bool     `json:"unique"`
	IfNotExists bool     `json:"if_not_exists"`
}

// handleSchema lists user tables in creation order.
func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	s.dbMu.Lock()
	defer s.dbMu.Unlock()

	tables := []TableInfo{}
	for table, err := range s.db.Schema(r.Context()) {
		if err != nil {
			writeDatabaseError(w, err)
			return
		}
		tables = append(tables, TableInfo{Name: table.Name, Columns: table.Columns, SQL: table.SQL})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tables": tables,
		"count":  len(tables),
	})
}

// handleRowCount returns the number of rows in a table.
func (s *Server) handleRowCount(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")

	s.dbMu.Lock()
	count, err := s.db.RowCount(r.Context(), table)
	s.dbMu.Unlock()

	if err != nil {
		writeDatabaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"table": table,
		"count": count,
	})
}

// handleCreateIndex creates an index.
func (s *Server) handleCreateIndex(w http.ResponseWriter, r *http.Request) {
	var req IndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.Name == "" || req.Table == "" || len(req.Columns) == 0 {
		writeBadRequest(w, "name, table and columns are required")
		return
	}

	s.dbMu.Lock()
	err := s.db.CreateIndex(r.Context(), req.Name, req.Table, req.Columns, database.IndexOptions{
		Unique:      req.Unique,
		IfNotExists: req.IfNotExists,
	})
	s.dbMu.Unlock()

	if err != nil {
		writeDatabaseError(w, err)
		return
	}
	s.recordAudit(r.Context(), auditActionCreateIndex, "index", req.Name, map[string]any{
		"table":   req.Table,
		"columns": req.Columns,
		"unique":  req.Unique,
	})
	writeJSON(w, http.StatusCreated, req)
}

// handleDrop removes a table, view or index.
func (s *Server) handleDrop(w http.ResponseWriter, r *http.Request) {
	ifExists := false
	if v := r.URL.Query().Get("if_exists"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeBadRequest(w, "if_exists must be a boolean")
			return
		}
		ifExists = b
	}

	kind, name := chi.URLParam(r, "kind"), chi.URLParam(r, "name")

	s.dbMu.Lock()
	err := s.db.Drop(r.Context(), kind, name, ifExists)
	s.dbMu.Unlock()

	if err != nil {
		writeDatabaseError(w, err)
		return
	}
	s.recordAudit(r.Context(), auditActionDrop, strings.ToLower(kind), name, map[string]any{
		"if_exists": ifExists,
	})
	w.WriteHeader(http.StatusNoContent)
}
