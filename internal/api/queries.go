package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/catalogdb/internal/auth"
	"github.com/nerrad567/catalogdb/internal/infrastructure/database"
)

// QueryInfo describes one catalog query.
type QueryInfo struct {
	Name string `json:"name"`
	SQL  string `json:"sql"`
}

// QueryRequest is the body of POST /queries/{name} and POST /exec.
//
// Args binds one tuple; Batch binds several, applied in one transaction.
// Setting both is rejected.
type QueryRequest struct {
	SQL    string         `json:"sql,omitempty"`
	Args   []any          `json:"args,omitempty"`
	Batch  [][]any        `json:"batch,omitempty"`
	Format map[string]any `json:"format,omitempty"`
}

// QueryResponse carries a materialized result.
type QueryResponse struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
	Count   int      `json:"count"`
}

// handleListQueries lists the catalog queries in name order.
func (s *Server) handleListQueries(w http.ResponseWriter, _ *http.Request) {
	cat := s.db.Catalog()
	names := cat.Names()
	out := make([]QueryInfo, 0, len(names))
	for _, name := range names {
		text, _ := cat.Lookup(name)
		out = append(out, QueryInfo{Name: name, SQL: text})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"queries": out,
		"count":   len(out),
	})
}

// handleRunQuery dispatches a catalog query by name.
// Placeholder substitution splices text into the SQL, so it needs the
// permission to run arbitrary statements.
func (s *Server) handleRunQuery(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQueryRequest(w, r)
	if !ok {
		return
	}
	if len(req.Format) > 0 && !s.allowed(r, auth.PermQueryExec) {
		writeForbidden(w, "format substitution requires "+string(auth.PermQueryExec))
		return
	}

	name := chi.URLParam(r, "name")
	resp, ok := s.dispatch(w, r, database.Query{
		Name:   name,
		Format: req.Format,
		Args:   req.binding(),
	})
	if !ok {
		return
	}
	if req.Batch != nil {
		s.recordAudit(r.Context(), auditActionBatch, "query", name, map[string]any{
			"tuples": len(req.Batch),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleExec dispatches literal SQL.
func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQueryRequest(w, r)
	if !ok {
		return
	}
	if req.SQL == "" {
		writeBadRequest(w, "sql is required")
		return
	}

	q := database.Query{
		Text:   req.SQL,
		Format: req.Format,
		Args:   req.binding(),
	}
	resp, ok := s.dispatch(w, r, q)
	if !ok {
		return
	}
	details := map[string]any{"sql": req.SQL}
	if req.Batch != nil {
		details["tuples"] = len(req.Batch)
	}
	s.recordAudit(r.Context(), auditActionExec, "sql", "", details)
	writeJSON(w, http.StatusOK, resp)
}

// dispatch runs q and collects every row. On failure the error response
// is written and ok is false. The cursor is drained while the server holds
// the connection.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, q database.Query) (QueryResponse, bool) {
	s.dbMu.Lock()
	resp, err := s.materialize(r, q)
	s.dbMu.Unlock()

	if err != nil {
		writeDatabaseError(w, err)
		return QueryResponse{}, false
	}
	return resp, true
}

func (s *Server) materialize(r *http.Request, q database.Query) (QueryResponse, error) {
	rows, err := s.db.Dispatch(r.Context(), q)
	if err != nil {
		return QueryResponse{}, err
	}

	resp := QueryResponse{
		Columns: rows.Columns(),
		Rows:    [][]any{},
	}
	if resp.Columns == nil {
		resp.Columns = []string{}
	}
	for row, err := range rows.All() {
		if err != nil {
			return QueryResponse{}, err
		}
		resp.Rows = append(resp.Rows, row)
	}
	resp.Count = len(resp.Rows)
	return resp, nil
}

// decodeQueryRequest reads an optional JSON body. An empty body is an
// empty request.
func decodeQueryRequest(w http.ResponseWriter, r *http.Request) (QueryRequest, bool) {
	var req QueryRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return QueryRequest{}, false
	}
	if len(req.Args) > 0 && len(req.Batch) > 0 {
		writeBadRequest(w, "args and batch are mutually exclusive")
		return QueryRequest{}, false
	}

	req.Args = normalizeTuple(req.Args)
	for i, tuple := range req.Batch {
		req.Batch[i] = normalizeTuple(tuple)
	}
	for k, v := range req.Format {
		req.Format[k] = normalizeValue(v)
	}
	return req, true
}

func (q QueryRequest) binding() database.Binding {
	if q.Batch != nil {
		return database.Batch(q.Batch...)
	}
	if q.Args == nil {
		return database.Binding{}
	}
	return database.Single(q.Args...)
}

func normalizeTuple(tuple []any) []any {
	for i, v := range tuple {
		tuple[i] = normalizeValue(v)
	}
	return tuple
}

// normalizeValue maps decoded JSON onto SQLite bind values: integral
// numbers become int64, other numbers float64. Arrays and objects are bound
// as their JSON text.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case []any, map[string]any:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	default:
		return v
	}
}
