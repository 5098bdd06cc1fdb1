package api

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/nerrad567/catalogdb/internal/audit"
	"github.com/nerrad567/catalogdb/internal/auth"
)

func withAudit(t *testing.T, e *testEnv) *audit.Store {
	t.Helper()
	store, err := audit.Open(context.Background(), filepath.Join(t.TempDir(), "audit.db"), nil)
	if err != nil {
		t.Fatalf("audit.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close() //nolint:errcheck // Test cleanup
	})
	e.srv.audit = store
	return store
}

func TestAudit_RecordsMutations(t *testing.T) {
	e := newTestEnv(t, testSecret)
	withAudit(t, e)
	admin := token(t, auth.RoleAdmin)

	e.do(t, http.MethodPost, "/api/v1/queries/insert_person", admin, QueryRequest{Batch: [][]any{{1, "alice"}}}, nil)
	e.do(t, http.MethodPost, "/api/v1/queries/all_people", admin, nil, nil)
	e.do(t, http.MethodPost, "/api/v1/exec", admin, QueryRequest{SQL: "DELETE FROM people"}, nil)
	e.do(t, http.MethodPost, "/api/v1/exec", admin, QueryRequest{SQL: "SELEC broken"}, nil)
	e.do(t, http.MethodPost, "/api/v1/indexes", admin, IndexRequest{Name: "people_name", Table: "people", Columns: []string{"name"}}, nil)
	e.do(t, http.MethodDelete, "/api/v1/objects/INDEX/people_name", admin, nil, nil)

	var page audit.ListResult
	if status := e.do(t, http.MethodGet, "/api/v1/audit", admin, nil, &page); status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	// Reads and failed statements are not recorded
	want := []string{auditActionDrop, auditActionCreateIndex, auditActionExec, auditActionBatch}
	if page.Total != len(want) {
		t.Fatalf("total = %d, want %d: %+v", page.Total, len(want), page.Entries)
	}
	for i, action := range want {
		if page.Entries[i].Action != action {
			t.Errorf("entries[%d].Action = %q, want %q", i, page.Entries[i].Action, action)
		}
		if page.Entries[i].UserID != "tester" {
			t.Errorf("entries[%d].UserID = %q, want tester", i, page.Entries[i].UserID)
		}
	}
	if page.Entries[0].EntityType != "index" || page.Entries[0].EntityID != "people_name" {
		t.Errorf("drop entry = %+v", page.Entries[0])
	}
	if page.Entries[3].EntityID != "insert_person" || page.Entries[3].Details["tuples"] != float64(1) {
		t.Errorf("batch entry = %+v", page.Entries[3])
	}

	var filtered audit.ListResult
	e.do(t, http.MethodGet, "/api/v1/audit?action=exec&limit=10", admin, nil, &filtered)
	if filtered.Total != 1 || filtered.Entries[0].Details["sql"] != "DELETE FROM people" {
		t.Errorf("filtered = %+v", filtered)
	}

	if status := e.do(t, http.MethodGet, "/api/v1/audit?limit=x", admin, nil, nil); status != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", status)
	}
	if status := e.do(t, http.MethodGet, "/api/v1/audit", token(t, auth.RoleWriter), nil, nil); status != http.StatusForbidden {
		t.Errorf("writer status = %d, want 403", status)
	}
}

func TestAudit_Disabled(t *testing.T) {
	e := newTestEnv(t, "")

	if status := e.do(t, http.MethodGet, "/api/v1/audit", "", nil, nil); status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
}
