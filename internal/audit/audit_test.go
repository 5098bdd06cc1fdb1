package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "audit.db"), nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		s.Close() //nolint:errcheck // Test cleanup
	})
	return s
}

func TestCreate_GeneratesIDAndTime(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	entry := &Entry{Action: "exec", EntityType: "sql", Source: "api"}
	if err := s.Create(ctx, entry); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(entry.ID) != len("aud-")+8 {
		t.Errorf("ID = %q, want aud- plus 8 characters", entry.ID)
	}
	if entry.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

func TestList_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	entries := []*Entry{
		{Action: "exec", EntityType: "sql", Source: "api", UserID: "alice", CreatedAt: base},
		{Action: "drop", EntityType: "index", EntityID: "idx_a", Source: "api", CreatedAt: base.Add(time.Second),
			Details: map[string]any{"if_exists": true}},
		{Action: "exec", EntityType: "sql", Source: "api", CreatedAt: base.Add(2 * time.Second)},
	}
	for _, e := range entries {
		if err := s.Create(ctx, e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	all, err := s.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if all.Total != 3 || len(all.Entries) != 3 {
		t.Fatalf("List() total=%d len=%d, want 3/3", all.Total, len(all.Entries))
	}
	if all.Limit != defaultLimit {
		t.Errorf("Limit = %d, want %d", all.Limit, defaultLimit)
	}
	// Newest first
	if !all.Entries[0].CreatedAt.Equal(base.Add(2 * time.Second)) {
		t.Errorf("first entry at %v, want newest", all.Entries[0].CreatedAt)
	}

	drop := all.Entries[1]
	if drop.Action != "drop" || drop.EntityID != "idx_a" {
		t.Errorf("second entry = %+v, want the drop", drop)
	}
	if drop.Details["if_exists"] != true {
		t.Errorf("details = %v, want if_exists=true", drop.Details)
	}
	if all.Entries[2].UserID != "alice" {
		t.Errorf("user = %q, want alice", all.Entries[2].UserID)
	}
}

func TestList_Filter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, e := range []*Entry{
		{Action: "exec", EntityType: "sql", Source: "api"},
		{Action: "create_index", EntityType: "index", EntityID: "idx_a", Source: "api"},
		{Action: "drop", EntityType: "index", EntityID: "idx_a", Source: "api"},
	} {
		if err := s.Create(ctx, e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"by action", Filter{Action: "exec"}, 1},
		{"by entity type", Filter{EntityType: "index"}, 2},
		{"by entity", Filter{EntityType: "index", EntityID: "idx_a", Action: "drop"}, 1},
		{"no match", Filter{Action: "nothing"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if res.Total != tt.want || len(res.Entries) != tt.want {
				t.Errorf("total=%d len=%d, want %d", res.Total, len(res.Entries), tt.want)
			}
		})
	}
}

func TestList_Pagination(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := s.Create(ctx, &Entry{Action: "exec", EntityType: "sql", Source: "api"}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	res, err := s.List(ctx, Filter{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 5 || len(res.Entries) != 1 {
		t.Errorf("total=%d len=%d, want 5/1", res.Total, len(res.Entries))
	}

	res, err = s.List(ctx, Filter{Limit: 1000, Offset: -3})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Limit != maxLimit || res.Offset != 0 {
		t.Errorf("limit=%d offset=%d, want clamped %d/0", res.Limit, res.Offset, maxLimit)
	}
}
