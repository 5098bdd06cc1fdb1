package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/catalogdb/internal/auth"
	"github.com/nerrad567/catalogdb/internal/infrastructure/database"
)

const testCatalog = `
create:
  - CREATE TABLE IF NOT EXISTS people (id INTEGER PRIMARY KEY, name TEXT NOT NULL)
defaults:
  insert_person: INSERT INTO people (id, name) VALUES (?, ?)
  all_people: SELECT id, name FROM people ORDER BY id
  count_of: SELECT count(*) AS n FROM {table}
`

// fixture holds the files one test's invocations share.
type fixture struct {
	dir     string
	db      string
	catalog string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	catalogPath := filepath.Join(dir, "catalog.yaml")
	if err := os.WriteFile(catalogPath, []byte(testCatalog), 0600); err != nil {
		t.Fatalf("failed to write catalog: %v", err)
	}
	return fixture{
		dir:     dir,
		db:      filepath.Join(dir, "test.db"),
		catalog: catalogPath,
	}
}

// invoke runs the CLI against the fixture and returns stdout.
func (f fixture) invoke(t *testing.T, args ...string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var stdout, stderr bytes.Buffer
	full := append([]string{"--db", f.db, "--catalog", f.catalog}, args...)
	err := run(ctx, full, &stdout, &stderr)
	return stdout.String(), err
}

// mustInvoke is invoke that fails the test on error.
func (f fixture) mustInvoke(t *testing.T, args ...string) string {
	t.Helper()
	out, err := f.invoke(t, args...)
	if err != nil {
		t.Fatalf("run(%v) error = %v", args, err)
	}
	return out
}

func TestRun_NamedQueries(t *testing.T) {
	f := newFixture(t)

	f.mustInvoke(t, "run", "insert_person", "1", "alice")
	f.mustInvoke(t, "run", "insert_person", "2", "bob")

	got := f.mustInvoke(t, "run", "all_people")
	want := "id\tname\n1\talice\n2\tbob\n"
	if got != want {
		t.Errorf("all_people output = %q, want %q", got, want)
	}

	got = f.mustInvoke(t, "run", "count_of", "--set", "table=people")
	if got != "n\n2\n" {
		t.Errorf("count_of output = %q, want %q", got, "n\n2\n")
	}
}

func TestRun_UnknownQuery(t *testing.T) {
	f := newFixture(t)

	_, err := f.invoke(t, "run", "no_such_query")
	if !errors.Is(err, database.ErrUnknownQuery) {
		t.Errorf("run error = %v, want ErrUnknownQuery", err)
	}
}

func TestRun_Exec(t *testing.T) {
	f := newFixture(t)

	f.mustInvoke(t, "exec", "INSERT INTO people (id, name) VALUES (?, ?)", "7", "carol")

	got := f.mustInvoke(t, "exec", "SELECT name, NULL AS missing FROM people WHERE id = ?", "7")
	want := "name\tmissing\ncarol\tNULL\n"
	if got != want {
		t.Errorf("exec output = %q, want %q", got, want)
	}
}

func TestRun_ExecEngineError(t *testing.T) {
	f := newFixture(t)

	_, err := f.invoke(t, "exec", "SELECT * FROM missing_table")
	var engineErr *database.EngineError
	if !errors.As(err, &engineErr) {
		t.Errorf("exec error = %v, want *database.EngineError", err)
	}
}

func TestRun_ExecRejectsMultipleStatements(t *testing.T) {
	f := newFixture(t)

	_, err := f.invoke(t, "exec", "INSERT INTO people VALUES (1, 'a'); INSERT INTO people VALUES (2, 'b')")
	if !errors.Is(err, database.ErrMultipleStatements) {
		t.Fatalf("exec error = %v, want ErrMultipleStatements", err)
	}
	if got := f.mustInvoke(t, "count", "people"); got != "0\n" {
		t.Errorf("count output = %q after rejected exec, want %q", got, "0\n")
	}
}

func TestRun_SchemaAndCount(t *testing.T) {
	f := newFixture(t)

	if got := f.mustInvoke(t, "schema"); got != "people\tid,name\n" {
		t.Errorf("schema output = %q", got)
	}

	f.mustInvoke(t, "run", "insert_person", "1", "alice")
	if got := f.mustInvoke(t, "count", "people"); got != "1\n" {
		t.Errorf("count output = %q, want %q", got, "1\n")
	}
}

func TestRun_IndexAndDrop(t *testing.T) {
	f := newFixture(t)
	const lookup = "SELECT name FROM sqlite_master WHERE type = 'index' AND name = 'idx_people_name'"

	f.mustInvoke(t, "index", "idx_people_name", "people", "name", "--unique")
	if got := f.mustInvoke(t, "exec", lookup); got != "name\nidx_people_name\n" {
		t.Errorf("index lookup = %q", got)
	}

	// Creating it again fails unless guarded
	if _, err := f.invoke(t, "index", "idx_people_name", "people", "name"); err == nil {
		t.Error("duplicate index: expected error")
	}
	f.mustInvoke(t, "index", "idx_people_name", "people", "name", "--if-not-exists")

	f.mustInvoke(t, "drop", "index", "idx_people_name")
	if got := f.mustInvoke(t, "exec", lookup); got != "name\n" {
		t.Errorf("index lookup after drop = %q", got)
	}

	if _, err := f.invoke(t, "drop", "index", "idx_people_name"); err == nil {
		t.Error("dropping a missing index: expected error")
	}
	f.mustInvoke(t, "drop", "index", "idx_people_name", "--if-exists")
}

func TestRun_Names(t *testing.T) {
	f := newFixture(t)

	got := f.mustInvoke(t, "names")
	lines := strings.Split(strings.TrimSpace(got), "\n")
	if len(lines) != 3 {
		t.Fatalf("names printed %d lines, want 3: %q", len(lines), got)
	}
	wantOrder := []string{"all_people", "count_of", "insert_person"}
	for i, name := range wantOrder {
		if !strings.HasPrefix(lines[i], name+"\t") {
			t.Errorf("line %d = %q, want prefix %q", i, lines[i], name)
		}
	}
}

func TestRun_Health(t *testing.T) {
	f := newFixture(t)

	if got := f.mustInvoke(t, "health"); got != "ok\n" {
		t.Errorf("health output = %q, want %q", got, "ok\n")
	}
}

func TestRun_WatchRequiresMQTT(t *testing.T) {
	f := newFixture(t)

	_, err := f.invoke(t, "watch")
	if !errors.Is(err, errMQTTDisabled) {
		t.Errorf("watch error = %v, want errMQTTDisabled", err)
	}
}

const testSecret = "cli-test-secret-at-least-32-characters"

func TestRun_Token(t *testing.T) {
	f := newFixture(t)
	t.Setenv("CATALOGDB_JWT_SECRET", testSecret)

	out := f.mustInvoke(t, "token", "--role", "writer", "--subject", "ops", "--ttl", "5m")
	claims, err := auth.ParseToken(strings.TrimSpace(out), testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "ops" || claims.Role != auth.RoleWriter {
		t.Errorf("claims = %s/%s, want ops/writer", claims.Subject, claims.Role)
	}
	if ttl := time.Until(claims.ExpiresAt.Time); ttl > 5*time.Minute || ttl < 4*time.Minute {
		t.Errorf("token expires in %v, want about 5m", ttl)
	}
}

func TestRun_TokenRequiresSecret(t *testing.T) {
	f := newFixture(t)
	t.Setenv("CATALOGDB_JWT_SECRET", "")

	if _, err := f.invoke(t, "token"); !errors.Is(err, errNoSecret) {
		t.Errorf("token error = %v, want errNoSecret", err)
	}
	if _, err := f.invoke(t, "token", "--role", "root"); err == nil {
		t.Error("token with an unknown role: expected error")
	}
}

// freePort returns a TCP port that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close() //nolint:errcheck // Test cleanup
	return ln.Addr().(*net.TCPAddr).Port
}

func TestRun_Serve(t *testing.T) {
	f := newFixture(t)
	t.Setenv("CATALOGDB_JWT_SECRET", "")
	port := freePort(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		args := []string{"--db", f.db, "--catalog", f.catalog, "serve", "--port", fmt.Sprint(port)}
		done <- run(ctx, args, &bytes.Buffer{}, &bytes.Buffer{})
	}()

	url := fmt.Sprintf("http://127.0.0.1:%d/api/v1/queries", port)
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("GET queries status = %d, want 200", resp.StatusCode)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not come up: %v", err)
		}
		select {
		case err := <-done:
			t.Fatalf("serve exited early: %v", err)
		case <-time.After(50 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve returned %v, want nil after cancel", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}

func TestRun_WithoutCatalog(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "plain.db")

	var stdout bytes.Buffer
	ctx := context.Background()

	if err := run(ctx, []string{"--db", dbPath, "exec", "CREATE TABLE t (x)"}, &stdout, &bytes.Buffer{}); err != nil {
		t.Fatalf("exec error = %v", err)
	}

	err := run(ctx, []string{"--db", dbPath, "run", "anything"}, &stdout, &bytes.Buffer{})
	var cfgErr *database.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("run without catalog error = %v, want *database.ConfigError", err)
	}
}

func TestRun_ConfigFile(t *testing.T) {
	f := newFixture(t)
	configPath := filepath.Join(f.dir, "config.yaml")
	configContent := `
instance:
  id: test-instance

database:
  path: "` + f.db + `"
  wal_mode: true
  busy_timeout: 5

catalog:
  path: "` + f.catalog + `"

logging:
  level: debug
  format: json
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"--config", configPath, "count", "people"}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if stdout.String() != "0\n" {
		t.Errorf("count output = %q, want %q", stdout.String(), "0\n")
	}
	logs := stderr.String()
	if !strings.Contains(logs, `"service":"catalogdb"`) || !strings.Contains(logs, `"instance":"test-instance"`) {
		t.Errorf("expected JSON logs with default fields on stderr, got %q", logs)
	}
	if !strings.Contains(logs, `"msg":"query executed"`) || !strings.Contains(logs, `SELECT COUNT(*)`) {
		t.Errorf("expected the count statement in debug logs, got %q", logs)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	err := run(context.Background(),
		[]string{"--config", "/nonexistent/path/config.yaml", "schema"},
		&bytes.Buffer{}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

func TestRun_InvalidCatalog(t *testing.T) {
	dir := t.TempDir()
	catalogPath := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(catalogPath, []byte("create: 42\n"), 0600); err != nil {
		t.Fatalf("failed to write catalog: %v", err)
	}

	err := run(context.Background(),
		[]string{"--db", filepath.Join(dir, "x.db"), "--catalog", catalogPath, "schema"},
		&bytes.Buffer{}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("run() should fail with an invalid catalog")
	}
}

func TestFormatCell(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "NULL"},
		{[]byte("bytes"), "bytes"},
		{int64(42), "42"},
		{1.5, "1.5"},
		{"text", "text"},
	}

	for _, tt := range tests {
		if got := formatCell(tt.in); got != tt.want {
			t.Errorf("formatCell(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBindArgs(t *testing.T) {
	if b := bindArgs(nil); b.Len() != 0 || b.IsBatch() {
		t.Errorf("bindArgs(nil) = len %d batch %v, want empty single", b.Len(), b.IsBatch())
	}
	if b := bindArgs([]string{"a", "b"}); b.Len() != 1 || b.IsBatch() {
		t.Errorf("bindArgs(a, b) = len %d batch %v, want one single tuple", b.Len(), b.IsBatch())
	}
}
