package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"github.com/nerrad567/catalogdb/internal/api"
	"github.com/nerrad567/catalogdb/internal/audit"
	"github.com/nerrad567/catalogdb/internal/auth"
	"github.com/nerrad567/catalogdb/internal/infrastructure/database"
	"github.com/nerrad567/catalogdb/internal/infrastructure/mqtt"
)

// errMQTTDisabled is returned by watch when no broker is configured.
var errMQTTDisabled = errors.New("mqtt is disabled; enable it in the config file")

// errNoSecret is returned by token when no JWT secret is configured.
var errNoSecret = errors.New("api.jwt.secret is not set; configure it or set CATALOGDB_JWT_SECRET")

// Globals are flags shared by every command.
type Globals struct {
	Config  string           `short:"c" help:"Path to config.yaml (defaults are used when omitted)" type:"existingfile"`
	DB      string           `name:"db" help:"SQLite database file (overrides config)" type:"path"`
	Catalog string           `help:"Query catalog, YAML or JSON (overrides config)" type:"path"`
	Version kong.VersionFlag `help:"Print version information"`
}

// CLI defines the command-line interface for catalogdb.
type CLI struct {
	Globals

	Schema SchemaCmd `cmd:"" help:"List tables and their columns"`
	Count  CountCmd  `cmd:"" help:"Count the rows of a table"`
	Run    RunCmd    `cmd:"" help:"Run a named catalog query"`
	Exec   ExecCmd   `cmd:"" help:"Run literal SQL"`
	Index  IndexCmd  `cmd:"" help:"Create an index"`
	Drop   DropCmd   `cmd:"" help:"Drop a table, index, view or trigger"`
	Names  NamesCmd  `cmd:"" help:"List the named queries in the catalog"`
	Health HealthCmd `cmd:"" help:"Check the database and configured sinks"`
	Watch  WatchCmd  `cmd:"" help:"Print query events published over MQTT"`
	Serve  ServeCmd  `cmd:"" help:"Serve the HTTP API and query event stream"`
	Token  TokenCmd  `cmd:"" help:"Issue an API token signed with the configured secret"`
}

// SchemaCmd lists user tables.
type SchemaCmd struct{}

func (c *SchemaCmd) Run(e *env) error {
	db, err := e.database()
	if err != nil {
		return err
	}
	for table, err := range db.Schema(e.ctx) {
		if err != nil {
			return err
		}
		fmt.Fprintf(e.out, "%s\t%s\n", table.Name, strings.Join(table.Columns, ","))
	}
	return nil
}

// CountCmd prints the number of rows in a table.
type CountCmd struct {
	Table string `arg:"" help:"Table name"`
}

func (c *CountCmd) Run(e *env) error {
	db, err := e.database()
	if err != nil {
		return err
	}
	n, err := db.RowCount(e.ctx, c.Table)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, n)
	return nil
}

// RunCmd dispatches a named catalog query.
type RunCmd struct {
	Name string            `arg:"" help:"Query name from the catalog defaults"`
	Args []string          `arg:"" optional:"" help:"Positional parameters"`
	Set  map[string]string `short:"s" help:"Substitute {key} in the query text (key=value)"`
}

func (c *RunCmd) Run(e *env) error {
	return dispatch(e, database.Query{
		Name:   c.Name,
		Format: formatValues(c.Set),
		Args:   bindArgs(c.Args),
	})
}

// ExecCmd dispatches literal SQL.
type ExecCmd struct {
	SQL  string            `arg:"" name:"sql" help:"SQL statement"`
	Args []string          `arg:"" optional:"" help:"Positional parameters"`
	Set  map[string]string `short:"s" help:"Substitute {key} in the statement (key=value)"`
}

func (c *ExecCmd) Run(e *env) error {
	return dispatch(e, database.Query{
		Text:   c.SQL,
		Format: formatValues(c.Set),
		Args:   bindArgs(c.Args),
	})
}

// IndexCmd creates an index.
type IndexCmd struct {
	Name        string   `arg:"" help:"Index name"`
	Table       string   `arg:"" help:"Table name"`
	Columns     []string `arg:"" help:"Indexed columns, in order"`
	Unique      bool     `help:"Create a UNIQUE index"`
	IfNotExists bool     `help:"Do nothing if the index exists"`
}

func (c *IndexCmd) Run(e *env) error {
	db, err := e.database()
	if err != nil {
		return err
	}
	return db.CreateIndex(e.ctx, c.Name, c.Table, c.Columns, database.IndexOptions{
		Unique:      c.Unique,
		IfNotExists: c.IfNotExists,
	})
}

// DropCmd drops a schema object.
type DropCmd struct {
	Kind     string `arg:"" help:"Object kind: table, index, view or trigger"`
	Name     string `arg:"" help:"Object name"`
	IfExists bool   `help:"Do nothing if the object does not exist"`
}

func (c *DropCmd) Run(e *env) error {
	db, err := e.database()
	if err != nil {
		return err
	}
	return db.Drop(e.ctx, c.Kind, c.Name, c.IfExists)
}

// NamesCmd lists catalog queries with their text.
type NamesCmd struct{}

func (c *NamesCmd) Run(e *env) error {
	db, err := e.database()
	if err != nil {
		return err
	}
	cat := db.Catalog()
	for _, name := range cat.Names() {
		text, _ := cat.Lookup(name)
		fmt.Fprintf(e.out, "%s\t%s\n", name, oneLine(text))
	}
	return nil
}

// HealthCmd checks every wired connection.
type HealthCmd struct{}

func (c *HealthCmd) Run(e *env) error {
	if err := e.healthCheck(); err != nil {
		return err
	}
	fmt.Fprintln(e.out, "ok")
	return nil
}

// WatchCmd prints query events until interrupted.
type WatchCmd struct {
	All bool `help:"Watch every instance, not just this one"`
}

func (c *WatchCmd) Run(e *env) error {
	if e.mqtt == nil {
		return errMQTTDisabled
	}

	topic := e.mqtt.Topics().Query()
	if c.All {
		topic = mqtt.Topics{}.AllQueries()
	}

	err := e.mqtt.Watch(e.ctx, topic, func(ev mqtt.Event) {
		writeEvent(e.out, ev)
	})
	if err != nil {
		return err
	}
	e.log.Info("watching query events", "topic", topic)

	<-e.ctx.Done()
	return nil
}

// ServeCmd runs the HTTP API until interrupted.
type ServeCmd struct {
	Host string `help:"Listen host (overrides config)"`
	Port int    `help:"Listen port (overrides config)"`
}

func (c *ServeCmd) Run(e *env) error {
	apiCfg := e.cfg.API
	if c.Host != "" {
		apiCfg.Host = c.Host
	}
	if c.Port != 0 {
		apiCfg.Port = c.Port
	}

	// The hub must observe the database from the first statement.
	hub := api.NewHub(apiCfg.WebSocket, e.log)
	e.observers = append(e.observers, hub)
	db, err := e.database()
	if err != nil {
		return err
	}

	deps := api.Deps{
		Config:  apiCfg,
		Logger:  e.log,
		DB:      db,
		Hub:     hub,
		Version: version,
	}
	if e.cfg.Audit.Enabled {
		store, err := audit.Open(e.ctx, e.cfg.Audit.Path, e.log)
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck // Shutdown path
		deps.Audit = store
	}

	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(e.ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	if apiCfg.JWT.Secret == "" {
		e.log.Warn("API authentication disabled; set api.jwt.secret to require tokens")
	}
	e.log.Info("serving", "address", server.Addr(), "database", db.Path())

	<-e.ctx.Done()
	return server.Close()
}

// TokenCmd prints a signed API token.
type TokenCmd struct {
	Role    string        `enum:"reader,writer,admin" default:"reader" help:"Token role (${enum})"`
	Subject string        `default:"catalogdb" help:"Token subject"`
	TTL     time.Duration `name:"ttl" help:"Token lifetime (defaults to api.jwt.token_ttl minutes)"`
}

func (c *TokenCmd) Run(e *env) error {
	secret := e.cfg.API.JWT.Secret
	if secret == "" {
		return errNoSecret
	}
	ttl := c.TTL
	if ttl == 0 {
		ttl = time.Duration(e.cfg.API.JWT.TokenTTL) * time.Minute
	}

	token, err := auth.GenerateToken(c.Subject, auth.Role(c.Role), secret, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	fmt.Fprintln(e.out, token)
	return nil
}

// dispatch runs q and prints its rows, header first.
func dispatch(e *env, q database.Query) error {
	db, err := e.database()
	if err != nil {
		return err
	}
	rows, err := db.Dispatch(e.ctx, q)
	if err != nil {
		return err
	}
	defer rows.Close() //nolint:errcheck // All closes the cursor too

	if cols := rows.Columns(); len(cols) > 0 {
		fmt.Fprintln(e.out, strings.Join(cols, "\t"))
	}
	for row, err := range rows.All() {
		if err != nil {
			return err
		}
		writeRow(e.out, row)
	}
	return nil
}

// bindArgs turns command-line parameters into a single binding.
// Values are bound as text; SQLite column affinity converts them on insert
// and comparison.
func bindArgs(args []string) database.Binding {
	if len(args) == 0 {
		return database.Binding{}
	}
	values := make([]any, len(args))
	for i, a := range args {
		values[i] = a
	}
	return database.Single(values...)
}

func formatValues(set map[string]string) map[string]any {
	if len(set) == 0 {
		return nil
	}
	format := make(map[string]any, len(set))
	for k, v := range set {
		format[k] = v
	}
	return format
}

func writeRow(w io.Writer, row database.Row) {
	cells := make([]string, len(row))
	for i, v := range row {
		cells[i] = formatCell(v)
	}
	fmt.Fprintln(w, strings.Join(cells, "\t"))
}

func formatCell(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

func writeEvent(w io.Writer, ev mqtt.Event) {
	name := ev.Name
	if name == "" {
		name = "-"
	}
	line := fmt.Sprintf("%s\t%s\t%s\t%s\t%.3fms", ev.Timestamp, ev.Instance, ev.Kind, name, ev.DurationMS)
	if ev.Kind == string(database.EventBatch) {
		line += fmt.Sprintf("\ttuples=%d", ev.Tuples)
	}
	if ev.Error != "" {
		line += "\terror=" + ev.Error
	}
	fmt.Fprintln(w, line)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
