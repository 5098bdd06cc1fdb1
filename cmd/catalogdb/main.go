// catalogdb runs catalog-defined and ad-hoc SQL against a SQLite database.
//
// The query catalog (a YAML or JSON document) declares the statements that
// bootstrap the schema and the named queries operators can run by name.
// Every executed statement can be reported to InfluxDB and MQTT.
//
// Usage:
//
//	catalogdb --db app.db --catalog catalog.yaml run all_people
//	catalogdb --db app.db exec "SELECT count(*) FROM people"
//	catalogdb --config configs/config.yaml schema
//	catalogdb --config configs/config.yaml serve
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/nerrad567/catalogdb/internal/catalog"
	"github.com/nerrad567/catalogdb/internal/infrastructure/config"
	"github.com/nerrad567/catalogdb/internal/infrastructure/database"
	"github.com/nerrad567/catalogdb/internal/infrastructure/influxdb"
	"github.com/nerrad567/catalogdb/internal/infrastructure/logging"
	"github.com/nerrad567/catalogdb/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

func main() {
	// Cancel on Ctrl+C or SIGTERM so long commands (watch, serve) shut down cleanly
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

// run parses args, wires the infrastructure and executes one command.
// It is separated from main for testability.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("catalogdb"),
		kong.Description("Run catalog-defined and ad-hoc SQL against a SQLite database."),
		kong.UsageOnError(),
		kong.Writers(stdout, stderr),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)
	if err != nil {
		return fmt.Errorf("building CLI: %w", err)
	}

	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cli.Globals)
	if err != nil {
		return err
	}

	log := logging.New(cfg.Logging, version,
		logging.WithOutput(stderr),
		logging.WithInstance(cfg.Instance.ID),
	)
	log.Debug("configuration loaded",
		"config", cli.Config,
		"database", cfg.Database.Path,
		"catalog", cfg.Catalog.Path,
	)

	e := &env{
		ctx:       ctx,
		cfg:       cfg,
		log:       log,
		out:       stdout,
		dbPathSet: cli.DB != "",
	}
	defer e.close()

	if err := e.connect(); err != nil {
		return err
	}

	return kctx.Run(e)
}

// loadConfig builds the effective configuration: the file (or defaults),
// then command-line overrides.
func loadConfig(g Globals) (*config.Config, error) {
	var cfg *config.Config
	if g.Config != "" {
		loaded, err := config.Load(g.Config)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	if g.Catalog != "" {
		cfg.Catalog.Path = g.Catalog
	}
	if g.DB != "" {
		cfg.Database.Path = g.DB
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// env carries the wired infrastructure into command Run methods.
// The database is opened on first use so commands that do not touch it
// (watch) work without a database file.
type env struct {
	ctx context.Context
	cfg *config.Config
	log *logging.Logger
	out io.Writer

	// dbPathSet records that the database path came from the command line
	// and must win over a path declared in the catalog.
	dbPathSet bool

	// observers are added to the database at open, after the sinks.
	observers []database.Observer

	cat    *catalog.Catalog
	db     *database.Database
	influx *influxdb.Recorder
	mqtt   *mqtt.Client
}

// connect brings up the optional observers.
func (e *env) connect() error {
	if e.cfg.InfluxDB.Enabled {
		rec, err := influxdb.Connect(e.ctx, e.cfg.InfluxDB, e.cfg.Instance.ID,
			influxdb.WithErrorHandler(func(err error) {
				e.log.Error("query metrics write failed", "error", err)
			}))
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		e.influx = rec
		e.log.Info("InfluxDB connected",
			"url", e.cfg.InfluxDB.URL,
			"org", e.cfg.InfluxDB.Org,
			"bucket", e.cfg.InfluxDB.Bucket,
		)
	}

	if e.cfg.MQTT.Enabled {
		client, err := mqtt.Connect(e.ctx, e.cfg.MQTT, e.cfg.Instance.ID,
			mqtt.WithLogger(e.log),
			mqtt.WithConnectionLostHandler(func(err error) {
				e.log.Warn("MQTT disconnected", "error", err)
			}))
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		e.mqtt = client
		e.log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", e.cfg.MQTT.Broker.Host, e.cfg.MQTT.Broker.Port),
			"client_id", e.cfg.MQTT.Broker.ClientID,
		)
	}

	return nil
}

// database opens the database on first call.
func (e *env) database() (*database.Database, error) {
	if e.db != nil {
		return e.db, nil
	}

	if e.cfg.Catalog.Path != "" {
		cat, err := catalog.Load(e.cfg.Catalog.Path)
		if err != nil {
			return nil, fmt.Errorf("loading catalog: %w", err)
		}
		e.cat = cat
	}

	dbCfg := database.Config{
		Path:        e.cfg.Database.Path,
		Shared:      e.cfg.Database.Shared,
		WALMode:     e.cfg.Database.WALMode,
		BusyTimeout: e.cfg.Database.BusyTimeout,
		Params:      e.cfg.Database.Params,
	}
	// A catalog that names its own database file decides where it lives
	// unless --db was given.
	if details := e.cat.Details(); details.Path() != "" && !e.dbPathSet {
		dbCfg.Path = details.Path()
		dbCfg.Shared = !details.SameThread
	}

	opts := []database.Option{
		database.WithLogger(e.log),
		database.WithObserver(e.log),
	}
	if e.influx != nil {
		opts = append(opts, database.WithObserver(e.influx))
	}
	if e.mqtt != nil {
		opts = append(opts, database.WithObserver(mqtt.NewPublisher(e.mqtt)))
	}
	for _, obs := range e.observers {
		opts = append(opts, database.WithObserver(obs))
	}

	db, err := database.Open(e.ctx, dbCfg, e.cat, opts...)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	e.db = db
	e.log.Debug("database opened", "path", dbCfg.Path, "shared", dbCfg.Shared)
	return db, nil
}

// close releases everything in reverse order of acquisition.
func (e *env) close() {
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			e.log.Error("error closing database", "error", err)
		}
	}
	if e.mqtt != nil {
		if err := e.mqtt.Close(); err != nil {
			e.log.Error("error closing MQTT", "error", err)
		}
	}
	if e.influx != nil {
		if err := e.influx.Close(); err != nil {
			e.log.Error("error closing InfluxDB", "error", err)
		}
	}
}

// healthCheck verifies every wired connection.
// The InfluxDB and MQTT clients are checked only when enabled.
func (e *env) healthCheck() error {
	db, err := e.database()
	if err != nil {
		return err
	}

	var errs []error
	if err := db.HealthCheck(e.ctx); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}
	if e.mqtt != nil {
		if err := e.mqtt.HealthCheck(e.ctx); err != nil {
			errs = append(errs, fmt.Errorf("mqtt: %w", err))
		}
	}
	if e.influx != nil {
		if err := e.influx.HealthCheck(e.ctx); err != nil {
			errs = append(errs, fmt.Errorf("influxdb: %w", err))
		}
	}
	return errors.Join(errs...)
}
