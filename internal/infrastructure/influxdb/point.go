package influxdb

import (
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/catalogdb/internal/infrastructure/config"
	"github.com/nerrad567/catalogdb/internal/infrastructure/database"
)

// queryMeasurement is the measurement written for every executed statement.
const queryMeasurement = "query_metrics"

// adHocQuery tags statements dispatched by literal text.
const adHocQuery = "_adhoc"

// Fallbacks for unset or negative batching settings.
const (
	fallbackBatchSize     = 100
	fallbackFlushInterval = 10 // seconds
)

// clientOptions maps the config onto client options. Points are written at
// microsecond precision and tagged with the instance ID.
func clientOptions(cfg config.InfluxDBConfig, instance string) *influxdb2.Options {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = fallbackBatchSize
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = fallbackFlushInterval
	}

	// #nosec G115 -- both values are positive here
	opts := influxdb2.DefaultOptions().
		SetBatchSize(uint(batch)).
		SetFlushInterval(uint(flush * 1000)).
		SetPrecision(time.Microsecond)
	if instance != "" {
		opts.AddDefaultTag("instance", instance)
	}
	return opts
}

// queryPoint builds the point for one event. Statement text stays out of the
// tags: its cardinality is unbounded.
func queryPoint(ev database.QueryEvent, ts time.Time) *write.Point {
	name := ev.Name
	if name == "" {
		name = adHocQuery
	}
	outcome := "ok"
	if ev.Err != nil {
		outcome = "error"
	}

	p := write.NewPointWithMeasurement(queryMeasurement).
		AddTag("kind", string(ev.Kind)).
		AddTag("query", name).
		AddTag("outcome", outcome).
		AddField("duration_ms", float64(ev.Duration)/float64(time.Millisecond)).
		SetTime(ts)
	if ev.Kind == database.EventBatch {
		p.AddField("tuples", int64(ev.Tuples))
	}
	return p
}
