// Package influxdb records catalogdb query metrics in InfluxDB.
//
// Recorder is a database.Observer backed by the influxdb-client-go v2
// non-blocking write API. Each executed statement becomes one point:
//
//	measurement: query_metrics
//	tags:        instance, kind (bootstrap|dispatch|batch), query, outcome (ok|error)
//	fields:      duration_ms, tuples (batches only)
//
// The query tag is the catalog name, or "_adhoc" for literal SQL.
//
//	rec, err := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Instance.ID,
//	    influxdb.WithErrorHandler(func(err error) { log.Error("metrics", "error", err) }))
//	if err != nil {
//	    return err
//	}
//	defer rec.Close()
//
//	db, err := database.Open(ctx, dbCfg, cat, database.WithObserver(rec))
package influxdb
