// Package api implements the HTTP API and WebSocket event stream of catalogdb serve.
//
// This package provides:
//   - REST endpoints for named queries, literal SQL, schema introspection,
//     row counts, index creation and drops
//   - A WebSocket query stream with per-connection event filters
//   - An optional audit trail of mutations
//   - Optional JWT bearer authentication with role permissions
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - TLS support
//
// The Hub doubles as a database.Observer: register it when opening the
// database and pass it to New so WebSocket clients see query events.
// A client on GET /api/v1/ws sends
//
//	{"type":"watch","id":"1","filter":{"kinds":["dispatch"],"queries":["all_people","_adhoc"]}}
//
// and then receives a "query" frame per matching statement. Frames lost to
// a slow reader are counted in the "dropped" field of the next delivery.
//
//	hub := api.NewHub(cfg.API.WebSocket, log)
//	db, _ := database.Open(ctx, dbCfg, cat, database.WithObserver(hub))
//	server, _ := api.New(api.Deps{Config: cfg.API, Logger: log, DB: db, Hub: hub})
//	server.Start(ctx)
//	defer server.Close()
package api
