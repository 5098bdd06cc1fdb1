package database

import (
	"context"
	"time"
)

// EventKind classifies an executed statement.
type EventKind string

// Event kinds reported to observers.
const (
	EventBootstrap EventKind = "bootstrap"
	EventDispatch  EventKind = "dispatch"
	EventBatch     EventKind = "batch"
)

// QueryEvent describes one executed statement.
type QueryEvent struct {
	Kind EventKind

	// Name is the catalog query name, empty for literal text.
	Name string

	// Statement is the SQL after placeholder substitution.
	Statement string

	// Tuples is the number of parameter tuples bound (batches only).
	Tuples int

	Duration time.Duration
	Err      error
}

// Observer receives a QueryEvent after each statement finishes.
// Implementations are called synchronously and must not block.
type Observer interface {
	ObserveQuery(ctx context.Context, ev QueryEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev QueryEvent)

// ObserveQuery calls f.
func (f ObserverFunc) ObserveQuery(ctx context.Context, ev QueryEvent) {
	f(ctx, ev)
}

func (d *Database) notify(ctx context.Context, ev QueryEvent) {
	for _, obs := range d.observers {
		obs.ObserveQuery(ctx, ev)
	}
}
