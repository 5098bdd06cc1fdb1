package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/catalogdb/internal/infrastructure/database"
)

// Event is the JSON message published for every executed statement.
type Event struct {
	Instance   string  `json:"instance"`
	Kind       string  `json:"kind"`
	Name       string  `json:"name,omitempty"`
	Statement  string  `json:"statement"`
	Tuples     int     `json:"tuples"`
	DurationMS float64 `json:"duration_ms"`
	Error      string  `json:"error,omitempty"`
	Timestamp  string  `json:"timestamp"`
}

// NewEvent converts a database.QueryEvent into its wire form.
func NewEvent(instance string, ev database.QueryEvent, ts time.Time) Event {
	out := Event{
		Instance:   instance,
		Kind:       string(ev.Kind),
		Name:       ev.Name,
		Statement:  ev.Statement,
		Tuples:     ev.Tuples,
		DurationMS: float64(ev.Duration) / float64(time.Millisecond),
		Timestamp:  ts.UTC().Format(time.RFC3339Nano),
	}
	if ev.Err != nil {
		out.Error = ev.Err.Error()
	}
	return out
}

// DecodeEvent parses a payload received on a query topic.
func DecodeEvent(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	if ev.Kind == "" {
		return Event{}, fmt.Errorf("%w: missing kind", ErrInvalidEvent)
	}
	return ev, nil
}

// eventSink is where a Publisher sends encoded events.
type eventSink interface {
	publishEvent(payload []byte) error
}

// Publisher is a database.Observer that forwards every query event to the
// instance's query topic. It never waits for the broker, so a slow or absent
// broker cannot hold the database lock; failures are logged.
type Publisher struct {
	sink     eventSink
	logger   Logger
	instance string
}

// NewPublisher returns a Publisher sending through c.
func NewPublisher(c *Client) *Publisher {
	return &Publisher{sink: c, logger: c.logger, instance: c.topics.Instance}
}

// ObserveQuery implements database.Observer.
func (p *Publisher) ObserveQuery(_ context.Context, ev database.QueryEvent) {
	payload, err := json.Marshal(NewEvent(p.instance, ev, time.Now()))
	if err == nil {
		err = p.sink.publishEvent(payload)
	}
	if err != nil && p.logger != nil {
		p.logger.Warn("query event not published", "kind", ev.Kind, "name", ev.Name, "error", err)
	}
}

// publishEvent queues payload on the query topic without waiting for the
// acknowledgement.
func (c *Client) publishEvent(payload []byte) error {
	if len(payload) > maxPayload {
		return fmt.Errorf("%w: event of %d bytes exceeds %d", ErrPublishFailed, len(payload), maxPayload)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	c.paho.Publish(c.topics.Query(), c.qos(), false, payload)
	return nil
}
