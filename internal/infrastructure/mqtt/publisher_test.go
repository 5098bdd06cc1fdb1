package mqtt

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/catalogdb/internal/infrastructure/database"
)

func TestNewEvent(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	ev := NewEvent("site-a", database.QueryEvent{
		Kind:      database.EventBatch,
		Name:      "insert_person",
		Statement: "INSERT INTO people VALUES (?, ?)",
		Tuples:    5,
		Duration:  2500 * time.Microsecond,
		Err:       errors.New("constraint failed"),
	}, ts)

	if ev.Instance != "site-a" || ev.Kind != "batch" || ev.Name != "insert_person" {
		t.Errorf("identity fields = %+v", ev)
	}
	if ev.Tuples != 5 || ev.DurationMS != 2.5 {
		t.Errorf("Tuples, DurationMS = %d, %v; want 5, 2.5", ev.Tuples, ev.DurationMS)
	}
	if ev.Error != "constraint failed" {
		t.Errorf("Error = %q", ev.Error)
	}
	if ev.Timestamp != "2026-01-02T03:04:05Z" {
		t.Errorf("Timestamp = %q", ev.Timestamp)
	}
}

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"valid", `{"instance":"a","kind":"dispatch","statement":"SELECT 1"}`, false},
		{"not json", `SELECT 1`, true},
		{"missing kind", `{"instance":"a"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeEvent([]byte(tt.payload))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidEvent) {
					t.Errorf("DecodeEvent() error = %v, want ErrInvalidEvent", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeEvent() error = %v", err)
			}
			if ev.Kind != "dispatch" || ev.Statement != "SELECT 1" {
				t.Errorf("DecodeEvent() = %+v", ev)
			}
		})
	}
}

func TestPublisher_SendsToQueryTopic(t *testing.T) {
	c, fake := fakeClient()

	var obs database.Observer = NewPublisher(c)
	obs.ObserveQuery(context.Background(), database.QueryEvent{
		Kind:      database.EventDispatch,
		Name:      "all_people",
		Statement: "SELECT * FROM people",
	})

	msgs := fake.messages()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	msg := msgs[0]
	if msg.topic != "catalogdb/site-a/query" || msg.qos != 1 || msg.retained {
		t.Errorf("message = topic %q qos %d retained %v", msg.topic, msg.qos, msg.retained)
	}

	ev, err := DecodeEvent(msg.payload)
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v", err)
	}
	if ev.Instance != "site-a" || ev.Name != "all_people" || ev.Error != "" {
		t.Errorf("event = %+v", ev)
	}
}

func TestPublisher_LogsFailures(t *testing.T) {
	tests := []struct {
		name      string
		connected bool
		statement string
	}{
		{"disconnected", false, "SELECT 1"},
		{"oversized", true, "SELECT '" + strings.Repeat("x", maxPayload) + "'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := &recordingLogger{}
			c, fake := fakeClient(WithLogger(logger))
			c.connected.Store(tt.connected)

			NewPublisher(c).ObserveQuery(context.Background(), database.QueryEvent{
				Kind:      database.EventDispatch,
				Statement: tt.statement,
			})

			if _, warns := logger.counts(); warns != 1 {
				t.Errorf("warnings = %d, want 1", warns)
			}
			if got := len(fake.messages()); got != 0 {
				t.Errorf("published %d messages, want 0", got)
			}
		})
	}
}
