package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"
)

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	if _, err := Connect(context.Background(), cfg, "site-a"); !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_MissingInstance(t *testing.T) {
	if _, err := Connect(context.Background(), testConfig(), ""); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_NoBroker(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close() //nolint:errcheck // Port is only reserved

	cfg := testConfig()
	cfg.Broker.Port = port
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	if _, err := Connect(ctx, cfg, "site-a"); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClient_SessionUpRestoresWatches(t *testing.T) {
	c, fake := fakeClient()
	if err := c.Watch(context.Background(), c.Topics().Query(), func(Event) {}); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	// A reconnect starts a fresh broker session.
	fake.subs = nil
	c.sessionUp()

	if _, ok := fake.subs["catalogdb/site-a/query"]; !ok {
		t.Error("query watch not restored after reconnect")
	}

	msgs := fake.messages()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want the online status", len(msgs))
	}
	if msgs[0].topic != "catalogdb/site-a/status" || !msgs[0].retained {
		t.Errorf("status message = %+v, want retained on the status topic", msgs[0])
	}
	var st Status
	if err := json.Unmarshal(msgs[0].payload, &st); err != nil {
		t.Fatalf("status payload: %v", err)
	}
	if st.Status != statusOnline || st.ClientID != "catalogdb-test" {
		t.Errorf("status = %+v", st)
	}
}

func TestClient_SessionLost(t *testing.T) {
	var lost error
	c, fake := fakeClient(WithConnectionLostHandler(func(err error) { lost = err }))

	fake.connected = false
	c.sessionLost(errors.New("broker went away"))

	if lost == nil {
		t.Error("connection-lost handler not called")
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after connection loss")
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestClient_HealthCheck(t *testing.T) {
	c, _ := fakeClient()

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestClient_Close(t *testing.T) {
	c, fake := fakeClient()

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !fake.disconnected {
		t.Error("Close() did not disconnect")
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}

	msgs := fake.messages()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want the offline status", len(msgs))
	}
	var st Status
	if err := json.Unmarshal(msgs[0].payload, &st); err != nil {
		t.Fatalf("status payload: %v", err)
	}
	if st.Status != statusOffline || st.Reason != reasonShutdown {
		t.Errorf("status = %+v, want graceful offline", st)
	}

	// Disconnected: nothing more is published.
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if got := len(fake.messages()); got != 1 {
		t.Errorf("published %d messages after second Close, want 1", got)
	}

	var nilClient *Client
	if err := nilClient.Close(); err != nil {
		t.Errorf("nil Close() error = %v", err)
	}
}

func TestAwait(t *testing.T) {
	if err := await(context.Background(), completed(nil), time.Second); err != nil {
		t.Errorf("await(completed) error = %v", err)
	}

	want := fmt.Errorf("refused")
	if err := await(context.Background(), completed(want), time.Second); !errors.Is(err, want) {
		t.Errorf("await(failed) error = %v, want %v", err, want)
	}

	pending := &fakeToken{done: make(chan struct{})}
	if err := await(context.Background(), pending, 10*time.Millisecond); err == nil {
		t.Error("await(pending) returned nil after timeout")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := await(ctx, pending, time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("await(cancelled) error = %v, want context.Canceled", err)
	}
}
