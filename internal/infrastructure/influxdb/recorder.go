package influxdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/catalogdb/internal/infrastructure/config"
	"github.com/nerrad567/catalogdb/internal/infrastructure/database"
)

var (
	// ErrDisabled is returned by Connect when the sink is switched off.
	ErrDisabled = errors.New("influxdb: query metrics disabled")

	// ErrUnreachable wraps the ping failure seen by Connect.
	ErrUnreachable = errors.New("influxdb: server unreachable")

	// ErrClosed is returned by HealthCheck after Close.
	ErrClosed = errors.New("influxdb: recorder closed")

	// ErrWriteFailed wraps batch failures passed to the error handler.
	ErrWriteFailed = errors.New("influxdb: writing query metrics")
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second
)

// pointWriter is the slice of api.WriteAPI the Recorder writes through.
type pointWriter interface {
	WritePoint(p *write.Point)
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithErrorHandler receives batch write failures, wrapped in ErrWriteFailed.
// Writes are asynchronous, so this is the only place they surface.
func WithErrorHandler(fn func(error)) Option {
	return func(r *Recorder) {
		r.onError = fn
	}
}

// Recorder is a database.Observer that writes one query_metrics point per
// executed statement. ObserveQuery only queues; batches are sent by the
// client's background writer every cfg.FlushInterval seconds or BatchSize
// points, whichever comes first.
type Recorder struct {
	client  influxdb2.Client
	writer  pointWriter
	onError func(error)

	closed   atomic.Bool
	closeMu  sync.Mutex
	errsDone chan struct{}
}

// Connect pings the server and returns a Recorder writing to cfg.Bucket.
// Every point carries an instance tag set to instance.
func Connect(ctx context.Context, cfg config.InfluxDBConfig, instance string, opts ...Option) (*Recorder, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, clientOptions(cfg, instance))

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if ok, err := client.Ping(pingCtx); err != nil || !ok {
		client.Close()
		if err == nil {
			err = errors.New("ping reported unhealthy")
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrUnreachable, cfg.URL, err)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	r := &Recorder{
		client:   client,
		writer:   writeAPI,
		errsDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	// Errors must be claimed before the first write or the client drops them.
	go r.forwardErrors(writeAPI.Errors())
	return r, nil
}

// ObserveQuery implements database.Observer. Events after Close are dropped.
func (r *Recorder) ObserveQuery(_ context.Context, ev database.QueryEvent) {
	if r.closed.Load() {
		return
	}
	r.writer.WritePoint(queryPoint(ev, time.Now()))
}

// HealthCheck pings the server.
func (r *Recorder) HealthCheck(ctx context.Context) error {
	if r.closed.Load() {
		return ErrClosed
	}
	checkCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	ok, err := r.client.Ping(checkCtx)
	if err != nil {
		return fmt.Errorf("influxdb: ping: %w", err)
	}
	if !ok {
		return errors.New("influxdb: ping reported unhealthy")
	}
	return nil
}

// Close sends queued points and waits for the last write failures to reach
// the error handler. Later calls are no-ops.
func (r *Recorder) Close() error {
	r.closeMu.Lock()
	defer r.closeMu.Unlock()
	if r.closed.Swap(true) {
		return nil
	}
	r.client.Close()
	<-r.errsDone
	return nil
}

func (r *Recorder) forwardErrors(errs <-chan error) {
	defer close(r.errsDone)
	for err := range errs {
		if r.onError != nil {
			r.onError(fmt.Errorf("%w: %w", ErrWriteFailed, err))
		}
	}
}
