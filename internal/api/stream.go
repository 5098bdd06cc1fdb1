package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/catalogdb/internal/infrastructure/config"
	"github.com/nerrad567/catalogdb/internal/infrastructure/database"
	"github.com/nerrad567/catalogdb/internal/infrastructure/logging"
)

// Query stream message types.
const (
	// Sent by clients.
	MsgWatch   = "watch"
	MsgUnwatch = "unwatch"
	MsgPing    = "ping"

	// Sent by the server.
	MsgAck   = "ack"
	MsgPong  = "pong"
	MsgQuery = "query"
	MsgError = "error"
)

// AdHocQuery selects literal SQL statements in EventFilter.Queries.
const AdHocQuery = "_adhoc"

// watcherBuffer is the number of outbound messages queued per connection.
const watcherBuffer = 256

// StreamMessage is every frame on the query stream, in both directions.
// Filter is set on watch requests and their acks. Event and Dropped are set
// on query frames; Dropped counts the events discarded for this connection
// since its previous query frame.
type StreamMessage struct {
	Type    string             `json:"type"`
	ID      string             `json:"id,omitempty"`
	Time    string             `json:"time,omitempty"`
	Filter  *EventFilter       `json:"filter,omitempty"`
	Event   *QueryEventPayload `json:"event,omitempty"`
	Dropped uint64             `json:"dropped,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// EventFilter selects the statements a connection receives.
// Empty lists match everything.
type EventFilter struct {
	Kinds        []string `json:"kinds,omitempty"`
	Queries      []string `json:"queries,omitempty"`
	FailuresOnly bool     `json:"failures_only,omitempty"`
}

// QueryEventPayload is one executed statement.
type QueryEventPayload struct {
	Kind       string  `json:"kind"`
	Name       string  `json:"name,omitempty"`
	Statement  string  `json:"statement"`
	Tuples     int     `json:"tuples,omitempty"`
	DurationMS float64 `json:"duration_ms"`
	Error      string  `json:"error,omitempty"`
}

func (f *EventFilter) validate() error {
	for _, k := range f.Kinds {
		switch database.EventKind(k) {
		case database.EventBootstrap, database.EventDispatch, database.EventBatch:
		default:
			return fmt.Errorf("unknown event kind %q", k)
		}
	}
	return nil
}

func (f *EventFilter) matches(ev database.QueryEvent) bool {
	if f.FailuresOnly && ev.Err == nil {
		return false
	}
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, string(ev.Kind)) {
		return false
	}
	if len(f.Queries) > 0 {
		name := ev.Name
		if name == "" {
			name = AdHocQuery
		}
		if !slices.Contains(f.Queries, name) {
			return false
		}
	}
	return true
}

func newQueryEventPayload(ev database.QueryEvent) *QueryEventPayload {
	p := &QueryEventPayload{
		Kind:       string(ev.Kind),
		Name:       ev.Name,
		Statement:  ev.Statement,
		Tuples:     ev.Tuples,
		DurationMS: float64(ev.Duration) / float64(time.Millisecond),
	}
	if ev.Err != nil {
		p.Error = ev.Err.Error()
	}
	return p
}

// Hub fans executed statements out to WebSocket watchers.
// It implements database.Observer and never blocks the statement that
// produced the event: a watcher whose buffer is full loses the event and
// is told how many it lost with its next delivery.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu       sync.RWMutex
	watchers map[*watcher]struct{}

	dropped atomic.Uint64
}

// NewHub creates a Hub. A nil logger uses logging.Default.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		cfg:      cfg,
		logger:   logger,
		watchers: make(map[*watcher]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every watcher.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for w := range h.watchers {
		w.close()
		if w.conn != nil {
			w.conn.Close()
		}
		delete(h.watchers, w)
	}
}

// ObserveQuery delivers ev to every watcher whose filter matches it.
func (h *Hub) ObserveQuery(_ context.Context, ev database.QueryEvent) {
	h.mu.RLock()
	targets := make([]*watcher, 0, len(h.watchers))
	for w := range h.watchers {
		if w.wants(ev) {
			targets = append(targets, w)
		}
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	msg := StreamMessage{
		Type:  MsgQuery,
		Time:  time.Now().UTC().Format(time.RFC3339Nano),
		Event: newQueryEventPayload(ev),
	}
	var plain []byte
	for _, w := range targets {
		msg.Dropped = w.pendingDrops()
		var data []byte
		if msg.Dropped == 0 && plain != nil {
			data = plain
		} else {
			var err error
			if data, err = json.Marshal(msg); err != nil {
				h.logger.Error("failed to encode query event", "error", err)
				return
			}
			if msg.Dropped == 0 {
				plain = data
			}
		}
		if w.enqueue(data) {
			w.settleDrops(msg.Dropped)
			continue
		}
		w.drop()
		h.dropped.Add(1)
	}
}

// ClientCount returns the number of connected watchers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.watchers)
}

// Dropped returns the number of events discarded on full buffers since the
// hub was created.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *Hub) add(w *watcher) {
	h.mu.Lock()
	h.watchers[w] = struct{}{}
	n := len(h.watchers)
	h.mu.Unlock()
	h.logger.Debug("query stream watcher connected", "clients", n)
}

func (h *Hub) remove(w *watcher) {
	h.mu.Lock()
	delete(h.watchers, w)
	n := len(h.watchers)
	h.mu.Unlock()
	w.close()
	h.logger.Debug("query stream watcher disconnected", "clients", n)
}

// watcher is one WebSocket connection on the query stream.
// A nil filter means the connection is not watching.
type watcher struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu      sync.Mutex
	filter  *EventFilter
	dropped uint64
	closed  bool
}

func newWatcher(h *Hub, conn *websocket.Conn) *watcher {
	return &watcher{
		hub:  h,
		conn: conn,
		send: make(chan []byte, watcherBuffer),
	}
}

func (w *watcher) wants(ev database.QueryEvent) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.filter != nil && w.filter.matches(ev)
}

func (w *watcher) setFilter(f *EventFilter) {
	w.mu.Lock()
	w.filter = f
	w.dropped = 0
	w.mu.Unlock()
}

func (w *watcher) pendingDrops() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}

// settleDrops subtracts the drops reported in a delivered frame.
func (w *watcher) settleDrops(n uint64) {
	if n == 0 {
		return
	}
	w.mu.Lock()
	w.dropped -= min(n, w.dropped)
	w.mu.Unlock()
}

func (w *watcher) drop() {
	w.mu.Lock()
	w.dropped++
	w.mu.Unlock()
}

// enqueue queues data without blocking. It reports false when the buffer
// is full or the watcher has gone.
func (w *watcher) enqueue(data []byte) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	select {
	case w.send <- data:
		return true
	default:
		return false
	}
}

// close ends the send channel so writeLoop exits. Safe to call twice.
func (w *watcher) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.send)
	}
}

func (w *watcher) reply(msg StreamMessage) {
	msg.Time = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	w.enqueue(data)
}

func (w *watcher) fail(id, reason string) {
	w.reply(StreamMessage{Type: MsgError, ID: id, Error: reason})
}

// handle applies one client frame.
func (w *watcher) handle(data []byte) {
	var msg StreamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		w.fail("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case MsgWatch:
		f := msg.Filter
		if f == nil {
			f = &EventFilter{}
		}
		if err := f.validate(); err != nil {
			w.fail(msg.ID, err.Error())
			return
		}
		w.setFilter(f)
		w.hub.logger.Debug("query stream filter set",
			"kinds", f.Kinds,
			"queries", f.Queries,
			"failures_only", f.FailuresOnly,
		)
		w.reply(StreamMessage{Type: MsgAck, ID: msg.ID, Filter: f})
	case MsgUnwatch:
		w.setFilter(nil)
		w.reply(StreamMessage{Type: MsgAck, ID: msg.ID})
	case MsgPing:
		w.reply(StreamMessage{Type: MsgPong, ID: msg.ID})
	default:
		w.fail(msg.ID, "unknown message type: "+msg.Type)
	}
}

// handleQueryStream upgrades to a WebSocket carrying query events.
// Authentication has already run in middleware.
func (s *Server) handleQueryStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	wt := newWatcher(s.hub, conn)
	s.hub.add(wt)

	go wt.writeLoop(s.hub.cfg)
	go wt.readLoop(s.hub.cfg)
}

// Origin checking is handled by the CORS middleware.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

func (w *watcher) readLoop(cfg config.WebSocketConfig) {
	defer func() {
		w.hub.remove(w)
		w.conn.Close()
	}()

	if cfg.MaxMessageSize > 0 {
		w.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}
	deadline := keepalive(cfg)
	//nolint:errcheck // Best-effort deadline on connection setup
	w.conn.SetReadDeadline(time.Now().Add(deadline))
	w.conn.SetPongHandler(func(string) error {
		return w.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				w.hub.logger.Warn("query stream read error", "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		w.conn.SetReadDeadline(time.Now().Add(deadline))
		w.handle(data)
	}
}

func (w *watcher) writeLoop(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(pingInterval(cfg))
	defer func() {
		ticker.Stop()
		w.conn.Close()
	}()

	writeWait := pongTimeout(cfg)
	for {
		select {
		case data, ok := <-w.send:
			//nolint:errcheck // Best-effort deadline; write error caught below
			w.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				//nolint:errcheck // Best-effort close frame
				w.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			w.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Fallbacks for a zero WebSocketConfig.
const (
	defaultPingInterval = 30 * time.Second
	defaultPongTimeout  = 10 * time.Second
)

func pingInterval(cfg config.WebSocketConfig) time.Duration {
	if cfg.PingInterval <= 0 {
		return defaultPingInterval
	}
	return time.Duration(cfg.PingInterval) * time.Second
}

func pongTimeout(cfg config.WebSocketConfig) time.Duration {
	if cfg.PongTimeout <= 0 {
		return defaultPongTimeout
	}
	return time.Duration(cfg.PongTimeout) * time.Second
}

func keepalive(cfg config.WebSocketConfig) time.Duration {
	return pingInterval(cfg) + pongTimeout(cfg)
}
