// Package push maintains the single long-lived push-channel connection
// and reconciles inbound events into the local cache. The connection is
// shared process-wide: subscribers reference-count logical interest, and
// releasing interest never tears the connection down — only an explicit
// Disconnect does, because other screens may still need the stream.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/time/rate"

	"gramsync/pkg/cache"
	"gramsync/pkg/logger"
	"gramsync/pkg/metrics"
	"gramsync/pkg/models"
	"gramsync/pkg/session"
	"gramsync/pkg/storage"
)

// EventDisconnected is the synthetic event delivered to listeners on an
// explicit Disconnect call. Transient drops are resolved silently and
// never surface to subscribers.
const EventDisconnected = "disconnected"

const (
	maxReconnectAttempts = 5
	maxReconnectDelay    = 30 * time.Second
	dialTimeout          = 10 * time.Second
)

// Listener receives every decoded event in arrival order.
type Listener func(models.Event)

// Engine owns the shared connection. All methods are safe for concurrent
// use.
type Engine struct {
	wsURL string
	kv    storage.KV
	cache *cache.Cache

	// limiter throttles dial attempts on top of the backoff schedule so
	// a misbehaving caller cannot hot-loop the server.
	limiter *rate.Limiter

	mu         sync.Mutex
	conn       *websocket.Conn
	connecting bool
	cancel     context.CancelFunc
	refs       int
	nextID     int
	listeners  map[int]Listener
}

// NewEngine builds the engine. wsURL is the endpoint without the token
// query parameter; the token is read from durable storage at dial time.
func NewEngine(wsURL string, kv storage.KV, c *cache.Cache) *Engine {
	return &Engine{
		wsURL:     wsURL,
		kv:        kv,
		cache:     c,
		limiter:   rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
		listeners: make(map[int]Listener),
	}
}

// Acquire registers logical interest in the stream and lazily connects.
// The returned release gives the interest back; it is safe to call more
// than once and never closes the connection.
func (e *Engine) Acquire(ctx context.Context) (func(), error) {
	e.mu.Lock()
	e.refs++
	e.mu.Unlock()
	err := e.Connect(ctx)
	var once sync.Once
	release := func() {
		once.Do(func() {
			e.mu.Lock()
			if e.refs > 0 {
				e.refs--
			}
			e.mu.Unlock()
		})
	}
	return release, err
}

// Refs reports the current logical interest count.
func (e *Engine) Refs() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.refs
}

// On registers a listener for every event. The returned func removes it.
func (e *Engine) On(l Listener) func() {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = l
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

// Connected reports whether a physical connection is open.
func (e *Engine) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn != nil
}

// Connect establishes the shared connection if not already open or in
// progress. Without a stored token there is nothing to authenticate the
// stream with, so Connect is a logged no-op (matching a logged-out app).
func (e *Engine) Connect(ctx context.Context) error {
	e.mu.Lock()
	if e.conn != nil || e.connecting {
		e.mu.Unlock()
		return nil
	}
	e.connecting = true
	e.mu.Unlock()

	tok, err := e.kv.Get(session.TokenKey)
	if err != nil || tok == "" {
		e.mu.Lock()
		e.connecting = false
		e.mu.Unlock()
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			logger.Warn("ws_token_read_failed", "error", err)
		} else {
			logger.Warn("ws_no_token")
		}
		return nil
	}

	conn, err := e.dial(ctx, tok)
	e.mu.Lock()
	e.connecting = false
	if err != nil {
		e.mu.Unlock()
		logger.Error("ws_connect_failed", "error", err)
		return err
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	e.conn = conn
	e.cancel = cancel
	e.mu.Unlock()
	logger.Info("ws_connected")
	go e.readLoop(loopCtx, conn)
	return nil
}

func (e *Engine) dial(ctx context.Context, tok string) (*websocket.Conn, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	dctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	u := e.wsURL + "?token=" + url.QueryEscape(tok)
	conn, _, err := websocket.Dial(dctx, u, nil)
	return conn, err
}

// Disconnect tears the connection down and drops all listeners. It is
// idempotent. Listeners observe a single synthetic "disconnected" event;
// this is the only disconnect subscribers ever see.
func (e *Engine) Disconnect() {
	e.mu.Lock()
	conn := e.conn
	cancel := e.cancel
	e.conn = nil
	e.cancel = nil
	ls := e.snapshotListenersLocked()
	e.listeners = make(map[int]Listener)
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "client disconnect")
		logger.Info("ws_disconnected")
	}
	for _, l := range ls {
		l(models.Event{Type: EventDisconnected})
	}
}

func (e *Engine) snapshotListenersLocked() []Listener {
	out := make([]Listener, 0, len(e.listeners))
	for _, l := range e.listeners {
		out = append(out, l)
	}
	return out
}

// readLoop decodes frames in arrival order until the connection drops.
// A drop that was not an explicit Disconnect triggers a silent reconnect.
func (e *Engine) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			e.mu.Lock()
			explicit := e.conn != conn
			if !explicit {
				e.conn = nil
			}
			e.mu.Unlock()
			if explicit || ctx.Err() != nil {
				return
			}
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure {
				// the server ended the stream deliberately; stay down
				logger.Info("ws_closed_by_server")
				return
			}
			logger.Warn("ws_closed", "status", int(status), "error", err)
			go e.reconnect(ctx)
			return
		}
		var ev models.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			logger.Warn("ws_decode_failed", "error", err)
			continue
		}
		e.handleEvent(ev)
	}
}

// reconnect re-establishes the connection with exponential backoff (1s,
// 2s, 4s... capped at 30s, at most 5 attempts). Subscribers are not told
// about any of this.
func (e *Engine) reconnect(ctx context.Context) {
	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		delay := time.Duration(1<<(attempt-1)) * time.Second
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
		logger.Info("ws_reconnect_scheduled", "attempt", attempt, "delay", delay.String())
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}

		e.mu.Lock()
		if e.conn != nil || e.connecting {
			// someone else reconnected meanwhile
			e.mu.Unlock()
			return
		}
		// hold the connecting flag for the dial window so a concurrent
		// Connect cannot open a second physical connection
		e.connecting = true
		e.mu.Unlock()

		metrics.PushReconnectsTotal.Inc()
		tok, err := e.kv.Get(session.TokenKey)
		if err != nil || tok == "" {
			// logged out while we were down; nothing to resume
			e.mu.Lock()
			e.connecting = false
			e.mu.Unlock()
			return
		}
		conn, err := e.dial(ctx, tok)
		e.mu.Lock()
		e.connecting = false
		if err != nil {
			e.mu.Unlock()
			logger.Warn("ws_reconnect_failed", "attempt", attempt, "error", err)
			continue
		}
		if e.conn != nil {
			e.mu.Unlock()
			_ = conn.Close(websocket.StatusNormalClosure, "duplicate connection")
			return
		}
		e.conn = conn
		e.mu.Unlock()
		logger.Info("ws_reconnected", "attempt", attempt)
		go e.readLoop(ctx, conn)
		return
	}
	logger.Error("ws_reconnect_exhausted", "attempts", maxReconnectAttempts)
}

// handleEvent merges message events into the cache and fans every event
// out to listeners. Merges are idempotent by message ID, so duplicate
// delivery from a reconnect replay cannot duplicate entries. After a
// merge the summary list is only marked stale: unread counts and
// ordering need server authority.
func (e *Engine) handleEvent(ev models.Event) {
	metrics.PushEventsTotal.WithLabelValues(ev.Type).Inc()
	switch ev.Type {
	case models.EventNewMessage, models.EventMessageSent:
		if ev.Message != nil {
			peer := ev.Peer()
			if peer != "" {
				e.cache.MergeMessage(peer, *ev.Message)
				e.cache.MarkSummariesStale()
			}
		}
	}

	e.mu.Lock()
	ls := e.snapshotListenersLocked()
	e.mu.Unlock()
	for _, l := range ls {
		l(ev)
	}
}
