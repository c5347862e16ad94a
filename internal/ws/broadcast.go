package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/whosthere/whosthere/internal/session"
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, 64),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) close() {
	close(c.send)
}

// Broadcaster fans monitor state out to WebSocket clients: a snapshot on
// connect and on a slow ticker, throttled updates per monitor cycle, and a
// single terminal error frame.
type Broadcaster struct {
	mu             sync.RWMutex
	clients        map[*client]bool
	store          *session.Store
	throttle       time.Duration
	snapshotTicker *time.Ticker
	pending        bool
	flushTimer     *time.Timer
	flushMu        sync.Mutex
}

func NewBroadcaster(store *session.Store, throttle, snapshotInterval time.Duration) *Broadcaster {
	b := &Broadcaster{
		clients:  make(map[*client]bool),
		store:    store,
		throttle: throttle,
	}

	b.snapshotTicker = time.NewTicker(snapshotInterval)
	go b.snapshotLoop()

	return b
}

func (b *Broadcaster) AddClient(conn *websocket.Conn) *client {
	c := newClient(conn)

	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	data, _ := json.Marshal(b.snapshotMessage())
	select {
	case c.send <- data:
	default:
		// Client too slow, drop the snapshot
	}

	return c
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

// QueueUpdate schedules an update broadcast. Consecutive cycles within the
// throttle window collapse into one frame; the store always holds the
// latest batch so nothing is lost.
func (b *Broadcaster) QueueUpdate() {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.pending = true
	if b.flushTimer == nil {
		b.flushTimer = time.AfterFunc(b.throttle, b.flush)
	}
}

// BroadcastError sends the monitor's terminal error to every client. It is
// the last frame the daemon will ever send, so any queued update is
// discarded before it goes out.
func (b *Broadcaster) BroadcastError(err error) {
	b.snapshotTicker.Stop()

	b.flushMu.Lock()
	b.pending = false
	if b.flushTimer != nil {
		b.flushTimer.Stop()
		b.flushTimer = nil
	}
	b.flushMu.Unlock()

	b.broadcast(WSMessage{
		Type:    MsgError,
		Payload: ErrorPayload{Message: err.Error()},
	})
}

func (b *Broadcaster) flush() {
	b.flushMu.Lock()
	pending := b.pending
	b.pending = false
	b.flushTimer = nil
	b.flushMu.Unlock()

	if !pending || b.store.Err() != nil {
		return
	}

	msg := b.snapshotMessage()
	msg.Type = MsgUpdate
	b.broadcast(msg)
}

func (b *Broadcaster) snapshotLoop() {
	for range b.snapshotTicker.C {
		if b.store.Err() != nil {
			return
		}
		b.broadcast(b.snapshotMessage())
	}
}

func (b *Broadcaster) snapshotMessage() WSMessage {
	entries := b.store.Snapshot()
	return WSMessage{
		Type: MsgSnapshot,
		Payload: SessionsPayload{
			Sessions: entries,
			State:    session.StateOf(entries),
		},
	}
}

func (b *Broadcaster) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.WithError(err).Error("broadcast marshal failed")
		return
	}

	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			// Client can't keep up, disconnect it
			log.Warn("ws client too slow, disconnecting")
			b.RemoveClient(c)
		}
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
