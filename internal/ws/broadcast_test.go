package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/whosthere/whosthere/internal/session"
)

// dialTestServer spins up the full HTTP+WS stack and connects one client.
func dialTestServer(t *testing.T, store *session.Store, b *Broadcaster) *websocket.Conn {
	t.Helper()

	srv := NewServer(store, b, nil, "")
	mux := http.NewServeMux()
	srv.SetupRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) (MessageType, json.RawMessage) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var msg struct {
		Type    MessageType     `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return msg.Type, msg.Payload
}

func TestClientReceivesSnapshotOnConnect(t *testing.T) {
	store := session.NewStore()
	store.Replace([]session.Entry{{PID: 100, Label: "a", IsCurrent: true}})
	b := NewBroadcaster(store, 10*time.Millisecond, time.Hour)
	defer b.snapshotTicker.Stop()

	conn := dialTestServer(t, store, b)

	typ, payload := readMessage(t, conn)
	if typ != MsgSnapshot {
		t.Fatalf("first frame type = %q, want snapshot", typ)
	}
	var p SessionsPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(p.Sessions) != 1 || p.Sessions[0].PID != 100 {
		t.Errorf("snapshot sessions = %+v", p.Sessions)
	}
	if p.State != session.StateNormal {
		t.Errorf("snapshot state = %q, want normal", p.State)
	}
}

func TestQueueUpdateCollapsesWithinThrottle(t *testing.T) {
	store := session.NewStore()
	b := NewBroadcaster(store, 50*time.Millisecond, time.Hour)
	defer b.snapshotTicker.Stop()

	conn := dialTestServer(t, store, b)
	readMessage(t, conn) // connect snapshot

	store.Replace([]session.Entry{{PID: 100}})
	b.QueueUpdate()
	store.Replace([]session.Entry{{PID: 100}, {PID: 200}})
	b.QueueUpdate()

	typ, payload := readMessage(t, conn)
	if typ != MsgUpdate {
		t.Fatalf("frame type = %q, want update", typ)
	}
	var p SessionsPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	// Both queued cycles collapse into one frame with the latest state.
	if len(p.Sessions) != 2 {
		t.Errorf("update sessions = %+v, want the latest batch of 2", p.Sessions)
	}

	// No second update frame should arrive.
	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("received a second update frame, want the throttle to collapse them")
	}
}

func TestBroadcastErrorIsTerminal(t *testing.T) {
	store := session.NewStore()
	b := NewBroadcaster(store, 100*time.Millisecond, time.Hour)

	conn := dialTestServer(t, store, b)
	readMessage(t, conn) // connect snapshot

	// An update queued right before the failure must not escape: its
	// throttle timer is still armed when the error frame goes out.
	store.Replace([]session.Entry{{PID: 100}})
	b.QueueUpdate()

	monErr := errors.New("failed to read utmp: permission denied")
	store.Fail(monErr)
	b.BroadcastError(monErr)

	typ, payload := readMessage(t, conn)
	if typ != MsgError {
		t.Fatalf("frame type = %q, want error", typ)
	}
	var p ErrorPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.Message != monErr.Error() {
		t.Errorf("error message = %q, want %q", p.Message, monErr.Error())
	}

	// Nothing may follow the error frame, even after the throttle window
	// of the queued update has long passed.
	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, data, err := conn.ReadMessage(); err == nil {
		t.Errorf("received frame after terminal error: %s", data)
	}
}

func TestClientCount(t *testing.T) {
	store := session.NewStore()
	b := NewBroadcaster(store, 10*time.Millisecond, time.Hour)
	defer b.snapshotTicker.Stop()

	if b.ClientCount() != 0 {
		t.Fatalf("ClientCount() = %d, want 0", b.ClientCount())
	}

	conn := dialTestServer(t, store, b)
	readMessage(t, conn)

	if b.ClientCount() != 1 {
		t.Errorf("ClientCount() = %d, want 1", b.ClientCount())
	}
}
