// Package client connects the terminal UI to the whostherd daemon.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"github.com/whosthere/whosthere/internal/ws"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
)

// WSClient manages the WebSocket connection to the daemon.
type WSClient struct {
	url   string
	token string

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewWSClient(url, token string) *WSClient {
	return &WSClient{url: url, token: token}
}

// --- Bubble Tea messages ---

// ConnectedMsg is sent when the WebSocket connects.
type ConnectedMsg struct{}

// DisconnectedMsg is sent when the connection drops.
type DisconnectedMsg struct{ Err error }

// SessionsMsg delivers a snapshot or update frame; either way it is the
// complete authoritative state.
type SessionsMsg struct{ Payload ws.SessionsPayload }

// MonitorErrorMsg delivers the daemon's terminal error. No further sessions
// will ever arrive.
type MonitorErrorMsg struct{ Message string }

// Listen returns a Bubble Tea command that connects, retrying with backoff.
func (c *WSClient) Listen(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		delay := reconnectBaseDelay
		for {
			select {
			case <-ctx.Done():
				return nil
			default:
			}

			url := c.url
			if c.token != "" {
				url += "?token=" + c.token
			}
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			if err != nil {
				time.Sleep(delay)
				delay = min(delay*2, reconnectMaxDelay)
				continue
			}

			c.mu.Lock()
			c.conn = conn
			c.mu.Unlock()

			return ConnectedMsg{}
		}
	}
}

// ReadLoop returns a Bubble Tea command that reads frames until one is
// worth dispatching. Start it after ConnectedMsg and again after each
// dispatched message.
func (c *WSClient) ReadLoop(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return DisconnectedMsg{Err: fmt.Errorf("not connected")}
		}

		for {
			select {
			case <-ctx.Done():
				return nil
			default:
			}

			_, data, err := conn.ReadMessage()
			if err != nil {
				c.mu.Lock()
				if c.conn == conn {
					c.conn = nil
				}
				c.mu.Unlock()
				conn.Close()
				return DisconnectedMsg{Err: err}
			}

			var msg struct {
				Type    ws.MessageType  `json:"type"`
				Payload json.RawMessage `json:"payload"`
			}
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}

			if teaMsg := dispatch(msg.Type, msg.Payload); teaMsg != nil {
				return teaMsg
			}
		}
	}
}

// Close tears the connection down.
func (c *WSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func dispatch(typ ws.MessageType, payload json.RawMessage) tea.Msg {
	switch typ {
	case ws.MsgSnapshot, ws.MsgUpdate:
		var p ws.SessionsPayload
		if json.Unmarshal(payload, &p) == nil {
			return SessionsMsg{Payload: p}
		}
	case ws.MsgError:
		var p ws.ErrorPayload
		if json.Unmarshal(payload, &p) == nil {
			return MonitorErrorMsg{Message: p.Message}
		}
	}
	return nil
}
