package signaling

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/olivermeyer777/post-translatorv1/internal/dns"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 256 * 1024
)

// WSTransport talks to the self-hosted WebSocket relay. The relay
// fans every frame out to all other members of the topic, so the
// transport carries raw message payloads with no extra framing.
type WSTransport struct {
	relayURL string

	mu      sync.Mutex
	conn    *websocket.Conn
	done    chan struct{}
	dropped bool
}

// NewWSTransport creates a transport for the given relay base URL
// (ws://host:port or wss://host).
func NewWSTransport(relayURL string) *WSTransport {
	return &WSTransport{relayURL: relayURL}
}

// Connect dials the relay and starts the read and ping pumps.
func (t *WSTransport) Connect(topic string, onMessage func([]byte), onDrop func(error)) error {
	u, err := url.Parse(t.relayURL)
	if err != nil {
		return fmt.Errorf("invalid relay URL: %w", err)
	}
	u.Path = "/ws"
	u.RawQuery = url.Values{"topic": []string{topic}}.Encode()

	// Create a custom dialer that uses our robust DNS lookup
	dialer := websocket.DefaultDialer
	dialer.NetDial = func(network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}

		resolvedIP, err := dns.Lookup(host)
		if err != nil {
			return nil, fmt.Errorf("dns lookup failed: %w", err)
		}

		return net.Dial(network, net.JoinHostPort(resolvedIP, port))
	}

	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})

	t.mu.Lock()
	if t.conn != nil {
		t.conn.Close()
	}
	t.conn = conn
	t.done = done
	t.dropped = false
	t.mu.Unlock()

	go t.readPump(conn, onMessage, onDrop)
	go t.pingPump(conn, done)

	return nil
}

func (t *WSTransport) readPump(conn *websocket.Conn, onMessage func([]byte), onDrop func(error)) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			// Only report loss for the active connection, and only if
			// it was not closed locally.
			report := t.conn == conn && !t.dropped
			if report {
				t.dropped = true
			}
			t.mu.Unlock()
			if report {
				onDrop(err)
			}
			return
		}
		onMessage(payload)
	}
}

func (t *WSTransport) pingPump(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.mu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			t.mu.Unlock()
			if err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// Publish writes one payload as a text frame.
func (t *WSTransport) Publish(payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return errors.New("relay not connected")
	}
	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteMessage(websocket.TextMessage, payload)
}

// Close shuts the connection down without reporting a drop.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dropped = true
	if t.done != nil {
		close(t.done)
		t.done = nil
	}
	if t.conn != nil {
		t.conn.SetWriteDeadline(time.Now().Add(writeWait))
		t.conn.WriteMessage(websocket.CloseMessage, []byte{})
		err := t.conn.Close()
		t.conn = nil
		return err
	}
	return nil
}
