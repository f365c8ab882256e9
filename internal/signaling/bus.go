package signaling

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

const (
	// ReconnectDelay is the fixed wait between reconnect attempts.
	// The relay is a persistent service, so there is no backoff.
	ReconnectDelay = 2 * time.Second

	// MaxQueuedMessages bounds the offline send queue. Sends beyond
	// the bound are rejected so a long outage cannot flood the topic
	// on reconnect.
	MaxQueuedMessages = 50
)

// Status is the user-visible connection state of the bus.
type Status int

const (
	StatusOffline Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "offline"
	}
}

// Bus is the topic-based pub/sub signaling client shared by the
// negotiation engine and the translation session. Delivery is
// best-effort, at-most-once; ordering holds per sender connection
// only. Messages published by this instance are never delivered back
// to local subscribers.
type Bus struct {
	transport Transport
	clk       clock.Clock
	senderID  string

	mu           sync.Mutex
	topic        string
	connected    bool
	reconnecting bool
	closed       bool
	queue        []*Message
	listeners    map[int]func(*Message)
	statusFns    map[int]func(Status)
	nextID       int
	timer        *clock.Timer
}

// NewBus creates a bus over the given transport. Pass clock.New()
// outside of tests.
func NewBus(transport Transport, clk clock.Clock) *Bus {
	return &Bus{
		transport: transport,
		clk:       clk,
		senderID:  uuid.NewString(),
		listeners: make(map[int]func(*Message)),
		statusFns: make(map[int]func(Status)),
	}
}

// SenderID returns the opaque instance id stamped on outbound messages.
func (b *Bus) SenderID() string {
	return b.senderID
}

// Join establishes the transport connection for one room topic. It is
// idempotent: joining the same topic while connected or reconnecting
// is a no-op. Connection failures are not returned; the bus keeps
// retrying on a fixed delay until Close.
func (b *Bus) Join(topic string) {
	b.mu.Lock()
	if b.closed || (b.topic == topic && (b.connected || b.reconnecting)) {
		b.mu.Unlock()
		return
	}
	b.topic = topic
	b.mu.Unlock()

	b.notifyStatus(StatusConnecting)
	go b.connect()
}

func (b *Bus) connect() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	topic := b.topic
	b.mu.Unlock()

	err := b.transport.Connect(topic, b.deliver, b.onDrop)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if err != nil {
		b.mu.Unlock()
		slog.Warn("signaling connect failed", "topic", topic, "err", err)
		b.scheduleReconnect()
		return
	}
	b.connected = true
	b.reconnecting = false
	pending := b.queue
	b.queue = nil
	b.mu.Unlock()

	slog.Info("signaling connected", "topic", topic)
	b.notifyStatus(StatusConnected)

	// Flush queued sends in original order.
	for _, msg := range pending {
		b.publish(msg)
	}
}

func (b *Bus) onDrop(err error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.connected = false
	b.mu.Unlock()

	slog.Warn("signaling connection lost", "err", err)
	b.notifyStatus(StatusConnecting)
	b.scheduleReconnect()
}

// scheduleReconnect arms the fixed-delay retry. At most one reconnect
// attempt is in flight at a time.
func (b *Bus) scheduleReconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || b.reconnecting {
		return
	}
	b.reconnecting = true
	b.timer = b.clk.AfterFunc(ReconnectDelay, func() {
		b.mu.Lock()
		b.reconnecting = false
		b.mu.Unlock()
		b.connect()
	})
}

// Send publishes a message to the room topic, stamping it with the
// local sender id. While disconnected the message is queued up to
// MaxQueuedMessages; beyond that the send is rejected.
func (b *Bus) Send(msg *Message) {
	msg.SenderID = b.senderID

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if !b.connected {
		if len(b.queue) < MaxQueuedMessages {
			b.queue = append(b.queue, msg)
		} else {
			slog.Warn("signaling send rejected, offline queue full", "type", msg.Type)
		}
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	b.publish(msg)
}

func (b *Bus) publish(msg *Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		slog.Error("signaling marshal failed", "type", msg.Type, "err", err)
		return
	}
	if err := b.transport.Publish(payload); err != nil {
		slog.Warn("signaling publish failed", "type", msg.Type, "err", err)
		// Assume connection trouble and let the reconnect path recover.
		b.mu.Lock()
		wasConnected := b.connected
		b.connected = false
		b.mu.Unlock()
		if wasConnected {
			b.notifyStatus(StatusConnecting)
			b.scheduleReconnect()
		}
	}
}

// deliver fans one raw payload out to every subscriber, suppressing
// messages this instance published itself.
func (b *Bus) deliver(payload []byte) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		slog.Warn("signaling parse error", "err", err)
		return
	}
	if msg.SenderID == b.senderID {
		return
	}

	b.mu.Lock()
	fns := make([]func(*Message), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(&msg)
	}
}

// Subscribe registers a listener for every delivered message and
// returns its deregistration handle.
func (b *Bus) Subscribe(fn func(*Message)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

// OnStatus registers a connection-status listener and returns its
// deregistration handle.
func (b *Bus) OnStatus(fn func(Status)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.statusFns[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.statusFns, id)
		b.mu.Unlock()
	}
}

func (b *Bus) notifyStatus(s Status) {
	b.mu.Lock()
	fns := make([]func(Status), 0, len(b.statusFns))
	for _, fn := range b.statusFns {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

// Close tears down the transport and cancels any pending reconnect.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.connected = false
	if b.timer != nil {
		b.timer.Stop()
	}
	b.mu.Unlock()

	if err := b.transport.Close(); err != nil {
		slog.Debug("signaling close", "err", err)
	}
	b.notifyStatus(StatusOffline)
}
