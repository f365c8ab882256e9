package signaling

// Transport is one pub/sub connection scoped to a single topic. The
// bus owns reconnection; a transport only reports loss and never dials
// again on its own.
type Transport interface {
	// Connect dials the relay and subscribes to the topic. Received
	// payloads are delivered on onMessage from the transport's own
	// goroutine. onDrop fires at most once, after a successful
	// Connect, when the connection is lost.
	Connect(topic string, onMessage func([]byte), onDrop func(error)) error

	// Publish sends one payload to the topic, fire-and-forget.
	Publish(payload []byte) error

	// Close tears the connection down. onDrop is not called for a
	// local Close.
	Close() error
}
