// Package relay implements the self-hostable WebSocket signaling
// relay: a topic-based fan-out with no message inspection. Every
// frame published on a topic is forwarded verbatim to all other
// members of that topic; clients do their own self-suppression by
// sender id.
package relay

import "log/slog"

// Frame is one raw payload published on a topic.
type Frame struct {
	Topic   string
	Payload []byte

	// sender is excluded from the fan-out.
	sender *Client
}

// Hub is the central state of the relay. It owns the topic membership
// map; all mutation happens on the single Run goroutine.
type Hub struct {
	// topics maps topic names to their current members.
	topics map[string]map[*Client]bool

	// Register is the channel for subscribing new clients.
	Register chan *Client

	// Unregister is the channel for departing clients.
	Unregister chan *Client

	// Broadcast carries frames to fan out.
	Broadcast chan *Frame
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		topics:     make(map[string]map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Broadcast:  make(chan *Frame),
	}
}

// Run starts the hub's main processing loop. This is the single
// goroutine that safely manages all state.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			// Topics are created implicitly on first join and reused
			// thereafter.
			members, ok := h.topics[client.Topic]
			if !ok {
				members = make(map[*Client]bool)
				h.topics[client.Topic] = members
			}
			members[client] = true
			slog.Info("relay client joined", "topic", client.Topic, "members", len(members))

		case client := <-h.Unregister:
			if members, ok := h.topics[client.Topic]; ok && members[client] {
				delete(members, client)
				close(client.Send)
				if len(members) == 0 {
					delete(h.topics, client.Topic)
				}
				slog.Info("relay client left", "topic", client.Topic, "members", len(members))
			}

		case frame := <-h.Broadcast:
			for client := range h.topics[frame.Topic] {
				if client == frame.sender {
					continue
				}
				select {
				case client.Send <- frame.Payload:
				default:
					// Slow consumer; dropping beats blocking the hub.
					slog.Warn("relay dropping frame for slow client", "topic", frame.Topic)
				}
			}
		}
	}
}
