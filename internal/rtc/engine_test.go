package rtc

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	pion "github.com/pion/webrtc/v4"

	"github.com/olivermeyer777/post-translatorv1/internal/config"
	"github.com/olivermeyer777/post-translatorv1/internal/signaling"
)

// wireEnd is one side of an in-memory broker. Publishes are recorded
// and forwarded to the opposite end in order.
type wireEnd struct {
	peer *wireEnd

	mu     sync.Mutex
	sent   []signaling.Message
	inbox  chan []byte
	closed bool
}

func newWire() (*wireEnd, *wireEnd) {
	a := &wireEnd{inbox: make(chan []byte, 256)}
	b := &wireEnd{inbox: make(chan []byte, 256)}
	a.peer, b.peer = b, a
	return a, b
}

func (e *wireEnd) Connect(_ string, onMessage func([]byte), _ func(error)) error {
	go func() {
		for payload := range e.inbox {
			onMessage(payload)
		}
	}()
	return nil
}

func (e *wireEnd) Publish(payload []byte) error {
	var msg signaling.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return err
	}
	e.mu.Lock()
	e.sent = append(e.sent, msg)
	e.mu.Unlock()

	e.peer.mu.Lock()
	if !e.peer.closed {
		e.peer.inbox <- payload
	}
	e.peer.mu.Unlock()
	return nil
}

func (e *wireEnd) Close() error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.inbox)
	}
	e.mu.Unlock()
	return nil
}

func (e *wireEnd) countSignals(sigType string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, msg := range e.sent {
		if msg.Type == signaling.TypeWebRTCSignal && msg.Signal != nil && msg.Signal.Type == sigType {
			n++
		}
	}
	return n
}

func testConfig() *config.Config {
	return &config.Config{STUNServer: config.DefaultSTUN}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestEnsureConnectionIdempotent(t *testing.T) {
	end, _ := newWire()
	bus := signaling.NewBus(end, clock.New())
	defer bus.Close()

	e := NewEngine(testConfig(), bus, signaling.RoleAgent, nil)
	defer e.Close()

	pc1, err := e.ensureConnection()
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	pc2, err := e.ensureConnection()
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if pc1 != pc2 {
		t.Fatal("second call built a new peer connection")
	}
}

func TestEnsureConnectionAfterClose(t *testing.T) {
	end, _ := newWire()
	bus := signaling.NewBus(end, clock.New())
	defer bus.Close()

	e := NewEngine(testConfig(), bus, signaling.RoleCustomer, nil)
	e.Close()

	if _, err := e.ensureConnection(); err != ErrClosed {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}

// Discovery over a shared room: the customer announces itself, the
// agent answers with readiness and the two sides negotiate to a stable
// session without either sending a duplicate offer.
func TestDiscoveryNegotiatesSingleConnection(t *testing.T) {
	agentEnd, customerEnd := newWire()
	agentBus := signaling.NewBus(agentEnd, clock.New())
	customerBus := signaling.NewBus(customerEnd, clock.New())
	defer agentBus.Close()
	defer customerBus.Close()

	agent := NewEngine(testConfig(), agentBus, signaling.RoleAgent, nil)
	customer := NewEngine(testConfig(), customerBus, signaling.RoleCustomer, nil)
	defer agent.Close()
	defer customer.Close()

	agent.Start()
	customer.Start()
	agentBus.Join("room")
	customerBus.Join("room")

	customerBus.Send(&signaling.Message{Type: signaling.TypeJoinRoom, Role: signaling.RoleCustomer})

	negotiated := func(e *Engine) bool {
		e.mu.Lock()
		pc := e.pc
		e.mu.Unlock()
		return pc != nil && pc.CurrentRemoteDescription() != nil &&
			pc.SignalingState() == pion.SignalingStateStable
	}
	waitUntil(t, 10*time.Second, func() bool {
		return negotiated(agent) && negotiated(customer)
	})

	// Settle briefly to catch a late duplicate offer.
	time.Sleep(100 * time.Millisecond)

	for name, e := range map[string]*Engine{"agent": agent, "customer": customer} {
		first, err := e.ensureConnection()
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		second, err := e.ensureConnection()
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if first != second {
			t.Fatalf("%s built a second peer connection", name)
		}
	}

	agentOffers := agentEnd.countSignals(signaling.SignalOffer)
	customerOffers := customerEnd.countSignals(signaling.SignalOffer)
	if agentOffers > 1 {
		t.Fatalf("agent sent %d offers", agentOffers)
	}
	if customerOffers > 1 {
		t.Fatalf("customer sent %d offers", customerOffers)
	}
	if agentOffers+customerOffers == 0 {
		t.Fatal("no offer sent")
	}
	if agentEnd.countSignals(signaling.SignalAnswer)+customerEnd.countSignals(signaling.SignalAnswer) == 0 {
		t.Fatal("no answer sent")
	}
}
