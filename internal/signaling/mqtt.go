package signaling

import (
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	mqttConnectTimeout = 3 * time.Second
	mqttPublishTimeout = 5 * time.Second
)

// MQTTTransport publishes and subscribes on a shared public broker.
// QoS 0 throughout: fire-and-forget is the fastest option for
// real-time audio and matches the at-most-once contract of the bus.
// Paho's own auto-reconnect is disabled; the bus owns retry.
type MQTTTransport struct {
	broker   string
	instance string

	mu     sync.Mutex
	client mqtt.Client
	topic  string
}

// NewMQTTTransport creates a transport for the given broker URL
// (wss://... for browser-compatible brokers). instance is a unique
// suffix for broker client ids.
func NewMQTTTransport(broker, instance string) *MQTTTransport {
	return &MQTTTransport{broker: broker, instance: instance}
}

// Connect dials the broker with a fresh client and subscribes to the
// topic. Any previous client is discarded first.
func (t *MQTTTransport) Connect(topic string, onMessage func([]byte), onDrop func(error)) error {
	t.mu.Lock()
	if t.client != nil {
		t.client.Disconnect(0)
		t.client = nil
	}
	t.mu.Unlock()

	// Broker client ids must be unique; include a timestamp so a
	// half-dead previous session cannot collide with the new one.
	clientID := fmt.Sprintf("postbranch-%s-%d", t.instance, time.Now().UnixMilli())

	opts := mqtt.NewClientOptions().
		AddBroker(t.broker).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectTimeout(mqttConnectTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			onDrop(err)
		})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}

	handler := func(_ mqtt.Client, m mqtt.Message) {
		onMessage(m.Payload())
	}
	if token := client.Subscribe(topic, 0, handler); token.Wait() && token.Error() != nil {
		client.Disconnect(0)
		return fmt.Errorf("mqtt subscribe %q: %w", topic, token.Error())
	}

	t.mu.Lock()
	t.client = client
	t.topic = topic
	t.mu.Unlock()
	return nil
}

// Publish sends one payload to the subscribed topic at QoS 0.
func (t *MQTTTransport) Publish(payload []byte) error {
	t.mu.Lock()
	client, topic := t.client, t.topic
	t.mu.Unlock()

	if client == nil || !client.IsConnected() {
		return errors.New("mqtt not connected")
	}

	token := client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return errors.New("mqtt publish timeout")
	}
	return token.Error()
}

// Close disconnects from the broker.
func (t *MQTTTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil {
		t.client.Disconnect(100)
		t.client = nil
	}
	return nil
}
