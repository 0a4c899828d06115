package broadlink

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-broadlink/internal/infrastructure/mqtt"
)

type published struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// mockMQTT records publishes and captures the command handler.
type mockMQTT struct {
	mu           sync.Mutex
	connected    bool
	messages     []published
	handlers     map[string]mqtt.MessageHandler
	subscribeErr error
}

func newMockMQTT() *mockMQTT {
	return &mockMQTT{connected: true, handlers: make(map[string]mqtt.MessageHandler)}
}

func (m *mockMQTT) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, published{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	return nil
}

func (m *mockMQTT) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return m.subscribeErr
	}
	m.handlers[topic] = handler
	return nil
}

func (m *mockMQTT) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockMQTT) setConnected(v bool) {
	m.mu.Lock()
	m.connected = v
	m.mu.Unlock()
}

// deliver simulates a command arriving for selector.
func (m *mockMQTT) deliver(t *testing.T, selector string, payload any) {
	t.Helper()
	var raw []byte
	switch p := payload.(type) {
	case []byte:
		raw = p
	case string:
		raw = []byte(p)
	default:
		var err error
		raw, err = json.Marshal(p)
		require.NoError(t, err)
	}

	m.mu.Lock()
	handler := m.handlers[mqtt.Topics{}.AllCommands()]
	m.mu.Unlock()
	require.NotNil(t, handler, "bridge not subscribed")
	require.NoError(t, handler(mqtt.Topics{}.Command(selector), raw))
}

// onTopic returns every message published to topics starting with prefix.
func (m *mockMQTT) onTopic(prefix string) []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []published
	for _, p := range m.messages {
		if strings.HasPrefix(p.Topic, prefix) {
			out = append(out, p)
		}
	}
	return out
}

// waitDecode waits until n messages exist under prefix and decodes the nth.
func waitDecode[T any](t *testing.T, m *mockMQTT, prefix string, n int) T {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(m.onTopic(prefix)) >= n
	}, 2*time.Second, 5*time.Millisecond, "waiting for message %d on %s", n, prefix)

	var v T
	require.NoError(t, json.Unmarshal(m.onTopic(prefix)[n-1].Payload, &v))
	return v
}

// waitFinal waits for the terminal learning message on prefix.
func waitFinal(t *testing.T, m *mockMQTT, prefix string) LearnMessage {
	t.Helper()
	var final LearnMessage
	require.Eventually(t, func() bool {
		for _, p := range m.onTopic(prefix) {
			var msg LearnMessage
			if json.Unmarshal(p.Payload, &msg) == nil && msg.Final {
				final = msg
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
	return final
}

type telemetryCall struct {
	Kind   string
	Device string
	Value  string
}

type mockTelemetry struct {
	mu    sync.Mutex
	calls []telemetryCall
}

func (m *mockTelemetry) add(c telemetryCall) {
	m.mu.Lock()
	m.calls = append(m.calls, c)
	m.mu.Unlock()
}

func (m *mockTelemetry) WriteDispatch(device string, attempted, failed int, timedOut bool, _ time.Duration) {
	m.add(telemetryCall{Kind: "dispatch", Device: device})
}

func (m *mockTelemetry) WriteLiveness(device, state string, _ bool) {
	m.add(telemetryCall{Kind: "liveness", Device: device, Value: state})
}

func (m *mockTelemetry) WriteLearning(device, _, outcome string, _ float64, _ time.Duration) {
	m.add(telemetryCall{Kind: "learning", Device: device, Value: outcome})
}

func (m *mockTelemetry) of(kind string) []telemetryCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []telemetryCall
	for _, c := range m.calls {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

type event struct {
	Channel string
	Payload any
}

type mockEvents struct {
	mu     sync.Mutex
	events []event
}

func (m *mockEvents) Broadcast(channel string, payload any) {
	m.mu.Lock()
	m.events = append(m.events, event{Channel: channel, Payload: payload})
	m.mu.Unlock()
}

func (m *mockEvents) on(channel string) []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []any
	for _, e := range m.events {
		if e.Channel == channel {
			out = append(out, e.Payload)
		}
	}
	return out
}
