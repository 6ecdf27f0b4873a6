package infrastructure

import (
	"context"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/kmobs/zmk-softdevice-controller/pkg/adapters"
	"github.com/kmobs/zmk-softdevice-controller/pkg/mocks"
)

func TestNewMQTTClient(t *testing.T) {
	config := &adapters.MQTTConfigAdapter{Host: "localhost", Port: 1883}
	processor := &mocks.MockActivityProcessor{}

	client := NewMQTTClient(config, processor)
	if client == nil {
		t.Fatal("Expected client to be created")
	}
	if client.config != config {
		t.Error("Expected config to be set")
	}
	if client.processor != processor {
		t.Error("Expected processor to be set")
	}
	if client.Client() == nil {
		t.Error("Expected paho client to exist before Connect")
	}
}

func TestMQTTClient_SetProcessor(t *testing.T) {
	config := &adapters.MQTTConfigAdapter{Host: "localhost", Port: 1883}

	client := NewMQTTClient(config, nil)

	mockMsg := &mockMessage{
		topic:   "zmk/activity",
		payload: []byte(`{"state": "active"}`),
	}

	// without a processor the message is dropped
	client.messageHandler(nil, mockMsg)

	processor := &mocks.MockActivityProcessor{}
	client.SetProcessor(processor)

	client.messageHandler(nil, mockMsg)
	if !processor.Called() {
		t.Error("Expected ProcessActivity to be called after SetProcessor")
	}
}

func TestBuildBrokerURL(t *testing.T) {
	config := &adapters.MQTTConfigAdapter{Host: "localhost", Port: 1883}

	client := NewMQTTClient(config, &mocks.MockActivityProcessor{})
	url := client.buildBrokerURL()

	expected := "tcp://localhost:1883"
	if url != expected {
		t.Errorf("Expected URL '%s', got '%s'", expected, url)
	}
}

func TestMQTTClient_MessageHandler(t *testing.T) {
	config := &adapters.MQTTConfigAdapter{Host: "localhost", Port: 1883}
	processor := &mocks.MockActivityProcessor{}

	client := NewMQTTClient(config, processor)

	mockMsg := &mockMessage{
		topic:   "zmk/activity",
		payload: []byte(`{"state": "active"}`),
	}

	client.messageHandler(nil, mockMsg)

	if !processor.Called() {
		t.Error("Expected ProcessActivity to be called")
	}
	if processor.LastSource() != "zmk/activity" {
		t.Errorf("Expected topic as source, got '%s'", processor.LastSource())
	}
}

func TestMQTTClient_MessageHandler_WithError(t *testing.T) {
	config := &adapters.MQTTConfigAdapter{Host: "localhost", Port: 1883}
	processor := &mocks.MockActivityProcessor{Err: context.DeadlineExceeded}

	client := NewMQTTClient(config, processor)

	mockMsg := &mockMessage{
		topic:   "zmk/activity",
		payload: []byte(`not json`),
	}

	// processing errors are logged, never propagated into paho
	client.messageHandler(nil, mockMsg)
}

func TestMQTTClient_OnConnect_Subscribes(t *testing.T) {
	config := &adapters.MQTTConfigAdapter{Host: "localhost", Port: 1883, Topic: "zmk/activity"}

	client := NewMQTTClient(config, &mocks.MockActivityProcessor{})

	mockClient := &mockMQTTClient{subscribeSuccess: true}
	client.onConnect(mockClient)

	if len(mockClient.subscribedTopics) != 1 {
		t.Fatalf("Expected 1 subscription, got %d", len(mockClient.subscribedTopics))
	}
	if mockClient.subscribedTopics[0] != "zmk/activity" {
		t.Errorf("Expected activity topic, got '%s'", mockClient.subscribedTopics[0])
	}
}

func TestMQTTClient_OnConnect_SubscribeError(t *testing.T) {
	config := &adapters.MQTTConfigAdapter{Host: "localhost", Port: 1883, Topic: "zmk/activity"}

	client := NewMQTTClient(config, &mocks.MockActivityProcessor{})

	mockClient := &mockMQTTClient{subscribeSuccess: false}
	client.onConnect(mockClient)

	if len(mockClient.subscribedTopics) != 1 {
		t.Errorf("Expected 1 attempted subscription, got %d", len(mockClient.subscribedTopics))
	}
}

func TestMQTTClient_OnConnectionLost(t *testing.T) {
	config := &adapters.MQTTConfigAdapter{Host: "localhost", Port: 1883}

	client := NewMQTTClient(config, &mocks.MockActivityProcessor{})
	client.onConnectionLost(nil, context.DeadlineExceeded)
}

func TestMQTTClient_Disconnect_NotConnected(t *testing.T) {
	config := &adapters.MQTTConfigAdapter{Host: "localhost", Port: 1883}

	client := NewMQTTClient(config, &mocks.MockActivityProcessor{})
	client.Disconnect()
}

func TestMQTTClient_Disconnect_Connected(t *testing.T) {
	config := &adapters.MQTTConfigAdapter{Host: "localhost", Port: 1883}

	client := NewMQTTClient(config, &mocks.MockActivityProcessor{})

	mockClient := &mockMQTTClient{connected: true}
	client.client = mockClient

	client.Disconnect()

	if !mockClient.disconnectCalled {
		t.Error("Expected Disconnect to be called")
	}
}

type mockMessage struct {
	topic   string
	payload []byte
}

func (m *mockMessage) Duplicate() bool   { return false }
func (m *mockMessage) Qos() byte         { return 0 }
func (m *mockMessage) Retained() bool    { return false }
func (m *mockMessage) Topic() string     { return m.topic }
func (m *mockMessage) MessageID() uint16 { return 0 }
func (m *mockMessage) Payload() []byte   { return m.payload }
func (m *mockMessage) Ack()              {}
func (m *mockMessage) Reject()           {}

type mockMQTTClient struct {
	connected         bool
	disconnectCalled  bool
	subscribeSuccess  bool
	subscribedTopics  []string
	publishedTopics   []string
	publishedPayloads [][]byte
}

func (m *mockMQTTClient) IsConnected() bool {
	return m.connected
}

func (m *mockMQTTClient) IsConnectionOpen() bool {
	return m.connected
}

func (m *mockMQTTClient) Connect() mqtt.Token {
	return &mockToken{err: nil}
}

func (m *mockMQTTClient) Disconnect(quiesce uint) {
	m.disconnectCalled = true
	m.connected = false
}

func (m *mockMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	m.publishedTopics = append(m.publishedTopics, topic)
	if data, ok := payload.([]byte); ok {
		m.publishedPayloads = append(m.publishedPayloads, data)
	}
	return &mockToken{err: nil}
}

func (m *mockMQTTClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	m.subscribedTopics = append(m.subscribedTopics, topic)
	if m.subscribeSuccess {
		return &mockToken{err: nil}
	}
	return &mockToken{err: context.DeadlineExceeded}
}

func (m *mockMQTTClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	return &mockToken{err: nil}
}

func (m *mockMQTTClient) Unsubscribe(topics ...string) mqtt.Token {
	return &mockToken{err: nil}
}

func (m *mockMQTTClient) AddRoute(topic string, callback mqtt.MessageHandler) {}

func (m *mockMQTTClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

type mockToken struct {
	err error
}

func (m *mockToken) Wait() bool {
	return true
}

func (m *mockToken) WaitTimeout(time.Duration) bool {
	return true
}

func (m *mockToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (m *mockToken) Error() error {
	return m.err
}
