package infrastructure

import (
	"context"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/kmobs/zmk-softdevice-controller/pkg/domain"
	"github.com/kmobs/zmk-softdevice-controller/pkg/logger"
)

// MQTTClient subscribes to the activity topic on an external broker and
// feeds every payload into the activity processor. Standalone mode only;
// embedded mode receives the same payloads through the broker hook.
type MQTTClient struct {
	config    domain.MQTTConfig
	processor domain.ActivityProcessor
	client    mqtt.Client
	logger    zerolog.Logger
}

// NewMQTTClient builds the underlying paho client up front; Client is
// usable immediately, the network connection opens on Connect. The
// processor may be nil here and set later via SetProcessor.
func NewMQTTClient(config domain.MQTTConfig, processor domain.ActivityProcessor) *MQTTClient {
	c := &MQTTClient{
		config:    config,
		processor: processor,
		logger:    logger.ComponentLogger("mqtt-client"),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.buildBrokerURL())
	opts.SetClientID(config.GetClientID())
	opts.SetKeepAlive(config.GetKeepAlive())
	opts.SetPingTimeout(domain.DefaultMQTTPingTimeout)
	opts.SetConnectTimeout(config.GetTimeout())
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(domain.DefaultMQTTReconnectInt)

	users := config.GetUsers()
	if len(users) > 0 {
		opts.SetUsername(users[0].GetUsername())
		opts.SetPassword(users[0].GetPassword())
	}

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.client = mqtt.NewClient(opts)
	return c
}

// Client returns the shared paho client. Other components publishing to
// the same broker reuse this connection instead of opening their own.
func (c *MQTTClient) Client() mqtt.Client {
	return c.client
}

// SetProcessor wires the activity processor. Must be called before
// Connect; messages arriving without a processor are dropped.
func (c *MQTTClient) SetProcessor(processor domain.ActivityProcessor) {
	c.processor = processor
}

func (c *MQTTClient) Connect() error {
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to mqtt: %w", token.Error())
	}

	c.logger.Info().Str("broker", c.buildBrokerURL()).Msg("connected to mqtt broker")
	return nil
}

func (c *MQTTClient) buildBrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", c.config.GetHost(), c.config.GetPort())
}

// onConnect resubscribes on every (re)connect; paho drops subscriptions
// with the session.
func (c *MQTTClient) onConnect(client mqtt.Client) {
	topic := c.config.GetTopic()
	if token := client.Subscribe(topic, 0, c.messageHandler); token.Wait() && token.Error() != nil {
		c.logger.Error().Err(token.Error()).Str("topic", topic).Msg("failed to subscribe")
	} else {
		c.logger.Info().Str("topic", topic).Msg("subscribed to activity topic")
	}
}

func (c *MQTTClient) onConnectionLost(_ mqtt.Client, err error) {
	c.logger.Error().Err(err).Msg("connection lost")
}

func (c *MQTTClient) messageHandler(_ mqtt.Client, msg mqtt.Message) {
	if c.processor == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), domain.DefaultTimeout)
	defer cancel()

	if err := c.processor.ProcessActivity(ctx, msg.Topic(), msg.Payload()); err != nil {
		c.logger.Error().Err(err).Str("topic", msg.Topic()).Msg("activity processing failed")
	}
}

func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(domain.DefaultMQTTDisconnectMs)
		c.logger.Info().Msg("disconnected from mqtt broker")
	}
}
