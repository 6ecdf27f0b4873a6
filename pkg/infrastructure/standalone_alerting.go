package infrastructure

import (
	"context"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/kmobs/zmk-softdevice-controller/pkg/domain"
	"github.com/kmobs/zmk-softdevice-controller/pkg/logger"
)

// StandaloneAlertSender publishes alerts through the paho client when
// the broker lives elsewhere.
type StandaloneAlertSender struct {
	mqttClient mqtt.Client
	topic      string
	logger     zerolog.Logger
}

func NewStandaloneAlertSender(client mqtt.Client, topic string) *StandaloneAlertSender {
	if topic == "" {
		topic = domain.DefaultAlertTopic
	}

	return &StandaloneAlertSender{
		mqttClient: client,
		topic:      topic,
		logger:     logger.ComponentLogger("standalone-alerter"),
	}
}

func (s *StandaloneAlertSender) SendAlert(_ context.Context, alert domain.Alert) error {
	if s.mqttClient == nil || !s.mqttClient.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	data, err := encodeAlert(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	token := s.mqttClient.Publish(s.topic, 0, false, data)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("publish to topic %s: %w", s.topic, token.Error())
	}

	s.logger.Info().Str("topic", s.topic).Str("severity", alert.Severity).Msg("alert published")
	return nil
}
