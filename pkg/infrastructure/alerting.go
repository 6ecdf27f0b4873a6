package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/rs/zerolog"

	"github.com/kmobs/zmk-softdevice-controller/pkg/domain"
	"github.com/kmobs/zmk-softdevice-controller/pkg/logger"
)

// alertPayload is the JSON shape published on the alert topic. Both
// senders emit it so subscribers never care which mode runs.
type alertPayload struct {
	Severity  string `json:"severity"`
	Message   string `json:"message"`
	Source    string `json:"source,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func encodeAlert(alert domain.Alert) ([]byte, error) {
	timestamp := alert.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	return json.Marshal(alertPayload{
		Severity:  alert.Severity,
		Message:   alert.Message,
		Source:    alert.Source,
		Timestamp: timestamp.Unix(),
	})
}

// BrokerAlertSender publishes alerts straight into the embedded broker,
// no client round-trip involved.
type BrokerAlertSender struct {
	mqttServer *mqtt.Server
	topic      string
	logger     zerolog.Logger
}

func NewBrokerAlertSender(server *mqtt.Server, topic string) *BrokerAlertSender {
	if topic == "" {
		topic = domain.DefaultAlertTopic
	}

	return &BrokerAlertSender{
		mqttServer: server,
		topic:      topic,
		logger:     logger.ComponentLogger("alerter"),
	}
}

func (s *BrokerAlertSender) SendAlert(_ context.Context, alert domain.Alert) error {
	data, err := encodeAlert(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	if s.mqttServer != nil {
		if err := s.mqttServer.Publish(s.topic, data, false, 0); err != nil {
			return fmt.Errorf("publish to topic %s: %w", s.topic, err)
		}
		s.logger.Info().Str("topic", s.topic).Str("severity", alert.Severity).Msg("alert published")
	}

	return nil
}
