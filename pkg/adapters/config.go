package adapters

import (
	"fmt"
	"time"

	"github.com/kmobs/zmk-softdevice-controller/pkg/domain"
	"github.com/kmobs/zmk-softdevice-controller/pkg/validator"
)

type ConfigAdapter struct {
	mqtt       MQTTConfigAdapter
	controller ControllerConfigAdapter
	link       LinkConfigAdapter
	metrics    MetricsConfigAdapter
	alerting   AlertingConfigAdapter
}

type MQTTConfigAdapter struct {
	Host           string
	Port           int
	ClientID       string
	Topic          string
	AllowAnonymous bool
	Users          []UserAuthAdapter
	Timeout        time.Duration
	KeepAlive      time.Duration
}

type UserAuthAdapter struct {
	Username string
	Password string
}

type ControllerConfigAdapter struct {
	Role         domain.LinkRole
	DormantDelay time.Duration
	Tiers        domain.TierTable
}

type LinkConfigAdapter struct {
	Listen            string
	Peers             []string
	DialTimeout       time.Duration
	ReconnectInterval time.Duration
}

type MetricsConfigAdapter struct {
	Listen       string
	EnableHealth bool
}

type AlertingConfigAdapter struct {
	Enabled bool
	Topic   string
}

func NewConfigAdapter(mqtt MQTTConfigAdapter, controller ControllerConfigAdapter, link LinkConfigAdapter, metrics MetricsConfigAdapter, alerting AlertingConfigAdapter) *ConfigAdapter {
	return &ConfigAdapter{
		mqtt:       mqtt,
		controller: controller,
		link:       link,
		metrics:    metrics,
		alerting:   alerting,
	}
}

func (c *ConfigAdapter) GetMQTTConfig() domain.MQTTConfig {
	return &c.mqtt
}

func (c *ConfigAdapter) GetControllerConfig() domain.ControllerConfig {
	return &c.controller
}

func (c *ConfigAdapter) GetLinkConfig() domain.LinkConfig {
	return &c.link
}

func (c *ConfigAdapter) GetMetricsConfig() domain.MetricsConfig {
	return &c.metrics
}

func (c *ConfigAdapter) GetAlertingConfig() domain.AlertingConfig {
	return &c.alerting
}

// Validate is the startup gate: an infeasible tier table or a broken
// transport address must stop the process before any transition runs.
func (c *ConfigAdapter) Validate() error {
	if c.mqtt.Host == "" {
		return fmt.Errorf("MQTT host cannot be empty")
	}
	if c.mqtt.Port <= 0 || c.mqtt.Port > 65535 {
		return fmt.Errorf("invalid MQTT port: %d", c.mqtt.Port)
	}
	if err := validator.ValidateTopicName(c.mqtt.Topic); err != nil {
		return fmt.Errorf("invalid activity topic: %w", err)
	}

	if err := validator.ValidateTierTable(c.controller.Tiers); err != nil {
		return err
	}
	if c.controller.DormantDelay <= 0 {
		return fmt.Errorf("dormant delay must be positive: %s", c.controller.DormantDelay)
	}

	if c.link.Listen == "" && len(c.link.Peers) == 0 {
		return fmt.Errorf("link layer needs a listen path or at least one peer")
	}
	if c.link.Listen != "" {
		if err := validator.ValidateSocketPath(c.link.Listen); err != nil {
			return fmt.Errorf("invalid listen path: %w", err)
		}
	}
	for _, peer := range c.link.Peers {
		if err := validator.ValidateSocketPath(peer); err != nil {
			return fmt.Errorf("invalid peer path: %w", err)
		}
	}
	if c.controller.Role == domain.RoleCentral && len(c.link.Peers) == 0 {
		return fmt.Errorf("central role needs at least one peer to dial")
	}

	if c.metrics.Listen == "" {
		return fmt.Errorf("metrics listen address cannot be empty")
	}

	if c.alerting.Enabled {
		if err := validator.ValidateTopicName(c.alerting.Topic); err != nil {
			return fmt.Errorf("invalid alert topic: %w", err)
		}
	}

	return nil
}

func (m *MQTTConfigAdapter) GetHost() string             { return m.Host }
func (m *MQTTConfigAdapter) GetPort() int                { return m.Port }
func (m *MQTTConfigAdapter) GetClientID() string         { return m.ClientID }
func (m *MQTTConfigAdapter) GetTopic() string            { return m.Topic }
func (m *MQTTConfigAdapter) GetAllowAnonymous() bool     { return m.AllowAnonymous }
func (m *MQTTConfigAdapter) GetTimeout() time.Duration   { return m.Timeout }
func (m *MQTTConfigAdapter) GetKeepAlive() time.Duration { return m.KeepAlive }

func (m *MQTTConfigAdapter) GetUsers() []domain.UserAuth {
	users := make([]domain.UserAuth, len(m.Users))
	for i := range m.Users {
		users[i] = &m.Users[i]
	}
	return users
}

func (u *UserAuthAdapter) GetUsername() string { return u.Username }
func (u *UserAuthAdapter) GetPassword() string { return u.Password }

func (c *ControllerConfigAdapter) GetRole() domain.LinkRole       { return c.Role }
func (c *ControllerConfigAdapter) GetDormantDelay() time.Duration { return c.DormantDelay }
func (c *ControllerConfigAdapter) GetTierTable() domain.TierTable { return c.Tiers }

func (l *LinkConfigAdapter) GetListen() string                   { return l.Listen }
func (l *LinkConfigAdapter) GetPeers() []string                  { return l.Peers }
func (l *LinkConfigAdapter) GetDialTimeout() time.Duration       { return l.DialTimeout }
func (l *LinkConfigAdapter) GetReconnectInterval() time.Duration { return l.ReconnectInterval }

func (m *MetricsConfigAdapter) GetListen() string     { return m.Listen }
func (m *MetricsConfigAdapter) GetEnableHealth() bool { return m.EnableHealth }

func (a *AlertingConfigAdapter) GetEnabled() bool { return a.Enabled }
func (a *AlertingConfigAdapter) GetTopic() string { return a.Topic }
