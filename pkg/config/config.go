package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kmobs/zmk-softdevice-controller/pkg/adapters"
	"github.com/kmobs/zmk-softdevice-controller/pkg/domain"
	"github.com/kmobs/zmk-softdevice-controller/pkg/errors"
	"github.com/kmobs/zmk-softdevice-controller/pkg/logger"
)

// TierParams is the yaml shape of one tier. The supervision timeout is
// not part of it; a single timeout covers all three tiers.
type TierParams struct {
	SubrateMin         uint16 `yaml:"subrate_min"`
	SubrateMax         uint16 `yaml:"subrate_max"`
	MaxLatency         uint16 `yaml:"max_latency"`
	ContinuationNumber uint16 `yaml:"continuation_number"`
}

// ActiveTierParams carries no latency knob; the active tier always
// runs with max_latency 0.
type ActiveTierParams struct {
	SubrateMin         uint16 `yaml:"subrate_min"`
	SubrateMax         uint16 `yaml:"subrate_max"`
	ContinuationNumber uint16 `yaml:"continuation_number"`
}

type FileConfig struct {
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`

	MQTT struct {
		Host           string `yaml:"host"`
		Port           int    `yaml:"port"`
		ClientID       string `yaml:"client_id"`
		Topic          string `yaml:"topic"`
		AllowAnonymous bool   `yaml:"allow_anonymous"`
		Username       string `yaml:"username"`
		Password       string `yaml:"password"`
		Users          []struct {
			Username string `yaml:"username"`
			Password string `yaml:"password"`
		} `yaml:"users"`
	} `yaml:"mqtt"`

	Controller struct {
		Role               string `yaml:"role"`
		DormantDelay       string `yaml:"dormant_delay"`
		SupervisionTimeout uint16 `yaml:"supervision_timeout"`
		Tiers              struct {
			Active  ActiveTierParams `yaml:"active"`
			Idle    TierParams       `yaml:"idle"`
			Dormant TierParams       `yaml:"dormant"`
		} `yaml:"tiers"`
	} `yaml:"controller"`

	Link struct {
		Listen            string   `yaml:"listen"`
		Peers             []string `yaml:"peers"`
		DialTimeout       string   `yaml:"dial_timeout"`
		ReconnectInterval string   `yaml:"reconnect_interval"`
	} `yaml:"link"`

	Metrics struct {
		Listen string `yaml:"listen"`
		Health bool   `yaml:"health"`
	} `yaml:"metrics"`

	Alerting struct {
		Enabled bool   `yaml:"enabled"`
		Topic   string `yaml:"topic"`
	} `yaml:"alerting"`
}

// Load reads filename and returns the runtime configuration. A missing
// file is not an error; defaults apply.
func Load(filename string) (domain.Config, error) {
	config := &FileConfig{}
	setDefaults(config)

	if data, err := os.ReadFile(filename); err == nil {
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, errors.NewConfigError("failed to parse yaml", err)
		}
	}

	return convertToAdapter(config)
}

func setDefaults(config *FileConfig) {
	config.Logging.Level = "info"

	config.MQTT.Host = "localhost"
	config.MQTT.Port = 1883
	config.MQTT.ClientID = "zmk-subrate-controller"
	config.MQTT.Topic = domain.DefaultActivityTopic
	config.MQTT.AllowAnonymous = true

	config.Controller.Role = "peripheral"
	config.Controller.DormantDelay = "60s"
	config.Controller.SupervisionTimeout = domain.DefaultSupervisionTimeout
	config.Controller.Tiers.Active = ActiveTierParams{SubrateMin: 1, SubrateMax: 3, ContinuationNumber: 0}
	config.Controller.Tiers.Idle = TierParams{SubrateMin: 5, SubrateMax: 10, MaxLatency: 2, ContinuationNumber: 1}
	config.Controller.Tiers.Dormant = TierParams{SubrateMin: 20, SubrateMax: 40, MaxLatency: 4, ContinuationNumber: 0}

	config.Link.Listen = "/tmp/zmk-link.sock"
	config.Link.DialTimeout = "5s"
	config.Link.ReconnectInterval = "5s"

	config.Metrics.Listen = fmt.Sprintf("%s:%d", domain.DefaultMetricsHost, domain.DefaultMetricsPort)
	config.Metrics.Health = true

	config.Alerting.Topic = domain.DefaultAlertTopic
}

func convertToAdapter(config *FileConfig) (domain.Config, error) {
	logger.SetLogLevel(config.Logging.Level)

	role, err := parseRole(config.Controller.Role)
	if err != nil {
		return nil, err
	}

	var users []adapters.UserAuthAdapter
	for _, u := range config.MQTT.Users {
		users = append(users, adapters.UserAuthAdapter{
			Username: u.Username,
			Password: u.Password,
		})
	}

	if config.MQTT.Username != "" {
		users = append(users, adapters.UserAuthAdapter{
			Username: config.MQTT.Username,
			Password: config.MQTT.Password,
		})
	}

	mqttConfig := adapters.MQTTConfigAdapter{
		Host:           config.MQTT.Host,
		Port:           config.MQTT.Port,
		ClientID:       config.MQTT.ClientID,
		Topic:          config.MQTT.Topic,
		AllowAnonymous: config.MQTT.AllowAnonymous,
		Users:          users,
		Timeout:        domain.DefaultMQTTConnTimeout,
		KeepAlive:      domain.DefaultMQTTKeepAlive,
	}

	controllerConfig := adapters.ControllerConfigAdapter{
		Role:         role,
		DormantDelay: parseDuration(config.Controller.DormantDelay, domain.DefaultDormantDelay),
		Tiers:        tierTable(config),
	}

	linkConfig := adapters.LinkConfigAdapter{
		Listen:            config.Link.Listen,
		Peers:             config.Link.Peers,
		DialTimeout:       parseDuration(config.Link.DialTimeout, domain.DefaultDialTimeout),
		ReconnectInterval: parseDuration(config.Link.ReconnectInterval, domain.DefaultReconnectInterval),
	}

	metricsConfig := adapters.MetricsConfigAdapter{
		Listen:       config.Metrics.Listen,
		EnableHealth: config.Metrics.Health,
	}

	alertingConfig := adapters.AlertingConfigAdapter{
		Enabled: config.Alerting.Enabled,
		Topic:   config.Alerting.Topic,
	}

	return adapters.NewConfigAdapter(mqttConfig, controllerConfig, linkConfig, metricsConfig, alertingConfig), nil
}

func tierTable(config *FileConfig) domain.TierTable {
	timeout := config.Controller.SupervisionTimeout
	active := config.Controller.Tiers.Active
	return domain.TierTable{
		Active: domain.SubrateParams{
			SubrateMin:         active.SubrateMin,
			SubrateMax:         active.SubrateMax,
			ContinuationNumber: active.ContinuationNumber,
			SupervisionTimeout: timeout,
		},
		Idle:    tierParams(config.Controller.Tiers.Idle, timeout),
		Dormant: tierParams(config.Controller.Tiers.Dormant, timeout),
	}
}

func tierParams(tier TierParams, timeout uint16) domain.SubrateParams {
	return domain.SubrateParams{
		SubrateMin:         tier.SubrateMin,
		SubrateMax:         tier.SubrateMax,
		MaxLatency:         tier.MaxLatency,
		ContinuationNumber: tier.ContinuationNumber,
		SupervisionTimeout: timeout,
	}
}

func parseRole(role string) (domain.LinkRole, error) {
	switch strings.ToLower(role) {
	case "central":
		return domain.RoleCentral, nil
	case "peripheral":
		return domain.RolePeripheral, nil
	default:
		return 0, errors.NewConfigError(fmt.Sprintf("unknown role %q", role), nil)
	}
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
