package factory

import (
	"os"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	mqtt "github.com/mochi-mqtt/server/v2"

	"github.com/kmobs/zmk-softdevice-controller/pkg/application"
	"github.com/kmobs/zmk-softdevice-controller/pkg/domain"
	"github.com/kmobs/zmk-softdevice-controller/pkg/infrastructure"
	"github.com/kmobs/zmk-softdevice-controller/pkg/linklayer"
	"github.com/kmobs/zmk-softdevice-controller/pkg/logger"
)

type Factory struct {
	config    domain.Config
	collector domain.MetricsCollector
}

func NewFactory(config domain.Config) *Factory {
	return &Factory{config: config}
}

// NewDefaultFactory creates factory with empty config for tests.
func NewDefaultFactory() *Factory {
	return &Factory{config: nil}
}

func (f *Factory) CreateMetricsCollector() domain.MetricsCollector {
	return f.CreateMetricsCollectorWithMode("standalone")
}

func (f *Factory) CreateMetricsCollectorWithMode(mode string) domain.MetricsCollector {
	if f.collector == nil {
		f.collector = infrastructure.NewPrometheusCollectorWithMode(mode)
	}
	return f.collector
}

func (f *Factory) CreateLinkManager() *linklayer.Manager {
	return linklayer.NewManager(f.config.GetLinkConfig(), f.localName(), f.CreateMetricsCollector())
}

// localName is what peers see in the hello. The MQTT client id doubles
// as the node name, hostname as fallback.
func (f *Factory) localName() string {
	if f.config != nil {
		if id := f.config.GetMQTTConfig().GetClientID(); id != "" {
			return id
		}
	}
	hostname, err := os.Hostname()
	if err != nil {
		return "zmk-controller"
	}
	return hostname
}

// CreateTierDriver picks the role implementation: the central runs the
// full tier state machine, a peripheral only answers what the central
// asks for.
func (f *Factory) CreateTierDriver(links domain.LinkLayer, alerts domain.AlertSender) (domain.TierDriver, error) {
	controllerConfig := f.config.GetControllerConfig()
	if controllerConfig.GetRole() == domain.RolePeripheral {
		log := logger.ComponentLogger("factory")
		log.Info().Msg("peripheral role, tier decisions stay with the central")
		return application.NewPassiveDriver(), nil
	}
	return application.NewController(controllerConfig, links, f.CreateMetricsCollector(), alerts)
}

func (f *Factory) CreateActivityProcessor(driver domain.TierDriver) domain.ActivityProcessor {
	return application.NewProcessor(driver, f.CreateMetricsCollector())
}

func (f *Factory) CreateObserver() *application.Observer {
	return application.NewObserver(logger.ComponentLogger("observer"))
}

func (f *Factory) CreateMQTTClient(processor domain.ActivityProcessor) *infrastructure.MQTTClient {
	return infrastructure.NewMQTTClient(f.config.GetMQTTConfig(), processor)
}

// CreateAlertSenderWithMQTT wires alerts into the embedded broker.
// Returns nil when alerting is disabled; callers treat nil as "no
// alerts", same as the controller does.
func (f *Factory) CreateAlertSenderWithMQTT(server *mqtt.Server) domain.AlertSender {
	if !f.alertingEnabled() {
		return nil
	}
	return infrastructure.NewBrokerAlertSender(server, f.alertTopic())
}

func (f *Factory) CreateStandaloneAlertSender(client pahomqtt.Client) domain.AlertSender {
	if !f.alertingEnabled() {
		return nil
	}
	return infrastructure.NewStandaloneAlertSender(client, f.alertTopic())
}

func (f *Factory) GetMetricsConfig() domain.MetricsConfig {
	if f.config == nil {
		return nil
	}
	return f.config.GetMetricsConfig()
}

func (f *Factory) GetAlertingConfig() domain.AlertingConfig {
	if f.config == nil {
		return nil
	}
	return f.config.GetAlertingConfig()
}

func (f *Factory) alertingEnabled() bool {
	if f.config == nil {
		return false
	}
	return f.config.GetAlertingConfig().GetEnabled()
}

func (f *Factory) alertTopic() string {
	if f.config == nil {
		return domain.DefaultAlertTopic
	}
	return f.config.GetAlertingConfig().GetTopic()
}
