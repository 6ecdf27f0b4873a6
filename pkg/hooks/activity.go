package hooks

import (
	"context"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/rs/zerolog"

	"github.com/kmobs/zmk-softdevice-controller/pkg/domain"
	apperrors "github.com/kmobs/zmk-softdevice-controller/pkg/errors"
	"github.com/kmobs/zmk-softdevice-controller/pkg/infrastructure"
	"github.com/kmobs/zmk-softdevice-controller/pkg/logger"
	"github.com/kmobs/zmk-softdevice-controller/pkg/validator"
)

type ActivityHookConfig struct {
	ServerAddr   string
	EnableHealth bool
	Topic        string
}

// ActivityHook taps the embedded broker: every publish on the activity
// topic goes into the tier state machine without leaving the process.
// It also owns the unified observability server.
type ActivityHook struct {
	mqtt.HookBase

	processor domain.ActivityProcessor
	collector domain.MetricsCollector
	links     domain.LinkLayer
	driver    domain.TierDriver

	config  ActivityHookConfig
	logger  zerolog.Logger
	server  *infrastructure.UnifiedServer
	stopped bool
}

func NewActivityHook(cfg ActivityHookConfig, processor domain.ActivityProcessor, collector domain.MetricsCollector, links domain.LinkLayer, driver domain.TierDriver) *ActivityHook {
	if cfg.Topic == "" {
		cfg.Topic = domain.DefaultActivityTopic
	}

	return &ActivityHook{
		processor: processor,
		collector: collector,
		links:     links,
		driver:    driver,
		config:    cfg,
		logger:    logger.ComponentLogger("activity-hook"),
	}
}

func (h *ActivityHook) ID() string {
	return "zmk-activity"
}

func (h *ActivityHook) Provides(b byte) bool {
	return b == mqtt.OnPublish || b == mqtt.OnConnect || b == mqtt.OnDisconnect || b == mqtt.OnStopped
}

func (h *ActivityHook) Init(config any) error {
	if h.config.ServerAddr != "" {
		h.startUnifiedServer()
	}
	return nil
}

func (h *ActivityHook) OnConnect(cl *mqtt.Client, pk packets.Packet) error {
	h.logger.Debug().
		Str("client_id", cl.ID).
		Str("remote_addr", cl.Net.Remote).
		Uint8("packet_type", pk.FixedHeader.Type).
		Msg("client connected")
	return nil
}

func (h *ActivityHook) OnDisconnect(cl *mqtt.Client, err error, expire bool) {
	logEvent := h.logger.Debug().
		Str("client_id", cl.ID).
		Str("remote_addr", cl.Net.Remote).
		Bool("expire", expire)

	if err != nil {
		logEvent = logEvent.Err(err)
	}

	var reason string
	if expire {
		if err != nil {
			reason = "error (network/timeout)"
		} else {
			reason = "abrupt (no DISCONNECT)"
		}
	} else {
		reason = "graceful (DISCONNECT)"
	}

	logEvent.Str("reason", reason).Msg("client disconnected")
}

func (h *ActivityHook) OnPublish(_ *mqtt.Client, pk packets.Packet) (packets.Packet, error) {
	if !h.matchesTopic(pk.TopicName) {
		return pk, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), domain.DefaultTimeout)
	defer cancel()

	if err := h.processor.ProcessActivity(ctx, pk.TopicName, pk.Payload); err != nil {
		appErr := apperrors.NewProcessingError("activity processing failed", err)
		h.logger.Error().Err(appErr).Str("topic", pk.TopicName).Msg("activity processing failed")
	}

	return pk, nil
}

func (h *ActivityHook) startUnifiedServer() {
	serverConfig := infrastructure.UnifiedServerConfig{
		Addr:         h.config.ServerAddr,
		EnableHealth: h.config.EnableHealth,
	}

	h.server = infrastructure.NewUnifiedServer(serverConfig, h.collector, h.links, h.driver, h.processor)
	if err := h.server.Start(context.Background()); err != nil {
		h.logger.Error().Err(err).Msg("failed to start unified server")
	}
}

func (h *ActivityHook) matchesTopic(topic string) bool {
	return validator.MatchesMQTTPattern(topic, h.config.Topic)
}

func (h *ActivityHook) OnStopped() {
	if h.stopped {
		return
	}
	h.stopped = true

	if h.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), domain.DefaultTimeout)
		defer cancel()
		if err := h.server.Shutdown(ctx); err != nil {
			h.logger.Error().Err(err).Msg("unified server shutdown error")
		}
	}
}

func (h *ActivityHook) Shutdown(ctx context.Context) error {
	h.OnStopped()
	return nil
}
