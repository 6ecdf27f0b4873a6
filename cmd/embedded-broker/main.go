package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/rs/zerolog"

	"github.com/kmobs/zmk-softdevice-controller/pkg/config"
	"github.com/kmobs/zmk-softdevice-controller/pkg/domain"
	"github.com/kmobs/zmk-softdevice-controller/pkg/factory"
	"github.com/kmobs/zmk-softdevice-controller/pkg/hooks"
	"github.com/kmobs/zmk-softdevice-controller/pkg/logger"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339

	appLogger := logger.ComponentLogger("embedded")

	configFile := flag.String("config", "config.yaml", "Configuration file path")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		appLogger.Fatal().Err(err).Msg("invalid configuration")
	}

	server := mqtt.New(&mqtt.Options{InlineClient: true})

	if err := configureAuth(server, cfg.GetMQTTConfig()); err != nil {
		appLogger.Fatal().Err(err).Msg("failed to configure auth")
	}

	f := factory.NewFactory(cfg)
	collector := f.CreateMetricsCollectorWithMode("embedded")
	alerter := f.CreateAlertSenderWithMQTT(server)

	links := f.CreateLinkManager()

	driver, err := f.CreateTierDriver(links, alerter)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("invalid tier table")
	}

	processor := f.CreateActivityProcessor(driver)

	observer := f.CreateObserver()
	links.SetSubrateChangedHandler(observer.SubrateChanged)
	links.SetPhyUpdateHandler(observer.PhyUpdated)

	if err := links.Start(); err != nil {
		appLogger.Fatal().Err(err).Msg("failed to start link layer")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if runner, ok := driver.(interface{ Run(context.Context) error }); ok {
		go func() {
			if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				appLogger.Error().Err(err).Msg("controller stopped")
			}
		}()
	}

	metricsConfig := cfg.GetMetricsConfig()
	activityHook := hooks.NewActivityHook(hooks.ActivityHookConfig{
		ServerAddr:   metricsConfig.GetListen(),
		EnableHealth: metricsConfig.GetEnableHealth(),
		Topic:        cfg.GetMQTTConfig().GetTopic(),
	}, processor, collector, links, driver)
	if err := server.AddHook(activityHook, nil); err != nil {
		appLogger.Fatal().Err(err).Msg("failed to add activity hook")
	}

	addr := brokerAddr(cfg.GetMQTTConfig())
	tcp := listeners.NewTCP(listeners.Config{ID: "tcp", Address: addr})
	if err := server.AddListener(tcp); err != nil {
		appLogger.Fatal().Err(err).Msg("failed to add listener")
	}

	go func() {
		if err := server.Serve(); err != nil {
			appLogger.Error().Err(err).Msg("MQTT server error")
		}
	}()

	appLogger.Info().Str("address", addr).Msg("mqtt broker started")
	appLogger.Info().Str("metrics", metricsConfig.GetListen()+domain.DefaultMetricsPath).Msg("prometheus metrics available")

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	appLogger.Info().Msg("shutting down")
	cancel()
	links.Stop()
	server.Close()
}

// configureAuth mirrors the broker's two modes: anonymous opens the
// door for everyone, otherwise only the configured users get in.
func configureAuth(server *mqtt.Server, mqttConfig domain.MQTTConfig) error {
	if mqttConfig.GetAllowAnonymous() {
		return server.AddHook(new(auth.AllowHook), nil)
	}

	var rules auth.AuthRules
	for _, user := range mqttConfig.GetUsers() {
		rules = append(rules, auth.AuthRule{
			Username: auth.RString(user.GetUsername()),
			Password: auth.RString(user.GetPassword()),
			Allow:    true,
		})
	}

	return server.AddHook(new(auth.Hook), &auth.Options{
		Ledger: &auth.Ledger{Auth: rules},
	})
}

func brokerAddr(mqttConfig domain.MQTTConfig) string {
	if mqttConfig.GetHost() == "::" {
		return "[::]:" + strconv.Itoa(mqttConfig.GetPort())
	}
	return mqttConfig.GetHost() + ":" + strconv.Itoa(mqttConfig.GetPort())
}
