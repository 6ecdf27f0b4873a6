package standalone

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kmobs/zmk-softdevice-controller/pkg/domain"
	"github.com/kmobs/zmk-softdevice-controller/pkg/errors"
	"github.com/kmobs/zmk-softdevice-controller/pkg/factory"
	"github.com/kmobs/zmk-softdevice-controller/pkg/infrastructure"
	"github.com/kmobs/zmk-softdevice-controller/pkg/linklayer"
	"github.com/kmobs/zmk-softdevice-controller/pkg/logger"
)

// App wires the standalone deployment: activity events arrive from an
// external MQTT broker, alerts go back out on the same connection, the
// link manager talks to the peers and the unified server exposes
// metrics and health.
type App struct {
	config     domain.Config
	factory    *factory.Factory
	collector  domain.MetricsCollector
	links      *linklayer.Manager
	driver     domain.TierDriver
	mqttClient *infrastructure.MQTTClient
	server     *infrastructure.UnifiedServer
	logger     zerolog.Logger
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewApp(config domain.Config) *App {
	ctx, cancel := context.WithCancel(context.Background())

	f := factory.NewFactory(config)

	return &App{
		config:    config,
		factory:   f,
		collector: f.CreateMetricsCollector(),
		logger:    logger.ComponentLogger("standalone-app"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (a *App) Run() error {
	if err := a.config.Validate(); err != nil {
		return errors.NewConfigError("invalid configuration", err)
	}

	// The alert sender publishes on the same connection the activity
	// subscriber uses, so the paho client exists before either side and
	// the processor is wired in before Connect.
	a.mqttClient = infrastructure.NewMQTTClient(a.config.GetMQTTConfig(), nil)
	alerter := a.factory.CreateStandaloneAlertSender(a.mqttClient.Client())

	a.links = a.factory.CreateLinkManager()

	driver, err := a.factory.CreateTierDriver(a.links, alerter)
	if err != nil {
		return errors.NewConfigError("invalid tier table", err)
	}
	a.driver = driver

	processor := a.factory.CreateActivityProcessor(driver)
	a.mqttClient.SetProcessor(processor)

	observer := a.factory.CreateObserver()
	a.links.SetSubrateChangedHandler(observer.SubrateChanged)
	a.links.SetPhyUpdateHandler(observer.PhyUpdated)

	if err := a.links.Start(); err != nil {
		return errors.NewNetworkError("failed to start link manager", err)
	}

	if err := a.mqttClient.Connect(); err != nil {
		return errors.NewNetworkError("failed to connect to mqtt", err)
	}

	metricsConfig := a.config.GetMetricsConfig()
	a.server = infrastructure.NewUnifiedServer(infrastructure.UnifiedServerConfig{
		Addr:         metricsConfig.GetListen(),
		EnableHealth: metricsConfig.GetEnableHealth(),
	}, a.collector, a.links, driver, processor)
	if err := a.server.Start(a.ctx); err != nil {
		return errors.NewNetworkError("failed to start unified server", err)
	}

	a.logger.Info().Str("address", metricsConfig.GetListen()).Msg("unified server started")
	a.logger.Info().Msg("standalone application started")

	g, ctx := errgroup.WithContext(a.ctx)

	// Only the central driver has a loop to run; the passive driver is
	// inert and the group then just waits for a signal.
	if runner, ok := driver.(interface{ Run(context.Context) error }); ok {
		g.Go(func() error {
			return runner.Run(ctx)
		})
	}

	g.Go(func() error {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(c)

		select {
		case sig := <-c:
			a.logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
			return context.Canceled
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error().Err(err).Msg("run group stopped")
	}

	return a.Shutdown()
}

func (a *App) Shutdown() error {
	a.logger.Info().Msg("shutting down")

	a.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), domain.DefaultTimeout/domain.ShutdownTimeoutDivider)
	defer cancel()

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Error().Err(err).Msg("unified server shutdown error")
		}
	}

	if a.mqttClient != nil {
		a.mqttClient.Disconnect()
	}

	if a.links != nil {
		a.links.Stop()
	}

	a.logger.Info().Msg("shutdown completed")
	return nil
}
