package application

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/kmobs/zmk-softdevice-controller/pkg/domain"
	"github.com/kmobs/zmk-softdevice-controller/pkg/errors"
	"github.com/kmobs/zmk-softdevice-controller/pkg/logger"
	"github.com/kmobs/zmk-softdevice-controller/pkg/validator"
)

type activityEvent uint8

const (
	eventActive activityEvent = iota
	eventIdleOrSleep
)

// Controller drives the subrating tier state machine for the central
// role. All tier work runs on one goroutine inside Run; activity
// arrives through an unbuffered channel, so every event is handled to
// completion before the next one is accepted.
type Controller struct {
	tiers        domain.TierTable
	dormantDelay time.Duration

	links   domain.LinkLayer
	metrics domain.MetricsCollector
	alerts  domain.AlertSender

	events chan activityEvent
	done   chan struct{}

	// loop-owned; nil while no demotion is pending
	timer *time.Timer

	current atomic.Uint32

	log zerolog.Logger
}

// NewController validates the tier table and builds the controller.
// An infeasible table is a configuration fault and must stop startup.
func NewController(cfg domain.ControllerConfig, links domain.LinkLayer, metrics domain.MetricsCollector, alerts domain.AlertSender) (*Controller, error) {
	if err := validator.ValidateTierTable(cfg.GetTierTable()); err != nil {
		return nil, err
	}

	c := &Controller{
		tiers:        cfg.GetTierTable(),
		dormantDelay: cfg.GetDormantDelay(),
		links:        links,
		metrics:      metrics,
		alerts:       alerts,
		events:       make(chan activityEvent),
		done:         make(chan struct{}),
		log:          logger.ComponentLogger("controller"),
	}
	c.current.Store(uint32(domain.TierIdle))
	return c, nil
}

// Run owns the tier state machine until ctx is done. It must be
// started before activity is submitted.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)

	c.pushInitialDefaults()

	for {
		select {
		case <-ctx.Done():
			c.cancelDemotion()
			return ctx.Err()
		case event := <-c.events:
			c.handleActivity(event)
		case <-c.timerC():
			c.handleDemotion()
		}
	}
}

// OnActivityActive reports user activity. Blocks until the event is
// accepted or the controller has stopped.
func (c *Controller) OnActivityActive() {
	c.submit(eventActive)
}

// OnActivityIdleOrSleep reports the user going idle or the host
// sleeping; both start from the idle tier.
func (c *Controller) OnActivityIdleOrSleep() {
	c.submit(eventIdleOrSleep)
}

func (c *Controller) CurrentTier() domain.Tier {
	return domain.Tier(c.current.Load())
}

func (c *Controller) submit(event activityEvent) {
	select {
	case c.events <- event:
	case <-c.done:
	}
}

func (c *Controller) timerC() <-chan time.Time {
	if c.timer == nil {
		return nil
	}
	return c.timer.C
}

func (c *Controller) handleActivity(event activityEvent) {
	switch event {
	case eventActive:
		c.cancelDemotion()
		c.setTier(domain.TierActive)
	case eventIdleOrSleep:
		c.cancelDemotion()
		c.setTier(domain.TierIdle)
		c.armDemotion()
	}
}

func (c *Controller) handleDemotion() {
	c.timer = nil
	c.metrics.RecordDemotion()
	c.setTier(domain.TierDormant)
}

// cancelDemotion stops and discards the pending timer. A fire that
// already slipped into the channel becomes unreachable because timerC
// returns nil afterwards.
func (c *Controller) cancelDemotion() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) armDemotion() {
	c.timer = time.NewTimer(c.dormantDelay)
}

func (c *Controller) setTier(tier domain.Tier) {
	current := domain.Tier(c.current.Load())
	if tier == current {
		return
	}

	params := c.tiers.Params(tier)
	c.current.Store(uint32(tier))
	c.metrics.RecordTransition(current, tier)
	c.metrics.RecordTier(tier)

	c.log.Info().
		Str("tier", tier.String()).
		Uint16("factor_min", params.SubrateMin).
		Uint16("factor_max", params.SubrateMax).
		Uint16("latency", params.MaxLatency).
		Uint16("cn", params.ContinuationNumber).
		Msg("Subrating tier changed")

	if err := c.links.SetDefaultParams(params); err != nil {
		c.log.Error().Err(err).Msg("Failed to set subrating defaults")
		c.metrics.RecordDefaultFailure()
		go c.sendAlert(fmt.Sprintf("failed to set %s tier defaults", tier))
	}

	c.broadcast(params)
}

// broadcast pushes params to every connected central link. One
// refusing link must not stop the rest.
func (c *Controller) broadcast(params domain.SubrateParams) {
	for _, link := range c.links.Links() {
		if link.Role != domain.RoleCentral.String() || link.State != domain.LinkConnected.String() {
			continue
		}

		err := c.links.RequestSubrate(link.ID, params)
		switch {
		case err == nil:
			c.metrics.RecordRequestOutcome(domain.OutcomeOK)
		case errors.Is(err, errors.ErrAlreadyApplied):
			c.metrics.RecordRequestOutcome(domain.OutcomeAlreadyApplied)
		default:
			c.metrics.RecordRequestOutcome(domain.OutcomeRejected)
			c.log.Warn().Err(err).Str("peer", link.Peer).Msg("Subrate request failed")
		}
	}
}

func (c *Controller) pushInitialDefaults() {
	idle := c.tiers.Params(domain.TierIdle)
	if err := c.links.SetDefaultParams(idle); err != nil {
		c.log.Error().Err(err).Msg("Failed to set subrating defaults")
		c.metrics.RecordDefaultFailure()
		go c.sendAlert("failed to set subrating defaults at startup")
	}
	c.metrics.RecordTier(domain.TierIdle)

	dormant := c.tiers.Params(domain.TierDormant)
	c.log.Info().
		Str("idle", formatParams(idle)).
		Str("dormant", formatParams(dormant)).
		Dur("dormant_delay", c.dormantDelay).
		Msg("Subrating configured")
}

func (c *Controller) sendAlert(message string) {
	if c.alerts == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alert := domain.Alert{
		Severity:  "error",
		Message:   message,
		Source:    "controller",
		Timestamp: time.Now(),
	}
	if err := c.alerts.SendAlert(ctx, alert); err != nil {
		c.log.Warn().Err(err).Msg("Failed to send alert")
	}
}

func formatParams(p domain.SubrateParams) string {
	return fmt.Sprintf("%d-%d/%d", p.SubrateMin, p.SubrateMax, p.MaxLatency)
}
