package application

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/kmobs/zmk-softdevice-controller/pkg/domain"
	"github.com/kmobs/zmk-softdevice-controller/pkg/errors"
	"github.com/kmobs/zmk-softdevice-controller/pkg/logger"
	"github.com/kmobs/zmk-softdevice-controller/pkg/validator"
)

// Processor turns raw activity payloads into tier driver calls. It is
// the single entry point for activity regardless of transport.
type Processor struct {
	driver  domain.TierDriver
	metrics domain.MetricsCollector
	log     zerolog.Logger
}

func NewProcessor(driver domain.TierDriver, metrics domain.MetricsCollector) *Processor {
	return &Processor{
		driver:  driver,
		metrics: metrics,
		log:     logger.ComponentLogger("activity"),
	}
}

func (p *Processor) ProcessActivity(ctx context.Context, source string, payload []byte) error {
	if err := validator.ValidateActivityMessage(payload); err != nil {
		return errors.NewProcessingError("invalid activity message", err)
	}

	var msg domain.ActivityMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return errors.NewProcessingError("failed to parse activity message", err)
	}

	state := domain.ParseActivityState(msg.State)
	p.metrics.RecordActivity(state)

	switch state {
	case domain.ActivityActive:
		p.driver.OnActivityActive()
	case domain.ActivityIdle, domain.ActivitySleep:
		p.driver.OnActivityIdleOrSleep()
	default:
		p.log.Warn().Str("state", msg.State).Str("source", source).Msg("Unhandled activity state")
		return errors.NewProcessingError("unhandled activity state", nil)
	}

	return nil
}
