package application

import (
	"github.com/kmobs/zmk-softdevice-controller/pkg/domain"
)

// PassiveDriver is the peripheral-role stand-in for the controller.
// Peripherals never request subrate changes; they only observe what
// the central applies, so activity reports are accepted and dropped.
type PassiveDriver struct{}

func NewPassiveDriver() *PassiveDriver {
	return &PassiveDriver{}
}

func (d *PassiveDriver) OnActivityActive() {}

func (d *PassiveDriver) OnActivityIdleOrSleep() {}

// CurrentTier always reports the boot tier; a passive node has no
// state machine to move it.
func (d *PassiveDriver) CurrentTier() domain.Tier {
	return domain.TierIdle
}
