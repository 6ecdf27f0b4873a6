package application

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kmobs/zmk-softdevice-controller/pkg/domain"
)

// Observer logs every subrate change and PHY update seen on the links.
// It runs in every role; a peripheral build still reports what the
// central applied to it.
type Observer struct {
	log zerolog.Logger
}

func NewObserver(log zerolog.Logger) *Observer {
	return &Observer{log: log}
}

func (o *Observer) SubrateChanged(changed domain.SubrateChanged) {
	if changed.Status == domain.HCIStatusSuccess {
		o.log.Info().
			Str("role", changed.Role.String()).
			Str("peer", shortPeer(changed.Peer)).
			Uint16("factor", changed.Factor).
			Uint16("cn", changed.ContinuationNumber).
			Msg("Subrate changed")
		return
	}

	o.log.Warn().
		Str("role", changed.Role.String()).
		Str("peer", shortPeer(changed.Peer)).
		Str("status", fmt.Sprintf("0x%02x", changed.Status)).
		Msg("Subrate change failed")
}

func (o *Observer) PhyUpdated(updated domain.PhyUpdated) {
	o.log.Info().
		Str("peer", shortPeer(updated.Peer)).
		Str("tx", domain.PhyName(updated.TxPhy)).
		Str("rx", domain.PhyName(updated.RxPhy)).
		Msg("PHY updated")
}

func shortPeer(peer string) string {
	if len(peer) > 8 {
		return peer[:8]
	}
	return peer
}
