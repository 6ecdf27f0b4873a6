package linklayer

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kmobs/zmk-softdevice-controller/pkg/domain"
	"github.com/kmobs/zmk-softdevice-controller/pkg/errors"
	"github.com/kmobs/zmk-softdevice-controller/pkg/validator"
	"github.com/kmobs/zmk-softdevice-controller/pkg/wire"
)

// Link is one socket connection to a peer half. The role is the local
// role on this link: dialed links run as central, accepted links as
// peripheral.
type Link struct {
	id          string
	peer        string
	peerName    string
	addr        string
	role        domain.LinkRole
	conn        net.Conn
	connectedAt time.Time

	mu      sync.Mutex
	state   domain.LinkState
	applied *domain.SubrateParams
	pending *domain.SubrateParams

	log zerolog.Logger
}

func newLink(id string, conn net.Conn, role domain.LinkRole, hello *wire.Hello, log zerolog.Logger) *Link {
	peer := hello.ID.String()
	return &Link{
		id:          id,
		peer:        peer,
		peerName:    validator.SanitizeString(hello.Name),
		addr:        conn.RemoteAddr().String(),
		role:        role,
		conn:        conn,
		connectedAt: time.Now(),
		state:       domain.LinkConnected,
		log:         log,
	}
}

func (l *Link) Info() domain.LinkInfo {
	l.mu.Lock()
	defer l.mu.Unlock()

	info := domain.LinkInfo{
		ID:          l.id,
		Peer:        l.peer,
		PeerName:    l.peerName,
		Addr:        l.addr,
		Role:        l.role.String(),
		State:       l.state.String(),
		ConnectedAt: l.connectedAt,
	}
	if l.applied != nil {
		applied := *l.applied
		info.Applied = &applied
	}
	return info
}

// requestSubrate is the central-side gate and send. Matching the set
// already on the link is reported as ErrAlreadyApplied so callers can
// count it as success without touching the wire.
func (l *Link) requestSubrate(params domain.SubrateParams) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != domain.LinkConnected {
		return errors.NewLinkError("link not connected", errors.ErrLinkClosed)
	}
	if l.role != domain.RoleCentral {
		return errors.NewLinkError("subrate requests need the central role", nil)
	}

	if err := validator.ValidateSubrateParams(params); err != nil {
		return err
	}

	if l.applied != nil && *l.applied == params {
		return errors.ErrAlreadyApplied
	}

	if err := wire.WriteFrame(l.conn, wire.NewSubrateRequestFrame(params)); err != nil {
		return errors.NewLinkError("subrate request write failed", err)
	}

	pending := params
	l.pending = &pending
	l.log.Debug().
		Uint16("subrate_min", params.SubrateMin).
		Uint16("subrate_max", params.SubrateMax).
		Msg("Subrate request sent")
	return nil
}

// confirmChanged records the peer's answer to our request. A failure
// status answering a pending request comes back as ErrSubrateRejected
// with the peer's status code; the applied set stays untouched.
func (l *Link) confirmChanged(changed *wire.SubrateChanged) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if changed.Status != domain.HCIStatusSuccess {
		hadPending := l.pending != nil
		l.pending = nil
		if hadPending {
			return errors.NewLinkError(
				fmt.Sprintf("peer answered with status 0x%02x", changed.Status),
				errors.ErrSubrateRejected,
			)
		}
		return nil
	}

	if l.pending != nil {
		l.applied = l.pending
		l.pending = nil
		return nil
	}

	// peer-initiated change; keep what the wire reported
	l.applied = &domain.SubrateParams{
		SubrateMin:         changed.Factor,
		SubrateMax:         changed.Factor,
		ContinuationNumber: changed.ContinuationNumber,
	}
	return nil
}

// applyRequested is the peripheral side of a subrate request: validate,
// adopt, and answer with the factor picked from the range.
func (l *Link) applyRequested(params domain.SubrateParams) wire.SubrateChanged {
	if err := validator.ValidateSubrateParams(params); err != nil {
		l.log.Warn().Err(err).Msg("Rejecting subrate request")
		return wire.SubrateChanged{Status: domain.HCIStatusUnacceptableParams}
	}

	l.mu.Lock()
	applied := params
	l.applied = &applied
	l.mu.Unlock()

	return wire.SubrateChanged{
		Status:             domain.HCIStatusSuccess,
		Factor:             params.SubrateMax,
		ContinuationNumber: params.ContinuationNumber,
	}
}

func (l *Link) appliedParams() *domain.SubrateParams {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.applied == nil {
		return nil
	}
	applied := *l.applied
	return &applied
}

func (l *Link) writeFrame(frame *wire.Frame) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != domain.LinkConnected {
		return errors.NewLinkError("link not connected", errors.ErrLinkClosed)
	}
	return wire.WriteFrame(l.conn, frame)
}

func (l *Link) markDisconnected() {
	l.mu.Lock()
	l.state = domain.LinkDisconnected
	l.mu.Unlock()
	l.conn.Close()
}
