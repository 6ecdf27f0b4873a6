package linklayer

import (
	"fmt"
	"io"
	"net"
	"os"
	"sort"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kmobs/zmk-softdevice-controller/pkg/domain"
	"github.com/kmobs/zmk-softdevice-controller/pkg/errors"
	"github.com/kmobs/zmk-softdevice-controller/pkg/logger"
	"github.com/kmobs/zmk-softdevice-controller/pkg/validator"
	"github.com/kmobs/zmk-softdevice-controller/pkg/wire"
)

// Manager owns every link socket. It listens for inbound peers, dials
// configured ones, and keeps dialing them until stopped. Links we dial
// run with the central role, accepted links with the peripheral role.
type Manager struct {
	id   uuid.UUID
	name string

	listen            string
	peers             []string
	dialTimeout       time.Duration
	reconnectInterval time.Duration

	metrics domain.MetricsCollector

	mu       sync.RWMutex
	links    map[string]*Link
	pending  map[net.Conn]struct{}
	defaults *domain.SubrateParams
	listener net.Listener

	onSubrateChanged func(domain.SubrateChanged)
	onPhyUpdated     func(domain.PhyUpdated)

	// peers that completed a hello at least once since boot
	known mapset.Set[string]

	stopCh chan struct{}
	wg     sync.WaitGroup

	log zerolog.Logger
}

func NewManager(cfg domain.LinkConfig, name string, metrics domain.MetricsCollector) *Manager {
	return &Manager{
		id:                uuid.New(),
		name:              name,
		listen:            cfg.GetListen(),
		peers:             cfg.GetPeers(),
		dialTimeout:       cfg.GetDialTimeout(),
		reconnectInterval: cfg.GetReconnectInterval(),
		metrics:           metrics,
		links:             make(map[string]*Link),
		pending:           make(map[net.Conn]struct{}),
		known:             mapset.NewSet[string](),
		stopCh:            make(chan struct{}),
		log:               logger.ComponentLogger("linklayer"),
	}
}

// LocalID is the identity sent in every hello.
func (m *Manager) LocalID() string {
	return m.id.String()
}

func (m *Manager) SetSubrateChangedHandler(fn func(domain.SubrateChanged)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSubrateChanged = fn
}

func (m *Manager) SetPhyUpdateHandler(fn func(domain.PhyUpdated)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onPhyUpdated = fn
}

func (m *Manager) Start() error {
	if m.listen != "" {
		// stale socket from a previous run
		os.Remove(m.listen)

		listener, err := net.Listen("unix", m.listen)
		if err != nil {
			return errors.NewLinkError("failed to create link listener", err)
		}

		m.mu.Lock()
		m.listener = listener
		m.mu.Unlock()

		m.wg.Add(1)
		go m.acceptLoop(listener)
	}

	for _, peer := range m.peers {
		m.wg.Add(1)
		go m.dialLoop(peer)
	}

	m.log.Info().
		Str("id", m.LocalID()).
		Str("listen", m.listen).
		Int("peers", len(m.peers)).
		Msg("Link layer started")
	return nil
}

func (m *Manager) Stop() {
	m.mu.Lock()
	select {
	case <-m.stopCh:
		m.mu.Unlock()
		return
	default:
	}
	close(m.stopCh)
	listener := m.listener
	links := make([]*Link, 0, len(m.links))
	for _, link := range m.links {
		links = append(links, link)
	}
	pending := make([]net.Conn, 0, len(m.pending))
	for conn := range m.pending {
		pending = append(pending, conn)
	}
	m.mu.Unlock()

	if listener != nil {
		listener.Close()
	}
	for _, conn := range pending {
		conn.Close()
	}
	for _, link := range links {
		link.markDisconnected()
	}
	m.wg.Wait()

	if m.listen != "" {
		os.Remove(m.listen)
	}
	m.log.Info().Msg("Link layer stopped")
}

// SetDefaultParams stores the parameter set every future central link
// starts from. Existing links keep what they have until the next
// request reaches them.
func (m *Manager) SetDefaultParams(params domain.SubrateParams) error {
	if err := validator.ValidateSubrateParams(params); err != nil {
		return err
	}

	m.mu.Lock()
	defaults := params
	m.defaults = &defaults
	m.mu.Unlock()
	return nil
}

func (m *Manager) Links() []domain.LinkInfo {
	m.mu.RLock()
	links := make([]*Link, 0, len(m.links))
	for _, link := range m.links {
		links = append(links, link)
	}
	m.mu.RUnlock()

	infos := make([]domain.LinkInfo, 0, len(links))
	for _, link := range links {
		infos = append(infos, link.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

func (m *Manager) RequestSubrate(linkID string, params domain.SubrateParams) error {
	m.mu.RLock()
	link, exists := m.links[linkID]
	m.mu.RUnlock()

	if !exists {
		return errors.NewLinkError(fmt.Sprintf("unknown link %s", linkID), nil)
	}
	return link.requestSubrate(params)
}

// KnownPeers lists every peer id seen since boot, connected or not.
func (m *Manager) KnownPeers() []string {
	peers := m.known.ToSlice()
	sort.Strings(peers)
	return peers
}

func (m *Manager) acceptLoop(listener net.Listener) {
	defer m.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-m.stopCh:
			default:
				m.log.Warn().Err(err).Msg("Accept failed, listener closing")
			}
			return
		}

		m.wg.Add(1)
		go m.handleInbound(conn)
	}
}

func (m *Manager) handleInbound(conn net.Conn) {
	defer m.wg.Done()

	if !m.trackPending(conn) {
		conn.Close()
		return
	}
	hello, err := m.exchangeHelloAccept(conn)
	m.untrackPending(conn)
	if err != nil {
		m.log.Warn().Err(err).Msg("Inbound handshake failed")
		conn.Close()
		return
	}

	link := m.register(conn, domain.RolePeripheral, hello)
	if link == nil {
		return
	}
	m.readLoop(link)
	m.unregister(link)
}

func (m *Manager) dialLoop(path string) {
	defer m.wg.Done()

	for {
		conn, err := net.DialTimeout("unix", path, m.dialTimeout)
		if err != nil {
			m.log.Debug().Err(err).Str("peer_addr", path).Msg("Dial failed")
		} else {
			m.runOutbound(conn, path)
		}

		select {
		case <-m.stopCh:
			return
		case <-time.After(m.reconnectInterval):
		}
	}
}

func (m *Manager) runOutbound(conn net.Conn, path string) {
	if !m.trackPending(conn) {
		conn.Close()
		return
	}
	hello, err := m.exchangeHelloDial(conn)
	m.untrackPending(conn)
	if err != nil {
		m.log.Warn().Err(err).Str("peer_addr", path).Msg("Outbound handshake failed")
		conn.Close()
		return
	}

	link := m.register(conn, domain.RoleCentral, hello)
	if link == nil {
		return
	}

	if defaults := m.defaultParams(); defaults != nil {
		if err := link.requestSubrate(*defaults); err != nil && !errors.Is(err, errors.ErrAlreadyApplied) {
			link.log.Warn().Err(err).Msg("Failed to apply defaults on new link")
		}
	}

	m.readLoop(link)
	m.unregister(link)
}

func (m *Manager) exchangeHelloDial(conn net.Conn) (*wire.Hello, error) {
	conn.SetDeadline(time.Now().Add(m.dialTimeout))
	defer conn.SetDeadline(time.Time{})

	if err := wire.WriteFrame(conn, wire.NewHelloFrame(m.id, domain.RoleCentral, m.name)); err != nil {
		return nil, err
	}
	return readHello(conn)
}

func (m *Manager) exchangeHelloAccept(conn net.Conn) (*wire.Hello, error) {
	conn.SetDeadline(time.Now().Add(m.dialTimeout))
	defer conn.SetDeadline(time.Time{})

	hello, err := readHello(conn)
	if err != nil {
		return nil, err
	}
	if err := wire.WriteFrame(conn, wire.NewHelloFrame(m.id, domain.RolePeripheral, m.name)); err != nil {
		return nil, err
	}
	return hello, nil
}

func readHello(conn net.Conn) (*wire.Hello, error) {
	frame, err := wire.ReadFrame(conn)
	if err != nil {
		return nil, err
	}
	if frame.Type != wire.FrameHello {
		return nil, errors.NewLinkError(fmt.Sprintf("expected hello, got %s", frame.Type), nil)
	}
	return wire.DecodeHello(frame.Payload)
}

// trackPending parks a conn in the pending set while its handshake
// runs so Stop can close it. Reports false once the manager stopped.
func (m *Manager) trackPending(conn net.Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-m.stopCh:
		return false
	default:
	}
	m.pending[conn] = struct{}{}
	return true
}

func (m *Manager) untrackPending(conn net.Conn) {
	m.mu.Lock()
	delete(m.pending, conn)
	m.mu.Unlock()
}

// register adopts a handshaked conn as a live link, displacing any
// earlier link to the same peer. After Stop the conn is refused and
// closed instead; callers get nil.
func (m *Manager) register(conn net.Conn, role domain.LinkRole, hello *wire.Hello) *Link {
	base := logger.LinkLogger(m.log, role, hello.ID.String())
	link := newLink(uuid.New().String(), conn, role, hello, base)

	m.mu.Lock()
	select {
	case <-m.stopCh:
		m.mu.Unlock()
		link.markDisconnected()
		return nil
	default:
	}
	// a reconnecting peer replaces its old link
	for id, existing := range m.links {
		if existing.peer == link.peer && existing.role == link.role {
			delete(m.links, id)
			existing.markDisconnected()
		}
	}
	m.links[link.id] = link
	m.mu.Unlock()

	m.known.Add(link.peer)
	m.updateLinkMetrics()

	link.log.Info().Str("name", link.peerName).Str("link_id", link.id).Msg("Link established")
	return link
}

func (m *Manager) unregister(link *Link) {
	m.mu.Lock()
	_, present := m.links[link.id]
	delete(m.links, link.id)
	m.mu.Unlock()

	link.markDisconnected()
	if present {
		m.updateLinkMetrics()
		link.log.Info().Str("link_id", link.id).Msg("Link closed")
	}
}

func (m *Manager) readLoop(link *Link) {
	for {
		frame, err := wire.ReadFrame(link.conn)
		if err != nil {
			if err != io.EOF {
				link.log.Debug().Err(err).Msg("Read loop ended")
			}
			return
		}
		m.dispatch(link, frame)
	}
}

func (m *Manager) dispatch(link *Link, frame *wire.Frame) {
	switch frame.Type {
	case wire.FrameSubrateRequest:
		params, err := wire.DecodeSubrateRequest(frame.Payload)
		if err != nil {
			link.log.Warn().Err(err).Msg("Bad subrate request")
			return
		}

		answer := link.applyRequested(params)
		if err := link.writeFrame(wire.NewSubrateChangedFrame(answer.Status, answer.Factor, answer.ContinuationNumber)); err != nil {
			link.log.Warn().Err(err).Msg("Failed to answer subrate request")
		}

		// this side of the link sees the change as well
		m.notifySubrateChanged(domain.SubrateChanged{
			Peer:               link.peer,
			Role:               link.role,
			Status:             answer.Status,
			Factor:             answer.Factor,
			ContinuationNumber: answer.ContinuationNumber,
		})

	case wire.FrameSubrateChanged:
		changed, err := wire.DecodeSubrateChanged(frame.Payload)
		if err != nil {
			link.log.Warn().Err(err).Msg("Bad subrate changed")
			return
		}

		if err := link.confirmChanged(changed); err != nil {
			m.metrics.RecordRequestOutcome(domain.OutcomeRejected)
			link.log.Warn().Err(err).Msg("Subrate request rejected")
		}
		m.notifySubrateChanged(domain.SubrateChanged{
			Peer:               link.peer,
			Role:               link.role,
			Status:             changed.Status,
			Factor:             changed.Factor,
			ContinuationNumber: changed.ContinuationNumber,
		})

	case wire.FramePhyUpdate:
		phy, err := wire.DecodePhyUpdate(frame.Payload)
		if err != nil {
			link.log.Warn().Err(err).Msg("Bad phy update")
			return
		}
		m.notifyPhyUpdated(domain.PhyUpdated{Peer: link.peer, TxPhy: phy.TxPhy, RxPhy: phy.RxPhy})

	case wire.FrameHello:
		link.log.Warn().Msg("Unexpected hello after handshake")

	default:
		link.log.Warn().Str("type", frame.Type.String()).Msg("Unhandled frame type")
	}
}

func (m *Manager) notifySubrateChanged(changed domain.SubrateChanged) {
	m.metrics.RecordSubrateChanged(changed.Role, changed.Status == domain.HCIStatusSuccess)

	m.mu.RLock()
	handler := m.onSubrateChanged
	m.mu.RUnlock()
	if handler != nil {
		handler(changed)
	}
}

func (m *Manager) notifyPhyUpdated(updated domain.PhyUpdated) {
	m.metrics.RecordPhyUpdate()

	m.mu.RLock()
	handler := m.onPhyUpdated
	m.mu.RUnlock()
	if handler != nil {
		handler(updated)
	}
}

func (m *Manager) defaultParams() *domain.SubrateParams {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.defaults == nil {
		return nil
	}
	defaults := *m.defaults
	return &defaults
}

func (m *Manager) updateLinkMetrics() {
	m.mu.RLock()
	central, peripheral := 0, 0
	for _, link := range m.links {
		if link.role == domain.RoleCentral {
			central++
		} else {
			peripheral++
		}
	}
	m.mu.RUnlock()

	m.metrics.SetLinkCount(domain.RoleCentral, central)
	m.metrics.SetLinkCount(domain.RolePeripheral, peripheral)
}
