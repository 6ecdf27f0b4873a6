package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kmobs/zmk-softdevice-controller/pkg/domain"
	"github.com/kmobs/zmk-softdevice-controller/pkg/logger"
	"github.com/kmobs/zmk-softdevice-controller/pkg/wire"
)

// linksim plays the other half of a link for demos and manual testing.
// With -listen it acts as a peripheral: it answers subrate requests and
// can emit PHY updates. With -dial it acts as a central and pushes
// subrate requests at the real controller.

type simulator struct {
	id     uuid.UUID
	name   string
	reject bool

	phyEvery     time.Duration
	requestEvery time.Duration

	log zerolog.Logger
}

// peerConn serializes frame writes; answers and periodic PHY updates
// share one socket.
type peerConn struct {
	conn net.Conn
	mu   sync.Mutex
}

func (p *peerConn) write(frame *wire.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return wire.WriteFrame(p.conn, frame)
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339

	simLogger := logger.ComponentLogger("linksim")

	listen := flag.String("listen", "", "Accept links on this socket path (peripheral side)")
	dial := flag.String("dial", "", "Dial this socket path (central side)")
	name := flag.String("name", "linksim", "Name sent in the hello")
	reject := flag.Bool("reject", false, "Refuse every subrate request")
	phyEvery := flag.Duration("phy-every", 0, "Emit a PHY update at this interval (0 disables)")
	requestEvery := flag.Duration("request-every", 10*time.Second, "Interval between subrate requests in dial mode")
	flag.Parse()

	if (*listen == "") == (*dial == "") {
		simLogger.Fatal().Msg("exactly one of -listen or -dial is required")
	}

	sim := &simulator{
		id:           uuid.New(),
		name:         *name,
		reject:       *reject,
		phyEvery:     *phyEvery,
		requestEvery: *requestEvery,
		log:          simLogger,
	}

	if *listen != "" {
		sim.runListener(*listen)
	} else {
		sim.runDialer(*dial)
	}
}

func (s *simulator) runListener(path string) {
	os.Remove(path)

	listener, err := net.Listen("unix", path)
	if err != nil {
		s.log.Fatal().Err(err).Str("path", path).Msg("failed to listen")
	}

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		listener.Close()
		os.Remove(path)
		os.Exit(0)
	}()

	s.log.Info().Str("path", path).Str("id", s.id.String()).Msg("waiting for a central to dial")

	for {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		go s.servePeripheral(conn)
	}
}

// servePeripheral handles one accepted connection: the dialing central
// speaks first, we answer, then serve requests until the link drops.
func (s *simulator) servePeripheral(conn net.Conn) {
	defer conn.Close()

	hello, err := s.readHello(conn)
	if err != nil {
		s.log.Warn().Err(err).Msg("handshake failed")
		return
	}

	if err := wire.WriteFrame(conn, wire.NewHelloFrame(s.id, domain.RolePeripheral, s.name)); err != nil {
		s.log.Warn().Err(err).Msg("hello answer failed")
		return
	}

	s.log.Info().Str("peer", hello.ID.String()).Str("name", hello.Name).Msg("link established")

	peer := &peerConn{conn: conn}

	stop := make(chan struct{})
	defer close(stop)
	if s.phyEvery > 0 {
		go s.emitPhyUpdates(peer, stop)
	}

	for {
		frame, err := wire.ReadFrame(conn)
		if err != nil {
			s.log.Info().Msg("link closed")
			return
		}
		s.handleFrame(peer, frame)
	}
}

func (s *simulator) handleFrame(peer *peerConn, frame *wire.Frame) {
	switch frame.Type {
	case wire.FrameSubrateRequest:
		params, err := wire.DecodeSubrateRequest(frame.Payload)
		if err != nil {
			s.log.Warn().Err(err).Msg("bad subrate request")
			return
		}

		answer := s.answerFor(params)
		if err := peer.write(wire.NewSubrateChangedFrame(answer.Status, answer.Factor, answer.ContinuationNumber)); err != nil {
			s.log.Warn().Err(err).Msg("failed to answer subrate request")
			return
		}

		s.log.Info().
			Uint16("subrate_min", params.SubrateMin).
			Uint16("subrate_max", params.SubrateMax).
			Uint16("latency", params.MaxLatency).
			Str("status", fmt.Sprintf("0x%02x", answer.Status)).
			Msg("subrate request answered")

	default:
		s.log.Debug().Str("type", frame.Type.String()).Msg("ignoring frame")
	}
}

func (s *simulator) answerFor(params domain.SubrateParams) wire.SubrateChanged {
	if s.reject {
		return wire.SubrateChanged{Status: domain.HCIStatusUnacceptableParams}
	}
	return wire.SubrateChanged{
		Status:             domain.HCIStatusSuccess,
		Factor:             params.SubrateMax,
		ContinuationNumber: params.ContinuationNumber,
	}
}

// emitPhyUpdates walks tx and rx through the three PHYs so the observer
// on the other side has something to log.
func (s *simulator) emitPhyUpdates(peer *peerConn, stop <-chan struct{}) {
	phys := []uint8{domain.Phy1M, domain.Phy2M, domain.PhyCoded}

	ticker := time.NewTicker(s.phyEvery)
	defer ticker.Stop()

	for i := 0; ; i++ {
		select {
		case <-stop:
			return
		case <-ticker.C:
			tx := phys[i%len(phys)]
			rx := phys[(i+1)%len(phys)]
			if err := peer.write(wire.NewPhyUpdateFrame(tx, rx)); err != nil {
				return
			}
			s.log.Debug().Str("tx", domain.PhyName(tx)).Str("rx", domain.PhyName(rx)).Msg("phy update sent")
		}
	}
}

// runDialer connects to a listening controller and plays the central:
// hello first, then a subrate request per interval, cycling the default
// tier table.
func (s *simulator) runDialer(path string) {
	conn, err := net.DialTimeout("unix", path, domain.DefaultDialTimeout)
	if err != nil {
		s.log.Fatal().Err(err).Str("path", path).Msg("dial failed")
	}
	defer conn.Close()

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		conn.Close()
		os.Exit(0)
	}()

	if err := wire.WriteFrame(conn, wire.NewHelloFrame(s.id, domain.RoleCentral, s.name)); err != nil {
		s.log.Fatal().Err(err).Msg("hello failed")
	}

	hello, err := s.readHello(conn)
	if err != nil {
		s.log.Fatal().Err(err).Msg("handshake failed")
	}

	s.log.Info().Str("peer", hello.ID.String()).Str("name", hello.Name).Msg("link established")

	peer := &peerConn{conn: conn}

	stop := make(chan struct{})
	go s.emitSubrateRequests(peer, stop)
	if s.phyEvery > 0 {
		go s.emitPhyUpdates(peer, stop)
	}

	for {
		frame, err := wire.ReadFrame(conn)
		if err != nil {
			close(stop)
			s.log.Info().Msg("link closed")
			return
		}

		if frame.Type != wire.FrameSubrateChanged {
			s.log.Debug().Str("type", frame.Type.String()).Msg("ignoring frame")
			continue
		}

		changed, err := wire.DecodeSubrateChanged(frame.Payload)
		if err != nil {
			s.log.Warn().Err(err).Msg("bad subrate changed")
			continue
		}

		s.log.Info().
			Str("status", fmt.Sprintf("0x%02x", changed.Status)).
			Uint16("factor", changed.Factor).
			Uint16("cn", changed.ContinuationNumber).
			Msg("subrate changed")
	}
}

func (s *simulator) emitSubrateRequests(peer *peerConn, stop <-chan struct{}) {
	table := []domain.SubrateParams{
		{SubrateMin: 1, SubrateMax: 3, MaxLatency: 0, ContinuationNumber: 0, SupervisionTimeout: domain.DefaultSupervisionTimeout},
		{SubrateMin: 5, SubrateMax: 10, MaxLatency: 2, ContinuationNumber: 1, SupervisionTimeout: domain.DefaultSupervisionTimeout},
		{SubrateMin: 20, SubrateMax: 40, MaxLatency: 4, ContinuationNumber: 0, SupervisionTimeout: domain.DefaultSupervisionTimeout},
	}

	ticker := time.NewTicker(s.requestEvery)
	defer ticker.Stop()

	for i := 0; ; i++ {
		select {
		case <-stop:
			return
		case <-ticker.C:
			params := table[i%len(table)]
			if err := peer.write(wire.NewSubrateRequestFrame(params)); err != nil {
				return
			}
			s.log.Info().
				Uint16("subrate_min", params.SubrateMin).
				Uint16("subrate_max", params.SubrateMax).
				Msg("subrate request sent")
		}
	}
}

func (s *simulator) readHello(conn net.Conn) (*wire.Hello, error) {
	frame, err := wire.ReadFrame(conn)
	if err != nil {
		return nil, err
	}
	if frame.Type != wire.FrameHello {
		return nil, fmt.Errorf("expected hello, got %s", frame.Type)
	}
	return wire.DecodeHello(frame.Payload)
}
