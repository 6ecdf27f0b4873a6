package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/kmobs/zmk-softdevice-controller/pkg/domain"
	"github.com/kmobs/zmk-softdevice-controller/pkg/logger"
	"github.com/kmobs/zmk-softdevice-controller/pkg/middleware"
)

type UnifiedServerConfig struct {
	Addr         string
	EnableHealth bool
}

// UnifiedServer is the observability surface: Prometheus metrics, a
// health summary, link introspection, and an HTTP activity injection
// path for setups without a broker between keyboard and host.
type UnifiedServer struct {
	config    UnifiedServerConfig
	collector domain.MetricsCollector
	links     domain.LinkLayer
	driver    domain.TierDriver
	processor domain.ActivityProcessor
	server    *http.Server
	logger    zerolog.Logger
	mu        sync.RWMutex
}

// peerLister is the optional link layer upgrade for /links; the socket
// manager implements it, mocks usually do not.
type peerLister interface {
	KnownPeers() []string
}

type healthStatus struct {
	Service   string             `json:"service"`
	Status    string             `json:"status"`
	Tier      string             `json:"tier,omitempty"`
	Links     int                `json:"links"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	Timestamp int64              `json:"timestamp"`
}

type linksResponse struct {
	Links      []domain.LinkInfo `json:"links"`
	KnownPeers []string          `json:"known_peers,omitempty"`
}

func NewUnifiedServer(config UnifiedServerConfig, collector domain.MetricsCollector, links domain.LinkLayer, driver domain.TierDriver, processor domain.ActivityProcessor) *UnifiedServer {
	return &UnifiedServer{
		config:    config,
		collector: collector,
		links:     links,
		driver:    driver,
		processor: processor,
		logger:    logger.ComponentLogger("unified-server"),
	}
}

func (s *UnifiedServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	if s.collector != nil {
		mux.Handle(domain.DefaultMetricsPath, promhttp.HandlerFor(s.collector.GetRegistry(), promhttp.HandlerOpts{}))
	}

	if s.config.EnableHealth {
		mux.HandleFunc(domain.DefaultHealthPath, s.healthHandler)
	}

	if s.links != nil {
		mux.HandleFunc(domain.DefaultLinksPath, s.linksHandler)
	}

	if s.processor != nil {
		mux.HandleFunc(domain.DefaultActivityPath, s.activityHandler)
	}

	handler := middleware.ChainMiddleware(
		middleware.RecoveryMiddleware(s.logger),
		middleware.TimeoutMiddleware(domain.DefaultTimeout),
		middleware.ValidateJSONMiddleware(),
	)(mux)

	server := &http.Server{
		Addr:              s.config.Addr,
		Handler:           handler,
		ReadTimeout:       domain.DefaultReadTimeout,
		WriteTimeout:      domain.DefaultWriteTimeout,
		ReadHeaderTimeout: domain.DefaultHeaderTimeout,
		IdleTimeout:       domain.DefaultIdleTimeout,
	}

	s.mu.Lock()
	s.server = server
	s.mu.Unlock()

	go func() {
		s.logger.Info().Str("address", s.config.Addr).Msg("unified server starting")

		listener, err := net.Listen("tcp", s.config.Addr)
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to create listener")
			return
		}

		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("unified server error")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), domain.DefaultTimeout)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("server shutdown error")
		}
	}()

	return nil
}

func (s *UnifiedServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := healthStatus{
		Service:   "zmk-subrate-controller",
		Status:    "ok",
		Timestamp: time.Now().Unix(),
	}

	if s.driver != nil {
		status.Tier = s.driver.CurrentTier().String()
	}
	if s.links != nil {
		status.Links = len(s.links.Links())
	}
	if s.collector != nil {
		if snapshot, err := s.collector.Snapshot(); err == nil {
			status.Metrics = snapshot
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode health response")
	}
}

func (s *UnifiedServer) linksHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := linksResponse{Links: s.links.Links()}
	if lister, ok := s.links.(peerLister); ok {
		response.KnownPeers = lister.KnownPeers()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode links response")
	}
}

func (s *UnifiedServer) activityHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, domain.MaxActivityPayload))
	if err != nil {
		http.Error(w, "Payload too large", http.StatusRequestEntityTooLarge)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), domain.DefaultTimeout)
	defer cancel()

	if err := s.processor.ProcessActivity(ctx, "http", payload); err != nil {
		s.logger.Warn().Err(err).Msg("rejected activity payload")
		http.Error(w, "Invalid activity payload", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *UnifiedServer) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	server := s.server
	s.mu.RUnlock()

	if server != nil {
		return server.Shutdown(ctx)
	}
	return nil
}
