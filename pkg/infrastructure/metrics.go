package infrastructure

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/kmobs/zmk-softdevice-controller/pkg/domain"
	"github.com/kmobs/zmk-softdevice-controller/pkg/version"
)

type PrometheusCollector struct {
	registry *prometheus.Registry

	currentTier     prometheus.Gauge
	transitions     *prometheus.CounterVec
	demotions       prometheus.Counter
	activityEvents  *prometheus.CounterVec
	requests        *prometheus.CounterVec
	subrateChanged  *prometheus.CounterVec
	phyUpdates      prometheus.Counter
	links           *prometheus.GaugeVec
	defaultFailures prometheus.Counter
	controllerInfo  *prometheus.GaugeVec
}

func NewPrometheusCollector() *PrometheusCollector {
	return NewPrometheusCollectorWithMode("standalone")
}

func NewPrometheusCollectorWithMode(mode string) *PrometheusCollector {
	registry := prometheus.NewRegistry()

	collector := &PrometheusCollector{
		registry: registry,
	}

	collector.setupMetrics()
	collector.setupControllerInfo(mode)
	return collector
}

func (c *PrometheusCollector) setupMetrics() {
	c.currentTier = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: domain.MetricCurrentTier, Help: "Current subrating tier (0=ACTIVE 1=IDLE 2=DORMANT)"})

	c.transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: domain.MetricTransitions, Help: "Tier transitions by direction"},
		[]string{"from", "to"})

	c.demotions = prometheus.NewCounter(
		prometheus.CounterOpts{Name: domain.MetricDemotions, Help: "Timer-driven demotions into DORMANT"})

	c.activityEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: domain.MetricActivityEvents, Help: "Activity events by reported state"},
		[]string{"state"})

	c.requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: domain.MetricRequests, Help: "Subrate requests by outcome"},
		[]string{"outcome"})

	c.subrateChanged = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: domain.MetricSubrateChanged, Help: "Subrate changed indications by role and result"},
		[]string{"role", "result"})

	c.phyUpdates = prometheus.NewCounter(
		prometheus.CounterOpts{Name: domain.MetricPhyUpdates, Help: "PHY update indications"})

	c.links = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: domain.MetricLinks, Help: "Connected links by local role"},
		[]string{"role"})

	c.defaultFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Name: domain.MetricDefaultFailures, Help: "Failed default parameter updates"})

	c.registry.MustRegister(
		c.currentTier, c.transitions, c.demotions, c.activityEvents,
		c.requests, c.subrateChanged, c.phyUpdates, c.links,
		c.defaultFailures,
	)
}

func (c *PrometheusCollector) setupControllerInfo(mode string) {
	c.controllerInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: domain.MetricControllerInfo, Help: "Controller build information"},
		[]string{"version", "mode", "git_commit", "build_date"})
	c.registry.MustRegister(c.controllerInfo)
	c.updateControllerInfo(mode)
}

func (c *PrometheusCollector) updateControllerInfo(mode string) {
	buildVersion, gitCommit, buildDate := version.GetBuildInfo()
	c.controllerInfo.WithLabelValues(buildVersion, mode, gitCommit, buildDate).Set(1)
}

func (c *PrometheusCollector) RecordTier(tier domain.Tier) {
	c.currentTier.Set(float64(tier))
}

func (c *PrometheusCollector) RecordTransition(from, to domain.Tier) {
	c.transitions.WithLabelValues(from.String(), to.String()).Inc()
}

func (c *PrometheusCollector) RecordDemotion() {
	c.demotions.Inc()
}

func (c *PrometheusCollector) RecordActivity(state domain.ActivityState) {
	c.activityEvents.WithLabelValues(state.String()).Inc()
}

func (c *PrometheusCollector) RecordRequestOutcome(outcome string) {
	c.requests.WithLabelValues(outcome).Inc()
}

func (c *PrometheusCollector) RecordSubrateChanged(role domain.LinkRole, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.subrateChanged.WithLabelValues(role.String(), result).Inc()
}

func (c *PrometheusCollector) RecordPhyUpdate() {
	c.phyUpdates.Inc()
}

func (c *PrometheusCollector) RecordDefaultFailure() {
	c.defaultFailures.Inc()
}

func (c *PrometheusCollector) SetLinkCount(role domain.LinkRole, count int) {
	c.links.WithLabelValues(role.String()).Set(float64(count))
}

func (c *PrometheusCollector) GetRegistry() *prometheus.Registry {
	return c.registry
}

// Snapshot flattens the registry into name -> value, summing across label
// sets. It feeds the health endpoint; Prometheus scrapes stay label-aware.
func (c *PrometheusCollector) Snapshot() (map[string]float64, error) {
	metricFamilies, err := c.registry.Gather()
	if err != nil {
		return nil, err
	}

	snapshot := make(map[string]float64, len(metricFamilies))
	for _, mf := range metricFamilies {
		var total float64
		for _, metric := range mf.GetMetric() {
			total += extractMetricValue(metric)
		}
		snapshot[mf.GetName()] = total
	}

	return snapshot, nil
}

func extractMetricValue(metric *dto.Metric) float64 {
	if metric.GetGauge() != nil {
		return metric.GetGauge().GetValue()
	}
	if metric.GetCounter() != nil {
		return metric.GetCounter().GetValue()
	}
	return 0
}
