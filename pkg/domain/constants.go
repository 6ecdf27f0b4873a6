package domain

import "time"

const (
	// Feasibility ceiling for subrate_max * (max_latency + 1), from the
	// LE Connection Subrating spec.
	MaxEffectiveFactor = 500

	MaxActivityPayload = 4096
	MaxPeerNameLength  = 64

	MetricCurrentTier     = "zmk_subrate_current_tier"
	MetricTransitions     = "zmk_subrate_transitions_total"
	MetricDemotions       = "zmk_subrate_demotions_total"
	MetricActivityEvents  = "zmk_subrate_activity_events_total"
	MetricRequests        = "zmk_subrate_requests_total"
	MetricSubrateChanged  = "zmk_subrate_changed_total"
	MetricPhyUpdates      = "zmk_subrate_phy_updates_total"
	MetricLinks           = "zmk_links"
	MetricDefaultFailures = "zmk_subrate_default_failures_total"
	MetricControllerInfo  = "zmk_controller_info"

	OutcomeOK             = "ok"
	OutcomeAlreadyApplied = "already_applied"
	OutcomeRejected       = "rejected"

	HCIStatusSuccess            = uint8(0x00)
	HCIStatusInvalidParams      = uint8(0x12)
	HCIStatusUnacceptableParams = uint8(0x3b)

	Phy1M    = uint8(0x01)
	Phy2M    = uint8(0x02)
	PhyCoded = uint8(0x03)

	DefaultTimeout       = 30 * time.Second
	DefaultReadTimeout   = 15 * time.Second
	DefaultWriteTimeout  = 15 * time.Second
	DefaultIdleTimeout   = 60 * time.Second
	DefaultHeaderTimeout = 5 * time.Second

	DefaultMQTTKeepAlive    = 60 * time.Second
	DefaultMQTTPingTimeout  = 10 * time.Second
	DefaultMQTTConnTimeout  = 30 * time.Second
	DefaultMQTTReconnectInt = 30 * time.Second
	DefaultMQTTDisconnectMs = 250

	DefaultActivityTopic = "zmk/activity"
	DefaultAlertTopic    = "zmk/alerts"
	DefaultHealthPath    = "/health"
	DefaultMetricsPath   = "/metrics"
	DefaultLinksPath     = "/links"
	DefaultActivityPath  = "/activity"

	DefaultMetricsHost = "localhost"
	DefaultMetricsPort = 9109

	DefaultDormantDelay       = time.Minute
	DefaultSupervisionTimeout = uint16(400)
	DefaultDialTimeout        = 5 * time.Second
	DefaultReconnectInterval  = 5 * time.Second

	MaxTopicLength = 256

	ShutdownTimeoutDivider = 3
)
