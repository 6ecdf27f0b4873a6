package domain

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LinkLayer is the controller's view of the transport: enumerate links,
// set the defaults applied to future links, and request a subrate change
// on one link. RequestSubrate returns nil on success, ErrAlreadyApplied
// when the link already runs the requested set, and any other error for a
// rejection.
type LinkLayer interface {
	SetDefaultParams(params SubrateParams) error
	Links() []LinkInfo
	RequestSubrate(linkID string, params SubrateParams) error
}

// TierDriver accepts mapped activity transitions. The central build runs
// the full state machine behind it; the peripheral build observes only.
type TierDriver interface {
	OnActivityActive()
	OnActivityIdleOrSleep()
	CurrentTier() Tier
}

type MetricsCollector interface {
	RecordTier(tier Tier)
	RecordTransition(from, to Tier)
	RecordDemotion()
	RecordActivity(state ActivityState)
	RecordRequestOutcome(outcome string)
	RecordSubrateChanged(role LinkRole, success bool)
	RecordPhyUpdate()
	RecordDefaultFailure()
	SetLinkCount(role LinkRole, count int)
	GetRegistry() *prometheus.Registry
	Snapshot() (map[string]float64, error)
}

type AlertSender interface {
	SendAlert(ctx context.Context, alert Alert) error
}

// ActivityProcessor bridges raw activity payloads into tier transitions.
type ActivityProcessor interface {
	ProcessActivity(ctx context.Context, source string, payload []byte) error
}

type Config interface {
	GetMQTTConfig() MQTTConfig
	GetControllerConfig() ControllerConfig
	GetLinkConfig() LinkConfig
	GetMetricsConfig() MetricsConfig
	GetAlertingConfig() AlertingConfig
	Validate() error
}

type MQTTConfig interface {
	GetHost() string
	GetPort() int
	GetClientID() string
	GetTopic() string
	GetAllowAnonymous() bool
	GetUsers() []UserAuth
	GetTimeout() time.Duration
	GetKeepAlive() time.Duration
}

type ControllerConfig interface {
	GetRole() LinkRole
	GetDormantDelay() time.Duration
	GetTierTable() TierTable
}

type LinkConfig interface {
	GetListen() string
	GetPeers() []string
	GetDialTimeout() time.Duration
	GetReconnectInterval() time.Duration
}

type MetricsConfig interface {
	GetListen() string
	GetEnableHealth() bool
}

type AlertingConfig interface {
	GetEnabled() bool
	GetTopic() string
}

type UserAuth interface {
	GetUsername() string
	GetPassword() string
}
