package mocks

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kmobs/zmk-softdevice-controller/pkg/domain"
)

// The mocks are safe for concurrent use; the controller and link layer
// call them from their own goroutines while tests assert.

type TransitionRecord struct {
	From domain.Tier
	To   domain.Tier
}

type ChangedRecord struct {
	Role    domain.LinkRole
	Success bool
}

type MockMetricsCollector struct {
	mu              sync.Mutex
	tiers           []domain.Tier
	transitions     []TransitionRecord
	demotions       int
	activity        []domain.ActivityState
	requestOutcomes []string
	changed         []ChangedRecord
	phyUpdates      int
	defaultFailures int
	linkCounts      map[domain.LinkRole]int
	registry        *prometheus.Registry
	SnapshotValue   map[string]float64
}

func (m *MockMetricsCollector) RecordTier(tier domain.Tier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tiers = append(m.tiers, tier)
}

func (m *MockMetricsCollector) RecordTransition(from, to domain.Tier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, TransitionRecord{From: from, To: to})
}

func (m *MockMetricsCollector) RecordDemotion() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.demotions++
}

func (m *MockMetricsCollector) RecordActivity(state domain.ActivityState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activity = append(m.activity, state)
}

func (m *MockMetricsCollector) RecordRequestOutcome(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestOutcomes = append(m.requestOutcomes, outcome)
}

func (m *MockMetricsCollector) RecordSubrateChanged(role domain.LinkRole, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changed = append(m.changed, ChangedRecord{Role: role, Success: success})
}

func (m *MockMetricsCollector) RecordPhyUpdate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phyUpdates++
}

func (m *MockMetricsCollector) RecordDefaultFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultFailures++
}

func (m *MockMetricsCollector) SetLinkCount(role domain.LinkRole, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.linkCounts == nil {
		m.linkCounts = make(map[domain.LinkRole]int)
	}
	m.linkCounts[role] = count
}

func (m *MockMetricsCollector) GetRegistry() *prometheus.Registry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}
	return m.registry
}

func (m *MockMetricsCollector) Snapshot() (map[string]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.SnapshotValue, nil
}

func (m *MockMetricsCollector) Tiers() []domain.Tier {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Tier(nil), m.tiers...)
}

func (m *MockMetricsCollector) Transitions() []TransitionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TransitionRecord(nil), m.transitions...)
}

func (m *MockMetricsCollector) Demotions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.demotions
}

func (m *MockMetricsCollector) ActivityStates() []domain.ActivityState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ActivityState(nil), m.activity...)
}

func (m *MockMetricsCollector) RequestOutcomes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.requestOutcomes...)
}

func (m *MockMetricsCollector) ChangedRecords() []ChangedRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ChangedRecord(nil), m.changed...)
}

func (m *MockMetricsCollector) PhyUpdates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phyUpdates
}

func (m *MockMetricsCollector) DefaultFailures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.defaultFailures
}

func (m *MockMetricsCollector) LinkCount(role domain.LinkRole) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.linkCounts[role]
}

type RequestRecord struct {
	LinkID string
	Params domain.SubrateParams
}

type MockLinkLayer struct {
	mu          sync.Mutex
	defaults    []domain.SubrateParams
	requests    []RequestRecord
	LinksValue  []domain.LinkInfo
	DefaultsErr error
	RequestErr  map[string]error
}

func (m *MockLinkLayer) SetDefaultParams(params domain.SubrateParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaults = append(m.defaults, params)
	return m.DefaultsErr
}

func (m *MockLinkLayer) Links() []domain.LinkInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.LinkInfo(nil), m.LinksValue...)
}

func (m *MockLinkLayer) RequestSubrate(linkID string, params domain.SubrateParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, RequestRecord{LinkID: linkID, Params: params})
	if m.RequestErr != nil {
		return m.RequestErr[linkID]
	}
	return nil
}

func (m *MockLinkLayer) Defaults() []domain.SubrateParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.SubrateParams(nil), m.defaults...)
}

func (m *MockLinkLayer) Requests() []RequestRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RequestRecord(nil), m.requests...)
}

type MockAlertSender struct {
	mu     sync.Mutex
	alerts []domain.Alert
}

func (m *MockAlertSender) SendAlert(ctx context.Context, alert domain.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, alert)
	return nil
}

func (m *MockAlertSender) Alerts() []domain.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Alert(nil), m.alerts...)
}

type MockActivityProcessor struct {
	mu          sync.Mutex
	called      bool
	lastSource  string
	lastPayload []byte
	Err         error
}

func (m *MockActivityProcessor) ProcessActivity(ctx context.Context, source string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called = true
	m.lastSource = source
	m.lastPayload = append([]byte(nil), payload...)
	return m.Err
}

func (m *MockActivityProcessor) Called() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.called
}

func (m *MockActivityProcessor) LastSource() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSource
}

func (m *MockActivityProcessor) LastPayload() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.lastPayload...)
}

type MockTierDriver struct {
	mu          sync.Mutex
	activeCalls int
	idleCalls   int
	Tier        domain.Tier
}

func (m *MockTierDriver) OnActivityActive() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeCalls++
}

func (m *MockTierDriver) OnActivityIdleOrSleep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idleCalls++
}

func (m *MockTierDriver) CurrentTier() domain.Tier {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Tier
}

func (m *MockTierDriver) ActiveCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeCalls
}

func (m *MockTierDriver) IdleCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.idleCalls
}
