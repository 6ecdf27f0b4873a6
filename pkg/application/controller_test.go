package application

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmobs/zmk-softdevice-controller/pkg/adapters"
	"github.com/kmobs/zmk-softdevice-controller/pkg/domain"
	"github.com/kmobs/zmk-softdevice-controller/pkg/errors"
	"github.com/kmobs/zmk-softdevice-controller/pkg/mocks"
)

func testTierTable() domain.TierTable {
	return domain.TierTable{
		Active:  domain.SubrateParams{SubrateMin: 1, SubrateMax: 3, MaxLatency: 0, ContinuationNumber: 0, SupervisionTimeout: 400},
		Idle:    domain.SubrateParams{SubrateMin: 5, SubrateMax: 10, MaxLatency: 2, ContinuationNumber: 1, SupervisionTimeout: 400},
		Dormant: domain.SubrateParams{SubrateMin: 20, SubrateMax: 40, MaxLatency: 4, ContinuationNumber: 0, SupervisionTimeout: 400},
	}
}

func centralLink(id string) domain.LinkInfo {
	return domain.LinkInfo{
		ID:    id,
		Peer:  "peer-" + id,
		Role:  domain.RoleCentral.String(),
		State: domain.LinkConnected.String(),
	}
}

func startController(t *testing.T, delay time.Duration, links *mocks.MockLinkLayer, metrics *mocks.MockMetricsCollector, alerts *mocks.MockAlertSender) *Controller {
	t.Helper()

	cfg := &adapters.ControllerConfigAdapter{
		Role:         domain.RoleCentral,
		DormantDelay: delay,
		Tiers:        testTierTable(),
	}

	controller, err := NewController(cfg, links, metrics, alerts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go controller.Run(ctx)

	require.Eventually(t, func() bool {
		return len(links.Defaults()) == 1
	}, 2*time.Second, 5*time.Millisecond, "startup must push idle defaults")

	return controller
}

func TestNewControllerRejectsInfeasibleTable(t *testing.T) {
	table := testTierTable()
	table.Idle.SubrateMax = 600

	cfg := &adapters.ControllerConfigAdapter{
		Role:         domain.RoleCentral,
		DormantDelay: time.Minute,
		Tiers:        table,
	}

	_, err := NewController(cfg, &mocks.MockLinkLayer{}, &mocks.MockMetricsCollector{}, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "IDLE tier infeasible")
}

func TestControllerBootsToIdle(t *testing.T) {
	links := &mocks.MockLinkLayer{}
	metrics := &mocks.MockMetricsCollector{}

	controller := startController(t, time.Minute, links, metrics, nil)

	assert.Equal(t, domain.TierIdle, controller.CurrentTier())
	assert.Equal(t, testTierTable().Idle, links.Defaults()[0])
	assert.Equal(t, []domain.Tier{domain.TierIdle}, metrics.Tiers())
	assert.Empty(t, links.Requests(), "boot must not broadcast")
}

func TestStartupSummaryPrintsLatency(t *testing.T) {
	cfg := &adapters.ControllerConfigAdapter{
		Role:         domain.RoleCentral,
		DormantDelay: time.Minute,
		Tiers:        testTierTable(),
	}

	controller, err := NewController(cfg, &mocks.MockLinkLayer{}, &mocks.MockMetricsCollector{}, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	controller.log = zerolog.New(&buf)

	controller.pushInitialDefaults()

	out := buf.String()
	assert.Contains(t, out, `"idle":"5-10/2"`, "the third field is max_latency, not cn")
	assert.Contains(t, out, `"dormant":"20-40/4"`)
	assert.Contains(t, out, "Subrating configured")
}

func TestActivityDrivesTiers(t *testing.T) {
	links := &mocks.MockLinkLayer{LinksValue: []domain.LinkInfo{centralLink("c1"), centralLink("c2")}}
	metrics := &mocks.MockMetricsCollector{}

	controller := startController(t, time.Minute, links, metrics, nil)

	controller.OnActivityActive()

	require.Eventually(t, func() bool {
		return controller.CurrentTier() == domain.TierActive
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(links.Requests()) == 2
	}, 2*time.Second, 5*time.Millisecond)

	for _, request := range links.Requests() {
		assert.Equal(t, testTierTable().Active, request.Params)
	}
	assert.Equal(t, testTierTable().Active, links.Defaults()[1], "tier change must update defaults first")
}

func TestIdenticalEventIsNoOp(t *testing.T) {
	links := &mocks.MockLinkLayer{LinksValue: []domain.LinkInfo{centralLink("c1")}}
	metrics := &mocks.MockMetricsCollector{}

	controller := startController(t, time.Minute, links, metrics, nil)

	controller.OnActivityActive()
	controller.OnActivityActive()
	controller.OnActivityIdleOrSleep()

	require.Eventually(t, func() bool {
		return controller.CurrentTier() == domain.TierIdle
	}, 2*time.Second, 5*time.Millisecond)

	transitions := metrics.Transitions()
	require.Len(t, transitions, 2, "the repeated active event must not transition again")
	assert.Equal(t, mocks.TransitionRecord{From: domain.TierIdle, To: domain.TierActive}, transitions[0])
	assert.Equal(t, mocks.TransitionRecord{From: domain.TierActive, To: domain.TierIdle}, transitions[1])

	assert.Len(t, links.Requests(), 2, "one broadcast per transition, none for the repeat")
}

func TestDemotionAfterDelay(t *testing.T) {
	links := &mocks.MockLinkLayer{LinksValue: []domain.LinkInfo{centralLink("c1")}}
	metrics := &mocks.MockMetricsCollector{}

	controller := startController(t, 50*time.Millisecond, links, metrics, nil)

	controller.OnActivityIdleOrSleep()

	require.Eventually(t, func() bool {
		return controller.CurrentTier() == domain.TierDormant
	}, 2*time.Second, 5*time.Millisecond, "idle must decay into dormant")

	assert.Equal(t, 1, metrics.Demotions())

	// renewed idle activity climbs back and rearms the decay
	controller.OnActivityIdleOrSleep()

	require.Eventually(t, func() bool {
		return metrics.Demotions() == 2 && controller.CurrentTier() == domain.TierDormant
	}, 2*time.Second, 5*time.Millisecond, "the rearmed timer must demote again")
}

func TestActivityCancelsDemotion(t *testing.T) {
	links := &mocks.MockLinkLayer{}
	metrics := &mocks.MockMetricsCollector{}

	controller := startController(t, 150*time.Millisecond, links, metrics, nil)

	controller.OnActivityIdleOrSleep()
	controller.OnActivityActive()

	time.Sleep(400 * time.Millisecond)

	assert.Equal(t, domain.TierActive, controller.CurrentTier())
	assert.Equal(t, 0, metrics.Demotions(), "activity must cancel the pending demotion")
}

func TestBroadcastSkipsNonCentralLinks(t *testing.T) {
	disconnected := centralLink("c2")
	disconnected.State = domain.LinkDisconnected.String()
	peripheral := domain.LinkInfo{
		ID:    "p1",
		Peer:  "peer-p1",
		Role:  domain.RolePeripheral.String(),
		State: domain.LinkConnected.String(),
	}

	links := &mocks.MockLinkLayer{LinksValue: []domain.LinkInfo{centralLink("c1"), disconnected, peripheral}}
	metrics := &mocks.MockMetricsCollector{}

	controller := startController(t, time.Minute, links, metrics, nil)

	controller.OnActivityActive()

	require.Eventually(t, func() bool {
		return len(links.Requests()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, "c1", links.Requests()[0].LinkID, "only connected central links get requests")
}

func TestBroadcastSurvivesFailingLink(t *testing.T) {
	links := &mocks.MockLinkLayer{
		LinksValue: []domain.LinkInfo{centralLink("c1"), centralLink("c2")},
		RequestErr: map[string]error{"c1": errors.NewLinkError("write refused", nil)},
	}
	metrics := &mocks.MockMetricsCollector{}

	controller := startController(t, time.Minute, links, metrics, nil)

	controller.OnActivityActive()

	require.Eventually(t, func() bool {
		return len(links.Requests()) == 2
	}, 2*time.Second, 5*time.Millisecond, "the failing link must not stop the broadcast")

	require.Eventually(t, func() bool {
		outcomes := metrics.RequestOutcomes()
		return len(outcomes) == 2
	}, 2*time.Second, 5*time.Millisecond)

	assert.ElementsMatch(t, []string{domain.OutcomeRejected, domain.OutcomeOK}, metrics.RequestOutcomes())

	// the loop keeps serving events afterwards
	controller.OnActivityIdleOrSleep()
	require.Eventually(t, func() bool {
		return controller.CurrentTier() == domain.TierIdle
	}, 2*time.Second, 5*time.Millisecond)
}

func TestAlreadyAppliedCountsAsSuccess(t *testing.T) {
	links := &mocks.MockLinkLayer{
		LinksValue: []domain.LinkInfo{centralLink("c1")},
		RequestErr: map[string]error{"c1": errors.ErrAlreadyApplied},
	}
	metrics := &mocks.MockMetricsCollector{}

	controller := startController(t, time.Minute, links, metrics, nil)

	controller.OnActivityActive()

	require.Eventually(t, func() bool {
		outcomes := metrics.RequestOutcomes()
		return len(outcomes) == 1 && outcomes[0] == domain.OutcomeAlreadyApplied
	}, 2*time.Second, 5*time.Millisecond)
}

func TestDefaultsFailureRaisesAlert(t *testing.T) {
	links := &mocks.MockLinkLayer{DefaultsErr: errors.NewLinkError("controller rejected params", nil)}
	metrics := &mocks.MockMetricsCollector{}
	alerts := &mocks.MockAlertSender{}

	controller := startController(t, time.Minute, links, metrics, alerts)

	require.Eventually(t, func() bool {
		return metrics.DefaultFailures() >= 1 && len(alerts.Alerts()) >= 1
	}, 2*time.Second, 5*time.Millisecond, "a defaults failure is reported, not fatal")

	assert.Contains(t, alerts.Alerts()[0].Message, "defaults")

	// still running
	controller.OnActivityActive()
	require.Eventually(t, func() bool {
		return controller.CurrentTier() == domain.TierActive
	}, 2*time.Second, 5*time.Millisecond)
}
