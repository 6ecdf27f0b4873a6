package hooks

import (
	"testing"
	"time"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmobs/zmk-softdevice-controller/pkg/application"
	"github.com/kmobs/zmk-softdevice-controller/pkg/domain"
	"github.com/kmobs/zmk-softdevice-controller/pkg/mocks"
)

func newTestHook(processor domain.ActivityProcessor) *ActivityHook {
	return NewActivityHook(ActivityHookConfig{}, processor, &mocks.MockMetricsCollector{}, &mocks.MockLinkLayer{}, &mocks.MockTierDriver{})
}

func TestNewActivityHook_DefaultTopic(t *testing.T) {
	t.Parallel()
	hook := newTestHook(&mocks.MockActivityProcessor{})

	assert.Equal(t, domain.DefaultActivityTopic, hook.config.Topic)
	assert.Equal(t, "zmk-activity", hook.ID())
}

func TestActivityHook_Provides(t *testing.T) {
	t.Parallel()
	hook := newTestHook(&mocks.MockActivityProcessor{})

	assert.True(t, hook.Provides(mqtt.OnPublish))
	assert.True(t, hook.Provides(mqtt.OnConnect))
	assert.True(t, hook.Provides(mqtt.OnDisconnect))
	assert.True(t, hook.Provides(mqtt.OnStopped))
	assert.False(t, hook.Provides(mqtt.OnSubscribe))
}

func TestActivityHook_Init_WithoutServer(t *testing.T) {
	t.Parallel()
	hook := newTestHook(&mocks.MockActivityProcessor{})

	require.NoError(t, hook.Init(nil))
	assert.Nil(t, hook.server)
}

func TestActivityHook_OnPublish_MatchingTopic(t *testing.T) {
	t.Parallel()
	processor := &mocks.MockActivityProcessor{}
	hook := newTestHook(processor)

	pk := packets.Packet{
		TopicName: domain.DefaultActivityTopic,
		Payload:   []byte(`{"state": "active"}`),
	}

	out, err := hook.OnPublish(nil, pk)

	require.NoError(t, err)
	assert.Equal(t, pk.TopicName, out.TopicName)
	assert.True(t, processor.Called())
	assert.Equal(t, domain.DefaultActivityTopic, processor.LastSource())
}

func TestActivityHook_OnPublish_IgnoresOtherTopics(t *testing.T) {
	t.Parallel()
	processor := &mocks.MockActivityProcessor{}
	hook := newTestHook(processor)

	pk := packets.Packet{
		TopicName: "zmk/battery",
		Payload:   []byte(`{"level": 80}`),
	}

	_, err := hook.OnPublish(nil, pk)

	require.NoError(t, err)
	assert.False(t, processor.Called())
}

func TestActivityHook_OnPublish_ProcessorErrorDoesNotBlockDelivery(t *testing.T) {
	t.Parallel()
	processor := &mocks.MockActivityProcessor{Err: assert.AnError}
	hook := newTestHook(processor)

	pk := packets.Packet{
		TopicName: domain.DefaultActivityTopic,
		Payload:   []byte(`garbage`),
	}

	out, err := hook.OnPublish(nil, pk)

	require.NoError(t, err, "broker delivery must not depend on processing")
	assert.Equal(t, pk.Payload, out.Payload)
}

func TestActivityHook_MatchesTopic(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		filter string
		topic  string
		want   bool
	}{
		{"exact", "zmk/activity", "zmk/activity", true},
		{"other topic", "zmk/activity", "zmk/battery", false},
		{"deeper topic", "zmk/activity", "zmk/activity/extra", false},
		{"shorter topic", "zmk/activity", "zmk", false},
		{"plus wildcard", "zmk/+", "zmk/activity", true},
		{"hash wildcard", "zmk/#", "zmk/activity/extra", true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			hook := NewActivityHook(ActivityHookConfig{Topic: tt.filter}, &mocks.MockActivityProcessor{}, nil, nil, nil)
			assert.Equal(t, tt.want, hook.matchesTopic(tt.topic))
		})
	}
}

func TestActivityHook_OnStopped_Idempotent(t *testing.T) {
	t.Parallel()
	hook := newTestHook(&mocks.MockActivityProcessor{})

	hook.OnStopped()
	hook.OnStopped()

	require.NoError(t, hook.Shutdown(nil))
}

// Publishing through the broker must reach the tier driver with no
// client connected at all.
func TestActivityHook_BrokerRoundtrip(t *testing.T) {
	driver := &mocks.MockTierDriver{}
	processor := application.NewProcessor(driver, &mocks.MockMetricsCollector{})
	hook := NewActivityHook(ActivityHookConfig{}, processor, &mocks.MockMetricsCollector{}, &mocks.MockLinkLayer{}, driver)

	server := mqtt.New(&mqtt.Options{InlineClient: true})
	require.NoError(t, server.AddHook(hook, nil))

	err := server.Publish(domain.DefaultActivityTopic, []byte(`{"state": "active", "source": "zmk"}`), false, 0)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return driver.ActiveCalls() == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, server.Close())
}
