package actor

import (
	"testing"

	"tariffmeter2mqtt/internal/core/domain"
	"tariffmeter2mqtt/internal/mqtt"
	"tariffmeter2mqtt/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestMQTTActorWithClient() *MQTTActor {
	cfg := util.LoadTestConfig()
	state := NewTestMQTTActor(&cfg, zap.NewNop())
	state.client = mqtt.CreateMQTTClient(&cfg, mqtt.OptsFromConfig(&cfg), nil, nil)
	return state
}

func TestBridgeStateEventToMQTTMessages(t *testing.T) {

	assert := assert.New(t)
	state := newTestMQTTActorWithClient()

	msgs := state.event2MQTTMessages(domain.BridgeStateUpdateEvent{Value: true})
	require.Len(t, msgs, 1)
	assert.Equal("tariffmeter/bridge/state", msgs[0].topic)
	assert.Equal(mqtt.MQTT_PAYLOAD_ONLINE, msgs[0].message)
	assert.True(msgs[0].retain, "bridge state is retained for late subscribers")

	msgs = state.event2MQTTMessages(domain.BridgeStateUpdateEvent{Value: false})
	require.Len(t, msgs, 1)
	assert.Equal(mqtt.MQTT_PAYLOAD_OFFLINE, msgs[0].message)
}

func TestMeterUpdateEventToMQTTMessages(t *testing.T) {

	assert := assert.New(t)
	state := newTestMQTTActorWithClient()

	meter := domain.MeterSnapshot{
		ID:         "energy_daily_peak",
		Name:       "Daily energy peak",
		Source:     "test/energy",
		Tariff:     "peak",
		Status:     domain.STATUS_COLLECTING,
		Value:      "5",
		Unit:       "kWh",
		LastPeriod: "0",
	}
	msgs := state.event2MQTTMessages(domain.MeterUpdateEvent{Meter: meter})
	require.Len(t, msgs, 2)
	assert.Equal("tariffmeter/sensor/energy_daily_peak/state", msgs[0].topic)
	assert.Equal("5", msgs[0].message)
	assert.True(msgs[0].retain)
	assert.Equal("tariffmeter/sensor/energy_daily_peak/attributes", msgs[1].topic)
	assert.Contains(msgs[1].message, `"status":"collecting"`)
	assert.True(msgs[1].retain)
}
