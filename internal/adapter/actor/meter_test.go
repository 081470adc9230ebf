package actor

import (
	"sync"
	"testing"
	"time"

	"tariffmeter2mqtt/internal/core/domain"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string][]byte{}}
}

func (s *memoryStore) Load(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *memoryStore) Save(key string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = payload
	return nil
}

func (s *memoryStore) Close() error {
	return nil
}

func testMeterParams(store *memoryStore) MeterParams {
	return MeterParams{
		MeterId:  "energy",
		SensorId: "energy_peak",
		Name:     "Energy peak",
		Source:   "test/energy",
		Tariff:   "peak",
		Mode:     domain.METER_MODE_NORMAL,
		Store:    store,
	}
}

func getMeter(t *testing.T, ctx *actor.RootContext, pid *actor.PID) domain.MeterSnapshot {
	t.Helper()
	res, err := ctx.RequestFuture(pid, domain.GetMeterRequest{MeterID: "energy_peak"}, 5*time.Second).Result()
	require.NoError(t, err)
	resp, ok := res.(domain.GetMeterResponse)
	require.True(t, ok)
	require.NotNil(t, resp.Meter)
	return *resp.Meter
}

func TestMeterActorTariffGating(t *testing.T) {

	assert := assert.New(t)

	as := actor.NewActorSystem()
	context := as.Root
	logger := zap.NewNop()
	store := newMemoryStore()

	params := testMeterParams(store)
	pid := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewMeterActor(params, logger)
	}))

	context.Send(pid, domain.TariffValueChanged{Tariff: "peak"})
	context.Send(pid, domain.StartMeter{Unit: "kWh"})
	context.Send(pid, domain.SourceValueChanged{Source: "test/energy", OldValue: "10", NewValue: "15", Unit: "kWh"})

	meter := getMeter(t, context, pid)
	assert.Equal("5", meter.Value)
	assert.Equal(domain.STATUS_COLLECTING, meter.Status)
	assert.Equal("kWh", meter.Unit)

	// another tariff becomes active: readings are ignored
	context.Send(pid, domain.TariffValueChanged{Tariff: "offpeak"})
	context.Send(pid, domain.SourceValueChanged{Source: "test/energy", OldValue: "15", NewValue: "40", Unit: "kWh"})

	meter = getMeter(t, context, pid)
	assert.Equal("5", meter.Value)
	assert.Equal(domain.STATUS_PAUSED, meter.Status)

	// back to collecting
	context.Send(pid, domain.TariffValueChanged{Tariff: "peak"})
	context.Send(pid, domain.SourceValueChanged{Source: "test/energy", OldValue: "40", NewValue: "41", Unit: "kWh"})

	meter = getMeter(t, context, pid)
	assert.Equal("6", meter.Value)
	assert.Equal(domain.STATUS_COLLECTING, meter.Status)

	context.Stop(pid)
	as.Shutdown()
}

func TestMeterActorCalibrateAndReset(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	as := actor.NewActorSystem()
	context := as.Root
	logger := zap.NewNop()
	store := newMemoryStore()

	params := testMeterParams(store)
	pid := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewMeterActor(params, logger)
	}))

	context.Send(pid, domain.TariffValueChanged{Tariff: "peak"})
	context.Send(pid, domain.StartMeter{Unit: "kWh"})

	res, err := context.RequestFuture(pid, domain.CalibrateMeterRequest{
		MeterID: "energy_peak", Value: "100.5",
	}, 5*time.Second).Result()
	require.NoError(err)
	calResp, ok := res.(domain.CalibrateMeterResponse)
	require.True(ok)
	require.False(calResp.HasResponseError())
	assert.Equal("100.5", calResp.Meter.Value)

	// a non numeric calibration value is rejected
	res, err = context.RequestFuture(pid, domain.CalibrateMeterRequest{
		MeterID: "energy_peak", Value: "garbage",
	}, 5*time.Second).Result()
	require.NoError(err)
	calResp, ok = res.(domain.CalibrateMeterResponse)
	require.True(ok)
	assert.True(calResp.HasResponseError())

	res, err = context.RequestFuture(pid, domain.ResetMeterRequest{MeterID: "energy"}, 5*time.Second).Result()
	require.NoError(err)
	_, ok = res.(domain.ResetMeterResponse)
	require.True(ok)

	meter := getMeter(t, context, pid)
	assert.Equal("0", meter.Value)
	assert.Equal("100.5", meter.LastPeriod)

	// eventually persisted with the closed period
	assert.Eventually(func() bool {
		payload, _ := store.Load("energy_peak")
		if payload == nil {
			return false
		}
		decoded, err := domain.DecodeStoredSnapshot(payload)
		return err == nil && decoded.LastPeriod.String() == "100.5"
	}, 5*time.Second, 50*time.Millisecond)

	context.Stop(pid)
	as.Shutdown()
}

func TestMeterActorRestore(t *testing.T) {

	assert := assert.New(t)

	as := actor.NewActorSystem()
	context := as.Root
	logger := zap.NewNop()
	store := newMemoryStore()

	payload := []byte(`{"native_value":"42.5","native_unit_of_measurement":"kWh",` +
		`"last_period":"10","last_value":"500","last_reset":"2026-01-01T00:00:00Z","status":"collecting"}`)
	_ = store.Save("energy_peak", payload)

	params := testMeterParams(store)
	pid := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewMeterActor(params, logger)
	}))

	meter := getMeter(t, context, pid)
	assert.Equal("42.5", meter.Value)
	assert.Equal("kWh", meter.Unit)
	assert.Equal("10", meter.LastPeriod)
	assert.Equal("500", meter.LastValue)
	assert.Equal(domain.STATUS_COLLECTING, meter.Status, "stored status wins over tariff default")

	// restored meters keep accumulating without a new start
	context.Send(pid, domain.SourceValueChanged{Source: "test/energy", OldValue: "500", NewValue: "502", Unit: "kWh"})
	meter = getMeter(t, context, pid)
	assert.Equal("44.5", meter.Value)

	context.Stop(pid)
	as.Shutdown()
}
