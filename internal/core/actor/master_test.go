package actor

import (
	"sync"
	"testing"
	"time"

	adactor "tariffmeter2mqtt/internal/adapter/actor"
	"tariffmeter2mqtt/internal/core/domain"
	"tariffmeter2mqtt/internal/util"

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

func spawnTestMaster(t *testing.T) (*actor.ActorSystem, *actor.PID) {
	t.Helper()

	as := actor.NewActorSystem()
	context := as.Root

	cfg := util.LoadTestConfig()
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	store := newMemoryStore()

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, store, func() *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, logger)
		}, nil, logger)
	})
	pid, err := context.SpawnNamed(props, "master")
	require.NoError(t, err)
	return as, pid
}

func metersById(meters []domain.MeterSnapshot) map[string]domain.MeterSnapshot {
	byId := map[string]domain.MeterSnapshot{}
	for _, meter := range meters {
		byId[meter.ID] = meter
	}
	return byId
}

func TestMasterActorHealthCheck(t *testing.T) {

	assert := assert.New(t)

	as, pid := spawnTestMaster(t)
	context := as.Root

	time.Sleep(2 * time.Second)

	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	healthResp, ok := res.(domain.ActorHealthResponse)
	assert.True(ok)
	assert.NotNil(healthResp)

	assert.True(healthResp.Healthy, "healthy is true")

	context.Stop(pid)
	as.Shutdown()
}

func TestMasterActorSourceFlow(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	as, pid := spawnTestMaster(t)
	context := as.Root

	time.Sleep(1 * time.Second)

	// first usable reading starts the meters, the transition itself adds nothing
	context.Send(pid, domain.SourceMessage{Source: "test/energy", Payload: "100"})
	context.Send(pid, domain.SourceMessage{Source: "test/energy", Payload: "105"})

	var meters map[string]domain.MeterSnapshot
	assert.Eventually(func() bool {
		res, err := context.RequestFuture(pid, domain.GetMetersRequest{}, 2*time.Second).Result()
		if err != nil {
			return false
		}
		resp, ok := res.(domain.GetMetersResponse)
		if !ok || len(resp.Meters) != 2 {
			return false
		}
		meters = metersById(resp.Meters)
		return meters["energy_daily_peak"].Value == "5"
	}, 10*time.Second, 100*time.Millisecond)

	require.Contains(meters, "energy_daily_peak")
	require.Contains(meters, "energy_daily_offpeak")
	assert.Equal(domain.STATUS_COLLECTING, meters["energy_daily_peak"].Status)
	assert.Equal(domain.STATUS_PAUSED, meters["energy_daily_offpeak"].Status)
	assert.Equal("0", meters["energy_daily_offpeak"].Value)

	// switch tariff and verify the gate moved
	res, err := context.RequestFuture(pid, domain.SelectTariffRequest{
		MeterID: "energy_daily", Tariff: "offpeak",
	}, 5*time.Second).Result()
	require.NoError(err)
	selResp, ok := res.(domain.SelectTariffResponse)
	require.True(ok)
	require.False(selResp.HasResponseError())
	assert.Equal("offpeak", selResp.Tariff)

	context.Send(pid, domain.SourceMessage{Source: "test/energy", Payload: "106"})

	assert.Eventually(func() bool {
		res, err := context.RequestFuture(pid, domain.GetMetersRequest{}, 2*time.Second).Result()
		if err != nil {
			return false
		}
		resp, ok := res.(domain.GetMetersResponse)
		if !ok {
			return false
		}
		meters = metersById(resp.Meters)
		return meters["energy_daily_offpeak"].Value == "1" &&
			meters["energy_daily_peak"].Value == "5"
	}, 10*time.Second, 100*time.Millisecond)

	// unknown tariff is rejected
	res, err = context.RequestFuture(pid, domain.SelectTariffRequest{
		MeterID: "energy_daily", Tariff: "weekend",
	}, 5*time.Second).Result()
	require.NoError(err)
	selResp, ok = res.(domain.SelectTariffResponse)
	require.True(ok)
	assert.True(selResp.HasResponseError())

	context.Stop(pid)
	as.Shutdown()
}

func TestMasterActorResetAll(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	as, pid := spawnTestMaster(t)
	context := as.Root

	time.Sleep(1 * time.Second)

	context.Send(pid, domain.SourceMessage{Source: "test/energy", Payload: "10"})
	context.Send(pid, domain.SourceMessage{Source: "test/energy", Payload: "17"})

	assert.Eventually(func() bool {
		res, err := context.RequestFuture(pid, domain.GetMetersRequest{}, 2*time.Second).Result()
		if err != nil {
			return false
		}
		resp, ok := res.(domain.GetMetersResponse)
		if !ok {
			return false
		}
		meters := metersById(resp.Meters)
		return meters["energy_daily_peak"].Value == "7"
	}, 10*time.Second, 100*time.Millisecond)

	res, err := context.RequestFuture(pid, domain.ResetAllMetersRequest{}, 5*time.Second).Result()
	require.NoError(err)
	_, ok := res.(domain.ResetAllMetersResponse)
	require.True(ok)

	assert.Eventually(func() bool {
		res, err := context.RequestFuture(pid, domain.GetMetersRequest{}, 2*time.Second).Result()
		if err != nil {
			return false
		}
		resp, ok := res.(domain.GetMetersResponse)
		if !ok {
			return false
		}
		meters := metersById(resp.Meters)
		return meters["energy_daily_peak"].Value == "0" &&
			meters["energy_daily_peak"].LastPeriod == "7"
	}, 10*time.Second, 100*time.Millisecond)

	context.Stop(pid)
	as.Shutdown()
}
