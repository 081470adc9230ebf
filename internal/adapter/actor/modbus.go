package actor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"tariffmeter2mqtt/internal/config"
	"tariffmeter2mqtt/internal/core/domain"
	"tariffmeter2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/scheduler"
	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

// ModbusSourceActor polls one energy register over Modbus TCP and feeds the
// readings into the source stream as if they arrived from the broker.
type ModbusSourceActor struct {
	config *config.SourceModbusConfig
	client *modbus.ModbusClient
	logger *zap.Logger

	timer  *scheduler.TimerScheduler
	cancel scheduler.CancelFunc
}

type modbusPollTick struct {
}

type modbusReadResult struct {
	payload string
}

func NewModbusSourceActor(cfg *config.SourceModbusConfig, logger *zap.Logger) *ModbusSourceActor {
	return &ModbusSourceActor{
		config: cfg,
		logger: actorutil.ActorLogger(domain.ACTOR_ID_MODBUS_SOURCE, logger),
	}
}

func (state *ModbusSourceActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("modbus@started")
		client, err := modbus.NewClient(&modbus.ClientConfiguration{
			URL:     fmt.Sprintf("tcp://%s:%d", state.config.Host, state.config.Port),
			Timeout: 1 * time.Second,
		})
		if err != nil {
			state.logger.Error("modbus@started could not create client", zap.Error(err))
			panic(err)
		}
		if err := client.Open(); err != nil {
			state.logger.Error("modbus@started could not connect", zap.Error(err))
			panic(err)
		}
		state.client = client
		state.timer = scheduler.NewTimerScheduler(ctx)
		interval := time.Duration(state.config.PollIntervalMillis) * time.Millisecond
		state.cancel = state.timer.SendRepeatedly(interval, interval, ctx.Self(), modbusPollTick{})
	case *actor.Stopping:
		state.stop()
	case *actor.Restarting:
		state.stop()
	case modbusPollTick:
		actorutil.NewBackgroundTask(ctx, func() (*modbusReadResult, error) {
			return &modbusReadResult{payload: state.readRegister()}, nil
		}).WithTimeout(2 * time.Second).OnError(func(err error) {
			state.logger.Error("modbus@poll read error", zap.Error(err))
		}).PipeTo(ctx.Self())
	case modbusReadResult:
		ctx.Send(ctx.Parent(), domain.SourceMessage{
			Source:  state.config.Sensor,
			Payload: msg.payload,
		})
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MODBUS_SOURCE,
			Healthy: true,
			State:   "idle",
		})
	}
}

// readRegister returns the scaled register value as a source payload, or the
// unavailable marker when the device cannot be read.
func (state *ModbusSourceActor) readRegister() string {
	if err := state.client.SetUnitId(state.config.UnitId); err != nil {
		return domain.STATE_UNAVAILABLE
	}
	regType := modbus.HOLDING_REGISTER
	if state.config.RegisterType == "input" {
		regType = modbus.INPUT_REGISTER
	}

	var value float64
	switch state.config.Format {
	case "uint32":
		v, err := state.client.ReadUint32(state.config.Register, regType)
		if err != nil {
			return domain.STATE_UNAVAILABLE
		}
		value = float64(v)
	case "float32":
		v, err := state.client.ReadFloat32(state.config.Register, regType)
		if err != nil {
			return domain.STATE_UNAVAILABLE
		}
		value = float64(v)
	default:
		v, err := state.client.ReadRegister(state.config.Register, regType)
		if err != nil {
			return domain.STATE_UNAVAILABLE
		}
		value = float64(v)
	}
	if state.config.Scale != 0 {
		value = value * state.config.Scale
	}

	raw := strconv.FormatFloat(value, 'f', -1, 64)
	if state.config.Unit == "" {
		return raw
	}
	payload, err := json.Marshal(map[string]any{
		"state":                         raw,
		domain.ATTR_UNIT_OF_MEASUREMENT: state.config.Unit,
	})
	if err != nil {
		return raw
	}
	return string(payload)
}

func (state *ModbusSourceActor) stop() {
	state.logger.Debug("modbus: disconnect")
	if state.cancel != nil {
		state.cancel()
		state.cancel = nil
	}
	if state.client != nil {
		_ = state.client.Close()
	}
}
