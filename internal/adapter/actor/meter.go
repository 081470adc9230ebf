package actor

import (
	"fmt"
	"time"

	"tariffmeter2mqtt/internal/core/domain"
	"tariffmeter2mqtt/internal/core/port"
	"tariffmeter2mqtt/internal/core/service"
	"tariffmeter2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// MeterParams describes one accumulator actor. Tariff is empty for a meter
// without tariffs; SensorId then equals the meter id.
type MeterParams struct {
	MeterId        string
	SensorId       string
	Name           string
	Source         string
	Tariff         string
	Mode           string
	NetConsumption bool
	Schedule       *service.Schedule
	Store          port.SnapshotStore
}

// MeterActor owns the accumulator of one sensor. It restores durable state
// before processing anything, gates readings on the active tariff and writes
// a snapshot after every state-affecting operation.
type MeterActor struct {
	params   MeterParams
	behavior actor.Behavior
	stash    *actorutil.Stash
	logger   *zap.Logger

	acc        *service.Accumulator
	collecting bool
	timer      *scheduler.TimerScheduler
	cancelTick scheduler.CancelFunc
}

type restoreResult struct {
	state *domain.PersistedState
}

type snapshotSaved struct {
	err error
}

type resetTick struct {
}

func NewMeterActor(params MeterParams, logger *zap.Logger) *MeterActor {
	act := &MeterActor{
		params:   params,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_METER_PREFIX+params.SensorId, logger),
		// a meter without tariffs always collects
		collecting: params.Tariff == "",
	}
	act.acc = service.NewAccumulator(params.Mode, params.NetConsumption, act.logger)
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MeterActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MeterActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("meter@starting started")
		state.timer = scheduler.NewTimerScheduler(ctx)
		store := state.params.Store
		key := state.params.SensorId
		actorutil.NewBackgroundTask(ctx, func() (*restoreResult, error) {
			payload, err := store.Load(key)
			if err != nil {
				return nil, err
			}
			return &restoreResult{state: decodeSnapshotPayload(payload)}, nil
		}).WithTimeout(5 * time.Second).OnError(func(err error) {
			ctx.Send(ctx.Self(), restoreResult{})
		}).PipeTo(ctx.Self())
	case restoreResult:
		if msg.state != nil {
			state.acc.Restore(*msg.state)
			if msg.state.HasStatus {
				state.collecting = msg.state.Collecting
			}
			state.logger.Info("meter@starting state restored",
				zap.String("status", state.status()))
		} else {
			state.logger.Info("meter@starting cold start")
		}
		state.armResetTimer(ctx)
		state.become(ctx)
		state.publishUpdate(ctx)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("meter@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// decodeSnapshotPayload tries the preferred shape first, the legacy shape
// second. A payload that fits neither triggers a cold start.
func decodeSnapshotPayload(payload []byte) *domain.PersistedState {
	if len(payload) == 0 {
		return nil
	}
	if st, err := domain.DecodeStoredSnapshot(payload); err == nil {
		return st
	}
	if st, err := domain.DecodeLegacyStoredState(payload); err == nil {
		return st
	}
	return nil
}

func (state *MeterActor) CollectingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.StartMeter:
		state.handleStart(ctx, msg)
	case domain.SourceValueChanged:
		outcome := state.acc.ApplyReading(msg.OldValue, msg.NewValue, msg.Unit)
		switch outcome {
		case service.ReadingApplied, service.ReadingDiscarded:
			state.publishUpdate(ctx)
			state.persist(ctx)
		}
	case domain.TariffValueChanged:
		state.handleTariffChange(ctx, msg)
	case resetTick:
		state.handleResetTick(ctx)
	default:
		state.commonReceive(ctx, msg)
	}
}

func (state *MeterActor) PausedReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.StartMeter:
		state.handleStart(ctx, msg)
	case domain.SourceValueChanged:
		// not collecting for this tariff
	case domain.TariffValueChanged:
		state.handleTariffChange(ctx, msg)
	case resetTick:
		// a scheduled reset closes the period even while paused
		state.handleResetTick(ctx)
	default:
		state.commonReceive(ctx, msg)
	}
}

func (state *MeterActor) commonReceive(ctx actor.Context, msg any) {
	switch msg := msg.(type) {
	case *actor.Stopping:
		state.stopTimer()
	case *actor.Restarting:
		state.stopTimer()
	case snapshotSaved:
		if msg.err != nil {
			state.logger.Error("meter: could not persist snapshot", zap.Error(msg.err))
		}
	case domain.GetMeterRequest:
		snapshot := state.snapshot()
		actorutil.ForRequest(msg).Respond(ctx, domain.GetMeterResponse{Meter: &snapshot})
	case domain.CalibrateMeterRequest:
		state.handleCalibrate(ctx, msg)
	case domain.ResetMeterRequest:
		state.doReset(ctx, time.Now())
		if ctx.Sender() != nil {
			actorutil.ForRequest(msg).Respond(ctx, domain.ResetMeterResponse{})
		}
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_METER_PREFIX + state.params.SensorId,
			Healthy: true,
			State:   state.status(),
		})
	default:
		state.logger.Debug("meter: unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MeterActor) handleStart(ctx actor.Context, msg domain.StartMeter) {
	if state.acc.Start(msg.Unit) {
		state.logger.Info("meter: started", zap.String("unit", msg.Unit))
		state.publishUpdate(ctx)
		state.persist(ctx)
	}
}

func (state *MeterActor) handleTariffChange(ctx actor.Context, msg domain.TariffValueChanged) {
	if state.params.Tariff == "" {
		return
	}
	collecting := msg.Tariff == state.params.Tariff
	if collecting == state.collecting {
		return
	}
	state.collecting = collecting
	if collecting {
		// consumption during the pause must not count as a delta
		state.acc.ClearLastValue()
	}
	state.become(ctx)
	state.logger.Info("meter: tariff gate switched", zap.String("status", state.status()))
	state.publishUpdate(ctx)
	state.persist(ctx)
}

func (state *MeterActor) handleResetTick(ctx actor.Context) {
	// rearm first so a panic in the reset path cannot kill the schedule
	state.armResetTimer(ctx)
	state.doReset(ctx, time.Now())
}

func (state *MeterActor) doReset(ctx actor.Context, now time.Time) {
	closed := state.acc.ResetPeriod(now)
	state.logger.Info("meter: period closed", zap.String("last_period", closed.String()))
	state.publishUpdate(ctx)
	state.persist(ctx)
}

func (state *MeterActor) handleCalibrate(ctx actor.Context, msg domain.CalibrateMeterRequest) {
	value, err := domain.NewDecimal(msg.Value)
	if err != nil {
		actorutil.ForRequest(msg).Respond(ctx, domain.CalibrateMeterResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: fmt.Errorf("invalid calibration value %q: %w", msg.Value, err),
			},
		})
		return
	}
	state.acc.Calibrate(value)
	state.logger.Info("meter: calibrated", zap.String("value", value.String()))
	state.publishUpdate(ctx)
	state.persist(ctx)
	snapshot := state.snapshot()
	actorutil.ForRequest(msg).Respond(ctx, domain.CalibrateMeterResponse{Meter: &snapshot})
}

func (state *MeterActor) armResetTimer(ctx actor.Context) {
	if state.params.Schedule == nil {
		return
	}
	now := time.Now()
	next, err := state.params.Schedule.NextInstant(now)
	if err != nil {
		state.logger.Error("meter: could not compute next reset", zap.Error(err))
		return
	}
	state.stopTimer()
	state.cancelTick = state.timer.RequestOnce(next.Sub(now), ctx.Self(), resetTick{})
	state.logger.Debug("meter: next reset armed", zap.Time("at", next))
}

func (state *MeterActor) stopTimer() {
	if state.cancelTick != nil {
		state.cancelTick()
		state.cancelTick = nil
	}
}

func (state *MeterActor) become(ctx actor.Context) {
	if state.collecting {
		state.behavior.Become(state.CollectingReceive)
	} else {
		state.behavior.Become(state.PausedReceive)
	}
}

func (state *MeterActor) publishUpdate(ctx actor.Context) {
	ctx.ActorSystem().EventStream.Publish(domain.MeterUpdateEvent{Meter: state.snapshot()})
}

func (state *MeterActor) persist(ctx actor.Context) {
	payload, err := domain.EncodeSnapshot(state.acc.PersistedState(state.collecting))
	if err != nil {
		state.logger.Error("meter: could not encode snapshot", zap.Error(err))
		return
	}
	store := state.params.Store
	key := state.params.SensorId
	actorutil.NewBackgroundTask(ctx, func() (*snapshotSaved, error) {
		return &snapshotSaved{err: store.Save(key, payload)}, nil
	}).WithTimeout(5 * time.Second).OnError(func(err error) {
		ctx.Send(ctx.Self(), snapshotSaved{err: err})
	}).PipeTo(ctx.Self())
}

func (state *MeterActor) status() string {
	if state.collecting {
		return domain.STATUS_COLLECTING
	}
	return domain.STATUS_PAUSED
}

func (state *MeterActor) snapshot() domain.MeterSnapshot {
	snapshot := domain.MeterSnapshot{
		ID:             state.params.SensorId,
		Name:           state.params.Name,
		Source:         state.params.Source,
		Tariff:         state.params.Tariff,
		Status:         state.status(),
		Unit:           state.acc.Unit(),
		LastPeriod:     state.acc.LastPeriod().String(),
		LastReset:      state.acc.LastReset(),
		NetConsumption: state.params.NetConsumption,
	}
	if total := state.acc.Total(); total != nil {
		snapshot.Value = total.String()
	}
	if last := state.acc.LastValue(); last != nil {
		snapshot.LastValue = *last
	}
	if state.params.Schedule != nil {
		snapshot.Cycle = state.params.Schedule.Cycle()
		snapshot.CronPattern = state.params.Schedule.Pattern()
	}
	return snapshot
}
