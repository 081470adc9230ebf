package actor

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	adactor "tariffmeter2mqtt/internal/adapter/actor"
	"tariffmeter2mqtt/internal/config"
	"tariffmeter2mqtt/internal/core/domain"
	"tariffmeter2mqtt/internal/core/port"
	"tariffmeter2mqtt/internal/core/service"
	. "tariffmeter2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// MeterGroupActor fans one source stream out to the accumulators of a meter.
// It tracks the last raw source value, owns the tariff selection and starts
// every accumulator on the first usable reading.
type MeterGroupActor struct {
	cfg      config.MeterConfig
	store    port.SnapshotStore
	behavior actor.Behavior
	stash    *Stash
	logger   *zap.Logger

	children     map[string]*actor.PID
	activeTariff string
	lastSource   string
	started      bool
}

type tariffRestored struct {
	tariff string
}

type tariffSaved struct {
	err error
}

func NewMeterGroupActor(cfg config.MeterConfig, store port.SnapshotStore, logger *zap.Logger) *MeterGroupActor {
	act := &MeterGroupActor{
		cfg:      cfg,
		store:    store,
		behavior: actor.NewBehavior(),
		stash:    &Stash{},
		logger:   ActorLogger("group_"+cfg.Id, logger),
		children: map[string]*actor.PID{},
	}
	if len(cfg.Tariffs) > 0 {
		act.activeTariff = cfg.Tariffs[0]
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MeterGroupActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MeterGroupActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("group@starting started")

		schedule, err := service.ResolveSchedule(state.cfg.Cycle, state.cfg.Offset, state.cfg.CronPattern, time.Local)
		if err != nil {
			panic(err)
		}
		if err := state.spawnMeters(ctx, schedule); err != nil {
			panic(err)
		}

		if len(state.cfg.Tariffs) == 0 {
			state.behavior.Become(state.DefaultReceive)
			state.stash.UnstashAll(ctx)
			return
		}

		// restore the persisted tariff selection
		store := state.store
		key := state.selectKey()
		NewBackgroundTask(ctx, func() (*tariffRestored, error) {
			payload, err := store.Load(key)
			if err != nil {
				return nil, err
			}
			return &tariffRestored{tariff: strings.TrimSpace(string(payload))}, nil
		}).WithTimeout(5 * time.Second).OnError(func(err error) {
			ctx.Send(ctx.Self(), tariffRestored{})
		}).PipeTo(ctx.Self())
	case tariffRestored:
		if msg.tariff != "" && slices.Contains(state.cfg.Tariffs, msg.tariff) {
			state.activeTariff = msg.tariff
		}
		state.logger.Info("group@starting tariff restored", zap.String("tariff", state.activeTariff))
		state.broadcastTariff(ctx)
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("group@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MeterGroupActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.SourceMessage:
		state.handleSourceMessage(ctx, msg)
	case domain.SelectTariffRequest:
		state.handleSelectTariff(ctx, msg, msg.Tariff)
	case domain.SelectNextTariffRequest:
		state.handleSelectNext(ctx, msg)
	case domain.ResetMeterRequest:
		for _, child := range state.children {
			ctx.Send(child, domain.ResetMeterRequest{MeterID: state.cfg.Id})
		}
		if ctx.Sender() != nil {
			ForRequest(msg).Respond(ctx, domain.ResetMeterResponse{})
		}
	case domain.CalibrateMeterRequest:
		child, ok := state.children[msg.MeterID]
		if !ok {
			ForRequest(msg).Respond(ctx, domain.CalibrateMeterResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: fmt.Errorf("unknown meter %q", msg.MeterID),
				},
			})
			return
		}
		ctx.RequestWithCustomSender(child, msg, ForRequest(msg).ReplyTo(ctx))
	case domain.GetMeterRequest:
		child, ok := state.children[msg.MeterID]
		if !ok {
			ForRequest(msg).Respond(ctx, domain.GetMeterResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: fmt.Errorf("unknown meter %q", msg.MeterID),
				},
			})
			return
		}
		ctx.RequestWithCustomSender(child, msg, ForRequest(msg).ReplyTo(ctx))
	case tariffSaved:
		if msg.err != nil {
			state.logger.Error("group: could not persist tariff selection", zap.Error(msg.err))
		}
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      "group_" + state.cfg.Id,
			Healthy: true,
			State:   "idle",
		})
	default:
		state.logger.Debug("group@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// handleSourceMessage interprets a raw source payload and fans the transition
// out. The previous raw value is replaced even when the new one is unusable,
// so a source gap costs exactly one delta.
func (state *MeterGroupActor) handleSourceMessage(ctx actor.Context, msg domain.SourceMessage) {
	value, unit := parseSourcePayload(msg.Payload)
	old := state.lastSource
	state.lastSource = value

	if !state.started && !domain.IsUnknownState(value) {
		state.started = true
		state.logger.Info("group: first usable reading", zap.String("unit", unit))
		for _, child := range state.children {
			ctx.Send(child, domain.StartMeter{Unit: unit})
		}
	}
	for _, child := range state.children {
		ctx.Send(child, domain.SourceValueChanged{
			Source:   msg.Source,
			OldValue: old,
			NewValue: value,
			Unit:     unit,
		})
	}
}

func (state *MeterGroupActor) handleSelectTariff(ctx actor.Context, msg domain.ActorRequest, tariff string) {
	if !slices.Contains(state.cfg.Tariffs, tariff) {
		ForRequest(msg).Respond(ctx, domain.SelectTariffResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: fmt.Errorf("unknown tariff %q", tariff),
			},
		})
		return
	}
	if tariff != state.activeTariff {
		state.activeTariff = tariff
		state.broadcastTariff(ctx)
		state.persistTariff(ctx)
	}
	ForRequest(msg).Respond(ctx, domain.SelectTariffResponse{Tariff: state.activeTariff})
}

func (state *MeterGroupActor) handleSelectNext(ctx actor.Context, msg domain.SelectNextTariffRequest) {
	if len(state.cfg.Tariffs) == 0 {
		ForRequest(msg).Respond(ctx, domain.SelectTariffResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: fmt.Errorf("meter %q has no tariffs", state.cfg.Id),
			},
		})
		return
	}
	idx := slices.Index(state.cfg.Tariffs, state.activeTariff)
	next := state.cfg.Tariffs[(idx+1)%len(state.cfg.Tariffs)]
	state.handleSelectTariff(ctx, msg, next)
}

func (state *MeterGroupActor) broadcastTariff(ctx actor.Context) {
	for _, child := range state.children {
		ctx.Send(child, domain.TariffValueChanged{Tariff: state.activeTariff})
	}
	ctx.ActorSystem().EventStream.Publish(domain.TariffSelectUpdateEvent{
		MeterID: state.cfg.Id,
		Tariff:  state.activeTariff,
	})
}

func (state *MeterGroupActor) persistTariff(ctx actor.Context) {
	store := state.store
	key := state.selectKey()
	payload := []byte(state.activeTariff)
	NewBackgroundTask(ctx, func() (*tariffSaved, error) {
		return &tariffSaved{err: store.Save(key, payload)}, nil
	}).WithTimeout(5 * time.Second).OnError(func(err error) {
		ctx.Send(ctx.Self(), tariffSaved{err: err})
	}).PipeTo(ctx.Self())
}

func (state *MeterGroupActor) spawnMeters(ctx actor.Context, schedule *service.Schedule) error {
	supervisor := actor.NewOneForOneStrategy(3, 10*time.Second, func(reason interface{}) actor.Directive {
		return actor.RestartDirective
	})
	for _, sensorId := range state.cfg.SensorIds() {
		params := adactor.MeterParams{
			MeterId:        state.cfg.Id,
			SensorId:       sensorId,
			Name:           sensorName(state.cfg, sensorId),
			Source:         state.cfg.Source,
			Tariff:         strings.TrimPrefix(strings.TrimPrefix(sensorId, state.cfg.Id), "_"),
			Mode:           state.cfg.Mode,
			NetConsumption: state.cfg.NetConsumption,
			Schedule:       schedule,
			Store:          state.store,
		}
		props := actor.PropsFromProducer(func() actor.Actor {
			return adactor.NewMeterActor(params, state.logger)
		}, actor.WithSupervisor(supervisor))
		pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_METER_PREFIX+sensorId)
		if err != nil {
			return err
		}
		state.children[sensorId] = pid
	}
	return nil
}

func sensorName(cfg config.MeterConfig, sensorId string) string {
	if sensorId == cfg.Id {
		return cfg.Name
	}
	tariff := strings.TrimPrefix(sensorId, cfg.Id+"_")
	return fmt.Sprintf("%s %s", cfg.Name, tariff)
}

func (state *MeterGroupActor) selectKey() string {
	return state.cfg.Id + "/select"
}

// parseSourcePayload extracts the raw value and optional unit from a source
// payload. A JSON object with a "state" member carries the unit inline; any
// other payload is the bare value.
func parseSourcePayload(payload string) (string, string) {
	trimmed := strings.TrimSpace(payload)
	if strings.HasPrefix(trimmed, "{") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
			if rawState, ok := obj["state"]; ok {
				var value string
				switch t := rawState.(type) {
				case string:
					value = t
				case float64:
					value = strconv.FormatFloat(t, 'f', -1, 64)
				default:
					return trimmed, ""
				}
				unit, _ := obj[domain.ATTR_UNIT_OF_MEASUREMENT].(string)
				return value, unit
			}
		}
	}
	return trimmed, ""
}
