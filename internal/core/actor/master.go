package actor

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	adactor "tariffmeter2mqtt/internal/adapter/actor"
	"tariffmeter2mqtt/internal/config"
	"tariffmeter2mqtt/internal/core/domain"
	"tariffmeter2mqtt/internal/core/port"
	. "tariffmeter2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

type MQTTActorProvider func() *adactor.MQTTActor

type ModbusSourceActorProvider func() *adactor.ModbusSourceActor

// MasterOfPuppetsActor supervises the whole tree: the MQTT actor, the
// optional modbus source poller and one group per configured meter. It routes
// source readings and commands, mirrors meter snapshots for queries and
// forwards state change events to the MQTT actor.
type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck healthCheckResult
	mqttActor          *actor.PID
	modbusSourceActor  *actor.PID
	groupActors        map[string]*actor.PID
	sensorToGroup      map[string]*actor.PID
	sourceToGroups     map[string][]*actor.PID
	meterCache         map[string]domain.MeterSnapshot
	eventSub           *eventstream.Subscription

	store                     port.SnapshotStore
	mqttActorProvider         MQTTActorProvider
	modbusSourceActorProvider ModbusSourceActorProvider
	logger                    *zap.Logger
}

type healthCheckResult struct {
	expected       int
	healthyCount   int
	checksReceived int
	respondTo      *actor.PID
}

// streamEvent rewraps an event stream entry into the master mailbox.
type streamEvent struct {
	event any
}

func NewMasterOfPuppetsActor(config config.Config, store port.SnapshotStore, mqttActorProvider MQTTActorProvider,
	modbusSourceActorProvider ModbusSourceActorProvider, logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:                    config,
		behavior:                  actor.NewBehavior(),
		stash:                     &Stash{},
		logger:                    ActorLogger(domain.ACTOR_ID_MASTER, logger),
		store:                     store,
		mqttActorProvider:         mqttActorProvider,
		modbusSourceActorProvider: modbusSourceActorProvider,
		groupActors:               map[string]*actor.PID{},
		sensorToGroup:             map[string]*actor.PID{},
		sourceToGroups:            map[string][]*actor.PID{},
		meterCache:                map[string]domain.MeterSnapshot{},
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		state.currentHealthCheck = healthCheckResult{}

		// mirror our event types from the system event stream into the mailbox
		system := ctx.ActorSystem()
		self := ctx.Self()
		state.eventSub = system.EventStream.Subscribe(func(evt any) {
			switch evt.(type) {
			case domain.MeterUpdateEvent, domain.TariffSelectUpdateEvent, domain.BridgeStateUpdateEvent:
				system.Root.Send(self, streamEvent{event: evt})
			}
		})

		// start MQTT child
		mqttActorPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		// start modbus source child
		if state.config.SourceModbus != nil {
			modbusPID, err := state.startModbusSourceActor(ctx)
			if err != nil {
				panic(err)
			}
			state.modbusSourceActor = modbusPID
		}

		// start one group per meter
		for _, meterCfg := range state.config.Meters {
			groupPID, err := state.startGroupActor(ctx, meterCfg)
			if err != nil {
				panic(err)
			}
			state.groupActors[meterCfg.Id] = groupPID
			state.sourceToGroups[meterCfg.Source] = append(state.sourceToGroups[meterCfg.Source], groupPID)
			for _, sensorId := range meterCfg.SensorIds() {
				state.sensorToGroup[sensorId] = groupPID
			}
		}

		// announce entities to Home Assistant
		if state.config.MQTT.HADiscoveryEnable {
			ctx.Send(state.mqttActor, state.discoveryRequest())
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Stopping:
		if state.eventSub != nil {
			ctx.ActorSystem().EventStream.Unsubscribe(state.eventSub)
			state.eventSub = nil
		}
	case streamEvent:
		state.handleStreamEvent(ctx, msg.event)
	case domain.SourceMessage:
		groups := state.sourceToGroups[msg.Source]
		state.logger.Debug("master@default source message",
			zap.String("source", msg.Source), zap.Int("groups", len(groups)))
		for _, group := range groups {
			ctx.Send(group, msg)
		}
	case adactor.ParsedCommand:
		// redirect parsedCommand to the owning group
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command != nil {
			cmd, err := ParsedMQTTCommandToCommand(*msg.Command)
			if err == nil && cmd != nil {
				switch pcmd := cmd.(type) {
				case domain.SelectTariffRequest:
					if group, ok := state.groupActors[pcmd.MeterID]; ok {
						ctx.Send(group, pcmd)
					}
				}
			}
		}
	case domain.GetMetersRequest:
		ForRequest(msg).Respond(ctx, domain.GetMetersResponse{Meters: state.cachedMeters()})
	case domain.GetMeterRequest:
		if meter, ok := state.meterCache[msg.MeterID]; ok {
			ForRequest(msg).Respond(ctx, domain.GetMeterResponse{Meter: &meter})
		} else if group, ok := state.sensorToGroup[msg.MeterID]; ok {
			ctx.RequestWithCustomSender(group, msg, ForRequest(msg).ReplyTo(ctx))
		} else {
			ForRequest(msg).Respond(ctx, domain.GetMeterResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: fmt.Errorf("unknown meter %q", msg.MeterID),
				},
			})
		}
	case domain.CalibrateMeterRequest:
		if group, ok := state.sensorToGroup[msg.MeterID]; ok {
			ctx.RequestWithCustomSender(group, msg, ForRequest(msg).ReplyTo(ctx))
		} else {
			ForRequest(msg).Respond(ctx, domain.CalibrateMeterResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: fmt.Errorf("unknown meter %q", msg.MeterID),
				},
			})
		}
	case domain.ResetMeterRequest:
		if group, ok := state.groupActors[msg.MeterID]; ok {
			ctx.RequestWithCustomSender(group, msg, ForRequest(msg).ReplyTo(ctx))
		} else {
			ForRequest(msg).Respond(ctx, domain.ResetMeterResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: fmt.Errorf("unknown meter %q", msg.MeterID),
				},
			})
		}
	case domain.ResetAllMetersRequest:
		for _, group := range state.groupActors {
			ctx.Send(group, domain.ResetMeterRequest{})
		}
		ForRequest(msg).Respond(ctx, domain.ResetAllMetersResponse{})
	case domain.SelectTariffRequest:
		state.routeToGroup(ctx, msg, msg.MeterID)
	case domain.SelectNextTariffRequest:
		state.routeToGroup(ctx, msg, msg.MeterID)
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.startHealthCheck(ctx)
	case *actor.Terminated:
		// if the MQTT actor fails for good, terminate
		if msg.Who.Id == fmt.Sprintf("%s/%s", domain.ACTOR_ID_MASTER, domain.ACTOR_ID_MQTT) {
			state.logger.Error("master@default mqtt error")
			panic(errors.New("mqtt terminated"))
		}
	default:
		state.logger.Debug("master@default stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) routeToGroup(ctx actor.Context, msg domain.ActorRequest, meterId string) {
	if group, ok := state.groupActors[meterId]; ok {
		ctx.RequestWithCustomSender(group, msg, ForRequest(msg).ReplyTo(ctx))
		return
	}
	ForRequest(msg).Respond(ctx, domain.SelectTariffResponse{
		ActorResponseMixIn: domain.ActorResponseMixIn{
			ResponseError: fmt.Errorf("unknown meter %q", meterId),
		},
	})
}

func (state *MasterOfPuppetsActor) handleStreamEvent(ctx actor.Context, event any) {
	if evt, ok := event.(domain.MeterUpdateEvent); ok {
		state.meterCache[evt.Meter.ID] = evt.Meter
	}
	ctx.Send(state.mqttActor, domain.PublishEventRequest{Event: event})
}

func (state *MasterOfPuppetsActor) cachedMeters() []domain.MeterSnapshot {
	meters := make([]domain.MeterSnapshot, 0, len(state.meterCache))
	for _, meter := range state.meterCache {
		meters = append(meters, meter)
	}
	sort.Slice(meters, func(i, j int) bool {
		return meters[i].ID < meters[j].ID
	})
	return meters
}

func (state *MasterOfPuppetsActor) startHealthCheck(ctx actor.Context) {
	state.currentHealthCheck = healthCheckResult{respondTo: ctx.Sender()}

	ping := func(pid *actor.PID, id string) {
		state.currentHealthCheck.expected++
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      id,
				Healthy: false,
			}
		})
	}

	ping(state.mqttActor, domain.ACTOR_ID_MQTT)
	if state.modbusSourceActor != nil {
		ping(state.modbusSourceActor, domain.ACTOR_ID_MODBUS_SOURCE)
	}
	for id, group := range state.groupActors {
		ping(group, "group_"+id)
	}

	ctx.SetReceiveTimeout(1 * time.Second)

	state.behavior.BecomeStacked(state.HealthCheckReceive)
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		if msg.Healthy {
			state.currentHealthCheck.healthyCount++
		}
		if state.currentHealthCheck.allReceived() {

			state.currentHealthCheck.respond(ctx)

			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider()
	}, actor.WithSupervisor(supervisor))
	mqttActorPID, err := ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
	if err != nil {
		return nil, err
	}

	return mqttActorPID, nil
}

func (state *MasterOfPuppetsActor) startModbusSourceActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	modbusProps := actor.PropsFromProducer(func() actor.Actor {
		return state.modbusSourceActorProvider()
	}, actor.WithSupervisor(supervisor))
	modbusActorPID, err := ctx.SpawnNamed(modbusProps, domain.ACTOR_ID_MODBUS_SOURCE)
	if err != nil {
		return nil, err
	}

	return modbusActorPID, nil
}

func (state *MasterOfPuppetsActor) startGroupActor(ctx actor.Context, meterCfg config.MeterConfig) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	groupProps := actor.PropsFromProducer(func() actor.Actor {
		return NewMeterGroupActor(meterCfg, state.store, state.logger)
	}, actor.WithSupervisor(supervisor))
	groupPID, err := ctx.SpawnNamed(groupProps, "group_"+meterCfg.Id)
	if err != nil {
		return nil, err
	}

	return groupPID, nil
}

// discoveryRequest builds the Home Assistant discovery payload set from the
// meter configuration.
func (state *MasterOfPuppetsActor) discoveryRequest() domain.PublishDiscoveryRequest {
	bridgeDevice := domain.BridgeDevice(state.config.MQTT.BaseTopic)

	sensors := domain.BridgeSensors(bridgeDevice)
	var selects []domain.GenericSelect
	for _, meterCfg := range state.config.Meters {
		for _, sensorId := range meterCfg.SensorIds() {
			sensors = append(sensors, domain.MeterSensor(bridgeDevice, sensorId,
				sensorName(meterCfg, sensorId), meterCfg.NetConsumption))
		}
		if len(meterCfg.Tariffs) > 0 {
			selects = append(selects, domain.TariffSelect(bridgeDevice, meterCfg.Id, meterCfg.Name, meterCfg.Tariffs))
		}
	}
	return domain.PublishDiscoveryRequest{
		Sensors: sensors,
		Selects: selects,
	}
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived >= state.expected
}

func (state *healthCheckResult) allHealthy() bool {
	return state.healthyCount >= state.expected
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
