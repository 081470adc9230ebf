package actor

import (
	"encoding/json"
	"fmt"
	"time"

	"tariffmeter2mqtt/internal/config"
	"tariffmeter2mqtt/internal/core/domain"
	"tariffmeter2mqtt/internal/mqtt"
	"tariffmeter2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

type MQTTActor struct {
	config           *config.Config
	behavior         actor.Behavior
	stash            *actorutil.Stash
	client           *mqtt.MQTTClient
	logger           *zap.Logger
	sourceTopics     []string
	pendingSubs      int
	pendingPublishes int
}

type MQTTConnected struct {
}

type MQTTSubscribed struct {
}

type MQTTConnectionLost struct {
	Error error
}

type publishResult struct {
	ReplyTo *actor.PID
	Error   error
}

type ParsedCommand struct {
	Command *mqtt.ParsedMQTTCommand
}

func NewMQTTActor(config *config.Config, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:       config,
		behavior:     actor.NewBehavior(),
		stash:        &actorutil.Stash{},
		logger:       actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
		sourceTopics: sourceTopics(config),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

// sourceTopics lists the distinct meter source topics that live on the
// broker. A source served by the modbus poller is not an MQTT topic.
func sourceTopics(cfg *config.Config) []string {
	seen := map[string]bool{}
	var topics []string
	for _, m := range cfg.Meters {
		if cfg.SourceModbus != nil && m.Source == cfg.SourceModbus.Sensor {
			continue
		}
		if !seen[m.Source] {
			seen[m.Source] = true
			topics = append(topics, m.Source)
		}
	}
	return topics
}

func (state *MQTTActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MQTTActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("mqtt@starting started")

		// create MQTT client
		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), func(_ pahomqtt.Client) {
		}, func(_ pahomqtt.Client, err error) {
			ctx.Send(ctx.Self(), MQTTConnectionLost{Error: err})
		})

		// connect to MQTT server
		state.client.Connect(func(err error) {
			if err != nil {
				ctx.Send(ctx.Self(), MQTTConnectionLost{Error: err})
			} else {
				ctx.Send(ctx.Self(), MQTTConnected{})
			}
		}, 10*time.Second)

	case MQTTConnected:
		state.logger.Debug("mqtt@starting connected")

		// announce the bridge as online; the event comes back through the
		// master as a PublishEventRequest once the subscriptions are done
		ctx.ActorSystem().EventStream.Publish(domain.BridgeStateUpdateEvent{Value: true})

		state.pendingSubs = 1 + len(state.sourceTopics)

		// subscribe to the tariff select command topic
		state.client.SubscribeToCommandTopic(func(c pahomqtt.Client, m pahomqtt.Message) {
			cmd, err := state.client.ParseMQTTCommand(m)
			if err == nil && cmd != nil {
				ctx.Send(ctx.Self(), ParsedCommand{Command: cmd})
			}
		}, func(err error) {
			if err != nil {
				ctx.Send(ctx.Self(), MQTTConnectionLost{Error: err})
			} else {
				ctx.Send(ctx.Self(), MQTTSubscribed{})
			}
		}, 1*time.Second)

		// subscribe to every meter source topic
		for _, topic := range state.sourceTopics {
			topic := topic
			state.client.Subscribe(topic, 1, func(c pahomqtt.Client, m pahomqtt.Message) {
				ctx.Send(ctx.Self(), domain.SourceMessage{
					Source:  m.Topic(),
					Payload: string(m.Payload()),
				})
			}, func(err error) {
				if err != nil {
					ctx.Send(ctx.Self(), MQTTConnectionLost{Error: err})
				} else {
					ctx.Send(ctx.Self(), MQTTSubscribed{})
				}
			}, 1*time.Second)
		}
	case MQTTSubscribed:
		state.pendingSubs--
		state.logger.Debug("mqtt@starting subscribed", zap.Int("pending", state.pendingSubs))
		if state.pendingSubs <= 0 {
			// init completed, transition to default state
			state.behavior.Become(state.DefaultReceive)
			state.stash.UnstashAll(ctx)
		}
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@starting connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	case *actor.Restarting:
		state.stop()
	default:
		state.logger.Debug("mqtt@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@default ActorHealthRequest")
		// respond health check request
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "idle",
		})
	case domain.SourceMessage:
		// route source reading to parent
		state.logger.Debug("mqtt@default source message", zap.String("source", msg.Source))
		ctx.Send(ctx.Parent(), msg)
	case ParsedCommand:
		// route command to parent
		state.logger.Debug("mqtt@default parsedCommand", zap.Any("command", msg.Command))
		ctx.Send(ctx.Parent(), msg)
	case domain.PublishMessageRequest:
		state.logger.Debug("mqtt@default PublishMessageRequest", zap.Any("message", msg))
		state.publishMessage(ctx, msg.Topic, msg.Payload, msg.Retain, actorutil.ForRequest(msg).ReplyTo(ctx))
	case domain.PublishEventRequest:
		// receive message from event bus and publish to MQTT if needed
		state.logger.Debug("mqtt@default PublishEventRequest", zap.String("type", fmt.Sprintf("%T", msg.Event)))
		state.publishEvent(ctx, msg.Event, msg.Retain)
	case domain.PublishDiscoveryRequest:
		state.logger.Debug("mqtt@default PublishHADiscovery")
		err := state.PublishHomeAssistantDiscovery(ctx, msg.Sensors, msg.Selects)
		if err != nil {
			state.logger.Error("mqtt@default PublishHADiscovery error", zap.Error(err))
		}
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@default connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@default stash", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

type rawMessage struct {
	topic   string
	message string
	retain  bool
}

func (state *MQTTActor) event2MQTTMessages(event any) []rawMessage {
	switch msg := event.(type) {
	case domain.MeterUpdateEvent:
		msgs := []rawMessage{{
			topic:   state.client.SensorStateTopic(msg.Meter.ID),
			message: msg.Meter.Value,
			retain:  true,
		}}
		if attrs, err := meterAttributesPayload(msg.Meter); err == nil {
			msgs = append(msgs, rawMessage{
				topic:   state.client.SensorAttributesTopic(msg.Meter.ID),
				message: string(attrs),
				retain:  true,
			})
		}
		return msgs
	case domain.TariffSelectUpdateEvent:
		return []rawMessage{{
			topic:   state.client.SelectStateTopic(msg.MeterID),
			message: msg.Tariff,
			retain:  true,
		}}
	case domain.BridgeStateUpdateEvent:
		var stringMessage string
		if msg.Value {
			stringMessage = mqtt.MQTT_PAYLOAD_ONLINE
		} else {
			stringMessage = mqtt.MQTT_PAYLOAD_OFFLINE
		}
		return []rawMessage{{
			topic:   state.client.BridgeStateTopic(),
			message: stringMessage,
			retain:  true,
		}}
	default:
		return nil
	}
}

func meterAttributesPayload(meter domain.MeterSnapshot) ([]byte, error) {
	attrs := map[string]any{
		domain.ATTR_STATUS:      meter.Status,
		domain.ATTR_LAST_PERIOD: meter.LastPeriod,
		domain.ATTR_LAST_RESET:  meter.LastReset.UTC().Format(time.RFC3339Nano),
		"source":                meter.Source,
	}
	if meter.Unit != "" {
		attrs[domain.ATTR_UNIT_OF_MEASUREMENT] = meter.Unit
	}
	if meter.LastValue != "" {
		attrs[domain.ATTR_LAST_VALUE] = meter.LastValue
	}
	if meter.Tariff != "" {
		attrs["tariff"] = meter.Tariff
	}
	if meter.Cycle != "" {
		attrs["cycle"] = meter.Cycle
	}
	if meter.CronPattern != "" {
		attrs["cron_pattern"] = meter.CronPattern
	}
	return json.Marshal(attrs)
}

func (state *MQTTActor) publishEvent(ctx actor.Context, event any, retain bool) {
	msgs := state.event2MQTTMessages(event)
	if len(msgs) == 0 {
		return
	}
	state.pendingPublishes = len(msgs)
	for _, msg := range msgs {
		state.logger.Sugar().Debugf("mqtt@publish: event publish %s => %s", msg.topic, msg.message)
		state.client.Publish(msg.topic, msg.message, 1, msg.retain || retain, func(err error) {
			ctx.Send(ctx.Self(), publishResult{Error: err})
		}, 5*time.Second)
	}
	state.behavior.BecomeStacked(state.EventPublishResultReceive)
}

func (state *MQTTActor) publishMessage(ctx actor.Context, topic, payload string, retain bool, replyTo *actor.PID) {
	state.logger.Sugar().Debugf("mqtt@publish: message publish %s => %s", topic, payload)
	state.client.Publish(topic, payload, 1, retain, func(err error) {
		ctx.Send(ctx.Self(), publishResult{ReplyTo: replyTo, Error: err})
	}, 5*time.Second)
	state.behavior.BecomeStacked(state.MessagePublishResultReceive)
}

func (state *MQTTActor) MessagePublishResultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case publishResult:
		// log error and return to default state
		if msg.Error != nil {
			state.logger.Error("mqtt@publishing could not publish a message", zap.Error(msg.Error))
		}
		if msg.ReplyTo != nil {
			ctx.Send(msg.ReplyTo, domain.PublishMessageResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: msg.Error,
				},
			})
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashOldest(ctx)
	default:
		state.logger.Debug("mqtt@publishing stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) EventPublishResultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case publishResult:
		// log error and return to default state once every publish settled
		if msg.Error != nil {
			state.logger.Error("mqtt@publishing could not publish a message", zap.Error(msg.Error))
		}
		state.pendingPublishes--
		if state.pendingPublishes <= 0 {
			state.behavior.UnbecomeStacked()
			state.stash.UnstashOldest(ctx)
		}
	default:
		state.logger.Debug("mqtt@publishing stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) PublishHomeAssistantDiscovery(ctx actor.Context, sensors []domain.GenericSensor,
	selects []domain.GenericSelect) error {
	discoveryTopic := state.config.MQTT.HADiscoveryTopic
	for i := range sensors {
		msg := mqtt.GenericSensorToHADiscoveryMessage(state.client, sensors[i])
		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		topic := mqtt.HADiscoverySensorTopic(discoveryTopic, sensors[i])
		state.client.Publish(topic, payload, 0, true, func(error) {}, 1*time.Second)
	}
	for i := range selects {
		msg := mqtt.GenericSelectToHADiscoveryMessage(state.client, selects[i])
		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		topic := mqtt.HADiscoverySelectTopic(discoveryTopic, selects[i])
		state.client.Publish(topic, payload, 0, true, func(error) {}, 1*time.Second)
	}
	return nil
}

func (state *MQTTActor) stop() {
	state.logger.Debug("mqtt: disconnect")
	if state.client != nil {
		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_OFFLINE, 0, true, func(error) {}, 500*time.Millisecond)
		state.client.Disconnect(500 * time.Millisecond)
	}
}

// Dummy actor
func NewTestMQTTActor(config *config.Config, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:   config,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger("mqtt", logger),
	}
	act.behavior.Become(act.DummyReceive)
	return act
}

func (state *MQTTActor) DummyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), nil, nil)
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@default ActorHealthRequest")
		// respond health check request
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "idle",
		})
	case domain.PublishEventRequest:
		if msg.ReplyToRef != nil {
			ctx.Respond(domain.PublishEventResponse{})
		}
	case domain.PublishMessageRequest:
		if msg.ReplyToRef != nil {
			ctx.Respond(domain.PublishMessageResponse{})
		}
	}
}
