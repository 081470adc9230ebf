package domain

const (
	ACTOR_ID_MASTER        = "master"
	ACTOR_ID_MQTT          = "mqtt"
	ACTOR_ID_MODBUS_SOURCE = "modbus_source"
	ACTOR_ID_METER_PREFIX  = "meter_"
)

// SourceMessage is a raw payload observed on a source stream, before any
// interpretation. Emitted by the MQTT actor and the modbus source poller.
type SourceMessage struct {
	Source  string
	Payload string
}

// SourceValueChanged is a source transition routed to the accumulators of a
// meter group. OldValue is empty when no previous value was observed.
type SourceValueChanged struct {
	Source   string
	OldValue string
	NewValue string
	Unit     string
}

// StartMeter initializes every accumulator of a group with the unit
// discovered from the first observed source value.
type StartMeter struct {
	Unit string
}

// TariffValueChanged notifies an accumulator that the tariff selector moved.
type TariffValueChanged struct {
	Tariff string
}

// Commands and queries.

type GetMetersRequest struct {
	ActorRequestMixIn
}

type GetMetersResponse struct {
	ActorResponseMixIn
	Meters []MeterSnapshot
}

type GetMeterRequest struct {
	ActorRequestMixIn
	MeterID string
}

type GetMeterResponse struct {
	ActorResponseMixIn
	Meter *MeterSnapshot
}

// CalibrateMeterRequest forces the running total of one meter to Value.
// Value must parse as a decimal number.
type CalibrateMeterRequest struct {
	ActorRequestMixIn
	MeterID string
	Value   string
}

type CalibrateMeterResponse struct {
	ActorResponseMixIn
	Meter *MeterSnapshot
}

// ResetMeterRequest closes the current period of every accumulator of the
// addressed meter group.
type ResetMeterRequest struct {
	ActorRequestMixIn
	MeterID string
}

type ResetMeterResponse struct {
	ActorResponseMixIn
}

type ResetAllMetersRequest struct {
	ActorRequestMixIn
}

type ResetAllMetersResponse struct {
	ActorResponseMixIn
}

type SelectTariffRequest struct {
	ActorRequestMixIn
	MeterID string
	Tariff  string
}

type SelectTariffResponse struct {
	ActorResponseMixIn
	Tariff string
}

type SelectNextTariffRequest struct {
	ActorRequestMixIn
	MeterID string
}

// MQTT publishing.

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

// PublishEventRequest forwards a state change event to the MQTT actor.
type PublishEventRequest struct {
	ActorRequestMixIn
	Event  any
	Retain bool
}

type PublishEventResponse struct {
	ActorResponseMixIn
}

// PublishDiscoveryRequest is fire-and-forget: discovery publish failures are
// logged by the MQTT actor, never reported back.
type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors []GenericSensor
	Selects []GenericSelect
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
