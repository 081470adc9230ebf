package domain

// Events published on the master event stream.

// MeterUpdateEvent carries the full snapshot of a meter after any
// state-affecting operation.
type MeterUpdateEvent struct {
	Meter MeterSnapshot
}

// TariffSelectUpdateEvent reflects the current tariff of a meter group.
type TariffSelectUpdateEvent struct {
	MeterID string
	Tariff  string
}

type BridgeStateUpdateEvent struct {
	Value bool
}
