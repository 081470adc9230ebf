package service

import (
	"time"

	"tariffmeter2mqtt/internal/core/domain"

	"go.uber.org/zap"
)

// ReadingOutcome classifies what a raw source transition did to the total.
type ReadingOutcome int

const (
	// ReadingApplied means the adjustment was added to the running total.
	ReadingApplied ReadingOutcome = iota
	// ReadingSkipped means the transition carried no usable delta.
	ReadingSkipped
	// ReadingInvalid means an operand did not parse as a decimal.
	ReadingInvalid
	// ReadingDiscarded means a negative adjustment was dropped as a source
	// rollover.
	ReadingDiscarded
)

// Accumulator owns the running total of one meter and interprets raw source
// transitions according to the configured mode. It is not safe for concurrent
// use; the owning actor serializes all calls.
type Accumulator struct {
	Mode           string
	NetConsumption bool
	Logger         *zap.Logger

	total      *domain.Decimal
	lastPeriod domain.Decimal
	lastValue  *string
	lastReset  time.Time
	unit       string
}

func NewAccumulator(mode string, netConsumption bool, logger *zap.Logger) *Accumulator {
	return &Accumulator{
		Mode:           mode,
		NetConsumption: netConsumption,
		Logger:         logger,
		lastPeriod:     domain.DecimalZero(),
		lastReset:      time.Now().UTC(),
	}
}

// Start initializes the total and records the discovered unit. Only effective
// once: a restored or already started accumulator keeps its state.
func (a *Accumulator) Start(unit string) bool {
	if a.total != nil {
		return false
	}
	zero := domain.DecimalZero()
	a.total = &zero
	a.unit = unit
	return true
}

// ApplyReading interprets one source transition. The raw last value is
// updated whenever the new reading parses, even when the adjustment itself is
// discarded as a rollover.
func (a *Accumulator) ApplyReading(oldRaw, newRaw, unit string) ReadingOutcome {
	if domain.IsUnknownState(newRaw) {
		return ReadingSkipped
	}
	if a.Mode == domain.METER_MODE_NORMAL && domain.IsUnknownState(oldRaw) {
		// A transient source gap drops exactly one delta.
		return ReadingSkipped
	}
	if unit != "" {
		a.unit = unit
	}
	if a.total == nil {
		a.Logger.Warn("reading received before meter start", zap.String("value", newRaw))
		return ReadingSkipped
	}

	var adjustment domain.Decimal
	switch a.Mode {
	case domain.METER_MODE_DELTA:
		d, err := domain.NewDecimal(newRaw)
		if err != nil {
			a.Logger.Warn("invalid adjustment", zap.String("value", newRaw), zap.Error(err))
			return ReadingInvalid
		}
		adjustment = d
	case domain.METER_MODE_NORMAL:
		newDec, err := domain.NewDecimal(newRaw)
		if err != nil {
			a.Logger.Warn("invalid state", zap.String("old", oldRaw), zap.String("new", newRaw), zap.Error(err))
			return ReadingInvalid
		}
		oldDec, err := domain.NewDecimal(oldRaw)
		if err != nil {
			a.Logger.Warn("invalid state", zap.String("old", oldRaw), zap.String("new", newRaw), zap.Error(err))
			return ReadingInvalid
		}
		adjustment = newDec.Sub(oldDec)
	default:
		newDec, err := domain.NewDecimal(newRaw)
		if err != nil {
			a.Logger.Warn("invalid state", zap.Stringp("last", a.lastValue), zap.String("new", newRaw), zap.Error(err))
			return ReadingInvalid
		}
		if a.lastValue == nil {
			// No comparison basis yet: record the reading and wait for the next.
			v := newRaw
			a.lastValue = &v
			return ReadingSkipped
		}
		lastDec, err := domain.NewDecimal(*a.lastValue)
		if err != nil {
			a.Logger.Warn("invalid state", zap.Stringp("last", a.lastValue), zap.String("new", newRaw), zap.Error(err))
			v := newRaw
			a.lastValue = &v
			return ReadingInvalid
		}
		adjustment = newDec.Sub(lastDec)
	}

	v := newRaw
	a.lastValue = &v

	if !a.NetConsumption && adjustment.IsNegative() {
		// Source rolled over for unknown reasons.
		a.Logger.Debug("negative adjustment discarded",
			zap.String("old", oldRaw), zap.String("new", newRaw))
		return ReadingDiscarded
	}
	sum := a.total.Add(adjustment)
	a.total = &sum
	return ReadingApplied
}

// ResetPeriod freezes the running total as the closed period, restarts the
// total at zero and clears the raw comparison basis. Returns the closed total.
func (a *Accumulator) ResetPeriod(now time.Time) domain.Decimal {
	closed := domain.DecimalZero()
	if a.total != nil {
		closed = *a.total
	}
	a.lastPeriod = closed
	zero := domain.DecimalZero()
	a.total = &zero
	a.lastValue = nil
	a.lastReset = now.UTC()
	return closed
}

// Calibrate forces the running total to the given value. The closed period
// and last reset instant are untouched.
func (a *Accumulator) Calibrate(value domain.Decimal) {
	v := value
	a.total = &v
	a.lastValue = nil
}

// ClearLastValue drops the raw comparison basis, so the next last-reading
// delta starts fresh.
func (a *Accumulator) ClearLastValue() {
	a.lastValue = nil
}

// Restore applies durable state loaded at startup.
func (a *Accumulator) Restore(state domain.PersistedState) {
	a.total = state.Total
	a.unit = state.Unit
	a.lastPeriod = state.LastPeriod
	a.lastValue = state.LastValue
	if !state.LastReset.IsZero() {
		a.lastReset = state.LastReset
	}
}

// PersistedState captures the accumulator for a durable snapshot write.
func (a *Accumulator) PersistedState(collecting bool) domain.PersistedState {
	return domain.PersistedState{
		Total:      a.total,
		Unit:       a.unit,
		LastPeriod: a.lastPeriod,
		LastValue:  a.lastValue,
		LastReset:  a.lastReset,
		Collecting: collecting,
		HasStatus:  true,
	}
}

func (a *Accumulator) Started() bool {
	return a.total != nil
}

func (a *Accumulator) Total() *domain.Decimal {
	return a.total
}

func (a *Accumulator) Unit() string {
	return a.unit
}

func (a *Accumulator) LastPeriod() domain.Decimal {
	return a.lastPeriod
}

func (a *Accumulator) LastValue() *string {
	return a.lastValue
}

func (a *Accumulator) LastReset() time.Time {
	return a.lastReset
}
