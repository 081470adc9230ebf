package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	ATTR_UNIT_OF_MEASUREMENT = "unit_of_measurement"
	ATTR_LAST_PERIOD         = "last_period"
	ATTR_LAST_VALUE          = "last_value"
	ATTR_LAST_RESET          = "last_reset"
	ATTR_STATUS              = "status"
)

// PersistedState is the decoded durable state of one meter, shared by the
// snapshot encoder and both decoders.
type PersistedState struct {
	// Total is nil while the meter has never seen a reading.
	Total      *Decimal
	Unit       string
	LastPeriod Decimal
	// LastValue is the last raw source value, kept verbatim.
	LastValue *string
	// LastReset is the zero time when the stored value could not be parsed;
	// the caller substitutes the current instant.
	LastReset  time.Time
	Collecting bool
	// HasStatus is false when the stored payload carried no usable status and
	// the collecting/paused decision is deferred to the tariff gate.
	HasStatus bool
}

// StoredSnapshot is the preferred on-disk shape. Every field except
// last_value must be present for the payload to be accepted.
type StoredSnapshot struct {
	NativeValue *string `json:"native_value"`
	Unit        *string `json:"native_unit_of_measurement"`
	LastPeriod  *string `json:"last_period"`
	LastValue   *string `json:"last_value,omitempty"`
	LastReset   *string `json:"last_reset"`
	Status      *string `json:"status"`
}

// LegacyStoredState is the fallback shape written by earlier releases: a bare
// state string plus free-form attributes.
type LegacyStoredState struct {
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes"`
}

// EncodeSnapshot serializes a PersistedState into the preferred shape. The
// legacy shape is never written.
func EncodeSnapshot(state PersistedState) ([]byte, error) {
	snap := StoredSnapshot{}
	if state.Total != nil {
		v := state.Total.String()
		snap.NativeValue = &v
	}
	unit := state.Unit
	snap.Unit = &unit
	lastPeriod := state.LastPeriod.String()
	snap.LastPeriod = &lastPeriod
	snap.LastValue = state.LastValue
	lastReset := state.LastReset.UTC().Format(time.RFC3339Nano)
	snap.LastReset = &lastReset
	status := STATUS_PAUSED
	if state.Collecting {
		status = STATUS_COLLECTING
	}
	snap.Status = &status
	return json.Marshal(snap)
}

// DecodeStoredSnapshot decodes the preferred shape. Any missing required
// field or corrupted decimal rejects the whole payload so the caller can fall
// back to the legacy decoder.
func DecodeStoredSnapshot(payload []byte) (*PersistedState, error) {
	var raw StoredSnapshot
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}
	if raw.Unit == nil || raw.LastPeriod == nil || raw.LastReset == nil || raw.Status == nil {
		return nil, errors.New("snapshot is missing required fields")
	}

	state := PersistedState{HasStatus: true}

	if raw.NativeValue != nil {
		total, err := NewDecimal(*raw.NativeValue)
		if err != nil {
			return nil, fmt.Errorf("corrupted native_value: %w", err)
		}
		state.Total = &total
	}
	lastPeriod, err := NewDecimal(*raw.LastPeriod)
	if err != nil {
		return nil, fmt.Errorf("corrupted last_period: %w", err)
	}
	state.LastPeriod = lastPeriod
	if raw.LastValue != nil {
		if _, err := NewDecimal(*raw.LastValue); err != nil {
			return nil, fmt.Errorf("corrupted last_value: %w", err)
		}
		state.LastValue = raw.LastValue
	}
	state.Unit = *raw.Unit
	if t, err := parseTimestamp(*raw.LastReset); err == nil {
		state.LastReset = t
	}
	state.Collecting = *raw.Status == STATUS_COLLECTING
	return &state, nil
}

// DecodeLegacyStoredState decodes the legacy shape. The bare state must parse
// as a decimal; corrupted attributes degrade to per-field defaults instead of
// rejecting the payload.
func DecodeLegacyStoredState(payload []byte) (*PersistedState, error) {
	var raw LegacyStoredState
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}
	total, err := NewDecimal(raw.State)
	if err != nil {
		return nil, fmt.Errorf("corrupted state: %w", err)
	}

	state := PersistedState{Total: &total, LastPeriod: DecimalZero()}

	if unit, ok := attrString(raw.Attributes, ATTR_UNIT_OF_MEASUREMENT); ok {
		state.Unit = unit
	}
	if lastPeriod, ok := attrString(raw.Attributes, ATTR_LAST_PERIOD); ok {
		if d, err := NewDecimal(lastPeriod); err == nil {
			state.LastPeriod = d
		}
	}
	if lastValue, ok := attrString(raw.Attributes, ATTR_LAST_VALUE); ok {
		state.LastValue = &lastValue
	}
	if lastReset, ok := attrString(raw.Attributes, ATTR_LAST_RESET); ok {
		if t, err := parseTimestamp(lastReset); err == nil {
			state.LastReset = t
		}
	}
	if status, ok := attrString(raw.Attributes, ATTR_STATUS); ok && status == STATUS_COLLECTING {
		state.Collecting = true
		state.HasStatus = true
	}
	return &state, nil
}

func attrString(attrs map[string]any, key string) (string, bool) {
	v, ok := attrs[key]
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return "", false
	}
}

// parseTimestamp accepts RFC 3339 and the common unzoned variants, assuming
// UTC when no zone is given.
func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05.999999999"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp %q", s)
}
