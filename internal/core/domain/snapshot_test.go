package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRoundTrip(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	total, err := NewDecimal("12.345")
	require.NoError(err)
	lastPeriod, err := NewDecimal("3.5")
	require.NoError(err)
	lastValue := "120.5"

	state := PersistedState{
		Total:      &total,
		Unit:       "kWh",
		LastPeriod: lastPeriod,
		LastValue:  &lastValue,
		LastReset:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Collecting: true,
		HasStatus:  true,
	}
	payload, err := EncodeSnapshot(state)
	require.NoError(err)

	decoded, err := DecodeStoredSnapshot(payload)
	require.NoError(err)

	require.NotNil(decoded.Total)
	assert.Equal("12.345", decoded.Total.String())
	assert.Equal("kWh", decoded.Unit)
	assert.Equal("3.5", decoded.LastPeriod.String())
	require.NotNil(decoded.LastValue)
	assert.Equal("120.5", *decoded.LastValue)
	assert.True(state.LastReset.Equal(decoded.LastReset))
	assert.True(decoded.Collecting)
	assert.True(decoded.HasStatus)
}

func TestSnapshotNeverStarted(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	payload, err := EncodeSnapshot(PersistedState{
		LastPeriod: DecimalZero(),
		LastReset:  time.Now(),
	})
	require.NoError(err)

	decoded, err := DecodeStoredSnapshot(payload)
	require.NoError(err)

	assert.Nil(decoded.Total)
	assert.Nil(decoded.LastValue)
	assert.False(decoded.Collecting)
}

func TestSnapshotMissingFieldsRejected(t *testing.T) {

	assert := assert.New(t)

	cases := []string{
		`{}`,
		`{"native_value":"1"}`,
		`{"native_value":"1","native_unit_of_measurement":"kWh","last_period":"0","last_reset":"2026-01-01T00:00:00Z"}`,
	}
	for _, payload := range cases {
		_, err := DecodeStoredSnapshot([]byte(payload))
		assert.Error(err, payload)
	}
}

func TestSnapshotCorruptedDecimalRejected(t *testing.T) {

	assert := assert.New(t)

	payload := `{"native_value":"garbage","native_unit_of_measurement":"kWh",` +
		`"last_period":"0","last_reset":"2026-01-01T00:00:00Z","status":"collecting"}`
	_, err := DecodeStoredSnapshot([]byte(payload))
	assert.Error(err)

	payload = `{"native_value":"1","native_unit_of_measurement":"kWh",` +
		`"last_period":"NaN","last_reset":"2026-01-01T00:00:00Z","status":"collecting"}`
	_, err = DecodeStoredSnapshot([]byte(payload))
	assert.Error(err)
}

func TestSnapshotBadTimestampTolerated(t *testing.T) {

	require := require.New(t)

	payload := `{"native_value":"1","native_unit_of_measurement":"kWh",` +
		`"last_period":"0","last_reset":"not a time","status":"paused"}`
	decoded, err := DecodeStoredSnapshot([]byte(payload))
	require.NoError(err)
	require.True(decoded.LastReset.IsZero(), "caller substitutes the current instant")
	require.False(decoded.Collecting)
}

func TestLegacyStateDecode(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	payload := `{"state":"7.89","attributes":{` +
		`"unit_of_measurement":"kWh","last_period":"1.5",` +
		`"last_value":"100.1","last_reset":"2025-06-01T00:00:00+02:00","status":"collecting"}}`

	decoded, err := DecodeLegacyStoredState([]byte(payload))
	require.NoError(err)

	require.NotNil(decoded.Total)
	assert.Equal("7.89", decoded.Total.String())
	assert.Equal("kWh", decoded.Unit)
	assert.Equal("1.5", decoded.LastPeriod.String())
	require.NotNil(decoded.LastValue)
	assert.Equal("100.1", *decoded.LastValue)
	assert.True(decoded.Collecting)
	assert.True(decoded.HasStatus)
	assert.True(decoded.LastReset.Equal(time.Date(2025, 5, 31, 22, 0, 0, 0, time.UTC)))
}

func TestLegacyStateNumericAttributes(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	// attributes written as JSON numbers instead of strings
	payload := `{"state":"5","attributes":{"last_period":1.5,"last_value":100}}`

	decoded, err := DecodeLegacyStoredState([]byte(payload))
	require.NoError(err)

	assert.Equal("1.5", decoded.LastPeriod.String())
	require.NotNil(decoded.LastValue)
	assert.Equal("100", *decoded.LastValue)
	assert.False(decoded.HasStatus, "missing status defers the gate decision")
}

func TestLegacyStateBadStateRejected(t *testing.T) {

	assert := assert.New(t)

	_, err := DecodeLegacyStoredState([]byte(`{"state":"unknown","attributes":{}}`))
	assert.Error(err)
}

func TestLegacyStateBadAttributesDegrade(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	payload := `{"state":"5","attributes":{"last_period":"garbage","last_reset":"garbage"}}`
	decoded, err := DecodeLegacyStoredState([]byte(payload))
	require.NoError(err)

	assert.True(decoded.LastPeriod.IsZero())
	assert.True(decoded.LastReset.IsZero())
}

func TestUnzonedTimestampAssumedUTC(t *testing.T) {

	require := require.New(t)

	parsed, err := parseTimestamp("2026-01-02T03:04:05.678901")
	require.NoError(err)
	require.True(parsed.Equal(time.Date(2026, 1, 2, 3, 4, 5, 678901000, time.UTC)))

	parsed, err = parseTimestamp("2026-01-02 03:04:05")
	require.NoError(err)
	require.True(parsed.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
}
