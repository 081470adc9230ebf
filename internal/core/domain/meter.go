package domain

import "time"

const (
	METER_MODE_NORMAL       = "normal"
	METER_MODE_DELTA        = "delta"
	METER_MODE_LAST_READING = "last_reading"

	STATUS_COLLECTING = "collecting"
	STATUS_PAUSED     = "paused"

	STATE_UNKNOWN     = "unknown"
	STATE_UNAVAILABLE = "unavailable"

	CYCLE_QUARTER_HOURLY = "quarter-hourly"
	CYCLE_HOURLY         = "hourly"
	CYCLE_DAILY          = "daily"
	CYCLE_WEEKLY         = "weekly"
	CYCLE_MONTHLY        = "monthly"
	CYCLE_BIMONTHLY      = "bimonthly"
	CYCLE_QUARTERLY      = "quarterly"
	CYCLE_YEARLY         = "yearly"
)

var MeterModes = []string{
	METER_MODE_NORMAL,
	METER_MODE_DELTA,
	METER_MODE_LAST_READING,
}

var MeterCycles = []string{
	CYCLE_QUARTER_HOURLY,
	CYCLE_HOURLY,
	CYCLE_DAILY,
	CYCLE_WEEKLY,
	CYCLE_MONTHLY,
	CYCLE_BIMONTHLY,
	CYCLE_QUARTERLY,
	CYCLE_YEARLY,
}

// IsUnknownState reports whether a raw source payload carries no usable value.
// An empty string means the value was never observed.
func IsUnknownState(s string) bool {
	return s == "" || s == STATE_UNKNOWN || s == STATE_UNAVAILABLE
}

// MeterSnapshot is the read-only view of a single meter exposed to the HTTP
// API and published to MQTT.
type MeterSnapshot struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Source         string    `json:"source"`
	Tariff         string    `json:"tariff,omitempty"`
	Status         string    `json:"status"`
	Value          string    `json:"value,omitempty"`
	Unit           string    `json:"unit_of_measurement,omitempty"`
	LastPeriod     string    `json:"last_period"`
	LastValue      string    `json:"last_value,omitempty"`
	LastReset      time.Time `json:"last_reset"`
	Cycle          string    `json:"cycle,omitempty"`
	CronPattern    string    `json:"cron_pattern,omitempty"`
	NetConsumption bool      `json:"net_consumption"`
}
