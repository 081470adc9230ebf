package config

import (
	"testing"
	"time"

	"tariffmeter2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func testConfig() Config {
	return Config{
		Meters: []MeterConfig{
			{Id: "energy", Source: "test/energy", Cycle: domain.CYCLE_DAILY},
		},
	}
}

func TestValidateDefaults(t *testing.T) {

	assert := assert.New(t)

	cfg := testConfig()
	assert.NoError(cfg.Validate())
	assert.Equal(domain.METER_MODE_NORMAL, cfg.Meters[0].Mode)
	assert.Equal("energy", cfg.Meters[0].Name)
}

func TestValidateModbusPollIntervalDefault(t *testing.T) {

	assert := assert.New(t)

	// an unset poll interval gets a sane default
	cfg := testConfig()
	cfg.SourceModbus = &SourceModbusConfig{Host: "localhost", Sensor: "modbus_energy"}
	assert.NoError(cfg.Validate())
	assert.Equal(uint32(5000), cfg.SourceModbus.PollIntervalMillis)

	// an explicit but too aggressive interval is still rejected
	cfg = testConfig()
	cfg.SourceModbus = &SourceModbusConfig{Host: "localhost", Sensor: "modbus_energy", PollIntervalMillis: 500}
	assert.Error(cfg.Validate())
}

func TestValidateRejections(t *testing.T) {

	assert := assert.New(t)

	cfg := testConfig()
	cfg.Meters[0].Id = "Energy Peak"
	assert.Error(cfg.Validate(), "uppercase and spaces in ids")

	cfg = testConfig()
	cfg.Meters[0].CronPattern = "0 0 * * *"
	assert.Error(cfg.Validate(), "cycle and cron_pattern together")

	cfg = testConfig()
	cfg.Meters[0].Cycle = ""
	cfg.Meters[0].Offset = time.Hour
	assert.Error(cfg.Validate(), "offset without a cycle")

	cfg = testConfig()
	cfg.Meters = append(cfg.Meters, cfg.Meters[0])
	assert.Error(cfg.Validate(), "duplicate meter id")
}
