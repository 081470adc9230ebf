package config

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"tariffmeter2mqtt/internal/core/domain"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel zapcore.Level
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Database DatabaseConfig `mapstructure:"database"`

	SourceModbus *SourceModbusConfig `mapstructure:"source_modbus"`
	Meters       []MeterConfig       `mapstructure:"meters"`

	Port    uint `mapstructure:"port"`
	HttpLog bool `mapstructure:"http_log"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

type DatabaseConfig struct {
	Path string
}

// SourceModbusConfig describes an optional local source: a single energy
// register polled over Modbus TCP and fed into the source stream under the
// Sensor id.
type SourceModbusConfig struct {
	Host               string
	Port               uint
	UnitId             uint8  `mapstructure:"unit_id"`
	Register           uint16 `mapstructure:"register"`
	RegisterType       string `mapstructure:"register_type"` // holding, input
	Format             string `mapstructure:"format"`        // uint16, uint32, float32
	Scale              float64
	Unit               string
	Sensor             string `mapstructure:"sensor"`
	PollIntervalMillis uint32 `mapstructure:"poll_interval_millis"`
}

// MeterConfig declares one meter: a source stream, an optional reset
// schedule, and optional tariffs. With tariffs, one accumulator per tariff is
// created, named "<id>_<tariff>".
type MeterConfig struct {
	Id     string
	Name   string
	Source string
	// Cycle names a predefined reset period; Offset shifts it. CronPattern is
	// the explicit alternative to Cycle.
	Cycle          string
	Offset         time.Duration
	CronPattern    string `mapstructure:"cron_pattern"`
	Mode           string
	NetConsumption bool `mapstructure:"net_consumption"`
	Tariffs        []string
}

// SensorIds lists the ids of the accumulators this meter produces.
func (m MeterConfig) SensorIds() []string {
	if len(m.Tariffs) == 0 {
		return []string{m.Id}
	}
	ids := make([]string, 0, len(m.Tariffs))
	for _, tariff := range m.Tariffs {
		ids = append(ids, m.Id+"_"+tariff)
	}
	return ids
}

var idRegexp = regexp.MustCompile("^[a-z0-9_]+$")

// Validate checks everything that must be rejected before any actor starts.
// Cron pattern contents are validated separately by the schedule resolver.
func (c *Config) Validate() error {
	if len(c.Meters) == 0 {
		return errors.New("at least one meter must be configured")
	}
	seenIds := map[string]bool{}
	for i := range c.Meters {
		m := &c.Meters[i]
		if m.Mode == "" {
			m.Mode = domain.METER_MODE_NORMAL
		}
		if m.Name == "" {
			m.Name = m.Id
		}
		if err := validateMeter(*m); err != nil {
			return fmt.Errorf("meter %q: %w", m.Id, err)
		}
		for _, id := range append([]string{m.Id}, m.SensorIds()...) {
			if seenIds[id] {
				return fmt.Errorf("meter id %q is not unique", id)
			}
			seenIds[id] = true
		}
	}
	if c.SourceModbus != nil {
		if c.SourceModbus.PollIntervalMillis == 0 {
			c.SourceModbus.PollIntervalMillis = 5000
		}
		if err := validateModbusSource(*c.SourceModbus); err != nil {
			return fmt.Errorf("source_modbus: %w", err)
		}
	}
	return nil
}

func validateMeter(m MeterConfig) error {
	if !idRegexp.MatchString(m.Id) {
		return errors.New("id can only contain lowercase letters, numbers and underscores")
	}
	if m.Source == "" {
		return errors.New("source is required")
	}
	if !slices.Contains(domain.MeterModes, m.Mode) {
		return fmt.Errorf("unknown mode %q", m.Mode)
	}
	if m.Cycle != "" && !slices.Contains(domain.MeterCycles, m.Cycle) {
		return fmt.Errorf("unknown cycle %q", m.Cycle)
	}
	if m.Cycle != "" && m.CronPattern != "" {
		return errors.New("cycle and cron_pattern are mutually exclusive")
	}
	if m.Cycle == "" && m.Offset != 0 {
		return errors.New("offset requires a cycle")
	}
	if m.Offset < 0 || m.Offset > 28*24*time.Hour {
		return errors.New("offset must be between 0 and 28 days")
	}
	seen := map[string]bool{}
	for _, tariff := range m.Tariffs {
		if !idRegexp.MatchString(tariff) {
			return fmt.Errorf("invalid tariff %q", tariff)
		}
		if seen[tariff] {
			return fmt.Errorf("tariff %q is not unique", tariff)
		}
		seen[tariff] = true
	}
	return nil
}

func validateModbusSource(s SourceModbusConfig) error {
	if s.Host == "" {
		return errors.New("host is required")
	}
	if s.Sensor == "" {
		return errors.New("sensor is required")
	}
	switch s.RegisterType {
	case "", "holding", "input":
	default:
		return fmt.Errorf("unknown register_type %q", s.RegisterType)
	}
	switch s.Format {
	case "", "uint16", "uint32", "float32":
	default:
		return fmt.Errorf("unknown format %q", s.Format)
	}
	if s.PollIntervalMillis < 1000 {
		return errors.New("poll_interval_millis should be >= 1000")
	}
	return nil
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
