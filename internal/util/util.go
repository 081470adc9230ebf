package util

import (
	"tariffmeter2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		MQTT: config.MQTTConfig{
			Host:      "localhost",
			Port:      1883,
			BaseTopic: "tariffmeter",
		},
		Database: config.DatabaseConfig{
			Path: ":memory:",
		},
		Meters: []config.MeterConfig{
			{
				Id:      "energy_daily",
				Name:    "Daily energy",
				Source:  "test/energy",
				Cycle:   "daily",
				Mode:    "normal",
				Tariffs: []string{"peak", "offpeak"},
			},
		},
		Port: 8080,
	}
}
