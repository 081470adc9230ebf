package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE = "bridge"
)

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("tariffmeter_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        "Tariffmeter",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Tariffmeter %s", md5HashShort(baseTopic)),
	}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {

	var sensors []GenericSensor

	// Bridge connection state
	sensors = append(sensors, GenericSensor{
		Device:     bridgeDevice,
		Id:         SENSOR_ID_BRIDGE_STATE,
		SensorType: SENSOR_TYPE_BINARY,
		Name:       "Bridge state",
		UniqueId:   uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	})

	return sensors
}

// MeterSensor builds the discovery entity for one accumulator. Meters that
// allow negative adjustments report state class "total" so downstream
// statistics tolerate decreasing values.
func MeterSensor(bridgeDevice Device, sensorId, name string, netConsumption bool) GenericSensor {
	stateClass := STATE_CLASS_TOTAL_INCREASING
	if netConsumption {
		stateClass = STATE_CLASS_TOTAL
	}
	return GenericSensor{
		Device:      bridgeDevice,
		Id:          sensorId,
		SensorType:  SENSOR_TYPE_SENSOR,
		Name:        name,
		StateClass:  stateClass,
		DeviceClass: DEVICE_CLASS_ENERGY,
		Icon:        ICON_METER,
		UniqueId:    uniqueId(bridgeDevice.Id, sensorId),
	}
}

func TariffSelect(bridgeDevice Device, meterId, name string, tariffs []string) GenericSelect {
	return GenericSelect{
		Device:   bridgeDevice,
		Id:       meterId,
		Name:     fmt.Sprintf("%s tariff", name),
		Options:  tariffs,
		Icon:     "mdi:cash-multiple",
		UniqueId: uniqueId(bridgeDevice.Id, meterId+"_tariff"),
	}
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5HashShort(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])[0:8]
}
