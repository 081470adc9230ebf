package domain

const (
	STATE_CLASS_TOTAL            = "total"
	STATE_CLASS_TOTAL_INCREASING = "total_increasing"
	DEVICE_CLASS_ENERGY          = "energy"
	SENSOR_TYPE_SENSOR           = "sensor"
	SENSOR_TYPE_BINARY           = "binary_sensor"
	ICON_METER                   = "mdi:counter"
)

type Device struct {
	Id           string
	Name         string
	Version      string
	Model        string
	Manufacturer string
}

type GenericSensor struct {
	Device            Device
	Id                string
	SensorType        string
	Name              string
	UniqueId          string
	UnitOfMeasurement string
	StateClass        string // total, total_increasing
	DeviceClass       string // energy, nil
	Icon              string
}

// GenericSelect describes a tariff selector entity: one option per tariff.
type GenericSelect struct {
	Device   Device
	Id       string
	Name     string
	UniqueId string
	Options  []string
	Icon     string
}
