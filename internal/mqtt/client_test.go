package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectCommandParse(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	topic := "loremTopic/select/my_meter/set"
	r := selectCommandExtractor(baseTopic)
	matches := r.FindAllStringSubmatch(topic, 1)

	assert.Equal(matches[0][1], "my_meter", "meter extract")
}

func TestSelectCommandParseFail(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	topic := "loremTopic/select/my_meter/state"
	r := selectCommandExtractor(baseTopic)
	matches := r.FindAllStringSubmatch(topic, 1)

	assert.Equal(len(matches), 0, "no matches")
}

func TestSensorTopics(t *testing.T) {

	assert := assert.New(t)

	c := &MQTTClient{}
	c.cfg.BaseTopic = "tariffmeter"

	assert.Equal("tariffmeter/sensor/energy_daily/state", c.SensorStateTopic("energy_daily"))
	assert.Equal("tariffmeter/sensor/energy_daily/attributes", c.SensorAttributesTopic("energy_daily"))
	assert.Equal("tariffmeter/select/energy/set", c.SelectCommandTopic("energy"))
	assert.Equal("tariffmeter/bridge/state", c.BridgeStateTopic())
}
