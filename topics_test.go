package edgex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

//
// Author: 陈哈哈 yoojiachen@gmail.com
//

func TestTopics(t *testing.T) {
	topics := NewTopics("victron/")
	assert.Equal(t, "victron", topics.Base())
	assert.Equal(t, "victron/mppt/voltage", topics.Metric("mppt", "voltage"))
	assert.Equal(t, "victron/mppt/state", topics.DeviceState("mppt"))
	assert.Equal(t, "victron/mppt/availability", topics.Availability("mppt"))
	assert.Equal(t, "victron/bridge/state", topics.BridgeState())
	assert.Equal(t, "victron/bridge/stats", topics.BridgeStats())
	assert.Equal(t, "victron/bridge/inspect", topics.BridgeInspect())
	assert.Equal(t, "victron/load/state", topics.LoadState())
	assert.Equal(t, "victron/load/set", topics.LoadSet())
	assert.Equal(t, "victron/ingest/#", topics.Ingest())
}

func TestReservedAndNames(t *testing.T) {
	assert.True(t, IsReserved("bridge"))
	assert.True(t, IsReserved("load"))
	assert.False(t, IsReserved("mppt"))

	assert.NoError(t, CheckName("mppt-1"))
	assert.Error(t, CheckName(""))
	assert.Error(t, CheckName("a/b"))
	assert.Error(t, CheckName("a+"))
	assert.Error(t, CheckName("#"))
}

func TestTopicsPanicOnLeadingSlash(t *testing.T) {
	assert.Panics(t, func() { NewTopics("/victron") })
}
