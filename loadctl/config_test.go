package loadctl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	edgex "github.com/nextabc-lab/edgex-victron"
)

//
// Author: 陈哈哈 yoojiachen@gmail.com
//

func TestModbusOptionsOf(t *testing.T) {
	bit, reg := 3, 0x0121
	opts := ModbusOptionsOf(edgex.ModbusConfig{UnitId: 2, LoadRegister: 0x0120, OnValue: 1, BitIndex: &bit, StateRegister: &reg})
	assert.Equal(t, byte(2), opts.UnitId)
	assert.Equal(t, uint16(0x0120), opts.LoadRegister)
	require.NotNil(t, opts.BitIndex)
	assert.Equal(t, 3, *opts.BitIndex)
	require.NotNil(t, opts.StateRegister)
	assert.Equal(t, uint16(0x0121), *opts.StateRegister)

	plain := ModbusOptionsOf(edgex.ModbusConfig{UnitId: 1, OnValue: 4, OffValue: 0})
	assert.Nil(t, plain.BitIndex)
	assert.Nil(t, plain.StateRegister)
}

func TestNewSerialSession(t *testing.T) {
	s := NewSerialSession(edgex.ControlConfig{
		SerialPort:              "/dev/ttyUSB9",
		BaudRate:                19200,
		ExchangeTimeoutMillis:   750,
		ReopenBackoffMaxSeconds: 10,
	}, zap.NewNop().Sugar())
	assert.Equal(t, "/dev/ttyUSB9", s.Name())
	assert.Equal(t, 750*time.Millisecond, s.ExchangeTimeout())
	assert.Equal(t, 10*time.Second, s.opts.BackoffMax)
	assert.False(t, s.Connected())
}
