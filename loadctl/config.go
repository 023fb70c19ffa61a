package loadctl

import (
	"time"

	edgex "github.com/nextabc-lab/edgex-victron"
	"go.uber.org/zap"
)

//
// Author: 陈哈哈 yoojiachen@gmail.com
//

// NewSerialSession 根据[Control]配置创建串口会话，串口在首次收发时才打开
func NewSerialSession(cc edgex.ControlConfig, log *zap.SugaredLogger) *Session {
	return NewSession(SessionOptions{
		Name: cc.SerialPort,
		Opener: SerialOpener(SerialOptions{
			Name:        cc.SerialPort,
			Baud:        cc.BaudRate,
			DataBits:    byte(cc.DataBits),
			Parity:      cc.Parity,
			StopBits:    cc.StopBits,
			ReadTimeout: time.Duration(cc.ReadTimeoutMillis) * time.Millisecond,
		}),
		ExchangeTimeout: time.Duration(cc.ExchangeTimeoutMillis) * time.Millisecond,
		BackoffMax:      time.Duration(cc.ReopenBackoffMaxSeconds * float64(time.Second)),
	}, log.Named("session"))
}

// ModbusOptionsOf 转换[Control.Modbus]配置
func ModbusOptionsOf(mc edgex.ModbusConfig) ModbusOptions {
	opts := ModbusOptions{
		UnitId:       byte(mc.UnitId),
		LoadRegister: uint16(mc.LoadRegister),
		OnValue:      uint16(mc.OnValue),
		OffValue:     uint16(mc.OffValue),
	}
	if nil != mc.BitIndex {
		bit := *mc.BitIndex
		opts.BitIndex = &bit
	}
	if nil != mc.StateRegister {
		reg := uint16(*mc.StateRegister)
		opts.StateRegister = &reg
	}
	return opts
}
