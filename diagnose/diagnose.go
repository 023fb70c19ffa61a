package main

import (
	"context"

	edgex "github.com/nextabc-lab/edgex-victron"
	"github.com/nextabc-lab/edgex-victron/loadctl"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

//
// Author: 陈哈哈 yoojiachen@gmail.com
//

type request struct {
	Register uint16
	// 为nil时只读
	Command  *loadctl.LoadCommand
	Readback bool
}

type report struct {
	Register uint16
	Before   uint16
	Command  *loadctl.LoadCommand
	Result   loadctl.WriteResult
	After    *uint16
}

// newRequest 解析命令行参数。register小于0时使用配置中的负载寄存器。
func newRequest(mc edgex.ModbusConfig, register int, write string, readback bool) (request, error) {
	req := request{Register: uint16(mc.LoadRegister), Readback: readback}
	if register >= 0 {
		if register > 0xFFFF {
			return req, errors.Errorf("register 0x%X out of range", register)
		}
		req.Register = uint16(register)
	}
	if "" != write {
		cmd, err := loadctl.ParseCommand(write)
		if nil != err {
			return req, err
		}
		req.Command = &cmd
	}
	return req, nil
}

// diagnose 读取寄存器，按需写入负载指令并回读。出错时返回已完成部分的结果。
func diagnose(ctx context.Context, m *loadctl.Modbus, req request) (report, error) {
	rep := report{Register: req.Register, Command: req.Command}
	before, err := m.ReadRegister(ctx, req.Register)
	if nil != err {
		return rep, errors.WithMessage(err, "读取寄存器出错")
	}
	rep.Before = before
	if nil == req.Command {
		return rep, nil
	}
	result, err := m.Write(ctx, *req.Command)
	if nil != err {
		return rep, errors.WithMessage(err, "写入负载指令出错")
	}
	rep.Result = result
	if req.Readback {
		after, err := m.ReadRegister(ctx, req.Register)
		if nil != err {
			return rep, errors.WithMessage(err, "回读寄存器出错")
		}
		rep.After = &after
	}
	return rep, nil
}

func (r report) print(log *zap.SugaredLogger) {
	log.Infof("寄存器0x%04X：0x%04X (%d)", r.Register, r.Before, r.Before)
	if nil == r.Command {
		return
	}
	log.Infof("负载指令：%s，设备确认：%s", *r.Command, r.Result.Confirmed)
	if nil != r.After {
		log.Infof("回读寄存器0x%04X：0x%04X (%d)", r.Register, *r.After, *r.After)
	}
}
