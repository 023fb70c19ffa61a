package main

import (
	"context"
	"flag"
	"time"

	edgex "github.com/nextabc-lab/edgex-victron"
	"github.com/nextabc-lab/edgex-victron/loadctl"
)

//
// Author: 陈哈哈 yoojiachen@gmail.com
// 串口Modbus负载控制的现场诊断工具：读取保持寄存器，可选写入ON/OFF指令并回读。
//

func main() {
	configFile := flag.String("config", "", "配置文件路径，默认查找application.toml")
	register := flag.Int("register", -1, "读取的保持寄存器地址，默认为配置中的负载寄存器")
	write := flag.String("write", "", "写入负载指令：on/off，留空只读")
	readback := flag.Bool("readback", true, "写入后回读寄存器")
	timeout := flag.Duration("timeout", 5*time.Second, "每次收发的超时时间")
	flag.Parse()

	log := edgex.ZapSugarLogger
	var config *edgex.Config
	var err error
	if "" == *configFile {
		config, err = edgex.LoadConfig()
	} else {
		config, err = edgex.LoadConfigByName(*configFile)
	}
	if nil != err {
		log.Fatal("加载配置出错: ", err)
	}
	if edgex.ControlMethodModbus != config.Control.Method {
		log.Fatalf("负载控制方式必须为%s，当前为：%s", edgex.ControlMethodModbus, config.Control.Method)
	}

	req, err := newRequest(config.Control.Modbus, *register, *write, *readback)
	if nil != err {
		log.Fatal("参数错误: ", err)
	}

	session := loadctl.NewSerialSession(config.Control, log)
	modbus, err := loadctl.NewModbus(session, loadctl.ModbusOptionsOf(config.Control.Modbus), log.Named("modbus"))
	if nil != err {
		log.Fatal("创建Modbus出错: ", err)
	}
	defer modbus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	rep, err := diagnose(ctx, modbus, req)
	if nil != err {
		log.Error("诊断失败: ", err)
		return
	}
	rep.print(log)
}
