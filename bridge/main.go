package main

import (
	"flag"

	edgex "github.com/nextabc-lab/edgex-victron"
)

//
// Author: 陈哈哈 yoojiachen@gmail.com
// 接收Victron太阳能控制器的BLE广播数据，去重后推送到MQTT服务器，并通过串口控制负载输出。
//

func main() {
	configFile := flag.String("config", "", "配置文件路径，默认查找application.toml")
	flag.Parse()

	var config *edgex.Config
	var err error
	if "" == *configFile {
		config, err = edgex.LoadConfig()
	} else {
		config, err = edgex.LoadConfigByName(*configFile)
	}
	if nil != err {
		edgex.ZapSugarLogger.Fatal("加载配置出错: ", err)
	}
	edgex.Run(config, runBridge)
}
