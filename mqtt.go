package edgex

import (
	"context"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

//
// Author: 陈哈哈 yoojiachen@gmail.com
//

func mqttSetOptions(opts *mqtt.ClientOptions, scoped *Globals) {
	opts.AddBroker(scoped.MqttBroker)
	opts.SetKeepAlive(scoped.MqttKeepAlive.Duration)
	opts.SetPingTimeout(scoped.MqttPingTimeout.Duration)
	opts.SetAutoReconnect(scoped.MqttAutoReconnect)
	opts.SetConnectTimeout(scoped.MqttConnectTimeout.Duration)
	opts.SetCleanSession(scoped.MqttCleanSession)
	opts.SetMaxReconnectInterval(scoped.MqttReconnectInterval.Duration)
	// 回调按顺序执行，保证同一设备的广播帧按到达顺序处理
	opts.SetOrderMatters(true)
	if "" != scoped.MqttUsername && "" != scoped.MqttPassword {
		opts.SetUsername(scoped.MqttUsername)
		opts.SetPassword(scoped.MqttPassword)
	}
}

////

// mqttAsyncTickInspect 在1分钟内每10秒执行一次Inspect任务
func mqttAsyncTickInspect(shutdown context.Context, inspectTask func()) {
	inspectTask()
	ticker := time.NewTicker(time.Second * 10)
	defer ticker.Stop()

	tick := 1
	for {
		select {
		case <-ticker.C:
			inspectTask()
			tick++
			if tick >= 6 {
				return
			}

		case <-shutdown.Done():
			return
		}
	}
}

func mqttAwaitConnection(client mqtt.Client, maxRetry int) {
	timer := time.NewTimer(time.Second)
	defer timer.Stop()
	for i := 1; i <= maxRetry; i++ {
		<-timer.C
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			if i == maxRetry {
				log.Errorf("[%d] Mqtt客户端连接失败，最大次数：%v", i, token.Error())
			} else {
				log.Debugf("[%d] Mqtt客户端尝试重新连接，失败：%v", i, token.Error())
			}
			timer.Reset(time.Second * time.Duration(i))
		} else {
			log.Info("Mqtt客户端连接成功")
			break
		}
	}
}
