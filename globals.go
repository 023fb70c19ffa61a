package edgex

import (
	"time"
)

//
// Author: 陈哈哈 yoojiachen@gmail.com
//

// 全局配置
type Globals struct {
	LogVerbose            bool     `toml:"LogVerbose"`
	LogLevel              string   `toml:"LogLevel"`
	MqttBroker            string   `toml:"MqttBroker"`
	MqttUsername          string   `toml:"MqttUsername"`
	MqttPassword          string   `toml:"MqttPassword"`
	MqttQoS               uint8    `toml:"MqttQoS"`
	MqttRetained          bool     `toml:"MqttRetained"`
	MqttKeepAlive         Duration `toml:"MqttKeepAlive"`
	MqttPingTimeout       Duration `toml:"MqttPingTimeout"`
	MqttConnectTimeout    Duration `toml:"MqttConnectTimeout"`
	MqttReconnectInterval Duration `toml:"MqttReconnectInterval"`
	MqttAutoReconnect     bool     `toml:"MqttAutoReconnect"`
	MqttCleanSession      bool     `toml:"MqttCleanSession"`
	MqttMaxRetry          int      `toml:"MqttMaxRetry"`
	MqttQuitMillSec       uint     `toml:"MqttQuitMillSec"`
}

// DefaultGlobals 从环境变量中读取 Globals 参数，未设置的使用默认值。
func DefaultGlobals() Globals {
	return Globals{
		LogVerbose:            EnvGetBoolean(EnvKeyLogVerbose, false),
		LogLevel:              EnvGetString(EnvKeyLogLevel, "info"),
		MqttBroker:            EnvGetString(EnvKeyMQBroker, MqttBrokerDefault),
		MqttUsername:          EnvGetString(EnvKeyMQUsername, ""),
		MqttPassword:          EnvGetString(EnvKeyMQPassword, ""),
		MqttQoS:               uint8(EnvGetInt64(EnvKeyMQQOS, 1)),
		MqttRetained:          EnvGetBoolean(EnvKeyMQRetained, true),
		MqttCleanSession:      EnvGetBoolean(EnvKeyMQCleanSession, true),
		MqttKeepAlive:         Duration{EnvGetDuration(EnvKeyMQKeepAlive, time.Second*30)},
		MqttPingTimeout:       Duration{time.Second * 5},
		MqttConnectTimeout:    Duration{time.Second * 5},
		MqttReconnectInterval: Duration{time.Second * 10},
		MqttAutoReconnect:     true,
		MqttMaxRetry:          120,
		MqttQuitMillSec:       500,
	}
}

// Duration 支持在配置文件中使用"5s"、"1m30s"格式的时长字符串
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	du, err := time.ParseDuration(string(text))
	if nil != err {
		return err
	}
	d.Duration = du
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}
