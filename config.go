package edgex

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

//
// Author: 陈哈哈 yoojiachen@gmail.com
//

const (
	ControlMethodNone     = "none"
	ControlMethodVEDirect = "vedirect"
	ControlMethodModbus   = "modbus"

	EventSunrise = "sunrise"
	EventSunset  = "sunset"

	AdvKeySize = 16
)

var (
	ErrConfigNotExist = errors.New("config not exists")
)

// Config 是桥接服务的全部配置，启动时读取一次。
type Config struct {
	NodeId       string                  `toml:"NodeId"`
	Globals      Globals                 `toml:"Globals"`
	Bridge       BridgeConfig            `toml:"Bridge"`
	Devices      map[string]DeviceConfig `toml:"Devices"`
	Filter       FilterConfig            `toml:"Filter"`
	Availability AvailabilityConfig      `toml:"Availability"`
	Control      ControlConfig           `toml:"Control"`
	Schedule     ScheduleConfig          `toml:"Schedule"`
}

type BridgeConfig struct {
	BaseTopic             string  `toml:"baseTopic"`
	StatsIntervalSeconds  float64 `toml:"statsIntervalSeconds"`
	CommandTimeoutSeconds float64 `toml:"commandTimeoutSeconds"`
	Inspect               bool    `toml:"inspect"`
}

// DeviceConfig 以设备MAC地址为Key
type DeviceConfig struct {
	Name   string `toml:"name"`
	AdvKey string `toml:"advKey"`
}

type FilterConfig struct {
	ThrottleSeconds float64            `toml:"throttleSeconds"`
	Thresholds      map[string]float64 `toml:"thresholds"`
	DerivePower     bool               `toml:"derivePower"`
}

type AvailabilityConfig struct {
	TimeoutSeconds  float64 `toml:"timeoutSeconds"`
	IntervalSeconds float64 `toml:"intervalSeconds"`
}

type ControlConfig struct {
	Method                  string         `toml:"method"`
	SerialPort              string         `toml:"serialPort"`
	BaudRate                int            `toml:"baudRate"`
	DataBits                int            `toml:"dataBits"`
	Parity                  string         `toml:"parity"`
	StopBits                int            `toml:"stopBits"`
	ReadTimeoutMillis       int            `toml:"readTimeoutMillis"`
	ExchangeTimeoutMillis   int            `toml:"exchangeTimeoutMillis"`
	ReopenBackoffMaxSeconds float64        `toml:"reopenBackoffMaxSeconds"`
	VEDirect                VEDirectConfig `toml:"VEDirect"`
	Modbus                  ModbusConfig   `toml:"Modbus"`
}

type VEDirectConfig struct {
	CommandOn        string   `toml:"commandOn"`
	CommandOff       string   `toml:"commandOff"`
	FreshnessSeconds float64  `toml:"freshnessSeconds"`
	StateKeys        []string `toml:"stateKeys"`
}

type ModbusConfig struct {
	UnitId        int  `toml:"unitId"`
	LoadRegister  int  `toml:"loadRegister"`
	OnValue       int  `toml:"onValue"`
	OffValue      int  `toml:"offValue"`
	BitIndex      *int `toml:"bitIndex"`
	StateRegister *int `toml:"stateRegister"`
}

type ScheduleConfig struct {
	Enabled          bool    `toml:"enabled"`
	Latitude         float64 `toml:"latitude"`
	Longitude        float64 `toml:"longitude"`
	OnEvent          string  `toml:"onEvent"`
	OffEvent         string  `toml:"offEvent"`
	OnOffsetMinutes  int     `toml:"onOffsetMinutes"`
	OffOffsetMinutes int     `toml:"offOffsetMinutes"`
	OnEnabled        bool    `toml:"onEnabled"`
	OffEnabled       bool    `toml:"offEnabled"`
}

// NewConfig 返回带默认值的配置。配置文件中出现的字段会覆盖默认值。
func NewConfig() *Config {
	return &Config{
		Globals: DefaultGlobals(),
		Bridge: BridgeConfig{
			BaseTopic:             "victron",
			StatsIntervalSeconds:  60,
			CommandTimeoutSeconds: 10,
			Inspect:               true,
		},
		Devices: make(map[string]DeviceConfig),
		Filter: FilterConfig{
			ThrottleSeconds: 0,
			Thresholds:      make(map[string]float64),
			DerivePower:     true,
		},
		Availability: AvailabilityConfig{
			TimeoutSeconds:  300,
			IntervalSeconds: 30,
		},
		Control: ControlConfig{
			Method:                  ControlMethodNone,
			BaudRate:                19200,
			DataBits:                8,
			Parity:                  "N",
			StopBits:                1,
			ReadTimeoutMillis:       1000,
			ExchangeTimeoutMillis:   2000,
			ReopenBackoffMaxSeconds: 30,
			VEDirect: VEDirectConfig{
				CommandOn:        ":LOAD=1\r",
				CommandOff:       ":LOAD=0\r",
				FreshnessSeconds: 30,
				StateKeys:        []string{"LOAD", "Load", "Relay"},
			},
			Modbus: ModbusConfig{
				UnitId:       1,
				LoadRegister: 0x0120,
				OnValue:      1,
				OffValue:     0,
			},
		},
		Schedule: ScheduleConfig{
			OnEvent:    EventSunset,
			OffEvent:   EventSunrise,
			OnEnabled:  true,
			OffEnabled: true,
		},
	}
}

////

// ConfigError 描述单个非法配置项
type ConfigError struct {
	Field  string
	Reason string
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

type ConfigErrors []ConfigError

func (es ConfigErrors) Error() string {
	msgs := make([]string, 0, len(es))
	for _, e := range es {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate 检查配置的合法性。设备地址的格式由engine在注册设备时检查。
func (c *Config) Validate() error {
	var errs ConfigErrors
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)})
	}

	if err := checkTopicSegment(c.Bridge.BaseTopic); nil != err {
		add("Bridge.baseTopic", "%v", err)
	}
	for mac, dev := range c.Devices {
		field := fmt.Sprintf("Devices.%q", mac)
		if err := checkTopicSegment(dev.Name); nil != err {
			add(field+".name", "%v", err)
		} else if IsReserved(dev.Name) {
			add(field+".name", "name %q is reserved", dev.Name)
		}
		if "" != dev.AdvKey {
			if key, err := hex.DecodeString(dev.AdvKey); nil != err {
				add(field+".advKey", "not a hex string")
			} else if len(key) != AdvKeySize {
				add(field+".advKey", "key length must be %d bytes, was %d", AdvKeySize, len(key))
			}
		}
	}
	for metric, th := range c.Filter.Thresholds {
		if th < 0 {
			add("Filter.thresholds."+metric, "threshold must be non-negative, was %v", th)
		}
	}
	if c.Filter.ThrottleSeconds < 0 {
		add("Filter.throttleSeconds", "must be non-negative")
	}
	if c.Availability.TimeoutSeconds <= 0 {
		add("Availability.timeoutSeconds", "must be positive")
	}
	if c.Availability.IntervalSeconds <= 0 {
		add("Availability.intervalSeconds", "must be positive")
	}

	switch c.Control.Method {
	case ControlMethodNone, "":
	case ControlMethodVEDirect, ControlMethodModbus:
		if "" == c.Control.SerialPort {
			add("Control.serialPort", "required for method %s", c.Control.Method)
		}
		if c.Control.BaudRate <= 0 {
			add("Control.baudRate", "must be positive")
		}
		if c.Control.DataBits < 5 || c.Control.DataBits > 8 {
			add("Control.dataBits", "must be within 5..8, was %d", c.Control.DataBits)
		}
		if 1 != c.Control.StopBits && 2 != c.Control.StopBits {
			add("Control.stopBits", "must be 1 or 2, was %d", c.Control.StopBits)
		}
		switch strings.ToUpper(c.Control.Parity) {
		case "", "N", "NONE", "O", "ODD", "E", "EVEN", "M", "MARK", "S", "SPACE":
		default:
			add("Control.parity", "unknown parity %q", c.Control.Parity)
		}
	default:
		add("Control.method", "unknown method %q", c.Control.Method)
	}
	if ControlMethodModbus == c.Control.Method {
		mb := c.Control.Modbus
		if mb.UnitId < 0 || mb.UnitId > 0xFF {
			add("Control.Modbus.unitId", "must be within 0..255, was %d", mb.UnitId)
		}
		checkWord := func(field string, v int) {
			if v < 0 || v > 0xFFFF {
				add(field, "must be within 0..65535, was %d", v)
			}
		}
		checkWord("Control.Modbus.loadRegister", mb.LoadRegister)
		checkWord("Control.Modbus.onValue", mb.OnValue)
		checkWord("Control.Modbus.offValue", mb.OffValue)
		if nil != mb.StateRegister {
			checkWord("Control.Modbus.stateRegister", *mb.StateRegister)
		}
		if nil != mb.BitIndex && (*mb.BitIndex < 0 || *mb.BitIndex > 15) {
			add("Control.Modbus.bitIndex", "must be within 0..15, was %d", *mb.BitIndex)
		}
	}

	if c.Schedule.Enabled {
		if ControlMethodNone == c.Control.Method || "" == c.Control.Method {
			add("Schedule.enabled", "requires a control method")
		}
		if c.Schedule.Latitude < -90 || c.Schedule.Latitude > 90 {
			add("Schedule.latitude", "out of range: %v", c.Schedule.Latitude)
		}
		if c.Schedule.Longitude < -180 || c.Schedule.Longitude > 180 {
			add("Schedule.longitude", "out of range: %v", c.Schedule.Longitude)
		}
		for field, ev := range map[string]string{"Schedule.onEvent": c.Schedule.OnEvent, "Schedule.offEvent": c.Schedule.OffEvent} {
			if EventSunrise != ev && EventSunset != ev {
				add(field, "must be %q or %q, was %q", EventSunrise, EventSunset, ev)
			}
		}
	}

	if 0 == len(errs) {
		return nil
	}
	return errs
}

////

// LoadConfigByName 加载指定文件名的配置信息。
// 配置文件加载顺序：
// 1. 当前运行目录;
// 2. 目录：/etc/edgex/;
// 3. 环境变量"EDGEX_CONFIG"指定的路径;
func LoadConfigByName(fileName string) (*Config, error) {
	searchConfig := func(files ...string) (f string, err error) {
		for _, file := range files {
			if "" == file {
				continue
			}
			if _, err := os.Stat(file); nil == err {
				return file, nil
			}
		}
		return "", ErrConfigNotExist
	}
	file, err := searchConfig(fileName, DefaultConfDir+fileName, os.Getenv(EnvKeyConfig))
	if nil != err {
		return nil, err
	}
	log.Info("加载配置文件：", file)
	return LoadConfigFile(file)
}

// LoadConfigFile 读取指定路径的TOML配置，并检查合法性。
func LoadConfigFile(file string) (*Config, error) {
	config := NewConfig()
	if _, err := toml.DecodeFile(file, config); nil != err {
		return nil, errors.WithMessage(err, fmt.Sprintf("读取配置文件(%s)出错", file))
	}
	return config, config.Validate()
}

// DecodeConfig 从TOML文本读取配置
func DecodeConfig(text string) (*Config, error) {
	config := NewConfig()
	if _, err := toml.Decode(text, config); nil != err {
		return nil, errors.WithMessage(err, "解析配置出错")
	}
	return config, config.Validate()
}

// LoadConfig 加载默认文件名的配置。
func LoadConfig() (*Config, error) {
	return LoadConfigByName(DefaultConfName)
}
