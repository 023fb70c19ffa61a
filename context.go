package edgex

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

//
// Author: 陈哈哈 yoojiachen@gmail.com
//

// Context 是一个提供基础通讯环境和参数设置的对象。为各个组件提供MQTT通讯能力。
type Context interface {
	NodeId() string

	// 返回Log对象
	Log() *zap.SugaredLogger

	// 当设置了"LogVerbose"且为"true"时触发冗余日志输出操作。
	LogIfVerbose(fn func(log *zap.SugaredLogger))

	// Config 返回启动时加载的配置
	Config() *Config

	// Topics 返回基于BaseTopic的Topic生成器
	Topics() Topics

	// Publish 发送MQTT消息，并等待Broker确认
	Publish(topic string, payload []byte, retained bool) error

	// PublishAsync 发送MQTT消息，不等待Broker确认
	PublishAsync(topic string, payload []byte, retained bool)

	// Subscribe 订阅Topic。回调函数在MQTT客户端的消息线程中按顺序执行。
	Subscribe(topic string, handler func(topic string, payload []byte)) error

	// Unsubscribe 取消订阅
	Unsubscribe(topics ...string)

	// TermChan 返回监听系统中断退出信号的通道
	TermChan() <-chan os.Signal

	// TermAwait 阻塞等待系统中断退出信号
	TermAwait() error

	// Destroy 由Run自动调用
	destroy()
}

const (
	EnvKeyMQBroker       = "EDGEX_MQTT_BROKER"
	EnvKeyMQUsername     = "EDGEX_MQTT_USERNAME"
	EnvKeyMQPassword     = "EDGEX_MQTT_PASSWORD"
	EnvKeyMQQOS          = "EDGEX_MQTT_QOS"
	EnvKeyMQRetained     = "EDGEX_MQTT_RETAINED"
	EnvKeyMQCleanSession = "EDGEX_MQTT_CLEAN_SESSION"
	EnvKeyMQKeepAlive    = "EDGEX_MQTT_KEEPALIVE"
	EnvKeyConfig         = "EDGEX_CONFIG"
	EnvKeyLogVerbose     = "EDGEX_LOG_VERBOSE"
	EnvKeyLogLevel       = "EDGEX_LOG_LEVEL"

	MqttBrokerDefault  = "tcp://localhost:1883"
	MqttClientIdHeader = "EdgeX-Victron"

	DefaultConfName = "application.toml"
	DefaultConfDir  = "/etc/edgex/"

	publishTimeout = time.Second * 5
)

////

// Run 运行EdgeX节点服务
func Run(config *Config, application func(ctx Context) error) {
	ctx := CreateContext(config)
	log.Info("启动EdgeX-App")
	defer func() {
		log.Info("停止EdgeX-App")
		ctx.destroy()
	}()
	if err := ctx.initial(); nil != err {
		log.Error("EdgeX-App初始化出错: ", err)
		return
	}
	if err := application(ctx); nil != err {
		log.Error("EdgeX-App出错: ", err)
	}
}

// CreateContext 使用指定配置创建Context对象，MQTT连接在Run中建立。
func CreateContext(config *Config) *NodeContext {
	if "" == config.NodeId {
		config.NodeId = uuid.NewString()[:8]
	}
	if "" != config.Globals.LogLevel {
		SetLogLevel(config.Globals.LogLevel)
	}
	if config.Globals.LogVerbose {
		SetVerbose(true)
	}
	return &NodeContext{
		config: config,
		topics: NewTopics(config.Bridge.BaseTopic),
	}
}

//// Context实现

type NodeContext struct {
	config     *Config
	topics     Topics
	mqttClient mqtt.Client
}

func (c *NodeContext) initial() error {
	globals := &c.config.Globals
	opts := mqtt.NewClientOptions()
	clientId := fmt.Sprintf("%s:%s", MqttClientIdHeader, c.config.NodeId)
	opts.SetClientID(clientId)
	opts.SetWill(c.topics.BridgeState(), PayloadOffline, globals.MqttQoS, true)
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		// 每次(重新)连接后都上报在线状态
		client.Publish(c.topics.BridgeState(), globals.MqttQoS, true, PayloadOnline)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("Mqtt客户端连接断开: ", err)
	})
	mqttSetOptions(opts, globals)
	c.mqttClient = mqtt.NewClient(opts)
	log.Info("Mqtt客户端连接Broker: ", globals.MqttBroker)

	// 连续重试
	mqttAwaitConnection(c.mqttClient, globals.MqttMaxRetry)

	if !c.mqttClient.IsConnected() {
		return errors.New("Mqtt客户端连接无法连接Broker")
	}
	log.Info("Mqtt客户端连接成功：" + clientId)
	return nil
}

func (c *NodeContext) NodeId() string {
	return c.config.NodeId
}

func (c *NodeContext) Config() *Config {
	return c.config
}

func (c *NodeContext) Topics() Topics {
	return c.topics
}

func (c *NodeContext) destroy() {
	if nil == c.mqttClient || !c.mqttClient.IsConnected() {
		return
	}
	if err := c.Publish(c.topics.BridgeState(), []byte(PayloadOffline), true); nil != err {
		log.Error("发送离线状态出错: ", err)
	}
	c.mqttClient.Disconnect(c.config.Globals.MqttQuitMillSec)
}

func (c *NodeContext) Publish(topic string, payload []byte, retained bool) error {
	c.checkInit()
	token := c.mqttClient.Publish(topic, c.config.Globals.MqttQoS, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return errors.Errorf("publish timeout: %s", topic)
	}
	return errors.WithMessage(token.Error(), "publish "+topic)
}

func (c *NodeContext) PublishAsync(topic string, payload []byte, retained bool) {
	c.checkInit()
	c.mqttClient.Publish(topic, c.config.Globals.MqttQoS, retained, payload)
}

func (c *NodeContext) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	c.checkInit()
	log.Info("开启监听事件: ", topic)
	token := c.mqttClient.Subscribe(topic, c.config.Globals.MqttQoS, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if token.Wait() && nil != token.Error() {
		return errors.WithMessage(token.Error(), "subscribe "+topic)
	}
	return nil
}

func (c *NodeContext) Unsubscribe(topics ...string) {
	c.checkInit()
	for _, t := range topics {
		log.Info("取消监听事件: ", t)
	}
	if token := c.mqttClient.Unsubscribe(topics...); token.WaitTimeout(publishTimeout) && nil != token.Error() {
		log.Error("取消监听事件出错：", token.Error())
	}
}

func (c *NodeContext) TermChan() <-chan os.Signal {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGTERM, syscall.SIGINT)
	signal.Ignore(syscall.SIGPIPE)
	return sig
}

func (c *NodeContext) TermAwait() error {
	<-c.TermChan()
	return nil
}

func (c *NodeContext) Log() *zap.SugaredLogger {
	return log
}

func (c *NodeContext) LogIfVerbose(fn func(log *zap.SugaredLogger)) {
	if c.config.Globals.LogVerbose {
		fn(log)
	}
}

func (c *NodeContext) checkInit() {
	if nil == c.mqttClient {
		log.Panic("Context未初始化")
	}
}
