package edgex

import (
	"fmt"
	"strings"
)

//
// Author: 陈哈哈 yoojiachen@gmail.com
//

const (
	topicBridge       = "bridge"
	topicLoad         = "load"
	topicState        = "state"
	topicAvailability = "availability"
	topicStats        = "stats"
	topicInspect      = "inspect"
	topicSet          = "set"
	topicIngest       = "ingest"

	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Topics 基于BaseTopic生成各类消息的Topic
type Topics struct {
	base string
}

func NewTopics(base string) Topics {
	checkTopic(base)
	return Topics{base: strings.TrimRight(base, "/")}
}

func (t Topics) Base() string {
	return t.base
}

// Metric 单个指标：<base>/<device>/<metric>
func (t Topics) Metric(device, metric string) string {
	return fmt.Sprintf("%s/%s/%s", t.base, device, metric)
}

// DeviceState 设备聚合状态：<base>/<device>/state
func (t Topics) DeviceState(device string) string {
	return t.Metric(device, topicState)
}

// Availability 设备在线状态：<base>/<device>/availability
func (t Topics) Availability(device string) string {
	return t.Metric(device, topicAvailability)
}

func (t Topics) BridgeState() string {
	return t.Metric(topicBridge, topicState)
}

func (t Topics) BridgeStats() string {
	return t.Metric(topicBridge, topicStats)
}

func (t Topics) BridgeInspect() string {
	return t.Metric(topicBridge, topicInspect)
}

func (t Topics) LoadState() string {
	return t.Metric(topicLoad, topicState)
}

func (t Topics) LoadSet() string {
	return t.Metric(topicLoad, topicSet)
}

// Ingest 外部扫描程序上报广播帧的Topic：<base>/ingest/#
func (t Topics) Ingest() string {
	return fmt.Sprintf("%s/%s/#", t.base, topicIngest)
}

// IsReserved 返回设备名称是否与桥接服务自身使用的Topic冲突
func IsReserved(device string) bool {
	switch device {
	case topicBridge, topicLoad, topicIngest:
		return true
	default:
		return false
	}
}

func checkTopic(topic string) {
	if strings.HasPrefix(topic, "/") {
		log.Panicf("Topic MUST NOT starts with '/', was: %s", topic)
	}
}
