package main

import (
	"encoding/json"
	"strconv"

	edgex "github.com/nextabc-lab/edgex-victron"
	"github.com/nextabc-lab/edgex-victron/engine"
	"github.com/nextabc-lab/edgex-victron/loadctl"
	"github.com/yoojia/go-jsonx"
	"go.uber.org/zap"
)

//
// Author: 陈哈哈 yoojiachen@gmail.com
//

// publisher 是MQTT发送能力的最小子集
type publisher interface {
	PublishAsync(topic string, payload []byte, retained bool)
}

// mqttSink 将引擎的输出转换为MQTT消息。所有发送都是异步的，不阻塞引擎。
type mqttSink struct {
	pub      publisher
	topics   edgex.Topics
	retained bool
	log      *zap.SugaredLogger
}

func newMqttSink(pub publisher, topics edgex.Topics, retained bool, log *zap.SugaredLogger) *mqttSink {
	return &mqttSink{pub: pub, topics: topics, retained: retained, log: log}
}

func (s *mqttSink) PublishMetric(device, metric string, value float64) {
	payload := strconv.FormatFloat(value, 'f', -1, 64)
	s.pub.PublishAsync(s.topics.Metric(device, metric), []byte(payload), s.retained)
}

func (s *mqttSink) PublishState(device string, state engine.AggregatedState) {
	data, err := json.Marshal(state)
	if nil != err {
		s.log.Error("设备状态序列化出错: ", err)
		return
	}
	s.pub.PublishAsync(s.topics.DeviceState(device), data, s.retained)
}

// PublishAvailability 在线状态总是保留消息
func (s *mqttSink) PublishAvailability(device string, online bool) {
	payload := edgex.PayloadOffline
	if online {
		payload = edgex.PayloadOnline
	}
	s.pub.PublishAsync(s.topics.Availability(device), []byte(payload), true)
}

func (s *mqttSink) PublishLoadState(state loadctl.LoadState) {
	s.pub.PublishAsync(s.topics.LoadState(), []byte(state.String()), true)
}

func (s *mqttSink) PublishStats(snap engine.Snapshot) {
	json := jsonx.NewFatJSON()
	json.Field("uptimeSeconds", snap.UptimeSeconds)
	json.Field("framesSeen", snap.FramesSeen)
	json.Field("decodeFailures", snap.DecodeFailures)
	json.Field("metricsPublished", snap.MetricsPublished)
	json.Field("dedupSkipped", snap.DedupSkipped)
	json.Field("metricsSuppressed", snap.MetricsSuppressed)
	json.Field("knownDeviceCount", snap.KnownDeviceCount)
	json.Field("unknownDeviceCount", snap.UnknownDeviceCount)
	json.Field("loadActions", snap.LoadActions)
	json.Field("loadState", snap.LoadState)
	s.pub.PublishAsync(s.topics.BridgeStats(), json.Bytes(), false)
}
