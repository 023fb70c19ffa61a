package main

import (
	"encoding/hex"

	edgex "github.com/nextabc-lab/edgex-victron"
	"github.com/nextabc-lab/edgex-victron/decode"
	"github.com/nextabc-lab/edgex-victron/engine"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

//
// Author: 陈哈哈 yoojiachen@gmail.com
//

// ingest 处理外部扫描程序转发的广播帧：解析信封，解码，交给引擎。
// 单个坏帧只记录日志，不影响后续帧。
type ingest struct {
	engine  *engine.Engine
	decoder decode.Decoder
	keys    map[engine.DeviceIdentity][]byte
	log     *zap.SugaredLogger
}

func newIngest(eng *engine.Engine, decoder decode.Decoder, devices map[string]edgex.DeviceConfig, log *zap.SugaredLogger) (*ingest, error) {
	keys := make(map[engine.DeviceIdentity][]byte, len(devices))
	for mac, dev := range devices {
		id, err := engine.ParseIdentity(mac)
		if nil != err {
			return nil, errors.WithMessage(err, "device "+mac)
		}
		if "" == dev.AdvKey {
			continue
		}
		key, err := hex.DecodeString(dev.AdvKey)
		if nil != err {
			return nil, errors.Wrapf(err, "device %s: advKey", mac)
		}
		keys[id] = key
	}
	return &ingest{engine: eng, decoder: decoder, keys: keys, log: log}, nil
}

func (in *ingest) handle(_ string, payload []byte) {
	env, raw, err := decode.ParseEnvelope(payload)
	if nil != err {
		in.engine.HandleDecodeFailure("", err)
		return
	}
	id, err := engine.ParseIdentity(env.MAC)
	if nil != err {
		in.engine.HandleDecodeFailure("", err)
		return
	}
	// 未配置的设备不解码，只计数
	if !in.engine.Known(id) {
		in.engine.HandleFrame(engine.Frame{Identity: id, RSSI: env.RSSI})
		return
	}
	fields, err := in.decoder.Decode(id.String(), in.keys[id], raw)
	if nil != err {
		in.engine.HandleDecodeFailure(id, err)
		return
	}
	res := in.engine.HandleFrame(engine.Frame{
		Identity:   id,
		RSSI:       env.RSSI,
		DeviceType: fields.DeviceType,
		Fields:     fields.Values,
	})
	in.log.Debugf("处理数据帧[%s]：%s，发送：%d，抑制：%d",
		id, res.Outcome, len(res.Decision.Publish), len(res.Decision.Suppressed))
}
