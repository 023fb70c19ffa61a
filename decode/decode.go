// Package decode 屏蔽把加密广播解析为读数的厂商解析器。
// 厂商接口形式由Adapt在启动时检测一次，处理数据帧时不再判断。
package decode

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/yoojia/go-value"
)

//
// Author: 陈哈哈 yoojiachen@gmail.com
//

var (
	ErrUnsupported = errors.New("decoder does not implement a known parser shape")
	ErrNoValues    = errors.New("advertisement carries no values")
)

// Fields 从一条广播中解析出的数据
type Fields struct {
	DeviceType string
	Values     map[string]float64
}

// Decoder 统一的解码接口
type Decoder interface {
	Decode(identity string, key, raw []byte) (Fields, error)
}

// KeyedParser 当前版本的厂商接口
type KeyedParser interface {
	Decode(identity string, key, raw []byte) (map[string]interface{}, error)
}

// LegacyParser 旧版本的厂商接口，不带设备地址
type LegacyParser interface {
	ParseAdvertisement(raw, key []byte) (map[string]interface{}, error)
}

// Adapt 按impl的接口形式选择适配器
func Adapt(impl interface{}) (Decoder, error) {
	switch p := impl.(type) {
	case Decoder:
		return p, nil
	case KeyedParser:
		return &keyedAdapter{parser: p}, nil
	case LegacyParser:
		return &legacyAdapter{parser: p}, nil
	default:
		return nil, errors.Wrapf(ErrUnsupported, "%T", impl)
	}
}

type keyedAdapter struct {
	parser KeyedParser
}

func (a *keyedAdapter) Decode(identity string, key, raw []byte) (Fields, error) {
	parsed, err := a.parser.Decode(identity, key, raw)
	if nil != err {
		return Fields{}, errors.WithMessage(err, "keyed parser")
	}
	return fieldsOf(parsed)
}

type legacyAdapter struct {
	parser LegacyParser
}

func (a *legacyAdapter) Decode(_ string, key, raw []byte) (Fields, error) {
	parsed, err := a.parser.ParseAdvertisement(raw, key)
	if nil != err {
		return Fields{}, errors.WithMessage(err, "legacy parser")
	}
	return fieldsOf(parsed)
}

// fieldsOf 读取厂商解析结果：{"device_type": ..., "values": {...}}，跳过非数值字段
func fieldsOf(parsed map[string]interface{}) (Fields, error) {
	raw, ok := parsed["values"].(map[string]interface{})
	if !ok || 0 == len(raw) {
		return Fields{}, ErrNoValues
	}
	out := Fields{Values: make(map[string]float64, len(raw))}
	if t, ok := parsed["device_type"]; ok && nil != t {
		out.DeviceType = value.Of(t).String()
	}
	for name, v := range raw {
		if f, ok := toFloat(v); ok {
			out.Values[name] = f
		}
	}
	if 0 == len(out.Values) {
		return Fields{}, ErrNoValues
	}
	return out, nil
}

func toFloat(v interface{}) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case json.Number:
		p, err := n.Float64()
		if nil != err {
			return 0, false
		}
		f = p
	case bool:
		if n {
			f = 1
		}
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if nil != err {
			return 0, false
		}
		f = p
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
