package decode

import (
	"encoding/hex"
	"encoding/json"

	"github.com/pkg/errors"
)

//
// Author: 陈哈哈 yoojiachen@gmail.com
//

// Envelope 外部扫描器转发到接入Topic的一条广播。
// Data为十六进制的厂商数据；Payload为已解码的文档。
type Envelope struct {
	MAC     string          `json:"mac"`
	RSSI    int             `json:"rssi"`
	Data    string          `json:"data,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ParseEnvelope 解析接入消息，返回消息体和交给解码器的数据
func ParseEnvelope(msg []byte) (Envelope, []byte, error) {
	var env Envelope
	if err := json.Unmarshal(msg, &env); nil != err {
		return env, nil, errors.Wrap(err, "ingest envelope")
	}
	if "" == env.MAC {
		return env, nil, errors.New("ingest envelope: missing mac")
	}
	switch {
	case "" != env.Data:
		raw, err := hex.DecodeString(env.Data)
		if nil != err {
			return env, nil, errors.Wrap(err, "ingest envelope: data")
		}
		return env, raw, nil
	case 0 != len(env.Payload):
		return env, env.Payload, nil
	default:
		return env, nil, errors.New("ingest envelope: no data")
	}
}
