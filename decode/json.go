package decode

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

//
// Author: 陈哈哈 yoojiachen@gmail.com
//

// JSONParser 接受外部扫描器已解密的广播：{"device_type": "...", "values": {...}}，不使用密钥
type JSONParser struct{}

func (JSONParser) Decode(_ string, _, raw []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]interface{}
	if err := dec.Decode(&out); nil != err {
		return nil, errors.Wrap(err, "json advertisement")
	}
	return out, nil
}
