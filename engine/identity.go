package engine

import (
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
)

//
// Author: 陈哈哈 yoojiachen@gmail.com
//

// IdentitySize 硬件地址字节数
const IdentitySize = 6

// DeviceIdentity 规范格式的硬件地址：冒号分隔的大写十六进制，如"AA:BB:CC:DD:EE:FF"
type DeviceIdentity string

var ErrInvalidIdentity = errors.New("invalid device identity")

// IdentityFromBytes 格式化原始硬件地址
func IdentityFromBytes(b []byte) (DeviceIdentity, error) {
	if len(b) != IdentitySize {
		return "", errors.Wrapf(ErrInvalidIdentity, "expected %d bytes, got %d", IdentitySize, len(b))
	}
	parts := make([]string, len(b))
	for i, octet := range b {
		parts[i] = strings.ToUpper(hex.EncodeToString([]byte{octet}))
	}
	return DeviceIdentity(strings.Join(parts, ":")), nil
}

// ParseIdentity 接受"aa:bb:cc:dd:ee:ff"、"AA-BB-CC-DD-EE-FF"或"aabbccddeeff"，返回规范格式
func ParseIdentity(s string) (DeviceIdentity, error) {
	raw := strings.NewReplacer(":", "", "-", "").Replace(strings.TrimSpace(s))
	b, err := hex.DecodeString(raw)
	if nil != err {
		return "", errors.Wrapf(ErrInvalidIdentity, "%q", s)
	}
	id, err := IdentityFromBytes(b)
	if nil != err {
		return "", errors.WithMessagef(err, "%q", s)
	}
	return id, nil
}

// MustParseIdentity 解析失败时panic
func MustParseIdentity(s string) DeviceIdentity {
	id, err := ParseIdentity(s)
	if nil != err {
		panic(err)
	}
	return id
}

func (id DeviceIdentity) String() string {
	return string(id)
}

// Equal 不区分大小写比较
func (id DeviceIdentity) Equal(other DeviceIdentity) bool {
	return strings.EqualFold(string(id), string(other))
}
