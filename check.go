package edgex

import (
	"strings"

	"github.com/pkg/errors"
)

//
// Author: 陈哈哈 chenyongjia@parkingwang.com, yoojiachen@gmail.com
//

// checkTopicSegment 检查名称可以作为MQTT Topic中的一级使用
func checkTopicSegment(name string) error {
	if "" == name {
		return errors.New("name is required")
	}
	if strings.ContainsAny(name, "/+#") {
		return errors.Errorf("name must not contain '/', '+' or '#': %s", name)
	}
	return nil
}

// CheckName 检查设备名称格式，不合法时返回错误
func CheckName(name string) error {
	return checkTopicSegment(name)
}
