package edgex

import (
	"context"
	"encoding/json"
	"runtime"

	"github.com/google/uuid"
)

//
// Author: 陈哈哈 chenyongjia@parkingwang.com, yoojiachen@gmail.com
//

// instanceId 每次进程启动生成，用于区分同一NodeId的多次运行
var instanceId = uuid.NewString()

// BridgeNode 消息是桥接节点相关信息的描述
type BridgeNode struct {
	HostOS        string        `json:"hostOS"`        // 系统
	HostArch      string        `json:"hostArch"`      // CPU架构
	NodeId        string        `json:"nodeId"`        // 节点ID
	InstanceId    string        `json:"instanceId"`    // 进程实例ID
	ControlMethod string        `json:"controlMethod"` // 负载控制方式
	Devices       []*DeviceNode `json:"devices"`       // 设备列表
}

// 设备节点信息
type DeviceNode struct {
	Identity string `json:"mac"`  // 设备MAC地址
	Name     string `json:"name"` // 设备名称
	State    string `json:"availability"`
}

// PublishInspect 在启动后1分钟内定时发送Inspect消息
func PublishInspect(shutdown context.Context, ctx Context, nodeFunc func() BridgeNode) {
	go mqttAsyncTickInspect(shutdown, func() {
		mqttSendInspectMessage(ctx, nodeFunc())
	})
}

func mqttSendInspectMessage(ctx Context, node BridgeNode) {
	// 自动更新节点的参数
	if "" == node.HostOS {
		node.HostOS = runtime.GOOS
	}
	if "" == node.HostArch {
		node.HostArch = runtime.GOARCH
	}
	if "" == node.NodeId {
		node.NodeId = ctx.NodeId()
	}
	node.InstanceId = instanceId
	data, err := json.Marshal(node)
	if nil != err {
		log.Error("Inspect数据序列化错误", err)
		return
	}
	if err := ctx.Publish(ctx.Topics().BridgeInspect(), data, true); nil != err {
		log.Error("发送Inspect消息出错", err)
	}
}
