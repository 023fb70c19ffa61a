package loadctl

import "context"

//
// Author: 陈哈哈 yoojiachen@gmail.com
//

// WriteResult 写入成功后后端掌握的状态。无回读时Confirmed为StateUnknown。
type WriteResult struct {
	Commanded LoadState
	Confirmed LoadState
}

// Backend 负载控制硬件后端。调用由Controller串行化。
type Backend interface {
	Name() string
	// Start 准备后端。串口打开失败不是致命错误，下次调用时重试。
	Start(ctx context.Context) error
	Write(ctx context.Context, cmd LoadCommand) (WriteResult, error)
	// Read 返回设备上报的负载状态，无法判断时为StateUnknown
	Read(ctx context.Context) (LoadState, error)
	Close() error
}

// Observer 由能主动获知负载状态的后端实现
type Observer interface {
	Observe(fn func(LoadState))
}
