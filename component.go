package edgex

import "context"

//
// Author: 陈哈哈 yoojiachen@gmail.com
//

// Lifecycle 是后台组件的生命周期接口。Run 阻塞直到ctx被取消。
type Lifecycle interface {
	Run(ctx context.Context) error
}

// LifecycleFunc 将普通函数适配为 Lifecycle
type LifecycleFunc func(ctx context.Context) error

func (f LifecycleFunc) Run(ctx context.Context) error {
	return f(ctx)
}
