package loadctl

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

//
// Author: 陈哈哈 yoojiachen@gmail.com
//

type Options struct {
	// 设备上报状态优先于最后指令的有效期。0表示永不过期。
	Freshness time.Duration
	Now       func() time.Time
	// 认定状态变化时调用，按状态变化的先后顺序串行执行
	OnState func(LoadState)
	// 每次写入尝试后调用
	OnAction func(cmd LoadCommand, err error)
}

// Controller 在一个后端上串行执行负载控制，并维护指令/上报两侧的状态模型。
type Controller struct {
	backend Backend
	log     *zap.SugaredLogger
	now     func() time.Time
	opts    Options

	exec chan struct{}

	mu       sync.Mutex
	model    StateModel
	resolved LoadState
	closed   bool

	// 在释放mu之前获取，保证通知顺序与状态变化顺序一致
	notifyMu sync.Mutex
}

func New(backend Backend, opts Options, log *zap.SugaredLogger) *Controller {
	now := opts.Now
	if nil == now {
		now = time.Now
	}
	c := &Controller{
		backend: backend,
		log:     log,
		now:     now,
		opts:    opts,
		exec:    make(chan struct{}, 1),
		model:   StateModel{Freshness: opts.Freshness},
	}
	if o, ok := backend.(Observer); ok {
		o.Observe(c.confirm)
	}
	return c
}

func (c *Controller) Backend() string {
	return c.backend.Name()
}

// Start 打开后端。串口打开失败只记录日志，下次调用时重试。
func (c *Controller) Start(ctx context.Context) error {
	if err := c.backend.Start(ctx); nil != err {
		if IsIO(err) {
			c.log.Warnf("负载控制[%s]未就绪，稍后重试: %v", c.backend.Name(), err)
			return nil
		}
		return err
	}
	return nil
}

// acquire 等待会话空闲，直到ctx结束
func (c *Controller) acquire(ctx context.Context, op string) (func(), error) {
	select {
	case c.exec <- struct{}{}:
	case <-ctx.Done():
		return nil, newError(KindBusy, op, errors.WithMessage(ErrBusy, ctx.Err().Error()))
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		<-c.exec
		return nil, newError(KindClosed, op, ErrClosed)
	}
	return func() { <-c.exec }, nil
}

// SetLoad 下发负载指令，返回认定状态。
// 协议错误或请求发出前被取消时状态不变，通讯故障时状态变为UNKNOWN。
func (c *Controller) SetLoad(ctx context.Context, cmd LoadCommand) (LoadState, error) {
	release, err := c.acquire(ctx, "set load")
	if nil != err {
		return c.State(), err
	}
	defer release()

	result, err := c.backend.Write(ctx, cmd)
	if nil != c.opts.OnAction {
		c.opts.OnAction(cmd, err)
	}
	if nil != err {
		c.log.Errorf("负载指令[%s]执行失败(%s): %v", cmd, c.backend.Name(), err)
		if IsProtocol(err) || IsCanceled(err) {
			return c.State(), err
		}
		return c.update(func(m *StateModel, _ time.Time) { m.Invalidate() }), err
	}
	c.log.Infof("负载指令[%s]已执行，设备确认：%s", cmd, result.Confirmed)
	return c.update(func(m *StateModel, now time.Time) {
		m.Command(result.Commanded, now)
		m.Confirm(result.Confirmed, now)
	}), nil
}

// Refresh 从后端读取设备上报的状态
func (c *Controller) Refresh(ctx context.Context) (LoadState, error) {
	release, err := c.acquire(ctx, "refresh")
	if nil != err {
		return c.State(), err
	}
	defer release()
	st, err := c.backend.Read(ctx)
	if nil != err {
		return c.State(), err
	}
	return c.update(func(m *StateModel, now time.Time) { m.Confirm(st, now) }), nil
}

// State 返回认定状态，不访问硬件
func (c *Controller) State() LoadState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model.Resolve(c.now())
}

func (c *Controller) Halves() (commanded, confirmed LoadState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model.Halves()
}

func (c *Controller) confirm(st LoadState) {
	c.update(func(m *StateModel, now time.Time) { m.Confirm(st, now) })
}

func (c *Controller) update(fn func(m *StateModel, now time.Time)) LoadState {
	c.mu.Lock()
	now := c.now()
	fn(&c.model, now)
	st := c.model.Resolve(now)
	changed := st != c.resolved
	c.resolved = st
	c.notifyMu.Lock()
	c.mu.Unlock()
	defer c.notifyMu.Unlock()
	if changed && nil != c.opts.OnState {
		c.opts.OnState(st)
	}
	return st
}

// Close 等待进行中的收发结束（以ctx为限）后关闭后端。之后的调用返回KindClosed。
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	select {
	case c.exec <- struct{}{}:
		defer func() { <-c.exec }()
	case <-ctx.Done():
		c.log.Warn("负载控制关闭时仍在执行，强制关闭")
	}
	return c.backend.Close()
}
