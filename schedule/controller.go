package schedule

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nextabc-lab/edgex-victron/loadctl"
)

//
// Author: 陈哈哈 yoojiachen@gmail.com
//

const (
	maxSleep       = time.Hour
	defaultTimeout = 30 * time.Second
)

// Commander 定时控制所需的负载控制接口
type Commander interface {
	SetLoad(ctx context.Context, cmd loadctl.LoadCommand) (loadctl.LoadState, error)
}

type Options struct {
	// 每条计划指令的超时，包括排队等待手动指令的时间
	CommandTimeout time.Duration
	Now            func() time.Time
	After          func(time.Duration) <-chan time.Time
	// 每条计划指令执行后调用
	OnFire func(Action, loadctl.LoadState, error)
}

// Controller 在计划时刻执行开关动作。只在计划时刻动作，不会覆盖手动指令设置的状态。
type Controller struct {
	window    Window
	commander Commander
	log       *zap.SugaredLogger
	opts      Options

	mu        sync.Mutex
	lastFired time.Time
}

func New(window Window, commander Commander, opts Options, log *zap.SugaredLogger) *Controller {
	if nil == opts.Now {
		opts.Now = time.Now
	}
	if nil == opts.After {
		opts.After = time.After
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = defaultTimeout
	}
	return &Controller{
		window:    window,
		commander: commander,
		log:       log,
		opts:      opts,
	}
}

// NextAction 返回晚于now且尚未执行的最早动作
func (c *Controller) NextAction(now time.Time) (Action, bool) {
	c.mu.Lock()
	after := c.lastFired
	c.mu.Unlock()
	if now.After(after) {
		after = now
	}
	day := time.Date(after.UTC().Year(), after.UTC().Month(), after.UTC().Day(), 0, 0, 0, 0, time.UTC)
	var next Action
	found := false
	// 偏移量和经度可能使事件落在相邻的UTC日
	for d := -1; d <= 2; d++ {
		for _, a := range Plan(c.window, day.AddDate(0, 0, d)) {
			if !a.At.After(after) {
				continue
			}
			if !found || a.At.Before(next.At) {
				next, found = a, true
			}
		}
	}
	return next, found
}

// Run 依次等待并执行计划动作，直到ctx结束
func (c *Controller) Run(ctx context.Context) error {
	c.log.Infof("启动定时控制，纬度：%v，经度：%v，开：%v，关：%v",
		c.window.Latitude, c.window.Longitude, c.window.On.Enabled, c.window.Off.Enabled)
	for nil == ctx.Err() {
		now := c.opts.Now()
		act, ok := c.NextAction(now)
		wait := maxSleep
		if ok {
			wait = act.At.Sub(now)
			c.log.Debugf("下一计划动作：%s(%s) @ %s", act.Command, act.Event, act.At)
		}
		if !ok || wait > maxSleep {
			select {
			case <-ctx.Done():
				return nil
			case <-c.opts.After(maxSleep):
			}
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-c.opts.After(wait):
		}
		c.fire(ctx, act)
	}
	return nil
}

func (c *Controller) fire(ctx context.Context, act Action) {
	c.mu.Lock()
	c.lastFired = act.At
	c.mu.Unlock()

	// 已开始的指令不随停止信号中断，只受指令超时限制
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.CommandTimeout)
	defer cancel()
	st, err := c.commander.SetLoad(cctx, act.Command)
	if nil != err {
		c.log.Errorf("计划指令[%s](%s)执行失败: %v", act.Command, act.Event, err)
	} else {
		c.log.Infof("计划指令[%s](%s)已执行，状态：%s", act.Command, act.Event, st)
	}
	if nil != c.opts.OnFire {
		c.opts.OnFire(act, st, err)
	}
}
