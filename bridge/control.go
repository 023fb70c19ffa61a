package main

import (
	"context"
	"time"

	edgex "github.com/nextabc-lab/edgex-victron"
	"github.com/nextabc-lab/edgex-victron/engine"
	"github.com/nextabc-lab/edgex-victron/loadctl"
	"github.com/nextabc-lab/edgex-victron/schedule"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

//
// Author: 陈哈哈 yoojiachen@gmail.com
//

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// newLoadBackend 根据配置创建串口会话和负载控制后端
func newLoadBackend(cc edgex.ControlConfig, log *zap.SugaredLogger) (loadctl.Backend, time.Duration, error) {
	session := loadctl.NewSerialSession(cc, log)
	switch cc.Method {
	case edgex.ControlMethodVEDirect:
		freshness := seconds(cc.VEDirect.FreshnessSeconds)
		backend, err := loadctl.NewVEDirect(session, loadctl.VEDirectOptions{
			CommandOn:  cc.VEDirect.CommandOn,
			CommandOff: cc.VEDirect.CommandOff,
			Freshness:  freshness,
			StateKeys:  cc.VEDirect.StateKeys,
		}, log.Named("vedirect"))
		return backend, freshness, err

	case edgex.ControlMethodModbus:
		backend, err := loadctl.NewModbus(session, loadctl.ModbusOptionsOf(cc.Modbus), log.Named("modbus"))
		return backend, 0, err

	default:
		return nil, 0, errors.Errorf("unknown control method: %s", cc.Method)
	}
}

func scheduleWindow(sc edgex.ScheduleConfig) schedule.Window {
	return schedule.Window{
		Latitude:  sc.Latitude,
		Longitude: sc.Longitude,
		On: schedule.Trigger{
			Enabled: sc.OnEnabled,
			Event:   sc.OnEvent,
			Offset:  time.Duration(sc.OnOffsetMinutes) * time.Minute,
		},
		Off: schedule.Trigger{
			Enabled: sc.OffEnabled,
			Event:   sc.OffEvent,
			Offset:  time.Duration(sc.OffOffsetMinutes) * time.Minute,
		},
	}
}

////

// subscriber 是MQTT订阅能力的最小子集
type subscriber interface {
	Subscribe(topic string, handler func(topic string, payload []byte)) error
	Unsubscribe(topics ...string)
}

type loadControl struct {
	ctl       *loadctl.Controller
	scheduler *schedule.Controller
	topics    []string
}

// startControl 启动负载控制、订阅控制指令并创建定时控制。
// 任何一步出错时，已订阅的Topic被取消，后端被关闭。
func startControl(ctx context.Context, config *edgex.Config, backend loadctl.Backend, freshness time.Duration,
	sub subscriber, topics edgex.Topics, sink *mqttSink, eng *engine.Engine, log *zap.SugaredLogger) (lc *loadControl, err error) {
	var window schedule.Window
	if config.Schedule.Enabled {
		window = scheduleWindow(config.Schedule)
		if err := window.Validate(); nil != err {
			_ = backend.Close()
			return nil, errors.WithMessage(err, "定时控制配置错误")
		}
	}

	ctl := loadctl.New(backend, loadctl.Options{
		Freshness: freshness,
		OnState:   sink.PublishLoadState,
		OnAction: func(loadctl.LoadCommand, error) {
			eng.Counters().LoadActions.Inc()
		},
	}, log)
	lc = &loadControl{ctl: ctl}
	defer func() {
		if nil != err {
			lc.close(sub, log)
			lc = nil
		}
	}()

	if err := ctl.Start(ctx); nil != err {
		return lc, errors.WithMessage(err, "启动负载控制出错")
	}
	commands := &loadCommands{
		ctl:     ctl,
		timeout: seconds(config.Bridge.CommandTimeoutSeconds),
		log:     log.Named("command"),
	}
	if err := sub.Subscribe(topics.LoadSet(), commands.handle); nil != err {
		return lc, errors.WithMessage(err, "订阅负载控制指令出错")
	}
	lc.topics = append(lc.topics, topics.LoadSet())

	eng.SetLoadStateFunc(func() string { return ctl.State().String() })
	sink.PublishLoadState(ctl.State())

	if config.Schedule.Enabled {
		lc.scheduler = schedule.New(window, ctl, schedule.Options{
			CommandTimeout: seconds(config.Bridge.CommandTimeoutSeconds),
		}, log.Named("schedule"))
	}
	return lc, nil
}

// unsubscribe 停止接收控制指令
func (lc *loadControl) unsubscribe(sub subscriber) {
	if len(lc.topics) > 0 {
		sub.Unsubscribe(lc.topics...)
		lc.topics = nil
	}
}

// close 取消订阅并等待进行中的指令结束后关闭后端
func (lc *loadControl) close(sub subscriber, log *zap.SugaredLogger) {
	lc.unsubscribe(sub)
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := lc.ctl.Close(ctx); nil != err {
		log.Error("关闭负载控制出错: ", err)
	}
}

// loadCommands 处理<base>/load/set消息。控制指令在独立协程中执行，不阻塞MQTT消息线程。
type loadCommands struct {
	ctl     *loadctl.Controller
	timeout time.Duration
	log     *zap.SugaredLogger
	done    chan loadctl.LoadState
}

func (h *loadCommands) handle(_ string, payload []byte) {
	cmd, err := loadctl.ParseCommand(string(payload))
	if nil != err {
		h.log.Warn("无法识别的负载控制指令: ", string(payload))
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()
		state, err := h.ctl.SetLoad(ctx, cmd)
		if nil != err {
			h.log.Errorf("负载控制[%s]出错，当前状态：%s，错误：%v", cmd, state, err)
		} else {
			h.log.Infof("负载控制[%s]完成，当前状态：%s", cmd, state)
		}
		if nil != h.done {
			h.done <- state
		}
	}()
}
