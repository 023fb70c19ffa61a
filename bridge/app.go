package main

import (
	"context"
	"sort"
	"time"

	edgex "github.com/nextabc-lab/edgex-victron"
	"github.com/nextabc-lab/edgex-victron/decode"
	"github.com/nextabc-lab/edgex-victron/engine"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

//
// Author: 陈哈哈 yoojiachen@gmail.com
//

const closeTimeout = 5 * time.Second

func engineOptions(config *edgex.Config) engine.Options {
	devices := make(map[string]string, len(config.Devices))
	for mac, dev := range config.Devices {
		devices[mac] = dev.Name
	}
	derive := engine.DefaultDeriveOptions()
	derive.Enabled = config.Filter.DerivePower
	return engine.Options{
		Devices:             devices,
		ThrottleWindow:      seconds(config.Filter.ThrottleSeconds),
		Thresholds:          config.Filter.Thresholds,
		Derive:              derive,
		AvailabilityTimeout: seconds(config.Availability.TimeoutSeconds),
		SweepInterval:       seconds(config.Availability.IntervalSeconds),
	}
}

func runBridge(ctx edgex.Context) error {
	config := ctx.Config()
	log := ctx.Log()
	topics := ctx.Topics()

	sink := newMqttSink(ctx, topics, config.Globals.MqttRetained, log.Named("sink"))
	eng, err := engine.New(engineOptions(config), sink, log.Named("engine"))
	if nil != err {
		return errors.WithMessage(err, "创建引擎出错")
	}
	decoder, err := decode.Adapt(decode.JSONParser{})
	if nil != err {
		return err
	}
	in, err := newIngest(eng, decoder, config.Devices, log.Named("ingest"))
	if nil != err {
		return err
	}

	shutdown, cancel := context.WithCancel(context.Background())
	defer cancel()
	group, gctx := errgroup.WithContext(shutdown)
	workers := []edgex.Lifecycle{edgex.LifecycleFunc(eng.RunAvailability)}

	// 负载控制
	var lc *loadControl
	if edgex.ControlMethodNone != config.Control.Method && "" != config.Control.Method {
		backend, freshness, err := newLoadBackend(config.Control, log.Named("loadctl"))
		if nil != err {
			return errors.WithMessage(err, "创建负载控制出错")
		}
		lc, err = startControl(shutdown, config, backend, freshness, ctx, topics, sink, eng, log.Named("loadctl"))
		if nil != err {
			return err
		}
		// 提前返回时释放串口和订阅；正常停止时close已执行过，这里不再生效
		defer lc.close(ctx, log)
		if nil != lc.scheduler {
			workers = append(workers, lc.scheduler)
		}
	}

	if config.Bridge.StatsIntervalSeconds > 0 {
		interval := seconds(config.Bridge.StatsIntervalSeconds)
		workers = append(workers, edgex.LifecycleFunc(func(ctx context.Context) error {
			return runStats(ctx, interval, eng, sink)
		}))
	}
	for _, w := range workers {
		worker := w
		group.Go(func() error { return worker.Run(gctx) })
	}
	if config.Bridge.Inspect {
		edgex.PublishInspect(gctx, ctx, inspectNode(config, eng))
	}

	if err := ctx.Subscribe(topics.Ingest(), in.handle); nil != err {
		cancel()
		_ = group.Wait()
		return err
	}
	log.Infof("桥接服务已启动，设备数：%d，负载控制：%s", len(config.Devices), config.Control.Method)

	termErr := ctx.TermAwait()

	// 停止顺序：停止接收 → 停止后台任务 → 设备离线 → 等待负载控制完成
	ctx.Unsubscribe(topics.Ingest())
	if nil != lc {
		lc.unsubscribe(ctx)
	}
	cancel()
	if err := group.Wait(); nil != err {
		log.Error("后台任务出错: ", err)
	}
	eng.Close()
	if nil != lc {
		lc.close(ctx, log)
	}
	sink.PublishStats(eng.Snapshot())
	return termErr
}

func runStats(ctx context.Context, interval time.Duration, eng *engine.Engine, sink *mqttSink) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			sink.PublishStats(eng.Snapshot())
		case <-ctx.Done():
			return nil
		}
	}
}

// inspectNode 生成桥接节点的Inspect信息
func inspectNode(config *edgex.Config, eng *engine.Engine) func() edgex.BridgeNode {
	return func() edgex.BridgeNode {
		node := edgex.BridgeNode{ControlMethod: config.Control.Method}
		macs := make([]string, 0, len(config.Devices))
		for mac := range config.Devices {
			macs = append(macs, mac)
		}
		sort.Strings(macs)
		for _, mac := range macs {
			id, err := engine.ParseIdentity(mac)
			if nil != err {
				continue
			}
			state := engine.AvailabilityUnknown
			if rec, ok := eng.Device(id); ok {
				state = rec.Availability
			}
			node.Devices = append(node.Devices, &edgex.DeviceNode{
				Identity: id.String(),
				Name:     config.Devices[mac].Name,
				State:    state.String(),
			})
		}
		return node
	}
}
