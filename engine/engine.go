package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

//
// Author: 陈哈哈 yoojiachen@gmail.com
//

// Sink 接收引擎决定发送的全部数据。调用时引擎持有锁，实现不能阻塞，也不能回调引擎。
type Sink interface {
	PublishMetric(device, metric string, value float64)
	PublishState(device string, state AggregatedState)
	PublishAvailability(device string, online bool)
}

// AggregatedState 每帧的聚合状态
type AggregatedState struct {
	Identity   DeviceIdentity `json:"mac"`
	RSSI       int            `json:"rssi"`
	DeviceType string         `json:"type"`
	Values     MetricSet      `json:"values"`
}

// Frame 一帧已解码的遥测数据
type Frame struct {
	Identity   DeviceIdentity
	RSSI       int
	DeviceType string
	Fields     map[string]float64
	// 为零值时使用引擎时钟
	At time.Time
}

// Outcome HandleFrame的处理结果
type Outcome int

const (
	OutcomeEmitted Outcome = iota
	OutcomeDuplicate
	OutcomeUnknownDevice
	OutcomeClosed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeEmitted:
		return "emitted"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeUnknownDevice:
		return "unknown-device"
	default:
		return "closed"
	}
}

// Result 单帧处理结果
type Result struct {
	Outcome  Outcome
	Decision Decision
}

type Options struct {
	// 硬件地址（任意可接受格式）到设备名称
	Devices             map[string]string
	ThrottleWindow      time.Duration
	Thresholds          map[string]float64
	Derive              DeriveOptions
	AvailabilityTimeout time.Duration
	SweepInterval       time.Duration
	Now                 func() time.Time
}

// Engine 持有设备表和计数器，每个进程一个
type Engine struct {
	log      *zap.SugaredLogger
	sink     Sink
	filter   Filter
	derive   DeriveOptions
	timeout  time.Duration
	interval time.Duration
	now      func() time.Time
	started  time.Time
	counters *Counters

	mu        sync.Mutex
	closed    bool
	names     map[DeviceIdentity]string
	devices   map[DeviceIdentity]*device
	unknown   map[DeviceIdentity]struct{}
	loadState func() string
}

// New 检查设备表并创建Engine。无法解析的地址为配置错误。
func New(opts Options, sink Sink, log *zap.SugaredLogger) (*Engine, error) {
	names := make(map[DeviceIdentity]string, len(opts.Devices))
	for raw, name := range opts.Devices {
		id, err := ParseIdentity(raw)
		if nil != err {
			return nil, errors.WithMessage(err, "device table")
		}
		if _, dup := names[id]; dup {
			return nil, errors.Errorf("device table: duplicate identity %s", id)
		}
		names[id] = name
	}
	now := opts.Now
	if nil == now {
		now = time.Now
	}
	thresholds := make(map[string]float64, len(opts.Thresholds))
	for k, v := range opts.Thresholds {
		thresholds[k] = v
	}
	interval := opts.SweepInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Engine{
		log:      log,
		sink:     sink,
		filter:   Filter{Window: opts.ThrottleWindow, Thresholds: thresholds},
		derive:   opts.Derive,
		timeout:  opts.AvailabilityTimeout,
		interval: interval,
		now:      now,
		started:  now(),
		counters: NewCounters(),
		names:    names,
		devices:  make(map[DeviceIdentity]*device),
		unknown:  make(map[DeviceIdentity]struct{}),
	}, nil
}

func (e *Engine) Counters() *Counters {
	return e.counters
}

// SetLoadStateFunc 设置Snapshot.LoadState的取值函数
func (e *Engine) SetLoadStateFunc(fn func() string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loadState = fn
}

// Name 返回设备名称
func (e *Engine) Name(id DeviceIdentity) (string, bool) {
	name, ok := e.names[id]
	return name, ok
}

// Known 设备是否在配置的设备表中
func (e *Engine) Known(id DeviceIdentity) bool {
	_, ok := e.names[id]
	return ok
}

// HandleDecodeFailure 记录无法解码的帧。不刷新最后活跃时间，只发送错误数据的设备最终会离线。
func (e *Engine) HandleDecodeFailure(id DeviceIdentity, cause error) {
	e.counters.FramesSeen.Inc()
	e.counters.DecodeFailures.Inc()
	e.log.Debugf("解码失败[%s]: %v", id, cause)
}

// HandleFrame 对一帧执行归一化、去重和阈值过滤，并发送结果
func (e *Engine) HandleFrame(f Frame) Result {
	e.counters.FramesSeen.Inc()
	at := f.At
	if at.IsZero() {
		at = e.now()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return Result{Outcome: OutcomeClosed}
	}
	name, known := e.names[f.Identity]
	if !known {
		if len(e.unknown) < maxUnknownIdentities {
			e.unknown[f.Identity] = struct{}{}
		}
		return Result{Outcome: OutcomeUnknownDevice}
	}

	dev, ok := e.devices[f.Identity]
	if !ok {
		dev = &device{
			identity: f.Identity,
			name:     name,
			emit:     NewEmitState(),
		}
		e.devices[f.Identity] = dev
	}
	dev.lastSeen = at
	dev.rssi = f.RSSI
	if "" != f.DeviceType {
		dev.deviceType = f.DeviceType
	}
	e.markOnline(dev)

	set := Normalize(f.Fields, e.derive)
	d := e.filter.Apply(dev.emit, set, at)
	if d.Duplicate {
		e.counters.DedupSkipped.Inc()
		return Result{Outcome: OutcomeDuplicate, Decision: d}
	}
	dev.metrics = set

	for _, metric := range d.Publish.Names() {
		e.sink.PublishMetric(name, metric, d.Publish[metric])
	}
	e.counters.MetricsPublished.Add(int64(len(d.Publish)))
	e.counters.MetricsSuppressed.Add(int64(len(d.Suppressed)))
	e.sink.PublishState(name, AggregatedState{
		Identity:   dev.identity,
		RSSI:       dev.rssi,
		DeviceType: dev.deviceType,
		Values:     d.Aggregate,
	})
	return Result{Outcome: OutcomeEmitted, Decision: d}
}

func (e *Engine) markOnline(dev *device) {
	if AvailabilityOnline == dev.availability {
		return
	}
	dev.availability = AvailabilityOnline
	e.log.Infof("设备上线：%s[%s]", dev.name, dev.identity)
	e.sink.PublishAvailability(dev.name, true)
}

// Sweep 把超时未活跃的设备标记为离线，返回状态变化的设备名
func (e *Engine) Sweep(now time.Time) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.timeout <= 0 {
		return nil
	}
	var changed []string
	for _, dev := range e.devices {
		if AvailabilityOffline == dev.availability {
			continue
		}
		if now.Sub(dev.lastSeen) > e.timeout {
			dev.availability = AvailabilityOffline
			e.log.Infof("设备离线：%s[%s]，最后活跃：%s", dev.name, dev.identity, dev.lastSeen)
			e.sink.PublishAvailability(dev.name, false)
			changed = append(changed, dev.name)
		}
	}
	sort.Strings(changed)
	return changed
}

// RunAvailability 按配置的间隔检查在线状态，直到ctx结束
func (e *Engine) RunAvailability(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.Sweep(e.now())
		case <-ctx.Done():
			return nil
		}
	}
}

// Device 返回设备记录副本
func (e *Engine) Device(id DeviceIdentity) (DeviceRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	dev, ok := e.devices[id]
	if !ok {
		return DeviceRecord{}, false
	}
	return dev.record(), true
}

// Devices 按名称顺序返回全部设备记录副本
func (e *Engine) Devices() []DeviceRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]DeviceRecord, 0, len(e.devices))
	for _, dev := range e.devices {
		out = append(out, dev.record())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Snapshot 采集计数器和设备表
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	known, unknown, loadState := len(e.devices), len(e.unknown), e.loadState
	e.mu.Unlock()

	s := Snapshot{
		UptimeSeconds:      int64(e.now().Sub(e.started) / time.Second),
		FramesSeen:         e.counters.FramesSeen.Load(),
		DecodeFailures:     e.counters.DecodeFailures.Load(),
		MetricsPublished:   e.counters.MetricsPublished.Load(),
		DedupSkipped:       e.counters.DedupSkipped.Load(),
		MetricsSuppressed:  e.counters.MetricsSuppressed.Load(),
		KnownDeviceCount:   known,
		UnknownDeviceCount: unknown,
		LoadActions:        e.counters.LoadActions.Load(),
		LoadState:          "UNKNOWN",
	}
	if nil != loadState {
		s.LoadState = loadState()
	}
	return s
}

// Close 停止接收数据帧，并为仍在线的设备发送离线状态。重复调用无效果。
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	for _, dev := range e.devices {
		if AvailabilityOnline == dev.availability {
			dev.availability = AvailabilityOffline
			e.sink.PublishAvailability(dev.name, false)
		}
	}
	e.log.Info("引擎已关闭")
}
