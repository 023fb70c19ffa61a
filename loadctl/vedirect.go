package loadctl

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"time"

	edgex "github.com/nextabc-lab/edgex-victron"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

//
// Author: 陈哈哈 yoojiachen@gmail.com
//

const (
	checksumKey    = "Checksum"
	maxPendingLine = 4096
)

type VEDirectOptions struct {
	CommandOn  string
	CommandOff string
	// 上报字段的有效期
	Freshness time.Duration
	// 按顺序查找负载状态字段
	StateKeys []string
	Now       func() time.Time
}

func DefaultVEDirectOptions() VEDirectOptions {
	return VEDirectOptions{
		CommandOn:  ":LOAD=1\r",
		CommandOff: ":LOAD=0\r",
		Freshness:  30 * time.Second,
		StateKeys:  []string{"LOAD", "Load", "Relay"},
	}
}

type writeRequest struct {
	payload []byte
	done    chan error
}

// VEDirect 使用VE.Direct文本协议。读取协程独占串口：把周期性的KEY<TAB>VALUE数据块
// 解析进带过期时间的字段表，同时执行交给它的写请求。
type VEDirect struct {
	session  *Session
	opts     VEDirectOptions
	log      *zap.SugaredLogger
	table    *edgex.ExpiringMap
	writes   chan writeRequest
	observer func(LoadState)

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

func NewVEDirect(session *Session, opts VEDirectOptions, log *zap.SugaredLogger) (*VEDirect, error) {
	if nil == session {
		return nil, newError(KindConfig, "vedirect", errors.New("no session"))
	}
	if "" == opts.CommandOn || "" == opts.CommandOff {
		return nil, newError(KindConfig, "vedirect", errors.New("empty command token"))
	}
	if 0 == len(opts.StateKeys) {
		opts.StateKeys = DefaultVEDirectOptions().StateKeys
	}
	if nil == opts.Now {
		opts.Now = time.Now
	}
	return &VEDirect{
		session: session,
		opts:    opts,
		log:     log,
		table:   edgex.NewExpiringMapWithClock(opts.Now),
		writes:  make(chan writeRequest),
	}, nil
}

func (v *VEDirect) Name() string {
	return "vedirect"
}

// Observe 设置回调，读取协程每收到一个带负载状态的数据块时调用
func (v *VEDirect) Observe(fn func(LoadState)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.observer = fn
}

// Start 启动读取协程
func (v *VEDirect) Start(ctx context.Context) error {
	_, err := v.ensureReader()
	return err
}

func (v *VEDirect) ensureReader() (chan struct{}, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if nil != v.stopped {
		select {
		case <-v.stopped:
		default:
			return v.stopped, nil
		}
	}
	port, err := v.session.Port()
	if nil != err {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	v.cancel, v.stopped = cancel, stopped
	go v.readLoop(ctx, port, stopped)
	return stopped, nil
}

func (v *VEDirect) readLoop(ctx context.Context, port Port, stopped chan struct{}) {
	defer close(stopped)
	buf := make([]byte, 256)
	var pending []byte
	block := make(map[string]string)
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-v.writes:
			if _, err := port.Write(req.payload); nil != err {
				req.done <- v.session.Fail("vedirect write", err)
				return
			}
			req.done <- nil
			continue
		default:
		}

		n, err := port.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			for {
				i := bytes.IndexByte(pending, '\n')
				if i < 0 {
					break
				}
				v.consumeLine(string(pending[:i]), block)
				pending = pending[i+1:]
			}
			if len(pending) > maxPendingLine {
				pending = pending[:0]
			}
		}
		if nil != err && io.EOF != err {
			if nil == ctx.Err() {
				v.session.Fail("vedirect read", err)
			}
			return
		}
	}
}

// consumeLine 处理一行文本。Checksum字段表示数据块结束。
func (v *VEDirect) consumeLine(line string, block map[string]string) {
	line = strings.TrimRight(line, "\r")
	if "" == line || strings.HasPrefix(line, ":") {
		return
	}
	parts := strings.SplitN(line, "\t", 2)
	if 2 != len(parts) {
		return
	}
	key := strings.TrimSpace(parts[0])
	if checksumKey != key {
		block[key] = strings.TrimSpace(parts[1])
		return
	}
	if 0 == len(block) {
		return
	}
	v.table.PutAll(block, v.opts.Freshness)
	state := v.stateOf(func(k string) (string, bool) {
		val, ok := block[k]
		return val, ok
	})
	for k := range block {
		delete(block, k)
	}
	v.mu.Lock()
	observer := v.observer
	v.mu.Unlock()
	if StateUnknown != state && nil != observer {
		observer(state)
	}
}

func (v *VEDirect) stateOf(lookup func(string) (string, bool)) LoadState {
	for _, key := range v.opts.StateKeys {
		if raw, ok := lookup(key); ok {
			return ParseReportedState(raw)
		}
	}
	return StateUnknown
}

// ParseReportedState 解析ON/OFF类的字段值
func ParseReportedState(raw string) LoadState {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "on", "1", "yes", "true":
		return StateOn
	case "off", "0", "no", "false":
		return StateOff
	default:
		return StateUnknown
	}
}

// Fields 返回未过期的上报字段
func (v *VEDirect) Fields() map[string]string {
	out := make(map[string]string)
	for k, val := range v.table.Snapshot() {
		out[k] = val.(string)
	}
	return out
}

// Read 从字段表读取状态，过期或缺失时为UNKNOWN
func (v *VEDirect) Read(_ context.Context) (LoadState, error) {
	return v.stateOf(func(k string) (string, bool) {
		val, ok := v.table.Get(k)
		if !ok {
			return "", false
		}
		return val.(string), true
	}), nil
}

// Write 把指令交给读取协程并等待发送完成。设备在之后的数据块中上报结果，这里不确认状态。
// 指令交出后只等待收发超时，不再响应ctx取消。
func (v *VEDirect) Write(ctx context.Context, cmd LoadCommand) (WriteResult, error) {
	const op = "vedirect write"
	token := v.opts.CommandOff
	if CommandOn == cmd {
		token = v.opts.CommandOn
	}
	if err := canceledBefore(ctx, op); nil != err {
		return WriteResult{}, err
	}
	stopped, err := v.ensureReader()
	if nil != err {
		return WriteResult{}, err
	}
	timer := time.NewTimer(v.session.ExchangeTimeout())
	defer timer.Stop()
	req := writeRequest{payload: []byte(token), done: make(chan error, 1)}
	select {
	case v.writes <- req:
	case <-stopped:
		return WriteResult{}, newError(KindIO, op, ErrNotOpen)
	case <-timer.C:
		return WriteResult{}, newError(KindIO, op, ErrTimeout)
	case <-ctx.Done():
		return WriteResult{}, newError(KindCanceled, op, ctx.Err())
	}
	select {
	case err := <-req.done:
		if nil != err {
			return WriteResult{}, err
		}
	case <-timer.C:
		return WriteResult{}, newError(KindIO, op, ErrTimeout)
	}
	v.log.Debug("VE.Direct指令已发送: ", cmd)
	return WriteResult{Commanded: cmd.State()}, nil
}

// Close 停止读取协程并关闭串口
func (v *VEDirect) Close() error {
	v.mu.Lock()
	cancel, stopped := v.cancel, v.stopped
	v.mu.Unlock()
	if nil != cancel {
		cancel()
		<-stopped
	}
	return v.session.Close()
}
