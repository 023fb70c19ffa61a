package loadctl

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

//
// Author: 陈哈哈 yoojiachen@gmail.com
//

type ModbusOptions struct {
	UnitId       byte
	LoadRegister uint16
	OnValue      uint16
	OffValue     uint16
	// 设置后只修改LoadRegister中的一位（读-改-写）
	BitIndex *int
	// 设置后每次写入完成都回读该寄存器
	StateRegister *uint16
}

// Modbus 通过Modbus RTU开关负载：整写寄存器，或只翻转其中一位。
type Modbus struct {
	session *Session
	opts    ModbusOptions
	log     *zap.SugaredLogger
}

func NewModbus(session *Session, opts ModbusOptions, log *zap.SugaredLogger) (*Modbus, error) {
	if nil != opts.BitIndex && (*opts.BitIndex < 0 || *opts.BitIndex > 15) {
		return nil, newError(KindConfig, "modbus", errors.Errorf("bit index %d out of range 0..15", *opts.BitIndex))
	}
	if nil == session {
		return nil, newError(KindConfig, "modbus", errors.New("no session"))
	}
	return &Modbus{session: session, opts: opts, log: log}, nil
}

func (m *Modbus) Name() string {
	return "modbus"
}

// Start 不做任何事，首次收发时打开串口
func (m *Modbus) Start(_ context.Context) error {
	return nil
}

func (m *Modbus) Write(ctx context.Context, cmd LoadCommand) (WriteResult, error) {
	result := WriteResult{Commanded: cmd.State()}
	if nil != m.opts.BitIndex {
		word, err := m.ReadRegister(ctx, m.opts.LoadRegister)
		if nil != err {
			return WriteResult{}, err
		}
		mask := uint16(1) << uint(*m.opts.BitIndex)
		next := word &^ mask
		if CommandOn == cmd {
			next = word | mask
		}
		if next == word {
			m.log.Debugf("负载控制位已是目标值，寄存器：0x%04X，值：0x%04X", m.opts.LoadRegister, word)
			result.Confirmed = m.bitState(word)
			return result, nil
		}
		if err := m.WriteRegister(ctx, m.opts.LoadRegister, next); nil != err {
			return WriteResult{}, err
		}
	} else {
		value := m.opts.OffValue
		if CommandOn == cmd {
			value = m.opts.OnValue
		}
		if err := m.WriteRegister(ctx, m.opts.LoadRegister, value); nil != err {
			return WriteResult{}, err
		}
	}
	if nil != m.opts.StateRegister {
		st, err := m.Read(context.WithoutCancel(ctx))
		if nil != err {
			return WriteResult{}, err
		}
		result.Confirmed = st
	}
	return result, nil
}

// Read 解析StateRegister；未配置时状态为UNKNOWN
func (m *Modbus) Read(ctx context.Context) (LoadState, error) {
	if nil == m.opts.StateRegister {
		return StateUnknown, nil
	}
	v, err := m.ReadRegister(ctx, *m.opts.StateRegister)
	if nil != err {
		return StateUnknown, err
	}
	return m.interpret(v), nil
}

func (m *Modbus) interpret(v uint16) LoadState {
	if nil != m.opts.BitIndex {
		return m.bitState(v)
	}
	switch v {
	case m.opts.OnValue:
		return StateOn
	case m.opts.OffValue:
		return StateOff
	default:
		return StateUnknown
	}
}

func (m *Modbus) bitState(word uint16) LoadState {
	if word&(1<<uint(*m.opts.BitIndex)) != 0 {
		return StateOn
	}
	return StateOff
}

// ReadRegister 读一个保持寄存器（功能码0x03）
func (m *Modbus) ReadRegister(ctx context.Context, register uint16) (uint16, error) {
	const op = "modbus read"
	req := EncodeReadHolding(m.opts.UnitId, register, 1)
	resp, err := m.exchange(ctx, op, req, FuncReadHolding)
	if nil != err {
		return 0, err
	}
	value, err := DecodeReadResponse(m.opts.UnitId, resp)
	if nil != err {
		return 0, m.protocolError(op, err)
	}
	return value, nil
}

// WriteRegister 写一个保持寄存器（功能码0x06）并检查回显
func (m *Modbus) WriteRegister(ctx context.Context, register, value uint16) error {
	const op = "modbus write"
	req := EncodeWriteSingle(m.opts.UnitId, register, value)
	resp, err := m.exchange(ctx, op, req, FuncWriteSingle)
	if nil != err {
		return err
	}
	if err := DecodeWriteResponse(req, resp); nil != err {
		return m.protocolError(op, err)
	}
	m.log.Debugf("写寄存器，从站：%d，寄存器：0x%04X，值：0x%04X", m.opts.UnitId, register, value)
	return nil
}

// exchange 发送请求并读取一个完整响应帧。读响应的长度由第3字节决定。
// 请求发出后只等待收发期限，不再响应ctx取消。
func (m *Modbus) exchange(ctx context.Context, op string, req []byte, fc byte) ([]byte, error) {
	if err := canceledBefore(ctx, op); nil != err {
		return nil, err
	}
	port, err := m.session.Port()
	if nil != err {
		return nil, err
	}
	deadline := m.session.deadline(ctx)
	if err := port.Flush(); nil != err {
		return nil, m.session.Fail(op, err)
	}
	if _, err := port.Write(req); nil != err {
		return nil, m.session.Fail(op, err)
	}
	header, err := m.read(port, op, 2, deadline)
	if nil != err {
		return nil, err
	}
	var rest int
	switch {
	case header[1] == fc|exceptionFlag:
		rest = exceptionFrameSize - 2
	case header[1] != fc:
		return nil, m.protocolError(op, errors.Wrapf(ErrUnexpectedFunction, "0x%02X", header[1]))
	case FuncReadHolding == fc:
		count, err := m.read(port, op, 1, deadline)
		if nil != err {
			return nil, err
		}
		if 2 != count[0] {
			return nil, m.protocolError(op, errors.Wrapf(ErrMalformedResponse, "byte count %d", count[0]))
		}
		header = append(header, count...)
		rest = int(count[0]) + 2
	default:
		rest = writeFrameSize - 2
	}
	tail, err := m.read(port, op, rest, deadline)
	if nil != err {
		return nil, err
	}
	return append(header, tail...), nil
}

func (m *Modbus) read(port Port, op string, n int, deadline time.Time) ([]byte, error) {
	buf, err := m.session.readExact(port, n, deadline)
	switch {
	case nil == err:
		return buf, nil
	case errors.Is(err, ErrShortResponse):
		return nil, m.protocolError(op, err)
	case errors.Is(err, ErrTimeout):
		return nil, newError(KindIO, op, err)
	default:
		return nil, m.session.Fail(op, err)
	}
}

func (m *Modbus) protocolError(op string, err error) error {
	m.log.Warnf("Modbus协议错误(%s): %v", op, err)
	return newError(KindProtocol, op, err)
}

func (m *Modbus) Close() error {
	return m.session.Close()
}
