package loadctl

import (
	"encoding/binary"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

//
// Author: 陈哈哈 yoojiachen@gmail.com
//

// fakePort 用respond应答每次写入，应答缓存给之后的读取。缓冲为空时的读取等同串口读超时。
// delay大于0时应答延迟到达。
type fakePort struct {
	mu       sync.Mutex
	respond  func(req []byte) []byte
	delay    time.Duration
	rx       []byte
	written  [][]byte
	writeErr error
	readErr  error
	closed   bool
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if nil != p.writeErr {
		return 0, p.writeErr
	}
	p.written = append(p.written, append([]byte(nil), b...))
	if nil == p.respond {
		return len(b), nil
	}
	resp := p.respond(b)
	if p.delay > 0 {
		time.AfterFunc(p.delay, func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.rx = append(p.rx, resp...)
		})
		return len(b), nil
	}
	p.rx = append(p.rx, resp...)
	return len(b), nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	if 0 == len(p.rx) {
		err := p.readErr
		p.mu.Unlock()
		if nil != err {
			return 0, err
		}
		time.Sleep(time.Millisecond)
		return 0, io.EOF
	}
	n := copy(b, p.rx)
	p.rx = p.rx[n:]
	p.mu.Unlock()
	return n, nil
}

func (p *fakePort) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rx = nil
	return nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) feed(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rx = append(p.rx, s...)
}

func (p *fakePort) writes() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.written...)
}

// fakeSlave 带寄存器表的Modbus RTU从站
type fakeSlave struct {
	mu      sync.Mutex
	unit    byte
	regs    map[uint16]uint16
	corrupt func(resp []byte) []byte
}

func newFakeSlave(unit byte) *fakeSlave {
	return &fakeSlave{unit: unit, regs: make(map[uint16]uint16)}
}

func (s *fakeSlave) reply(req []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg := binary.BigEndian.Uint16(req[2:4])
	var resp []byte
	switch req[1] {
	case FuncReadHolding:
		v := s.regs[reg]
		resp = withCRC([]byte{s.unit, FuncReadHolding, 2, byte(v >> 8), byte(v)})
	case FuncWriteSingle:
		s.regs[reg] = binary.BigEndian.Uint16(req[4:6])
		resp = append([]byte(nil), req...)
	}
	if nil != s.corrupt {
		resp = s.corrupt(resp)
	}
	return resp
}

func (s *fakeSlave) reg(r uint16) uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regs[r]
}

func withCRC(body []byte) []byte {
	crc := CRC16(body)
	return append(append([]byte(nil), body...), byte(crc), byte(crc>>8))
}

func newTestSession(port *fakePort) *Session {
	return NewSession(SessionOptions{
		Name:            "fake",
		Opener:          func() (Port, error) { return port, nil },
		ExchangeTimeout: 100 * time.Millisecond,
	}, zap.NewNop().Sugar())
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
