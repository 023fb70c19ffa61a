package loadctl

import (
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/tarm/serial"
	"go.uber.org/zap"
)

//
// Author: 陈哈哈 yoojiachen@gmail.com
//

const (
	disconnected uint32 = iota
	connecting
	connected
)

// Port 已打开的串口。*serial.Port 实现了该接口。
type Port interface {
	io.ReadWriteCloser
	// Flush 丢弃未读取的输入和未发送的输出
	Flush() error
}

// Opener 为Session打开串口
type Opener func() (Port, error)

type SerialOptions struct {
	Name        string
	Baud        int
	DataBits    byte
	Parity      string
	StopBits    int
	ReadTimeout time.Duration
}

// SerialOpener 使用tarm/serial打开串口。读超时且无数据时返回(0, io.EOF)。
func SerialOpener(opts SerialOptions) Opener {
	return func() (Port, error) {
		port, err := serial.OpenPort(serialConfig(opts))
		if nil != err {
			return nil, err
		}
		return port, nil
	}
}

func serialConfig(opts SerialOptions) *serial.Config {
	parity := serial.ParityNone
	switch strings.ToUpper(opts.Parity) {
	case "O", "ODD":
		parity = serial.ParityOdd
	case "E", "EVEN":
		parity = serial.ParityEven
	case "M", "MARK":
		parity = serial.ParityMark
	case "S", "SPACE":
		parity = serial.ParitySpace
	}
	size := opts.DataBits
	if 0 == size {
		size = 8
	}
	stop := serial.Stop1
	if 2 == opts.StopBits {
		stop = serial.Stop2
	}
	return &serial.Config{
		Name:        opts.Name,
		Baud:        opts.Baud,
		Size:        size,
		Parity:      parity,
		StopBits:    stop,
		ReadTimeout: opts.ReadTimeout,
	}
}

type SessionOptions struct {
	Name            string
	Opener          Opener
	ExchangeTimeout time.Duration
	BackoffInitial  time.Duration
	BackoffMax      time.Duration
	Now             func() time.Time
}

////

// Session 管理一个串口连接。首次使用时打开串口，通讯故障后关闭，
// 按指数退避的间隔重新打开。调用方负责串行化收发。
type Session struct {
	opts    SessionOptions
	log     *zap.SugaredLogger
	state   uint32
	mu      sync.Mutex
	port    Port
	backoff *backoff.ExponentialBackOff
	retryAt time.Time
}

func NewSession(opts SessionOptions, log *zap.SugaredLogger) *Session {
	if nil == opts.Now {
		opts.Now = time.Now
	}
	if opts.ExchangeTimeout <= 0 {
		opts.ExchangeTimeout = 2 * time.Second
	}
	if opts.BackoffInitial <= 0 {
		opts.BackoffInitial = 500 * time.Millisecond
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = 30 * time.Second
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.BackoffInitial
	b.MaxInterval = opts.BackoffMax
	b.MaxElapsedTime = 0
	b.Reset()
	return &Session{
		opts:    opts,
		log:     log,
		state:   disconnected,
		backoff: b,
	}
}

func (s *Session) Name() string {
	return s.opts.Name
}

func (s *Session) ExchangeTimeout() time.Duration {
	return s.opts.ExchangeTimeout
}

func (s *Session) Connected() bool {
	return connected == atomic.LoadUint32(&s.state)
}

// Port 返回已打开的串口，未打开时尝试打开。退避期间直接返回IO错误。
func (s *Session) Port() (Port, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if nil != s.port {
		return s.port, nil
	}
	if now := s.opts.Now(); now.Before(s.retryAt) {
		return nil, newError(KindIO, "open",
			errors.Wrapf(ErrNotOpen, "%s: reopen in %s", s.opts.Name, s.retryAt.Sub(now).Round(time.Millisecond)))
	}
	atomic.StoreUint32(&s.state, connecting)
	port, err := s.opts.Opener()
	if nil != err {
		atomic.StoreUint32(&s.state, disconnected)
		s.scheduleRetry()
		return nil, newError(KindIO, "open", errors.WithMessage(err, s.opts.Name))
	}
	s.backoff.Reset()
	s.retryAt = time.Time{}
	s.port = port
	atomic.StoreUint32(&s.state, connected)
	s.log.Info("打开串口: ", s.opts.Name)
	return port, nil
}

// Fail 通讯故障后关闭串口，退避结束后由下一次Port调用重新打开
func (s *Session) Fail(op string, cause error) *Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if nil != s.port {
		_ = s.port.Close()
		s.port = nil
	}
	atomic.StoreUint32(&s.state, disconnected)
	s.scheduleRetry()
	s.log.Warnf("串口[%s]通讯故障(%s): %v", s.opts.Name, op, cause)
	return newError(KindIO, op, cause)
}

func (s *Session) scheduleRetry() {
	s.retryAt = s.opts.Now().Add(s.backoff.NextBackOff())
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	atomic.StoreUint32(&s.state, disconnected)
	if nil == s.port {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	s.log.Info("关闭串口: ", s.opts.Name)
	return err
}

// deadline 取收发超时与ctx期限中较早者
func (s *Session) deadline(ctx context.Context) time.Time {
	d := s.opts.Now().Add(s.opts.ExchangeTimeout)
	if cd, ok := ctx.Deadline(); ok && cd.Before(d) {
		return cd
	}
	return d
}

// readExact 在期限内读满n字节。请求已发出，只有期限能结束等待，取消ctx无效。
// 一个字节都没有读到为超时，读到部分为响应过短，其它串口错误原样返回。
func (s *Session) readExact(port Port, n int, deadline time.Time) ([]byte, error) {
	buf := make([]byte, n)
	got := 0
	for got < n {
		if !s.opts.Now().Before(deadline) {
			if 0 == got {
				return nil, ErrTimeout
			}
			return buf[:got], errors.Wrapf(ErrShortResponse, "%d of %d bytes", got, n)
		}
		m, err := port.Read(buf[got:])
		got += m
		if nil != err && io.EOF != err {
			return buf[:got], err
		}
	}
	return buf, nil
}
