package loadctl

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

//
// Author: 陈哈哈 yoojiachen@gmail.com
//

// Kind 负载控制错误分类，调用方据此决定是否重试
type Kind int

const (
	KindUnknown Kind = iota
	// CRC错误、响应过短或格式错误、功能码不符。串口保持打开。
	KindProtocol
	// 串口断开、关闭或在期限内没有响应
	KindIO
	// 寄存器、位序号或后端参数非法
	KindConfig
	// 等待会话超过调用方期限
	KindBusy
	// 控制器已关闭
	KindClosed
	// 调用方在发出请求前取消。设备未收到任何数据。
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindProtocol:
		return "protocol"
	case KindIO:
		return "io"
	case KindConfig:
		return "config"
	case KindBusy:
		return "busy"
	case KindClosed:
		return "closed"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

var (
	ErrCRC                = errors.New("crc mismatch")
	ErrShortResponse      = errors.New("short response")
	ErrMalformedResponse  = errors.New("malformed response")
	ErrUnexpectedFunction = errors.New("unexpected function code")
	ErrUnitMismatch       = errors.New("unit address mismatch")
	ErrEchoMismatch       = errors.New("write echo mismatch")
	ErrTimeout            = errors.New("no response before deadline")
	ErrNotOpen            = errors.New("session not open")
	ErrBusy               = errors.New("control session busy")
	ErrClosed             = errors.New("controller closed")
)

// Error 负载控制调用失败的结果
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Cause() error {
	return e.Err
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// canceledBefore 在请求发出前检查ctx
func canceledBefore(ctx context.Context, op string) error {
	if err := ctx.Err(); nil != err {
		return newError(KindCanceled, op, err)
	}
	return nil
}

// ExceptionError Modbus异常响应（功能码 | 0x80）
type ExceptionError struct {
	Function byte
	Code     byte
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("modbus exception 0x%02X on function 0x%02X", e.Code, e.Function)
}

// KindOf 返回错误分类，非负载控制错误返回KindUnknown
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsProtocol(err error) bool { return KindProtocol == KindOf(err) }

func IsIO(err error) bool { return KindIO == KindOf(err) }

func IsConfig(err error) bool { return KindConfig == KindOf(err) }

func IsBusy(err error) bool { return KindBusy == KindOf(err) }

func IsCanceled(err error) bool { return KindCanceled == KindOf(err) }
