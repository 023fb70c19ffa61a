package loadctl

import (
	"encoding/binary"

	edgex "github.com/nextabc-lab/edgex-victron"
	"github.com/pkg/errors"
)

//
// Author: 陈哈哈 yoojiachen@gmail.com
//

const (
	FuncReadHolding byte = 0x03
	FuncWriteSingle byte = 0x06
	exceptionFlag   byte = 0x80

	writeFrameSize     = 8
	readResponseSize   = 7
	exceptionFrameSize = 5
)

// EncodeReadHolding 生成读保持寄存器请求：[unit, 0x03, reg, count, crc]
func EncodeReadHolding(unit byte, register, count uint16) []byte {
	w := edgex.NewByteWriter(binary.BigEndian)
	w.PutByte(unit)
	w.PutByte(FuncReadHolding)
	w.PutUint16(register)
	w.PutUint16(count)
	return appendCRC(w)
}

// EncodeWriteSingle 生成写单个寄存器请求：[unit, 0x06, reg, value, crc]
func EncodeWriteSingle(unit byte, register, value uint16) []byte {
	w := edgex.NewByteWriter(binary.BigEndian)
	w.PutByte(unit)
	w.PutByte(FuncWriteSingle)
	w.PutUint16(register)
	w.PutUint16(value)
	return appendCRC(w)
}

func appendCRC(w *edgex.ByteWriter) []byte {
	w.PutUint16With(binary.LittleEndian, CRC16(w.Bytes()))
	return w.Bytes()
}

// CheckCRC 检查帧末尾两字节是否为正确的校验码
func CheckCRC(frame []byte) bool {
	if len(frame) < 3 {
		return false
	}
	body := frame[:len(frame)-2]
	return CRC16(body) == binary.LittleEndian.Uint16(frame[len(frame)-2:])
}

// DecodeReadResponse 校验单寄存器读响应，返回寄存器值
func DecodeReadResponse(unit byte, resp []byte) (uint16, error) {
	if err := checkHeader(unit, FuncReadHolding, resp); nil != err {
		return 0, err
	}
	if len(resp) < readResponseSize {
		return 0, errors.Wrapf(ErrShortResponse, "read response has %d bytes", len(resp))
	}
	if len(resp) > readResponseSize {
		return 0, errors.Wrapf(ErrMalformedResponse, "read response has %d bytes", len(resp))
	}
	if !CheckCRC(resp) {
		return 0, ErrCRC
	}
	r := edgex.WrapByteReader(resp[2:], binary.BigEndian)
	if count := r.GetByte(); 2 != count {
		return 0, errors.Wrapf(ErrMalformedResponse, "byte count %d", count)
	}
	return r.GetUint16(), r.Err()
}

// DecodeWriteResponse 校验写单寄存器的回显：响应前6字节必须与请求一致
func DecodeWriteResponse(req, resp []byte) error {
	if len(req) < writeFrameSize {
		return errors.Wrapf(ErrMalformedResponse, "write request has %d bytes", len(req))
	}
	if err := checkHeader(req[0], FuncWriteSingle, resp); nil != err {
		return err
	}
	if len(resp) < writeFrameSize {
		return errors.Wrapf(ErrShortResponse, "write response has %d bytes", len(resp))
	}
	if !CheckCRC(resp[:writeFrameSize]) {
		return ErrCRC
	}
	for i := 0; i < 6; i++ {
		if req[i] != resp[i] {
			return errors.Wrapf(ErrEchoMismatch, "byte %d: sent 0x%02X, got 0x%02X", i, req[i], resp[i])
		}
	}
	return nil
}

// checkHeader 检查从站地址与功能码，解析异常响应
func checkHeader(unit, fc byte, resp []byte) error {
	if len(resp) < 2 {
		return errors.Wrapf(ErrShortResponse, "response has %d bytes", len(resp))
	}
	if resp[0] != unit {
		return errors.Wrapf(ErrUnitMismatch, "expected 0x%02X, got 0x%02X", unit, resp[0])
	}
	if resp[1] == fc|exceptionFlag {
		if len(resp) < exceptionFrameSize {
			return errors.Wrap(ErrShortResponse, "exception response")
		}
		if !CheckCRC(resp[:exceptionFrameSize]) {
			return ErrCRC
		}
		return &ExceptionError{Function: fc, Code: resp[2]}
	}
	if resp[1] != fc {
		return errors.Wrapf(ErrUnexpectedFunction, "expected 0x%02X, got 0x%02X", fc, resp[1])
	}
	return nil
}
