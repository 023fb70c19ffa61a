package edgex

import (
	"bytes"
	"encoding/binary"
	"errors"
)

//
// Author: 陈哈哈 chenyongjia@parkingwang.com, yoojiachen@gmail.com
//

var ErrShortFrame = errors.New("short frame")

type wrapper struct {
	order  binary.ByteOrder
	buffer *bytes.Buffer
}

func (r *wrapper) Reset() {
	r.buffer.Reset()
}

////

// 字节Reader，提供从数据帧顺序读取类型数据的函数。
// 数据不足时不会panic，读取结果为0值，并通过Err()返回 ErrShortFrame。
type ByteReader struct {
	*wrapper
	err error
}

func WrapByteReader(frame []byte, order binary.ByteOrder) *ByteReader {
	return &ByteReader{
		wrapper: &wrapper{
			order:  order,
			buffer: bytes.NewBuffer(frame),
		},
	}
}

// Err 返回读取过程中出现的第一个错误
func (r *ByteReader) Err() error {
	return r.err
}

// Remaining 返回未读取的字节数
func (r *ByteReader) Remaining() int {
	return r.buffer.Len()
}

func (r *ByteReader) GetByte() byte {
	b, err := r.buffer.ReadByte()
	if nil != err {
		r.fail()
		return 0
	}
	return b
}

func (r *ByteReader) GetBytesSize(size int) []byte {
	out := make([]byte, size)
	if n, _ := r.buffer.Read(out); n < size {
		r.fail()
	}
	return out
}

func (r *ByteReader) GetUint16() uint16 {
	return r.order.Uint16(r.GetBytesSize(2))
}

// GetUint16With 使用指定字节序读取，用于字节序混合的帧（如Modbus的CRC）
func (r *ByteReader) GetUint16With(order binary.ByteOrder) uint16 {
	return order.Uint16(r.GetBytesSize(2))
}

func (r *ByteReader) GetUint32() uint32 {
	return r.order.Uint32(r.GetBytesSize(4))
}

func (r *ByteReader) fail() {
	if nil == r.err {
		r.err = ErrShortFrame
	}
}

////

// 字节Writer，提供向数据缓存顺序写入类型数据的函数。
type ByteWriter struct {
	*wrapper
}

func NewByteWriter(order binary.ByteOrder) *ByteWriter {
	return WrapByteBufferWriter(bytes.NewBuffer(make([]byte, 0, 8)), order)
}

func WrapByteBufferWriter(buffer *bytes.Buffer, order binary.ByteOrder) *ByteWriter {
	return &ByteWriter{
		wrapper: &wrapper{
			order:  order,
			buffer: buffer,
		},
	}
}

func (w *ByteWriter) PutByte(b byte) {
	w.buffer.WriteByte(b)
}

func (w *ByteWriter) PutBytes(bs []byte) {
	w.buffer.Write(bs)
}

func (w *ByteWriter) PutUint16(value uint16) {
	w.PutUint16With(w.order, value)
}

// PutUint16With 使用指定字节序写入
func (w *ByteWriter) PutUint16With(order binary.ByteOrder, value uint16) {
	b := make([]byte, 2)
	order.PutUint16(b, value)
	w.buffer.Write(b)
}

func (w *ByteWriter) PutUint32(value uint32) {
	b := make([]byte, 4)
	w.order.PutUint32(b, value)
	w.buffer.Write(b)
}

func (w *ByteWriter) Bytes() []byte {
	return w.buffer.Bytes()
}
