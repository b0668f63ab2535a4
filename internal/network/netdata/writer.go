package netdata

import (
	"encoding/binary"
	"math"
	"net/netip"

	"github.com/lk2023060901/danmu-netcodec/pkg/util/merr"
)

const (
	// MaxLength 是 uint16 长度前缀能够表示的最大字节数或元素个数。
	MaxLength = math.MaxUint16

	// MaxCharValue 是单个 char（UTF-16 码元）能够表示的最大码点。
	MaxCharValue = 0xFFFF

	defaultWriterSize = 64
)

// 地址族标记。
const (
	endPointIPv4 byte = 0
	endPointIPv6 byte = 1
)

// DataWriter 是一个按需扩容的小端字节写入器。
//
// 写入失败（长度前缀溢出、非法 char 等）不会 panic，也不会写入任何字节，
// 而是记录第一次错误，调用方在写入结束后通过 Err 统一检查。
// DataWriter 不是并发安全的。
type DataWriter struct {
	data     []byte // len(data) 即当前容量
	position int
	err      error
}

// NewDataWriter 创建一个使用默认初始容量的写入器。
func NewDataWriter() *DataWriter {
	return NewDataWriterSize(defaultWriterSize)
}

// NewDataWriterSize 创建一个初始容量为 size 的写入器。
func NewDataWriterSize(size int) *DataWriter {
	if size < 0 {
		size = 0
	}
	return &DataWriter{data: make([]byte, size)}
}

// NewDataWriterFromBytes 以 b 作为已写入内容创建写入器。
// copyData 为 false 时直接接管 b 的底层数组。
func NewDataWriterFromBytes(b []byte, copyData bool) *DataWriter {
	if copyData {
		w := NewDataWriterSize(len(b))
		w.PutBytes(b)
		return w
	}
	return &DataWriter{data: b, position: len(b)}
}

// NewDataWriterFromString 创建一个已写入字符串 s 的写入器。
func NewDataWriterFromString(s string) *DataWriter {
	w := NewDataWriterSize(len(s) + 2)
	w.PutString(s)
	return w
}

// Capacity 返回底层缓冲区容量。
func (w *DataWriter) Capacity() int { return len(w.data) }

// Length 返回已写入的字节数。
func (w *DataWriter) Length() int { return w.position }

// Data 返回完整的底层缓冲区（可能包含未写入区域），仅在下一次写入前有效。
func (w *DataWriter) Data() []byte { return w.data }

// Bytes 返回已写入的内容视图，仅在下一次写入或 Reset 前有效。
func (w *DataWriter) Bytes() []byte { return w.data[:w.position] }

// CopyData 返回已写入内容的独立副本。
func (w *DataWriter) CopyData() []byte {
	out := make([]byte, w.position)
	copy(out, w.data[:w.position])
	return out
}

// Err 返回写入过程中记录的第一个错误。
func (w *DataWriter) Err() error { return w.err }

// SetError 记录一个写入错误，已有错误时忽略。
// 供 Serializable 实现报告无法编码的值。
func (w *DataWriter) SetError(err error) {
	if w.err == nil && err != nil {
		w.err = err
	}
}

// Reset 将写入位置归零并清除错误，保留底层缓冲区。
func (w *DataWriter) Reset() {
	w.position = 0
	w.err = nil
}

// ResetSize 在 Reset 的基础上保证容量不小于 size。
func (w *DataWriter) ResetSize(size int) {
	w.ResizeIfNeed(size)
	w.Reset()
}

// ResizeIfNeed 保证容量不小于 newSize，扩容时容量至少翻倍。
func (w *DataWriter) ResizeIfNeed(newSize int) {
	if newSize <= len(w.data) {
		return
	}
	newCap := len(w.data) * 2
	if newCap < newSize {
		newCap = newSize
	}
	buf := make([]byte, newCap)
	copy(buf, w.data[:w.position])
	w.data = buf
}

// SetPosition 移动写入位置并返回原位置，用于回填长度等场景。
// position 为负数时记录 ErrParameterInvalidRange，写入位置保持不变。
func (w *DataWriter) SetPosition(position int) int {
	prev := w.position
	if position < 0 {
		w.SetError(merr.WrapErrParameterInvalidRange(0, math.MaxInt, position, "writer position"))
		return prev
	}
	w.ResizeIfNeed(position)
	w.position = position
	return prev
}

func (w *DataWriter) grow(n int) []byte {
	w.ResizeIfNeed(w.position + n)
	b := w.data[w.position : w.position+n]
	w.position += n
	return b
}

// PutByte 写入一个字节。
func (w *DataWriter) PutByte(v byte) { w.grow(1)[0] = v }

// PutSByte 写入一个有符号字节。
func (w *DataWriter) PutSByte(v int8) { w.grow(1)[0] = byte(v) }

// PutBool 以单字节 0/1 写入布尔值。
func (w *DataWriter) PutBool(v bool) {
	if v {
		w.PutByte(1)
		return
	}
	w.PutByte(0)
}

// PutChar 以 uint16 写入一个 UTF-16 码元，码点超过 0xFFFF 时记录溢出错误。
func (w *DataWriter) PutChar(r rune) {
	if r < 0 || r > MaxCharValue {
		w.SetError(merr.WrapErrCodecOverflow("char", int(r), MaxCharValue))
		return
	}
	w.PutUint16(uint16(r))
}

// PutInt16 写入小端 int16。
func (w *DataWriter) PutInt16(v int16) { w.PutUint16(uint16(v)) }

// PutUint16 写入小端 uint16。
func (w *DataWriter) PutUint16(v uint16) { binary.LittleEndian.PutUint16(w.grow(2), v) }

// PutInt32 写入小端 int32。
func (w *DataWriter) PutInt32(v int32) { w.PutUint32(uint32(v)) }

// PutUint32 写入小端 uint32。
func (w *DataWriter) PutUint32(v uint32) { binary.LittleEndian.PutUint32(w.grow(4), v) }

// PutInt64 写入小端 int64。
func (w *DataWriter) PutInt64(v int64) { w.PutUint64(uint64(v)) }

// PutUint64 写入小端 uint64。
func (w *DataWriter) PutUint64(v uint64) { binary.LittleEndian.PutUint64(w.grow(8), v) }

// PutFloat32 按 IEEE-754 单精度小端写入。
func (w *DataWriter) PutFloat32(v float32) { w.PutUint32(math.Float32bits(v)) }

// PutFloat64 按 IEEE-754 双精度小端写入。
func (w *DataWriter) PutFloat64(v float64) { w.PutUint64(math.Float64bits(v)) }

// PutBytes 原样写入 b，不带长度前缀。
func (w *DataWriter) PutBytes(b []byte) {
	copy(w.grow(len(b)), b)
}

// PutBytesRange 原样写入 b[offset:offset+length]。
func (w *DataWriter) PutBytesRange(b []byte, offset, length int) {
	if offset < 0 || length < 0 || offset+length > len(b) {
		w.SetError(merr.WrapErrParameterInvalidRange(0, len(b), offset+length, "bytes range"))
		return
	}
	w.PutBytes(b[offset : offset+length])
}

// PutSBytes 原样写入有符号字节数组。
func (w *DataWriter) PutSBytes(b []int8) {
	dst := w.grow(len(b))
	for i, v := range b {
		dst[i] = byte(v)
	}
}

// PutBytesWithLength 写入 uint16 长度前缀与 b。
func (w *DataWriter) PutBytesWithLength(b []byte) {
	if len(b) > MaxLength {
		w.SetError(merr.WrapErrCodecOverflow("bytes", len(b), MaxLength))
		return
	}
	w.ResizeIfNeed(w.position + 2 + len(b))
	w.PutUint16(uint16(len(b)))
	w.PutBytes(b)
}

// PutBytesWithLengthRange 写入 uint16 长度前缀与 b[offset:offset+length]。
func (w *DataWriter) PutBytesWithLengthRange(b []byte, offset, length int) {
	if offset < 0 || length < 0 || offset+length > len(b) {
		w.SetError(merr.WrapErrParameterInvalidRange(0, len(b), offset+length, "bytes range"))
		return
	}
	w.PutBytesWithLength(b[offset : offset+length])
}

// PutSBytesWithLength 写入 uint16 长度前缀与有符号字节数组。
func (w *DataWriter) PutSBytesWithLength(b []int8) {
	if len(b) > MaxLength {
		w.SetError(merr.WrapErrCodecOverflow("sbytes", len(b), MaxLength))
		return
	}
	w.PutUint16(uint16(len(b)))
	w.PutSBytes(b)
}

// PutString 写入字符串：uint16 UTF-8 字节数 + UTF-8 字节，空串只写入前缀 0。
func (w *DataWriter) PutString(s string) {
	w.putString(s, 0)
}

// PutStringMax 与 PutString 相同，但 maxLength > 0 时先截断为前 maxLength 个字符。
func (w *DataWriter) PutStringMax(s string, maxLength int) {
	w.putString(s, maxLength)
}

func (w *DataWriter) putString(s string, maxLength int) bool {
	s = truncateRunes(s, maxLength)
	if len(s) > MaxLength {
		w.SetError(merr.WrapErrCodecOverflow("string", len(s), MaxLength))
		return false
	}
	w.ResizeIfNeed(w.position + 2 + len(s))
	w.PutUint16(uint16(len(s)))
	copy(w.grow(len(s)), s)
	return true
}

// truncateRunes 返回 s 的前 maxLength 个字符，maxLength <= 0 表示不限制。
func truncateRunes(s string, maxLength int) string {
	if maxLength <= 0 || len(s) <= maxLength {
		return s
	}
	count := 0
	for i := range s {
		if count == maxLength {
			return s[:i]
		}
		count++
	}
	return s
}

// PutEndPoint 写入网络端点：地址族标记（0=IPv4，1=IPv6）+ 地址字节 + uint16 端口。
func (w *DataWriter) PutEndPoint(ep netip.AddrPort) {
	if !ep.IsValid() {
		w.SetError(merr.WrapErrCodecInvalidData("endpoint", "invalid address"))
		return
	}
	addr := ep.Addr()
	if addr.Is4() {
		a := addr.As4()
		w.PutByte(endPointIPv4)
		w.PutBytes(a[:])
	} else {
		a := addr.As16()
		w.PutByte(endPointIPv6)
		w.PutBytes(a[:])
	}
	w.PutUint16(ep.Port())
}

// PutSerializable 调用 v 的自描述编码，编码中途出错时回滚本次写入的字节。
func (w *DataWriter) PutSerializable(v Serializable) {
	if v == nil {
		w.SetError(merr.WrapErrParameterMissing("serializable"))
		return
	}
	mark, prev := w.position, w.err
	v.Serialize(w)
	if prev == nil && w.err != nil {
		w.position = mark
	}
}

func putArray[T any](w *DataWriter, kind string, values []T, width int, put func([]byte, T)) {
	if len(values) > MaxLength {
		w.SetError(merr.WrapErrCodecOverflow(kind, len(values), MaxLength))
		return
	}
	w.ResizeIfNeed(w.position + 2 + len(values)*width)
	w.PutUint16(uint16(len(values)))
	for _, v := range values {
		put(w.grow(width), v)
	}
}

// 定长元素数组：uint16 元素个数 + 逐个元素的小端编码。

// PutBoolArray 写入 uint16 元素个数与各元素，元素个数超过 MaxLength 时记录溢出错误。
func (w *DataWriter) PutBoolArray(values []bool) {
	putArray(w, "bool_array", values, 1, func(b []byte, v bool) {
		b[0] = 0
		if v {
			b[0] = 1
		}
	})
}

// PutInt16Array 写入 uint16 元素个数与各元素，元素个数超过 MaxLength 时记录溢出错误。
func (w *DataWriter) PutInt16Array(values []int16) {
	putArray(w, "int16_array", values, 2, func(b []byte, v int16) { binary.LittleEndian.PutUint16(b, uint16(v)) })
}

// PutUint16Array 写入 uint16 元素个数与各元素，元素个数超过 MaxLength 时记录溢出错误。
func (w *DataWriter) PutUint16Array(values []uint16) {
	putArray(w, "uint16_array", values, 2, binary.LittleEndian.PutUint16)
}

// PutInt32Array 写入 uint16 元素个数与各元素，元素个数超过 MaxLength 时记录溢出错误。
func (w *DataWriter) PutInt32Array(values []int32) {
	putArray(w, "int32_array", values, 4, func(b []byte, v int32) { binary.LittleEndian.PutUint32(b, uint32(v)) })
}

// PutUint32Array 写入 uint16 元素个数与各元素，元素个数超过 MaxLength 时记录溢出错误。
func (w *DataWriter) PutUint32Array(values []uint32) {
	putArray(w, "uint32_array", values, 4, binary.LittleEndian.PutUint32)
}

// PutInt64Array 写入 uint16 元素个数与各元素，元素个数超过 MaxLength 时记录溢出错误。
func (w *DataWriter) PutInt64Array(values []int64) {
	putArray(w, "int64_array", values, 8, func(b []byte, v int64) { binary.LittleEndian.PutUint64(b, uint64(v)) })
}

// PutUint64Array 写入 uint16 元素个数与各元素，元素个数超过 MaxLength 时记录溢出错误。
func (w *DataWriter) PutUint64Array(values []uint64) {
	putArray(w, "uint64_array", values, 8, binary.LittleEndian.PutUint64)
}

// PutFloat32Array 写入 uint16 元素个数与各元素，元素个数超过 MaxLength 时记录溢出错误。
func (w *DataWriter) PutFloat32Array(values []float32) {
	putArray(w, "float32_array", values, 4, func(b []byte, v float32) { binary.LittleEndian.PutUint32(b, math.Float32bits(v)) })
}

// PutFloat64Array 写入 uint16 元素个数与各元素，元素个数超过 MaxLength 时记录溢出错误。
func (w *DataWriter) PutFloat64Array(values []float64) {
	putArray(w, "float64_array", values, 8, func(b []byte, v float64) { binary.LittleEndian.PutUint64(b, math.Float64bits(v)) })
}

// PutStringArray 写入 uint16 元素个数 + 逐个字符串。
func (w *DataWriter) PutStringArray(values []string) {
	w.PutStringArrayMax(values, 0)
}

// PutStringArrayMax 与 PutStringArray 相同，每个元素按 maxLength 截断。
// 任一元素溢出时整个数组都不会写入。
func (w *DataWriter) PutStringArrayMax(values []string, maxLength int) {
	if len(values) > MaxLength {
		w.SetError(merr.WrapErrCodecOverflow("string_array", len(values), MaxLength))
		return
	}
	mark := w.position
	w.PutUint16(uint16(len(values)))
	for _, s := range values {
		if !w.putString(s, maxLength) {
			w.position = mark
			return
		}
	}
}
