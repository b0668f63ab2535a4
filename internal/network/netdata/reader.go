package netdata

import (
	"encoding/binary"
	"math"
	"net/netip"
	"unicode/utf8"

	"github.com/lk2023060901/danmu-netcodec/pkg/util/merr"
)

// DataReader 是一个对外部字节切片的只读游标。
//
// 所有 GetX 方法失败时返回零值与错误，游标保持不变；TryGetX 以 bool 报告同样的结果；
// PeekX 只读取不移动游标。长度前缀在分配内存之前就会与剩余字节数比对，
// 因此恶意的前缀不会导致超量分配。
// DataReader 不拷贝数据源，调用方在读取期间不得修改它。
type DataReader struct {
	data     []byte
	position int // 绝对下标
	dataSize int // 可读区间的绝对结束下标
	offset   int // 可读区间的绝对起始下标
}

// NewDataReader 创建一个读取整个 source 的读取器。
func NewDataReader(source []byte) *DataReader {
	r := &DataReader{}
	r.SetSource(source)
	return r
}

// NewDataReaderRange 创建一个读取 source[offset:maxSize] 的读取器，maxSize 为绝对结束下标。
func NewDataReaderRange(source []byte, offset, maxSize int) (*DataReader, error) {
	r := &DataReader{}
	if err := r.SetSourceRange(source, offset, maxSize); err != nil {
		return nil, err
	}
	return r, nil
}

// NewDataReaderFromWriter 创建一个读取 w 已写入内容的读取器。
func NewDataReaderFromWriter(w *DataWriter) *DataReader {
	r := &DataReader{}
	r.SetSourceWriter(w)
	return r
}

// SetSource 读取整个 source。
func (r *DataReader) SetSource(source []byte) {
	r.data = source
	r.position = 0
	r.offset = 0
	r.dataSize = len(source)
}

// SetSourceWriter 读取 w 已写入的内容，不拷贝。
func (r *DataReader) SetSourceWriter(w *DataWriter) {
	r.data = w.Data()
	r.position = 0
	r.offset = 0
	r.dataSize = w.Length()
}

// SetSourceOffset 读取 source[offset:]。
func (r *DataReader) SetSourceOffset(source []byte, offset int) error {
	return r.SetSourceRange(source, offset, len(source))
}

// SetSourceRange 读取 source[offset:maxSize]，maxSize 为绝对结束下标。
func (r *DataReader) SetSourceRange(source []byte, offset, maxSize int) error {
	if offset < 0 || maxSize < offset || maxSize > len(source) {
		return merr.WrapErrParameterInvalidRange(0, len(source), maxSize, "reader source range")
	}
	r.data = source
	r.position = offset
	r.offset = offset
	r.dataSize = maxSize
	return nil
}

// Clear 断开与数据源的关联。
func (r *DataReader) Clear() {
	r.data = nil
	r.position = 0
	r.offset = 0
	r.dataSize = 0
}

// RawData 返回完整的数据源。
func (r *DataReader) RawData() []byte { return r.data }

// RawDataSize 返回可读区间的绝对结束下标。
func (r *DataReader) RawDataSize() int { return r.dataSize }

// UserDataOffset 返回可读区间的绝对起始下标。
func (r *DataReader) UserDataOffset() int { return r.offset }

// UserDataSize 返回可读区间长度。
func (r *DataReader) UserDataSize() int { return r.dataSize - r.offset }

// IsNull 报告是否未关联数据源。
func (r *DataReader) IsNull() bool { return r.data == nil }

// Position 返回相对可读区间起点的游标位置。
func (r *DataReader) Position() int { return r.position - r.offset }

// EndOfData 报告是否已读完全部数据。
func (r *DataReader) EndOfData() bool { return r.position >= r.dataSize }

// AvailableBytes 返回剩余可读字节数。
func (r *DataReader) AvailableBytes() int { return r.dataSize - r.position }

// SkipBytes 跳过 count 个字节。
func (r *DataReader) SkipBytes(count int) error {
	_, err := r.take(count)
	return err
}

// SetPosition 将游标移动到相对位置 position。
func (r *DataReader) SetPosition(position int) error {
	if position < 0 || r.offset+position > r.dataSize {
		return merr.WrapErrParameterInvalidRange(0, r.UserDataSize(), position, "reader position")
	}
	r.position = r.offset + position
	return nil
}

func (r *DataReader) peek(n int) ([]byte, error) {
	if n < 0 || r.AvailableBytes() < n {
		return nil, merr.WrapErrCodecOutOfData(n, r.AvailableBytes(), r.Position())
	}
	return r.data[r.position : r.position+n], nil
}

func (r *DataReader) take(n int) ([]byte, error) {
	b, err := r.peek(n)
	if err != nil {
		return nil, err
	}
	r.position += n
	return b, nil
}

// 定长值的通用读取：get 前进游标，peek 不前进。

func get[T any](r *DataReader, width int, conv func([]byte) T) (T, error) {
	b, err := r.take(width)
	if err != nil {
		var zero T
		return zero, err
	}
	return conv(b), nil
}

func peek[T any](r *DataReader, width int, conv func([]byte) T) (T, error) {
	b, err := r.peek(width)
	if err != nil {
		var zero T
		return zero, err
	}
	return conv(b), nil
}

func try[T any](v T, err error) (T, bool) {
	if err != nil {
		var zero T
		return zero, false
	}
	return v, true
}

func leByte(b []byte) byte       { return b[0] }
func leSByte(b []byte) int8      { return int8(b[0]) }
func leInt16(b []byte) int16     { return int16(binary.LittleEndian.Uint16(b)) }
func leInt32(b []byte) int32     { return int32(binary.LittleEndian.Uint32(b)) }
func leInt64(b []byte) int64     { return int64(binary.LittleEndian.Uint64(b)) }
func leChar(b []byte) rune       { return rune(binary.LittleEndian.Uint16(b)) }
func leFloat32(b []byte) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b)) }
func leFloat64(b []byte) float64 { return math.Float64frombits(binary.LittleEndian.Uint64(b)) }

// GetByte 读取一个字节，剩余字节不足时返回 ErrCodecOutOfData。
func (r *DataReader) GetByte() (byte, error) { return get(r, 1, leByte) }

// GetSByte 读取一个有符号字节，剩余字节不足时返回 ErrCodecOutOfData。
func (r *DataReader) GetSByte() (int8, error) { return get(r, 1, leSByte) }

// GetChar 读取一个 uint16 编码的字符，剩余字节不足时返回 ErrCodecOutOfData。
func (r *DataReader) GetChar() (rune, error) { return get(r, 2, leChar) }

// GetInt16 读取小端 int16，剩余字节不足时返回 ErrCodecOutOfData。
func (r *DataReader) GetInt16() (int16, error) { return get(r, 2, leInt16) }

// GetUint16 读取小端 uint16，剩余字节不足时返回 ErrCodecOutOfData。
func (r *DataReader) GetUint16() (uint16, error) { return get(r, 2, binary.LittleEndian.Uint16) }

// GetInt32 读取小端 int32，剩余字节不足时返回 ErrCodecOutOfData。
func (r *DataReader) GetInt32() (int32, error) { return get(r, 4, leInt32) }

// GetUint32 读取小端 uint32，剩余字节不足时返回 ErrCodecOutOfData。
func (r *DataReader) GetUint32() (uint32, error) { return get(r, 4, binary.LittleEndian.Uint32) }

// GetInt64 读取小端 int64，剩余字节不足时返回 ErrCodecOutOfData。
func (r *DataReader) GetInt64() (int64, error) { return get(r, 8, leInt64) }

// GetUint64 读取小端 uint64，剩余字节不足时返回 ErrCodecOutOfData。
func (r *DataReader) GetUint64() (uint64, error) { return get(r, 8, binary.LittleEndian.Uint64) }

// GetFloat32 读取小端单精度浮点数，剩余字节不足时返回 ErrCodecOutOfData。
func (r *DataReader) GetFloat32() (float32, error) { return get(r, 4, leFloat32) }

// GetFloat64 读取小端双精度浮点数，剩余字节不足时返回 ErrCodecOutOfData。
func (r *DataReader) GetFloat64() (float64, error) { return get(r, 8, leFloat64) }

// PeekByte 与 GetByte 相同但不移动游标。
func (r *DataReader) PeekByte() (byte, error) { return peek(r, 1, leByte) }

// PeekSByte 与 GetSByte 相同但不移动游标。
func (r *DataReader) PeekSByte() (int8, error) { return peek(r, 1, leSByte) }

// PeekChar 与 GetChar 相同但不移动游标。
func (r *DataReader) PeekChar() (rune, error) { return peek(r, 2, leChar) }

// PeekInt16 与 GetInt16 相同但不移动游标。
func (r *DataReader) PeekInt16() (int16, error) { return peek(r, 2, leInt16) }

// PeekUint16 与 GetUint16 相同但不移动游标。
func (r *DataReader) PeekUint16() (uint16, error) { return peek(r, 2, binary.LittleEndian.Uint16) }

// PeekInt32 与 GetInt32 相同但不移动游标。
func (r *DataReader) PeekInt32() (int32, error) { return peek(r, 4, leInt32) }

// PeekUint32 与 GetUint32 相同但不移动游标。
func (r *DataReader) PeekUint32() (uint32, error) { return peek(r, 4, binary.LittleEndian.Uint32) }

// PeekInt64 与 GetInt64 相同但不移动游标。
func (r *DataReader) PeekInt64() (int64, error) { return peek(r, 8, leInt64) }

// PeekUint64 与 GetUint64 相同但不移动游标。
func (r *DataReader) PeekUint64() (uint64, error) { return peek(r, 8, binary.LittleEndian.Uint64) }

// PeekFloat32 与 GetFloat32 相同但不移动游标。
func (r *DataReader) PeekFloat32() (float32, error) { return peek(r, 4, leFloat32) }

// PeekFloat64 与 GetFloat64 相同但不移动游标。
func (r *DataReader) PeekFloat64() (float64, error) { return peek(r, 8, leFloat64) }

// TryGetByte 读取一个字节，失败时返回零值与 false 且游标不变。
func (r *DataReader) TryGetByte() (byte, bool) { return try(r.GetByte()) }

// TryGetSByte 读取一个有符号字节，失败时返回零值与 false 且游标不变。
func (r *DataReader) TryGetSByte() (int8, bool) { return try(r.GetSByte()) }

// TryGetChar 读取一个 uint16 编码的字符，失败时返回零值与 false 且游标不变。
func (r *DataReader) TryGetChar() (rune, bool) { return try(r.GetChar()) }

// TryGetInt16 读取小端 int16，失败时返回零值与 false 且游标不变。
func (r *DataReader) TryGetInt16() (int16, bool) { return try(r.GetInt16()) }

// TryGetUint16 读取小端 uint16，失败时返回零值与 false 且游标不变。
func (r *DataReader) TryGetUint16() (uint16, bool) { return try(r.GetUint16()) }

// TryGetInt32 读取小端 int32，失败时返回零值与 false 且游标不变。
func (r *DataReader) TryGetInt32() (int32, bool) { return try(r.GetInt32()) }

// TryGetUint32 读取小端 uint32，失败时返回零值与 false 且游标不变。
func (r *DataReader) TryGetUint32() (uint32, bool) { return try(r.GetUint32()) }

// TryGetInt64 读取小端 int64，失败时返回零值与 false 且游标不变。
func (r *DataReader) TryGetInt64() (int64, bool) { return try(r.GetInt64()) }

// TryGetUint64 读取小端 uint64，失败时返回零值与 false 且游标不变。
func (r *DataReader) TryGetUint64() (uint64, bool) { return try(r.GetUint64()) }

// TryGetFloat32 读取小端单精度浮点数，失败时返回零值与 false 且游标不变。
func (r *DataReader) TryGetFloat32() (float32, bool) { return try(r.GetFloat32()) }

// TryGetFloat64 读取小端双精度浮点数，失败时返回零值与 false 且游标不变。
func (r *DataReader) TryGetFloat64() (float64, bool) { return try(r.GetFloat64()) }

// TryGetBool 读取一个布尔值，失败时返回零值与 false 且游标不变。
func (r *DataReader) TryGetBool() (bool, bool) { return try(r.GetBool()) }

func decodeBool(b byte) (bool, error) {
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, merr.WrapErrCodecInvalidData("bool", "value is neither 0 nor 1")
	}
}

// GetBool 读取单字节布尔值，0/1 以外的取值视为非法数据。
func (r *DataReader) GetBool() (bool, error) {
	b, err := r.peek(1)
	if err != nil {
		return false, err
	}
	v, err := decodeBool(b[0])
	if err != nil {
		return false, err
	}
	r.position++
	return v, nil
}

// PeekBool 读取布尔值但不移动游标。
func (r *DataReader) PeekBool() (bool, error) {
	b, err := r.peek(1)
	if err != nil {
		return false, err
	}
	return decodeBool(b[0])
}

// peekString 返回字符串内容视图以及整体（含前缀）占用的字节数。
func (r *DataReader) peekString() ([]byte, int, error) {
	size, err := r.PeekUint16()
	if err != nil {
		return nil, 0, err
	}
	if r.AvailableBytes()-2 < int(size) {
		return nil, 0, merr.WrapErrCodecOutOfData(int(size)+2, r.AvailableBytes(), r.Position())
	}
	start := r.position + 2
	return r.data[start : start+int(size)], int(size) + 2, nil
}

func limitString(b []byte, maxLength int) string {
	s := string(b)
	if maxLength > 0 && utf8.RuneCountInString(s) > maxLength {
		return ""
	}
	return s
}

// GetString 读取由 PutString 写入的字符串。
func (r *DataReader) GetString() (string, error) {
	return r.GetStringMax(0)
}

// GetStringMax 读取字符串；maxLength > 0 且字符数超出时返回空串，但字节仍被消费。
func (r *DataReader) GetStringMax(maxLength int) (string, error) {
	b, n, err := r.peekString()
	if err != nil {
		return "", err
	}
	r.position += n
	return limitString(b, maxLength), nil
}

// PeekString 读取字符串但不移动游标。
func (r *DataReader) PeekString() (string, error) {
	return r.PeekStringMax(0)
}

// PeekStringMax 与 GetStringMax 相同但不移动游标。
func (r *DataReader) PeekStringMax(maxLength int) (string, error) {
	b, _, err := r.peekString()
	if err != nil {
		return "", err
	}
	return limitString(b, maxLength), nil
}

// TryGetString 与 GetString 相同，失败时返回零值与 false 且游标不变。
func (r *DataReader) TryGetString() (string, bool) { return try(r.GetString()) }

// GetBytesWithLength 读取 uint16 长度前缀与对应字节，返回独立副本。
func (r *DataReader) GetBytesWithLength() ([]byte, error) {
	b, n, err := r.peekString()
	if err != nil {
		return nil, err
	}
	r.position += n
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// TryGetBytesWithLength 与 GetBytesWithLength 相同，失败时返回零值与 false 且游标不变。
func (r *DataReader) TryGetBytesWithLength() ([]byte, bool) { return try(r.GetBytesWithLength()) }

// GetSBytesWithLength 读取 uint16 长度前缀与对应的有符号字节。
func (r *DataReader) GetSBytesWithLength() ([]int8, error) {
	b, n, err := r.peekString()
	if err != nil {
		return nil, err
	}
	r.position += n
	out := make([]int8, len(b))
	for i, v := range b {
		out[i] = int8(v)
	}
	return out, nil
}

// GetBytes 读取 count 个字节并返回独立副本。
func (r *DataReader) GetBytes(count int) ([]byte, error) {
	b, err := r.take(count)
	if err != nil {
		return nil, err
	}
	out := make([]byte, count)
	copy(out, b)
	return out, nil
}

// GetBytesInto 读取 count 个字节写入 dst[start:]。
func (r *DataReader) GetBytesInto(dst []byte, start, count int) error {
	if start < 0 || count < 0 || start+count > len(dst) {
		return merr.WrapErrParameterInvalidRange(0, len(dst), start+count, "destination range")
	}
	b, err := r.take(count)
	if err != nil {
		return err
	}
	copy(dst[start:], b)
	return nil
}

// GetSBytes 读取 count 个有符号字节。
func (r *DataReader) GetSBytes(count int) ([]int8, error) {
	b, err := r.take(count)
	if err != nil {
		return nil, err
	}
	out := make([]int8, count)
	for i, v := range b {
		out[i] = int8(v)
	}
	return out, nil
}

// GetRemainingBytes 返回剩余全部字节的副本，游标移动到末尾。
func (r *DataReader) GetRemainingBytes() []byte {
	out := make([]byte, r.AvailableBytes())
	copy(out, r.data[r.position:r.dataSize])
	r.position = r.dataSize
	return out
}

// GetRemainingBytesSegment 返回剩余全部字节的视图，游标移动到末尾。
func (r *DataReader) GetRemainingBytesSegment() []byte {
	seg := r.data[r.position:r.dataSize:r.dataSize]
	r.position = r.dataSize
	return seg
}

// GetEndPoint 读取由 PutEndPoint 写入的网络端点。
func (r *DataReader) GetEndPoint() (netip.AddrPort, error) {
	mark := r.position
	family, err := r.GetByte()
	if err != nil {
		return netip.AddrPort{}, err
	}
	var addr netip.Addr
	switch family {
	case endPointIPv4:
		b, err := r.take(4)
		if err != nil {
			r.position = mark
			return netip.AddrPort{}, err
		}
		addr = netip.AddrFrom4([4]byte(b))
	case endPointIPv6:
		b, err := r.take(16)
		if err != nil {
			r.position = mark
			return netip.AddrPort{}, err
		}
		addr = netip.AddrFrom16([16]byte(b))
	default:
		r.position = mark
		return netip.AddrPort{}, merr.WrapErrCodecInvalidData("endpoint", "unknown address family")
	}
	port, err := r.GetUint16()
	if err != nil {
		r.position = mark
		return netip.AddrPort{}, err
	}
	return netip.AddrPortFrom(addr, port), nil
}

// GetSerializable 调用 v 的自描述解码，失败时游标回到调用前的位置。
func (r *DataReader) GetSerializable(v Serializable) error {
	if v == nil {
		return merr.WrapErrParameterMissing("serializable")
	}
	mark := r.position
	if err := v.Deserialize(r); err != nil {
		r.position = mark
		return err
	}
	return nil
}

// getArray 读取定长元素数组，先按元素宽度校验总长度再分配。
func getArray[T any](r *DataReader, width int, conv func([]byte) T) ([]T, error) {
	count, err := r.PeekUint16()
	if err != nil {
		return nil, err
	}
	total := int(count) * width
	if r.AvailableBytes()-2 < total {
		return nil, merr.WrapErrCodecOutOfData(total+2, r.AvailableBytes(), r.Position())
	}
	r.position += 2
	out := make([]T, count)
	for i := range out {
		out[i] = conv(r.data[r.position : r.position+width])
		r.position += width
	}
	return out, nil
}

// GetBoolArray 读取 uint16 元素个数与随后的各元素，数据不足时不移动游标。
func (r *DataReader) GetBoolArray() ([]bool, error) {
	mark := r.position
	values, err := getArray(r, 1, leByte)
	if err != nil {
		return nil, err
	}
	out := make([]bool, len(values))
	for i, b := range values {
		if out[i], err = decodeBool(b); err != nil {
			r.position = mark
			return nil, err
		}
	}
	return out, nil
}

// GetInt16Array 读取 uint16 元素个数与随后的各元素，数据不足时不移动游标。
func (r *DataReader) GetInt16Array() ([]int16, error) { return getArray(r, 2, leInt16) }

// GetUint16Array 读取 uint16 元素个数与随后的各元素，数据不足时不移动游标。
func (r *DataReader) GetUint16Array() ([]uint16, error) {
	return getArray(r, 2, binary.LittleEndian.Uint16)
}

// GetInt32Array 读取 uint16 元素个数与随后的各元素，数据不足时不移动游标。
func (r *DataReader) GetInt32Array() ([]int32, error) { return getArray(r, 4, leInt32) }

// GetUint32Array 读取 uint16 元素个数与随后的各元素，数据不足时不移动游标。
func (r *DataReader) GetUint32Array() ([]uint32, error) {
	return getArray(r, 4, binary.LittleEndian.Uint32)
}

// GetInt64Array 读取 uint16 元素个数与随后的各元素，数据不足时不移动游标。
func (r *DataReader) GetInt64Array() ([]int64, error) { return getArray(r, 8, leInt64) }

// GetUint64Array 读取 uint16 元素个数与随后的各元素，数据不足时不移动游标。
func (r *DataReader) GetUint64Array() ([]uint64, error) {
	return getArray(r, 8, binary.LittleEndian.Uint64)
}

// GetFloat32Array 读取 uint16 元素个数与随后的各元素，数据不足时不移动游标。
func (r *DataReader) GetFloat32Array() ([]float32, error) { return getArray(r, 4, leFloat32) }

// GetFloat64Array 读取 uint16 元素个数与随后的各元素，数据不足时不移动游标。
func (r *DataReader) GetFloat64Array() ([]float64, error) { return getArray(r, 8, leFloat64) }

// GetStringArray 读取由 PutStringArray 写入的字符串数组。
func (r *DataReader) GetStringArray() ([]string, error) {
	return r.GetStringArrayMax(0)
}

// GetStringArrayMax 读取字符串数组，每个元素按 GetStringMax 的规则处理。
func (r *DataReader) GetStringArrayMax(maxLength int) ([]string, error) {
	count, err := r.PeekUint16()
	if err != nil {
		return nil, err
	}
	// 每个元素至少包含 2 字节前缀。
	if r.AvailableBytes()-2 < int(count)*2 {
		return nil, merr.WrapErrCodecOutOfData(int(count)*2+2, r.AvailableBytes(), r.Position())
	}
	mark := r.position
	r.position += 2
	out := make([]string, count)
	for i := range out {
		if out[i], err = r.GetStringMax(maxLength); err != nil {
			r.position = mark
			return nil, err
		}
	}
	return out, nil
}

// TryGetStringArray 与 GetStringArray 相同，失败时返回零值与 false 且游标不变。
func (r *DataReader) TryGetStringArray() ([]string, bool) { return try(r.GetStringArray()) }
