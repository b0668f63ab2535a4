package netdata

import (
	"github.com/lk2023060901/danmu-netcodec/pkg/util/merr"
)

// Serializable 是复合类型自描述编解码的能力约定。
//
// 实现者通过同一个 DataWriter/DataReader 读写自身字段，从而可以任意层级地嵌套组合，
// 整个过程不依赖反射。
//
// 约定：
//   - Serialize 与 Deserialize 必须按完全相同的字段顺序、宽度读写；
//   - Serialize 遇到无法编码的值时应通过 DataWriter.SetError 报告，而不是 panic；
//   - Deserialize 返回的错误会原样向上传递（通常最终成为一个 malformed packet）。
type Serializable interface {
	Serialize(w *DataWriter)
	Deserialize(r *DataReader) error
}

// SerializablePtr 约束 *T 实现 Serializable，便于泛型函数按值类型 T 构造新实例。
type SerializablePtr[T any] interface {
	*T
	Serializable
}

// Marshal 将 s 编码为一段独立的字节切片。
func Marshal(s Serializable) ([]byte, error) {
	if s == nil {
		return nil, merr.WrapErrParameterMissing("serializable")
	}
	w := NewDataWriter()
	s.Serialize(w)
	if err := w.Err(); err != nil {
		return nil, err
	}
	return w.CopyData(), nil
}

// Unmarshal 从 data 中解码 s，要求恰好消费完全部字节。
func Unmarshal(data []byte, s Serializable) error {
	if s == nil {
		return merr.WrapErrParameterMissing("serializable")
	}
	r := NewDataReader(data)
	if err := s.Deserialize(r); err != nil {
		return err
	}
	if !r.EndOfData() {
		return merr.WrapErrCodecInvalidData("serializable", "trailing bytes after value")
	}
	return nil
}

// PutSerializableArray 写入一个 Serializable 数组：uint16 元素个数 + 逐个元素的自描述编码。
func PutSerializableArray[T Serializable](w *DataWriter, values []T) {
	if len(values) > MaxLength {
		w.SetError(merr.WrapErrCodecOverflow("serializable_array", len(values), MaxLength))
		return
	}
	mark, prev := w.position, w.err
	w.PutUint16(uint16(len(values)))
	for _, v := range values {
		v.Serialize(w)
	}
	if prev == nil && w.err != nil {
		// 元素写入失败时回滚整个数组，保证 Length 只覆盖有效字节。
		w.position = mark
	}
}

// GetSerializableArray 读取由 PutSerializableArray 写入的数组，每个元素都是新分配的实例。
func GetSerializableArray[T any, PT SerializablePtr[T]](r *DataReader) ([]PT, error) {
	mark := r.position
	count, err := r.GetUint16()
	if err != nil {
		return nil, err
	}
	// 每个元素至少占 0 字节，无法按宽度预校验；这里以剩余字节数作为容量上限，避免按攻击者给定的数量预分配。
	capHint := int(count)
	if capHint > r.AvailableBytes() {
		capHint = r.AvailableBytes()
	}
	result := make([]PT, 0, capHint)
	for i := 0; i < int(count); i++ {
		v := PT(new(T))
		if err := v.Deserialize(r); err != nil {
			r.position = mark
			return nil, err
		}
		result = append(result, v)
	}
	return result, nil
}

// GetNew 构造一个新的 T 实例并从 r 中解码。
func GetNew[T any, PT SerializablePtr[T]](r *DataReader) (PT, error) {
	v := PT(new(T))
	if err := r.GetSerializable(v); err != nil {
		return nil, err
	}
	return v, nil
}
