package netdata

import (
	"fmt"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/danmu-netcodec/pkg/util/merr"
)

func TestDataReader_OutOfData(t *testing.T) {
	r := NewDataReader([]byte{1, 2, 3})

	v, err := r.GetInt32()
	assert.ErrorIs(t, err, merr.ErrCodecOutOfData)
	assert.Zero(t, v)
	assert.Equal(t, 0, r.Position())

	_, ok := r.TryGetInt64()
	assert.False(t, ok)
	assert.Equal(t, 0, r.Position())

	u16, ok := r.TryGetUint16()
	assert.True(t, ok)
	assert.Equal(t, uint16(0x0201), u16)
	assert.Equal(t, 1, r.AvailableBytes())
}

func TestDataReader_Empty(t *testing.T) {
	var r DataReader
	assert.True(t, r.IsNull())
	assert.True(t, r.EndOfData())
	_, err := r.GetByte()
	assert.ErrorIs(t, err, merr.ErrCodecOutOfData)
	assert.Empty(t, r.GetRemainingBytes())
}

func TestDataReader_Peek(t *testing.T) {
	w := NewDataWriter()
	w.PutInt32(42)
	w.PutString("peek")
	r := NewDataReaderFromWriter(w)

	v, err := r.PeekInt32()
	require.NoError(t, err)
	assert.Equal(t, int32(42), v)
	assert.Equal(t, 0, r.Position())

	require.NoError(t, r.SkipBytes(4))
	s, err := r.PeekString()
	require.NoError(t, err)
	assert.Equal(t, "peek", s)
	assert.Equal(t, 4, r.Position())
}

func TestDataReader_StringPrefixBeyondData(t *testing.T) {
	// 前缀声明 0xFFFF 字节，实际只有 2 字节。
	r := NewDataReader([]byte{0xFF, 0xFF, 'a', 'b'})
	_, err := r.GetString()
	assert.ErrorIs(t, err, merr.ErrCodecOutOfData)
	assert.Equal(t, 0, r.Position())

	_, err = r.GetBytesWithLength()
	assert.ErrorIs(t, err, merr.ErrCodecOutOfData)

	_, ok := r.TryGetString()
	assert.False(t, ok)
}

func TestDataReader_ArrayPrefixBeyondData(t *testing.T) {
	r := NewDataReader([]byte{0x10, 0x00, 1, 2, 3, 4})
	_, err := r.GetInt32Array()
	assert.ErrorIs(t, err, merr.ErrCodecOutOfData)
	assert.Equal(t, 0, r.Position())

	_, err = r.GetStringArray()
	assert.ErrorIs(t, err, merr.ErrCodecOutOfData)
	assert.Equal(t, 0, r.Position())
}

func TestDataReader_StringMaxLength(t *testing.T) {
	w := NewDataWriter()
	w.PutString("toolong")
	w.PutInt16(5)
	r := NewDataReaderFromWriter(w)

	s, err := r.GetStringMax(3)
	require.NoError(t, err)
	assert.Equal(t, "", s)
	// 超长字符串的字节依旧被消费。
	v, err := r.GetInt16()
	require.NoError(t, err)
	assert.Equal(t, int16(5), v)
}

func TestDataReader_InvalidBool(t *testing.T) {
	r := NewDataReader([]byte{7})
	_, err := r.GetBool()
	assert.ErrorIs(t, err, merr.ErrCodecInvalidData)
	assert.Equal(t, 0, r.Position())
}

func TestDataReader_SourceRange(t *testing.T) {
	data := []byte{0xAA, 0x01, 0x00, 0x02, 0x00, 0xBB}
	var r DataReader
	require.NoError(t, r.SetSourceRange(data, 1, 5))
	assert.Equal(t, 4, r.UserDataSize())
	assert.Equal(t, 1, r.UserDataOffset())

	a, err := r.GetUint16()
	require.NoError(t, err)
	b, err := r.GetUint16()
	require.NoError(t, err)
	assert.Equal(t, []uint16{1, 2}, []uint16{a, b})
	assert.True(t, r.EndOfData())
	assert.Equal(t, 4, r.Position())

	assert.ErrorIs(t, r.SetSourceRange(data, 4, 3), merr.ErrParameterInvalid)
	assert.ErrorIs(t, r.SetSourceRange(data, 0, 7), merr.ErrParameterInvalid)

	require.NoError(t, r.SetSourceOffset(data, 5))
	rest := r.GetRemainingBytes()
	assert.Equal(t, []byte{0xBB}, rest)
	assert.True(t, r.EndOfData())
}

func TestDataReader_RemainingSegment(t *testing.T) {
	data := []byte{1, 2, 3, 4}
	r := NewDataReader(data)
	require.NoError(t, r.SkipBytes(1))
	seg := r.GetRemainingBytesSegment()
	assert.Equal(t, []byte{2, 3, 4}, seg)
	assert.True(t, r.EndOfData())

	// 视图与数据源共享内存。
	data[1] = 9
	assert.Equal(t, byte(9), seg[0])
}

func TestDataReader_SetPosition(t *testing.T) {
	r := NewDataReader([]byte{1, 2, 3})
	require.NoError(t, r.SetPosition(2))
	b, err := r.GetByte()
	require.NoError(t, err)
	assert.Equal(t, byte(3), b)
	assert.Error(t, r.SetPosition(4))
}

func TestDataReader_Clear(t *testing.T) {
	r := NewDataReader([]byte{1})
	r.Clear()
	assert.True(t, r.IsNull())
	assert.Equal(t, 0, r.AvailableBytes())
}

func TestDataReader_EndPointUnknownFamily(t *testing.T) {
	r := NewDataReader([]byte{5, 1, 2, 3, 4, 0, 0})
	_, err := r.GetEndPoint()
	assert.ErrorIs(t, err, merr.ErrCodecInvalidData)
	assert.Equal(t, 0, r.Position())
}

func TestDataReader_SBytesAndChar(t *testing.T) {
	w := NewDataWriter()
	w.PutSBytesWithLength([]int8{-1, 2})
	w.PutChar('中')
	w.PutFloat32(1.5)

	r := NewDataReaderFromWriter(w)
	sb, err := r.GetSBytesWithLength()
	require.NoError(t, err)
	assert.Equal(t, []int8{-1, 2}, sb)
	c, err := r.GetChar()
	require.NoError(t, err)
	assert.Equal(t, '中', c)
	f, err := r.GetFloat32()
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), f)
}

func TestNewDataReaderRange(t *testing.T) {
	data := []byte{0xAA, 0x01, 0x00, 0xBB}
	r, err := NewDataReaderRange(data, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, r.UserDataOffset())
	assert.Equal(t, 2, r.UserDataSize())

	v, err := r.GetUint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(1), v)
	assert.True(t, r.EndOfData())

	_, err = NewDataReaderRange(data, 3, 2)
	assert.ErrorIs(t, err, merr.ErrParameterInvalid)
	_, err = NewDataReaderRange(data, 0, 5)
	assert.ErrorIs(t, err, merr.ErrParameterInvalid)
}

type boundsCase struct {
	name  string
	write func(w *DataWriter)
	get   func(r *DataReader) (any, error)
	peek  func(r *DataReader) (any, error)
	try   func(r *DataReader) (any, bool)
}

func getter[T any](f func(*DataReader) (T, error)) func(*DataReader) (any, error) {
	return func(r *DataReader) (any, error) { return f(r) }
}

func trier[T any](f func(*DataReader) (T, bool)) func(*DataReader) (any, bool) {
	return func(r *DataReader) (any, bool) { return f(r) }
}

func boundsCases() []boundsCase {
	return []boundsCase{
		{"byte", func(w *DataWriter) { w.PutByte(1) },
			getter((*DataReader).GetByte), getter((*DataReader).PeekByte), trier((*DataReader).TryGetByte)},
		{"sbyte", func(w *DataWriter) { w.PutSByte(-1) },
			getter((*DataReader).GetSByte), getter((*DataReader).PeekSByte), trier((*DataReader).TryGetSByte)},
		{"bool", func(w *DataWriter) { w.PutBool(true) },
			getter((*DataReader).GetBool), nil, trier((*DataReader).TryGetBool)},
		{"char", func(w *DataWriter) { w.PutChar('x') },
			getter((*DataReader).GetChar), getter((*DataReader).PeekChar), trier((*DataReader).TryGetChar)},
		{"int16", func(w *DataWriter) { w.PutInt16(-2) },
			getter((*DataReader).GetInt16), getter((*DataReader).PeekInt16), trier((*DataReader).TryGetInt16)},
		{"uint16", func(w *DataWriter) { w.PutUint16(2) },
			getter((*DataReader).GetUint16), getter((*DataReader).PeekUint16), trier((*DataReader).TryGetUint16)},
		{"int32", func(w *DataWriter) { w.PutInt32(-3) },
			getter((*DataReader).GetInt32), getter((*DataReader).PeekInt32), trier((*DataReader).TryGetInt32)},
		{"uint32", func(w *DataWriter) { w.PutUint32(3) },
			getter((*DataReader).GetUint32), getter((*DataReader).PeekUint32), trier((*DataReader).TryGetUint32)},
		{"int64", func(w *DataWriter) { w.PutInt64(-4) },
			getter((*DataReader).GetInt64), getter((*DataReader).PeekInt64), trier((*DataReader).TryGetInt64)},
		{"uint64", func(w *DataWriter) { w.PutUint64(4) },
			getter((*DataReader).GetUint64), getter((*DataReader).PeekUint64), trier((*DataReader).TryGetUint64)},
		{"float32", func(w *DataWriter) { w.PutFloat32(1.5) },
			getter((*DataReader).GetFloat32), getter((*DataReader).PeekFloat32), trier((*DataReader).TryGetFloat32)},
		{"float64", func(w *DataWriter) { w.PutFloat64(2.5) },
			getter((*DataReader).GetFloat64), getter((*DataReader).PeekFloat64), trier((*DataReader).TryGetFloat64)},
		{"string", func(w *DataWriter) { w.PutString("abc") },
			getter((*DataReader).GetString), getter((*DataReader).PeekString), trier((*DataReader).TryGetString)},
		{"bytes_with_length", func(w *DataWriter) { w.PutBytesWithLength([]byte{1, 2, 3}) },
			getter((*DataReader).GetBytesWithLength), nil, trier((*DataReader).TryGetBytesWithLength)},
		{"sbytes_with_length", func(w *DataWriter) { w.PutSBytesWithLength([]int8{-1, 2}) },
			getter((*DataReader).GetSBytesWithLength), nil, nil},
		{"endpoint_v4", func(w *DataWriter) { w.PutEndPoint(netip.MustParseAddrPort("10.0.0.1:9050")) },
			getter((*DataReader).GetEndPoint), nil, nil},
		{"endpoint_v6", func(w *DataWriter) { w.PutEndPoint(netip.MustParseAddrPort("[::1]:9050")) },
			getter((*DataReader).GetEndPoint), nil, nil},
		{"bool_array", func(w *DataWriter) { w.PutBoolArray([]bool{true, false}) },
			getter((*DataReader).GetBoolArray), nil, nil},
		{"int16_array", func(w *DataWriter) { w.PutInt16Array([]int16{1, -1}) },
			getter((*DataReader).GetInt16Array), nil, nil},
		{"uint16_array", func(w *DataWriter) { w.PutUint16Array([]uint16{1, 2}) },
			getter((*DataReader).GetUint16Array), nil, nil},
		{"int32_array", func(w *DataWriter) { w.PutInt32Array([]int32{1, -1}) },
			getter((*DataReader).GetInt32Array), nil, nil},
		{"uint32_array", func(w *DataWriter) { w.PutUint32Array([]uint32{1, 2}) },
			getter((*DataReader).GetUint32Array), nil, nil},
		{"int64_array", func(w *DataWriter) { w.PutInt64Array([]int64{1, -1}) },
			getter((*DataReader).GetInt64Array), nil, nil},
		{"uint64_array", func(w *DataWriter) { w.PutUint64Array([]uint64{1, 2}) },
			getter((*DataReader).GetUint64Array), nil, nil},
		{"float32_array", func(w *DataWriter) { w.PutFloat32Array([]float32{1, 2}) },
			getter((*DataReader).GetFloat32Array), nil, nil},
		{"float64_array", func(w *DataWriter) { w.PutFloat64Array([]float64{1, 2}) },
			getter((*DataReader).GetFloat64Array), nil, nil},
		{"string_array", func(w *DataWriter) { w.PutStringArray([]string{"ab", "c"}) },
			getter((*DataReader).GetStringArray), nil, trier((*DataReader).TryGetStringArray)},
	}
}

func TestDataReader_TruncatedBuffers(t *testing.T) {
	for _, tc := range boundsCases() {
		w := NewDataWriter()
		tc.write(w)
		require.NoError(t, w.Err(), tc.name)
		full := w.CopyData()

		for cut := 1; cut <= len(full); cut++ {
			t.Run(fmt.Sprintf("%s/cut_%d", tc.name, cut), func(t *testing.T) {
				data := full[:len(full)-cut]

				r := NewDataReader(data)
				v, err := tc.get(r)
				assert.ErrorIs(t, err, merr.ErrCodecOutOfData)
				assert.Zero(t, v)
				assert.Equal(t, 0, r.Position())

				if tc.peek != nil {
					r = NewDataReader(data)
					v, err = tc.peek(r)
					assert.ErrorIs(t, err, merr.ErrCodecOutOfData)
					assert.Zero(t, v)
					assert.Equal(t, 0, r.Position())
				}

				if tc.try != nil {
					r = NewDataReader(data)
					v, ok := tc.try(r)
					assert.False(t, ok)
					assert.Zero(t, v)
					assert.Equal(t, 0, r.Position())
				}
			})
		}

		// 完整数据可以读出且读到末尾。
		r := NewDataReader(full)
		_, err := tc.get(r)
		require.NoError(t, err, tc.name)
		assert.True(t, r.EndOfData(), tc.name)
	}
}
