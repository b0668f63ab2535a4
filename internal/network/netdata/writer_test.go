package netdata

import (
	"math"
	"net/netip"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/danmu-netcodec/pkg/util/merr"
)

func TestDataWriter_PrimitivesLittleEndian(t *testing.T) {
	w := NewDataWriterSize(0)
	w.PutByte(0xAB)
	w.PutSByte(-1)
	w.PutBool(true)
	w.PutInt16(-2)
	w.PutUint16(0x0102)
	w.PutInt32(0x01020304)
	w.PutUint64(0x0102030405060708)
	require.NoError(t, w.Err())

	assert.Equal(t, []byte{
		0xAB,
		0xFF,
		0x01,
		0xFE, 0xFF,
		0x02, 0x01,
		0x04, 0x03, 0x02, 0x01,
		0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01,
	}, w.Bytes())
}

func TestDataWriter_Grows(t *testing.T) {
	w := NewDataWriterSize(1)
	for i := 0; i < 100; i++ {
		w.PutInt32(int32(i))
	}
	assert.Equal(t, 400, w.Length())
	assert.GreaterOrEqual(t, w.Capacity(), 400)

	r := NewDataReaderFromWriter(w)
	for i := 0; i < 100; i++ {
		v, err := r.GetInt32()
		require.NoError(t, err)
		assert.Equal(t, int32(i), v)
	}
	assert.True(t, r.EndOfData())
}

func TestDataWriter_String(t *testing.T) {
	w := NewDataWriter()
	w.PutString("hi")
	w.PutString("")
	assert.Equal(t, []byte{0x02, 0x00, 'h', 'i', 0x00, 0x00}, w.Bytes())

	// 非 ASCII 字符按 UTF-8 字节数计算前缀。
	w.Reset()
	w.PutString("é")
	assert.Equal(t, []byte{0x02, 0x00, 0xC3, 0xA9}, w.Bytes())
}

func TestDataWriter_StringTruncate(t *testing.T) {
	w := NewDataWriter()
	w.PutStringMax("hello", 3)
	w.PutStringMax("日本語です", 2)
	require.NoError(t, w.Err())

	r := NewDataReaderFromWriter(w)
	s, err := r.GetString()
	require.NoError(t, err)
	assert.Equal(t, "hel", s)
	s, err = r.GetString()
	require.NoError(t, err)
	assert.Equal(t, "日本", s)
}

func TestDataWriter_Overflow(t *testing.T) {
	w := NewDataWriter()
	w.PutInt32(7)

	w.PutString(strings.Repeat("x", MaxLength+1))
	assert.ErrorIs(t, w.Err(), merr.ErrCodecOverflow)
	assert.Equal(t, 4, w.Length())

	w.PutBytesWithLength(make([]byte, MaxLength+1))
	w.PutInt32Array(make([]int32, MaxLength+1))
	assert.Equal(t, 4, w.Length())

	w.Reset()
	assert.NoError(t, w.Err())
	w.PutString(strings.Repeat("x", MaxLength))
	assert.NoError(t, w.Err())
	assert.Equal(t, MaxLength+2, w.Length())
}

func TestDataWriter_CharOverflow(t *testing.T) {
	w := NewDataWriter()
	w.PutChar('A')
	w.PutChar(0x1F600)
	assert.ErrorIs(t, w.Err(), merr.ErrCodecOverflow)
	assert.Equal(t, []byte{0x41, 0x00}, w.Bytes())
}

func TestDataWriter_StringArrayRollback(t *testing.T) {
	w := NewDataWriter()
	w.PutByte(9)
	w.PutStringArray([]string{"ok", strings.Repeat("y", MaxLength+1)})
	assert.ErrorIs(t, w.Err(), merr.ErrCodecOverflow)
	assert.Equal(t, []byte{9}, w.Bytes())
}

func TestDataWriter_Arrays(t *testing.T) {
	w := NewDataWriter()
	w.PutBoolArray([]bool{true, false})
	w.PutUint16Array([]uint16{1, 2})
	w.PutFloat64Array([]float64{math.Pi})
	w.PutStringArray([]string{"a", "bc"})
	w.PutInt64Array(nil)
	require.NoError(t, w.Err())

	r := NewDataReaderFromWriter(w)
	bools, err := r.GetBoolArray()
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, bools)
	u16, err := r.GetUint16Array()
	require.NoError(t, err)
	assert.Equal(t, []uint16{1, 2}, u16)
	f64, err := r.GetFloat64Array()
	require.NoError(t, err)
	assert.Equal(t, []float64{math.Pi}, f64)
	strs, err := r.GetStringArray()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "bc"}, strs)
	i64, err := r.GetInt64Array()
	require.NoError(t, err)
	assert.Empty(t, i64)
	assert.True(t, r.EndOfData())
}

func TestDataWriter_EndPoint(t *testing.T) {
	w := NewDataWriter()
	w.PutEndPoint(netip.MustParseAddrPort("127.0.0.1:9050"))
	assert.Equal(t, []byte{0x00, 127, 0, 0, 1, 0x5A, 0x23}, w.Bytes())

	v6 := netip.MustParseAddrPort("[::1]:80")
	w.PutEndPoint(v6)
	w.PutEndPoint(netip.AddrPort{})
	assert.ErrorIs(t, w.Err(), merr.ErrCodecInvalidData)

	r := NewDataReaderFromWriter(w)
	ep, err := r.GetEndPoint()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9050", ep.String())
	ep, err = r.GetEndPoint()
	require.NoError(t, err)
	assert.Equal(t, v6, ep)
}

func TestDataWriter_FromBytes(t *testing.T) {
	src := []byte{1, 2, 3}
	shared := NewDataWriterFromBytes(src, false)
	copied := NewDataWriterFromBytes(src, true)
	src[0] = 9

	assert.Equal(t, []byte{9, 2, 3}, shared.Bytes())
	assert.Equal(t, []byte{1, 2, 3}, copied.Bytes())

	w := NewDataWriterFromString("go")
	assert.Equal(t, []byte{2, 0, 'g', 'o'}, w.Bytes())
}

func TestDataWriter_SetPosition(t *testing.T) {
	w := NewDataWriter()
	w.PutUint16(0)
	w.PutString("abc")
	end := w.SetPosition(0)
	w.PutUint16(uint16(end - 2))
	w.SetPosition(end)

	r := NewDataReaderFromWriter(w)
	n, err := r.GetUint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(5), n)
}

func TestDataWriter_SetPositionNegative(t *testing.T) {
	w := NewDataWriter()
	w.PutByte(7)
	assert.Equal(t, 1, w.SetPosition(-1))
	assert.ErrorIs(t, w.Err(), merr.ErrParameterInvalid)
	assert.Equal(t, 1, w.Length())

	w.PutByte(8)
	assert.Equal(t, []byte{7, 8}, w.Bytes())
}
