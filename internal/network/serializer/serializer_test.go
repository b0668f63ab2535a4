package serializer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/lk2023060901/danmu-netcodec/pkg/util/merr"
)

type profile struct {
	Name  string   `json:"name" cbor:"name"`
	Level int      `json:"level" cbor:"level"`
	Tags  []string `json:"tags" cbor:"tags"`
}

func TestSerializers_RoundTrip(t *testing.T) {
	for _, name := range []string{NameJSON, NameCBOR} {
		t.Run(name, func(t *testing.T) {
			ser, err := New(name)
			require.NoError(t, err)
			assert.Equal(t, name, ser.Name())

			in := profile{Name: "alice", Level: 7, Tags: []string{"a", "b"}}
			data, err := ser.Marshal(in)
			require.NoError(t, err)

			var out profile
			require.NoError(t, ser.Unmarshal(data, &out))
			assert.Equal(t, in, out)
		})
	}
}

func TestProtoSerializer(t *testing.T) {
	ser, err := New("Protobuf")
	require.NoError(t, err)

	data, err := ser.Marshal(wrapperspb.String("hello"))
	require.NoError(t, err)

	out := &wrapperspb.StringValue{}
	require.NoError(t, ser.Unmarshal(data, out))
	assert.Equal(t, "hello", out.GetValue())

	_, err = ser.Marshal(profile{})
	assert.ErrorIs(t, err, merr.ErrParameterInvalid)
	assert.ErrorIs(t, ser.Unmarshal(data, &profile{}), merr.ErrParameterInvalid)
}

func TestCBOR_Deterministic(t *testing.T) {
	ser, err := NewCBORSerializer()
	require.NoError(t, err)

	a, err := ser.Marshal(map[string]int{"b": 2, "a": 1, "c": 3})
	require.NoError(t, err)
	b, err := ser.Marshal(map[string]int{"c": 3, "a": 1, "b": 2})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNew_Unknown(t *testing.T) {
	_, err := New("xml")
	assert.ErrorIs(t, err, merr.ErrParameterInvalid)
}
