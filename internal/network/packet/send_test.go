package packet

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/danmu-netcodec/internal/network"
	"github.com/lk2023060901/danmu-netcodec/internal/network/netdata"
	"github.com/lk2023060901/danmu-netcodec/pkg/util/merr"
)

type recordingPeer struct {
	sent    [][]byte
	methods []network.DeliveryMethod
	err     error
}

func (p *recordingPeer) Send(data []byte, method network.DeliveryMethod) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, append([]byte(nil), data...))
	p.methods = append(p.methods, method)
	return nil
}

func (p *recordingPeer) SendToAll(data []byte, method network.DeliveryMethod) error {
	return p.Send(data, method)
}

func TestSend(t *testing.T) {
	p := New(Options{WriterInitialSize: 16})
	var got []string
	require.NoError(t, Subscribe(p, func(c *chatPacket) { got = append(got, c.Text) }, nil))
	require.NoError(t, SubscribeNetSerializable(p, func(c *pingPacket) { got = append(got, c.Note) }, nil))

	peer := &recordingPeer{}
	require.NoError(t, Send(p, peer, &chatPacket{Text: "hello"}, network.ReliableOrdered))
	require.NoError(t, SendNetSerializable(p, peer, &pingPacket{Note: "ping"}, network.Unreliable))
	require.NoError(t, SendToAll(p, peer, &chatPacket{Text: "all"}, network.Sequenced))
	require.NoError(t, SendNetSerializableToAll(p, peer, &pingPacket{Note: "all-ping"}, network.ReliableUnordered))

	require.Len(t, peer.sent, 4)
	assert.Equal(t, []network.DeliveryMethod{
		network.ReliableOrdered, network.Unreliable, network.Sequenced, network.ReliableUnordered,
	}, peer.methods)
	for _, data := range peer.sent {
		require.NoError(t, p.ReadAllPackets(netdata.NewDataReader(data)))
	}
	assert.Equal(t, []string{"hello", "ping", "all", "all-ping"}, got)
}

func TestSend_Errors(t *testing.T) {
	p := New(Options{})
	peer := &recordingPeer{}

	err := Send(p, peer, &chatPacket{}, network.ReliableOrdered)
	assert.ErrorIs(t, err, merr.ErrCodecUnregisteredType)
	assert.Empty(t, peer.sent)

	require.NoError(t, Subscribe(p, func(*chatPacket) {}, nil))
	assert.ErrorIs(t, Send(p, nil, &chatPacket{}, network.ReliableOrdered), merr.ErrParameterMissing)
	assert.ErrorIs(t, SendToAll(p, nil, &chatPacket{}, network.ReliableOrdered), merr.ErrParameterMissing)

	boom := errors.New("socket closed")
	assert.ErrorIs(t, Send(p, &recordingPeer{err: boom}, &chatPacket{}, network.ReliableOrdered), boom)
}

func TestMarshal(t *testing.T) {
	p := New(Options{})
	require.NoError(t, Subscribe(p, func(*chatPacket) {}, nil))
	require.NoError(t, SubscribeNetSerializable(p, func(*pingPacket) {}, nil))

	a, err := Marshal(p, &chatPacket{Text: "a"})
	require.NoError(t, err)
	b, err := Marshal(p, &chatPacket{Text: "b"})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 8+1+2+1)

	c, err := MarshalNetSerializable(p, &pingPacket{Seq: 1})
	require.NoError(t, err)
	assert.Len(t, c, 8+4+2)

	_, err = Marshal(p, &movePacket{})
	assert.ErrorIs(t, err, merr.ErrCodecUnregisteredType)
}
