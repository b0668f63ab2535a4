package main

import (
	"bytes"
	"context"
	"fmt"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/danmu-netcodec/internal/network"
	"github.com/lk2023060901/danmu-netcodec/internal/network/netdata"
	"github.com/lk2023060901/danmu-netcodec/internal/network/packet"
	"github.com/lk2023060901/danmu-netcodec/internal/network/transport"
)

type demoClient struct {
	proc   *packet.Processor
	server *transport.Peer
	chats  chan string
	pongs  chan uint32
}

func serve(t *testing.T, tr *transport.UDPTransport, fn transport.ReceiveFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = tr.Serve(ctx, fn)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func newDemoClient(t *testing.T, to netip.AddrPort) *demoClient {
	t.Helper()
	tr, err := transport.ListenUDP(transport.Options{Listen: "127.0.0.1:0"})
	require.NoError(t, err)

	c := &demoClient{
		proc:   packet.New(packet.Options{}),
		server: transport.NewPeer(0, to, 0, tr),
		chats:  make(chan string, 8),
		pongs:  make(chan uint32, 8),
	}
	require.NoError(t, registerDemoPackets(c.proc, demoHandlers{
		chat: func(msg *ChatMessage, _ *transport.Peer) { c.chats <- msg.Sender + ": " + msg.Text },
		ping: func(ping *Ping, _ *transport.Peer) { c.pongs <- ping.Seq },
	}))
	serve(t, tr, func(_ netip.AddrPort, r *netdata.DataReader) {
		assert.NoError(t, c.proc.ReadAllPacketsWithUserData(r, c.server))
	})
	return c
}

func (c *demoClient) ping(t *testing.T, seq uint32) {
	t.Helper()
	ping := &Ping{Seq: seq, SentAt: time.Now().UnixNano()}
	require.NoError(t, packet.SendNetSerializable(c.proc, c.server, ping, network.Unreliable))
	select {
	case got := <-c.pongs:
		assert.Equal(t, seq, got)
	case <-time.After(3 * time.Second):
		t.Fatalf("no pong for seq %d", seq)
	}
}

func TestRelayServer(t *testing.T) {
	opts := transport.Options{Listen: "127.0.0.1:0", BroadcastWorkers: 2}
	tr, err := transport.ListenUDP(opts)
	require.NoError(t, err)
	srv, err := newRelayServer(context.Background(), packet.Options{}, tr, opts, 0)
	require.NoError(t, err)
	t.Cleanup(srv.peers.Close)
	serve(t, tr, srv.onDatagram)

	alice := newDemoClient(t, tr.LocalAddr())
	bob := newDemoClient(t, tr.LocalAddr())
	alice.ping(t, 1)
	bob.ping(t, 2)

	msg := &ChatMessage{Channel: 3, Sender: "alice", Text: "hi bob"}
	require.NoError(t, packet.Send(alice.proc, alice.server, msg, network.ReliableOrdered))

	select {
	case got := <-bob.chats:
		assert.Equal(t, "alice: hi bob", got)
	case <-time.After(3 * time.Second):
		t.Fatal("chat was not relayed")
	}

	// 往返一次 ping 之后 alice 仍未收到自己的消息。
	alice.ping(t, 3)
	assert.Empty(t, alice.chats)
}

func TestRelayServer_EvictsLeastRecentPeer(t *testing.T) {
	opts := transport.Options{Listen: "127.0.0.1:0"}
	tr, err := transport.ListenUDP(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	srv, err := newRelayServer(context.Background(), packet.Options{}, tr, opts, 2)
	require.NoError(t, err)
	t.Cleanup(srv.peers.Close)

	a := netip.MustParseAddrPort("10.0.0.1:1000")
	b := netip.MustParseAddrPort("10.0.0.2:1000")
	c := netip.MustParseAddrPort("10.0.0.3:1000")
	empty := func() *netdata.DataReader { return netdata.NewDataReader(nil) }

	srv.onDatagram(a, empty())
	srv.onDatagram(b, empty())
	srv.onDatagram(a, empty())
	srv.onDatagram(c, empty())

	assert.Equal(t, 2, srv.peers.Count())
	assert.Contains(t, srv.byAddr, a)
	assert.Contains(t, srv.byAddr, c)
	assert.NotContains(t, srv.byAddr, b)
	_, ok := srv.peers.Get(2)
	assert.False(t, ok)

	// b 重新出现时得到新的 id，此时 a 最久未活动。
	srv.onDatagram(b, empty())
	assert.Equal(t, int32(4), srv.byAddr[b].peer.ID())
	assert.NotContains(t, srv.byAddr, a)
	assert.Equal(t, 2, srv.peers.Count())

	peer, ok := srv.peers.Get(4)
	require.True(t, ok)
	assert.Same(t, srv.byAddr[b], peer.Tag())
	assert.NotNil(t, srv.logger(peer))
}

func TestRunHash(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runHash(&out, []string{"a"}))
	assert.Equal(t, "0xaf63bd4c8601b7be  a\n", out.String())

	out.Reset()
	require.NoError(t, runHash(&out, nil))
	assert.Contains(t, out.String(), fmt.Sprintf("0x%016x", packet.Hash("Netcodec.Demo.ChatMessage")))
	assert.Contains(t, out.String(), "Netcodec.Demo.Ping")
	assert.Contains(t, out.String(), "reusable=true")
}
