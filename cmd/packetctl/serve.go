package main

import (
	"context"
	"net/netip"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-netcodec/application"
	"github.com/lk2023060901/danmu-netcodec/internal/network"
	"github.com/lk2023060901/danmu-netcodec/internal/network/netdata"
	"github.com/lk2023060901/danmu-netcodec/internal/network/packet"
	"github.com/lk2023060901/danmu-netcodec/internal/network/transport"
	"github.com/lk2023060901/danmu-netcodec/pkg/log"
)

// defaultMaxPeers 为 relay 同时跟踪的对端数量上限。
const defaultMaxPeers = 1024

func serveCmd(app *application.Application) *cobra.Command {
	var (
		listen   string
		maxPeers int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a relay server",
		Long: `Listen on UDP, answer pings and rebroadcast chat messages to every other
known peer. A peer becomes known when its first datagram arrives; once
--max-peers sources are tracked the least recently heard one is forgotten.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := app.TransportOptions()
			if listen != "" {
				opts.Listen = listen
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			go func() {
				if err := app.ServeMetrics(ctx); err != nil {
					log.Warn("metrics endpoint stopped", zap.Error(err))
				}
			}()
			return runServe(ctx, app.PacketOptions(), opts, maxPeers)
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (overrides transport.listen)")
	cmd.Flags().IntVar(&maxPeers, "max-peers", defaultMaxPeers, "maximum number of tracked peers")
	return cmd
}

func runServe(ctx context.Context, packetOpts packet.Options, opts transport.Options, maxPeers int) error {
	tr, err := transport.ListenUDP(opts)
	if err != nil {
		return err
	}
	defer tr.Close()

	srv, err := newRelayServer(ctx, packetOpts, tr, opts, maxPeers)
	if err != nil {
		return err
	}
	defer srv.peers.Close()

	info("listening on %s (compression=%s, max-peers=%d)", tr.LocalAddr(), opts.Compression, srv.maxPeers)
	if err := tr.Serve(ctx, srv.onDatagram); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	info("stopped, %d peers tracked", srv.peers.Count())
	return nil
}

// relayPeer 是 relay 对一个来源地址的记录，通过 Peer.Tag 挂在 transport.Peer 上。
type relayPeer struct {
	peer *transport.Peer
	// ctx 携带该对端的日志字段
	ctx      context.Context
	lastSeen uint64
}

// relayServer 只在 Serve 协程中被访问，byAddr、nextID 与 clock 无需加锁。
type relayServer struct {
	log.Binder

	ctx      context.Context
	proc     *packet.Processor
	tr       transport.Transport
	mtu      int
	maxPeers int
	peers    *transport.PeerManager
	byAddr   map[netip.AddrPort]*relayPeer
	nextID   int32
	// clock 每收到一个数据报加一，用于找出最久未活动的对端。
	clock uint64
}

func newRelayServer(ctx context.Context, packetOpts packet.Options, tr transport.Transport, opts transport.Options, maxPeers int) (*relayServer, error) {
	if maxPeers <= 0 {
		maxPeers = defaultMaxPeers
	}
	s := &relayServer{
		ctx:      ctx,
		proc:     packet.New(packetOpts),
		tr:       tr,
		mtu:      opts.MaxDatagramSize,
		maxPeers: maxPeers,
		peers:    transport.NewPeerManager(opts.BroadcastWorkers),
		byAddr:   make(map[netip.AddrPort]*relayPeer),
	}
	s.BindComponent("relay-server")
	if err := registerDemoPackets(s.proc, demoHandlers{chat: s.onChat, ping: s.onPing}); err != nil {
		s.peers.Close()
		return nil, err
	}
	return s, nil
}

func (s *relayServer) peerFor(from netip.AddrPort) *relayPeer {
	s.clock++
	if rp, ok := s.byAddr[from]; ok {
		rp.lastSeen = s.clock
		return rp
	}
	if len(s.byAddr) >= s.maxPeers {
		s.evictOldest()
	}
	s.nextID++
	peer := transport.NewPeer(s.nextID, from, s.mtu, s.tr)
	rp := &relayPeer{
		peer:     peer,
		ctx:      log.WithPeer(s.ctx, peer.ID(), from.String()),
		lastSeen: s.clock,
	}
	peer.SetTag(rp)
	if err := s.peers.Add(peer); err != nil {
		log.Ctx(rp.ctx).Warn("register peer failed", zap.Error(err))
	}
	s.byAddr[from] = rp
	return rp
}

func (s *relayServer) evictOldest() {
	var oldest *relayPeer
	for _, rp := range s.byAddr {
		if oldest == nil || rp.lastSeen < oldest.lastSeen {
			oldest = rp
		}
	}
	if oldest == nil {
		return
	}
	delete(s.byAddr, oldest.peer.EndPoint())
	if err := s.peers.Remove(oldest.peer.ID()); err != nil {
		log.Ctx(oldest.ctx).Warn("evict peer failed", zap.Error(err))
		return
	}
	log.Ctx(oldest.ctx).Debug("peer evicted", zap.Int("maxPeers", s.maxPeers))
}

// logger 返回绑定了对端字段的 Logger。
func (s *relayServer) logger(peer *transport.Peer) *log.MLogger {
	if rp, ok := peer.Tag().(*relayPeer); ok {
		return log.Ctx(rp.ctx)
	}
	return s.Logger().With(log.FieldPeer(peer.ID()))
}

func (s *relayServer) onDatagram(from netip.AddrPort, r *netdata.DataReader) {
	rp := s.peerFor(from)
	if err := s.proc.ReadAllPacketsWithUserData(r, rp.peer); err != nil {
		log.Ctx(rp.ctx).RatedWarn(1, "datagram rejected", zap.Error(err))
	}
}

func (s *relayServer) onChat(msg *ChatMessage, from *transport.Peer) {
	logger := s.logger(from)
	logger.Info("chat",
		zap.Uint8("channel", msg.Channel),
		zap.String("sender", msg.Sender),
		zap.String("text", msg.Text))
	data, err := packet.Marshal(s.proc, msg)
	if err != nil {
		logger.Warn("encode chat failed", zap.Error(err))
		return
	}
	if err := s.peers.SendToAllExcept(data, network.ReliableOrdered, from.ID()); err != nil {
		logger.Warn("relay chat failed", zap.Error(err))
	}
}

func (s *relayServer) onPing(ping *Ping, from *transport.Peer) {
	if err := packet.SendNetSerializable(s.proc, from, ping, network.Unreliable); err != nil {
		s.logger(from).Warn("answer ping failed", zap.Error(err))
	}
}
