package main

import (
	"context"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/lk2023060901/danmu-netcodec/application"
	"github.com/lk2023060901/danmu-netcodec/internal/network"
	"github.com/lk2023060901/danmu-netcodec/internal/network/netdata"
	"github.com/lk2023060901/danmu-netcodec/internal/network/packet"
	"github.com/lk2023060901/danmu-netcodec/internal/network/transport"
	"github.com/lk2023060901/danmu-netcodec/pkg/util/merr"
)

type sendOptions struct {
	to      string
	bind    string
	sender  string
	channel uint8
	text    string
	pings   int
	wait    time.Duration
}

func sendCmd(app *application.Application) *cobra.Command {
	var opts sendOptions

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send chat and ping packets to a server",
		Long: `Send one chat message and a number of pings, then print whatever the
server relays back until --wait elapses.

Examples:
  packetctl send --text "hello"
  packetctl send --to 10.0.0.2:9050 --pings 5 --wait 2s`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.to == "" {
				opts.to = app.TransportOptions().Listen
			}
			return runSend(cmd.Context(), app.PacketOptions(), app.TransportOptions(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.to, "to", "", "server address (default transport.listen)")
	cmd.Flags().StringVar(&opts.bind, "bind", "127.0.0.1:0", "local address to send from")
	cmd.Flags().StringVar(&opts.sender, "sender", "packetctl", "sender name carried in chat messages")
	cmd.Flags().Uint8Var(&opts.channel, "channel", 0, "chat channel")
	cmd.Flags().StringVarP(&opts.text, "text", "t", "", "chat text, empty sends no chat message")
	cmd.Flags().IntVarP(&opts.pings, "pings", "n", 1, "number of pings")
	cmd.Flags().DurationVarP(&opts.wait, "wait", "w", time.Second, "how long to wait for replies")

	return cmd
}

func runSend(ctx context.Context, packetOpts packet.Options, trOpts transport.Options, opts sendOptions) error {
	to, err := netip.ParseAddrPort(opts.to)
	if err != nil {
		return merr.WrapErrParameterInvalidMsg("invalid server address %q: %v", opts.to, err)
	}
	trOpts.Listen = opts.bind
	client, err := transport.ListenUDP(trOpts)
	if err != nil {
		return err
	}
	defer client.Close()

	var pongs atomic.Int32
	proc := packet.New(packetOpts)
	err = registerDemoPackets(proc, demoHandlers{
		chat: func(msg *ChatMessage, _ *transport.Peer) {
			info("[%d] %s: %s", msg.Channel, msg.Sender, msg.Text)
		},
		ping: func(ping *Ping, _ *transport.Peer) {
			pongs.Add(1)
			info("pong seq=%d rtt=%s", ping.Seq, time.Since(time.Unix(0, ping.SentAt)))
		},
	})
	if err != nil {
		return err
	}

	server := transport.NewPeer(0, to, trOpts.MaxDatagramSize, client)
	waitCtx, cancel := context.WithTimeout(ctx, opts.wait)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- client.Serve(waitCtx, func(_ netip.AddrPort, r *netdata.DataReader) {
			_ = proc.ReadAllPacketsWithUserData(r, server)
		})
	}()

	if opts.text != "" {
		msg := &ChatMessage{Channel: opts.channel, Sender: opts.sender, Text: opts.text, SentAt: time.Now().UnixNano()}
		if err := packet.Send(proc, server, msg, network.ReliableOrdered); err != nil {
			return err
		}
	}
	for i := 1; i <= opts.pings; i++ {
		ping := &Ping{Seq: uint32(i), SentAt: time.Now().UnixNano()}
		if err := packet.SendNetSerializable(proc, server, ping, network.Unreliable); err != nil {
			return err
		}
	}

	if err := <-done; err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	success("sent to %s, %d/%d pings answered", to, pongs.Load(), opts.pings)
	return nil
}
