package transport

import (
	"context"
	"net"
	"net/netip"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-netcodec/internal/network"
	"github.com/lk2023060901/danmu-netcodec/internal/network/compressor"
	"github.com/lk2023060901/danmu-netcodec/internal/network/netdata"
	"github.com/lk2023060901/danmu-netcodec/internal/pool/writerpool"
	"github.com/lk2023060901/danmu-netcodec/pkg/log"
	"github.com/lk2023060901/danmu-netcodec/pkg/metrics"
	"github.com/lk2023060901/danmu-netcodec/pkg/util/merr"
)

// UDPTransport 是基于单个 UDP socket 的 Transport 实现。
//
// 每个数据报独立成帧：1 字节帧头标记是否经过 zstd 压缩，其后为一个或多个首尾相接的包。
// Send 可以被并发调用；Serve 只能由一个 goroutine 调用。
type UDPTransport struct {
	log.Binder

	conn  *net.UDPConn
	local netip.AddrPort
	opts  Options

	// compMu 保护 comp 在 Close 之后不再被使用。
	compMu sync.RWMutex
	comp   compressor.Compressor

	writers *writerpool.Pool

	closed    atomic.Bool
	closeOnce sync.Once
}

// 确保 UDPTransport 实现了 Transport 接口。
var _ Transport = (*UDPTransport)(nil)

// ListenUDP 在 opts.Listen 上创建一个 UDPTransport。
func ListenUDP(opts Options) (*UDPTransport, error) {
	opts = opts.withDefaults()
	addr, err := netip.ParseAddrPort(opts.Listen)
	if err != nil {
		return nil, merr.WrapErrParameterInvalidMsg("invalid listen address %q: %v", opts.Listen, err)
	}
	comp, err := compressor.New(opts.Compression, opts.ReadBufferSize)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(addr))
	if err != nil {
		comp.Close()
		return nil, merr.WrapErrIoFailed(opts.Listen, err)
	}

	t := &UDPTransport{
		conn:    conn,
		local:   conn.LocalAddr().(*net.UDPAddr).AddrPort(),
		opts:    opts,
		comp:    comp,
		writers: writerpool.New(opts.MaxDatagramSize),
	}
	t.BindComponent("udp-transport", zap.Stringer("local", t.local))
	t.Logger().Info("udp transport listening",
		zap.String("compression", opts.Compression),
		zap.Int("maxDatagramSize", opts.MaxDatagramSize))
	return t, nil
}

// LocalAddr 返回实际绑定的本地地址。
func (t *UDPTransport) LocalAddr() netip.AddrPort { return t.local }

// MaxPayloadSize 返回单个数据报可携带的最大载荷字节数。
func (t *UDPTransport) MaxPayloadSize() int {
	return t.opts.MaxDatagramSize - frameHeaderSize
}

// Send 实现 Transport.Send。
func (t *UDPTransport) Send(data []byte, to netip.AddrPort) error {
	if t.closed.Load() {
		return merr.WrapErrTransportClosed(t.LocalAddr().String())
	}

	w := t.writers.Get()
	defer t.writers.Put(w)
	if err := t.frame(w, data); err != nil {
		metrics.TransportErrorsTotal.WithLabelValues(metrics.DirectionOut).Inc()
		return err
	}
	if w.Length() > t.opts.MaxDatagramSize {
		metrics.TransportErrorsTotal.WithLabelValues(metrics.DirectionOut).Inc()
		return merr.WrapErrParameterTooLarge("datagram", w.Length(), t.opts.MaxDatagramSize)
	}

	n, err := t.conn.WriteToUDPAddrPort(w.Bytes(), to)
	if err != nil {
		metrics.TransportErrorsTotal.WithLabelValues(metrics.DirectionOut).Inc()
		if t.closed.Load() {
			return merr.WrapErrTransportClosed(t.LocalAddr().String())
		}
		return errors.Wrapf(network.ErrSendFailed, "send to %s: %v", to, err)
	}
	observeDatagram(metrics.DirectionOut, n)
	return nil
}

// frame 将 data 写为一个完整数据报：帧头 + 原始或压缩后的载荷。
func (t *UDPTransport) frame(w *netdata.DataWriter, data []byte) error {
	if t.opts.Compression != compressor.NameZstd || len(data) < t.opts.CompressMinSize {
		w.PutByte(frameRaw)
		w.PutBytes(data)
		return nil
	}
	t.compMu.RLock()
	compressed, err := t.comp.Compress(nil, data)
	t.compMu.RUnlock()
	if err != nil {
		return errors.Wrap(network.ErrEncodeFailed, err.Error())
	}
	if len(compressed) >= len(data) {
		w.PutByte(frameRaw)
		w.PutBytes(data)
		return nil
	}
	w.PutByte(frameZstd)
	w.PutBytes(compressed)
	return nil
}

// Serve 持续接收数据报并交给 fn，直到 ctx 取消或 Close 被调用。
//
// ctx 取消时返回 ctx.Err()；Close 导致的退出返回 nil。
func (t *UDPTransport) Serve(ctx context.Context, fn ReceiveFunc) error {
	if fn == nil {
		return merr.WrapErrParameterMissing("receive func")
	}

	stop := context.AfterFunc(ctx, func() { _ = t.Close() })
	defer stop()

	buf := make([]byte, t.opts.ReadBufferSize)
	var decoded []byte
	reader := &netdata.DataReader{}

	for {
		n, from, err := t.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if t.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			metrics.TransportErrorsTotal.WithLabelValues(metrics.DirectionIn).Inc()
			t.Logger().Warn("udp read failed", log.FieldStage(network.StageRecvRaw), zap.Error(err))
			return errors.Wrap(network.ErrRecvFailed, err.Error())
		}
		if n < frameHeaderSize {
			continue
		}
		observeDatagram(metrics.DirectionIn, n)

		switch buf[0] {
		case frameRaw:
			if err := reader.SetSourceRange(buf, frameHeaderSize, n); err != nil {
				continue
			}
		case frameZstd:
			if t.opts.Compression != compressor.NameZstd {
				t.dropDatagram(from, "compressed datagram while compression disabled")
				continue
			}
			t.compMu.RLock()
			decoded, err = t.comp.Decompress(decoded, buf[frameHeaderSize:n])
			t.compMu.RUnlock()
			if err != nil {
				t.dropDatagram(from, "decompress failed", zap.Error(err))
				continue
			}
			reader.SetSource(decoded)
		default:
			t.dropDatagram(from, "unknown frame header", zap.Uint8("header", buf[0]))
			continue
		}
		fn(from, reader)
	}
}

func (t *UDPTransport) dropDatagram(from netip.AddrPort, msg string, fields ...zap.Field) {
	metrics.TransportErrorsTotal.WithLabelValues(metrics.DirectionIn).Inc()
	fields = append(fields, log.FieldStage(network.StageRecvRaw), zap.Stringer(log.FieldNameRemote, from))
	t.Logger().RatedWarn(1, msg, fields...)
}

// Close 关闭底层 socket 与压缩器，可重复调用。
func (t *UDPTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		err = t.conn.Close()
		t.compMu.Lock()
		t.comp.Close()
		t.compMu.Unlock()
		t.Logger().Info("udp transport closed")
	})
	return err
}

func observeDatagram(direction string, n int) {
	metrics.TransportDatagramsTotal.WithLabelValues(direction).Inc()
	metrics.TransportBytesTotal.WithLabelValues(direction).Add(float64(n))
	metrics.TransportDatagramBytes.WithLabelValues(direction).Observe(float64(n))
}
