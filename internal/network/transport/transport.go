package transport

import (
	"net/netip"
	"strings"

	"github.com/lk2023060901/danmu-netcodec/internal/network/netdata"
)

// Transport 将一段已经编码好的数据发送到指定端点。
//
// Send 返回后实现不得继续持有 data。
type Transport interface {
	Send(data []byte, to netip.AddrPort) error
}

// ReceiveFunc 在收到一个数据报时被调用。
//
// r 直接引用接收缓冲区，只在回调执行期间有效；需要保留数据时调用方自行拷贝。
type ReceiveFunc func(from netip.AddrPort, r *netdata.DataReader)

// 每个数据报的第一个字节标记载荷的编码方式，不属于包的线格式。
const (
	frameRaw  byte = 0
	frameZstd byte = 1

	frameHeaderSize = 1
)

const (
	defaultMaxDatagramSize = 1432
	defaultReadBufferSize  = 65535
	defaultCompressMinSize = 256
)

// Options 描述 UDP 传输层的配置。
type Options struct {
	// Listen 为本地监听地址，例如 "127.0.0.1:9050"，端口为 0 时由系统分配。
	Listen string `mapstructure:"listen"`
	// MaxDatagramSize 为单个数据报（含 1 字节帧头）的最大字节数。
	MaxDatagramSize int `mapstructure:"maxDatagramSize"`
	// ReadBufferSize 为接收缓冲区大小，同时限制解压后的最大字节数。
	ReadBufferSize int `mapstructure:"readBufferSize"`
	// Compression 为压缩算法名称：none 或 zstd。
	Compression string `mapstructure:"compression"`
	// CompressMinSize 为触发压缩的最小载荷字节数，压缩后未变小时按原样发送。
	CompressMinSize int `mapstructure:"compressMinSize"`
	// BroadcastWorkers 为 PeerManager 广播使用的协程池大小。
	BroadcastWorkers int `mapstructure:"broadcastWorkers"`
}

func (o Options) withDefaults() Options {
	if o.MaxDatagramSize <= frameHeaderSize {
		o.MaxDatagramSize = defaultMaxDatagramSize
	}
	if o.ReadBufferSize <= 0 {
		o.ReadBufferSize = defaultReadBufferSize
	}
	o.Compression = strings.ToLower(strings.TrimSpace(o.Compression))
	if o.CompressMinSize <= 0 {
		o.CompressMinSize = defaultCompressMinSize
	}
	return o
}
