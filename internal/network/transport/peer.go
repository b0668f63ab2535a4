package transport

import (
	"net/netip"

	"go.uber.org/atomic"

	"github.com/lk2023060901/danmu-netcodec/internal/network"
	"github.com/lk2023060901/danmu-netcodec/pkg/util/merr"
)

// Peer 表示一个通过 Transport 可达的远端。
//
// DeliveryMethod 只随 API 透传：所有数据都以单个不可靠数据报发出，
// 可靠性、顺序与分片不在本层实现。
type Peer struct {
	id        int32
	endpoint  netip.AddrPort
	mtu       int
	transport Transport

	tag atomic.Pointer[tagBox]
}

type tagBox struct{ v any }

// NewPeer 创建一个 Peer，mtu 为该远端单个数据报的最大字节数（含帧头）。
func NewPeer(id int32, endpoint netip.AddrPort, mtu int, transport Transport) *Peer {
	if mtu <= frameHeaderSize {
		mtu = defaultMaxDatagramSize
	}
	return &Peer{
		id:        id,
		endpoint:  endpoint,
		mtu:       mtu,
		transport: transport,
	}
}

// ID 返回远端标识，可作为业务侧的索引键。
func (p *Peer) ID() int32 { return p.id }

// EndPoint 返回远端地址。
func (p *Peer) EndPoint() netip.AddrPort { return p.endpoint }

// MTU 返回单个数据报的最大字节数。
func (p *Peer) MTU() int { return p.mtu }

// Tag 返回业务侧附加在 Peer 上的对象。
func (p *Peer) Tag() any {
	if box := p.tag.Load(); box != nil {
		return box.v
	}
	return nil
}

// SetTag 设置业务侧附加对象。
func (p *Peer) SetTag(tag any) { p.tag.Store(&tagBox{v: tag}) }

// MaxSinglePacketSize 返回不经分片即可发送的最大载荷字节数。
func (p *Peer) MaxSinglePacketSize(_ network.DeliveryMethod) int {
	return p.mtu - frameHeaderSize
}

// Send 将 data 作为一个数据报发往该远端，超过 MaxSinglePacketSize 时返回 ErrParameterTooLarge。
func (p *Peer) Send(data []byte, method network.DeliveryMethod) error {
	if limit := p.MaxSinglePacketSize(method); len(data) > limit {
		return merr.WrapErrParameterTooLarge("packet", len(data), limit, method.String())
	}
	return p.transport.Send(data, p.endpoint)
}
