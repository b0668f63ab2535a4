package main

import (
	"github.com/lk2023060901/danmu-netcodec/internal/network/netdata"
	"github.com/lk2023060901/danmu-netcodec/internal/network/packet"
)

// ChatMessage 按字段顺序反射编码。
type ChatMessage struct {
	Channel uint8
	Sender  string
	Text    string
	SentAt  int64
}

func (*ChatMessage) PacketTypeName() string { return "Netcodec.Demo.ChatMessage" }

// Ping 由服务端原样回送，客户端据此计算往返时延。
type Ping struct {
	Seq    uint32
	SentAt int64
}

func (*Ping) PacketTypeName() string { return "Netcodec.Demo.Ping" }

func (p *Ping) Serialize(w *netdata.DataWriter) {
	w.PutUint32(p.Seq)
	w.PutInt64(p.SentAt)
}

func (p *Ping) Deserialize(r *netdata.DataReader) error {
	seq, err := r.GetUint32()
	if err != nil {
		return err
	}
	sentAt, err := r.GetInt64()
	if err != nil {
		return err
	}
	p.Seq, p.SentAt = seq, sentAt
	return nil
}

var (
	_ packet.Named         = (*ChatMessage)(nil)
	_ netdata.Serializable = (*Ping)(nil)
)
