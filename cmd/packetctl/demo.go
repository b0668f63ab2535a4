package main

import (
	"github.com/lk2023060901/danmu-netcodec/internal/network/packet"
	"github.com/lk2023060901/danmu-netcodec/internal/network/transport"
)

// demoHandlers 为空回调时注册一个什么都不做的订阅，保证两端类型标识一致。
type demoHandlers struct {
	chat func(msg *ChatMessage, from *transport.Peer)
	ping func(ping *Ping, from *transport.Peer)
}

func registerDemoPackets(proc *packet.Processor, h demoHandlers) error {
	chat := h.chat
	if chat == nil {
		chat = func(*ChatMessage, *transport.Peer) {}
	}
	ping := h.ping
	if ping == nil {
		ping = func(*Ping, *transport.Peer) {}
	}
	if err := packet.SubscribeWithUserData(proc, chat, nil); err != nil {
		return err
	}
	// Serve 在单个协程中分发，复用同一个 Ping 实例是安全的。
	return packet.SubscribeNetSerializableReusableWithUserData(proc, ping)
}
