package transport

import "net/netip"

// 目标地址压缩表示：仅保留 IPv4 地址的低位字节，端口固定为 0。
// 用于在局域网内以 1 或 2 个字节标识一个目标。

// TargetFromByte 将单字节目标还原为 "b.0.0.0:0"。
func TargetFromByte(target byte) netip.AddrPort {
	return netip.AddrPortFrom(netip.AddrFrom4([4]byte{target, 0, 0, 0}), 0)
}

// ByteTarget 返回地址的第一个字节。
func ByteTarget(endpoint netip.AddrPort) byte {
	if !endpoint.Addr().IsValid() {
		return 0
	}
	return endpoint.Addr().AsSlice()[0]
}

// ShortTarget 返回地址前两个字节组成的小端 16 位值。
func ShortTarget(endpoint netip.AddrPort) int16 {
	if !endpoint.Addr().IsValid() {
		return 0
	}
	b := endpoint.Addr().AsSlice()
	return int16(uint16(b[1])<<8 | uint16(b[0]))
}

// TargetFromShort 将 16 位目标还原为 "lo.hi.0.0:0"。
func TargetFromShort(target int16) netip.AddrPort {
	v := uint16(target)
	return netip.AddrPortFrom(netip.AddrFrom4([4]byte{byte(v), byte(v >> 8), 0, 0}), 0)
}
