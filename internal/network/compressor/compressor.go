package compressor

import (
	"strings"

	"github.com/lk2023060901/danmu-netcodec/pkg/util/merr"
)

// Compressor 抽象了“单次压缩/解压”能力。
//
// 在本模块中它只作用于传输层的整个数据报，包的线格式本身不感知压缩。
type Compressor interface {
	// Compress 将 src 压缩后追加到 dst[:0]。
	//
	// dst 一般可以传入一个可复用的缓冲区（长度可为 0），实现可选择复用其底层容量；
	// 返回值 packet 为压缩后的完整数据。
	Compress(dst, src []byte) (packet []byte, err error)

	// Decompress 将压缩数据 src 解压后追加到 dst[:0]。
	//
	// 行为约定与 Compress 对称：src 必须是 Compress 的输出。
	Decompress(dst, src []byte) (plain []byte, err error)

	// Close 释放压缩器持有的资源。
	Close()
}

const (
	NameNone = "none"
	NameZstd = "zstd"
)

// New 按名称创建 Compressor；maxDecodedSize 限制单次解压的输出大小。
func New(name string, maxDecodedSize int) (Compressor, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameNone:
		return NopCompressor{}, nil
	case NameZstd:
		return NewZstdCompressor(ZstdOptions{MaxDecodedSize: maxDecodedSize})
	default:
		return nil, merr.WrapErrParameterInvalidMsg("unknown compressor %q", name)
	}
}

// NopCompressor 是一个空实现：不做任何压缩/解压，直接返回输入内容。
type NopCompressor struct{}

func (NopCompressor) Compress(_ []byte, src []byte) ([]byte, error) {
	return src, nil
}

func (NopCompressor) Decompress(_ []byte, src []byte) ([]byte, error) {
	return src, nil
}

func (NopCompressor) Close() {}

// 编译期断言：确保 NopCompressor 实现了 Compressor 接口。
var _ Compressor = NopCompressor{}
