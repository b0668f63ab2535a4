package compressor

import (
	"runtime"

	"github.com/klauspost/compress/zstd"

	"github.com/lk2023060901/danmu-netcodec/pkg/util/merr"
)

// ZstdOptions 描述 ZstdCompressor 的可调参数，零值即为默认配置。
type ZstdOptions struct {
	// Concurrency <= 0 时使用 GOMAXPROCS。
	Concurrency int
	// Level 为压缩等级，零值为 zstd.SpeedFastest（数据报通常很小，优先延迟）。
	Level zstd.EncoderLevel
	// MaxDecodedSize > 0 时限制单次解压的输出字节数，防止解压炸弹。
	MaxDecodedSize int
}

// ZstdCompressor 基于 github.com/klauspost/compress/zstd 的压缩实现。
//
// 它持有独立的 encoder/decoder 实例，EncodeAll/DecodeAll 可以被并发调用。
type ZstdCompressor struct {
	enc            *zstd.Encoder
	dec            *zstd.Decoder
	maxDecodedSize int
}

// 编译期断言：确保 ZstdCompressor 实现了 Compressor 接口。
var _ Compressor = (*ZstdCompressor)(nil)

// NewZstdCompressor 创建一个 ZstdCompressor。
func NewZstdCompressor(opts ZstdOptions) (*ZstdCompressor, error) {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	level := opts.Level
	if level == 0 {
		level = zstd.SpeedFastest
	}

	enc, err := zstd.NewWriter(nil,
		zstd.WithZeroFrames(true),
		zstd.WithEncoderConcurrency(concurrency),
		zstd.WithEncoderLevel(level),
	)
	if err != nil {
		return nil, err
	}
	decOpts := []zstd.DOption{zstd.WithDecoderConcurrency(concurrency)}
	if opts.MaxDecodedSize > 0 {
		decOpts = append(decOpts, zstd.WithDecoderMaxMemory(uint64(opts.MaxDecodedSize)))
	}
	dec, err := zstd.NewReader(nil, decOpts...)
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &ZstdCompressor{
		enc:            enc,
		dec:            dec,
		maxDecodedSize: opts.MaxDecodedSize,
	}, nil
}

// Compress 实现 Compressor 接口。
func (c *ZstdCompressor) Compress(dst, src []byte) ([]byte, error) {
	if c == nil || c.enc == nil {
		return nil, zstd.ErrEncoderClosed
	}
	return c.enc.EncodeAll(src, dst[:0]), nil
}

// Decompress 实现 Compressor 接口。
func (c *ZstdCompressor) Decompress(dst, src []byte) ([]byte, error) {
	if c == nil || c.dec == nil {
		return nil, zstd.ErrDecoderClosed
	}
	out, err := c.dec.DecodeAll(src, dst[:0])
	if err != nil {
		return nil, err
	}
	if c.maxDecodedSize > 0 && len(out) > c.maxDecodedSize {
		return nil, merr.WrapErrParameterTooLarge("zstd_decoded", len(out), c.maxDecodedSize)
	}
	return out, nil
}

// Close 释放内部 encoder/decoder 持有的资源。
//
// 再次使用已关闭实例将返回 ErrEncoderClosed/ErrDecoderClosed。
func (c *ZstdCompressor) Close() {
	if c == nil {
		return
	}
	if c.enc != nil {
		_ = c.enc.Close()
		c.enc = nil
	}
	if c.dec != nil {
		c.dec.Close()
		c.dec = nil
	}
}
