package serializer

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/lk2023060901/danmu-netcodec/internal/network/netdata"
)

// CBORSerializer 使用确定性（canonical）CBOR 编码，相同的值总是得到相同的字节。
type CBORSerializer struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// 编译期断言：确保 CBORSerializer 实现了 Serializer 接口。
var _ Serializer = (*CBORSerializer)(nil)

// NewCBORSerializer 创建一个 CBORSerializer。
//
// 解码端限制单个数组/映射的元素个数不超过 netdata.MaxLength，
// 与嵌套字段的 uint16 长度前缀保持同一量级。
func NewCBORSerializer() (*CBORSerializer, error) {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	dm, err := cbor.DecOptions{
		MaxArrayElements: netdata.MaxLength,
		MaxMapPairs:      netdata.MaxLength,
	}.DecMode()
	if err != nil {
		return nil, err
	}
	return &CBORSerializer{enc: em, dec: dm}, nil
}

func (c *CBORSerializer) Marshal(v any) ([]byte, error) { return c.enc.Marshal(v) }

func (c *CBORSerializer) Unmarshal(data []byte, v any) error { return c.dec.Unmarshal(data, v) }

func (c *CBORSerializer) Name() string { return NameCBOR }
