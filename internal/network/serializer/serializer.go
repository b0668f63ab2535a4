package serializer

import (
	"strings"

	"github.com/lk2023060901/danmu-netcodec/pkg/util/merr"
)

// Serializer 抽象了“对象 <-> 字节流”的通用序列化能力。
//
// 在本模块中它只用于嵌套字段：packet.RegisterSerializerNestedType 把任意 Serializer
// 适配为一个嵌套编解码器，序列化结果以 uint16 长度前缀的字节串写入包体，
// 外层的类型标识与字段顺序仍由 netdata 线格式决定。
type Serializer interface {
	// Marshal 将任意对象编码为字节序列。
	Marshal(v any) ([]byte, error)

	// Unmarshal 将字节序列解码到目标对象。
	//
	// v 通常为指针类型，用于接收解码结果。
	Unmarshal(data []byte, v any) error

	// Name 返回序列化方案名称，用于日志与配置。
	Name() string
}

const (
	NameJSON  = "json"
	NameProto = "proto"
	NameCBOR  = "cbor"
)

// New 按名称创建 Serializer，名称不区分大小写。
func New(name string) (Serializer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case NameJSON:
		return JSONSerializer{}, nil
	case NameProto, "protobuf":
		return ProtoSerializer{}, nil
	case NameCBOR:
		return NewCBORSerializer()
	default:
		return nil, merr.WrapErrParameterInvalidMsg("unknown serializer %q", name)
	}
}
