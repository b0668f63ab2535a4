package serializer

import (
	"github.com/bytedance/sonic"
)

// JSONSerializer 使用 bytedance/sonic 实现 JSON 编解码，行为与 encoding/json 兼容。
type JSONSerializer struct{}

// 编译期断言：确保 JSONSerializer 实现了 Serializer 接口。
var _ Serializer = (*JSONSerializer)(nil)

func (JSONSerializer) Marshal(v any) ([]byte, error) {
	return sonic.ConfigStd.Marshal(v)
}

func (JSONSerializer) Unmarshal(data []byte, v any) error {
	return sonic.ConfigStd.Unmarshal(data, v)
}

func (JSONSerializer) Name() string { return NameJSON }
