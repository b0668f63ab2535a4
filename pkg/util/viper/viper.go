package viper

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	spfviper "github.com/spf13/viper"
)

// Config 封装 spf13/viper 实例，对外提供精简的 YAML/JSON 配置加载接口。
//
// 读取优先级（高到低）：环境变量 > 配置文件 > SetDefault 设置的默认值。
// 环境变量名由前缀与 key 组成，key 中的 "." 替换为 "_" 并转为大写，
// 例如前缀 NETCODEC 下 transport.listen 对应 NETCODEC_TRANSPORT_LISTEN。
type Config struct {
	v *spfviper.Viper
}

// New 创建一个空的 Config。envPrefix 为空时不读取环境变量。
func New(envPrefix string) *Config {
	v := spfviper.New()
	if envPrefix != "" {
		v.SetEnvPrefix(envPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
	}
	return &Config{v: v}
}

// SetDefault 设置 key 的默认值。
// 只有设置过默认值（或出现在配置文件中）的 key 才会在 Unmarshal 时应用环境变量覆盖。
func (c *Config) SetDefault(key string, value any) {
	c.v.SetDefault(key, value)
}

// SetDefaults 批量设置默认值。
func (c *Config) SetDefaults(values map[string]any) {
	for k, v := range values {
		c.v.SetDefault(k, v)
	}
}

// LoadFile 将 YAML 或 JSON 配置文件加载到 Config 中。
// 文件类型通过扩展名（.yaml/.yml/.json）推断。
func (c *Config) LoadFile(path string) error {
	c.v.SetConfigFile(path)

	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		c.v.SetConfigType("yaml")
	case ".json":
		c.v.SetConfigType("json")
	default:
		// 让 viper 自行推断类型，或在读取时返回清晰的错误信息。
	}

	return c.v.ReadInConfig()
}

// LoadBytes 以给定格式（yaml/json）从内存加载配置。
func (c *Config) LoadBytes(configType string, data []byte) error {
	c.v.SetConfigType(configType)
	return c.v.ReadConfig(bytes.NewReader(data))
}

// ConfigFileUsed 返回实际加载的配置文件路径。
func (c *Config) ConfigFileUsed() string {
	return c.v.ConfigFileUsed()
}

// IsSet 报告 key 是否在任一来源中被设置。
func (c *Config) IsSet(key string) bool {
	return c.v.IsSet(key)
}

// GetString 返回 key 对应的字符串值。
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt 返回 key 对应的整数值。
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetBool 返回 key 对应的布尔值。
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// Unmarshal 将完整配置反序列化到 dst。
// dst 应为结构体或 map 的指针。
func (c *Config) Unmarshal(dst any) error {
	return c.v.Unmarshal(dst)
}

// UnmarshalKey 将指定 key 对应的子配置反序列化到 dst。
// dst 应为结构体或 map 的指针。
//
// 子配置取自 AllSettings，与 Unmarshal 一样合并默认值、配置文件与环境变量；
// key 不存在时 dst 保持不变。
func (c *Config) UnmarshalKey(key string, dst any) error {
	var node any = c.v.AllSettings()
	for _, part := range strings.Split(strings.ToLower(key), ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		if node, ok = m[part]; !ok {
			return nil
		}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           dst,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(node)
}
