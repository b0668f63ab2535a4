package viper

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type transportSection struct {
	Listen          string `mapstructure:"listen"`
	MaxDatagramSize int    `mapstructure:"maxDatagramSize"`
	Compression     string `mapstructure:"compression"`
}

func TestConfig_FileDefaultsAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("transport:\n  listen: 0.0.0.0:7000\n"), 0o644))

	c := New("NETCODECTEST")
	c.SetDefaults(map[string]any{
		"transport.listen":          "127.0.0.1:9050",
		"transport.maxDatagramSize": 1432,
		"transport.compression":     "none",
	})
	require.NoError(t, c.LoadFile(path))
	assert.Equal(t, path, c.ConfigFileUsed())

	t.Setenv("NETCODECTEST_TRANSPORT_COMPRESSION", "zstd")

	var section transportSection
	require.NoError(t, c.UnmarshalKey("transport", &section))
	assert.Equal(t, "0.0.0.0:7000", section.Listen)
	assert.Equal(t, 1432, section.MaxDatagramSize)
	assert.Equal(t, "zstd", section.Compression)
	assert.Equal(t, "zstd", c.GetString("transport.compression"))
	assert.True(t, c.IsSet("transport.listen"))
}

func TestConfig_LoadBytes(t *testing.T) {
	c := New("")
	require.NoError(t, c.LoadBytes("json", []byte(`{"log":{"level":"warn"}}`)))
	assert.Equal(t, "warn", c.GetString("log.level"))
	assert.Equal(t, 0, c.GetInt("log.missing"))
	assert.False(t, c.GetBool("log.stdout"))
}

func TestConfig_MissingFile(t *testing.T) {
	c := New("")
	assert.Error(t, c.LoadFile(filepath.Join(t.TempDir(), "absent.yaml")))
}

func TestConfig_UnmarshalKeyWithoutFile(t *testing.T) {
	c := New("NETCODECTEST")
	c.SetDefaults(map[string]any{
		"transport.listen":          "127.0.0.1:9050",
		"transport.maxDatagramSize": 1432,
		"transport.compression":     "none",
	})
	t.Setenv("NETCODECTEST_TRANSPORT_MAXDATAGRAMSIZE", "512")

	var section transportSection
	require.NoError(t, c.UnmarshalKey("Transport", &section))
	assert.Equal(t, transportSection{Listen: "127.0.0.1:9050", MaxDatagramSize: 512, Compression: "none"}, section)

	untouched := transportSection{Listen: "keep"}
	require.NoError(t, c.UnmarshalKey("transport.listen.deeper", &untouched))
	require.NoError(t, c.UnmarshalKey("absent", &untouched))
	assert.Equal(t, "keep", untouched.Listen)
}
