package application

import (
	"context"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-netcodec/internal/network/packet"
	"github.com/lk2023060901/danmu-netcodec/internal/network/transport"
	"github.com/lk2023060901/danmu-netcodec/pkg/log"
	"github.com/lk2023060901/danmu-netcodec/pkg/metrics"
	"github.com/lk2023060901/danmu-netcodec/pkg/util/viper"
)

const (
	envPrefix         = "NETCODEC"
	envConfigFilePath = "NETCODEC_CONFIG_FILE_PATH"
	defaultConfigPath = "./config.yaml"
)

// MetricsConfig controls prometheus registration and the optional scrape endpoint.
type MetricsConfig struct {
	Enable bool `mapstructure:"enable"`
	// Listen is the HTTP address serving /metrics and /debug/pprof; empty disables it.
	Listen string `mapstructure:"listen"`
}

// Config is the root configuration of a netcodec process.
type Config struct {
	Log       log.Config        `mapstructure:"log"`
	Packet    packet.Options    `mapstructure:"packet"`
	Transport transport.Options `mapstructure:"transport"`
	Metrics   MetricsConfig     `mapstructure:"metrics"`
}

// defaults lists every key so that NETCODEC_* env overrides apply during Unmarshal.
func defaults() map[string]any {
	return map[string]any{
		"log.level":             "info",
		"log.format":            log.FormatConsole,
		"log.stdout":            true,
		"log.disableTimestamp":  false,
		"log.disableCaller":     false,
		"log.disableStacktrace": false,
		"log.development":       false,
		"log.file.rootpath":     "",
		"log.file.filename":     "",
		"log.file.maxSize":      300,
		"log.file.maxDays":      0,
		"log.file.maxBackups":   0,

		"packet.permissive":        false,
		"packet.writerInitialSize": 64,

		"transport.listen":           "127.0.0.1:9050",
		"transport.maxDatagramSize":  1432,
		"transport.readBufferSize":   65535,
		"transport.compression":      "none",
		"transport.compressMinSize":  256,
		"transport.broadcastWorkers": 8,

		"metrics.enable": true,
		"metrics.listen": "",
	}
}

// Application is the runtime container of a netcodec process.
// It owns configuration and initialises logging and metrics.
type Application struct {
	v   *viper.Config
	cfg Config
}

// New creates a new Application instance.
func New() *Application {
	return &Application{}
}

// Run parses os.Args and bootstraps the application. See RunArgs.
func (a *Application) Run() error {
	return a.RunArgs(os.Args[1:])
}

// RunArgs loads configuration and initialises logging and metrics.
//
// The config file is resolved with the following priority:
//  1. CLI: --config <path> or --config=<path>
//  2. Env: NETCODEC_CONFIG_FILE_PATH
//  3. Default: ./config.yaml (skipped when absent)
func (a *Application) RunArgs(args []string) error {
	if err := a.loadConfig(args); err != nil {
		return err
	}
	if err := a.initLogging(); err != nil {
		return err
	}
	if a.cfg.Metrics.Enable {
		metrics.Register(metrics.GetRegisterer())
	}
	log.Info("application initialized",
		zap.String("config", a.ConfigFileUsed()),
		zap.String("listen", a.cfg.Transport.Listen),
		zap.String("compression", a.cfg.Transport.Compression),
		zap.Bool("permissive", a.cfg.Packet.Permissive))
	return nil
}

// Config returns the loaded configuration.
func (a *Application) Config() Config {
	return a.cfg
}

// PacketOptions returns the dispatcher section.
func (a *Application) PacketOptions() packet.Options {
	return a.cfg.Packet
}

// TransportOptions returns the UDP transport section.
func (a *Application) TransportOptions() transport.Options {
	return a.cfg.Transport
}

// ConfigFileUsed returns the config file actually loaded, or "" when running on defaults.
func (a *Application) ConfigFileUsed() string {
	if a.v == nil {
		return ""
	}
	return a.v.ConfigFileUsed()
}

// ServeMetrics exposes /metrics (and the pprof handlers) on Metrics.Listen until ctx is done.
// It returns nil immediately when no listen address is configured.
func (a *Application) ServeMetrics(ctx context.Context) error {
	addr := a.cfg.Metrics.Listen
	if addr == "" || !a.cfg.Metrics.Enable {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/debug/pprof/", http.DefaultServeMux)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	defer stop()

	log.Info("metrics endpoint listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrapf(err, "serve metrics on %s", addr)
	}
	return nil
}

// loadConfig resolves the config file path and unmarshals the whole tree.
func (a *Application) loadConfig(args []string) error {
	configPath, explicit := defaultConfigPath, false

	if envPath := os.Getenv(envConfigFilePath); envPath != "" {
		configPath, explicit = envPath, true
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" {
			if i+1 >= len(args) {
				return errors.New("missing value after --config")
			}
			configPath, explicit = args[i+1], true
			i++
			continue
		}
		if strings.HasPrefix(arg, "--config=") {
			if val := strings.TrimPrefix(arg, "--config="); val != "" {
				configPath, explicit = val, true
			}
		}
	}

	v := viper.New(envPrefix)
	v.SetDefaults(defaults())

	if _, err := os.Stat(configPath); err == nil || explicit {
		if err := v.LoadFile(configPath); err != nil {
			return errors.Wrapf(err, "failed to load config file %q", configPath)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrapf(err, "stat config file %q", configPath)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return errors.Wrap(err, "unmarshal config")
	}
	a.v = v
	a.cfg = cfg
	return nil
}

// initLogging initialises the process-wide logger from the log section.
func (a *Application) initLogging() error {
	logger, props, err := log.InitLogger(&a.cfg.Log)
	if err != nil {
		return errors.Wrap(err, "init global logger")
	}
	log.ReplaceGlobals(logger, props)
	return nil
}
