// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/uber/jaeger-client-go/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// globals 保存进程级 Logger 及其附属对象，整体原子替换。
type globals struct {
	logger *zap.Logger
	sugar  *zap.SugaredLogger
	props  *ZapProperties
}

var (
	_globals atomic.Pointer[globals]
	_limiter atomic.Value // RateLimiter

	_closerMu sync.Mutex
	_closer   func()

	_namedRateLimiters sync.Map
)

// RateLimiter 是限流日志使用的最小接口。
type RateLimiter interface {
	CheckCredit(delta float64) bool
}

type nopRateLimiter struct{}

func (nopRateLimiter) CheckCredit(float64) bool { return true }

func init() {
	lg, props, _ := InitLogger(&Config{Level: "debug", Stdout: true, Format: FormatConsole},
		zap.OnFatal(zapcore.WriteThenPanic))
	ReplaceGlobals(lg, props)
	_limiter.Store(rateLimiterFromEnv())
}

// InitLogger 按配置构建 zap Logger，文件（lumberjack 轮转）与标准输出可以同时开启。
// 返回的 Logger 已跳过一层调用栈，供包级 Info/Warn 等函数使用。
func InitLogger(cfg *Config, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	var (
		outputs []zapcore.WriteSyncer
		file    *lumberjack.Logger
	)
	if len(cfg.File.Filename) > 0 {
		lg, err := initFileLog(&cfg.File)
		if err != nil {
			return nil, nil, err
		}
		file = lg
		outputs = append(outputs, zapcore.AddSync(lg))
	}
	if cfg.Stdout || len(outputs) == 0 {
		stdOut, _, err := zap.Open("stdout")
		if err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, stdOut)
	}
	lg, props, err := newLogger(cfg, zap.CombineWriteSyncers(outputs...), opts...)
	if err != nil {
		return nil, nil, err
	}
	if file != nil {
		swapCloser(func() { _ = file.Close() })
	}
	return lg.WithOptions(zap.AddCallerSkip(1)), props, nil
}

// InitTestLogger 构建一个把日志转发到 t.Logf 的 Logger。
// 测试结束后写入会被丢弃，后台协程晚到的日志不会触发 testing 的 panic。
func InitTestLogger(t TestingT, cfg *Config, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	w := newTestingWriter(t)
	// zap 内部错误同样写入测试输出，并将测试标记为失败。
	opts = append([]zap.Option{zap.ErrorOutput(w.markingFailed())}, opts...)
	lg, props, err := newLogger(cfg, w, opts...)
	if err != nil {
		return nil, nil, err
	}
	return lg.WithOptions(zap.AddCallerSkip(1)), props, nil
}

func newLogger(cfg *Config, output zapcore.WriteSyncer, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.normalizedLevel())); err != nil {
		return nil, nil, errors.Wrapf(err, "invalid log level %q", cfg.Level)
	}
	core := zapcore.NewCore(cfg.newEncoder(), output, level)
	lg := zap.New(core, append(cfg.buildOptions(output), opts...)...)
	return lg, &ZapProperties{Core: core, Syncer: output, Level: level}, nil
}

func initFileLog(cfg *FileLogConfig) (*lumberjack.Logger, error) {
	logPath := filepath.Join(cfg.RootPath, cfg.Filename)
	if st, err := os.Stat(logPath); err == nil && st.IsDir() {
		return nil, errors.Newf("can't use directory %s as log file name", logPath)
	}
	maxSize := cfg.MaxSize
	if maxSize == 0 {
		maxSize = defaultLogMaxSize
	}
	return &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    maxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxDays,
		LocalTime:  true,
	}, nil
}

// L 返回全局 Logger，可通过 ReplaceGlobals 替换，并发安全。
func L() *zap.Logger {
	return _globals.Load().logger
}

// S 返回全局 SugaredLogger。
func S() *zap.SugaredLogger {
	return _globals.Load().sugar
}

// R 返回限流日志使用的全局限流器，未开启限流时返回永不丢弃的实现。
func R() RateLimiter {
	if rl, ok := _limiter.Load().(RateLimiter); ok && rl != nil {
		return rl
	}
	return nopRateLimiter{}
}

// ReplaceGlobals 替换全局 Logger，返回恢复到替换前状态的函数。
func ReplaceGlobals(logger *zap.Logger, props *ZapProperties) func() {
	prev := _globals.Swap(&globals{logger: logger, sugar: logger.Sugar(), props: props})
	return func() {
		if prev != nil {
			_globals.Store(prev)
		}
	}
}

// SetLevel 动态调整全局 Logger 的级别。
func SetLevel(l zapcore.Level) {
	_globals.Load().props.Level.SetLevel(l)
}

// Sync 刷新全局 Logger 缓冲的日志。
func Sync() error {
	return L().Sync()
}

// Cleanup 关闭最近一次 InitLogger 打开的日志文件。
func Cleanup() {
	swapCloser(nil)
}

func swapCloser(closer func()) {
	_closerMu.Lock()
	prev := _closer
	_closer = closer
	_closerMu.Unlock()
	if prev != nil {
		prev()
	}
}

// rateLimiterFromEnv 根据 NETCODEC_LOG_RATE_* 环境变量构建全局限流器：
//
//   - NETCODEC_LOG_RATE_ENABLE: "1"/"true" 开启限流，默认关闭；
//   - NETCODEC_LOG_RATE_CREDIT_PER_SECOND: 每秒补充的额度，默认 1.0；
//   - NETCODEC_LOG_RATE_MAX_BALANCE: 额度上限，默认 60.0。
func rateLimiterFromEnv() RateLimiter {
	if !getenvBool("NETCODEC_LOG_RATE_ENABLE") {
		return nopRateLimiter{}
	}
	credit := getenvFloat("NETCODEC_LOG_RATE_CREDIT_PER_SECOND", 1.0)
	maxBalance := getenvFloat("NETCODEC_LOG_RATE_MAX_BALANCE", 60.0)
	return utils.NewRateLimiter(credit, maxBalance)
}

func getenvBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func getenvFloat(key string, def float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
	if err != nil {
		return def
	}
	return f
}
