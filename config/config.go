// Package config 提供统一的配置加载、校验与热更新能力。
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/wyfcoding/optionlab/logging"
)

// Config 全局顶级配置结构.
type Config struct {
	Version   string          `mapstructure:"version"   toml:"version"`
	Server    ServerConfig    `mapstructure:"server"    toml:"server"`
	Log       LogConfig       `mapstructure:"log"       toml:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"   toml:"metrics"`
	Tracing   TracingConfig   `mapstructure:"tracing"   toml:"tracing"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit" toml:"ratelimit"`
	Pricing   PricingConfig   `mapstructure:"pricing"   toml:"pricing"`
	Surface   SurfaceConfig   `mapstructure:"surface"   toml:"surface"`
	IDGen     IDGenConfig     `mapstructure:"idgen"     toml:"idgen"`
}

// ServerConfig 定义服务器运行时的基础网络与环境参数.
type ServerConfig struct {
	Name        string `mapstructure:"name"        toml:"name"        validate:"required"`
	Environment string `mapstructure:"environment" toml:"environment" validate:"oneof=dev test prod"`
	HTTP        struct {
		Addr              string        `mapstructure:"addr"                toml:"addr"`
		Port              int           `mapstructure:"port"                toml:"port"                validate:"required,min=1,max=65535"`
		ReadTimeout       time.Duration `mapstructure:"read_timeout"        toml:"read_timeout"`
		ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" toml:"read_header_timeout"`
		WriteTimeout      time.Duration `mapstructure:"write_timeout"       toml:"write_timeout"`
		IdleTimeout       time.Duration `mapstructure:"idle_timeout"        toml:"idle_timeout"`
		MaxHeaderBytes    int           `mapstructure:"max_header_bytes"    toml:"max_header_bytes"`
		MaxBodyBytes      int64         `mapstructure:"max_body_bytes"      toml:"max_body_bytes"`
		TrustedProxies    []string      `mapstructure:"trusted_proxies"     toml:"trusted_proxies"`
	} `mapstructure:"http" toml:"http"`
}

// LogConfig 定义日志输出、级别与切割策略.
type LogConfig struct {
	Level         string        `mapstructure:"level"          toml:"level"          validate:"omitempty,oneof=debug info warn error"`
	Format        string        `mapstructure:"format"         toml:"format"         validate:"omitempty,oneof=json text"`
	File          string        `mapstructure:"file"           toml:"file"`           // 日志文件路径。
	MaxSize       int           `mapstructure:"max_size"       toml:"max_size"`       // 单个文件最大大小 (MB)。
	MaxBackups    int           `mapstructure:"max_backups"    toml:"max_backups"`    // 最大备份数。
	MaxAge        int           `mapstructure:"max_age"        toml:"max_age"`        // 最大保留天数。
	Compress      bool          `mapstructure:"compress"       toml:"compress"`       // 是否启用压缩。
	SlowThreshold time.Duration `mapstructure:"slow_threshold" toml:"slow_threshold"` // HTTP 慢请求阈值。
}

// TracingConfig OpenTelemetry 链路追踪配置.
type TracingConfig struct {
	ServiceName  string  `mapstructure:"service_name"  toml:"service_name"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint" toml:"otlp_endpoint" validate:"required_if=Enabled true"`
	SamplerRatio float64 `mapstructure:"sampler_ratio" toml:"sampler_ratio" validate:"gte=0,lte=1"`
	Enabled      bool    `mapstructure:"enabled"       toml:"enabled"`
}

// MetricsConfig 普罗米修斯监控指标暴露配置.
type MetricsConfig struct {
	Port    string `mapstructure:"port"    toml:"port"`
	Path    string `mapstructure:"path"    toml:"path"`
	Enabled bool   `mapstructure:"enabled" toml:"enabled"`
}

// RateLimitConfig 令牌桶限流参数，作用于模拟定价接口.
type RateLimitConfig struct {
	Rate    int  `mapstructure:"rate"    toml:"rate"    validate:"required_if=Enabled true,gte=0"`
	Burst   int  `mapstructure:"burst"   toml:"burst"   validate:"gte=0"`
	Enabled bool `mapstructure:"enabled" toml:"enabled"`
}

// PricingConfig 定价引擎参数，可热更新.
type PricingConfig struct {
	DefaultSeed       uint64        `mapstructure:"default_seed"       toml:"default_seed"`
	DefaultIterations int           `mapstructure:"default_iterations" toml:"default_iterations" validate:"min=1"`
	MaxIterations     int           `mapstructure:"max_iterations"     toml:"max_iterations"     validate:"gtefield=DefaultIterations"`
	Workers           int           `mapstructure:"workers"            toml:"workers"            validate:"min=1"`
	MaxConcurrent     int           `mapstructure:"max_concurrent"     toml:"max_concurrent"     validate:"gte=0"` // 同时运行的模拟数上限，0 不限制。
	Timeout           time.Duration `mapstructure:"timeout"            toml:"timeout"`                             // 单次模拟超时，0 不限制。
}

// SurfaceConfig 价格曲面与希腊字母曲线的默认网格.
type SurfaceConfig struct {
	SpotMin     float64 `mapstructure:"spot_min"      toml:"spot_min"      validate:"gt=0"`
	SpotMax     float64 `mapstructure:"spot_max"      toml:"spot_max"      validate:"gtfield=SpotMin"`
	VolMin      float64 `mapstructure:"vol_min"       toml:"vol_min"       validate:"gt=0"`
	VolMax      float64 `mapstructure:"vol_max"       toml:"vol_max"       validate:"gtfield=VolMin"`
	GridSize    int     `mapstructure:"grid_size"     toml:"grid_size"     validate:"min=1"`
	CurvePoints int     `mapstructure:"curve_points"  toml:"curve_points"  validate:"min=1"`
	MaxGridSize int     `mapstructure:"max_grid_size" toml:"max_grid_size" validate:"gtefield=GridSize,gtefield=CurvePoints"`
	Concurrency int     `mapstructure:"concurrency"   toml:"concurrency"   validate:"gte=0"`
}

// IDGenConfig 请求 ID 生成器参数.
type IDGenConfig struct {
	Type      string `mapstructure:"type"       toml:"type"       validate:"omitempty,oneof=snowflake sonyflake"`
	StartTime string `mapstructure:"start_time" toml:"start_time"`
	MachineID int64  `mapstructure:"machine_id" toml:"machine_id" validate:"gte=0,lte=65535"`
}

// LoggingConfig 转换为 logging 包的配置。
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{
		Service:    c.Server.Name,
		Module:     "app",
		Level:      c.Log.Level,
		Format:     c.Log.Format,
		File:       c.Log.File,
		MaxSize:    c.Log.MaxSize,
		MaxBackups: c.Log.MaxBackups,
		MaxAge:     c.Log.MaxAge,
		Compress:   c.Log.Compress,
	}
}

var (
	mu        sync.Mutex
	vInstance = viper.New()
	onReload  []func(*Config)
	validate  = validator.New()
)

// RegisterReloadHook 注册配置热更新回调。
func RegisterReloadHook(hook func(*Config)) {
	if hook == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	onReload = append(onReload, hook)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.environment", "dev")
	v.SetDefault("server.http.port", 8080)
	v.SetDefault("server.http.read_timeout", 10*time.Second)
	v.SetDefault("server.http.read_header_timeout", 5*time.Second)
	v.SetDefault("server.http.write_timeout", 30*time.Second)
	v.SetDefault("server.http.idle_timeout", 60*time.Second)
	v.SetDefault("server.http.max_body_bytes", 1<<20)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.slow_threshold", 500*time.Millisecond)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("tracing.sampler_ratio", 1.0)
	v.SetDefault("ratelimit.rate", 20)
	v.SetDefault("ratelimit.burst", 40)
	v.SetDefault("pricing.default_seed", 0)
	v.SetDefault("pricing.default_iterations", 10000)
	v.SetDefault("pricing.max_iterations", 1000000)
	v.SetDefault("pricing.workers", 1)
	v.SetDefault("pricing.max_concurrent", 4)
	v.SetDefault("pricing.timeout", 30*time.Second)
	v.SetDefault("surface.spot_min", 50.0)
	v.SetDefault("surface.spot_max", 150.0)
	v.SetDefault("surface.vol_min", 0.1)
	v.SetDefault("surface.vol_max", 1.0)
	v.SetDefault("surface.grid_size", 30)
	v.SetDefault("surface.curve_points", 100)
	v.SetDefault("surface.max_grid_size", 200)
	v.SetDefault("surface.concurrency", 0)
	v.SetDefault("idgen.type", "snowflake")
	v.SetDefault("idgen.machine_id", 1)
}

// Load 读取 TOML 配置文件，叠加 APP_ 前缀的环境变量，校验后开始监听文件变化。
// 热更新时先解码到副本，校验通过才覆盖 conf 并触发回调。
func Load(path string, conf *Config) error {
	mu.Lock()
	defer mu.Unlock()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config error: %w", err)
	}
	if err := decode(v, conf); err != nil {
		return err
	}
	vInstance = v

	v.OnConfigChange(func(event fsnotify.Event) {
		slog.Info("detecting config change", "file", event.Name)
		const debounceTimeout = 500 * time.Millisecond
		time.Sleep(debounceTimeout)

		var next Config
		if err := decode(v, &next); err != nil {
			slog.Error("config reload rejected", "error", err)
			return
		}

		mu.Lock()
		*conf = next
		hooks := append([]func(*Config){}, onReload...)
		mu.Unlock()

		logging.SetLevel(next.Log.Level)
		slog.Info("config hot-reloaded and validated successfully")
		for _, hook := range hooks {
			hook(&next)
		}
	})
	v.WatchConfig()

	return nil
}

func decode(v *viper.Viper, conf *Config) error {
	if err := v.Unmarshal(conf); err != nil {
		return fmt.Errorf("unmarshal config error: %w", err)
	}
	if err := validate.Struct(conf); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// PrintWithMask 脱敏打印当前配置.
func PrintWithMask(conf any) {
	data, err := json.Marshal(conf)
	if err != nil {
		slog.Error("failed to marshal config for printing", "error", err)
		return
	}

	var configMap map[string]any
	if err := json.Unmarshal(data, &configMap); err != nil {
		slog.Error("failed to unmarshal config for masking", "error", err)
		return
	}
	mask(configMap)

	masked, err := json.MarshalIndent(configMap, "  ", "  ")
	if err != nil {
		slog.Error("failed to marshal masked config", "error", err)
		return
	}
	slog.Info("Current effective configuration", "config", string(masked))
}

var sensitiveKeys = []string{"password", "secret", "dsn", "key", "token", "endpoint"}

func mask(configMap map[string]any) {
	for key, val := range configMap {
		switch typed := val.(type) {
		case map[string]any:
			mask(typed)
			continue
		case []any:
			for _, item := range typed {
				if itemMap, ok := item.(map[string]any); ok {
					mask(itemMap)
				}
			}
			continue
		}
		lower := strings.ToLower(key)
		for _, s := range sensitiveKeys {
			if strings.Contains(lower, s) {
				configMap[key] = "******"
				break
			}
		}
	}
}

// GetViper 返回最近一次 Load 使用的 Viper 实例.
func GetViper() *viper.Viper {
	mu.Lock()
	defer mu.Unlock()
	return vInstance
}
