package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/optionlab/config"
	"github.com/wyfcoding/optionlab/idgen"
	"github.com/wyfcoding/optionlab/logging"
	"github.com/wyfcoding/optionlab/metrics"
	"github.com/wyfcoding/optionlab/middleware"
	"github.com/wyfcoding/optionlab/response"
	"github.com/wyfcoding/optionlab/server"
	"github.com/wyfcoding/optionlab/tracing"
)

const (
	defaultMetricsPath = "/metrics"
	healthPath         = "/sys/health"
)

// ServiceInitFunc 根据配置与指标创建业务服务，返回服务实例和清理函数。
type ServiceInitFunc func(cfg *config.Config, m *metrics.Metrics) (svc any, cleanup func(), err error)

// GinRegisterFunc 在引擎上注册业务路由。
type GinRegisterFunc func(engine *gin.Engine, svc any)

// Builder 按 配置 → 日志 → 追踪 → 指标 → 中间件 → 服务 → 服务器 的顺序组装 App.
type Builder struct {
	serviceName    string
	configPath     string
	cfg            *config.Config
	initService    ServiceInitFunc
	registerGin    GinRegisterFunc
	healthCheckers []func() error
	ginMiddleware  []gin.HandlerFunc
	tracingMW      gin.HandlerFunc
	appOpts        []Option
}

// NewBuilder 创建应用构建器.
func NewBuilder(serviceName string) *Builder {
	return &Builder{serviceName: serviceName}
}

// WithConfig 设置配置实例，Build 时从文件加载到该实例.
func (b *Builder) WithConfig(conf *config.Config) *Builder {
	b.cfg = conf
	return b
}

// WithConfigPath 指定配置文件路径，不设置时读取 -conf 命令行参数.
func (b *Builder) WithConfigPath(path string) *Builder {
	b.configPath = path
	return b
}

// WithService 注册业务初始化逻辑.
func (b *Builder) WithService(init ServiceInitFunc) *Builder {
	b.initService = init
	return b
}

// WithGin 注册 Gin 路由钩子.
func (b *Builder) WithGin(register GinRegisterFunc) *Builder {
	b.registerGin = register
	return b
}

// WithHealthChecker 添加健康检查，任一失败时 /sys/health 返回 503.
func (b *Builder) WithHealthChecker(checker func() error) *Builder {
	b.healthCheckers = append(b.healthCheckers, checker)
	return b
}

// WithGinMiddleware 追加业务中间件，位于内置中间件之后.
func (b *Builder) WithGinMiddleware(mw ...gin.HandlerFunc) *Builder {
	b.ginMiddleware = append(b.ginMiddleware, mw...)
	return b
}

// Build 组装 App。失败时已创建的资源会被释放.
func (b *Builder) Build() (_ *App, err error) {
	if b.initService == nil {
		return nil, errors.New("app: service init func is required")
	}
	if b.cfg == nil {
		b.cfg = &config.Config{}
	}
	if err := b.loadConfig(); err != nil {
		return nil, err
	}
	cfg := b.cfg

	logger := logging.NewFromConfig(cfg.LoggingConfig())
	logging.SetDefault(logger)

	defer func() {
		if err != nil {
			_ = New(b.serviceName, logger.Logger, b.appOpts...).lifecycle.StopAll(context.Background())
		}
	}()

	if err := idgen.Init(cfg.IDGen); err != nil {
		return nil, fmt.Errorf("init id generator: %w", err)
	}

	if cfg.Tracing.Enabled {
		b.initTracing(logger.Logger)
	}

	m := b.initMetrics()
	b.setupMiddleware(logger.Logger, m)

	svc, cleanup, err := b.initService(cfg, m)
	if err != nil {
		return nil, fmt.Errorf("init service: %w", err)
	}
	if cleanup != nil {
		b.appOpts = append(b.appOpts, WithCleanup("service", cleanup))
	}

	engine := server.NewDefaultGinEngine(b.ginMiddleware...)
	if len(cfg.Server.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.Server.HTTP.TrustedProxies); err != nil {
			return nil, fmt.Errorf("set trusted proxies: %w", err)
		}
	}
	b.registerAdminRoutes(engine, m)
	if b.registerGin != nil {
		b.registerGin(engine, svc)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.HTTP.Addr, cfg.Server.HTTP.Port)
	b.appOpts = append(b.appOpts, WithServer(server.NewGinServer(engine, addr, server.Options{
		ReadTimeout:       cfg.Server.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:       cfg.Server.HTTP.IdleTimeout,
		MaxHeaderBytes:    cfg.Server.HTTP.MaxHeaderBytes,
	}, logger.Logger)))

	config.PrintWithMask(cfg)
	return New(b.serviceName, logger.Logger, b.appOpts...), nil
}

func (b *Builder) loadConfig() error {
	path := b.configPath
	if path == "" {
		path = fmt.Sprintf("./configs/%s/config.toml", b.serviceName)
		fs := flag.NewFlagSet(b.serviceName, flag.ContinueOnError)
		fs.StringVar(&path, "conf", path, "path to config file")
		if err := fs.Parse(flagArgs()); err != nil {
			return err
		}
	}
	if err := config.Load(path, b.cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	return nil
}

func (b *Builder) initTracing(logger *slog.Logger) {
	tc := b.cfg.Tracing
	if tc.ServiceName == "" {
		tc.ServiceName = b.serviceName
	}
	shutdown, err := tracing.InitTracer(tc)
	if err != nil {
		// 追踪不可用不影响定价服务。
		logger.Error("failed to initialize tracer", "error", err)
		return
	}
	b.appOpts = append(b.appOpts, WithHook(Hook{Name: "tracer", OnStop: shutdown}))
	b.tracingMW = middleware.TracingMiddleware(tc.ServiceName, healthPath, b.metricsPath())
}

func (b *Builder) initMetrics() *metrics.Metrics {
	m := metrics.NewMetrics(b.serviceName)
	m.RegisterBuildInfo(b.serviceName, b.cfg.Version)

	if b.cfg.Metrics.Enabled && b.cfg.Metrics.Port != "" {
		b.appOpts = append(b.appOpts, WithCleanup("metrics", m.ExposeHTTP(b.cfg.Metrics.Port, b.metricsPath())))
	}
	return m
}

// setupMiddleware 内置中间件排在业务中间件之前：
// Recovery → RequestID → Tracing → Logger → Metrics → MaxBody.
func (b *Builder) setupMiddleware(logger *slog.Logger, m *metrics.Metrics) {
	chain := []gin.HandlerFunc{
		middleware.Recovery(logger),
		middleware.RequestID(),
	}
	if b.tracingMW != nil {
		chain = append(chain, b.tracingMW)
	}
	chain = append(chain,
		middleware.Logger(logger, b.cfg.Log.SlowThreshold),
		middleware.HTTPMetricsMiddleware(m, middleware.MetricsOptions{
			SlowThreshold: b.cfg.Log.SlowThreshold,
			SkipPaths:     []string{healthPath, b.metricsPath()},
		}),
		middleware.MaxBodyBytes(b.cfg.Server.HTTP.MaxBodyBytes),
	)
	b.ginMiddleware = append(chain, b.ginMiddleware...)
}

func (b *Builder) metricsPath() string {
	if b.cfg.Metrics.Path == "" {
		return defaultMetricsPath
	}
	return b.cfg.Metrics.Path
}

func (b *Builder) registerAdminRoutes(engine *gin.Engine, m *metrics.Metrics) {
	checkers := b.healthCheckers
	engine.GET(healthPath, func(c *gin.Context) {
		body := gin.H{
			"status":    "UP",
			"service":   b.serviceName,
			"version":   b.cfg.Version,
			"timestamp": time.Now().Unix(),
		}
		for _, check := range checkers {
			if err := check(); err != nil {
				body["status"] = "DOWN"
				body["error"] = err.Error()
				c.JSON(http.StatusServiceUnavailable, body)
				return
			}
		}
		response.SuccessWithRawData(c, body)
	})

	if b.cfg.Metrics.Enabled {
		engine.GET(b.metricsPath(), gin.WrapH(m.Handler()))
	}
}

var flagArgs = func() []string { return os.Args[1:] }
