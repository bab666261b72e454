package main

import (
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/optionlab/app"
	"github.com/wyfcoding/optionlab/config"
	"github.com/wyfcoding/optionlab/internal/pricing/application"
	httphandler "github.com/wyfcoding/optionlab/internal/pricing/interfaces/http"
	"github.com/wyfcoding/optionlab/limiter"
	"github.com/wyfcoding/optionlab/logging"
	"github.com/wyfcoding/optionlab/metrics"
	"golang.org/x/time/rate"
)

// AppContext 路由注册所需的服务实例。
type AppContext struct {
	AppService *application.PricingService
	Limiter    *limiter.LocalLimiter
	Config     *config.Config
}

const BootstrapName = "optionpricer"

func main() {
	a, err := app.NewBuilder(BootstrapName).
		WithConfig(&config.Config{}).
		WithService(initService).
		WithGin(registerGin).
		Build()
	if err != nil {
		slog.Error("failed to build application", "error", err)
		os.Exit(1)
	}
	if err := a.Run(); err != nil {
		slog.Error("application exited with error", "error", err)
		os.Exit(1)
	}
}

func registerGin(e *gin.Engine, srv any) {
	ctx := srv.(*AppContext)
	opts := []httphandler.HandlerOption{
		httphandler.WithSimulationTimeout(ctx.Config.Pricing.Timeout),
	}
	if ctx.Limiter != nil {
		opts = append(opts, httphandler.WithSimulationLimiter(ctx.Limiter))
	}
	httphandler.NewPricingHandler(ctx.AppService, opts...).RegisterRoutes(e)
	slog.Default().Info("HTTP routes registered", "service", BootstrapName)
}

func initService(cfg *config.Config, m *metrics.Metrics) (any, func(), error) {
	slog.Info("initializing pricing engine...",
		"workers", cfg.Pricing.Workers,
		"default_iterations", cfg.Pricing.DefaultIterations,
		"default_seed", cfg.Pricing.DefaultSeed)

	appService := application.NewPricingService(cfg, m, logging.Default().Logger)

	var rateLimiter *limiter.LocalLimiter
	if cfg.RateLimit.Enabled {
		rateLimiter = limiter.NewLocalLimiter(rate.Limit(cfg.RateLimit.Rate), cfg.RateLimit.Burst)
	}

	config.RegisterReloadHook(func(c *config.Config) {
		appService.ApplyConfig(c)
		if rateLimiter != nil && c.RateLimit.Enabled {
			rateLimiter.Update(rate.Limit(c.RateLimit.Rate), c.RateLimit.Burst)
		}
	})

	return &AppContext{
		AppService: appService,
		Limiter:    rateLimiter,
		Config:     cfg,
	}, nil, nil
}
