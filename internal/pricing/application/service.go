// Package application 编排解析定价、蒙特卡洛模拟与网格扫描，
// 负责配置默认值、并发上限、日志、追踪与指标。
package application

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/wyfcoding/optionlab/algorithm/finance"
	"github.com/wyfcoding/optionlab/algorithm/sim"
	"github.com/wyfcoding/optionlab/algorithm/types"
	"github.com/wyfcoding/optionlab/analytics/surface"
	"github.com/wyfcoding/optionlab/config"
	"github.com/wyfcoding/optionlab/contextx"
	"github.com/wyfcoding/optionlab/limiter"
	"github.com/wyfcoding/optionlab/metrics"
	"github.com/wyfcoding/optionlab/tracing"
	"github.com/wyfcoding/optionlab/xerrors"
)

// DefaultPrecision 展示层默认保留的小数位数。
const DefaultPrecision int32 = 4

const (
	resultOK    = "ok"
	resultError = "error"
)

// engine 一份配置对应的引擎实例，热更新时整体替换。
type engine struct {
	pricing config.PricingConfig
	surface config.SurfaceConfig
	mc      *sim.MonteCarloPricer
	sweeper *surface.Sweeper
	sem     *limiter.SemaphoreLimiter
}

func newEngine(cfg *config.Config) *engine {
	return &engine{
		pricing: cfg.Pricing,
		surface: cfg.Surface,
		mc:      sim.NewMonteCarloPricer(sim.WithWorkers(cfg.Pricing.Workers)),
		sweeper: surface.NewSweeper(surface.WithConcurrency(cfg.Surface.Concurrency)),
		sem:     limiter.NewSemaphoreLimiter(cfg.Pricing.MaxConcurrent),
	}
}

// PricingService 期权定价应用服务，可并发使用。
type PricingService struct {
	calc    *finance.BlackScholesCalculator
	metrics *metrics.Metrics
	logger  *slog.Logger
	engine  atomic.Pointer[engine]
}

// NewPricingService 按配置创建定价服务。
func NewPricingService(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) *PricingService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &PricingService{
		calc:    finance.NewBlackScholesCalculator(),
		metrics: m,
		logger:  logger.With("module", "pricing"),
	}
	s.engine.Store(newEngine(cfg))
	return s
}

// ApplyConfig 以新配置替换引擎参数，进行中的请求继续使用旧实例。
func (s *PricingService) ApplyConfig(cfg *config.Config) {
	s.engine.Store(newEngine(cfg))
	s.logger.Info("pricing engine reconfigured",
		"default_iterations", cfg.Pricing.DefaultIterations,
		"max_iterations", cfg.Pricing.MaxIterations,
		"workers", cfg.Pricing.Workers,
		"max_concurrent", cfg.Pricing.MaxConcurrent,
		"max_grid_size", cfg.Surface.MaxGridSize)
}

// PriceOption 计算解析价格与希腊字母。
func (s *PricingService) PriceOption(ctx context.Context, cmd PriceOptionCommand) (_ *PriceDTO, err error) {
	ctx, span := tracing.StartSpan(ctx, "PricingService.PriceOption")
	defer span.End()
	defer func() { s.observe(ctx, "price", cmd.OptionType, err) }()

	ot, p, err := cmd.parse()
	if err != nil {
		return nil, err
	}
	tracing.AddTag(ctx, "option.type", ot)

	res, err := s.calc.Calculate(p, ot)
	if err != nil {
		return nil, err
	}
	precision := cmd.Precision
	if precision <= 0 {
		precision = DefaultPrecision
	}
	return &PriceDTO{
		OptionType: ot.Label(),
		Inputs:     p,
		Price:      Float(res.Price),
		Greeks:     toGreeksDTO(res.Greeks),
		Rounded:    res.Rounded(precision),
	}, nil
}

// SimulateOption 用蒙特卡洛估计期权价格。同时运行的模拟数受 pricing.max_concurrent 限制，
// 等待名额期间 ctx 结束则返回 ctx 的错误。
func (s *PricingService) SimulateOption(ctx context.Context, cmd SimulateOptionCommand) (_ *SimulationDTO, err error) {
	ctx, span := tracing.StartSpan(ctx, "PricingService.SimulateOption")
	defer span.End()
	defer func() { s.observe(ctx, "simulate", cmd.OptionType, err) }()

	eng := s.engine.Load()
	ot, p, err := cmd.parse()
	if err != nil {
		return nil, err
	}

	iterations := eng.pricing.DefaultIterations
	if cmd.Iterations != nil {
		iterations = *cmd.Iterations
	}
	if eng.pricing.MaxIterations > 0 && iterations > eng.pricing.MaxIterations {
		return nil, xerrors.ErrInvalidIterations.Clone().WithDetail("iterations %d exceed the limit of %d", iterations, eng.pricing.MaxIterations)
	}
	seed := eng.pricing.DefaultSeed
	switch {
	case cmd.Seed != nil:
		seed = *cmd.Seed
	case cmd.RandomSeed:
		seed = sim.RandomSeed()
	}
	tracing.AddTag(ctx, "option.type", ot)
	tracing.AddTag(ctx, "mc.iterations", iterations)
	tracing.AddTag(ctx, "mc.seed", seed)

	release, err := eng.sem.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	est, err := eng.mc.Run(ctx, p, ot, iterations, seed)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)
	s.metrics.SimulationDuration.WithLabelValues(ot.Label()).Observe(elapsed.Seconds())
	s.metrics.SimulationPaths.Add(float64(iterations))

	analytic, err := s.calc.Price(p, ot)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "monte carlo estimate finished", append(contextx.LogAttrs(ctx),
		"option_type", ot.Label(),
		"iterations", iterations,
		"seed", seed,
		"workers", est.Workers,
		"price", est.Price,
		"std_err", est.StdErr,
		"duration", elapsed)...)

	return &SimulationDTO{
		OptionType: ot.Label(),
		Price:      Float(est.Price),
		Rounded:    finance.Round(est.Price, DefaultPrecision),
		StdErr:     Float(est.StdErr),
		Analytic:   Float(analytic),
		Difference: Float(est.Price - analytic),
		Iterations: est.Iterations,
		Seed:       est.Seed,
		Workers:    est.Workers,
		ElapsedMs:  elapsed.Milliseconds(),
	}, nil
}

// PriceSurface 计算 S×σ 价格曲面。
func (s *PricingService) PriceSurface(ctx context.Context, cmd PriceSurfaceCommand) (_ *SurfaceDTO, err error) {
	ctx, span := tracing.StartSpan(ctx, "PricingService.PriceSurface")
	defer span.End()
	defer func() { s.observe(ctx, "surface", cmd.OptionType, err) }()

	eng := s.engine.Load()
	ot, err := types.ParseOptionType(cmd.OptionType)
	if err != nil {
		return nil, err
	}
	cmd.SpotMin = orDefault(cmd.SpotMin, eng.surface.SpotMin)
	cmd.SpotMax = orDefault(cmd.SpotMax, eng.surface.SpotMax)
	cmd.VolMin = orDefault(cmd.VolMin, eng.surface.VolMin)
	cmd.VolMax = orDefault(cmd.VolMax, eng.surface.VolMax)
	if cmd.Size == 0 {
		cmd.Size = eng.surface.GridSize
	}
	if err := eng.checkSize(cmd.Size); err != nil {
		return nil, err
	}

	spots, err := surface.Linspace(cmd.SpotMin, cmd.SpotMax, cmd.Size)
	if err != nil {
		return nil, err
	}
	vols, err := surface.Linspace(cmd.VolMin, cmd.VolMax, cmd.Size)
	if err != nil {
		return nil, err
	}
	tracing.AddTag(ctx, "option.type", ot)
	tracing.AddTag(ctx, "grid.size", cmd.Size)

	base := finance.MarketParameters{Strike: cmd.Strike, Expiry: cmd.Expiry, Rate: cmd.Rate}
	surf, err := eng.sweeper.PriceSurface(ctx, base, ot, spots, vols)
	if err != nil {
		return nil, err
	}
	s.metrics.GridPointsTotal.WithLabelValues("surface").Add(float64(len(spots) * len(vols)))
	return toSurfaceDTO(ot.Label(), cmd, surf), nil
}

// GreeksCurve 计算希腊字母随标的价格变化的曲线。
func (s *PricingService) GreeksCurve(ctx context.Context, cmd GreeksCurveCommand) (_ *CurveDTO, err error) {
	ctx, span := tracing.StartSpan(ctx, "PricingService.GreeksCurve")
	defer span.End()
	defer func() { s.observe(ctx, "curve", cmd.OptionType, err) }()

	eng := s.engine.Load()
	ot, err := types.ParseOptionType(cmd.OptionType)
	if err != nil {
		return nil, err
	}
	spotMin := orDefault(cmd.SpotMin, eng.surface.SpotMin)
	spotMax := orDefault(cmd.SpotMax, eng.surface.SpotMax)
	points := cmd.Points
	if points == 0 {
		points = eng.surface.CurvePoints
	}
	if err := eng.checkSize(points); err != nil {
		return nil, err
	}

	spots, err := surface.Linspace(spotMin, spotMax, points)
	if err != nil {
		return nil, err
	}
	tracing.AddTag(ctx, "option.type", ot)
	tracing.AddTag(ctx, "grid.size", points)

	base := finance.MarketParameters{Strike: cmd.Strike, Expiry: cmd.Expiry, Rate: cmd.Rate, Volatility: cmd.Volatility}
	curve, err := eng.sweeper.GreeksCurve(ctx, base, ot, spots)
	if err != nil {
		return nil, err
	}
	s.metrics.GridPointsTotal.WithLabelValues("curve").Add(float64(len(curve)))
	return toCurveDTO(ot.Label(), cmd.Volatility, curve), nil
}

func (e *engine) checkSize(n int) error {
	if n < 1 {
		return xerrors.ErrInvalidGrid.Clone().WithDetail("grid size must be positive, got %d", n)
	}
	if e.surface.MaxGridSize > 0 && n > e.surface.MaxGridSize {
		return xerrors.ErrInvalidGrid.Clone().WithDetail("grid size %d exceeds the limit of %d", n, e.surface.MaxGridSize)
	}
	return nil
}

// observe 记录调用结果。无法解析的期权类型统一记为 unknown，避免标签基数失控。
func (s *PricingService) observe(ctx context.Context, operation, optionType string, err error) {
	label := "unknown"
	if ot, perr := types.ParseOptionType(optionType); perr == nil {
		label = ot.Label()
	}
	result := resultOK
	if err != nil {
		result = resultError
		tracing.SetError(ctx, err)
		s.logger.WarnContext(ctx, "pricing request failed", append(contextx.LogAttrs(ctx),
			"operation", operation, "option_type", label, "error", err)...)
	}
	s.metrics.PricingRequestsTotal.WithLabelValues(operation, label, result).Inc()
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}
