package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/optionlab/internal/pricing/application"
	"github.com/wyfcoding/optionlab/limiter"
	"github.com/wyfcoding/optionlab/logging"
	"github.com/wyfcoding/optionlab/middleware"
	"github.com/wyfcoding/optionlab/response"
	"github.com/wyfcoding/optionlab/xerrors"
)

// PricingHandler 期权定价 HTTP 处理器
type PricingHandler struct {
	svc               *application.PricingService
	simulationLimiter limiter.Limiter
	simulationTimeout time.Duration
}

// HandlerOption 处理器可选项。
type HandlerOption func(*PricingHandler)

// WithSimulationLimiter 为模拟接口挂载限流器。
func WithSimulationLimiter(l limiter.Limiter) HandlerOption {
	return func(h *PricingHandler) { h.simulationLimiter = l }
}

// WithSimulationTimeout 为模拟接口设置请求超时，0 不限制。
func WithSimulationTimeout(d time.Duration) HandlerOption {
	return func(h *PricingHandler) { h.simulationTimeout = d }
}

// NewPricingHandler 创建 HTTP 处理器实例
func NewPricingHandler(svc *application.PricingService, opts ...HandlerOption) *PricingHandler {
	h := &PricingHandler{svc: svc}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes 注册路由
func (h *PricingHandler) RegisterRoutes(router gin.IRouter) {
	api := router.Group("/v1/options")
	{
		api.POST("/price", h.PriceOption)
		api.POST("/simulate", h.simulateChain()...)
		api.POST("/surface", h.PriceSurface)
		api.POST("/curve", h.GreeksCurve)
	}
}

func (h *PricingHandler) simulateChain() []gin.HandlerFunc {
	var chain []gin.HandlerFunc
	if h.simulationLimiter != nil {
		chain = append(chain, middleware.RateLimitMiddleware(h.simulationLimiter))
	}
	if h.simulationTimeout > 0 {
		chain = append(chain, middleware.TimeoutMiddleware(h.simulationTimeout))
	}
	return append(chain, h.SimulateOption)
}

// OptionRequest 期权合约与市场参数。rate 可为 0 或负数，不做必填校验。
type OptionRequest struct {
	OptionType string  `json:"option_type" binding:"required"`
	Spot       float64 `json:"spot"        binding:"required"`
	Strike     float64 `json:"strike"      binding:"required"`
	Expiry     float64 `json:"expiry"      binding:"required"`
	Rate       float64 `json:"rate"`
	Volatility float64 `json:"volatility"  binding:"required"`
}

func (r OptionRequest) terms() application.OptionTerms {
	return application.OptionTerms{
		OptionType: r.OptionType,
		Spot:       r.Spot,
		Strike:     r.Strike,
		Expiry:     r.Expiry,
		Rate:       r.Rate,
		Volatility: r.Volatility,
	}
}

// PriceRequest 解析定价请求
type PriceRequest struct {
	OptionRequest
	Precision int32 `json:"precision" binding:"gte=0,lte=12"`
}

// SimulateRequest 蒙特卡洛定价请求
type SimulateRequest struct {
	OptionRequest
	Iterations *int    `json:"iterations"`
	Seed       *uint64 `json:"seed"`
	RandomSeed bool    `json:"random_seed"`
}

// SurfaceRequest 价格曲面请求，区间省略时使用服务默认值。
type SurfaceRequest struct {
	OptionType string  `json:"option_type" binding:"required"`
	Strike     float64 `json:"strike"      binding:"required"`
	Expiry     float64 `json:"expiry"      binding:"required"`
	Rate       float64 `json:"rate"`
	SpotMin    float64 `json:"spot_min"`
	SpotMax    float64 `json:"spot_max"`
	VolMin     float64 `json:"vol_min"`
	VolMax     float64 `json:"vol_max"`
	Size       int     `json:"size"`
}

// CurveRequest 希腊字母曲线请求
type CurveRequest struct {
	OptionType string  `json:"option_type" binding:"required"`
	Strike     float64 `json:"strike"      binding:"required"`
	Expiry     float64 `json:"expiry"      binding:"required"`
	Rate       float64 `json:"rate"`
	Volatility float64 `json:"volatility"  binding:"required"`
	SpotMin    float64 `json:"spot_min"`
	SpotMax    float64 `json:"spot_max"`
	Points     int     `json:"points"`
}

// PriceOption Black-Scholes 价格与希腊字母
func (h *PricingHandler) PriceOption(c *gin.Context) {
	var req PriceRequest
	if !bind(c, &req) {
		return
	}

	dto, err := h.svc.PriceOption(c.Request.Context(), application.PriceOptionCommand{
		OptionTerms: req.terms(),
		Precision:   req.Precision,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto)
}

// SimulateOption 蒙特卡洛价格估计
func (h *PricingHandler) SimulateOption(c *gin.Context) {
	var req SimulateRequest
	if !bind(c, &req) {
		return
	}

	dto, err := h.svc.SimulateOption(c.Request.Context(), application.SimulateOptionCommand{
		OptionTerms: req.terms(),
		Iterations:  req.Iterations,
		Seed:        req.Seed,
		RandomSeed:  req.RandomSeed,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto)
}

// PriceSurface S×σ 价格曲面
func (h *PricingHandler) PriceSurface(c *gin.Context) {
	var req SurfaceRequest
	if !bind(c, &req) {
		return
	}

	dto, err := h.svc.PriceSurface(c.Request.Context(), application.PriceSurfaceCommand{
		OptionType: req.OptionType,
		Strike:     req.Strike,
		Expiry:     req.Expiry,
		Rate:       req.Rate,
		SpotMin:    req.SpotMin,
		SpotMax:    req.SpotMax,
		VolMin:     req.VolMin,
		VolMax:     req.VolMax,
		Size:       req.Size,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto)
}

// GreeksCurve 希腊字母随标的价格的变化
func (h *PricingHandler) GreeksCurve(c *gin.Context) {
	var req CurveRequest
	if !bind(c, &req) {
		return
	}

	dto, err := h.svc.GreeksCurve(c.Request.Context(), application.GreeksCurveCommand{
		OptionType: req.OptionType,
		Strike:     req.Strike,
		Expiry:     req.Expiry,
		Rate:       req.Rate,
		Volatility: req.Volatility,
		SpotMin:    req.SpotMin,
		SpotMax:    req.SpotMax,
		Points:     req.Points,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto)
}

// bind 解析请求体，失败时按参数错误响应。
func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		logging.Debug(c.Request.Context(), "invalid pricing request", "path", c.FullPath(), "error", err)
		response.Error(c, xerrors.ErrInvalidParameter.Clone().WithDetail("%s", err.Error()))
		return false
	}
	return true
}
