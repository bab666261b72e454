// Package finance - 欧式期权解析定价（Black-Scholes-Merton 模型）。
package finance

import (
	"math"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/optionlab/algorithm/types"
	"github.com/wyfcoding/optionlab/xerrors"
	"gonum.org/v1/gonum/stat/distuv"
)

// MarketParameters 单次定价所需的五个市场参数。
type MarketParameters struct {
	Spot       float64 `json:"spot"`       // 标的现价 S
	Strike     float64 `json:"strike"`     // 行权价 K
	Expiry     float64 `json:"expiry"`     // 剩余期限 T (年)
	Rate       float64 `json:"rate"`       // 无风险利率 r
	Volatility float64 `json:"volatility"` // 波动率 σ
}

// Validate 拒绝会导致 σ√T 除零或对数无定义的参数。
func (p MarketParameters) Validate() error {
	fields := [...]struct {
		name  string
		value float64
	}{
		{"spot", p.Spot}, {"strike", p.Strike}, {"expiry", p.Expiry},
		{"rate", p.Rate}, {"volatility", p.Volatility},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return xerrors.ErrInvalidParameter.Clone().WithDetail("%s must be finite, got %v", f.name, f.value)
		}
	}
	switch {
	case p.Expiry <= 0:
		return xerrors.ErrInvalidParameter.Clone().WithDetail("expiry must be positive, got %v", p.Expiry)
	case p.Volatility <= 0:
		return xerrors.ErrInvalidParameter.Clone().WithDetail("volatility must be positive, got %v", p.Volatility)
	case p.Spot <= 0:
		return xerrors.ErrInvalidParameter.Clone().WithDetail("spot must be positive, got %v", p.Spot)
	case p.Strike <= 0:
		return xerrors.ErrInvalidParameter.Clone().WithDetail("strike must be positive, got %v", p.Strike)
	}
	return nil
}

// Greeks 一阶敏感度。Theta 为每年、Vega 为每单位波动率、Rho 为每单位利率，不做换算。
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	Rho   float64 `json:"rho"`
}

// BlackScholesResult 包含计算出的期权价格及其希腊字母。
type BlackScholesResult struct {
	Price  float64
	Greeks Greeks
}

// BlackScholesCalculator Black-Scholes 期权定价计算器，无状态，零值可用。
type BlackScholesCalculator struct{}

// NewBlackScholesCalculator 创建 Black-Scholes 计算器。
func NewBlackScholesCalculator() *BlackScholesCalculator {
	return &BlackScholesCalculator{}
}

// terms 价格与希腊字母共享的中间量。
type terms struct {
	d1, d2   float64
	sqrtT    float64
	discount float64
}

func prepare(p MarketParameters, optionType types.OptionType) (terms, error) {
	if err := p.Validate(); err != nil {
		return terms{}, err
	}
	if !optionType.Valid() {
		return terms{}, xerrors.ErrInvalidOptionType.Clone().WithDetail("unsupported option type %q", string(optionType))
	}
	sqrtT := math.Sqrt(p.Expiry)
	volSqrtT := p.Volatility * sqrtT
	d1 := (math.Log(p.Spot/p.Strike) + (p.Rate+0.5*p.Volatility*p.Volatility)*p.Expiry) / volSqrtT
	return terms{
		d1:       d1,
		d2:       d1 - volSqrtT,
		sqrtT:    sqrtT,
		discount: math.Exp(-p.Rate * p.Expiry),
	}, nil
}

// Price 计算期权理论价格。
func (bsc *BlackScholesCalculator) Price(p MarketParameters, optionType types.OptionType) (float64, error) {
	q, err := prepare(p, optionType)
	if err != nil {
		return 0, err
	}
	return price(p, optionType, q), nil
}

func price(p MarketParameters, optionType types.OptionType, q terms) float64 {
	if optionType.IsCall() {
		return p.Spot*normCDF(q.d1) - p.Strike*q.discount*normCDF(q.d2)
	}
	return p.Strike*q.discount*normCDF(-q.d2) - p.Spot*normCDF(-q.d1)
}

// Greeks 计算 Delta、Gamma、Theta、Vega、Rho。
func (bsc *BlackScholesCalculator) Greeks(p MarketParameters, optionType types.OptionType) (Greeks, error) {
	q, err := prepare(p, optionType)
	if err != nil {
		return Greeks{}, err
	}
	return greeks(p, optionType, q), nil
}

func greeks(p MarketParameters, optionType types.OptionType, q terms) Greeks {
	phiD1 := normPDF(q.d1)
	// Gamma 与 Vega 对看涨看跌相同。
	g := Greeks{
		Gamma: phiD1 / (p.Spot * p.Volatility * q.sqrtT),
		Vega:  p.Spot * phiD1 * q.sqrtT,
	}
	decay := -p.Spot * phiD1 * p.Volatility / (2 * q.sqrtT)
	if optionType.IsCall() {
		nd2 := normCDF(q.d2)
		g.Delta = normCDF(q.d1)
		g.Theta = decay - p.Rate*p.Strike*q.discount*nd2
		g.Rho = p.Strike * p.Expiry * q.discount * nd2
	} else {
		nNegD2 := normCDF(-q.d2)
		g.Delta = normCDF(q.d1) - 1
		g.Theta = decay + p.Rate*p.Strike*q.discount*nNegD2
		g.Rho = -p.Strike * p.Expiry * q.discount * nNegD2
	}
	return g
}

// Calculate 一次性计算期权价格及所有希腊字母，d1/d2 只计算一次。
func (bsc *BlackScholesCalculator) Calculate(p MarketParameters, optionType types.OptionType) (*BlackScholesResult, error) {
	q, err := prepare(p, optionType)
	if err != nil {
		return nil, err
	}
	return &BlackScholesResult{
		Price:  price(p, optionType, q),
		Greeks: greeks(p, optionType, q),
	}, nil
}

// Rounded 将结果按 places 位小数转换为 decimal，供展示层使用。
func (r *BlackScholesResult) Rounded(places int32) RoundedResult {
	return RoundedResult{
		Price: Round(r.Price, places),
		Greeks: RoundedGreeks{
			Delta: Round(r.Greeks.Delta, places),
			Gamma: Round(r.Greeks.Gamma, places),
			Theta: Round(r.Greeks.Theta, places),
			Vega:  Round(r.Greeks.Vega, places),
			Rho:   Round(r.Greeks.Rho, places),
		},
	}
}

// RoundedResult 展示用的价格与希腊字母。
type RoundedResult struct {
	Price  decimal.NullDecimal `json:"price"`
	Greeks RoundedGreeks       `json:"greeks"`
}

// RoundedGreeks 展示用的希腊字母。
type RoundedGreeks struct {
	Delta decimal.NullDecimal `json:"delta"`
	Gamma decimal.NullDecimal `json:"gamma"`
	Theta decimal.NullDecimal `json:"theta"`
	Vega  decimal.NullDecimal `json:"vega"`
	Rho   decimal.NullDecimal `json:"rho"`
}

// Round 把浮点数四舍五入到 places 位小数。NaN 与 ±Inf 无法用 decimal 表示，返回 Valid=false。
func Round(v float64, places int32) decimal.NullDecimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(v).Round(places))
}

var defaultCalculator = NewBlackScholesCalculator()

// Price 使用默认计算器计算解析价格。
func Price(p MarketParameters, optionType types.OptionType) (float64, error) {
	return defaultCalculator.Price(p, optionType)
}

// CalculateGreeks 使用默认计算器计算希腊字母。
func CalculateGreeks(p MarketParameters, optionType types.OptionType) (Greeks, error) {
	return defaultCalculator.Greeks(p, optionType)
}

func normCDF(x float64) float64 {
	return distuv.UnitNormal.CDF(x)
}

func normPDF(x float64) float64 {
	return distuv.UnitNormal.Prob(x)
}
