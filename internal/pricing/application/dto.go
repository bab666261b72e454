package application

import (
	"math"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/optionlab/algorithm/finance"
	"github.com/wyfcoding/optionlab/analytics/surface"
)

// Float 序列化时把 NaN 与 ±Inf 写成 null，其余按最短表示输出。
type Float float64

// MarshalJSON 实现 json.Marshaler。
func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
}

// GreeksDTO 原始精度的希腊字母。
type GreeksDTO struct {
	Delta Float `json:"delta"`
	Gamma Float `json:"gamma"`
	Theta Float `json:"theta"`
	Vega  Float `json:"vega"`
	Rho   Float `json:"rho"`
}

func toGreeksDTO(g finance.Greeks) GreeksDTO {
	return GreeksDTO{
		Delta: Float(g.Delta),
		Gamma: Float(g.Gamma),
		Theta: Float(g.Theta),
		Vega:  Float(g.Vega),
		Rho:   Float(g.Rho),
	}
}

// PriceDTO 解析定价结果。
type PriceDTO struct {
	OptionType string                   `json:"option_type"`
	Inputs     finance.MarketParameters `json:"inputs"`
	Price      Float                    `json:"price"`
	Greeks     GreeksDTO                `json:"greeks"`
	Rounded    finance.RoundedResult    `json:"rounded"`
}

// SimulationDTO 蒙特卡洛定价结果，附带同参数的解析价作为参照。
type SimulationDTO struct {
	OptionType string              `json:"option_type"`
	Price      Float               `json:"price"`
	Rounded    decimal.NullDecimal `json:"rounded_price"`
	StdErr     Float               `json:"std_err"`
	Analytic   Float               `json:"analytic_price"`
	Difference Float               `json:"difference"`
	Iterations int                 `json:"iterations"`
	Seed       uint64              `json:"seed,string"`
	Workers    int                 `json:"workers"`
	ElapsedMs  int64               `json:"elapsed_ms"`
}

// SurfaceDTO S×σ 价格曲面，Prices[i][j] 对应 Spots[i] 与 Vols[j]。
type SurfaceDTO struct {
	OptionType string    `json:"option_type"`
	Strike     float64   `json:"strike"`
	Expiry     float64   `json:"expiry"`
	Rate       float64   `json:"rate"`
	Spots      []float64 `json:"spots"`
	Vols       []float64 `json:"vols"`
	Prices     [][]Float `json:"prices"`
}

func toSurfaceDTO(optionType string, cmd PriceSurfaceCommand, s *surface.Surface) *SurfaceDTO {
	prices := make([][]Float, len(s.Prices))
	for i, row := range s.Prices {
		prices[i] = make([]Float, len(row))
		for j, v := range row {
			prices[i][j] = Float(v)
		}
	}
	return &SurfaceDTO{
		OptionType: optionType,
		Strike:     cmd.Strike,
		Expiry:     cmd.Expiry,
		Rate:       cmd.Rate,
		Spots:      s.Spots,
		Vols:       s.Vols,
		Prices:     prices,
	}
}

// CurvePointDTO 曲线上一个标的价格处的希腊字母。
type CurvePointDTO struct {
	Spot float64 `json:"spot"`
	GreeksDTO
}

// CurveDTO 希腊字母随标的价格变化的曲线。
type CurveDTO struct {
	OptionType string          `json:"option_type"`
	Volatility float64         `json:"volatility"`
	Points     []CurvePointDTO `json:"points"`
}

func toCurveDTO(optionType string, vol float64, points []surface.CurvePoint) *CurveDTO {
	out := make([]CurvePointDTO, len(points))
	for i, pt := range points {
		out[i] = CurvePointDTO{Spot: pt.Spot, GreeksDTO: toGreeksDTO(pt.Greeks)}
	}
	return &CurveDTO{OptionType: optionType, Volatility: vol, Points: out}
}
