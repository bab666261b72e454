package application

import (
	"github.com/wyfcoding/optionlab/algorithm/finance"
	"github.com/wyfcoding/optionlab/algorithm/types"
)

// OptionTerms 单个期权合约与市场参数，期权类型大小写不敏感。
type OptionTerms struct {
	OptionType string
	Spot       float64
	Strike     float64
	Expiry     float64
	Rate       float64
	Volatility float64
}

func (t OptionTerms) parse() (types.OptionType, finance.MarketParameters, error) {
	ot, err := types.ParseOptionType(t.OptionType)
	if err != nil {
		return "", finance.MarketParameters{}, err
	}
	p := finance.MarketParameters{
		Spot:       t.Spot,
		Strike:     t.Strike,
		Expiry:     t.Expiry,
		Rate:       t.Rate,
		Volatility: t.Volatility,
	}
	if err := p.Validate(); err != nil {
		return "", finance.MarketParameters{}, err
	}
	return ot, p, nil
}

// PriceOptionCommand 解析定价命令
type PriceOptionCommand struct {
	OptionTerms
	Precision int32 // 展示精度，0 使用默认 4 位
}

// SimulateOptionCommand 蒙特卡洛定价命令。
// Iterations 为空时使用配置默认值；Seed 为空且 RandomSeed 为 false 时使用配置的固定种子。
type SimulateOptionCommand struct {
	OptionTerms
	Iterations *int
	Seed       *uint64
	RandomSeed bool
}

// PriceSurfaceCommand 价格曲面命令，Spot 与 Volatility 由网格覆盖。
// 区间与尺寸为零值时取配置默认值。
type PriceSurfaceCommand struct {
	OptionType string
	Strike     float64
	Expiry     float64
	Rate       float64
	SpotMin    float64
	SpotMax    float64
	VolMin     float64
	VolMax     float64
	Size       int
}

// GreeksCurveCommand 希腊字母曲线命令，Spot 由网格覆盖。
type GreeksCurveCommand struct {
	OptionType string
	Strike     float64
	Expiry     float64
	Rate       float64
	Volatility float64
	SpotMin    float64
	SpotMax    float64
	Points     int
}
