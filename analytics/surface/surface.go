// Package surface 在参数网格上批量调用解析定价器，生成价格曲面与希腊字母曲线。
// 定价器本身不感知网格，每个网格点都是一次独立调用。
package surface

import (
	"context"
	"runtime"

	"github.com/sourcegraph/conc/pool"
	"github.com/wyfcoding/optionlab/algorithm/finance"
	"github.com/wyfcoding/optionlab/algorithm/types"
	"github.com/wyfcoding/optionlab/xerrors"
)

// 网格默认值，与仪表盘的可视化页一致。
const (
	DefaultSpotMin     = 50.0
	DefaultSpotMax     = 150.0
	DefaultVolMin      = 0.1
	DefaultVolMax      = 1.0
	DefaultSurfaceSize = 30
	DefaultCurvePoints = 100
)

// Surface S×σ 价格曲面，Prices[i][j] 对应 Spots[i] 与 Vols[j]。
type Surface struct {
	Spots  []float64   `json:"spots"`
	Vols   []float64   `json:"vols"`
	Prices [][]float64 `json:"prices"`
}

// CurvePoint 希腊字母曲线上的一个点。
type CurvePoint struct {
	Spot   float64        `json:"spot"`
	Greeks finance.Greeks `json:"greeks"`
}

// Sweeper 网格扫描器。
type Sweeper struct {
	calc        *finance.BlackScholesCalculator
	concurrency int
}

// Option 定义配置选项。
type Option func(*Sweeper)

// WithConcurrency 设置同时计算的行数上限。
func WithConcurrency(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewSweeper 创建网格扫描器，默认并发度为 GOMAXPROCS。
func NewSweeper(opts ...Option) *Sweeper {
	s := &Sweeper{
		calc:        finance.NewBlackScholesCalculator(),
		concurrency: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Linspace 返回 [lo, hi] 上 n 个等距点，包含两端。
func Linspace(lo, hi float64, n int) ([]float64, error) {
	if n < 1 {
		return nil, xerrors.ErrInvalidGrid.Clone().WithDetail("point count must be positive, got %d", n)
	}
	out := make([]float64, n)
	if n == 1 {
		out[0] = lo
		return out, nil
	}
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	out[n-1] = hi
	return out, nil
}

// PriceSurface 以 base 的 K、T、r 为固定参数，在 spots×vols 网格上计算价格。
func (s *Sweeper) PriceSurface(ctx context.Context, base finance.MarketParameters, optionType types.OptionType, spots, vols []float64) (*Surface, error) {
	if len(spots) == 0 || len(vols) == 0 {
		return nil, xerrors.ErrInvalidGrid.Clone().WithDetail("surface axes must be non-empty, got %dx%d", len(spots), len(vols))
	}
	if !optionType.Valid() {
		return nil, xerrors.ErrInvalidOptionType.Clone().WithDetail("unsupported option type %q", string(optionType))
	}

	prices := make([][]float64, len(spots))
	pl := s.newPool(ctx)
	for i, spot := range spots {
		pl.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			row := make([]float64, len(vols))
			for j, vol := range vols {
				p := base
				p.Spot, p.Volatility = spot, vol
				v, err := s.calc.Price(p, optionType)
				if err != nil {
					return err
				}
				row[j] = v
			}
			prices[i] = row
			return nil
		})
	}
	if err := pl.Wait(); err != nil {
		return nil, err
	}

	return &Surface{Spots: spots, Vols: vols, Prices: prices}, nil
}

// GreeksCurve 以 base 的 K、T、r、σ 为固定参数，沿 spots 计算希腊字母。
func (s *Sweeper) GreeksCurve(ctx context.Context, base finance.MarketParameters, optionType types.OptionType, spots []float64) ([]CurvePoint, error) {
	if len(spots) == 0 {
		return nil, xerrors.ErrInvalidGrid.Clone().WithDetail("curve must have at least one point")
	}
	if !optionType.Valid() {
		return nil, xerrors.ErrInvalidOptionType.Clone().WithDetail("unsupported option type %q", string(optionType))
	}

	points := make([]CurvePoint, len(spots))
	pl := s.newPool(ctx)
	for i, spot := range spots {
		pl.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p := base
			p.Spot = spot
			g, err := s.calc.Greeks(p, optionType)
			if err != nil {
				return err
			}
			points[i] = CurvePoint{Spot: spot, Greeks: g}
			return nil
		})
	}
	if err := pl.Wait(); err != nil {
		return nil, err
	}
	return points, nil
}

func (s *Sweeper) newPool(ctx context.Context) *pool.ContextPool {
	return pool.New().
		WithMaxGoroutines(s.concurrency).
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()
}
