// Package sim - 欧式期权蒙特卡洛定价。
package sim

import (
	"context"
	crypto_rand "crypto/rand"
	"encoding/binary"
	"math"
	"math/rand/v2"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/wyfcoding/optionlab/algorithm/finance"
	"github.com/wyfcoding/optionlab/algorithm/types"
	"github.com/wyfcoding/optionlab/xerrors"
	"gonum.org/v1/gonum/stat"
)

// DefaultSeed 默认随机种子。相同输入与种子的两次模拟结果逐位一致。
const DefaultSeed uint64 = 0

// cancelCheckInterval 每生成多少个样本检查一次 ctx。
const cancelCheckInterval = 1 << 14

// GeometricBrownianMotion 风险中性测度下的几何布朗运动，按精确解一步生成到期价格.
type GeometricBrownianMotion struct {
	spot     float64
	drift    float64 // (r − σ²/2)·T
	volSqrtT float64 // σ·√T
}

// NewRiskNeutralGBM 根据市场参数创建 GBM.
func NewRiskNeutralGBM(p finance.MarketParameters) *GeometricBrownianMotion {
	return &GeometricBrownianMotion{
		spot:     p.Spot,
		drift:    (p.Rate - 0.5*p.Volatility*p.Volatility) * p.Expiry,
		volSqrtT: p.Volatility * math.Sqrt(p.Expiry),
	}
}

// TerminalPrice 由标准正态变量 z 得到到期价格 S·exp(drift + σ√T·z).
func (gbm *GeometricBrownianMotion) TerminalPrice(z float64) float64 {
	return gbm.spot * math.Exp(gbm.drift+gbm.volSqrtT*z)
}

// Estimate 蒙特卡洛估计结果.
type Estimate struct {
	Price      float64 `json:"price"`
	StdErr     float64 `json:"std_err"` // 折现后的标准误差 e^(−rT)·sd/√N
	Iterations int     `json:"iterations"`
	Seed       uint64  `json:"seed"`
	Workers    int     `json:"workers"`
}

// MonteCarloPricer 蒙特卡洛定价器，无共享可变状态，可并发使用.
type MonteCarloPricer struct {
	workers int
}

// Option 定义配置选项.
type Option func(*MonteCarloPricer)

// WithWorkers 设置并行分片数。结果只由 (种子, 分片数) 决定，与调度无关.
func WithWorkers(n int) Option {
	return func(mc *MonteCarloPricer) {
		mc.workers = max(n, 1)
	}
}

// NewMonteCarloPricer 创建蒙特卡洛定价器，默认单线程.
func NewMonteCarloPricer(opts ...Option) *MonteCarloPricer {
	mc := &MonteCarloPricer{workers: 1}
	for _, opt := range opts {
		opt(mc)
	}
	return mc
}

// Workers 返回分片数.
func (mc *MonteCarloPricer) Workers() int {
	return mc.workers
}

// Simulate 估计期权价格.
func (mc *MonteCarloPricer) Simulate(p finance.MarketParameters, optionType types.OptionType, iterations int, seed uint64) (float64, error) {
	est, err := mc.Run(context.Background(), p, optionType, iterations, seed)
	if err != nil {
		return 0, err
	}
	return est.Price, nil
}

// Run 执行模拟并返回价格与标准误差.
// 第 i 个分片使用 PCG(seed, i) 独立子流，样本按下标写入同一切片后统一求均值.
func (mc *MonteCarloPricer) Run(ctx context.Context, p finance.MarketParameters, optionType types.OptionType, iterations int, seed uint64) (*Estimate, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if !optionType.Valid() {
		return nil, xerrors.ErrInvalidOptionType.Clone().WithDetail("unsupported option type %q", string(optionType))
	}
	if iterations < 1 {
		return nil, xerrors.ErrInvalidIterations.Clone().WithDetail("iterations must be at least 1, got %d", iterations)
	}

	gbm := NewRiskNeutralGBM(p)
	payoffs := make([]float64, iterations)
	chunks := partition(iterations, mc.workers)

	if len(chunks) == 1 {
		if err := fillPayoffs(ctx, payoffs, gbm, optionType, p.Strike, newStream(seed, 0)); err != nil {
			return nil, err
		}
	} else {
		pl := pool.New().WithContext(ctx).WithCancelOnError().WithMaxGoroutines(len(chunks))
		for i, c := range chunks {
			pl.Go(func(ctx context.Context) error {
				return fillPayoffs(ctx, payoffs[c.lo:c.hi], gbm, optionType, p.Strike, newStream(seed, uint64(i)))
			})
		}
		if err := pl.Wait(); err != nil {
			return nil, err
		}
	}

	discount := math.Exp(-p.Rate * p.Expiry)
	mean, sd := stat.MeanStdDev(payoffs, nil)
	est := &Estimate{
		Price:      discount * mean,
		Iterations: iterations,
		Seed:       seed,
		Workers:    len(chunks),
	}
	if iterations > 1 {
		est.StdErr = discount * sd / math.Sqrt(float64(iterations))
	}
	return est, nil
}

type chunk struct{ lo, hi int }

// partition 把 n 个样本切成不超过 workers 个连续区间，前 n%workers 个区间多一个样本.
func partition(n, workers int) []chunk {
	workers = max(min(workers, n), 1)
	size, rem := n/workers, n%workers
	chunks := make([]chunk, 0, workers)
	lo := 0
	for i := range workers {
		hi := lo + size
		if i < rem {
			hi++
		}
		chunks = append(chunks, chunk{lo: lo, hi: hi})
		lo = hi
	}
	return chunks
}

func newStream(seed, stream uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, stream))
}

func fillPayoffs(ctx context.Context, dst []float64, gbm *GeometricBrownianMotion, optionType types.OptionType, strike float64, rng *rand.Rand) error {
	isCall := optionType.IsCall()
	for i := range dst {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		st := gbm.TerminalPrice(rng.NormFloat64())
		if isCall {
			dst[i] = math.Max(st-strike, 0)
		} else {
			dst[i] = math.Max(strike-st, 0)
		}
	}
	return nil
}

var defaultPricer = NewMonteCarloPricer()

// Simulate 使用 DefaultSeed 的单线程模拟.
func Simulate(p finance.MarketParameters, optionType types.OptionType, iterations int) (float64, error) {
	return defaultPricer.Simulate(p, optionType, iterations, DefaultSeed)
}

// SimulateWithSeed 使用指定种子的单线程模拟.
func SimulateWithSeed(p finance.MarketParameters, optionType types.OptionType, iterations int, seed uint64) (float64, error) {
	return defaultPricer.Simulate(p, optionType, iterations, seed)
}

// RandomSeed 从 crypto/rand 取一个种子，供需要真随机的调用方显式传入.
func RandomSeed() uint64 {
	var b [8]byte
	if _, err := crypto_rand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}
