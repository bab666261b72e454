package sim

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/wyfcoding/optionlab/algorithm/finance"
	"github.com/wyfcoding/optionlab/algorithm/types"
	"github.com/wyfcoding/optionlab/xerrors"
)

var atm = finance.MarketParameters{Spot: 100, Strike: 100, Expiry: 1, Rate: 0.05, Volatility: 0.2}

func TestSimulateIsReproducible(t *testing.T) {
	for _, ot := range []types.OptionType{types.OptionTypeCall, types.OptionTypePut} {
		a, err := Simulate(atm, ot, 10000)
		if err != nil {
			t.Fatal(err)
		}
		b, err := Simulate(atm, ot, 10000)
		if err != nil {
			t.Fatal(err)
		}
		if a != b {
			t.Errorf("%s: repeated calls differ: %v vs %v", ot, a, b)
		}
		c, _ := SimulateWithSeed(atm, ot, 10000, DefaultSeed)
		if a != c {
			t.Errorf("%s: default seed mismatch: %v vs %v", ot, a, c)
		}
	}

	x, _ := SimulateWithSeed(atm, types.OptionTypeCall, 10000, 1)
	y, _ := SimulateWithSeed(atm, types.OptionTypeCall, 10000, 2)
	if x == y {
		t.Errorf("different seeds gave identical estimates %v", x)
	}
}

func TestParallelRunIsReproducible(t *testing.T) {
	mc := NewMonteCarloPricer(WithWorkers(4))
	first, err := mc.Run(context.Background(), atm, types.OptionTypeCall, 50001, 42)
	if err != nil {
		t.Fatal(err)
	}
	for range 5 {
		again, err := mc.Run(context.Background(), atm, types.OptionTypeCall, 50001, 42)
		if err != nil {
			t.Fatal(err)
		}
		if again.Price != first.Price || again.StdErr != first.StdErr {
			t.Fatalf("parallel estimate changed: %+v vs %+v", again, first)
		}
	}
	if first.Workers != 4 {
		t.Errorf("Workers = %d, want 4", first.Workers)
	}
}

func TestSingleWorkerMatchesPackageLevel(t *testing.T) {
	est, err := NewMonteCarloPricer(WithWorkers(1)).Run(context.Background(), atm, types.OptionTypePut, 2000, DefaultSeed)
	if err != nil {
		t.Fatal(err)
	}
	p, _ := Simulate(atm, types.OptionTypePut, 2000)
	if est.Price != p {
		t.Errorf("Run = %v, Simulate = %v", est.Price, p)
	}
}

func TestSimulationAgreesWithAnalytic(t *testing.T) {
	for _, workers := range []int{1, 3} {
		mc := NewMonteCarloPricer(WithWorkers(workers))
		for _, ot := range []types.OptionType{types.OptionTypeCall, types.OptionTypePut} {
			want, _ := finance.Price(atm, ot)
			est, err := mc.Run(context.Background(), atm, ot, 100000, DefaultSeed)
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(est.Price-want) > 5*est.StdErr {
				t.Errorf("workers=%d %s: mc=%v analytic=%v stderr=%v", workers, ot, est.Price, want, est.StdErr)
			}
		}
	}
}

func TestConvergenceRate(t *testing.T) {
	mc := NewMonteCarloPricer()
	want, _ := finance.Price(atm, types.OptionTypeCall)

	small, _ := mc.Run(context.Background(), atm, types.OptionTypeCall, 1000, 7)
	large, _ := mc.Run(context.Background(), atm, types.OptionTypeCall, 100000, 7)
	if ratio := small.StdErr / large.StdErr; ratio < 7 || ratio > 13 {
		t.Errorf("stderr ratio for 100x samples = %v, want about 10", ratio)
	}

	const seeds = 20
	var devSmall, devLarge float64
	for seed := range uint64(seeds) {
		s, _ := SimulateWithSeed(atm, types.OptionTypeCall, 1000, seed)
		l, _ := SimulateWithSeed(atm, types.OptionTypeCall, 100000, seed)
		devSmall += math.Abs(s-want) / seeds
		devLarge += math.Abs(l-want) / seeds
	}
	if devSmall < 3*devLarge {
		t.Errorf("mean abs deviation did not shrink: N=1000 %v, N=100000 %v", devSmall, devLarge)
	}
}

func TestSimulateRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name       string
		p          finance.MarketParameters
		ot         types.OptionType
		iterations int
		want       error
	}{
		{"zero iterations", atm, types.OptionTypeCall, 0, xerrors.ErrInvalidIterations},
		{"negative iterations", atm, types.OptionTypeCall, -5, xerrors.ErrInvalidIterations},
		{"zero expiry", finance.MarketParameters{Spot: 100, Strike: 100, Rate: 0.05, Volatility: 0.2}, types.OptionTypeCall, 10, xerrors.ErrInvalidParameter},
		{"zero volatility", finance.MarketParameters{Spot: 100, Strike: 100, Expiry: 1, Rate: 0.05}, types.OptionTypePut, 10, xerrors.ErrInvalidParameter},
		{"bad type", atm, types.OptionType("BINARY"), 10, xerrors.ErrInvalidOptionType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewMonteCarloPricer(WithWorkers(2)).Simulate(tc.p, tc.ot, tc.iterations, DefaultSeed)
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
			if !errors.Is(err, xerrors.ErrInvalidParameter) {
				t.Errorf("err = %v should be an InvalidParameter", err)
			}
		})
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, workers := range []int{1, 4} {
		_, err := NewMonteCarloPricer(WithWorkers(workers)).Run(ctx, atm, types.OptionTypeCall, 100000, DefaultSeed)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("workers=%d: err = %v, want context.Canceled", workers, err)
		}
	}
}

func TestSingleIteration(t *testing.T) {
	est, err := NewMonteCarloPricer().Run(context.Background(), atm, types.OptionTypeCall, 1, DefaultSeed)
	if err != nil {
		t.Fatal(err)
	}
	if est.StdErr != 0 || est.Price < 0 || math.IsNaN(est.Price) {
		t.Errorf("single iteration estimate = %+v", est)
	}
}

func TestExtremeParametersPropagate(t *testing.T) {
	p := finance.MarketParameters{Spot: 100, Strike: 100, Expiry: 5, Rate: 200, Volatility: 0.2}
	v, err := Simulate(p, types.OptionTypeCall, 100)
	if err != nil {
		t.Fatalf("extreme parameters must not be an error: %v", err)
	}
	if !math.IsNaN(v) && !math.IsInf(v, 0) {
		t.Errorf("expected non-finite estimate, got %v", v)
	}
}

func TestPartition(t *testing.T) {
	cases := []struct{ n, workers, chunks int }{
		{10, 1, 1},
		{10, 3, 3},
		{2, 8, 2},
		{100001, 4, 4},
		{5, 0, 1},
	}
	for _, tc := range cases {
		got := partition(tc.n, tc.workers)
		if len(got) != tc.chunks {
			t.Errorf("partition(%d,%d) has %d chunks, want %d", tc.n, tc.workers, len(got), tc.chunks)
			continue
		}
		next := 0
		for _, c := range got {
			if c.lo != next || c.hi <= c.lo {
				t.Errorf("partition(%d,%d) not contiguous: %+v", tc.n, tc.workers, got)
				break
			}
			next = c.hi
		}
		if next != tc.n {
			t.Errorf("partition(%d,%d) covers %d samples", tc.n, tc.workers, next)
		}
	}
}

func TestTerminalPrice(t *testing.T) {
	gbm := NewRiskNeutralGBM(atm)
	want := 100 * math.Exp(0.05-0.02)
	if got := gbm.TerminalPrice(0); math.Abs(got-want) > 1e-12 {
		t.Errorf("TerminalPrice(0) = %v, want %v", got, want)
	}
	if gbm.TerminalPrice(1) <= gbm.TerminalPrice(0) {
		t.Errorf("terminal price must increase with z")
	}
}

func BenchmarkRun(b *testing.B) {
	mc := NewMonteCarloPricer()
	for b.Loop() {
		_, _ = mc.Run(context.Background(), atm, types.OptionTypeCall, 10000, DefaultSeed)
	}
}
