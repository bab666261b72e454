package application

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/wyfcoding/optionlab/algorithm/finance"
	"github.com/wyfcoding/optionlab/algorithm/sim"
	"github.com/wyfcoding/optionlab/algorithm/types"
	"github.com/wyfcoding/optionlab/config"
	"github.com/wyfcoding/optionlab/metrics"
	"github.com/wyfcoding/optionlab/xerrors"
)

func testConfig() *config.Config {
	return &config.Config{
		Pricing: config.PricingConfig{
			DefaultSeed:       sim.DefaultSeed,
			DefaultIterations: 10000,
			MaxIterations:     200000,
			Workers:           1,
			MaxConcurrent:     2,
		},
		Surface: config.SurfaceConfig{
			SpotMin:     50,
			SpotMax:     150,
			VolMin:      0.1,
			VolMax:      1.0,
			GridSize:    30,
			CurvePoints: 100,
			MaxGridSize: 200,
			Concurrency: 4,
		},
	}
}

func newTestService(t *testing.T) (*PricingService, *metrics.Metrics) {
	t.Helper()
	m := metrics.NewMetrics("pricing-test")
	return NewPricingService(testConfig(), m, slog.New(slog.DiscardHandler)), m
}

var atmTerms = OptionTerms{OptionType: "call", Spot: 100, Strike: 100, Expiry: 1, Rate: 0.05, Volatility: 0.2}

func TestPriceOption(t *testing.T) {
	svc, m := newTestService(t)

	dto, err := svc.PriceOption(context.Background(), PriceOptionCommand{OptionTerms: atmTerms})
	if err != nil {
		t.Fatal(err)
	}
	if dto.OptionType != "call" {
		t.Errorf("OptionType = %q", dto.OptionType)
	}
	if math.Abs(float64(dto.Price)-10.4506) > 1e-4 {
		t.Errorf("Price = %v", dto.Price)
	}
	if got := dto.Rounded.Price.Decimal.String(); got != "10.4506" {
		t.Errorf("rounded price = %s", got)
	}
	if got := dto.Rounded.Greeks.Theta.Decimal.String(); got != "-6.414" {
		t.Errorf("rounded theta = %s", got)
	}

	put := atmTerms
	put.OptionType = "PUT"
	dto, err = svc.PriceOption(context.Background(), PriceOptionCommand{OptionTerms: put, Precision: 2})
	if err != nil {
		t.Fatal(err)
	}
	if got := dto.Rounded.Price.Decimal.String(); got != "5.57" {
		t.Errorf("rounded put price = %s", got)
	}

	if got := testutil.ToFloat64(m.PricingRequestsTotal.WithLabelValues("price", "call", resultOK)); got != 1 {
		t.Errorf("call success count = %v", got)
	}
	if got := testutil.ToFloat64(m.PricingRequestsTotal.WithLabelValues("price", "put", resultOK)); got != 1 {
		t.Errorf("put success count = %v", got)
	}
}

func TestPriceOptionRejectsInvalidInput(t *testing.T) {
	svc, m := newTestService(t)

	expired := atmTerms
	expired.Expiry = 0
	if _, err := svc.PriceOption(context.Background(), PriceOptionCommand{OptionTerms: expired}); !errors.Is(err, xerrors.ErrInvalidParameter) {
		t.Errorf("expired option err = %v", err)
	}

	straddle := atmTerms
	straddle.OptionType = "straddle"
	_, err := svc.PriceOption(context.Background(), PriceOptionCommand{OptionTerms: straddle})
	if !errors.Is(err, xerrors.ErrInvalidOptionType) {
		t.Errorf("unknown type err = %v", err)
	}
	if e, ok := xerrors.FromError(err); !ok || e.HTTPStatus() != 400 {
		t.Errorf("unknown type should map to 400, got %v", err)
	}

	if got := testutil.ToFloat64(m.PricingRequestsTotal.WithLabelValues("price", "unknown", resultError)); got != 1 {
		t.Errorf("unknown type error count = %v", got)
	}
	if got := testutil.ToFloat64(m.PricingRequestsTotal.WithLabelValues("price", "call", resultError)); got != 1 {
		t.Errorf("call error count = %v", got)
	}
}

func TestSimulateOptionUsesConfiguredDefaults(t *testing.T) {
	svc, m := newTestService(t)

	first, err := svc.SimulateOption(context.Background(), SimulateOptionCommand{OptionTerms: atmTerms})
	if err != nil {
		t.Fatal(err)
	}
	if first.Iterations != 10000 || first.Seed != sim.DefaultSeed || first.Workers != 1 {
		t.Errorf("defaults not applied: %+v", first)
	}
	want, err := sim.SimulateWithSeed(finance.MarketParameters{Spot: 100, Strike: 100, Expiry: 1, Rate: 0.05, Volatility: 0.2}, types.OptionTypeCall, 10000, sim.DefaultSeed)
	if err != nil {
		t.Fatal(err)
	}
	if float64(first.Price) != want {
		t.Errorf("service price %v differs from engine %v", first.Price, want)
	}

	again, err := svc.SimulateOption(context.Background(), SimulateOptionCommand{OptionTerms: atmTerms})
	if err != nil {
		t.Fatal(err)
	}
	if again.Price != first.Price {
		t.Errorf("repeated default-seed runs differ: %v vs %v", again.Price, first.Price)
	}
	if math.Abs(float64(first.Analytic)-10.4506) > 1e-4 {
		t.Errorf("analytic reference = %v", first.Analytic)
	}
	if math.Abs(float64(first.Difference)) > 5*float64(first.StdErr) {
		t.Errorf("estimate %v too far from analytic %v (stderr %v)", first.Price, first.Analytic, first.StdErr)
	}

	if got := testutil.ToFloat64(m.SimulationPaths); got != 20000 {
		t.Errorf("simulation paths = %v", got)
	}
	if got := testutil.CollectAndCount(m.SimulationDuration); got != 1 {
		t.Errorf("duration series = %d", got)
	}
}

func TestSimulateOptionOverrides(t *testing.T) {
	svc, _ := newTestService(t)

	n, seed := 5000, uint64(99)
	dto, err := svc.SimulateOption(context.Background(), SimulateOptionCommand{OptionTerms: atmTerms, Iterations: &n, Seed: &seed})
	if err != nil {
		t.Fatal(err)
	}
	if dto.Iterations != n || dto.Seed != seed {
		t.Errorf("overrides not applied: %+v", dto)
	}

	random, err := svc.SimulateOption(context.Background(), SimulateOptionCommand{OptionTerms: atmTerms, RandomSeed: true})
	if err != nil {
		t.Fatal(err)
	}
	if random.Iterations != 10000 {
		t.Errorf("random seed run iterations = %d", random.Iterations)
	}
}

func TestSimulateOptionRejectsIterations(t *testing.T) {
	svc, _ := newTestService(t)

	for _, n := range []int{0, -1, 200001} {
		_, err := svc.SimulateOption(context.Background(), SimulateOptionCommand{OptionTerms: atmTerms, Iterations: &n})
		if !errors.Is(err, xerrors.ErrInvalidIterations) {
			t.Errorf("iterations=%d: err = %v", n, err)
		}
	}

	bad := atmTerms
	bad.Volatility = 0
	if _, err := svc.SimulateOption(context.Background(), SimulateOptionCommand{OptionTerms: bad}); !errors.Is(err, xerrors.ErrInvalidParameter) {
		t.Errorf("zero volatility err = %v", err)
	}
}

func TestSimulateOptionWaitsForCapacity(t *testing.T) {
	cfg := testConfig()
	cfg.Pricing.MaxConcurrent = 1
	svc := NewPricingService(cfg, metrics.NewMetrics("pricing-test"), slog.New(slog.DiscardHandler))

	release, err := svc.engine.Load().sem.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := svc.SimulateOption(ctx, SimulateOptionCommand{OptionTerms: atmTerms}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}

	release()
	if _, err := svc.SimulateOption(context.Background(), SimulateOptionCommand{OptionTerms: atmTerms}); err != nil {
		t.Errorf("simulation after release: %v", err)
	}
}

func TestApplyConfig(t *testing.T) {
	svc, _ := newTestService(t)

	cfg := testConfig()
	cfg.Pricing.DefaultIterations = 2000
	cfg.Pricing.DefaultSeed = 7
	cfg.Pricing.Workers = 3
	cfg.Surface.MaxGridSize = 100
	svc.ApplyConfig(cfg)

	dto, err := svc.SimulateOption(context.Background(), SimulateOptionCommand{OptionTerms: atmTerms})
	if err != nil {
		t.Fatal(err)
	}
	if dto.Iterations != 2000 || dto.Seed != 7 || dto.Workers != 3 {
		t.Errorf("reloaded defaults not applied: %+v", dto)
	}

	if _, err := svc.GreeksCurve(context.Background(), GreeksCurveCommand{
		OptionType: "call", Strike: 100, Expiry: 1, Rate: 0.05, Volatility: 0.2, Points: 150,
	}); !errors.Is(err, xerrors.ErrInvalidGrid) {
		t.Errorf("grid above reloaded limit err = %v", err)
	}
}

func TestPriceSurface(t *testing.T) {
	svc, m := newTestService(t)

	dto, err := svc.PriceSurface(context.Background(), PriceSurfaceCommand{OptionType: "put", Strike: 100, Expiry: 1, Rate: 0.05})
	if err != nil {
		t.Fatal(err)
	}
	if len(dto.Spots) != 30 || len(dto.Vols) != 30 || len(dto.Prices) != 30 {
		t.Fatalf("unexpected surface shape %dx%d", len(dto.Spots), len(dto.Vols))
	}
	if dto.Spots[0] != 50 || dto.Spots[29] != 150 || dto.Vols[0] != 0.1 || dto.Vols[29] != 1.0 {
		t.Errorf("default axes not applied: spots %v..%v vols %v..%v", dto.Spots[0], dto.Spots[29], dto.Vols[0], dto.Vols[29])
	}

	p := finance.MarketParameters{Spot: dto.Spots[7], Strike: 100, Expiry: 1, Rate: 0.05, Volatility: dto.Vols[11]}
	want, _ := finance.Price(p, types.OptionTypePut)
	if float64(dto.Prices[7][11]) != want {
		t.Errorf("surface point = %v, want %v", dto.Prices[7][11], want)
	}
	if got := testutil.ToFloat64(m.GridPointsTotal.WithLabelValues("surface")); got != 900 {
		t.Errorf("surface grid points = %v", got)
	}

	custom, err := svc.PriceSurface(context.Background(), PriceSurfaceCommand{
		OptionType: "call", Strike: 100, Expiry: 1, Rate: 0.05,
		SpotMin: 80, SpotMax: 120, VolMin: 0.2, VolMax: 0.4, Size: 5,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(custom.Spots) != 5 || custom.Spots[4] != 120 || custom.Vols[0] != 0.2 {
		t.Errorf("custom axes = %v %v", custom.Spots, custom.Vols)
	}
}

func TestPriceSurfaceRejectsInvalidGrid(t *testing.T) {
	svc, _ := newTestService(t)

	cases := []struct {
		name string
		cmd  PriceSurfaceCommand
		want error
	}{
		{"too large", PriceSurfaceCommand{OptionType: "call", Strike: 100, Expiry: 1, Size: 201}, xerrors.ErrInvalidGrid},
		{"negative size", PriceSurfaceCommand{OptionType: "call", Strike: 100, Expiry: 1, Size: -3}, xerrors.ErrInvalidGrid},
		{"bad type", PriceSurfaceCommand{OptionType: "binary", Strike: 100, Expiry: 1}, xerrors.ErrInvalidOptionType},
		{"zero expiry", PriceSurfaceCommand{OptionType: "call", Strike: 100}, xerrors.ErrInvalidParameter},
		{"negative spot", PriceSurfaceCommand{OptionType: "call", Strike: 100, Expiry: 1, SpotMin: -10}, xerrors.ErrInvalidParameter},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.PriceSurface(context.Background(), tc.cmd); !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestGreeksCurve(t *testing.T) {
	svc, m := newTestService(t)

	dto, err := svc.GreeksCurve(context.Background(), GreeksCurveCommand{OptionType: "call", Strike: 100, Expiry: 1, Rate: 0.05, Volatility: 0.2})
	if err != nil {
		t.Fatal(err)
	}
	if len(dto.Points) != 100 {
		t.Fatalf("points = %d", len(dto.Points))
	}
	for i := 1; i < len(dto.Points); i++ {
		if dto.Points[i].Delta < dto.Points[i-1].Delta {
			t.Fatalf("call delta decreased at S=%v", dto.Points[i].Spot)
		}
	}
	if first, last := dto.Points[0], dto.Points[99]; first.Spot != 50 || last.Spot != 150 {
		t.Errorf("curve spans %v..%v", first.Spot, last.Spot)
	}
	if got := testutil.ToFloat64(m.GridPointsTotal.WithLabelValues("curve")); got != 100 {
		t.Errorf("curve grid points = %v", got)
	}
}

func TestFloatMarshalsNonFiniteAsNull(t *testing.T) {
	b, err := json.Marshal(struct {
		A Float `json:"a"`
		B Float `json:"b"`
		C Float `json:"c"`
	}{Float(math.NaN()), Float(math.Inf(-1)), 1.25})
	if err != nil {
		t.Fatal(err)
	}
	if got := string(b); got != `{"a":null,"b":null,"c":1.25}` {
		t.Errorf("json = %s", got)
	}
}
