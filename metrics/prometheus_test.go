package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPricingMetricsExposed(t *testing.T) {
	m := NewMetrics("option-pricer")
	m.RegisterBuildInfo("option-pricer", "v1")
	m.RegisterBuildInfo("option-pricer", "v2")

	m.PricingRequestsTotal.WithLabelValues("price", "call", "ok").Inc()
	m.SimulationPaths.Add(50000)
	m.GridPointsTotal.WithLabelValues("surface").Add(900)

	if got := testutil.ToFloat64(m.SimulationPaths); got != 50000 {
		t.Errorf("paths = %v", got)
	}
	if got := testutil.ToFloat64(m.PricingRequestsTotal.WithLabelValues("price", "call", "ok")); got != 1 {
		t.Errorf("pricing requests = %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{
		"option_pricing_requests_total",
		"option_simulation_paths_total",
		"option_grid_points_total",
		`build_info{service="option-pricer",version="v1"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("exposition missing %q", name)
		}
	}
	if strings.Contains(string(body), `version="v2"`) {
		t.Errorf("build info registered twice")
	}
}
