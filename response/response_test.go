package response

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/optionlab/xerrors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func render(f func(*gin.Context)) (*httptest.ResponseRecorder, Body) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	f(c)
	var b Body
	_ = json.Unmarshal(rec.Body.Bytes(), &b)
	return rec, b
}

func TestSuccess(t *testing.T) {
	rec, b := render(func(c *gin.Context) { Success(c, map[string]float64{"price": 10.4506}) })
	if rec.Code != http.StatusOK || b.Code != 0 || b.Msg != "success" {
		t.Errorf("status %d body %+v", rec.Code, b)
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		status   int
		bodyCode int
	}{
		{"business", xerrors.ErrInvalidParameter.Clone().WithDetail("expiry must be positive"), http.StatusBadRequest, 400101},
		{"wrapped business", fmt.Errorf("svc: %w", xerrors.ErrInvalidIterations), http.StatusBadRequest, 400102},
		{"rate limited", xerrors.ErrTooManyRequests, http.StatusTooManyRequests, 429001},
		{"canceled", context.Canceled, StatusClientClosedRequest, StatusClientClosedRequest},
		{"deadline", fmt.Errorf("run: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, http.StatusGatewayTimeout},
		{"grpc", status.Error(codes.Unavailable, "down"), http.StatusServiceUnavailable, http.StatusServiceUnavailable},
		{"plain", errors.New("boom"), http.StatusInternalServerError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, b := render(func(c *gin.Context) { Error(c, tc.err) })
			if rec.Code != tc.status || b.Code != tc.bodyCode {
				t.Errorf("status %d code %d, want %d/%d", rec.Code, b.Code, tc.status, tc.bodyCode)
			}
		})
	}

	_, b := render(func(c *gin.Context) { Error(c, xerrors.ErrInvalidParameter.Clone().WithDetail("expiry must be positive, got %v", 0)) })
	if b.Detail != "expiry must be positive, got 0" {
		t.Errorf("detail = %q", b.Detail)
	}
}
