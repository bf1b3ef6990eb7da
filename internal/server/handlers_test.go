package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/stochastix/riskd/internal/config"
	"github.com/stochastix/riskd/internal/engine"
	"github.com/stochastix/riskd/internal/risk"
	"github.com/stochastix/riskd/internal/store"
)

func testServer(t *testing.T) (*Server, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zaptest.NewLogger(t)

	cfg := &config.Config{}
	cfg.Database = config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          filepath.Join(t.TempDir(), "riskd.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}
	cfg.Engine = config.EngineConfig{
		Workers:      2,
		BatchSize:    5_000,
		MaxPaths:     1_000_000,
		MaxSteps:     10_000,
		MaxAssets:    8,
		ResultMemory: 64,
	}
	cfg.Risk = config.RiskConfig{DefaultConfidence: 0.95}

	repo, err := store.Open(cfg.Database, logger)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	eng := engine.New(logger, cfg.Engine, repo, nil, nil)
	riskSvc := risk.NewService(logger, cfg.Risk.MaxPortfolioVaR)

	srv := New(logger, cfg, eng, riskSvc, repo, nil)
	return srv, srv.Router()
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthz(t *testing.T) {
	_, router := testServer(t)
	w := doJSON(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateAndGetScenario(t *testing.T) {
	_, router := testServer(t)

	body := map[string]any{
		"name":    "gbm smoke",
		"process": "gbm",
		"asset":   map[string]any{"symbol": "AAA", "spot": 100, "mu": 0.05, "sigma": 0.2},
		"horizon": 1,
		"paths":   10_000,
		"seed":    7,
	}
	w := doJSON(t, router, http.MethodPost, "/api/v1/scenarios", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	created := decode[engine.Scenario](t, w)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, engine.ProcessGBM, created.Process)

	w = doJSON(t, router, http.MethodGet, "/api/v1/scenarios/"+created.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[engine.Scenario](t, w)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, 10_000, got.Paths)

	w = doJSON(t, router, http.MethodGet, "/api/v1/scenarios", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]engine.Scenario](t, w)
	assert.Len(t, list, 1)
}

func TestCreateScenarioRejectsInvalid(t *testing.T) {
	_, router := testServer(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/scenarios", map[string]any{
		"process": "gbm",
		"horizon": 1,
		"paths":   10_000,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/scenarios/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/scenarios/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunThroughAPI(t *testing.T) {
	_, router := testServer(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/scenarios", map[string]any{
		"name":    "run smoke",
		"process": "gbm",
		"asset":   map[string]any{"symbol": "AAA", "spot": 100, "mu": 0.0, "sigma": 0.2},
		"horizon": 1,
		"paths":   20_000,
		"seed":    11,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	sc := decode[engine.Scenario](t, w)

	w = doJSON(t, router, http.MethodPost, "/api/v1/scenarios/"+sc.ID.String()+"/runs", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	view := decode[engine.View](t, w)
	require.NotEqual(t, uuid.Nil, view.ID)

	resultPath := "/api/v1/runs/" + view.ID.String() + "/result"
	deadline := time.Now().Add(30 * time.Second)
	var result engine.Result
	for {
		require.True(t, time.Now().Before(deadline), "run did not finish")
		w = doJSON(t, router, http.MethodGet, resultPath, nil)
		if w.Code == http.StatusOK {
			result = decode[engine.Result](t, w)
			break
		}
		require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
		time.Sleep(10 * time.Millisecond)
	}

	assert.Equal(t, 20_000, result.Paths)
	assert.InDelta(t, 100, result.Estimate.Mean, 4*result.Estimate.StdErr+0.5)

	w = doJSON(t, router, http.MethodGet, "/api/v1/runs/"+view.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	final := decode[engine.View](t, w)
	assert.Equal(t, engine.StatusCompleted, final.Status)
	assert.EqualValues(t, 20_000, final.PathsCompleted)
}

func TestGetRunFallsBackToStore(t *testing.T) {
	srv, router := testServer(t)
	ctx := context.Background()

	rec := &store.RunRecord{
		ID:         uuid.New(),
		ScenarioID: uuid.New(),
		Status:     string(engine.StatusPending),
		Paths:      500,
		StartedAt:  time.Now(),
	}
	require.NoError(t, srv.repo.CreateRun(ctx, rec))

	// A pending record still carries the requested path count; it must not
	// be reported as progress.
	w := doJSON(t, router, http.MethodGet, "/api/v1/runs/"+rec.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[engine.View](t, w)
	assert.Equal(t, engine.StatusPending, view.Status)
	assert.Equal(t, 500, view.PathsRequested)
	assert.EqualValues(t, 0, view.PathsCompleted)

	now := time.Now()
	require.NoError(t, srv.repo.UpdateRun(ctx, &store.RunRecord{
		ID:         rec.ID,
		Status:     string(engine.StatusCompleted),
		Paths:      500,
		FinishedAt: &now,
	}))

	w = doJSON(t, router, http.MethodGet, "/api/v1/runs/"+rec.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	view = decode[engine.View](t, w)
	assert.Equal(t, engine.StatusCompleted, view.Status)
	assert.EqualValues(t, 500, view.PathsCompleted)
	assert.False(t, view.FinishedAt.IsZero())
}

func TestRunNotFound(t *testing.T) {
	_, router := testServer(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/runs/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodDelete, "/api/v1/runs/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPriceOptionMethods(t *testing.T) {
	_, router := testServer(t)

	base := map[string]any{
		"type":     "call",
		"spot":     100,
		"strike":   100,
		"rate":     0.05,
		"sigma":    0.2,
		"maturity": 1,
	}

	bs := base
	bs["method"] = "bs"
	w := doJSON(t, router, http.MethodPost, "/api/v1/pricing/option", bs)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	bsResp := decode[priceResponse](t, w)
	assert.InDelta(t, 10.4506, bsResp.Price, 1e-3)

	tree := map[string]any{
		"method": "tree", "type": "call", "spot": 100, "strike": 100,
		"rate": 0.05, "sigma": 0.2, "maturity": 1,
	}
	w = doJSON(t, router, http.MethodPost, "/api/v1/pricing/option", tree)
	require.Equal(t, http.StatusOK, w.Code)
	treeResp := decode[priceResponse](t, w)
	assert.InDelta(t, bsResp.Price, treeResp.Price, 0.05)

	mc := map[string]any{
		"method": "mc", "type": "call", "spot": 100, "strike": 100,
		"rate": 0.05, "sigma": 0.2, "maturity": 1,
		"paths": 200_000, "seed": 3, "reduction": "antithetic",
	}
	w = doJSON(t, router, http.MethodPost, "/api/v1/pricing/option", mc)
	require.Equal(t, http.StatusOK, w.Code)
	mcResp := decode[priceResponse](t, w)
	require.NotNil(t, mcResp.Detail)
	assert.InDelta(t, bsResp.Price, mcResp.Price, 4*mcResp.Detail.Estimate.StdErr+0.05)
}

func TestPriceOptionRejectsBadRequest(t *testing.T) {
	_, router := testServer(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/pricing/option", map[string]any{
		"method": "laplace", "type": "call", "spot": 100, "strike": 100,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/pricing/option", map[string]any{
		"method": "bs", "type": "call", "spot": -1, "strike": 100,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// American exercise is only priced on the lattice.
	for _, method := range []string{"bs", "mc"} {
		w = doJSON(t, router, http.MethodPost, "/api/v1/pricing/option", map[string]any{
			"method": method, "type": "put", "style": "american",
			"spot": 100, "strike": 100, "rate": 0.05, "sigma": 0.2, "maturity": 1,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code, method)
	}
}

func TestPortfolioVaRMethods(t *testing.T) {
	_, router := testServer(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/portfolio/var", map[string]any{
		"method":     "historical",
		"confidence": 0.95,
		"pnl":        []float64{-120, -80, -60, -40, -20, 0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100, 110, 120, 130, 140},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	hist := decode[risk.Result](t, w)
	assert.Equal(t, risk.HistoricalVaR, hist.Method)
	assert.Positive(t, hist.VaR)

	w = doJSON(t, router, http.MethodPost, "/api/v1/portfolio/var", map[string]any{
		"method":  "parametric",
		"value":   1_000_000,
		"std_dev": 0.02,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	para := decode[risk.Result](t, w)
	assert.Equal(t, 0.95, para.Confidence)
	assert.Positive(t, para.VaR)
	assert.GreaterOrEqual(t, para.ExpectedShortfall, para.VaR)

	w = doJSON(t, router, http.MethodPost, "/api/v1/portfolio/var", map[string]any{
		"method":     "montecarlo",
		"confidence": 0.99,
		"paths":      50_000,
		"seed":       13,
		"portfolio": map[string]any{
			"positions": []map[string]any{
				{"symbol": "AAA", "quantity": "100", "spot": "100", "sigma": 0.2},
				{"symbol": "BBB", "quantity": "50", "spot": "200", "sigma": 0.3},
			},
			"correlation": [][]float64{{1, 0.4}, {0.4, 1}},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	mc := decode[risk.Result](t, w)
	assert.Equal(t, 0.99, mc.Confidence)
	assert.Positive(t, mc.VaR)
	assert.InDelta(t, 20_000, mc.PortfolioValue, 1e-6)
}

func TestPortfolioVaRRejectsMissingPortfolio(t *testing.T) {
	_, router := testServer(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/portfolio/var", map[string]any{
		"method": "montecarlo",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
