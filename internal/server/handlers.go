package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/stochastix/riskd/internal/engine"
	"github.com/stochastix/riskd/internal/messaging"
	"github.com/stochastix/riskd/internal/pricing"
	"github.com/stochastix/riskd/internal/risk"
	"github.com/stochastix/riskd/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

func abortError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, errorResponse{Error: err.Error()})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleCreateScenario(c *gin.Context) {
	var sc engine.Scenario
	if err := c.ShouldBindJSON(&sc); err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}
	if err := sc.Validate(s.cfg.Engine); err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}

	sc.ID = uuid.New()
	definition, err := json.Marshal(&sc)
	if err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return
	}

	rec := &store.ScenarioRecord{
		ID:         sc.ID,
		Name:       sc.Name,
		Hash:       sc.Hash(),
		Definition: definition,
	}
	if err := s.repo.CreateScenario(c.Request.Context(), rec); err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusCreated, sc)
}

func (s *Server) handleListScenarios(c *gin.Context) {
	recs, err := s.repo.ListScenarios(c.Request.Context(), 100)
	if err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return
	}

	out := make([]engine.Scenario, 0, len(recs))
	for _, rec := range recs {
		var sc engine.Scenario
		if err := json.Unmarshal(rec.Definition, &sc); err != nil {
			continue
		}
		out = append(out, sc)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) loadScenario(c *gin.Context) (*engine.Scenario, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		abortError(c, http.StatusBadRequest, errors.New("invalid scenario id"))
		return nil, false
	}

	rec, err := s.repo.GetScenario(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		abortError(c, http.StatusNotFound, errors.New("scenario not found"))
		return nil, false
	}
	if err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return nil, false
	}

	var sc engine.Scenario
	if err := json.Unmarshal(rec.Definition, &sc); err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return nil, false
	}
	return &sc, true
}

func (s *Server) handleGetScenario(c *gin.Context) {
	sc, ok := s.loadScenario(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sc)
}

func (s *Server) handleStartRun(c *gin.Context) {
	sc, ok := s.loadScenario(c)
	if !ok {
		return
	}

	var opts []engine.SubmitOption
	if c.Query("refresh") == "true" {
		opts = append(opts, engine.SkipCache())
	}

	run, err := s.engine.Submit(c.Request.Context(), sc, opts...)
	if err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusAccepted, run.Snapshot())
}

func (s *Server) handleGetRun(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		abortError(c, http.StatusBadRequest, errors.New("invalid run id"))
		return
	}

	if run, ok := s.engine.Run(id); ok {
		c.JSON(http.StatusOK, run.Snapshot())
		return
	}

	// Engine restarts lose in-memory runs; the record survives.
	rec, err := s.repo.GetRun(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		abortError(c, http.StatusNotFound, errors.New("run not found"))
		return
	}
	if err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	view := engine.View{
		ID:             rec.ID,
		ScenarioID:     rec.ScenarioID,
		Status:         engine.RunStatus(rec.Status),
		Error:          rec.Error,
		PathsRequested: rec.Paths,
		StartedAt:      rec.StartedAt,
	}
	// The record's path count is the requested total until the run completes.
	if view.Status == engine.StatusCompleted {
		view.PathsCompleted = int64(rec.Paths)
	}
	if rec.FinishedAt != nil {
		view.FinishedAt = *rec.FinishedAt
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleCancelRun(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		abortError(c, http.StatusBadRequest, errors.New("invalid run id"))
		return
	}
	if !s.engine.Cancel(id) {
		abortError(c, http.StatusNotFound, errors.New("run not found"))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "cancelling"})
}

func (s *Server) handleGetResult(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		abortError(c, http.StatusBadRequest, errors.New("invalid run id"))
		return
	}

	if run, ok := s.engine.Run(id); ok {
		if result, done := run.Result(); done {
			c.JSON(http.StatusOK, result)
			return
		}
		snapshot := run.Snapshot()
		if snapshot.Status == engine.StatusFailed || snapshot.Status == engine.StatusCancelled {
			abortError(c, http.StatusConflict, errors.New("run did not complete: "+string(snapshot.Status)))
			return
		}
		c.JSON(http.StatusAccepted, snapshot)
		return
	}

	rec, err := s.repo.GetResult(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		abortError(c, http.StatusNotFound, errors.New("result not found"))
		return
	}
	if err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return
	}

	var result engine.Result
	if err := json.Unmarshal(rec.Payload, &result); err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type priceRequest struct {
	Method    string  `json:"method" binding:"required,oneof=bs tree mc"`
	Type      string  `json:"type" binding:"required,oneof=call put"`
	Style     string  `json:"style" binding:"omitempty,oneof=european american"`
	Spot      float64 `json:"spot" binding:"required,gt=0"`
	Strike    float64 `json:"strike" binding:"required,gt=0"`
	Rate      float64 `json:"rate"`
	Sigma     float64 `json:"sigma" binding:"min=0"`
	Maturity  float64 `json:"maturity" binding:"min=0"`
	Steps     int     `json:"steps" binding:"omitempty,min=1"`
	Paths     int     `json:"paths" binding:"omitempty,min=2"`
	Seed      uint64  `json:"seed"`
	Reduction string  `json:"reduction" binding:"omitempty,oneof=none antithetic control"`
}

type priceResponse struct {
	Method string            `json:"method"`
	Price  float64           `json:"price"`
	Detail *pricing.MCResult `json:"detail,omitempty"`
}

func (s *Server) handlePriceOption(c *gin.Context) {
	var req priceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}

	typ := pricing.OptionType(req.Type)
	if req.Method != "tree" && pricing.ExerciseStyle(req.Style) == pricing.American {
		abortError(c, http.StatusBadRequest,
			errors.New("american exercise requires the tree method"))
		return
	}

	switch req.Method {
	case "bs":
		price, err := pricing.BlackScholes(typ, req.Spot, req.Strike, req.Rate, req.Sigma, req.Maturity)
		if err != nil {
			abortError(c, http.StatusBadRequest, err)
			return
		}
		c.JSON(http.StatusOK, priceResponse{Method: req.Method, Price: price})

	case "tree":
		style := pricing.ExerciseStyle(req.Style)
		if style == "" {
			style = pricing.European
		}
		steps := req.Steps
		if steps == 0 {
			steps = 500
		}
		price, err := pricing.Binomial(typ, style, req.Spot, req.Strike, req.Rate, req.Sigma, req.Maturity, steps)
		if err != nil {
			abortError(c, http.StatusBadRequest, err)
			return
		}
		c.JSON(http.StatusOK, priceResponse{Method: req.Method, Price: price})

	case "mc":
		paths := req.Paths
		if paths == 0 {
			paths = 100_000
		}
		result, err := pricing.MonteCarlo(pricing.MCOption{
			Type:      typ,
			Spot:      req.Spot,
			Strike:    req.Strike,
			Rate:      req.Rate,
			Sigma:     req.Sigma,
			Maturity:  req.Maturity,
			Paths:     paths,
			Seed:      req.Seed,
			Reduction: pricing.VarianceReduction(req.Reduction),
		})
		if err != nil {
			abortError(c, http.StatusBadRequest, err)
			return
		}
		c.JSON(http.StatusOK, priceResponse{Method: req.Method, Price: result.Price, Detail: &result})
	}
}

type varRequest struct {
	Method     string          `json:"method" binding:"required,oneof=historical parametric montecarlo"`
	Confidence float64         `json:"confidence" binding:"omitempty,gt=0,lt=1"`
	Horizon    float64         `json:"horizon" binding:"omitempty,gt=0"`
	Paths      int             `json:"paths" binding:"omitempty,min=2"`
	Seed       uint64          `json:"seed"`
	Portfolio  *risk.Portfolio `json:"portfolio,omitempty"`
	PnL        []float64       `json:"pnl,omitempty"`
	Value      float64         `json:"value,omitempty"`
	Mean       float64         `json:"mean,omitempty"`
	StdDev     float64         `json:"std_dev,omitempty"`
}

func (s *Server) handlePortfolioVaR(c *gin.Context) {
	var req varRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}

	confidence := req.Confidence
	if confidence == 0 {
		confidence = s.cfg.Risk.DefaultConfidence
	}
	horizon := req.Horizon
	if horizon == 0 {
		horizon = 1.0 / 252 // one trading day
	}

	var result risk.Result
	var err error

	switch req.Method {
	case "historical":
		result, err = s.riskSvc.Historical(req.PnL, confidence)

	case "parametric":
		value := req.Value
		if value == 0 && req.Portfolio != nil {
			value = req.Portfolio.TotalValue().InexactFloat64()
		}
		result, err = s.riskSvc.Parametric(value, req.Mean, req.StdDev, risk.Params{
			Method:     risk.ParametricVaR,
			Confidence: confidence,
			Horizon:    horizon,
		})

	case "montecarlo":
		if req.Portfolio == nil {
			abortError(c, http.StatusBadRequest, errors.New("montecarlo method requires a portfolio"))
			return
		}
		paths := req.Paths
		if paths == 0 {
			paths = 100_000
		}
		result, err = s.riskSvc.MonteCarlo(c.Request.Context(), *req.Portfolio, risk.Params{
			Method:     risk.MonteCarloVaR,
			Confidence: confidence,
			Horizon:    horizon,
			Paths:      paths,
			Seed:       req.Seed,
		})
	}

	if err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}

	if limit := s.cfg.Risk.MaxPortfolioVaR; limit > 0 && result.VaR > limit {
		s.events.PublishVaRBreach(c.Request.Context(), messaging.VaRBreachEvent{
			Method:     string(result.Method),
			Confidence: result.Confidence,
			VaR:        result.VaR,
			Limit:      limit,
		})
	}

	c.JSON(http.StatusOK, result)
}
