// Package api serves the generation, metadata and evaluation endpoints over
// echo.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/samcharles93/quantserve/internal/evaluation"
	"github.com/samcharles93/quantserve/internal/inference"
	"github.com/samcharles93/quantserve/internal/logger"
)

type Config struct {
	Provider EngineProvider
	Metrics  *Metrics
	Logger   logger.Logger
	// SamplesPath is the evaluation prompt file; empty uses the built-in
	// samples.
	SamplesPath string
	// RequestTimeout bounds a single generation; zero disables it.
	RequestTimeout time.Duration
}

type Server struct {
	provider    EngineProvider
	metrics     *Metrics
	log         logger.Logger
	samplesPath string
	timeout     time.Duration

	mu         sync.RWMutex
	evaluation *evaluation.EvaluationReport
}

func NewServer(cfg Config) *Server {
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}
	return &Server{
		provider:    cfg.Provider,
		metrics:     cfg.Metrics,
		log:         cfg.Logger,
		samplesPath: cfg.SamplesPath,
		timeout:     cfg.RequestTimeout,
	}
}

// New returns an echo instance with middleware and routes installed.
func (s *Server) New() *echo.Echo {
	e := echo.New()
	e.Use(middleware.Recover())
	e.Use(requestID)
	e.Use(accessLog(s.log, s.metrics))
	s.Register(e)
	return e
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/health", s.handleHealth)
	e.POST("/generate", s.handleGenerate)
	e.POST("/generate/baseline", s.handleGenerateBaseline)
	e.GET("/metadata", s.handleMetadata)
	e.POST("/evaluate", s.handleEvaluate)
	e.GET("/metrics", s.handleMetrics)
}

type GenerateRequest struct {
	Prompt       string   `json:"prompt"`
	MaxNewTokens *int     `json:"max_new_tokens,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	TopK         *int     `json:"top_k,omitempty"`
	Seed         *int64   `json:"seed,omitempty"`
}

type MetadataResponse struct {
	Quantized    *inference.Metadata             `json:"quantized"`
	Baseline     *inference.Metadata             `json:"baseline"`
	Quantization *evaluation.QuantizationSummary `json:"quantization"`
	Evaluation   *evaluation.EvaluationReport    `json:"evaluation"`
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (s *Server) handleMetrics(c *echo.Context) error {
	s.metrics.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}

func (s *Server) handleGenerate(c *echo.Context) error {
	reg, err := s.provider.Registry()
	if err != nil {
		return writeServiceError(c, err)
	}
	return s.generate(c, reg, reg.Preferred())
}

func (s *Server) handleGenerateBaseline(c *echo.Context) error {
	reg, err := s.provider.Registry()
	if err != nil {
		return writeServiceError(c, err)
	}
	if !reg.Has(inference.VariantBaseline) {
		return writeBadRequest(c, "invalid request: baseline model not available")
	}
	return s.generate(c, reg, inference.VariantBaseline)
}

func (s *Server) generate(c *echo.Context, reg *inference.Registry, variant string) error {
	req, err := decodeJSON[GenerateRequest](c.Request().Body)
	if err != nil {
		return writeServiceError(c, err)
	}

	ctx := c.Request().Context()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	log := s.log.With("request_id", requestIDOf(c), "model", variant)
	resp, err := reg.Generate(ctx, variant, inference.RequestOptions{
		Prompt:       req.Prompt,
		MaxNewTokens: req.MaxNewTokens,
		Temperature:  req.Temperature,
		TopK:         req.TopK,
		Seed:         req.Seed,
	})
	s.metrics.ObserveGeneration(variant, resp, err)
	if err != nil {
		log.Warn("generation failed", "error", err)
		return writeServiceError(c, err)
	}
	log.Debug("generation served",
		"tokens", resp.TokensGenerated,
		"total_time_ms", resp.TotalTimeMS,
		"tps", resp.TokensPerSecond,
	)
	return writeJSON(c, http.StatusOK, resp)
}

func (s *Server) handleMetadata(c *echo.Context) error {
	reg, err := s.provider.Registry()
	if err != nil {
		return writeServiceError(c, err)
	}
	quantized, baseline := reg.Metadata()
	resp := MetadataResponse{
		Quantized: quantized,
		Baseline:  baseline,
	}
	if quantized != nil {
		summary := evaluation.NewQuantizationSummary(*quantized, baseline)
		resp.Quantization = &summary
	}
	s.mu.RLock()
	resp.Evaluation = s.evaluation
	s.mu.RUnlock()
	return writeJSON(c, http.StatusOK, resp)
}

func (s *Server) handleEvaluate(c *echo.Context) error {
	reg, err := s.provider.Registry()
	if err != nil {
		return writeServiceError(c, err)
	}

	samples := evaluation.FallbackSamples()
	if s.samplesPath != "" {
		samples, err = evaluation.LoadSamples(s.samplesPath)
		if err != nil {
			return writeServiceError(c, err)
		}
	}

	log := s.log.With("request_id", requestIDOf(c))
	log.Info("running evaluation benchmark", "count", len(samples))

	report, err := evaluation.RunBenchmark(c.Request().Context(), reg, inference.RequestOptions{}, samples)
	if err != nil {
		log.Warn("evaluation failed", "error", err)
		return writeServiceError(c, err)
	}

	s.mu.Lock()
	s.evaluation = report
	s.mu.Unlock()
	return writeJSON(c, http.StatusOK, report)
}

// Evaluation returns the most recent evaluation report, if any.
func (s *Server) Evaluation() *evaluation.EvaluationReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.evaluation
}
